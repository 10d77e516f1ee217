package vmware

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/nfc"
	"github.com/vmware/govmomi/ovf"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
)

// DeployService handles datastore file uploads and OVF/OVA template
// deployment.
type DeployService struct {
	client *Client
	scope  *ResourceScope
	logger *logrus.Logger
}

// DeployRequest describes an OVF or OVA deployment
type DeployRequest struct {
	// SourcePath is the local path of the .ovf or .ova file
	SourcePath string

	// DiskPath optionally names the local .vmdk referenced by an OVF
	// descriptor; when empty, disks resolve relative to the descriptor
	DiskPath string

	// Name is the inventory name of the deployed VM; empty keeps the
	// descriptor's name
	Name string

	// Datastore optionally overrides the scope's datastore
	Datastore string

	// ResourcePool optionally overrides the scope's resource pool
	ResourcePool string

	// Network optionally overrides the scope's network
	Network string
}

// NewDeployService creates a new deployment service instance
func NewDeployService(client *Client, scope *ResourceScope, logger *logrus.Logger) *DeployService {
	return &DeployService{
		client: client,
		scope:  scope,
		logger: logger,
	}
}

// UploadFileToDatastore uploads a local file to a path on a datastore
func (s *DeployService) UploadFileToDatastore(ctx context.Context, localPath, datastoreName, remotePath string) error {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return err
	}

	ds, err := s.scope.DatastoreOrDefault(ctx, c, datastoreName)
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"local_path":  localPath,
		"datastore":   ds.Name(),
		"remote_path": remotePath,
	}).Info("Uploading file to datastore")

	params := soap.DefaultUpload
	if err := ds.UploadFile(ctx, localPath, remotePath, &params); err != nil {
		return fmt.Errorf("%w: datastore upload failed: %v", ErrRemoteOperation, err)
	}
	return nil
}

// ovfPayload holds a parsed descriptor plus a resolver for the disk
// images referenced by it.
type ovfPayload struct {
	descriptor string
	openDisk   func(name string) (io.ReadCloser, int64, error)
}

// DeployOVF deploys a virtual machine from an OVF descriptor. Disk
// images are resolved relative to the descriptor's directory.
func (s *DeployService) DeployOVF(ctx context.Context, req DeployRequest) (string, error) {
	raw, err := os.ReadFile(req.SourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to read OVF descriptor: %w", err)
	}

	dir := filepath.Dir(req.SourcePath)
	payload := &ovfPayload{
		descriptor: string(raw),
		openDisk: func(name string) (io.ReadCloser, int64, error) {
			localPath := filepath.Join(dir, filepath.Base(name))
			if req.DiskPath != "" {
				localPath = req.DiskPath
			}
			f, err := os.Open(localPath)
			if err != nil {
				return nil, 0, err
			}
			info, err := f.Stat()
			if err != nil {
				_ = f.Close()
				return nil, 0, err
			}
			return f, info.Size(), nil
		},
	}

	return s.deploy(ctx, req, payload)
}

// DeployOVA deploys a virtual machine from an OVA archive. The archive
// is a tar file holding the descriptor and its disk images.
func (s *DeployService) DeployOVA(ctx context.Context, req DeployRequest) (string, error) {
	descriptor, err := readOVADescriptor(req.SourcePath)
	if err != nil {
		return "", err
	}

	payload := &ovfPayload{
		descriptor: descriptor,
		openDisk: func(name string) (io.ReadCloser, int64, error) {
			return openOVAEntry(req.SourcePath, name)
		},
	}

	return s.deploy(ctx, req, payload)
}

// readOVADescriptor extracts the .ovf descriptor from an OVA archive
func readOVADescriptor(ovaPath string) (string, error) {
	f, err := os.Open(ovaPath)
	if err != nil {
		return "", fmt.Errorf("failed to open OVA archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := tar.NewReader(f)
	for {
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read OVA archive: %w", err)
		}
		if strings.HasSuffix(strings.ToLower(header.Name), ".ovf") {
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, r); err != nil {
				return "", fmt.Errorf("failed to read OVF descriptor from archive: %w", err)
			}
			return buf.String(), nil
		}
	}
	return "", fmt.Errorf("no OVF descriptor found in archive %s", ovaPath)
}

// openOVAEntry opens a named entry inside an OVA archive. The caller
// owns the returned reader, which closes the underlying archive.
func openOVAEntry(ovaPath, name string) (io.ReadCloser, int64, error) {
	f, err := os.Open(ovaPath)
	if err != nil {
		return nil, 0, err
	}

	r := tar.NewReader(f)
	for {
		header, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = f.Close()
			return nil, 0, err
		}
		if path.Base(header.Name) == path.Base(name) {
			return &tarEntryReader{Reader: r, closer: f}, header.Size, nil
		}
	}
	_ = f.Close()
	return nil, 0, fmt.Errorf("entry %s not found in archive", name)
}

type tarEntryReader struct {
	*tar.Reader
	closer io.Closer
}

func (t *tarEntryReader) Close() error {
	return t.closer.Close()
}

// deploy runs the import: build the import spec, acquire an NFC lease
// and push every referenced disk through it.
func (s *DeployService) deploy(ctx context.Context, req DeployRequest, payload *ovfPayload) (string, error) {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return "", err
	}

	ds, err := s.scope.DatastoreOrDefault(ctx, c, req.Datastore)
	if err != nil {
		return "", err
	}
	pool, err := s.scope.ResourcePoolOrDefault(ctx, c, req.ResourcePool)
	if err != nil {
		return "", err
	}

	params := types.OvfCreateImportSpecParams{
		EntityName:       req.Name,
		DiskProvisioning: "thin",
	}

	if req.Network != "" || s.scope.Network != nil {
		network, err := s.scope.NetworkOrDefault(ctx, c, req.Network)
		if err != nil {
			return "", err
		}
		if network != nil {
			envelope, err := ovf.Unmarshal(strings.NewReader(payload.descriptor))
			if err == nil && envelope.Network != nil {
				for _, net := range envelope.Network.Networks {
					params.NetworkMapping = append(params.NetworkMapping, types.OvfNetworkMapping{
						Name:    net.Name,
						Network: network.Reference(),
					})
				}
			}
		}
	}

	ovfMgr := ovf.NewManager(c)
	spec, err := ovfMgr.CreateImportSpec(ctx, payload.descriptor, pool, ds, &params)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create import spec: %v", ErrRemoteOperation, err)
	}
	if spec.Error != nil {
		return "", fmt.Errorf("%w: invalid OVF descriptor: %s", ErrRemoteOperation, spec.Error[0].LocalizedMessage)
	}

	deployedName := importedEntityName(req.Name, spec.ImportSpec)

	folder, err := s.scope.Datacenter.Folders(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to access VM folder: %w", err)
	}

	lease, err := pool.ImportVApp(ctx, spec.ImportSpec, folder.VmFolder, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to start import: %v", ErrRemoteOperation, err)
	}

	info, err := lease.Wait(ctx, spec.FileItem)
	if err != nil {
		return "", fmt.Errorf("%w: import lease failed: %v", ErrRemoteOperation, err)
	}

	updater := lease.StartUpdater(ctx, info)
	defer updater.Done()

	for _, item := range info.Items {
		if err := s.uploadDiskItem(ctx, lease, payload, item); err != nil {
			_ = lease.Abort(ctx, nil)
			return "", err
		}
	}

	if err := lease.Complete(ctx); err != nil {
		return "", fmt.Errorf("%w: failed to complete import: %v", ErrRemoteOperation, err)
	}

	s.logger.WithFields(logrus.Fields{
		"vm_name":   deployedName,
		"datastore": ds.Name(),
	}).Info("Deployed virtual machine from template")
	return fmt.Sprintf("VM '%s' deployed successfully", deployedName), nil
}

// importedEntityName resolves the inventory name an import will use:
// the requested name when one was given, otherwise the name the
// import spec carried over from the descriptor.
func importedEntityName(requested string, spec types.BaseImportSpec) string {
	if requested != "" {
		return requested
	}
	if vmSpec, ok := spec.(*types.VirtualMachineImportSpec); ok {
		return vmSpec.ConfigSpec.Name
	}
	return ""
}

func (s *DeployService) uploadDiskItem(ctx context.Context, lease *nfc.Lease, payload *ovfPayload, item nfc.FileItem) error {
	reader, size, err := payload.openDisk(item.Path)
	if err != nil {
		return fmt.Errorf("failed to open disk image %s: %w", item.Path, err)
	}
	defer func() { _ = reader.Close() }()

	s.logger.WithFields(logrus.Fields{
		"disk": item.Path,
		"size": size,
	}).Info("Uploading disk image")

	opts := soap.Upload{ContentLength: size}
	if err := lease.Upload(ctx, item, reader, opts); err != nil {
		return fmt.Errorf("%w: failed to upload disk %s: %v", ErrRemoteOperation, item.Path, err)
	}
	return nil
}
