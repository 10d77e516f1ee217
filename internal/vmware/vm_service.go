package vmware

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"
)

// VMService provides virtual machine lifecycle operations
type VMService struct {
	client   *Client
	scope    *ResourceScope
	executor *Executor
	logger   *logrus.Logger
}

// VMDiskDetails describes one virtual disk of a VM
type VMDiskDetails struct {
	Label      string  `json:"label"`
	CapacityGB float64 `json:"capacity_gb"`
	DiskMode   string  `json:"disk_mode,omitempty"`
}

// VMNetworkDetails describes one network adapter of a VM
type VMNetworkDetails struct {
	Label      string `json:"label"`
	MacAddress string `json:"mac_address"`
	Connected  bool   `json:"connected"`
	Network    string `json:"network,omitempty"`
}

// VMDetails is the detailed record returned for a single VM
type VMDetails struct {
	Name         string             `json:"name"`
	PowerState   string             `json:"power_state"`
	GuestOS      string             `json:"guest_os"`
	CPUCount     int32              `json:"cpu_count"`
	MemoryMB     int32              `json:"memory_mb"`
	UUID         string             `json:"uuid"`
	InstanceUUID string             `json:"instance_uuid"`
	IPAddress    string             `json:"ip_address,omitempty"`
	ToolsStatus  string             `json:"tools_status"`
	ToolsVersion string             `json:"tools_version,omitempty"`
	Hostname     string             `json:"hostname,omitempty"`
	Template     bool               `json:"template"`
	Annotation   string             `json:"annotation,omitempty"`
	Disks        []VMDiskDetails    `json:"disks"`
	Networks     []VMNetworkDetails `json:"networks"`
}

// CreateVMSpec describes a VM to create from scratch
type CreateVMSpec struct {
	Name            string
	CPU             int32
	MemoryMB        int64
	DiskSizeGB      int64
	GuestID         string
	Datastore       string
	Network         string
	ThinProvisioned bool
	Annotation      string
}

// NewVMService creates a new VM service instance
func NewVMService(client *Client, scope *ResourceScope, executor *Executor, logger *logrus.Logger) *VMService {
	return &VMService{
		client:   client,
		scope:    scope,
		executor: executor,
		logger:   logger,
	}
}

// findVM locates a VM by name within the resource scope's datacenter.
func findVM(ctx context.Context, c *vim25.Client, scope *ResourceScope, name string) (*object.VirtualMachine, error) {
	vm, err := scope.finder(c).VirtualMachine(ctx, name)
	if err != nil {
		return nil, NotFoundError("virtual machine", name)
	}
	return vm, nil
}

// listVMProperties retrieves the given properties for every VM in the
// inventory through a container view.
func listVMProperties(ctx context.Context, c *vim25.Client, props []string) ([]mo.VirtualMachine, error) {
	m := view.NewManager(c)
	v, err := m.CreateContainerView(ctx, c.ServiceContent.RootFolder, []string{"VirtualMachine"}, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create VM container view: %w", err)
	}
	defer func() { _ = v.Destroy(ctx) }()

	var vms []mo.VirtualMachine
	if err := v.Retrieve(ctx, []string{"VirtualMachine"}, props, &vms); err != nil {
		return nil, fmt.Errorf("failed to retrieve VM properties: %w", err)
	}
	return vms, nil
}

// ListVMs returns the names of all virtual machines
func (s *VMService) ListVMs(ctx context.Context) ([]string, error) {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return nil, err
	}

	vms, err := listVMProperties(ctx, c, []string{"name"})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(vms))
	for _, vm := range vms {
		names = append(names, vm.Name)
	}
	return names, nil
}

// ListTemplates returns the names of all VM templates
func (s *VMService) ListTemplates(ctx context.Context) ([]string, error) {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return nil, err
	}

	vms, err := listVMProperties(ctx, c, []string{"name", "config.template"})
	if err != nil {
		return nil, err
	}

	templates := []string{}
	for _, vm := range vms {
		if vm.Config != nil && vm.Config.Template {
			templates = append(templates, vm.Name)
		}
	}
	return templates, nil
}

// GetVMDetails returns detailed information about a VM
func (s *VMService) GetVMDetails(ctx context.Context, name string) (*VMDetails, error) {
	s.logger.WithField("vm_name", name).Debug("Getting VM details")

	c, err := s.client.Vim25(ctx)
	if err != nil {
		return nil, err
	}

	vm, err := findVM(ctx, c, s.scope, name)
	if err != nil {
		return nil, err
	}

	var props mo.VirtualMachine
	pc := property.DefaultCollector(c)
	err = pc.RetrieveOne(ctx, vm.Reference(), []string{
		"name",
		"config.uuid",
		"config.instanceUuid",
		"config.guestFullName",
		"config.annotation",
		"config.template",
		"config.hardware.numCPU",
		"config.hardware.memoryMB",
		"config.hardware.device",
		"runtime.powerState",
		"guest.ipAddress",
		"guest.toolsStatus",
		"guest.toolsVersion",
		"guest.hostName",
	}, &props)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve VM properties: %w", err)
	}

	details := &VMDetails{
		Name:       props.Name,
		PowerState: string(props.Runtime.PowerState),
		GuestOS:    "Unknown",
		Disks:      []VMDiskDetails{},
		Networks:   []VMNetworkDetails{},
	}

	if props.Config != nil {
		details.GuestOS = props.Config.GuestFullName
		details.CPUCount = props.Config.Hardware.NumCPU
		details.MemoryMB = props.Config.Hardware.MemoryMB
		details.UUID = props.Config.Uuid
		details.InstanceUUID = props.Config.InstanceUuid
		details.Template = props.Config.Template
		details.Annotation = props.Config.Annotation

		for _, device := range props.Config.Hardware.Device {
			switch d := device.(type) {
			case *types.VirtualDisk:
				disk := VMDiskDetails{
					Label:      d.DeviceInfo.GetDescription().Label,
					CapacityGB: roundTwo(float64(d.CapacityInKB) / (1024 * 1024)),
				}
				if backing, ok := d.Backing.(*types.VirtualDiskFlatVer2BackingInfo); ok {
					disk.DiskMode = backing.DiskMode
				}
				details.Disks = append(details.Disks, disk)
			default:
				if nic, ok := device.(types.BaseVirtualEthernetCard); ok {
					card := nic.GetVirtualEthernetCard()
					net := VMNetworkDetails{
						Label:      card.DeviceInfo.GetDescription().Label,
						MacAddress: card.MacAddress,
						Connected:  card.Connectable != nil && card.Connectable.Connected,
					}
					if backing, ok := card.Backing.(*types.VirtualEthernetCardNetworkBackingInfo); ok {
						net.Network = backing.DeviceName
					}
					details.Networks = append(details.Networks, net)
				}
			}
		}
	}

	if props.Guest != nil {
		details.IPAddress = props.Guest.IpAddress
		details.ToolsStatus = string(props.Guest.ToolsStatus)
		details.ToolsVersion = props.Guest.ToolsVersion
		details.Hostname = props.Guest.HostName
	}

	return details, nil
}

// CreateVM creates a new virtual machine with a paravirtual SCSI
// controller, one flat disk and an optional network adapter.
func (s *VMService) CreateVM(ctx context.Context, spec CreateVMSpec) (TaskOutcome, error) {
	s.logger.WithFields(logrus.Fields{
		"vm_name":   spec.Name,
		"cpu":       spec.CPU,
		"memory_mb": spec.MemoryMB,
		"disk_gb":   spec.DiskSizeGB,
	}).Info("Creating virtual machine")

	c, err := s.client.Vim25(ctx)
	if err != nil {
		return TaskOutcome{}, err
	}

	datastore, err := s.scope.DatastoreOrDefault(ctx, c, spec.Datastore)
	if err != nil {
		return TaskOutcome{}, err
	}
	network, err := s.scope.NetworkOrDefault(ctx, c, spec.Network)
	if err != nil {
		return TaskOutcome{}, err
	}

	configSpec := types.VirtualMachineConfigSpec{
		Name:       spec.Name,
		NumCPUs:    spec.CPU,
		MemoryMB:   spec.MemoryMB,
		GuestId:    spec.GuestID,
		Annotation: spec.Annotation,
		Files: &types.VirtualMachineFileInfo{
			VmPathName: fmt.Sprintf("[%s]", datastore.Name()),
		},
	}

	deviceSpecs, err := buildVMDevices(ctx, spec, datastore, network)
	if err != nil {
		return TaskOutcome{}, err
	}
	configSpec.DeviceChange = deviceSpecs

	folders, err := s.scope.Datacenter.Folders(ctx)
	if err != nil {
		return TaskOutcome{}, fmt.Errorf("failed to resolve datacenter folders: %w", err)
	}

	return s.executor.Run(ctx, func(ctx context.Context) (types.ManagedObjectReference, error) {
		task, err := folders.VmFolder.CreateVM(ctx, configSpec, s.scope.ResourcePool, nil)
		if err != nil {
			return types.ManagedObjectReference{}, fmt.Errorf("failed to create VM task: %w", err)
		}
		return task.Reference(), nil
	})
}

// buildVMDevices assembles the device change list for a new VM: a
// pvscsi controller, one disk attached to it, and a vmxnet3 adapter
// when a network is in scope.
func buildVMDevices(ctx context.Context, spec CreateVMSpec, datastore *object.Datastore, network object.NetworkReference) ([]types.BaseVirtualDeviceConfigSpec, error) {
	// Temporary negative key so the disk can reference the controller
	// before the platform assigns real keys.
	const controllerKey = -101

	var deviceSpecs []types.BaseVirtualDeviceConfigSpec

	controller := &types.ParaVirtualSCSIController{
		VirtualSCSIController: types.VirtualSCSIController{
			SharedBus: types.VirtualSCSISharingNoSharing,
			VirtualController: types.VirtualController{
				BusNumber: 0,
				VirtualDevice: types.VirtualDevice{
					Key: controllerKey,
				},
			},
		},
	}
	deviceSpecs = append(deviceSpecs, &types.VirtualDeviceConfigSpec{
		Operation: types.VirtualDeviceConfigSpecOperationAdd,
		Device:    controller,
	})

	unitNumber := int32(0)
	dsRef := datastore.Reference()
	disk := &types.VirtualDisk{
		CapacityInKB: spec.DiskSizeGB * 1024 * 1024,
		VirtualDevice: types.VirtualDevice{
			Key:           -102,
			ControllerKey: controllerKey,
			UnitNumber:    &unitNumber,
			Backing: &types.VirtualDiskFlatVer2BackingInfo{
				DiskMode:        string(types.VirtualDiskModePersistent),
				ThinProvisioned: types.NewBool(spec.ThinProvisioned),
				VirtualDeviceFileBackingInfo: types.VirtualDeviceFileBackingInfo{
					Datastore: &dsRef,
				},
			},
		},
	}
	deviceSpecs = append(deviceSpecs, &types.VirtualDeviceConfigSpec{
		Operation:     types.VirtualDeviceConfigSpecOperationAdd,
		FileOperation: types.VirtualDeviceConfigSpecFileOperationCreate,
		Device:        disk,
	})

	if network != nil {
		backing, err := network.EthernetCardBackingInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to build network backing: %w", err)
		}
		nic := &types.VirtualVmxnet3{
			VirtualVmxnet: types.VirtualVmxnet{
				VirtualEthernetCard: types.VirtualEthernetCard{
					VirtualDevice: types.VirtualDevice{
						Key:     -103,
						Backing: backing,
						Connectable: &types.VirtualDeviceConnectInfo{
							StartConnected:    true,
							AllowGuestControl: true,
						},
					},
				},
			},
		}
		deviceSpecs = append(deviceSpecs, &types.VirtualDeviceConfigSpec{
			Operation: types.VirtualDeviceConfigSpecOperationAdd,
			Device:    nic,
		})
	}

	return deviceSpecs, nil
}

// CloneVM clones a new VM from an existing template or VM. The clone
// lands in the template's folder and resource pool when known, on the
// scope's default datastore, powered off.
func (s *VMService) CloneVM(ctx context.Context, templateName, newName string) (TaskOutcome, error) {
	s.logger.WithFields(logrus.Fields{
		"template_name": templateName,
		"new_name":      newName,
	}).Info("Cloning virtual machine")

	c, err := s.client.Vim25(ctx)
	if err != nil {
		return TaskOutcome{}, err
	}

	template, err := findVM(ctx, c, s.scope, templateName)
	if err != nil {
		return TaskOutcome{}, err
	}

	var props mo.VirtualMachine
	pc := property.DefaultCollector(c)
	if err := pc.RetrieveOne(ctx, template.Reference(), []string{"parent", "resourcePool"}, &props); err != nil {
		return TaskOutcome{}, fmt.Errorf("failed to retrieve template properties: %w", err)
	}

	folder, err := s.cloneTargetFolder(ctx, c, props.Parent)
	if err != nil {
		return TaskOutcome{}, err
	}

	poolRef := s.scope.ResourcePool.Reference()
	if props.ResourcePool != nil {
		poolRef = *props.ResourcePool
	}
	dsRef := s.scope.Datastore.Reference()

	cloneSpec := types.VirtualMachineCloneSpec{
		Location: types.VirtualMachineRelocateSpec{
			Pool:      &poolRef,
			Datastore: &dsRef,
		},
		PowerOn:  false,
		Template: false,
	}

	return s.executor.Run(ctx, func(ctx context.Context) (types.ManagedObjectReference, error) {
		task, err := template.Clone(ctx, folder, newName, cloneSpec)
		if err != nil {
			return types.ManagedObjectReference{}, fmt.Errorf("failed to create clone task: %w", err)
		}
		return task.Reference(), nil
	})
}

// cloneTargetFolder prefers the template's own folder, falling back to
// the datacenter's vm folder.
func (s *VMService) cloneTargetFolder(ctx context.Context, c *vim25.Client, parent *types.ManagedObjectReference) (*object.Folder, error) {
	if parent != nil && parent.Type == "Folder" {
		return object.NewFolder(c, *parent), nil
	}
	folders, err := s.scope.Datacenter.Folders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve datacenter folders: %w", err)
	}
	return folders.VmFolder, nil
}

// DeleteVM destroys the specified virtual machine
func (s *VMService) DeleteVM(ctx context.Context, name string) (TaskOutcome, error) {
	s.logger.WithField("vm_name", name).Info("Deleting virtual machine")

	c, err := s.client.Vim25(ctx)
	if err != nil {
		return TaskOutcome{}, err
	}

	vm, err := findVM(ctx, c, s.scope, name)
	if err != nil {
		return TaskOutcome{}, err
	}

	return s.executor.Run(ctx, func(ctx context.Context) (types.ManagedObjectReference, error) {
		task, err := vm.Destroy(ctx)
		if err != nil {
			return types.ManagedObjectReference{}, fmt.Errorf("failed to create delete task: %w", err)
		}
		return task.Reference(), nil
	})
}

// PowerOnVM powers on the VM. An already powered-on VM short-circuits
// without submitting a task; the second return value reports that.
func (s *VMService) PowerOnVM(ctx context.Context, name string) (TaskOutcome, bool, error) {
	return s.powerVM(ctx, name, true)
}

// PowerOffVM powers off the VM. An already powered-off VM
// short-circuits without submitting a task.
func (s *VMService) PowerOffVM(ctx context.Context, name string) (TaskOutcome, bool, error) {
	return s.powerVM(ctx, name, false)
}

func (s *VMService) powerVM(ctx context.Context, name string, on bool) (TaskOutcome, bool, error) {
	s.logger.WithFields(logrus.Fields{
		"vm_name":  name,
		"power_on": on,
	}).Info("Changing VM power state")

	c, err := s.client.Vim25(ctx)
	if err != nil {
		return TaskOutcome{}, false, err
	}

	vm, err := findVM(ctx, c, s.scope, name)
	if err != nil {
		return TaskOutcome{}, false, err
	}

	state, err := vm.PowerState(ctx)
	if err != nil {
		return TaskOutcome{}, false, fmt.Errorf("failed to read VM power state: %w", err)
	}

	if on && state == types.VirtualMachinePowerStatePoweredOn {
		return TaskOutcome{}, true, nil
	}
	if !on && state == types.VirtualMachinePowerStatePoweredOff {
		return TaskOutcome{}, true, nil
	}

	outcome, err := s.executor.Run(ctx, func(ctx context.Context) (types.ManagedObjectReference, error) {
		var task *object.Task
		var err error
		if on {
			task, err = vm.PowerOn(ctx)
		} else {
			task, err = vm.PowerOff(ctx)
		}
		if err != nil {
			return types.ManagedObjectReference{}, fmt.Errorf("failed to create power task: %w", err)
		}
		return task.Reference(), nil
	})
	return outcome, false, err
}
