package vmware

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/guest"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
)

const (
	// guestProcessPollInterval is how often the process table is
	// re-read while waiting for a started program to finish.
	guestProcessPollInterval = 1 * time.Second

	// guestProcessPollAttempts bounds the wait; programs running
	// longer are reported as still running with their PID.
	guestProcessPollAttempts = 30
)

// GuestService runs programs and transfers files inside guest
// operating systems through VMware Tools.
type GuestService struct {
	client *Client
	scope  *ResourceScope
	logger *logrus.Logger
}

// GuestCredentials authenticate operations against the guest OS,
// not against vCenter.
type GuestCredentials struct {
	Username string
	Password string
}

// ProgramResult reports the outcome of a program started in a guest
type ProgramResult struct {
	PID       int64  `json:"pid"`
	Completed bool   `json:"completed"`
	ExitCode  *int32 `json:"exit_code,omitempty"`
	Success   *bool  `json:"success,omitempty"`
}

// NewGuestService creates a new guest operations service instance
func NewGuestService(client *Client, scope *ResourceScope, logger *logrus.Logger) *GuestService {
	return &GuestService{
		client: client,
		scope:  scope,
		logger: logger,
	}
}

// guestContext resolves the VM, checks VMware Tools is running and
// returns the operations manager for the guest.
func (s *GuestService) guestContext(ctx context.Context, vmName string) (*object.VirtualMachine, *guest.OperationsManager, error) {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return nil, nil, err
	}

	vm, err := findVM(ctx, c, s.scope, vmName)
	if err != nil {
		return nil, nil, err
	}

	var props mo.VirtualMachine
	pc := property.DefaultCollector(c)
	if err := pc.RetrieveOne(ctx, vm.Reference(), []string{"guest.toolsRunningStatus"}, &props); err != nil {
		return nil, nil, fmt.Errorf("failed to read VMware Tools status: %w", err)
	}
	if props.Guest == nil || props.Guest.ToolsRunningStatus != string(types.VirtualMachineToolsRunningStatusGuestToolsRunning) {
		return nil, nil, fmt.Errorf("%w: VMware Tools is not running in VM '%s'", ErrRemoteOperation, vmName)
	}

	return vm, guest.NewOperationsManager(c, vm.Reference()), nil
}

// ExecuteProgram starts a program inside a VM's guest OS and waits a
// bounded time for it to finish. When the program outlives the wait it
// is reported as still running; the caller keeps the PID.
func (s *GuestService) ExecuteProgram(ctx context.Context, vmName string, creds GuestCredentials, programPath, arguments string) (*ProgramResult, error) {
	_, opsMgr, err := s.guestContext(ctx, vmName)
	if err != nil {
		return nil, err
	}

	auth := &types.NamePasswordAuthentication{
		Username: creds.Username,
		Password: creds.Password,
	}

	processMgr, err := opsMgr.ProcessManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to access guest process manager: %w", err)
	}

	spec := &types.GuestProgramSpec{
		ProgramPath: programPath,
		Arguments:   arguments,
	}

	pid, err := processMgr.StartProgram(ctx, auth, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to start program in guest: %v", ErrRemoteOperation, err)
	}

	s.logger.WithFields(logrus.Fields{
		"vm_name": vmName,
		"program": programPath,
		"pid":     pid,
	}).Info("Started program in guest")

	return waitForProcess(ctx, processMgr, auth, pid, guestProcessPollInterval, guestProcessPollAttempts)
}

// processLister reads entries from a guest's process table
type processLister interface {
	ListProcesses(ctx context.Context, auth types.BaseGuestAuthentication, pids []int64) ([]types.GuestProcessInfo, error)
}

// waitForProcess polls the guest process table until the program
// exits or the attempts run out. A program that outlives the wait is
// reported as still running with Completed false.
func waitForProcess(ctx context.Context, lister processLister, auth types.BaseGuestAuthentication, pid int64, interval time.Duration, attempts int) (*ProgramResult, error) {
	result := &ProgramResult{PID: pid}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		processes, err := lister.ListProcesses(ctx, auth, []int64{pid})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to list guest processes: %v", ErrRemoteOperation, err)
		}
		if len(processes) == 0 {
			continue
		}

		proc := processes[0]
		if proc.EndTime == nil {
			continue
		}

		exitCode := proc.ExitCode
		success := exitCode == 0
		result.Completed = true
		result.ExitCode = &exitCode
		result.Success = &success
		return result, nil
	}

	return result, nil
}

// UploadFile writes content to a path inside a VM's guest OS,
// overwriting any existing file.
func (s *GuestService) UploadFile(ctx context.Context, vmName string, creds GuestCredentials, guestPath string, content []byte) error {
	_, opsMgr, err := s.guestContext(ctx, vmName)
	if err != nil {
		return err
	}

	auth := &types.NamePasswordAuthentication{
		Username: creds.Username,
		Password: creds.Password,
	}

	fileMgr, err := opsMgr.FileManager(ctx)
	if err != nil {
		return fmt.Errorf("failed to access guest file manager: %w", err)
	}

	attr := &types.GuestFileAttributes{}
	url, err := fileMgr.InitiateFileTransferToGuest(ctx, auth, guestPath, attr, int64(len(content)), true)
	if err != nil {
		return fmt.Errorf("%w: failed to initiate file transfer: %v", ErrRemoteOperation, err)
	}

	// The returned URL may carry a wildcard host; TransferURL fills in
	// the real endpoint.
	u, err := fileMgr.TransferURL(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to resolve transfer URL: %w", err)
	}

	c, err := s.client.Vim25(ctx)
	if err != nil {
		return err
	}

	params := soap.DefaultUpload
	params.ContentLength = int64(len(content))
	if err := c.Client.Upload(ctx, bytes.NewReader(content), u, &params); err != nil {
		return fmt.Errorf("%w: failed to upload file to guest: %v", ErrRemoteOperation, err)
	}

	s.logger.WithFields(logrus.Fields{
		"vm_name": vmName,
		"path":    guestPath,
		"size":    len(content),
	}).Info("Uploaded file to guest")
	return nil
}
