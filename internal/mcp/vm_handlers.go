package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/virtops/esxi-mcp-server/internal/vmware"
)

func (s *Server) handleCreateVM(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Name      string `json:"name"`
		CPU       int32  `json:"cpu"`
		Memory    int64  `json:"memory"`
		Datastore string `json:"datastore"`
		Network   string `json:"network"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	outcome, err := s.services.VMs.CreateVM(ctx, vmware.CreateVMSpec{
		Name:            args.Name,
		CPU:             args.CPU,
		MemoryMB:        args.Memory,
		DiskSizeGB:      10,
		GuestID:         "otherGuest",
		Datastore:       args.Datastore,
		Network:         args.Network,
		ThinProvisioned: true,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return taskResult(outcome, fmt.Sprintf("VM '%s' created successfully", args.Name)), nil
}

func (s *Server) handleCreateVMCustom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Name            string `json:"name"`
		CPU             int32  `json:"cpu"`
		Memory          int64  `json:"memory"`
		DiskSizeGB      int64  `json:"disk_size_gb"`
		GuestID         string `json:"guest_id"`
		Datastore       string `json:"datastore"`
		Network         string `json:"network"`
		ThinProvisioned *bool  `json:"thin_provisioned"`
		Annotation      string `json:"annotation"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	if args.DiskSizeGB == 0 {
		args.DiskSizeGB = 10
	}
	if args.GuestID == "" {
		args.GuestID = "otherGuest"
	}
	thin := true
	if args.ThinProvisioned != nil {
		thin = *args.ThinProvisioned
	}

	outcome, err := s.services.VMs.CreateVM(ctx, vmware.CreateVMSpec{
		Name:            args.Name,
		CPU:             args.CPU,
		MemoryMB:        args.Memory,
		DiskSizeGB:      args.DiskSizeGB,
		GuestID:         args.GuestID,
		Datastore:       args.Datastore,
		Network:         args.Network,
		ThinProvisioned: thin,
		Annotation:      args.Annotation,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return taskResult(outcome, fmt.Sprintf("VM '%s' created successfully", args.Name)), nil
}

func (s *Server) handleCloneVM(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		TemplateName string `json:"template_name"`
		NewName      string `json:"new_name"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	outcome, err := s.services.VMs.CloneVM(ctx, args.TemplateName, args.NewName)
	if err != nil {
		return errorResult(err), nil
	}
	return taskResult(outcome, fmt.Sprintf("VM '%s' cloned from '%s' successfully", args.NewName, args.TemplateName)), nil
}

func (s *Server) handleDeleteVM(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Name string `json:"name"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	outcome, err := s.services.VMs.DeleteVM(ctx, args.Name)
	if err != nil {
		return errorResult(err), nil
	}
	return taskResult(outcome, fmt.Sprintf("VM '%s' deleted successfully", args.Name)), nil
}

func (s *Server) handlePowerOnVM(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handlePower(ctx, request, true)
}

func (s *Server) handlePowerOffVM(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handlePower(ctx, request, false)
}

func (s *Server) handlePower(ctx context.Context, request mcp.CallToolRequest, on bool) (*mcp.CallToolResult, error) {
	var args struct {
		Name string `json:"name"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	state := "on"
	if !on {
		state = "off"
	}

	var outcome vmware.TaskOutcome
	var alreadyInState bool
	var err error
	if on {
		outcome, alreadyInState, err = s.services.VMs.PowerOnVM(ctx, args.Name)
	} else {
		outcome, alreadyInState, err = s.services.VMs.PowerOffVM(ctx, args.Name)
	}
	if err != nil {
		return errorResult(err), nil
	}
	if alreadyInState {
		return mcp.NewToolResultText(fmt.Sprintf("VM '%s' is already powered %s", args.Name, state)), nil
	}
	return taskResult(outcome, fmt.Sprintf("VM '%s' powered %s successfully", args.Name, state)), nil
}

func (s *Server) handleListVMs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.services.VMs.ListVMs(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(map[string]interface{}{"vms": names}), nil
}

func (s *Server) handleListTemplates(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.services.VMs.ListTemplates(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(map[string]interface{}{"templates": names}), nil
}

func (s *Server) handleGetVMDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Name string `json:"name"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	details, err := s.services.VMs.GetVMDetails(ctx, args.Name)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(details), nil
}
