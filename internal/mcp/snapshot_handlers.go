package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) handleCreateSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		VMName       string `json:"vm_name"`
		SnapshotName string `json:"snapshot_name"`
		Description  string `json:"description"`
		Memory       bool   `json:"memory"`
		Quiesce      bool   `json:"quiesce"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	outcome, err := s.services.Snapshots.CreateSnapshot(ctx, args.VMName, args.SnapshotName, args.Description, args.Memory, args.Quiesce)
	if err != nil {
		return errorResult(err), nil
	}
	return taskResult(outcome, fmt.Sprintf("Snapshot '%s' created for VM '%s'", args.SnapshotName, args.VMName)), nil
}

func (s *Server) handleRemoveSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		VMName         string `json:"vm_name"`
		SnapshotName   string `json:"snapshot_name"`
		RemoveChildren *bool  `json:"remove_children"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	removeChildren := true
	if args.RemoveChildren != nil {
		removeChildren = *args.RemoveChildren
	}

	outcome, err := s.services.Snapshots.RemoveSnapshot(ctx, args.VMName, args.SnapshotName, removeChildren)
	if err != nil {
		return errorResult(err), nil
	}
	return taskResult(outcome, fmt.Sprintf("Snapshot '%s' removed from VM '%s'", args.SnapshotName, args.VMName)), nil
}

func (s *Server) handleRevertSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		VMName       string `json:"vm_name"`
		SnapshotName string `json:"snapshot_name"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	outcome, err := s.services.Snapshots.RevertSnapshot(ctx, args.VMName, args.SnapshotName)
	if err != nil {
		return errorResult(err), nil
	}
	return taskResult(outcome, fmt.Sprintf("VM '%s' reverted to snapshot '%s'", args.VMName, args.SnapshotName)), nil
}

func (s *Server) handleListSnapshots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		VMName string `json:"vm_name"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	snapshots, err := s.services.Snapshots.ListSnapshots(ctx, args.VMName)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(map[string]interface{}{"snapshots": snapshots}), nil
}

func (s *Server) handleRemoveAllSnapshots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		VMName string `json:"vm_name"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	outcome, hadSnapshots, err := s.services.Snapshots.RemoveAllSnapshots(ctx, args.VMName)
	if err != nil {
		return errorResult(err), nil
	}
	if !hadSnapshots {
		return mcp.NewToolResultText(fmt.Sprintf("VM '%s' has no snapshots", args.VMName)), nil
	}
	return taskResult(outcome, fmt.Sprintf("All snapshots removed from VM '%s'", args.VMName)), nil
}
