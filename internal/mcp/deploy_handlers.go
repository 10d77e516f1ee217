package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/virtops/esxi-mcp-server/internal/vmware"
)

func (s *Server) handleUploadFileToDatastore(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		DatastoreName  string `json:"datastore_name"`
		LocalFilePath  string `json:"local_file_path"`
		RemoteFilePath string `json:"remote_file_path"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	if err := s.services.Deploy.UploadFileToDatastore(ctx, args.LocalFilePath, args.DatastoreName, args.RemoteFilePath); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("File uploaded to datastore path '%s'", args.RemoteFilePath)), nil
}

func (s *Server) handleDeployOVF(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		OVFPath          string `json:"ovf_path"`
		VMDKPath         string `json:"vmdk_path"`
		VMName           string `json:"vm_name"`
		DatastoreName    string `json:"datastore_name"`
		ResourcePoolName string `json:"resource_pool_name"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	message, err := s.services.Deploy.DeployOVF(ctx, vmware.DeployRequest{
		SourcePath:   args.OVFPath,
		DiskPath:     args.VMDKPath,
		Name:         args.VMName,
		Datastore:    args.DatastoreName,
		ResourcePool: args.ResourcePoolName,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(message), nil
}

func (s *Server) handleDeployOVA(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		OVAPath          string `json:"ova_path"`
		VMName           string `json:"vm_name"`
		DatastoreName    string `json:"datastore_name"`
		ResourcePoolName string `json:"resource_pool_name"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	message, err := s.services.Deploy.DeployOVA(ctx, vmware.DeployRequest{
		SourcePath:   args.OVAPath,
		Name:         args.VMName,
		Datastore:    args.DatastoreName,
		ResourcePool: args.ResourcePoolName,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(message), nil
}

func (s *Server) handleWaitForUpdates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ObjectType     string   `json:"object_type"`
		Properties     []string `json:"properties"`
		MaxWaitSeconds int32    `json:"max_wait_seconds"`
		MaxIterations  int      `json:"max_iterations"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	if args.MaxWaitSeconds == 0 {
		args.MaxWaitSeconds = 30
	}
	if args.MaxIterations == 0 {
		args.MaxIterations = 1
	}

	batch, err := s.services.Updates.WaitForUpdates(ctx, args.ObjectType, args.Properties, args.MaxWaitSeconds, args.MaxIterations)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(batch), nil
}
