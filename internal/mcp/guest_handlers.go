package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/virtops/esxi-mcp-server/internal/vmware"
)

func (s *Server) handleExecuteProgramInVM(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		VMName           string `json:"vm_name"`
		Username         string `json:"username"`
		Password         string `json:"password"`
		ProgramPath      string `json:"program_path"`
		ProgramArguments string `json:"program_arguments"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	creds := vmware.GuestCredentials{Username: args.Username, Password: args.Password}
	result, err := s.services.Guest.ExecuteProgram(ctx, args.VMName, creds, args.ProgramPath, args.ProgramArguments)
	if err != nil {
		return errorResult(err), nil
	}

	payload := map[string]interface{}{"pid": result.PID}
	if result.Completed {
		payload["status"] = "completed"
		payload["exit_code"] = *result.ExitCode
		payload["success"] = *result.Success
	} else {
		payload["status"] = "running"
		payload["message"] = "Program is still running in the guest"
	}
	return mcp.NewToolResultStructuredOnly(payload), nil
}

func (s *Server) handleUploadFileToVM(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		VMName         string `json:"vm_name"`
		Username       string `json:"username"`
		Password       string `json:"password"`
		LocalFilePath  string `json:"local_file_path"`
		RemoteFilePath string `json:"remote_file_path"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	content, err := os.ReadFile(args.LocalFilePath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read local file: %v", err)), nil
	}

	creds := vmware.GuestCredentials{Username: args.Username, Password: args.Password}
	if err := s.services.Guest.UploadFile(ctx, args.VMName, creds, args.RemoteFilePath, content); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("File uploaded to '%s' in VM '%s'", args.RemoteFilePath, args.VMName)), nil
}
