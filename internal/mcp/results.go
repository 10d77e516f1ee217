package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/virtops/esxi-mcp-server/internal/vmware"
)

// errorResult renders a service error as a tool error result. Remote
// and lookup failures become tool errors, never transport errors, so
// the client sees the detail.
func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// taskResult renders a task outcome: a confirmation on success, a
// "still running" notice on timeout and the platform's error detail on
// failure.
func taskResult(outcome vmware.TaskOutcome, confirmation string) *mcp.CallToolResult {
	switch outcome.Status {
	case vmware.TaskSucceeded:
		return mcp.NewToolResultText(confirmation)
	case vmware.TaskTimedOut:
		return mcp.NewToolResultText("Operation did not complete before the timeout; it is still running on the platform")
	default:
		if outcome.Err != nil {
			return mcp.NewToolResultError(outcome.Err.Error())
		}
		return mcp.NewToolResultError("operation failed")
	}
}

// bindError renders an argument binding failure
func bindError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err))
}
