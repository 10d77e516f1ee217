package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtops/esxi-mcp-server/internal/config"
)

func namedStringTool(name string, required ...string) mcp.Tool {
	return mcp.Tool{
		Name: name,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": stringProp("test field"),
			},
			Required: required,
		},
	}
}

func TestRequireArguments(t *testing.T) {
	t.Parallel()

	t.Run("missing required field never reaches the handler", func(t *testing.T) {
		t.Parallel()

		invoked := false
		handler := requireArguments(namedStringTool("delete_vm", "name"),
			func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				invoked = true
				return mcp.NewToolResultText("ok"), nil
			})

		result, err := handler(context.Background(), callRequest("delete_vm", map[string]interface{}{}))
		require.NoError(t, err)
		assert.True(t, result.IsError, "calls without required arguments must fail")
		assert.False(t, invoked, "the handler must not run on malformed arguments")
	})

	t.Run("null value counts as missing", func(t *testing.T) {
		t.Parallel()

		handler := requireArguments(namedStringTool("delete_vm", "name"),
			func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			})

		result, err := handler(context.Background(), callRequest("delete_vm", map[string]interface{}{"name": nil}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("present required fields pass through", func(t *testing.T) {
		t.Parallel()

		handler := requireArguments(namedStringTool("delete_vm", "name"),
			func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			})

		result, err := handler(context.Background(), callRequest("delete_vm", map[string]interface{}{"name": "web-01"}))
		require.NoError(t, err)
		assert.False(t, result.IsError)
	})

	t.Run("tools without required fields are untouched", func(t *testing.T) {
		t.Parallel()

		handler := requireArguments(namedStringTool("list_vms"),
			func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			})

		result, err := handler(context.Background(), callRequest("list_vms", nil))
		require.NoError(t, err)
		assert.False(t, result.IsError)
	})
}

func TestRegisteredToolRequirements(t *testing.T) {
	cfg := config.DefaultConfig()
	server := NewServer(cfg, Services{}, testLogger())

	requirements := make(map[string][]string, len(server.tools))
	for _, tool := range server.tools {
		requirements[tool.Name] = tool.InputSchema.Required
	}

	assert.Contains(t, requirements["authenticate"], "api_key")
	assert.Contains(t, requirements["delete_vm"], "name")
	assert.Contains(t, requirements["create_vm"], "name")
	assert.Contains(t, requirements["upload_file_to_datastore"], "datastore_name")
	assert.Contains(t, requirements["upload_file_to_datastore"], "local_file_path")
	assert.Contains(t, requirements["deploy_ovf"], "vmdk_path")
}
