package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerResources registers the read-only resource templates
func (s *Server) registerResources() {
	statsTemplate := mcp.NewResourceTemplate(
		"vmstats://{vm_name}",
		"VM Performance Stats",
		mcp.WithTemplateDescription("CPU, memory, storage and network usage of a virtual machine"),
		mcp.WithTemplateMIMEType("application/json"),
	)

	s.mcp.AddResourceTemplate(statsTemplate, server.ResourceTemplateHandlerFunc(s.handleVMStatsResource))
}

// handleVMStatsResource serves vmstats://<vm_name> with the same
// payload as the get_vm_performance tool.
func (s *Server) handleVMStatsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	vmName := strings.TrimPrefix(request.Params.URI, "vmstats://")
	if vmName == "" || vmName == request.Params.URI {
		return nil, fmt.Errorf("invalid resource URI: %s", request.Params.URI)
	}

	perf, err := s.services.Inventory.GetVMPerformance(ctx, vmName)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(perf)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
