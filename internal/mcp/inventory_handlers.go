package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) handleListHosts(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.services.Inventory.ListHosts(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(map[string]interface{}{"hosts": names}), nil
}

func (s *Server) handleListDatastores(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	datastores, err := s.services.Inventory.ListDatastores(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(map[string]interface{}{"datastores": datastores}), nil
}

func (s *Server) handleListDatastoreClusters(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clusters, err := s.services.Inventory.ListDatastoreClusters(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(map[string]interface{}{"datastore_clusters": clusters}), nil
}

func (s *Server) handleListNetworks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	networks, err := s.services.Inventory.ListNetworks(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(map[string]interface{}{"networks": networks}), nil
}

func (s *Server) handleListPerformanceCounters(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	counters, err := s.services.Inventory.ListPerformanceCounters(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(map[string]interface{}{"counters": counters}), nil
}

// hostNameArgs is the shared argument shape of the host detail tools
type hostNameArgs struct {
	Name string `json:"name"`
}

func (s *Server) handleGetHostDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args hostNameArgs
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	details, err := s.services.Inventory.GetHostDetails(ctx, args.Name)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(details), nil
}

func (s *Server) handleGetHostMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args hostNameArgs
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	metrics, err := s.services.Inventory.GetHostMetrics(ctx, args.Name)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(metrics), nil
}

func (s *Server) handleGetHostPerformance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args hostNameArgs
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	perf, err := s.services.Inventory.GetHostPerformance(ctx, args.Name)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(perf), nil
}

func (s *Server) handleGetHostHardwareHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args hostNameArgs
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	health, err := s.services.Inventory.GetHostHardwareHealth(ctx, args.Name)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(health), nil
}

func (s *Server) handleGetVMPerformance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Name string `json:"name"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	perf, err := s.services.Inventory.GetVMPerformance(ctx, args.Name)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(perf), nil
}

func (s *Server) handleGetVMSummaryStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Name string `json:"name"`
	}
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}

	stats, err := s.services.Inventory.GetVMSummaryStats(ctx, args.Name)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultStructuredOnly(stats), nil
}
