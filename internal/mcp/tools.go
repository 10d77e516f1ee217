package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// stringProp builds a string property schema entry
func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// intProp builds an integer property schema entry
func intProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

// boolProp builds a boolean property schema entry
func boolProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": description,
	}
}

// addTool registers a tool with its handler wrapped so that required
// schema fields are enforced before the handler runs. Handlers can
// then rely on required arguments being present.
func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.tools = append(s.tools, tool)
	s.mcp.AddTool(tool, requireArguments(tool, handler))
}

// requireArguments rejects calls that omit any of the tool's required
// fields. The protocol layer does not enforce the schema itself, so
// malformed calls must be stopped here before they reach the platform.
func requireArguments(tool mcp.Tool, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	required := tool.InputSchema.Required
	if len(required) == 0 {
		return handler
	}
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		for _, field := range required {
			if value, ok := args[field]; !ok || value == nil {
				return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: missing required field '%s'", field)), nil
			}
		}
		return handler(ctx, request)
	}
}

// registerTools registers every tool with its input schema
func (s *Server) registerTools() {
	s.addTool(mcp.Tool{
		Name:        authenticateToolName,
		Description: "Authenticate with the configured API key to unlock the remaining tools",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"api_key": stringProp("API key matching the server configuration"),
			},
			Required: []string{"api_key"},
		},
	}, s.handleAuthenticate)

	// VM lifecycle

	s.addTool(mcp.Tool{
		Name:        "create_vm",
		Description: "Create a new virtual machine with a thin-provisioned 10 GB disk",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name":      stringProp("Name of the new virtual machine"),
				"cpu":       intProp("Number of virtual CPUs"),
				"memory":    intProp("Memory size in MB"),
				"datastore": stringProp("Optional datastore name; defaults to the resolved scope datastore"),
				"network":   stringProp("Optional network name; defaults to the resolved scope network"),
			},
			Required: []string{"name", "cpu", "memory"},
		},
	}, s.handleCreateVM)

	s.addTool(mcp.Tool{
		Name:        "create_vm_custom",
		Description: "Create a new virtual machine with custom disk size, guest OS and provisioning",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name":             stringProp("Name of the new virtual machine"),
				"cpu":              intProp("Number of virtual CPUs"),
				"memory":           intProp("Memory size in MB"),
				"disk_size_gb":     intProp("Disk size in GB (default 10)"),
				"guest_id":         stringProp("Guest OS identifier (default otherGuest)"),
				"datastore":        stringProp("Optional datastore name"),
				"network":          stringProp("Optional network name"),
				"thin_provisioned": boolProp("Thin-provision the disk (default true)"),
				"annotation":       stringProp("Optional VM annotation text"),
			},
			Required: []string{"name", "cpu", "memory"},
		},
	}, s.handleCreateVMCustom)

	s.addTool(mcp.Tool{
		Name:        "clone_vm",
		Description: "Clone a template or VM into a new virtual machine",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"template_name": stringProp("Name of the source template or VM"),
				"new_name":      stringProp("Name of the clone"),
			},
			Required: []string{"template_name", "new_name"},
		},
	}, s.handleCloneVM)

	s.addTool(mcp.Tool{
		Name:        "delete_vm",
		Description: "Delete a virtual machine from disk",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": stringProp("Name of the virtual machine to delete"),
			},
			Required: []string{"name"},
		},
	}, s.handleDeleteVM)

	s.addTool(mcp.Tool{
		Name:        "power_on_vm",
		Description: "Power on a virtual machine; a no-op when it is already powered on",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": stringProp("Name of the virtual machine"),
			},
			Required: []string{"name"},
		},
	}, s.handlePowerOnVM)

	s.addTool(mcp.Tool{
		Name:        "power_off_vm",
		Description: "Power off a virtual machine; a no-op when it is already powered off",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": stringProp("Name of the virtual machine"),
			},
			Required: []string{"name"},
		},
	}, s.handlePowerOffVM)

	// Inventory listings

	s.addTool(mcp.Tool{
		Name:        "list_vms",
		Description: "List all virtual machines in the inventory",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListVMs)

	s.addTool(mcp.Tool{
		Name:        "list_templates",
		Description: "List all VM templates in the inventory",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListTemplates)

	s.addTool(mcp.Tool{
		Name:        "list_hosts",
		Description: "List all ESXi hosts in the inventory",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListHosts)

	s.addTool(mcp.Tool{
		Name:        "list_datastores",
		Description: "List all datastores with capacity and accessibility details",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListDatastores)

	s.addTool(mcp.Tool{
		Name:        "list_datastore_clusters",
		Description: "List all datastore clusters and their member datastores",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListDatastoreClusters)

	s.addTool(mcp.Tool{
		Name:        "list_networks",
		Description: "List all networks, including distributed portgroups with VLAN ids",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListNetworks)

	s.addTool(mcp.Tool{
		Name:        "list_performance_counters",
		Description: "List every performance counter the platform advertises",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListPerformanceCounters)

	// Detail and telemetry reads

	s.addTool(mcp.Tool{
		Name:        "get_vm_details",
		Description: "Get detailed configuration of a virtual machine including disks and networks",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": stringProp("Name of the virtual machine"),
			},
			Required: []string{"name"},
		},
	}, s.handleGetVMDetails)

	s.addTool(mcp.Tool{
		Name:        "get_vm_performance",
		Description: "Get CPU, memory, storage and network usage of a virtual machine",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": stringProp("Name of the virtual machine"),
			},
			Required: []string{"name"},
		},
	}, s.handleGetVMPerformance)

	s.addTool(mcp.Tool{
		Name:        "get_vm_summary_stats",
		Description: "Get quick-stats summary for a virtual machine",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": stringProp("Name of the virtual machine"),
			},
			Required: []string{"name"},
		},
	}, s.handleGetVMSummaryStats)

	s.addTool(mcp.Tool{
		Name:        "get_host_details",
		Description: "Get hardware and hypervisor details of an ESXi host",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": stringProp("Name of the host"),
			},
			Required: []string{"name"},
		},
	}, s.handleGetHostDetails)

	s.addTool(mcp.Tool{
		Name:        "get_host_performance",
		Description: "Get host usage with CPU and memory utilization percentages",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": stringProp("Name of the host"),
			},
			Required: []string{"name"},
		},
	}, s.handleGetHostPerformance)

	s.addTool(mcp.Tool{
		Name:        "get_host_performance_metrics",
		Description: "Get raw quick-stats metrics of an ESXi host",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": stringProp("Name of the host"),
			},
			Required: []string{"name"},
		},
	}, s.handleGetHostMetrics)

	s.addTool(mcp.Tool{
		Name:        "get_host_hardware_health",
		Description: "Get hardware sensor health of an ESXi host",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": stringProp("Name of the host"),
			},
			Required: []string{"name"},
		},
	}, s.handleGetHostHardwareHealth)

	// Snapshots

	s.addTool(mcp.Tool{
		Name:        "create_snapshot",
		Description: "Create a snapshot of a virtual machine",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"vm_name":       stringProp("Name of the virtual machine"),
				"snapshot_name": stringProp("Name of the snapshot"),
				"description":   stringProp("Optional snapshot description"),
				"memory":        boolProp("Include the VM's memory state (default false)"),
				"quiesce":       boolProp("Quiesce the guest file system (default false)"),
			},
			Required: []string{"vm_name", "snapshot_name"},
		},
	}, s.handleCreateSnapshot)

	s.addTool(mcp.Tool{
		Name:        "remove_snapshot",
		Description: "Remove a snapshot by name; duplicate names resolve to the first match in pre-order",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"vm_name":         stringProp("Name of the virtual machine"),
				"snapshot_name":   stringProp("Name of the snapshot to remove"),
				"remove_children": boolProp("Also remove child snapshots (default true)"),
			},
			Required: []string{"vm_name", "snapshot_name"},
		},
	}, s.handleRemoveSnapshot)

	s.addTool(mcp.Tool{
		Name:        "revert_snapshot",
		Description: "Revert a virtual machine to a snapshot by name",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"vm_name":       stringProp("Name of the virtual machine"),
				"snapshot_name": stringProp("Name of the snapshot to revert to"),
			},
			Required: []string{"vm_name", "snapshot_name"},
		},
	}, s.handleRevertSnapshot)

	s.addTool(mcp.Tool{
		Name:        "list_snapshots",
		Description: "List a virtual machine's snapshots with their depth in the snapshot tree",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"vm_name": stringProp("Name of the virtual machine"),
			},
			Required: []string{"vm_name"},
		},
	}, s.handleListSnapshots)

	s.addTool(mcp.Tool{
		Name:        "remove_all_snapshots",
		Description: "Remove every snapshot of a virtual machine",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"vm_name": stringProp("Name of the virtual machine"),
			},
			Required: []string{"vm_name"},
		},
	}, s.handleRemoveAllSnapshots)

	// Guest operations

	s.addTool(mcp.Tool{
		Name:        "execute_program_in_vm",
		Description: "Run a program inside a VM's guest OS via VMware Tools and wait briefly for completion",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"vm_name":           stringProp("Name of the virtual machine"),
				"username":          stringProp("Guest OS username"),
				"password":          stringProp("Guest OS password"),
				"program_path":      stringProp("Absolute path of the program inside the guest"),
				"program_arguments": stringProp("Optional program arguments"),
			},
			Required: []string{"vm_name", "username", "password", "program_path"},
		},
	}, s.handleExecuteProgramInVM)

	s.addTool(mcp.Tool{
		Name:        "upload_file_to_vm",
		Description: "Upload a local file into a VM's guest OS via VMware Tools",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"vm_name":          stringProp("Name of the virtual machine"),
				"username":         stringProp("Guest OS username"),
				"password":         stringProp("Guest OS password"),
				"local_file_path":  stringProp("Path of the local file to upload"),
				"remote_file_path": stringProp("Destination path inside the guest"),
			},
			Required: []string{"vm_name", "username", "password", "local_file_path", "remote_file_path"},
		},
	}, s.handleUploadFileToVM)

	// Datastore uploads and template deployment

	s.addTool(mcp.Tool{
		Name:        "upload_file_to_datastore",
		Description: "Upload a local file to a path on a datastore",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"datastore_name":   stringProp("Target datastore"),
				"local_file_path":  stringProp("Path of the local file to upload"),
				"remote_file_path": stringProp("Destination path on the datastore"),
			},
			Required: []string{"datastore_name", "local_file_path", "remote_file_path"},
		},
	}, s.handleUploadFileToDatastore)

	s.addTool(mcp.Tool{
		Name:        "deploy_ovf",
		Description: "Deploy a virtual machine from an OVF descriptor and its disk image",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"ovf_path":           stringProp("Local path of the OVF descriptor"),
				"vmdk_path":          stringProp("Local path of the VMDK disk image"),
				"vm_name":            stringProp("Optional name for the deployed VM"),
				"datastore_name":     stringProp("Optional target datastore"),
				"resource_pool_name": stringProp("Optional target resource pool"),
			},
			Required: []string{"ovf_path", "vmdk_path"},
		},
	}, s.handleDeployOVF)

	s.addTool(mcp.Tool{
		Name:        "deploy_ova",
		Description: "Deploy a virtual machine from an OVA archive",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"ova_path":           stringProp("Local path of the OVA archive"),
				"vm_name":            stringProp("Optional name for the deployed VM"),
				"datastore_name":     stringProp("Optional target datastore"),
				"resource_pool_name": stringProp("Optional target resource pool"),
			},
			Required: []string{"ova_path"},
		},
	}, s.handleDeployOVA)

	// Property watches

	s.addTool(mcp.Tool{
		Name:        "wait_for_updates",
		Description: "Watch inventory objects of a type for property changes",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"object_type": stringProp("Managed object type to watch, e.g. VirtualMachine or HostSystem"),
				"properties": map[string]interface{}{
					"type":        "array",
					"description": "Property paths to watch, e.g. runtime.powerState",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"max_wait_seconds": intProp("Seconds each wait iteration blocks (default 30)"),
				"max_iterations":   intProp("Number of wait iterations (default 1)"),
			},
			Required: []string{"object_type", "properties"},
		},
	}, s.handleWaitForUpdates)
}
