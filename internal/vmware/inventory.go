package vmware

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/performance"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"
)

// InventoryService provides read-only queries over hosts, datastores,
// networks and performance counters.
type InventoryService struct {
	client *Client
	scope  *ResourceScope
	logger *logrus.Logger
}

// DatastoreDetails describes one datastore
type DatastoreDetails struct {
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	CapacityGB      float64 `json:"capacity_gb"`
	FreeSpaceGB     float64 `json:"free_space_gb"`
	Accessible      bool    `json:"accessible"`
	MaintenanceMode string  `json:"maintenance_mode"`
}

// DatastoreClusterDetails describes one datastore cluster (StoragePod)
type DatastoreClusterDetails struct {
	Name        string   `json:"name"`
	CapacityGB  float64  `json:"capacity_gb"`
	FreeSpaceGB float64  `json:"free_space_gb"`
	Datastores  []string `json:"datastores"`
}

// NetworkDetails describes one network or distributed portgroup
type NetworkDetails struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Accessible bool   `json:"accessible"`
	VlanID     *int32 `json:"vlan,omitempty"`
}

// HostDetails is the detailed record returned for a single host
type HostDetails struct {
	Name              string  `json:"name"`
	ConnectionState   string  `json:"connection_state"`
	PowerState        string  `json:"power_state"`
	StandbyMode       string  `json:"standby_mode,omitempty"`
	InMaintenanceMode bool    `json:"in_maintenance_mode"`
	Vendor            string  `json:"vendor,omitempty"`
	Model             string  `json:"model,omitempty"`
	UUID              string  `json:"uuid,omitempty"`
	CPUModel          string  `json:"cpu_model,omitempty"`
	CPUCores          int16   `json:"cpu_cores"`
	CPUThreads        int16   `json:"cpu_threads"`
	CPUMhz            int64   `json:"cpu_mhz"`
	MemoryGB          float64 `json:"memory_gb"`
	HypervisorVersion string  `json:"hypervisor_version,omitempty"`
	HypervisorBuild   string  `json:"hypervisor_build,omitempty"`
}

// HostMetrics is the compact quick-stats record for a host
type HostMetrics struct {
	CPUUsageMhz   int32 `json:"cpu_usage_mhz"`
	MemoryUsageMB int32 `json:"memory_usage_mb"`
	UptimeSeconds int32 `json:"uptime_seconds"`
}

// HostPerformance extends the quick stats with utilization percentages
type HostPerformance struct {
	CPUUsageMhz        int32   `json:"cpu_usage_mhz"`
	MemoryUsageMB      int32   `json:"memory_usage_mb"`
	UptimeSeconds      int32   `json:"uptime_seconds"`
	CPUTotalMhz        int64   `json:"cpu_total_mhz"`
	CPUUsagePercent    float64 `json:"cpu_usage_percent"`
	MemoryTotalMB      int64   `json:"memory_total_mb"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
}

// SensorHealth describes one numeric hardware sensor
type SensorHealth struct {
	Name           string `json:"name"`
	HealthState    string `json:"health_state"`
	CurrentReading int64  `json:"current_reading"`
	UnitModifier   int32  `json:"unit"`
	SensorType     string `json:"sensor_type"`
}

// HardwareHealth is the hardware health record for a host
type HardwareHealth struct {
	OverallStatus  string         `json:"overall_status"`
	HardwareStatus []SensorHealth `json:"hardware_status"`
}

// PerfCounterDetails describes one available performance counter
type PerfCounterDetails struct {
	Key         int32  `json:"key"`
	Group       string `json:"group"`
	Name        string `json:"name"`
	RollupType  string `json:"rollup_type"`
	StatsType   string `json:"stats_type"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

// VMPerformance is the per-VM usage record. The network fields are
// best-effort: nil when the counters are unavailable.
type VMPerformance struct {
	CPUUsageMhz         int32   `json:"cpu_usage"`
	MemoryUsageMB       int32   `json:"memory_usage"`
	StorageUsageGB      float64 `json:"storage_usage"`
	NetworkTransmitKBps *int64  `json:"network_transmit_KBps"`
	NetworkReceiveKBps  *int64  `json:"network_receive_KBps"`
}

// VMSummaryStats is the quick-stats summary record for a VM
type VMSummaryStats struct {
	Name                 string  `json:"name"`
	PowerState           string  `json:"power_state"`
	OverallCPUUsageMhz   int32   `json:"overall_cpu_usage_mhz"`
	OverallCPUDemandMhz  int32   `json:"overall_cpu_demand_mhz"`
	GuestMemoryUsageMB   int32   `json:"guest_memory_usage_mb"`
	HostMemoryUsageMB    int32   `json:"host_memory_usage_mb"`
	UptimeSeconds        int32   `json:"uptime_seconds"`
	CommittedStorageGB   float64 `json:"committed_storage_gb"`
	UncommittedStorageGB float64 `json:"uncommitted_storage_gb"`
}

// NewInventoryService creates a new inventory service instance
func NewInventoryService(client *Client, scope *ResourceScope, logger *logrus.Logger) *InventoryService {
	return &InventoryService{
		client: client,
		scope:  scope,
		logger: logger,
	}
}

// roundTwo rounds to two decimal places.
func roundTwo(v float64) float64 {
	return math.Round(v*100) / 100
}

// utilizationPercent computes usage/total*100 rounded to two decimals.
// A zero total reports zero utilization, never a division fault.
func utilizationPercent(usage, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return roundTwo(usage / total * 100)
}

const bytesPerGB = 1024 * 1024 * 1024

// retrieveAll retrieves properties for every object of the given type
// through a container view rooted at the inventory root.
func retrieveAll(ctx context.Context, c *vim25.Client, kind string, props []string, dst interface{}) error {
	m := view.NewManager(c)
	v, err := m.CreateContainerView(ctx, c.ServiceContent.RootFolder, []string{kind}, true)
	if err != nil {
		return fmt.Errorf("failed to create %s container view: %w", kind, err)
	}
	defer func() { _ = v.Destroy(ctx) }()

	if err := v.Retrieve(ctx, []string{kind}, props, dst); err != nil {
		return fmt.Errorf("failed to retrieve %s properties: %w", kind, err)
	}
	return nil
}

// ListHosts returns the names of all hosts
func (s *InventoryService) ListHosts(ctx context.Context) ([]string, error) {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return nil, err
	}

	var hosts []mo.HostSystem
	if err := retrieveAll(ctx, c, "HostSystem", []string{"name"}, &hosts); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(hosts))
	for _, h := range hosts {
		names = append(names, h.Name)
	}
	return names, nil
}

// ListDatastores returns all datastores with capacity details
func (s *InventoryService) ListDatastores(ctx context.Context) ([]DatastoreDetails, error) {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return nil, err
	}

	var datastores []mo.Datastore
	if err := retrieveAll(ctx, c, "Datastore", []string{"name", "summary"}, &datastores); err != nil {
		return nil, err
	}

	details := make([]DatastoreDetails, 0, len(datastores))
	for _, ds := range datastores {
		maintenance := ds.Summary.MaintenanceMode
		if maintenance == "" {
			maintenance = "normal"
		}
		details = append(details, DatastoreDetails{
			Name:            ds.Summary.Name,
			Type:            ds.Summary.Type,
			CapacityGB:      roundTwo(float64(ds.Summary.Capacity) / bytesPerGB),
			FreeSpaceGB:     roundTwo(float64(ds.Summary.FreeSpace) / bytesPerGB),
			Accessible:      ds.Summary.Accessible,
			MaintenanceMode: maintenance,
		})
	}
	return details, nil
}

// ListDatastoreClusters returns all datastore clusters (StoragePods)
// with their member datastores.
func (s *InventoryService) ListDatastoreClusters(ctx context.Context) ([]DatastoreClusterDetails, error) {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return nil, err
	}

	var pods []mo.StoragePod
	if err := retrieveAll(ctx, c, "StoragePod", []string{"name", "summary", "childEntity"}, &pods); err != nil {
		return nil, err
	}

	// Resolve member datastore names in one retrieval
	var childRefs []types.ManagedObjectReference
	for _, pod := range pods {
		for _, child := range pod.ChildEntity {
			if child.Type == "Datastore" {
				childRefs = append(childRefs, child)
			}
		}
	}
	names := map[types.ManagedObjectReference]string{}
	if len(childRefs) > 0 {
		var members []mo.Datastore
		pc := property.DefaultCollector(c)
		if err := pc.Retrieve(ctx, childRefs, []string{"name"}, &members); err != nil {
			return nil, fmt.Errorf("failed to retrieve datastore names: %w", err)
		}
		for _, m := range members {
			names[m.Reference()] = m.Name
		}
	}

	clusters := make([]DatastoreClusterDetails, 0, len(pods))
	for _, pod := range pods {
		cluster := DatastoreClusterDetails{
			Name:       pod.Name,
			Datastores: []string{},
		}
		if pod.Summary != nil {
			cluster.CapacityGB = roundTwo(float64(pod.Summary.Capacity) / bytesPerGB)
			cluster.FreeSpaceGB = roundTwo(float64(pod.Summary.FreeSpace) / bytesPerGB)
		}
		for _, child := range pod.ChildEntity {
			if name, ok := names[child]; ok {
				cluster.Datastores = append(cluster.Datastores, name)
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

// ListNetworks returns all networks, flagging distributed portgroups
// with their VLAN id when configured.
func (s *InventoryService) ListNetworks(ctx context.Context) ([]NetworkDetails, error) {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return nil, err
	}

	var networks []mo.Network
	if err := retrieveAll(ctx, c, "Network", []string{"name", "summary"}, &networks); err != nil {
		return nil, err
	}

	// Distributed portgroups are a Network subtype; fetch their VLAN
	// configuration separately.
	vlans := map[types.ManagedObjectReference]*int32{}
	var portgroups []mo.DistributedVirtualPortgroup
	if err := retrieveAll(ctx, c, "DistributedVirtualPortgroup", []string{"config"}, &portgroups); err == nil {
		for _, pg := range portgroups {
			ref := pg.Reference()
			vlans[ref] = portgroupVlanID(pg.Config.DefaultPortConfig)
		}
	}

	details := make([]NetworkDetails, 0, len(networks))
	for _, net := range networks {
		info := NetworkDetails{
			Name:       net.Name,
			Type:       "Network",
			Accessible: true,
		}
		if summary := net.Summary; summary != nil {
			info.Accessible = summary.GetNetworkSummary().Accessible
		}
		if vlan, ok := vlans[net.Reference()]; ok {
			info.Type = "DistributedVirtualPortgroup"
			info.VlanID = vlan
		}
		details = append(details, info)
	}
	return details, nil
}

// portgroupVlanID extracts the VLAN id from a portgroup's default port
// configuration, when one is set.
func portgroupVlanID(portConfig types.BaseDVPortSetting) *int32 {
	setting, ok := portConfig.(*types.VMwareDVSPortSetting)
	if !ok || setting == nil {
		return nil
	}
	vlan, ok := setting.Vlan.(*types.VmwareDistributedVirtualSwitchVlanIdSpec)
	if !ok || vlan == nil {
		return nil
	}
	id := vlan.VlanId
	return &id
}

// hostProperties finds a host by exact name and retrieves the given
// properties.
func (s *InventoryService) hostProperties(ctx context.Context, name string, props []string) (*mo.HostSystem, error) {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return nil, err
	}

	var hosts []mo.HostSystem
	if err := retrieveAll(ctx, c, "HostSystem", append([]string{"name"}, props...), &hosts); err != nil {
		return nil, err
	}

	for i := range hosts {
		if hosts[i].Name == name {
			return &hosts[i], nil
		}
	}
	return nil, NotFoundError("host", name)
}

// GetHostDetails returns detailed information about a host
func (s *InventoryService) GetHostDetails(ctx context.Context, name string) (*HostDetails, error) {
	host, err := s.hostProperties(ctx, name, []string{"runtime", "hardware", "config.product"})
	if err != nil {
		return nil, err
	}

	details := &HostDetails{
		Name:              host.Name,
		ConnectionState:   string(host.Runtime.ConnectionState),
		PowerState:        string(host.Runtime.PowerState),
		StandbyMode:       host.Runtime.StandbyMode,
		InMaintenanceMode: host.Runtime.InMaintenanceMode,
	}

	if hw := host.Hardware; hw != nil {
		details.Vendor = hw.SystemInfo.Vendor
		details.Model = hw.SystemInfo.Model
		details.UUID = hw.SystemInfo.Uuid
		details.CPUCores = hw.CpuInfo.NumCpuCores
		details.CPUThreads = hw.CpuInfo.NumCpuThreads
		details.CPUMhz = hw.CpuInfo.Hz / 1000000
		details.MemoryGB = roundTwo(float64(hw.MemorySize) / bytesPerGB)
		if len(hw.CpuPkg) > 0 {
			details.CPUModel = hw.CpuPkg[0].Description
		}
	}

	if host.Config != nil {
		details.HypervisorVersion = host.Config.Product.Version
		details.HypervisorBuild = host.Config.Product.Build
	}

	return details, nil
}

// GetHostMetrics returns the quick-stats metrics for a host
func (s *InventoryService) GetHostMetrics(ctx context.Context, name string) (*HostMetrics, error) {
	host, err := s.hostProperties(ctx, name, []string{"summary.quickStats"})
	if err != nil {
		return nil, err
	}

	qs := host.Summary.QuickStats
	return &HostMetrics{
		CPUUsageMhz:   qs.OverallCpuUsage,
		MemoryUsageMB: qs.OverallMemoryUsage,
		UptimeSeconds: qs.Uptime,
	}, nil
}

// GetHostPerformance returns host quick stats with utilization
// percentages computed against hardware capacity.
func (s *InventoryService) GetHostPerformance(ctx context.Context, name string) (*HostPerformance, error) {
	host, err := s.hostProperties(ctx, name, []string{"summary.quickStats", "hardware"})
	if err != nil {
		return nil, err
	}

	qs := host.Summary.QuickStats
	perf := &HostPerformance{
		CPUUsageMhz:   qs.OverallCpuUsage,
		MemoryUsageMB: qs.OverallMemoryUsage,
		UptimeSeconds: qs.Uptime,
	}

	if hw := host.Hardware; hw != nil {
		perf.CPUTotalMhz = int64(hw.CpuInfo.NumCpuCores) * (hw.CpuInfo.Hz / 1000000)
		perf.MemoryTotalMB = hw.MemorySize / (1024 * 1024)
	}
	perf.CPUUsagePercent = utilizationPercent(float64(perf.CPUUsageMhz), float64(perf.CPUTotalMhz))
	perf.MemoryUsagePercent = utilizationPercent(float64(perf.MemoryUsageMB), float64(perf.MemoryTotalMB))

	return perf, nil
}

// GetHostHardwareHealth returns the hardware sensor health of a host.
// Sensor data is optional; hosts without a health subsystem report an
// empty sensor list.
func (s *InventoryService) GetHostHardwareHealth(ctx context.Context, name string) (*HardwareHealth, error) {
	host, err := s.hostProperties(ctx, name, []string{"overallStatus", "runtime.healthSystemRuntime"})
	if err != nil {
		return nil, err
	}

	health := &HardwareHealth{
		OverallStatus:  string(host.OverallStatus),
		HardwareStatus: []SensorHealth{},
	}

	runtime := host.Runtime.HealthSystemRuntime
	if runtime == nil || runtime.SystemHealthInfo == nil {
		return health, nil
	}

	for _, sensor := range runtime.SystemHealthInfo.NumericSensorInfo {
		state := ""
		if sensor.HealthState != nil {
			state = sensor.HealthState.GetElementDescription().Key
		}
		health.HardwareStatus = append(health.HardwareStatus, SensorHealth{
			Name:           sensor.Name,
			HealthState:    state,
			CurrentReading: sensor.CurrentReading,
			UnitModifier:   sensor.UnitModifier,
			SensorType:     sensor.SensorType,
		})
	}
	return health, nil
}

// ListPerformanceCounters lists every performance counter the platform
// advertises.
func (s *InventoryService) ListPerformanceCounters(ctx context.Context) ([]PerfCounterDetails, error) {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return nil, err
	}

	m := performance.NewManager(c)
	counters, err := m.CounterInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve performance counters: %w", err)
	}

	details := make([]PerfCounterDetails, 0, len(counters))
	for _, counter := range counters {
		details = append(details, PerfCounterDetails{
			Key:         counter.Key,
			Group:       counter.GroupInfo.GetElementDescription().Key,
			Name:        counter.NameInfo.GetElementDescription().Key,
			RollupType:  string(counter.RollupType),
			StatsType:   string(counter.StatsType),
			Unit:        counter.UnitInfo.GetElementDescription().Key,
			Description: counter.NameInfo.GetElementDescription().Summary,
		})
	}
	return details, nil
}

// vmProperties finds a VM and retrieves the given properties.
func (s *InventoryService) vmProperties(ctx context.Context, name string, props []string) (*mo.VirtualMachine, *vim25.Client, error) {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return nil, nil, err
	}

	vm, err := findVM(ctx, c, s.scope, name)
	if err != nil {
		return nil, nil, err
	}

	var result mo.VirtualMachine
	pc := property.DefaultCollector(c)
	if err := pc.RetrieveOne(ctx, vm.Reference(), props, &result); err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve VM properties: %w", err)
	}
	return &result, c, nil
}

// GetVMPerformance returns CPU, memory, storage and network usage for a
// VM. Network counters are best-effort telemetry: when the counter
// query fails the fields come back nil and the call still succeeds.
func (s *InventoryService) GetVMPerformance(ctx context.Context, name string) (*VMPerformance, error) {
	props, c, err := s.vmProperties(ctx, name, []string{"summary.quickStats", "summary.storage"})
	if err != nil {
		return nil, err
	}

	perf := &VMPerformance{
		CPUUsageMhz:   props.Summary.QuickStats.OverallCpuUsage,
		MemoryUsageMB: props.Summary.QuickStats.GuestMemoryUsage,
	}
	if props.Summary.Storage != nil {
		perf.StorageUsageGB = roundTwo(float64(props.Summary.Storage.Committed) / bytesPerGB)
	}

	tx, rx, err := s.vmNetworkUsage(ctx, c, props.Self)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"vm_name": name,
			"error":   err,
		}).Warn("Failed to retrieve network performance data")
	} else {
		perf.NetworkTransmitKBps = &tx
		perf.NetworkReceiveKBps = &rx
	}

	return perf, nil
}

// vmNetworkUsage queries the latest network transmit/receive samples
// for a VM, summed across interfaces.
func (s *InventoryService) vmNetworkUsage(ctx context.Context, c *vim25.Client, ref types.ManagedObjectReference) (tx, rx int64, err error) {
	m := performance.NewManager(c)
	counters, err := m.CounterInfoByName(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read counter catalog: %w", err)
	}

	txCounter, ok := counters["net.transmitted.average"]
	if !ok {
		return 0, 0, fmt.Errorf("counter net.transmitted.average unavailable")
	}
	rxCounter, ok := counters["net.received.average"]
	if !ok {
		return 0, 0, fmt.Errorf("counter net.received.average unavailable")
	}

	spec := types.PerfQuerySpec{
		Entity:    ref,
		MaxSample: 1,
		MetricId: []types.PerfMetricId{
			{CounterId: txCounter.Key, Instance: "*"},
			{CounterId: rxCounter.Key, Instance: "*"},
		},
	}

	metrics, err := m.Query(ctx, []types.PerfQuerySpec{spec})
	if err != nil {
		return 0, 0, fmt.Errorf("counter query failed: %w", err)
	}

	for _, base := range metrics {
		entity, ok := base.(*types.PerfEntityMetric)
		if !ok {
			continue
		}
		for _, value := range entity.Value {
			series, ok := value.(*types.PerfMetricIntSeries)
			if !ok {
				continue
			}
			var sum int64
			for _, v := range series.Value {
				sum += v
			}
			switch series.Id.CounterId {
			case txCounter.Key:
				tx += sum
			case rxCounter.Key:
				rx += sum
			}
		}
	}
	return tx, rx, nil
}

// GetVMSummaryStats returns the quick-stats summary for a VM
func (s *InventoryService) GetVMSummaryStats(ctx context.Context, name string) (*VMSummaryStats, error) {
	props, _, err := s.vmProperties(ctx, name, []string{"name", "runtime.powerState", "summary.quickStats", "summary.storage"})
	if err != nil {
		return nil, err
	}

	qs := props.Summary.QuickStats
	stats := &VMSummaryStats{
		Name:                props.Name,
		PowerState:          string(props.Runtime.PowerState),
		OverallCPUUsageMhz:  qs.OverallCpuUsage,
		OverallCPUDemandMhz: qs.OverallCpuDemand,
		GuestMemoryUsageMB:  qs.GuestMemoryUsage,
		HostMemoryUsageMB:   qs.HostMemoryUsage,
		UptimeSeconds:       qs.UptimeSeconds,
	}
	if props.Summary.Storage != nil {
		stats.CommittedStorageGB = roundTwo(float64(props.Summary.Storage.Committed) / bytesPerGB)
		stats.UncommittedStorageGB = roundTwo(float64(props.Summary.Storage.Uncommitted) / bytesPerGB)
	}
	return stats, nil
}
