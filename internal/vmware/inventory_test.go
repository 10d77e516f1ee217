package vmware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/simulator"
	"github.com/vmware/govmomi/vim25"

	"github.com/virtops/esxi-mcp-server/internal/config"
)

func TestUtilizationPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		usage float64
		total float64
		want  float64
	}{
		{name: "half", usage: 50, total: 100, want: 50},
		{name: "rounded to two decimals", usage: 1, total: 3, want: 33.33},
		{name: "zero total reports zero", usage: 0, total: 0, want: 0},
		{name: "usage with zero total reports zero", usage: 25, total: 0, want: 0},
		{name: "full", usage: 2048, total: 2048, want: 100},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, utilizationPercent(tt.usage, tt.total))
		})
	}
}

func TestRoundTwo(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.23, roundTwo(1.2345))
	assert.Equal(t, 1.24, roundTwo(1.235))
	assert.Equal(t, 0.0, roundTwo(0))
	assert.Equal(t, 100.0, roundTwo(100.0001))
}

func inventoryFixture(ctx context.Context, t *testing.T, c *vim25.Client) *InventoryService {
	t.Helper()

	client := testClient(c)
	scope, err := ResolveScope(ctx, client, config.VMwareConfig{}, testLogger())
	require.NoError(t, err)

	return NewInventoryService(client, scope, testLogger())
}

func TestListHosts(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		service := inventoryFixture(ctx, t, c)

		hosts, err := service.ListHosts(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, hosts)
		assert.Contains(t, hosts, "DC0_H0")
	})
}

func TestListDatastores(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		service := inventoryFixture(ctx, t, c)

		datastores, err := service.ListDatastores(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, datastores)

		names := make([]string, 0, len(datastores))
		for _, ds := range datastores {
			names = append(names, ds.Name)
			assert.GreaterOrEqual(t, ds.CapacityGB, ds.FreeSpaceGB)
			assert.NotEmpty(t, ds.MaintenanceMode)
		}
		assert.Contains(t, names, "LocalDS_0")
	})
}

func TestListNetworks(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		service := inventoryFixture(ctx, t, c)

		networks, err := service.ListNetworks(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, networks)

		byName := map[string]NetworkDetails{}
		for _, net := range networks {
			byName[net.Name] = net
		}

		standard, ok := byName["VM Network"]
		require.True(t, ok)
		assert.Equal(t, "Network", standard.Type)

		portgroup, ok := byName["DC0_DVPG0"]
		require.True(t, ok)
		assert.Equal(t, "DistributedVirtualPortgroup", portgroup.Type)
	})
}

func TestGetHostDetails(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		service := inventoryFixture(ctx, t, c)

		details, err := service.GetHostDetails(ctx, "DC0_H0")
		require.NoError(t, err)
		assert.Equal(t, "DC0_H0", details.Name)
		assert.NotEmpty(t, details.PowerState)
		assert.Positive(t, details.CPUCores)

		_, err = service.GetHostDetails(ctx, "no-such-host")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}

func TestGetHostPerformance(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		service := inventoryFixture(ctx, t, c)

		perf, err := service.GetHostPerformance(ctx, "DC0_H0")
		require.NoError(t, err)

		// Percentages stay within range and never fault, whatever the
		// simulated quick stats report.
		assert.GreaterOrEqual(t, perf.CPUUsagePercent, 0.0)
		assert.LessOrEqual(t, perf.CPUUsagePercent, 100.0)
		assert.GreaterOrEqual(t, perf.MemoryUsagePercent, 0.0)
	})
}

func TestGetHostHardwareHealth(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		service := inventoryFixture(ctx, t, c)

		health, err := service.GetHostHardwareHealth(ctx, "DC0_H0")
		require.NoError(t, err)
		assert.NotEmpty(t, health.OverallStatus)
		assert.NotNil(t, health.HardwareStatus, "sensor list is empty, never nil")
	})
}

func TestListPerformanceCounters(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		service := inventoryFixture(ctx, t, c)

		counters, err := service.ListPerformanceCounters(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, counters)
		for _, counter := range counters[:3] {
			assert.NotEmpty(t, counter.Group)
			assert.NotEmpty(t, counter.Name)
		}
	})
}

func TestGetVMSummaryStats(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		service := inventoryFixture(ctx, t, c)

		stats, err := service.GetVMSummaryStats(ctx, "DC0_H0_VM0")
		require.NoError(t, err)
		assert.Equal(t, "DC0_H0_VM0", stats.Name)
		assert.Equal(t, "poweredOn", stats.PowerState)

		_, err = service.GetVMSummaryStats(ctx, "no-such-vm")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}
