package vmware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/simulator"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/virtops/esxi-mcp-server/internal/config"
)

func datastoreWithFreeSpace(free int64) mo.Datastore {
	return mo.Datastore{
		Summary: types.DatastoreSummary{
			FreeSpace: free,
		},
	}
}

func TestSelectByFreeSpace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		freeSpace []int64
		want      int
	}{
		{
			name:      "picks maximum free space",
			freeSpace: []int64{10, 50, 30},
			want:      1,
		},
		{
			name:      "single datastore",
			freeSpace: []int64{5},
			want:      0,
		},
		{
			name:      "tie keeps earliest",
			freeSpace: []int64{50, 50, 10},
			want:      0,
		},
		{
			name:      "maximum last",
			freeSpace: []int64{1, 2, 3},
			want:      2,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			datastores := make([]mo.Datastore, 0, len(tt.freeSpace))
			for _, free := range tt.freeSpace {
				datastores = append(datastores, datastoreWithFreeSpace(free))
			}

			assert.Equal(t, tt.want, selectByFreeSpace(datastores))
		})
	}
}

func TestResolveScopeDefaults(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		client := testClient(c)

		scope, err := ResolveScope(ctx, client, config.VMwareConfig{}, testLogger())
		require.NoError(t, err)

		assert.Equal(t, "DC0", scope.Datacenter.Name())
		require.NotNil(t, scope.ResourcePool)
		require.NotNil(t, scope.Datastore)
		assert.Nil(t, scope.Network)
	})
}

func TestResolveScopeExplicitNames(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		client := testClient(c)

		cfg := config.VMwareConfig{
			Datacenter: "DC0",
			Cluster:    "DC0_C0",
			Datastore:  "LocalDS_0",
			Network:    "VM Network",
		}

		scope, err := ResolveScope(ctx, client, cfg, testLogger())
		require.NoError(t, err)

		assert.Equal(t, "DC0", scope.Datacenter.Name())
		assert.Equal(t, "LocalDS_0", scope.Datastore.Name())
		require.NotNil(t, scope.Network)
	})
}

func TestResolveScopeUnknownNameFails(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.VMwareConfig
	}{
		{name: "unknown datacenter", cfg: config.VMwareConfig{Datacenter: "no-such-dc"}},
		{name: "unknown cluster", cfg: config.VMwareConfig{Cluster: "no-such-cluster"}},
		{name: "unknown datastore", cfg: config.VMwareConfig{Datastore: "no-such-ds"}},
		{name: "unknown network", cfg: config.VMwareConfig{Network: "no-such-net"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			simulator.Test(func(ctx context.Context, c *vim25.Client) {
				client := testClient(c)

				_, err := ResolveScope(ctx, client, tt.cfg, testLogger())
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfiguration),
					"explicit names must fail resolution, never fall back to a default")
			})
		})
	}
}

func TestDatastoreOrDefault(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		client := testClient(c)

		scope, err := ResolveScope(ctx, client, config.VMwareConfig{}, testLogger())
		require.NoError(t, err)

		ds, err := scope.DatastoreOrDefault(ctx, c, "")
		require.NoError(t, err)
		assert.Equal(t, scope.Datastore, ds)

		ds, err = scope.DatastoreOrDefault(ctx, c, "LocalDS_0")
		require.NoError(t, err)
		assert.Equal(t, "LocalDS_0", ds.Name())

		_, err = scope.DatastoreOrDefault(ctx, c, "no-such-ds")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}
