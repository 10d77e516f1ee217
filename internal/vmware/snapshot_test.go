package vmware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/simulator"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/virtops/esxi-mcp-server/internal/config"
)

func snapshotNode(name string, children ...types.VirtualMachineSnapshotTree) types.VirtualMachineSnapshotTree {
	return types.VirtualMachineSnapshotTree{
		Snapshot:          types.ManagedObjectReference{Type: "VirtualMachineSnapshot", Value: "snapshot-" + name},
		Name:              name,
		State:             types.VirtualMachinePowerStatePoweredOff,
		ChildSnapshotList: children,
	}
}

// fixture: A -> [B, C -> [D]]
func snapshotFixture() []types.VirtualMachineSnapshotTree {
	return []types.VirtualMachineSnapshotTree{
		snapshotNode("A",
			snapshotNode("B"),
			snapshotNode("C",
				snapshotNode("D"),
			),
		),
	}
}

func TestFindSnapshotByName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		tree   []types.VirtualMachineSnapshotTree
		target string
		found  bool
	}{
		{name: "root", tree: snapshotFixture(), target: "A", found: true},
		{name: "leaf", tree: snapshotFixture(), target: "B", found: true},
		{name: "nested leaf", tree: snapshotFixture(), target: "D", found: true},
		{name: "missing", tree: snapshotFixture(), target: "Z", found: false},
		{name: "empty tree", tree: nil, target: "A", found: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			node := findSnapshotByName(tt.tree, tt.target)
			if !tt.found {
				assert.Nil(t, node)
				return
			}
			require.NotNil(t, node)
			assert.Equal(t, tt.target, node.Name)
		})
	}
}

func TestFindSnapshotByNameDuplicatesFirstMatch(t *testing.T) {
	t.Parallel()

	// Two nodes named "dup": one nested under the first root, one as a
	// second root. Pre-order visits the nested one first.
	tree := []types.VirtualMachineSnapshotTree{
		snapshotNode("A", snapshotNode("dup")),
		snapshotNode("dup"),
	}
	tree[0].ChildSnapshotList[0].Snapshot.Value = "snapshot-first"
	tree[1].Snapshot.Value = "snapshot-second"

	node := findSnapshotByName(tree, "dup")
	require.NotNil(t, node)
	assert.Equal(t, "snapshot-first", node.Snapshot.Value)
}

func TestFlattenSnapshotTree(t *testing.T) {
	t.Parallel()

	infos := flattenSnapshotTree(snapshotFixture(), 0)
	require.Len(t, infos, 4)

	want := []struct {
		name  string
		depth int
	}{
		{"A", 0},
		{"B", 1},
		{"C", 1},
		{"D", 2},
	}
	for i, w := range want {
		assert.Equal(t, w.name, infos[i].Name)
		assert.Equal(t, w.depth, infos[i].Depth)
	}
}

func TestFlattenSnapshotTreeMultipleRoots(t *testing.T) {
	t.Parallel()

	tree := []types.VirtualMachineSnapshotTree{
		snapshotNode("root1", snapshotNode("child1")),
		snapshotNode("root2"),
	}

	infos := flattenSnapshotTree(tree, 0)
	require.Len(t, infos, 3)
	assert.Equal(t, 0, infos[0].Depth)
	assert.Equal(t, 1, infos[1].Depth)
	assert.Equal(t, 0, infos[2].Depth)
}

func TestSnapshotLifecycle(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		client := testClient(c)
		scope, err := ResolveScope(ctx, client, config.VMwareConfig{}, testLogger())
		require.NoError(t, err)

		executor := NewExecutor(client, config.TaskConfig{Timeout: taskTestTimeout, PollInterval: taskTestInterval}, testLogger())
		service := NewSnapshotService(client, scope, executor, testLogger())

		const vmName = "DC0_H0_VM0"

		// No snapshots yet
		infos, err := service.ListSnapshots(ctx, vmName)
		require.NoError(t, err)
		assert.Empty(t, infos)

		// Removing all on a VM without snapshots is not an error
		_, hadSnapshots, err := service.RemoveAllSnapshots(ctx, vmName)
		require.NoError(t, err)
		assert.False(t, hadSnapshots)

		// Create and list
		outcome, err := service.CreateSnapshot(ctx, vmName, "baseline", "initial state", false, false)
		require.NoError(t, err)
		assert.Equal(t, TaskSucceeded, outcome.Status)

		infos, err = service.ListSnapshots(ctx, vmName)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, "baseline", infos[0].Name)
		assert.Equal(t, 0, infos[0].Depth)

		// Revert to it
		outcome, err = service.RevertSnapshot(ctx, vmName, "baseline")
		require.NoError(t, err)
		assert.Equal(t, TaskSucceeded, outcome.Status)

		// Remove it
		outcome, err = service.RemoveSnapshot(ctx, vmName, "baseline", true)
		require.NoError(t, err)
		assert.Equal(t, TaskSucceeded, outcome.Status)

		infos, err = service.ListSnapshots(ctx, vmName)
		require.NoError(t, err)
		assert.Empty(t, infos)
	})
}

func TestSnapshotNotFound(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		client := testClient(c)
		scope, err := ResolveScope(ctx, client, config.VMwareConfig{}, testLogger())
		require.NoError(t, err)

		executor := NewExecutor(client, config.TaskConfig{Timeout: taskTestTimeout, PollInterval: taskTestInterval}, testLogger())
		service := NewSnapshotService(client, scope, executor, testLogger())

		_, err = service.RevertSnapshot(ctx, "DC0_H0_VM0", "no-such-snapshot")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}
