package vmware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/simulator"
	"github.com/vmware/govmomi/vim25"
)

func TestWaitForUpdatesInitialState(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		service := NewUpdateService(testClient(c), testLogger())

		// The first wait reports the current state of every watched
		// object as "enter" changes.
		batch, err := service.WaitForUpdates(ctx, "VirtualMachine", []string{"runtime.powerState"}, 1, 1)
		require.NoError(t, err)
		require.NotEmpty(t, batch.Changes)
		assert.NotEmpty(t, batch.Version)

		for _, change := range batch.Changes {
			assert.Equal(t, "runtime.powerState", change.Property)
			assert.NotEmpty(t, change.Object)
		}
	})
}
