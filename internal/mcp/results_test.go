package mcp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/virtops/esxi-mcp-server/internal/vmware"
)

func TestTaskResult(t *testing.T) {
	t.Parallel()

	t.Run("succeeded renders confirmation", func(t *testing.T) {
		t.Parallel()

		result := taskResult(vmware.TaskOutcome{Status: vmware.TaskSucceeded}, "VM 'x' created successfully")
		assert.False(t, result.IsError)
	})

	t.Run("timed out is informational, not an error", func(t *testing.T) {
		t.Parallel()

		result := taskResult(vmware.TaskOutcome{Status: vmware.TaskTimedOut}, "unused")
		assert.False(t, result.IsError, "a client-side timeout must not be reported as failure")
	})

	t.Run("failed carries the platform detail", func(t *testing.T) {
		t.Parallel()

		outcome := vmware.TaskOutcome{
			Status: vmware.TaskFailed,
			Err:    errors.New("The operation is not allowed in the current state."),
		}
		result := taskResult(outcome, "unused")
		assert.True(t, result.IsError)
	})
}
