package vmware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/vim25/types"
)

const guestTestInterval = time.Millisecond

// fakeProcessLister serves a scripted sequence of process table reads;
// the last entry repeats forever.
type fakeProcessLister struct {
	reads [][]types.GuestProcessInfo
	calls int
}

func (l *fakeProcessLister) ListProcesses(_ context.Context, _ types.BaseGuestAuthentication, _ []int64) ([]types.GuestProcessInfo, error) {
	i := l.calls
	if i >= len(l.reads) {
		i = len(l.reads) - 1
	}
	l.calls++
	return l.reads[i], nil
}

func runningProcess(pid int64) []types.GuestProcessInfo {
	return []types.GuestProcessInfo{{Pid: pid}}
}

func exitedProcess(pid int64, exitCode int32) []types.GuestProcessInfo {
	end := time.Now()
	return []types.GuestProcessInfo{{Pid: pid, EndTime: &end, ExitCode: exitCode}}
}

func guestTestAuth() types.BaseGuestAuthentication {
	return &types.NamePasswordAuthentication{Username: "root", Password: "secret"}
}

func TestWaitForProcessCompleted(t *testing.T) {
	t.Parallel()

	lister := &fakeProcessLister{reads: [][]types.GuestProcessInfo{
		runningProcess(1234),
		runningProcess(1234),
		exitedProcess(1234, 0),
	}}

	result, err := waitForProcess(context.Background(), lister, guestTestAuth(), 1234, guestTestInterval, 30)
	require.NoError(t, err)

	assert.Equal(t, int64(1234), result.PID)
	assert.True(t, result.Completed)
	require.NotNil(t, result.ExitCode)
	assert.Equal(t, int32(0), *result.ExitCode)
	require.NotNil(t, result.Success)
	assert.True(t, *result.Success)
	assert.Equal(t, 3, lister.calls, "polling must stop once the process has ended")
}

func TestWaitForProcessNonZeroExit(t *testing.T) {
	t.Parallel()

	lister := &fakeProcessLister{reads: [][]types.GuestProcessInfo{
		exitedProcess(1234, 2),
	}}

	result, err := waitForProcess(context.Background(), lister, guestTestAuth(), 1234, guestTestInterval, 30)
	require.NoError(t, err)

	assert.True(t, result.Completed)
	require.NotNil(t, result.ExitCode)
	assert.Equal(t, int32(2), *result.ExitCode)
	require.NotNil(t, result.Success)
	assert.False(t, *result.Success)
}

func TestWaitForProcessStillRunningAfterBound(t *testing.T) {
	t.Parallel()

	lister := &fakeProcessLister{reads: [][]types.GuestProcessInfo{
		runningProcess(1234),
	}}

	result, err := waitForProcess(context.Background(), lister, guestTestAuth(), 1234, guestTestInterval, 5)
	require.NoError(t, err)

	assert.Equal(t, int64(1234), result.PID, "the caller keeps the PID of a still-running program")
	assert.False(t, result.Completed)
	assert.Nil(t, result.ExitCode)
	assert.Nil(t, result.Success)
	assert.Equal(t, 5, lister.calls, "the wait is bounded by the attempt count")
}

func TestWaitForProcessEmptyTableKeepsPolling(t *testing.T) {
	t.Parallel()

	lister := &fakeProcessLister{reads: [][]types.GuestProcessInfo{
		nil,
		exitedProcess(1234, 0),
	}}

	result, err := waitForProcess(context.Background(), lister, guestTestAuth(), 1234, guestTestInterval, 30)
	require.NoError(t, err)

	assert.True(t, result.Completed)
	assert.Equal(t, 2, lister.calls)
}

func TestWaitForProcessContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lister := &fakeProcessLister{reads: [][]types.GuestProcessInfo{
		runningProcess(1234),
	}}

	_, err := waitForProcess(ctx, lister, guestTestAuth(), 1234, guestTestInterval, 30)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, lister.calls)
}
