package vmware

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/virtops/esxi-mcp-server/internal/config"
)

// TaskStatus is the terminal state of a driven vCenter task.
type TaskStatus string

const (
	// TaskSucceeded means the task reached the success state.
	TaskSucceeded TaskStatus = "succeeded"
	// TaskFailed means the platform reported an error for the task.
	TaskFailed TaskStatus = "failed"
	// TaskTimedOut means the client-side timeout elapsed first. The
	// task keeps running on the remote side; no cancellation is
	// attempted.
	TaskTimedOut TaskStatus = "timed_out"
)

// TaskOutcome is the normalized result of driving a task to a terminal
// state. A timed-out task is a valid outcome, not an error: the caller
// can report "still running" instead of claiming failure.
type TaskOutcome struct {
	Status TaskStatus
	Result string
	Err    error
}

// Succeeded reports whether the task completed successfully.
func (o TaskOutcome) Succeeded() bool {
	return o.Status == TaskSucceeded
}

// taskInfoReader reads the current TaskInfo of a task reference. The
// production implementation goes through the property collector; tests
// substitute a fake.
type taskInfoReader interface {
	taskInfo(ctx context.Context, ref types.ManagedObjectReference) (*types.TaskInfo, error)
}

// collectorPoller reads task state through the property collector.
type collectorPoller struct {
	client *Client
}

func (p *collectorPoller) taskInfo(ctx context.Context, ref types.ManagedObjectReference) (*types.TaskInfo, error) {
	c, err := p.client.Vim25(ctx)
	if err != nil {
		return nil, err
	}

	var task mo.Task
	pc := property.DefaultCollector(c)
	if err := pc.RetrieveOne(ctx, ref, []string{"info"}, &task); err != nil {
		return nil, fmt.Errorf("failed to read task state: %w", err)
	}
	return &task.Info, nil
}

// Executor drives mutating operations to completion. Every mutating
// tool handler routes through it; direct unbounded waits on task
// references are forbidden.
type Executor struct {
	poller   taskInfoReader
	timeout  time.Duration
	interval time.Duration
	logger   *logrus.Logger
}

// NewExecutor creates a task executor bound to the client's session.
func NewExecutor(client *Client, cfg config.TaskConfig, logger *logrus.Logger) *Executor {
	return &Executor{
		poller:   &collectorPoller{client: client},
		timeout:  cfg.Timeout,
		interval: cfg.PollInterval,
		logger:   logger,
	}
}

// Run submits a task and polls it until it reaches a terminal state or
// the configured timeout elapses. The poll loop sleeps between
// attempts; it never spins. The returned error covers submission and
// transport failures only; a remote task failure is reported in the
// outcome with the platform's error detail preserved.
func (e *Executor) Run(ctx context.Context, submit func(context.Context) (types.ManagedObjectReference, error)) (TaskOutcome, error) {
	ref, err := submit(ctx)
	if err != nil {
		return TaskOutcome{}, err
	}

	e.logger.WithField("task_id", ref.Value).Debug("Task submitted, polling for completion")

	deadline := time.NewTimer(e.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		info, err := e.poller.taskInfo(ctx, ref)
		if err != nil {
			return TaskOutcome{}, err
		}

		switch info.State {
		case types.TaskInfoStateSuccess:
			outcome := TaskOutcome{Status: TaskSucceeded}
			if info.Result != nil {
				outcome.Result = fmt.Sprintf("%v", info.Result)
			}
			return outcome, nil

		case types.TaskInfoStateError:
			outcome := TaskOutcome{Status: TaskFailed}
			if info.Error != nil {
				outcome.Err = fmt.Errorf("%w: %s", ErrRemoteOperation, info.Error.LocalizedMessage)
			} else {
				outcome.Err = ErrRemoteOperation
			}
			e.logger.WithFields(logrus.Fields{
				"task_id": ref.Value,
				"error":   outcome.Err,
			}).Error("Task failed")
			return outcome, nil
		}

		select {
		case <-ctx.Done():
			return TaskOutcome{}, ctx.Err()
		case <-deadline.C:
			e.logger.WithFields(logrus.Fields{
				"task_id": ref.Value,
				"timeout": e.timeout,
			}).Warn("Task did not complete before timeout, it remains in flight")
			return TaskOutcome{Status: TaskTimedOut}, nil
		case <-ticker.C:
		}
	}
}
