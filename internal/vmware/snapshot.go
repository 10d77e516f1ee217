package vmware

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/vim25/methods"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"
)

// SnapshotInfo is one node of a VM's snapshot tree, annotated with its
// depth below the root.
type SnapshotInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreateTime  time.Time `json:"create_time"`
	State       string    `json:"state"`
	Depth       int       `json:"level"`
}

// findSnapshotByName searches the tree depth-first in pre-order and
// returns the first node whose name matches. Snapshot names are not
// unique on the platform; resolving duplicates to the earliest-visited
// node is a deliberate policy, shared by remove and revert.
func findSnapshotByName(tree []types.VirtualMachineSnapshotTree, name string) *types.VirtualMachineSnapshotTree {
	for i := range tree {
		node := &tree[i]
		if node.Name == name {
			return node
		}
		if found := findSnapshotByName(node.ChildSnapshotList, name); found != nil {
			return found
		}
	}
	return nil
}

// flattenSnapshotTree lists the tree in pre-order, annotating each node
// with its depth. Multiple independent root snapshots are supported.
func flattenSnapshotTree(tree []types.VirtualMachineSnapshotTree, depth int) []SnapshotInfo {
	var result []SnapshotInfo
	for _, node := range tree {
		result = append(result, SnapshotInfo{
			Name:        node.Name,
			Description: node.Description,
			CreateTime:  node.CreateTime,
			State:       string(node.State),
			Depth:       depth,
		})
		result = append(result, flattenSnapshotTree(node.ChildSnapshotList, depth+1)...)
	}
	return result
}

// SnapshotService manages per-VM snapshot trees.
type SnapshotService struct {
	client   *Client
	scope    *ResourceScope
	executor *Executor
	logger   *logrus.Logger
}

// NewSnapshotService creates a new snapshot service instance
func NewSnapshotService(client *Client, scope *ResourceScope, executor *Executor, logger *logrus.Logger) *SnapshotService {
	return &SnapshotService{
		client:   client,
		scope:    scope,
		executor: executor,
		logger:   logger,
	}
}

// snapshotTree fetches the VM's current snapshot tree. The tree is read
// fresh on every call; it can change between reads.
func (s *SnapshotService) snapshotTree(ctx context.Context, vmName string) ([]types.VirtualMachineSnapshotTree, error) {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return nil, err
	}

	vm, err := findVM(ctx, c, s.scope, vmName)
	if err != nil {
		return nil, err
	}

	var props mo.VirtualMachine
	pc := property.DefaultCollector(c)
	if err := pc.RetrieveOne(ctx, vm.Reference(), []string{"snapshot"}, &props); err != nil {
		return nil, fmt.Errorf("failed to retrieve VM snapshots: %w", err)
	}

	if props.Snapshot == nil {
		return nil, nil
	}
	return props.Snapshot.RootSnapshotList, nil
}

// ListSnapshots returns the VM's snapshots in pre-order with depth
// annotations. A VM without snapshots yields an empty list.
func (s *SnapshotService) ListSnapshots(ctx context.Context, vmName string) ([]SnapshotInfo, error) {
	tree, err := s.snapshotTree(ctx, vmName)
	if err != nil {
		return nil, err
	}

	infos := flattenSnapshotTree(tree, 0)
	if infos == nil {
		infos = []SnapshotInfo{}
	}
	return infos, nil
}

// CreateSnapshot creates a named snapshot of the VM.
func (s *SnapshotService) CreateSnapshot(ctx context.Context, vmName, snapshotName, description string, memory, quiesce bool) (TaskOutcome, error) {
	s.logger.WithFields(logrus.Fields{
		"vm_name":       vmName,
		"snapshot_name": snapshotName,
		"memory":        memory,
		"quiesce":       quiesce,
	}).Info("Creating VM snapshot")

	c, err := s.client.Vim25(ctx)
	if err != nil {
		return TaskOutcome{}, err
	}

	vm, err := findVM(ctx, c, s.scope, vmName)
	if err != nil {
		return TaskOutcome{}, err
	}

	return s.executor.Run(ctx, func(ctx context.Context) (types.ManagedObjectReference, error) {
		task, err := vm.CreateSnapshot(ctx, snapshotName, description, memory, quiesce)
		if err != nil {
			return types.ManagedObjectReference{}, fmt.Errorf("failed to create snapshot task: %w", err)
		}
		return task.Reference(), nil
	})
}

// RemoveSnapshot removes the first snapshot matching the name,
// optionally with its children.
func (s *SnapshotService) RemoveSnapshot(ctx context.Context, vmName, snapshotName string, removeChildren bool) (TaskOutcome, error) {
	s.logger.WithFields(logrus.Fields{
		"vm_name":         vmName,
		"snapshot_name":   snapshotName,
		"remove_children": removeChildren,
	}).Info("Removing VM snapshot")

	snapRef, err := s.resolveSnapshot(ctx, vmName, snapshotName)
	if err != nil {
		return TaskOutcome{}, err
	}

	c, err := s.client.Vim25(ctx)
	if err != nil {
		return TaskOutcome{}, err
	}

	return s.executor.Run(ctx, func(ctx context.Context) (types.ManagedObjectReference, error) {
		res, err := methods.RemoveSnapshot_Task(ctx, c, &types.RemoveSnapshot_Task{
			This:           *snapRef,
			RemoveChildren: removeChildren,
		})
		if err != nil {
			return types.ManagedObjectReference{}, fmt.Errorf("failed to create remove snapshot task: %w", err)
		}
		return res.Returnval, nil
	})
}

// RevertSnapshot reverts the VM to the first snapshot matching the name.
func (s *SnapshotService) RevertSnapshot(ctx context.Context, vmName, snapshotName string) (TaskOutcome, error) {
	s.logger.WithFields(logrus.Fields{
		"vm_name":       vmName,
		"snapshot_name": snapshotName,
	}).Info("Reverting VM to snapshot")

	snapRef, err := s.resolveSnapshot(ctx, vmName, snapshotName)
	if err != nil {
		return TaskOutcome{}, err
	}

	c, err := s.client.Vim25(ctx)
	if err != nil {
		return TaskOutcome{}, err
	}

	return s.executor.Run(ctx, func(ctx context.Context) (types.ManagedObjectReference, error) {
		res, err := methods.RevertToSnapshot_Task(ctx, c, &types.RevertToSnapshot_Task{
			This: *snapRef,
		})
		if err != nil {
			return types.ManagedObjectReference{}, fmt.Errorf("failed to create revert snapshot task: %w", err)
		}
		return res.Returnval, nil
	})
}

// RemoveAllSnapshots removes every snapshot of the VM. A VM without
// snapshots is not an error.
func (s *SnapshotService) RemoveAllSnapshots(ctx context.Context, vmName string) (TaskOutcome, bool, error) {
	s.logger.WithField("vm_name", vmName).Info("Removing all VM snapshots")

	tree, err := s.snapshotTree(ctx, vmName)
	if err != nil {
		return TaskOutcome{}, false, err
	}
	if len(tree) == 0 {
		return TaskOutcome{}, false, nil
	}

	c, err := s.client.Vim25(ctx)
	if err != nil {
		return TaskOutcome{}, true, err
	}

	vm, err := findVM(ctx, c, s.scope, vmName)
	if err != nil {
		return TaskOutcome{}, true, err
	}

	outcome, err := s.executor.Run(ctx, func(ctx context.Context) (types.ManagedObjectReference, error) {
		task, err := vm.RemoveAllSnapshot(ctx, nil)
		if err != nil {
			return types.ManagedObjectReference{}, fmt.Errorf("failed to create remove all snapshots task: %w", err)
		}
		return task.Reference(), nil
	})
	return outcome, true, err
}

// resolveSnapshot locates a snapshot reference by name, first match in
// pre-order.
func (s *SnapshotService) resolveSnapshot(ctx context.Context, vmName, snapshotName string) (*types.ManagedObjectReference, error) {
	tree, err := s.snapshotTree(ctx, vmName)
	if err != nil {
		return nil, err
	}
	if len(tree) == 0 {
		return nil, fmt.Errorf("%w: VM %q has no snapshots", ErrNotFound, vmName)
	}

	node := findSnapshotByName(tree, snapshotName)
	if node == nil {
		return nil, fmt.Errorf("%w: snapshot %q on VM %q", ErrNotFound, snapshotName, vmName)
	}
	return &node.Snapshot, nil
}
