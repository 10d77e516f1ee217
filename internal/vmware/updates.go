package vmware

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25/types"
)

// PropertyChange is one observed change on a watched object
type PropertyChange struct {
	Object   string      `json:"object"`
	Property string      `json:"property"`
	Kind     string      `json:"kind"`
	Value    interface{} `json:"value,omitempty"`
}

// UpdateBatch is the result of one wait cycle: the changes seen plus
// the version token to resume from.
type UpdateBatch struct {
	Version string           `json:"version"`
	Changes []PropertyChange `json:"changes"`
}

// UpdateService watches inventory objects for property changes
type UpdateService struct {
	client *Client
	logger *logrus.Logger
}

// NewUpdateService creates a new update watch service instance
func NewUpdateService(client *Client, logger *logrus.Logger) *UpdateService {
	return &UpdateService{
		client: client,
		logger: logger,
	}
}

// WaitForUpdates watches all objects of the given type for changes on
// the listed property paths. Each iteration blocks up to
// maxWaitSeconds; up to maxIterations waits run before returning
// whatever was collected. The first batch reports the current state of
// the watched properties, later iterations report deltas. A watch that
// sees nothing returns an empty change list, not an error.
func (s *UpdateService) WaitForUpdates(ctx context.Context, objectType string, propertyPaths []string, maxWaitSeconds int32, maxIterations int) (*UpdateBatch, error) {
	c, err := s.client.Vim25(ctx)
	if err != nil {
		return nil, err
	}

	m := view.NewManager(c)
	v, err := m.CreateContainerView(ctx, c.ServiceContent.RootFolder, []string{objectType}, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s container view: %w", objectType, err)
	}
	defer func() { _ = v.Destroy(ctx) }()

	// Each wait runs on its own collector so concurrent watchers do
	// not share filter state.
	pc, err := property.DefaultCollector(c).Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create property collector: %w", err)
	}
	defer func() { _ = pc.Destroy(context.Background()) }()

	filter := types.CreateFilter{
		Spec: types.PropertyFilterSpec{
			ObjectSet: []types.ObjectSpec{{
				Obj:  v.Reference(),
				Skip: types.NewBool(true),
				SelectSet: []types.BaseSelectionSpec{
					&types.TraversalSpec{
						Type: "ContainerView",
						Path: "view",
					},
				},
			}},
			PropSet: []types.PropertySpec{{
				Type:    objectType,
				PathSet: propertyPaths,
			}},
		},
	}
	pf, err := pc.CreateFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to create property filter: %w", err)
	}
	defer func() { _ = pf.Destroy(context.Background()) }()

	if maxIterations < 1 {
		maxIterations = 1
	}

	batch := &UpdateBatch{Changes: []PropertyChange{}}
	opts := &types.WaitOptions{MaxWaitSeconds: &maxWaitSeconds}

	for i := 0; i < maxIterations; i++ {
		updateSet, err := pc.WaitForUpdates(ctx, batch.Version, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: wait for updates failed: %v", ErrRemoteOperation, err)
		}
		if updateSet == nil {
			// Wait expired with nothing to report
			continue
		}

		batch.Version = updateSet.Version
		for _, filterSet := range updateSet.FilterSet {
			for _, objectUpdate := range filterSet.ObjectSet {
				for _, change := range objectUpdate.ChangeSet {
					batch.Changes = append(batch.Changes, PropertyChange{
						Object:   objectUpdate.Obj.Value,
						Property: change.Name,
						Kind:     string(objectUpdate.Kind),
						Value:    change.Val,
					})
				}
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"object_type": objectType,
		"changes":     len(batch.Changes),
		"version":     batch.Version,
	}).Debug("Collected property updates")
	return batch, nil
}
