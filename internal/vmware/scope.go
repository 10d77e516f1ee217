package vmware

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/virtops/esxi-mcp-server/internal/config"
)

// ResourceScope is the resolved working set every operation targets:
// datacenter, resource pool, default datastore and default network.
// It is resolved once at startup and never mutated afterwards, so it is
// safe for concurrent reads without locking.
type ResourceScope struct {
	Datacenter   *object.Datacenter
	ResourcePool *object.ResourcePool
	Datastore    *object.Datastore

	// Network is nil when no network was configured; VM creation then
	// omits the network adapter.
	Network object.NetworkReference
}

// ResolveScope binds the session to a working set. Resolution is
// deterministic: an explicit configured name must match exactly or
// resolution fails; absent a name, the datacenter and compute resource
// default to the first discovered, the datastore to the one with the
// most free space, and the network to none.
func ResolveScope(ctx context.Context, client *Client, cfg config.VMwareConfig, logger *logrus.Logger) (*ResourceScope, error) {
	c, err := client.Vim25(ctx)
	if err != nil {
		return nil, err
	}

	finder := find.NewFinder(c, true)
	scope := &ResourceScope{}

	// Datacenter
	if cfg.Datacenter != "" {
		dc, err := finder.Datacenter(ctx, cfg.Datacenter)
		if err != nil {
			return nil, ConfigurationError("datacenter", cfg.Datacenter)
		}
		scope.Datacenter = dc
	} else {
		dcs, err := finder.DatacenterList(ctx, "*")
		if err != nil || len(dcs) == 0 {
			return nil, fmt.Errorf("%w: no datacenter found", ErrConfiguration)
		}
		scope.Datacenter = dcs[0]
	}
	finder.SetDatacenter(scope.Datacenter)

	// Compute resource / resource pool
	if cfg.Cluster != "" {
		cluster, err := finder.ClusterComputeResource(ctx, cfg.Cluster)
		if err != nil {
			return nil, ConfigurationError("cluster", cfg.Cluster)
		}
		pool, err := cluster.ResourcePool(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: resource pool of cluster %q: %v", ErrConfiguration, cfg.Cluster, err)
		}
		scope.ResourcePool = pool
	} else {
		crs, err := finder.ComputeResourceList(ctx, "*")
		if err != nil || len(crs) == 0 {
			return nil, fmt.Errorf("%w: no compute resource (cluster or host) found", ErrConfiguration)
		}
		pool, err := crs[0].ResourcePool(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: resource pool of %q: %v", ErrConfiguration, crs[0].Name(), err)
		}
		scope.ResourcePool = pool
	}

	// Datastore
	if cfg.Datastore != "" {
		ds, err := finder.Datastore(ctx, cfg.Datastore)
		if err != nil {
			return nil, ConfigurationError("datastore", cfg.Datastore)
		}
		scope.Datastore = ds
	} else {
		ds, err := largestFreeDatastore(ctx, c, finder)
		if err != nil {
			return nil, err
		}
		scope.Datastore = ds
	}

	// Network (optional)
	if cfg.Network != "" {
		net, err := finder.Network(ctx, cfg.Network)
		if err != nil {
			return nil, ConfigurationError("network", cfg.Network)
		}
		scope.Network = net
	}

	fields := logrus.Fields{
		"datacenter": scope.Datacenter.Name(),
		"datastore":  scope.Datastore.Name(),
	}
	if scope.Network != nil {
		fields["network"] = scope.Network.Reference().Value
	}
	logger.WithFields(fields).Info("Resource scope resolved")

	return scope, nil
}

// largestFreeDatastore picks the datastore with the maximum free
// capacity among all datastores visible in the datacenter.
func largestFreeDatastore(ctx context.Context, c *vim25.Client, finder *find.Finder) (*object.Datastore, error) {
	datastores, err := finder.DatastoreList(ctx, "*")
	if err != nil || len(datastores) == 0 {
		return nil, fmt.Errorf("%w: no datastore found in the datacenter", ErrConfiguration)
	}

	refs := make([]types.ManagedObjectReference, 0, len(datastores))
	for _, ds := range datastores {
		refs = append(refs, ds.Reference())
	}

	var props []mo.Datastore
	pc := property.DefaultCollector(c)
	if err := pc.Retrieve(ctx, refs, []string{"summary"}, &props); err != nil {
		return nil, fmt.Errorf("%w: failed to read datastore summaries: %v", ErrConfiguration, err)
	}

	best := selectByFreeSpace(props)
	ref := props[best].Reference()
	for _, ds := range datastores {
		if ds.Reference() == ref {
			return ds, nil
		}
	}
	// Unreachable: props came from refs
	return datastores[0], nil
}

// selectByFreeSpace returns the index of the datastore with the most
// free space. Ties keep the earliest entry.
func selectByFreeSpace(datastores []mo.Datastore) int {
	best := 0
	for i, ds := range datastores {
		if ds.Summary.FreeSpace > datastores[best].Summary.FreeSpace {
			best = i
		}
	}
	return best
}

// finder returns a finder bound to the scope's datacenter.
func (s *ResourceScope) finder(c *vim25.Client) *find.Finder {
	f := find.NewFinder(c, true)
	f.SetDatacenter(s.Datacenter)
	return f
}

// DatastoreOrDefault resolves an explicit per-call datastore name, or
// falls back to the scope default. An explicit name that does not
// resolve is an error, never silently substituted.
func (s *ResourceScope) DatastoreOrDefault(ctx context.Context, c *vim25.Client, name string) (*object.Datastore, error) {
	if name == "" {
		return s.Datastore, nil
	}
	ds, err := s.finder(c).Datastore(ctx, name)
	if err != nil {
		return nil, NotFoundError("datastore", name)
	}
	return ds, nil
}

// NetworkOrDefault resolves an explicit per-call network name, or falls
// back to the scope default (possibly nil).
func (s *ResourceScope) NetworkOrDefault(ctx context.Context, c *vim25.Client, name string) (object.NetworkReference, error) {
	if name == "" {
		return s.Network, nil
	}
	net, err := s.finder(c).Network(ctx, name)
	if err != nil {
		return nil, NotFoundError("network", name)
	}
	return net, nil
}

// ResourcePoolOrDefault resolves an explicit per-call resource pool
// name, or falls back to the scope default.
func (s *ResourceScope) ResourcePoolOrDefault(ctx context.Context, c *vim25.Client, name string) (*object.ResourcePool, error) {
	if name == "" {
		return s.ResourcePool, nil
	}
	pool, err := s.finder(c).ResourcePool(ctx, name)
	if err != nil {
		return nil, NotFoundError("resource pool", name)
	}
	return pool, nil
}
