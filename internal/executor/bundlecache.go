package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/mohae/deepcopy"
	"github.com/signalbeam/signalbeam/internal/domain"
)

// CachedBundleSource wraps a BundleSource with a short-lived cache so a
// reconcile sweep touching many rollouts on the same bundle version does not
// re-read it from the store on every tick. Bundle versions are immutable
// once published, so staleness only matters for the narrow window between
// CreateBundleVersion and a rollout's Start.
type CachedBundleSource struct {
	inner BundleSource
	cache *ttlcache.Cache[string, *domain.BundleVersion]
}

// NewCachedBundleSource wraps inner with a cache holding each entry for ttl.
func NewCachedBundleSource(inner BundleSource, ttl time.Duration) *CachedBundleSource {
	c := &CachedBundleSource{
		inner: inner,
		cache: ttlcache.New(ttlcache.WithTTL[string, *domain.BundleVersion](ttl)),
	}
	go c.cache.Start()
	return c
}

// Stop releases the cache's background eviction goroutine.
func (c *CachedBundleSource) Stop() {
	c.cache.Stop()
}

// GetBundleVersion implements BundleSource. The returned value is always a
// deep copy of whatever sits in the cache: the Executor's rollback path
// mutates nothing on a BundleVersion, but a future caller doing so must not
// be able to corrupt an entry every other goroutine sharing this cache sees.
func (c *CachedBundleSource) GetBundleVersion(ctx context.Context, tenant domain.TenantID, bundle domain.BundleID, version string) (*domain.BundleVersion, error) {
	key := fmt.Sprintf("%s/%s/%s", tenant, bundle, version)
	if item := c.cache.Get(key); item != nil {
		return cloneBundleVersion(item.Value()), nil
	}

	v, err := c.inner.GetBundleVersion(ctx, tenant, bundle, version)
	if err != nil {
		return nil, err
	}
	if v != nil {
		c.cache.Set(key, v, ttlcache.DefaultTTL)
	}
	return cloneBundleVersion(v), nil
}

func cloneBundleVersion(v *domain.BundleVersion) *domain.BundleVersion {
	if v == nil {
		return nil
	}
	return deepcopy.Copy(v).(*domain.BundleVersion)
}
