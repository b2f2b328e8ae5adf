package metadata

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

const (
	defaultMaxCacheSize = 1000
	defaultCacheTTL     = 30 * time.Second
)

var (
	metadataCacheTotalCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metadata_cache_total_count",
		Help: "The total number of metadata snapshot lookups.",
	})

	metadataCacheHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metadata_cache_hit_count",
		Help: "The total number of metadata snapshot lookups served from cache.",
	})
)

// CachedProvider caches snapshots loaded from another Provider. Concurrent
// loads of the same record types share one call to the inner provider.
type CachedProvider struct {
	inner Provider
	cache *theine.Cache[string, *Snapshot]
	group singleflight.Group
	ttl   time.Duration
	size  int64
}

var _ Provider = (*CachedProvider)(nil)

type CachedProviderOpt func(*CachedProvider)

func WithCacheTTL(ttl time.Duration) CachedProviderOpt {
	return func(c *CachedProvider) {
		c.ttl = ttl
	}
}

func WithMaxCacheSize(size int64) CachedProviderOpt {
	return func(c *CachedProvider) {
		c.size = size
	}
}

// NewCachedProvider wraps inner with a TTL cache.
func NewCachedProvider(inner Provider, opts ...CachedProviderOpt) (*CachedProvider, error) {
	c := &CachedProvider{
		inner: inner,
		ttl:   defaultCacheTTL,
		size:  defaultMaxCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	cache, err := theine.NewBuilder[string, *Snapshot](c.size).Build()
	if err != nil {
		return nil, fmt.Errorf("build metadata cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

// Load see [Provider].Load.
func (c *CachedProvider) Load(ctx context.Context, dataTypes []string) (*Snapshot, error) {
	metadataCacheTotalCounter.Inc()

	key := cacheKey(dataTypes)
	if s, ok := c.cache.Get(key); ok {
		metadataCacheHitCounter.Inc()
		return s, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		s, err := c.inner.Load(ctx, dataTypes)
		if err != nil {
			return nil, err
		}
		c.cache.SetWithTTL(key, s, 1, c.ttl)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Close releases the cache.
func (c *CachedProvider) Close() {
	c.cache.Close()
}

func cacheKey(dataTypes []string) string {
	if len(dataTypes) == 0 {
		return "*"
	}
	sorted := slices.Clone(dataTypes)
	sort.Strings(sorted)
	return strings.Join(slices.Compact(sorted), ",")
}
