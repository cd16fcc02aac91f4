package loader

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultReloadInterval is how often cached entries are checked for changes
// when interval is not configured.
const DefaultReloadInterval = 5 * time.Second

type cacheEntry struct {
	data      []byte
	loadedAt  time.Time // modification time seen when data was loaded
	checkedAt time.Time // last time modification time was looked at
}

// CachedLoader keeps loaded resources in memory. Modification time of a
// cached resource is re-checked no more often than every ReloadInterval,
// changed resources are loaded again. Negative interval checks on every
// Load. CachedLoader is safe for concurrent use.
type CachedLoader struct {
	ReloadInterval time.Duration

	inner Loader
	now   func() time.Time
	log   *zap.Logger

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

// CacheOption configures CachedLoader.
type CacheOption func(*CachedLoader)

// WithClock replaces time source, used in tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *CachedLoader) {
		c.now = now
	}
}

// WithLogger sets logger.
func WithLogger(log *zap.Logger) CacheOption {
	return func(c *CachedLoader) {
		c.log = log.Named("loader-cache")
	}
}

// NewCachedLoader wraps inner loader. Zero interval means
// DefaultReloadInterval.
func NewCachedLoader(inner Loader, interval time.Duration, opts ...CacheOption) *CachedLoader {
	if interval == 0 {
		interval = DefaultReloadInterval
	}
	c := &CachedLoader{
		ReloadInterval: interval,
		inner:          inner,
		now:            time.Now,
		log:            zap.NewNop(),
		cache:          make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedLoader) Load(name string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.cache[name]
	if ok {
		if c.ReloadInterval > 0 && now.Sub(e.checkedAt) < c.ReloadInterval {
			return e.data, nil
		}
		e.checkedAt = now
		changed, err := c.inner.LastChangedAt(name)
		if err != nil || !changed.After(e.loadedAt) {
			return e.data, nil
		}
		c.log.Debug("Reloading changed resource", zap.String("path", name), zap.Time("changed", changed))
	}

	changed, _ := c.inner.LastChangedAt(name)
	data, err := c.inner.Load(name)
	if err != nil {
		return nil, err
	}
	c.cache[name] = &cacheEntry{data: data, loadedAt: changed, checkedAt: now}
	return data, nil
}

func (c *CachedLoader) LastChangedAt(name string) (time.Time, error) {
	return c.inner.LastChangedAt(name)
}
