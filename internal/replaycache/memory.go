package replaycache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	meta        Meta
	expiresAtMs int64
}

// MemoryCache is an in-process replay cache with a background sweeper. It is
// not safe across processes — a second server instance has its own map and
// will not observe entries written by this one.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   func() time.Time

	sweepInterval time.Duration
	stop          chan struct{}
	stopped       chan struct{}
	once          sync.Once
}

// NewMemoryCache starts a sweeper that evicts expired entries every
// sweepInterval.
func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	c := &MemoryCache{
		entries:       make(map[string]entry),
		clock:         time.Now,
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *MemoryCache) sweepLoop() {
	defer close(c.stopped)
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *MemoryCache) sweep() {
	now := c.clock().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	for sig, e := range c.entries {
		if e.expiresAtMs <= now {
			delete(c.entries, sig)
		}
	}
}

// IsUsed reports whether the signature is present and not expired.
func (c *MemoryCache) IsUsed(ctx context.Context, signature string) (bool, error) {
	now := c.clock().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[signature]
	if !ok {
		return false, nil
	}
	if e.expiresAtMs <= now {
		delete(c.entries, signature)
		return false, nil
	}
	return true, nil
}

// MarkUsed records the signature as consumed until now+ttl.
func (c *MemoryCache) MarkUsed(ctx context.Context, signature string, meta Meta, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[signature] = entry{
		meta:        meta,
		expiresAtMs: c.clock().Add(ttl).UnixMilli(),
	}
	return nil
}

// GetMeta returns the stored metadata for a still-live signature.
func (c *MemoryCache) GetMeta(ctx context.Context, signature string) (Meta, bool, error) {
	now := c.clock().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[signature]
	if !ok || e.expiresAtMs <= now {
		return Meta{}, false, nil
	}
	return e.meta, true, nil
}

// Clear removes all entries.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	return nil
}

// Close stops the sweeper goroutine.
func (c *MemoryCache) Close() error {
	c.once.Do(func() {
		close(c.stop)
		<-c.stopped
	})
	return nil
}
