package history

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// slidingTTL is refreshed on every access; an idle channel's history is
	// dropped after an hour.
	slidingTTL = time.Hour

	// absoluteTTL is a hard ceiling from creation regardless of access, so a
	// permanently busy channel still gets a fresh context (and a fresh token
	// budget) once a week.
	absoluteTTL = 7 * 24 * time.Hour

	// DefaultMaxEntries caps the number of live channel contexts.
	DefaultMaxEntries = 1024
)

type cacheEntry struct {
	ctx     *Context
	created time.Time
}

// Cache holds one Context per channel, bounded by entry count and by
// sliding and absolute expiration. It is the only shared mutable resource
// in the conversation pipeline and is safe for unsynchronized concurrent
// use from arbitrary channels.
//
// The cache is constructed and owned by the composition root and injected
// where needed; there is deliberately no package-level instance.
type Cache struct {
	entries  *ttlcache.Cache[string, cacheEntry]
	creating sync.Map // channel id → *sync.Mutex
}

// NewCache builds a cache capped at maxEntries (DefaultMaxEntries when
// zero). Over-capacity eviction follows the underlying cache's own policy;
// this component only configures the bound. Callers must Stop it on
// shutdown.
func NewCache(maxEntries uint64) *Cache {
	if maxEntries == 0 {
		maxEntries = DefaultMaxEntries
	}

	entries := ttlcache.New[string, cacheEntry](
		ttlcache.WithTTL[string, cacheEntry](slidingTTL),
		ttlcache.WithCapacity[string, cacheEntry](maxEntries),
	)
	go entries.Start()

	return &Cache{entries: entries}
}

// Stop halts the background expiry loop.
func (c *Cache) Stop() {
	c.entries.Stop()
}

// Get returns the live context for a channel, refreshing its sliding
// expiration. It never creates one. Entries past their absolute ceiling are
// dropped here rather than returned stale.
func (c *Cache) Get(channelID string) (*Context, bool) {
	item := c.entries.Get(channelID)
	if item == nil {
		return nil, false
	}

	e := item.Value()
	if time.Since(e.created) > absoluteTTL {
		c.entries.Delete(channelID)
		return nil, false
	}
	return e.ctx, true
}

// GetOrCreate returns the channel's context, invoking factory to build one
// when absent or expired. Construction is serialized per channel id, so at
// most one context is ever live for a channel and the factory runs at most
// once per miss even under concurrent first access.
//
// Only creation is serialized. Whole turns are not: two concurrent turns in
// one busy channel may both read the same history snapshot before either
// appends, and the append order of their commits is last-write-wins.
func (c *Cache) GetOrCreate(channelID string, factory func() *Context) *Context {
	if ctx, ok := c.Get(channelID); ok {
		return ctx
	}

	muAny, _ := c.creating.LoadOrStore(channelID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	// Re-check: another goroutine may have created the entry while we
	// waited on the per-key lock.
	if ctx, ok := c.Get(channelID); ok {
		return ctx
	}

	ctx := factory()
	c.entries.Set(channelID, cacheEntry{ctx: ctx, created: time.Now()}, ttlcache.DefaultTTL)
	return ctx
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}
