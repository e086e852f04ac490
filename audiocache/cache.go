// Package audiocache holds decoded audio blobs for finished recordings so
// replaying a transcript does not re-read the file over IPC every time.
package audiocache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/arach/scout-sub000/log"
)

const (
	MaxEntries = 50
	MaxBytes   = 100 * 1024 * 1024

	warnRatio       = 0.8
	monitorInterval = time.Second
)

// Cache is a count- and byte-bounded LRU keyed by audio file path. All
// mutation goes through its methods; recency bookkeeping lives in the
// underlying LRU list.
type Cache struct {
	mu         sync.Mutex
	lru        *simplelru.LRU[string, []byte]
	total      int64
	maxEntries int
	maxBytes   int64
	warned     bool
}

func New() *Cache {
	return NewWithLimits(MaxEntries, MaxBytes)
}

func NewWithLimits(maxEntries int, maxBytes int64) *Cache {
	c := &Cache{maxEntries: maxEntries, maxBytes: maxBytes}
	// onEvict runs under c.mu since every LRU mutation does.
	lru, err := simplelru.NewLRU[string, []byte](maxEntries, c.onEvict)
	if err != nil {
		panic(err) // only possible with maxEntries <= 0
	}
	c.lru = lru
	return c
}

func (c *Cache) onEvict(_ string, blob []byte) {
	c.total -= int64(len(blob))
}

// Get returns the cached blob and promotes it to most recently used.
// It never performs I/O.
func (c *Cache) Get(path string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(path)
}

// Put inserts or overwrites an entry at the most recently used position,
// then evicts from the least recently used end until both bounds hold.
func (c *Cache) Put(path string, blob []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Drop any stale entry first so its bytes are not double-counted.
	c.lru.Remove(path)

	c.lru.Add(path, blob)
	c.total += int64(len(blob))

	// The count bound is enforced by the LRU itself on Add; the byte bound
	// is enforced here. Each removal strictly shrinks the total, and the
	// ok check breaks out if accounting ever drifts from the list.
	for c.total > c.maxBytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.total = 0
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Keys returns the cached paths from least to most recently used.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Monitor periodically warns when the cache is close to its byte bound.
// Observability only; eviction is handled by Put.
func (c *Cache) Monitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.checkUsage()
			}
		}
	}()
}

// checkUsage warns once per crossing of the warn threshold. The latch
// clears when usage drops below it, so sustained pressure logs one line
// and oscillation logs one line per re-crossing.
func (c *Cache) checkUsage() (fired bool) {
	c.mu.Lock()
	total := c.total
	entries := c.lru.Len()
	limit := c.maxBytes
	above := float64(total) >= warnRatio*float64(limit)
	fired = above && !c.warned
	c.warned = above
	c.mu.Unlock()

	if fired {
		log.CacheUsage(total, limit, entries)
	}
	return fired
}

var (
	defaultCache *Cache
	defaultOnce  sync.Once
)

// Default is the process-wide cache, created lazily on first use.
func Default() *Cache {
	defaultOnce.Do(func() { defaultCache = New() })
	return defaultCache
}
