// cache.go - In-memory TTL cache for segmentation masks

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bosocmputer/swing_ocr/internal/segment"
)

type cachedMask struct {
	mask      segment.Mask
	expiresAt time.Time
}

// MemoryMaskCache implements segment.MaskCache inside the process.
type MemoryMaskCache struct {
	mu      sync.RWMutex
	entries map[string]cachedMask
	now     func() time.Time
}

// NewMemoryMaskCache creates an empty cache.
func NewMemoryMaskCache() *MemoryMaskCache {
	return &MemoryMaskCache{entries: make(map[string]cachedMask), now: time.Now}
}

// Get returns a live entry; expired entries are dropped on read.
func (c *MemoryMaskCache) Get(_ context.Context, key string) (segment.Mask, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expiresAt) {
		return e.mask, true
	}
	if !ok {
		return segment.Mask{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-check after acquiring write lock
	if e, ok = c.entries[key]; ok && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
	}
	return segment.Mask{}, false
}

// Set stores a copy of m for ttl.
func (c *MemoryMaskCache) Set(_ context.Context, key string, m segment.Mask, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.Values = append([]float32(nil), m.Values...)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedMask{mask: m, expiresAt: c.now().Add(ttl)}
}

// Purge removes expired entries and returns how many were dropped.
func (c *MemoryMaskCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len reports the number of stored entries, expired or not.
func (c *MemoryMaskCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
