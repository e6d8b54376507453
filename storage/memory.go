package storage

import (
	"sync"
	"time"

	"terrasync/typedef"
)

type memoryEntry struct {
	canvas   *typedef.PixelCanvas
	cachedAt time.Time
}

// MemoryCache is the in-process canvas tier. Entries are only served within
// a bounded freshness window; stale entries count as misses and are pruned
// lazily on access.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	maxAge  time.Duration
	now     func() time.Time
}

// NewMemoryCache creates a memory tier with the given freshness window.
func NewMemoryCache(maxAge time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// SetClock overrides the time source, used by tests.
func (mc *MemoryCache) SetClock(now func() time.Time) {
	mc.mu.Lock()
	mc.now = now
	mc.mu.Unlock()
}

// Get returns the cached canvas if it is still within the freshness window.
func (mc *MemoryCache) Get(territoryID string) (*typedef.PixelCanvas, bool) {
	mc.mu.RLock()
	entry, ok := mc.entries[territoryID]
	now := mc.now()
	mc.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if now.Sub(entry.cachedAt) > mc.maxAge {
		mc.mu.Lock()
		delete(mc.entries, territoryID)
		mc.mu.Unlock()
		return nil, false
	}
	return entry.canvas, true
}

// Put stores a canvas with a fresh timestamp.
func (mc *MemoryCache) Put(territoryID string, canvas *typedef.PixelCanvas) {
	mc.mu.Lock()
	mc.entries[territoryID] = memoryEntry{canvas: canvas, cachedAt: mc.now()}
	mc.mu.Unlock()
}

// Delete removes the entry for one territory.
func (mc *MemoryCache) Delete(territoryID string) {
	mc.mu.Lock()
	delete(mc.entries, territoryID)
	mc.mu.Unlock()
}

// Len reports the number of live entries, stale or not.
func (mc *MemoryCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.entries)
}
