// Package engine implements the territory rendering reconciliation engine:
// the per-territory load→derive→publish→render pipeline with deduplication
// and backpressure, identifier self-healing against the rendering surface,
// and the overlay lifecycle.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"terrasync/storage"
	"terrasync/surface"
	"terrasync/typedef"
)

// TerritoryStore is the authoritative source of territory records,
// satisfied by *api.Client. A false second return means the store has no
// record, which is expected for never-claimed territory.
type TerritoryStore interface {
	GetTerritory(ctx context.Context, territoryID string) (*typedef.Territory, bool, error)
}

// Config holds the collaborators and tuning for New. Surface, Territories
// and Canvases are required; everything else has a usable zero default.
type Config struct {
	Surface     surface.Surface
	Territories TerritoryStore
	Canvases    *storage.Tiers
	Clock       Clock
	Logger      *slog.Logger

	CellScale int

	BatchSize  int
	BatchDelay time.Duration

	ImmediateHead    int
	ImmediateWorkers int
	DeferredChunk    int
	DeferredWorkers  int
	IdleDelay        time.Duration

	SettleDelay  time.Duration
	RepaintDelay time.Duration

	// PreserveContentWindow bounds how long an authoritative "has content"
	// signal can override a derived hasContent=false. Zero disables the
	// expiry, making the override unconditional.
	PreserveContentWindow time.Duration
}

// Stats is a snapshot of engine counters since construction.
type Stats struct {
	Refreshes    int64
	DedupSkips   int64
	NotFound     int64
	Failures     int64
	Published    int64
	OverlayShows int64
	OverlayHides int64

	Tiers storage.TierStats
}

// Engine is the reconciliation pipeline instance. All mutable state (the
// in-flight set, the mapping table via the registry, content signals) is
// owned by the instance; there are no package-level singletons.
type Engine struct {
	surface     surface.Surface
	territories TerritoryStore
	canvases    *storage.Tiers
	resolver    *Resolver
	overlay     *overlayManager
	clock       Clock
	logger      *slog.Logger

	batchSize        int
	batchDelay       time.Duration
	immediateHead    int
	immediateWorkers int
	deferredChunk    int
	deferredWorkers  int
	idleDelay        time.Duration
	preserveWindow   time.Duration

	inflight *inflightSet

	// registry is the local territory table: last-known records plus their
	// surface mappings. Entries are owned by the engine; reads and writes
	// exchange copies, so no reconciliation ever shares a mutable record
	// with another goroutine.
	regMu    sync.Mutex
	registry map[string]*typedef.Territory

	// contentSignals records when an authoritative source last asserted a
	// territory has content, keyed by id.
	sigMu          sync.Mutex
	contentSignals map[string]time.Time

	statsMu sync.Mutex
	stats   Stats

	background sync.WaitGroup
}

// New constructs an engine from its collaborators.
func New(cfg Config) (*Engine, error) {
	if cfg.Surface == nil {
		return nil, fmt.Errorf("engine: surface is required")
	}
	if cfg.Territories == nil {
		return nil, fmt.Errorf("engine: territory store is required")
	}
	if cfg.Canvases == nil {
		return nil, fmt.Errorf("engine: canvas tiers are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CellScale <= 0 {
		cfg.CellScale = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.ImmediateHead <= 0 {
		cfg.ImmediateHead = 60
	}
	if cfg.ImmediateWorkers <= 0 {
		cfg.ImmediateWorkers = 6
	}
	if cfg.DeferredChunk <= 0 {
		cfg.DeferredChunk = 12
	}
	if cfg.DeferredWorkers <= 0 {
		cfg.DeferredWorkers = 3
	}

	return &Engine{
		surface:     cfg.Surface,
		territories: cfg.Territories,
		canvases:    cfg.Canvases,
		resolver:    NewResolver(cfg.Surface, cfg.Logger),
		overlay: newOverlayManager(cfg.Surface, cfg.Clock, cfg.CellScale,
			cfg.SettleDelay, cfg.RepaintDelay, cfg.Logger),
		clock:  cfg.Clock,
		logger: cfg.Logger,

		batchSize:        cfg.BatchSize,
		batchDelay:       cfg.BatchDelay,
		immediateHead:    cfg.ImmediateHead,
		immediateWorkers: cfg.ImmediateWorkers,
		deferredChunk:    cfg.DeferredChunk,
		deferredWorkers:  cfg.DeferredWorkers,
		idleDelay:        cfg.IdleDelay,
		preserveWindow:   cfg.PreserveContentWindow,

		inflight:       newInflightSet(),
		registry:       make(map[string]*typedef.Territory),
		contentSignals: make(map[string]time.Time),
	}, nil
}

// Close waits for any deferred background loading to finish.
func (e *Engine) Close() {
	e.background.Wait()
}

// Stats returns a snapshot of engine and cache-tier counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	s := e.stats
	e.statsMu.Unlock()
	s.Tiers = e.canvases.Stats()
	return s
}

func (e *Engine) bump(f func(*Stats)) {
	e.statsMu.Lock()
	f(&e.stats)
	e.statsMu.Unlock()
}

// cachedTerritory returns a copy of the registry entry for an id, if any.
// Callers mutate their copy freely and write it back with storeTerritory.
func (e *Engine) cachedTerritory(id string) *typedef.Territory {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	t, ok := e.registry[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

func (e *Engine) storeTerritory(t *typedef.Territory) {
	cp := *t
	e.regMu.Lock()
	e.registry[cp.ID] = &cp
	e.regMu.Unlock()
}

// clearMapping drops the cached surface mapping for an id, forcing the next
// publication to re-resolve against the live surface.
func (e *Engine) clearMapping(id string) {
	e.regMu.Lock()
	if t, ok := e.registry[id]; ok {
		t.Mapping = nil
	}
	e.regMu.Unlock()
}

// markContentSignal records an authoritative assertion that the territory
// has content, protecting it from a stale hasContent=false derivation for
// the preserve window.
func (e *Engine) markContentSignal(id string) {
	e.sigMu.Lock()
	e.contentSignals[id] = e.clock.Now()
	e.sigMu.Unlock()
}

// contentSignalActive reports whether a recorded signal is still within the
// preserve window.
func (e *Engine) contentSignalActive(id string) bool {
	e.sigMu.Lock()
	at, ok := e.contentSignals[id]
	e.sigMu.Unlock()
	if !ok {
		return false
	}
	if e.preserveWindow <= 0 {
		return true
	}
	if e.clock.Now().Sub(at) > e.preserveWindow {
		e.sigMu.Lock()
		delete(e.contentSignals, id)
		e.sigMu.Unlock()
		return false
	}
	return true
}

// Event entry points. Every external trigger funnels into Refresh.

// OnContentSaved reconciles a territory after its canvas was saved,
// forcing a fresh read so the new content is never served from a stale
// tier.
func (e *Engine) OnContentSaved(ctx context.Context, territoryID string) error {
	return e.Refresh(ctx, territoryID, RefreshOptions{ForceRefresh: true})
}

// OnOwnershipChanged reconciles a territory after its owner or sovereignty
// changed remotely.
func (e *Engine) OnOwnershipChanged(ctx context.Context, territoryID string, force bool) error {
	return e.Refresh(ctx, territoryID, RefreshOptions{ForceRefresh: force})
}

// OnTerritorySelected reconciles the selected territory opportunistically.
func (e *Engine) OnTerritorySelected(ctx context.Context, territoryID string) error {
	return e.Refresh(ctx, territoryID, RefreshOptions{})
}

// OnLayerAdded handles a freshly loaded surface layer: cached mappings for
// the listed territories may now be stale, so they are dropped before the
// batch reconciliation re-resolves them.
func (e *Engine) OnLayerAdded(ctx context.Context, territoryIDs []string) error {
	for _, id := range territoryIDs {
		e.clearMapping(id)
	}
	return e.RefreshMany(ctx, territoryIDs, 0)
}

// OnMetadataAvailable seeds preserve-flagged reconciliations for territories
// known in advance to have content, before the content itself has
// propagated.
func (e *Engine) OnMetadataAvailable(ctx context.Context, territoryIDs []string) error {
	for _, id := range territoryIDs {
		e.markContentSignal(id)
	}
	return e.refreshManyOpts(ctx, territoryIDs, 0, RefreshOptions{PreserveDerived: true})
}
