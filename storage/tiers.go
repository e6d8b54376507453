package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"terrasync/typedef"
)

// LocalStore is the persistent local tier contract, satisfied by *CanvasDB.
type LocalStore interface {
	Get(ctx context.Context, territoryID string) (*typedef.PixelCanvas, bool, error)
	Put(ctx context.Context, canvas *typedef.PixelCanvas) error
	Delete(ctx context.Context, territoryID string) error
}

// RemoteCanvasStore is the authoritative tier contract, satisfied by the
// api client. A false second return means "no canvas yet", which is the
// common case and never an error.
type RemoteCanvasStore interface {
	GetCanvas(ctx context.Context, territoryID string) (*typedef.PixelCanvas, bool, error)
	PutCanvas(ctx context.Context, canvas *typedef.PixelCanvas) error
}

// TierStats counts tier activity since construction.
type TierStats struct {
	MemoryHits     int64
	PersistentHits int64
	RemoteFetches  int64
	RemoteMisses   int64
	RemoteFailures int64
	Saves          int64
	Invalidations  int64
}

// Tiers is the layered read-through canvas cache: memory, then persistent
// local store, then the authoritative remote store. Reads short-circuit on
// the first hit; writes go through every tier before reporting success.
type Tiers struct {
	memory *MemoryCache
	local  LocalStore
	remote RemoteCanvasStore
	logger *slog.Logger

	gridWidth  int
	gridHeight int

	statsMu sync.Mutex
	stats   TierStats
}

// NewTiers wires the three tiers together. gridWidth/gridHeight size the
// empty canvases synthesized on a full miss.
func NewTiers(memory *MemoryCache, local LocalStore, remote RemoteCanvasStore, gridWidth, gridHeight int, logger *slog.Logger) *Tiers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiers{
		memory:     memory,
		local:      local,
		remote:     remote,
		logger:     logger,
		gridWidth:  gridWidth,
		gridHeight: gridHeight,
	}
}

// Load returns the canvas for a territory, reading through the tiers. A
// territory with no stored canvas anywhere yields an empty canvas; remote
// failures degrade to the same empty canvas and are only logged, since "no
// canvas yet" is indistinguishable from "not propagated yet" for callers.
// forceRefresh bypasses the memory tier entirely.
func (t *Tiers) Load(ctx context.Context, territoryID string, forceRefresh bool) *typedef.PixelCanvas {
	if !forceRefresh {
		if canvas, ok := t.memory.Get(territoryID); ok {
			t.bump(func(s *TierStats) { s.MemoryHits++ })
			return canvas
		}
	}

	if canvas, ok, err := t.local.Get(ctx, territoryID); err == nil && ok {
		t.bump(func(s *TierStats) { s.PersistentHits++ })
		t.memory.Put(territoryID, canvas)
		return canvas
	} else if err != nil {
		t.logger.Debug("persistent canvas read failed", "territory", territoryID, "error", err)
	}

	canvas, ok, err := t.remote.GetCanvas(ctx, territoryID)
	switch {
	case err != nil:
		t.bump(func(s *TierStats) { s.RemoteFailures++ })
		t.logger.Debug("remote canvas fetch failed", "territory", territoryID, "error", err)
	case !ok:
		t.bump(func(s *TierStats) { s.RemoteMisses++ })
	default:
		t.bump(func(s *TierStats) { s.RemoteFetches++ })
		t.memory.Put(territoryID, canvas)
		if perr := t.local.Put(ctx, canvas); perr != nil {
			t.logger.Debug("persistent canvas write failed", "territory", territoryID, "error", perr)
		}
		return canvas
	}

	empty := typedef.NewPixelCanvas(territoryID, t.gridWidth, t.gridHeight)
	t.memory.Put(territoryID, empty)
	return empty
}

// Save writes the canvas through every tier unconditionally, so any caller
// sharing the persistent tier or the remote store observes the new state.
func (t *Tiers) Save(ctx context.Context, canvas *typedef.PixelCanvas) error {
	t.bump(func(s *TierStats) { s.Saves++ })
	t.memory.Put(canvas.TerritoryID, canvas)

	var errs []error
	if err := t.local.Put(ctx, canvas); err != nil {
		errs = append(errs, err)
	}
	if err := t.remote.PutCanvas(ctx, canvas); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Invalidate clears the memory and persistent tiers for a territory, so the
// next Load must consult the authoritative store.
func (t *Tiers) Invalidate(ctx context.Context, territoryID string) {
	t.bump(func(s *TierStats) { s.Invalidations++ })
	t.memory.Delete(territoryID)
	if err := t.local.Delete(ctx, territoryID); err != nil {
		t.logger.Debug("persistent canvas delete failed", "territory", territoryID, "error", err)
	}
}

// Stats returns a snapshot of tier counters.
func (t *Tiers) Stats() TierStats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.stats
}

func (t *Tiers) bump(f func(*TierStats)) {
	t.statsMu.Lock()
	f(&t.stats)
	t.statsMu.Unlock()
}

// SetMemoryClock overrides the memory tier's time source, used by tests to
// step through the freshness window without sleeping.
func (t *Tiers) SetMemoryClock(now func() time.Time) {
	t.memory.SetClock(now)
}
