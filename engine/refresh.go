package engine

import (
	"context"
	"fmt"
	"sync"

	"terrasync/surface"
	"terrasync/typedef"
)

// RefreshOptions modifies a single reconciliation pass.
type RefreshOptions struct {
	// ForceRefresh bypasses the dedup gate and busts every cache tier
	// before loading.
	ForceRefresh bool
	// PreserveDerived keeps an earlier authoritative "has content" signal
	// from being overridden by this pass deriving hasContent=false, for
	// eventual-consistency windows where metadata lands before content.
	PreserveDerived bool
}

// Refresh runs one full reconciliation for a territory: load the record,
// load the canvas through the cache tiers, derive the view state, publish
// it to the rendering surface, and converge the overlay. A territory found
// nowhere is a debug-logged no-op, never an error; the surface may simply
// not have loaded that region yet.
func (e *Engine) Refresh(ctx context.Context, territoryID string, opts RefreshOptions) error {
	if territoryID == "" {
		return typedef.ErrTerritoryIDEmpty
	}

	// Dedup gate. A forced call runs even while a non-forced one is in
	// flight; only the call that claimed the slot releases it.
	claimed := e.inflight.TryAdd(territoryID)
	if !claimed && !opts.ForceRefresh {
		e.bump(func(s *Stats) { s.DedupSkips++ })
		return nil
	}
	if claimed {
		defer e.inflight.Remove(territoryID)
	}

	e.bump(func(s *Stats) { s.Refreshes++ })

	if opts.ForceRefresh {
		e.canvases.Invalidate(ctx, territoryID)
	}

	prev := e.cachedTerritory(territoryID)
	terr, err := e.loadTerritory(ctx, territoryID, prev)
	if err != nil {
		e.bump(func(s *Stats) { s.Failures++ })
		return err
	}
	if terr == nil {
		e.bump(func(s *Stats) { s.NotFound++ })
		e.logger.Debug("territory not found anywhere, skipping", "territory", territoryID)
		return nil
	}

	// Owner changes must never leak previous-owner content out of a cache
	// tier.
	if prev != nil && !opts.ForceRefresh {
		if prev.OwnerRef != terr.OwnerRef || prev.Sovereignty != terr.Sovereignty {
			e.canvases.Invalidate(ctx, territoryID)
		}
	}
	e.storeTerritory(terr)

	canvas := e.canvases.Load(ctx, territoryID, opts.ForceRefresh)

	vs := typedef.DeriveViewState(terr, canvas)
	preserved := false
	if !vs.HasContent && opts.PreserveDerived && e.contentSignalActive(territoryID) {
		// Metadata said this territory has content but the canvas has not
		// propagated yet; keep the flag up and leave any existing overlay
		// alone instead of flickering it away.
		vs.HasContent = true
		vs.ShouldRender = terr.Owned()
		preserved = true
	}

	e.publishViewState(terr, vs)

	if preserved {
		return nil
	}
	if vs.ShouldRender {
		e.bump(func(s *Stats) { s.OverlayShows++ })
		if err := e.overlay.Show(ctx, terr, canvas); err != nil {
			e.bump(func(s *Stats) { s.Failures++ })
			return err
		}
		return nil
	}
	e.bump(func(s *Stats) { s.OverlayHides++ })
	return e.overlay.Hide(ctx, territoryID)
}

// loadTerritory performs the tiered territory lookup: local registry,
// authoritative store, then a surface scan that synthesizes a record. A nil
// result with nil error is the "not found anywhere" outcome.
func (e *Engine) loadTerritory(ctx context.Context, territoryID string, prev *typedef.Territory) (*typedef.Territory, error) {
	remote, ok, err := e.territories.GetTerritory(ctx, territoryID)
	if err != nil {
		// Transient store trouble: fall back to the last-known record so a
		// glitch does not tear overlays down; the next pass retries.
		if prev != nil {
			e.logger.Debug("territory fetch failed, using cached record",
				"territory", territoryID, "error", err)
			return prev, nil
		}
		return nil, fmt.Errorf("failed to load territory %s: %w", territoryID, err)
	}
	if ok {
		// Carry the established mapping over; the store knows nothing
		// about surface feature ids.
		if prev != nil && prev.Mapping != nil {
			remote.Mapping = prev.Mapping
		}
		return remote, nil
	}

	if prev != nil {
		return prev, nil
	}

	if synth, found := e.resolver.Synthesize(territoryID); found {
		return synth, nil
	}
	return nil, nil
}

// publishViewState writes the derived flags into the surface's per-feature
// flag bag, resolving the mapping first if it is absent. Resolution failure
// skips publication silently; the region is not loaded yet. A freshly
// resolved mapping is written back to the registry so later passes reuse it.
func (e *Engine) publishViewState(t *typedef.Territory, vs typedef.TerritoryViewState) {
	mapping := t.Mapping
	if mapping == nil {
		m, ok := e.resolver.Resolve(t)
		if !ok {
			e.logger.Debug("no surface mapping, skipping publish", "territory", t.ID)
			return
		}
		mapping = &m
		e.storeTerritory(t)
	}
	e.surface.SetFeatureFlags(mapping.SurfaceID, mapping.FeatureID, map[string]any{
		surface.FlagHasContent:  vs.HasContent,
		surface.FlagFillRatio:   vs.FillRatio,
		surface.FlagSovereignty: vs.Sovereignty.String(),
	})
	e.bump(func(s *Stats) { s.Published++ })
}

// RefreshMany reconciles ids in fixed-size chunks, running each chunk's
// members concurrently and pausing between chunks to bound request rate
// against the remote store. A batchSize of zero or less uses the configured
// default. One bad territory never aborts its batch: failures are logged
// and the batch continues.
func (e *Engine) RefreshMany(ctx context.Context, territoryIDs []string, batchSize int) error {
	return e.refreshManyOpts(ctx, territoryIDs, batchSize, RefreshOptions{})
}

func (e *Engine) refreshManyOpts(ctx context.Context, territoryIDs []string, batchSize int, opts RefreshOptions) error {
	if batchSize <= 0 {
		batchSize = e.batchSize
	}
	for start := 0; start < len(territoryIDs); start += batchSize {
		end := start + batchSize
		if end > len(territoryIDs) {
			end = len(territoryIDs)
		}
		e.refreshChunk(ctx, territoryIDs[start:end], opts)

		if end < len(territoryIDs) {
			if err := e.clock.Sleep(ctx, e.batchDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// refreshChunk reconciles one chunk's members concurrently, isolating
// failures to their own id.
func (e *Engine) refreshChunk(ctx context.Context, ids []string, opts RefreshOptions) {
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := e.Refresh(ctx, id, opts); err != nil {
				e.logger.Warn("territory reconciliation failed", "territory", id, "error", err)
			}
		}(id)
	}
	wg.Wait()
}
