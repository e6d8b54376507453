package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"terrasync/surface"
	"terrasync/typedef"
)

// Overlay resource id prefixes. One image/source/layer triple exists per
// territory, all derived from the territory id.
const (
	artImagePrefix  = "art-image-"
	artSourcePrefix = "art-source-"
	artLayerPrefix  = "art-layer-"

	// The base fill layer the overlay slots in under.
	fillLayerPrefix = "fill-"
)

// overlayManager owns the visual overlay lifecycle on the rendering
// surface: rasterizing canvases, the strict remove-then-add resource
// ordering, and repaint triggering. All operations are idempotent so a late
// completion from an outdated reconciliation is harmless.
type overlayManager struct {
	surface surface.Surface
	clock   Clock
	logger  *slog.Logger

	cellScale    int
	settleDelay  time.Duration
	repaintDelay time.Duration

	// Last rasterized payload per territory, to skip resource churn when
	// the content is unchanged.
	cacheMu    sync.Mutex
	imageCache map[string][]byte
}

func newOverlayManager(s surface.Surface, clock Clock, cellScale int, settle, repaint time.Duration, logger *slog.Logger) *overlayManager {
	return &overlayManager{
		surface:      s,
		clock:        clock,
		logger:       logger,
		cellScale:    cellScale,
		settleDelay:  settle,
		repaintDelay: repaint,
		imageCache:   make(map[string][]byte),
	}
}

// Show builds (or rebuilds) the overlay for a territory. Unowned territory
// is never rendered: the call degrades to Hide regardless of canvas
// contents.
func (om *overlayManager) Show(ctx context.Context, t *typedef.Territory, canvas *typedef.PixelCanvas) error {
	if !t.Owned() {
		return om.Hide(ctx, t.ID)
	}

	raster, err := RasterizeCanvas(canvas, om.cellScale)
	if err != nil {
		return fmt.Errorf("failed to rasterize territory %s: %w", t.ID, err)
	}

	bounds, ok := resolveBounds(t, canvas)
	if !ok {
		om.logger.Debug("no bounds available for overlay", "territory", t.ID)
		return nil
	}

	om.cacheMu.Lock()
	unchanged := bytes.Equal(om.imageCache[t.ID], raster)
	om.cacheMu.Unlock()
	if unchanged && om.surface.HasLayer(artLayerPrefix+t.ID) {
		return nil
	}

	// Strict replacement order: tear the whole triple down before adding
	// anything back, or the surface rejects the add as a duplicate.
	om.surface.RemoveLayer(artLayerPrefix + t.ID)
	om.surface.RemoveImage(artImagePrefix + t.ID)
	om.surface.RemoveSource(artSourcePrefix + t.ID)
	if err := om.clock.Sleep(ctx, om.settleDelay); err != nil {
		return err
	}

	if err := om.surface.AddImage(artImagePrefix+t.ID, raster); err != nil {
		return fmt.Errorf("failed to add overlay image for %s: %w", t.ID, err)
	}
	if err := om.surface.AddImageSource(artSourcePrefix+t.ID, artImagePrefix+t.ID, bounds.Corners()); err != nil {
		return fmt.Errorf("failed to add overlay source for %s: %w", t.ID, err)
	}

	before := fillLayerPrefix + t.ID
	if !om.surface.HasLayer(before) {
		before = ""
	}
	if err := om.surface.AddLayer(artLayerPrefix+t.ID, artSourcePrefix+t.ID, before); err != nil {
		return fmt.Errorf("failed to add overlay layer for %s: %w", t.ID, err)
	}

	om.cacheMu.Lock()
	om.imageCache[t.ID] = raster
	om.cacheMu.Unlock()

	// Some surfaces need a second nudge before the new overlay is
	// composited.
	om.surface.Repaint()
	if err := om.clock.Sleep(ctx, om.repaintDelay); err != nil {
		return err
	}
	om.surface.Repaint()
	return nil
}

// Hide removes the overlay triple for a territory. Each removal tolerates
// the resource already being absent.
func (om *overlayManager) Hide(_ context.Context, territoryID string) error {
	om.surface.RemoveLayer(artLayerPrefix + territoryID)
	om.surface.RemoveImage(artImagePrefix + territoryID)
	om.surface.RemoveSource(artSourcePrefix + territoryID)

	om.cacheMu.Lock()
	delete(om.imageCache, territoryID)
	om.cacheMu.Unlock()

	om.surface.Repaint()
	return nil
}

// resolveBounds prefers the canvas's explicit bounds and falls back to the
// bounding box of the territory geometry.
func resolveBounds(t *typedef.Territory, canvas *typedef.PixelCanvas) (typedef.Bounds, bool) {
	if canvas != nil && canvas.Bounds != nil {
		return *canvas.Bounds, true
	}
	return t.Geometry.BoundingBox()
}
