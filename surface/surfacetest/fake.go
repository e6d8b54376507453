// Package surfacetest provides an in-memory Surface implementation for
// tests. It enforces the same duplicate-id rules a real rendering surface
// does and records every resource operation in order.
package surfacetest

import (
	"fmt"
	"sync"

	"terrasync/surface"
	"terrasync/typedef"
)

type sourceEntry struct {
	ImageID string
	Corners [4]typedef.Coordinate
}

type layerEntry struct {
	SourceID string
	Before   string
}

// Fake is an in-memory rendering surface.
type Fake struct {
	mu sync.Mutex

	collections []surface.Collection
	flags       map[string]map[string]any

	images  map[string][]byte
	sources map[string]sourceEntry
	layers  map[string]layerEntry

	viewport typedef.Bounds
	rendered []surface.Feature

	ops      []string
	repaints int

	// FailNextAddImage forces the next AddImage call to fail, for
	// transient-error paths.
	FailNextAddImage bool
}

// New creates an empty fake surface.
func New() *Fake {
	return &Fake{
		flags:   make(map[string]map[string]any),
		images:  make(map[string][]byte),
		sources: make(map[string]sourceEntry),
		layers:  make(map[string]layerEntry),
	}
}

// SetCollections replaces the loaded feature collections, simulating a
// surface reload.
func (f *Fake) SetCollections(cols ...surface.Collection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections = cols
}

// SetViewport sets the bounds reported by ViewportBounds.
func (f *Fake) SetViewport(b typedef.Bounds) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewport = b
}

// SetRendered sets the features reported as visible in the viewport.
func (f *Fake) SetRendered(feats ...surface.Feature) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rendered = feats
}

func (f *Fake) Collections() []surface.Collection {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]surface.Collection, len(f.collections))
	copy(out, f.collections)
	return out
}

func (f *Fake) SetFeatureFlags(surfaceID, featureID string, flags map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := surfaceID + "/" + featureID
	bag, ok := f.flags[key]
	if !ok {
		bag = make(map[string]any)
		f.flags[key] = bag
	}
	for k, v := range flags {
		bag[k] = v
	}
	f.ops = append(f.ops, "setFlags "+key)
}

// FeatureFlags returns a copy of the flag bag for one feature.
func (f *Fake) FeatureFlags(surfaceID, featureID string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	bag := f.flags[surfaceID+"/"+featureID]
	out := make(map[string]any, len(bag))
	for k, v := range bag {
		out[k] = v
	}
	return out
}

func (f *Fake) AddImage(imageID string, png []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNextAddImage {
		f.FailNextAddImage = false
		return fmt.Errorf("surface unavailable")
	}
	if _, exists := f.images[imageID]; exists {
		return fmt.Errorf("image %q already exists", imageID)
	}
	f.images[imageID] = png
	f.ops = append(f.ops, "addImage "+imageID)
	return nil
}

func (f *Fake) RemoveImage(imageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.images, imageID)
	f.ops = append(f.ops, "removeImage "+imageID)
	return nil
}

func (f *Fake) AddImageSource(sourceID, imageID string, corners [4]typedef.Coordinate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.sources[sourceID]; exists {
		return fmt.Errorf("source %q already exists", sourceID)
	}
	if _, ok := f.images[imageID]; !ok {
		return fmt.Errorf("source %q references missing image %q", sourceID, imageID)
	}
	f.sources[sourceID] = sourceEntry{ImageID: imageID, Corners: corners}
	f.ops = append(f.ops, "addSource "+sourceID)
	return nil
}

func (f *Fake) RemoveSource(sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sources, sourceID)
	f.ops = append(f.ops, "removeSource "+sourceID)
	return nil
}

func (f *Fake) AddLayer(layerID, sourceID, beforeLayerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.layers[layerID]; exists {
		return fmt.Errorf("layer %q already exists", layerID)
	}
	if _, ok := f.sources[sourceID]; !ok {
		return fmt.Errorf("layer %q references missing source %q", layerID, sourceID)
	}
	f.layers[layerID] = layerEntry{SourceID: sourceID, Before: beforeLayerID}
	f.ops = append(f.ops, "addLayer "+layerID)
	return nil
}

func (f *Fake) RemoveLayer(layerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.layers, layerID)
	f.ops = append(f.ops, "removeLayer "+layerID)
	return nil
}

func (f *Fake) HasLayer(layerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.layers[layerID]
	return ok
}

// AddBaseLayer registers a plain named layer with no source, standing in
// for a territory's base fill layer.
func (f *Fake) AddBaseLayer(layerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layers[layerID] = layerEntry{}
}

func (f *Fake) Repaint() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repaints++
	f.ops = append(f.ops, "repaint")
}

func (f *Fake) ViewportBounds() typedef.Bounds {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewport
}

func (f *Fake) RenderedFeatures() []surface.Feature {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]surface.Feature, len(f.rendered))
	copy(out, f.rendered)
	return out
}

// Ops returns a copy of the ordered operation log.
func (f *Fake) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ops))
	copy(out, f.ops)
	return out
}

// ResetOps clears the operation log.
func (f *Fake) ResetOps() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = nil
}

// Repaints returns how many repaints were requested.
func (f *Fake) Repaints() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.repaints
}

// ImageBytes returns the stored image payload, if any.
func (f *Fake) ImageBytes(imageID string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.images[imageID]
	return b, ok
}

// LayerBefore returns the before-layer the id was positioned under.
func (f *Fake) LayerBefore(layerID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.layers[layerID]
	return l.Before, ok
}

// SourceCorners returns the corners a source was anchored at.
func (f *Fake) SourceCorners(sourceID string) ([4]typedef.Coordinate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[sourceID]
	return s.Corners, ok
}

// Counts reports the live resource counts for idempotence assertions.
func (f *Fake) Counts() (images, sources, layers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.images), len(f.sources), len(f.layers)
}
