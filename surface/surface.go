// Package surface declares the capabilities the engine consumes from the
// external rendering surface. The surface owns feature identity: its feature
// ids may change across reloads, and every mapping derived from it is a
// repairable cache, never a source of truth.
package surface

import (
	"terrasync/typedef"
)

// Well-known feature property keys.
const (
	PropTerritoryID = "territory" // declared domain id, set by the tile producer
	PropName        = "name"      // human-readable territory name
)

// Per-feature ephemeral flag keys published by the engine.
const (
	FlagHasContent  = "hasContent"
	FlagFillRatio   = "fillRatio"
	FlagSovereignty = "sovereignty"
)

// Feature is one raw feature as reported by the rendering surface.
type Feature struct {
	ID         string // native identifier, not stable across reloads
	Properties map[string]any
	Geometry   typedef.Geometry
}

// StringProp returns a string-typed property, or "" when absent or not a
// string.
func (f Feature) StringProp(key string) string {
	v, ok := f.Properties[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Collection is one currently-loaded feature collection.
type Collection struct {
	SurfaceID string
	Features  []Feature
}

// Surface is the rendering surface consumed as an opaque capability. All
// add/remove calls are keyed by caller-chosen resource ids; removing an
// absent resource is not an error, while adding a duplicate id is.
type Surface interface {
	// Collections enumerates every currently-loaded feature collection.
	Collections() []Collection

	// SetFeatureFlags merges flags into the ephemeral per-feature flag bag.
	SetFeatureFlags(surfaceID, featureID string, flags map[string]any)

	AddImage(imageID string, png []byte) error
	RemoveImage(imageID string) error

	// AddImageSource registers a geo-anchored source backed by a previously
	// added image, with corners in top-left, top-right, bottom-right,
	// bottom-left order.
	AddImageSource(sourceID, imageID string, corners [4]typedef.Coordinate) error
	RemoveSource(sourceID string) error

	// AddLayer registers an image-backed layer. A non-empty beforeLayerID
	// positions the new layer immediately below that layer.
	AddLayer(layerID, sourceID, beforeLayerID string) error
	RemoveLayer(layerID string) error
	HasLayer(layerID string) bool

	// Repaint asks the surface to composite a new frame.
	Repaint()

	ViewportBounds() typedef.Bounds

	// RenderedFeatures reports the features visible in the current viewport.
	RenderedFeatures() []Feature
}
