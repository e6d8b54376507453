package main

import (
	"terrasync/surface"
	"terrasync/typedef"
)

// inertSurface satisfies surface.Surface with no attached renderer. All
// resource operations succeed and report nothing as loaded, so the engine's
// overlay and publish steps become no-ops in headless mode.
type inertSurface struct{}

func (inertSurface) Collections() []surface.Collection             { return nil }
func (inertSurface) SetFeatureFlags(_, _ string, _ map[string]any) {}
func (inertSurface) AddImage(_ string, _ []byte) error             { return nil }
func (inertSurface) RemoveImage(_ string) error                    { return nil }
func (inertSurface) RemoveSource(_ string) error                   { return nil }
func (inertSurface) RemoveLayer(_ string) error                    { return nil }
func (inertSurface) HasLayer(_ string) bool                        { return false }
func (inertSurface) Repaint()                                      {}
func (inertSurface) ViewportBounds() typedef.Bounds                { return typedef.Bounds{} }
func (inertSurface) RenderedFeatures() []surface.Feature           { return nil }

func (inertSurface) AddImageSource(_, _ string, _ [4]typedef.Coordinate) error {
	return nil
}

func (inertSurface) AddLayer(_, _, _ string) error {
	return nil
}
