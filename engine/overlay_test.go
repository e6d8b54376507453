package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrasync/typedef"
)

func paintedTerritory(rig *testRig, id, owner string) {
	rig.store.putTerritory(&typedef.Territory{
		ID:          id,
		OwnerRef:    owner,
		Sovereignty: typedef.SovereigntyRuled,
		Geometry: typedef.Geometry{Rings: [][]typedef.Coordinate{
			{{Lng: -2, Lat: -2}, {Lng: 2, Lat: -2}, {Lng: 2, Lat: 2}, {Lng: -2, Lat: 2}},
		}},
	})
	canvas := typedef.NewPixelCanvas(id, 16, 16)
	canvas.SetPixel(typedef.Pixel{X: 0, Y: 0, Color: "#ff0000"})
	rig.store.putCanvas(canvas)
}

func TestShowBuildsOverlayInStrictOrder(t *testing.T) {
	rig := newTestRig(t)
	rig.addFeature("lowlands", "f-1", "oakhollow", "Oak Hollow")
	paintedTerritory(rig, "oakhollow", "guild:emberfall")

	require.NoError(t, rig.engine.Refresh(context.Background(), "oakhollow", RefreshOptions{}))

	images, sources, layers := rig.surface.Counts()
	assert.Equal(t, 1, images)
	assert.Equal(t, 1, sources)
	assert.Equal(t, 1, layers)

	want := []string{
		"setFlags lowlands/f-1",
		"removeLayer art-layer-oakhollow",
		"removeImage art-image-oakhollow",
		"removeSource art-source-oakhollow",
		"addImage art-image-oakhollow",
		"addSource art-source-oakhollow",
		"addLayer art-layer-oakhollow",
		"repaint",
		"repaint",
	}
	assert.Equal(t, want, rig.surface.Ops())

	corners, ok := rig.surface.SourceCorners("art-source-oakhollow")
	require.True(t, ok)
	assert.Equal(t, typedef.Coordinate{Lng: -2, Lat: 2}, corners[0], "top-left from geometry bbox")
	assert.Equal(t, typedef.Coordinate{Lng: -2, Lat: -2}, corners[3])
}

func TestShowIsIdempotentForUnchangedContent(t *testing.T) {
	rig := newTestRig(t)
	rig.addFeature("lowlands", "f-1", "oakhollow", "Oak Hollow")
	paintedTerritory(rig, "oakhollow", "guild:emberfall")

	ctx := context.Background()
	require.NoError(t, rig.engine.Refresh(ctx, "oakhollow", RefreshOptions{}))
	rig.surface.ResetOps()

	require.NoError(t, rig.engine.Refresh(ctx, "oakhollow", RefreshOptions{}))
	images, sources, layers := rig.surface.Counts()
	assert.Equal(t, 1, images, "exactly one overlay triple after repeated show")
	assert.Equal(t, 1, sources)
	assert.Equal(t, 1, layers)
	for _, op := range rig.surface.Ops() {
		assert.NotContains(t, op, "addImage", "unchanged content must not churn resources")
		assert.NotContains(t, op, "addLayer")
	}
}

func TestShowPositionsBelowBaseFillLayer(t *testing.T) {
	rig := newTestRig(t)
	rig.addFeature("lowlands", "f-1", "oakhollow", "Oak Hollow")
	rig.surface.AddBaseLayer("fill-oakhollow")
	paintedTerritory(rig, "oakhollow", "guild:emberfall")

	require.NoError(t, rig.engine.Refresh(context.Background(), "oakhollow", RefreshOptions{}))
	before, ok := rig.surface.LayerBefore("art-layer-oakhollow")
	require.True(t, ok)
	assert.Equal(t, "fill-oakhollow", before)
}

func TestShowFallsBackToUnpositionedAdd(t *testing.T) {
	rig := newTestRig(t)
	rig.addFeature("lowlands", "f-1", "oakhollow", "Oak Hollow")
	paintedTerritory(rig, "oakhollow", "guild:emberfall")

	require.NoError(t, rig.engine.Refresh(context.Background(), "oakhollow", RefreshOptions{}))
	before, ok := rig.surface.LayerBefore("art-layer-oakhollow")
	require.True(t, ok)
	assert.Empty(t, before, "missing base fill layer falls back to unpositioned add")
}

func TestUnownedTerritoryNeverRenders(t *testing.T) {
	rig := newTestRig(t)
	rig.addFeature("lowlands", "f-1", "driftmark", "Driftmark")
	paintedTerritory(rig, "driftmark", "") // non-empty canvas, no owner

	require.NoError(t, rig.engine.Refresh(context.Background(), "driftmark", RefreshOptions{}))

	images, sources, layers := rig.surface.Counts()
	assert.Zero(t, images, "ownership gate must win over canvas content")
	assert.Zero(t, sources)
	assert.Zero(t, layers)

	flags := rig.surface.FeatureFlags("lowlands", "f-1")
	assert.Equal(t, true, flags["hasContent"], "content flag still published")
}

func TestExplicitCanvasBoundsWinOverGeometry(t *testing.T) {
	rig := newTestRig(t)
	rig.addFeature("lowlands", "f-1", "oakhollow", "Oak Hollow")
	paintedTerritory(rig, "oakhollow", "guild:emberfall")

	canvas := typedef.NewPixelCanvas("oakhollow", 16, 16)
	canvas.SetPixel(typedef.Pixel{X: 0, Y: 0, Color: "#ff0000"})
	canvas.Bounds = &typedef.Bounds{West: 10, South: 20, East: 30, North: 40}
	rig.store.putCanvas(canvas)

	require.NoError(t, rig.engine.Refresh(context.Background(), "oakhollow", RefreshOptions{}))
	corners, ok := rig.surface.SourceCorners("art-source-oakhollow")
	require.True(t, ok)
	assert.Equal(t, typedef.Coordinate{Lng: 10, Lat: 40}, corners[0])
}

func TestHideRemovesOverlayAndRepaints(t *testing.T) {
	rig := newTestRig(t)
	rig.addFeature("lowlands", "f-1", "oakhollow", "Oak Hollow")
	paintedTerritory(rig, "oakhollow", "guild:emberfall")

	ctx := context.Background()
	require.NoError(t, rig.engine.Refresh(ctx, "oakhollow", RefreshOptions{}))

	// Content is wiped remotely; a forced refresh must tear the overlay down.
	rig.store.putCanvas(typedef.NewPixelCanvas("oakhollow", 16, 16))
	require.NoError(t, rig.engine.Refresh(ctx, "oakhollow", RefreshOptions{ForceRefresh: true}))

	images, sources, layers := rig.surface.Counts()
	assert.Zero(t, images)
	assert.Zero(t, sources)
	assert.Zero(t, layers)
}
