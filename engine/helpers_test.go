package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"terrasync/storage"
	"terrasync/surface"
	"terrasync/surface/surfacetest"
	"terrasync/typedef"
)

// fakeClock records sleeps and returns immediately, so batch pacing and
// settle delays are observable without wall-clock waits.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// fakeStore is the authoritative remote store for tests: territory records
// and canvases, with hooks to block or fail reads.
type fakeStore struct {
	mu          sync.Mutex
	territories map[string]*typedef.Territory
	canvases    map[string]*typedef.PixelCanvas

	territoryGets int
	canvasGets    int

	gate            chan struct{} // blocks GetTerritory until closed
	failTerritories bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		territories: make(map[string]*typedef.Territory),
		canvases:    make(map[string]*typedef.PixelCanvas),
	}
}

func (f *fakeStore) putTerritory(t *typedef.Territory) {
	f.mu.Lock()
	f.territories[t.ID] = t
	f.mu.Unlock()
}

func (f *fakeStore) putCanvas(c *typedef.PixelCanvas) {
	f.mu.Lock()
	f.canvases[c.TerritoryID] = c
	f.mu.Unlock()
}

func (f *fakeStore) GetTerritory(_ context.Context, id string) (*typedef.Territory, bool, error) {
	f.mu.Lock()
	gate := f.gate
	f.territoryGets++
	fail := f.failTerritories
	t, ok := f.territories[id]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return nil, false, errors.New("store unavailable")
	}
	if !ok {
		return nil, false, nil
	}
	// Copies keep the engine's registry from aliasing store state.
	cp := *t
	return &cp, true, nil
}

func (f *fakeStore) GetCanvas(_ context.Context, id string) (*typedef.PixelCanvas, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canvasGets++
	c, ok := f.canvases[id]
	if !ok {
		return nil, false, nil
	}
	cp := *c
	return &cp, true, nil
}

func (f *fakeStore) PutCanvas(_ context.Context, c *typedef.PixelCanvas) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canvases[c.TerritoryID] = c
	return nil
}

func (f *fakeStore) counts() (territoryGets, canvasGets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.territoryGets, f.canvasGets
}

// memLocal is an in-memory stand-in for the persistent tier.
type memLocal struct {
	mu   sync.Mutex
	rows map[string]*typedef.PixelCanvas
}

func newMemLocal() *memLocal {
	return &memLocal{rows: make(map[string]*typedef.PixelCanvas)}
}

func (m *memLocal) Get(_ context.Context, id string) (*typedef.PixelCanvas, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	return c, ok, nil
}

func (m *memLocal) Put(_ context.Context, c *typedef.PixelCanvas) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[c.TerritoryID] = c
	return nil
}

func (m *memLocal) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

type testRig struct {
	engine  *Engine
	surface *surfacetest.Fake
	store   *fakeStore
	clock   *fakeClock
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	return newTestRigWith(t, nil)
}

// newTestRigWith builds a rig with an optional config adjustment applied
// before the engine is constructed.
func newTestRigWith(t *testing.T, tweak func(*Config)) *testRig {
	t.Helper()
	fakeSurface := surfacetest.New()
	store := newFakeStore()
	clock := newFakeClock()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tiers := storage.NewTiers(storage.NewMemoryCache(30*time.Second), newMemLocal(), store, 16, 16, logger)
	tiers.SetMemoryClock(clock.Now)

	cfg := Config{
		Surface:               fakeSurface,
		Territories:           store,
		Canvases:              tiers,
		Clock:                 clock,
		Logger:                logger,
		CellScale:             8,
		BatchDelay:            250 * time.Millisecond,
		IdleDelay:             500 * time.Millisecond,
		SettleDelay:           50 * time.Millisecond,
		RepaintDelay:          120 * time.Millisecond,
		PreserveContentWindow: 90 * time.Second,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return &testRig{engine: eng, surface: fakeSurface, store: store, clock: clock}
}

// addFeature registers one surface feature for a territory id.
func (r *testRig) addFeature(surfaceID, featureID, domainID, name string) {
	r.surface.SetCollections(surface.Collection{
		SurfaceID: surfaceID,
		Features: []surface.Feature{{
			ID: featureID,
			Properties: map[string]any{
				surface.PropTerritoryID: domainID,
				surface.PropName:        name,
			},
			Geometry: typedef.Geometry{Rings: [][]typedef.Coordinate{
				{{Lng: -1, Lat: -1}, {Lng: 1, Lat: -1}, {Lng: 1, Lat: 1}, {Lng: -1, Lat: 1}},
			}},
		}},
	})
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
