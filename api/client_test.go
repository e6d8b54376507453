package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrasync/typedef"
)

func TestClientGetTerritory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/territories/oakhollow":
			json.NewEncoder(w).Encode(TerritoryJSON{
				ID:          "oakhollow",
				Owner:       "guild:emberfall",
				Sovereignty: "ruled",
				Geometry:    [][][]float64{{{-3, 10}, {5, 12}, {1, -4}}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 16, 16, nil)

	terr, ok, err := client.GetTerritory(context.Background(), "oakhollow")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "guild:emberfall", terr.OwnerRef)
	assert.Equal(t, typedef.SovereigntyRuled, terr.Sovereignty)
	assert.Equal(t, typedef.FromRemoteStore, terr.Origin)
	require.Len(t, terr.Geometry.Rings, 1)
	assert.Equal(t, typedef.Coordinate{Lng: -3, Lat: 10}, terr.Geometry.Rings[0][0])

	_, ok, err = client.GetTerritory(context.Background(), "nowhere")
	require.NoError(t, err, "404 is an expected miss, not an error")
	assert.False(t, ok)
}

func TestClientCanvasRoundTrip(t *testing.T) {
	var stored CanvasJSON
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/canvases/"):
			require.NoError(t, json.NewDecoder(r.Body).Decode(&stored))
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/canvases/"):
			if stored.TerritoryID == "" {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode(stored)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 16, 16, nil)
	ctx := context.Background()

	_, ok, err := client.GetCanvas(ctx, "oakhollow")
	require.NoError(t, err)
	assert.False(t, ok, "no canvas yet is a miss")

	canvas := typedef.NewPixelCanvas("oakhollow", 16, 16)
	canvas.SetPixel(typedef.Pixel{X: 2, Y: 3, Color: "#a0b0c0", LastEditor: "painter"})
	require.NoError(t, client.PutCanvas(ctx, canvas))

	got, ok, err := client.GetCanvas(ctx, "oakhollow")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.FilledCount)
	assert.Equal(t, "#a0b0c0", got.Pixels[0].Color)
	assert.Equal(t, 16, got.Width)
}

func TestClientCanvasDefaultsAndValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No width/height and a pixel outside the default grid.
		json.NewEncoder(w).Encode(CanvasJSON{
			TerritoryID: "driftmark",
			Pixels:      []PixelJSON{{X: 40, Y: 0, Color: "#fff000"}},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 16, 16, nil)
	_, _, err := client.GetCanvas(context.Background(), "driftmark")
	assert.Error(t, err, "out-of-grid remote payload must be rejected")
}

func TestClientPaintedTerritoryIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "painted=true", r.URL.RawQuery)
		json.NewEncoder(w).Encode([]string{"oakhollow", "driftmark"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 16, 16, nil)
	ids, err := client.PaintedTerritoryIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"oakhollow", "driftmark"}, ids)
}

func TestFeedDeliversEventsAndStopsOnCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		conn.WriteJSON(Event{Type: EventTypeAck})
		conn.WriteJSON(Event{Type: EventTypeContentSaved, TerritoryID: "oakhollow"})
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	events := make(chan Event, 4)
	feed := NewFeed("ws"+strings.TrimPrefix(srv.URL, "http"), func(e Event) {
		events <- e
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	select {
	case e := <-events:
		assert.Equal(t, EventTypeContentSaved, e.Type, "acks are filtered out")
		assert.Equal(t, "oakhollow", e.TerritoryID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for feed event")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop on cancel")
	}
}
