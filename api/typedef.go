package api

import (
	"time"

	"terrasync/typedef"
)

// Event types delivered over the store's websocket feed
type EventType string

const (
	// Content and ownership changes pushed by the store
	EventTypeContentSaved      EventType = "content_saved"
	EventTypeOwnershipChanged  EventType = "ownership_changed"
	EventTypeMetadataAvailable EventType = "metadata_available"

	// Client/session events relayed through the same feed
	EventTypeTerritorySelected EventType = "territory_selected"
	EventTypeLayerAdded        EventType = "layer_added"

	// Connection bookkeeping
	EventTypeAck EventType = "ack"
)

// Event is one message from the store's websocket feed.
type Event struct {
	Type        EventType `json:"type"`
	TerritoryID string    `json:"territoryId,omitempty"`
	// TerritoryIDs carries the id list for bulk events (layer_added,
	// metadata_available).
	TerritoryIDs []string  `json:"territoryIds,omitempty"`
	ForceRefresh bool      `json:"forceRefresh,omitempty"`
	Revision     int64     `json:"revision,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// TerritoryJSON is the territory record wire format.
type TerritoryJSON struct {
	ID          string        `json:"id"`
	Owner       string        `json:"owner,omitempty"`
	Sovereignty string        `json:"sovereignty"`
	Geometry    [][][]float64 `json:"geometry,omitempty"` // rings of [lng, lat] pairs
}

// PixelJSON is one canvas cell on the wire.
type PixelJSON struct {
	X        int       `json:"x"`
	Y        int       `json:"y"`
	Color    string    `json:"color"`
	Editor   string    `json:"editor,omitempty"`
	EditedAt time.Time `json:"editedAt,omitempty"`
}

// BoundsJSON is an explicit geo bounding box on the wire.
type BoundsJSON struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// CanvasJSON is the pixel canvas wire format.
type CanvasJSON struct {
	TerritoryID string      `json:"territoryId"`
	Pixels      []PixelJSON `json:"pixels"`
	FilledCount int         `json:"filledCount,omitempty"`
	Bounds      *BoundsJSON `json:"bounds,omitempty"`
	Width       int         `json:"width,omitempty"`
	Height      int         `json:"height,omitempty"`
}

// ToTerritory normalizes a wire record into the canonical Territory shape.
func (tj TerritoryJSON) ToTerritory() *typedef.Territory {
	t := &typedef.Territory{
		ID:          tj.ID,
		OwnerRef:    tj.Owner,
		Sovereignty: typedef.ParseSovereignty(tj.Sovereignty),
		Origin:      typedef.FromRemoteStore,
	}
	for _, ring := range tj.Geometry {
		coords := make([]typedef.Coordinate, 0, len(ring))
		for _, pair := range ring {
			if len(pair) < 2 {
				continue
			}
			coords = append(coords, typedef.Coordinate{Lng: pair[0], Lat: pair[1]})
		}
		t.Geometry.Rings = append(t.Geometry.Rings, coords)
	}
	return t
}

// FromTerritory converts a canonical Territory back to the wire format.
func FromTerritory(t *typedef.Territory) TerritoryJSON {
	tj := TerritoryJSON{
		ID:          t.ID,
		Owner:       t.OwnerRef,
		Sovereignty: t.Sovereignty.String(),
	}
	for _, ring := range t.Geometry.Rings {
		pairs := make([][]float64, 0, len(ring))
		for _, c := range ring {
			pairs = append(pairs, []float64{c.Lng, c.Lat})
		}
		tj.Geometry = append(tj.Geometry, pairs)
	}
	return tj
}

// ToCanvas normalizes a wire canvas, falling back to the provided default
// grid dimensions when the record carries none.
func (cj CanvasJSON) ToCanvas(defaultWidth, defaultHeight int) *typedef.PixelCanvas {
	width, height := cj.Width, cj.Height
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	canvas := typedef.NewPixelCanvas(cj.TerritoryID, width, height)
	pixels := make([]typedef.Pixel, 0, len(cj.Pixels))
	for _, p := range cj.Pixels {
		pixels = append(pixels, typedef.Pixel{
			X:            p.X,
			Y:            p.Y,
			Color:        p.Color,
			LastEditor:   p.Editor,
			LastEditedAt: p.EditedAt,
		})
	}
	canvas.Replace(pixels, cj.FilledCount)
	if cj.Bounds != nil {
		canvas.Bounds = &typedef.Bounds{
			West:  cj.Bounds.West,
			South: cj.Bounds.South,
			East:  cj.Bounds.East,
			North: cj.Bounds.North,
		}
	}
	return canvas
}

// FromCanvas converts a canonical canvas back to the wire format.
func FromCanvas(c *typedef.PixelCanvas) CanvasJSON {
	cj := CanvasJSON{
		TerritoryID: c.TerritoryID,
		FilledCount: c.FilledCount,
		Width:       c.Width,
		Height:      c.Height,
	}
	for _, p := range c.Pixels {
		cj.Pixels = append(cj.Pixels, PixelJSON{
			X:        p.X,
			Y:        p.Y,
			Color:    p.Color,
			Editor:   p.LastEditor,
			EditedAt: p.LastEditedAt,
		})
	}
	if c.Bounds != nil {
		cj.Bounds = &BoundsJSON{
			West:  c.Bounds.West,
			South: c.Bounds.South,
			East:  c.Bounds.East,
			North: c.Bounds.North,
		}
	}
	return cj
}
