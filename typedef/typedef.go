package typedef

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTerritoryIDEmpty = errors.New("territory id cannot be empty")
)

// Sovereignty is the ownership status of a territory as recorded by the
// authoritative store.
type Sovereignty uint8

const (
	SovereigntyUnconquered Sovereignty = iota // No confirmed owner
	SovereigntyProtected                      // Owned, under protection window
	SovereigntyRuled                          // Owned and fully established
)

func (s Sovereignty) String() string {
	switch s {
	case SovereigntyProtected:
		return "protected"
	case SovereigntyRuled:
		return "ruled"
	default:
		return "unconquered"
	}
}

// ParseSovereignty maps a wire string onto a Sovereignty value. Unknown
// strings resolve to unconquered rather than erroring, since an unknown
// status must never cause content to render.
func ParseSovereignty(s string) Sovereignty {
	switch s {
	case "protected":
		return SovereigntyProtected
	case "ruled":
		return SovereigntyRuled
	default:
		return SovereigntyUnconquered
	}
}

// Provenance records where a Territory value was first constructed from.
// All origins are normalized into the same Territory shape, so downstream
// logic never branches on which fields happened to be present.
type Provenance uint8

const (
	FromRemoteStore Provenance = iota // Loaded from the authoritative store
	FromSurfaceScan                   // Built from a rendering-surface feature
	Synthesized                       // Built from partial data, neither source complete
)

// SurfaceMapping is where a territory currently lives on the rendering
// surface. Feature ids are not stable across surface reloads, so this pair
// is a cache that the resolver repairs, never a source of truth.
type SurfaceMapping struct {
	SurfaceID string
	FeatureID string
}

// Coordinate is a longitude/latitude pair.
type Coordinate struct {
	Lng float64
	Lat float64
}

// Geometry is a polygon or multipolygon boundary kept as coordinate rings.
// It is only used to derive bounds when a canvas carries no explicit bounds.
type Geometry struct {
	Rings [][]Coordinate
}

// IsEmpty reports whether the geometry has no coordinates at all.
func (g Geometry) IsEmpty() bool {
	for _, ring := range g.Rings {
		if len(ring) > 0 {
			return false
		}
	}
	return true
}

// BoundingBox walks every ring and returns the min/max extent. The second
// return value is false when the geometry is empty.
func (g Geometry) BoundingBox() (Bounds, bool) {
	var b Bounds
	found := false
	for _, ring := range g.Rings {
		for _, c := range ring {
			if !found {
				b = Bounds{West: c.Lng, South: c.Lat, East: c.Lng, North: c.Lat}
				found = true
				continue
			}
			if c.Lng < b.West {
				b.West = c.Lng
			}
			if c.Lng > b.East {
				b.East = c.Lng
			}
			if c.Lat < b.South {
				b.South = c.Lat
			}
			if c.Lat > b.North {
				b.North = c.Lat
			}
		}
	}
	return b, found
}

// Bounds is a geographic bounding box.
type Bounds struct {
	West  float64
	South float64
	East  float64
	North float64
}

// Corners returns the four corner coordinates in top-left, top-right,
// bottom-right, bottom-left order, the order geo-anchored image sources
// expect.
func (b Bounds) Corners() [4]Coordinate {
	return [4]Coordinate{
		{Lng: b.West, Lat: b.North},
		{Lng: b.East, Lat: b.North},
		{Lng: b.East, Lat: b.South},
		{Lng: b.West, Lat: b.South},
	}
}

// Territory is the canonical in-process representation of one region,
// regardless of which origin it was loaded from.
type Territory struct {
	ID          string
	OwnerRef    string // opaque owning-account ref, empty means unowned
	Sovereignty Sovereignty
	Mapping     *SurfaceMapping // nil until the resolver establishes it
	Geometry    Geometry
	Origin      Provenance
}

// Owned reports whether the territory has a confirmed owner. Content is
// never rendered for unowned territory, whatever its canvas holds.
func (t *Territory) Owned() bool {
	return t != nil && t.OwnerRef != ""
}

// Pixel is one colored cell of a territory's canvas.
type Pixel struct {
	X            int
	Y            int
	Color        string // #rrggbb
	LastEditor   string
	LastEditedAt time.Time
}

// PixelCanvas is the raster content of one territory. An empty canvas is a
// valid state meaning "no art yet", not an error.
type PixelCanvas struct {
	TerritoryID string
	Pixels      []Pixel
	FilledCount int
	Bounds      *Bounds // explicit geo bounds; nil means derive from geometry
	Width       int
	Height      int
}

// NewPixelCanvas creates an empty canvas with the given grid dimensions.
func NewPixelCanvas(territoryID string, width, height int) *PixelCanvas {
	return &PixelCanvas{
		TerritoryID: territoryID,
		Width:       width,
		Height:      height,
	}
}

// IsEmpty reports whether the canvas holds no painted cells.
func (c *PixelCanvas) IsEmpty() bool {
	return c == nil || len(c.Pixels) == 0
}

// SetPixel inserts or replaces the cell at the pixel's coordinate and keeps
// FilledCount in step with the pixel list.
func (c *PixelCanvas) SetPixel(p Pixel) {
	for i := range c.Pixels {
		if c.Pixels[i].X == p.X && c.Pixels[i].Y == p.Y {
			c.Pixels[i] = p
			return
		}
	}
	c.Pixels = append(c.Pixels, p)
	c.FilledCount = len(c.Pixels)
}

// Merge applies a delta of pixels on top of the current content.
func (c *PixelCanvas) Merge(delta []Pixel) {
	for _, p := range delta {
		c.SetPixel(p)
	}
	c.FilledCount = len(c.Pixels)
}

// Replace swaps the full pixel list, trusting an explicit filled count when
// one is given and falling back to the list length otherwise.
func (c *PixelCanvas) Replace(pixels []Pixel, trustedCount int) {
	c.Pixels = pixels
	if trustedCount > 0 {
		c.FilledCount = trustedCount
	} else {
		c.FilledCount = len(pixels)
	}
}

// Validate reports structural problems with a canvas. Used at the remote
// store boundary; internal constructors cannot produce invalid canvases.
func (c *PixelCanvas) Validate() error {
	if c.TerritoryID == "" {
		return ErrTerritoryIDEmpty
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid canvas dimensions %dx%d", c.Width, c.Height)
	}
	seen := make(map[[2]int]struct{}, len(c.Pixels))
	for _, p := range c.Pixels {
		if p.X < 0 || p.Y < 0 || p.X >= c.Width || p.Y >= c.Height {
			return fmt.Errorf("pixel (%d,%d) outside %dx%d grid", p.X, p.Y, c.Width, c.Height)
		}
		key := [2]int{p.X, p.Y}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate pixel at (%d,%d)", p.X, p.Y)
		}
		seen[key] = struct{}{}
	}
	return nil
}
