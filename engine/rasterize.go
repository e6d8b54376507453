package engine

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"

	"terrasync/typedef"
)

// RasterizeCanvas renders a pixel canvas to encoded PNG bytes, one opaque
// scale×scale cell per painted grid coordinate on a transparent background.
// It is a pure function of the canvas and touches no external state; cells
// with unparseable colors are skipped.
func RasterizeCanvas(canvas *typedef.PixelCanvas, scale int) ([]byte, error) {
	if canvas == nil || canvas.Width <= 0 || canvas.Height <= 0 {
		return nil, fmt.Errorf("cannot rasterize empty grid")
	}
	if scale <= 0 {
		scale = 1
	}

	base := image.NewNRGBA(image.Rect(0, 0, canvas.Width, canvas.Height))
	for _, p := range canvas.Pixels {
		if p.X < 0 || p.Y < 0 || p.X >= canvas.Width || p.Y >= canvas.Height {
			continue
		}
		c, ok := parseHexColor(p.Color)
		if !ok {
			continue
		}
		base.SetNRGBA(p.X, p.Y, c)
	}

	out := base
	if scale > 1 {
		scaled := image.NewNRGBA(image.Rect(0, 0, canvas.Width*scale, canvas.Height*scale))
		draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), base, base.Bounds(), draw.Src, nil)
		out = scaled
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode overlay png: %w", err)
	}
	return buf.Bytes(), nil
}

// parseHexColor parses #rgb, #rrggbb and #rrggbbaa strings. Cells are
// opaque unless the color carries an explicit alpha.
func parseHexColor(s string) (color.NRGBA, bool) {
	if len(s) == 0 || s[0] != '#' {
		return color.NRGBA{}, false
	}
	hex := s[1:]
	nib := func(c byte) (uint8, bool) {
		switch {
		case c >= '0' && c <= '9':
			return c - '0', true
		case c >= 'a' && c <= 'f':
			return c - 'a' + 10, true
		case c >= 'A' && c <= 'F':
			return c - 'A' + 10, true
		}
		return 0, false
	}
	byteAt := func(i int) (uint8, bool) {
		hi, ok1 := nib(hex[i])
		lo, ok2 := nib(hex[i+1])
		return hi<<4 | lo, ok1 && ok2
	}

	switch len(hex) {
	case 3:
		r, ok1 := nib(hex[0])
		g, ok2 := nib(hex[1])
		b, ok3 := nib(hex[2])
		if !ok1 || !ok2 || !ok3 {
			return color.NRGBA{}, false
		}
		return color.NRGBA{R: r * 17, G: g * 17, B: b * 17, A: 0xff}, true
	case 6:
		r, ok1 := byteAt(0)
		g, ok2 := byteAt(2)
		b, ok3 := byteAt(4)
		if !ok1 || !ok2 || !ok3 {
			return color.NRGBA{}, false
		}
		return color.NRGBA{R: r, G: g, B: b, A: 0xff}, true
	case 8:
		r, ok1 := byteAt(0)
		g, ok2 := byteAt(2)
		b, ok3 := byteAt(4)
		a, ok4 := byteAt(6)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return color.NRGBA{}, false
		}
		return color.NRGBA{R: r, G: g, B: b, A: a}, true
	}
	return color.NRGBA{}, false
}
