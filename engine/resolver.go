package engine

import (
	"log/slog"
	"strings"
	"unicode"

	"terrasync/surface"
	"terrasync/typedef"
)

// regionPrefix is the well-known namespace prefix some tile producers put
// in front of territory ids.
const regionPrefix = "region-"

// Resolver maps a domain territory id onto the rendering surface's current
// (surface, feature) identifier pair. The surface is authoritative over any
// cached mapping: feature ids change across reloads, and a stale mapping is
// silently overwritten, never reported as an error.
type Resolver struct {
	surface surface.Surface
	logger  *slog.Logger
}

// NewResolver creates a resolver scanning the given surface.
func NewResolver(s surface.Surface, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{surface: s, logger: logger}
}

// Resolve scans every loaded feature collection for the territory and, on a
// match, writes the pair back into the territory's mapping. Matching is
// tried in priority order across the whole surface: declared domain id,
// native feature id, namespace-normalized id, then slugified feature name.
// No match means "not yet available", reported as false.
func (r *Resolver) Resolve(t *typedef.Territory) (typedef.SurfaceMapping, bool) {
	cols := r.surface.Collections()

	match := func(pred func(surface.Feature) bool) (typedef.SurfaceMapping, bool) {
		for _, col := range cols {
			for _, f := range col.Features {
				if pred(f) {
					return typedef.SurfaceMapping{SurfaceID: col.SurfaceID, FeatureID: f.ID}, true
				}
			}
		}
		return typedef.SurfaceMapping{}, false
	}

	id := t.ID
	steps := []func(surface.Feature) bool{
		func(f surface.Feature) bool { return f.StringProp(surface.PropTerritoryID) == id },
		func(f surface.Feature) bool { return f.ID == id },
		func(f surface.Feature) bool {
			want := strings.TrimPrefix(id, regionPrefix)
			if stripped := strings.TrimPrefix(f.StringProp(surface.PropTerritoryID), regionPrefix); stripped != "" && stripped == want {
				return true
			}
			return strings.TrimPrefix(f.ID, regionPrefix) == want
		},
		func(f surface.Feature) bool { return Slugify(f.StringProp(surface.PropName)) == id },
	}

	for _, pred := range steps {
		if m, ok := match(pred); ok {
			if t.Mapping != nil && *t.Mapping != m {
				r.logger.Debug("repaired stale surface mapping",
					"territory", id, "old", t.Mapping.FeatureID, "new", m.FeatureID)
			}
			t.Mapping = &m
			return m, true
		}
	}
	return typedef.SurfaceMapping{}, false
}

// Synthesize builds a Territory from whatever the surface knows about the
// id, for territories the remote store has no record of yet. The mapping is
// established as a side effect. Reports false when no feature matches.
func (r *Resolver) Synthesize(territoryID string) (*typedef.Territory, bool) {
	t := &typedef.Territory{
		ID:     territoryID,
		Origin: typedef.FromSurfaceScan,
	}
	m, ok := r.Resolve(t)
	if !ok {
		return nil, false
	}

	for _, col := range r.surface.Collections() {
		if col.SurfaceID != m.SurfaceID {
			continue
		}
		for _, f := range col.Features {
			if f.ID == m.FeatureID {
				t.Geometry = f.Geometry
				if owner := f.StringProp("owner"); owner != "" {
					t.OwnerRef = owner
					t.Origin = typedef.Synthesized
				}
				if sov := f.StringProp(surface.FlagSovereignty); sov != "" {
					t.Sovereignty = typedef.ParseSovereignty(sov)
				}
				return t, true
			}
		}
	}
	return t, true
}

// Slugify normalizes a human-readable name for id comparison: lowercase,
// punctuation stripped, runs of whitespace collapsed to a single dash, and
// leading/trailing dashes trimmed.
func Slugify(name string) string {
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			pendingSep = true
		default:
			// punctuation is dropped without forcing a separator
		}
	}
	return b.String()
}
