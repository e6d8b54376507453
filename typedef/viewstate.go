package typedef

// TerritoryViewState is the derived, ephemeral summary of how a territory
// should be represented on the rendering surface. It is recomputed on every
// reconciliation pass and never persisted.
type TerritoryViewState struct {
	HasContent   bool
	FillRatio    float64
	Sovereignty  Sovereignty
	ShouldRender bool
}

// DeriveViewState is the single authoritative formula for whether a
// territory shows art. Content existence is determined solely by the canvas
// pixel count, never by cached flags, and nothing renders without a
// confirmed owner. Nil inputs mean "no owner / no content".
//
// Every caller must go through this function; do not reimplement any part
// of it inline.
func DeriveViewState(t *Territory, c *PixelCanvas) TerritoryViewState {
	vs := TerritoryViewState{}
	if t != nil {
		vs.Sovereignty = t.Sovereignty
	}
	if c == nil || len(c.Pixels) == 0 {
		return vs
	}
	vs.HasContent = true
	if cells := c.Width * c.Height; cells > 0 {
		vs.FillRatio = float64(c.FilledCount) / float64(cells)
		if vs.FillRatio > 1 {
			vs.FillRatio = 1
		}
	}
	vs.ShouldRender = t.Owned()
	return vs
}
