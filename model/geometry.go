package model

import "math"

// EMUPerPoint is the number of English Metric Units in a typographic point.
const EMUPerPoint = 12700

// Rect is a placement in EMUs. Top grows downward, as on a slide.
type Rect struct {
	Left   int64 `json:"left"`
	Top    int64 `json:"top"`
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Right returns the right edge
func (r Rect) Right() int64 {
	return r.Left + r.Width
}

// Bottom returns the bottom edge
func (r Rect) Bottom() int64 {
	return r.Top + r.Height
}

// Offset returns r translated by (dx, dy).
func (r Rect) Offset(dx, dy int64) Rect {
	return Rect{Left: r.Left + dx, Top: r.Top + dy, Width: r.Width, Height: r.Height}
}

// Union returns the smallest rect containing both rects
func (r Rect) Union(other Rect) Rect {
	left := min64(r.Left, other.Left)
	top := min64(r.Top, other.Top)
	return Rect{
		Left:   left,
		Top:    top,
		Width:  max64(r.Right(), other.Right()) - left,
		Height: max64(r.Bottom(), other.Bottom()) - top,
	}
}

// AbsoluteGeometry composes a shape's group-relative geometry with its
// ancestor chain (outermost first) into slide coordinates.
//
// Each group maps its original child box onto its current box with a
// uniform scale (the smaller of the two axis ratios) and centers the result.
// A group whose original box is empty maps 1:1.
func AbsoluteGeometry(s *Shape, ancestors []*Shape) Rect {
	r := s.Geometry
	for i := len(ancestors) - 1; i >= 0; i-- {
		r = placeInGroup(ancestors[i], r)
	}
	return r
}

// placeInGroup maps a rect expressed relative to g's original box into g's
// parent coordinate space.
func placeInGroup(g *Shape, r Rect) Rect {
	box := g.Geometry
	var orig Rect
	if g.Group != nil {
		orig = g.Group.Original
	}
	scale := GroupScale(box, orig)

	padX := (float64(box.Width) - float64(orig.Width)*scale) / 2
	padY := (float64(box.Height) - float64(orig.Height)*scale) / 2
	if orig.Width <= 0 || orig.Height <= 0 {
		padX, padY = 0, 0
	}

	return Rect{
		Left:   box.Left + round(padX+float64(r.Left)*scale),
		Top:    box.Top + round(padY+float64(r.Top)*scale),
		Width:  round(float64(r.Width) * scale),
		Height: round(float64(r.Height) * scale),
	}
}

// GroupScale returns the uniform scale applied to a group's children when
// its original box orig is displayed at box.
func GroupScale(box, orig Rect) float64 {
	if orig.Width <= 0 || orig.Height <= 0 {
		return 1
	}
	sx := float64(box.Width) / float64(orig.Width)
	sy := float64(box.Height) / float64(orig.Height)
	return math.Min(sx, sy)
}

func round(v float64) int64 {
	return int64(math.Round(v))
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
