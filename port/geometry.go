package port

// Default node dimensions used when a surface does not report bounds.
const (
	DefaultNodeWidth  = 120
	DefaultNodeHeight = 40
)

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned node bounding box anchored at its top-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NodeRect returns the default-sized bounding box at position p.
func NodeRect(p Point) Rect {
	return Rect{X: p.X, Y: p.Y, Width: DefaultNodeWidth, Height: DefaultNodeHeight}
}

// Center returns the center point of r.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Anchor returns the midpoint of the side p sits on.
func (r Rect) Anchor(p Port) Point {
	c := r.Center()
	switch p {
	case Input:
		return Point{X: r.X, Y: c.Y}
	case Output:
		return Point{X: r.X + r.Width, Y: c.Y}
	case Top:
		return Point{X: c.X, Y: r.Y}
	case Bottom:
		return Point{X: c.X, Y: r.Y + r.Height}
	}
	return c
}
