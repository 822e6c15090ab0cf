package stage

import "math"

// Line is a straight segment between two points.
type Line struct {
	P0, P1 Point
}

// Eval returns the point at parameter t in [0, 1].
func (l Line) Eval(t float64) Point {
	return Point{
		X: l.P0.X + (l.P1.X-l.P0.X)*t,
		Y: l.P0.Y + (l.P1.Y-l.P0.Y)*t,
	}
}

// Bounds returns the axis-aligned bounding box of the segment.
func (l Line) Bounds() Rect {
	return NewRect(l.P0, l.P1)
}

// Quad is a quadratic Bézier curve.
type Quad struct {
	P0, P1, P2 Point
}

// Eval returns the point at parameter t in [0, 1].
func (q Quad) Eval(t float64) Point {
	u := 1 - t
	return Point{
		X: u*u*q.P0.X + 2*u*t*q.P1.X + t*t*q.P2.X,
		Y: u*u*q.P0.Y + 2*u*t*q.P1.Y + t*t*q.P2.Y,
	}
}

// Bounds returns the exact bounding box of the curve.
//
// The box is computed analytically: the derivative of a quadratic is
// linear, so each axis has at most one interior extremum at
// t = (p0-p1) / (p0 - 2p1 + p2). Endpoints plus interior extrema cover
// every candidate; no sampling is involved.
func (q Quad) Bounds() Rect {
	r := NewRect(q.P0, q.P2)

	if t, ok := quadExtremum(q.P0.X, q.P1.X, q.P2.X); ok {
		p := q.Eval(t)
		r = r.UnionPoint(p.X, p.Y)
	}
	if t, ok := quadExtremum(q.P0.Y, q.P1.Y, q.P2.Y); ok {
		p := q.Eval(t)
		r = r.UnionPoint(p.X, p.Y)
	}
	return r
}

// quadExtremum returns the interior parameter where the quadratic's
// derivative along one axis vanishes, if it lies in (0, 1).
func quadExtremum(p0, p1, p2 float64) (float64, bool) {
	denom := p0 - 2*p1 + p2
	if denom == 0 {
		return 0, false
	}
	t := (p0 - p1) / denom
	if t <= 0 || t >= 1 {
		return 0, false
	}
	return t, true
}

// Cubic is a cubic Bézier curve.
type Cubic struct {
	P0, P1, P2, P3 Point
}

// Eval returns the point at parameter t in [0, 1].
func (c Cubic) Eval(t float64) Point {
	u := 1 - t
	return Point{
		X: u*u*u*c.P0.X + 3*u*u*t*c.P1.X + 3*u*t*t*c.P2.X + t*t*t*c.P3.X,
		Y: u*u*u*c.P0.Y + 3*u*u*t*c.P1.Y + 3*u*t*t*c.P2.Y + t*t*t*c.P3.Y,
	}
}

// Bounds returns the exact bounding box of the curve.
//
// The derivative of a cubic is a quadratic, so each axis contributes up
// to two interior extrema from the quadratic formula. Endpoints plus
// extrema give the exact box, including tangent points that dense
// sampling would miss.
func (c Cubic) Bounds() Rect {
	r := NewRect(c.P0, c.P3)

	for _, t := range cubicExtrema(c.P0.X, c.P1.X, c.P2.X, c.P3.X) {
		p := c.Eval(t)
		r = r.UnionPoint(p.X, p.Y)
	}
	for _, t := range cubicExtrema(c.P0.Y, c.P1.Y, c.P2.Y, c.P3.Y) {
		p := c.Eval(t)
		r = r.UnionPoint(p.X, p.Y)
	}
	return r
}

// cubicExtrema returns the interior parameters in (0, 1) where the
// cubic's derivative along one axis vanishes.
//
// The derivative is 3(at² + bt + c) with
//
//	a = -p0 + 3p1 - 3p2 + p3
//	b = 2(p0 - 2p1 + p2)
//	c = p1 - p0
func cubicExtrema(p0, p1, p2, p3 float64) []float64 {
	a := -p0 + 3*p1 - 3*p2 + p3
	b := 2 * (p0 - 2*p1 + p2)
	cc := p1 - p0

	var roots []float64
	if math.Abs(a) < 1e-12 {
		// Degenerates to a linear derivative.
		if b != 0 {
			roots = append(roots, -cc/b)
		}
	} else {
		disc := b*b - 4*a*cc
		if disc >= 0 {
			sq := math.Sqrt(disc)
			roots = append(roots, (-b+sq)/(2*a), (-b-sq)/(2*a))
		}
	}

	out := roots[:0]
	for _, t := range roots {
		if t > 0 && t < 1 {
			out = append(out, t)
		}
	}
	return out
}
