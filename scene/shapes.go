package scene

import (
	"math"

	"github.com/gogpu/stage"
)

// Shadow describes a drop shadow. A zero Shadow (alpha 0) is disabled.
type Shadow struct {
	Color   stage.RGBA
	Blur    float64
	OffsetX float64
	OffsetY float64
}

// Enabled reports whether the shadow should be drawn.
func (s Shadow) Enabled() bool {
	return s.Color.A > 0 && s.Blur >= 0
}

// LineCap is the stroke end-cap style for line segments.
type LineCap uint8

const (
	CapButt LineCap = iota
	CapRound
	CapSquare
)

// RectNode is a filled and/or stroked rounded rectangle with its origin
// at the top-left corner of the box.
type RectNode struct {
	Base

	Width, Height float64

	// CornerRadius is clamped to half the smaller box dimension.
	CornerRadius float64

	// Fill is drawn when its alpha is non-zero.
	Fill stage.RGBA

	// Stroke is drawn when StrokeWidth > 0 and its alpha is non-zero.
	Stroke      stage.RGBA
	StrokeWidth float64

	Shadow Shadow
}

// NewRect creates a rectangle node of the given size.
func NewRect(w, h float64) *RectNode {
	return &RectNode{Base: NewBase(), Width: w, Height: h}
}

func (*RectNode) node() {}

// LocalBounds returns the box, expanded by half the stroke width when
// stroked (strokes straddle the outline).
func (n *RectNode) LocalBounds() stage.Rect {
	r := stage.Rect{MinX: 0, MinY: 0, MaxX: n.Width, MaxY: n.Height}
	if n.StrokeWidth > 0 && n.Stroke.A > 0 {
		r = r.Expand(n.StrokeWidth / 2)
	}
	return r
}

// Radius returns the corner radius clamped to the box.
func (n *RectNode) Radius() float64 {
	max := math.Min(n.Width, n.Height) / 2
	return math.Min(math.Max(n.CornerRadius, 0), max)
}

// LineNode is a straight segment from the node origin to (X2, Y2) in
// local space.
type LineNode struct {
	Base

	X2, Y2 float64

	Color stage.RGBA
	Width float64
	Cap   LineCap

	// Dash is an on/off pattern in local units; empty means solid.
	Dash []float64
}

// NewLine creates a line node ending at (x2, y2).
func NewLine(x2, y2 float64) *LineNode {
	return &LineNode{Base: NewBase(), X2: x2, Y2: y2, Width: 1}
}

func (*LineNode) node() {}

// LocalBounds returns the segment box expanded by half the line width.
func (n *LineNode) LocalBounds() stage.Rect {
	r := stage.NewRect(stage.Pt(0, 0), stage.Pt(n.X2, n.Y2))
	w := n.Width
	if w <= 0 {
		w = 1
	}
	return r.Expand(w / 2)
}

// ArcNode is a circular arc centered on the node origin.
// Angles are in radians; Anticlockwise selects the winding, matching
// the 2D canvas convention.
type ArcNode struct {
	Base

	Radius     float64
	StartAngle float64
	EndAngle   float64

	Anticlockwise bool

	Stroke      stage.RGBA
	StrokeWidth float64

	// Fill, when set, fills the pie wedge.
	Fill stage.RGBA
}

// NewArc creates an arc node.
func NewArc(radius, start, end float64) *ArcNode {
	return &ArcNode{Base: NewBase(), Radius: radius, StartAngle: start, EndAngle: end, StrokeWidth: 1}
}

func (*ArcNode) node() {}

// LocalBounds returns the exact box of the swept arc: the two endpoints
// plus every axis-crossing angle inside the sweep, expanded by half the
// stroke width.
func (n *ArcNode) LocalBounds() stage.Rect {
	start, sweep := n.normalizedSweep()

	r := stage.EmptyRect()
	for _, a := range []float64{0, sweep} {
		r = r.UnionPoint(n.Radius*math.Cos(start+a), n.Radius*math.Sin(start+a))
	}
	// Axis crossings at multiples of π/2 inside the sweep.
	first := math.Ceil(start/(math.Pi/2)) * (math.Pi / 2)
	for a := first; a <= start+sweep; a += math.Pi / 2 {
		r = r.UnionPoint(n.Radius*math.Cos(a), n.Radius*math.Sin(a))
	}
	if n.Fill.A > 0 {
		r = r.UnionPoint(0, 0)
	}
	if n.StrokeWidth > 0 && n.Stroke.A > 0 {
		r = r.Expand(n.StrokeWidth / 2)
	}
	return r
}

// normalizedSweep returns the arc as a positive sweep from a start
// angle, independent of winding.
func (n *ArcNode) normalizedSweep() (start, sweep float64) {
	start, end := n.StartAngle, n.EndAngle
	if n.Anticlockwise {
		start, end = end, start
	}
	sweep = math.Mod(end-start, 2*math.Pi)
	if sweep < 0 {
		sweep += 2 * math.Pi
	}
	if sweep == 0 && end != start {
		sweep = 2 * math.Pi
	}
	return start, sweep
}

// Verb is a path construction step.
type Verb uint8

const (
	VerbMoveTo Verb = iota
	VerbLineTo
	VerbQuadTo
	VerbCubicTo
	VerbClose
)

// PathNode is an open or closed Bézier path with quadratic and cubic
// segments.
//
// The path is stored as a verb list with packed points, one point for
// MoveTo/LineTo, two for QuadTo, three for CubicTo, none for Close.
type PathNode struct {
	Base

	Verbs  []Verb
	Points []stage.Point

	Fill        stage.RGBA
	Stroke      stage.RGBA
	StrokeWidth float64
}

// NewPath creates an empty path node.
func NewPath() *PathNode {
	return &PathNode{Base: NewBase()}
}

func (*PathNode) node() {}

// MoveTo starts a new subpath at (x, y).
func (n *PathNode) MoveTo(x, y float64) *PathNode {
	n.Verbs = append(n.Verbs, VerbMoveTo)
	n.Points = append(n.Points, stage.Pt(x, y))
	return n
}

// LineTo adds a straight segment to (x, y).
func (n *PathNode) LineTo(x, y float64) *PathNode {
	n.Verbs = append(n.Verbs, VerbLineTo)
	n.Points = append(n.Points, stage.Pt(x, y))
	return n
}

// QuadTo adds a quadratic segment with control (cx, cy) ending at (x, y).
func (n *PathNode) QuadTo(cx, cy, x, y float64) *PathNode {
	n.Verbs = append(n.Verbs, VerbQuadTo)
	n.Points = append(n.Points, stage.Pt(cx, cy), stage.Pt(x, y))
	return n
}

// CubicTo adds a cubic segment with controls (c1x, c1y), (c2x, c2y)
// ending at (x, y).
func (n *PathNode) CubicTo(c1x, c1y, c2x, c2y, x, y float64) *PathNode {
	n.Verbs = append(n.Verbs, VerbCubicTo)
	n.Points = append(n.Points, stage.Pt(c1x, c1y), stage.Pt(c2x, c2y), stage.Pt(x, y))
	return n
}

// Close closes the current subpath.
func (n *PathNode) Close() *PathNode {
	n.Verbs = append(n.Verbs, VerbClose)
	return n
}

// LocalBounds returns the analytic bounding box of the path. Curve
// segments contribute their derivative extrema, not their control
// hulls.
func (n *PathNode) LocalBounds() stage.Rect {
	r := stage.EmptyRect()
	var cur, first stage.Point
	pi := 0
	for _, v := range n.Verbs {
		switch v {
		case VerbMoveTo:
			cur = n.Points[pi]
			first = cur
			r = r.UnionPoint(cur.X, cur.Y)
			pi++
		case VerbLineTo:
			p := n.Points[pi]
			r = r.UnionPoint(p.X, p.Y)
			cur = p
			pi++
		case VerbQuadTo:
			q := stage.Quad{P0: cur, P1: n.Points[pi], P2: n.Points[pi+1]}
			r = r.Union(q.Bounds())
			cur = q.P2
			pi += 2
		case VerbCubicTo:
			c := stage.Cubic{P0: cur, P1: n.Points[pi], P2: n.Points[pi+1], P3: n.Points[pi+2]}
			r = r.Union(c.Bounds())
			cur = c.P3
			pi += 3
		case VerbClose:
			cur = first
		}
	}
	if n.StrokeWidth > 0 && n.Stroke.A > 0 {
		r = r.Expand(n.StrokeWidth / 2)
	}
	return r
}

// ParticlesNode holds a flat list of point sprites. Particles have no
// per-particle transform hierarchy; the node's own transform applies to
// all of them.
type ParticlesNode struct {
	Base

	Particles []Particle
}

// Particle is a single point sprite.
type Particle struct {
	X, Y float64

	// Size is the sprite's edge length; sprites are drawn as circles
	// inscribed in the size × size box centered on (X, Y).
	Size float64

	Color    stage.RGBA
	Opacity  float64
	Rotation float64
}

// NewParticles creates an empty particle system node.
func NewParticles() *ParticlesNode {
	return &ParticlesNode{Base: NewBase()}
}

func (*ParticlesNode) node() {}

// LocalBounds returns the union of all particle boxes.
func (n *ParticlesNode) LocalBounds() stage.Rect {
	r := stage.EmptyRect()
	for i := range n.Particles {
		p := &n.Particles[i]
		h := p.Size / 2
		r = r.Union(stage.Rect{
			MinX: p.X - h, MinY: p.Y - h,
			MaxX: p.X + h, MaxY: p.Y + h,
		})
	}
	return r
}
