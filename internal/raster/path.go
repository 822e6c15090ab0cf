package raster

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"

	"github.com/gogpu/stage"
)

// flattenTolerance bounds the chord error when curves are flattened to
// polylines, in local units.
const flattenTolerance = 0.25

// Path is a sequence of contours built from move/line/curve commands.
// Curves are flattened on append.
type Path struct {
	contours [][]stage.Point
	start    stage.Point
	open     bool
}

func (p *Path) current() stage.Point {
	c := p.contours[len(p.contours)-1]
	return c[len(c)-1]
}

func (p *Path) append(pt stage.Point) {
	i := len(p.contours) - 1
	p.contours[i] = append(p.contours[i], pt)
}

// MoveTo starts a new contour.
func (p *Path) MoveTo(x, y float64) {
	p.start = stage.Pt(x, y)
	p.contours = append(p.contours, []stage.Point{p.start})
	p.open = true
}

// LineTo appends a straight segment. A leading LineTo acts as MoveTo.
func (p *Path) LineTo(x, y float64) {
	if !p.open {
		p.MoveTo(x, y)
		return
	}
	p.append(stage.Pt(x, y))
}

// QuadTo appends a quadratic segment through control point (cx, cy).
func (p *Path) QuadTo(cx, cy, x, y float64) {
	if !p.open {
		p.MoveTo(x, y)
		return
	}
	q := stage.Quad{P0: p.current(), P1: stage.Pt(cx, cy), P2: stage.Pt(x, y)}
	for _, pt := range flattenQuad(q) {
		p.append(pt)
	}
}

// CubeTo appends a cubic segment through two control points.
func (p *Path) CubeTo(c1x, c1y, c2x, c2y, x, y float64) {
	if !p.open {
		p.MoveTo(x, y)
		return
	}
	cu := stage.Cubic{
		P0: p.current(),
		P1: stage.Pt(c1x, c1y),
		P2: stage.Pt(c2x, c2y),
		P3: stage.Pt(x, y),
	}
	for _, pt := range flattenCubic(cu) {
		p.append(pt)
	}
}

// Close closes the current contour back to its starting point.
func (p *Path) Close() {
	if p.open {
		p.append(p.start)
	}
}

func flattenQuad(q stage.Quad) []stage.Point {
	n := curveSteps(q.P0, q.P1, q.P1, q.P2)
	pts := make([]stage.Point, 0, n)
	for i := 1; i <= n; i++ {
		pts = append(pts, q.Eval(float64(i)/float64(n)))
	}
	return pts
}

func flattenCubic(c stage.Cubic) []stage.Point {
	n := curveSteps(c.P0, c.P1, c.P2, c.P3)
	pts := make([]stage.Point, 0, n)
	for i := 1; i <= n; i++ {
		pts = append(pts, c.Eval(float64(i)/float64(n)))
	}
	return pts
}

// curveSteps picks a flattening step count from the control polygon
// length against the chord tolerance.
func curveSteps(p0, p1, p2, p3 stage.Point) int {
	poly := p1.Sub(p0).Length() + p2.Sub(p1).Length() + p3.Sub(p2).Length()
	n := int(math.Ceil(math.Sqrt(poly / flattenTolerance)))
	if n < 1 {
		n = 1
	}
	if n > 256 {
		n = 256
	}
	return n
}

// FillPath fills the path's contours (non-zero winding) under the
// current transform.
func (c *Canvas) FillPath(p *Path, col stage.RGBA) {
	top := c.cur()
	col.A *= top.opacity
	if col.A <= 0 || len(p.contours) == 0 {
		return
	}

	// Transform to device space and collect the covered region.
	dev := make([][]stage.Point, 0, len(p.contours))
	bounds := stage.EmptyRect()
	for _, contour := range p.contours {
		if len(contour) < 2 {
			continue
		}
		out := make([]stage.Point, len(contour))
		for i, pt := range contour {
			out[i] = top.m.TransformPoint(pt)
			bounds = bounds.UnionPoint(out[i].X, out[i].Y)
		}
		dev = append(dev, out)
	}
	if bounds.IsEmpty() {
		return
	}

	ib := c.img.Bounds()
	x0 := int(math.Max(math.Floor(bounds.MinX)-1, float64(ib.Min.X)))
	y0 := int(math.Max(math.Floor(bounds.MinY)-1, float64(ib.Min.Y)))
	x1 := int(math.Min(math.Ceil(bounds.MaxX)+1, float64(ib.Max.X)))
	y1 := int(math.Min(math.Ceil(bounds.MaxY)+1, float64(ib.Max.Y)))
	if x1 <= x0 || y1 <= y0 {
		return
	}

	ras := vector.NewRasterizer(x1-x0, y1-y0)
	ras.DrawOp = draw.Over
	for _, contour := range dev {
		ras.MoveTo(float32(contour[0].X-float64(x0)), float32(contour[0].Y-float64(y0)))
		for _, pt := range contour[1:] {
			ras.LineTo(float32(pt.X-float64(x0)), float32(pt.Y-float64(y0)))
		}
		ras.ClosePath()
	}

	pm := col.Premultiply()
	r8, g8, b8, a8 := pm.NRGBA8()
	src := image.NewUniform(color.RGBA{R: r8, G: g8, B: b8, A: a8})
	ras.Draw(c.img, image.Rect(x0, y0, x1, y1), src, image.Point{})
}

// StrokePath strokes the path's contours segment by segment with round
// caps, which double as round joins at shared vertices.
func (c *Canvas) StrokePath(p *Path, width float64, col stage.RGBA) {
	if width <= 0 {
		return
	}
	for _, contour := range p.contours {
		for i := 1; i < len(contour); i++ {
			a, b := contour[i-1], contour[i]
			c.segment(a.X, a.Y, b.X, b.Y, width, CapRound, col)
		}
	}
}
