// Package raster is an immediate-mode software canvas over *image.RGBA.
//
// Shapes are rendered through signed-distance coverage with the same
// smoothstep width the GPU shape shader uses; paths go through
// golang.org/x/image/vector. All blending is source-over on
// premultiplied 8-bit channels.
package raster

import (
	"image"
	"math"

	"github.com/gogpu/stage"
)

// LineCap selects line end treatment.
type LineCap uint8

const (
	CapButt LineCap = iota
	CapRound
	CapSquare
)

type state struct {
	m       stage.Matrix
	opacity float64
}

// Canvas draws into an RGBA image under a transform/opacity stack.
// Not safe for concurrent use.
type Canvas struct {
	img   *image.RGBA
	stack []state
}

// New creates a canvas over img with an identity transform and full
// opacity.
func New(img *image.RGBA) *Canvas {
	return &Canvas{
		img:   img,
		stack: []state{{m: stage.Identity(), opacity: 1}},
	}
}

func (c *Canvas) cur() state { return c.stack[len(c.stack)-1] }

// Push enters a local transform and opacity, composed onto the current
// state. Every Push must be paired with a Pop.
func (c *Canvas) Push(local stage.Matrix, opacity float64) {
	top := c.cur()
	c.stack = append(c.stack, state{
		m:       top.m.Multiply(local),
		opacity: top.opacity * opacity,
	})
}

// Pop restores the previous state. Popping the root state is a
// programming error and is ignored with a log.
func (c *Canvas) Pop() {
	if len(c.stack) == 1 {
		stage.Logger().Error("canvas state underflow")
		return
	}
	c.stack = c.stack[:len(c.stack)-1]
}

// Depth returns the state stack depth, for push/pop discipline checks.
func (c *Canvas) Depth() int { return len(c.stack) }

// Clear fills the whole image with a color, replacing existing
// content.
func (c *Canvas) Clear(col stage.RGBA) {
	ClearImage(c.img, col)
}

// ClearImage replaces every pixel of img with the premultiplied color.
func ClearImage(img *image.RGBA, col stage.RGBA) {
	r8, g8, b8, a8 := col.Premultiply().NRGBA8()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			row[i+0] = r8
			row[i+1] = g8
			row[i+2] = b8
			row[i+3] = a8
		}
	}
}

func (c *Canvas) blend(x, y int, col stage.RGBA, cov float64) {
	BlendPixel(c.img, x, y, col, cov)
}

// BlendPixel composites a non-premultiplied color at coverage cov over
// one pixel, source-over on premultiplied 8-bit channels. Both render
// paths go through this exact arithmetic.
func BlendPixel(img *image.RGBA, x, y int, col stage.RGBA, cov float64) {
	if cov <= 0 {
		return
	}
	a := col.A * cov
	if a <= 0 {
		return
	}
	if a > 1 {
		a = 1
	}
	i := img.PixOffset(x, y)
	pix := img.Pix[i : i+4 : i+4]

	sr := col.R * a * 255
	sg := col.G * a * 255
	sb := col.B * a * 255
	sa := a * 255
	inv := 1 - a

	pix[0] = uint8(math.Min(sr+float64(pix[0])*inv+0.5, 255))
	pix[1] = uint8(math.Min(sg+float64(pix[1])*inv+0.5, 255))
	pix[2] = uint8(math.Min(sb+float64(pix[2])*inv+0.5, 255))
	pix[3] = uint8(math.Min(sa+float64(pix[3])*inv+0.5, 255))
}

// fillDist evaluates a local-space distance function over the device
// pixels covered by localBounds and blends the resulting coverage.
// aaWidth is the smoothstep half-width in device pixels.
func (c *Canvas) fillDist(localBounds stage.Rect, dist func(x, y float64) float64, col stage.RGBA, aaWidth float64) {
	top := c.cur()
	col.A *= top.opacity
	if col.A <= 0 {
		return
	}

	scale := math.Sqrt(math.Abs(top.m.A*top.m.E - top.m.B*top.m.D))
	if scale == 0 {
		return
	}
	inv := top.m.Invert()

	dev := top.m.TransformRect(localBounds).Expand(aaWidth + 1)
	b := c.img.Bounds()
	x0 := int(math.Max(math.Floor(dev.MinX), float64(b.Min.X)))
	y0 := int(math.Max(math.Floor(dev.MinY), float64(b.Min.Y)))
	x1 := int(math.Min(math.Ceil(dev.MaxX), float64(b.Max.X)))
	y1 := int(math.Min(math.Ceil(dev.MaxY), float64(b.Max.Y)))

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			p := inv.TransformPoint(stage.Pt(float64(x)+0.5, float64(y)+0.5))
			d := dist(p.X, p.Y) * scale
			if cov := CoverageWidth(d, aaWidth); cov > 0 {
				c.blend(x, y, col, cov)
			}
		}
	}
}

// FillRoundedRect fills the local rect (0,0)-(w,h) with rounded
// corners.
func (c *Canvas) FillRoundedRect(w, h, radius float64, col stage.RGBA) {
	if w <= 0 || h <= 0 {
		return
	}
	cx, cy := w/2, h/2
	c.fillDist(stage.Rect{MaxX: w, MaxY: h},
		func(x, y float64) float64 {
			return RoundedRectDist(x, y, cx, cy, cx, cy, radius)
		}, col, AntialiasWidth)
}

// StrokeRoundedRect strokes the boundary of the local rect
// (0,0)-(w,h), the stroke centered on the edge.
func (c *Canvas) StrokeRoundedRect(w, h, radius, width float64, col stage.RGBA) {
	if w <= 0 || h <= 0 || width <= 0 {
		return
	}
	cx, cy, hw := w/2, h/2, width/2
	c.fillDist(stage.Rect{MaxX: w, MaxY: h}.Expand(hw),
		func(x, y float64) float64 {
			return StrokeDist(RoundedRectDist(x, y, cx, cy, cx, cy, radius), hw)
		}, col, AntialiasWidth)
}

// ShadowRoundedRect draws a blurred drop shadow for the local rect
// (0,0)-(w,h), offset by (ox, oy).
func (c *Canvas) ShadowRoundedRect(w, h, radius, blur, ox, oy float64, col stage.RGBA) {
	if w <= 0 || h <= 0 {
		return
	}
	cx, cy := w/2+ox, h/2+oy
	width := math.Max(blur, AntialiasWidth)
	c.fillDist(stage.Rect{MinX: ox, MinY: oy, MaxX: w + ox, MaxY: h + oy}.Expand(width),
		func(x, y float64) float64 {
			return RoundedRectDist(x, y, cx, cy, w/2, h/2, radius)
		}, col, width)
}

// FillCircle fills a circle at a local-space center.
func (c *Canvas) FillCircle(cx, cy, radius float64, col stage.RGBA) {
	if radius <= 0 {
		return
	}
	c.fillDist(stage.Rect{MinX: cx - radius, MinY: cy - radius, MaxX: cx + radius, MaxY: cy + radius},
		func(x, y float64) float64 {
			return CircleDist(x, y, cx, cy, radius)
		}, col, AntialiasWidth)
}

// Line draws a straight segment with the given width, cap, and
// optional dash pattern (alternating on/off lengths, local units).
func (c *Canvas) Line(x1, y1, x2, y2, width float64, cap LineCap, dash []float64, col stage.RGBA) {
	if width <= 0 {
		return
	}
	if len(dash) == 0 {
		c.segment(x1, y1, x2, y2, width, cap, col)
		return
	}
	total := math.Hypot(x2-x1, y2-y1)
	if total == 0 {
		return
	}
	ux, uy := (x2-x1)/total, (y2-y1)/total

	pos, di, on := 0.0, 0, true
	for pos < total {
		run := math.Min(dash[di%len(dash)], total-pos)
		if on && run > 0 {
			sx, sy := x1+ux*pos, y1+uy*pos
			ex, ey := x1+ux*(pos+run), y1+uy*(pos+run)
			c.segment(sx, sy, ex, ey, width, cap, col)
		}
		pos += run
		di++
		on = !on
		if run == 0 && pos < total {
			// Zero-length dash entry; skip to avoid spinning.
			pos += 1e-6
		}
	}
}

// segment rasterizes one stroked segment as a distance field in a
// line-local frame: a box for butt, an extended box for square, and a
// stadium for round caps.
func (c *Canvas) segment(x1, y1, x2, y2, width float64, cap LineCap, col stage.RGBA) {
	length := math.Hypot(x2-x1, y2-y1)
	hw := width / 2
	if length == 0 {
		if cap == CapRound {
			c.FillCircle(x1, y1, hw, col)
		}
		return
	}
	cos := (x2 - x1) / length
	sin := (y2 - y1) / length

	halfW, radius := length/2, 0.0
	switch cap {
	case CapSquare:
		halfW += hw
	case CapRound:
		halfW += hw
		radius = hw
	}
	mx, my := (x1+x2)/2, (y1+y2)/2

	bounds := stage.NewRect(stage.Pt(x1, y1), stage.Pt(x2, y2)).Expand(hw * 2)
	c.fillDist(bounds, func(x, y float64) float64 {
		dx, dy := x-mx, y-my
		lx := cos*dx + sin*dy
		ly := -sin*dx + cos*dy
		return RoundedRectDist(lx, ly, 0, 0, halfW, hw, radius)
	}, col, AntialiasWidth)
}

// StrokeArc strokes a circular arc. A sweep of 2π or more strokes the
// full circle; otherwise the band is clipped to the angular range with
// rounded ends.
func (c *Canvas) StrokeArc(cx, cy, radius, start, end float64, anticlockwise bool, width float64, col stage.RGBA) {
	if radius <= 0 || width <= 0 {
		return
	}
	hw := width / 2
	sweep, a0 := normalizeSweep(start, end, anticlockwise)
	bounds := stage.Rect{MinX: cx - radius, MinY: cy - radius, MaxX: cx + radius, MaxY: cy + radius}.Expand(hw)

	if sweep >= 2*math.Pi {
		c.fillDist(bounds, func(x, y float64) float64 {
			return StrokeDist(CircleDist(x, y, cx, cy, radius), hw)
		}, col, AntialiasWidth)
		return
	}

	sx, sy := cx+radius*math.Cos(a0), cy+radius*math.Sin(a0)
	ex, ey := cx+radius*math.Cos(a0+sweep), cy+radius*math.Sin(a0+sweep)

	c.fillDist(bounds, func(x, y float64) float64 {
		ang := math.Atan2(y-cy, x-cx)
		if rel := math.Mod(ang-a0+4*math.Pi, 2*math.Pi); rel <= sweep {
			return StrokeDist(CircleDist(x, y, cx, cy, radius), hw)
		}
		de := math.Min(math.Hypot(x-sx, y-sy), math.Hypot(x-ex, y-ey))
		return de - hw
	}, col, AntialiasWidth)
}

// FillArc fills the pie wedge of a circular arc. A full sweep fills
// the disc.
func (c *Canvas) FillArc(cx, cy, radius, start, end float64, anticlockwise bool, col stage.RGBA) {
	if radius <= 0 {
		return
	}
	sweep, a0 := normalizeSweep(start, end, anticlockwise)
	if sweep >= 2*math.Pi {
		c.FillCircle(cx, cy, radius, col)
		return
	}
	p := &Path{}
	p.MoveTo(cx, cy)
	steps := int(math.Ceil(sweep / (math.Pi / 32)))
	if steps < 2 {
		steps = 2
	}
	for i := 0; i <= steps; i++ {
		a := a0 + sweep*float64(i)/float64(steps)
		p.LineTo(cx+radius*math.Cos(a), cy+radius*math.Sin(a))
	}
	p.Close()
	c.FillPath(p, col)
}

// normalizeSweep returns the positive angular sweep and start angle of
// an arc, matching canvas arc direction semantics.
func normalizeSweep(start, end float64, anticlockwise bool) (sweep, from float64) {
	if anticlockwise {
		start, end = end, start
	}
	sweep = math.Mod(end-start, 2*math.Pi)
	if sweep < 0 {
		sweep += 2 * math.Pi
	}
	if sweep == 0 && end != start {
		sweep = 2 * math.Pi
	}
	return sweep, start
}
