package raster

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/gogpu/stage"
)

// DrawImage draws src into the local-space destination rect under the
// current transform, bilinearly filtered. Tint multiplies the source
// channels; use white for none.
func (c *Canvas) DrawImage(src *image.RGBA, dst stage.Rect, tint stage.RGBA) {
	if src == nil || dst.IsEmpty() {
		return
	}
	top := c.cur()
	alpha := top.opacity * tint.A
	if alpha <= 0 {
		return
	}

	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	if sw == 0 || sh == 0 {
		return
	}

	if !isWhite(tint) || alpha < 1 {
		src = tintImage(src, tint, alpha)
	}

	// local-rect placement: translate to dst.Min, scale src to dst size.
	place := stage.Translate(dst.MinX, dst.MinY).
		Multiply(stage.Scale(dst.Width()/sw, dst.Height()/sh))
	m := top.m.Multiply(place)

	xdraw.ApproxBiLinear.Transform(c.img,
		f64.Aff3{m.A, m.B, m.C, m.D, m.E, m.F},
		src, sb, xdraw.Over, nil)
}

func isWhite(t stage.RGBA) bool {
	return t.R == 1 && t.G == 1 && t.B == 1 && t.A == 1
}

// tintImage returns a premultiplied copy of src with channels scaled by
// the tint color and alpha.
func tintImage(src *image.RGBA, tint stage.RGBA, alpha float64) *image.RGBA {
	mr := clampUnit(tint.R)
	mg := clampUnit(tint.G)
	mb := clampUnit(tint.B)
	ma := clampUnit(alpha)

	out := image.NewRGBA(src.Bounds())
	for i := 0; i < len(src.Pix); i += 4 {
		out.Pix[i+0] = mulChannel(src.Pix[i+0], mr*ma)
		out.Pix[i+1] = mulChannel(src.Pix[i+1], mg*ma)
		out.Pix[i+2] = mulChannel(src.Pix[i+2], mb*ma)
		out.Pix[i+3] = mulChannel(src.Pix[i+3], ma)
	}
	return out
}

func mulChannel(v uint8, f float64) uint8 {
	return uint8(math.Min(float64(v)*f+0.5, 255))
}

func clampUnit(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
