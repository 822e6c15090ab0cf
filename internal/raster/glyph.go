package raster

import (
	"image"
	"math"

	"github.com/gogpu/stage"
)

// GlyphQuad composites one glyph quad from an atlas page. The corner
// points are already in device space (layout applies the node
// transform), so the canvas state stack does not apply; alpha carries
// the accumulated opacity instead. UVs are normalized page
// coordinates.
func (c *Canvas) GlyphQuad(page *image.Alpha, pts [4]stage.Point, u0, v0, u1, v1 float64, col stage.RGBA, alpha float64) {
	col.A *= alpha
	if col.A <= 0 {
		return
	}

	e1 := pts[1].Sub(pts[0])
	e2 := pts[3].Sub(pts[0])
	det := e1.X*e2.Y - e1.Y*e2.X
	if math.Abs(det) < 1e-12 {
		return
	}

	bounds := stage.EmptyRect()
	for _, p := range pts {
		bounds = bounds.UnionPoint(p.X, p.Y)
	}
	ib := c.img.Bounds()
	x0 := int(math.Max(math.Floor(bounds.MinX), float64(ib.Min.X)))
	y0 := int(math.Max(math.Floor(bounds.MinY), float64(ib.Min.Y)))
	x1 := int(math.Min(math.Ceil(bounds.MaxX), float64(ib.Max.X)))
	y1 := int(math.Min(math.Ceil(bounds.MaxY), float64(ib.Max.Y)))

	pw := float64(page.Bounds().Dx())
	ph := float64(page.Bounds().Dy())

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			dx := float64(x) + 0.5 - pts[0].X
			dy := float64(y) + 0.5 - pts[0].Y
			s := (dx*e2.Y - dy*e2.X) / det
			t := (e1.X*dy - e1.Y*dx) / det
			if s < 0 || s > 1 || t < 0 || t > 1 {
				continue
			}
			u := (u0 + s*(u1-u0)) * pw
			v := (v0 + t*(v1-v0)) * ph
			if cov := SampleAlpha(page, u, v); cov > 0 {
				c.blend(x, y, col, cov)
			}
		}
	}
}

// SampleAlpha bilinearly samples an alpha image at texel coordinates,
// clamping at the edges.
func SampleAlpha(img *image.Alpha, u, v float64) float64 {
	b := img.Bounds()
	u -= 0.5
	v -= 0.5
	x0 := int(math.Floor(u))
	y0 := int(math.Floor(v))
	fx := u - float64(x0)
	fy := v - float64(y0)

	at := func(x, y int) float64 {
		if x < b.Min.X {
			x = b.Min.X
		} else if x >= b.Max.X {
			x = b.Max.X - 1
		}
		if y < b.Min.Y {
			y = b.Min.Y
		} else if y >= b.Max.Y {
			y = b.Max.Y - 1
		}
		return float64(img.Pix[(y-b.Min.Y)*img.Stride+(x-b.Min.X)]) / 255
	}

	top := at(x0, y0)*(1-fx) + at(x0+1, y0)*fx
	bot := at(x0, y0+1)*(1-fx) + at(x0+1, y0+1)*fx
	return top*(1-fy) + bot*fy
}
