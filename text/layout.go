package text

import (
	"golang.org/x/text/unicode/norm"

	"github.com/gogpu/stage"
)

// Align is the horizontal alignment of a text run relative to its
// anchor point.
type Align uint8

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
	// AlignEnd behaves like AlignRight for left-to-right runs.
	AlignEnd
)

// Baseline selects the vertical anchor of a text run.
type Baseline uint8

const (
	BaselineAlphabetic Baseline = iota
	BaselineTop
	BaselineHanging
	BaselineMiddle
	BaselineBottom
	BaselineIdeographic
)

// Metrics describes a measured run: advance width and the vertical
// extent above and below the alphabetic baseline.
type Metrics struct {
	Width   float64
	Ascent  float64
	Descent float64
}

// Measure measures s with the shared default registry. ok is false for
// empty strings.
func Measure(fontStr, s string) (Metrics, bool) {
	return MeasureWith(defaultRegistry, fontStr, s)
}

// MeasureWith measures s against a specific registry.
func MeasureWith(reg *Registry, fontStr, s string) (Metrics, bool) {
	runes := []rune(norm.NFC.String(s))
	if len(runes) == 0 {
		return Metrics{}, false
	}
	spec := parseFontSpec(fontStr)
	entry := reg.resolve(spec.family)
	if entry == nil {
		return Metrics{}, false
	}

	var m Metrics
	for _, r := range runes {
		m.Width += reg.shapeAdvance(entry, spec.size, []rune{r})
	}

	entry.mu.Lock()
	face, err := entry.face(spec.size)
	if err == nil {
		fm := face.Metrics()
		m.Ascent = float64(fm.Ascent) / 64
		m.Descent = float64(fm.Descent) / 64
	}
	entry.mu.Unlock()
	if err != nil {
		return Metrics{}, false
	}
	return m, true
}

// AlignOffset returns the pen-origin shift that realizes the given
// alignment for a run with the given metrics. dx moves the run start
// left of the anchor; dy moves the baseline relative to the anchor.
func AlignOffset(m Metrics, a Align, b Baseline) (dx, dy float64) {
	switch a {
	case AlignCenter:
		dx = -m.Width / 2
	case AlignRight, AlignEnd:
		dx = -m.Width
	}
	switch b {
	case BaselineTop:
		dy = m.Ascent
	case BaselineHanging:
		// Approximation: hanging sits ~80% of the ascent above the
		// alphabetic baseline.
		dy = m.Ascent * 0.8
	case BaselineMiddle:
		dy = (m.Ascent - m.Descent) / 2
	case BaselineBottom, BaselineIdeographic:
		dy = -m.Descent
	}
	return dx, dy
}

// Quad is one positioned glyph: four world-space corners and the
// normalized atlas region to sample.
type Quad struct {
	Page PageID

	// Corners in draw order: top-left, top-right, bottom-right,
	// bottom-left, already transformed to world space.
	P [4]stage.Point

	// Normalized texture coordinates into the page.
	U0, V0, U1, V1 float64
}

// LayoutResult is a text run resolved to atlas-backed quads.
type LayoutResult struct {
	Quads []Quad

	Color   stage.RGBA
	Opacity float64

	Metrics Metrics
}

// Layout resolves a run against the atlas and produces one quad per
// visible glyph. Returns nil for runs that produce no quads.
//
// Glyphs are resolved through the cache, rasterizing misses into the
// current page. If a page reset happens mid-run (height overflow), the
// earlier glyphs of this run were evicted; the run is resolved again
// once so every returned quad references live atlas content.
func (a *Atlas) Layout(s, fontStr string, color stage.RGBA, align Align, baseline Baseline, m stage.Matrix, opacity float64) *LayoutResult {
	runes := []rune(norm.NFC.String(s))
	if len(runes) == 0 {
		return nil
	}
	spec := parseFontSpec(fontStr)

	a.mu.Lock()
	defer a.mu.Unlock()

	glyphs := a.resolveRun(spec, runes)
	if len(glyphs) == 0 {
		return nil
	}

	var met Metrics
	for _, g := range glyphs {
		met.Width += g.Advance
		if g.Ascent > met.Ascent {
			met.Ascent = g.Ascent
		}
		if g.Descent > met.Descent {
			met.Descent = g.Descent
		}
	}
	dx, dy := AlignOffset(met, align, baseline)

	res := &LayoutResult{
		Color:   color,
		Opacity: opacity,
		Metrics: met,
	}

	pen := dx
	size := float64(a.pageSize)
	for _, g := range glyphs {
		if g.W == 0 || g.H == 0 {
			pen += g.Advance
			continue
		}
		x0 := pen + g.OffsetX
		y0 := dy + g.OffsetY
		x1 := x0 + float64(g.W)
		y1 := y0 + float64(g.H)

		res.Quads = append(res.Quads, Quad{
			Page: g.Page,
			P: [4]stage.Point{
				m.TransformPoint(stage.Pt(x0, y0)),
				m.TransformPoint(stage.Pt(x1, y0)),
				m.TransformPoint(stage.Pt(x1, y1)),
				m.TransformPoint(stage.Pt(x0, y1)),
			},
			U0: float64(g.X) / size,
			V0: float64(g.Y) / size,
			U1: float64(g.X+g.W) / size,
			V1: float64(g.Y+g.H) / size,
		})
		pen += g.Advance
	}
	if len(res.Quads) == 0 {
		return nil
	}
	return res
}

// resolveRun resolves every rune of a run, retrying once if a page
// reset evicted glyphs resolved earlier in the same pass.
func (a *Atlas) resolveRun(spec fontSpec, runes []rune) []*Glyph {
	for attempt := 0; attempt < 2; attempt++ {
		before := a.evictionCount()
		glyphs := make([]*Glyph, 0, len(runes))
		for _, r := range runes {
			if g := a.resolveGlyph(spec, r); g != nil {
				glyphs = append(glyphs, g)
			}
		}
		if a.evictionCount() == before || attempt == 1 {
			return glyphs
		}
		// A reset invalidated part of this run; resolve it again
		// against the fresh page.
	}
	return nil
}
