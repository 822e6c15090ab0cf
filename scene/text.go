package scene

import (
	"github.com/gogpu/stage"
	"github.com/gogpu/stage/text"
)

// TextNode is a single text run.
type TextNode struct {
	Base

	Text string

	// Font is a CSS-like font string, e.g. "16px sans".
	Font string

	Fill stage.RGBA

	Align    text.Align
	Baseline text.Baseline

	// Stroke outlines the glyphs when StrokeWidth > 0.
	Stroke      stage.RGBA
	StrokeWidth float64

	Shadow Shadow
}

// NewText creates a text node with the default font and alignment.
func NewText(s string) *TextNode {
	return &TextNode{
		Base:     NewBase(),
		Text:     s,
		Font:     text.DefaultFont,
		Fill:     stage.Black,
		Baseline: text.BaselineAlphabetic,
	}
}

func (*TextNode) node() {}

// LocalBounds measures the run with the shared font registry. The box
// is anchored at the pen origin and shifted by alignment and baseline,
// matching what the renderers draw.
func (n *TextNode) LocalBounds() stage.Rect {
	m, ok := text.Measure(n.Font, n.Text)
	if !ok {
		return stage.EmptyRect()
	}
	dx, dy := text.AlignOffset(m, n.Align, n.Baseline)
	r := stage.Rect{
		MinX: dx,
		MinY: dy - m.Ascent,
		MaxX: dx + m.Width,
		MaxY: dy + m.Descent,
	}
	if n.StrokeWidth > 0 && n.Stroke.A > 0 {
		r = r.Expand(n.StrokeWidth / 2)
	}
	return r
}
