package render

import (
	"fmt"
	"image"

	"github.com/gogpu/stage"
	"github.com/gogpu/stage/internal/raster"
	"github.com/gogpu/stage/scene"
	"github.com/gogpu/stage/text"
)

// SoftwareRenderer draws scene trees with the raster canvas. It is the
// fallback path and, for the shapes both paths support, the reference
// output the accelerated renderer is held to.
type SoftwareRenderer struct {
	cfg   SceneConfig
	atlas *text.Atlas

	// Device-pixel surface size.
	width, height int
	dpr           float64

	target *image.RGBA

	initialized bool
	tornDown    bool

	diag Diagnostics
}

// NewSoftwareRenderer creates a software renderer. A nil atlas gets a
// fresh default one.
func NewSoftwareRenderer(cfg SceneConfig, atlas *text.Atlas) *SoftwareRenderer {
	if atlas == nil {
		atlas = text.NewAtlas()
	}
	r := &SoftwareRenderer{cfg: cfg, atlas: atlas, dpr: cfg.dpr()}
	r.width, r.height = deviceSize(cfg.Width, cfg.Height, r.dpr)
	r.diag.ContextKind = "software"
	return r
}

// Init implements Renderer. The software path has no context to
// acquire; Init only arms the renderer.
func (r *SoftwareRenderer) Init() error {
	if r.tornDown {
		return ErrTornDown
	}
	r.initialized = true
	return nil
}

// Resize implements Renderer.
func (r *SoftwareRenderer) Resize(width, height int, dpr float64) {
	if dpr <= 0 {
		dpr = 1
	}
	r.cfg.Width, r.cfg.Height = width, height
	r.dpr = dpr
	r.width, r.height = deviceSize(width, height, dpr)
}

// RenderFrame implements Renderer.
func (r *SoftwareRenderer) RenderFrame(nodes []scene.Node) error {
	if r.tornDown {
		return ErrTornDown
	}
	if !r.initialized {
		return ErrNotInitialized
	}
	if r.width <= 0 || r.height <= 0 {
		r.target = nil
		r.diag.FrameHash, r.diag.BytesHashed = FrameHash(nil, r.width, r.height, 0, r.cfg.background())
		r.diag.Frames++
		r.diag.DrawCalls = 0
		return nil
	}
	if r.target == nil || r.target.Bounds().Dx() != r.width || r.target.Bounds().Dy() != r.height {
		r.target = image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	}

	canvas := raster.New(r.target)
	canvas.Clear(r.cfg.background())

	root := stage.Scale(r.dpr, r.dpr)
	canvas.Push(root, 1)
	ops := 0
	for _, n := range nodes {
		ops += r.draw(canvas, n, root, 1)
	}
	canvas.Pop()

	r.diag.FrameHash, r.diag.BytesHashed = FrameHash(r.target.Pix, r.width, r.height, ops, r.cfg.background())
	r.diag.Frames++
	r.diag.DrawCalls = ops
	r.diag.Atlas = r.atlas.Stats()
	return nil
}

// draw renders one node and its subtree. parent and opacity mirror the
// canvas stack; the explicit matrix is needed because glyph quads are
// laid out in device space, outside the stack.
func (r *SoftwareRenderer) draw(c *raster.Canvas, n scene.Node, parent stage.Matrix, opacity float64) int {
	b := n.Common()
	if !b.Visible {
		return 0
	}
	op := opacity * b.Opacity
	if op <= 0 {
		return 0
	}
	m := parent.Multiply(b.Matrix())
	c.Push(b.Matrix(), b.Opacity)
	defer c.Pop()

	ops := 0
	switch node := n.(type) {
	case *scene.Group:
		// Container only.
	case *scene.RectNode:
		ops += r.drawRect(c, node)
	case *scene.LineNode:
		if node.Width > 0 && node.Color.A > 0 {
			c.Line(0, 0, node.X2, node.Y2, node.Width, capStyle(node.Cap), node.Dash, node.Color)
			ops++
		}
	case *scene.ArcNode:
		ops += r.drawArc(c, node)
	case *scene.PathNode:
		ops += r.drawPath(c, node)
	case *scene.TextNode:
		ops += r.drawText(c, node, m, op)
	case *scene.ImageNode:
		ops += r.drawImage(c, node)
	case *scene.ParticlesNode:
		for i := range node.Particles {
			p := &node.Particles[i]
			if p.Size <= 0 || p.Opacity <= 0 || p.Color.A <= 0 {
				continue
			}
			col := p.Color
			col.A *= p.Opacity
			c.FillCircle(p.X, p.Y, p.Size/2, col)
			ops++
		}
	}

	for _, child := range b.Children {
		ops += r.draw(c, child, m, op)
	}
	return ops
}

func (r *SoftwareRenderer) drawRect(c *raster.Canvas, n *scene.RectNode) int {
	if n.Width <= 0 || n.Height <= 0 {
		return 0
	}
	radius := n.Radius()
	ops := 0
	if n.Shadow.Enabled() {
		c.ShadowRoundedRect(n.Width, n.Height, radius,
			n.Shadow.Blur, n.Shadow.OffsetX, n.Shadow.OffsetY, n.Shadow.Color)
		ops++
	}
	if n.Fill.A > 0 {
		c.FillRoundedRect(n.Width, n.Height, radius, n.Fill)
		ops++
	}
	if n.StrokeWidth > 0 && n.Stroke.A > 0 {
		c.StrokeRoundedRect(n.Width, n.Height, radius, n.StrokeWidth, n.Stroke)
		ops++
	}
	return ops
}

func (r *SoftwareRenderer) drawArc(c *raster.Canvas, n *scene.ArcNode) int {
	if n.Radius <= 0 {
		return 0
	}
	ops := 0
	if n.Fill.A > 0 {
		c.FillArc(0, 0, n.Radius, n.StartAngle, n.EndAngle, n.Anticlockwise, n.Fill)
		ops++
	}
	if n.StrokeWidth > 0 && n.Stroke.A > 0 {
		c.StrokeArc(0, 0, n.Radius, n.StartAngle, n.EndAngle, n.Anticlockwise, n.StrokeWidth, n.Stroke)
		ops++
	}
	return ops
}

func (r *SoftwareRenderer) drawPath(c *raster.Canvas, n *scene.PathNode) int {
	if len(n.Verbs) == 0 {
		return 0
	}
	p := buildPath(n)
	ops := 0
	if n.Fill.A > 0 {
		c.FillPath(p, n.Fill)
		ops++
	}
	if n.StrokeWidth > 0 && n.Stroke.A > 0 {
		c.StrokePath(p, n.StrokeWidth, n.Stroke)
		ops++
	}
	return ops
}

func buildPath(n *scene.PathNode) *raster.Path {
	p := &raster.Path{}
	pi := 0
	for _, v := range n.Verbs {
		switch v {
		case scene.VerbMoveTo:
			pt := n.Points[pi]
			p.MoveTo(pt.X, pt.Y)
			pi++
		case scene.VerbLineTo:
			pt := n.Points[pi]
			p.LineTo(pt.X, pt.Y)
			pi++
		case scene.VerbQuadTo:
			c0, pt := n.Points[pi], n.Points[pi+1]
			p.QuadTo(c0.X, c0.Y, pt.X, pt.Y)
			pi += 2
		case scene.VerbCubicTo:
			c1, c2, pt := n.Points[pi], n.Points[pi+1], n.Points[pi+2]
			p.CubeTo(c1.X, c1.Y, c2.X, c2.Y, pt.X, pt.Y)
			pi += 3
		case scene.VerbClose:
			p.Close()
		}
	}
	return p
}

func (r *SoftwareRenderer) drawText(c *raster.Canvas, n *scene.TextNode, m stage.Matrix, op float64) int {
	if n.Text == "" {
		return 0
	}
	ops := 0
	if n.Shadow.Enabled() {
		sm := m.Multiply(stage.Translate(n.Shadow.OffsetX, n.Shadow.OffsetY))
		ops += r.drawTextRun(c, n, sm, n.Shadow.Color, op)
	}
	if n.StrokeWidth > 0 && n.Stroke.A > 0 {
		for _, o := range strokeOffsets(n.StrokeWidth) {
			ops += r.drawTextRun(c, n, m.Multiply(stage.Translate(o[0], o[1])), n.Stroke, op)
		}
	}
	if n.Fill.A > 0 {
		ops += r.drawTextRun(c, n, m, n.Fill, op)
	}
	return ops
}

func (r *SoftwareRenderer) drawTextRun(c *raster.Canvas, n *scene.TextNode, m stage.Matrix, col stage.RGBA, op float64) int {
	res := r.atlas.Layout(n.Text, n.Font, col, n.Align, n.Baseline, m, op)
	if res == nil {
		return 0
	}
	ops := 0
	for i := range res.Quads {
		q := &res.Quads[i]
		page, ok := r.atlas.PageImage(q.Page)
		if !ok {
			continue
		}
		c.GlyphQuad(page, q.P, q.U0, q.V0, q.U1, q.V1, res.Color, res.Opacity)
		ops++
	}
	return ops
}

func (r *SoftwareRenderer) drawImage(c *raster.Canvas, n *scene.ImageNode) int {
	dst, ok := n.Placement()
	if !ok {
		return 0
	}
	entry, ok := n.Arena.Lookup(n.Image)
	if !ok || entry.Img == nil {
		return 0
	}
	c.DrawImage(entry.Img, dst, n.Tint)
	return 1
}

func capStyle(c scene.LineCap) raster.LineCap {
	switch c {
	case scene.CapRound:
		return raster.CapRound
	case scene.CapSquare:
		return raster.CapSquare
	default:
		return raster.CapButt
	}
}

// CaptureFrame implements Renderer.
func (r *SoftwareRenderer) CaptureFrame(format CaptureFormat) (*Capture, error) {
	if r.tornDown {
		return nil, ErrTornDown
	}
	if !r.initialized {
		return nil, ErrNotInitialized
	}
	if r.target == nil {
		return nil, fmt.Errorf("render: no frame rendered")
	}
	return capturePixels(r.target.Pix, r.width, r.height, format)
}

// Diagnostics implements Renderer.
func (r *SoftwareRenderer) Diagnostics() Diagnostics {
	d := r.diag
	d.Errors = append([]string(nil), r.diag.Errors...)
	return d
}

func (r *SoftwareRenderer) recordError(err error) {
	r.diag.Errors = append(r.diag.Errors, err.Error())
}

// Teardown implements Renderer.
func (r *SoftwareRenderer) Teardown() {
	if r.tornDown {
		return
	}
	r.tornDown = true
	r.initialized = false
	r.target = nil
}
