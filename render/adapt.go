package render

import (
	"math"

	"github.com/gogpu/stage"
	"github.com/gogpu/stage/internal/gpu"
	"github.com/gogpu/stage/internal/raster"
	"github.com/gogpu/stage/scene"
	"github.com/gogpu/stage/text"
)

// Primitive is one batched draw: a material, its interleaved vertex
// data, and the uniform state shared by every vertex in the batch.
type Primitive struct {
	Material gpu.MaterialID

	// Source holds the interleaved vertices; the geometry cache
	// uploads it once per version.
	Source      *gpu.GeometrySource
	VertexCount int

	// Matrix is the local-to-device transform for the batch.
	Matrix stage.Matrix

	// Tint multiplies sampled or vertex colors; white is neutral.
	Tint stage.RGBA

	// Image and Entry are set for image primitives.
	Image scene.ImageID
	Entry *scene.ImageEntry

	// Page is set for glyph primitives.
	Page text.PageID
}

// PrimitiveList is the ordered output of one Adapt pass. Draw order is
// paint order; the renderer must not reorder it.
type PrimitiveList struct {
	Primitives []Primitive
	Stats      AdapterStats
}

// AdapterStats summarizes one Adapt pass for diagnostics.
type AdapterStats struct {
	Primitives int
	Shapes     int
	Shadows    int
	Images     int
	GlyphRuns  int

	Vertices      int
	GeometryBytes int

	// Unsupported counts node features the accelerated path cannot
	// lower (partial arcs, paths); the software renderer draws them.
	Unsupported int
}

// Adapter lowers scene trees into ordered primitive batches. Quads
// that share a material, transform, and sampled resource merge into
// one primitive when they are adjacent in paint order; merging never
// reorders draws.
type Adapter struct {
	atlas *text.Atlas
	frame uint64
}

// NewAdapter creates an adapter over a glyph atlas. A nil atlas gets a
// fresh default one.
func NewAdapter(atlas *text.Atlas) *Adapter {
	if atlas == nil {
		atlas = text.NewAtlas()
	}
	return &Adapter{atlas: atlas}
}

// Atlas returns the adapter's glyph atlas.
func (ad *Adapter) Atlas() *text.Atlas { return ad.atlas }

// Adapt walks the tree depth-first and emits primitives. root is
// applied above every node, typically the device-pixel-ratio scale.
func (ad *Adapter) Adapt(nodes []scene.Node, root stage.Matrix) *PrimitiveList {
	ad.frame++
	w := &walker{ad: ad, list: &PrimitiveList{}}
	for _, n := range nodes {
		w.walk(n, root, 1)
	}
	w.flush()
	return w.list
}

type walker struct {
	ad   *Adapter
	list *PrimitiveList

	// cur is the open batch; quads append to it while their batch key
	// matches.
	cur    *Primitive
	nextID uint32
}

func (w *walker) walk(n scene.Node, parent stage.Matrix, opacity float64) {
	b := n.Common()
	if !b.Visible {
		return
	}
	op := opacity * b.Opacity
	if op <= 0 {
		return
	}
	m := parent.Multiply(b.Matrix())

	switch node := n.(type) {
	case *scene.Group:
		// Container only.
	case *scene.RectNode:
		w.rect(node, m, op)
	case *scene.LineNode:
		w.line(node, m, op)
	case *scene.ArcNode:
		w.arc(node, m, op)
	case *scene.PathNode:
		w.path(node)
	case *scene.TextNode:
		w.text(node, m, op)
	case *scene.ImageNode:
		w.image(node, m, op)
	case *scene.ParticlesNode:
		w.particles(node, m, op)
	}

	for _, c := range b.Children {
		w.walk(c, m, op)
	}
}

// batch returns the vertex source of the open batch if it matches the
// key, or flushes and opens a new one.
func (w *walker) batch(mat gpu.MaterialID, m stage.Matrix, page text.PageID) *gpu.GeometrySource {
	if w.cur != nil && w.cur.Material == mat && w.cur.Page == page &&
		w.cur.Image == 0 && w.cur.Matrix == m {
		return w.cur.Source
	}
	w.flush()
	w.nextID++
	src := &gpu.GeometrySource{ID: w.nextID, Material: mat, Version: w.ad.frame}
	w.cur = &Primitive{
		Material: mat,
		Source:   src,
		Matrix:   m,
		Tint:     stage.White,
		Page:     page,
	}
	return src
}

func (w *walker) flush() {
	if w.cur == nil {
		return
	}
	p := w.cur
	w.cur = nil
	mat, _ := gpu.Builtin(p.Material)
	p.VertexCount = p.Source.VertexCount(mat.Stride)
	if p.VertexCount == 0 {
		return
	}
	w.list.Primitives = append(w.list.Primitives, *p)

	s := &w.list.Stats
	s.Primitives++
	s.Vertices += p.VertexCount
	s.GeometryBytes += p.Source.ByteLen()
	switch p.Material {
	case gpu.MaterialShadow:
		s.Shadows++
	case gpu.MaterialImage:
		s.Images++
	case gpu.MaterialGlyph:
		s.GlyphRuns++
	default:
		s.Shapes++
	}
}

func (w *walker) rect(n *scene.RectNode, m stage.Matrix, op float64) {
	if n.Width <= 0 || n.Height <= 0 {
		return
	}
	radius := n.Radius()
	if n.Shadow.Enabled() {
		col := n.Shadow.Color
		col.A *= op
		width := math.Max(n.Shadow.Blur, raster.AntialiasWidth)
		r := stage.Rect{
			MinX: n.Shadow.OffsetX, MinY: n.Shadow.OffsetY,
			MaxX: n.Width + n.Shadow.OffsetX, MaxY: n.Height + n.Shadow.OffsetY,
		}.Expand(width)
		src := w.batch(gpu.MaterialShadow, m, 0)
		appendShapeQuad(src, r,
			n.Width/2+n.Shadow.OffsetX, n.Height/2+n.Shadow.OffsetY,
			n.Width/2, n.Height/2, radius, n.Shadow.Blur, col)
	}
	if n.Fill.A > 0 {
		col := n.Fill
		col.A *= op
		src := w.batch(gpu.MaterialShape, m, 0)
		appendShapeQuad(src, stage.Rect{MaxX: n.Width, MaxY: n.Height},
			n.Width/2, n.Height/2, n.Width/2, n.Height/2, radius, -1, col)
	}
	if n.StrokeWidth > 0 && n.Stroke.A > 0 {
		col := n.Stroke
		col.A *= op
		hw := n.StrokeWidth / 2
		src := w.batch(gpu.MaterialShape, m, 0)
		appendShapeQuad(src, stage.Rect{MaxX: n.Width, MaxY: n.Height}.Expand(hw),
			n.Width/2, n.Height/2, n.Width/2, n.Height/2, radius, hw, col)
	}
}

func (w *walker) line(n *scene.LineNode, m stage.Matrix, op float64) {
	if n.Width <= 0 || n.Color.A <= 0 {
		return
	}
	col := n.Color
	col.A *= op
	hw := n.Width / 2
	length := math.Hypot(n.X2, n.Y2)
	if length == 0 {
		if n.Cap == scene.CapRound {
			src := w.batch(gpu.MaterialShape, m, 0)
			appendShapeQuad(src, stage.Rect{MinX: -hw, MinY: -hw, MaxX: hw, MaxY: hw},
				0, 0, hw, hw, hw, -1, col)
		}
		return
	}

	// Work in a frame rotated onto the segment so every dash is an
	// axis-aligned stadium and the whole line stays one batch.
	frame := m.Multiply(stage.Rotate(math.Atan2(n.Y2, n.X2)))
	src := w.batch(gpu.MaterialShape, frame, 0)

	emit := func(s, e float64) {
		halfW, radius := (e-s)/2, 0.0
		switch n.Cap {
		case scene.CapSquare:
			halfW += hw
		case scene.CapRound:
			halfW += hw
			radius = hw
		}
		cx := (s + e) / 2
		appendShapeQuad(src,
			stage.Rect{MinX: cx - halfW, MinY: -hw, MaxX: cx + halfW, MaxY: hw},
			cx, 0, halfW, hw, radius, -1, col)
	}

	if len(n.Dash) == 0 {
		emit(0, length)
		return
	}
	pos, di, on := 0.0, 0, true
	for pos < length {
		run := math.Min(n.Dash[di%len(n.Dash)], length-pos)
		if on && run > 0 {
			emit(pos, pos+run)
		}
		pos += run
		di++
		on = !on
		if run == 0 && pos < length {
			// Zero-length dash entry; skip to avoid spinning.
			pos += 1e-6
		}
	}
}

func (w *walker) arc(n *scene.ArcNode, m stage.Matrix, op float64) {
	if n.Radius <= 0 {
		return
	}
	full := arcSweep(n.StartAngle, n.EndAngle, n.Anticlockwise) >= 2*math.Pi
	r := n.Radius
	box := stage.Rect{MinX: -r, MinY: -r, MaxX: r, MaxY: r}

	if n.Fill.A > 0 {
		if full {
			col := n.Fill
			col.A *= op
			src := w.batch(gpu.MaterialShape, m, 0)
			appendShapeQuad(src, box, 0, 0, r, r, r, -1, col)
		} else {
			// Pie wedges need path rasterization; only the software
			// path draws them.
			w.list.Stats.Unsupported++
		}
	}
	if n.StrokeWidth > 0 && n.Stroke.A > 0 {
		if full {
			col := n.Stroke
			col.A *= op
			hw := n.StrokeWidth / 2
			src := w.batch(gpu.MaterialShape, m, 0)
			appendShapeQuad(src, box.Expand(hw), 0, 0, r, r, r, hw, col)
		} else {
			w.list.Stats.Unsupported++
		}
	}
}

// arcSweep normalizes an arc to a positive sweep, matching canvas arc
// direction semantics.
func arcSweep(start, end float64, anticlockwise bool) float64 {
	if anticlockwise {
		start, end = end, start
	}
	sweep := math.Mod(end-start, 2*math.Pi)
	if sweep < 0 {
		sweep += 2 * math.Pi
	}
	if sweep == 0 && end != start {
		sweep = 2 * math.Pi
	}
	return sweep
}

func (w *walker) path(n *scene.PathNode) {
	if len(n.Verbs) == 0 {
		return
	}
	if n.Fill.A > 0 {
		w.list.Stats.Unsupported++
	}
	if n.StrokeWidth > 0 && n.Stroke.A > 0 {
		w.list.Stats.Unsupported++
	}
}

func (w *walker) text(n *scene.TextNode, m stage.Matrix, op float64) {
	if n.Text == "" {
		return
	}
	if n.Shadow.Enabled() {
		sm := m.Multiply(stage.Translate(n.Shadow.OffsetX, n.Shadow.OffsetY))
		w.textRun(n, sm, n.Shadow.Color, op)
	}
	if n.StrokeWidth > 0 && n.Stroke.A > 0 {
		for _, o := range strokeOffsets(n.StrokeWidth) {
			w.textRun(n, m.Multiply(stage.Translate(o[0], o[1])), n.Stroke, op)
		}
	}
	if n.Fill.A > 0 {
		w.textRun(n, m, n.Fill, op)
	}
}

// strokeOffsets is the ring of glyph-run offsets that emulates a text
// outline: the run is redrawn in the stroke color at eight positions
// half the stroke width out from the fill, which is drawn on top. Both
// renderers use the same ring so their output stays comparable.
func strokeOffsets(width float64) [8][2]float64 {
	d := width / 2
	k := d * math.Sqrt2 / 2
	return [8][2]float64{
		{d, 0}, {-d, 0}, {0, d}, {0, -d},
		{k, k}, {k, -k}, {-k, k}, {-k, -k},
	}
}

func (w *walker) textRun(n *scene.TextNode, m stage.Matrix, col stage.RGBA, op float64) {
	res := w.ad.atlas.Layout(n.Text, n.Font, col, n.Align, n.Baseline, m, op)
	if res == nil {
		return
	}
	c := res.Color
	c.A *= res.Opacity
	if c.A <= 0 {
		return
	}
	for i := range res.Quads {
		q := &res.Quads[i]
		src := w.batch(gpu.MaterialGlyph, stage.Identity(), q.Page)
		appendGlyphQuad(src, q, c)
	}
}

func (w *walker) image(n *scene.ImageNode, m stage.Matrix, op float64) {
	dst, ok := n.Placement()
	if !ok {
		return
	}
	entry, ok := n.Arena.Lookup(n.Image)
	if !ok {
		return
	}
	tint := n.Tint
	tint.A *= op
	if tint.A <= 0 {
		return
	}

	// Images never merge: each node samples its own texture.
	w.flush()
	w.nextID++
	src := &gpu.GeometrySource{ID: w.nextID, Material: gpu.MaterialImage, Version: w.ad.frame}
	appendImageQuad(src, dst)
	w.cur = &Primitive{
		Material: gpu.MaterialImage,
		Source:   src,
		Matrix:   m,
		Tint:     tint,
		Image:    n.Image,
		Entry:    entry,
	}
	w.flush()
}

func (w *walker) particles(n *scene.ParticlesNode, m stage.Matrix, op float64) {
	if len(n.Particles) == 0 {
		return
	}
	src := w.batch(gpu.MaterialShape, m, 0)
	for i := range n.Particles {
		p := &n.Particles[i]
		h := p.Size / 2
		if h <= 0 || p.Opacity <= 0 || p.Color.A <= 0 {
			continue
		}
		col := p.Color
		col.A *= p.Opacity
		col.A *= op
		appendShapeQuad(src,
			stage.Rect{MinX: p.X - h, MinY: p.Y - h, MaxX: p.X + h, MaxY: p.Y + h},
			p.X, p.Y, h, h, h, -1, col)
	}
}

// appendShapeQuad emits the six vertices of one shape or shadow quad:
// corner positions spanning r with uniform SDF parameters and color.
func appendShapeQuad(src *gpu.GeometrySource, r stage.Rect, cx, cy, hw, hh, radius, param float64, col stage.RGBA) {
	corners := [6][2]float64{
		{r.MinX, r.MinY}, {r.MaxX, r.MinY}, {r.MaxX, r.MaxY},
		{r.MinX, r.MinY}, {r.MaxX, r.MaxY}, {r.MinX, r.MaxY},
	}
	for _, c := range corners {
		src.Data = append(src.Data,
			float32(c[0]), float32(c[1]),
			float32(cx), float32(cy),
			float32(hw), float32(hh),
			float32(radius), float32(param),
			float32(col.R), float32(col.G), float32(col.B), float32(col.A))
	}
}

func appendGlyphQuad(src *gpu.GeometrySource, q *text.Quad, col stage.RGBA) {
	uv := [4][2]float64{{q.U0, q.V0}, {q.U1, q.V0}, {q.U1, q.V1}, {q.U0, q.V1}}
	order := [6]int{0, 1, 2, 0, 2, 3} // TL, TR, BR, TL, BR, BL
	for _, i := range order {
		src.Data = append(src.Data,
			float32(q.P[i].X), float32(q.P[i].Y),
			float32(uv[i][0]), float32(uv[i][1]),
			float32(col.R), float32(col.G), float32(col.B), float32(col.A))
	}
}

func appendImageQuad(src *gpu.GeometrySource, dst stage.Rect) {
	pos := [4][2]float64{
		{dst.MinX, dst.MinY}, {dst.MaxX, dst.MinY},
		{dst.MaxX, dst.MaxY}, {dst.MinX, dst.MaxY},
	}
	uv := [4][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	order := [6]int{0, 1, 2, 0, 2, 3}
	for _, i := range order {
		src.Data = append(src.Data,
			float32(pos[i][0]), float32(pos[i][1]),
			float32(uv[i][0]), float32(uv[i][1]))
	}
}
