package render

import (
	"image"
	"math"
	"testing"

	"github.com/gogpu/stage"
	"github.com/gogpu/stage/internal/gpu"
	"github.com/gogpu/stage/scene"
)

func adaptNodes(nodes ...scene.Node) *PrimitiveList {
	return NewAdapter(nil).Adapt(nodes, stage.Identity())
}

func TestAdaptMergesFillAndStroke(t *testing.T) {
	n := scene.NewRect(30, 20)
	n.Fill = stage.Blue
	n.Stroke = stage.Red
	n.StrokeWidth = 2
	n.Shadow = scene.Shadow{Color: stage.Black, Blur: 4, OffsetY: 2}

	list := adaptNodes(n)
	if len(list.Primitives) != 2 {
		t.Fatalf("%d primitives, want 2 (shadow, merged fill+stroke)", len(list.Primitives))
	}
	if list.Primitives[0].Material != gpu.MaterialShadow {
		t.Fatalf("first primitive is %d, want shadow", list.Primitives[0].Material)
	}
	shape := list.Primitives[1]
	if shape.Material != gpu.MaterialShape {
		t.Fatalf("second primitive is %d, want shape", shape.Material)
	}
	if shape.VertexCount != 12 {
		t.Fatalf("merged fill+stroke has %d vertices, want 12", shape.VertexCount)
	}
	if list.Stats.Shadows != 1 || list.Stats.Shapes != 1 {
		t.Fatalf("stats %+v, want 1 shadow and 1 shape", list.Stats)
	}
}

func TestAdaptShadowDrawsBeforeFill(t *testing.T) {
	n := scene.NewRect(10, 10)
	n.Fill = stage.White
	n.Shadow = scene.Shadow{Color: stage.Black, Blur: 2}

	list := adaptNodes(n)
	if len(list.Primitives) != 2 ||
		list.Primitives[0].Material != gpu.MaterialShadow ||
		list.Primitives[1].Material != gpu.MaterialShape {
		t.Fatalf("paint order wrong: %+v", list.Primitives)
	}
}

func TestAdaptDashedLineStaysOneBatch(t *testing.T) {
	n := scene.NewLine(100, 0)
	n.Color = stage.Black
	n.Width = 2
	n.Dash = []float64{10, 5}

	list := adaptNodes(n)
	if len(list.Primitives) != 1 {
		t.Fatalf("%d primitives, want 1", len(list.Primitives))
	}
	// Runs on [0,10], [15,25], ... [90,100]: seven dashes.
	if got := list.Primitives[0].VertexCount; got != 7*6 {
		t.Fatalf("dash batch has %d vertices, want 42", got)
	}
}

func TestAdaptLineFrameFollowsDirection(t *testing.T) {
	n := scene.NewLine(0, 50)
	n.Color = stage.Black
	n.Width = 4

	list := adaptNodes(n)
	if len(list.Primitives) != 1 {
		t.Fatalf("%d primitives, want 1", len(list.Primitives))
	}
	m := list.Primitives[0].Matrix
	// Rotated by π/2: local +x maps to device +y.
	p := m.TransformPoint(stage.Pt(50, 0))
	if math.Abs(p.X) > 1e-9 || math.Abs(p.Y-50) > 1e-9 {
		t.Fatalf("line frame maps (50,0) to (%g,%g), want (0,50)", p.X, p.Y)
	}
}

func TestAdaptFullCircleArcIsShape(t *testing.T) {
	n := scene.NewArc(20, 0, 2*math.Pi)
	n.Fill = stage.Green
	n.Stroke = stage.Black
	n.StrokeWidth = 3

	list := adaptNodes(n)
	if len(list.Primitives) != 1 || list.Primitives[0].VertexCount != 12 {
		t.Fatalf("full circle: %+v", list.Primitives)
	}
	if list.Stats.Unsupported != 0 {
		t.Fatalf("full circle counted unsupported")
	}
}

func TestAdaptCountsUnsupported(t *testing.T) {
	arc := scene.NewArc(20, 0, math.Pi/2)
	arc.Stroke = stage.Black

	path := scene.NewPath().MoveTo(0, 0).LineTo(10, 10)
	path.Fill = stage.Red

	list := adaptNodes(arc, path)
	if len(list.Primitives) != 0 {
		t.Fatalf("unsupported nodes emitted %d primitives", len(list.Primitives))
	}
	if list.Stats.Unsupported != 2 {
		t.Fatalf("Unsupported = %d, want 2", list.Stats.Unsupported)
	}
}

func TestAdaptPrunesInvisibleSubtrees(t *testing.T) {
	hidden := scene.NewRect(10, 10)
	hidden.Fill = stage.Red
	hidden.Visible = false

	faded := scene.NewGroup()
	faded.Opacity = 0
	child := scene.NewRect(10, 10)
	child.Fill = stage.Blue
	faded.Add(child)

	list := adaptNodes(hidden, faded)
	if len(list.Primitives) != 0 {
		t.Fatalf("invisible subtree emitted %d primitives", len(list.Primitives))
	}
}

func TestAdaptParticlesOneBatch(t *testing.T) {
	n := scene.NewParticles()
	n.Particles = []scene.Particle{
		{X: 10, Y: 10, Size: 4, Color: stage.Red, Opacity: 1},
		{X: 20, Y: 10, Size: 4, Color: stage.Red, Opacity: 0.5},
		{X: 30, Y: 10, Size: 0, Color: stage.Red, Opacity: 1},  // degenerate
		{X: 40, Y: 10, Size: 4, Color: stage.Red, Opacity: 0},  // fully faded
	}

	list := adaptNodes(n)
	if len(list.Primitives) != 1 {
		t.Fatalf("%d primitives, want 1", len(list.Primitives))
	}
	if got := list.Primitives[0].VertexCount; got != 12 {
		t.Fatalf("%d vertices, want 12 (two live particles)", got)
	}
}

func TestAdaptImageNeverMerges(t *testing.T) {
	arena := scene.NewArena()
	id := arena.Acquire(image.NewRGBA(image.Rect(0, 0, 4, 4)))

	left := scene.NewRect(8, 8)
	left.Fill = stage.Red
	img := scene.NewImage(arena, id, 8, 8)
	right := scene.NewRect(8, 8)
	right.Fill = stage.Red

	list := adaptNodes(left, img, right)
	if len(list.Primitives) != 3 {
		t.Fatalf("%d primitives, want 3", len(list.Primitives))
	}
	p := list.Primitives[1]
	if p.Material != gpu.MaterialImage || p.Image != id || p.Entry == nil {
		t.Fatalf("image primitive wrong: %+v", p)
	}
	if p.Tint != stage.White {
		t.Fatalf("default tint = %+v, want white", p.Tint)
	}
	if list.Stats.Images != 1 {
		t.Fatalf("Images = %d, want 1", list.Stats.Images)
	}
}

func TestAdaptTextStrokeEmitsRuns(t *testing.T) {
	n := scene.NewText("ab")
	n.Fill = stage.Transparent
	n.Stroke = stage.Black
	n.StrokeWidth = 2

	list := adaptNodes(n)
	if list.Stats.GlyphRuns == 0 {
		t.Fatalf("stroke-only text emitted no glyph runs")
	}
	var verts int
	for i := range list.Primitives {
		p := &list.Primitives[i]
		if p.Material != gpu.MaterialGlyph {
			t.Fatalf("primitive %d is %d, want glyph", i, p.Material)
		}
		verts += p.VertexCount
	}
	// Eight outline passes, two glyphs, six vertices each.
	if verts != 8*2*6 {
		t.Fatalf("stroke vertices = %d, want %d", verts, 8*2*6)
	}
}

func TestAdaptOpacityScalesVertexAlpha(t *testing.T) {
	g := scene.NewGroup()
	g.Opacity = 0.5
	n := scene.NewRect(10, 10)
	n.Opacity = 0.5
	n.Fill = stage.RGBA{R: 1, A: 1}
	g.Add(n)

	list := adaptNodes(g)
	if len(list.Primitives) != 1 {
		t.Fatalf("%d primitives, want 1", len(list.Primitives))
	}
	// Vertex layout: color alpha is float 11.
	alpha := list.Primitives[0].Source.Data[11]
	if alpha != 0.25 {
		t.Fatalf("vertex alpha = %g, want 0.25", alpha)
	}
}

func TestAdaptVersionAdvancesPerPass(t *testing.T) {
	n := scene.NewRect(10, 10)
	n.Fill = stage.Red

	ad := NewAdapter(nil)
	l1 := ad.Adapt([]scene.Node{n}, stage.Identity())
	l2 := ad.Adapt([]scene.Node{n}, stage.Identity())
	if l1.Primitives[0].Source.Version == l2.Primitives[0].Source.Version {
		t.Fatalf("geometry version did not advance between passes")
	}
}
