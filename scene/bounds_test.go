package scene

import (
	"math"
	"testing"

	"github.com/gogpu/stage"
)

func rectNear(t *testing.T, got, want stage.Rect, tol float64) {
	t.Helper()
	if math.Abs(got.MinX-want.MinX) > tol || math.Abs(got.MinY-want.MinY) > tol ||
		math.Abs(got.MaxX-want.MaxX) > tol || math.Abs(got.MaxY-want.MaxY) > tol {
		t.Fatalf("rect %+v, want %+v", got, want)
	}
}

func TestVisualBoundsRotatedRect(t *testing.T) {
	n := NewRect(10, 20)
	n.X, n.Y = 5, 5
	n.Rotation = math.Pi / 2

	// Local corners rotate (x,y) -> (-y,x), then translate by (5,5).
	rectNear(t, VisualBounds(n), stage.Rect{MinX: -15, MinY: 5, MaxX: 5, MaxY: 15}, 1e-9)
}

func TestVisualBoundsCoversTransformedCorners(t *testing.T) {
	n := NewRect(30, 12)
	n.X, n.Y = 7, -3
	n.Rotation = 0.7
	n.ScaleX, n.ScaleY = 1.5, 0.5
	n.SkewX = 0.2

	r := VisualBounds(n)
	m := n.Matrix()

	// Every point on the box perimeter must land inside the bounds, and
	// the bounds must be tight against the transformed corners.
	tight := stage.EmptyRect()
	for i := 0; i <= 100; i++ {
		f := float64(i) / 100
		for _, pt := range []stage.Point{
			stage.Pt(30*f, 0), stage.Pt(30*f, 12),
			stage.Pt(0, 12*f), stage.Pt(30, 12*f),
		} {
			p := m.TransformPoint(pt)
			if p.X < r.MinX-1e-9 || p.X > r.MaxX+1e-9 ||
				p.Y < r.MinY-1e-9 || p.Y > r.MaxY+1e-9 {
				t.Fatalf("perimeter point (%g,%g) escapes bounds %+v", p.X, p.Y, r)
			}
			tight = tight.UnionPoint(p.X, p.Y)
		}
	}
	rectNear(t, r, tight, 1e-9)
}

func TestVisualBoundsUnionsDescendants(t *testing.T) {
	g := NewGroup()
	g.X, g.Y = 100, 100

	a := NewRect(10, 10)
	b := NewRect(10, 10)
	b.X, b.Y = 40, 20
	g.Add(a, b)

	rectNear(t, VisualBounds(g), stage.Rect{MinX: 100, MinY: 100, MaxX: 150, MaxY: 130}, 1e-9)
}

func TestLayoutBoundsExcludePrunesSubtree(t *testing.T) {
	g := NewGroup()
	g.Layout = LayoutExclude

	child := NewRect(10, 10)
	child.Layout = LayoutInclude
	g.Add(child)

	if _, ok := LayoutBounds(g); ok {
		t.Fatalf("excluded subtree still contributed layout bounds")
	}
}

func TestLayoutBoundsSkipsExcludedSibling(t *testing.T) {
	g := NewGroup()
	kept := NewRect(10, 10)
	dropped := NewRect(100, 100)
	dropped.X = 50
	dropped.Layout = LayoutExclude
	g.Add(kept, dropped)

	r, ok := LayoutBounds(g)
	if !ok {
		t.Fatalf("no layout bounds")
	}
	rectNear(t, r, stage.Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}, 1e-9)
}

func TestLayoutBoundsEligibleWithoutGeometry(t *testing.T) {
	// A tree of bare groups is policy-eligible even though nothing in
	// it has area; only exclusion may report ok=false.
	g := NewGroup()
	g.Add(NewGroup())

	r, ok := LayoutBounds(g)
	if !ok {
		t.Fatalf("group-only tree reported as excluded")
	}
	rectNear(t, r, stage.Rect{}, 0)
}

func TestLayoutBoundsEmptyWhenAllExcluded(t *testing.T) {
	n := NewRect(10, 10)
	n.Layout = LayoutExclude
	if _, ok := LayoutBounds(n); ok {
		t.Fatalf("fully excluded node reported bounds")
	}
}

func TestGroupHasNoOwnGeometry(t *testing.T) {
	if !NewGroup().LocalBounds().IsEmpty() {
		t.Fatalf("empty group has non-empty local bounds")
	}
}
