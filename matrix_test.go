package stage

import (
	"math"
	"testing"
)

func TestComposeOrder(t *testing.T) {
	// Compose must equal T * R * S * K built by hand.
	x, y := 12.0, -7.5
	rot := math.Pi / 5
	sx, sy := 2.0, 0.5
	kx, ky := 0.3, -0.1

	want := Translate(x, y).
		Multiply(Rotate(rot)).
		Multiply(Scale(sx, sy)).
		Multiply(Skew(kx, ky))
	got := Compose(x, y, rot, sx, sy, kx, ky)

	if !matrixNear(got, want, 1e-12) {
		t.Errorf("Compose = %+v, want %+v", got, want)
	}
}

func TestComposeIdentityComponents(t *testing.T) {
	got := Compose(0, 0, 0, 1, 1, 0, 0)
	if !got.IsIdentity() {
		t.Errorf("Compose with neutral components = %+v, want identity", got)
	}
}

func TestTransformRectIsCornerUnion(t *testing.T) {
	tests := []struct {
		name string
		m    Matrix
	}{
		{"identity", Identity()},
		{"translate", Translate(100, -40)},
		{"rotate", Rotate(math.Pi / 3)},
		{"scale", Scale(3, 0.25)},
		{"skew", Skew(0.4, 0.2)},
		{"composed", Compose(5, 9, 1.1, 2, 3, 0.2, 0.1)},
	}
	r := Rect{MinX: -2, MinY: 1, MaxX: 7, MaxY: 5}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.m.TransformRect(r)

			want := EmptyRect()
			for _, c := range []Point{
				{r.MinX, r.MinY}, {r.MaxX, r.MinY},
				{r.MaxX, r.MaxY}, {r.MinX, r.MaxY},
			} {
				p := tt.m.TransformPoint(c)
				want = want.UnionPoint(p.X, p.Y)
			}

			if !rectNear(got, want, 1e-6) {
				t.Errorf("TransformRect = %+v, want %+v", got, want)
			}
		})
	}
}

func TestInvertRoundTrip(t *testing.T) {
	m := Compose(3, -8, 0.7, 1.5, 2.5, 0.1, 0)
	inv := m.Invert()
	p := Point{X: 4.25, Y: -1.5}

	q := inv.TransformPoint(m.TransformPoint(p))
	if math.Abs(q.X-p.X) > 1e-9 || math.Abs(q.Y-p.Y) > 1e-9 {
		t.Errorf("Invert round trip = %+v, want %+v", q, p)
	}
}

func TestInvertSingular(t *testing.T) {
	m := Scale(0, 0).Invert()
	if !m.IsIdentity() {
		t.Errorf("Invert of singular matrix = %+v, want identity", m)
	}
}

func matrixNear(a, b Matrix, eps float64) bool {
	return math.Abs(a.A-b.A) < eps && math.Abs(a.B-b.B) < eps &&
		math.Abs(a.C-b.C) < eps && math.Abs(a.D-b.D) < eps &&
		math.Abs(a.E-b.E) < eps && math.Abs(a.F-b.F) < eps
}

func rectNear(a, b Rect, eps float64) bool {
	return math.Abs(a.MinX-b.MinX) < eps && math.Abs(a.MinY-b.MinY) < eps &&
		math.Abs(a.MaxX-b.MaxX) < eps && math.Abs(a.MaxY-b.MaxY) < eps
}
