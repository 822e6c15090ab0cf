package stage

import (
	"math"
	"testing"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want RGBA
	}{
		{"#fff", White},
		{"#000", Black},
		{"#f00", Red},
		{"#ff0000", Red},
		{"#ff000080", RGBA{R: 1, A: 128.0 / 255}},
		{"#f008", RGBA{R: 1, A: 136.0 / 255}},
		{"transparent", Transparent},
		{"rgb(255, 0, 0)", Red},
		{"rgb(100%, 0%, 0%)", Red},
		{"rgba(0, 0, 255, 0.5)", RGBA{B: 1, A: 0.5}},
		{"rgba(0%, 100%, 0%, 50%)", RGBA{G: 1, A: 0.5}},
		{"hsl(0, 100%, 50%)", Red},
		{"hsl(120, 100%, 50%)", Green},
		{"hsla(240, 100%, 50%, 0.25)", RGBA{B: 1, A: 0.25}},
		{"red", Red},
		{"White", White},
		{"  #00ff00  ", Green},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if err != nil {
				t.Fatalf("ParseColor(%q) error: %v", tt.in, err)
			}
			if !colorNear(got, tt.want, 1e-6) {
				t.Errorf("ParseColor(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseColorErrors(t *testing.T) {
	for _, in := range []string{"", "#12345", "rgb(1,2)", "notacolorname", "hsl(a,b%,c%)"} {
		if _, err := ParseColor(in); err == nil {
			t.Errorf("ParseColor(%q) succeeded, want error", in)
		}
	}
}

func TestPremultiply(t *testing.T) {
	c := RGBA{R: 1, G: 0.5, B: 0, A: 0.5}.Premultiply()
	want := RGBA{R: 0.5, G: 0.25, B: 0, A: 0.5}
	if !colorNear(c, want, 1e-9) {
		t.Errorf("Premultiply = %+v, want %+v", c, want)
	}
}

func TestNRGBA8Rounds(t *testing.T) {
	r, g, b, a := RGBA{R: 0.5, G: 1, B: 0, A: 1}.NRGBA8()
	if r != 128 || g != 255 || b != 0 || a != 255 {
		t.Errorf("NRGBA8 = %d,%d,%d,%d", r, g, b, a)
	}
}

func colorNear(a, b RGBA, eps float64) bool {
	return math.Abs(a.R-b.R) < eps && math.Abs(a.G-b.G) < eps &&
		math.Abs(a.B-b.B) < eps && math.Abs(a.A-b.A) < eps
}
