package stage

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// RGBA represents a color with red, green, blue, and alpha components.
// Each component is in the range [0, 1].
type RGBA struct {
	R, G, B, A float64
}

// Color converts RGBA to the standard color.Color interface.
func (c RGBA) Color() color.Color {
	return color.NRGBA{
		R: uint8(clamp255(c.R * 255)),
		G: uint8(clamp255(c.G * 255)),
		B: uint8(clamp255(c.B * 255)),
		A: uint8(clamp255(c.A * 255)),
	}
}

// FromColor converts a standard color.Color to RGBA.
func FromColor(c color.Color) RGBA {
	r, g, b, a := c.RGBA()
	if a == 0 {
		return RGBA{}
	}
	// color.Color returns premultiplied components.
	return RGBA{
		R: float64(r) / float64(a),
		G: float64(g) / float64(a),
		B: float64(b) / float64(a),
		A: float64(a) / 65535,
	}
}

// RGB creates an opaque color from RGB components.
func RGB(r, g, b float64) RGBA {
	return RGBA{R: r, G: g, B: b, A: 1.0}
}

// Premultiply returns a premultiplied color.
func (c RGBA) Premultiply() RGBA {
	return RGBA{
		R: c.R * c.A,
		G: c.G * c.A,
		B: c.B * c.A,
		A: c.A,
	}
}

// Lerp performs linear interpolation between two colors.
func (c RGBA) Lerp(other RGBA, t float64) RGBA {
	return RGBA{
		R: c.R + (other.R-c.R)*t,
		G: c.G + (other.G-c.G)*t,
		B: c.B + (other.B-c.B)*t,
		A: c.A + (other.A-c.A)*t,
	}
}

// NRGBA8 returns the color as 8-bit non-premultiplied components.
func (c RGBA) NRGBA8() (r, g, b, a uint8) {
	return uint8(clamp255(c.R*255 + 0.5)),
		uint8(clamp255(c.G*255 + 0.5)),
		uint8(clamp255(c.B*255 + 0.5)),
		uint8(clamp255(c.A*255 + 0.5))
}

// clamp255 restricts a value to [0, 255] range.
func clamp255(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return x
}

// Common colors
var (
	Black       = RGB(0, 0, 0)
	White       = RGB(1, 1, 1)
	Red         = RGB(1, 0, 0)
	Green       = RGB(0, 1, 0)
	Blue        = RGB(0, 0, 1)
	Transparent = RGBA{}
)

// ParseColor parses a CSS-style color string.
//
// Accepted forms: "#rgb", "#rgba", "#rrggbb", "#rrggbbaa",
// "rgb(r, g, b)" and "rgba(r, g, b, a)" with components as 0-255
// numbers or percentages, "hsl(h, s%, l%)" and "hsla(...)", the
// literal "transparent", and any named CSS color ("rebeccapurple").
func ParseColor(s string) (RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return RGBA{}, fmt.Errorf("stage: empty color string")
	case s == "transparent":
		return Transparent, nil
	case s[0] == '#':
		return parseHexColor(s)
	case strings.HasPrefix(s, "rgb(") || strings.HasPrefix(s, "rgba("):
		return parseRGBFunc(s)
	case strings.HasPrefix(s, "hsl(") || strings.HasPrefix(s, "hsla("):
		return parseHSLFunc(s)
	}
	if named, ok := colornames.Map[s]; ok {
		return FromColor(named), nil
	}
	return RGBA{}, fmt.Errorf("stage: unrecognized color %q", s)
}

// MustParseColor is like ParseColor but panics on error.
// Intended for constants and tests.
func MustParseColor(s string) RGBA {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

func parseHexColor(s string) (RGBA, error) {
	hex := s[1:]

	var r, g, b uint32
	a := uint32(255)

	switch len(hex) {
	case 3:
		parseHex(hex[0:1], &r)
		parseHex(hex[1:2], &g)
		parseHex(hex[2:3], &b)
		r, g, b = r*17, g*17, b*17
	case 4:
		parseHex(hex[0:1], &r)
		parseHex(hex[1:2], &g)
		parseHex(hex[2:3], &b)
		parseHex(hex[3:4], &a)
		r, g, b, a = r*17, g*17, b*17, a*17
	case 6:
		parseHex(hex[0:2], &r)
		parseHex(hex[2:4], &g)
		parseHex(hex[4:6], &b)
	case 8:
		parseHex(hex[0:2], &r)
		parseHex(hex[2:4], &g)
		parseHex(hex[4:6], &b)
		parseHex(hex[6:8], &a)
	default:
		return RGBA{}, fmt.Errorf("stage: invalid hex color %q", s)
	}

	return RGBA{
		R: float64(r) / 255,
		G: float64(g) / 255,
		B: float64(b) / 255,
		A: float64(a) / 255,
	}, nil
}

// parseHex is a helper for hex digit parsing.
func parseHex(s string, val *uint32) {
	*val = 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		*val *= 16
		switch {
		case '0' <= c && c <= '9':
			*val += uint32(c - '0')
		case 'a' <= c && c <= 'f':
			*val += uint32(c - 'a' + 10)
		default:
			return
		}
	}
}

// splitFuncArgs extracts the comma-separated arguments of "name(a, b, c)".
func splitFuncArgs(s string) []string {
	open := strings.IndexByte(s, '(')
	close := strings.LastIndexByte(s, ')')
	if open < 0 || close < open {
		return nil
	}
	parts := strings.Split(s[open+1:close], ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// parseChannel parses an rgb() channel: 0-255 number or percentage.
func parseChannel(s string) (float64, error) {
	if strings.HasSuffix(s, "%") {
		p, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, err
		}
		return clamp01(p / 100), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return clamp01(v / 255), nil
}

// parseAlpha parses an alpha component: 0-1 number or percentage.
func parseAlpha(s string) (float64, error) {
	if strings.HasSuffix(s, "%") {
		p, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 0, err
		}
		return clamp01(p / 100), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return clamp01(v), nil
}

func parseRGBFunc(s string) (RGBA, error) {
	args := splitFuncArgs(s)
	if len(args) != 3 && len(args) != 4 {
		return RGBA{}, fmt.Errorf("stage: invalid rgb() color %q", s)
	}

	var c RGBA
	var err error
	if c.R, err = parseChannel(args[0]); err != nil {
		return RGBA{}, fmt.Errorf("stage: invalid rgb() color %q: %w", s, err)
	}
	if c.G, err = parseChannel(args[1]); err != nil {
		return RGBA{}, fmt.Errorf("stage: invalid rgb() color %q: %w", s, err)
	}
	if c.B, err = parseChannel(args[2]); err != nil {
		return RGBA{}, fmt.Errorf("stage: invalid rgb() color %q: %w", s, err)
	}
	c.A = 1
	if len(args) == 4 {
		if c.A, err = parseAlpha(args[3]); err != nil {
			return RGBA{}, fmt.Errorf("stage: invalid rgb() color %q: %w", s, err)
		}
	}
	return c, nil
}

func parseHSLFunc(s string) (RGBA, error) {
	args := splitFuncArgs(s)
	if len(args) != 3 && len(args) != 4 {
		return RGBA{}, fmt.Errorf("stage: invalid hsl() color %q", s)
	}

	h, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "deg"), 64)
	if err != nil {
		return RGBA{}, fmt.Errorf("stage: invalid hsl() color %q: %w", s, err)
	}
	sat, err := strconv.ParseFloat(strings.TrimSuffix(args[1], "%"), 64)
	if err != nil {
		return RGBA{}, fmt.Errorf("stage: invalid hsl() color %q: %w", s, err)
	}
	l, err := strconv.ParseFloat(strings.TrimSuffix(args[2], "%"), 64)
	if err != nil {
		return RGBA{}, fmt.Errorf("stage: invalid hsl() color %q: %w", s, err)
	}

	c := HSL(h, clamp01(sat/100), clamp01(l/100))
	if len(args) == 4 {
		if c.A, err = parseAlpha(args[3]); err != nil {
			return RGBA{}, fmt.Errorf("stage: invalid hsl() color %q: %w", s, err)
		}
	}
	return c, nil
}

// HSL creates a color from HSL values.
// h is hue [0, 360), s is saturation [0, 1], l is lightness [0, 1].
func HSL(h, s, l float64) RGBA {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	h /= 360

	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h*6, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 1.0/6:
		r, g, b = c, x, 0
	case h < 2.0/6:
		r, g, b = x, c, 0
	case h < 3.0/6:
		r, g, b = 0, c, x
	case h < 4.0/6:
		r, g, b = 0, x, c
	case h < 5.0/6:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return RGB(r+m, g+m, b+m)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
