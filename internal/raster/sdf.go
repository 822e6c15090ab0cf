package raster

import "math"

// AntialiasWidth is the smoothstep transition half-width in pixels.
// The WGSL shape shader uses the same constant so that fill-only
// integer-coordinate scenes produce identical bytes on both paths.
const AntialiasWidth = 0.7

// RoundedRectDist returns the signed distance from (px, py) to a
// rounded rectangle centered at (cx, cy). Negative inside.
func RoundedRectDist(px, py, cx, cy, halfW, halfH, radius float64) float64 {
	dx := math.Abs(px-cx) - halfW + radius
	dy := math.Abs(py-cy) - halfH + radius

	ox := math.Max(dx, 0)
	oy := math.Max(dy, 0)
	outside := math.Sqrt(ox*ox + oy*oy)
	inside := math.Min(math.Max(dx, dy), 0)
	return outside + inside - radius
}

// CircleDist returns the signed distance from (px, py) to a circle.
func CircleDist(px, py, cx, cy, radius float64) float64 {
	return math.Hypot(px-cx, py-cy) - radius
}

// StrokeDist converts a boundary distance to a stroke-band distance.
func StrokeDist(dist, halfWidth float64) float64 {
	return math.Abs(dist) - halfWidth
}

// coverage maps a signed distance to anti-aliased coverage in [0, 1]
// with a Hermite smoothstep over ±AntialiasWidth.
func Coverage(dist float64) float64 {
	return CoverageWidth(dist, AntialiasWidth)
}

// CoverageWidth is coverage with an explicit transition half-width;
// shadow falloff widens it to the blur radius.
func CoverageWidth(dist, w float64) float64 {
	if dist >= w {
		return 0
	}
	if dist <= -w {
		return 1
	}
	t := (dist + w) / (2 * w)
	return 1 - t*t*(3-2*t)
}
