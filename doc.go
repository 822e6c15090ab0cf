// Package stage implements a retained-mode 2D scene renderer with two
// interchangeable backends: a software rasterizer and a GPU-accelerated
// path built on gogpu/wgpu.
//
// The root package holds the shared math: 2D affine transforms, points
// and axis-aligned rectangles, color parsing, and analytic Bézier
// bounds. The scene object model lives in the scene package, text and
// the glyph atlas in the text package, and the renderers in the render
// package.
//
// Both backends are required to produce pixel-equivalent output for
// scenes without antialiasing-sensitive features, so the software path
// doubles as the reference implementation for the GPU path.
package stage
