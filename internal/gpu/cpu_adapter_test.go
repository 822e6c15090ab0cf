package gpu

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"github.com/gogpu/stage"
	"github.com/gogpu/stage/internal/raster"
)

// shapeQuad builds the six vertices of one shape quad: local corner
// positions with uniform SDF parameters and color.
func shapeQuad(x0, y0, x1, y1, radius, param float64, col stage.RGBA) []float32 {
	cx, cy := float32((x0+x1)/2), float32((y0+y1)/2)
	hw, hh := float32((x1-x0)/2), float32((y1-y0)/2)
	corners := [6][2]float32{
		{float32(x0), float32(y0)}, {float32(x1), float32(y0)}, {float32(x1), float32(y1)},
		{float32(x0), float32(y0)}, {float32(x1), float32(y1)}, {float32(x0), float32(y1)},
	}
	out := make([]float32, 0, 6*ShapeVertexFloats)
	for _, c := range corners {
		out = append(out, c[0], c[1], cx, cy, hw, hh,
			float32(radius), float32(param),
			float32(col.R), float32(col.G), float32(col.B), float32(col.A))
	}
	return out
}

func renderShapeFrame(t *testing.T, verts []float32, u Uniforms) []byte {
	t.Helper()
	ad := NewCPUAdapter()
	defer ad.Destroy()

	reg := NewProgramRegistry(ad)
	pid, err := reg.ResolveBuiltin(MaterialShape)
	if err != nil {
		t.Fatalf("ResolveBuiltin: %v", err)
	}
	buf, err := ad.CreateBuffer("verts", len(verts)*4)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	if err := ad.WriteBuffer(buf, 0, floatBytes(verts)); err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}
	frame := &Frame{
		Width: 64, Height: 64,
		Clear: stage.White,
		Draws: []Draw{{
			Program: pid, Material: MaterialShape,
			Vertices: buf, VertexCount: len(verts) / ShapeVertexFloats,
			Uniforms: u,
		}},
	}
	if err := ad.RenderFrame(frame); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	pix, err := ad.ReadPixels()
	if err != nil {
		t.Fatalf("ReadPixels: %v", err)
	}
	return pix
}

// The CPU adapter must reproduce the software canvas byte for byte for
// the same shape.
func TestCPUAdapterMatchesCanvasFill(t *testing.T) {
	col := stage.RGBA{R: 0.2, G: 0.4, B: 0.9, A: 1}
	u := IdentityUniforms()
	u.Matrix = [6]float32{1, 0, 10, 0, 1, 10}

	pix := renderShapeFrame(t, shapeQuad(0, 0, 30, 20, 3, -1, col), u)

	ref := image.NewRGBA(image.Rect(0, 0, 64, 64))
	raster.ClearImage(ref, stage.White)
	canvas := raster.New(ref)
	canvas.Push(stage.Translate(10, 10), 1)
	canvas.FillRoundedRect(30, 20, 3, col)

	if !bytes.Equal(pix, ref.Pix) {
		t.Fatalf("fill output differs from software canvas")
	}
}

func TestCPUAdapterMatchesCanvasStroke(t *testing.T) {
	col := stage.RGBA{R: 0.9, G: 0.3, B: 0.1, A: 0.8}
	u := IdentityUniforms()
	u.Matrix = [6]float32{1, 0, 12, 0, 1, 16}

	// Stroke quads carry the half stroke width and cover the expanded
	// bounds.
	pix := renderShapeFrame(t, shapeQuad(-2, -2, 32, 22, 3, 2, col), u)

	ref := image.NewRGBA(image.Rect(0, 0, 64, 64))
	raster.ClearImage(ref, stage.White)
	canvas := raster.New(ref)
	canvas.Push(stage.Translate(12, 16), 1)
	canvas.StrokeRoundedRect(30, 20, 3, 4, col)

	if !bytes.Equal(pix, ref.Pix) {
		t.Fatalf("stroke output differs from software canvas")
	}
}

func TestCPUAdapterMatchesCanvasUnderRotation(t *testing.T) {
	col := stage.RGBA{R: 0, G: 0.6, B: 0.2, A: 1}
	rot := stage.Translate(32, 32).Multiply(stage.Rotate(0.5))
	u := IdentityUniforms()
	u.Matrix = [6]float32{
		float32(rot.A), float32(rot.B), float32(rot.C),
		float32(rot.D), float32(rot.E), float32(rot.F),
	}
	// Quantize through the uniform block so both paths see the same
	// float32 matrix.
	m := matrixFromUniforms(&u)

	pix := renderShapeFrame(t, shapeQuad(-10, -8, 10, 8, 2, -1, col), u)

	ref := image.NewRGBA(image.Rect(0, 0, 64, 64))
	raster.ClearImage(ref, stage.White)
	canvas := raster.New(ref)
	canvas.Push(m.Multiply(stage.Translate(-10, -8)), 1)
	canvas.FillRoundedRect(20, 16, 2, col)

	// The two paths factor the transform differently, so edge pixels
	// may round one step apart.
	for i := range pix {
		d := int(pix[i]) - int(ref.Pix[i])
		if d < -1 || d > 1 {
			t.Fatalf("pixel byte %d: %d vs %d", i, pix[i], ref.Pix[i])
		}
	}
}

func TestCPUAdapterReadBeforeRender(t *testing.T) {
	ad := NewCPUAdapter()
	if _, err := ad.ReadPixels(); err == nil {
		t.Fatalf("expected error before first frame")
	}
}

func TestCPUAdapterDestroy(t *testing.T) {
	ad := NewCPUAdapter()
	ad.Destroy()
	ad.Destroy()
	if _, err := ad.CreateBuffer("b", 16); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("CreateBuffer after Destroy: %v", err)
	}
	if err := ad.RenderFrame(&Frame{Width: 1, Height: 1}); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("RenderFrame after Destroy: %v", err)
	}
}

func TestCPUAdapterRejectsUnknownResources(t *testing.T) {
	ad := NewCPUAdapter()
	reg := NewProgramRegistry(ad)
	pid, err := reg.ResolveBuiltin(MaterialShape)
	if err != nil {
		t.Fatalf("ResolveBuiltin: %v", err)
	}
	frame := &Frame{
		Width: 8, Height: 8,
		Draws: []Draw{{Program: pid, Material: MaterialShape, Vertices: 99, VertexCount: 6}},
	}
	if err := ad.RenderFrame(frame); !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("missing vertex buffer: %v", err)
	}
	frame.Draws[0].Program = 42
	if err := ad.RenderFrame(frame); !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("missing program: %v", err)
	}
}
