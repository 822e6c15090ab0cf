package gpu

import (
	"fmt"
	"image"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/stage"
	"github.com/gogpu/stage/internal/raster"
)

// CPUAdapter is the reference Adapter: it interprets the built-in
// material semantics on the CPU with the exact distance, coverage, and
// blend arithmetic of the software canvas. It backs headless tests and
// the parity guarantee between the two render paths.
type CPUAdapter struct {
	destroyed bool

	buffers  map[BufferID][]byte
	textures map[TextureID]*cpuTexture
	programs map[ProgramID]*Material

	nextBuffer  uint32
	nextTexture uint32
	nextProgram uint32

	target *image.RGBA
}

type cpuTexture struct {
	width, height int
	format        gputypes.TextureFormat
	pix           []byte
}

// NewCPUAdapter creates an empty CPU adapter.
func NewCPUAdapter() *CPUAdapter {
	return &CPUAdapter{
		buffers:  make(map[BufferID][]byte),
		textures: make(map[TextureID]*cpuTexture),
		programs: make(map[ProgramID]*Material),
	}
}

func (a *CPUAdapter) Name() string { return "cpu-reference" }

func (a *CPUAdapter) CreateBuffer(label string, size int) (BufferID, error) {
	if a.destroyed {
		return 0, ErrDestroyed
	}
	if size <= 0 {
		return 0, fmt.Errorf("gpu: buffer %q has invalid size %d", label, size)
	}
	a.nextBuffer++
	id := BufferID(a.nextBuffer)
	a.buffers[id] = make([]byte, size)
	return id, nil
}

func (a *CPUAdapter) WriteBuffer(id BufferID, offset int, data []byte) error {
	buf, ok := a.buffers[id]
	if !ok {
		return fmt.Errorf("gpu: write to buffer %d: %w", id, ErrUnknownResource)
	}
	if offset < 0 || offset+len(data) > len(buf) {
		return fmt.Errorf("gpu: write of %d bytes at %d overflows buffer %d (%d bytes)",
			len(data), offset, id, len(buf))
	}
	copy(buf[offset:], data)
	return nil
}

func (a *CPUAdapter) DestroyBuffer(id BufferID) { delete(a.buffers, id) }

func (a *CPUAdapter) CreateTexture(label string, width, height int, format gputypes.TextureFormat) (TextureID, error) {
	if a.destroyed {
		return 0, ErrDestroyed
	}
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("gpu: texture %q has invalid size %dx%d", label, width, height)
	}
	a.nextTexture++
	id := TextureID(a.nextTexture)
	a.textures[id] = &cpuTexture{
		width: width, height: height,
		format: format,
		pix:    make([]byte, width*height*texelSize(format)),
	}
	return id, nil
}

func (a *CPUAdapter) WriteTexture(id TextureID, region image.Rectangle, pixels []byte) error {
	t, ok := a.textures[id]
	if !ok {
		return fmt.Errorf("gpu: write to texture %d: %w", id, ErrUnknownResource)
	}
	ts := texelSize(t.format)
	w, h := region.Dx(), region.Dy()
	if len(pixels) < w*h*ts {
		return fmt.Errorf("gpu: texture write needs %d bytes, got %d", w*h*ts, len(pixels))
	}
	if region.Min.X < 0 || region.Min.Y < 0 || region.Max.X > t.width || region.Max.Y > t.height {
		return fmt.Errorf("gpu: texture write region %v outside %dx%d", region, t.width, t.height)
	}
	for y := 0; y < h; y++ {
		dst := t.pix[((region.Min.Y+y)*t.width+region.Min.X)*ts:]
		copy(dst[:w*ts], pixels[y*w*ts:(y+1)*w*ts])
	}
	return nil
}

func (a *CPUAdapter) DestroyTexture(id TextureID) { delete(a.textures, id) }

// CompileProgram accepts any material with non-empty WGSL; the CPU
// path dispatches on the material ID instead of executing the shader.
func (a *CPUAdapter) CompileProgram(m *Material) (ProgramID, error) {
	if a.destroyed {
		return 0, ErrDestroyed
	}
	if m.WGSL == "" {
		return 0, fmt.Errorf("gpu: material %q has no shader source", m.Name)
	}
	a.nextProgram++
	id := ProgramID(a.nextProgram)
	a.programs[id] = m
	return id, nil
}

func (a *CPUAdapter) DestroyProgram(id ProgramID) { delete(a.programs, id) }

func (a *CPUAdapter) RenderFrame(f *Frame) error {
	if a.destroyed {
		return ErrDestroyed
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("gpu: frame size %dx%d", f.Width, f.Height)
	}
	if a.target == nil || a.target.Bounds().Dx() != f.Width || a.target.Bounds().Dy() != f.Height {
		a.target = image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	}
	raster.ClearImage(a.target, f.Clear)

	for i := range f.Draws {
		d := &f.Draws[i]
		m, ok := a.programs[d.Program]
		if !ok {
			return fmt.Errorf("gpu: draw %d references program %d: %w", i, d.Program, ErrUnknownResource)
		}
		verts, err := a.vertexFloats(d, m)
		if err != nil {
			return err
		}
		switch m.ID {
		case MaterialShape:
			a.drawShapes(d, verts, false)
		case MaterialShadow:
			a.drawShapes(d, verts, true)
		case MaterialImage:
			if err := a.drawImages(d, verts); err != nil {
				return err
			}
		case MaterialGlyph:
			if err := a.drawGlyphs(d, verts); err != nil {
				return err
			}
		default:
			return fmt.Errorf("gpu: material %q has no CPU interpretation", m.Name)
		}
	}
	return nil
}

func (a *CPUAdapter) vertexFloats(d *Draw, m *Material) ([]float32, error) {
	buf, ok := a.buffers[d.Vertices]
	if !ok {
		return nil, fmt.Errorf("gpu: draw references buffer %d: %w", d.Vertices, ErrUnknownResource)
	}
	need := d.VertexCount * m.Stride * 4
	if need > len(buf) {
		return nil, fmt.Errorf("gpu: draw needs %d bytes of vertex data, buffer has %d", need, len(buf))
	}
	return bytesFloats(buf[:need]), nil
}

func matrixFromUniforms(u *Uniforms) stage.Matrix {
	return stage.Matrix{
		A: float64(u.Matrix[0]), B: float64(u.Matrix[1]), C: float64(u.Matrix[2]),
		D: float64(u.Matrix[3]), E: float64(u.Matrix[4]), F: float64(u.Matrix[5]),
	}
}

func tintFromUniforms(u *Uniforms) stage.RGBA {
	return stage.RGBA{
		R: float64(u.Tint[0]), G: float64(u.Tint[1]),
		B: float64(u.Tint[2]), A: float64(u.Tint[3]),
	}
}

// drawShapes interprets the shape and shadow materials: per-quad SDF
// evaluation in local space, mapped through the draw matrix.
func (a *CPUAdapter) drawShapes(d *Draw, verts []float32, shadow bool) {
	m := matrixFromUniforms(&d.Uniforms)
	tint := tintFromUniforms(&d.Uniforms)
	scale := math.Sqrt(math.Abs(m.A*m.E - m.B*m.D))
	if scale == 0 {
		return
	}
	inv := m.Invert()
	ib := a.target.Bounds()

	for q := 0; q+6 <= d.VertexCount; q += 6 {
		v := verts[q*ShapeVertexFloats:]
		// Quad corners TL and BR carry the local extent; SDF params are
		// uniform across the quad.
		tl := stage.Pt(float64(v[0]), float64(v[1]))
		br := stage.Pt(float64(v[2*ShapeVertexFloats]), float64(v[2*ShapeVertexFloats+1]))
		cx, cy := float64(v[2]), float64(v[3])
		hw, hh := float64(v[4]), float64(v[5])
		radius := float64(v[6])
		param := float64(v[7])
		col := stage.RGBA{
			R: float64(v[8]) * tint.R, G: float64(v[9]) * tint.G,
			B: float64(v[10]) * tint.B, A: float64(v[11]) * tint.A,
		}
		if col.A <= 0 {
			continue
		}

		aaWidth := raster.AntialiasWidth
		if shadow {
			aaWidth = math.Max(param, raster.AntialiasWidth)
		}

		dev := m.TransformRect(stage.NewRect(tl, br)).Expand(aaWidth + 1)
		x0 := int(math.Max(math.Floor(dev.MinX), float64(ib.Min.X)))
		y0 := int(math.Max(math.Floor(dev.MinY), float64(ib.Min.Y)))
		x1 := int(math.Min(math.Ceil(dev.MaxX), float64(ib.Max.X)))
		y1 := int(math.Min(math.Ceil(dev.MaxY), float64(ib.Max.Y)))

		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				p := inv.TransformPoint(stage.Pt(float64(x)+0.5, float64(y)+0.5))
				dist := raster.RoundedRectDist(p.X, p.Y, cx, cy, hw, hh, radius) * scale
				if !shadow && param >= 0 {
					dist = raster.StrokeDist(dist, param*scale)
				}
				if cov := raster.CoverageWidth(dist, aaWidth); cov > 0 {
					raster.BlendPixel(a.target, x, y, col, cov)
				}
			}
		}
	}
}

// drawImages interprets the image material by replaying each quad
// through the canvas image path.
func (a *CPUAdapter) drawImages(d *Draw, verts []float32) error {
	t, ok := a.textures[d.Texture]
	if !ok {
		return fmt.Errorf("gpu: image draw references texture %d: %w", d.Texture, ErrUnknownResource)
	}
	src := &image.RGBA{
		Pix:    t.pix,
		Stride: t.width * 4,
		Rect:   image.Rect(0, 0, t.width, t.height),
	}

	canvas := raster.New(a.target)
	canvas.Push(matrixFromUniforms(&d.Uniforms), 1)
	defer canvas.Pop()
	tint := tintFromUniforms(&d.Uniforms)

	for q := 0; q+6 <= d.VertexCount; q += 6 {
		v := verts[q*ImageVertexFloats:]
		tl := stage.Pt(float64(v[0]), float64(v[1]))
		br := stage.Pt(float64(v[2*ImageVertexFloats]), float64(v[2*ImageVertexFloats+1]))
		canvas.DrawImage(src, stage.NewRect(tl, br), tint)
	}
	return nil
}

// drawGlyphs interprets the glyph material with the canvas glyph-quad
// sampler over the R8 page texture.
func (a *CPUAdapter) drawGlyphs(d *Draw, verts []float32) error {
	t, ok := a.textures[d.Texture]
	if !ok {
		return fmt.Errorf("gpu: glyph draw references texture %d: %w", d.Texture, ErrUnknownResource)
	}
	if t.format != gputypes.TextureFormatR8Unorm {
		return fmt.Errorf("gpu: glyph draw expects R8 texture, got %v", t.format)
	}
	page := &image.Alpha{
		Pix:    t.pix,
		Stride: t.width,
		Rect:   image.Rect(0, 0, t.width, t.height),
	}

	canvas := raster.New(a.target)
	tint := tintFromUniforms(&d.Uniforms)

	for q := 0; q+6 <= d.VertexCount; q += 6 {
		v := verts[q*GlyphVertexFloats:]
		at := func(i int) []float32 { return v[i*GlyphVertexFloats:] }
		pts := [4]stage.Point{
			stage.Pt(float64(at(0)[0]), float64(at(0)[1])), // TL
			stage.Pt(float64(at(1)[0]), float64(at(1)[1])), // TR
			stage.Pt(float64(at(2)[0]), float64(at(2)[1])), // BR
			stage.Pt(float64(at(5)[0]), float64(at(5)[1])), // BL
		}
		u0, v0 := float64(at(0)[2]), float64(at(0)[3])
		u1, v1 := float64(at(2)[2]), float64(at(2)[3])
		col := stage.RGBA{
			R: float64(at(0)[4]) * tint.R, G: float64(at(0)[5]) * tint.G,
			B: float64(at(0)[6]) * tint.B, A: float64(at(0)[7]) * tint.A,
		}
		canvas.GlyphQuad(page, pts, u0, v0, u1, v1, col, 1)
	}
	return nil
}

func (a *CPUAdapter) ReadPixels() ([]byte, error) {
	if a.destroyed {
		return nil, ErrDestroyed
	}
	if a.target == nil {
		return nil, fmt.Errorf("gpu: no frame rendered")
	}
	out := make([]byte, len(a.target.Pix))
	copy(out, a.target.Pix)
	return out, nil
}

func (a *CPUAdapter) Destroy() {
	a.destroyed = true
	a.buffers = make(map[BufferID][]byte)
	a.textures = make(map[TextureID]*cpuTexture)
	a.programs = make(map[ProgramID]*Material)
	a.target = nil
}

// bytesFloats reinterprets little-endian bytes as float32 values.
func bytesFloats(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
