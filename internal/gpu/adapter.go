// Package gpu abstracts the accelerated render backend: an Adapter
// owns device resources (buffers, textures, compiled programs) and
// executes draw lists into an offscreen target with CPU readback.
//
// Two production implementations exist: a wgpu/hal-backed adapter and
// a CPU reference adapter that interprets the built-in material
// semantics with the exact arithmetic of the software canvas. The CPU
// adapter keeps every pipeline stage testable without a device.
package gpu

import (
	"errors"
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/stage"
)

var (
	ErrNoBackend       = errors.New("gpu: no usable backend available")
	ErrDeviceLost      = errors.New("gpu: device lost")
	ErrDestroyed       = errors.New("gpu: adapter destroyed")
	ErrUnknownResource = errors.New("gpu: unknown resource id")
	ErrBadProvider     = errors.New("gpu: device provider is not hal-compatible")
)

// Resource handles. IDs are adapter-scoped; the zero value is never a
// valid live resource.
type (
	BufferID  uint32
	TextureID uint32
	ProgramID uint32
)

// Uniforms is the per-draw uniform block shared by all built-in
// materials.
type Uniforms struct {
	// Matrix is the local-to-device transform, row-major a,b,c,d,e,f.
	Matrix [6]float32

	// Tint multiplies the sampled or vertex color; (1,1,1,1) is
	// neutral.
	Tint [4]float32
}

// IdentityUniforms returns a neutral uniform block.
func IdentityUniforms() Uniforms {
	return Uniforms{
		Matrix: [6]float32{1, 0, 0, 0, 1, 0},
		Tint:   [4]float32{1, 1, 1, 1},
	}
}

// Draw is one draw call: a compiled program, its vertex data, and an
// optional sampled texture.
type Draw struct {
	Program  ProgramID
	Material MaterialID

	Vertices    BufferID
	VertexCount int

	// Texture is sampled by image and glyph materials; zero for none.
	Texture TextureID

	Uniforms Uniforms
}

// Frame is a full frame submission: target size, clear color, and the
// ordered draw list.
type Frame struct {
	Width, Height int
	Clear         stage.RGBA
	Draws         []Draw
}

// Adapter is the device abstraction the accelerated renderer runs on.
//
// Resources are created and destroyed explicitly; destroying a
// resource that is referenced by an in-flight frame is undefined.
// Implementations are not required to be safe for concurrent use: the
// render goroutine owns the adapter.
type Adapter interface {
	// Name identifies the backing device for diagnostics.
	Name() string

	CreateBuffer(label string, size int) (BufferID, error)
	// WriteBuffer copies data into the buffer at a byte offset.
	WriteBuffer(id BufferID, offset int, data []byte) error
	DestroyBuffer(id BufferID)

	CreateTexture(label string, width, height int, format gputypes.TextureFormat) (TextureID, error)
	// WriteTexture copies tightly-packed pixels into a texture
	// subregion.
	WriteTexture(id TextureID, region image.Rectangle, pixels []byte) error
	DestroyTexture(id TextureID)

	// CompileProgram compiles and links a material's shader. Errors
	// carry the compile stage and the compiler log.
	CompileProgram(m *Material) (ProgramID, error)
	DestroyProgram(id ProgramID)

	// RenderFrame executes the draw list into the offscreen target,
	// reallocating it if the size changed.
	RenderFrame(f *Frame) error

	// ReadPixels returns the last rendered frame as tightly-packed
	// premultiplied RGBA bytes.
	ReadPixels() ([]byte, error)

	// Destroy releases every resource. The adapter is unusable
	// afterwards; Destroy is idempotent.
	Destroy()
}

// texelSize returns the bytes per texel for the formats the caches
// use.
func texelSize(format gputypes.TextureFormat) int {
	if format == gputypes.TextureFormatR8Unorm {
		return 1
	}
	return 4
}
