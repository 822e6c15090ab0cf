package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/stage"
)

//go:embed shaders/shape.wgsl
var shapeWGSL string

//go:embed shaders/shadow.wgsl
var shadowWGSL string

//go:embed shaders/image.wgsl
var imageWGSL string

//go:embed shaders/glyph.wgsl
var glyphWGSL string

// MaterialID identifies a material. The built-in materials own the low
// range.
type MaterialID uint32

const (
	MaterialShape MaterialID = iota + 1
	MaterialShadow
	MaterialImage
	MaterialGlyph
)

// Attribute describes one vertex attribute of a material's interleaved
// layout. Offset is in floats from the start of the vertex.
type Attribute struct {
	Name       string
	Components int
	Offset     int
}

// Material pairs a WGSL compute kernel with its vertex layout. The
// kernel entry point is main.
type Material struct {
	ID   MaterialID
	Name string
	WGSL string

	// Attributes is the interleaved vertex layout; Stride is in
	// floats.
	Attributes []Attribute
	Stride     int

	// Samples reports whether the kernel binds a texel buffer.
	Samples bool
}

// Built-in vertex strides in floats.
const (
	ShapeVertexFloats = 12 // pos2, center2, half2, radius+param, color4
	ImageVertexFloats = 4  // pos2, uv2
	GlyphVertexFloats = 8  // pos2, uv2, color4
)

var builtins = map[MaterialID]*Material{
	MaterialShape: {
		ID:   MaterialShape,
		Name: "shape",
		WGSL: shapeWGSL,
		Attributes: []Attribute{
			{Name: "pos", Components: 2, Offset: 0},
			{Name: "center", Components: 2, Offset: 2},
			{Name: "half_size", Components: 2, Offset: 4},
			{Name: "shape", Components: 2, Offset: 6},
			{Name: "color", Components: 4, Offset: 8},
		},
		Stride: ShapeVertexFloats,
	},
	MaterialShadow: {
		ID:   MaterialShadow,
		Name: "shadow",
		WGSL: shadowWGSL,
		Attributes: []Attribute{
			{Name: "pos", Components: 2, Offset: 0},
			{Name: "center", Components: 2, Offset: 2},
			{Name: "half_size", Components: 2, Offset: 4},
			{Name: "shape", Components: 2, Offset: 6},
			{Name: "color", Components: 4, Offset: 8},
		},
		Stride: ShapeVertexFloats,
	},
	MaterialImage: {
		ID:   MaterialImage,
		Name: "image",
		WGSL: imageWGSL,
		Attributes: []Attribute{
			{Name: "pos", Components: 2, Offset: 0},
			{Name: "uv", Components: 2, Offset: 2},
		},
		Stride:  ImageVertexFloats,
		Samples: true,
	},
	MaterialGlyph: {
		ID:   MaterialGlyph,
		Name: "glyph",
		WGSL: glyphWGSL,
		Attributes: []Attribute{
			{Name: "pos", Components: 2, Offset: 0},
			{Name: "uv", Components: 2, Offset: 2},
			{Name: "color", Components: 4, Offset: 4},
		},
		Stride:  GlyphVertexFloats,
		Samples: true,
	},
}

// Builtin returns a built-in material definition.
func Builtin(id MaterialID) (*Material, bool) {
	m, ok := builtins[id]
	return m, ok
}

// BuiltinMaterials returns all built-in materials in ID order.
func BuiltinMaterials() []*Material {
	return []*Material{
		builtins[MaterialShape],
		builtins[MaterialShadow],
		builtins[MaterialImage],
		builtins[MaterialGlyph],
	}
}

// ProgramRegistry compiles materials once per adapter and caches the
// resulting program for the adapter's lifetime. A failed compile is
// returned but never cached, so a later attempt recompiles.
type ProgramRegistry struct {
	adapter  Adapter
	programs map[MaterialID]ProgramID
}

// NewProgramRegistry creates a registry bound to an adapter.
func NewProgramRegistry(a Adapter) *ProgramRegistry {
	return &ProgramRegistry{
		adapter:  a,
		programs: make(map[MaterialID]ProgramID),
	}
}

// Resolve returns the compiled program for a material, compiling on
// first use.
func (r *ProgramRegistry) Resolve(m *Material) (ProgramID, error) {
	if id, ok := r.programs[m.ID]; ok {
		return id, nil
	}
	id, err := r.adapter.CompileProgram(m)
	if err != nil {
		return 0, fmt.Errorf("compile material %q: %w", m.Name, err)
	}
	r.programs[m.ID] = id
	stage.Logger().Debug("program compiled", "material", m.Name, "program", uint32(id))
	return id, nil
}

// ResolveBuiltin resolves a built-in material by ID.
func (r *ProgramRegistry) ResolveBuiltin(id MaterialID) (ProgramID, error) {
	m, ok := builtins[id]
	if !ok {
		return 0, fmt.Errorf("gpu: unknown builtin material %d", id)
	}
	return r.Resolve(m)
}

// Reset drops every cached program without destroying adapter
// resources; used when the adapter itself was torn down (context loss)
// and its programs died with it.
func (r *ProgramRegistry) Reset(a Adapter) {
	r.adapter = a
	r.programs = make(map[MaterialID]ProgramID)
}

// Len returns the number of cached programs.
func (r *ProgramRegistry) Len() int { return len(r.programs) }
