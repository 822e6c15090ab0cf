package gpu

import (
	"strings"
	"testing"
)

func TestShaderSourcesEmbedded(t *testing.T) {
	for _, m := range BuiltinMaterials() {
		if m.WGSL == "" {
			t.Errorf("%s shader source is empty", m.Name)
		}
		if len(m.WGSL) < 100 {
			t.Errorf("%s shader source suspiciously short: %d bytes", m.Name, len(m.WGSL))
		}
	}
}

func TestShaderSourcesAreComputeKernels(t *testing.T) {
	required := []string{
		"@compute",
		"@workgroup_size(8, 8, 1)",
		"fn main",
		"@builtin(global_invocation_id)",
		"var<uniform> params",
		"var<storage, read> verts",
		"var<storage, read_write> pixels",
	}
	for _, m := range BuiltinMaterials() {
		for _, req := range required {
			if !strings.Contains(m.WGSL, req) {
				t.Errorf("%s shader missing %q", m.Name, req)
			}
		}
	}
}

func TestSamplingShadersBindTexels(t *testing.T) {
	for _, m := range BuiltinMaterials() {
		has := strings.Contains(m.WGSL, "var<storage, read> texels")
		if m.Samples && !has {
			t.Errorf("%s shader samples but binds no texel buffer", m.Name)
		}
		if !m.Samples && has {
			t.Errorf("%s shader binds texels but does not sample", m.Name)
		}
	}
}

func TestShapeShadersShareBlendAndSDF(t *testing.T) {
	for _, id := range []MaterialID{MaterialShape, MaterialShadow} {
		m, _ := Builtin(id)
		for _, req := range []string{"rounded_rect_dist", "blend_pixel", "smoothstep"} {
			if !strings.Contains(m.WGSL, req) {
				t.Errorf("%s shader missing %q", m.Name, req)
			}
		}
	}
}

func TestMaterialStridesMatchAttributes(t *testing.T) {
	for _, m := range BuiltinMaterials() {
		total := 0
		for _, a := range m.Attributes {
			if a.Offset != total {
				t.Errorf("%s attribute %s at offset %d, want %d", m.Name, a.Name, a.Offset, total)
			}
			total += a.Components
		}
		if total != m.Stride {
			t.Errorf("%s attributes cover %d floats, stride is %d", m.Name, total, m.Stride)
		}
	}
}
