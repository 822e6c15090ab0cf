package text

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// DefaultFont is the font string used when a node does not set one.
const DefaultFont = "16px sans"

// defaultFamily is the family every unknown family resolves to.
const defaultFamily = "sans"

// fontSpec is a parsed font string.
type fontSpec struct {
	size   float64
	family string
}

// key returns the normalized cache-key form of the spec.
func (s fontSpec) key() string {
	return strconv.FormatFloat(s.size, 'g', -1, 64) + "px " + s.family
}

// parseFontSpec parses a CSS-like font string: an optional weight/style
// prefix (ignored), a "<size>px" token, and the family. Unparseable
// strings fall back to the default.
func parseFontSpec(s string) fontSpec {
	spec := fontSpec{size: 16, family: defaultFamily}
	fields := strings.Fields(strings.ToLower(s))
	for i, f := range fields {
		if !strings.HasSuffix(f, "px") {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(f, "px"), 64)
		if err != nil || v <= 0 {
			break
		}
		spec.size = v
		if i+1 < len(fields) {
			spec.family = strings.Join(fields[i+1:], " ")
		}
		break
	}
	return spec
}

// fontEntry holds the two parsed forms of one font file: the
// typesetting Font for shaping and the sfnt form for rasterization.
type fontEntry struct {
	family string
	shaped *font.Font
	sf     *sfnt.Font

	mu sync.Mutex
	// faces caches one rasterization face per requested pixel size.
	// xfont.Face is not safe for concurrent use; the atlas serializes
	// access through the entry mutex.
	faces map[float64]xfont.Face
}

// face returns a rasterization face for the given pixel size.
// The caller must hold e.mu while using the face.
func (e *fontEntry) face(size float64) (xfont.Face, error) {
	if f, ok := e.faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(e.sf, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: xfont.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("text: create face for %q at %gpx: %w", e.family, size, err)
	}
	e.faces[size] = f
	return f, nil
}

// Registry maps font family names to parsed fonts. Unknown families
// resolve to the default family, mirroring CSS font fallback.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	families map[string]*fontEntry
	fallback *fontEntry

	// shapers pools HarfbuzzShaper instances; they carry mutable
	// buffers and are not safe for concurrent use.
	shapers sync.Pool
}

// NewRegistry creates a registry preloaded with the embedded default
// face (Go Regular) under the "sans" family.
func NewRegistry() *Registry {
	r := &Registry{
		families: make(map[string]*fontEntry),
		shapers: sync.Pool{
			New: func() any { return &shaping.HarfbuzzShaper{} },
		},
	}
	// goregular is a known-good TTF; a parse failure here is a build
	// defect, not a runtime condition.
	if err := r.Register(defaultFamily, goregular.TTF); err != nil {
		panic(err)
	}
	return r
}

// Register parses the TTF data and makes it available under the family
// name. Registering an existing family replaces it.
func (r *Registry) Register(family string, ttf []byte) error {
	shaped, err := font.ParseTTF(bytes.NewReader(ttf))
	if err != nil {
		return fmt.Errorf("text: parse font %q: %w", family, err)
	}
	sf, err := opentype.Parse(ttf)
	if err != nil {
		return fmt.Errorf("text: parse font %q: %w", family, err)
	}

	entry := &fontEntry{
		family: strings.ToLower(family),
		shaped: shaped.Font,
		sf:     sf,
		faces:  make(map[float64]xfont.Face),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[entry.family] = entry
	if entry.family == defaultFamily || r.fallback == nil {
		r.fallback = entry
	}
	return nil
}

// resolve returns the entry for a family, falling back to the default.
func (r *Registry) resolve(family string) *fontEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.families[family]; ok {
		return e
	}
	return r.fallback
}

// shapeAdvance shapes a single cluster and returns its advance width in
// pixels. HarfBuzz handles glyph lookup including ligature-less
// clusters; per-cluster shaping deliberately skips cross-glyph kerning
// so that layout widths equal the sum of cached advances.
func (r *Registry) shapeAdvance(e *fontEntry, size float64, text []rune) float64 {
	if len(text) == 0 {
		return 0
	}
	in := shaping.Input{
		Text:      text,
		RunStart:  0,
		RunEnd:    len(text),
		Direction: di.DirectionLTR,
		Face:      font.NewFace(e.shaped),
		Size:      fixed.Int26_6(size * 64),
		Script:    language.LookupScript(text[0]),
		Language:  language.NewLanguage("en"),
	}
	hb := r.shapers.Get().(*shaping.HarfbuzzShaper)
	out := hb.Shape(in)
	r.shapers.Put(hb)

	var adv fixed.Int26_6
	for _, g := range out.Glyphs {
		adv += g.XAdvance
	}
	return float64(adv) / 64
}

// defaultRegistry is the registry used by the package-level helpers and
// by atlases created with NewAtlas.
var defaultRegistry = NewRegistry()

// RegisterFont registers a font family in the shared default registry.
func RegisterFont(family string, ttf []byte) error {
	return defaultRegistry.Register(family, ttf)
}
