package text

import (
	"image"
	"image/draw"
	"sync"
	"time"

	"golang.org/x/image/math/fixed"

	"github.com/gogpu/stage"
)

// DefaultPageSize is the default atlas page dimension in pixels.
const DefaultPageSize = 1024

// glyphPadding is the gap kept between packed glyphs, in pixels.
const glyphPadding = 2

// PageID identifies an atlas page. Page textures on the GPU side are
// keyed by this id and persist for the adapter's lifetime.
type PageID uint32

// Page is a fixed-size packing surface for rasterized glyphs.
type Page struct {
	ID  PageID
	Img *image.Alpha

	// Row-cursor packing state.
	cursorX   int
	cursorY   int
	rowHeight int

	// Stats.
	GlyphCount int
	UsedArea   int
	Evictions  int

	// pending is the union of all regions written since the last
	// completed upload. Zero means clean.
	pending image.Rectangle

	// Version increments on every completed upload; diagnostics use it
	// for change detection.
	Version    uint64
	LastUpload time.Time
}

// Size returns the page dimension (pages are square).
func (p *Page) Size() int { return p.Img.Bounds().Dx() }

// reset clears the page. Every glyph on it becomes invalid and must be
// re-rasterized; the caller drops the matching cache entries.
// Discarding the whole page trades re-rasterization cost for packing
// simplicity.
func (p *Page) reset() {
	clear(p.Img.Pix)
	p.cursorX = 0
	p.cursorY = 0
	p.rowHeight = 0
	p.GlyphCount = 0
	p.UsedArea = 0
	p.Evictions++
	p.pending = image.Rectangle{}
}

// Glyph is a rasterized character resident in the atlas.
type Glyph struct {
	Page PageID

	// Atlas rect in texels. W or H of zero means a mask-less glyph
	// (e.g. space) that only advances the pen.
	X, Y, W, H int

	// Placement of the mask's top-left corner relative to the pen
	// position on the baseline.
	OffsetX, OffsetY float64

	Advance float64

	Ascent, Descent float64
}

// glyphKey is the cache key: normalized font string plus character.
type glyphKey struct {
	font string
	r    rune
}

// Upload describes one pending region to copy to a page texture.
// Pixels are single-channel alpha, tightly packed Rect.Dx() per row.
type Upload struct {
	Page   PageID
	Rect   image.Rectangle
	Pixels []byte
}

// AtlasStats is a snapshot of atlas state for diagnostics.
type AtlasStats struct {
	Pages          int
	Glyphs         int
	Evictions      int
	UsedArea       int
	PendingUploads int
	Uploads        uint64
}

// Atlas packs rasterized glyphs into pages and lays out text runs as
// textured quads.
//
// The atlas is driven from the render path; the mutex only guards
// against incidental cross-goroutine use (e.g. measuring from a decode
// callback).
type Atlas struct {
	mu sync.Mutex

	reg      *Registry
	pageSize int

	pages   []*Page
	current int

	glyphs  map[glyphKey]*Glyph
	pending map[PageID]struct{}

	uploads uint64
}

// AtlasConfig configures a new atlas.
type AtlasConfig struct {
	// PageSize is the page dimension; default 1024.
	PageSize int

	// Registry supplies fonts; default is the shared registry.
	Registry *Registry
}

// NewAtlas creates an atlas with default configuration.
func NewAtlas() *Atlas {
	return NewAtlasWithConfig(AtlasConfig{})
}

// NewAtlasWithConfig creates an atlas with the given configuration.
func NewAtlasWithConfig(cfg AtlasConfig) *Atlas {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Registry == nil {
		cfg.Registry = defaultRegistry
	}
	a := &Atlas{
		reg:      cfg.Registry,
		pageSize: cfg.PageSize,
		glyphs:   make(map[glyphKey]*Glyph),
		pending:  make(map[PageID]struct{}),
	}
	a.pages = []*Page{a.newPage()}
	return a
}

func (a *Atlas) newPage() *Page {
	id := PageID(len(a.pages) + 1)
	return &Page{
		ID:  id,
		Img: image.NewAlpha(image.Rect(0, 0, a.pageSize, a.pageSize)),
	}
}

// PageSize returns the page dimension in pixels.
func (a *Atlas) PageSize() int { return a.pageSize }

// Pages returns the atlas pages, for the software renderer and tests.
func (a *Atlas) Pages() []*Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pages
}

// PageImage returns the backing alpha image for a page id.
func (a *Atlas) PageImage(id PageID) (*image.Alpha, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.pages {
		if p.ID == id {
			return p.Img, true
		}
	}
	return nil, false
}

// Stats returns a snapshot of the atlas state.
func (a *Atlas) Stats() AtlasStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := AtlasStats{
		Pages:          len(a.pages),
		Glyphs:         len(a.glyphs),
		PendingUploads: len(a.pending),
		Uploads:        a.uploads,
	}
	for _, p := range a.pages {
		s.Evictions += p.Evictions
		s.UsedArea += p.UsedArea
	}
	return s
}

// PrepareUploads returns up to limit pages' pending regions as upload
// descriptors. Pages stay in the pending set until CompleteUpload
// confirms the copy, so a drain whose upload failed returns the same
// region again on the next call.
func (a *Atlas) PrepareUploads(limit int) []Upload {
	a.mu.Lock()
	defer a.mu.Unlock()

	if limit <= 0 || len(a.pending) == 0 {
		return nil
	}

	var ups []Upload
	for _, p := range a.pages {
		if len(ups) >= limit {
			break
		}
		if _, ok := a.pending[p.ID]; !ok {
			continue
		}
		r := p.pending
		if r.Empty() {
			delete(a.pending, p.ID)
			continue
		}
		ups = append(ups, Upload{
			Page:   p.ID,
			Rect:   r,
			Pixels: extractAlpha(p.Img, r),
		})
	}
	return ups
}

// CompleteUpload records that the GPU copy for a page region finished
// and retires the page from the pending set. The pending rectangle is
// cleared only if no further writes extended it in the meantime;
// version and upload-time bookkeeping always advance.
func (a *Atlas) CompleteUpload(id PageID, r image.Rectangle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range a.pages {
		if p.ID != id {
			continue
		}
		if p.pending == r {
			p.pending = image.Rectangle{}
			delete(a.pending, p.ID)
		}
		p.Version++
		p.LastUpload = time.Now()
		a.uploads++
		return
	}
}

// InvalidateUploads marks every populated page fully dirty so the
// next drain re-uploads it. Called after a device loss destroyed the
// page textures.
func (a *Atlas) InvalidateUploads() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.pages {
		if p.GlyphCount == 0 {
			continue
		}
		p.pending = p.Img.Bounds()
		a.pending[p.ID] = struct{}{}
	}
}

// extractAlpha copies a tightly-packed single-channel region out of the
// page image.
func extractAlpha(img *image.Alpha, r image.Rectangle) []byte {
	w, h := r.Dx(), r.Dy()
	out := make([]byte, w*h)
	for y := 0; y < h; y++ {
		src := img.Pix[(r.Min.Y+y)*img.Stride+r.Min.X:]
		copy(out[y*w:(y+1)*w], src[:w])
	}
	return out
}

// resolveGlyph returns the cached glyph for (font, r), rasterizing and
// packing it on miss. Returns nil when the font cannot produce a face.
func (a *Atlas) resolveGlyph(spec fontSpec, r rune) *Glyph {
	key := glyphKey{font: spec.key(), r: r}
	if g, ok := a.glyphs[key]; ok {
		return g
	}

	entry := a.reg.resolve(spec.family)
	if entry == nil {
		return nil
	}

	g := a.rasterize(entry, spec, r)
	if g == nil {
		return nil
	}
	a.glyphs[key] = g
	return g
}

// rasterize renders the glyph mask and packs it into the current page.
func (a *Atlas) rasterize(entry *fontEntry, spec fontSpec, r rune) *Glyph {
	entry.mu.Lock()
	face, err := entry.face(spec.size)
	if err != nil {
		entry.mu.Unlock()
		stage.Logger().Warn("glyph face unavailable", "font", spec.key(), "err", err)
		return nil
	}

	met := face.Metrics()
	dot := fixed.Point26_6{}
	dr, mask, maskp, _, ok := face.Glyph(dot, r)
	if !ok {
		// Fall back to the replacement character's mask.
		dr, mask, maskp, _, ok = face.Glyph(dot, '�')
	}
	entry.mu.Unlock()

	adv := a.reg.shapeAdvance(entry, spec.size, []rune{r})

	g := &Glyph{
		Advance: adv,
		Ascent:  float64(met.Ascent) / 64,
		Descent: float64(met.Descent) / 64,
	}
	if !ok || dr.Empty() {
		// No mask (space, control); the glyph only advances the pen.
		return g
	}

	w, h := dr.Dx(), dr.Dy()
	// A mask can exceed the page (huge font sizes on small pages); clip
	// it so packing and uploads never index past the page image.
	if limit := a.pageSize - glyphPadding; w > limit || h > limit {
		if w > limit {
			w = limit
		}
		if h > limit {
			h = limit
		}
		stage.Logger().Warn("glyph mask exceeds atlas page, clipping",
			"font", spec.key(), "w", dr.Dx(), "h", dr.Dy(), "page", a.pageSize)
	}
	page, x, y := a.pack(w, h)
	g.Page = page.ID
	g.X, g.Y, g.W, g.H = x, y, w, h
	g.OffsetX = float64(dr.Min.X)
	g.OffsetY = float64(dr.Min.Y)

	dst := image.Rect(x, y, x+w, y+h)
	draw.Draw(page.Img, dst, mask, maskp, draw.Src)

	page.GlyphCount++
	page.UsedArea += w * h
	page.pending = page.pending.Union(dst)
	a.pending[page.ID] = struct{}{}
	return g
}

// pack finds space for a w×h mask using the row cursor, wrapping rows
// on width overflow and resetting the whole page on height overflow.
func (a *Atlas) pack(w, h int) (page *Page, x, y int) {
	page = a.pages[a.current]

	if page.cursorX+w+glyphPadding > page.Size() {
		// Wrap to the next row.
		page.cursorX = 0
		page.cursorY += page.rowHeight + glyphPadding
		page.rowHeight = 0
	}
	if page.cursorY+h+glyphPadding > page.Size() {
		a.evictPage(page)
	}

	x, y = page.cursorX, page.cursorY
	page.cursorX += w + glyphPadding
	if h > page.rowHeight {
		page.rowHeight = h
	}
	return page, x, y
}

// evictPage resets a page and drops every cache entry that lived on it.
func (a *Atlas) evictPage(page *Page) {
	for key, g := range a.glyphs {
		if g.Page == page.ID && g.W > 0 {
			delete(a.glyphs, key)
		}
	}
	page.reset()
	delete(a.pending, page.ID)
	stage.Logger().Debug("atlas page reset", "page", uint32(page.ID), "evictions", page.Evictions)
}

// evictionCount returns the total evictions across pages. Used by
// layout to detect a mid-run reset.
func (a *Atlas) evictionCount() int {
	n := 0
	for _, p := range a.pages {
		n += p.Evictions
	}
	return n
}
