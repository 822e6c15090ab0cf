package gpu

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
)

// ImageKey identifies a decoded image resource; the renderer maps its
// arena handles onto these.
type ImageKey uint32

// PageKey identifies a glyph atlas page.
type PageKey uint32

type textureEntry struct {
	texture TextureID
	width   int
	height  int
	format  gputypes.TextureFormat
	version uint64
	bytes   int
}

// TextureCache maps image resources and atlas pages to device
// textures. Image textures re-upload when their version changes; atlas
// pages are created once and patched with dirty-rect writes by the
// renderer.
type TextureCache struct {
	adapter Adapter
	images  map[ImageKey]*textureEntry
	pages   map[PageKey]*textureEntry

	textureBytes int
	uploads      uint64
}

// NewTextureCache creates a cache bound to an adapter.
func NewTextureCache(a Adapter) *TextureCache {
	return &TextureCache{
		adapter: a,
		images:  make(map[ImageKey]*textureEntry),
		pages:   make(map[PageKey]*textureEntry),
	}
}

// ResolveImage returns the RGBA texture for an image, creating it on
// first use and re-uploading when version differs from the cached one.
func (c *TextureCache) ResolveImage(key ImageKey, img *image.RGBA, version uint64) (TextureID, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0, fmt.Errorf("gpu: image %d has zero size", key)
	}

	e := c.images[key]
	if e != nil && (e.width != w || e.height != h) {
		c.dropEntry(e)
		delete(c.images, key)
		e = nil
	}
	if e == nil {
		tex, err := c.adapter.CreateTexture(fmt.Sprintf("image-%d", key), w, h, gputypes.TextureFormatRGBA8Unorm)
		if err != nil {
			return 0, err
		}
		e = &textureEntry{
			texture: tex,
			width:   w, height: h,
			format:  gputypes.TextureFormatRGBA8Unorm,
			version: version - 1, // force initial upload
			bytes:   w * h * 4,
		}
		c.images[key] = e
		c.textureBytes += e.bytes
	}

	if e.version != version {
		if err := c.adapter.WriteTexture(e.texture, image.Rect(0, 0, w, h), packRGBA(img)); err != nil {
			return 0, err
		}
		e.version = version
		c.uploads++
	}
	return e.texture, nil
}

// ResolveAtlasPage returns the R8 texture for an atlas page, creating
// it on first use. Dirty-region uploads are driven separately through
// WritePage.
func (c *TextureCache) ResolveAtlasPage(key PageKey, size int) (TextureID, error) {
	if e, ok := c.pages[key]; ok {
		return e.texture, nil
	}
	tex, err := c.adapter.CreateTexture(fmt.Sprintf("atlas-page-%d", key), size, size, gputypes.TextureFormatR8Unorm)
	if err != nil {
		return 0, err
	}
	e := &textureEntry{
		texture: tex,
		width:   size, height: size,
		format: gputypes.TextureFormatR8Unorm,
		bytes:  size * size,
	}
	c.pages[key] = e
	c.textureBytes += e.bytes
	return e.texture, nil
}

// WritePage patches a dirty region of an atlas page texture.
func (c *TextureCache) WritePage(key PageKey, region image.Rectangle, pixels []byte) error {
	e, ok := c.pages[key]
	if !ok {
		return fmt.Errorf("gpu: atlas page %d not resident: %w", key, ErrUnknownResource)
	}
	if err := c.adapter.WriteTexture(e.texture, region, pixels); err != nil {
		return err
	}
	c.uploads++
	return nil
}

// ReleaseImage destroys the texture for one image.
func (c *TextureCache) ReleaseImage(key ImageKey) {
	if e, ok := c.images[key]; ok {
		c.dropEntry(e)
		delete(c.images, key)
	}
}

// Dispose destroys every texture and zeroes the byte accounting.
func (c *TextureCache) Dispose() {
	for key, e := range c.images {
		c.adapter.DestroyTexture(e.texture)
		delete(c.images, key)
	}
	for key, e := range c.pages {
		c.adapter.DestroyTexture(e.texture)
		delete(c.pages, key)
	}
	c.textureBytes = 0
}

// TextureBytes returns the total bytes of live textures.
func (c *TextureCache) TextureBytes() int { return c.textureBytes }

// Uploads returns the number of texture uploads performed.
func (c *TextureCache) Uploads() uint64 { return c.uploads }

func (c *TextureCache) dropEntry(e *textureEntry) {
	c.adapter.DestroyTexture(e.texture)
	c.textureBytes -= e.bytes
}

// packRGBA returns the image's pixels as tightly-packed rows.
func packRGBA(img *image.RGBA) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if img.Stride == w*4 && b.Min == (image.Point{}) {
		return img.Pix[:w*h*4]
	}
	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		copy(out[y*w*4:(y+1)*w*4], src[:w*4])
	}
	return out
}
