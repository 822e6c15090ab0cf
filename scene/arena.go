package scene

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"sync"

	// Extra decoders beyond the stdlib set. Registering them here means
	// Arena.Decode accepts whatever the surrounding application throws
	// at it without each caller repeating the imports.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageID is a stable handle for an image resource held in an Arena.
// The zero value means "no image".
type ImageID uint32

// Arena errors.
var (
	// ErrImageReleased is returned when looking up a released handle.
	ErrImageReleased = errors.New("scene: image handle has been released")
)

// ImageEntry is an image resource owned by an Arena.
type ImageEntry struct {
	ID     ImageID
	Img    *image.RGBA
	Width  int
	Height int

	// Version increments whenever the pixel content is replaced.
	// Texture caches compare it to decide whether to re-upload.
	Version uint64
}

// Arena owns decoded image resources and issues integer handles for
// them. Nodes reference images by ImageID only; releasing a handle
// frees the pixels deterministically instead of waiting on the garbage
// collector.
//
// Arena is safe for concurrent use; decode tasks insert from their own
// goroutine while the render path reads.
type Arena struct {
	mu      sync.RWMutex
	entries map[ImageID]*ImageEntry
	next    ImageID
}

// NewArena creates an empty image arena.
func NewArena() *Arena {
	return &Arena{entries: make(map[ImageID]*ImageEntry)}
}

// Acquire converts the image to RGBA, stores it, and returns its handle.
func (a *Arena) Acquire(img image.Image) ImageID {
	rgba := toRGBA(img)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	id := a.next
	a.entries[id] = &ImageEntry{
		ID:      id,
		Img:     rgba,
		Width:   rgba.Bounds().Dx(),
		Height:  rgba.Bounds().Dy(),
		Version: 1,
	}
	return id
}

// Decode reads and decodes an encoded image (PNG, JPEG, GIF, BMP, TIFF,
// WebP) and stores it.
func (a *Arena) Decode(r io.Reader) (ImageID, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return 0, fmt.Errorf("scene: decode image: %w", err)
	}
	id := a.Acquire(img)
	if e, ok := a.Lookup(id); ok {
		stageLogger().Debug("image decoded",
			"format", format, "w", e.Width, "h", e.Height, "id", uint32(id))
	}
	return id, nil
}

// Replace swaps the pixel content of an existing handle, bumping its
// version so texture caches re-upload.
func (a *Arena) Replace(id ImageID, img image.Image) error {
	rgba := toRGBA(img)

	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[id]
	if !ok {
		return ErrImageReleased
	}
	e.Img = rgba
	e.Width = rgba.Bounds().Dx()
	e.Height = rgba.Bounds().Dy()
	e.Version++
	return nil
}

// Lookup returns the entry for a handle.
func (a *Arena) Lookup(id ImageID) (*ImageEntry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[id]
	return e, ok
}

// Release frees the handle. Releasing an unknown or already-released
// handle is a no-op.
func (a *Arena) Release(id ImageID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, id)
}

// Len returns the number of live entries.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
