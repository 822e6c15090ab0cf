package gpu

import (
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/gogpu/gputypes"
)

// recordingAdapter counts resource operations so cache behavior can be
// asserted without a device.
type recordingAdapter struct {
	nextBuffer  uint32
	nextTexture uint32
	nextProgram uint32

	bufferSizes  map[BufferID]int
	textureSizes map[TextureID]image.Point

	bufferWrites      int
	textureWrites     int
	buffersDestroyed  int
	texturesDestroyed int
	compiles          int
	failCompiles      int
}

func newRecordingAdapter() *recordingAdapter {
	return &recordingAdapter{
		bufferSizes:  make(map[BufferID]int),
		textureSizes: make(map[TextureID]image.Point),
	}
}

func (a *recordingAdapter) Name() string { return "recording" }

func (a *recordingAdapter) CreateBuffer(label string, size int) (BufferID, error) {
	a.nextBuffer++
	id := BufferID(a.nextBuffer)
	a.bufferSizes[id] = size
	return id, nil
}

func (a *recordingAdapter) WriteBuffer(id BufferID, offset int, data []byte) error {
	if _, ok := a.bufferSizes[id]; !ok {
		return fmt.Errorf("write to buffer %d: %w", id, ErrUnknownResource)
	}
	a.bufferWrites++
	return nil
}

func (a *recordingAdapter) DestroyBuffer(id BufferID) {
	delete(a.bufferSizes, id)
	a.buffersDestroyed++
}

func (a *recordingAdapter) CreateTexture(label string, width, height int, format gputypes.TextureFormat) (TextureID, error) {
	a.nextTexture++
	id := TextureID(a.nextTexture)
	a.textureSizes[id] = image.Pt(width, height)
	return id, nil
}

func (a *recordingAdapter) WriteTexture(id TextureID, region image.Rectangle, pixels []byte) error {
	if _, ok := a.textureSizes[id]; !ok {
		return fmt.Errorf("write to texture %d: %w", id, ErrUnknownResource)
	}
	a.textureWrites++
	return nil
}

func (a *recordingAdapter) DestroyTexture(id TextureID) {
	delete(a.textureSizes, id)
	a.texturesDestroyed++
}

func (a *recordingAdapter) CompileProgram(m *Material) (ProgramID, error) {
	a.compiles++
	if a.failCompiles > 0 {
		a.failCompiles--
		return 0, errors.New("compile rejected")
	}
	a.nextProgram++
	return ProgramID(a.nextProgram), nil
}

func (a *recordingAdapter) DestroyProgram(ProgramID)    {}
func (a *recordingAdapter) RenderFrame(*Frame) error    { return nil }
func (a *recordingAdapter) ReadPixels() ([]byte, error) { return nil, errors.New("no target") }
func (a *recordingAdapter) Destroy()                    {}

func TestGeometryCacheUploadsOnlyOnChange(t *testing.T) {
	ad := newRecordingAdapter()
	cache := NewGeometryBatchCache(ad)

	src := &GeometrySource{ID: 1, Material: MaterialShape, Data: make([]float32, 6*ShapeVertexFloats), Version: 1}
	buf, err := cache.Resolve(src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ad.bufferWrites != 1 {
		t.Fatalf("first resolve: %d writes, want 1", ad.bufferWrites)
	}

	// Unchanged source resolves to the same buffer with no upload.
	buf2, err := cache.Resolve(src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if buf2 != buf {
		t.Fatalf("buffer changed for unchanged source: %d != %d", buf2, buf)
	}
	if ad.bufferWrites != 1 {
		t.Fatalf("unchanged resolve uploaded: %d writes", ad.bufferWrites)
	}

	// A version bump re-uploads into the same buffer.
	src.Version = 2
	if _, err := cache.Resolve(src); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ad.bufferWrites != 2 {
		t.Fatalf("version bump: %d writes, want 2", ad.bufferWrites)
	}
	if ad.buffersDestroyed != 0 {
		t.Fatalf("version bump destroyed a buffer")
	}

	// Growing the data recreates the buffer.
	src.Data = make([]float32, 12*ShapeVertexFloats)
	src.Version = 3
	buf3, err := cache.Resolve(src)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if buf3 == buf {
		t.Fatalf("grown source reused undersized buffer")
	}
	if ad.buffersDestroyed != 1 {
		t.Fatalf("grown source: %d buffers destroyed, want 1", ad.buffersDestroyed)
	}
	if got, want := cache.BufferBytes(), 12*ShapeVertexFloats*4; got != want {
		t.Fatalf("BufferBytes = %d, want %d", got, want)
	}
	if cache.Uploads() != 3 {
		t.Fatalf("Uploads = %d, want 3", cache.Uploads())
	}
}

func TestGeometryCacheInvalidateForcesReupload(t *testing.T) {
	ad := newRecordingAdapter()
	cache := NewGeometryBatchCache(ad)
	src := &GeometrySource{ID: 7, Material: MaterialShape, Data: make([]float32, ShapeVertexFloats*6), Version: 1}

	if _, err := cache.Resolve(src); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	cache.Invalidate(7)
	if _, err := cache.Resolve(src); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ad.bufferWrites != 2 {
		t.Fatalf("invalidate: %d writes, want 2", ad.bufferWrites)
	}
	if ad.buffersDestroyed != 0 {
		t.Fatalf("invalidate destroyed the buffer")
	}
}

func TestGeometryCacheDispose(t *testing.T) {
	ad := newRecordingAdapter()
	cache := NewGeometryBatchCache(ad)
	for i := uint32(1); i <= 3; i++ {
		src := &GeometrySource{ID: i, Material: MaterialShape, Data: make([]float32, ShapeVertexFloats*6), Version: 1}
		if _, err := cache.Resolve(src); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	cache.Release(2)
	if ad.buffersDestroyed != 1 {
		t.Fatalf("Release destroyed %d buffers, want 1", ad.buffersDestroyed)
	}
	cache.Dispose()
	if ad.buffersDestroyed != 3 {
		t.Fatalf("Dispose: %d buffers destroyed, want 3", ad.buffersDestroyed)
	}
	if cache.BufferBytes() != 0 {
		t.Fatalf("BufferBytes = %d after Dispose", cache.BufferBytes())
	}
}

func TestTextureCacheImageVersioning(t *testing.T) {
	ad := newRecordingAdapter()
	cache := NewTextureCache(ad)
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))

	tex, err := cache.ResolveImage(1, img, 1)
	if err != nil {
		t.Fatalf("ResolveImage: %v", err)
	}
	if ad.textureWrites != 1 {
		t.Fatalf("first resolve: %d writes, want 1", ad.textureWrites)
	}

	tex2, err := cache.ResolveImage(1, img, 1)
	if err != nil {
		t.Fatalf("ResolveImage: %v", err)
	}
	if tex2 != tex || ad.textureWrites != 1 {
		t.Fatalf("unchanged image re-uploaded (tex %d->%d, writes %d)", tex, tex2, ad.textureWrites)
	}

	if _, err := cache.ResolveImage(1, img, 2); err != nil {
		t.Fatalf("ResolveImage: %v", err)
	}
	if ad.textureWrites != 2 {
		t.Fatalf("version bump: %d writes, want 2", ad.textureWrites)
	}

	// A size change recreates the texture.
	large := image.NewRGBA(image.Rect(0, 0, 16, 16))
	tex3, err := cache.ResolveImage(1, large, 2)
	if err != nil {
		t.Fatalf("ResolveImage: %v", err)
	}
	if tex3 == tex {
		t.Fatalf("resized image reused texture %d", tex)
	}
	if ad.texturesDestroyed != 1 {
		t.Fatalf("resize destroyed %d textures, want 1", ad.texturesDestroyed)
	}
	if got, want := cache.TextureBytes(), 16*16*4; got != want {
		t.Fatalf("TextureBytes = %d, want %d", got, want)
	}
}

func TestTextureCacheAtlasPages(t *testing.T) {
	ad := newRecordingAdapter()
	cache := NewTextureCache(ad)

	tex, err := cache.ResolveAtlasPage(1, 256)
	if err != nil {
		t.Fatalf("ResolveAtlasPage: %v", err)
	}
	tex2, err := cache.ResolveAtlasPage(1, 256)
	if err != nil {
		t.Fatalf("ResolveAtlasPage: %v", err)
	}
	if tex2 != tex {
		t.Fatalf("page recreated: %d != %d", tex2, tex)
	}
	if len(ad.textureSizes) != 1 {
		t.Fatalf("%d textures live, want 1", len(ad.textureSizes))
	}

	region := image.Rect(4, 4, 12, 12)
	if err := cache.WritePage(1, region, make([]byte, 64)); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if ad.textureWrites != 1 {
		t.Fatalf("WritePage: %d writes, want 1", ad.textureWrites)
	}
	if err := cache.WritePage(9, region, make([]byte, 64)); !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("WritePage on missing page: %v", err)
	}

	cache.Dispose()
	if cache.TextureBytes() != 0 {
		t.Fatalf("TextureBytes = %d after Dispose", cache.TextureBytes())
	}
}

func TestProgramRegistryCompilesOnce(t *testing.T) {
	ad := newRecordingAdapter()
	reg := NewProgramRegistry(ad)

	id, err := reg.ResolveBuiltin(MaterialShape)
	if err != nil {
		t.Fatalf("ResolveBuiltin: %v", err)
	}
	id2, err := reg.ResolveBuiltin(MaterialShape)
	if err != nil {
		t.Fatalf("ResolveBuiltin: %v", err)
	}
	if id2 != id {
		t.Fatalf("program changed: %d != %d", id2, id)
	}
	if ad.compiles != 1 {
		t.Fatalf("%d compiles, want 1", ad.compiles)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", reg.Len())
	}
}

func TestProgramRegistryDoesNotCacheFailure(t *testing.T) {
	ad := newRecordingAdapter()
	ad.failCompiles = 1
	reg := NewProgramRegistry(ad)

	if _, err := reg.ResolveBuiltin(MaterialGlyph); err == nil {
		t.Fatalf("expected compile error")
	}
	if reg.Len() != 0 {
		t.Fatalf("failed compile was cached")
	}
	if _, err := reg.ResolveBuiltin(MaterialGlyph); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if ad.compiles != 2 {
		t.Fatalf("%d compiles, want 2", ad.compiles)
	}
}

func TestProgramRegistryResetDropsPrograms(t *testing.T) {
	ad := newRecordingAdapter()
	reg := NewProgramRegistry(ad)
	if _, err := reg.ResolveBuiltin(MaterialShape); err != nil {
		t.Fatalf("ResolveBuiltin: %v", err)
	}

	fresh := newRecordingAdapter()
	reg.Reset(fresh)
	if reg.Len() != 0 {
		t.Fatalf("Len = %d after Reset", reg.Len())
	}
	if _, err := reg.ResolveBuiltin(MaterialShape); err != nil {
		t.Fatalf("ResolveBuiltin after Reset: %v", err)
	}
	if fresh.compiles != 1 {
		t.Fatalf("fresh adapter saw %d compiles, want 1", fresh.compiles)
	}
}
