package scene

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/gogpu/stage"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 40), G: uint8(y * 40), A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestArenaAcquireLookupRelease(t *testing.T) {
	a := NewArena()
	id := a.Acquire(testImage(4, 2))
	if id == 0 {
		t.Fatalf("zero handle from Acquire")
	}

	e, ok := a.Lookup(id)
	if !ok {
		t.Fatalf("handle not found")
	}
	if e.Width != 4 || e.Height != 2 || e.Version != 1 {
		t.Fatalf("entry %+v, want 4x2 version 1", e)
	}
	if a.Len() != 1 {
		t.Fatalf("Len = %d, want 1", a.Len())
	}

	a.Release(id)
	if _, ok := a.Lookup(id); ok {
		t.Fatalf("released handle still resolves")
	}
	a.Release(id) // double release is a no-op
	if a.Len() != 0 {
		t.Fatalf("Len = %d after release, want 0", a.Len())
	}
}

func TestArenaReplaceBumpsVersion(t *testing.T) {
	a := NewArena()
	id := a.Acquire(testImage(4, 4))

	if err := a.Replace(id, testImage(8, 2)); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	e, _ := a.Lookup(id)
	if e.Width != 8 || e.Height != 2 || e.Version != 2 {
		t.Fatalf("entry after replace %+v, want 8x2 version 2", e)
	}

	a.Release(id)
	if err := a.Replace(id, testImage(1, 1)); !errors.Is(err, ErrImageReleased) {
		t.Fatalf("Replace on released handle: %v", err)
	}
}

func TestArenaDecode(t *testing.T) {
	a := NewArena()
	id, err := a.Decode(bytes.NewReader(encodePNG(t, testImage(6, 3))))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	e, ok := a.Lookup(id)
	if !ok || e.Width != 6 || e.Height != 3 {
		t.Fatalf("decoded entry %+v", e)
	}

	if _, err := a.Decode(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Fatalf("garbage decoded without error")
	}
}

func TestArenaConvertsToRGBA(t *testing.T) {
	gray := image.NewGray(image.Rect(2, 3, 6, 7)) // non-zero origin
	a := NewArena()
	e, _ := a.Lookup(a.Acquire(gray))
	if e.Img.Bounds().Min != (image.Point{}) {
		t.Fatalf("stored image keeps origin %v", e.Img.Bounds().Min)
	}
	if e.Width != 4 || e.Height != 4 {
		t.Fatalf("stored size %dx%d, want 4x4", e.Width, e.Height)
	}
}

func TestDecodeIntoApplies(t *testing.T) {
	a := NewArena()
	data := encodePNG(t, testImage(4, 4))

	n := NewImage(a, 0, 10, 10)
	task := DecodeInto(context.Background(), a, data, 0,
		func() ImageID { return n.Image },
		func(id ImageID) { n.Image = id })
	if err := task.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n.Image == 0 {
		t.Fatalf("decode did not apply")
	}
	if _, ok := n.Placement(); !ok {
		t.Fatalf("applied handle does not place")
	}
}

func TestDecodeIntoDropsSupersededResult(t *testing.T) {
	a := NewArena()
	data := encodePNG(t, testImage(4, 4))

	// The slot moved on before the decode finished: wants 1, current 2.
	applied := false
	task := DecodeInto(context.Background(), a, data, 1,
		func() ImageID { return 2 },
		func(ImageID) { applied = true })
	if err := task.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if applied {
		t.Fatalf("superseded decode applied")
	}
	if a.Len() != 0 {
		t.Fatalf("superseded decode leaked %d entries", a.Len())
	}
}

func TestDecodeIntoReportsError(t *testing.T) {
	a := NewArena()
	task := DecodeInto(context.Background(), a, []byte("junk"), 0,
		func() ImageID { return 0 },
		func(ImageID) { t.Errorf("apply called for failed decode") })
	if err := task.Wait(); err == nil {
		t.Fatalf("no error from failed decode")
	}
}

func TestImagePlacementFitModes(t *testing.T) {
	a := NewArena()
	id := a.Acquire(testImage(4, 2)) // 2:1 aspect

	n := NewImage(a, id, 8, 8)

	cases := []struct {
		fit  FitMode
		want stage.Rect
	}{
		{FitContain, stage.Rect{MinX: 0, MinY: 2, MaxX: 8, MaxY: 6}},
		{FitCover, stage.Rect{MinX: -4, MinY: 0, MaxX: 12, MaxY: 8}},
		{FitFill, stage.Rect{MinX: 0, MinY: 0, MaxX: 8, MaxY: 8}},
		{FitNone, stage.Rect{MinX: 2, MinY: 3, MaxX: 6, MaxY: 5}},
	}
	for _, tc := range cases {
		n.Fit = tc.fit
		got, ok := n.Placement()
		if !ok {
			t.Fatalf("fit %d: no placement", tc.fit)
		}
		rectNear(t, got, tc.want, 1e-9)
	}
}

func TestImagePlacementMissingResource(t *testing.T) {
	a := NewArena()
	n := NewImage(a, 0, 8, 8)
	if _, ok := n.Placement(); ok {
		t.Fatalf("zero handle placed")
	}
	n.Image = 99
	if _, ok := n.Placement(); ok {
		t.Fatalf("unknown handle placed")
	}
}
