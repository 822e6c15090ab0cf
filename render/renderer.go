// Package render turns scene trees into frames.
//
// Two renderers implement the same contract: an accelerated renderer
// that lowers the tree to batched GPU primitives, and a software
// renderer that draws directly through the raster canvas. Both clear
// to the configured background, honor the device pixel ratio, and
// report a frame hash through Diagnostics so tests (and embedders) can
// compare their output.
package render

import (
	"errors"
	"image"
	"math"

	"github.com/gogpu/stage"
	"github.com/gogpu/stage/scene"
	"github.com/gogpu/stage/text"
)

var (
	// ErrNotInitialized is returned when a frame is requested before
	// Init succeeded.
	ErrNotInitialized = errors.New("render: renderer not initialized")

	// ErrTornDown is returned by every operation after Teardown.
	ErrTornDown = errors.New("render: renderer torn down")

	// ErrContextUnavailable is returned when no device context could be
	// acquired at Init.
	ErrContextUnavailable = errors.New("render: no device context available")

	// ErrContextLost is returned while the device context is lost and
	// not yet restored.
	ErrContextLost = errors.New("render: device context lost")
)

// SceneConfig is the renderer-independent surface configuration.
// Width and Height are in CSS pixels; the device surface is scaled by
// DPR.
type SceneConfig struct {
	Width, Height int

	// DPR is the device pixel ratio; zero or negative means 1.
	DPR float64

	// Background is a CSS-style color string ("#rrggbb", "rgba(...)",
	// named). Empty or unparseable clears to transparent.
	Background string
}

func (c SceneConfig) dpr() float64 {
	if c.DPR <= 0 {
		return 1
	}
	return c.DPR
}

func (c SceneConfig) background() stage.RGBA {
	if c.Background == "" {
		return stage.Transparent
	}
	col, err := stage.ParseColor(c.Background)
	if err != nil {
		stage.Logger().Warn("unparseable background color", "value", c.Background, "err", err)
		return stage.Transparent
	}
	return col
}

// deviceSize converts CSS dimensions to device pixels.
func deviceSize(w, h int, dpr float64) (int, int) {
	if dpr <= 0 {
		dpr = 1
	}
	return int(math.Round(float64(w) * dpr)), int(math.Round(float64(h) * dpr))
}

// Diagnostics is a per-renderer snapshot of frame and resource state.
// It is carried by the renderer instance; there is no global.
type Diagnostics struct {
	// ContextKind names the backing context: "software",
	// "cpu-reference", "vulkan", or the adapter name.
	ContextKind string

	// FrameHash digests the last frame's pixels (see FrameHash).
	FrameHash   string
	BytesHashed int

	Frames    uint64
	DrawCalls int

	// Unsupported counts scene nodes the active path could not lower
	// in the last frame.
	Unsupported int

	BufferBytes     int
	TextureBytes    int
	GeometryBytes   int
	GeometryUploads uint64
	TextureUploads  uint64

	Atlas text.AtlasStats

	// Errors records non-fatal failures (fallbacks, skipped nodes,
	// failed uploads) since the renderer was created.
	Errors []string
}

// CaptureFormat selects the representation CaptureFrame returns.
type CaptureFormat uint8

const (
	// CapturePixels returns the raw premultiplied RGBA readback.
	CapturePixels CaptureFormat = iota

	// CaptureImage returns an *image.RGBA copy.
	CaptureImage

	// CapturePNG returns PNG-encoded bytes.
	CapturePNG
)

// Capture is a still of the current frame. Exactly one of Pixels,
// Image, or Blob is set, matching the requested format.
type Capture struct {
	Width, Height int

	Pixels []byte
	Image  *image.RGBA
	Blob   []byte
}

// Renderer is the contract shared by the accelerated and software
// paths. Implementations are owned by a single goroutine.
type Renderer interface {
	// Init acquires the rendering context. Idempotent; returns
	// ErrContextUnavailable when no context can be acquired.
	Init() error

	// Resize updates the surface size in CSS pixels and the device
	// pixel ratio. A no-op when nothing changed.
	Resize(width, height int, dpr float64)

	// RenderFrame draws the scene tree into the surface.
	RenderFrame(nodes []scene.Node) error

	// CaptureFrame returns a still of the last rendered frame.
	CaptureFrame(format CaptureFormat) (*Capture, error)

	// Diagnostics returns the current diagnostics snapshot.
	Diagnostics() Diagnostics

	// Teardown releases every resource. Idempotent; the renderer is
	// unusable afterwards.
	Teardown()
}
