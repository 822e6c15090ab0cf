package render

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/stage"
	"github.com/gogpu/stage/internal/gpu"
	"github.com/gogpu/stage/scene"
	"github.com/gogpu/stage/text"
)

// maxPageUploads bounds atlas page uploads drained per frame.
const maxPageUploads = 8

// Options selects how a renderer acquires its context and which
// collaborators it shares.
type Options struct {
	// Provider supplies a host-owned GPU device (existing-context
	// mode). Nil means the renderer opens its own device.
	Provider gpucontext.DeviceProvider

	// NewAdapter overrides device acquisition entirely; tests and
	// embedders use it to supply a specific adapter, e.g. the CPU
	// reference. Called again on Restore after a context loss.
	NewAdapter func() (gpu.Adapter, error)

	// Atlas is the shared glyph atlas; nil creates one.
	Atlas *text.Atlas

	// Software forces the software path in New.
	Software bool

	// AllowFallback lets New degrade to the software path when the
	// accelerated context cannot be acquired. Without it the
	// acquisition error propagates.
	AllowFallback bool
}

// New builds the preferred renderer for the configuration: the
// accelerated path, or the software path when forced or when
// AllowFallback is set and no context is available. A fallback records
// the acquisition error in the returned renderer's diagnostics.
func New(cfg SceneConfig, opts Options) (Renderer, error) {
	if opts.Software {
		sw := NewSoftwareRenderer(cfg, opts.Atlas)
		if err := sw.Init(); err != nil {
			return nil, err
		}
		return sw, nil
	}

	acc := NewAcceleratedRenderer(cfg, opts)
	err := acc.Init()
	if err == nil {
		return acc, nil
	}
	if !opts.AllowFallback {
		return nil, err
	}
	stage.Logger().Warn("accelerated context unavailable, using software path", "err", err)
	sw := NewSoftwareRenderer(cfg, opts.Atlas)
	if ierr := sw.Init(); ierr != nil {
		return nil, ierr
	}
	sw.recordError(err)
	return sw, nil
}

type rendererState uint8

const (
	stateUninitialized rendererState = iota
	stateInitialized
	stateLost
	stateTornDown
)

// AcceleratedRenderer lowers scene trees to primitive batches and
// executes them on a gpu.Adapter, one draw call per primitive.
//
// Lifecycle: uninitialized → Init → initialized; a device loss moves
// it to lost, Restore back to initialized; Teardown is terminal.
type AcceleratedRenderer struct {
	cfg  SceneConfig
	opts Options

	atlas *text.Atlas
	lower *Adapter

	adapter  gpu.Adapter
	programs *gpu.ProgramRegistry
	geometry *gpu.GeometryBatchCache
	textures *gpu.TextureCache

	state rendererState

	// Device-pixel surface size.
	width, height int
	dpr           float64

	lastPixels []byte

	diag Diagnostics
}

// NewAcceleratedRenderer creates an accelerated renderer. No device
// work happens until Init.
func NewAcceleratedRenderer(cfg SceneConfig, opts Options) *AcceleratedRenderer {
	atlas := opts.Atlas
	if atlas == nil {
		atlas = text.NewAtlas()
	}
	r := &AcceleratedRenderer{
		cfg:   cfg,
		opts:  opts,
		atlas: atlas,
		lower: NewAdapter(atlas),
		dpr:   cfg.dpr(),
	}
	r.width, r.height = deviceSize(cfg.Width, cfg.Height, r.dpr)
	return r
}

// acquire opens a device adapter per the options: explicit factory,
// host-supplied provider, or a fresh device of our own.
func (r *AcceleratedRenderer) acquire() (gpu.Adapter, error) {
	if r.opts.NewAdapter != nil {
		a, err := r.opts.NewAdapter()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextUnavailable, err)
		}
		return a, nil
	}
	if r.opts.Provider != nil {
		a, err := gpu.AdoptHALAdapter(r.opts.Provider)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextUnavailable, err)
		}
		return a, nil
	}
	a, err := gpu.NewHALAdapter()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextUnavailable, err)
	}
	return a, nil
}

// Init implements Renderer.
func (r *AcceleratedRenderer) Init() error {
	switch r.state {
	case stateTornDown:
		return ErrTornDown
	case stateInitialized, stateLost:
		return nil
	}
	ad, err := r.acquire()
	if err != nil {
		r.recordError(err)
		return err
	}
	r.bind(ad)
	r.state = stateInitialized
	stage.Logger().Info("renderer initialized", "context", ad.Name(),
		"w", r.width, "h", r.height, "dpr", r.dpr)
	return nil
}

// bind attaches the adapter and rebuilds the resource caches on it.
func (r *AcceleratedRenderer) bind(ad gpu.Adapter) {
	r.adapter = ad
	if r.programs == nil {
		r.programs = gpu.NewProgramRegistry(ad)
	} else {
		r.programs.Reset(ad)
	}
	r.geometry = gpu.NewGeometryBatchCache(ad)
	r.textures = gpu.NewTextureCache(ad)
	r.diag.ContextKind = ad.Name()
}

// Resize implements Renderer.
func (r *AcceleratedRenderer) Resize(width, height int, dpr float64) {
	if dpr <= 0 {
		dpr = 1
	}
	w, h := deviceSize(width, height, dpr)
	if w == r.width && h == r.height && dpr == r.dpr {
		return
	}
	r.cfg.Width, r.cfg.Height = width, height
	r.dpr = dpr
	r.width, r.height = w, h
}

// RenderFrame implements Renderer: it lowers the tree and renders the
// resulting primitive list.
func (r *AcceleratedRenderer) RenderFrame(nodes []scene.Node) error {
	if err := r.checkState(); err != nil {
		return err
	}
	list := r.lower.Adapt(nodes, stage.Scale(r.dpr, r.dpr))
	return r.RenderPrimitives(list)
}

// RenderPrimitives renders a pre-adapted primitive list. Retained
// lists skip re-upload for unchanged geometry versions.
func (r *AcceleratedRenderer) RenderPrimitives(list *PrimitiveList) error {
	if err := r.checkState(); err != nil {
		return err
	}
	if list == nil {
		list = &PrimitiveList{}
	}
	if r.width <= 0 || r.height <= 0 {
		r.lastPixels = nil
		r.finishFrame(nil, list)
		return nil
	}

	r.uploadAtlasPages()

	draws := make([]gpu.Draw, 0, len(list.Primitives))
	for i := range list.Primitives {
		p := &list.Primitives[i]
		prog, err := r.programs.ResolveBuiltin(p.Material)
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		buf, err := r.geometry.Resolve(p.Source)
		if err != nil {
			return fmt.Errorf("render: upload geometry: %w", err)
		}

		var tex gpu.TextureID
		switch p.Material {
		case gpu.MaterialImage:
			if p.Entry == nil || p.Entry.Img == nil {
				continue
			}
			tex, err = r.textures.ResolveImage(gpu.ImageKey(p.Image), p.Entry.Img, p.Entry.Version)
		case gpu.MaterialGlyph:
			tex, err = r.textures.ResolveAtlasPage(gpu.PageKey(p.Page), r.atlas.PageSize())
		}
		if err != nil {
			r.recordError(err)
			continue
		}

		draws = append(draws, gpu.Draw{
			Program:     prog,
			Material:    p.Material,
			Vertices:    buf,
			VertexCount: p.VertexCount,
			Texture:     tex,
			Uniforms:    uniformsFor(p),
		})
	}

	frame := &gpu.Frame{
		Width:  r.width,
		Height: r.height,
		Clear:  r.cfg.background(),
		Draws:  draws,
	}
	if err := r.adapter.RenderFrame(frame); err != nil {
		if errors.Is(err, gpu.ErrDeviceLost) {
			r.state = stateLost
			r.recordError(err)
			return fmt.Errorf("%w: %v", ErrContextLost, err)
		}
		return fmt.Errorf("render: submit frame: %w", err)
	}
	pixels, err := r.adapter.ReadPixels()
	if err != nil {
		return fmt.Errorf("render: read back frame: %w", err)
	}
	r.lastPixels = pixels
	r.finishFrame(draws, list)
	return nil
}

func (r *AcceleratedRenderer) checkState() error {
	switch r.state {
	case stateUninitialized:
		return ErrNotInitialized
	case stateLost:
		return ErrContextLost
	case stateTornDown:
		return ErrTornDown
	}
	return nil
}

// uploadAtlasPages drains dirty atlas regions into page textures.
// Failed uploads stay pending and are retried next frame.
func (r *AcceleratedRenderer) uploadAtlasPages() {
	for _, up := range r.atlas.PrepareUploads(maxPageUploads) {
		key := gpu.PageKey(up.Page)
		if _, err := r.textures.ResolveAtlasPage(key, r.atlas.PageSize()); err != nil {
			r.recordError(err)
			continue
		}
		if err := r.textures.WritePage(key, up.Rect, up.Pixels); err != nil {
			r.recordError(err)
			continue
		}
		r.atlas.CompleteUpload(up.Page, up.Rect)
	}
}

func (r *AcceleratedRenderer) finishFrame(draws []gpu.Draw, list *PrimitiveList) {
	r.diag.FrameHash, r.diag.BytesHashed = FrameHash(r.lastPixels, r.width, r.height, len(draws), r.cfg.background())
	r.diag.Frames++
	r.diag.DrawCalls = len(draws)
	r.diag.Unsupported = list.Stats.Unsupported
	r.diag.GeometryBytes = list.Stats.GeometryBytes
}

func uniformsFor(p *Primitive) gpu.Uniforms {
	return gpu.Uniforms{
		Matrix: [6]float32{
			float32(p.Matrix.A), float32(p.Matrix.B), float32(p.Matrix.C),
			float32(p.Matrix.D), float32(p.Matrix.E), float32(p.Matrix.F),
		},
		Tint: [4]float32{
			float32(p.Tint.R), float32(p.Tint.G),
			float32(p.Tint.B), float32(p.Tint.A),
		},
	}
}

// MarkContextLost transitions the renderer to the lost state. The
// embedder calls it when the surface or device signals loss; frames
// fail with ErrContextLost until Restore.
func (r *AcceleratedRenderer) MarkContextLost() {
	if r.state != stateInitialized {
		return
	}
	r.state = stateLost
	r.recordError(ErrContextLost)
	stage.Logger().Warn("device context lost")
}

// Restore re-acquires the device and rebuilds every GPU resource from
// scratch: programs, geometry buffers, image textures, and atlas
// pages. Scene trees and the atlas CPU state survive untouched.
func (r *AcceleratedRenderer) Restore() error {
	switch r.state {
	case stateTornDown:
		return ErrTornDown
	case stateUninitialized:
		return ErrNotInitialized
	case stateInitialized:
		return nil
	}

	// The old device is gone; Destroy only drops our bookkeeping.
	r.adapter.Destroy()

	ad, err := r.acquire()
	if err != nil {
		r.recordError(err)
		return err
	}
	r.bind(ad)
	r.atlas.InvalidateUploads()
	r.lastPixels = nil
	r.state = stateInitialized
	stage.Logger().Info("device context restored", "context", ad.Name())
	return nil
}

// CaptureFrame implements Renderer.
func (r *AcceleratedRenderer) CaptureFrame(format CaptureFormat) (*Capture, error) {
	if err := r.checkState(); err != nil {
		return nil, err
	}
	if r.lastPixels == nil {
		return nil, fmt.Errorf("render: no frame rendered")
	}
	return capturePixels(r.lastPixels, r.width, r.height, format)
}

// Diagnostics implements Renderer.
func (r *AcceleratedRenderer) Diagnostics() Diagnostics {
	d := r.diag
	if r.geometry != nil {
		d.BufferBytes = r.geometry.BufferBytes()
		d.GeometryUploads = r.geometry.Uploads()
	}
	if r.textures != nil {
		d.TextureBytes = r.textures.TextureBytes()
		d.TextureUploads = r.textures.Uploads()
	}
	d.Atlas = r.atlas.Stats()
	d.Errors = append([]string(nil), r.diag.Errors...)
	return d
}

func (r *AcceleratedRenderer) recordError(err error) {
	r.diag.Errors = append(r.diag.Errors, err.Error())
}

// Teardown implements Renderer. Idempotent; resources die exactly
// once.
func (r *AcceleratedRenderer) Teardown() {
	if r.state == stateTornDown {
		return
	}
	if r.adapter != nil {
		r.geometry.Dispose()
		r.textures.Dispose()
		r.adapter.Destroy()
	}
	r.lastPixels = nil
	r.state = stateTornDown
}
