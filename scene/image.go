package scene

import (
	"log/slog"

	"github.com/gogpu/stage"
)

// stageLogger returns the shared stage logger.
func stageLogger() *slog.Logger { return stage.Logger() }

// FitMode controls how an image is scaled into its layout box.
type FitMode uint8

const (
	// FitContain scales the image to fit inside the box, preserving
	// aspect ratio; the box may show empty margins.
	FitContain FitMode = iota

	// FitCover scales the image to cover the whole box, preserving
	// aspect ratio; the image may be cropped.
	FitCover

	// FitFill stretches the image to the box, ignoring aspect ratio.
	FitFill

	// FitNone draws the image at its natural size, centered in the box.
	FitNone
)

// ImageNode draws a raster image from an Arena into a layout box.
type ImageNode struct {
	Base

	// Image is the arena handle; zero draws nothing (placeholder state).
	Image ImageID

	// Arena resolves the handle. Shared by the subtree that owns the
	// image resources.
	Arena *Arena

	Width, Height float64

	Fit FitMode

	// Tint multiplies the image; white is neutral.
	Tint stage.RGBA
}

// NewImage creates an image node over the given arena handle.
func NewImage(arena *Arena, id ImageID, w, h float64) *ImageNode {
	return &ImageNode{
		Base:  NewBase(),
		Image: id,
		Arena: arena,
		Width: w, Height: h,
		Tint: stage.White,
	}
}

func (*ImageNode) node() {}

// LocalBounds returns the layout box.
func (n *ImageNode) LocalBounds() stage.Rect {
	return stage.Rect{MinX: 0, MinY: 0, MaxX: n.Width, MaxY: n.Height}
}

// Placement returns the destination rectangle of the image inside the
// layout box for the node's fit mode, preserving aspect ratio where the
// mode demands it.
func (n *ImageNode) Placement() (stage.Rect, bool) {
	if n.Arena == nil || n.Image == 0 {
		return stage.Rect{}, false
	}
	e, ok := n.Arena.Lookup(n.Image)
	if !ok || e.Width <= 0 || e.Height <= 0 {
		return stage.Rect{}, false
	}

	iw, ih := float64(e.Width), float64(e.Height)
	bw, bh := n.Width, n.Height

	var w, h float64
	switch n.Fit {
	case FitFill:
		w, h = bw, bh
	case FitNone:
		w, h = iw, ih
	case FitCover:
		s := bw / iw
		if bh/ih > s {
			s = bh / ih
		}
		w, h = iw*s, ih*s
	default: // FitContain
		s := bw / iw
		if bh/ih < s {
			s = bh / ih
		}
		w, h = iw*s, ih*s
	}

	x := (bw - w) / 2
	y := (bh - h) / 2
	return stage.Rect{MinX: x, MinY: y, MaxX: x + w, MaxY: y + h}, true
}
