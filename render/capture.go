package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// capturePixels materializes a readback buffer in the requested
// capture format. pixels are premultiplied RGBA, tightly packed.
func capturePixels(pixels []byte, w, h int, format CaptureFormat) (*Capture, error) {
	out := &Capture{Width: w, Height: h}
	switch format {
	case CapturePixels:
		out.Pixels = append([]byte(nil), pixels...)
	case CaptureImage:
		out.Image = pixelsImage(pixels, w, h)
	case CapturePNG:
		var buf bytes.Buffer
		if err := png.Encode(&buf, pixelsImage(pixels, w, h)); err != nil {
			return nil, fmt.Errorf("render: encode capture: %w", err)
		}
		out.Blob = buf.Bytes()
	default:
		return nil, fmt.Errorf("render: unknown capture format %d", format)
	}
	return out, nil
}

func pixelsImage(pixels []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, pixels)
	return img
}
