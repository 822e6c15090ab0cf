package render

import (
	"fmt"
	"hash/fnv"

	"github.com/gogpu/stage"
)

// FrameHash digests a frame's readback pixels with 32-bit FNV-1a and
// returns the hex digest plus the number of bytes hashed. Surfaces
// with no pixels (zero width or height) get a deterministic textual
// summary of the frame instead (dimensions, draw count, clear color),
// so a hash is always available for comparison.
func FrameHash(pixels []byte, width, height, draws int, clear stage.RGBA) (digest string, bytesHashed int) {
	if width <= 0 || height <= 0 || len(pixels) == 0 {
		cr, cg, cb, ca := clear.NRGBA8()
		return fmt.Sprintf("empty:%dx%d:%d:%02x%02x%02x%02x",
			width, height, draws, cr, cg, cb, ca), 0
	}
	h := fnv.New32a()
	h.Write(pixels)
	return fmt.Sprintf("%08x", h.Sum32()), len(pixels)
}
