package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
)

// GeometrySource is a reusable interleaved vertex array. Version is an
// explicit change counter: callers bump it when Data mutates, and the
// cache re-uploads only when the version or the byte length differs
// from what the GPU holds. Pointer identity is never consulted.
type GeometrySource struct {
	ID       uint32
	Material MaterialID
	Data     []float32
	Version  uint64
}

// ByteLen returns the upload size of the source.
func (s *GeometrySource) ByteLen() int { return len(s.Data) * 4 }

// VertexCount returns the number of vertices for the material stride.
func (s *GeometrySource) VertexCount(stride int) int {
	if stride <= 0 {
		return 0
	}
	return len(s.Data) / stride
}

type geometryEntry struct {
	buffer   BufferID
	capacity int
	version  uint64
	byteLen  int
	valid    bool
}

// GeometryBatchCache maps geometry sources to device buffers, growing
// buffers as needed and skipping uploads for unchanged sources.
type GeometryBatchCache struct {
	adapter Adapter
	entries map[uint32]*geometryEntry

	bufferBytes   int
	uploads       uint64
	bytesUploaded uint64
}

// NewGeometryBatchCache creates a cache bound to an adapter.
func NewGeometryBatchCache(a Adapter) *GeometryBatchCache {
	return &GeometryBatchCache{
		adapter: a,
		entries: make(map[uint32]*geometryEntry),
	}
}

// Resolve returns the device buffer holding the source's data,
// uploading it if the source is new, its version changed, or its byte
// length changed.
func (c *GeometryBatchCache) Resolve(src *GeometrySource) (BufferID, error) {
	byteLen := src.ByteLen()
	if byteLen == 0 {
		return 0, fmt.Errorf("gpu: geometry source %d is empty", src.ID)
	}

	e := c.entries[src.ID]
	if e == nil {
		e = &geometryEntry{}
		c.entries[src.ID] = e
	}

	if e.capacity < byteLen {
		if e.capacity > 0 {
			c.adapter.DestroyBuffer(e.buffer)
			c.bufferBytes -= e.capacity
		}
		buf, err := c.adapter.CreateBuffer(fmt.Sprintf("geometry-%d", src.ID), byteLen)
		if err != nil {
			e.capacity = 0
			e.valid = false
			return 0, err
		}
		e.buffer = buf
		e.capacity = byteLen
		e.valid = false
		c.bufferBytes += byteLen
	}

	if !e.valid || e.version != src.Version || e.byteLen != byteLen {
		if err := c.adapter.WriteBuffer(e.buffer, 0, floatBytes(src.Data)); err != nil {
			e.valid = false
			return 0, err
		}
		e.version = src.Version
		e.byteLen = byteLen
		e.valid = true
		c.uploads++
		c.bytesUploaded += uint64(byteLen)
	}
	return e.buffer, nil
}

// Invalidate forgets the cached upload state without destroying the
// buffer, forcing a re-upload on next resolve.
func (c *GeometryBatchCache) Invalidate(id uint32) {
	if e, ok := c.entries[id]; ok {
		e.valid = false
	}
}

// Release destroys the buffer for one source.
func (c *GeometryBatchCache) Release(id uint32) {
	if e, ok := c.entries[id]; ok {
		if e.capacity > 0 {
			c.adapter.DestroyBuffer(e.buffer)
			c.bufferBytes -= e.capacity
		}
		delete(c.entries, id)
	}
}

// Dispose destroys every buffer and zeroes the byte accounting.
func (c *GeometryBatchCache) Dispose() {
	for id, e := range c.entries {
		if e.capacity > 0 {
			c.adapter.DestroyBuffer(e.buffer)
		}
		delete(c.entries, id)
	}
	c.bufferBytes = 0
}

// BufferBytes returns the total capacity of live buffers.
func (c *GeometryBatchCache) BufferBytes() int { return c.bufferBytes }

// Uploads returns the number of buffer uploads performed.
func (c *GeometryBatchCache) Uploads() uint64 { return c.uploads }

// floatBytes serializes float32 data little-endian for upload.
func floatBytes(data []float32) []byte {
	out := make([]byte, len(data)*4)
	for i, f := range data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
