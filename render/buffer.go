// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/telem"
)

// sampleSize is the width in bytes of one uploaded x or y sample.
const sampleSize = 4

// minBufferSize is the smallest vertex buffer allocation.
const minBufferSize = 256

// Buffer is a growable GPU vertex buffer. Writes replace the whole contents;
// the underlying allocation only grows, to the next power of two.
type Buffer struct {
	ctx   *Context
	label string
	raw   hal.Buffer
	len   uint64
	cap   uint64
}

// NewBuffer returns an empty vertex buffer. No GPU memory is allocated until
// the first Write.
func (c *Context) NewBuffer(label string) *Buffer {
	return &Buffer{ctx: c, label: label}
}

// Write uploads data, reallocating the GPU buffer if it is too small. Data
// is padded to a multiple of four bytes.
func (b *Buffer) Write(data []byte) error {
	if b.ctx.destroyed {
		return ErrDestroyed
	}
	if pad := len(data) % 4; pad != 0 {
		data = append(data[:len(data):len(data)], make([]byte, 4-pad)...)
	}
	need := uint64(len(data))
	if need == 0 {
		b.len = 0
		return nil
	}
	if need > b.cap {
		capacity := max(uint64(minBufferSize), uint64(1)<<bits.Len64(need-1))
		raw, err := b.ctx.allocate(b.label, capacity, gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
		if err != nil {
			return err
		}
		if b.raw != nil {
			b.ctx.free(b.raw, b.cap)
			telem.Logger().Debug("render: grew buffer", "label", b.label,
				"from", humanize.IBytes(b.cap), "to", humanize.IBytes(capacity))
		}
		b.raw, b.cap = raw, capacity
	}
	b.ctx.queue.WriteBuffer(b.raw, 0, data)
	b.len = need
	return nil
}

// WriteFloat32s uploads v as little-endian float32 samples.
func (b *Buffer) WriteFloat32s(v []float32) error {
	data := make([]byte, len(v)*sampleSize)
	for i, f := range v {
		binary.LittleEndian.PutUint32(data[i*sampleSize:], math.Float32bits(f))
	}
	return b.Write(data)
}

// WriteInt32s uploads v as little-endian int32 samples.
func (b *Buffer) WriteInt32s(v []int32) error {
	data := make([]byte, len(v)*sampleSize)
	for i, n := range v {
		binary.LittleEndian.PutUint32(data[i*sampleSize:], uint32(n))
	}
	return b.Write(data)
}

// Len returns the number of bytes last written.
func (b *Buffer) Len() uint64 { return b.len }

// Cap returns the size of the GPU allocation.
func (b *Buffer) Cap() uint64 { return b.cap }

// Samples returns the number of 4-byte samples last written.
func (b *Buffer) Samples() int { return int(b.len / sampleSize) }

// Raw returns the HAL buffer, or nil before the first non-empty Write.
func (b *Buffer) Raw() hal.Buffer { return b.raw }

// Release frees the GPU allocation. The Buffer may be written again.
func (b *Buffer) Release() {
	if b.raw == nil {
		return
	}
	b.ctx.free(b.raw, b.cap)
	b.raw, b.len, b.cap = nil, 0, 0
}

// allocate creates a GPU buffer and tracks it in the context stats.
func (c *Context) allocate(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	raw, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "render: create buffer %s (%s)", label, humanize.IBytes(size))
	}
	c.liveBuffers++
	c.liveBytes += size
	return raw, nil
}

func (c *Context) free(raw hal.Buffer, size uint64) {
	c.device.DestroyBuffer(raw)
	c.liveBuffers--
	c.liveBytes -= size
}
