// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"strconv"

	"github.com/cockroachdb/errors"
)

// MaxStrokeWidth caps the number of replicas drawn per line.
const MaxStrokeWidth = 32

// directions are the unit translations replicated for thick strokes:
// center, up, down, left, right.
var directions = [5][2]float32{{0, 0}, {0, 1}, {0, -1}, {-1, 0}, {1, 0}}

// instanceKey identifies a cached translation buffer.
type instanceKey struct {
	aspect      float32
	strokeWidth int
}

// TranslationOffsets returns the per-instance translations, in pixels, that
// synthesize a stroke of the given width. Each of the five directions is
// replicated strokeWidth times with increasing magnitude. X components are
// divided by aspect so that, once scaled by the vertical pixel size, both
// axes move by the same number of pixels. A width of one or less yields a
// single centered instance.
func TranslationOffsets(aspect float32, strokeWidth int) []float32 {
	if strokeWidth <= 1 {
		return []float32{0, 0}
	}
	strokeWidth = min(strokeWidth, MaxStrokeWidth)
	if aspect <= 0 {
		aspect = 1
	}
	out := make([]float32, 0, strokeWidth*len(directions)*2)
	for i := 1; i <= strokeWidth; i++ {
		mag := float32(i) / 2
		for _, d := range directions {
			out = append(out, d[0]*mag/aspect, d[1]*mag)
		}
	}
	return out
}

// InstanceBuffer returns the GPU buffer holding TranslationOffsets(aspect,
// strokeWidth) and its instance count. Buffers are cached per context; the
// least recently used ones are released when the cache is full, or once the
// open frame ends if one is being built.
func (c *Context) InstanceBuffer(aspect float32, strokeWidth int) (*Buffer, uint32, error) {
	if c.destroyed {
		return nil, 0, ErrDestroyed
	}
	if strokeWidth < 1 {
		strokeWidth = 1
	}
	strokeWidth = min(strokeWidth, MaxStrokeWidth)
	key := instanceKey{aspect: aspect, strokeWidth: strokeWidth}
	buf, err := c.instances.GetOrCreate(key, func() (*Buffer, error) {
		b := c.NewBuffer("line_instances_w" + strconv.Itoa(strokeWidth))
		if err := b.WriteFloat32s(TranslationOffsets(aspect, strokeWidth)); err != nil {
			b.Release()
			return nil, errors.Wrap(err, "render: upload instance offsets")
		}
		return b, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return buf, uint32(buf.Samples() / 2), nil
}
