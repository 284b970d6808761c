// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// uniformSize is the std140 size of LineUniforms, padded to 16 bytes.
const uniformSize = 48

// LineUniforms maps sample values to clip space and styles one line:
//
//	clip = sample*Scale + Offset + translate*Thickness
//
// where translate comes from the instance buffer.
type LineUniforms struct {
	Scale     [2]float32
	Offset    [2]float32
	Color     [4]float32
	Thickness [2]float32
}

// Bytes encodes u in the layout expected by the line shaders.
func (u LineUniforms) Bytes() []byte {
	b := make([]byte, uniformSize)
	put := func(off int, vs ...float32) {
		for i, v := range vs {
			binary.LittleEndian.PutUint32(b[off+i*4:], math.Float32bits(v))
		}
	}
	put(0, u.Scale[:]...)
	put(8, u.Offset[:]...)
	put(16, u.Color[:]...)
	put(32, u.Thickness[:]...)
	return b
}

// Uniforms is a uniform buffer with its bind group, one per line.
type Uniforms struct {
	ctx   *Context
	buf   hal.Buffer
	group hal.BindGroup
	last  LineUniforms
	set   bool
}

// NewUniforms allocates a uniform buffer and binds it to the line layout.
func (c *Context) NewUniforms(label string) (*Uniforms, error) {
	if c.destroyed {
		return nil, ErrDestroyed
	}
	buf, err := c.allocate(label+"_uniforms", uniformSize, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	group, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  label + "_bind",
		Layout: c.uniformsLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(), Offset: 0, Size: uniformSize,
			}},
		},
	})
	if err != nil {
		c.free(buf, uniformSize)
		return nil, errors.Wrapf(err, "render: create bind group %s", label)
	}
	return &Uniforms{ctx: c, buf: buf, group: group}, nil
}

// Write uploads v. Identical consecutive writes are skipped.
func (u *Uniforms) Write(v LineUniforms) {
	if u.buf == nil || (u.set && u.last == v) {
		return
	}
	u.ctx.queue.WriteBuffer(u.buf, 0, v.Bytes())
	u.last, u.set = v, true
}

// Current returns the last written values.
func (u *Uniforms) Current() LineUniforms { return u.last }

// Release frees the bind group and buffer. It is safe to call twice.
func (u *Uniforms) Release() {
	if u.buf == nil {
		return
	}
	u.ctx.device.DestroyBindGroup(u.group)
	u.ctx.free(u.buf, uniformSize)
	u.buf, u.group = nil, nil
}
