// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/telem"
)

var (
	// ErrFrameEnded is returned when drawing into a frame after End.
	ErrFrameEnded = errors.New("render: frame already ended")

	// ErrInvalidDrawCall is returned by Frame.Draw for calls that reference
	// missing buffers.
	ErrInvalidDrawCall = errors.New("render: invalid draw call")
)

// fenceTimeout bounds how long End waits for the GPU.
const fenceTimeout = 5 * time.Second

// Target is a surface a frame renders into.
type Target interface {
	// Acquire returns the view to render into and its size in pixels.
	Acquire() (view hal.TextureView, width, height uint32, err error)

	// Release is called once the frame has been submitted.
	Release()
}

// Renderer is implemented by tree components that draw into frames.
type Renderer interface {
	Render(f *Frame) error
}

// DrawCall is one instanced line-strip draw.
type DrawCall struct {
	Program  Program
	Stride   uint32
	Uniforms *Uniforms

	X, Y *Buffer
	// XOffset and YOffset are byte offsets into X and Y.
	XOffset, YOffset uint64

	Instances     *Buffer
	VertexCount   uint32
	InstanceCount uint32
}

func (d DrawCall) validate() error {
	switch {
	case d.Uniforms == nil || d.Uniforms.buf == nil:
		return errors.Wrap(ErrInvalidDrawCall, "no uniforms")
	case d.X == nil || d.X.raw == nil || d.Y == nil || d.Y.raw == nil:
		return errors.Wrap(ErrInvalidDrawCall, "vertex buffer not uploaded")
	case d.Instances == nil || d.Instances.raw == nil:
		return errors.Wrap(ErrInvalidDrawCall, "no instance buffer")
	case d.Program >= programCount:
		return errors.Wrapf(ErrInvalidDrawCall, "unknown program %d", d.Program)
	}
	stride := uint64(max(d.Stride, 1)) * sampleSize
	if d.VertexCount > 0 {
		last := uint64(d.VertexCount-1) * stride
		if d.XOffset+last+sampleSize > d.X.len || d.YOffset+last+sampleSize > d.Y.len {
			return errors.Wrapf(ErrInvalidDrawCall, "%d vertices at stride %d overrun buffers", d.VertexCount, d.Stride)
		}
	}
	return nil
}

// Frame collects draw calls for one target and submits them on End.
type Frame struct {
	ctx    *Context
	target Target
	view   hal.TextureView
	width  uint32
	height uint32
	calls  []DrawCall
	ended  bool
}

// BeginFrame acquires the target and starts collecting draw calls.
func (c *Context) BeginFrame(t Target) (*Frame, error) {
	if c.destroyed {
		return nil, ErrDestroyed
	}
	view, w, h, err := t.Acquire()
	if err != nil {
		return nil, errors.Wrap(err, "render: acquire target")
	}
	c.openFrames++
	return &Frame{ctx: c, target: t, view: view, width: w, height: h}, nil
}

// Size returns the target size in pixels.
func (f *Frame) Size() (width, height uint32) { return f.width, f.height }

// Aspect returns width/height, or one for an empty target.
func (f *Frame) Aspect() float32 {
	if f.height == 0 {
		return 1
	}
	return float32(f.width) / float32(f.height)
}

// Context returns the render context that owns the frame.
func (f *Frame) Context() *Context { return f.ctx }

// Draw queues a draw call. Calls with no vertices are dropped.
func (f *Frame) Draw(d DrawCall) error {
	if f.ended {
		return ErrFrameEnded
	}
	if d.VertexCount == 0 || d.InstanceCount == 0 {
		return nil
	}
	if err := d.validate(); err != nil {
		return err
	}
	f.calls = append(f.calls, d)
	return nil
}

// DrawCalls returns the calls queued so far.
func (f *Frame) DrawCalls() []DrawCall { return f.calls }

// End encodes one render pass with every queued call, submits it and waits
// for the GPU. The target is released whether or not submission succeeds, as
// are instance buffers evicted while the frame was open.
func (f *Frame) End() error {
	if f.ended {
		return ErrFrameEnded
	}
	f.ended = true
	defer f.ctx.frameDone()
	defer f.target.Release()
	if f.ctx.destroyed {
		return ErrDestroyed
	}

	c := f.ctx
	pipelines := make([]hal.RenderPipeline, len(f.calls))
	for i, d := range f.calls {
		pl, err := c.pipeline(d.Program, d.Stride)
		if err != nil {
			return err
		}
		pipelines[i] = pl
	}

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "line_frame_encoder",
	})
	if err != nil {
		return errors.Wrap(err, "render: create command encoder")
	}
	if err := encoder.BeginEncoding("line_frame"); err != nil {
		return errors.Wrap(err, "render: begin encoding")
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "line_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       f.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: c.cfg.clear,
		}},
	})
	for i, d := range f.calls {
		rp.SetPipeline(pipelines[i])
		rp.SetBindGroup(0, d.Uniforms.group, nil)
		rp.SetVertexBuffer(0, d.X.raw, d.XOffset)
		rp.SetVertexBuffer(1, d.Y.raw, d.YOffset)
		rp.SetVertexBuffer(2, d.Instances.raw, 0)
		rp.Draw(d.VertexCount, d.InstanceCount, 0, 0)
	}
	rp.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return errors.Wrap(err, "render: end encoding")
	}
	defer c.device.FreeCommandBuffer(cmdBuf)

	fence, err := c.device.CreateFence()
	if err != nil {
		return errors.Wrap(err, "render: create fence")
	}
	defer c.device.DestroyFence(fence)

	if err := c.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return errors.Wrap(err, "render: submit")
	}
	ok, err := c.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return errors.Wrap(err, "render: wait for GPU")
	}
	if !ok {
		return errors.Newf("render: GPU did not finish within %s", fenceTimeout)
	}
	telem.Logger().Debug("render: frame submitted", "draw_calls", len(f.calls), "width", f.width, "height", f.height)
	return nil
}
