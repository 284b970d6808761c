// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// TextureTarget is an offscreen Target backed by a texture owned by the
// render context's device.
type TextureTarget struct {
	ctx    *Context
	tex    hal.Texture
	view   hal.TextureView
	width  uint32
	height uint32
}

// NewTextureTarget creates a width x height offscreen target in the
// context's color format.
func NewTextureTarget(c *Context, width, height uint32) (*TextureTarget, error) {
	t := &TextureTarget{ctx: c}
	if err := t.Resize(width, height); err != nil {
		return nil, err
	}
	return t, nil
}

// Resize recreates the texture if the size changed.
func (t *TextureTarget) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return errors.Newf("render: invalid target size %dx%d", width, height)
	}
	if t.tex != nil && width == t.width && height == t.height {
		return nil
	}
	t.Destroy()
	tex, err := t.ctx.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "line_target",
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        t.ctx.cfg.format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return errors.Wrap(err, "render: create target texture")
	}
	view, err := t.ctx.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: "line_target_view",
	})
	if err != nil {
		t.ctx.device.DestroyTexture(tex)
		return errors.Wrap(err, "render: create target view")
	}
	t.tex, t.view, t.width, t.height = tex, view, width, height
	return nil
}

// Acquire implements Target.
func (t *TextureTarget) Acquire() (hal.TextureView, uint32, uint32, error) {
	if t.view == nil {
		return nil, 0, 0, errors.New("render: texture target destroyed")
	}
	return t.view, t.width, t.height, nil
}

// Release implements Target. The texture stays alive for the next frame.
func (t *TextureTarget) Release() {}

// Texture returns the backing texture, for readback by the caller.
func (t *TextureTarget) Texture() hal.Texture { return t.tex }

// Destroy frees the texture and view.
func (t *TextureTarget) Destroy() {
	if t.view != nil {
		t.ctx.device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.tex != nil {
		t.ctx.device.DestroyTexture(t.tex)
		t.tex = nil
	}
	t.width, t.height = 0, 0
}
