// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/telem"
	"github.com/gogpu/telem/internal/cache"
)

var (
	// ErrProgramCompile is returned by NewContext when a line program cannot
	// be compiled or linked. The context is unusable.
	ErrProgramCompile = errors.New("render: line program compilation failed")

	// ErrNoHAL is returned by FromProvider when the provider does not expose
	// HAL device and queue types.
	ErrNoHAL = errors.New("render: provider does not expose HAL types")

	// ErrDestroyed is returned by operations on a destroyed Context.
	ErrDestroyed = errors.New("render: context destroyed")
)

// DefaultInstanceCacheSize bounds the number of cached instance buffers.
const DefaultInstanceCacheSize = 16

type config struct {
	format        gputypes.TextureFormat
	clear         gputypes.Color
	instanceCache int
}

// Option configures a Context.
type Option func(*config)

// WithFormat sets the color format of the targets the context renders to.
// The default is BGRA8Unorm.
func WithFormat(f gputypes.TextureFormat) Option {
	return func(c *config) { c.format = f }
}

// WithClearColor sets the color a frame is cleared to.
func WithClearColor(col gputypes.Color) Option {
	return func(c *config) { c.clear = col }
}

// WithInstanceCacheSize bounds how many (aspect, stroke width) instance
// buffers are kept alive.
func WithInstanceCacheSize(n int) Option {
	return func(c *config) { c.instanceCache = n }
}

// Context owns every GPU resource used to draw lines: shader modules,
// layouts, pipelines, vertex and uniform buffers.
//
// A Context is confined to the render goroutine. Resources it hands out must
// be released through it before Destroy.
type Context struct {
	device hal.Device
	queue  hal.Queue
	cfg    config

	shaders        [programCount]hal.ShaderModule
	uniformsLayout hal.BindGroupLayout
	pipeLayout     hal.PipelineLayout
	pipelines      map[pipelineKey]hal.RenderPipeline
	instances      *cache.LRU[instanceKey, *Buffer]

	// retired holds evicted buffers that queued draw calls of an open frame
	// may still reference.
	retired    []*Buffer
	openFrames int

	liveBuffers int
	liveBytes   uint64
	destroyed   bool
}

// NewContext compiles both line programs and creates the layouts and stride-1
// pipelines they need. Any failure is wrapped in ErrProgramCompile; the
// partially built context is destroyed.
func NewContext(device hal.Device, queue hal.Queue, opts ...Option) (*Context, error) {
	if device == nil || queue == nil {
		return nil, errors.Wrap(ErrNoHAL, "nil device or queue")
	}
	cfg := config{
		format:        gputypes.TextureFormatBGRA8Unorm,
		instanceCache: DefaultInstanceCacheSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Context{
		device:    device,
		queue:     queue,
		cfg:       cfg,
		pipelines: make(map[pipelineKey]hal.RenderPipeline),
	}
	c.instances = cache.New[instanceKey, *Buffer](cfg.instanceCache, func(_ instanceKey, b *Buffer) { c.retire(b) })

	if err := c.init(); err != nil {
		c.Destroy()
		return nil, errors.Mark(err, ErrProgramCompile)
	}
	telem.Logger().Info("render: context ready", "format", cfg.format, "programs", int(programCount))
	return c, nil
}

func (c *Context) init() error {
	for p := Program(0); p < programCount; p++ {
		spirv, err := compileWGSL(p.source())
		if err != nil {
			return errors.Wrapf(err, "compile %s", p)
		}
		mod, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  p.String() + "_shader",
			Source: hal.ShaderSource{SPIRV: spirv},
		})
		if err != nil {
			return errors.Wrapf(err, "create %s shader module", p)
		}
		c.shaders[p] = mod
	}

	layout, err := c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "line_uniform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create line uniform layout")
	}
	c.uniformsLayout = layout

	pipeLayout, err := c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "line_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{c.uniformsLayout},
	})
	if err != nil {
		return errors.Wrap(err, "create line pipeline layout")
	}
	c.pipeLayout = pipeLayout

	for p := Program(0); p < programCount; p++ {
		if _, err := c.pipeline(p, 1); err != nil {
			return err
		}
	}
	return nil
}

// FromProvider creates a Context on the device shared by a host application.
// The provider must expose HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func FromProvider(provider DeviceHandle, opts ...Option) (*Context, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, errors.Wrap(ErrNoHAL, "HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.Wrap(ErrNoHAL, "HalQueue is not hal.Queue")
	}
	return NewContext(device, queue, opts...)
}

// pipeline returns the cached pipeline for (p, stride), creating it on first
// use.
func (c *Context) pipeline(p Program, stride uint32) (hal.RenderPipeline, error) {
	if stride == 0 {
		stride = 1
	}
	key := pipelineKey{program: p, stride: stride}
	if pl, ok := c.pipelines[key]; ok {
		return pl, nil
	}
	pl, err := c.createPipeline(key)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", key.label())
	}
	c.pipelines[key] = pl
	telem.Logger().Debug("render: created pipeline", "program", p, "stride", stride)
	return pl, nil
}

// retire releases b, or defers the release until every open frame has ended.
func (c *Context) retire(b *Buffer) {
	if c.openFrames > 0 && !c.destroyed {
		c.retired = append(c.retired, b)
		return
	}
	b.Release()
}

func (c *Context) frameDone() {
	c.openFrames--
	if c.openFrames == 0 {
		c.releaseRetired()
	}
}

func (c *Context) releaseRetired() {
	for _, b := range c.retired {
		b.Release()
	}
	c.retired = nil
}

// Format returns the color format of the context's targets.
func (c *Context) Format() gputypes.TextureFormat { return c.cfg.format }

// Device returns the HAL device.
func (c *Context) Device() hal.Device { return c.device }

// Stats describes the resources a Context currently owns.
type Stats struct {
	Buffers         int
	BufferBytes     uint64
	Pipelines       int
	InstanceBuffers int
}

// Stats returns a snapshot of owned resources.
func (c *Context) Stats() Stats {
	return Stats{
		Buffers:         c.liveBuffers,
		BufferBytes:     c.liveBytes,
		Pipelines:       len(c.pipelines),
		InstanceBuffers: c.instances.Len(),
	}
}

// Destroy releases cached instance buffers, pipelines, layouts and shader
// modules in reverse creation order. Buffers handed out by NewBuffer and
// NewUniforms must be released by their owners first. Destroy is idempotent.
func (c *Context) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.instances.Purge()
	c.releaseRetired()
	for k, pl := range c.pipelines {
		c.device.DestroyRenderPipeline(pl)
		delete(c.pipelines, k)
	}
	if c.pipeLayout != nil {
		c.device.DestroyPipelineLayout(c.pipeLayout)
		c.pipeLayout = nil
	}
	if c.uniformsLayout != nil {
		c.device.DestroyBindGroupLayout(c.uniformsLayout)
		c.uniformsLayout = nil
	}
	for i := len(c.shaders) - 1; i >= 0; i-- {
		if c.shaders[i] != nil {
			c.device.DestroyShaderModule(c.shaders[i])
			c.shaders[i] = nil
		}
	}
	if c.liveBuffers > 0 {
		telem.Logger().Warn("render: context destroyed with live buffers", "buffers", c.liveBuffers)
	}
}
