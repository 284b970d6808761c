// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	_ "embed"
	"strconv"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/telem/series"
)

//go:embed shaders/line_float.wgsl
var lineFloatWGSL string

//go:embed shaders/line_int.wgsl
var lineIntWGSL string

// Program selects the line shader variant for a data type.
type Program uint8

const (
	// ProgramFloat reads y samples as 32-bit floats.
	ProgramFloat Program = iota
	// ProgramInteger reads y samples as 32-bit signed integers.
	ProgramInteger

	programCount
)

// String returns the program name used in labels.
func (p Program) String() string {
	switch p {
	case ProgramFloat:
		return "line_float"
	case ProgramInteger:
		return "line_int"
	default:
		return "line_unknown"
	}
}

// ProgramFor returns the program that can draw y samples of type dt without
// loss. Integers that fit in an int32 use ProgramInteger; everything else is
// converted to float32 relative to a precision base.
func ProgramFor(dt series.DataType) Program {
	if dt.FitsInt32() {
		return ProgramInteger
	}
	return ProgramFloat
}

func (p Program) source() string {
	if p == ProgramInteger {
		return lineIntWGSL
	}
	return lineFloatWGSL
}

func (p Program) yFormat() gputypes.VertexFormat {
	if p == ProgramInteger {
		return gputypes.VertexFormatSint32
	}
	return gputypes.VertexFormatFloat32
}

// compileWGSL compiles WGSL to SPIR-V words.
func compileWGSL(src string) ([]uint32, error) {
	spirv, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = uint32(spirv[i*4]) |
			uint32(spirv[i*4+1])<<8 |
			uint32(spirv[i*4+2])<<16 |
			uint32(spirv[i*4+3])<<24
	}
	return words, nil
}

// pipelineKey identifies a pipeline variant. Stride is the downsample factor:
// vertex buffers are read every stride samples.
type pipelineKey struct {
	program Program
	stride  uint32
}

// lineVertexLayout returns the three vertex streams of a line draw: x and y
// samples read with the decimation stride, and per-instance translations.
func lineVertexLayout(p Program, stride uint32) []gputypes.VertexBufferLayout {
	step := uint64(sampleSize) * uint64(stride)
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: step,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32, Offset: 0, ShaderLocation: 0},
			},
		},
		{
			ArrayStride: step,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: p.yFormat(), Offset: 0, ShaderLocation: 1},
			},
		},
		{
			ArrayStride: 8,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 2},
			},
		},
	}
}

// createPipeline builds the pipeline for key. Caller holds no locks; the
// Context is confined to the render goroutine.
func (c *Context) createPipeline(key pipelineKey) (hal.RenderPipeline, error) {
	blend := gputypes.BlendStatePremultiplied()
	return c.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  key.label(),
		Layout: c.pipeLayout,
		Vertex: hal.VertexState{
			Module:     c.shaders[key.program],
			EntryPoint: "vs_main",
			Buffers:    lineVertexLayout(key.program, key.stride),
		},
		Fragment: &hal.FragmentState{
			Module:     c.shaders[key.program],
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    c.cfg.format,
					Blend:     &blend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyLineStrip,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
}

func (k pipelineKey) label() string {
	return k.program.String() + "_pipeline_x" + strconv.FormatUint(uint64(k.stride), 10)
}
