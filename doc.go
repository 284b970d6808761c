// Package telem renders live telemetry through a component tree that is
// mirrored between a control goroutine and a dedicated render goroutine.
//
// # Overview
//
// The control side describes what should be drawn (plots, lines, their
// telemetry sources) as a tree of keyed components. Every mutation travels as
// a self-contained message over an ordered channel; the render side applies
// the messages to its own copy of the tree and owns every GPU resource. The
// two sides never share memory.
//
// # Packages
//
//   - series: immutable sample chunks with alignment and time ranges
//   - tree: the synchronization context and message-driven reconciliation
//   - drawop: the compiler from two multi-rate series to draw operations
//   - render: GPU programs, buffers, instancing caches and frames (gogpu/wgpu HAL)
//   - line: the plot and line components
//   - source: telemetry source interface and an in-memory series store
//   - loop: the render goroutine, render request coalescing and metrics
//   - wire: a framed, optionally compressed codec for tree messages
//   - control: the control-side mirror that emits tree messages
//
// # Quick Start
//
//	reg := tree.NewRegistry()
//	line.Register(reg)
//
//	l, err := loop.New(reg,
//	    loop.WithRenderContext(rctx),
//	    loop.WithTarget(target),
//	    loop.WithProvider(source.ContextKey, sources),
//	)
//	msgs := make(chan tree.Message, 64)
//	go l.Run(ctx, msgs)
//
//	m := control.NewMirror(msgs)
//	plot, _ := m.Root(ctx, line.PlotType, plotState)
//	_, _ = plot.Create(ctx, line.LineType, lineState)
//
// # Logging
//
// telem is silent by default. See [SetLogger].
package telem

// Version is the current version of the module.
const Version = "0.1.0"
