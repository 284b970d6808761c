// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render owns the GPU side of line drawing.
//
// A Context compiles the two line programs once, caches one pipeline per
// (program, downsample stride) pair and hands out the buffers lines upload
// their samples into. Decimation never resamples data: a pipeline built for
// stride n reads every n-th sample of the same buffer, so one upload serves
// every zoom level.
//
// Thick strokes are drawn by instancing: each line strip is replicated with
// small translations in five directions (see TranslationOffsets). The
// translation buffers are cached per (aspect, stroke width).
//
// # Frames
//
//	frame, err := rctx.BeginFrame(target)
//	if err != nil {
//		return err
//	}
//	for _, c := range calls {
//		if err := frame.Draw(c); err != nil {
//			return err
//		}
//	}
//	return frame.End()
//
// # Threading
//
// A Context is confined to the goroutine that runs the render loop. The
// only cross-goroutine entry point is the Requester published on the tree
// context under RequesterKey.
package render
