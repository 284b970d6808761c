// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"strings"

	"github.com/gogpu/telem/tree"
)

// Reason records why a render was requested. Reasons accumulate as a bit
// mask while requests are coalesced.
type Reason uint8

const (
	// ReasonData means new samples arrived.
	ReasonData Reason = 1 << iota
	// ReasonLayout means a viewport, style or tree shape changed.
	ReasonLayout
)

// String lists the set reasons, joined by "|".
func (r Reason) String() string {
	if r == 0 {
		return "none"
	}
	var parts []string
	if r&ReasonData != 0 {
		parts = append(parts, "data")
	}
	if r&ReasonLayout != 0 {
		parts = append(parts, "layout")
	}
	if rest := r &^ (ReasonData | ReasonLayout); rest != 0 {
		parts = append(parts, "other")
	}
	return strings.Join(parts, "|")
}

// Requester schedules a frame. Implementations must be idempotent and safe
// to call from any goroutine; many requests before a frame collapse into one.
type Requester interface {
	RequestRender(Reason)
}

// RequesterFunc adapts a function to a Requester.
type RequesterFunc func(Reason)

// RequestRender implements Requester.
func (f RequesterFunc) RequestRender(r Reason) { f(r) }

// Provider keys under which the render loop publishes its Context and
// Requester on the base tree context.
const (
	ContextKey   = "render.context"
	RequesterKey = "render.requester"
)

// FromTree returns the Context published on ctx, if any.
func FromTree(ctx *tree.Context) (*Context, bool) {
	return tree.Lookup[*Context](ctx, ContextKey)
}

// RequestRender asks the loop that owns ctx for a frame. It is a no-op when
// no Requester is published.
func RequestRender(ctx *tree.Context, r Reason) {
	if req, ok := tree.Lookup[Requester](ctx, RequesterKey); ok {
		req.RequestRender(r)
	}
}
