// Package loop runs the render side of a telem tree.
//
// A Loop owns the render-side tree, the base context its root forks from and,
// optionally, a render.Context and target. Run is the only goroutine that
// touches any of them: it applies inbound tree messages one at a time, to
// completion, and draws a frame whenever a render request is pending.
//
// Render requests come from components (layout changes) and from telemetry
// producers (new data) on arbitrary goroutines. The Scheduler coalesces them
// into a single pending signal, so a burst of writes costs one frame.
package loop
