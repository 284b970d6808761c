// Package drawop compiles pairs of multi-chunk x and y series into draw
// operations.
//
// The x and y axes of a line are usually recorded by independently clocked
// channels, so their chunks rarely line up one-to-one. Compile matches every
// x chunk against every y chunk, keeps the pairs whose wall-clock and
// alignment ranges overlap, and works out how many samples each side must
// skip so that sample i of the x chunk and sample i of the y chunk share an
// alignment. Each surviving pair becomes one Operation, which the renderer
// turns into one instanced draw call.
//
// Compile also picks a downsample factor per operation from the caller's
// exposure. The renderer applies it as a vertex stride, so the uploaded
// buffers stay the single source of truth for every zoom level.
//
// The package is pure: it performs no I/O and holds no state.
package drawop
