// Package line provides the plot and line components of the render tree.
//
// A Plot is a composite that owns a region of the surface and the value
// ranges shown in it. It publishes a Viewport to its subtree, so every Line
// under it re-renders when the plot is panned or zoomed without the control
// side addressing the lines individually.
//
// A Line is a leaf that reads an x and a y channel from the source registry,
// keeps their chunks resident on the GPU and turns every overlapping chunk
// pair into one instanced draw call.
//
//	reg := tree.NewRegistry()
//	line.Register(reg)
package line
