package line

import (
	"github.com/gogpu/telem/render"
	"github.com/gogpu/telem/series"
	"github.com/gogpu/telem/tree"
)

// PlotType is the component type tag of Plot.
const PlotType = "plot"

// PlotState is the control-side state of a plot.
type PlotState struct {
	Region   Region        `json:"region"`
	X        series.Bounds `json:"x"`
	Y        series.Bounds `json:"y"`
	Exposure float64       `json:"exposure"`
}

const plotSchema = `{
	"type": "object",
	"properties": {
		"region": {
			"type": "object",
			"properties": {
				"left": {"type": "number", "minimum": 0, "maximum": 1},
				"top": {"type": "number", "minimum": 0, "maximum": 1},
				"width": {"type": "number", "minimum": 0, "maximum": 1},
				"height": {"type": "number", "minimum": 0, "maximum": 1}
			}
		},
		"x": {"$ref": "#/definitions/bounds"},
		"y": {"$ref": "#/definitions/bounds"},
		"exposure": {"type": "number", "minimum": 0}
	},
	"definitions": {
		"bounds": {
			"type": "object",
			"properties": {
				"lower": {"type": "number"},
				"upper": {"type": "number"}
			},
			"required": ["lower", "upper"]
		}
	}
}`

// Plot is a composite that publishes a Viewport to its lines.
type Plot struct {
	tree.State[PlotState]
}

// Viewport returns the viewport described by the current state.
func (p *Plot) Viewport() Viewport {
	s := p.Current()
	return Viewport{Region: s.Region, X: s.X, Y: s.Y, Exposure: s.Exposure}
}

// AfterUpdate publishes the viewport when it changed. Setting it marks the
// context changed, which re-runs every line below the plot.
func (p *Plot) AfterUpdate(ctx *tree.Context) error {
	if !ctx.SetPreviously(ViewportKey) || p.Current() != p.Previous() {
		ctx.Set(ViewportKey, p.Viewport())
	}
	render.RequestRender(ctx, render.ReasonLayout)
	return nil
}

// AfterContextChange keeps the published viewport; providers carry over to
// the new fork.
func (p *Plot) AfterContextChange(*tree.Context) error { return nil }

// AfterDelete requests a frame so the plot's lines disappear.
func (p *Plot) AfterDelete(ctx *tree.Context) {
	render.RequestRender(ctx, render.ReasonLayout)
}

// Register adds the plot and line factories to reg.
func Register(reg *tree.Registry) {
	reg.Register(tree.Factory{
		Type:      PlotType,
		Schema:    plotSchema,
		Composite: true,
		New:       func(string) tree.Component { return &Plot{} },
	})
	reg.Register(tree.Factory{
		Type:   LineType,
		Schema: lineSchema,
		New:    func(key string) tree.Component { return New(key) },
	})
}
