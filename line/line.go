package line

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/telem"
	"github.com/gogpu/telem/drawop"
	"github.com/gogpu/telem/render"
	"github.com/gogpu/telem/series"
	"github.com/gogpu/telem/source"
	"github.com/gogpu/telem/tree"
)

// LineType is the component type tag of Line.
const LineType = "line"

// ErrNoSourceRegistry is returned when a line is updated under a context
// that publishes no source registry.
var ErrNoSourceRegistry = errors.New("line: no source registry in context")

// State is the control-side state of a line.
type State struct {
	// Key labels the line in reported state. It defaults to the node key.
	Key   string      `json:"key,omitempty"`
	X     source.Spec `json:"x"`
	Y     source.Spec `json:"y"`
	Color [4]float32  `json:"color"`

	// StrokeWidth in pixels. Widths above one are drawn by instancing.
	StrokeWidth int `json:"strokeWidth,omitempty"`

	// Downsample is the minimum downsample factor.
	Downsample int    `json:"downsample,omitempty"`
	Mode       string `json:"mode,omitempty"`

	// OverlapThreshold is the chunk time-range tolerance, in nanoseconds.
	OverlapThreshold time.Duration `json:"overlapThreshold,omitempty"`

	// Decimate, when above one, keeps every n-th sample of each chunk
	// before upload.
	Decimate int `json:"decimate,omitempty"`
}

const lineSchema = `{
	"type": "object",
	"properties": {
		"key": {"type": "string"},
		"x": {"$ref": "#/definitions/source"},
		"y": {"$ref": "#/definitions/source"},
		"color": {
			"type": "array",
			"items": {"type": "number", "minimum": 0, "maximum": 1},
			"minItems": 4,
			"maxItems": 4
		},
		"strokeWidth": {"type": "integer", "minimum": 0, "maximum": 32},
		"downsample": {"type": "integer", "minimum": 0, "maximum": 51},
		"mode": {"enum": ["", "decimate", "none"]},
		"overlapThreshold": {"type": "integer", "minimum": 0},
		"decimate": {"type": "integer", "minimum": 0}
	},
	"required": ["x", "y"],
	"definitions": {
		"source": {
			"type": "object",
			"properties": {
				"type": {"type": "string", "minLength": 1},
				"props": {}
			},
			"required": ["type"]
		}
	}
}`

// BoundsReport is pushed to the control side when the data bounds of a
// line change.
type BoundsReport struct {
	Key string        `json:"key"`
	X   series.Bounds `json:"x"`
	Y   series.Bounds `json:"y"`
}

type decimateKey struct {
	chunk  uint64
	factor int
}

// chunkBuffer is the GPU copy of one chunk, uploaded relative to base.
type chunkBuffer struct {
	buf  *render.Buffer
	base float64
}

// Line is a leaf that draws one x/y channel pair.
type Line struct {
	tree.State[State]
	key string
	ctx *tree.Context

	rctx     *render.Context
	uniforms *render.Uniforms

	x, y         source.Source
	xSpec, ySpec source.Spec
	unsubs       []func()

	xBufs, yBufs map[uint64]*chunkBuffer
	xBase, yBase float64
	hasBase      bool
	decimated    map[decimateKey]*series.Series

	reported BoundsReport
}

// New creates an empty line for the node with the given key.
func New(key string) *Line {
	return &Line{
		key:       key,
		xBufs:     make(map[uint64]*chunkBuffer),
		yBufs:     make(map[uint64]*chunkBuffer),
		decimated: make(map[decimateKey]*series.Series),
	}
}

// AfterUpdate acquires sources and GPU resources. It is idempotent: a
// repeated call with unchanged specs and render context acquires nothing.
func (l *Line) AfterUpdate(ctx *tree.Context) error {
	l.ctx = ctx

	if rctx, _ := render.FromTree(ctx); rctx != l.rctx {
		l.releaseGPU()
		l.rctx = rctx
	}
	if err := l.syncSources(ctx); err != nil {
		return err
	}
	if l.rctx != nil && l.uniforms == nil {
		u, err := l.rctx.NewUniforms("line_" + l.key)
		if err != nil {
			return errors.Wrapf(err, "line %s", l.key)
		}
		l.uniforms = u
	}
	render.RequestRender(ctx, render.ReasonLayout)
	return nil
}

// AfterContextChange re-runs AfterUpdate against the new fork.
func (l *Line) AfterContextChange(ctx *tree.Context) error {
	return l.AfterUpdate(ctx)
}

// AfterDelete releases sources and GPU resources.
func (l *Line) AfterDelete(ctx *tree.Context) {
	l.closeSources()
	l.releaseGPU()
	render.RequestRender(ctx, render.ReasonLayout)
}

// syncSources recreates a source only when its spec changed.
func (l *Line) syncSources(ctx *tree.Context) error {
	cur := l.Current()
	if l.x != nil && l.y != nil && cur.X.Equal(l.xSpec) && cur.Y.Equal(l.ySpec) {
		return nil
	}
	reg, ok := source.FromTree(ctx)
	if !ok {
		return ErrNoSourceRegistry
	}
	x, err := reg.Create(cur.X)
	if err != nil {
		return errors.Wrapf(err, "line %s: x source", l.key)
	}
	y, err := reg.Create(cur.Y)
	if err != nil {
		_ = x.Cleanup()
		return errors.Wrapf(err, "line %s: y source", l.key)
	}
	l.closeSources()
	l.x, l.y = x, y
	l.xSpec, l.ySpec = cur.X, cur.Y

	// Subscribers run on producer goroutines, so they capture the
	// requester rather than the context.
	if req, ok := tree.Lookup[render.Requester](ctx, render.RequesterKey); ok {
		notify := func() { req.RequestRender(render.ReasonData) }
		l.unsubs = append(l.unsubs, x.OnChange(notify), y.OnChange(notify))
	}
	telem.Logger().Debug("line: sources created", "key", l.key, "x", cur.X.Type, "y", cur.Y.Type)
	return nil
}

func (l *Line) closeSources() {
	for _, unsub := range l.unsubs {
		unsub()
	}
	l.unsubs = nil
	for _, s := range []source.Source{l.x, l.y} {
		if s == nil {
			continue
		}
		if err := s.Cleanup(); err != nil {
			telem.Logger().Warn("line: source cleanup failed", "key", l.key, "error", err)
		}
	}
	l.x, l.y = nil, nil
	l.xSpec, l.ySpec = source.Spec{}, source.Spec{}
}

func (l *Line) releaseGPU() {
	for k, cb := range l.xBufs {
		cb.buf.Release()
		delete(l.xBufs, k)
	}
	for k, cb := range l.yBufs {
		cb.buf.Release()
		delete(l.yBufs, k)
	}
	if l.uniforms != nil {
		l.uniforms.Release()
		l.uniforms = nil
	}
	l.hasBase = false
}

// Render draws the line into f.
func (l *Line) Render(f *render.Frame) error {
	if l.rctx == nil || l.uniforms == nil || l.x == nil || l.y == nil {
		return nil
	}
	_, xs, err := l.x.Value()
	if err != nil {
		return errors.Wrapf(err, "line %s: read x", l.key)
	}
	_, ys, err := l.y.Value()
	if err != nil {
		return errors.Wrapf(err, "line %s: read y", l.key)
	}
	if xs.Empty() || ys.Empty() {
		return nil
	}

	cur := l.Current()
	if cur.Decimate > 1 {
		xs, ys = l.predecimate(xs, cur.Decimate), l.predecimate(ys, cur.Decimate)
	}
	xData, yData := xs.Bounds(), ys.Bounds()
	yProgram := render.ProgramFor(ys.Series[0].DataType())
	l.rebase(xData, yData, yProgram)

	if err := l.upload(l.xBufs, xs, l.xBase, render.ProgramFloat); err != nil {
		return err
	}
	if err := l.upload(l.yBufs, ys, l.yBase, yProgram); err != nil {
		return err
	}

	vp, _ := tree.Lookup[Viewport](l.ctx, ViewportKey)
	ops := drawop.Compile(xs, ys, drawop.Params{
		Exposure:         vp.Exposure,
		MinDownsample:    cur.Downsample,
		Mode:             drawop.ParseMode(cur.Mode),
		OverlapThreshold: cur.OverlapThreshold,
	})

	_, height := f.Size()
	l.uniforms.Write(uniforms(vp, fit(vp.X, xData), fit(vp.Y, yData), l.xBase, l.yBase, cur.Color, height))

	inst, count, err := l.rctx.InstanceBuffer(f.Aspect(), cur.StrokeWidth)
	if err != nil {
		return errors.Wrapf(err, "line %s", l.key)
	}
	for _, op := range ops {
		xb, yb := l.xBufs[op.X.Key()], l.yBufs[op.Y.Key()]
		if xb == nil || yb == nil {
			continue
		}
		if err := f.Draw(render.DrawCall{
			Program:       render.ProgramFor(op.Y.DataType()),
			Stride:        uint32(op.Downsample),
			Uniforms:      l.uniforms,
			X:             xb.buf,
			Y:             yb.buf,
			XOffset:       uint64(op.XOffset) * 4,
			YOffset:       uint64(op.YOffset) * 4,
			Instances:     inst,
			VertexCount:   uint32(op.VertexCount()),
			InstanceCount: count,
		}); err != nil {
			return errors.Wrapf(err, "line %s", l.key)
		}
	}

	l.report(xData, yData)
	return nil
}

// predecimate replaces every chunk with a decimated copy kept for as long as
// its source chunk is live, so the copy has a stable identity across frames.
func (l *Line) predecimate(ms series.MultiSeries, factor int) series.MultiSeries {
	out := series.MultiSeries{Series: make([]*series.Series, len(ms.Series))}
	live := make(map[decimateKey]struct{}, len(ms.Series))
	for i, s := range ms.Series {
		k := decimateKey{chunk: s.Key(), factor: factor}
		d, ok := l.decimated[k]
		if !ok {
			d = s.Downsample(factor)
			l.decimated[k] = d
		}
		live[k] = struct{}{}
		out.Series[i] = d
	}
	for k := range l.decimated {
		if _, ok := live[k]; !ok {
			delete(l.decimated, k)
		}
	}
	return out
}

// rebase picks the values samples are uploaded relative to, so large
// magnitudes such as nanosecond timestamps survive conversion to float32.
// A base is kept until the data has moved more than twice its own span
// away from it.
func (l *Line) rebase(x, y series.Bounds, yProgram render.Program) {
	if !l.hasBase || stale(l.xBase, x) {
		l.xBase = x.Lower
	}
	switch {
	case yProgram == render.ProgramInteger:
		l.yBase = 0
	case !l.hasBase || stale(l.yBase, y):
		l.yBase = y.Lower
	}
	l.hasBase = true
}

func stale(base float64, b series.Bounds) bool {
	return b.Lower < base || b.Upper-base > 2*b.Span()
}

// upload makes bufs mirror the chunks of ms. Chunks already resident with
// the same base are skipped; buffers of chunks no longer present are
// released.
func (l *Line) upload(bufs map[uint64]*chunkBuffer, ms series.MultiSeries, base float64, p render.Program) error {
	live := make(map[uint64]struct{}, len(ms.Series))
	for _, s := range ms.Series {
		live[s.Key()] = struct{}{}
		cb, ok := bufs[s.Key()]
		if ok && cb.base == base {
			continue
		}
		if !ok {
			cb = &chunkBuffer{buf: l.rctx.NewBuffer("line_" + l.key + "_chunk")}
			bufs[s.Key()] = cb
		}
		var err error
		if p == render.ProgramInteger && s.DataType().FitsInt32() {
			err = cb.buf.WriteInt32s(s.Int32s())
		} else {
			err = cb.buf.WriteFloat32s(s.Float32s(base))
		}
		if err != nil {
			return errors.Wrapf(err, "line %s: upload chunk %d", l.key, s.Key())
		}
		cb.base = base
	}
	for k, cb := range bufs {
		if _, ok := live[k]; !ok {
			cb.buf.Release()
			delete(bufs, k)
		}
	}
	return nil
}

func (l *Line) report(x, y series.Bounds) {
	key := l.Current().Key
	if key == "" {
		key = l.key
	}
	r := BoundsReport{Key: key, X: x, Y: y}
	if r == l.reported {
		return
	}
	if err := l.ctx.Report(r); err != nil && !errors.Is(err, tree.ErrNoSender) {
		telem.Logger().Warn("line: report bounds failed", "key", key, "error", err)
		return
	}
	l.reported = r
}
