package line

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/telem/render"
	"github.com/gogpu/telem/series"
	"github.com/gogpu/telem/source"
	"github.com/gogpu/telem/tree"
)

type harness struct {
	tree    *tree.Tree
	rctx    *render.Context
	store   *source.Memory
	target  *render.TextureTarget
	mu      sync.Mutex
	reasons []render.Reason
	reports []tree.StateMessage
}

func newHarness(t *testing.T, opts ...source.MemoryOption) *harness {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	dev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rctx, err := render.NewContext(dev.Device, dev.Queue)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	target, err := render.NewTextureTarget(rctx, 200, 100)
	if err != nil {
		t.Fatalf("NewTextureTarget: %v", err)
	}

	h := &harness{rctx: rctx, store: source.NewMemory(opts...), target: target}
	reg := tree.NewRegistry()
	Register(reg)
	sources := source.NewRegistry()
	h.store.Register(sources)

	h.tree = tree.New(reg, tree.SenderFunc(func(m tree.StateMessage) error {
		h.mu.Lock()
		h.reports = append(h.reports, m)
		h.mu.Unlock()
		return nil
	}))
	base := h.tree.Context()
	base.Set(render.ContextKey, rctx)
	base.Set(source.ContextKey, sources)
	base.Set(render.RequesterKey, render.RequesterFunc(func(r render.Reason) {
		h.mu.Lock()
		h.reasons = append(h.reasons, r)
		h.mu.Unlock()
	}))

	t.Cleanup(func() {
		h.tree.Close()
		target.Destroy()
		rctx.Destroy()
		dev.Device.Destroy()
		instance.Destroy()
	})
	return h
}

func (h *harness) handle(t *testing.T, m tree.Message) {
	t.Helper()
	if err := h.tree.Handle(m); err != nil {
		t.Fatalf("Handle(%s): %v", tree.JoinPath(m.Target()), err)
	}
}

func (h *harness) requested(r render.Reason) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, got := range h.reasons {
		if got == r {
			n++
		}
	}
	return n
}

func (h *harness) line(t *testing.T, path ...string) *Line {
	t.Helper()
	n := h.tree.Find(path)
	if n == nil {
		t.Fatalf("no node at %s", tree.JoinPath(path))
	}
	l, ok := n.Component().(*Line)
	if !ok {
		t.Fatalf("node %s is %T", tree.JoinPath(path), n.Component())
	}
	return l
}

// render runs one frame over every line under the root.
func (h *harness) render(t *testing.T) []render.DrawCall {
	t.Helper()
	f, err := h.rctx.BeginFrame(h.target)
	if err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	tree.Walk(h.tree.Root(), func(n *tree.Node) {
		if r, ok := n.Component().(render.Renderer); ok {
			if err := r.Render(f); err != nil {
				t.Errorf("Render(%s): %v", n.Key(), err)
			}
		}
	})
	calls := f.DrawCalls()
	if err := f.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	return calls
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func plotUpdate(t *testing.T, s PlotState) tree.Update {
	return tree.Update{Path: []string{"plot"}, Kind: tree.KindCreate, Type: PlotType, State: mustJSON(t, s)}
}

func lineUpdate(t *testing.T, key string, s State) tree.Update {
	return tree.Update{Path: []string{"plot", key}, Kind: tree.KindCreate, Type: LineType, State: mustJSON(t, s)}
}

const t0 = series.TimeStamp(1_700_000_000_000_000_000)

// writeChunk writes n samples on channels "time" and "value" starting at
// alignment a.
func writeChunk(t *testing.T, m *source.Memory, a uint64, n int) {
	t.Helper()
	ts := make([]series.TimeStamp, n)
	vs := make([]float32, n)
	for i := range ts {
		ts[i] = t0.Add(time.Duration(int(a)+i) * time.Millisecond)
		vs[i] = float32(i % 10)
	}
	tr := series.TimeRange{Start: ts[0], End: ts[n-1].Add(time.Millisecond)}
	opts := []series.Option{series.WithAlignment(a), series.WithMultiple(1), series.WithTimeRange(tr)}
	if err := m.Write("time", series.New(ts, opts...)); err != nil {
		t.Fatal(err)
	}
	if err := m.Write("value", series.New(vs, opts...)); err != nil {
		t.Fatal(err)
	}
}

func TestLineRender(t *testing.T) {
	h := newHarness(t)
	h.handle(t, plotUpdate(t, PlotState{Region: FullRegion}))
	h.handle(t, lineUpdate(t, "l1", State{
		X:           source.MemorySpec("time"),
		Y:           source.MemorySpec("value"),
		Color:       [4]float32{0, 1, 0, 1},
		StrokeWidth: 2,
	}))

	if calls := h.render(t); len(calls) != 0 {
		t.Fatalf("draw calls with no data = %d", len(calls))
	}

	before := h.requested(render.ReasonData)
	writeChunk(t, h.store, 0, 100)
	if got := h.requested(render.ReasonData); got != before+2 {
		t.Errorf("data requests = %d, want %d", got, before+2)
	}

	calls := h.render(t)
	if len(calls) != 1 {
		t.Fatalf("draw calls = %d, want 1", len(calls))
	}
	c := calls[0]
	if c.Program != render.ProgramFloat || c.Stride != 1 {
		t.Errorf("Program, Stride = %v, %d", c.Program, c.Stride)
	}
	if c.VertexCount != 100 || c.InstanceCount != 10 {
		t.Errorf("VertexCount, InstanceCount = %d, %d, want 100, 10", c.VertexCount, c.InstanceCount)
	}

	// Timestamps are uploaded relative to the first one, so the left edge
	// of the data lands on the left edge of clip space.
	l := h.line(t, "plot", "l1")
	if l.xBase != float64(t0) {
		t.Errorf("xBase = %v, want %v", l.xBase, float64(t0))
	}
	if u := l.uniforms.Current(); !near(u.Offset[0], -1) {
		t.Errorf("x offset = %v, want -1", u.Offset[0])
	}
	if u := l.uniforms.Current(); u.Color != [4]float32{0, 1, 0, 1} {
		t.Errorf("Color = %v", u.Color)
	}

	h.mu.Lock()
	reports := append([]tree.StateMessage(nil), h.reports...)
	h.mu.Unlock()
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	var r BoundsReport
	if err := json.Unmarshal(reports[0].State, &r); err != nil {
		t.Fatal(err)
	}
	if r.Key != "l1" || r.Y != (series.Bounds{Lower: 0, Upper: 9}) {
		t.Errorf("report = %+v", r)
	}

	// Unchanged data reports nothing new and uploads nothing.
	bufs := h.rctx.Stats().Buffers
	h.render(t)
	if got := h.rctx.Stats().Buffers; got != bufs {
		t.Errorf("Buffers after idle frame = %d, want %d", got, bufs)
	}
	h.mu.Lock()
	n := len(h.reports)
	h.mu.Unlock()
	if n != 1 {
		t.Errorf("reports after idle frame = %d, want 1", n)
	}
}

func TestLineMultiChunk(t *testing.T) {
	h := newHarness(t)
	h.handle(t, plotUpdate(t, PlotState{}))
	h.handle(t, lineUpdate(t, "l1", State{X: source.MemorySpec("time"), Y: source.MemorySpec("value")}))
	writeChunk(t, h.store, 0, 50)
	writeChunk(t, h.store, 50, 50)

	calls := h.render(t)
	if len(calls) != 2 {
		t.Fatalf("draw calls = %d, want one per chunk pair", len(calls))
	}
	for i, c := range calls {
		if c.VertexCount != 50 || c.InstanceCount != 1 {
			t.Errorf("call %d: VertexCount, InstanceCount = %d, %d", i, c.VertexCount, c.InstanceCount)
		}
	}
	l := h.line(t, "plot", "l1")
	if len(l.xBufs) != 2 || len(l.yBufs) != 2 {
		t.Errorf("resident chunks = %d, %d, want 2, 2", len(l.xBufs), len(l.yBufs))
	}
}

func TestLineIntegerProgram(t *testing.T) {
	h := newHarness(t)
	h.handle(t, plotUpdate(t, PlotState{}))
	h.handle(t, lineUpdate(t, "l1", State{X: source.MemorySpec("x"), Y: source.MemorySpec("y")}))

	opts := []series.Option{
		series.WithAlignment(0),
		series.WithMultiple(1),
		series.WithTimeRange(series.TimeRange{Start: t0, End: t0.Add(4 * time.Second)}),
	}
	if err := h.store.Write("x", series.New([]float64{0, 1, 2, 3}, opts...)); err != nil {
		t.Fatal(err)
	}
	if err := h.store.Write("y", series.New([]int16{-3, 5, 100, 7}, opts...)); err != nil {
		t.Fatal(err)
	}

	calls := h.render(t)
	if len(calls) != 1 || calls[0].Program != render.ProgramInteger {
		t.Fatalf("calls = %+v, want one integer draw", calls)
	}
	if l := h.line(t, "plot", "l1"); l.yBase != 0 {
		t.Errorf("yBase = %v, want 0 for integer data", l.yBase)
	}
}

func TestLineDecimate(t *testing.T) {
	h := newHarness(t)
	h.handle(t, plotUpdate(t, PlotState{}))
	h.handle(t, lineUpdate(t, "l1", State{X: source.MemorySpec("time"), Y: source.MemorySpec("value"), Decimate: 4}))
	writeChunk(t, h.store, 0, 100)

	calls := h.render(t)
	if len(calls) != 1 || calls[0].VertexCount != 25 {
		t.Fatalf("calls = %+v, want one call of 25 vertices", calls)
	}
	// The decimated copies are reused, so a second frame uploads nothing.
	bytes := h.rctx.Stats().BufferBytes
	h.render(t)
	if got := h.rctx.Stats().BufferBytes; got != bytes {
		t.Errorf("BufferBytes = %d, want %d", got, bytes)
	}
}

func TestLineDecimateManyChunks(t *testing.T) {
	const chunks = 300
	h := newHarness(t, source.WithRetention(chunks))
	h.handle(t, plotUpdate(t, PlotState{}))
	h.handle(t, lineUpdate(t, "l1", State{X: source.MemorySpec("time"), Y: source.MemorySpec("value"), Decimate: 2}))
	for i := 0; i < chunks; i++ {
		writeChunk(t, h.store, uint64(i*8), 8)
	}

	first := h.render(t)
	if len(first) != chunks {
		t.Fatalf("got %d calls, want %d", len(first), chunks)
	}
	second := h.render(t)
	if len(second) != chunks {
		t.Fatalf("second frame: got %d calls, want %d", len(second), chunks)
	}
	for i := range first {
		if first[i].X != second[i].X || first[i].Y != second[i].Y {
			t.Fatalf("call %d: chunk buffers replaced between frames", i)
		}
	}
	if n := len(h.line(t, "plot", "l1").decimated); n != 2*chunks {
		t.Errorf("decimated copies = %d, want %d", n, 2*chunks)
	}
}

func TestPlotViewportReachesLines(t *testing.T) {
	h := newHarness(t)
	h.handle(t, plotUpdate(t, PlotState{X: series.Bounds{Lower: 0, Upper: 10}}))
	h.handle(t, lineUpdate(t, "l1", State{X: source.MemorySpec("x"), Y: source.MemorySpec("y")}))

	vp, ok := tree.Lookup[Viewport](h.line(t, "plot", "l1").ctx, ViewportKey)
	if !ok || vp.X != (series.Bounds{Lower: 0, Upper: 10}) {
		t.Fatalf("viewport = %+v, %v", vp, ok)
	}

	h.handle(t, tree.Update{Path: []string{"plot"}, State: mustJSON(t, PlotState{X: series.Bounds{Lower: 5, Upper: 6}, Exposure: 0.5})})
	vp, _ = tree.Lookup[Viewport](h.line(t, "plot", "l1").ctx, ViewportKey)
	if vp.X != (series.Bounds{Lower: 5, Upper: 6}) || vp.Exposure != 0.5 {
		t.Errorf("viewport after plot update = %+v", vp)
	}
	if h.requested(render.ReasonLayout) == 0 {
		t.Error("plot update requested no layout render")
	}
}

func TestLineSourceChange(t *testing.T) {
	h := newHarness(t)
	h.handle(t, plotUpdate(t, PlotState{}))
	st := State{X: source.MemorySpec("time"), Y: source.MemorySpec("value")}
	h.handle(t, lineUpdate(t, "l1", st))
	if got := h.store.Subscribers("value"); got != 1 {
		t.Fatalf("value subscribers = %d, want 1", got)
	}

	// A color change keeps the sources.
	st.Color = [4]float32{1, 1, 1, 1}
	h.handle(t, tree.Update{Path: []string{"plot", "l1"}, State: mustJSON(t, st)})
	if got := h.store.Subscribers("value"); got != 1 {
		t.Errorf("value subscribers after color change = %d, want 1", got)
	}

	st.Y = source.MemorySpec("other")
	h.handle(t, tree.Update{Path: []string{"plot", "l1"}, State: mustJSON(t, st)})
	if got := h.store.Subscribers("value"); got != 0 {
		t.Errorf("value subscribers after source change = %d, want 0", got)
	}
	if got := h.store.Subscribers("other"); got != 1 {
		t.Errorf("other subscribers = %d, want 1", got)
	}
}

func TestLineDeleteReleases(t *testing.T) {
	h := newHarness(t)
	h.handle(t, plotUpdate(t, PlotState{}))
	h.handle(t, lineUpdate(t, "l1", State{X: source.MemorySpec("time"), Y: source.MemorySpec("value")}))
	writeChunk(t, h.store, 0, 100)
	h.render(t)

	h.handle(t, tree.Delete{Path: []string{"plot", "l1"}})
	st := h.rctx.Stats()
	if st.Buffers != st.InstanceBuffers {
		t.Errorf("Buffers = %d after delete, want only the %d cached instance buffers", st.Buffers, st.InstanceBuffers)
	}
	if got := h.store.Subscribers("time") + h.store.Subscribers("value"); got != 0 {
		t.Errorf("subscribers after delete = %d", got)
	}
	if calls := h.render(t); len(calls) != 0 {
		t.Errorf("draw calls after delete = %d", len(calls))
	}
}

func TestLineSchema(t *testing.T) {
	reg := tree.NewRegistry()
	Register(reg)
	tests := []struct {
		name  string
		state string
		ok    bool
	}{
		{"minimal", `{"x": {"type": "memory"}, "y": {"type": "memory"}}`, true},
		{"missing y", `{"x": {"type": "memory"}}`, false},
		{"stroke too wide", `{"x": {"type": "memory"}, "y": {"type": "memory"}, "strokeWidth": 33}`, false},
		{"downsample over ceiling", `{"x": {"type": "memory"}, "y": {"type": "memory"}, "downsample": 52}`, false},
		{"bad mode", `{"x": {"type": "memory"}, "y": {"type": "memory"}, "mode": "lttb"}`, false},
		{"short color", `{"x": {"type": "memory"}, "y": {"type": "memory"}, "color": [1, 0, 0]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Validate(LineType, json.RawMessage(tt.state))
			if (err == nil) != tt.ok {
				t.Errorf("Validate = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
