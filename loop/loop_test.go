package loop

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/telem"
	"github.com/gogpu/telem/line"
	"github.com/gogpu/telem/render"
	"github.com/gogpu/telem/series"
	"github.com/gogpu/telem/source"
	"github.com/gogpu/telem/tree"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	telem.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { telem.SetLogger(nil) })
	return &buf
}

// counter returns the value of a counter in reg, matching every label in
// labels.
func counter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func newRegistry() *tree.Registry {
	reg := tree.NewRegistry()
	reg.Register(tree.GroupFactory("group"))
	line.Register(reg)
	return reg
}

func state(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

type gpu struct {
	rctx   *render.Context
	target *render.TextureTarget
}

func newGPU(t *testing.T) gpu {
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
	target, err := render.NewTextureTarget(rctx, 320, 240)
	if err != nil {
		t.Fatalf("NewTextureTarget: %v", err)
	}
	t.Cleanup(func() {
		target.Destroy()
		rctx.Destroy()
		dev.Device.Destroy()
		instance.Destroy()
	})
	return gpu{rctx: rctx, target: target}
}

func TestSchedulerCoalesces(t *testing.T) {
	s := NewScheduler()
	s.RequestRender(render.ReasonData)
	s.RequestRender(render.ReasonData)
	s.RequestRender(render.ReasonLayout)

	select {
	case <-s.C():
	default:
		t.Fatal("no signal after requests")
	}
	select {
	case <-s.C():
		t.Fatal("requests were not coalesced into one signal")
	default:
	}
	if got := s.Pending(); got != render.ReasonData|render.ReasonLayout {
		t.Errorf("Pending = %v, want data|layout", got)
	}
	if got := s.Take(); got != render.ReasonData|render.ReasonLayout {
		t.Errorf("Take = %v", got)
	}
	if got := s.Pending(); got != 0 {
		t.Errorf("Pending after Take = %v", got)
	}
}

func TestOutboundDrops(t *testing.T) {
	logs := captureLogs(t)
	ch := make(chan tree.StateMessage, 1)
	o := NewOutbound(ch)
	if err := o.Send(tree.StateMessage{Key: "a"}); err != nil {
		t.Fatalf("first Send = %v", err)
	}
	if err := o.Send(tree.StateMessage{Key: "b"}); !errors.Is(err, ErrOutboundFull) {
		t.Errorf("second Send = %v, want ErrOutboundFull", err)
	}
	if o.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", o.Dropped())
	}
	if got := (<-ch).Key; got != "a" {
		t.Errorf("delivered %q, want a", got)
	}
	if !strings.Contains(logs.String(), "dropped outbound state") {
		t.Errorf("expected a warning, got %q", logs.String())
	}
}

func TestNewRequiresRenderContextForTarget(t *testing.T) {
	g := newGPU(t)
	if _, err := New(newRegistry(), WithTarget(g.target)); !errors.Is(err, ErrNoRenderContext) {
		t.Errorf("New = %v, want ErrNoRenderContext", err)
	}
}

func TestNewRegistersMetricsOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(newRegistry(), WithRegisterer(reg)); err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := New(newRegistry(), WithRegisterer(reg)); err == nil {
		t.Error("second loop on the same registerer should fail")
	}
}

func TestHandleClassifiesErrors(t *testing.T) {
	logs := captureLogs(t)
	metrics := prometheus.NewRegistry()
	l, err := New(newRegistry(), WithRegisterer(metrics))
	if err != nil {
		t.Fatal(err)
	}

	msgs := []tree.Message{
		tree.Update{Path: []string{"root"}, Kind: tree.KindCreate, Type: "group", State: json.RawMessage(`{}`)},
		// Protocol: nothing at root.missing.
		tree.Delete{Path: []string{"root", "missing"}},
		// Schema: y is required.
		tree.Update{Path: []string{"root", "l"}, Kind: tree.KindCreate, Type: line.LineType,
			State: json.RawMessage(`{"x": {"type": "memory"}}`)},
		// Hook: no source registry is published.
		tree.Update{Path: []string{"root", "l"}, Kind: tree.KindCreate, Type: line.LineType,
			State: state(t, line.State{X: source.MemorySpec("x"), Y: source.MemorySpec("y")})},
	}
	for _, m := range msgs {
		_ = l.Handle(m)
	}

	want := map[string]float64{classProtocol: 1, classSchema: 1, classHook: 1, classOther: 0}
	got := make(map[string]float64)
	for class := range want {
		got[class] = counter(t, metrics, "telem_loop_message_errors_total", map[string]string{"class": class})
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("error counters (-want +got):\n%s", diff)
	}
	if n := counter(t, metrics, "telem_loop_messages_total", map[string]string{"kind": "create"}); n != 3 {
		t.Errorf("create messages = %v, want 3", n)
	}
	if n := counter(t, metrics, "telem_loop_messages_total", map[string]string{"kind": "delete"}); n != 1 {
		t.Errorf("delete messages = %v, want 1", n)
	}

	out := logs.String()
	for _, s := range []string{"level=ERROR msg=\"loop: protocol error\"", "level=WARN msg=\"loop: rejected state\"", "level=WARN msg=\"loop: component hook failed\""} {
		if !strings.Contains(out, s) {
			t.Errorf("logs missing %q:\n%s", s, out)
		}
	}
	// The failed hook leaves the node in the tree.
	if l.Tree().Find([]string{"root", "l"}) == nil {
		t.Error("line removed after hook error")
	}
}

func TestHandleStrictPanics(t *testing.T) {
	l, err := New(newRegistry(), WithStrict(true))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, tree.ErrNotFound) {
			t.Errorf("recovered %v, want ErrNotFound", r)
		}
	}()
	_ = l.Handle(tree.Delete{Path: []string{"root"}})
	t.Error("strict loop did not panic")
}

func TestFrameWithoutGPU(t *testing.T) {
	l, err := New(newRegistry())
	if err != nil {
		t.Fatal(err)
	}
	stats, err := l.Frame(render.ReasonLayout)
	if err != nil || stats.DrawCalls != 0 {
		t.Errorf("Frame = %+v, %v", stats, err)
	}
}

func writeChannels(t *testing.T, m *source.Memory, n int) {
	t.Helper()
	xs := make([]float64, n)
	ys := make([]float32, n)
	for i := range xs {
		xs[i] = float64(i)
		ys[i] = float32(i * i)
	}
	opts := []series.Option{
		series.WithAlignment(0),
		series.WithTimeRange(series.TimeRange{Start: 1, End: series.TimeStamp(n + 1)}),
	}
	if err := m.Write("x", series.New(xs, opts...)); err != nil {
		t.Fatal(err)
	}
	if err := m.Write("y", series.New(ys, opts...)); err != nil {
		t.Fatal(err)
	}
}

func TestRun(t *testing.T) {
	g := newGPU(t)
	store := source.NewMemory()
	sources := source.NewRegistry()
	store.Register(sources)
	writeChannels(t, store, 64)

	metrics := prometheus.NewRegistry()
	frames := make(chan FrameStats, 16)
	reports := make(chan tree.StateMessage, 16)
	l, err := New(newRegistry(),
		WithRenderContext(g.rctx),
		WithTarget(g.target),
		WithProvider(source.ContextKey, sources),
		WithRegisterer(metrics),
		WithSender(NewOutbound(reports)),
		WithStrict(true),
		WithOnFrame(func(s FrameStats) {
			select {
			case frames <- s:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan tree.Message, 8)
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, in) }()

	in <- tree.Update{Path: []string{"plot"}, Kind: tree.KindCreate, Type: line.PlotType,
		State: state(t, line.PlotState{Region: line.FullRegion})}
	in <- tree.Update{Path: []string{"plot", "l"}, Kind: tree.KindCreate, Type: line.LineType,
		State: state(t, line.State{X: source.MemorySpec("x"), Y: source.MemorySpec("y"), StrokeWidth: 3})}

	deadline := time.After(5 * time.Second)
	for drawn := false; !drawn; {
		select {
		case s := <-frames:
			drawn = s.DrawCalls == 1
		case <-deadline:
			t.Fatal("no frame with a draw call")
		}
	}
	select {
	case r := <-reports:
		if r.Key != "l" {
			t.Errorf("report key = %q, want l", r.Key)
		}
	case <-deadline:
		t.Fatal("no bounds report")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if n := counter(t, metrics, "telem_loop_draw_calls_total", nil); n < 1 {
		t.Errorf("draw calls counter = %v", n)
	}
	// Run finalizes the tree, releasing every line buffer.
	if st := g.rctx.Stats(); st.Buffers != st.InstanceBuffers {
		t.Errorf("Stats after Run = %+v", st)
	}
}

func TestRunStopsOnClosedInput(t *testing.T) {
	l, err := New(newRegistry())
	if err != nil {
		t.Fatal(err)
	}
	in := make(chan tree.Message, 1)
	in <- tree.Update{Path: []string{"root"}, Kind: tree.KindCreate, Type: "group", State: json.RawMessage(`{}`)}
	close(in)
	if err := l.Run(context.Background(), in); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
	if l.Tree().Root() != nil {
		t.Error("tree not finalized after Run")
	}
}
