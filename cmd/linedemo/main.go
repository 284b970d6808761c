// Command linedemo streams synthetic multi-rate telemetry through a plot of
// lines on the noop GPU backend and logs what the render loop draws.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/telem"
	"github.com/gogpu/telem/control"
	"github.com/gogpu/telem/line"
	"github.com/gogpu/telem/loop"
	"github.com/gogpu/telem/render"
	"github.com/gogpu/telem/series"
	"github.com/gogpu/telem/source"
	"github.com/gogpu/telem/tree"
	"github.com/gogpu/telem/wire"
)

func main() {
	var (
		lines    = flag.Int("lines", 4, "number of lines")
		chunks   = flag.Int("chunks", 20, "chunks written per channel")
		samples  = flag.Int("samples", 1000, "samples per chunk")
		interval = flag.Duration("interval", 10*time.Millisecond, "delay between chunks")
		width    = flag.Int("width", 800, "surface width")
		height   = flag.Int("height", 600, "surface height")
		stroke   = flag.Int("stroke", 2, "stroke width in pixels")
		exposure = flag.Float64("exposure", 0.0005, "level-of-detail exposure")
		useWire  = flag.Bool("wire", false, "send tree messages through the wire codec")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	telem.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(demo{
		lines: *lines, chunks: *chunks, samples: *samples, interval: *interval,
		width: uint32(*width), height: uint32(*height), stroke: *stroke,
		exposure: *exposure, wire: *useWire,
	}); err != nil {
		log.Fatalf("linedemo: %v", err)
	}
}

type demo struct {
	lines, chunks, samples int
	interval               time.Duration
	width, height          uint32
	stroke                 int
	exposure               float64
	wire                   bool
}

func run(d demo) error {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return err
	}
	defer instance.Destroy()
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return errors.New("no noop adapter")
	}
	dev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		return err
	}
	defer dev.Device.Destroy()

	rctx, err := render.NewContext(dev.Device, dev.Queue)
	if err != nil {
		return err
	}
	defer rctx.Destroy()
	target, err := render.NewTextureTarget(rctx, d.width, d.height)
	if err != nil {
		return err
	}
	defer target.Destroy()

	store := source.NewMemory()
	sources := source.NewRegistry()
	store.Register(sources)
	reg := tree.NewRegistry()
	line.Register(reg)

	var frames, drawCalls atomic.Int64
	msgs := make(chan tree.Message, 64)
	reports := make(chan tree.StateMessage, 64)
	l, err := loop.New(reg,
		loop.WithRenderContext(rctx),
		loop.WithTarget(target),
		loop.WithProvider(source.ContextKey, sources),
		loop.WithSender(loop.NewOutbound(reports)),
		loop.WithRegisterer(prometheus.NewRegistry()),
		loop.WithOnFrame(func(s loop.FrameStats) {
			frames.Add(1)
			drawCalls.Add(int64(s.DrawCalls))
		}),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := l.Run(ctx, msgs); err != nil && ctx.Err() == nil {
			telem.Logger().Error("linedemo: loop stopped", "error", err)
		}
	}()

	out := msgs
	if d.wire {
		ctrl := make(chan tree.Message, 64)
		if err := bridge(ctx, &wg, ctrl, msgs); err != nil {
			return err
		}
		out = ctrl
	}

	m := control.NewMirror(out)
	go func() { _ = m.Listen(ctx, reports) }()

	plot, err := m.Root(ctx, line.PlotType, line.PlotState{Region: line.FullRegion, Exposure: d.exposure})
	if err != nil {
		return err
	}
	for i := 0; i < d.lines; i++ {
		h, err := plot.Create(ctx, line.LineType, line.State{
			Key:         fmt.Sprintf("line%d", i),
			X:           source.MemorySpec("time"),
			Y:           source.MemorySpec(fmt.Sprintf("line%d", i)),
			Color:       [4]float32{float32(i%3) / 2, float32((i+1)%3) / 2, 1, 1},
			StrokeWidth: d.stroke,
		})
		if err != nil {
			return err
		}
		key := fmt.Sprintf("line%d", i)
		h.OnState(func(raw json.RawMessage) {
			telem.Logger().Debug("linedemo: bounds", "line", key, "state", string(raw))
		})
	}

	start := time.Now()
	if err := produce(store, d); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()

	telem.Logger().Info("linedemo: done",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"frames", frames.Load(),
		"draw_calls", drawCalls.Load(),
		"gpu_buffers", rctx.Stats().Buffers)
	return nil
}

// bridge carries messages from ctrl to msgs through an encoder, a pipe and
// a decoder.
func bridge(ctx context.Context, wg *sync.WaitGroup, ctrl <-chan tree.Message, msgs chan<- tree.Message) error {
	pr, pw := io.Pipe()
	enc, err := wire.NewEncoder(pw)
	if err != nil {
		return err
	}
	dec, err := wire.NewDecoder(pr)
	if err != nil {
		return err
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer enc.Close()
		for {
			select {
			case <-ctx.Done():
				pw.Close()
				return
			case m := <-ctrl:
				if err := enc.Encode(m); err != nil {
					pw.CloseWithError(err)
					return
				}
			}
		}
	}()
	go func() {
		defer wg.Done()
		defer dec.Close()
		if err := wire.Pump(ctx, dec, msgs); err != nil && ctx.Err() == nil {
			telem.Logger().Error("linedemo: wire pump", "error", err)
		}
	}()
	return nil
}

// produce writes a shared time channel and one value channel per line. After
// the first, value chunks are offset by half a chunk from the time chunks, so
// each of them straddles two time chunks.
func produce(store *source.Memory, d demo) error {
	const period = time.Millisecond
	t0 := series.Now()
	n := d.samples
	chunk := func(a uint64, count int, fill func(i int) float32) *series.Series {
		vs := make([]float32, count)
		for i := range vs {
			vs[i] = fill(int(a) + i)
		}
		return series.New(vs, series.WithAlignment(a), series.WithTimeRange(series.TimeRange{
			Start: t0.Add(time.Duration(a) * period),
			End:   t0.Add(time.Duration(int(a)+count) * period),
		}))
	}

	for k := 0; k < d.chunks; k++ {
		a := uint64(k * n)
		ts := make([]series.TimeStamp, n)
		for i := range ts {
			ts[i] = t0.Add(time.Duration(int(a)+i) * period)
		}
		err := store.Write("time", series.New(ts, series.WithAlignment(a), series.WithTimeRange(series.TimeRange{
			Start: ts[0], End: ts[n-1].Add(period),
		})))
		if err != nil {
			return err
		}

		va, count := a-uint64(n/2), n
		if k == 0 {
			va, count = 0, n/2
		}
		for i := 0; i < d.lines; i++ {
			phase := float64(i) * math.Pi / float64(max(d.lines, 1))
			s := chunk(va, count, func(j int) float32 {
				return float32(math.Sin(float64(j)/200 + phase))
			})
			if err := store.Write(fmt.Sprintf("line%d", i), s); err != nil {
				return err
			}
		}
		time.Sleep(d.interval)
	}
	return nil
}
