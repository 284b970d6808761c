package loop

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/telem"
	"github.com/gogpu/telem/render"
	"github.com/gogpu/telem/tree"
)

// ErrNoRenderContext is returned by New when a target is configured without
// a render context.
var ErrNoRenderContext = errors.New("loop: target requires a render context")

// FrameStats describes one rendered frame.
type FrameStats struct {
	Reason    render.Reason
	DrawCalls int
	Duration  time.Duration
}

type provider struct {
	key   string
	value any
}

type config struct {
	rctx       *render.Context
	target     render.Target
	providers  []provider
	strict     bool
	registerer prometheus.Registerer
	sender     tree.Sender
	onFrame    func(FrameStats)
}

// Option configures a Loop.
type Option func(*config)

// WithRenderContext sets the render context published to the tree. Without
// one the loop only reconciles.
func WithRenderContext(c *render.Context) Option {
	return func(cfg *config) { cfg.rctx = c }
}

// WithTarget sets the surface frames are drawn into. Without one no frames
// are drawn.
func WithTarget(t render.Target) Option {
	return func(cfg *config) { cfg.target = t }
}

// WithProvider publishes value under key on the base context, visible to
// the whole tree.
func WithProvider(key string, value any) Option {
	return func(cfg *config) { cfg.providers = append(cfg.providers, provider{key, value}) }
}

// WithStrict makes protocol errors panic instead of being logged. Use it in
// tests and debug builds where a diverged tree is a bug.
func WithStrict(strict bool) Option {
	return func(cfg *config) { cfg.strict = strict }
}

// WithRegisterer registers the loop's metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(cfg *config) { cfg.registerer = r }
}

// WithSender sets where components report state to. See NewOutbound.
func WithSender(s tree.Sender) Option {
	return func(cfg *config) { cfg.sender = s }
}

// WithOnFrame calls fn on the loop goroutine after every frame.
func WithOnFrame(fn func(FrameStats)) Option {
	return func(cfg *config) { cfg.onFrame = fn }
}

// Loop is the render-side actor. Apart from Scheduler, its methods must only
// be called from one goroutine, normally the one running Run.
type Loop struct {
	cfg     config
	tree    *tree.Tree
	sched   *Scheduler
	metrics *loopMetrics
}

// New creates a loop over a fresh tree built from reg.
func New(reg *tree.Registry, opts ...Option) (*Loop, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.target != nil && cfg.rctx == nil {
		return nil, ErrNoRenderContext
	}

	l := &Loop{
		cfg:     cfg,
		tree:    tree.New(reg, cfg.sender),
		sched:   NewScheduler(),
		metrics: newLoopMetrics(),
	}
	if err := l.metrics.register(cfg.registerer); err != nil {
		return nil, err
	}

	base := l.tree.Context()
	base.Set(render.RequesterKey, l.sched)
	if cfg.rctx != nil {
		base.Set(render.ContextKey, cfg.rctx)
	}
	for _, p := range cfg.providers {
		base.Set(p.key, p.value)
	}
	return l, nil
}

// Scheduler returns the loop's render request scheduler.
func (l *Loop) Scheduler() *Scheduler { return l.sched }

// Tree returns the render-side tree. It must only be inspected from the
// loop goroutine, or after Run has returned.
func (l *Loop) Tree() *tree.Tree { return l.tree }

// Run applies messages from in and renders requested frames until ctx is
// done or in is closed. On return every node has been finalized.
//
// Run returns nil when in is closed and ctx.Err() when ctx is done.
func (l *Loop) Run(ctx context.Context, in <-chan tree.Message) error {
	defer l.tree.Close()
	telem.Logger().Info("loop: started", "gpu", l.cfg.rctx != nil, "strict", l.cfg.strict)
	defer telem.Logger().Info("loop: stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-in:
			if !ok {
				return nil
			}
			_ = l.Handle(m)
		case <-l.sched.C():
			if r := l.sched.Take(); r != 0 {
				l.Frame(r)
			}
		}
	}
}

// Handle applies one message and records it. Protocol errors panic in
// strict mode.
func (l *Loop) Handle(m tree.Message) error {
	kind := messageKind(m)
	l.metrics.messages.WithLabelValues(kind).Inc()

	err := l.tree.Handle(m)
	if err == nil {
		return nil
	}
	path := tree.JoinPath(m.Target())
	switch {
	case tree.IsProtocolError(err):
		l.metrics.errors.WithLabelValues(classProtocol).Inc()
		if l.cfg.strict {
			panic(err)
		}
		telem.Logger().Error("loop: protocol error", "kind", kind, "path", path, "error", err)
	case errors.Is(err, tree.ErrInvalidState):
		l.metrics.errors.WithLabelValues(classSchema).Inc()
		telem.Logger().Warn("loop: rejected state", "kind", kind, "path", path, "error", err)
	case errors.Is(err, tree.ErrHook):
		l.metrics.errors.WithLabelValues(classHook).Inc()
		telem.Logger().Warn("loop: component hook failed", "kind", kind, "path", path, "error", err)
	default:
		l.metrics.errors.WithLabelValues(classOther).Inc()
		telem.Logger().Error("loop: message failed", "kind", kind, "path", path, "error", err)
	}
	return err
}

func messageKind(m tree.Message) string {
	switch msg := m.(type) {
	case tree.Update:
		return msg.Kind.String()
	case *tree.Update:
		return msg.Kind.String()
	case tree.Delete, *tree.Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Frame draws every render.Renderer in the tree, in pre-order, into one
// frame. A component that fails to render is logged and skipped. Frame is a
// no-op without a render context and target.
func (l *Loop) Frame(reason render.Reason) (FrameStats, error) {
	stats := FrameStats{Reason: reason}
	if l.cfg.rctx == nil || l.cfg.target == nil {
		return stats, nil
	}
	start := time.Now()
	f, err := l.cfg.rctx.BeginFrame(l.cfg.target)
	if err != nil {
		telem.Logger().Error("loop: begin frame", "error", err)
		return stats, err
	}
	tree.Walk(l.tree.Root(), func(n *tree.Node) {
		r, ok := n.Component().(render.Renderer)
		if !ok {
			return
		}
		if err := r.Render(f); err != nil {
			telem.Logger().Warn("loop: render failed", "type", n.Type(), "key", n.Key(), "error", err)
		}
	})
	stats.DrawCalls = len(f.DrawCalls())
	if err := f.End(); err != nil {
		telem.Logger().Error("loop: end frame", "error", err)
		return stats, err
	}
	stats.Duration = time.Since(start)

	l.metrics.frames.Inc()
	l.metrics.drawCalls.Add(float64(stats.DrawCalls))
	l.metrics.frameTime.Observe(stats.Duration.Seconds())
	telem.Logger().Debug("loop: frame", "reason", reason, "draw_calls", stats.DrawCalls, "duration", stats.Duration)
	if l.cfg.onFrame != nil {
		l.cfg.onFrame(stats)
	}
	return stats, nil
}
