package loop

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Error classes used as the "class" label of the message error counter.
const (
	classProtocol = "protocol"
	classSchema   = "schema"
	classHook     = "hook"
	classOther    = "other"
)

// loopMetrics holds the Prometheus collectors of one Loop.
type loopMetrics struct {
	messages  *prometheus.CounterVec // by kind: update, create, context, delete
	errors    *prometheus.CounterVec // by class
	frames    prometheus.Counter
	drawCalls prometheus.Counter
	frameTime prometheus.Histogram
}

func newLoopMetrics() *loopMetrics {
	return &loopMetrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telem",
			Subsystem: "loop",
			Name:      "messages_total",
			Help:      "Total number of tree messages applied by the render loop",
		}, []string{"kind"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telem",
			Subsystem: "loop",
			Name:      "message_errors_total",
			Help:      "Total number of tree messages that failed, by error class",
		}, []string{"class"}),

		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telem",
			Subsystem: "loop",
			Name:      "frames_total",
			Help:      "Total number of frames rendered",
		}),

		drawCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telem",
			Subsystem: "loop",
			Name:      "draw_calls_total",
			Help:      "Total number of draw calls recorded across all frames",
		}),

		frameTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "telem",
			Subsystem: "loop",
			Name:      "frame_duration_seconds",
			Help:      "Time from frame start to GPU completion",
			Buckets:   []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1},
		}),
	}
}

// register adds every collector to r. A nil r disables export; the
// collectors still count.
func (m *loopMetrics) register(r prometheus.Registerer) error {
	if r == nil {
		return nil
	}
	for _, c := range []prometheus.Collector{m.messages, m.errors, m.frames, m.drawCalls, m.frameTime} {
		if err := r.Register(c); err != nil {
			return errors.Wrap(err, "loop: register metrics")
		}
	}
	return nil
}
