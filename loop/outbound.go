package loop

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/telem"
	"github.com/gogpu/telem/tree"
)

// ErrOutboundFull is returned by Outbound.Send when the control side is not
// keeping up.
var ErrOutboundFull = errors.New("loop: outbound channel full")

// Outbound is a tree.Sender backed by a channel. Sends never block the
// render goroutine: a message that does not fit is dropped.
type Outbound struct {
	ch      chan<- tree.StateMessage
	dropped atomic.Uint64
}

// NewOutbound wraps ch.
func NewOutbound(ch chan<- tree.StateMessage) *Outbound {
	return &Outbound{ch: ch}
}

// Send implements tree.Sender.
func (o *Outbound) Send(m tree.StateMessage) error {
	select {
	case o.ch <- m:
		return nil
	default:
		n := o.dropped.Add(1)
		telem.Logger().Warn("loop: dropped outbound state", "key", m.Key, "dropped", n)
		return ErrOutboundFull
	}
}

// Dropped returns the number of messages dropped so far.
func (o *Outbound) Dropped() uint64 { return o.dropped.Load() }
