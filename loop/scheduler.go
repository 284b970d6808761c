package loop

import (
	"sync"

	"github.com/gogpu/telem/render"
)

// Scheduler coalesces render requests. It is safe for concurrent use.
type Scheduler struct {
	signal chan struct{}

	mu      sync.Mutex
	pending render.Reason
}

// NewScheduler creates a Scheduler with nothing pending.
func NewScheduler() *Scheduler {
	return &Scheduler{signal: make(chan struct{}, 1)}
}

// RequestRender implements render.Requester. It never blocks; requests made
// before the loop drains the signal merge into one.
func (s *Scheduler) RequestRender(r render.Reason) {
	s.mu.Lock()
	s.pending |= r
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// C is signalled when at least one request is pending.
func (s *Scheduler) C() <-chan struct{} { return s.signal }

// Pending returns the accumulated reasons without clearing them.
func (s *Scheduler) Pending() render.Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Take returns and clears the accumulated reasons.
func (s *Scheduler) Take() render.Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.pending
	s.pending = 0
	return r
}
