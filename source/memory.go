package source

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/gogpu/telem"
	"github.com/gogpu/telem/series"
)

// MemoryType is the source type served by Memory.
const MemoryType = "memory"

// DefaultRetention is the number of chunks a Memory channel keeps.
const DefaultRetention = 64

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithRetention sets how many chunks each channel keeps. Older chunks are
// evicted as new ones arrive.
func WithRetention(chunks int) MemoryOption {
	return func(m *Memory) {
		if chunks > 0 {
			m.retention = chunks
		}
	}
}

// Memory is an in-process series store. Producers Write chunks per channel;
// line components read them through sources created by Source or through a
// registry the store has been registered with.
type Memory struct {
	mu        sync.RWMutex
	channels  map[string]*channel
	retention int
}

type channel struct {
	data    series.MultiSeries
	subs    map[uint64]func()
	nextSub uint64
}

// NewMemory creates an empty store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		channels:  make(map[string]*channel),
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) channel(name string) *channel {
	ch, ok := m.channels[name]
	if !ok {
		ch = &channel{subs: make(map[uint64]func())}
		m.channels[name] = ch
	}
	return ch
}

// Write appends a chunk to a channel, evicting chunks beyond the retention
// window, and notifies the channel's subscribers. Chunks must arrive in
// alignment order.
func (m *Memory) Write(name string, s *series.Series) error {
	if s == nil || s.Len() == 0 {
		return nil
	}
	m.mu.Lock()
	ch := m.channel(name)
	next := series.MultiSeries{Series: append([]*series.Series(nil), ch.data.Series...)}
	if err := next.Append(s); err != nil {
		m.mu.Unlock()
		return errors.Wrapf(err, "source: write %s", name)
	}
	if over := len(next.Series) - m.retention; over > 0 {
		next.Series = next.Series[over:]
		telem.Logger().Debug("source: evicted chunks", "channel", name, "chunks", over)
	}
	ch.data = next
	subs := make([]func(), 0, len(ch.subs))
	for _, fn := range ch.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	telem.Logger().Debug("source: wrote chunk", "channel", name,
		"samples", s.Len(), "size", humanize.IBytes(uint64(len(s.Data()))))
	for _, fn := range subs {
		fn()
	}
	return nil
}

// Read returns the current chunks of a channel.
func (m *Memory) Read(name string) series.MultiSeries {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ch, ok := m.channels[name]; ok {
		return ch.data
	}
	return series.MultiSeries{}
}

// Channels returns the names of channels that have been written or
// subscribed to, in sorted order.
func (m *Memory) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.channels))
	for name := range m.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Subscribers returns the number of live subscriptions on a channel.
func (m *Memory) Subscribers(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ch, ok := m.channels[name]; ok {
		return len(ch.subs)
	}
	return 0
}

func (m *Memory) subscribe(name string, fn func()) func() {
	m.mu.Lock()
	ch := m.channel(name)
	id := ch.nextSub
	ch.nextSub++
	ch.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(ch.subs, id)
			m.mu.Unlock()
		})
	}
}

// Source returns a Source reading one channel.
func (m *Memory) Source(name string) Source {
	return &memorySource{store: m, channel: name}
}

type memoryProps struct {
	Channel string `json:"channel"`
}

// Register makes the store available under MemoryType with props
// {"channel": "<name>"}.
func (m *Memory) Register(r *Registry) {
	r.Register(MemoryType, func(raw json.RawMessage) (Source, error) {
		var p memoryProps
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errors.Wrap(err, "source: decode memory props")
		}
		if p.Channel == "" {
			return nil, errors.New("source: memory source needs a channel")
		}
		return m.Source(p.Channel), nil
	})
}

// MemorySpec returns the Spec of a memory source for channel.
func MemorySpec(channel string) Spec {
	raw, _ := json.Marshal(memoryProps{Channel: channel})
	return Spec{Type: MemoryType, Props: raw}
}

type memorySource struct {
	store   *Memory
	channel string

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

func (s *memorySource) OnChange(fn func()) func() {
	unsub := s.store.subscribe(s.channel, fn)
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()
	return unsub
}

func (s *memorySource) Value() (series.Bounds, series.MultiSeries, error) {
	ms := s.store.Read(s.channel)
	if ms.Empty() {
		return series.EmptyBounds, ms, nil
	}
	return ms.Bounds(), ms, nil
}

func (s *memorySource) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Newf("source: memory source %q cleaned up twice", s.channel)
	}
	s.closed = true
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
	return nil
}
