package app

import (
	"context"
	"sync"
	"time"

	"pipelined.dev/graph"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/metric"
	"pipelined.dev/graph/state"
)

// SinkHandler is notified when a new buffer is available. It's called from
// the streaming goroutine and must not block.
type SinkHandler interface {
	NewSample(s *Sink)
}

// SinkOption provides a way to set functional parameters to the sink.
type SinkOption func(*Sink)

// WithSinkMaxBuffers limits the sink queue. Zero means unlimited.
func WithSinkMaxBuffers(n int) SinkOption {
	return func(s *Sink) {
		if n >= 0 {
			s.maxBuffers = n
		}
	}
}

// WithDrop makes full sink drop the oldest buffer instead of blocking
// streaming.
func WithDrop() SinkOption {
	return func(s *Sink) {
		s.drop = true
	}
}

// WithSinkHandler sets the sample handler.
func WithSinkHandler(h SinkHandler) SinkOption {
	return func(s *Sink) {
		s.handler = h
	}
}

// Sink is the extraction element. Rendered buffers are queued until the
// consumer pulls them.
type Sink struct {
	caps       caps.Caps
	maxBuffers int
	drop       bool
	handler    SinkHandler

	m       sync.Mutex
	name    string
	queue   []graph.Buffer
	changed chan struct{}
	active  bool
	eos     bool
	dropped int
}

// NewSink returns a new sink accepting provided caps.
func NewSink(c caps.Caps, options ...SinkOption) *Sink {
	s := &Sink{
		caps:       c,
		maxBuffers: DefaultMaxBuffers,
		changed:    make(chan struct{}),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Class implements graph.Element.
func (s *Sink) Class() graph.Class {
	return graph.Class{
		Name:     "appsink",
		Behavior: graph.Extraction,
		Templates: []graph.PadTemplate{
			{Name: "sink", Direction: graph.PadSink, Presence: graph.Always, Caps: s.caps},
		},
	}
}

// ChangeState implements graph.Element.
func (s *Sink) ChangeState(n *graph.Node, c state.Change) state.Return {
	if c == state.NullToReady {
		s.m.Lock()
		s.name = n.Name()
		s.m.Unlock()
	}
	return state.Success
}

// Activate implements graph.Activator. Deactivation discards queued
// buffers and wakes up consumers.
func (s *Sink) Activate(_ *graph.Node, active bool) error {
	s.m.Lock()
	s.active = active
	s.queue = nil
	s.eos = false
	s.broadcast()
	s.m.Unlock()
	s.level(0)
	return nil
}

// Chain implements graph.Chainer.
func (s *Sink) Chain(ctx context.Context, _ *graph.Pad, b graph.Buffer) graph.FlowResult {
	s.m.Lock()
	for s.maxBuffers > 0 && len(s.queue) >= s.maxBuffers {
		if s.drop {
			s.queue = s.queue[1:]
			s.dropped++
			break
		}
		changed := s.changed
		s.m.Unlock()
		select {
		case <-changed:
		case <-ctx.Done():
			return graph.FlowFlushing
		}
		s.m.Lock()
		if !s.active {
			s.m.Unlock()
			return graph.FlowFlushing
		}
	}
	s.queue = append(s.queue, b)
	level := len(s.queue)
	s.broadcast()
	s.m.Unlock()
	s.level(level)
	if s.handler != nil {
		s.handler.NewSample(s)
	}
	return graph.FlowOK
}

// HandleEvent implements graph.EventHandler. EOS wakes up consumers
// waiting on the empty queue.
func (s *Sink) HandleEvent(_ context.Context, _ *graph.Pad, e graph.Event) bool {
	if e.Type == graph.EventEOS {
		s.m.Lock()
		s.eos = true
		s.broadcast()
		s.m.Unlock()
	}
	return false
}

// Pull blocks until a buffer is available. It returns false when sink
// reached EOS and all buffers were pulled or when sink is not active.
func (s *Sink) Pull() (graph.Buffer, bool) {
	return s.TryPull(-1)
}

// TryPull waits for a buffer up to timeout. Negative timeout means wait
// forever, zero timeout doesn't block.
func (s *Sink) TryPull(timeout time.Duration) (graph.Buffer, bool) {
	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	s.m.Lock()
	for len(s.queue) == 0 {
		if s.eos || !s.active || timeout == 0 {
			s.m.Unlock()
			return graph.Buffer{}, false
		}
		changed := s.changed
		s.m.Unlock()
		select {
		case <-changed:
		case <-expired:
			return graph.Buffer{}, false
		}
		s.m.Lock()
	}
	b := s.queue[0]
	s.queue = s.queue[1:]
	level := len(s.queue)
	s.broadcast()
	s.m.Unlock()
	s.level(level)
	return b, true
}

// IsEOS reports if sink reached EOS and all buffers were pulled.
func (s *Sink) IsEOS() bool {
	s.m.Lock()
	defer s.m.Unlock()
	return s.eos && len(s.queue) == 0
}

// Level returns the number of queued buffers.
func (s *Sink) Level() int {
	s.m.Lock()
	defer s.m.Unlock()
	return len(s.queue)
}

// Dropped returns the number of buffers dropped by full sink.
func (s *Sink) Dropped() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.dropped
}

// broadcast wakes up all waiters, must be called with lock held.
func (s *Sink) broadcast() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Sink) level(level int) {
	s.m.Lock()
	name := s.name
	s.m.Unlock()
	if name != "" {
		metric.QueueLevel(name, level)
	}
}
