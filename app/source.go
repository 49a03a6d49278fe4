// Package app bridges external code and the graph. Source injects buffers
// provided by the producer, Sink hands rendered buffers over to the
// consumer.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"pipelined.dev/graph"
	"pipelined.dev/graph/bus"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/metric"
	"pipelined.dev/graph/state"
)

// DefaultMaxBuffers is the default high-water mark of the source queue.
const DefaultMaxBuffers = 200

// ErrSaturated is posted as a warning when non-blocking source drops
// buffers.
var ErrSaturated = errors.New("app source saturated")

// SourceHandler is notified about the demand of the source. Methods are
// called from the streaming goroutine and must not block.
type SourceHandler interface {
	// NeedData is called when the queue level drops to the low-water mark.
	// Size is the number of buffers the queue can take before it's full.
	NeedData(s *Source, size int)
	// EnoughData is called when the queue level reaches the high-water
	// mark.
	EnoughData(s *Source)
}

// SeekHandler is implemented by handlers of seekable streams.
type SeekHandler interface {
	// SeekData is called when graph seeks. Producer should push buffers
	// starting from the position after it returns true.
	SeekData(s *Source, position time.Duration) bool
}

// SourceOption provides a way to set functional parameters to the source.
type SourceOption func(*Source)

// WithMaxBuffers sets the high-water mark of the queue.
func WithMaxBuffers(n int) SourceOption {
	return func(s *Source) {
		if n > 0 {
			s.maxBuffers = n
		}
	}
}

// WithMinPercent sets the low-water mark as a percentage of max buffers.
// NeedData is fired when the level drops to it. Default is 0: queue is
// empty.
func WithMinPercent(p int) SourceOption {
	return func(s *Source) {
		if p >= 0 && p < 100 {
			s.minPercent = p
		}
	}
}

// WithBlock makes Push block when the queue is saturated.
func WithBlock() SourceOption {
	return func(s *Source) {
		s.block = true
	}
}

// WithLive makes source live: it doesn't preroll and pushes buffers only
// in PLAYING state.
func WithLive() SourceOption {
	return func(s *Source) {
		s.live = true
	}
}

// WithDuration sets the stream duration.
func WithDuration(d time.Duration) SourceOption {
	return func(s *Source) {
		s.duration = d
	}
}

// WithHandler sets the demand handler. If handler implements SeekHandler,
// the source is seekable.
func WithHandler(h SourceHandler) SourceOption {
	return func(s *Source) {
		s.handler = h
	}
}

// Source is the injection element. Producer pushes buffers into the
// source queue, the source task pushes them downstream.
//
// The queue takes up to twice the max buffers. EnoughData is fired when
// the level reaches max buffers, but Push keeps accepting buffers until the
// queue is saturated. Saturated source either blocks Push, if created
// with WithBlock, or drops pushed buffers, counts them and posts a single
// WARNING message until the next NeedData.
type Source struct {
	caps       caps.Caps
	maxBuffers int
	minPercent int
	block      bool
	live       bool
	handler    SourceHandler

	m         sync.Mutex
	node      *graph.Node
	queue     []graph.Buffer
	changed   chan struct{}
	active    bool
	eos       bool
	flow      graph.FlowResult
	hungry    bool
	full      bool
	saturated bool
	dropped   int
	duration  time.Duration
}

// NewSource returns a new source with fixed caps.
func NewSource(c caps.Caps, options ...SourceOption) *Source {
	s := &Source{
		caps:       c,
		maxBuffers: DefaultMaxBuffers,
		changed:    make(chan struct{}),
		duration:   graph.ClockTimeNone,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Class implements graph.Element.
func (s *Source) Class() graph.Class {
	return graph.Class{
		Name:     "appsrc",
		Behavior: graph.Injection,
		Templates: []graph.PadTemplate{
			{Name: "src", Direction: graph.PadSrc, Presence: graph.Always, Caps: s.caps},
		},
	}
}

// ChangeState implements graph.Element.
func (s *Source) ChangeState(n *graph.Node, c state.Change) state.Return {
	switch c {
	case state.NullToReady:
		s.m.Lock()
		s.node = n
		s.m.Unlock()
	case state.ReadyToPaused:
		if s.live {
			return state.NoPreroll
		}
	case state.PausedToPlaying:
		if s.live {
			if err := n.StartTask(s.task(n)); err != nil {
				return state.Failure
			}
		}
	case state.PlayingToPaused:
		if s.live {
			n.StopTask()
		}
	}
	return state.Success
}

// Activate implements graph.Activator.
func (s *Source) Activate(n *graph.Node, active bool) error {
	s.m.Lock()
	s.active = active
	s.queue = nil
	s.eos, s.hungry, s.full, s.saturated = false, false, false, false
	s.flow = graph.FlowOK
	s.broadcast()
	s.m.Unlock()
	s.level(0)
	if !active || s.live {
		return nil
	}
	return n.StartTask(s.task(n))
}

// Push adds the buffer to the queue. Non-ok result means producer must
// stop pushing: source is not active, reached EOS or downstream failed.
func (s *Source) Push(b graph.Buffer) graph.FlowResult {
	s.m.Lock()
	for {
		if r := s.result(); r != graph.FlowOK {
			s.m.Unlock()
			return r
		}
		if len(s.queue) < 2*s.maxBuffers {
			break
		}
		if !s.block {
			s.dropped++
			warn := !s.saturated
			s.saturated = true
			n := s.node
			s.m.Unlock()
			if warn && n != nil {
				n.PostWarning(ErrSaturated, "buffers are dropped until need-data")
			}
			return graph.FlowOK
		}
		changed := s.changed
		s.m.Unlock()
		<-changed
		s.m.Lock()
	}
	s.queue = append(s.queue, b)
	level := len(s.queue)
	enough := level >= s.maxBuffers && !s.full
	if enough {
		s.full = true
	}
	if level > s.low() {
		s.hungry = false
	}
	s.broadcast()
	s.m.Unlock()
	s.level(level)
	if enough && s.handler != nil {
		s.handler.EnoughData(s)
	}
	return graph.FlowOK
}

// EndOfStream signals that producer has no more buffers. Queued buffers
// are pushed downstream before EOS.
func (s *Source) EndOfStream() graph.FlowResult {
	s.m.Lock()
	defer s.m.Unlock()
	if r := s.result(); r != graph.FlowOK {
		return r
	}
	s.eos = true
	s.broadcast()
	return graph.FlowOK
}

// SetDuration updates the stream duration and posts DURATION_CHANGED.
func (s *Source) SetDuration(d time.Duration) {
	s.m.Lock()
	s.duration = d
	n := s.node
	s.m.Unlock()
	if n != nil {
		n.Post(bus.NewDurationChanged(n.Name(), d))
	}
}

// Duration implements graph.DurationQuerier.
func (s *Source) Duration(*graph.Node) (time.Duration, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	return s.duration, s.duration != graph.ClockTimeNone
}

// Seek implements graph.Seeker.
func (s *Source) Seek(_ *graph.Node, e graph.SeekEvent) bool {
	if h, ok := s.handler.(SeekHandler); ok {
		return h.SeekData(s, e.Position)
	}
	return false
}

// Seekable implements graph.Seeker.
func (s *Source) Seekable(n *graph.Node) (time.Duration, time.Duration, bool) {
	if _, ok := s.handler.(SeekHandler); !ok {
		return 0, 0, false
	}
	d, ok := s.Duration(n)
	return 0, d, ok
}

// Level returns the number of queued buffers.
func (s *Source) Level() int {
	s.m.Lock()
	defer s.m.Unlock()
	return len(s.queue)
}

// Dropped returns the number of buffers dropped by saturated source.
func (s *Source) Dropped() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.dropped
}

func (s *Source) task(n *graph.Node) graph.TaskFunc {
	src := n.Pad("src")
	return func(ctx context.Context) graph.FlowResult {
		s.m.Lock()
		for len(s.queue) == 0 {
			if s.eos {
				s.m.Unlock()
				return graph.FlowEOS
			}
			need, size := s.need()
			changed := s.changed
			s.m.Unlock()
			if need && s.handler != nil {
				s.handler.NeedData(s, size)
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return graph.FlowFlushing
			}
			s.m.Lock()
		}
		b := s.queue[0]
		s.queue = s.queue[1:]
		level := len(s.queue)
		if level < s.maxBuffers {
			s.full = false
		}
		need, size := s.need()
		s.broadcast()
		s.m.Unlock()
		s.level(level)
		if need && s.handler != nil {
			s.handler.NeedData(s, size)
		}

		r := src.Push(b)
		if r != graph.FlowOK {
			s.m.Lock()
			s.flow = r
			s.broadcast()
			s.m.Unlock()
		}
		return r
	}
}

// need must be called with lock held.
func (s *Source) need() (bool, int) {
	if s.hungry || len(s.queue) > s.low() {
		return false, 0
	}
	s.hungry, s.saturated = true, false
	return true, s.maxBuffers - len(s.queue)
}

// result must be called with lock held.
func (s *Source) result() graph.FlowResult {
	switch {
	case !s.active:
		return graph.FlowFlushing
	case s.eos:
		return graph.FlowEOS
	}
	return s.flow
}

func (s *Source) low() int {
	return s.maxBuffers * s.minPercent / 100
}

// broadcast wakes up all waiters, must be called with lock held.
func (s *Source) broadcast() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Source) level(level int) {
	s.m.Lock()
	n := s.node
	s.m.Unlock()
	if n != nil {
		metric.QueueLevel(n.Name(), level)
	}
}
