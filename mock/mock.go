// Package mock provides mocks for graph elements and allows to execute integration tests.
package mock

import (
	"context"
	"sync"
	"time"

	"pipelined.dev/graph"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/state"
)

const (
	defaultBufferSize     = 64
	defaultBufferDuration = 10 * time.Millisecond
)

// Source mocks a source element. It pushes Limit buffers of Size bytes
// filled with Value and then sends EOS.
type Source struct {
	counter
	Hooks
	Caps     caps.Caps
	Interval time.Duration
	Limit    int
	Size     int
	Value    byte
	// BufferDuration is used to timestamp buffers.
	BufferDuration time.Duration
	// ErrorOnCall makes source post the error and stop streaming.
	ErrorOnCall error
	// Live source produces buffers only in PLAYING state.
	Live bool
	// HoldEOS makes source wait for deactivation instead of sending EOS.
	HoldEOS bool

	m        sync.Mutex
	position int
}

// Class implements graph.Element.
func (m *Source) Class() graph.Class {
	return graph.Class{
		Name:     "mocksrc",
		Behavior: graph.Source,
		Templates: []graph.PadTemplate{
			{Name: "src", Direction: graph.PadSrc, Presence: graph.Always, Caps: orAny(m.Caps)},
		},
	}
}

// ChangeState implements graph.Element.
func (m *Source) ChangeState(n *graph.Node, c state.Change) state.Return {
	if ret := m.Hooks.changeState(n, c); ret == state.Failure {
		return ret
	}
	if !m.Live {
		return state.Success
	}
	switch c {
	case state.ReadyToPaused:
		return state.NoPreroll
	case state.PausedToPlaying:
		if err := n.StartTask(m.push(n)); err != nil {
			return state.Failure
		}
	case state.PlayingToPaused:
		n.StopTask()
	}
	return state.Success
}

// Activate implements graph.Activator.
func (m *Source) Activate(n *graph.Node, active bool) error {
	if !active || m.Live {
		return nil
	}
	return n.StartTask(m.push(n))
}

func (m *Source) push(n *graph.Node) graph.TaskFunc {
	src := n.Pad("src")
	return func(ctx context.Context) graph.FlowResult {
		if m.ErrorOnCall != nil {
			n.PostError(m.ErrorOnCall, "mock source failed")
			return graph.FlowError
		}
		m.m.Lock()
		idx := m.position
		m.m.Unlock()
		if m.Limit > 0 && idx >= m.Limit {
			if m.HoldEOS {
				<-ctx.Done()
				return graph.FlowFlushing
			}
			return graph.FlowEOS
		}
		if m.Interval > 0 {
			select {
			case <-time.After(m.Interval):
			case <-ctx.Done():
				return graph.FlowFlushing
			}
		}
		b := m.buffer(idx)
		r := src.Push(b)
		if r == graph.FlowOK {
			m.m.Lock()
			m.position++
			m.m.Unlock()
			m.advance(len(b.Data))
		}
		return r
	}
}

func (m *Source) buffer(idx int) graph.Buffer {
	size := m.Size
	if size == 0 {
		size = defaultBufferSize
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = m.Value
	}
	b := graph.NewBuffer(data)
	d := m.bufferDuration()
	b.PTS, b.Duration, b.Offset = time.Duration(idx)*d, d, int64(idx)
	return b
}

func (m *Source) bufferDuration() time.Duration {
	if m.BufferDuration > 0 {
		return m.BufferDuration
	}
	return defaultBufferDuration
}

// Seek implements graph.Seeker. Position is rounded down to the buffer.
func (m *Source) Seek(n *graph.Node, s graph.SeekEvent) bool {
	if m.Limit == 0 {
		return false
	}
	idx := int(s.Position / m.bufferDuration())
	if idx > m.Limit {
		idx = m.Limit
	}
	m.m.Lock()
	m.position = idx
	m.m.Unlock()
	return true
}

// Seekable implements graph.Seeker.
func (m *Source) Seekable(n *graph.Node) (time.Duration, time.Duration, bool) {
	d, ok := m.Duration(n)
	return 0, d, ok
}

// Duration implements graph.DurationQuerier.
func (m *Source) Duration(*graph.Node) (time.Duration, bool) {
	if m.Limit == 0 {
		return 0, false
	}
	return time.Duration(m.Limit) * m.bufferDuration(), true
}

// Sink mocks a sink element. Received buffers are kept unless Discard is
// set.
type Sink struct {
	counter
	Hooks
	Caps        caps.Caps
	Discard     bool
	ErrorOnCall error

	m       sync.Mutex
	buffers []graph.Buffer
	events  []graph.Event
}

// Class implements graph.Element.
func (m *Sink) Class() graph.Class {
	return graph.Class{
		Name:     "mocksink",
		Behavior: graph.Sink,
		Templates: []graph.PadTemplate{
			{Name: "sink", Direction: graph.PadSink, Presence: graph.Always, Caps: orAny(m.Caps)},
		},
	}
}

// ChangeState implements graph.Element.
func (m *Sink) ChangeState(n *graph.Node, c state.Change) state.Return {
	return m.Hooks.changeState(n, c)
}

// Chain implements graph.Chainer.
func (m *Sink) Chain(_ context.Context, p *graph.Pad, b graph.Buffer) graph.FlowResult {
	if m.ErrorOnCall != nil {
		p.Node().PostError(m.ErrorOnCall, "mock sink failed")
		return graph.FlowError
	}
	if !m.Discard {
		m.m.Lock()
		m.buffers = append(m.buffers, b)
		m.m.Unlock()
	}
	m.advance(len(b.Data))
	return graph.FlowOK
}

// HandleEvent implements graph.EventHandler. Events are recorded and
// handled by default.
func (m *Sink) HandleEvent(_ context.Context, _ *graph.Pad, e graph.Event) bool {
	m.m.Lock()
	m.events = append(m.events, e)
	m.m.Unlock()
	return false
}

// Buffers returns received buffers.
func (m *Sink) Buffers() []graph.Buffer {
	m.m.Lock()
	defer m.m.Unlock()
	return append([]graph.Buffer(nil), m.buffers...)
}

// Events returns received events.
func (m *Sink) Events() []graph.Event {
	m.m.Lock()
	defer m.m.Unlock()
	return append([]graph.Event(nil), m.events...)
}

// PassThrough mocks an element that forwards buffers unchanged.
type PassThrough struct {
	counter
	Hooks
	Caps        caps.Caps
	ErrorOnCall error
}

// Class implements graph.Element.
func (m *PassThrough) Class() graph.Class {
	c := orAny(m.Caps)
	return graph.Class{
		Name:     "mockpass",
		Behavior: graph.PassThrough,
		Templates: []graph.PadTemplate{
			{Name: "sink", Direction: graph.PadSink, Presence: graph.Always, Caps: c},
			{Name: "src", Direction: graph.PadSrc, Presence: graph.Always, Caps: c},
		},
	}
}

// ChangeState implements graph.Element.
func (m *PassThrough) ChangeState(n *graph.Node, c state.Change) state.Return {
	return m.Hooks.changeState(n, c)
}

// QueryCaps implements graph.CapsQuerier.
func (m *PassThrough) QueryCaps(p *graph.Pad) caps.Caps {
	return graph.ProxyCaps(p)
}

// Chain implements graph.Chainer.
func (m *PassThrough) Chain(_ context.Context, p *graph.Pad, b graph.Buffer) graph.FlowResult {
	if m.ErrorOnCall != nil {
		p.Node().PostError(m.ErrorOnCall, "mock pass-through failed")
		return graph.FlowError
	}
	m.advance(len(b.Data))
	return p.Node().Pad("src").Push(b)
}

// Demux mocks an element that discovers its src pad with the first
// buffer. Caps are set on the added pad before the buffer is pushed.
type Demux struct {
	counter
	Hooks
	Caps caps.Caps

	m   sync.Mutex
	src *graph.Pad
}

// Class implements graph.Element.
func (m *Demux) Class() graph.Class {
	c := orAny(m.Caps)
	return graph.Class{
		Name:     "mockdemux",
		Behavior: graph.Demux,
		Templates: []graph.PadTemplate{
			{Name: "sink", Direction: graph.PadSink, Presence: graph.Always, Caps: caps.Any()},
			{Name: "src_%u", Direction: graph.PadSrc, Presence: graph.Sometimes, Caps: c},
		},
	}
}

// ChangeState implements graph.Element.
func (m *Demux) ChangeState(n *graph.Node, c state.Change) state.Return {
	return m.Hooks.changeState(n, c)
}

// Chain implements graph.Chainer.
func (m *Demux) Chain(_ context.Context, p *graph.Pad, b graph.Buffer) graph.FlowResult {
	m.m.Lock()
	src := m.src
	m.m.Unlock()
	if src == nil {
		var err error
		if src, err = p.Node().AddPad("src_%u", ""); err != nil {
			return graph.FlowError
		}
		m.m.Lock()
		m.src = src
		m.m.Unlock()
		if c, ok := orAny(m.Caps).Fixate(); ok {
			src.SetCaps(c)
		}
	}
	m.advance(len(b.Data))
	return src.Push(b)
}

// Hooks allows to mock element state changes. Every change is recorded.
type Hooks struct {
	// Recorder is shared between mocks to verify the order of changes.
	Recorder *Recorder
	// FailOn makes ChangeState fail for this step.
	FailOn state.Change

	m       sync.Mutex
	changes []state.Change
}

// Changes returns state changes executed by the element.
func (h *Hooks) Changes() []state.Change {
	h.m.Lock()
	defer h.m.Unlock()
	return append([]state.Change(nil), h.changes...)
}

func (h *Hooks) changeState(n *graph.Node, c state.Change) state.Return {
	h.m.Lock()
	h.changes = append(h.changes, c)
	h.m.Unlock()
	if h.Recorder != nil {
		h.Recorder.record(n.Name(), c)
	}
	if c == h.FailOn {
		return state.Failure
	}
	return state.Success
}

// Record is a single state change of the node.
type Record struct {
	Node   string
	Change state.Change
}

// Recorder records state changes of multiple nodes in order of execution.
type Recorder struct {
	m       sync.Mutex
	records []Record
}

func (r *Recorder) record(node string, c state.Change) {
	r.m.Lock()
	r.records = append(r.records, Record{Node: node, Change: c})
	r.m.Unlock()
}

// Records returns all recorded changes.
func (r *Recorder) Records() []Record {
	r.m.Lock()
	defer r.m.Unlock()
	return append([]Record(nil), r.records...)
}

// Index returns sequence number of the node change or -1 if it wasn't
// recorded.
func (r *Recorder) Index(node string, c state.Change) int {
	r.m.Lock()
	defer r.m.Unlock()
	for i, rec := range r.records {
		if rec.Node == node && rec.Change == c {
			return i
		}
	}
	return -1
}

// counter counts buffers and bytes.
type counter struct {
	m       sync.Mutex
	buffers int
	bytes   int
}

// Advance counter's metrics.
func (c *counter) advance(size int) {
	c.m.Lock()
	c.buffers++
	c.bytes += size
	c.m.Unlock()
}

// Count returns buffers and bytes metrics.
func (c *counter) Count() (int, int) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.buffers, c.bytes
}

// orAny returns ANY for unset caps.
func orAny(c caps.Caps) caps.Caps {
	if c.IsEmpty() {
		return caps.Any()
	}
	return c
}
