package elements

import (
	"context"
	"errors"
	"sync"

	"pipelined.dev/graph"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/internal/fitting"
	"pipelined.dev/graph/metric"
	"pipelined.dev/graph/state"
)

// DefaultMaxBuffers is the default capacity of the queue.
const DefaultMaxBuffers = 200

// Queue decouples upstream from downstream. Received buffers and events are
// queued and pushed downstream by the queue's own task. Upstream is blocked
// when queue is full, unless it's leaky.
type Queue struct {
	// Leaky queue drops new buffers when it's full.
	Leaky bool

	queue *fitting.Fitting[queued]

	m       sync.Mutex
	name    string
	result  graph.FlowResult
	dropped int
}

type queued struct {
	buffer graph.Buffer
	event  *graph.Event
}

// NewQueue returns a queue with provided capacity in buffers.
func NewQueue(maxBuffers int) *Queue {
	if maxBuffers <= 0 {
		maxBuffers = DefaultMaxBuffers
	}
	return &Queue{
		queue: fitting.New[queued](maxBuffers),
	}
}

// Class implements graph.Element.
func (*Queue) Class() graph.Class {
	return graph.Class{
		Name:     "queue",
		Behavior: graph.PassThrough,
		Templates: []graph.PadTemplate{
			{Name: "sink", Direction: graph.PadSink, Presence: graph.Always, Caps: caps.Any()},
			{Name: "src", Direction: graph.PadSrc, Presence: graph.Always, Caps: caps.Any()},
		},
	}
}

// ChangeState implements graph.Element.
func (q *Queue) ChangeState(n *graph.Node, c state.Change) state.Return {
	if c == state.NullToReady {
		q.m.Lock()
		q.name = n.Name()
		q.m.Unlock()
	}
	return state.Success
}

// QueryCaps implements graph.CapsQuerier.
func (*Queue) QueryCaps(p *graph.Pad) caps.Caps {
	return graph.ProxyCaps(p)
}

// Activate implements graph.Activator.
func (q *Queue) Activate(n *graph.Node, active bool) error {
	if !active {
		q.queue.Flush()
		q.level()
		return nil
	}
	q.queue.Unflush()
	q.setResult(graph.FlowOK)
	src := n.Pad("src")
	return n.StartTask(func(ctx context.Context) graph.FlowResult {
		it, ok := q.queue.Receive(ctx)
		if !ok {
			return graph.FlowFlushing
		}
		q.level()
		r := q.push(src, it)
		if r != graph.FlowOK {
			q.setResult(r)
		}
		return r
	})
}

func (q *Queue) push(src *graph.Pad, it queued) graph.FlowResult {
	if it.event == nil {
		return src.Push(it.buffer)
	}
	switch it.event.Type {
	case graph.EventEOS:
		// task stops and sends EOS.
		return graph.FlowEOS
	case graph.EventCaps:
		if err := src.SetCaps(it.event.Caps); err != nil {
			return graph.FlowNotLinked
		}
	}
	return graph.FlowOK
}

// Chain implements graph.Chainer.
func (q *Queue) Chain(ctx context.Context, _ *graph.Pad, b graph.Buffer) graph.FlowResult {
	if r := q.getResult(); r != graph.FlowOK {
		return r
	}
	if q.Leaky && q.queue.Len() == q.queue.Cap() {
		q.m.Lock()
		q.dropped++
		q.m.Unlock()
		return graph.FlowOK
	}
	return q.send(ctx, queued{buffer: b})
}

// HandleEvent implements graph.EventHandler. Events are serialized with
// buffers.
func (q *Queue) HandleEvent(ctx context.Context, _ *graph.Pad, e graph.Event) bool {
	q.send(ctx, queued{event: &e})
	return true
}

func (q *Queue) send(ctx context.Context, it queued) graph.FlowResult {
	err := q.queue.Send(ctx.Done(), it)
	q.level()
	switch {
	case err == nil:
		return graph.FlowOK
	case errors.Is(err, fitting.ErrClosed):
		return graph.FlowNotLinked
	}
	return graph.FlowFlushing
}

// Level returns the number of queued items.
func (q *Queue) Level() int {
	return q.queue.Len()
}

// Dropped returns the number of buffers dropped by leaky queue.
func (q *Queue) Dropped() int {
	q.m.Lock()
	defer q.m.Unlock()
	return q.dropped
}

func (q *Queue) level() {
	q.m.Lock()
	name := q.name
	q.m.Unlock()
	if name != "" {
		metric.QueueLevel(name, q.queue.Len())
	}
}

func (q *Queue) setResult(r graph.FlowResult) {
	q.m.Lock()
	q.result = r
	q.m.Unlock()
}

func (q *Queue) getResult() graph.FlowResult {
	q.m.Lock()
	defer q.m.Unlock()
	return q.result
}
