package graph

import (
	"context"
	"time"

	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/state"
)

// Behavior describes how the node processes buffers.
type Behavior int

// behaviors
const (
	// PassThrough nodes forward buffers from sink to src pads.
	PassThrough Behavior = iota
	// FanOut nodes duplicate buffers to all src pads.
	FanOut
	// Source nodes produce buffers.
	Source
	// Sink nodes consume buffers.
	Sink
	// Injection nodes produce buffers provided by external code.
	Injection
	// Extraction nodes hand buffers over to external code.
	Extraction
	// Demux nodes discover their src pads while streaming.
	Demux
)

func (b Behavior) String() string {
	switch b {
	case PassThrough:
		return "pass-through"
	case FanOut:
		return "fan-out"
	case Source:
		return "source"
	case Sink:
		return "sink"
	case Injection:
		return "injection"
	case Extraction:
		return "extraction"
	case Demux:
		return "demux"
	}
	return "unknown"
}

// terminal reports if node consumes buffers and takes part in preroll and
// end of stream.
func (b Behavior) terminal() bool {
	return b == Sink || b == Extraction
}

// producer reports if node starts the data flow.
func (b Behavior) producer() bool {
	return b == Source || b == Injection || b == Demux
}

// Class is a static description of the element type.
type Class struct {
	Name      string
	Behavior  Behavior
	Templates []PadTemplate
}

// Template returns the pad template with provided name.
func (c Class) Template(name string) (PadTemplate, bool) {
	for _, t := range c.Templates {
		if t.Name == name {
			return t, true
		}
	}
	return PadTemplate{}, false
}

// Element is the behavior of the node. Graph calls ChangeState for every
// single state step. Node argument gives access to pads, tasks and bus.
type Element interface {
	Class() Class
	ChangeState(n *Node, c state.Change) state.Return
}

// Chainer is implemented by elements that process buffers received on
// sink pads. Context is done when the node is deactivated.
type Chainer interface {
	Chain(ctx context.Context, p *Pad, b Buffer) FlowResult
}

// EventHandler is implemented by elements that handle serialized events.
// If it returns false, the default handling is executed.
type EventHandler interface {
	HandleEvent(ctx context.Context, p *Pad, e Event) bool
}

// Activator is implemented by elements that need to start or stop
// streaming when pads are activated. It's called on READY->PAUSED and
// PAUSED->READY steps and when graph is flushed by seek. Source elements
// start their tasks here.
type Activator interface {
	Activate(n *Node, active bool) error
}

// Seeker is implemented by elements that can change stream position.
type Seeker interface {
	Seek(n *Node, s SeekEvent) bool
	Seekable(n *Node) (start, end time.Duration, ok bool)
}

// DurationQuerier is implemented by elements that know stream duration.
type DurationQuerier interface {
	Duration(n *Node) (time.Duration, bool)
}

// CapsQuerier is implemented by elements that compute pad caps
// dynamically, e.g. proxy the caps of the opposite pad.
type CapsQuerier interface {
	QueryCaps(p *Pad) caps.Caps
}

// CapsAcceptor is implemented by elements that validate caps received on
// the sink pad in addition to template check.
type CapsAcceptor interface {
	AcceptCaps(p *Pad, c caps.Caps) bool
}

// PadRequester is implemented by elements that need to be notified about
// request pads.
type PadRequester interface {
	PadRequested(n *Node, p *Pad)
	PadReleased(n *Node, p *Pad)
}

// PadAddedHandler is notified when node exposes a new pad while streaming.
type PadAddedHandler interface {
	PadAdded(n *Node, p *Pad)
}

// PadAddedFunc is a function adapter for PadAddedHandler.
type PadAddedFunc func(n *Node, p *Pad)

// PadAdded calls f(n, p).
func (f PadAddedFunc) PadAdded(n *Node, p *Pad) {
	f(n, p)
}
