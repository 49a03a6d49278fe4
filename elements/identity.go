package elements

import (
	"context"

	"pipelined.dev/graph"
	"pipelined.dev/graph/bus"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/state"
)

// Identity passes buffers unchanged. If SignalHandoffs is set, it posts
// APPLICATION message with the timestamp of every buffer.
type Identity struct {
	SignalHandoffs bool
	// Drop makes identity discard buffers.
	Drop bool
}

// NewIdentity returns a new identity element.
func NewIdentity() *Identity {
	return &Identity{}
}

// Class implements graph.Element.
func (*Identity) Class() graph.Class {
	return graph.Class{
		Name:     "identity",
		Behavior: graph.PassThrough,
		Templates: []graph.PadTemplate{
			{Name: "sink", Direction: graph.PadSink, Presence: graph.Always, Caps: caps.Any()},
			{Name: "src", Direction: graph.PadSrc, Presence: graph.Always, Caps: caps.Any()},
		},
	}
}

// ChangeState implements graph.Element.
func (*Identity) ChangeState(*graph.Node, state.Change) state.Return {
	return state.Success
}

// QueryCaps implements graph.CapsQuerier.
func (*Identity) QueryCaps(p *graph.Pad) caps.Caps {
	return graph.ProxyCaps(p)
}

// Chain implements graph.Chainer.
func (i *Identity) Chain(_ context.Context, p *graph.Pad, b graph.Buffer) graph.FlowResult {
	n := p.Node()
	if i.SignalHandoffs {
		n.Post(bus.NewApplication(n.Name(), b.PTS))
	}
	if i.Drop {
		return graph.FlowOK
	}
	return n.Pad("src").Push(b)
}
