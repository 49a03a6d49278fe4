// Package elements provides general purpose elements: fan-out, queues,
// filters and sinks.
package elements

import (
	"context"

	"pipelined.dev/graph"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/state"
)

// Tee duplicates buffers received on its sink pad to all request src pads
// in the order they were requested. Every branch should be decoupled with
// a Queue, otherwise slow branch delays others.
type Tee struct{}

// NewTee returns a new tee element.
func NewTee() *Tee {
	return &Tee{}
}

// Class implements graph.Element.
func (*Tee) Class() graph.Class {
	return graph.Class{
		Name:     "tee",
		Behavior: graph.FanOut,
		Templates: []graph.PadTemplate{
			{Name: "sink", Direction: graph.PadSink, Presence: graph.Always, Caps: caps.Any()},
			{Name: "src_%u", Direction: graph.PadSrc, Presence: graph.Request, Caps: caps.Any()},
		},
	}
}

// ChangeState implements graph.Element.
func (*Tee) ChangeState(*graph.Node, state.Change) state.Return {
	return state.Success
}

// QueryCaps implements graph.CapsQuerier.
func (*Tee) QueryCaps(p *graph.Pad) caps.Caps {
	return graph.ProxyCaps(p)
}

// PadRequested implements graph.PadRequester. New branch gets the caps of
// the stream.
func (*Tee) PadRequested(n *graph.Node, p *graph.Pad) {
	if c, ok := n.Pad("sink").Caps(); ok {
		p.SetCaps(c)
	}
}

// PadReleased implements graph.PadRequester.
func (*Tee) PadReleased(*graph.Node, *graph.Pad) {}

// Chain implements graph.Chainer. Result is OK if at least one branch
// accepted the buffer. Branches receive copies of the buffer data.
func (*Tee) Chain(_ context.Context, p *graph.Pad, b graph.Buffer) graph.FlowResult {
	var (
		result    = graph.FlowNotLinked
		eos       = 0
		notLinked = 0
		pads      = p.Node().SrcPads()
	)
	for i, src := range pads {
		// every branch owns its data.
		out := b
		if i > 0 {
			out = b.Copy()
		}
		switch r := src.Push(out); r {
		case graph.FlowOK:
			result = graph.FlowOK
		case graph.FlowNotLinked:
			notLinked++
		case graph.FlowEOS:
			eos++
		default:
			if result != graph.FlowOK {
				result = r
			}
		}
	}
	switch {
	case result == graph.FlowOK:
		return result
	case len(pads) > 0 && eos+notLinked == len(pads) && eos > 0:
		return graph.FlowEOS
	}
	return result
}
