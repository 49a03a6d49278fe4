package graph_test

import (
	"pipelined.dev/graph"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/state"
)

// fixedSink is a sink with exact template caps, EMPTY included.
type fixedSink struct {
	caps caps.Caps
}

func (s *fixedSink) Class() graph.Class {
	return graph.Class{
		Name:     "fixedsink",
		Behavior: graph.Sink,
		Templates: []graph.PadTemplate{
			{Name: "sink", Direction: graph.PadSink, Presence: graph.Always, Caps: s.caps},
		},
	}
}

func (s *fixedSink) ChangeState(*graph.Node, state.Change) state.Return {
	return state.Success
}

// fanOut has request src pads.
type fanOut struct{}

func (fanOut) Class() graph.Class {
	audio := caps.Simple("audio/x-raw")
	return graph.Class{
		Name:     "fanout",
		Behavior: graph.FanOut,
		Templates: []graph.PadTemplate{
			{Name: "sink", Direction: graph.PadSink, Presence: graph.Always, Caps: audio},
			{Name: "src_%u", Direction: graph.PadSrc, Presence: graph.Request, Caps: audio},
		},
	}
}

func (fanOut) ChangeState(*graph.Node, state.Change) state.Return {
	return state.Success
}
