package elements

import (
	"pipelined.dev/graph"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/state"
)

// Capsfilter passes buffers unchanged, but restricts caps negotiated on
// both sides to the filter.
type Capsfilter struct {
	Caps caps.Caps
}

// NewCapsfilter returns a new capsfilter with provided filter.
func NewCapsfilter(c caps.Caps) *Capsfilter {
	return &Capsfilter{Caps: c}
}

// Class implements graph.Element.
func (*Capsfilter) Class() graph.Class {
	return graph.Class{
		Name:     "capsfilter",
		Behavior: graph.PassThrough,
		Templates: []graph.PadTemplate{
			{Name: "sink", Direction: graph.PadSink, Presence: graph.Always, Caps: caps.Any()},
			{Name: "src", Direction: graph.PadSrc, Presence: graph.Always, Caps: caps.Any()},
		},
	}
}

// ChangeState implements graph.Element.
func (*Capsfilter) ChangeState(*graph.Node, state.Change) state.Return {
	return state.Success
}

// QueryCaps implements graph.CapsQuerier.
func (f *Capsfilter) QueryCaps(p *graph.Pad) caps.Caps {
	return graph.ProxyCaps(p).Intersect(f.Caps)
}

// AcceptCaps implements graph.CapsAcceptor.
func (f *Capsfilter) AcceptCaps(_ *graph.Pad, c caps.Caps) bool {
	return c.CanIntersect(f.Caps)
}
