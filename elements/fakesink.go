package elements

import (
	"context"
	"sync"

	"pipelined.dev/graph"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/state"
)

// FakeSink discards all buffers. It keeps the number of rendered buffers
// and bytes.
type FakeSink struct {
	// Dump logs every buffer at debug level.
	Dump bool

	m       sync.Mutex
	buffers int
	bytes   int
}

// NewFakeSink returns a new fake sink.
func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

// Class implements graph.Element.
func (*FakeSink) Class() graph.Class {
	return graph.Class{
		Name:     "fakesink",
		Behavior: graph.Sink,
		Templates: []graph.PadTemplate{
			{Name: "sink", Direction: graph.PadSink, Presence: graph.Always, Caps: caps.Any()},
		},
	}
}

// ChangeState implements graph.Element.
func (*FakeSink) ChangeState(*graph.Node, state.Change) state.Return {
	return state.Success
}

// Chain implements graph.Chainer.
func (s *FakeSink) Chain(_ context.Context, p *graph.Pad, b graph.Buffer) graph.FlowResult {
	if s.Dump {
		p.Node().Logger().Debugf("buffer pts %v duration %v size %d", b.PTS, b.Duration, len(b.Data))
	}
	s.m.Lock()
	s.buffers++
	s.bytes += len(b.Data)
	s.m.Unlock()
	return graph.FlowOK
}

// Count returns rendered buffers and bytes.
func (s *FakeSink) Count() (int, int) {
	s.m.Lock()
	defer s.m.Unlock()
	return s.buffers, s.bytes
}
