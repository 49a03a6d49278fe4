package graph

import (
	"sync"

	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/internal/fitting"
)

// Link connects src pad of one node with sink pad of another one. Buffers
// are handed over through the bounded queue. The result of the last
// rejected item is returned to the upstream on the next push.
type Link struct {
	src     *Pad
	sink    *Pad
	fitting *fitting.Fitting[item]

	m      sync.Mutex
	caps   caps.Caps
	result FlowResult
}

func newLink(src, sink *Pad, c caps.Caps, depth int) *Link {
	return &Link{
		src:     src,
		sink:    sink,
		caps:    c,
		fitting: fitting.New[item](depth),
	}
}

// Src returns the src pad.
func (l *Link) Src() *Pad {
	return l.src
}

// Sink returns the sink pad.
func (l *Link) Sink() *Pad {
	return l.sink
}

// Caps returns negotiated caps of the link.
func (l *Link) Caps() caps.Caps {
	l.m.Lock()
	defer l.m.Unlock()
	return l.caps
}

func (l *Link) String() string {
	return l.src.FullName() + " -> " + l.sink.FullName()
}

func (l *Link) setCaps(c caps.Caps) {
	l.m.Lock()
	l.caps = c
	l.m.Unlock()
}

func (l *Link) setResult(r FlowResult) {
	l.m.Lock()
	l.result = r
	l.m.Unlock()
}

func (l *Link) push(done <-chan struct{}, it item) FlowResult {
	l.m.Lock()
	r := l.result
	l.m.Unlock()
	if r != FlowOK {
		return r
	}
	switch err := l.fitting.Send(done, it); err {
	case nil:
		return FlowOK
	case fitting.ErrClosed:
		return FlowNotLinked
	}
	return FlowFlushing
}

// activate makes link accept items.
func (l *Link) activate() {
	l.fitting.Unflush()
	l.setResult(FlowOK)
}

// flush drops queued items and rejects new ones.
func (l *Link) flush() {
	l.fitting.Flush()
}

func (l *Link) close() {
	l.fitting.Close()
}
