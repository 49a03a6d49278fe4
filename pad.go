package graph

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"pipelined.dev/graph/caps"
)

// Direction of the pad.
type Direction int

// pad directions
const (
	PadSrc Direction = iota
	PadSink
)

func (d Direction) String() string {
	if d == PadSrc {
		return "src"
	}
	return "sink"
}

// Presence defines when pads of the template exist.
type Presence int

// pad presences
const (
	// Always pads are created with the node.
	Always Presence = iota
	// Sometimes pads are added by the node while streaming.
	Sometimes
	// Request pads are created on demand.
	Request
)

func (p Presence) String() string {
	switch p {
	case Always:
		return "always"
	case Sometimes:
		return "sometimes"
	case Request:
		return "request"
	}
	return fmt.Sprintf("Presence(%d)", int(p))
}

// PadTemplate describes pads that node can have. Name of the request and
// sometimes templates can contain %u placeholder, which is replaced with
// incrementing index.
type PadTemplate struct {
	Name      string
	Direction Direction
	Presence  Presence
	Caps      caps.Caps
}

func (t PadTemplate) padName(idx int) string {
	i := strconv.Itoa(idx)
	return strings.NewReplacer("%u", i, "%d", i).Replace(t.Name)
}

// Pad is a connection point of the node.
type Pad struct {
	name     string
	template PadTemplate
	node     *Node

	m          sync.Mutex
	link       *Link
	caps       caps.Caps
	negotiated bool
}

func newPad(n *Node, name string, t PadTemplate) *Pad {
	return &Pad{
		name:     name,
		template: t,
		node:     n,
	}
}

// Name returns pad name, unique within the node.
func (p *Pad) Name() string {
	return p.name
}

// FullName returns name in node:pad notation.
func (p *Pad) FullName() string {
	return p.node.name + ":" + p.name
}

func (p *Pad) String() string {
	return p.FullName()
}

// Direction returns pad direction.
func (p *Pad) Direction() Direction {
	return p.template.Direction
}

// Presence returns pad presence.
func (p *Pad) Presence() Presence {
	return p.template.Presence
}

// Template returns the template pad was created from.
func (p *Pad) Template() PadTemplate {
	return p.template
}

// Node returns the node that owns the pad.
func (p *Pad) Node() *Node {
	return p.node
}

// Caps returns negotiated caps. False is returned if pad isn't negotiated.
func (p *Pad) Caps() (caps.Caps, bool) {
	p.m.Lock()
	defer p.m.Unlock()
	return p.caps, p.negotiated
}

// QueryCaps returns caps that pad can handle now: the result of element
// query if it implements CapsQuerier, negotiated caps if pad is
// negotiated, template caps otherwise.
func (p *Pad) QueryCaps() caps.Caps {
	if q, ok := p.node.element.(CapsQuerier); ok {
		return q.QueryCaps(p)
	}
	if c, ok := p.Caps(); ok {
		return c
	}
	return p.template.Caps
}

// Link returns pad link or nil if pad isn't linked.
func (p *Pad) Link() *Link {
	p.m.Lock()
	defer p.m.Unlock()
	return p.link
}

// IsLinked reports if pad is linked.
func (p *Pad) IsLinked() bool {
	return p.Link() != nil
}

// Peer returns the pad on the other side of the link.
func (p *Pad) Peer() *Pad {
	l := p.Link()
	if l == nil {
		return nil
	}
	if l.src == p {
		return l.sink
	}
	return l.src
}

// Push sends the buffer downstream. It blocks while link is full. Must be
// called on src pads.
func (p *Pad) Push(b Buffer) FlowResult {
	return p.send(item{buffer: b})
}

// PushEvent sends serialized event downstream.
func (p *Pad) PushEvent(e Event) FlowResult {
	return p.send(item{event: &e})
}

func (p *Pad) send(it item) FlowResult {
	if p.Direction() != PadSrc {
		return FlowError
	}
	l := p.Link()
	if l == nil {
		return FlowNotLinked
	}
	return l.push(p.node.done(), it)
}

// SetCaps sets caps of src pad and announces them downstream. Accepted
// caps change posts RECONFIGURE message. If downstream pad rejects them,
// the link is removed, ERROR and RECONFIGURE messages are posted.
func (p *Pad) SetCaps(c caps.Caps) error {
	if p.Direction() != PadSrc {
		return fmt.Errorf("set caps on %v: %w", p, ErrWrongDirection)
	}
	if !c.CanIntersect(p.template.Caps) {
		return fmt.Errorf("set caps %v on %v: %w", c, p, ErrIncompatibleCaps)
	}
	p.setCaps(c)
	if l := p.Link(); l != nil {
		p.PushEvent(Event{Type: EventCaps, Caps: c})
	}
	return nil
}

func (p *Pad) setCaps(c caps.Caps) {
	p.m.Lock()
	p.caps, p.negotiated = c, true
	p.m.Unlock()
}

func (p *Pad) setLink(l *Link, c caps.Caps) {
	p.m.Lock()
	p.link = l
	p.caps, p.negotiated = c, true
	p.m.Unlock()
}

func (p *Pad) clearLink() {
	p.m.Lock()
	p.link = nil
	p.caps, p.negotiated = caps.Caps{}, false
	p.m.Unlock()
}

// drain delivers items of the link to the node until context is done or
// link is removed.
func (p *Pad) drain(ctx context.Context, l *Link) error {
	for {
		it, ok := l.fitting.Receive(ctx)
		if !ok {
			return nil
		}
		if r := p.node.receive(ctx, p, l, it); r != FlowOK {
			l.setResult(r)
		}
	}
}

// ProxyCaps returns caps of the pad that forwards data unchanged: the
// negotiated caps or caps of the peers of opposite pads of the same node.
// Elements use it to implement CapsQuerier.
func ProxyCaps(p *Pad) caps.Caps {
	if c, ok := p.Caps(); ok {
		return c
	}
	result := p.template.Caps
	for _, o := range p.node.Pads() {
		if o.Direction() == p.Direction() {
			continue
		}
		if peer := o.Peer(); peer != nil {
			result = result.Intersect(peer.QueryCaps())
		}
	}
	return result
}
