package graph

import (
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/graph/bus"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/log"
	"pipelined.dev/graph/state"
)

const defaultLinkDepth = 4

// Graph owns nodes and links between them. It executes state changes on
// its own goroutine and posts messages to the bus. Graph must be closed
// to release resources.
type Graph struct {
	name      string
	uid       string
	bus       *bus.Bus
	log       logrus.FieldLogger
	linkDepth int

	m         sync.Mutex
	nodes     []*Node
	links     []*Link
	eosPosted bool
	current   state.State
	pending   state.State
	target    state.State
	last      state.Return
	changed   chan struct{}

	// owned by the state loop.
	async *state.Change

	requests  chan request
	asyncc    chan struct{}
	padAddedc chan padAdded
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func newUID() string {
	return xid.New().String()
}

// New creates a new graph and starts its goroutines.
func New(options ...Option) *Graph {
	uid := newUID()
	g := &Graph{
		name:      "graph-" + uid,
		uid:       uid,
		linkDepth: defaultLinkDepth,
		current:   state.Null,
		pending:   state.VoidPending,
		target:    state.Null,
		last:      state.Success,
		changed:   make(chan struct{}),
		requests:  make(chan request),
		asyncc:    make(chan struct{}, 1),
		padAddedc: make(chan padAdded),
		done:      make(chan struct{}),
	}
	for _, option := range options {
		option(g)
	}
	if g.bus == nil {
		g.bus = bus.New()
	}
	if g.log == nil {
		g.log = log.GetLogger()
	}
	g.log = g.log.WithField("graph", g.name)
	g.wg.Add(2)
	go g.loop()
	go g.notify()
	return g
}

// Bus returns the graph bus.
func (g *Graph) Bus() *bus.Bus {
	return g.bus
}

// Name returns graph name.
func (g *Graph) Name() string {
	return g.name
}

// UID returns unique graph id.
func (g *Graph) UID() string {
	return g.uid
}

func (g *Graph) String() string {
	return g.name
}

// AddNode adds node to the graph. Node added to the running graph stays in
// NULL state until SyncState is called.
func (g *Graph) AddNode(n *Node) error {
	g.m.Lock()
	defer g.m.Unlock()
	for _, o := range g.nodes {
		if o == n || o.name == n.name {
			return fmt.Errorf("add node %s: %w", n.name, ErrDuplicateName)
		}
	}
	n.m.Lock()
	if n.graph != nil {
		n.m.Unlock()
		return fmt.Errorf("add node %s: belongs to %v: %w", n.name, n.graph, ErrDuplicateName)
	}
	n.graph = g
	n.log = g.log.WithField("node", n.name)
	n.m.Unlock()
	g.nodes = append(g.nodes, n)
	g.log.Debugf("node %s added", n.name)
	return nil
}

// Add adds multiple nodes to the graph.
func (g *Graph) Add(nodes ...*Node) error {
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			return err
		}
	}
	return nil
}

// Node returns the node with provided name.
func (g *Graph) Node(name string) (*Node, error) {
	g.m.Lock()
	defer g.m.Unlock()
	for _, n := range g.nodes {
		if n.name == name {
			return n, nil
		}
	}
	return nil, fmt.Errorf("node %s: %w", name, ErrNotFound)
}

// Nodes returns graph nodes in the order they were added.
func (g *Graph) Nodes() []*Node {
	g.m.Lock()
	defer g.m.Unlock()
	return append([]*Node(nil), g.nodes...)
}

// Links returns graph links in the order they were created.
func (g *Graph) Links() []*Link {
	g.m.Lock()
	defer g.m.Unlock()
	return append([]*Link(nil), g.links...)
}

func (g *Graph) has(n *Node) bool {
	for _, o := range g.nodes {
		if o == n {
			return true
		}
	}
	return false
}

// Link connects src pad with sink pad. Caps of the pads are intersected
// and the best alternative is set as negotiated caps of both pads. If
// caps don't intersect, ErrIncompatibleCaps is returned and nothing is
// changed.
func (g *Graph) Link(src, sink *Pad) (*Link, error) {
	if src.Direction() != PadSrc || sink.Direction() != PadSink {
		return nil, &LinkError{Src: src.FullName(), Sink: sink.FullName(), Err: ErrWrongDirection}
	}
	if src.IsLinked() || sink.IsLinked() {
		return nil, &LinkError{Src: src.FullName(), Sink: sink.FullName(), Err: ErrAlreadyLinked}
	}
	inter := src.QueryCaps().Intersect(sink.QueryCaps())
	if inter.IsEmpty() {
		return nil, &LinkError{Src: src.FullName(), Sink: sink.FullName(), Err: ErrIncompatibleCaps}
	}
	negotiated := inter.Best()

	g.m.Lock()
	if !g.has(src.node) || !g.has(sink.node) {
		g.m.Unlock()
		return nil, &LinkError{Src: src.FullName(), Sink: sink.FullName(), Err: ErrNotFound}
	}
	// pads could be linked concurrently.
	if src.IsLinked() || sink.IsLinked() {
		g.m.Unlock()
		return nil, &LinkError{Src: src.FullName(), Sink: sink.FullName(), Err: ErrAlreadyLinked}
	}
	l := newLink(src, sink, negotiated, g.linkDepth)
	src.setLink(l, negotiated)
	sink.setLink(l, negotiated)
	g.links = append(g.links, l)
	g.m.Unlock()

	g.log.Debugf("linked %v with %v", l, negotiated)
	sink.node.startDrainIfActive(sink, l)
	if src.node.State() >= state.Paused {
		g.bus.Post(bus.NewReconfigure(src.node.name))
	}
	return l, nil
}

// Unlink removes the link between pads.
func (g *Graph) Unlink(src, sink *Pad) error {
	l := src.Link()
	if l == nil || l.src != src || l.sink != sink {
		return &LinkError{Src: src.FullName(), Sink: sink.FullName(), Err: ErrNotLinked}
	}
	g.unlink(l)
	return nil
}

func (g *Graph) unlink(l *Link) bool {
	g.m.Lock()
	found := false
	for i := range g.links {
		if g.links[i] == l {
			g.links = append(g.links[:i], g.links[i+1:]...)
			found = true
			break
		}
	}
	g.m.Unlock()
	if !found {
		return false
	}
	l.src.clearLink()
	l.sink.clearLink()
	l.close()
	g.log.Debugf("unlinked %v", l)
	return true
}

func (g *Graph) unlinkPad(p *Pad) {
	if l := p.Link(); l != nil {
		g.unlink(l)
	}
}

// reconfigured announces caps accepted by downstream.
func (g *Graph) reconfigured(l *Link) {
	g.log.Debugf("reconfigured %v with %v", l, l.Caps())
	g.bus.Post(bus.NewReconfigure(l.src.node.name))
}

// negotiationFailed tears the link down after downstream rejected new
// caps.
func (g *Graph) negotiationFailed(l *Link, c caps.Caps) {
	if !g.unlink(l) {
		return
	}
	err := &LinkError{Src: l.src.FullName(), Sink: l.sink.FullName(), Err: ErrNegotiationFailed}
	l.sink.node.PostError(err, fmt.Sprintf("caps %v rejected by %v", c, l.sink))
	g.bus.Post(bus.NewReconfigure(l.src.node.name))
}

// RequestPad creates a new pad of the node request template.
func (g *Graph) RequestPad(n *Node, template string) (*Pad, error) {
	return n.RequestPad(template)
}

// ReleasePad unlinks and removes the request pad.
func (g *Graph) ReleasePad(p *Pad) error {
	return p.node.ReleasePad(p)
}

// candidate is either existing unlinked pad or request template.
type candidate struct {
	pad      *Pad
	template PadTemplate
}

func (c candidate) caps() caps.Caps {
	if c.pad != nil {
		return c.pad.QueryCaps()
	}
	return c.template.Caps
}

func (c candidate) get(n *Node) (*Pad, bool, error) {
	if c.pad != nil {
		return c.pad, false, nil
	}
	p, err := n.RequestPad(c.template.Name)
	return p, true, err
}

func candidates(n *Node, d Direction) []candidate {
	var result []candidate
	for _, p := range n.padsOf(d) {
		if !p.IsLinked() {
			result = append(result, candidate{pad: p})
		}
	}
	for _, t := range n.class.Templates {
		if t.Direction == d && t.Presence == Request {
			result = append(result, candidate{template: t})
		}
	}
	return result
}

// LinkNodes links the first compatible pair of pads of two nodes. Unlinked
// pads are tried first, then request templates.
func (g *Graph) LinkNodes(src, sink *Node) (*Link, error) {
	srcs, sinks := candidates(src, PadSrc), candidates(sink, PadSink)
	if len(srcs) == 0 || len(sinks) == 0 {
		return nil, &LinkError{Src: src.name, Sink: sink.name, Err: ErrNotFound}
	}
	for _, sc := range srcs {
		for _, kc := range sinks {
			if !sc.caps().CanIntersect(kc.caps()) {
				continue
			}
			sp, srcRequested, err := sc.get(src)
			if err != nil {
				continue
			}
			kp, sinkRequested, err := kc.get(sink)
			if err != nil {
				if srcRequested {
					src.ReleasePad(sp)
				}
				continue
			}
			l, err := g.Link(sp, kp)
			if err == nil {
				return l, nil
			}
			if srcRequested {
				src.ReleasePad(sp)
			}
			if sinkRequested {
				sink.ReleasePad(kp)
			}
		}
	}
	return nil, &LinkError{Src: src.name, Sink: sink.name, Err: ErrIncompatibleCaps}
}

// nodeEOS posts EOS message once every terminal node reached the end of
// stream.
func (g *Graph) nodeEOS(n *Node) {
	g.log.Debugf("node %s reached eos", n.name)
	g.m.Lock()
	if g.eosPosted {
		g.m.Unlock()
		return
	}
	terminals := 0
	for _, o := range g.nodes {
		if !o.class.Behavior.terminal() {
			continue
		}
		terminals++
		if !o.isEOS() {
			g.m.Unlock()
			return
		}
	}
	if terminals == 0 {
		g.m.Unlock()
		return
	}
	g.eosPosted = true
	g.m.Unlock()
	g.log.Debug("eos")
	g.bus.Post(bus.NewEOS(g.name))
}

func (g *Graph) resetEOS() {
	g.m.Lock()
	g.eosPosted = false
	g.m.Unlock()
}

// Close brings the graph to NULL state and stops its goroutines. Closed
// graph cannot be used.
func (g *Graph) Close() error {
	g.closeOnce.Do(func() {
		var errs execErrors
		if _, err := g.SetState(state.Null); err != nil {
			errs = append(errs, err)
		}
		close(g.done)
		g.wg.Wait()
		// nodes that failed to stop.
		for _, n := range g.Nodes() {
			n.deactivate()
		}
		for _, l := range g.Links() {
			l.close()
		}
		g.closeErr = errs.ret()
		g.log.Debug("closed")
	})
	return g.closeErr
}
