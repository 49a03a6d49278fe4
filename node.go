package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pipelined.dev/graph/bus"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/log"
	"pipelined.dev/graph/metric"
	"pipelined.dev/graph/state"
)

// Node is a processing unit of the graph. It owns pads and executes the
// element. Node is created with the pads of always templates.
type Node struct {
	name    string
	uid     string
	element Element
	class   Class
	meter   metric.ResetFunc

	m        sync.Mutex
	graph    *Graph
	log      logrus.FieldLogger
	pads     []*Pad
	counters map[string]int
	handlers []PadAddedHandler
	current  state.State
	pending  state.State
	target   state.State
	act      *activation
	measure  metric.MeasureFunc

	// terminal nodes only.
	prerolling bool
	eos        bool
	playing    chan struct{}
	position   time.Duration
}

// activation holds goroutines of the node while it's at least PAUSED.
type activation struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	tasks  []*task
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// TaskFunc is executed repeatedly by the node task while it returns
// FlowOK.
type TaskFunc func(ctx context.Context) FlowResult

var closed = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// NewNode creates a new node for the element. If name is empty, it's
// generated from the class name.
func NewNode(name string, e Element) *Node {
	class := e.Class()
	uid := newUID()
	if name == "" {
		name = class.Name + "-" + uid
	}
	n := &Node{
		name:     name,
		uid:      uid,
		element:  e,
		class:    class,
		meter:    metric.Meter(e),
		log:      log.GetLogger().WithField("node", name),
		counters: make(map[string]int),
		current:  state.Null,
		pending:  state.VoidPending,
		target:   state.VoidPending,
		playing:  make(chan struct{}),
		position: ClockTimeNone,
	}
	for _, t := range class.Templates {
		if t.Presence == Always {
			n.pads = append(n.pads, newPad(n, t.Name, t))
		}
	}
	return n
}

// Name returns node name, unique within the graph.
func (n *Node) Name() string {
	return n.name
}

// UID returns unique node id.
func (n *Node) UID() string {
	return n.uid
}

func (n *Node) String() string {
	return n.name
}

// Element returns the node element.
func (n *Node) Element() Element {
	return n.element
}

// Class returns the element class.
func (n *Node) Class() Class {
	return n.class
}

// Behavior returns the behavior of the element.
func (n *Node) Behavior() Behavior {
	return n.class.Behavior
}

// Graph returns the graph node belongs to.
func (n *Node) Graph() *Graph {
	n.m.Lock()
	defer n.m.Unlock()
	return n.graph
}

// Logger returns the node logger.
func (n *Node) Logger() logrus.FieldLogger {
	n.m.Lock()
	defer n.m.Unlock()
	return n.log
}

// State returns current node state.
func (n *Node) State() state.State {
	n.m.Lock()
	defer n.m.Unlock()
	return n.current
}

// Pending returns the state node is asynchronously changing to.
func (n *Node) Pending() state.State {
	n.m.Lock()
	defer n.m.Unlock()
	return n.pending
}

// Pads returns node pads in the order they were added.
func (n *Node) Pads() []*Pad {
	n.m.Lock()
	defer n.m.Unlock()
	return append([]*Pad(nil), n.pads...)
}

// Pad returns the pad with provided name or nil.
func (n *Node) Pad(name string) *Pad {
	n.m.Lock()
	defer n.m.Unlock()
	return n.pad(name)
}

func (n *Node) pad(name string) *Pad {
	for _, p := range n.pads {
		if p.name == name {
			return p
		}
	}
	return nil
}

// SrcPads returns src pads of the node.
func (n *Node) SrcPads() []*Pad {
	return n.padsOf(PadSrc)
}

// SinkPads returns sink pads of the node.
func (n *Node) SinkPads() []*Pad {
	return n.padsOf(PadSink)
}

func (n *Node) padsOf(d Direction) []*Pad {
	n.m.Lock()
	defer n.m.Unlock()
	var pads []*Pad
	for _, p := range n.pads {
		if p.Direction() == d {
			pads = append(pads, p)
		}
	}
	return pads
}

// OnPadAdded registers the handler that is called when node adds a pad
// while streaming. Handlers are called in the order of registration on the
// graph notification goroutine.
func (n *Node) OnPadAdded(h PadAddedHandler) {
	n.m.Lock()
	n.handlers = append(n.handlers, h)
	n.m.Unlock()
}

func (n *Node) padAddedHandlers() []PadAddedHandler {
	n.m.Lock()
	defer n.m.Unlock()
	return append([]PadAddedHandler(nil), n.handlers...)
}

// AddPad exposes a new pad of the sometimes template. If name is empty,
// it's generated from the template. Registered PadAdded handlers are
// executed before AddPad returns, unless node is deactivated meanwhile.
func (n *Node) AddPad(template, name string) (*Pad, error) {
	t, ok := n.class.Template(template)
	if !ok || t.Presence != Sometimes {
		return nil, fmt.Errorf("add pad %s on %s: %w", template, n.name, ErrTemplateNotFound)
	}
	n.m.Lock()
	if name == "" {
		name = t.padName(n.counters[t.Name])
		n.counters[t.Name]++
	}
	if n.pad(name) != nil {
		n.m.Unlock()
		return nil, fmt.Errorf("add pad %s on %s: %w", name, n.name, ErrDuplicateName)
	}
	p := newPad(n, name, t)
	n.pads = append(n.pads, p)
	g := n.graph
	var cancel <-chan struct{}
	if n.act != nil {
		cancel = n.act.ctx.Done()
	}
	n.m.Unlock()
	n.Logger().Debugf("pad %s added", name)
	if g != nil {
		g.padAdded(n, p, cancel)
	}
	return p, nil
}

// RemovePad removes sometimes pad. The pad is unlinked first.
func (n *Node) RemovePad(p *Pad) error {
	if p.node != n || p.Presence() != Sometimes {
		return fmt.Errorf("remove pad %v from %s: %w", p, n.name, ErrNotFound)
	}
	return n.removePad(p)
}

// RequestPad creates a new pad of the request template.
func (n *Node) RequestPad(template string) (*Pad, error) {
	t, ok := n.class.Template(template)
	if !ok {
		return nil, fmt.Errorf("request pad %s on %s: %w", template, n.name, ErrTemplateNotFound)
	}
	if t.Presence != Request {
		return nil, fmt.Errorf("request pad %s on %s: %w", template, n.name, ErrTemplateNotRequestable)
	}
	n.m.Lock()
	name := t.padName(n.counters[t.Name])
	n.counters[t.Name]++
	if n.pad(name) != nil {
		n.m.Unlock()
		return nil, fmt.Errorf("request pad %s on %s: %w", name, n.name, ErrDuplicateName)
	}
	p := newPad(n, name, t)
	n.pads = append(n.pads, p)
	n.m.Unlock()
	if r, ok := n.element.(PadRequester); ok {
		r.PadRequested(n, p)
	}
	n.Logger().Debugf("pad %s requested", name)
	return p, nil
}

// ReleasePad removes the request pad. The pad is unlinked first.
func (n *Node) ReleasePad(p *Pad) error {
	if p.node != n {
		return fmt.Errorf("release pad %v from %s: %w", p, n.name, ErrNotFound)
	}
	if p.Presence() != Request {
		return fmt.Errorf("release pad %v: %w", p, ErrTemplateNotRequestable)
	}
	if err := n.removePad(p); err != nil {
		return err
	}
	if r, ok := n.element.(PadRequester); ok {
		r.PadReleased(n, p)
	}
	n.Logger().Debugf("pad %s released", p.name)
	return nil
}

func (n *Node) removePad(p *Pad) error {
	if g := n.Graph(); g != nil {
		g.unlinkPad(p)
	}
	n.m.Lock()
	defer n.m.Unlock()
	for i := range n.pads {
		if n.pads[i] == p {
			n.pads = append(n.pads[:i], n.pads[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("remove pad %v: %w", p, ErrNotFound)
}

// Post sends the message to the graph bus.
func (n *Node) Post(m bus.Message) {
	if g := n.Graph(); g != nil {
		g.bus.Post(m)
	}
}

// PostError posts ERROR message from the node.
func (n *Node) PostError(err error, debug string) {
	n.Logger().WithError(err).Error(debug)
	n.Post(bus.NewError(n.name, err, debug))
}

// PostWarning posts WARNING message from the node.
func (n *Node) PostWarning(err error, debug string) {
	n.Logger().WithError(err).Warn(debug)
	n.Post(bus.NewWarning(n.name, err, debug))
}

// Context returns the context that is done when node is deactivated.
func (n *Node) Context() context.Context {
	n.m.Lock()
	defer n.m.Unlock()
	if n.act != nil {
		return n.act.ctx
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func (n *Node) done() <-chan struct{} {
	n.m.Lock()
	defer n.m.Unlock()
	if n.act != nil {
		return n.act.ctx.Done()
	}
	return closed
}

// Position returns the end of the last buffer rendered by the terminal
// node.
func (n *Node) Position() (time.Duration, bool) {
	n.m.Lock()
	defer n.m.Unlock()
	return n.position, n.position != ClockTimeNone
}

// EndOfStream sends EOS event on all linked src pads.
func (n *Node) EndOfStream() FlowResult {
	var results []FlowResult
	for _, p := range n.SrcPads() {
		if p.IsLinked() {
			results = append(results, p.PushEvent(Event{Type: EventEOS}))
		}
	}
	return combine(results)
}

// AsyncDone completes pending asynchronous state change. It must be
// called by elements that returned state.Async from ChangeState.
func (n *Node) AsyncDone() {
	if n.commitPending() {
		if g := n.Graph(); g != nil {
			g.asyncDone()
		}
	}
}

func (n *Node) commitPending() bool {
	n.m.Lock()
	if n.pending == state.VoidPending {
		n.m.Unlock()
		return false
	}
	from, to, target := n.current, n.pending, n.target
	n.current, n.pending = to, state.VoidPending
	n.prerolling = false
	n.m.Unlock()
	n.postStateChanged(from, to, target)
	return true
}

func (n *Node) postStateChanged(from, to, target state.State) {
	pending := target
	if to == target {
		pending = state.VoidPending
	}
	n.Logger().Debugf("state changed %v->%v", from, to)
	n.Post(bus.NewStateChanged(n.name, from, to, pending))
}

// changeState brings the node to the target of the step one state at a
// time. Pending asynchronous change is committed first.
func (n *Node) changeState(c state.Change, target state.State) state.Return {
	n.commitPending()
	ret := state.Success
	for _, step := range state.Steps(n.State(), c.To) {
		switch r := n.step(step, target); r {
		case state.Failure, state.Async:
			return r
		case state.NoPreroll:
			ret = r
		}
	}
	return ret
}

func (n *Node) step(c state.Change, target state.State) state.Return {
	switch c {
	case state.PausedToReady:
		n.deactivate()
	case state.PlayingToPaused:
		n.m.Lock()
		n.playing = make(chan struct{})
		n.m.Unlock()
	}
	ret := n.element.ChangeState(n, c)
	if ret == state.Failure {
		n.PostError(fmt.Errorf("%v: %w", c, ErrStateChange), fmt.Sprintf("node %s failed to change state", n.name))
		return state.Failure
	}
	if c == state.ReadyToPaused {
		if err := n.activate(); err != nil {
			n.PostError(fmt.Errorf("%v: %w", c, ErrStateChange), fmt.Sprintf("node %s failed to activate: %v", n.name, err))
			return state.Failure
		}
	}

	n.m.Lock()
	switch c {
	case state.PausedToPlaying:
		close(n.playing)
	case state.PausedToReady:
		n.eos, n.prerolling, n.position = false, false, ClockTimeNone
	}
	if ret == state.Success && n.prerolling {
		ret = state.Async
	}
	n.target = target
	if ret == state.Async {
		n.pending = c.To
		n.m.Unlock()
		n.Logger().Debugf("state change %v is async", c)
		return ret
	}
	n.current = c.To
	n.m.Unlock()
	n.postStateChanged(c.From, c.To, target)
	return ret
}

// activate starts draining of linked sink pads and notifies the element.
func (n *Node) activate() error {
	n.m.Lock()
	if n.act != nil {
		n.m.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	n.act = &activation{ctx: gctx, cancel: cancel, group: group}
	n.measure = n.meter()
	if n.class.Behavior.terminal() {
		n.prerolling, n.eos = true, false
	}
	for _, p := range n.pads {
		if p.Direction() != PadSink {
			continue
		}
		if l := p.Link(); l != nil {
			n.startDrain(p, l)
		}
	}
	n.m.Unlock()
	if a, ok := n.element.(Activator); ok {
		if err := a.Activate(n, true); err != nil {
			n.deactivate()
			return err
		}
	}
	return nil
}

// deactivate stops all goroutines of the node and flushes its sink links.
func (n *Node) deactivate() {
	n.m.Lock()
	act := n.act
	if act == nil {
		n.m.Unlock()
		return
	}
	n.act = nil
	n.prerolling = false
	var links []*Link
	for _, p := range n.pads {
		if l := p.Link(); l != nil && p.Direction() == PadSink {
			links = append(links, l)
		}
	}
	n.m.Unlock()
	for _, l := range links {
		l.flush()
	}
	act.cancel()
	if a, ok := n.element.(Activator); ok {
		if err := a.Activate(n, false); err != nil {
			n.Logger().WithError(err).Warn("deactivate failed")
		}
	}
	if err := act.group.Wait(); err != nil {
		n.Logger().WithError(err).Warn("streaming stopped with error")
	}
	// drop buffers pushed meanwhile.
	for _, l := range links {
		l.flush()
	}
}

func (n *Node) active() bool {
	n.m.Lock()
	defer n.m.Unlock()
	return n.act != nil
}

// startDrain must be called with node lock held.
func (n *Node) startDrain(p *Pad, l *Link) {
	if n.act == nil {
		return
	}
	l.activate()
	ctx := n.act.ctx
	n.act.group.Go(func() error {
		return p.drain(ctx, l)
	})
}

func (n *Node) startDrainIfActive(p *Pad, l *Link) {
	n.m.Lock()
	n.startDrain(p, l)
	n.m.Unlock()
}

// StartTask starts a goroutine that calls fn until it returns non-ok
// result or node is deactivated. EOS result sends EOS event downstream,
// fatal results are posted as ERROR message.
func (n *Node) StartTask(fn TaskFunc) error {
	n.m.Lock()
	defer n.m.Unlock()
	if n.act == nil {
		return fmt.Errorf("start task on %s: %w", n.name, ErrInvalidState)
	}
	ctx, cancel := context.WithCancel(n.act.ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	n.act.tasks = append(n.act.tasks, t)
	n.act.group.Go(func() error {
		defer close(t.done)
		defer cancel()
		n.run(ctx, fn)
		return nil
	})
	return nil
}

// StopTask stops all node tasks and waits until they return. It must not
// be called from the task itself.
func (n *Node) StopTask() {
	n.m.Lock()
	var tasks []*task
	if n.act != nil {
		tasks, n.act.tasks = n.act.tasks, nil
	}
	n.m.Unlock()
	for _, t := range tasks {
		t.cancel()
		<-t.done
	}
}

func (n *Node) run(ctx context.Context, fn TaskFunc) {
	for ctx.Err() == nil {
		r := fn(ctx)
		if r == FlowOK {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		n.Logger().Debugf("task stopped: %v", r)
		switch {
		case r == FlowEOS:
			n.EndOfStream()
		case r.Fatal():
			metric.FlowError(n.element, r.String())
			n.PostError(&StreamError{Node: n.name, Result: r}, fmt.Sprintf("streaming stopped, reason %v", r))
			n.EndOfStream()
		}
		return
	}
}

// receive handles the item delivered on the sink pad.
func (n *Node) receive(ctx context.Context, p *Pad, l *Link, it item) FlowResult {
	if it.event != nil {
		return n.receiveEvent(ctx, p, l, *it.event)
	}
	b := it.buffer
	n.measure(len(b.Data), b.Duration)
	terminal := n.class.Behavior.terminal()
	if terminal {
		if n.isEOS() {
			return FlowEOS
		}
		n.prerolled()
		if !n.waitPlaying(ctx) {
			return FlowFlushing
		}
	}
	r := FlowOK
	if c, ok := n.element.(Chainer); ok {
		r = c.Chain(ctx, p, b)
	} else if !terminal {
		r = n.forward(b)
	}
	switch r {
	case FlowOK:
		if terminal {
			n.render(b)
		}
	case FlowFlushing:
	default:
		metric.FlowError(n.element, r.String())
	}
	return r
}

func (n *Node) receiveEvent(ctx context.Context, p *Pad, l *Link, e Event) FlowResult {
	if e.Type == EventCaps {
		if !n.acceptCaps(p, e.Caps) {
			if g := n.Graph(); g != nil {
				g.negotiationFailed(l, e.Caps)
			}
			return FlowNotLinked
		}
		changed := !l.Caps().Equal(e.Caps)
		p.setCaps(e.Caps)
		l.setCaps(e.Caps)
		if g := n.Graph(); g != nil && changed {
			g.reconfigured(l)
		}
	}
	if n.class.Behavior.terminal() {
		if e.Type != EventEOS {
			n.handleEvent(ctx, p, e)
			return FlowOK
		}
		n.prerolled()
		if !n.waitPlaying(ctx) {
			return FlowFlushing
		}
		n.handleEvent(ctx, p, e)
		if n.setEOS() {
			if g := n.Graph(); g != nil {
				g.nodeEOS(n)
			}
		}
		return FlowEOS
	}
	if n.handleEvent(ctx, p, e) {
		return FlowOK
	}
	switch e.Type {
	case EventEOS:
		n.EndOfStream()
		return FlowEOS
	case EventCaps:
		if b := n.class.Behavior; b == PassThrough || b == FanOut {
			for _, sp := range n.SrcPads() {
				if err := sp.SetCaps(e.Caps); err != nil {
					n.Logger().WithError(err).Warn("caps not forwarded")
				}
			}
		}
	}
	return FlowOK
}

func (n *Node) handleEvent(ctx context.Context, p *Pad, e Event) bool {
	if h, ok := n.element.(EventHandler); ok {
		return h.HandleEvent(ctx, p, e)
	}
	return false
}

func (n *Node) acceptCaps(p *Pad, c caps.Caps) bool {
	if !c.CanIntersect(p.template.Caps) {
		return false
	}
	if a, ok := n.element.(CapsAcceptor); ok {
		return a.AcceptCaps(p, c)
	}
	return true
}

// forward pushes the buffer to all linked src pads.
func (n *Node) forward(b Buffer) FlowResult {
	var results []FlowResult
	for _, p := range n.SrcPads() {
		results = append(results, p.Push(b))
	}
	return combine(results)
}

// prerolled completes pending READY->PAUSED change of the terminal node.
func (n *Node) prerolled() {
	n.m.Lock()
	if !n.prerolling {
		n.m.Unlock()
		return
	}
	n.prerolling = false
	pending := n.pending != state.VoidPending
	n.m.Unlock()
	if pending {
		n.AsyncDone()
	}
}

func (n *Node) waitPlaying(ctx context.Context) bool {
	n.m.Lock()
	playing := n.playing
	n.m.Unlock()
	select {
	case <-playing:
		return true
	case <-ctx.Done():
		return false
	}
}

func (n *Node) render(b Buffer) {
	if end, ok := b.End(); ok {
		n.m.Lock()
		n.position = end
		n.m.Unlock()
	}
}

func (n *Node) isEOS() bool {
	n.m.Lock()
	defer n.m.Unlock()
	return n.eos
}

// setEOS returns true if node reached EOS with this call.
func (n *Node) setEOS() bool {
	n.m.Lock()
	defer n.m.Unlock()
	if n.eos {
		return false
	}
	n.eos = true
	return true
}

// reset prepares terminal node for the data after flushing seek.
func (n *Node) reset(position time.Duration) {
	n.m.Lock()
	n.eos = false
	n.position = position
	n.m.Unlock()
}
