package graph

import (
	"fmt"
	"time"

	"pipelined.dev/graph/bus"
	"pipelined.dev/graph/state"
)

// requestKind identifies the action executed by the state loop.
type requestKind int

const (
	setStateRequest requestKind = iota
	syncStateRequest
	removeRequest
	seekRequest
)

// request is passed into the state loop when user does some action.
type request struct {
	kind   requestKind
	target state.State
	node   *Node
	seek   SeekEvent
	result chan response
}

type response struct {
	ret state.Return
	ok  bool
	err error
}

// loop serializes state changes, seeks and structural changes of running
// graph.
func (g *Graph) loop() {
	defer g.wg.Done()
	for {
		select {
		case r := <-g.requests:
			r.result <- g.handle(r)
		case <-g.asyncc:
			g.continueAsync()
		case <-g.done:
			return
		}
	}
}

func (g *Graph) handle(r request) response {
	switch r.kind {
	case setStateRequest:
		ret, err := g.setState(r.target)
		return response{ret: ret, err: err}
	case syncStateRequest:
		ret, err := g.syncState(r.node)
		return response{ret: ret, err: err}
	case removeRequest:
		return response{err: g.removeNode(r.node)}
	case seekRequest:
		return response{ok: g.seek(r.seek)}
	}
	return response{err: fmt.Errorf("request %d: %w", r.kind, ErrInvalidState)}
}

// call sends the request to the state loop and waits for the response.
func (g *Graph) call(r request) response {
	r.result = make(chan response, 1)
	select {
	case g.requests <- r:
	case <-g.done:
		return response{ret: state.Failure, err: ErrClosed}
	}
	return <-r.result
}

// SetState requests the graph to change state. Every node is brought to
// the target state one step at a time. If any node completes the change
// asynchronously, state.Async is returned and the change continues in the
// background. Completion is reported with ASYNC_DONE and STATE_CHANGED
// messages.
func (g *Graph) SetState(target state.State) (state.Return, error) {
	r := g.call(request{kind: setStateRequest, target: target})
	return r.ret, r.err
}

// State returns current graph state.
func (g *Graph) State() state.State {
	g.m.Lock()
	defer g.m.Unlock()
	return g.current
}

// GetState waits until pending asynchronous change completes or timeout
// expires. Negative timeout means wait forever. It returns the result of
// the last change with current and pending states.
func (g *Graph) GetState(timeout time.Duration) (state.Return, state.State, state.State) {
	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	for {
		g.m.Lock()
		current, pending, last, changed := g.current, g.pending, g.last, g.changed
		g.m.Unlock()
		if pending == state.VoidPending {
			return last, current, pending
		}
		select {
		case <-changed:
		case <-expired:
			return state.Async, current, pending
		case <-g.done:
			return state.Failure, current, pending
		}
	}
}

// SyncState brings the node to the current state of the graph.
func (g *Graph) SyncState(n *Node) (state.Return, error) {
	r := g.call(request{kind: syncStateRequest, node: n})
	return r.ret, r.err
}

// RemoveNode brings node to NULL state, unlinks its pads and removes it
// from the graph.
func (g *Graph) RemoveNode(n *Node) error {
	return g.call(request{kind: removeRequest, node: n}).err
}

func (g *Graph) setState(target state.State) (state.Return, error) {
	if !target.Valid() {
		return state.Failure, fmt.Errorf("set state %v: %w", target, ErrInvalidState)
	}
	if c := g.async; c != nil {
		if (c.Upward() && target >= c.To) || (!c.Upward() && target <= c.To) {
			g.setTarget(target)
			g.log.Debugf("target %v, waiting for %v", target, c)
			return state.Async, nil
		}
		g.abortAsync()
	}
	g.setTarget(target)
	g.log.Debugf("set state %v", target)
	return g.advance()
}

// setTarget sets the state graph is changing to. Pending state is the
// target until it's reached.
func (g *Graph) setTarget(target state.State) {
	g.m.Lock()
	g.target = target
	if target == g.current {
		g.pending = state.VoidPending
	} else {
		g.pending = target
	}
	g.m.Unlock()
}

// abortAsync completes pending change immediately.
func (g *Graph) abortAsync() {
	c := *g.async
	g.async = nil
	for _, n := range g.Nodes() {
		n.commitPending()
	}
	g.commit(c, state.Success)
	g.log.Debugf("async %v aborted", c)
}

// advance executes steps towards the target state until it's reached or
// some step is asynchronous.
func (g *Graph) advance() (state.Return, error) {
	ret := state.Success
	for {
		g.m.Lock()
		current, target := g.current, g.target
		g.m.Unlock()
		c, ok := state.Next(current, target)
		if !ok {
			return ret, nil
		}
		switch r := g.applyStep(c, target); r {
		case state.Failure:
			g.m.Lock()
			g.target, g.pending, g.last = current, state.VoidPending, state.Failure
			close(g.changed)
			g.changed = make(chan struct{})
			g.m.Unlock()
			return state.Failure, fmt.Errorf("%v: %w", c, ErrStateChange)
		case state.Async:
			g.async = &c
			g.m.Lock()
			g.last = state.Async
			g.m.Unlock()
			return state.Async, nil
		case state.NoPreroll:
			ret = state.NoPreroll
		}
		g.commit(c, ret)
	}
}

// applyStep changes state of every node. Towards PLAYING nodes are changed
// from sinks to sources, towards NULL from sources to sinks.
func (g *Graph) applyStep(c state.Change, target state.State) state.Return {
	g.log.Debugf("step %v", c)
	ret := state.Success
	for _, n := range order(g.Nodes(), c.Upward()) {
		switch r := n.changeState(c, target); r {
		case state.Failure:
			return state.Failure
		case state.Async:
			if ret != state.NoPreroll {
				ret = state.Async
			}
		case state.NoPreroll:
			ret = state.NoPreroll
		}
	}
	if c == state.PausedToReady {
		g.resetEOS()
	}
	return ret
}

func (g *Graph) commit(c state.Change, ret state.Return) {
	g.m.Lock()
	g.current, g.last = c.To, ret
	target := g.target
	if c.To == target {
		g.pending = state.VoidPending
	}
	close(g.changed)
	g.changed = make(chan struct{})
	g.m.Unlock()
	pending := target
	if c.To == target {
		pending = state.VoidPending
	}
	g.log.Debugf("state changed %v", c)
	g.bus.Post(bus.NewStateChanged(g.name, c.From, c.To, pending))
}

// asyncDone is called by nodes that completed the asynchronous change. It
// never blocks.
func (g *Graph) asyncDone() {
	select {
	case g.asyncc <- struct{}{}:
	default:
	}
}

// continueAsync commits pending graph step once every node completed it.
func (g *Graph) continueAsync() {
	if g.async == nil {
		return
	}
	for _, n := range g.Nodes() {
		if n.Pending() != state.VoidPending {
			return
		}
	}
	c := *g.async
	g.async = nil
	g.commit(c, state.Success)
	g.bus.Post(bus.NewAsyncDone(g.name))
	if _, err := g.advance(); err != nil {
		g.log.WithError(err).Error("async state change failed")
		g.bus.Post(bus.NewError(g.name, err, "state change failed after async completion"))
	}
}

func (g *Graph) syncState(n *Node) (state.Return, error) {
	g.m.Lock()
	member := g.has(n)
	current, target := g.current, g.target
	g.m.Unlock()
	if !member {
		return state.Failure, fmt.Errorf("sync state %s: %w", n.name, ErrNotFound)
	}
	ret := state.Success
	for _, c := range state.Steps(n.State(), current) {
		switch r := n.changeState(c, target); r {
		case state.Failure:
			return r, fmt.Errorf("sync state %s %v: %w", n.name, c, ErrStateChange)
		case state.Async, state.NoPreroll:
			ret = r
		}
	}
	return ret, nil
}

func (g *Graph) removeNode(n *Node) error {
	g.m.Lock()
	member := g.has(n)
	g.m.Unlock()
	if !member {
		return fmt.Errorf("remove node %s: %w", n.name, ErrNotFound)
	}
	var errs execErrors
	for _, c := range state.Steps(n.State(), state.Null) {
		if n.changeState(c, state.Null) == state.Failure {
			errs = append(errs, fmt.Errorf("remove node %s %v: %w", n.name, c, ErrStateChange))
			break
		}
	}
	// force stop if node failed to reach NULL.
	n.deactivate()
	for _, p := range n.Pads() {
		g.unlinkPad(p)
	}
	g.m.Lock()
	for i := range g.nodes {
		if g.nodes[i] == n {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			break
		}
	}
	g.m.Unlock()
	n.m.Lock()
	n.graph = nil
	n.m.Unlock()
	g.log.Debugf("node %s removed", n.name)
	// removed node could be the one async change is waiting for.
	g.continueAsync()
	return errs.ret()
}
