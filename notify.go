package graph

// padAdded is sent to the notification goroutine when node exposes a new
// pad.
type padAdded struct {
	node *Node
	pad  *Pad
	done chan struct{}
}

// notify executes PadAdded handlers in the order pads were discovered.
func (g *Graph) notify() {
	defer g.wg.Done()
	for {
		select {
		case pa := <-g.padAddedc:
			handlers := pa.node.padAddedHandlers()
			g.log.Debugf("pad %v added, %d handlers", pa.pad, len(handlers))
			for _, h := range handlers {
				h.PadAdded(pa.node, pa.pad)
			}
			close(pa.done)
		case <-g.done:
			return
		}
	}
}

// padAdded blocks until handlers are executed or cancel is closed.
func (g *Graph) padAdded(n *Node, p *Pad, cancel <-chan struct{}) {
	pa := padAdded{node: n, pad: p, done: make(chan struct{})}
	select {
	case g.padAddedc <- pa:
	case <-cancel:
		return
	case <-g.done:
		return
	}
	select {
	case <-pa.done:
	case <-cancel:
	case <-g.done:
	}
}
