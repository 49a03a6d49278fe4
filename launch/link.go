package launch

import (
	"errors"
	"sync"

	"pipelined.dev/graph"
)

// linkNodes links two nodes now or, if the source only has sometimes src
// pads, once it adds one.
func linkNodes(g *graph.Graph, src, sink *graph.Node) error {
	_, err := g.LinkNodes(src, sink)
	if err == nil || !errors.Is(err, graph.ErrNotFound) || !sometimes(src) {
		return err
	}
	src.Logger().Debugf("link to %s is delayed", sink.Name())
	src.OnPadAdded(&delayed{graph: g, sink: sink})
	return nil
}

// sometimes returns true if node has sometimes src template.
func sometimes(n *graph.Node) bool {
	for _, t := range n.Class().Templates {
		if t.Direction == graph.PadSrc && t.Presence == graph.Sometimes {
			return true
		}
	}
	return false
}

// delayed links the first suitable added pad to the sink node.
type delayed struct {
	graph *graph.Graph
	sink  *graph.Node

	m    sync.Mutex
	done bool
}

// PadAdded implements graph.PadAddedHandler.
func (d *delayed) PadAdded(n *graph.Node, p *graph.Pad) {
	d.m.Lock()
	defer d.m.Unlock()
	if d.done || p.Direction() != graph.PadSrc || p.IsLinked() {
		return
	}
	if _, err := d.graph.LinkNodes(n, d.sink); err != nil {
		n.Logger().Warnf("failed delayed link %v to %s: %v", p, d.sink.Name(), err)
		return
	}
	n.Logger().Debugf("delayed link %v to %s", p, d.sink.Name())
	d.done = true
}
