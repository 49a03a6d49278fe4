/*
Package graph allows to build and execute dataflow pipeline graphs.

# Concept

A graph consists of nodes connected with links. Every node wraps an
element, the behavior that produces, transforms or consumes buffers. Nodes
expose pads, typed connection points:

	src pads - buffers are pushed out of the node;
	sink pads - buffers are received by the node.

Every pad is created from the template of the element class. Templates
define pad direction, presence and caps, the formats the pad can handle:

	Always - pad exists as long as the node;
	Sometimes - pad is added by the node when it discovers the stream;
	Request - pad is created on demand, e.g. tee src_%u pads.

# Linking and negotiation

Two pads are linked only if their caps intersect. The best alternative of
the intersection becomes the negotiated caps of both pads:

	g := graph.New()
	src := graph.NewNode("src", tone.NewSource())
	sink := graph.NewNode("sink", elements.NewFakeSink())
	err := g.Add(src, sink)
	_, err = g.LinkNodes(src, sink)

Node can renegotiate caps while streaming with Pad.SetCaps. If downstream
rejects new caps, the link is removed and ERROR message is posted.

# Execution

Graph and all its nodes share the same lifecycle:

	NULL < READY < PAUSED < PLAYING

SetState brings every node to the target one step at a time. Towards
PLAYING, sinks are changed first, towards NULL, sources are changed first.
Sinks complete READY->PAUSED asynchronously, once the first buffer is
prerolled:

	ret, err := g.SetState(state.Playing)

Every link is a bounded queue drained by the goroutine of the downstream
node. Source nodes push buffers from their own task goroutines.

# Messages

Nodes and the graph report state changes, errors and end of stream
through the bus:

	msg, ok := g.Bus().Pop(bus.Error|bus.EOS, bus.Forever)

Graph must be closed to release its goroutines:

	err := g.Close()
*/
package graph
