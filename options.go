package graph

import (
	"github.com/sirupsen/logrus"

	"pipelined.dev/graph/bus"
)

// Option provides a way to set functional parameters to the graph.
type Option func(*Graph)

// WithName sets the graph name. It's used as the source of graph
// messages.
func WithName(name string) Option {
	return func(g *Graph) {
		g.name = name
	}
}

// WithLogger sets the graph logger. Node loggers are derived from it.
func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Graph) {
		g.log = l
	}
}

// WithLinkDepth sets the number of items that can be queued in every link.
func WithLinkDepth(depth int) Option {
	return func(g *Graph) {
		if depth > 0 {
			g.linkDepth = depth
		}
	}
}

// WithBus makes the graph post messages to the provided bus.
func WithBus(b *bus.Bus) Option {
	return func(g *Graph) {
		g.bus = b
	}
}
