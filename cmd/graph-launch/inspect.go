package main

import (
	"fmt"
	"io"

	"pipelined.dev/graph"
	"pipelined.dev/graph/caps"
)

var availability = map[graph.Presence]string{
	graph.Always:    "Always",
	graph.Sometimes: "Sometimes",
	graph.Request:   "On request",
}

func printCaps(w io.Writer, c caps.Caps, prefix string) {
	switch {
	case c.IsAny():
		fmt.Fprintf(w, "%sANY\n", prefix)
		return
	case c.IsEmpty():
		fmt.Fprintf(w, "%sEMPTY\n", prefix)
		return
	}
	for _, s := range c.Structures() {
		fmt.Fprintf(w, "%s%s\n", prefix, s.Name)
		for _, f := range s.Fields() {
			fmt.Fprintf(w, "%s  %-15s: %v\n", prefix, f.Name, f.Value)
		}
	}
}

func printTemplates(w io.Writer, factory string, class graph.Class) {
	fmt.Fprintf(w, "Pad Templates for %s:\n", factory)
	if len(class.Templates) == 0 {
		fmt.Fprintln(w, "  none")
		return
	}
	for _, t := range class.Templates {
		direction := "SINK"
		if t.Direction == graph.PadSrc {
			direction = "SRC"
		}
		fmt.Fprintf(w, "  %s template: '%s'\n", direction, t.Name)
		fmt.Fprintf(w, "    Availability: %s\n", availability[t.Presence])
		fmt.Fprintln(w, "    Capabilities:")
		printCaps(w, t.Caps, "      ")
		fmt.Fprintln(w)
	}
}

// printPadCaps prints negotiated caps of the pad or the caps it allows
// if negotiation isn't finished yet.
func printPadCaps(w io.Writer, p *graph.Pad) {
	c, ok := p.Caps()
	if !ok {
		c = p.QueryCaps()
		if peer := p.Peer(); peer != nil {
			c = c.Intersect(peer.QueryCaps())
		}
	}
	fmt.Fprintf(w, "Caps for the %s pad:\n", p.FullName())
	printCaps(w, c, "      ")
}

// printSinkCaps prints caps of every sink pad in the graph.
func printSinkCaps(w io.Writer, g *graph.Graph) {
	for _, n := range g.Nodes() {
		for _, p := range n.SinkPads() {
			printPadCaps(w, p)
		}
	}
}
