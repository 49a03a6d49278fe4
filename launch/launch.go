// Package launch builds graphs from textual descriptions:
//
//	tonesrc num-buffers=10 ! tee name=t ! queue ! fakesink t. ! queue ! appsink name=out
//
// Description is a list of chains. Chain elements are separated by "!".
// Element is a factory name followed by its properties; property "name"
// sets the node name. Reference "name." continues the chain from the
// declared node or links into it. Caps, like "audio/x-raw,rate=8000",
// insert a capsfilter. Double quotes group text with spaces.
//
// Links from nodes that only have sometimes src pads are completed when
// the pad is added.
package launch

import (
	"errors"
	"fmt"
	"strings"

	"pipelined.dev/graph"
	"pipelined.dev/graph/registry"
)

// ErrSyntax is returned when description cannot be parsed.
var ErrSyntax = errors.New("syntax error")

type kind int

const (
	kindElement kind = iota
	kindCaps
	kindRef
	kindLink
)

// item is a parsed element of description.
type item struct {
	kind    kind
	factory string
	name    string
	props   registry.Props
	node    *graph.Node
}

// Parse creates a new graph with elements of the default registry.
func Parse(description string, options ...graph.Option) (*graph.Graph, error) {
	return ParseWith(registry.Default(), description, options...)
}

// ParseWith creates a new graph with elements of the registry. The graph
// is closed if description is not valid.
func ParseWith(r *registry.Registry, description string, options ...graph.Option) (*graph.Graph, error) {
	g := graph.New(options...)
	if err := Build(g, r, description); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

// Build adds nodes of the description to existing graph and links them.
// References can point to nodes declared anywhere in the description or
// already added to the graph.
func Build(g *graph.Graph, r *registry.Registry, description string) error {
	items, err := parse(tokenize(description))
	if err != nil {
		return err
	}
	for _, it := range items {
		switch it.kind {
		case kindElement, kindCaps:
			n, err := r.Make(it.factory, it.name, it.props)
			if err != nil {
				return err
			}
			if err := g.AddNode(n); err != nil {
				return err
			}
			it.node = n
		}
	}
	var (
		prev *graph.Node
		link bool
	)
	for _, it := range items {
		if it.kind == kindLink {
			link = true
			continue
		}
		n := it.node
		if it.kind == kindRef {
			if n, err = g.Node(it.name); err != nil {
				return fmt.Errorf("reference %s.: %w", it.name, err)
			}
		}
		if link {
			if err := linkNodes(g, prev, n); err != nil {
				return err
			}
		}
		prev, link = n, false
	}
	return nil
}

// parse groups tokens into items and validates the chains.
func parse(tokens []string) ([]*item, error) {
	var (
		items []*item
		last  *item
	)
	for _, t := range tokens {
		switch {
		case t == "!":
			if last == nil || last.kind == kindLink {
				return nil, fmt.Errorf("%w: unexpected link", ErrSyntax)
			}
			last = &item{kind: kindLink}
		case isCaps(t):
			last = &item{kind: kindCaps, factory: "capsfilter", props: registry.Props{"caps": t}}
		case isProperty(t):
			if last == nil || last.kind != kindElement {
				return nil, fmt.Errorf("%w: property %q without element", ErrSyntax, t)
			}
			key, value, _ := strings.Cut(t, "=")
			if key == "name" {
				if value == "" {
					return nil, fmt.Errorf("%w: empty name", ErrSyntax)
				}
				last.name = value
				continue
			}
			last.props[key] = value
			continue
		case strings.HasSuffix(t, "."):
			name := strings.TrimSuffix(t, ".")
			if name == "" || strings.Contains(name, ".") {
				return nil, fmt.Errorf("%w: invalid reference %q", ErrSyntax, t)
			}
			last = &item{kind: kindRef, name: name}
		case strings.Contains(t, "."):
			return nil, fmt.Errorf("%w: pad references are not supported %q", ErrSyntax, t)
		default:
			last = &item{kind: kindElement, factory: t, props: registry.Props{}}
		}
		items = append(items, last)
	}
	if last != nil && last.kind == kindLink {
		return nil, fmt.Errorf("%w: dangling link", ErrSyntax)
	}
	return items, nil
}

// isCaps returns true if token is a media type with optional fields.
func isCaps(t string) bool {
	head := t
	if i := strings.IndexAny(t, "=,"); i >= 0 {
		head = t[:i]
	}
	return strings.Contains(head, "/")
}

func isProperty(t string) bool {
	i := strings.IndexByte(t, '=')
	return i > 0
}

// tokenize splits description by spaces and links. Double quotes are
// removed.
func tokenize(s string) []string {
	var (
		tokens []string
		b      strings.Builder
		quoted bool
	)
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, c := range s {
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
			b.WriteRune(c)
		case c == '!':
			flush()
			tokens = append(tokens, "!")
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			flush()
		default:
			b.WriteRune(c)
		}
	}
	flush()
	return tokens
}
