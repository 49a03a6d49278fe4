package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"pipelined.dev/graph"
	"pipelined.dev/graph/bus"
	"pipelined.dev/graph/config"
	"pipelined.dev/graph/launch"
	"pipelined.dev/graph/metric"
	"pipelined.dev/graph/registry"
	"pipelined.dev/graph/state"
)

const (
	popTimeout = 100 * time.Millisecond
	popFilter  = bus.Error | bus.EOS | bus.StateChanged | bus.DurationChanged
)

var errNoDescription = errors.New("launch description or config file is required")

type launchCommand struct {
	registry *registry.Registry
	config   string
	verbose  bool
	seek     time.Duration
	metrics  string
}

func (c *launchCommand) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&c.config, "config", "c", "", "YAML file with graph description")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "dump every received message and sink pad caps on state changes")
	fs.DurationVar(&c.seek, "seek", 0, "seek to the position once graph is playing")
	fs.StringVar(&c.metrics, "metrics", "", "address to serve prometheus metrics on")
}

func (c *launchCommand) run(cmd *cobra.Command, args []string) error {
	g, err := c.build(args)
	if err != nil {
		return err
	}
	defer g.Close()
	if c.metrics != "" {
		srv := &http.Server{Addr: c.metrics, Handler: metric.Handler()}
		go srv.ListenAndServe()
		defer srv.Close()
	}
	p := player{graph: g, out: cmd.OutOrStdout(), seek: c.seek, verbose: c.verbose}
	return p.play(cmd.Context())
}

func (c *launchCommand) build(args []string) (*graph.Graph, error) {
	switch {
	case c.config != "" && len(args) > 0:
		return nil, fmt.Errorf("both config file and launch description provided")
	case c.config != "":
		cfg, err := config.Load(c.config)
		if err != nil {
			return nil, err
		}
		return cfg.Build(c.registry)
	case len(args) > 0:
		return launch.ParseWith(c.registry, strings.Join(args, " "))
	}
	return nil, errNoDescription
}

// player plays the graph and reports bus messages.
type player struct {
	graph   *graph.Graph
	out     io.Writer
	seek    time.Duration
	verbose bool

	seekable bool
	seekDone bool
	duration time.Duration
	known    bool
}

func (p *player) play(ctx context.Context) error {
	if p.verbose {
		p.printf("In %v state:\n", p.graph.State())
		printSinkCaps(p.out, p.graph)
	}
	ret, err := p.graph.SetState(state.Playing)
	if err != nil {
		return fmt.Errorf("unable to set the graph to the playing state: %w", err)
	}
	p.printf("Setting graph to PLAYING: %v\n", ret)
	p.seekDone = p.seek == 0
	for {
		select {
		case <-ctx.Done():
			p.printf("Interrupted\n")
			return nil
		default:
		}
		m, ok := p.graph.Bus().Pop(popFilter, popTimeout)
		if !ok {
			p.tick()
			continue
		}
		if p.verbose {
			spew.Fdump(p.out, m)
		}
		switch m.Type {
		case bus.Error:
			err, debug := m.ParseError()
			p.printf("Error received from %s: %v\n", m.Source, err)
			if debug != "" {
				p.printf("Debugging information: %s\n", debug)
			}
			return fmt.Errorf("%s: %w", m.Source, err)
		case bus.EOS:
			p.printf("End-Of-Stream reached.\n")
			return nil
		case bus.DurationChanged:
			p.known = false
		case bus.StateChanged:
			if m.Source == p.graph.Name() {
				p.stateChanged(m)
			}
		}
	}
}

func (p *player) stateChanged(m bus.Message) {
	old, current, _ := m.ParseStateChanged()
	p.printf("Graph state changed from %v to %v\n", old, current)
	if p.verbose {
		printSinkCaps(p.out, p.graph)
	}
	if current != state.Playing {
		return
	}
	seekable, start, end := p.graph.QuerySeekable()
	p.seekable = seekable
	if seekable {
		p.printf("Seeking is ENABLED from %v to %v\n", start, end)
	} else {
		p.printf("Seeking is DISABLED for this stream\n")
	}
}

// tick reports position and performs pending seek.
func (p *player) tick() {
	if p.graph.State() != state.Playing {
		return
	}
	position, ok := p.graph.QueryPosition()
	if !ok {
		p.printf("Could not query current position\n")
	}
	if !p.known {
		p.duration, p.known = p.graph.QueryDuration()
	}
	if ok {
		if p.known {
			p.printf("Position %v / %v\n", position, p.duration)
		} else {
			p.printf("Position %v\n", position)
		}
	}
	if p.seekable && !p.seekDone {
		p.printf("Seeking to %v\n", p.seek)
		if !p.graph.Seek(graph.FormatTime, graph.SeekFlagFlush|graph.SeekFlagKeyUnit, p.seek) {
			p.printf("Seek failed\n")
		}
		p.seekDone = true
	}
}

func (p *player) printf(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format, args...)
}
