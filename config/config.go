// Package config loads graph descriptions from YAML files.
//
//	name: monitor
//	link-depth: 8
//	log-level: info
//	launch: tonesrc num-buffers=100 ! tee name=t ! queue ! fakesink
//	nodes:
//	  - name: out
//	    factory: appsink
//	    props:
//	      max-buffers: "10"
//	links:
//	  - src: t
//	    sink: out
//
// Launch line and explicit nodes can be combined. Links can reference
// nodes of both.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"pipelined.dev/graph"
	"pipelined.dev/graph/launch"
	"pipelined.dev/graph/log"
	"pipelined.dev/graph/registry"
)

// ErrInvalid is returned when config doesn't describe a graph.
var ErrInvalid = errors.New("invalid config")

// Config describes the graph.
type Config struct {
	Name      string `yaml:"name"`
	LinkDepth int    `yaml:"link-depth"`
	LogLevel  string `yaml:"log-level"`
	Launch    string `yaml:"launch"`
	Nodes     []Node `yaml:"nodes"`
	Links     []Link `yaml:"links"`
}

// Node is created with the factory of the registry.
type Node struct {
	Name    string            `yaml:"name"`
	Factory string            `yaml:"factory"`
	Props   map[string]string `yaml:"props"`
}

// Link connects two nodes by name.
type Link struct {
	Src  string `yaml:"src"`
	Sink string `yaml:"sink"`
}

// Load reads config from the file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Parse parses config from data.
func Parse(data []byte) (*Config, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads config from r. Unknown fields are rejected.
func Decode(r io.Reader) (*Config, error) {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	var c Config
	if err := d.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty: %w", ErrInvalid)
		}
		return nil, fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that config describes a graph.
func (c *Config) Validate() error {
	if c.Launch == "" && len(c.Nodes) == 0 {
		return fmt.Errorf("neither launch nor nodes defined: %w", ErrInvalid)
	}
	if c.LinkDepth < 0 {
		return fmt.Errorf("negative link depth %d: %w", c.LinkDepth, ErrInvalid)
	}
	names := make(map[string]struct{}, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.Factory == "" {
			return fmt.Errorf("node %d without factory: %w", i, ErrInvalid)
		}
		if n.Name == "" {
			continue
		}
		if _, ok := names[n.Name]; ok {
			return fmt.Errorf("duplicate node %s: %w", n.Name, ErrInvalid)
		}
		names[n.Name] = struct{}{}
	}
	for i, l := range c.Links {
		if l.Src == "" || l.Sink == "" {
			return fmt.Errorf("link %d without src or sink: %w", i, ErrInvalid)
		}
	}
	return nil
}

// Level returns the log level. Debug environment variable overrides the
// configured level.
func (c *Config) Level() string {
	if debug, _ := strconv.ParseBool(os.Getenv(log.DebugEnv)); debug {
		return "debug"
	}
	return c.LogLevel
}

// Options returns graph options of the config.
func (c *Config) Options() ([]graph.Option, error) {
	l, err := log.ParseLevel(c.Level())
	if err != nil {
		return nil, fmt.Errorf("log level: %v: %w", err, ErrInvalid)
	}
	options := []graph.Option{graph.WithLogger(l)}
	if c.Name != "" {
		options = append(options, graph.WithName(c.Name))
	}
	if c.LinkDepth > 0 {
		options = append(options, graph.WithLinkDepth(c.LinkDepth))
	}
	return options, nil
}

// Build creates the graph with elements of the registry. Launch line is
// built first, then nodes are added and links are made.
func (c *Config) Build(r *registry.Registry) (*graph.Graph, error) {
	options, err := c.Options()
	if err != nil {
		return nil, err
	}
	g := graph.New(options...)
	if err := c.build(g, r); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

func (c *Config) build(g *graph.Graph, r *registry.Registry) error {
	if c.Launch != "" {
		if err := launch.Build(g, r, c.Launch); err != nil {
			return fmt.Errorf("launch: %w", err)
		}
	}
	for _, n := range c.Nodes {
		node, err := r.Make(n.Factory, n.Name, n.Props)
		if err != nil {
			return err
		}
		if err := g.AddNode(node); err != nil {
			return err
		}
	}
	for _, l := range c.Links {
		if err := launch.Build(g, r, l.Src+". ! "+l.Sink+"."); err != nil {
			return fmt.Errorf("link %s to %s: %w", l.Src, l.Sink, err)
		}
	}
	return nil
}
