// Package registry maps factory names to element constructors. Launch
// descriptions and configuration files create nodes through it.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"pipelined.dev/graph"
	"pipelined.dev/graph/caps"
)

var (
	// ErrUnknownFactory is returned when factory is not registered.
	ErrUnknownFactory = errors.New("unknown factory")
	// ErrDuplicateFactory is returned when factory name is already taken.
	ErrDuplicateFactory = errors.New("factory already registered")
	// ErrUnknownProperty is returned when element has no such property.
	ErrUnknownProperty = errors.New("unknown property")
	// ErrInvalidProperty is returned when property value cannot be parsed.
	ErrInvalidProperty = errors.New("invalid property")
)

// Props are string properties of the element, as they appear in launch
// descriptions.
type Props map[string]string

// Factory creates a new element from properties.
type Factory func(props Props) (graph.Element, error)

// Registry holds element factories. It's safe for concurrent use.
type Registry struct {
	m         sync.RWMutex
	factories map[string]Factory
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds the factory.
func (r *Registry) Register(name string, f Factory) error {
	r.m.Lock()
	defer r.m.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("register %s: %w", name, ErrDuplicateFactory)
	}
	r.factories[name] = f
	return nil
}

// Factories returns sorted names of registered factories.
func (r *Registry) Factories() []string {
	r.m.RLock()
	defer r.m.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Make creates a new node with the element of the factory. If name is
// empty, it's generated.
func (r *Registry) Make(factory, name string, props Props) (*graph.Node, error) {
	r.m.RLock()
	f, ok := r.factories[factory]
	r.m.RUnlock()
	if !ok {
		return nil, fmt.Errorf("make %s: %w", factory, ErrUnknownFactory)
	}
	if props == nil {
		props = Props{}
	}
	e, err := f(props)
	if err != nil {
		return nil, fmt.Errorf("make %s: %w", factory, err)
	}
	return graph.NewNode(name, e), nil
}

// Describe returns the class of the factory element. Properties are
// needed for factories with required ones.
func (r *Registry) Describe(factory string, props Props) (graph.Class, error) {
	n, err := r.Make(factory, "", props)
	if err != nil {
		return graph.Class{}, err
	}
	return n.Class(), nil
}

// Only returns error if properties contain keys not listed.
func (p Props) Only(keys ...string) error {
	for k := range p {
		found := false
		for _, key := range keys {
			if k == key {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: %w", k, ErrUnknownProperty)
		}
	}
	return nil
}

// String returns the property or default value.
func (p Props) String(key, def string) string {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int returns the property parsed as int or default value.
func (p Props) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalid(key, v, err)
	}
	return i, nil
}

// Float returns the property parsed as float or default value.
func (p Props) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, invalid(key, v, err)
	}
	return f, nil
}

// Bool returns the property parsed as bool or default value.
func (p Props) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, invalid(key, v, err)
	}
	return b, nil
}

// Caps returns the property parsed as caps or default value.
func (p Props) Caps(key string, def caps.Caps) (caps.Caps, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	c, err := caps.Parse(v)
	if err != nil {
		return caps.Caps{}, invalid(key, v, err)
	}
	return c, nil
}

func invalid(key, value string, err error) error {
	return fmt.Errorf("%s=%q: %v: %w", key, value, err, ErrInvalidProperty)
}
