package graph

import (
	"fmt"
	"time"

	"pipelined.dev/graph/state"
)

// Format of seek and query values.
type Format int

// formats
const (
	FormatDefault Format = iota
	FormatBytes
	FormatTime
)

func (f Format) String() string {
	switch f {
	case FormatDefault:
		return "default"
	case FormatBytes:
		return "bytes"
	case FormatTime:
		return "time"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// SeekFlags modify seek behavior.
type SeekFlags int

// seek flags
const (
	SeekFlagNone SeekFlags = 0
	// SeekFlagFlush drops all queued data and restarts streaming from the
	// new position.
	SeekFlagFlush SeekFlags = 1 << iota
	// SeekFlagKeyUnit allows to seek to the nearest key unit.
	SeekFlagKeyUnit
	// SeekFlagAccurate requests exact position.
	SeekFlagAccurate
)

// SeekEvent describes requested position.
type SeekEvent struct {
	Format   Format
	Flags    SeekFlags
	Position time.Duration
}

// Seek changes the playback position. Graph must be at least PAUSED and
// only FormatTime is supported. False is returned if no node could
// handle the seek.
func (g *Graph) Seek(format Format, flags SeekFlags, position time.Duration) bool {
	return g.call(request{
		kind: seekRequest,
		seek: SeekEvent{Format: format, Flags: flags, Position: position},
	}).ok
}

func (g *Graph) seek(s SeekEvent) bool {
	if s.Format != FormatTime || s.Position < 0 || g.State() < state.Paused {
		return false
	}
	nodes := order(g.Nodes(), false)
	var seekers []*Node
	for _, n := range nodes {
		if _, ok := n.element.(Seeker); ok {
			seekers = append(seekers, n)
		}
	}
	if len(seekers) == 0 {
		return false
	}
	g.log.Debugf("seek %v flags %b", s.Position, s.Flags)

	// flushing seek restarts whole graph, otherwise only seekers.
	restart := seekers
	if s.Flags&SeekFlagFlush != 0 {
		restart = nil
		for _, n := range nodes {
			if n.active() {
				restart = append(restart, n)
			}
		}
	}
	for _, n := range restart {
		n.deactivate()
	}
	ok := false
	for _, n := range seekers {
		if n.element.(Seeker).Seek(n, s) {
			ok = true
		}
	}
	if s.Flags&SeekFlagFlush != 0 {
		g.resetEOS()
		for _, n := range nodes {
			if n.class.Behavior.terminal() {
				n.reset(s.Position)
			}
		}
	} else {
		for _, n := range seekers {
			for _, p := range n.SrcPads() {
				if l := p.Link(); l != nil {
					l.setResult(FlowOK)
				}
			}
		}
	}
	for i := len(restart) - 1; i >= 0; i-- {
		n := restart[i]
		if err := n.activate(); err != nil {
			n.PostError(fmt.Errorf("seek: %w", err), fmt.Sprintf("node %s failed to restart after seek", n.name))
		}
	}
	return ok
}

// QueryPosition returns the stream position. It's the position of the
// terminal node that advanced the most.
func (g *Graph) QueryPosition() (time.Duration, bool) {
	position, found := time.Duration(0), false
	for _, n := range g.Nodes() {
		if !n.class.Behavior.terminal() {
			continue
		}
		if p, ok := n.Position(); ok && (!found || p > position) {
			position, found = p, true
		}
	}
	return position, found
}

// QueryDuration returns the longest stream duration reported by producer
// nodes.
func (g *Graph) QueryDuration() (time.Duration, bool) {
	duration, found := time.Duration(0), false
	for _, n := range g.Nodes() {
		if !n.class.Behavior.producer() {
			continue
		}
		q, ok := n.element.(DurationQuerier)
		if !ok {
			continue
		}
		if d, ok := q.Duration(n); ok && (!found || d > duration) {
			duration, found = d, true
		}
	}
	return duration, found
}

// QuerySeekable reports if graph can seek and in which range.
func (g *Graph) QuerySeekable() (bool, time.Duration, time.Duration) {
	for _, n := range order(g.Nodes(), false) {
		s, ok := n.element.(Seeker)
		if !ok {
			continue
		}
		if start, end, ok := s.Seekable(n); ok {
			return true, start, end
		}
	}
	return false, 0, 0
}
