// Package state defines the lifecycle shared by graph nodes and the graph
// itself.
//
// States are totally ordered:
//
//	Null < Ready < Paused < Playing
//
// A requested change is always executed as a sequence of single steps, see
// Steps. Every step returns a Return value describing how it completed.
package state

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned if a method cannot be executed in the
// current state.
var ErrInvalidState = errors.New("invalid state")

// State identifies one of the possible states a node can be in.
type State int

// states
const (
	// VoidPending is used as pending state when no transition is in
	// progress.
	VoidPending State = iota
	// Null is the initial state. No resources are allocated.
	Null
	// Ready means resources are allocated, but no data is processed.
	Ready
	// Paused means the node accepts and prerolls data, but does not render
	// it.
	Paused
	// Playing means the data flows.
	Playing
)

// String returns the nick of the state.
func (s State) String() string {
	switch s {
	case VoidPending:
		return "VOID_PENDING"
	case Null:
		return "NULL"
	case Ready:
		return "READY"
	case Paused:
		return "PAUSED"
	case Playing:
		return "PLAYING"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Valid reports if the state is one of Null, Ready, Paused or Playing.
func (s State) Valid() bool {
	return s >= Null && s <= Playing
}

// Change is a single step between two adjacent states.
type Change struct {
	From State
	To   State
}

// predefined steps
var (
	NullToReady      = Change{From: Null, To: Ready}
	ReadyToPaused    = Change{From: Ready, To: Paused}
	PausedToPlaying  = Change{From: Paused, To: Playing}
	PlayingToPaused  = Change{From: Playing, To: Paused}
	PausedToReady    = Change{From: Paused, To: Ready}
	ReadyToNull      = Change{From: Ready, To: Null}
	changesByUpwards = map[bool][]Change{
		true:  {NullToReady, ReadyToPaused, PausedToPlaying},
		false: {PlayingToPaused, PausedToReady, ReadyToNull},
	}
)

// Upward reports if the change goes towards Playing.
func (c Change) Upward() bool {
	return c.To > c.From
}

// Reverse returns the opposite step.
func (c Change) Reverse() Change {
	return Change{From: c.To, To: c.From}
}

func (c Change) String() string {
	return fmt.Sprintf("%v->%v", c.From, c.To)
}

// Steps returns the ordered list of single steps needed to go from one
// state to another. Empty slice is returned if states are equal.
func Steps(from, to State) []Change {
	if !from.Valid() || !to.Valid() || from == to {
		return nil
	}
	up := to > from
	steps := make([]Change, 0, 3)
	for _, c := range changesByUpwards[up] {
		if up && c.From >= from && c.To <= to {
			steps = append(steps, c)
		}
		if !up && c.From <= from && c.To >= to {
			steps = append(steps, c)
		}
	}
	return steps
}

// Next returns the first step from one state towards another. False is
// returned if the states are equal.
func Next(from, to State) (Change, bool) {
	steps := Steps(from, to)
	if len(steps) == 0 {
		return Change{}, false
	}
	return steps[0], true
}

// Return is the result of a state change.
type Return int

// state change results
const (
	// Failure aborts the requested change.
	Failure Return = iota
	// Success means the change completed synchronously.
	Success
	// Async means the change will complete later. The node is responsible
	// for reporting completion.
	Async
	// NoPreroll is returned by live sources. It's treated as Success, but
	// sinks are not waited for preroll.
	NoPreroll
)

func (r Return) String() string {
	switch r {
	case Failure:
		return "FAILURE"
	case Success:
		return "SUCCESS"
	case Async:
		return "ASYNC"
	case NoPreroll:
		return "NO_PREROLL"
	}
	return fmt.Sprintf("Return(%d)", int(r))
}
