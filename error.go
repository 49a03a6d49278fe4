package graph

import (
	"errors"
	"fmt"
	"strings"

	"pipelined.dev/graph/state"
)

var (
	// ErrDuplicateName is returned when node or pad name is already taken.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrNotFound is returned when node, pad or template doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrIncompatibleCaps is returned when pads caps don't intersect.
	ErrIncompatibleCaps = errors.New("incompatible caps")
	// ErrTemplateNotFound is returned when node doesn't have pad template
	// with requested name.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrTemplateNotRequestable is returned when pad is requested from or
	// released to the template without request presence.
	ErrTemplateNotRequestable = errors.New("template not requestable")
	// ErrAlreadyLinked is returned when pad is already linked.
	ErrAlreadyLinked = errors.New("pad already linked")
	// ErrWrongDirection is returned when pads directions don't match.
	ErrWrongDirection = errors.New("wrong pad direction")
	// ErrNotLinked is returned when pads are not linked to each other.
	ErrNotLinked = errors.New("pads not linked")
	// ErrNegotiationFailed is posted when downstream pad rejects new caps.
	ErrNegotiationFailed = errors.New("negotiation failed")
	// ErrStateChange is returned when node failed to change state.
	ErrStateChange = errors.New("state change failed")
	// ErrStreaming is matched by StreamError.
	ErrStreaming = errors.New("internal data stream error")
	// ErrClosed is returned when graph is closed.
	ErrClosed = errors.New("graph closed")
	// ErrInvalidState is returned if graph method cannot be executed in the
	// current state.
	ErrInvalidState = state.ErrInvalidState
)

// LinkError is returned when pads cannot be linked.
type LinkError struct {
	Src  string
	Sink string
	Err  error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s -> %s: %v", e.Src, e.Sink, e.Err)
}

// Unwrap returns the cause.
func (e *LinkError) Unwrap() error {
	return e.Err
}

// StreamError is posted when streaming stopped because of fatal flow
// result.
type StreamError struct {
	Node   string
	Result FlowResult
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%v: node %s, reason %v", ErrStreaming, e.Node, e.Result)
}

// Is matches ErrStreaming.
func (e *StreamError) Is(err error) bool {
	return err == ErrStreaming
}

// execErrors wraps errors that might occur when multiple nodes are
// failing.
type execErrors []error

func (e execErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Is checks if any of errors match provided sentinel error.
func (e execErrors) Is(err error) bool {
	for _, se := range e {
		if errors.Is(se, err) {
			return true
		}
	}
	return false
}

// ret returns untyped nil if error is list is empty.
func (e execErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
