package graph

import (
	"fmt"
	"time"

	"pipelined.dev/graph/caps"
)

// ClockTimeNone marks unknown timestamp or duration.
const ClockTimeNone time.Duration = -1

// Buffer is a chunk of payload data flowing through links. Data must not be
// modified after the buffer is pushed, because fan-out nodes share it
// between branches.
type Buffer struct {
	Data     []byte
	PTS      time.Duration
	Duration time.Duration
	// Offset is a media-specific position, e.g. sample offset for audio.
	Offset int64
}

// NewBuffer returns a buffer with unknown timestamp and duration.
func NewBuffer(data []byte) Buffer {
	return Buffer{
		Data:     data,
		PTS:      ClockTimeNone,
		Duration: ClockTimeNone,
		Offset:   -1,
	}
}

// Copy returns a deep copy of the buffer.
func (b Buffer) Copy() Buffer {
	b.Data = append([]byte(nil), b.Data...)
	return b
}

// End returns the timestamp right after the buffer. False is returned if
// timestamp or duration is unknown.
func (b Buffer) End() (time.Duration, bool) {
	if b.PTS == ClockTimeNone {
		return ClockTimeNone, false
	}
	if b.Duration == ClockTimeNone {
		return b.PTS, true
	}
	return b.PTS + b.Duration, true
}

// FlowResult is returned by push operations.
type FlowResult int

// flow results
const (
	// FlowOK means buffer was accepted.
	FlowOK FlowResult = iota
	// FlowNotLinked means pad is not linked.
	FlowNotLinked
	// FlowFlushing means pad doesn't accept data, because it's not active
	// or seek is in progress.
	FlowFlushing
	// FlowEOS means downstream doesn't accept more data.
	FlowEOS
	// FlowError is a fatal error, the node that detected it posts ERROR
	// message on the bus.
	FlowError
)

func (r FlowResult) String() string {
	switch r {
	case FlowOK:
		return "ok"
	case FlowNotLinked:
		return "not-linked"
	case FlowFlushing:
		return "flushing"
	case FlowEOS:
		return "eos"
	case FlowError:
		return "error"
	}
	return fmt.Sprintf("FlowResult(%d)", int(r))
}

// Fatal reports if result must be reported as a streaming error.
func (r FlowResult) Fatal() bool {
	return r == FlowError || r == FlowNotLinked
}

// combine returns the result of pushing to several pads: ok if any pad
// accepted the buffer, not-linked if none is linked, otherwise the first
// failure.
func combine(results []FlowResult) FlowResult {
	if len(results) == 0 {
		return FlowNotLinked
	}
	var (
		notLinked int
		failure   = FlowOK
	)
	for _, r := range results {
		switch r {
		case FlowOK:
			return FlowOK
		case FlowNotLinked:
			notLinked++
		case FlowEOS:
		default:
			if failure == FlowOK {
				failure = r
			}
		}
	}
	switch {
	case failure != FlowOK:
		return failure
	case notLinked == len(results):
		return FlowNotLinked
	}
	return FlowEOS
}

// EventType identifies events serialized with buffers.
type EventType int

// event types
const (
	// EventEOS means no more buffers follow.
	EventEOS EventType = iota
	// EventCaps announces format of the following buffers.
	EventCaps
)

func (t EventType) String() string {
	switch t {
	case EventEOS:
		return "eos"
	case EventCaps:
		return "caps"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event flows downstream serialized with buffers.
type Event struct {
	Type EventType
	Caps caps.Caps
}

// item is a message of the link.
type item struct {
	event  *Event
	buffer Buffer
}
