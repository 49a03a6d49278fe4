package bus

import (
	"fmt"
	"strings"
	"time"

	"pipelined.dev/graph/state"
)

// Type is a message type. Types are bit flags, so they can be combined into
// a filter mask.
type Type uint32

// message types
const (
	StateChanged Type = 1 << iota
	Error
	Warning
	EOS
	DurationChanged
	Application
	AsyncDone
	Reconfigure

	// Any matches every message type.
	Any Type = ^Type(0)
)

var typeNames = []struct {
	t    Type
	name string
}{
	{StateChanged, "STATE_CHANGED"},
	{Error, "ERROR"},
	{Warning, "WARNING"},
	{EOS, "EOS"},
	{DurationChanged, "DURATION_CHANGED"},
	{Application, "APPLICATION"},
	{AsyncDone, "ASYNC_DONE"},
	{Reconfigure, "RECONFIGURE"},
}

// String returns names of all types set in the mask joined with "|".
func (t Type) String() string {
	if t == Any {
		return "ANY"
	}
	var names []string
	for _, tn := range typeNames {
		if t&tn.t != 0 {
			names = append(names, tn.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("Type(%d)", uint32(t))
	}
	return strings.Join(names, "|")
}

// Message is posted on the bus by nodes and the graph. Source is the name
// of the emitter. Seq reflects the order in which messages were posted and
// is assigned by the bus.
type Message struct {
	Type   Type
	Seq    uint64
	Source string
	Time   time.Time
	body   interface{}
}

type stateChanged struct {
	old, new, pending state.State
}

type errorBody struct {
	err   error
	debug string
}

// NewStateChanged creates STATE_CHANGED message.
func NewStateChanged(source string, old, new, pending state.State) Message {
	return Message{
		Type:   StateChanged,
		Source: source,
		body:   stateChanged{old: old, new: new, pending: pending},
	}
}

// NewError creates ERROR message. Error text is the short description,
// debug is an extended information for developers.
func NewError(source string, err error, debug string) Message {
	return Message{
		Type:   Error,
		Source: source,
		body:   errorBody{err: err, debug: debug},
	}
}

// NewWarning creates WARNING message.
func NewWarning(source string, err error, debug string) Message {
	return Message{
		Type:   Warning,
		Source: source,
		body:   errorBody{err: err, debug: debug},
	}
}

// NewEOS creates EOS message.
func NewEOS(source string) Message {
	return Message{Type: EOS, Source: source}
}

// NewDurationChanged creates DURATION_CHANGED message. Duration is negative
// if unknown and should be queried.
func NewDurationChanged(source string, d time.Duration) Message {
	return Message{Type: DurationChanged, Source: source, body: d}
}

// NewApplication creates APPLICATION message with arbitrary payload.
func NewApplication(source string, payload interface{}) Message {
	return Message{Type: Application, Source: source, body: payload}
}

// NewAsyncDone creates ASYNC_DONE message.
func NewAsyncDone(source string) Message {
	return Message{Type: AsyncDone, Source: source}
}

// NewReconfigure creates RECONFIGURE message. It's posted when the link
// between two pads has to be negotiated again.
func NewReconfigure(source string) Message {
	return Message{Type: Reconfigure, Source: source}
}

// ParseStateChanged returns states of STATE_CHANGED message.
func (m Message) ParseStateChanged() (old, new, pending state.State) {
	if b, ok := m.body.(stateChanged); ok {
		return b.old, b.new, b.pending
	}
	return state.VoidPending, state.VoidPending, state.VoidPending
}

// ParseError returns error and debug info of ERROR and WARNING messages.
func (m Message) ParseError() (error, string) {
	if b, ok := m.body.(errorBody); ok {
		return b.err, b.debug
	}
	return nil, ""
}

// ParseDurationChanged returns duration of DURATION_CHANGED message.
func (m Message) ParseDurationChanged() time.Duration {
	if d, ok := m.body.(time.Duration); ok {
		return d
	}
	return -1
}

// ParseApplication returns payload of APPLICATION message.
func (m Message) ParseApplication() interface{} {
	if m.Type != Application {
		return nil
	}
	return m.body
}

func (m Message) String() string {
	switch m.Type {
	case StateChanged:
		old, new, pending := m.ParseStateChanged()
		return fmt.Sprintf("#%d %v from %s: %v->%v (pending %v)", m.Seq, m.Type, m.Source, old, new, pending)
	case Error, Warning:
		err, debug := m.ParseError()
		return fmt.Sprintf("#%d %v from %s: %v (%s)", m.Seq, m.Type, m.Source, err, debug)
	}
	return fmt.Sprintf("#%d %v from %s", m.Seq, m.Type, m.Source)
}
