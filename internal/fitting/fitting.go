// Package fitting provides the bounded channel that connects two pads.
package fitting

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrFlushing is returned when fitting doesn't accept messages.
	ErrFlushing = errors.New("fitting is flushing")
	// ErrClosed is returned when fitting is closed.
	ErrClosed = errors.New("fitting is closed")
)

type (
	// Sender sends the message.
	Sender[T any] interface {
		Send(done <-chan struct{}, m T) error
		Close()
	}

	// Receiver receives the message.
	Receiver[T any] interface {
		Receive(context.Context) (T, bool)
	}

	// Fitting implements both Sender and Receiver. It's used to connect
	// pads that are executed in different goroutines. New fitting is
	// flushing until Unflush is called.
	Fitting[T any] struct {
		messages chan T
		closed   chan struct{}
		once     sync.Once

		m        sync.Mutex
		flushing chan struct{}
	}
)

var (
	_ Sender[int]   = (*Fitting[int])(nil)
	_ Receiver[int] = (*Fitting[int])(nil)
)

// New returns a fitting that can hold up to depth messages.
func New[T any](depth int) *Fitting[T] {
	if depth < 1 {
		depth = 1
	}
	flushing := make(chan struct{})
	close(flushing)
	return &Fitting[T]{
		messages: make(chan T, depth),
		closed:   make(chan struct{}),
		flushing: flushing,
	}
}

// Send puts the message into the fitting. It blocks while fitting is full.
// Send is interrupted when fitting starts flushing, is closed or done is
// closed.
func (f *Fitting[T]) Send(done <-chan struct{}, m T) error {
	f.m.Lock()
	flushing := f.flushing
	f.m.Unlock()
	// fail fast, select below is random.
	select {
	case <-f.closed:
		return ErrClosed
	case <-flushing:
		return ErrFlushing
	case <-done:
		return ErrFlushing
	default:
	}
	select {
	case f.messages <- m:
		return nil
	case <-f.closed:
		return ErrClosed
	case <-flushing:
		return ErrFlushing
	case <-done:
		return ErrFlushing
	}
}

// Receive returns the next message. False is returned if context is done
// or fitting is closed.
func (f *Fitting[T]) Receive(ctx context.Context) (T, bool) {
	var m T
	select {
	case <-ctx.Done():
		return m, false
	case <-f.closed:
		return m, false
	case m = <-f.messages:
		return m, true
	}
}

// Flush makes fitting reject new messages and drops all queued ones.
// Number of dropped messages is returned.
func (f *Fitting[T]) Flush() int {
	f.m.Lock()
	select {
	case <-f.flushing:
	default:
		close(f.flushing)
	}
	f.m.Unlock()
	return f.drop()
}

// Unflush drops all queued messages and makes fitting accept new ones.
func (f *Fitting[T]) Unflush() {
	f.drop()
	f.m.Lock()
	select {
	case <-f.flushing:
		f.flushing = make(chan struct{})
	default:
	}
	f.m.Unlock()
}

// Flushing reports if fitting rejects messages.
func (f *Fitting[T]) Flushing() bool {
	f.m.Lock()
	defer f.m.Unlock()
	select {
	case <-f.flushing:
		return true
	default:
		return false
	}
}

// Close the fitting. All blocked senders and receivers are released.
// Consequent calls do nothing.
func (f *Fitting[T]) Close() {
	f.once.Do(func() {
		close(f.closed)
	})
}

// Closed returns a channel that is closed when fitting is closed.
func (f *Fitting[T]) Closed() <-chan struct{} {
	return f.closed
}

// Len returns number of queued messages.
func (f *Fitting[T]) Len() int {
	return len(f.messages)
}

// Cap returns fitting depth.
func (f *Fitting[T]) Cap() int {
	return cap(f.messages)
}

func (f *Fitting[T]) drop() int {
	n := 0
	for {
		select {
		case <-f.messages:
			n++
		default:
			return n
		}
	}
}
