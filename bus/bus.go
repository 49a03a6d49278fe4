// Package bus provides the asynchronous message queue used by the graph to
// report state changes, errors and end of stream.
//
// Any goroutine can post a message. Post never blocks and never drops
// messages. The consumer retrieves messages with Pop, filtered by type:
// only the first matching message is removed, messages of other types stay
// in the queue in their original order.
package bus

import (
	"context"
	"sync"
	"time"

	"pipelined.dev/graph/metric"
)

// Forever can be passed to Pop to block until a matching message is posted.
const Forever time.Duration = -1

// Bus is a FIFO queue of messages. Zero value is not usable, use New.
type Bus struct {
	m      sync.Mutex
	queue  []Message
	seq    uint64
	notify chan struct{}
}

// New creates a new empty bus.
func New() *Bus {
	return &Bus{
		notify: make(chan struct{}),
	}
}

// Post appends message to the queue. It's safe to call concurrently.
func (b *Bus) Post(m Message) {
	b.m.Lock()
	b.seq++
	m.Seq = b.seq
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	b.queue = append(b.queue, m)
	// wake up all waiting consumers.
	close(b.notify)
	b.notify = make(chan struct{})
	b.m.Unlock()
	metric.BusMessage(m.Type.String(), "post")
}

// Pop removes and returns the first message that matches the filter. If
// there is no such message, it waits until one is posted or timeout
// elapses. Zero timeout returns immediately, Forever blocks until the
// message arrives.
func (b *Bus) Pop(filter Type, timeout time.Duration) (Message, bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	for {
		m, ok, notify := b.take(filter)
		if ok {
			return m, true
		}
		if timeout == 0 {
			return Message{}, false
		}
		select {
		case <-notify:
		case <-expired:
			return Message{}, false
		}
	}
}

// PopContext removes and returns the first message that matches the filter.
// It blocks until the message is posted or context is done.
func (b *Bus) PopContext(ctx context.Context, filter Type) (Message, error) {
	for {
		m, ok, notify := b.take(filter)
		if ok {
			return m, nil
		}
		select {
		case <-notify:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Peek returns the first message that matches the filter without removing
// it.
func (b *Bus) Peek(filter Type) (Message, bool) {
	b.m.Lock()
	defer b.m.Unlock()
	for _, m := range b.queue {
		if m.Type&filter != 0 {
			return m, true
		}
	}
	return Message{}, false
}

// Len returns number of messages in the queue.
func (b *Bus) Len() int {
	b.m.Lock()
	defer b.m.Unlock()
	return len(b.queue)
}

// Flush removes all messages from the queue and returns number of removed
// messages.
func (b *Bus) Flush() int {
	b.m.Lock()
	defer b.m.Unlock()
	n := len(b.queue)
	b.queue = nil
	return n
}

// take removes the first matching message. If nothing is found, the
// channel to wait for the next post is returned.
func (b *Bus) take(filter Type) (Message, bool, <-chan struct{}) {
	b.m.Lock()
	defer b.m.Unlock()
	for i, m := range b.queue {
		if m.Type&filter == 0 {
			continue
		}
		copy(b.queue[i:], b.queue[i+1:])
		b.queue[len(b.queue)-1] = Message{}
		b.queue = b.queue[:len(b.queue)-1]
		metric.BusMessage(m.Type.String(), "pop")
		return m, true, nil
	}
	return Message{}, false, b.notify
}
