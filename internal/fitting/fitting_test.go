package fitting_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"pipelined.dev/graph/internal/fitting"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSendReceive(t *testing.T) {
	f := fitting.New[int](2)
	assert.True(t, f.Flushing())
	assert.ErrorIs(t, f.Send(nil, 1), fitting.ErrFlushing)

	f.Unflush()
	assert.False(t, f.Flushing())
	assert.NoError(t, f.Send(nil, 1))
	assert.NoError(t, f.Send(nil, 2))
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, 2, f.Cap())

	m, ok := f.Receive(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 1, m)
	m, ok = f.Receive(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 2, m)
}

func TestBlockedSend(t *testing.T) {
	tests := []struct {
		description string
		interrupt   func(f *fitting.Fitting[int], done chan struct{})
		expected    error
	}{
		{
			description: "flush",
			interrupt: func(f *fitting.Fitting[int], _ chan struct{}) {
				assert.Equal(t, 1, f.Flush())
			},
			expected: fitting.ErrFlushing,
		},
		{
			description: "close",
			interrupt: func(f *fitting.Fitting[int], _ chan struct{}) {
				f.Close()
				f.Close()
			},
			expected: fitting.ErrClosed,
		},
		{
			description: "done",
			interrupt: func(_ *fitting.Fitting[int], done chan struct{}) {
				close(done)
			},
			expected: fitting.ErrFlushing,
		},
	}
	for _, test := range tests {
		f := fitting.New[int](1)
		f.Unflush()
		done := make(chan struct{})
		assert.NoError(t, f.Send(done, 1), test.description)
		errc := make(chan error)
		go func() {
			errc <- f.Send(done, 2)
		}()
		time.Sleep(5 * time.Millisecond)
		test.interrupt(f, done)
		assert.ErrorIs(t, <-errc, test.expected, test.description)
	}
}

func TestReceiveInterrupted(t *testing.T) {
	f := fitting.New[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := f.Receive(ctx)
	assert.False(t, ok)

	f.Close()
	_, ok = f.Receive(context.Background())
	assert.False(t, ok)
	select {
	case <-f.Closed():
	default:
		t.Fatal("closed channel is not closed")
	}
}

func TestUnflushDrops(t *testing.T) {
	f := fitting.New[string](4)
	f.Unflush()
	assert.NoError(t, f.Send(nil, "stale"))
	f.Flush()
	f.Unflush()
	assert.Equal(t, 0, f.Len())
}
