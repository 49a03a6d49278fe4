package bus_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/graph/bus"
	"pipelined.dev/graph/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPopFilter(t *testing.T) {
	b := bus.New()
	b.Post(bus.NewStateChanged("graph", state.Null, state.Ready, state.Playing))
	b.Post(bus.NewApplication("app", 1))
	b.Post(bus.NewEOS("graph"))
	b.Post(bus.NewApplication("app", 2))

	m, ok := b.Pop(bus.Error|bus.EOS, 0)
	require.True(t, ok)
	assert.Equal(t, bus.EOS, m.Type)
	assert.Equal(t, uint64(3), m.Seq)
	assert.Equal(t, 3, b.Len())

	// skipped messages remain in order.
	m, ok = b.Pop(bus.Application, 0)
	require.True(t, ok)
	assert.Equal(t, 1, m.ParseApplication())
	m, ok = b.Pop(bus.Any, 0)
	require.True(t, ok)
	assert.Equal(t, bus.StateChanged, m.Type)
	old, new, pending := m.ParseStateChanged()
	assert.Equal(t, state.Null, old)
	assert.Equal(t, state.Ready, new)
	assert.Equal(t, state.Playing, pending)
	m, ok = b.Pop(bus.Any, 0)
	require.True(t, ok)
	assert.Equal(t, 2, m.ParseApplication())

	_, ok = b.Pop(bus.Any, 0)
	assert.False(t, ok)
}

func TestPopTimeout(t *testing.T) {
	b := bus.New()
	b.Post(bus.NewApplication("app", nil))
	start := time.Now()
	_, ok := b.Pop(bus.EOS, 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, 1, b.Len())
}

func TestPopForever(t *testing.T) {
	b := bus.New()
	done := make(chan bus.Message)
	go func() {
		m, _ := b.Pop(bus.Error|bus.EOS, bus.Forever)
		done <- m
	}()
	b.Post(bus.NewApplication("app", nil))
	b.Post(bus.NewStateChanged("src", state.Ready, state.Paused, state.VoidPending))
	time.Sleep(10 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("pop returned without matching message")
	default:
	}
	b.Post(bus.NewError("src", errors.New("internal data stream error"), "flow error"))
	m := <-done
	assert.Equal(t, bus.Error, m.Type)
	assert.Equal(t, "src", m.Source)
	err, debug := m.ParseError()
	assert.EqualError(t, err, "internal data stream error")
	assert.Equal(t, "flow error", debug)
	assert.Equal(t, 2, b.Len())
}

func TestPopContext(t *testing.T) {
	b := bus.New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.PopContext(ctx, bus.Any)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	b.Post(bus.NewDurationChanged("src", time.Second))
	m, err := b.PopContext(context.Background(), bus.DurationChanged)
	assert.NoError(t, err)
	assert.Equal(t, time.Second, m.ParseDurationChanged())
}

func TestConcurrentPost(t *testing.T) {
	const (
		posters  = 8
		messages = 100
	)
	b := bus.New()
	var wg sync.WaitGroup
	wg.Add(posters)
	for i := 0; i < posters; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < messages; j++ {
				b.Post(bus.NewApplication("app", j))
			}
		}()
	}
	received := 0
	var last uint64
	for received < posters*messages {
		m, ok := b.Pop(bus.Application, time.Second)
		require.True(t, ok)
		assert.Greater(t, m.Seq, last)
		last = m.Seq
		received++
	}
	wg.Wait()
	assert.Equal(t, 0, b.Len())
}

func TestPeekFlush(t *testing.T) {
	b := bus.New()
	b.Post(bus.NewAsyncDone("sink"))
	b.Post(bus.NewReconfigure("sink"))
	m, ok := b.Peek(bus.Reconfigure)
	assert.True(t, ok)
	assert.Equal(t, bus.Reconfigure, m.Type)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 2, b.Flush())
	assert.Equal(t, 0, b.Len())
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "ERROR|EOS", (bus.Error | bus.EOS).String())
	assert.Equal(t, "ANY", bus.Any.String())
	assert.Equal(t, "Type(0)", bus.Type(0).String())
}
