package app_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/graph"
	"pipelined.dev/graph/app"
	"pipelined.dev/graph/bus"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/state"
)

const timeout = 5 * time.Second

var rawCaps = caps.MustParse("audio/x-raw, format=S16LE, rate=8000, channels=1")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type handler struct {
	m       sync.Mutex
	need    []int
	enough  int
	samples int
}

func (h *handler) NeedData(_ *app.Source, size int) {
	h.m.Lock()
	h.need = append(h.need, size)
	h.m.Unlock()
}

func (h *handler) EnoughData(*app.Source) {
	h.m.Lock()
	h.enough++
	h.m.Unlock()
}

func (h *handler) NewSample(*app.Sink) {
	h.m.Lock()
	h.samples++
	h.m.Unlock()
}

func (h *handler) SeekData(*app.Source, time.Duration) bool {
	return true
}

func (h *handler) counts() ([]int, int, int) {
	h.m.Lock()
	defer h.m.Unlock()
	return append([]int(nil), h.need...), h.enough, h.samples
}

func bridge(t *testing.T, src *app.Source, sink *app.Sink) *graph.Graph {
	t.Helper()
	g := graph.New()
	srcNode, sinkNode := graph.NewNode("src", src), graph.NewNode("sink", sink)
	require.NoError(t, g.Add(srcNode, sinkNode))
	_, err := g.LinkNodes(srcNode, sinkNode)
	require.NoError(t, err)
	return g
}

func buffer(offset int) graph.Buffer {
	b := graph.NewBuffer([]byte{byte(offset), 0})
	b.Offset = int64(offset)
	return b
}

func waitEOS(t *testing.T, g *graph.Graph) {
	t.Helper()
	m, ok := g.Bus().Pop(bus.Error|bus.EOS, timeout)
	require.True(t, ok, "eos not posted")
	require.Equal(t, bus.EOS, m.Type, m.String())
}

func TestInactive(t *testing.T) {
	src := app.NewSource(rawCaps)
	assert.Equal(t, graph.FlowFlushing, src.Push(buffer(0)))
	assert.Equal(t, graph.FlowFlushing, src.EndOfStream())
	assert.Equal(t, 0, src.Level())

	sink := app.NewSink(caps.Any())
	_, ok := sink.Pull()
	assert.False(t, ok)
	assert.False(t, sink.IsEOS())
}

func TestBridge(t *testing.T) {
	h := &handler{}
	src := app.NewSource(rawCaps, app.WithHandler(h))
	sink := app.NewSink(caps.Any(), app.WithSinkHandler(h))
	g := bridge(t, src, sink)
	defer g.Close()

	ret, err := g.SetState(state.Playing)
	require.NoError(t, err)
	assert.Equal(t, state.Async, ret)
	_, ok := sink.TryPull(10 * time.Millisecond)
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		require.Equal(t, graph.FlowOK, src.Push(buffer(i)))
	}
	require.Equal(t, graph.FlowOK, src.EndOfStream())
	assert.Equal(t, graph.FlowEOS, src.Push(buffer(5)))

	for i := 0; i < 5; i++ {
		b, ok := sink.Pull()
		require.True(t, ok)
		assert.Equal(t, int64(i), b.Offset)
	}
	_, ok = sink.Pull()
	assert.False(t, ok)
	assert.True(t, sink.IsEOS())
	waitEOS(t, g)

	ret, current, pending := g.GetState(timeout)
	assert.Equal(t, state.Success, ret)
	assert.Equal(t, state.Playing, current)
	assert.Equal(t, state.VoidPending, pending)
	need, _, samples := h.counts()
	assert.Equal(t, app.DefaultMaxBuffers, need[0])
	assert.Equal(t, 5, samples)
}

func TestSourceSaturation(t *testing.T) {
	h := &handler{}
	src := app.NewSource(rawCaps, app.WithLive(), app.WithMaxBuffers(2), app.WithHandler(h))
	sink := app.NewSink(caps.Any())
	g := bridge(t, src, sink)
	defer g.Close()

	// live source doesn't push in PAUSED.
	ret, err := g.SetState(state.Paused)
	require.NoError(t, err)
	assert.Equal(t, state.NoPreroll, ret)

	for i := 0; i < 4; i++ {
		require.Equal(t, graph.FlowOK, src.Push(buffer(i)))
		_, enough, _ := h.counts()
		if i == 0 {
			assert.Equal(t, 0, enough)
		} else {
			assert.Equal(t, 1, enough)
		}
	}
	assert.Equal(t, graph.FlowOK, src.Push(buffer(4)))
	assert.Equal(t, graph.FlowOK, src.Push(buffer(5)))
	assert.Equal(t, 2, src.Dropped())
	assert.Equal(t, 4, src.Level())

	m, ok := g.Bus().Pop(bus.Warning, timeout)
	require.True(t, ok)
	assert.Equal(t, "src", m.Source)
	err, _ = m.ParseError()
	assert.True(t, errors.Is(err, app.ErrSaturated))
	_, ok = g.Bus().Pop(bus.Warning, 0)
	assert.False(t, ok, "warning must be posted once")

	_, err = g.SetState(state.Playing)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		b, ok := sink.Pull()
		require.True(t, ok)
		assert.Equal(t, int64(i), b.Offset)
	}
	assert.Eventually(t, func() bool {
		need, _, _ := h.counts()
		return len(need) > 0
	}, timeout, time.Millisecond)
	need, _, _ := h.counts()
	assert.Equal(t, []int{2}, need)

	require.Equal(t, graph.FlowOK, src.EndOfStream())
	waitEOS(t, g)
}

func TestSourceBlock(t *testing.T) {
	src := app.NewSource(rawCaps, app.WithLive(), app.WithMaxBuffers(1), app.WithBlock())
	g := bridge(t, src, app.NewSink(caps.Any()))
	defer g.Close()

	_, err := g.SetState(state.Paused)
	require.NoError(t, err)
	require.Equal(t, graph.FlowOK, src.Push(buffer(0)))
	require.Equal(t, graph.FlowOK, src.Push(buffer(1)))

	result := make(chan graph.FlowResult)
	go func() {
		result <- src.Push(buffer(2))
	}()
	select {
	case r := <-result:
		t.Fatalf("push must block, got %v", r)
	case <-time.After(50 * time.Millisecond):
	}

	_, err = g.SetState(state.Ready)
	require.NoError(t, err)
	select {
	case r := <-result:
		assert.Equal(t, graph.FlowFlushing, r)
	case <-time.After(timeout):
		t.Fatal("push is still blocked")
	}
	assert.Equal(t, 0, src.Dropped())
}

func TestSinkDrop(t *testing.T) {
	h := &handler{}
	src := app.NewSource(rawCaps)
	sink := app.NewSink(caps.Any(), app.WithSinkMaxBuffers(2), app.WithDrop(), app.WithSinkHandler(h))
	g := bridge(t, src, sink)
	defer g.Close()

	_, err := g.SetState(state.Playing)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.Equal(t, graph.FlowOK, src.Push(buffer(i)))
	}
	require.Equal(t, graph.FlowOK, src.EndOfStream())
	waitEOS(t, g)

	assert.Equal(t, 2, sink.Level())
	assert.Equal(t, 3, sink.Dropped())
	_, _, samples := h.counts()
	assert.Equal(t, 5, samples)
	for _, offset := range []int64{3, 4} {
		b, ok := sink.Pull()
		require.True(t, ok)
		assert.Equal(t, offset, b.Offset)
	}
	assert.True(t, sink.IsEOS())
}

func TestDuration(t *testing.T) {
	h := &handler{}
	src := app.NewSource(rawCaps, app.WithDuration(time.Second), app.WithHandler(h))
	g := bridge(t, src, app.NewSink(caps.Any()))
	defer g.Close()

	d, ok := g.QueryDuration()
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
	seekable, start, end := g.QuerySeekable()
	assert.True(t, seekable)
	assert.Equal(t, time.Duration(0), start)
	assert.Equal(t, time.Second, end)

	_, err := g.SetState(state.Ready)
	require.NoError(t, err)
	src.SetDuration(2 * time.Second)
	m, ok := g.Bus().Pop(bus.DurationChanged, timeout)
	require.True(t, ok)
	assert.Equal(t, "src", m.Source)
	assert.Equal(t, 2*time.Second, m.ParseDurationChanged())
	d, _ = g.QueryDuration()
	assert.Equal(t, 2*time.Second, d)
}
