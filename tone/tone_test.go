package tone_test

import (
	"math"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/graph"
	"pipelined.dev/graph/bus"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/mock"
	"pipelined.dev/graph/signal"
	"pipelined.dev/graph/state"
	"pipelined.dev/graph/tone"
)

const timeout = 5 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTone(numBuffers int) *tone.Source {
	s := tone.NewSource()
	s.SampleRate = 8000
	s.SamplesPerBuffer = 800
	s.NumBuffers = numBuffers
	return s
}

func newGraph(t *testing.T, src graph.Element, sink graph.Element) *graph.Graph {
	t.Helper()
	g := graph.New()
	srcNode, sinkNode := graph.NewNode("src", src), graph.NewNode("sink", sink)
	require.NoError(t, g.Add(srcNode, sinkNode))
	_, err := g.LinkNodes(srcNode, sinkNode)
	require.NoError(t, err)
	return g
}

func waitEOS(t *testing.T, g *graph.Graph) {
	t.Helper()
	m, ok := g.Bus().Pop(bus.Error|bus.EOS, timeout)
	require.True(t, ok, "eos not posted")
	require.Equal(t, bus.EOS, m.Type, m.String())
}

func TestTone(t *testing.T) {
	tests := []struct {
		description string
		channels    int
		numBuffers  int
		volume      float64
	}{
		{
			description: "mono",
			channels:    1,
			numBuffers:  3,
			volume:      0.5,
		},
		{
			description: "stereo",
			channels:    2,
			numBuffers:  5,
			volume:      1,
		},
	}
	for _, test := range tests {
		func() {
			src := newTone(test.numBuffers)
			src.Channels, src.Volume = test.channels, test.volume
			sinkMock := &mock.Sink{Caps: caps.MustParse("audio/x-raw, rate=[8000, 48000]")}
			g := newGraph(t, src, sinkMock)
			defer g.Close()

			l := g.Links()[0]
			assert.True(t, src.Caps().Equal(l.Caps()), test.description)

			_, err := g.SetState(state.Playing)
			require.NoError(t, err, test.description)
			waitEOS(t, g)

			buffers := sinkMock.Buffers()
			require.Len(t, buffers, test.numBuffers, test.description)
			format := &audio.Format{NumChannels: test.channels, SampleRate: 8000}
			for i, b := range buffers {
				assert.Equal(t, time.Duration(i)*100*time.Millisecond, b.PTS, test.description)
				assert.Equal(t, 100*time.Millisecond, b.Duration, test.description)
				assert.Equal(t, int64(i*800), b.Offset, test.description)
				assert.Equal(t, 800, signal.Frames(b.Data, test.channels), test.description)

				ib := signal.Decode(b.Data, format, signal.BitDepth16)
				for j, v := range ib.Data {
					assert.LessOrEqual(t, math.Abs(float64(v)), test.volume*math.MaxInt16, test.description)
					if j%test.channels != 0 {
						assert.Equal(t, ib.Data[j-1], v, "%s: channels differ", test.description)
					}
				}
			}
			first := signal.Decode(buffers[0].Data, format, signal.BitDepth16)
			assert.Equal(t, 0, first.Data[0], test.description)

			position, ok := g.QueryPosition()
			assert.True(t, ok)
			assert.Equal(t, time.Duration(test.numBuffers)*100*time.Millisecond, position, test.description)
		}()
	}
}

func TestSeek(t *testing.T) {
	sinkMock := &mock.Sink{}
	g := newGraph(t, newTone(10), sinkMock)
	defer g.Close()

	duration, ok := g.QueryDuration()
	assert.True(t, ok)
	assert.Equal(t, time.Second, duration)

	_, err := g.SetState(state.Paused)
	require.NoError(t, err)
	ret, _, _ := g.GetState(timeout)
	require.Equal(t, state.Success, ret)

	assert.True(t, g.Seek(graph.FormatTime, graph.SeekFlagFlush|graph.SeekFlagKeyUnit, 750*time.Millisecond))
	_, err = g.SetState(state.Playing)
	require.NoError(t, err)
	waitEOS(t, g)

	buffers := sinkMock.Buffers()
	require.Len(t, buffers, 3)
	assert.Equal(t, 700*time.Millisecond, buffers[0].PTS)
	assert.Equal(t, int64(5600), buffers[0].Offset)
}

func TestUnbounded(t *testing.T) {
	src := newTone(0)
	sinkMock := &mock.Sink{}
	g := newGraph(t, src, sinkMock)
	defer g.Close()

	_, ok := g.QueryDuration()
	assert.False(t, ok)
	seekable, _, _ := g.QuerySeekable()
	assert.False(t, seekable)

	_, err := g.SetState(state.Playing)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		buffers, _ := sinkMock.Count()
		return buffers >= 20
	}, timeout, time.Millisecond)
	_, err = g.SetState(state.Null)
	require.NoError(t, err)
	_, ok = g.Bus().Pop(bus.EOS, 0)
	assert.False(t, ok)
}

func TestLive(t *testing.T) {
	src := newTone(2)
	// 10 buffers per second.
	src.Live = true
	sinkMock := &mock.Sink{}
	g := newGraph(t, src, sinkMock)
	defer g.Close()

	seekable, _, _ := g.QuerySeekable()
	assert.False(t, seekable)
	ret, err := g.SetState(state.Paused)
	require.NoError(t, err)
	assert.Equal(t, state.NoPreroll, ret)
	time.Sleep(20 * time.Millisecond)
	buffers, _ := sinkMock.Count()
	assert.Zero(t, buffers)

	start := time.Now()
	_, err = g.SetState(state.Playing)
	require.NoError(t, err)
	waitEOS(t, g)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	buffers, _ = sinkMock.Count()
	assert.Equal(t, 2, buffers)
}
