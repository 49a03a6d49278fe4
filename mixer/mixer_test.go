package mixer_test

import (
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/graph"
	"pipelined.dev/graph/app"
	"pipelined.dev/graph/bus"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/mixer"
	"pipelined.dev/graph/mock"
	"pipelined.dev/graph/signal"
	"pipelined.dev/graph/state"
)

const (
	timeout    = 5 * time.Second
	bufferSize = 4
)

var (
	monoCaps   = caps.MustParse("audio/x-raw, format=S16LE, rate=8000, channels=1")
	stereoCaps = caps.MustParse("audio/x-raw, format=S16LE, rate=8000, channels=2")
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type track struct {
	buffers int
	value   int
}

func constant(value, i int) graph.Buffer {
	data := make([]int, bufferSize)
	for j := range data {
		data[j] = value
	}
	b := graph.NewBuffer(signal.Encode(&audio.IntBuffer{Data: data, SourceBitDepth: 16}))
	b.PTS = signal.DurationOf(8000, int64(i*bufferSize))
	return b
}

func TestMixer(t *testing.T) {
	tests := []struct {
		description string
		tracks      []track
		expected    []int
	}{
		{
			description: "regular test",
			tracks: []track{
				{buffers: 2, value: 1000},
				{buffers: 3, value: 3000},
			},
			expected: []int{2000, 2000, 2000, 2000, 2000, 2000, 2000, 2000, 3000, 3000, 3000, 3000},
		},
		{
			description: "three tracks",
			tracks: []track{
				{buffers: 1, value: 300},
				{buffers: 1, value: 600},
				{buffers: 2, value: 900},
			},
			expected: []int{600, 600, 600, 600, 900, 900, 900, 900},
		},
		{
			description: "empty track",
			tracks: []track{
				{buffers: 0, value: 1000},
				{buffers: 1, value: 500},
			},
			expected: []int{500, 500, 500, 500},
		},
	}
	for _, test := range tests {
		func() {
			g := graph.New()
			defer g.Close()
			mix := graph.NewNode("mixer", mixer.New())
			sinkMock := &mock.Sink{}
			sink := graph.NewNode("sink", sinkMock)
			require.NoError(t, g.Add(mix, sink), test.description)
			var sources []*app.Source
			for i := range test.tracks {
				src := app.NewSource(monoCaps)
				n := graph.NewNode("", src)
				require.NoError(t, g.AddNode(n), test.description)
				_, err := g.LinkNodes(n, mix)
				require.NoError(t, err, "%s: track %d", test.description, i)
				sources = append(sources, src)
			}
			l, err := g.LinkNodes(mix, sink)
			require.NoError(t, err, test.description)
			assert.True(t, monoCaps.Equal(l.Caps()), test.description)

			_, err = g.SetState(state.Playing)
			require.NoError(t, err, test.description)
			for i, track := range test.tracks {
				for j := 0; j < track.buffers; j++ {
					require.Equal(t, graph.FlowOK, sources[i].Push(constant(track.value, j)), test.description)
				}
				require.Equal(t, graph.FlowOK, sources[i].EndOfStream(), test.description)
			}
			m, ok := g.Bus().Pop(bus.Error|bus.EOS, timeout)
			require.True(t, ok, test.description)
			require.Equal(t, bus.EOS, m.Type, "%s: %v", test.description, m)

			var (
				mixed  []int
				frames int64
			)
			format := &audio.Format{NumChannels: 1, SampleRate: 8000}
			for _, b := range sinkMock.Buffers() {
				assert.Equal(t, frames, b.Offset, test.description)
				assert.Equal(t, signal.DurationOf(8000, frames), b.PTS, test.description)
				frames += int64(signal.Frames(b.Data, 1))
				mixed = append(mixed, signal.Decode(b.Data, format, signal.BitDepth16).Data...)
			}
			assert.Equal(t, test.expected, mixed, test.description)
		}()
	}
}

func TestFormatMismatch(t *testing.T) {
	g := graph.New()
	defer g.Close()
	mix := graph.NewNode("mixer", mixer.New())
	mono := graph.NewNode("mono", app.NewSource(monoCaps))
	stereo := graph.NewNode("stereo", app.NewSource(stereoCaps))
	sink := graph.NewNode("sink", &mock.Sink{})
	require.NoError(t, g.Add(mono, stereo, mix, sink))
	_, err := g.LinkNodes(mono, mix)
	require.NoError(t, err)
	_, err = g.LinkNodes(mix, sink)
	require.NoError(t, err)

	_, err = g.LinkNodes(stereo, mix)
	assert.ErrorIs(t, err, graph.ErrIncompatibleCaps)
	assert.Len(t, mix.Pads(), 2)
}
