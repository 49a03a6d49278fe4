package launch_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/graph"
	"pipelined.dev/graph/app"
	"pipelined.dev/graph/bus"
	"pipelined.dev/graph/elements"
	"pipelined.dev/graph/launch"
	"pipelined.dev/graph/log"
	"pipelined.dev/graph/registry"
	"pipelined.dev/graph/state"
)

const timeout = 5 * time.Second

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitEOS(t *testing.T, g *graph.Graph) {
	t.Helper()
	m, ok := g.Bus().Pop(bus.Error|bus.EOS, timeout)
	require.True(t, ok, "eos not posted")
	require.Equal(t, bus.EOS, m.Type, m.String())
}

func element[E graph.Element](t *testing.T, g *graph.Graph, name string) E {
	t.Helper()
	n, err := g.Node(name)
	require.NoError(t, err)
	e, ok := n.Element().(E)
	require.True(t, ok, "%s has unexpected type %T", name, n.Element())
	return e
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		description string
		launch      string
		err         error
	}{
		{
			description: "leading link",
			launch:      "! fakesink",
			err:         launch.ErrSyntax,
		},
		{
			description: "dangling link",
			launch:      "tonesrc !",
			err:         launch.ErrSyntax,
		},
		{
			description: "double link",
			launch:      "tonesrc ! ! fakesink",
			err:         launch.ErrSyntax,
		},
		{
			description: "property without element",
			launch:      "name=src ! fakesink",
			err:         launch.ErrSyntax,
		},
		{
			description: "property of reference",
			launch:      "tee name=t t. dump=true",
			err:         launch.ErrSyntax,
		},
		{
			description: "pad reference",
			launch:      "tee name=t t.src_0 ! fakesink",
			err:         launch.ErrSyntax,
		},
		{
			description: "empty name",
			launch:      "fakesink name=",
			err:         launch.ErrSyntax,
		},
		{
			description: "unknown factory",
			launch:      "tonesrc ! speakers",
			err:         registry.ErrUnknownFactory,
		},
		{
			description: "unknown property",
			launch:      "tonesrc loud=true ! fakesink",
			err:         registry.ErrUnknownProperty,
		},
		{
			description: "unknown reference",
			launch:      "tonesrc ! tee name=t x. ! fakesink",
			err:         graph.ErrNotFound,
		},
		{
			description: "duplicate name",
			launch:      "tonesrc name=a ! fakesink name=a",
			err:         graph.ErrDuplicateName,
		},
		{
			description: "incompatible caps",
			launch:      "tonesrc rate=8000 ! audio/x-raw,rate=16000 ! fakesink",
			err:         graph.ErrIncompatibleCaps,
		},
	}
	for _, test := range tests {
		g, err := launch.Parse(test.launch, graph.WithLogger(log.Discard()))
		assert.Nil(t, g, test.description)
		assert.True(t, errors.Is(err, test.err), "%s: %v", test.description, err)
	}
}

func TestTee(t *testing.T) {
	g, err := launch.Parse("tonesrc num-buffers=5 rate=8000 samplesperbuffer=800 ! tee name=t ! queue ! fakesink name=a t. ! queue ! appsink name=out")
	require.NoError(t, err)
	defer g.Close()
	assert.Len(t, g.Nodes(), 6)
	assert.Len(t, g.Links(), 5)

	_, err = g.SetState(state.Playing)
	require.NoError(t, err)
	waitEOS(t, g)

	buffers, _ := element[*elements.FakeSink](t, g, "a").Count()
	assert.Equal(t, 5, buffers)
	out := element[*app.Sink](t, g, "out")
	for i := 0; i < 5; i++ {
		b, ok := out.Pull()
		require.True(t, ok)
		assert.Equal(t, int64(i*800), b.Offset)
	}
	assert.True(t, out.IsEOS())
}

func TestCaps(t *testing.T) {
	g, err := launch.Parse(`tonesrc num-buffers=1 rate=8000 ! "audio/x-raw, rate=(int)[ 8000, 16000 ]" ! fakesink name=sink`)
	require.NoError(t, err)
	defer g.Close()
	nodes := g.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, "capsfilter", nodes[1].Class().Name)
	require.Len(t, g.Links(), 2)
	for _, l := range g.Links() {
		rate, ok := l.Caps().Structure(0).Int("rate")
		assert.True(t, ok)
		assert.Equal(t, 8000, rate)
	}

	_, err = g.SetState(state.Playing)
	require.NoError(t, err)
	waitEOS(t, g)
	buffers, _ := element[*elements.FakeSink](t, g, "sink").Count()
	assert.Equal(t, 1, buffers)
}

func TestForwardReference(t *testing.T) {
	g, err := launch.Parse("t. ! fakesink name=b tonesrc num-buffers=2 ! tee name=t ! fakesink name=a")
	require.NoError(t, err)
	defer g.Close()
	require.Len(t, g.Links(), 3)

	_, err = g.SetState(state.Playing)
	require.NoError(t, err)
	waitEOS(t, g)
	for _, name := range []string{"a", "b"} {
		buffers, _ := element[*elements.FakeSink](t, g, name).Count()
		assert.Equal(t, 2, buffers, name)
	}
}

func TestDelayedLink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	e := gowav.NewEncoder(f, 8000, 16, 1, 1)
	require.NoError(t, e.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           make([]int, 4000),
		SourceBitDepth: 16,
	}))
	require.NoError(t, e.Close())
	require.NoError(t, f.Close())

	g, err := launch.Parse(`wavsrc location="` + path + `" samplesperbuffer=1000 ! fakesink name=sink`)
	require.NoError(t, err)
	defer g.Close()
	assert.Empty(t, g.Links())

	_, err = g.SetState(state.Playing)
	require.NoError(t, err)
	waitEOS(t, g)
	require.Len(t, g.Links(), 1)
	buffers, bytes := element[*elements.FakeSink](t, g, "sink").Count()
	assert.Equal(t, 4, buffers)
	assert.Equal(t, 8000, bytes)
}

func TestBuild(t *testing.T) {
	g := graph.New()
	defer g.Close()
	r := registry.Default()
	require.NoError(t, launch.Build(g, r, "tonesrc name=src"))
	require.NoError(t, launch.Build(g, r, "src. ! fakesink"))
	assert.Len(t, g.Nodes(), 2)
	assert.Len(t, g.Links(), 1)
}

func TestMixer(t *testing.T) {
	g, err := launch.Parse("tonesrc num-buffers=2 rate=8000 ! audiomixer name=m ! fakesink name=sink tonesrc num-buffers=3 rate=8000 ! m.")
	require.NoError(t, err)
	defer g.Close()
	assert.Len(t, g.Links(), 3)

	_, err = g.SetState(state.Playing)
	require.NoError(t, err)
	waitEOS(t, g)
	_, bytes := element[*elements.FakeSink](t, g, "sink").Count()
	assert.Equal(t, 3*1024*2, bytes)
}
