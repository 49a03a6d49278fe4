package caps_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/graph/caps"
)

func TestIntersect(t *testing.T) {
	tests := []struct {
		description string
		a, b        caps.Caps
		expected    caps.Caps
	}{
		{
			description: "range with fixed",
			a:           caps.MustParse("audio/x-raw, rate=(int)[ 8000, 48000 ], channels=(int){ 1, 2 }"),
			b:           caps.MustParse("audio/x-raw, rate=(int)44100"),
			expected:    caps.MustParse("audio/x-raw, rate=(int)44100, channels=(int){ 1, 2 }"),
		},
		{
			description: "range with range",
			a:           caps.MustParse("audio/x-raw, rate=[ 8000, 48000 ]"),
			b:           caps.MustParse("audio/x-raw, rate=[ 22050, 96000 ]"),
			expected:    caps.MustParse("audio/x-raw, rate=[ 22050, 48000 ]"),
		},
		{
			description: "list with range",
			a:           caps.MustParse("audio/x-raw, channels={ 1, 2, 6 }"),
			b:           caps.MustParse("audio/x-raw, channels=[ 2, 8 ]"),
			expected:    caps.MustParse("audio/x-raw, channels={ 2, 6 }"),
		},
		{
			description: "disjoint values",
			a:           caps.MustParse("audio/x-raw, rate=44100"),
			b:           caps.MustParse("audio/x-raw, rate=48000"),
			expected:    caps.Empty(),
		},
		{
			description: "audio with video",
			a:           caps.MustParse("audio/x-raw"),
			b:           caps.MustParse("video/x-raw"),
			expected:    caps.Empty(),
		},
		{
			description: "any with caps",
			a:           caps.Any(),
			b:           caps.MustParse("audio/x-raw, rate=44100"),
			expected:    caps.MustParse("audio/x-raw, rate=44100"),
		},
		{
			description: "empty with caps",
			a:           caps.Empty(),
			b:           caps.MustParse("audio/x-raw, rate=44100"),
			expected:    caps.Empty(),
		},
		{
			description: "empty with any",
			a:           caps.Empty(),
			b:           caps.Any(),
			expected:    caps.Empty(),
		},
		{
			description: "opaque equal",
			a:           caps.MustParse("tone"),
			b:           caps.MustParse("tone"),
			expected:    caps.MustParse("tone"),
		},
		{
			description: "opaque different fields",
			a:           caps.MustParse("tone, pitch=440"),
			b:           caps.MustParse("tone"),
			expected:    caps.Empty(),
		},
		{
			description: "multiple alternatives",
			a:           caps.MustParse("audio/x-raw, rate=44100; video/x-raw, width=640"),
			b:           caps.MustParse("video/x-raw, width=[ 320, 1920 ]; text/x-raw"),
			expected:    caps.MustParse("video/x-raw, width=640"),
		},
		{
			description: "fraction range",
			a:           caps.MustParse("video/x-raw, framerate=(fraction)[ 0/1, 60/1 ]"),
			b:           caps.MustParse("video/x-raw, framerate=(fraction)30/1"),
			expected:    caps.MustParse("video/x-raw, framerate=(fraction)30/1"),
		},
		{
			description: "string list",
			a:           caps.MustParse("audio/x-raw, format={ S16LE, F32LE }"),
			b:           caps.MustParse("audio/x-raw, format={ F32LE, U8 }"),
			expected:    caps.MustParse("audio/x-raw, format=F32LE"),
		},
	}
	for _, test := range tests {
		ab := test.a.Intersect(test.b)
		ba := test.b.Intersect(test.a)
		assert.True(t, ab.Equal(test.expected), "%s: %v", test.description, cmp.Diff(test.expected.String(), ab.String()))
		assert.True(t, ab.Equal(ba), "%s: not commutative %v", test.description, cmp.Diff(ab.String(), ba.String()))
		assert.Equal(t, !test.expected.IsEmpty(), test.a.CanIntersect(test.b), test.description)
	}
}

func TestFixate(t *testing.T) {
	tests := []struct {
		description string
		caps        caps.Caps
		expected    caps.Caps
		ok          bool
	}{
		{
			description: "already fixed",
			caps:        caps.MustParse("audio/x-raw, rate=44100"),
			expected:    caps.MustParse("audio/x-raw, rate=44100"),
			ok:          true,
		},
		{
			description: "first fixed alternative",
			caps:        caps.MustParse("audio/x-raw, rate=[ 1, 10 ]; audio/x-raw, rate=48000"),
			expected:    caps.MustParse("audio/x-raw, rate=48000"),
			ok:          true,
		},
		{
			description: "lowest bound and first element",
			caps:        caps.MustParse("audio/x-raw, rate=[ 8000, 48000 ], channels={ 2, 1 }"),
			expected:    caps.MustParse("audio/x-raw, rate=8000, channels=1"),
			ok:          true,
		},
		{
			description: "most constrained alternative",
			caps:        caps.MustParse("video/x-raw, width=[ 1, 100 ]; video/x-raw, width=[ 1, 100 ], height=480"),
			expected:    caps.MustParse("video/x-raw, width=1, height=480"),
			ok:          true,
		},
		{
			description: "any",
			caps:        caps.Any(),
			expected:    caps.Any(),
		},
		{
			description: "empty",
			caps:        caps.Empty(),
			expected:    caps.Empty(),
		},
	}
	for _, test := range tests {
		fixed, ok := test.caps.Fixate()
		assert.Equal(t, test.ok, ok, test.description)
		assert.True(t, test.expected.Equal(fixed), "%s: %v", test.description, fixed)
		if ok {
			assert.True(t, fixed.IsFixed(), test.description)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		description string
		input       string
		expected    string
		err         error
	}{
		{
			description: "typed fields",
			input:       "audio/x-raw, format=(string)S16LE, rate=(int)[ 8000, 48000 ], channels=(int){ 1, 2 }",
			expected:    "audio/x-raw, format=(string)S16LE, rate=(int)[ 8000, 48000 ], channels=(int){ 1, 2 }",
		},
		{
			description: "inferred types",
			input:       "video/x-raw,width=640,framerate=30/1,format=I420",
			expected:    "video/x-raw, width=(int)640, framerate=(fraction)30/1, format=(string)I420",
		},
		{
			description: "alternatives",
			input:       "audio/x-raw; video/x-raw",
			expected:    "audio/x-raw; video/x-raw",
		},
		{
			description: "any",
			input:       " ANY ",
			expected:    "ANY",
		},
		{
			description: "empty",
			input:       "EMPTY",
			expected:    "EMPTY",
		},
		{
			description: "quoted string",
			input:       `text/x-raw, format="utf8"`,
			expected:    "text/x-raw, format=(string)utf8",
		},
		{
			description: "missing value",
			input:       "audio/x-raw, rate",
			err:         caps.ErrSyntax,
		},
		{
			description: "bad int",
			input:       "audio/x-raw, rate=(int)abc",
			err:         caps.ErrSyntax,
		},
		{
			description: "unterminated range",
			input:       "audio/x-raw, rate=[ 1, 2",
			err:         caps.ErrSyntax,
		},
		{
			description: "unknown type",
			input:       "audio/x-raw, rate=(double)1",
			err:         caps.ErrSyntax,
		},
	}
	for _, test := range tests {
		c, err := caps.Parse(test.input)
		if test.err != nil {
			assert.ErrorIs(t, err, test.err, test.description)
			continue
		}
		assert.NoError(t, err, test.description)
		assert.Equal(t, test.expected, c.String(), test.description)
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, caps.MustParse("audio/x-raw, rate=44100, channels=2").Validate())
	assert.NoError(t, caps.MustParse("tone, pitch=high").Validate())
	assert.ErrorIs(t, caps.MustParse("audio/x-raw, rate=fast").Validate(), caps.ErrFieldKind)
}

func TestStructure(t *testing.T) {
	s := caps.NewStructure(caps.AudioRaw, caps.F("rate", caps.Int(44100)), caps.F("channels", caps.IntRange(1, 2)))
	rate, ok := s.Int("rate")
	assert.True(t, ok)
	assert.Equal(t, 44100, rate)
	_, ok = s.Int("channels")
	assert.False(t, ok)
	assert.False(t, s.IsFixed())

	s = s.Set("channels", caps.Int(2))
	assert.True(t, s.IsFixed())
	assert.Equal(t, 2, len(s.Fields()))

	c := caps.New(s)
	assert.Equal(t, caps.AudioRaw, c.MediaType())
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.IsFixed())
}

func TestValues(t *testing.T) {
	assert.Equal(t, caps.KindInt, caps.IntRange(5, 5).Kind())
	assert.Equal(t, caps.KindInt, caps.IntList(3, 3).Kind())
	assert.Equal(t, "(int){ 1, 2, 3 }", caps.IntList(3, 1, 2, 1).String())
	assert.Equal(t, "(int)[ 1, 9 ]", caps.IntRange(9, 1).String())
	assert.True(t, caps.Frac(1, 2).Equal(caps.Frac(2, 4)))

	_, ok := caps.Int(1).Intersect(caps.String("1"))
	assert.False(t, ok)

	assert.Equal(t, caps.KindInvalid, caps.IntList().Kind())
	assert.Equal(t, caps.KindInvalid, caps.StringList().Kind())
}

func TestFixateEmptyList(t *testing.T) {
	for _, v := range []caps.Value{caps.IntList(), caps.StringList()} {
		c := caps.Simple(caps.AudioRaw, caps.F("rate", caps.Int(8000)), caps.F("format", v))
		assert.NotPanics(t, func() {
			_, ok := c.Fixate()
			assert.False(t, ok)
		})
	}
}

func TestBest(t *testing.T) {
	c := caps.MustParse("audio/x-raw, rate=[ 8000, 48000 ]; audio/x-raw, rate=[ 8000, 48000 ], channels={ 1, 2 }; audio/x-raw, rate=44100")
	assert.Equal(t, "audio/x-raw, rate=(int)44100", c.Best().String())

	c = caps.MustParse("audio/x-raw, rate=[ 8000, 48000 ]; audio/x-raw, rate=[ 8000, 48000 ], channels={ 1, 2 }")
	assert.Equal(t, "audio/x-raw, rate=(int)[ 8000, 48000 ], channels=(int){ 1, 2 }", c.Best().String())
	assert.True(t, caps.Any().Best().IsAny())
	assert.True(t, caps.Empty().Best().IsEmpty())
}
