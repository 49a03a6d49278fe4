package signal_test

import (
	"math"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/graph/signal"
)

var mono = &audio.Format{NumChannels: 1, SampleRate: 8000}

func TestEncode(t *testing.T) {
	tests := []struct {
		description string
		data        []int
		bitDepth    signal.BitDepth
		expected    []byte
	}{
		{
			description: "16 bit",
			data:        []int{1, -1, math.MaxInt16, math.MinInt16},
			bitDepth:    signal.BitDepth16,
			expected:    []byte{0x01, 0x00, 0xff, 0xff, 0xff, 0x7f, 0x00, 0x80},
		},
		{
			description: "8 bit",
			data:        []int{128, 255, 0},
			bitDepth:    signal.BitDepth8,
			expected:    []byte{0x00, 0x00, 0x00, 0x7f, 0x00, 0x80},
		},
		{
			description: "24 bit",
			data:        []int{0x7fffff, -0x800000},
			bitDepth:    signal.BitDepth24,
			expected:    []byte{0xff, 0x7f, 0x00, 0x80},
		},
		{
			description: "empty",
			bitDepth:    signal.BitDepth16,
			expected:    []byte{},
		},
	}
	for _, test := range tests {
		ib := &audio.IntBuffer{Format: mono, Data: test.data, SourceBitDepth: int(test.bitDepth)}
		assert.Equal(t, test.expected, signal.Encode(ib), test.description)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		description string
		data        []byte
		bitDepth    signal.BitDepth
		expected    []int
	}{
		{
			description: "16 bit",
			data:        []byte{0x01, 0x00, 0xff, 0xff, 0xff, 0x7f},
			bitDepth:    signal.BitDepth16,
			expected:    []int{1, -1, math.MaxInt16},
		},
		{
			description: "8 bit",
			data:        []byte{0x00, 0x00, 0x00, 0x80},
			bitDepth:    signal.BitDepth8,
			expected:    []int{128, 0},
		},
		{
			description: "incomplete sample",
			data:        []byte{0x02, 0x00, 0x01},
			bitDepth:    signal.BitDepth16,
			expected:    []int{2},
		},
	}
	for _, test := range tests {
		ib := signal.Decode(test.data, mono, test.bitDepth)
		assert.Equal(t, test.expected, ib.Data, test.description)
		assert.Equal(t, int(test.bitDepth), ib.SourceBitDepth, test.description)
		assert.Equal(t, mono, ib.Format, test.description)
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, time.Second, signal.DurationOf(44100, 44100))
	assert.Equal(t, 500*time.Millisecond, signal.DurationOf(8000, 4000))
	assert.Equal(t, int64(22050), signal.SamplesOf(44100, 500*time.Millisecond))
	assert.Equal(t, 2, signal.Frames(make([]byte, 9), 2))
	assert.Equal(t, 0, signal.Frames(make([]byte, 9), 0))
}
