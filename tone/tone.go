// Package tone provides a test source producing sine wave.
package tone

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"golang.org/x/time/rate"

	"pipelined.dev/graph"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/signal"
	"pipelined.dev/graph/state"
)

// defaults
const (
	DefaultFreq             = 440
	DefaultVolume           = 0.8
	DefaultSampleRate       = 44100
	DefaultChannels         = 1
	DefaultSamplesPerBuffer = 1024
)

// Source generates sine wave as S16LE interleaved samples. Bounded source,
// with NumBuffers set, is seekable and reports its duration. Live source
// produces buffers in real time and only in PLAYING state.
type Source struct {
	Freq             float64
	Volume           float64
	SampleRate       int
	Channels         int
	SamplesPerBuffer int
	// NumBuffers limits the stream, zero means infinite.
	NumBuffers int
	Live       bool

	m      sync.Mutex
	sample int64
}

// NewSource returns a source with default parameters.
func NewSource() *Source {
	return &Source{
		Freq:             DefaultFreq,
		Volume:           DefaultVolume,
		SampleRate:       DefaultSampleRate,
		Channels:         DefaultChannels,
		SamplesPerBuffer: DefaultSamplesPerBuffer,
	}
}

// Caps returns the caps of produced stream.
func (s *Source) Caps() caps.Caps {
	return caps.Simple(caps.AudioRaw,
		caps.F("format", caps.String(signal.Format)),
		caps.F("rate", caps.Int(s.SampleRate)),
		caps.F("channels", caps.Int(s.Channels)),
	)
}

// Class implements graph.Element.
func (s *Source) Class() graph.Class {
	return graph.Class{
		Name:     "tonesrc",
		Behavior: graph.Source,
		Templates: []graph.PadTemplate{
			{Name: "src", Direction: graph.PadSrc, Presence: graph.Always, Caps: s.Caps()},
		},
	}
}

// ChangeState implements graph.Element.
func (s *Source) ChangeState(n *graph.Node, c state.Change) state.Return {
	switch c {
	case state.ReadyToPaused:
		if s.Live {
			return state.NoPreroll
		}
	case state.PausedToPlaying:
		if s.Live {
			if err := n.StartTask(s.generate(n)); err != nil {
				return state.Failure
			}
		}
	case state.PlayingToPaused:
		if s.Live {
			n.StopTask()
		}
	case state.PausedToReady:
		s.m.Lock()
		s.sample = 0
		s.m.Unlock()
	}
	return state.Success
}

// Activate implements graph.Activator.
func (s *Source) Activate(n *graph.Node, active bool) error {
	if !active || s.Live {
		return nil
	}
	return n.StartTask(s.generate(n))
}

func (s *Source) generate(n *graph.Node) graph.TaskFunc {
	src := n.Pad("src")
	ib := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: s.Channels,
			SampleRate:  s.SampleRate,
		},
		Data:           make([]int, s.SamplesPerBuffer*s.Channels),
		SourceBitDepth: int(signal.BitDepth16),
	}
	var limiter *rate.Limiter
	if s.Live {
		limiter = rate.NewLimiter(rate.Limit(float64(s.SampleRate)/float64(s.SamplesPerBuffer)), 1)
	}
	amplitude := s.Volume * math.MaxInt16
	step := 2 * math.Pi * s.Freq / float64(s.SampleRate)
	return func(ctx context.Context) graph.FlowResult {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return graph.FlowFlushing
			}
		}
		s.m.Lock()
		start := s.sample
		s.m.Unlock()
		frames := s.SamplesPerBuffer
		if total := s.total(); total > 0 {
			if start >= total {
				return graph.FlowEOS
			}
			if left := total - start; left < int64(frames) {
				frames = int(left)
			}
		}
		ib.Data = ib.Data[:frames*s.Channels]
		for i := 0; i < frames; i++ {
			v := int(amplitude * math.Sin(step*float64(start+int64(i))))
			for c := 0; c < s.Channels; c++ {
				ib.Data[i*s.Channels+c] = v
			}
		}
		b := graph.NewBuffer(signal.Encode(ib))
		b.PTS = signal.DurationOf(s.SampleRate, start)
		b.Duration = signal.DurationOf(s.SampleRate, start+int64(frames)) - b.PTS
		b.Offset = start
		r := src.Push(b)
		if r == graph.FlowOK {
			s.m.Lock()
			s.sample = start + int64(frames)
			s.m.Unlock()
		}
		return r
	}
}

// total returns number of samples in bounded stream.
func (s *Source) total() int64 {
	return int64(s.NumBuffers) * int64(s.SamplesPerBuffer)
}

// Duration implements graph.DurationQuerier.
func (s *Source) Duration(*graph.Node) (time.Duration, bool) {
	if s.NumBuffers <= 0 {
		return 0, false
	}
	return signal.DurationOf(s.SampleRate, s.total()), true
}

// Seek implements graph.Seeker. Live source is not seekable.
func (s *Source) Seek(n *graph.Node, e graph.SeekEvent) bool {
	if _, _, ok := s.Seekable(n); !ok {
		return false
	}
	sample := signal.SamplesOf(s.SampleRate, e.Position)
	if e.Flags&graph.SeekFlagKeyUnit != 0 {
		sample -= sample % int64(s.SamplesPerBuffer)
	}
	if total := s.total(); sample > total {
		sample = total
	}
	s.m.Lock()
	s.sample = sample
	s.m.Unlock()
	return true
}

// Seekable implements graph.Seeker.
func (s *Source) Seekable(n *graph.Node) (time.Duration, time.Duration, bool) {
	if s.Live {
		return 0, 0, false
	}
	d, ok := s.Duration(n)
	return 0, d, ok
}
