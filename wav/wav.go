// Package wav provides elements to read and write wav files.
//
// Source parses the file header when it goes to READY, but exposes its src
// pad only when streaming starts. Applications link it from PadAdded
// handler. Sink encodes received S16LE buffers with bit depth of choice.
package wav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/graph"
	"pipelined.dev/graph/bus"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/signal"
	"pipelined.dev/graph/state"
)

// DefaultSamplesPerBuffer is the number of frames per buffer.
const DefaultSamplesPerBuffer = 1024

// pcmFormat is the wav audio format of integer PCM.
const pcmFormat = 1

var (
	// ErrInvalidFile is returned when wav file cannot be decoded.
	ErrInvalidFile = errors.New("wav is not valid")
	// ErrFormat is returned when negotiated caps lack rate or channels.
	ErrFormat = errors.New("format is not defined")
)

// rawCaps are the template caps of both elements.
var rawCaps = caps.Simple(caps.AudioRaw, caps.F("format", caps.String(signal.Format)))

// Source reads wav file.
type Source struct {
	Path             string
	SamplesPerBuffer int

	m        sync.Mutex
	file     *os.File
	decoder  *wav.Decoder
	format   *audio.Format
	bitDepth int
	frames   int64
	frame    int64
	// decoder must be repositioned before read.
	dirty bool
	src   *graph.Pad
}

// NewSource returns a new wav source.
func NewSource(path string) *Source {
	return &Source{
		Path:             path,
		SamplesPerBuffer: DefaultSamplesPerBuffer,
	}
}

// Class implements graph.Element.
func (*Source) Class() graph.Class {
	return graph.Class{
		Name:     "wavsrc",
		Behavior: graph.Source,
		Templates: []graph.PadTemplate{
			{Name: "src", Direction: graph.PadSrc, Presence: graph.Sometimes, Caps: rawCaps},
		},
	}
}

// ChangeState implements graph.Element.
func (s *Source) ChangeState(n *graph.Node, c state.Change) state.Return {
	switch c {
	case state.NullToReady:
		if err := s.open(); err != nil {
			n.PostError(err, fmt.Sprintf("failed to open %s", s.Path))
			return state.Failure
		}
		d, _ := s.Duration(n)
		n.Post(bus.NewDurationChanged(n.Name(), d))
	case state.PausedToReady:
		s.m.Lock()
		s.frame, s.dirty = 0, true
		s.m.Unlock()
	case state.ReadyToNull:
		if err := s.close(); err != nil {
			n.PostWarning(err, fmt.Sprintf("failed to close %s", s.Path))
		}
	}
	return state.Success
}

func (s *Source) open() error {
	f, err := os.Open(s.Path)
	if err != nil {
		return err
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		return fmt.Errorf("%s: %w", s.Path, ErrInvalidFile)
	}
	if err := d.FwdToPCM(); err != nil {
		f.Close()
		return fmt.Errorf("%s: %v: %w", s.Path, err, ErrInvalidFile)
	}
	format := d.Format()
	frameSize := int64(d.BitDepth/8) * int64(format.NumChannels)
	s.m.Lock()
	defer s.m.Unlock()
	s.file, s.decoder = f, d
	s.format, s.bitDepth = format, int(d.BitDepth)
	s.frames = d.PCMLen() / frameSize
	s.frame, s.dirty = 0, false
	return nil
}

func (s *Source) close() error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.decoder = nil, nil
	return err
}

// Caps returns the caps of decoded stream. They are fixed once the file
// is opened.
func (s *Source) Caps() caps.Caps {
	s.m.Lock()
	defer s.m.Unlock()
	if s.format == nil {
		return rawCaps
	}
	return caps.Simple(caps.AudioRaw,
		caps.F("format", caps.String(signal.Format)),
		caps.F("rate", caps.Int(s.format.SampleRate)),
		caps.F("channels", caps.Int(s.format.NumChannels)),
	)
}

// QueryCaps implements graph.CapsQuerier.
func (s *Source) QueryCaps(*graph.Pad) caps.Caps {
	return s.Caps()
}

// Activate implements graph.Activator.
func (s *Source) Activate(n *graph.Node, active bool) error {
	if !active {
		return nil
	}
	return n.StartTask(s.read(n))
}

func (s *Source) read(n *graph.Node) graph.TaskFunc {
	var ib *audio.IntBuffer
	return func(context.Context) graph.FlowResult {
		src, err := s.pad(n)
		if err != nil {
			n.PostError(err, "failed to expose src pad")
			return graph.FlowError
		}
		s.m.Lock()
		if s.decoder == nil {
			s.m.Unlock()
			return graph.FlowFlushing
		}
		if s.dirty {
			if err := s.reposition(); err != nil {
				s.m.Unlock()
				n.PostError(err, "failed to seek")
				return graph.FlowError
			}
		}
		channels := s.format.NumChannels
		size := s.SamplesPerBuffer * channels
		if ib == nil || cap(ib.Data) < size {
			ib = &audio.IntBuffer{Format: s.format, Data: make([]int, size)}
		}
		ib.Data = ib.Data[:size]
		read, err := s.decoder.PCMBuffer(ib)
		if err != nil {
			s.m.Unlock()
			n.PostError(err, "failed to decode")
			return graph.FlowError
		}
		frames := read / channels
		if frames == 0 {
			s.m.Unlock()
			return graph.FlowEOS
		}
		ib.Data = ib.Data[:frames*channels]
		ib.SourceBitDepth = s.bitDepth
		start := s.frame
		s.frame += int64(frames)
		rate := s.format.SampleRate
		s.m.Unlock()

		b := graph.NewBuffer(signal.Encode(ib))
		b.PTS = signal.DurationOf(rate, start)
		b.Duration = signal.DurationOf(rate, start+int64(frames)) - b.PTS
		b.Offset = start
		return src.Push(b)
	}
}

// pad exposes the src pad with the first buffer.
func (s *Source) pad(n *graph.Node) (*graph.Pad, error) {
	s.m.Lock()
	src := s.src
	s.m.Unlock()
	if src != nil {
		return src, nil
	}
	src, err := n.AddPad("src", "")
	if err != nil {
		return nil, err
	}
	s.m.Lock()
	s.src = src
	s.m.Unlock()
	return src, nil
}

// reposition must be called with lock held.
func (s *Source) reposition() error {
	if err := s.decoder.Rewind(); err != nil {
		return err
	}
	skip := s.frame * int64(s.bitDepth/8) * int64(s.format.NumChannels)
	if _, err := io.CopyN(io.Discard, s.decoder.PCMChunk.R, skip); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	s.dirty = false
	return nil
}

// Duration implements graph.DurationQuerier.
func (s *Source) Duration(*graph.Node) (time.Duration, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.format == nil {
		return 0, false
	}
	return signal.DurationOf(s.format.SampleRate, s.frames), true
}

// Seek implements graph.Seeker.
func (s *Source) Seek(_ *graph.Node, e graph.SeekEvent) bool {
	s.m.Lock()
	defer s.m.Unlock()
	if s.decoder == nil {
		return false
	}
	frame := signal.SamplesOf(s.format.SampleRate, e.Position)
	if frame > s.frames {
		frame = s.frames
	}
	s.frame, s.dirty = frame, true
	return true
}

// Seekable implements graph.Seeker.
func (s *Source) Seekable(n *graph.Node) (time.Duration, time.Duration, bool) {
	d, ok := s.Duration(n)
	return 0, d, ok
}

// Sink writes S16LE stream into wav file. File is finalized with EOS or
// when sink goes to NULL.
type Sink struct {
	Path     string
	BitDepth signal.BitDepth

	m       sync.Mutex
	file    *os.File
	encoder *wav.Encoder
	format  *audio.Format
	frames  int64
}

// NewSink returns a new 16 bit wav sink.
func NewSink(path string) *Sink {
	return &Sink{
		Path:     path,
		BitDepth: signal.BitDepth16,
	}
}

// Class implements graph.Element.
func (*Sink) Class() graph.Class {
	return graph.Class{
		Name:     "wavsink",
		Behavior: graph.Sink,
		Templates: []graph.PadTemplate{
			{Name: "sink", Direction: graph.PadSink, Presence: graph.Always, Caps: rawCaps},
		},
	}
}

// ChangeState implements graph.Element.
func (s *Sink) ChangeState(n *graph.Node, c state.Change) state.Return {
	switch c {
	case state.NullToReady:
		f, err := os.Create(s.Path)
		if err != nil {
			n.PostError(err, fmt.Sprintf("failed to create %s", s.Path))
			return state.Failure
		}
		s.m.Lock()
		s.file = f
		s.m.Unlock()
	case state.ReadyToNull:
		if err := s.close(); err != nil {
			n.PostWarning(err, fmt.Sprintf("failed to close %s", s.Path))
		}
	}
	return state.Success
}

// Chain implements graph.Chainer.
func (s *Sink) Chain(_ context.Context, p *graph.Pad, b graph.Buffer) graph.FlowResult {
	s.m.Lock()
	defer s.m.Unlock()
	if s.file == nil {
		return graph.FlowFlushing
	}
	if s.encoder == nil {
		format, err := formatOf(p)
		if err != nil {
			p.Node().PostError(err, "failed to start encoding")
			return graph.FlowNotLinked
		}
		s.format = format
		s.encoder = wav.NewEncoder(s.file, format.SampleRate, int(s.BitDepth), format.NumChannels, pcmFormat)
	}
	ib := signal.Decode(b.Data, s.format, s.BitDepth)
	if err := s.encoder.Write(ib); err != nil {
		p.Node().PostError(err, "failed to encode")
		return graph.FlowError
	}
	s.frames += int64(signal.Frames(b.Data, s.format.NumChannels))
	return graph.FlowOK
}

// HandleEvent implements graph.EventHandler. EOS finalizes the file.
func (s *Sink) HandleEvent(_ context.Context, p *graph.Pad, e graph.Event) bool {
	if e.Type != graph.EventEOS {
		return false
	}
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.finalize(); err != nil {
		p.Node().PostError(err, "failed to finalize wav")
	}
	return false
}

// Frames returns the number of encoded frames.
func (s *Sink) Frames() int64 {
	s.m.Lock()
	defer s.m.Unlock()
	return s.frames
}

// finalize must be called with lock held.
func (s *Sink) finalize() error {
	if s.encoder == nil {
		return nil
	}
	err := s.encoder.Close()
	s.encoder = nil
	return err
}

func (s *Sink) close() error {
	s.m.Lock()
	defer s.m.Unlock()
	var errs []error
	if err := s.finalize(); err != nil {
		errs = append(errs, err)
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
		s.file = nil
	}
	s.frames = 0
	return errors.Join(errs...)
}

// formatOf returns the audio format of negotiated caps.
func formatOf(p *graph.Pad) (*audio.Format, error) {
	c, ok := p.Caps()
	if !ok || c.Len() == 0 {
		return nil, ErrFormat
	}
	st := c.Structure(0)
	rate, rok := st.Int("rate")
	channels, cok := st.Int("channels")
	if !rok || !cok {
		return nil, fmt.Errorf("%v: %w", c, ErrFormat)
	}
	return &audio.Format{SampleRate: rate, NumChannels: channels}, nil
}
