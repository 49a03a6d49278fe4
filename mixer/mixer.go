// Package mixer provides an element that mixes multiple audio streams.
package mixer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-audio/audio"

	"pipelined.dev/graph"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/signal"
	"pipelined.dev/graph/state"
)

// ErrFormat is posted when sink pad caps lack rate or channels.
var ErrFormat = errors.New("format is not defined")

var rawCaps = caps.Simple(caps.AudioRaw, caps.F("format", caps.String(signal.Format)))

// Mixer averages S16LE streams received on its request sink pads. All
// streams must have the same rate and channels. Mixed samples are pushed
// as soon as every input has them. Inputs at EOS don't hold the output,
// their remaining samples are mixed with the others. EOS is sent once all
// inputs reached it.
type Mixer struct {
	m       sync.Mutex
	inputs  map[*graph.Pad]*input
	format  *audio.Format
	started bool
	start   time.Duration
	// mixed frames since activation.
	frame int64
}

type input struct {
	samples []int
	eos     bool
}

// New returns a new mixer.
func New() *Mixer {
	return &Mixer{
		inputs: make(map[*graph.Pad]*input),
	}
}

// Class implements graph.Element.
func (*Mixer) Class() graph.Class {
	return graph.Class{
		Name:     "audiomixer",
		Behavior: graph.PassThrough,
		Templates: []graph.PadTemplate{
			{Name: "sink_%u", Direction: graph.PadSink, Presence: graph.Request, Caps: rawCaps},
			{Name: "src", Direction: graph.PadSrc, Presence: graph.Always, Caps: rawCaps},
		},
	}
}

// ChangeState implements graph.Element.
func (*Mixer) ChangeState(*graph.Node, state.Change) state.Return {
	return state.Success
}

// QueryCaps implements graph.CapsQuerier.
func (*Mixer) QueryCaps(p *graph.Pad) caps.Caps {
	return graph.ProxyCaps(p)
}

// AcceptCaps implements graph.CapsAcceptor. Once the format is known, all
// inputs must match it.
func (m *Mixer) AcceptCaps(_ *graph.Pad, c caps.Caps) bool {
	m.m.Lock()
	defer m.m.Unlock()
	if m.format == nil {
		return true
	}
	format, err := formatOf(c)
	return err == nil && format.SampleRate == m.format.SampleRate && format.NumChannels == m.format.NumChannels
}

// PadRequested implements graph.PadRequester.
func (m *Mixer) PadRequested(_ *graph.Node, p *graph.Pad) {
	m.m.Lock()
	m.inputs[p] = &input{}
	m.m.Unlock()
}

// PadReleased implements graph.PadRequester. Released input doesn't hold
// the output anymore.
func (m *Mixer) PadReleased(n *graph.Node, p *graph.Pad) {
	m.m.Lock()
	delete(m.inputs, p)
	m.mix(n)
	eos := m.eos()
	m.m.Unlock()
	if eos {
		n.EndOfStream()
	}
}

// Activate implements graph.Activator.
func (m *Mixer) Activate(_ *graph.Node, active bool) error {
	if !active {
		return nil
	}
	m.m.Lock()
	defer m.m.Unlock()
	for _, in := range m.inputs {
		in.samples, in.eos = nil, false
	}
	m.format, m.started, m.frame = nil, false, 0
	return nil
}

// Chain implements graph.Chainer.
func (m *Mixer) Chain(_ context.Context, p *graph.Pad, b graph.Buffer) graph.FlowResult {
	m.m.Lock()
	defer m.m.Unlock()
	in, ok := m.inputs[p]
	if !ok {
		return graph.FlowNotLinked
	}
	if m.format == nil {
		c, _ := p.Caps()
		format, err := formatOf(c)
		if err != nil {
			p.Node().PostError(err, "failed to start mixing")
			return graph.FlowNotLinked
		}
		m.format = format
	}
	if !m.started {
		m.start, m.started = b.PTS, true
		if m.start == graph.ClockTimeNone {
			m.start = 0
		}
	}
	in.samples = append(in.samples, signal.Decode(b.Data, m.format, signal.BitDepth16).Data...)
	return m.mix(p.Node())
}

// HandleEvent implements graph.EventHandler. The first caps are forwarded
// downstream, EOS is sent when all inputs reached it.
func (m *Mixer) HandleEvent(_ context.Context, p *graph.Pad, e graph.Event) bool {
	n := p.Node()
	switch e.Type {
	case graph.EventCaps:
		m.m.Lock()
		src := n.Pad("src")
		first := m.format == nil
		if first {
			if format, err := formatOf(e.Caps); err == nil {
				m.format = format
			}
		}
		m.m.Unlock()
		if first {
			if err := src.SetCaps(e.Caps); err != nil {
				n.Logger().WithError(err).Warn("caps not forwarded")
			}
		}
		return true
	case graph.EventEOS:
		m.m.Lock()
		if in, ok := m.inputs[p]; ok {
			in.eos = true
		}
		m.mix(n)
		eos := m.eos()
		m.m.Unlock()
		if eos {
			n.EndOfStream()
		}
		return true
	}
	return false
}

// mix pushes samples available on every input. If all inputs reached EOS,
// everything left is pushed. It must be called with lock held.
func (m *Mixer) mix(n *graph.Node) graph.FlowResult {
	if m.format == nil || len(m.inputs) == 0 {
		return graph.FlowOK
	}
	channels := m.format.NumChannels
	frames, left := -1, 0
	for _, in := range m.inputs {
		available := len(in.samples) / channels
		if in.eos {
			left = max(left, available)
			continue
		}
		if frames < 0 || available < frames {
			frames = available
		}
	}
	if frames < 0 {
		frames = left
	}
	if frames == 0 {
		return graph.FlowOK
	}
	size := frames * channels
	mixed := make([]int, size)
	for i := range mixed {
		sum, signals := 0, 0
		for _, in := range m.inputs {
			if i < len(in.samples) {
				sum += in.samples[i]
				signals++
			}
		}
		if signals > 0 {
			mixed[i] = sum / signals
		}
	}
	for _, in := range m.inputs {
		in.samples = in.samples[min(size, len(in.samples)):]
	}

	rate := m.format.SampleRate
	b := graph.NewBuffer(signal.Encode(&audio.IntBuffer{
		Format:         m.format,
		Data:           mixed,
		SourceBitDepth: int(signal.BitDepth16),
	}))
	b.PTS = m.start + signal.DurationOf(rate, m.frame)
	b.Duration = signal.DurationOf(rate, m.frame+int64(frames)) - signal.DurationOf(rate, m.frame)
	b.Offset = m.frame
	m.frame += int64(frames)
	return n.Pad("src").Push(b)
}

// eos returns true if all inputs reached EOS. It must be called with lock
// held.
func (m *Mixer) eos() bool {
	if len(m.inputs) == 0 {
		return false
	}
	for _, in := range m.inputs {
		if !in.eos {
			return false
		}
	}
	return true
}

func formatOf(c caps.Caps) (*audio.Format, error) {
	if c.Len() == 0 {
		return nil, ErrFormat
	}
	st := c.Structure(0)
	rate, rok := st.Int("rate")
	channels, cok := st.Int("channels")
	if !rok || !cok || rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%v: %w", c, ErrFormat)
	}
	return &audio.Format{SampleRate: rate, NumChannels: channels}, nil
}
