package registry

import (
	"fmt"

	"pipelined.dev/graph"
	"pipelined.dev/graph/app"
	"pipelined.dev/graph/caps"
	"pipelined.dev/graph/elements"
	"pipelined.dev/graph/mixer"
	"pipelined.dev/graph/signal"
	"pipelined.dev/graph/tone"
	"pipelined.dev/graph/wav"
)

// Default returns a registry with all elements of this module.
func Default() *Registry {
	r := New()
	if err := RegisterBuiltins(r); err != nil {
		panic(err)
	}
	return r
}

// RegisterBuiltins registers all elements of this module.
func RegisterBuiltins(r *Registry) error {
	for name, f := range map[string]Factory{
		"tee":        newTee,
		"queue":      newQueue,
		"identity":   newIdentity,
		"capsfilter": newCapsfilter,
		"fakesink":   newFakeSink,
		"tonesrc":    newTone,
		"wavsrc":     newWavSource,
		"wavsink":    newWavSink,
		"appsrc":     newAppSource,
		"appsink":    newAppSink,
		"audiomixer": newMixer,
	} {
		if err := r.Register(name, f); err != nil {
			return err
		}
	}
	return nil
}

func newTee(p Props) (graph.Element, error) {
	if err := p.Only(); err != nil {
		return nil, err
	}
	return elements.NewTee(), nil
}

func newMixer(p Props) (graph.Element, error) {
	if err := p.Only(); err != nil {
		return nil, err
	}
	return mixer.New(), nil
}

func newQueue(p Props) (graph.Element, error) {
	if err := p.Only("max-size-buffers", "leaky"); err != nil {
		return nil, err
	}
	size, err := p.Int("max-size-buffers", elements.DefaultMaxBuffers)
	if err != nil {
		return nil, err
	}
	leaky, err := p.Bool("leaky", false)
	if err != nil {
		return nil, err
	}
	q := elements.NewQueue(size)
	q.Leaky = leaky
	return q, nil
}

func newIdentity(p Props) (graph.Element, error) {
	if err := p.Only("signal-handoffs", "drop"); err != nil {
		return nil, err
	}
	i := elements.NewIdentity()
	var err error
	if i.SignalHandoffs, err = p.Bool("signal-handoffs", false); err != nil {
		return nil, err
	}
	if i.Drop, err = p.Bool("drop", false); err != nil {
		return nil, err
	}
	return i, nil
}

func newCapsfilter(p Props) (graph.Element, error) {
	if err := p.Only("caps"); err != nil {
		return nil, err
	}
	c, err := p.Caps("caps", caps.Any())
	if err != nil {
		return nil, err
	}
	return elements.NewCapsfilter(c), nil
}

func newFakeSink(p Props) (graph.Element, error) {
	if err := p.Only("dump"); err != nil {
		return nil, err
	}
	s := elements.NewFakeSink()
	var err error
	if s.Dump, err = p.Bool("dump", false); err != nil {
		return nil, err
	}
	return s, nil
}

func newTone(p Props) (graph.Element, error) {
	if err := p.Only("freq", "volume", "rate", "channels", "samplesperbuffer", "num-buffers", "is-live"); err != nil {
		return nil, err
	}
	s := tone.NewSource()
	var err error
	if s.Freq, err = p.Float("freq", tone.DefaultFreq); err != nil {
		return nil, err
	}
	if s.Volume, err = p.Float("volume", tone.DefaultVolume); err != nil {
		return nil, err
	}
	if s.SampleRate, err = positive(p, "rate", tone.DefaultSampleRate); err != nil {
		return nil, err
	}
	if s.Channels, err = positive(p, "channels", tone.DefaultChannels); err != nil {
		return nil, err
	}
	if s.SamplesPerBuffer, err = positive(p, "samplesperbuffer", tone.DefaultSamplesPerBuffer); err != nil {
		return nil, err
	}
	if s.NumBuffers, err = p.Int("num-buffers", 0); err != nil {
		return nil, err
	}
	if s.Live, err = p.Bool("is-live", false); err != nil {
		return nil, err
	}
	return s, nil
}

func newWavSource(p Props) (graph.Element, error) {
	if err := p.Only("location", "samplesperbuffer"); err != nil {
		return nil, err
	}
	location, err := required(p, "location")
	if err != nil {
		return nil, err
	}
	s := wav.NewSource(location)
	if s.SamplesPerBuffer, err = positive(p, "samplesperbuffer", wav.DefaultSamplesPerBuffer); err != nil {
		return nil, err
	}
	return s, nil
}

func newWavSink(p Props) (graph.Element, error) {
	if err := p.Only("location", "bit-depth"); err != nil {
		return nil, err
	}
	location, err := required(p, "location")
	if err != nil {
		return nil, err
	}
	s := wav.NewSink(location)
	bitDepth, err := p.Int("bit-depth", int(signal.BitDepth16))
	if err != nil {
		return nil, err
	}
	switch b := signal.BitDepth(bitDepth); b {
	case signal.BitDepth8, signal.BitDepth16, signal.BitDepth24, signal.BitDepth32:
		s.BitDepth = b
	default:
		return nil, invalid("bit-depth", p["bit-depth"], fmt.Errorf("unsupported bit depth"))
	}
	return s, nil
}

func newAppSource(p Props) (graph.Element, error) {
	if err := p.Only("caps", "max-buffers", "min-percent", "block", "is-live"); err != nil {
		return nil, err
	}
	c, err := p.Caps("caps", caps.Any())
	if err != nil {
		return nil, err
	}
	var options []app.SourceOption
	maxBuffers, err := positive(p, "max-buffers", app.DefaultMaxBuffers)
	if err != nil {
		return nil, err
	}
	options = append(options, app.WithMaxBuffers(maxBuffers))
	minPercent, err := p.Int("min-percent", 0)
	if err != nil {
		return nil, err
	}
	options = append(options, app.WithMinPercent(minPercent))
	if block, err := p.Bool("block", false); err != nil {
		return nil, err
	} else if block {
		options = append(options, app.WithBlock())
	}
	if live, err := p.Bool("is-live", false); err != nil {
		return nil, err
	} else if live {
		options = append(options, app.WithLive())
	}
	return app.NewSource(c, options...), nil
}

func newAppSink(p Props) (graph.Element, error) {
	if err := p.Only("caps", "max-buffers", "drop"); err != nil {
		return nil, err
	}
	c, err := p.Caps("caps", caps.Any())
	if err != nil {
		return nil, err
	}
	maxBuffers, err := p.Int("max-buffers", app.DefaultMaxBuffers)
	if err != nil {
		return nil, err
	}
	options := []app.SinkOption{app.WithSinkMaxBuffers(maxBuffers)}
	if drop, err := p.Bool("drop", false); err != nil {
		return nil, err
	} else if drop {
		options = append(options, app.WithDrop())
	}
	return app.NewSink(c, options...), nil
}

func positive(p Props, key string, def int) (int, error) {
	v, err := p.Int(key, def)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, invalid(key, p[key], fmt.Errorf("must be positive"))
	}
	return v, nil
}

func required(p Props, key string) (string, error) {
	v := p.String(key, "")
	if v == "" {
		return "", fmt.Errorf("%s is required: %w", key, ErrInvalidProperty)
	}
	return v, nil
}
