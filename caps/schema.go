package caps

import "fmt"

// known media types
const (
	AudioRaw  = "audio/x-raw"
	AudioWav  = "audio/x-wav"
	AudioMpeg = "audio/mpeg"
	VideoRaw  = "video/x-raw"
	VideoH264 = "video/x-h264"
	TextRaw   = "text/x-raw"
)

// Schema describes typed fields of a known media type.
type Schema struct {
	Name   string
	Fields map[string]Kind
}

var schemas = map[string]Schema{
	AudioRaw: {
		Name: AudioRaw,
		Fields: map[string]Kind{
			"format":   KindString,
			"rate":     KindInt,
			"channels": KindInt,
			"layout":   KindString,
		},
	},
	AudioWav: {
		Name:   AudioWav,
		Fields: map[string]Kind{},
	},
	AudioMpeg: {
		Name: AudioMpeg,
		Fields: map[string]Kind{
			"mpegversion": KindInt,
			"layer":       KindInt,
			"rate":        KindInt,
			"channels":    KindInt,
		},
	},
	VideoRaw: {
		Name: VideoRaw,
		Fields: map[string]Kind{
			"format":    KindString,
			"width":     KindInt,
			"height":    KindInt,
			"framerate": KindFraction,
		},
	},
	VideoH264: {
		Name: VideoH264,
		Fields: map[string]Kind{
			"stream-format": KindString,
			"alignment":     KindString,
			"width":         KindInt,
			"height":        KindInt,
			"framerate":     KindFraction,
		},
	},
	TextRaw: {
		Name: TextRaw,
		Fields: map[string]Kind{
			"format": KindString,
		},
	},
}

// Lookup returns the schema of a known media type.
func Lookup(name string) (Schema, bool) {
	s, ok := schemas[name]
	return s, ok
}

// Validate checks that typed fields of a known media type hold values of
// the right kind. Structures of unknown media types are always valid.
func (s Structure) Validate() error {
	schema, ok := Lookup(s.Name)
	if !ok {
		return nil
	}
	for _, f := range s.fields {
		k, typed := schema.Fields[f.Name]
		if !typed {
			continue
		}
		if f.Value.Kind().base() != k {
			return fmt.Errorf("%s: field %s must be %v, got %v: %w", s.Name, f.Name, k, f.Value.Kind(), ErrFieldKind)
		}
	}
	return nil
}
