// Package signal converts audio samples between go-audio buffers and raw
// interleaved S16LE data carried by graph buffers. It allows to:
//   - encode int samples of any bit depth as S16LE
//   - decode S16LE into int samples of any bit depth
//   - compute sample and duration offsets
package signal

import (
	"encoding/binary"
	"time"

	"github.com/go-audio/audio"
)

// Format is the raw sample format name used in caps.
const Format = "S16LE"

// sampleSize is the size of a single S16LE sample in bytes.
const sampleSize = 2

// BitDepth of int samples.
type BitDepth int

const (
	// BitDepth8 is 8 bit depth.
	BitDepth8 = BitDepth(8)
	// BitDepth16 is 16 bit depth.
	BitDepth16 = BitDepth(16)
	// BitDepth24 is 24 bit depth.
	BitDepth24 = BitDepth(24)
	// BitDepth32 is 32 bit depth.
	BitDepth32 = BitDepth(32)
)

// to16 converts sample of this bit depth to 16 bit.
func (bitDepth BitDepth) to16(v int) int {
	switch bitDepth {
	case BitDepth8:
		// 8 bit wav samples are unsigned.
		return (v - 128) << 8
	case BitDepth24:
		return v >> 8
	case BitDepth32:
		return v >> 16
	}
	return v
}

// from16 converts 16 bit sample to this bit depth.
func (bitDepth BitDepth) from16(v int) int {
	switch bitDepth {
	case BitDepth8:
		return v>>8 + 128
	case BitDepth24:
		return v << 8
	case BitDepth32:
		return v << 16
	}
	return v
}

// DurationOf returns time duration of passed samples for this sample rate.
func DurationOf(sampleRate int, samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// SamplesOf returns number of samples per channel in the duration.
func SamplesOf(sampleRate int, d time.Duration) int64 {
	return int64(d) * int64(sampleRate) / int64(time.Second)
}

// Encode converts interleaved int samples to S16LE data.
func Encode(ib *audio.IntBuffer) []byte {
	bitDepth := BitDepth(ib.SourceBitDepth)
	data := make([]byte, len(ib.Data)*sampleSize)
	for i, v := range ib.Data {
		binary.LittleEndian.PutUint16(data[i*sampleSize:], uint16(int16(bitDepth.to16(v))))
	}
	return data
}

// Decode converts S16LE data to interleaved int samples of provided
// format and bit depth. Trailing incomplete sample is ignored.
func Decode(data []byte, format *audio.Format, bitDepth BitDepth) *audio.IntBuffer {
	ib := &audio.IntBuffer{
		Format:         format,
		Data:           make([]int, len(data)/sampleSize),
		SourceBitDepth: int(bitDepth),
	}
	for i := range ib.Data {
		v := int(int16(binary.LittleEndian.Uint16(data[i*sampleSize:])))
		ib.Data[i] = bitDepth.from16(v)
	}
	return ib
}

// Frames returns number of frames in S16LE data.
func Frames(data []byte, numChannels int) int {
	if numChannels <= 0 {
		return 0
	}
	return len(data) / (sampleSize * numChannels)
}
