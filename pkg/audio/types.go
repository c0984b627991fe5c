// ABOUTME: Audio type definitions
// ABOUTME: Defines the PCM format and the Source/Sink collaborator interfaces
package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"
)

// DefaultBitDepth is the sample width carried on the wire
const DefaultBitDepth = 16

// Format describes a PCM stream. Frames are signed little-endian samples,
// interleaved by channel.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Validate reports whether the format can be streamed
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	if f.BitDepth != 0 && f.BitDepth != DefaultBitDepth {
		return fmt.Errorf("unsupported bit depth: %d (only 16-bit PCM)", f.BitDepth)
	}
	return nil
}

// BlockAlign is the number of bytes for one sample across all channels
func (f Format) BlockAlign() int {
	depth := f.BitDepth
	if depth == 0 {
		depth = DefaultBitDepth
	}
	return f.Channels * depth / 8
}

// BytesPerSecond is the data rate of the stream
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BlockAlign()
}

// ChunkBytes returns the frame size covering roughly d of audio, rounded down
// to a whole number of samples (minimum one sample).
func (f Format) ChunkBytes(d time.Duration) int {
	align := f.BlockAlign()
	if align <= 0 {
		return 0
	}
	samples := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	if samples < 1 {
		samples = 1
	}
	return samples * align
}

// Duration returns how much audio n bytes of this format hold
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

// Source decodes audio into PCM frames
type Source interface {
	// Prepare opens the input and reports its format
	Prepare() (Format, error)

	// Produce calls emit for each decoded frame in order. It returns nil when
	// the input is exhausted, ctx.Err() when cancelled, or the decode error.
	// Every emitted slice is freshly allocated and owned by the callee.
	Produce(ctx context.Context, emit func(frame []byte)) error

	// Release frees the input. Safe to call more than once or before Prepare.
	Release() error
}

// Sink renders PCM frames to an output device
type Sink interface {
	// Play renders one frame (blocks until accepted by the device)
	Play(frame []byte) error

	// Release frees the device
	Release() error
}

// SinkFactory opens a Sink for the given format
type SinkFactory func(Format) (Sink, error)

// ScaleToInt16 rescales a sample of the given bit depth to 16 bits.
// Deeper samples are truncated, shallower ones left-justified.
func ScaleToInt16(sample int32, bitDepth int) int16 {
	shift := bitDepth - 16
	if shift > 0 {
		return int16(sample >> shift)
	}
	return int16(sample << -shift)
}

// PutInt16LE writes samples as 16-bit little-endian PCM into a new frame
func PutInt16LE(samples []int16) []byte {
	frame := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(s))
	}
	return frame
}

// Int16LE reads a 16-bit little-endian PCM frame; a trailing odd byte is ignored
func Int16LE(frame []byte) []int16 {
	samples := make([]int16, len(frame)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(frame[i*2:]))
	}
	return samples
}
