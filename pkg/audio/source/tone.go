// ABOUTME: Test tone source
// ABOUTME: Generates a sine wave, optionally bounded in length
package source

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
)

// ToneConfig configures a test tone
type ToneConfig struct {
	SampleRate int
	Channels   int
	Frequency  float64

	// Duration bounds the tone; zero means endless
	Duration time.Duration

	Options Options
}

// Tone generates a sine wave for testing
type Tone struct {
	config ToneConfig

	mu          sync.Mutex
	prepared    bool
	sampleIndex uint64
}

// NewTone creates a test tone generator. Defaults: 44100Hz stereo 440Hz.
func NewTone(config ToneConfig) *Tone {
	if config.SampleRate == 0 {
		config.SampleRate = 44100
	}
	if config.Channels == 0 {
		config.Channels = 2
	}
	if config.Frequency == 0 {
		config.Frequency = 440.0 // A4 note
	}
	config.Options = config.Options.withDefaults()

	return &Tone{config: config}
}

func (t *Tone) format() audio.Format {
	return audio.Format{SampleRate: t.config.SampleRate, Channels: t.config.Channels, BitDepth: 16}
}

// Prepare reports the tone format
func (t *Tone) Prepare() (audio.Format, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prepared = true
	t.sampleIndex = 0
	return t.format(), nil
}

// Produce emits the tone until Duration elapses or ctx is cancelled
func (t *Tone) Produce(ctx context.Context, emit func([]byte)) error {
	t.mu.Lock()
	prepared := t.prepared
	t.mu.Unlock()

	if !prepared {
		return ErrNotPrepared
	}

	var r io.Reader = readerFunc(t.read)
	if t.config.Duration > 0 {
		format := t.format()
		total := int64(format.ChunkBytes(t.config.Duration))
		r = io.LimitReader(r, total)
	}
	return produce(ctx, r, t.format(), t.config.Options, emit)
}

// Release resets the generator
func (t *Tone) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prepared = false
	return nil
}

// read fills p with whole samples of the sine wave
func (t *Tone) read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	channels := t.config.Channels
	frames := len(p) / (channels * 2)
	samples := make([]int16, 0, frames*channels)

	for i := 0; i < frames; i++ {
		x := float64(t.sampleIndex+uint64(i)) / float64(t.config.SampleRate)
		// 50% volume to avoid clipping
		v := int16(math.Sin(2*math.Pi*t.config.Frequency*x) * 32767.0 * 0.5)
		for ch := 0; ch < channels; ch++ {
			samples = append(samples, v)
		}
	}
	t.sampleIndex += uint64(frames)

	return copy(p, audio.PutInt16LE(samples)), nil
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
