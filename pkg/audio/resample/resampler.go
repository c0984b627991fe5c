// ABOUTME: Linear resampler for 16-bit interleaved PCM frames
// ABOUTME: Converts a stream between sample rates, carrying state across frames
package resample

import (
	"fmt"
	"math"

	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
)

// Resampler performs linear interpolation between sample rates. Frames must
// be fed in stream order; output lags input by one sample.
type Resampler struct {
	channels int
	step     float64 // input samples per output sample
	pos      float64 // read position, 0 is the carried sample
	prev     []int16 // last input sample, one value per channel
}

// New creates a resampler from inputRate to outputRate
func New(inputRate, outputRate, channels int) (*Resampler, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: %d -> %d", inputRate, outputRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	return &Resampler{
		channels: channels,
		step:     float64(inputRate) / float64(outputRate),
	}, nil
}

// Process converts one 16-bit little-endian frame. A trailing partial sample
// is ignored. The result may be empty.
func (r *Resampler) Process(frame []byte) []byte {
	in := audio.Int16LE(frame)
	in = in[:len(in)/r.channels*r.channels]
	if len(in) == 0 {
		return nil
	}

	buf := in
	if r.prev != nil {
		buf = make([]int16, 0, len(r.prev)+len(in))
		buf = append(buf, r.prev...)
		buf = append(buf, in...)
	}
	n := len(buf) / r.channels

	out := make([]int16, 0, (int(float64(n)/r.step)+1)*r.channels)
	for {
		i := int(r.pos)
		if i+1 >= n {
			break
		}
		frac := r.pos - float64(i)
		for ch := 0; ch < r.channels; ch++ {
			a := float64(buf[i*r.channels+ch])
			b := float64(buf[(i+1)*r.channels+ch])
			out = append(out, int16(math.Round(a+(b-a)*frac)))
		}
		r.pos += r.step
	}

	r.pos -= float64(n - 1)
	r.prev = append(r.prev[:0], buf[(n-1)*r.channels:]...)
	return audio.PutInt16LE(out)
}

// Reset drops the carried sample and position
func (r *Resampler) Reset() {
	r.pos = 0
	r.prev = nil
}

// Sink resamples frames before handing them to another sink
type Sink struct {
	next audio.Sink
	r    *Resampler
}

// NewSink wraps next so frames at inputRate are played at outputRate
func NewSink(next audio.Sink, inputRate, outputRate, channels int) (*Sink, error) {
	r, err := New(inputRate, outputRate, channels)
	if err != nil {
		return nil, err
	}
	return &Sink{next: next, r: r}, nil
}

// Play resamples and forwards one frame
func (s *Sink) Play(frame []byte) error {
	out := s.r.Process(frame)
	if len(out) == 0 {
		return nil
	}
	return s.next.Play(out)
}

// Release releases the wrapped sink
func (s *Sink) Release() error {
	return s.next.Release()
}
