// ABOUTME: Tests for the linear resampler
// ABOUTME: Verifies interpolation, frame continuity and the sink wrapper
package resample

import (
	"testing"

	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func process(t *testing.T, r *Resampler, samples ...int16) []int16 {
	t.Helper()
	return audio.Int16LE(r.Process(audio.PutInt16LE(samples)))
}

func TestNewRejectsInvalid(t *testing.T) {
	_, err := New(0, 48000, 2)
	assert.Error(t, err)
	_, err = New(44100, -1, 2)
	assert.Error(t, err)
	_, err = New(44100, 48000, 0)
	assert.Error(t, err)
}

func TestIdentityLagsOneSample(t *testing.T) {
	r, err := New(44100, 44100, 1)
	require.NoError(t, err)

	assert.Equal(t, []int16{1, 2, 3}, process(t, r, 1, 2, 3, 4))
	assert.Equal(t, []int16{4, 5}, process(t, r, 5, 6))
}

func TestUpsampleInterpolates(t *testing.T) {
	r, err := New(22050, 44100, 1)
	require.NoError(t, err)

	assert.Equal(t, []int16{0, 50}, process(t, r, 0, 100))
	assert.Equal(t, []int16{100, 150}, process(t, r, 200))
}

func TestDownsample(t *testing.T) {
	r, err := New(48000, 24000, 1)
	require.NoError(t, err)

	assert.Equal(t, []int16{0, 20}, process(t, r, 0, 10, 20, 30, 40))
	assert.Equal(t, []int16{40}, process(t, r, 50, 60))
}

func TestStereoChannelsStaySeparate(t *testing.T) {
	r, err := New(22050, 44100, 2)
	require.NoError(t, err)

	// L: 0 -> 100, R: 1000 -> 2000
	got := process(t, r, 0, 1000, 100, 2000)
	assert.Equal(t, []int16{0, 1000, 50, 1500}, got)
}

func TestOutputLengthTracksRatio(t *testing.T) {
	r, err := New(44100, 48000, 2)
	require.NoError(t, err)

	total := 0
	for i := 0; i < 50; i++ {
		total += len(process(t, r, make([]int16, 882*2)...)) / 2
	}

	// 50 x 882 input samples at 44.1k is one second, so about 48000 out
	assert.InDelta(t, 48000, total, 2)
}

func TestEmptyAndPartialFrames(t *testing.T) {
	r, err := New(44100, 48000, 2)
	require.NoError(t, err)

	assert.Empty(t, r.Process(nil))
	assert.Empty(t, r.Process([]byte{1, 0}), "half a stereo sample is dropped")
}

func TestReset(t *testing.T) {
	r, err := New(44100, 44100, 1)
	require.NoError(t, err)

	process(t, r, 1, 2)
	r.Reset()
	assert.Equal(t, []int16{7}, process(t, r, 7, 8))
}

type recordSink struct {
	frames   [][]byte
	released bool
}

func (s *recordSink) Play(frame []byte) error {
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordSink) Release() error {
	s.released = true
	return nil
}

func TestSink(t *testing.T) {
	next := &recordSink{}
	sink, err := NewSink(next, 22050, 44100, 1)
	require.NoError(t, err)

	require.NoError(t, sink.Play(audio.PutInt16LE([]int16{7})))
	assert.Empty(t, next.frames, "a single sample produces nothing yet")

	require.NoError(t, sink.Play(audio.PutInt16LE([]int16{9})))
	require.Len(t, next.frames, 1)
	assert.Equal(t, []int16{7, 8}, audio.Int16LE(next.frames[0]))

	require.NoError(t, sink.Release())
	assert.True(t, next.released)
}
