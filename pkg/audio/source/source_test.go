// ABOUTME: Tests for audio sources
// ABOUTME: Covers tone generation, WAV parsing, pacing and lifecycle rules
package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, src audio.Source) [][]byte {
	t.Helper()

	var frames [][]byte
	err := src.Produce(context.Background(), func(frame []byte) {
		frames = append(frames, frame)
	})
	require.NoError(t, err)
	return frames
}

func TestToneBoundedDuration(t *testing.T) {
	tone := NewTone(ToneConfig{
		SampleRate: 8000,
		Channels:   1,
		Duration:   100 * time.Millisecond,
	})

	format, err := tone.Prepare()
	require.NoError(t, err)
	assert.Equal(t, audio.Format{SampleRate: 8000, Channels: 1, BitDepth: 16}, format)

	frames := collect(t, tone)
	require.Len(t, frames, 5)

	total := 0
	for _, f := range frames {
		assert.Equal(t, 320, len(f), "20ms of 8kHz mono 16-bit")
		total += len(f)
	}
	assert.Equal(t, 1600, total)
}

func TestToneFramesAreIndependent(t *testing.T) {
	tone := NewTone(ToneConfig{SampleRate: 8000, Channels: 2, Duration: 60 * time.Millisecond})
	_, err := tone.Prepare()
	require.NoError(t, err)

	frames := collect(t, tone)
	require.GreaterOrEqual(t, len(frames), 2)

	frames[0][0] ^= 0xFF
	assert.NotSame(t, &frames[0][0], &frames[1][0])
}

func TestToneProduceBeforePrepare(t *testing.T) {
	tone := NewTone(ToneConfig{})
	err := tone.Produce(context.Background(), func([]byte) {})
	assert.ErrorIs(t, err, ErrNotPrepared)
}

func TestToneCancel(t *testing.T) {
	tone := NewTone(ToneConfig{Options: Options{Realtime: true}})
	_, err := tone.Prepare()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	var count int
	err = tone.Produce(ctx, func([]byte) { count++ })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Greater(t, count, 0)
}

func TestRealtimePacing(t *testing.T) {
	tone := NewTone(ToneConfig{
		SampleRate: 8000,
		Channels:   1,
		Duration:   300 * time.Millisecond,
		Options:    Options{Realtime: true, Lead: 50 * time.Millisecond},
	})
	_, err := tone.Prepare()
	require.NoError(t, err)

	start := time.Now()
	collect(t, tone)

	// 300ms of audio with 50ms lead cannot finish much faster than 250ms
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestReleaseIsIdempotent(t *testing.T) {
	wav := NewWAV(filepath.Join(t.TempDir(), "missing.wav"), Options{})
	assert.NoError(t, wav.Release())
	assert.NoError(t, wav.Release())

	tone := NewTone(ToneConfig{})
	assert.NoError(t, tone.Release())
	assert.NoError(t, tone.Release())
}

// writeWAV builds a 16-bit PCM WAV file with an extra LIST chunk before data
func writeWAV(t *testing.T, sampleRate, channels int, samples []int16) string {
	t.Helper()

	data := audio.PutInt16LE(samples)
	list := []byte("INFOtest")

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(4+8+16+8+len(list)+8+len(data)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, fmtChunk{
		AudioFormat:   wavFormatPCM,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * 2),
		BlockAlign:    uint16(channels * 2),
		BitsPerSample: 16,
	})

	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(len(list)))
	buf.Write(list)

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)

	path := filepath.Join(t.TempDir(), "test.wav")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestWAVSource(t *testing.T) {
	samples := make([]int16, 8000*2/10) // 100ms of 8kHz stereo
	for i := range samples {
		samples[i] = int16(i)
	}
	path := writeWAV(t, 8000, 2, samples)

	src, err := Open(path, Options{})
	require.NoError(t, err)
	defer src.Release()

	format, err := src.Prepare()
	require.NoError(t, err)
	assert.Equal(t, audio.Format{SampleRate: 8000, Channels: 2, BitDepth: 16}, format)

	var pcm []byte
	for _, f := range collect(t, src) {
		pcm = append(pcm, f...)
	}
	assert.Equal(t, audio.PutInt16LE(samples), pcm)
}

func TestWAVRejectsNonPCM(t *testing.T) {
	_, _, err := parseWAV(bytes.NewReader([]byte("RIFF\x00\x00\x00\x00WAVX")))
	assert.Error(t, err)
}

func TestOpenUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.ogg")
	require.NoError(t, os.WriteFile(path, []byte("OggS"), 0o644))

	_, err := Open(path, Options{})
	assert.ErrorContains(t, err, "unsupported audio format")
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.mp3"), Options{})
	assert.Error(t, err)
}

func TestOpenByExtension(t *testing.T) {
	dir := t.TempDir()
	for name, want := range map[string]any{
		"a.mp3":  &MP3{},
		"b.FLAC": &FLAC{},
		"c.wav":  &WAV{},
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		src, err := Open(path, Options{})
		require.NoError(t, err)
		assert.IsType(t, want, src, name)
	}
}

func TestPrepareCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.flac")
	require.NoError(t, os.WriteFile(path, []byte("not flac at all"), 0o644))

	src := NewFLAC(path, Options{})
	_, err := src.Prepare()
	assert.Error(t, err)
	assert.NoError(t, src.Release())
}
