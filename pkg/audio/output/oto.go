// ABOUTME: Oto-based audio sink
// ABOUTME: Streams 16-bit PCM frames into a persistent oto player through a pipe
package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
	"github.com/listenbuddy/listenbuddy-go/pkg/audio/resample"
	"github.com/rs/zerolog/log"
)

// oto allows only one context per process, so it is created once and
// reused by every sink with the same format.
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat audio.Format
)

// Oto renders frames through the system audio device
type Oto struct {
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter

	mu       sync.Mutex
	released bool
}

// NewOto opens the audio device for the given format. When the device is
// already open at another sample rate the frames are resampled to it.
func NewOto(format audio.Format) (audio.Sink, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	ctx, device, err := sharedContext(format)
	if err != nil {
		return nil, err
	}

	// Persistent player fed from a pipe for continuous streaming
	pr, pw := io.Pipe()
	player := ctx.NewPlayer(pr)
	player.Play()

	log.Info().
		Str("component", "output").
		Int("sample_rate", format.SampleRate).
		Int("channels", format.Channels).
		Msg("Audio output initialized")

	sink := &Oto{player: player, pipeReader: pr, pipeWriter: pw}
	if device.SampleRate == format.SampleRate {
		return sink, nil
	}

	log.Info().
		Str("component", "output").
		Int("from", format.SampleRate).
		Int("to", device.SampleRate).
		Msg("Resampling to device rate")

	resampled, err := resample.NewSink(sink, format.SampleRate, device.SampleRate, format.Channels)
	if err != nil {
		_ = sink.Release()
		return nil, err
	}
	return resampled, nil
}

// sharedContext returns the process-wide context and the format it was
// opened with
func sharedContext(format audio.Format) (*oto.Context, audio.Format, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if err := checkDeviceFormat(otoFormat, format); err != nil {
			return nil, audio.Format{}, err
		}
		if err := otoCtx.Resume(); err != nil {
			return nil, audio.Format{}, fmt.Errorf("failed to resume oto context: %w", err)
		}
		return otoCtx, otoFormat, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	otoCtx = ctx
	otoFormat = format
	return ctx, format, nil
}

// checkDeviceFormat reports whether a stream in format can play on a device
// opened with device. Only the sample rate can be converted.
func checkDeviceFormat(device, format audio.Format) error {
	if device.Channels != format.Channels {
		return fmt.Errorf("audio device already opened with %d channels, cannot play %d", device.Channels, format.Channels)
	}
	return nil
}

// Play writes one frame; it blocks until the player has consumed it
func (o *Oto) Play(frame []byte) error {
	o.mu.Lock()
	released := o.released
	o.mu.Unlock()

	if released {
		return fmt.Errorf("output released")
	}
	if _, err := o.pipeWriter.Write(frame); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Release stops the player and suspends the device
func (o *Oto) Release() error {
	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return nil
	}
	o.released = true
	o.mu.Unlock()

	o.pipeWriter.Close()
	err := o.player.Close()
	o.pipeReader.Close()

	otoMu.Lock()
	if otoCtx != nil {
		if serr := otoCtx.Suspend(); serr != nil && err == nil {
			err = serr
		}
	}
	otoMu.Unlock()

	return err
}
