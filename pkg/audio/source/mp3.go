// ABOUTME: MP3 file source
// ABOUTME: Decodes MP3 to 16-bit stereo PCM with hajimehoshi/go-mp3
package source

import (
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
	"github.com/rs/zerolog/log"
)

// MP3 reads from an MP3 file
type MP3 struct {
	fileSource
}

// NewMP3 creates an MP3 source; the file is opened by Prepare
func NewMP3(path string, opts Options) *MP3 {
	return &MP3{fileSource: newFileSource(path, opts, decodeMP3)}
}

func decodeMP3(f *os.File) (io.Reader, audio.Format, error) {
	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("failed to decode MP3: %w", err)
	}

	// go-mp3 always outputs 16-bit little-endian stereo
	format := audio.Format{
		SampleRate: decoder.SampleRate(),
		Channels:   2,
		BitDepth:   16,
	}

	log.Info().
		Str("component", "source").
		Str("file", f.Name()).
		Int("sample_rate", format.SampleRate).
		Msg("Loaded MP3")

	return decoder, format, nil
}
