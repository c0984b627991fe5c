// ABOUTME: FLAC file source
// ABOUTME: Decodes FLAC frames with mewkiz/flac and re-packs them as 16-bit PCM
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
	"github.com/mewkiz/flac"
	"github.com/rs/zerolog/log"
)

// FLAC reads from a FLAC file
type FLAC struct {
	fileSource
}

// NewFLAC creates a FLAC source; the file is opened by Prepare
func NewFLAC(path string, opts Options) *FLAC {
	return &FLAC{fileSource: newFileSource(path, opts, decodeFLAC)}
}

func decodeFLAC(f *os.File) (io.Reader, audio.Format, error) {
	stream, err := flac.New(f)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	format := audio.Format{
		SampleRate: int(info.SampleRate),
		Channels:   int(info.NChannels),
		BitDepth:   16,
	}

	log.Info().
		Str("component", "source").
		Str("file", f.Name()).
		Int("sample_rate", format.SampleRate).
		Int("channels", format.Channels).
		Int("bit_depth", int(info.BitsPerSample)).
		Msg("Loaded FLAC")

	return &flacReader{stream: stream, channels: format.Channels, bitDepth: int(info.BitsPerSample)}, format, nil
}

// flacReader exposes decoded FLAC frames as an interleaved 16-bit byte stream
type flacReader struct {
	stream   *flac.Stream
	channels int
	bitDepth int
	pending  []byte
}

func (r *flacReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		frame, err := r.stream.ParseNext()
		if err != nil {
			return 0, err
		}

		blockSize := int(frame.BlockSize)
		buf := make([]byte, 0, blockSize*r.channels*2)
		for i := 0; i < blockSize; i++ {
			for ch := 0; ch < r.channels; ch++ {
				sample := audio.ScaleToInt16(frame.Subframes[ch].Samples[i], r.bitDepth)
				buf = binary.LittleEndian.AppendUint16(buf, uint16(sample))
			}
		}
		r.pending = buf
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
