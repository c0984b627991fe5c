// ABOUTME: WAV file source
// ABOUTME: Parses RIFF/WAVE chunks and streams the 16-bit PCM data chunk
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
)

const wavFormatPCM = 1

// WAV reads from an uncompressed PCM WAV file
type WAV struct {
	fileSource
}

// NewWAV creates a WAV source; the file is opened by Prepare
func NewWAV(path string, opts Options) *WAV {
	return &WAV{fileSource: newFileSource(path, opts, decodeWAV)}
}

// riffHeader is the fixed preamble of a WAV file
type riffHeader struct {
	ChunkID   [4]byte // "RIFF"
	ChunkSize uint32
	Format    [4]byte // "WAVE"
}

// chunkHeader precedes every sub-chunk
type chunkHeader struct {
	ID   [4]byte
	Size uint32
}

// fmtChunk is the PCM portion of the "fmt " chunk
type fmtChunk struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

func decodeWAV(f *os.File) (io.Reader, audio.Format, error) {
	return parseWAV(f)
}

// parseWAV walks the chunk list and returns a reader positioned on the data chunk
func parseWAV(r io.Reader) (io.Reader, audio.Format, error) {
	var riff riffHeader
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return nil, audio.Format{}, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if string(riff.ChunkID[:]) != "RIFF" || string(riff.Format[:]) != "WAVE" {
		return nil, audio.Format{}, fmt.Errorf("not a WAV file")
	}

	var (
		format  fmtChunk
		haveFmt bool
	)

	for {
		var ch chunkHeader
		if err := binary.Read(r, binary.LittleEndian, &ch); err != nil {
			return nil, audio.Format{}, fmt.Errorf("WAV data chunk not found: %w", err)
		}

		switch string(ch.ID[:]) {
		case "fmt ":
			if ch.Size < 16 {
				return nil, audio.Format{}, fmt.Errorf("WAV fmt chunk too short: %d bytes", ch.Size)
			}
			if err := binary.Read(r, binary.LittleEndian, &format); err != nil {
				return nil, audio.Format{}, fmt.Errorf("failed to read WAV fmt chunk: %w", err)
			}
			if err := skip(r, int64(ch.Size)-16+int64(ch.Size&1)); err != nil {
				return nil, audio.Format{}, err
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, audio.Format{}, fmt.Errorf("WAV data chunk before fmt chunk")
			}
			if format.AudioFormat != wavFormatPCM {
				return nil, audio.Format{}, fmt.Errorf("unsupported WAV encoding: %d (only PCM)", format.AudioFormat)
			}
			if format.BitsPerSample != 16 {
				return nil, audio.Format{}, fmt.Errorf("unsupported WAV bit depth: %d (only 16-bit)", format.BitsPerSample)
			}
			return io.LimitReader(r, int64(ch.Size)), audio.Format{
				SampleRate: int(format.SampleRate),
				Channels:   int(format.NumChannels),
				BitDepth:   16,
			}, nil

		default:
			// LIST, fact and friends; chunks are word aligned
			if err := skip(r, int64(ch.Size)+int64(ch.Size&1)); err != nil {
				return nil, audio.Format{}, err
			}
		}
	}
}

func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("truncated WAV chunk: %w", err)
	}
	return nil
}
