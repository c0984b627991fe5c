// ABOUTME: Audio sources that decode files into paced PCM frames
// ABOUTME: Shared produce loop, options and extension-based Open
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
)

const (
	// DefaultChunkDuration is the amount of audio carried by one frame
	DefaultChunkDuration = 20 * time.Millisecond

	// DefaultLead is how far ahead of real time a paced source may run
	DefaultLead = 100 * time.Millisecond
)

// ErrNotPrepared is returned by Produce when Prepare has not succeeded
var ErrNotPrepared = errors.New("source not prepared")

// Options tune how a source slices and paces its output
type Options struct {
	// ChunkDuration is the audio length of each frame (default 20ms)
	ChunkDuration time.Duration

	// Realtime paces emission to the playback rate. Without it frames are
	// emitted as fast as they decode.
	Realtime bool

	// Lead is how far ahead of the wall clock a realtime source may run
	Lead time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChunkDuration <= 0 {
		o.ChunkDuration = DefaultChunkDuration
	}
	if o.Lead <= 0 {
		o.Lead = DefaultLead
	}
	return o
}

// Open returns an unprepared source for the file, chosen by extension
func Open(path string, opts Options) (audio.Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		return NewMP3(path, opts), nil
	case ".flac":
		return NewFLAC(path, opts), nil
	case ".wav", ".wave":
		return NewWAV(path, opts), nil
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac, .wav)", ext)
	}
}

// decodeFunc turns an open file into a 16-bit little-endian PCM reader
type decodeFunc func(f *os.File) (io.Reader, audio.Format, error)

// fileSource holds the file lifecycle shared by all decoders
type fileSource struct {
	path   string
	opts   Options
	decode decodeFunc

	mu     sync.Mutex
	file   *os.File
	pcm    io.Reader
	format audio.Format
}

func newFileSource(path string, opts Options, decode decodeFunc) fileSource {
	return fileSource{path: path, opts: opts.withDefaults(), decode: decode}
}

// Prepare opens the file and initialises the decoder
func (s *fileSource) Prepare() (audio.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pcm != nil {
		return s.format, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return audio.Format{}, fmt.Errorf("failed to open audio file: %w", err)
	}

	pcm, format, err := s.decode(f)
	if err != nil {
		f.Close()
		return audio.Format{}, err
	}
	if err := format.Validate(); err != nil {
		f.Close()
		return audio.Format{}, err
	}

	s.file = f
	s.pcm = pcm
	s.format = format
	return format, nil
}

// Produce emits the decoded file as frames
func (s *fileSource) Produce(ctx context.Context, emit func([]byte)) error {
	s.mu.Lock()
	pcm, format := s.pcm, s.format
	s.mu.Unlock()

	if pcm == nil {
		return ErrNotPrepared
	}
	return produce(ctx, pcm, format, s.opts, emit)
}

// Release closes the file
func (s *fileSource) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pcm = nil
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// produce slices r into frames of opts.ChunkDuration and hands them to emit
func produce(ctx context.Context, r io.Reader, format audio.Format, opts Options, emit func([]byte)) error {
	size := format.ChunkBytes(opts.ChunkDuration)
	align := format.BlockAlign()

	var p *pacer
	if opts.Realtime {
		p = newPacer(format, opts.Lead)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		buf := make([]byte, size)
		n, err := io.ReadFull(r, buf)
		n -= n % align
		if n > 0 {
			emit(buf[:n])
			if p != nil {
				if werr := p.wait(ctx, n); werr != nil {
					return werr
				}
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return fmt.Errorf("decode: %w", err)
		}
	}
}

// pacer keeps emission within lead of the wall clock
type pacer struct {
	format  audio.Format
	lead    time.Duration
	start   time.Time
	emitted int
}

func newPacer(format audio.Format, lead time.Duration) *pacer {
	return &pacer{format: format, lead: lead, start: time.Now()}
}

func (p *pacer) wait(ctx context.Context, n int) error {
	p.emitted += n
	due := p.start.Add(p.format.Duration(p.emitted) - p.lead)

	delay := time.Until(due)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
