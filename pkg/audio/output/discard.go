// ABOUTME: Discarding audio sink
// ABOUTME: Accepts frames without a device, for headless runs
package output

import (
	"sync/atomic"

	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
)

// Discard drops every frame but keeps count
type Discard struct {
	format audio.Format
	frames atomic.Int64
	bytes  atomic.Int64
}

// NewDiscard returns a sink that plays nothing
func NewDiscard(format audio.Format) (audio.Sink, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &Discard{format: format}, nil
}

// Play counts the frame
func (d *Discard) Play(frame []byte) error {
	d.frames.Add(1)
	d.bytes.Add(int64(len(frame)))
	return nil
}

// Release is a no-op
func (d *Discard) Release() error { return nil }

// Frames returns how many frames were played
func (d *Discard) Frames() int64 { return d.frames.Load() }

// Bytes returns how many bytes were played
func (d *Discard) Bytes() int64 { return d.bytes.Load() }
