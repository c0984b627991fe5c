// ABOUTME: Stream header and frame codec
// ABOUTME: Big-endian uint32 header pair followed by length-prefixed PCM frames
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
)

const (
	// HeaderSize is the encoded size of a StreamHeader
	HeaderSize = 8

	// FrameLengthSize is the size of the length prefix in front of every frame
	FrameLengthSize = 4

	// MaxFrameSize caps the payload a reader will allocate for one frame
	MaxFrameSize = 4 << 20
)

var (
	// ErrEndOfStream is returned by ReadFrame when the peer sent a non-positive length
	ErrEndOfStream = errors.New("end of stream")

	// ErrFrameTooLarge is returned by ReadFrame when the length prefix exceeds the limit
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// StreamHeader describes the PCM format of a stream. It is written once per
// connection, before the first frame.
type StreamHeader struct {
	SampleRate uint32
	Channels   uint32
}

// MarshalBinary encodes the header as two big-endian uint32 values
func (h StreamHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.SampleRate)
	binary.BigEndian.PutUint32(buf[4:8], h.Channels)
	return buf, nil
}

// UnmarshalBinary decodes a header produced by MarshalBinary
func (h *StreamHeader) UnmarshalBinary(data []byte) error {
	if len(data) != HeaderSize {
		return fmt.Errorf("stream header must be %d bytes, got %d", HeaderSize, len(data))
	}
	h.SampleRate = binary.BigEndian.Uint32(data[0:4])
	h.Channels = binary.BigEndian.Uint32(data[4:8])
	return nil
}

// WriteHeader writes the stream header
func WriteHeader(w io.Writer, h StreamHeader) error {
	buf, _ := h.MarshalBinary()
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write stream header: %w", err)
	}
	return nil
}

// ReadHeader reads exactly one stream header
func ReadHeader(r io.Reader) (StreamHeader, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return StreamHeader{}, fmt.Errorf("read stream header: %w", err)
	}

	var h StreamHeader
	if err := h.UnmarshalBinary(buf); err != nil {
		return StreamHeader{}, err
	}
	return h, nil
}

// WriteFrame writes one length-prefixed frame. An empty payload produces the
// end-of-stream marker.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > math.MaxInt32 {
		return ErrFrameTooLarge
	}

	var prefix [FrameLengthSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))

	// net.Buffers turns into a single writev on TCP connections
	bufs := net.Buffers{prefix[:], payload}
	if _, err := bufs.WriteTo(w); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteEndOfStream writes the explicit end-of-stream marker
func WriteEndOfStream(w io.Writer) error {
	return WriteFrame(w, nil)
}

// ReadFrame reads one frame. It returns ErrEndOfStream when the length prefix
// is zero or negative, and io.EOF when the connection closed cleanly between
// frames. Payloads longer than maxSize are rejected; maxSize <= 0 means
// MaxFrameSize.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxFrameSize
	}

	var prefix [FrameLengthSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	length := int32(binary.BigEndian.Uint32(prefix[:]))
	if length <= 0 {
		return nil, ErrEndOfStream
	}
	if int64(length) > int64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}
