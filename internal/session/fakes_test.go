// ABOUTME: Test doubles for session tests
// ABOUTME: Scripted audio source and recording audio sink
package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/listenbuddy/listenbuddy-go/internal/discovery"
	"github.com/listenbuddy/listenbuddy-go/internal/netenv"
	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
	"github.com/stretchr/testify/require"
)

var testFormat = audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}

// fakeSource emits its frames once gate is closed (or immediately when gate
// is nil), then returns produceErr. With hold set it blocks until cancelled.
type fakeSource struct {
	format     audio.Format
	prepareErr error
	produceErr error
	releaseErr error
	frames     [][]byte
	gate       chan struct{}
	hold       bool

	mu       sync.Mutex
	released int
}

func (f *fakeSource) Prepare() (audio.Format, error) {
	if f.prepareErr != nil {
		return audio.Format{}, f.prepareErr
	}
	return f.format, nil
}

func (f *fakeSource) Produce(ctx context.Context, emit func([]byte)) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, frame := range f.frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(frame)
	}

	if f.hold {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.produceErr
}

func (f *fakeSource) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return f.releaseErr
}

func (f *fakeSource) releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// fakeSink records frames and releases
type fakeSink struct {
	mu       sync.Mutex
	format   audio.Format
	frames   [][]byte
	released int
}

func (s *fakeSink) Play(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
	return nil
}

func (s *fakeSink) played() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *fakeSink) releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// sinks hands out fakeSinks and remembers them
type sinks struct {
	mu     sync.Mutex
	err    error
	opened []*fakeSink
}

func (s *sinks) open(format audio.Format) (audio.Sink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	sink := &fakeSink{format: format}
	s.opened = append(s.opened, sink)
	return sink, nil
}

func (s *sinks) last() *fakeSink {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.opened) == 0 {
		return nil
	}
	return s.opened[len(s.opened)-1]
}

func frames(n, size int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = make([]byte, size)
		out[i][0] = byte(i)
	}
	return out
}

func loopbackEnv() *netenv.Static {
	return &netenv.Static{Broadcast: net.IPv4(127, 0, 0, 1)}
}

// unusedUDPPort returns a port nobody listens on, so broadcasts go nowhere
func unusedUDPPort(t *testing.T) int {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

func localServer(port int) discovery.ServerDescriptor {
	return discovery.ServerDescriptor{Name: "Office", Address: "127.0.0.1", Port: port}
}

var errBoom = errors.New("boom")

const waitFor = 3 * time.Second
const tick = 5 * time.Millisecond
