// ABOUTME: Receiver session state machine
// ABOUTME: Drives discovery, the stream connection and local playback
package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/listenbuddy/listenbuddy-go/internal/discovery"
	"github.com/listenbuddy/listenbuddy-go/internal/metrics"
	"github.com/listenbuddy/listenbuddy-go/internal/stream"
	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
	"github.com/listenbuddy/listenbuddy-go/pkg/audio/output"
	"github.com/listenbuddy/listenbuddy-go/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// DefaultPlaybackQueueSize is the receiver's playback queue capacity
const DefaultPlaybackQueueSize = 10

// ReceiverPhase is the lifecycle phase of a receiver
type ReceiverPhase int

const (
	ReceiverIdle ReceiverPhase = iota
	ReceiverDiscovering
	ReceiverConnecting
	ReceiverStreaming
	ReceiverDisconnected
)

func (p ReceiverPhase) String() string {
	switch p {
	case ReceiverIdle:
		return "idle"
	case ReceiverDiscovering:
		return "discovering"
	case ReceiverConnecting:
		return "connecting"
	case ReceiverStreaming:
		return "streaming"
	case ReceiverDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ReceiverState is an immutable snapshot of a receiver. Servers is never
// modified in place.
type ReceiverState struct {
	Phase       ReceiverPhase
	Discovering bool
	Status      string
	Servers     []discovery.ServerDescriptor
	Connected   *discovery.ServerDescriptor
	Header      protocol.StreamHeader
	Version     uint64
}

// ReceiverConfig holds receiver configuration
type ReceiverConfig struct {
	Discovery discovery.ListenerConfig

	// Sinks opens the audio output once the stream format is known.
	// Default output.NewOto.
	Sinks audio.SinkFactory

	PlaybackQueueSize int // default DefaultPlaybackQueueSize

	// MDNS browses for servers over mDNS alongside the UDP listener
	MDNS        bool
	MDNSTimeout time.Duration

	Metrics *metrics.Metrics

	// OnChange receives every new snapshot. It must not block on calls into
	// the receiver.
	OnChange func(ReceiverState)
}

// Receiver is the listening side of a session
type Receiver struct {
	config ReceiverConfig
	dialer stream.Dialer
	state  *stateHolder[ReceiverState]

	// opMu serializes Connect and Disconnect
	opMu sync.Mutex

	mu       sync.Mutex
	listener *discovery.Listener
	browser  *discovery.MDNSBrowser
	conn     *connection
}

// connection is one stream connection run by runConnection
type connection struct {
	server discovery.ServerDescriptor
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReceiver creates an idle receiver
func NewReceiver(config ReceiverConfig) *Receiver {
	if config.Sinks == nil {
		config.Sinks = output.NewOto
	}
	if config.PlaybackQueueSize <= 0 {
		config.PlaybackQueueSize = DefaultPlaybackQueueSize
	}
	if config.Discovery.Metrics == nil {
		config.Discovery.Metrics = config.Metrics
	}

	initial := ReceiverState{Phase: ReceiverIdle, Status: "Idle"}
	return &Receiver{
		config: config,
		dialer: stream.Dialer{Metrics: config.Metrics},
		state: newStateHolder(initial,
			func(s *ReceiverState, v uint64) { s.Version = v },
			config.OnChange),
	}
}

// State returns the current snapshot
func (r *Receiver) State() ReceiverState {
	return r.state.Load()
}

// StartDiscovery clears the server list and listens for announcements.
// It does nothing if discovery is already running.
func (r *Receiver) StartDiscovery() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listener != nil {
		return nil
	}

	r.state.Update(func(s ReceiverState) ReceiverState {
		s.Servers = nil
		s.Discovering = true
		s.Status = "Searching for servers..."
		if s.Phase == ReceiverIdle || s.Phase == ReceiverDisconnected {
			s.Phase = ReceiverDiscovering
		}
		return s
	})

	listener := discovery.NewListener(r.config.Discovery)
	if err := listener.Start(r.addServer); err != nil {
		log.Error().Str("component", "receiver").Err(err).Msg("Failed to start discovery")
		r.state.Update(func(s ReceiverState) ReceiverState {
			s.Discovering = false
			s.Status = fmt.Sprintf("Discovery failed: %v", err)
			if s.Phase == ReceiverDiscovering {
				s.Phase = ReceiverIdle
			}
			return s
		})
		return err
	}
	r.listener = listener

	if r.config.MDNS {
		browser := discovery.NewMDNSBrowser(r.config.MDNSTimeout)
		if err := browser.Start(r.addServer); err != nil {
			log.Warn().Str("component", "receiver").Err(err).Msg("mDNS browse unavailable")
		} else {
			r.browser = browser
		}
	}

	return nil
}

// StopDiscovery stops listening. The receiver returns to Idle unless a
// connection is active.
func (r *Receiver) StopDiscovery() {
	r.mu.Lock()
	listener, browser := r.listener, r.browser
	r.listener, r.browser = nil, nil
	r.mu.Unlock()

	if listener != nil {
		listener.Stop()
	}
	if browser != nil {
		browser.Stop()
	}

	r.state.Update(func(s ReceiverState) ReceiverState {
		s.Discovering = false
		switch s.Phase {
		case ReceiverConnecting:
			if s.Connected != nil {
				s.Status = fmt.Sprintf("Connecting to %s...", s.Connected.DisplayName())
			}
		case ReceiverStreaming:
			if s.Connected != nil {
				s.Status = fmt.Sprintf("Connected to %s", s.Connected.DisplayName())
			}
		default:
			s.Phase = ReceiverIdle
			s.Status = "Discovery stopped"
		}
		return s
	})
}

// DiscoveryAddr returns the address the discovery listener is bound to, or
// nil when discovery is stopped
func (r *Receiver) DiscoveryAddr() *net.UDPAddr {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// addServer records a newly discovered server; runs on discovery goroutines
func (r *Receiver) addServer(server discovery.ServerDescriptor) {
	r.state.Update(func(s ReceiverState) ReceiverState {
		for _, known := range s.Servers {
			if known.Address == server.Address {
				return s
			}
		}

		servers := make([]discovery.ServerDescriptor, len(s.Servers), len(s.Servers)+1)
		copy(servers, s.Servers)
		s.Servers = append(servers, server)

		if s.Phase == ReceiverDiscovering {
			s.Status = fmt.Sprintf("Found %d server(s)", len(s.Servers))
		}
		return s
	})
}

// Connect tears down any current connection and connects to server in the
// background. Progress is reported through the state.
func (r *Receiver) Connect(server discovery.ServerDescriptor) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.teardown()

	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{server: server, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	r.conn = c
	r.mu.Unlock()

	r.state.Update(func(s ReceiverState) ReceiverState {
		s.Phase = ReceiverConnecting
		s.Status = fmt.Sprintf("Connecting to %s...", server.DisplayName())
		s.Connected = &server
		s.Header = protocol.StreamHeader{}
		return s
	})

	go r.runConnection(ctx, c)
}

// Disconnect closes the current connection and waits until its playback,
// sink and socket are released. It does nothing when not connected.
func (r *Receiver) Disconnect() {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if !r.teardown() {
		return
	}

	r.state.Update(func(s ReceiverState) ReceiverState {
		s.Phase = ReceiverDisconnected
		s.Status = "Disconnected"
		s.Connected = nil
		s.Header = protocol.StreamHeader{}
		return s
	})
}

// Close stops discovery and disconnects
func (r *Receiver) Close() error {
	r.StopDiscovery()
	r.Disconnect()
	return nil
}

// teardown cancels the current connection and waits for it. It reports
// whether there was one.
func (r *Receiver) teardown() bool {
	r.mu.Lock()
	c := r.conn
	r.conn = nil
	r.mu.Unlock()

	if c == nil {
		return false
	}

	c.cancel()
	<-c.done
	log.Debug().Str("component", "receiver").Str("server", c.server.HostPort()).Msg("Connection torn down")
	return true
}

func (r *Receiver) runConnection(ctx context.Context, c *connection) {
	defer close(c.done)

	status := r.stream(ctx, c.server)

	// A cancelled connection is reported by whoever cancelled it
	if ctx.Err() != nil {
		return
	}

	r.mu.Lock()
	if r.conn == c {
		r.conn = nil
	}
	r.mu.Unlock()

	r.state.Update(func(s ReceiverState) ReceiverState {
		s.Phase = ReceiverDisconnected
		s.Status = status
		s.Connected = nil
		s.Header = protocol.StreamHeader{}
		return s
	})
}

// stream runs one connection to completion and returns the status to show
func (r *Receiver) stream(ctx context.Context, server discovery.ServerDescriptor) string {
	logger := log.With().Str("component", "receiver").Str("server", server.HostPort()).Logger()

	client, err := r.dialer.Dial(ctx, server.Address, server.Port)
	r.config.Metrics.Connect(err)
	if err != nil {
		logger.Warn().Err(err).Msg("Connection failed")
		return fmt.Sprintf("Failed to connect to %s", server.DisplayName())
	}
	defer client.Close()

	// Unblocks the header read on cancel
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	header, err := client.ReadHeader()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read stream header")
		return "Connection lost"
	}

	format := audio.Format{
		SampleRate: int(header.SampleRate),
		Channels:   int(header.Channels),
		BitDepth:   audio.DefaultBitDepth,
	}
	sink, err := r.config.Sinks(format)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open audio output")
		return fmt.Sprintf("Audio output error: %v", err)
	}

	queue := stream.NewFrameQueue(r.config.PlaybackQueueSize)
	played := make(chan struct{})
	go r.playback(ctx, queue, sink, played)

	defer func() {
		queue.Close()
		<-played
		if err := sink.Release(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release audio output")
		}
	}()

	r.state.Update(func(s ReceiverState) ReceiverState {
		if ctx.Err() != nil {
			return s
		}
		s.Phase = ReceiverStreaming
		s.Status = fmt.Sprintf("Streaming: %d Hz, %d channels", header.SampleRate, header.Channels)
		s.Header = header
		return s
	})
	logger.Info().
		Uint32("sample_rate", header.SampleRate).
		Uint32("channels", header.Channels).
		Msg("Streaming")

	if err := client.Receive(ctx, queue); err != nil {
		if ctx.Err() == nil {
			logger.Warn().Err(err).Msg("Connection lost")
		}
		return "Connection lost"
	}

	logger.Info().Msg("Stream ended")
	return "Stream ended"
}

// playback drains the queue into the sink. Queued frames still play after
// the queue closes unless ctx is cancelled.
func (r *Receiver) playback(ctx context.Context, queue *stream.FrameQueue, sink audio.Sink, done chan struct{}) {
	defer close(done)

	failing := false
	for frame := range queue.Frames() {
		if ctx.Err() != nil {
			return
		}

		err := sink.Play(frame)
		r.config.Metrics.Played(err)
		if err != nil && !failing {
			log.Warn().Str("component", "receiver").Err(err).Msg("Audio output failed to play frame")
		}
		failing = err != nil
	}
}
