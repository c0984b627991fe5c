// ABOUTME: Sender session state machine
// ABOUTME: Prepares a source, serves the stream and announces it until stopped or finished
package session

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/listenbuddy/listenbuddy-go/internal/discovery"
	"github.com/listenbuddy/listenbuddy-go/internal/metrics"
	"github.com/listenbuddy/listenbuddy-go/internal/stream"
	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
	"github.com/listenbuddy/listenbuddy-go/pkg/audio/output"
	"github.com/listenbuddy/listenbuddy-go/pkg/protocol"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// DefaultDrainTimeout bounds how long clients get to receive queued frames
// after the source is exhausted
const DefaultDrainTimeout = 2 * time.Second

// SenderPhase is the lifecycle phase of a sender
type SenderPhase int

const (
	SenderIdle SenderPhase = iota
	SenderPreparing
	SenderBroadcasting
	SenderStopping
)

func (p SenderPhase) String() string {
	switch p {
	case SenderIdle:
		return "idle"
	case SenderPreparing:
		return "preparing"
	case SenderBroadcasting:
		return "broadcasting"
	case SenderStopping:
		return "stopping"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// SenderState is an immutable snapshot of a sender
type SenderState struct {
	Phase   SenderPhase
	Status  string
	Name    string
	Clients int
	Format  audio.Format
	Port    int
	Version uint64
}

// SenderConfig holds sender configuration
type SenderConfig struct {
	// StreamPort to serve on. 0 means protocol.StreamPort, -1 an ephemeral port.
	StreamPort   int
	QueueSize    int
	WriteTimeout time.Duration

	// Discovery configures the broadcaster; Name and StreamPort are filled
	// in by Start
	Discovery discovery.BroadcasterConfig

	// Monitor plays the stream locally through Sinks
	Monitor bool
	Sinks   audio.SinkFactory // default output.NewOto

	// MDNS advertises the stream over mDNS as well
	MDNS bool

	DrainTimeout time.Duration // default DefaultDrainTimeout

	Metrics *metrics.Metrics

	// OnChange receives every new snapshot. It must not block on calls into
	// the sender.
	OnChange func(SenderState)
}

// Sender is the broadcasting side of a session
type Sender struct {
	config SenderConfig
	state  *stateHolder[SenderState]

	mu  sync.Mutex
	run *senderRun
}

// senderRun owns the resources of one broadcast
type senderRun struct {
	name     string
	source   audio.Source
	cancel   context.CancelFunc
	done     chan struct{}
	stopping atomic.Bool

	mu          sync.Mutex
	server      *stream.Server
	broadcaster *discovery.Broadcaster
	advertiser  *discovery.MDNSAdvertiser
	monitor     audio.Sink

	releaseOnce sync.Once
	releaseErr  error
}

// NewSender creates an idle sender
func NewSender(config SenderConfig) *Sender {
	if config.Sinks == nil {
		config.Sinks = output.NewOto
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultDrainTimeout
	}
	if config.Discovery.Metrics == nil {
		config.Discovery.Metrics = config.Metrics
	}

	initial := SenderState{Phase: SenderIdle, Status: "Idle"}
	return &Sender{
		config: config,
		state: newStateHolder(initial,
			func(s *SenderState, v uint64) { s.Version = v },
			config.OnChange),
	}
}

// State returns the current snapshot
func (s *Sender) State() SenderState {
	return s.state.Load()
}

// Start begins broadcasting source under name. Preparation continues in the
// background; progress is reported through the state. It returns
// ErrMissingInput or ErrAlreadyActive without changing the state.
func (s *Sender) Start(name string, source audio.Source) error {
	if source == nil || strings.TrimSpace(name) == "" {
		return ErrMissingInput
	}
	if _, err := protocol.EncodeDiscovery(name, protocol.StreamPort); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil || s.state.Load().Phase != SenderIdle {
		return ErrAlreadyActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &senderRun{
		name:   name,
		source: source,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.run = run

	s.state.Update(func(st SenderState) SenderState {
		return SenderState{Phase: SenderPreparing, Status: "Preparing...", Name: name}
	})

	go s.runBroadcast(ctx, run)
	return nil
}

// Stop ends the broadcast and waits until every resource is released.
// Safe to call repeatedly and while a broadcast is preparing.
func (s *Sender) Stop() error {
	s.mu.Lock()
	run := s.run
	s.run = nil
	if run == nil {
		s.mu.Unlock()
		return nil
	}
	run.stopping.Store(true)
	s.state.Update(func(st SenderState) SenderState {
		st.Phase = SenderStopping
		st.Status = "Stopping..."
		return st
	})
	s.mu.Unlock()

	run.cancel()
	<-run.done
	err := run.release()
	if err != nil {
		log.Warn().Str("component", "sender").Err(err).Msg("Cleanup reported errors")
	}

	// A new broadcast may have started once the old run reported its end
	s.mu.Lock()
	if s.run == nil {
		s.state.Update(func(st SenderState) SenderState {
			st.Phase = SenderIdle
			st.Status = "Stopped"
			st.Clients = 0
			return st
		})
	}
	s.mu.Unlock()

	log.Info().Str("component", "sender").Msg("Broadcast stopped")
	return err
}

// Close stops the sender
func (s *Sender) Close() error {
	return s.Stop()
}

func (s *Sender) runBroadcast(ctx context.Context, run *senderRun) {
	defer close(run.done)

	err := s.broadcast(ctx, run)

	s.mu.Lock()
	if s.run != run || run.stopping.Load() {
		// Stop owns the cleanup
		s.mu.Unlock()
		return
	}
	run.stopping.Store(true)
	s.state.Update(func(st SenderState) SenderState {
		st.Phase = SenderStopping
		return st
	})
	s.mu.Unlock()

	status := "Finished"
	if err != nil {
		status = fmt.Sprintf("Error: %v", err)
		log.Error().Str("component", "sender").Err(err).Msg("Broadcast failed")
	} else {
		log.Info().Str("component", "sender").Msg("Source finished")
		run.drain(s.config.DrainTimeout)
	}

	if rerr := run.release(); rerr != nil {
		log.Warn().Str("component", "sender").Err(rerr).Msg("Cleanup reported errors")
	}

	s.mu.Lock()
	if s.run == run {
		s.run = nil
	}
	s.state.Update(func(st SenderState) SenderState {
		st.Phase = SenderIdle
		st.Status = status
		st.Clients = 0
		return st
	})
	s.mu.Unlock()
}

// broadcast prepares the source, starts serving and announcing, then pushes
// frames until the source ends, fails or ctx is cancelled
func (s *Sender) broadcast(ctx context.Context, run *senderRun) error {
	format, err := run.source.Prepare()
	if err != nil {
		return fmt.Errorf("prepare source: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var monitor audio.Sink
	if s.config.Monitor {
		monitor, err = s.config.Sinks(format)
		if err != nil {
			return fmt.Errorf("open monitor output: %w", err)
		}
		run.mu.Lock()
		run.monitor = monitor
		run.mu.Unlock()
	}

	server := stream.NewServer(stream.ServerConfig{
		Port: s.config.StreamPort,
		Header: protocol.StreamHeader{
			SampleRate: uint32(format.SampleRate),
			Channels:   uint32(format.Channels),
		},
		QueueSize:            s.config.QueueSize,
		WriteTimeout:         s.config.WriteTimeout,
		OnClientCountChanged: s.clientsChanged,
		Metrics:              s.config.Metrics,
	})
	run.mu.Lock()
	run.server = server
	run.mu.Unlock()

	if err := server.Start(); err != nil {
		return fmt.Errorf("start stream server: %w", err)
	}
	port := server.Addr().(*net.TCPAddr).Port

	bcfg := s.config.Discovery
	bcfg.Name = run.name
	bcfg.StreamPort = port
	broadcaster, err := discovery.NewBroadcaster(bcfg)
	if err != nil {
		return fmt.Errorf("create broadcaster: %w", err)
	}
	run.mu.Lock()
	run.broadcaster = broadcaster
	run.mu.Unlock()

	if err := broadcaster.Start(); err != nil {
		return fmt.Errorf("start broadcaster: %w", err)
	}

	if s.config.MDNS {
		advertiser := discovery.NewMDNSAdvertiser(run.name, port)
		if err := advertiser.Start(); err != nil {
			log.Warn().Str("component", "sender").Err(err).Msg("mDNS advertisement unavailable")
		} else {
			run.mu.Lock()
			run.advertiser = advertiser
			run.mu.Unlock()
		}
	}

	s.mu.Lock()
	if !run.stopping.Load() {
		s.state.Update(func(st SenderState) SenderState {
			st.Phase = SenderBroadcasting
			st.Status = fmt.Sprintf("Broadcasting: %d Hz, %d channels", format.SampleRate, format.Channels)
			st.Format = format
			st.Port = port
			return st
		})
	}
	s.mu.Unlock()

	log.Info().
		Str("component", "sender").
		Str("name", run.name).
		Int("port", port).
		Str("format", format.String()).
		Msg("Broadcasting")

	err = run.source.Produce(ctx, func(frame []byte) {
		if run.stopping.Load() {
			return
		}
		server.SendToAll(frame)
		if monitor != nil {
			if err := monitor.Play(frame); err != nil {
				log.Debug().Str("component", "sender").Err(err).Msg("Monitor output failed")
			}
		}
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("stream audio: %w", err)
	}
	return nil
}

// clientsChanged mirrors the server's client count into the state
func (s *Sender) clientsChanged(count int) {
	s.state.Update(func(st SenderState) SenderState {
		st.Clients = count
		return st
	})
}

// drain lets clients receive what is queued, followed by the end-of-stream
// marker, before the server closes
func (run *senderRun) drain(timeout time.Duration) {
	run.mu.Lock()
	server, broadcaster := run.server, run.broadcaster
	run.mu.Unlock()

	if broadcaster != nil {
		broadcaster.Stop()
	}
	if server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Debug().Str("component", "sender").Err(err).Msg("Clients did not drain in time")
	}
}

// release frees broadcaster, advertiser, server, monitor and source in that
// order. Every step runs even if an earlier one fails.
func (run *senderRun) release() error {
	run.releaseOnce.Do(func() {
		run.mu.Lock()
		broadcaster, advertiser := run.broadcaster, run.advertiser
		server, monitor := run.server, run.monitor
		run.mu.Unlock()

		var err error
		if broadcaster != nil {
			broadcaster.Stop()
		}
		if advertiser != nil {
			err = multierr.Append(err, advertiser.Stop())
		}
		if server != nil {
			server.Stop()
		}
		if monitor != nil {
			err = multierr.Append(err, monitor.Release())
		}
		err = multierr.Append(err, run.source.Release())
		run.releaseErr = err
	})
	return run.releaseErr
}
