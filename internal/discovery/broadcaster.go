// ABOUTME: Periodic UDP broadcast of the discovery announcement
// ABOUTME: Sends DISCOVER|name|port to the LAN broadcast address once per interval
package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/listenbuddy/listenbuddy-go/internal/metrics"
	"github.com/listenbuddy/listenbuddy-go/internal/netenv"
	"github.com/listenbuddy/listenbuddy-go/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the time between announcements
const DefaultInterval = time.Second

// BroadcasterConfig holds broadcaster configuration
type BroadcasterConfig struct {
	Name          string
	StreamPort    int
	DiscoveryPort int           // default protocol.DiscoveryPort
	Interval      time.Duration // default DefaultInterval
	Env           netenv.Environment
	Metrics       *metrics.Metrics
}

// Broadcaster announces a stream server on the local network
type Broadcaster struct {
	config  BroadcasterConfig
	payload []byte

	mu     sync.Mutex
	conn   *net.UDPConn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBroadcaster validates the announcement and creates a broadcaster
func NewBroadcaster(config BroadcasterConfig) (*Broadcaster, error) {
	if config.DiscoveryPort == 0 {
		config.DiscoveryPort = protocol.DiscoveryPort
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Env == nil {
		config.Env = netenv.NewHost()
	}

	payload, err := protocol.EncodeDiscovery(config.Name, config.StreamPort)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{config: config, payload: payload}, nil
}

// Start opens the socket and begins announcing. Calling Start while running
// does nothing.
func (b *Broadcaster) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return nil
	}

	// Go enables SO_BROADCAST on UDP sockets by default
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return fmt.Errorf("failed to open broadcast socket: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.conn = conn
	b.cancel = cancel
	b.done = make(chan struct{})

	log.Info().
		Str("component", "discovery").
		Str("name", b.config.Name).
		Int("stream_port", b.config.StreamPort).
		Int("discovery_port", b.config.DiscoveryPort).
		Msg("Broadcasting server announcement")

	go b.loop(ctx, conn, b.done)
	return nil
}

// Stop halts announcements and closes the socket. Safe to call repeatedly.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	conn, cancel, done := b.conn, b.cancel, b.done
	b.conn, b.cancel, b.done = nil, nil, nil
	b.mu.Unlock()

	if conn == nil {
		return
	}

	cancel()
	conn.Close()
	<-done

	log.Debug().Str("component", "discovery").Msg("Broadcaster stopped")
}

// Running reports whether the broadcaster is active
func (b *Broadcaster) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.conn != nil
}

func (b *Broadcaster) loop(ctx context.Context, conn *net.UDPConn, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()

	failing := false
	for {
		err := b.send(conn)
		b.config.Metrics.Broadcast(err)

		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil && !failing:
			failing = true
			log.Warn().Str("component", "discovery").Err(err).Msg("Discovery broadcast failed, retrying")
		case err != nil:
			log.Debug().Str("component", "discovery").Err(err).Msg("Discovery broadcast failed")
		case failing:
			failing = false
			log.Info().Str("component", "discovery").Msg("Discovery broadcast recovered")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Broadcaster) send(conn *net.UDPConn) error {
	addr := &net.UDPAddr{IP: b.config.Env.BroadcastAddress(), Port: b.config.DiscoveryPort}
	_, err := conn.WriteToUDP(b.payload, addr)
	return err
}
