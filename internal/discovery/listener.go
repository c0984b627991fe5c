// ABOUTME: UDP listener for discovery announcements
// ABOUTME: Reports each announcing server once per distinct source address
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/listenbuddy/listenbuddy-go/internal/metrics"
	"github.com/listenbuddy/listenbuddy-go/internal/netenv"
	"github.com/listenbuddy/listenbuddy-go/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// receiveErrorPause throttles the loop after an unexpected receive error
const receiveErrorPause = 100 * time.Millisecond

// ListenerConfig holds listener configuration
type ListenerConfig struct {
	Port    int // default protocol.DiscoveryPort; -1 binds an ephemeral port
	Env     netenv.Environment
	Metrics *metrics.Metrics
}

// Listener receives discovery announcements
type Listener struct {
	config ListenerConfig

	mu      sync.Mutex
	conn    *net.UDPConn
	done    chan struct{}
	release func()
}

// NewListener creates a listener
func NewListener(config ListenerConfig) *Listener {
	if config.Port == 0 {
		config.Port = protocol.DiscoveryPort
	}
	if config.Port < 0 {
		config.Port = 0
	}
	if config.Env == nil {
		config.Env = netenv.NewHost()
	}
	return &Listener{config: config}
}

// Start acquires the multicast permission, binds the discovery port and
// reports every newly seen server to onServerFound. onServerFound runs on the
// listener goroutine and never after Stop returns. Calling Start while
// running does nothing.
func (l *Listener) Start(onServerFound func(ServerDescriptor)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return nil
	}

	if err := l.config.Env.AcquireMulticast(); err != nil {
		return fmt.Errorf("failed to acquire multicast permission: %w", err)
	}

	var once sync.Once
	release := func() { once.Do(l.config.Env.ReleaseMulticast) }

	lc := net.ListenConfig{Control: reuseAddr}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":"+strconv.Itoa(l.config.Port))
	if err != nil {
		release()
		return fmt.Errorf("failed to bind discovery port %d: %w", l.config.Port, err)
	}

	l.conn = pc.(*net.UDPConn)
	l.done = make(chan struct{})
	l.release = release

	log.Info().
		Str("component", "discovery").
		Str("addr", l.conn.LocalAddr().String()).
		Msg("Listening for server announcements")

	go l.loop(l.conn, l.done, release, onServerFound)
	return nil
}

// Stop closes the socket, waits for the loop to exit and releases the
// permission. Safe to call repeatedly.
func (l *Listener) Stop() {
	l.mu.Lock()
	conn, done, release := l.conn, l.done, l.release
	l.conn, l.done, l.release = nil, nil, nil
	l.mu.Unlock()

	if conn == nil {
		return
	}

	conn.Close()
	<-done
	release()

	log.Debug().Str("component", "discovery").Msg("Listener stopped")
}

// Addr returns the bound address, or nil when stopped
func (l *Listener) Addr() *net.UDPAddr {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr().(*net.UDPAddr)
}

func (l *Listener) loop(conn *net.UDPConn, done chan struct{}, release func(), onServerFound func(ServerDescriptor)) {
	defer close(done)
	defer release()

	seen := make(map[string]struct{})
	buf := make([]byte, protocol.MaxDatagramSize)

	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Str("component", "discovery").Err(err).Msg("Discovery receive failed")
			time.Sleep(receiveErrorPause)
			continue
		}

		ann, err := protocol.ParseDiscovery(buf[:n])
		if err != nil {
			l.config.Metrics.Datagram(metrics.ResultMalformed)
			log.Debug().
				Str("component", "discovery").
				Str("from", from.String()).
				Err(err).
				Msg("Ignoring datagram")
			continue
		}

		address := from.IP.String()
		if _, ok := seen[address]; ok {
			l.config.Metrics.Datagram(metrics.ResultDuplicate)
			continue
		}
		seen[address] = struct{}{}
		l.config.Metrics.Datagram(metrics.ResultAccepted)

		server := ServerDescriptor{Name: ann.Name, Address: address, Port: ann.Port}
		log.Info().
			Str("component", "discovery").
			Str("name", server.Name).
			Str("addr", server.HostPort()).
			Msg("Discovered server")

		if onServerFound != nil {
			onServerFound(server)
		}
	}
}
