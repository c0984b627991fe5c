// ABOUTME: TCP stream server fanning audio frames out to every client
// ABOUTME: Sends the header on accept, then one bounded queue and writer per client
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/listenbuddy/listenbuddy-go/internal/metrics"
	"github.com/listenbuddy/listenbuddy-go/pkg/protocol"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultQueueSize is the per-client outbound queue capacity
	DefaultQueueSize = 8

	// DefaultWriteTimeout bounds a single header or frame write
	DefaultWriteTimeout = 10 * time.Second

	socketBufferSize = 64 * 1024
	acceptErrorPause = 100 * time.Millisecond
	shutdownPoll     = 10 * time.Millisecond
)

// ErrServerClosed is returned by Start after Stop or Shutdown
var ErrServerClosed = errors.New("stream: server closed")

// ServerConfig holds server configuration
type ServerConfig struct {
	// Port to listen on. 0 means protocol.StreamPort, -1 an ephemeral port.
	Port int

	// Header is sent to every client before its first frame
	Header protocol.StreamHeader

	QueueSize    int           // default DefaultQueueSize
	WriteTimeout time.Duration // default DefaultWriteTimeout

	// OnClientCountChanged receives the client count after every change.
	// Calls are serialized; after Stop the final call reports 0. It must not
	// call Stop or Shutdown.
	OnClientCountChanged func(count int)

	Metrics *metrics.Metrics
}

// Server accepts stream clients and fans frames out to them
type Server struct {
	config ServerConfig

	clientsMu sync.RWMutex
	clients   map[string]*clientConn
	listener  net.Listener
	draining  bool
	stopped   bool

	notifyMu sync.Mutex
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// clientConn is one connected client and its outbound queue
type clientConn struct {
	id        string
	remote    string
	conn      net.Conn
	queue     *FrameQueue
	closeOnce sync.Once
}

func (c *clientConn) close() {
	c.closeOnce.Do(func() {
		c.queue.Close()
		c.conn.Close()
	})
}

// NewServer creates a server
func NewServer(config ServerConfig) *Server {
	if config.Port == 0 {
		config.Port = protocol.StreamPort
	}
	if config.Port < 0 {
		config.Port = 0
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}

	return &Server{
		config:  config,
		clients: make(map[string]*clientConn),
	}
}

// Start binds the listening socket and begins accepting clients. The socket
// is bound when Start returns. Calling Start while running does nothing.
func (s *Server) Start() error {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if s.stopped || s.draining {
		return ErrServerClosed
	}
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
	}
	s.listener = ln

	log.Info().
		Str("component", "stream").
		Str("addr", ln.Addr().String()).
		Uint32("sample_rate", s.config.Header.SampleRate).
		Uint32("channels", s.config.Header.Channels).
		Msg("Stream server listening")

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the listening address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	return len(s.clients)
}

// SendToAll queues frame for every connected client without blocking. A
// client whose queue is full misses this frame. The frame is shared between
// clients and must not be modified afterwards. It returns how many clients
// accepted the frame.
func (s *Server) SendToAll(frame []byte) int {
	s.clientsMu.RLock()
	targets := make([]*clientConn, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.clientsMu.RUnlock()

	queued := 0
	for _, c := range targets {
		if c.queue.TryPut(frame) {
			queued++
			continue
		}
		s.config.Metrics.FrameDropped(metrics.SideServer)
		log.Trace().Str("component", "stream").Str("client", c.id).Msg("Client queue full, frame dropped")
	}
	return queued
}

// Stop closes the listener and every client connection, waits for all
// connection goroutines to exit and reports a final count of 0. Safe to call
// repeatedly and with no clients.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.clientsMu.Lock()
		s.stopped = true
		ln := s.listener
		clients := s.clients
		s.clients = make(map[string]*clientConn)
		s.clientsMu.Unlock()

		if ln != nil {
			ln.Close()
		}
		for _, c := range clients {
			c.close()
		}

		s.wg.Wait()

		s.notifyMu.Lock()
		s.config.Metrics.SetClients(0)
		if s.config.OnClientCountChanged != nil {
			s.config.OnClientCountChanged(0)
		}
		s.notifyMu.Unlock()

		log.Info().Str("component", "stream").Msg("Stream server stopped")
	})
}

// Shutdown stops accepting clients and lets every writer flush what is
// already queued, then end its stream with the end-of-stream marker before
// closing the connection. The marker is written directly, so a client whose
// queue was full still receives it. If ctx expires first the remaining
// clients are closed. Shutdown always ends with Stop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.clientsMu.Lock()
	s.draining = true
	ln := s.listener
	s.listener = nil
	queues := make([]*FrameQueue, 0, len(s.clients))
	for _, c := range s.clients {
		queues = append(queues, c.queue)
	}
	s.clientsMu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, q := range queues {
		q.Close()
	}

	ticker := time.NewTicker(shutdownPoll)
	defer ticker.Stop()

	var err error
wait:
	for s.ClientCount() > 0 {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break wait
		case <-ticker.C:
		}
	}

	s.Stop()
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Str("component", "stream").Err(err).Msg("Accept failed")
			time.Sleep(acceptErrorPause)
			continue
		}

		s.wg.Add(1)
		go s.serve(conn)
	}
}

// serve sends the header and registers the client
func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()

	remote := conn.RemoteAddr().String()

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
		tcp.SetWriteBuffer(socketBufferSize)
	}

	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := protocol.WriteHeader(conn, s.config.Header); err != nil {
		log.Warn().Str("component", "stream").Str("remote", remote).Err(err).Msg("Failed to send stream header")
		conn.Close()
		return
	}

	client := &clientConn{
		id:     uuid.New().String(),
		remote: remote,
		conn:   conn,
		queue:  NewFrameQueue(s.config.QueueSize),
	}

	s.clientsMu.Lock()
	if s.stopped || s.draining {
		s.clientsMu.Unlock()
		conn.Close()
		return
	}
	s.clients[client.id] = client
	s.clientsMu.Unlock()

	s.config.Metrics.ClientAccepted()
	log.Info().
		Str("component", "stream").
		Str("client", client.id).
		Str("remote", remote).
		Msg("Client connected")

	s.notifyCount()

	s.wg.Add(2)
	go s.writer(client)
	go s.watch(client)
}

// writer drains the client's queue onto its socket
func (s *Server) writer(client *clientConn) {
	defer s.wg.Done()

	for frame := range client.queue.Frames() {
		client.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		if err := protocol.WriteFrame(client.conn, frame); err != nil {
			if s.removeClient(client) {
				s.config.Metrics.ClientFailed()
				log.Warn().
					Str("component", "stream").
					Str("client", client.id).
					Str("remote", client.remote).
					Err(err).
					Msg("Client write failed, dropping client")
			}
			return
		}
		s.config.Metrics.FrameSent(metrics.SideServer)
		s.config.Metrics.BytesWritten(len(frame))
	}

	// Queue closed: drained during Shutdown, or the client was removed
	if s.drainingClient(client) {
		client.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		if err := protocol.WriteEndOfStream(client.conn); err != nil {
			log.Debug().Str("component", "stream").Str("client", client.id).Err(err).Msg("Failed to send end of stream")
		}
	}
	s.removeClient(client)
}

// drainingClient reports whether Shutdown closed client's queue while the
// client is still registered
func (s *Server) drainingClient(client *clientConn) bool {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	return s.draining && !s.stopped && s.clients[client.id] == client
}

// watch notices a peer close even while no frames are flowing
func (s *Server) watch(client *clientConn) {
	defer s.wg.Done()

	io.Copy(io.Discard, client.conn)

	if s.removeClient(client) {
		log.Info().
			Str("component", "stream").
			Str("client", client.id).
			Str("remote", client.remote).
			Msg("Client disconnected")
	}
}

// removeClient unregisters and closes one client. It reports whether this
// call removed it.
func (s *Server) removeClient(client *clientConn) bool {
	s.clientsMu.Lock()
	current, ok := s.clients[client.id]
	removed := ok && current == client
	if removed {
		delete(s.clients, client.id)
	}
	s.clientsMu.Unlock()

	client.close()

	if removed {
		s.notifyCount()
	}
	return removed
}

// notifyCount reports the current client count unless the server is stopped,
// in which case Stop delivers the final 0
func (s *Server) notifyCount() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.clientsMu.RLock()
	count := len(s.clients)
	stopped := s.stopped
	s.clientsMu.RUnlock()

	if stopped {
		return
	}

	s.config.Metrics.SetClients(count)
	if s.config.OnClientCountChanged != nil {
		s.config.OnClientCountChanged(count)
	}
}
