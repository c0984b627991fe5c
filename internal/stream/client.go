// ABOUTME: TCP stream client reading the header and framed audio
// ABOUTME: Delivers frames into a bounded playback queue without blocking
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/listenbuddy/listenbuddy-go/internal/metrics"
	"github.com/listenbuddy/listenbuddy-go/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// ErrHeaderNotRead is returned by Receive before ReadHeader has succeeded
var ErrHeaderNotRead = errors.New("stream: header not read")

// Dialer opens stream connections
type Dialer struct {
	// MaxFrameSize rejects larger frames. Default protocol.MaxFrameSize.
	MaxFrameSize int

	Metrics *metrics.Metrics
}

// Client is one connection to a stream server
type Client struct {
	conn     net.Conn
	reader   *bufio.Reader
	maxFrame int
	metrics  *metrics.Metrics

	mu     sync.Mutex
	header *protocol.StreamHeader

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to a stream server with the default dialer
func Dial(ctx context.Context, address string, port int) (*Client, error) {
	var d Dialer
	return d.Dial(ctx, address, port)
}

// Dial connects to address:port. Only ctx and the platform connect timeout
// bound the attempt.
func (d *Dialer) Dial(ctx context.Context, address string, port int) (*Client, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
		tcp.SetReadBuffer(socketBufferSize)
	}

	maxFrame := d.MaxFrameSize
	if maxFrame <= 0 {
		maxFrame = protocol.MaxFrameSize
	}

	log.Debug().Str("component", "stream").Str("remote", conn.RemoteAddr().String()).Msg("Connected to stream server")

	return &Client{
		conn:     conn,
		reader:   bufio.NewReaderSize(conn, socketBufferSize),
		maxFrame: maxFrame,
		metrics:  d.Metrics,
	}, nil
}

// ReadHeader reads the stream header. It may succeed only once per
// connection.
func (c *Client) ReadHeader() (protocol.StreamHeader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.header != nil {
		return protocol.StreamHeader{}, errors.New("stream: header already read")
	}

	h, err := protocol.ReadHeader(c.reader)
	if err != nil {
		return protocol.StreamHeader{}, err
	}
	c.header = &h
	return h, nil
}

// Header returns the header once it has been read
func (c *Client) Header() (protocol.StreamHeader, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.header == nil {
		return protocol.StreamHeader{}, false
	}
	return *c.header, true
}

// Receive reads frames into queue until the stream ends. A full queue drops
// the incoming frame. It returns nil on the end-of-stream marker, ctx.Err()
// when cancelled, and the read error otherwise (io.EOF when the server
// closed the connection). Cancelling ctx closes the connection.
func (c *Client) Receive(ctx context.Context, queue *FrameQueue) error {
	if _, ok := c.Header(); !ok {
		return ErrHeaderNotRead
	}

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		frame, err := protocol.ReadFrame(c.reader, c.maxFrame)
		if err != nil {
			if errors.Is(err, protocol.ErrEndOfStream) {
				log.Debug().Str("component", "stream").Msg("End of stream")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if queue.TryPut(frame) {
			c.metrics.FrameSent(metrics.SideClient)
		} else {
			c.metrics.FrameDropped(metrics.SideClient)
		}
	}
}

// RemoteAddr returns the server address
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the connection, unblocking any read. Safe to call repeatedly.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
