// ABOUTME: Shared runtime for the sender and receiver commands
// ABOUTME: Builds collaborators from config and runs the metrics endpoint and TUI
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/listenbuddy/listenbuddy-go/internal/config"
	"github.com/listenbuddy/listenbuddy-go/internal/discovery"
	"github.com/listenbuddy/listenbuddy-go/internal/metrics"
	"github.com/listenbuddy/listenbuddy-go/internal/netenv"
	"github.com/listenbuddy/listenbuddy-go/pkg/audio"
	"github.com/listenbuddy/listenbuddy-go/pkg/audio/source"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// NetworkEnv returns the broadcast environment for cfg: a fixed target when
// one is configured, otherwise the host's interfaces
func NetworkEnv(cfg config.DiscoveryConfig) netenv.Environment {
	if ip := cfg.BroadcastIP(); ip != nil {
		return &netenv.Static{Broadcast: ip}
	}
	return netenv.NewHost()
}

// NewSource returns the configured file source, or a test tone when no file
// is set. File sources are paced to real time.
func NewSource(cfg config.AudioConfig) (audio.Source, error) {
	opts := source.Options{ChunkDuration: cfg.ChunkDuration, Realtime: true}
	if cfg.File == "" {
		return source.NewTone(source.ToneConfig{
			SampleRate: cfg.ToneSampleRate,
			Channels:   cfg.ToneChannels,
			Frequency:  cfg.ToneFrequency,
			Duration:   cfg.ToneDuration,
			Options:    opts,
		}), nil
	}
	return source.Open(cfg.File, opts)
}

// ParseServer parses "host" or "host:port" into a descriptor. defaultPort is
// used when no port is given.
func ParseServer(s string, defaultPort int) (discovery.ServerDescriptor, error) {
	s = strings.TrimSpace(s)
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		host = strings.Trim(s, "[]")
		portStr = strconv.Itoa(defaultPort)
	}
	if host == "" {
		return discovery.ServerDescriptor{}, fmt.Errorf("invalid server address %q: missing host", s)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return discovery.ServerDescriptor{}, fmt.Errorf("invalid server address %q: bad port", s)
	}
	return discovery.ServerDescriptor{Address: host, Port: port}, nil
}

// serveMetrics serves m on addr until ctx is done
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log.Info().Str("component", "metrics").Str("addr", ln.Addr().String()).Msg("Serving metrics")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runTUI runs p until the user quits or ctx is done
func runTUI(ctx context.Context, p *tea.Program) error {
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// notifier is a coalescing wake-up signal
type notifier chan struct{}

func newNotifier() notifier {
	return make(notifier, 1)
}

func (n notifier) notify() {
	select {
	case n <- struct{}{}:
	default:
	}
}
