// ABOUTME: Receiver command runtime
// ABOUTME: Discovers or dials a server and plays its stream, with or without the TUI
package app

import (
	"context"

	"github.com/listenbuddy/listenbuddy-go/internal/config"
	"github.com/listenbuddy/listenbuddy-go/internal/discovery"
	"github.com/listenbuddy/listenbuddy-go/internal/metrics"
	"github.com/listenbuddy/listenbuddy-go/internal/session"
	"github.com/listenbuddy/listenbuddy-go/internal/ui"
	"github.com/listenbuddy/listenbuddy-go/pkg/audio/output"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// ReceiverOptions configures RunReceiver
type ReceiverOptions struct {
	Config config.Config

	// Server skips discovery and connects to host[:port]
	Server string

	// TUI shows the interactive interface. Without it the receiver connects
	// to the first server it finds.
	TUI bool
}

// RunReceiver runs a receiver until ctx is done or the user quits
func RunReceiver(ctx context.Context, opts ReceiverOptions) error {
	cfg := opts.Config

	sinks, err := output.Factory(cfg.Audio.Output)
	if err != nil {
		return err
	}

	var target *discovery.ServerDescriptor
	if opts.Server != "" {
		server, err := ParseServer(opts.Server, cfg.Stream.Port)
		if err != nil {
			return err
		}
		target = &server
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()
	relay := &ui.Relay{}
	changed := newNotifier()

	receiver := session.NewReceiver(session.ReceiverConfig{
		Discovery: discovery.ListenerConfig{
			Port: cfg.Discovery.Port,
			Env:  NetworkEnv(cfg.Discovery),
		},
		Sinks:             sinks,
		PlaybackQueueSize: cfg.Stream.PlaybackQueueSize,
		MDNS:              cfg.Discovery.MDNS,
		Metrics:           m,
		OnChange: func(st session.ReceiverState) {
			relay.Send(ui.ReceiverStateMsg(st))
			changed.notify()
		},
	})

	g, gctx := errgroup.WithContext(ctx)

	if addr := cfg.Metrics.Address; addr != "" {
		g.Go(func() error { return serveMetrics(gctx, addr, m) })
	}

	// The program must be running before the session reports state
	if opts.TUI {
		p := ui.NewProgram(ui.NewReceiverModel(receiver))
		relay.Attach(p)
		g.Go(func() error {
			defer cancel()
			return runTUI(gctx, p)
		})
	} else {
		g.Go(func() error {
			watchReceiver(gctx, receiver, changed, target == nil)
			return nil
		})
	}

	if target != nil {
		log.Info().Str("component", "app").Str("server", target.HostPort()).Msg("Connecting to configured server")
		receiver.Connect(*target)
	} else if err := receiver.StartDiscovery(); err != nil {
		cancel()
		return multierr.Append(err, multierr.Append(g.Wait(), receiver.Close()))
	}

	err = g.Wait()
	return multierr.Append(err, receiver.Close())
}

// watchReceiver logs status changes and, when autoConnect is set, connects
// to the first server discovered
func watchReceiver(ctx context.Context, receiver *session.Receiver, changed notifier, autoConnect bool) {
	var lastStatus string
	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}

		st := receiver.State()
		if st.Status != lastStatus {
			lastStatus = st.Status
			log.Info().Str("component", "app").Str("phase", st.Phase.String()).Msg(st.Status)
		}

		if autoConnect && st.Connected == nil && len(st.Servers) > 0 {
			autoConnect = false
			receiver.Connect(st.Servers[0])
		}
	}
}
