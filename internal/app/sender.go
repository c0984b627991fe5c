// ABOUTME: Sender command runtime
// ABOUTME: Broadcasts a file or test tone, with or without the TUI
package app

import (
	"context"
	"fmt"
	"strings"

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

// SenderOptions configures RunSender
type SenderOptions struct {
	Config config.Config

	// TUI shows the interactive interface. Without it the command exits when
	// the broadcast ends.
	TUI bool
}

// RunSender broadcasts the configured source until it ends, ctx is done or
// the user quits
func RunSender(ctx context.Context, opts SenderOptions) error {
	cfg := opts.Config

	sinks, err := output.Factory(cfg.Audio.Output)
	if err != nil {
		return err
	}
	src, err := NewSource(cfg.Audio)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()
	relay := &ui.Relay{}
	changed := newNotifier()

	sender := session.NewSender(session.SenderConfig{
		StreamPort:   cfg.Stream.Port,
		QueueSize:    cfg.Stream.QueueSize,
		WriteTimeout: cfg.Stream.WriteTimeout,
		Discovery: discovery.BroadcasterConfig{
			DiscoveryPort: cfg.Discovery.Port,
			Interval:      cfg.Discovery.Interval,
			Env:           NetworkEnv(cfg.Discovery),
		},
		Monitor:      cfg.Audio.Monitor,
		Sinks:        sinks,
		MDNS:         cfg.Discovery.MDNS,
		DrainTimeout: cfg.Stream.DrainTimeout,
		Metrics:      m,
		OnChange: func(st session.SenderState) {
			relay.Send(ui.SenderStateMsg(st))
			changed.notify()
		},
	})

	g, gctx := errgroup.WithContext(ctx)

	if addr := cfg.Metrics.Address; addr != "" {
		g.Go(func() error { return serveMetrics(gctx, addr, m) })
	}

	var finished error
	if opts.TUI {
		p := ui.NewProgram(ui.NewSenderModel(sender))
		relay.Attach(p)
		g.Go(func() error {
			defer cancel()
			return runTUI(gctx, p)
		})
	} else {
		g.Go(func() error {
			defer cancel()
			finished = watchSender(gctx, sender, changed)
			return nil
		})
	}

	if err := sender.Start(cfg.Name, src); err != nil {
		cancel()
		_ = src.Release()
		return multierr.Append(fmt.Errorf("start broadcast: %w", err), g.Wait())
	}

	err = g.Wait()
	err = multierr.Append(err, finished)
	return multierr.Append(err, sender.Close())
}

// watchSender logs status changes until the broadcast returns to idle. It
// returns an error when the broadcast failed.
func watchSender(ctx context.Context, sender *session.Sender, changed notifier) error {
	var lastStatus string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}

		st := sender.State()
		if st.Status != lastStatus {
			lastStatus = st.Status
			log.Info().Str("component", "app").Str("phase", st.Phase.String()).Int("clients", st.Clients).Msg(st.Status)
		}

		if st.Phase == session.SenderIdle {
			if strings.HasPrefix(st.Status, "Error:") {
				return fmt.Errorf("broadcast failed: %s", strings.TrimPrefix(st.Status, "Error: "))
			}
			return nil
		}
	}
}
