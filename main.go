// ABOUTME: Entry point for the ListenBuddy receiver
// ABOUTME: Parses CLI flags, loads config and runs the receiver
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/listenbuddy/listenbuddy-go/internal/app"
	"github.com/listenbuddy/listenbuddy-go/internal/config"
	"github.com/listenbuddy/listenbuddy-go/internal/logging"
	"github.com/listenbuddy/listenbuddy-go/internal/version"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultLogFile = "listenbuddy.log"

var (
	configFile  string
	serverAddr  string
	logFile     string
	logLevel    string
	metricsAddr string
	noTUI       bool
	noAudio     bool
	useMDNS     bool
)

var rootCmd = &cobra.Command{
	Use:           "listenbuddy",
	Short:         "Find ListenBuddy streams on the local network and play them",
	Version:       version.Version,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "Path to a TOML config file")
	flags.StringVar(&serverAddr, "server", "", "Connect to host[:port] instead of discovering servers")
	flags.StringVar(&logFile, "log-file", "", "Log file path (default "+defaultLogFile+" with the TUI)")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&metricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	flags.BoolVar(&noTUI, "no-tui", false, "Disable the TUI and log to the console")
	flags.BoolVar(&noAudio, "no-audio", false, "Discard audio instead of playing it")
	flags.BoolVar(&useMDNS, "mdns", false, "Also browse for servers over mDNS")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	applyFlags(cmd.Flags(), &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	useTUI := !noTUI
	if useTUI && cfg.Logging.File == "" {
		cfg.Logging.File = defaultLogFile
	}

	closer, err := logging.Setup(logging.Options{
		App:     "listenbuddy",
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: !useTUI,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	log.Info().Str("version", version.Version).Bool("tui", useTUI).Msg("Starting ListenBuddy receiver")

	err = app.RunReceiver(cmd.Context(), app.ReceiverOptions{
		Config: cfg,
		Server: serverAddr,
		TUI:    useTUI,
	})
	if err != nil {
		log.Error().Err(err).Msg("Receiver stopped with error")
		return err
	}

	log.Info().Msg("Receiver stopped")
	return nil
}

// applyFlags overrides cfg with the flags given on the command line
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("log-file") {
		cfg.Logging.File = logFile
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Address = metricsAddr
	}
	if flags.Changed("mdns") {
		cfg.Discovery.MDNS = useMDNS
	}
	if noAudio {
		cfg.Audio.Output = "none"
	}
}
