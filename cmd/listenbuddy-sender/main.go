// ABOUTME: Entry point for the ListenBuddy sender
// ABOUTME: Parses CLI flags, loads config and broadcasts a file or test tone
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

const defaultLogFile = "listenbuddy-sender.log"

var (
	configFile  string
	name        string
	audioFile   string
	port        int
	broadcast   string
	logFile     string
	logLevel    string
	metricsAddr string
	monitor     bool
	useMDNS     bool
	noTUI       bool
)

var rootCmd = &cobra.Command{
	Use:           "listenbuddy-sender",
	Short:         "Broadcast an audio file or test tone to ListenBuddy receivers",
	Version:       version.Version,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "Path to a TOML config file")
	flags.StringVarP(&name, "name", "n", "", "Name announced to receivers (default hostname)")
	flags.StringVarP(&audioFile, "audio", "a", "", "Audio file to stream (MP3, FLAC, WAV). Plays a test tone when empty")
	flags.IntVarP(&port, "port", "p", 0, "TCP stream port")
	flags.StringVar(&broadcast, "broadcast", "", "Broadcast address for discovery announcements")
	flags.StringVar(&logFile, "log-file", "", "Log file path (default "+defaultLogFile+" with the TUI)")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&metricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	flags.BoolVar(&monitor, "monitor", false, "Also play the stream locally")
	flags.BoolVar(&useMDNS, "mdns", false, "Also advertise over mDNS")
	flags.BoolVar(&noTUI, "no-tui", false, "Disable the TUI and log to the console")
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
	if !cmd.Flags().Changed("name") && configFile == "" && os.Getenv(config.EnvPrefix+"NAME") == "" {
		cfg.Name = defaultName()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	useTUI := !noTUI
	if useTUI && cfg.Logging.File == "" {
		cfg.Logging.File = defaultLogFile
	}

	closer, err := logging.Setup(logging.Options{
		App:     "listenbuddy-sender",
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: !useTUI,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	source := cfg.Audio.File
	if source == "" {
		source = "test tone"
	}
	log.Info().
		Str("version", version.Version).
		Str("name", cfg.Name).
		Int("port", cfg.Stream.Port).
		Str("source", source).
		Msg("Starting ListenBuddy sender")

	err = app.RunSender(cmd.Context(), app.SenderOptions{Config: cfg, TUI: useTUI})
	if err != nil {
		log.Error().Err(err).Msg("Sender stopped with error")
		return err
	}

	log.Info().Msg("Sender stopped")
	return nil
}

// applyFlags overrides cfg with the flags given on the command line
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("name") {
		cfg.Name = name
	}
	if flags.Changed("audio") {
		cfg.Audio.File = audioFile
	}
	if flags.Changed("port") {
		cfg.Stream.Port = port
	}
	if flags.Changed("broadcast") {
		cfg.Discovery.Broadcast = broadcast
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = logFile
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Address = metricsAddr
	}
	if flags.Changed("monitor") {
		cfg.Audio.Monitor = monitor
	}
	if flags.Changed("mdns") {
		cfg.Discovery.MDNS = useMDNS
	}
}

// defaultName derives the announced name from the hostname
func defaultName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "ListenBuddy"
	}
	return hostname
}
