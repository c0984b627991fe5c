// ABOUTME: Configuration for the sender and receiver commands
// ABOUTME: Defaults, then an optional TOML file, then LISTENBUDDY_ environment overrides
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/listenbuddy/listenbuddy-go/pkg/protocol"
	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "LISTENBUDDY_"

// Config is the complete configuration
type Config struct {
	Name      string          `toml:"name" env:"NAME"`
	Stream    StreamConfig    `toml:"stream" envPrefix:"STREAM_"`
	Discovery DiscoveryConfig `toml:"discovery" envPrefix:"DISCOVERY_"`
	Audio     AudioConfig     `toml:"audio" envPrefix:"AUDIO_"`
	Logging   LoggingConfig   `toml:"logging" envPrefix:"LOG_"`
	Metrics   MetricsConfig   `toml:"metrics" envPrefix:"METRICS_"`
}

// StreamConfig contains stream transport settings
type StreamConfig struct {
	Port              int           `toml:"port" env:"PORT"`
	QueueSize         int           `toml:"queue_size" env:"QUEUE_SIZE"`
	PlaybackQueueSize int           `toml:"playback_queue_size" env:"PLAYBACK_QUEUE_SIZE"`
	WriteTimeout      time.Duration `toml:"write_timeout" env:"WRITE_TIMEOUT"`
	DrainTimeout      time.Duration `toml:"drain_timeout" env:"DRAIN_TIMEOUT"`
}

// DiscoveryConfig contains discovery settings
type DiscoveryConfig struct {
	Port     int           `toml:"port" env:"PORT"`
	Interval time.Duration `toml:"interval" env:"INTERVAL"`

	// Broadcast overrides the detected broadcast address
	Broadcast string `toml:"broadcast" env:"BROADCAST"`

	MDNS bool `toml:"mdns" env:"MDNS"`
}

// AudioConfig contains source and output settings
type AudioConfig struct {
	// File to broadcast; empty plays a test tone
	File          string        `toml:"file" env:"FILE"`
	ChunkDuration time.Duration `toml:"chunk_duration" env:"CHUNK_DURATION"`

	ToneFrequency  float64       `toml:"tone_frequency" env:"TONE_FREQUENCY"`
	ToneSampleRate int           `toml:"tone_sample_rate" env:"TONE_SAMPLE_RATE"`
	ToneChannels   int           `toml:"tone_channels" env:"TONE_CHANNELS"`
	ToneDuration   time.Duration `toml:"tone_duration" env:"TONE_DURATION"`

	// Output backend: "oto" or "none"
	Output  string `toml:"output" env:"OUTPUT"`
	Monitor bool   `toml:"monitor" env:"MONITOR"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `toml:"level" env:"LEVEL"`
	File  string `toml:"file" env:"FILE"`
}

// MetricsConfig contains the Prometheus endpoint settings
type MetricsConfig struct {
	// Address to serve /metrics on; empty disables the endpoint
	Address string `toml:"address" env:"ADDRESS"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Name: "ListenBuddy",
		Stream: StreamConfig{
			Port:              protocol.StreamPort,
			QueueSize:         8,
			PlaybackQueueSize: 10,
			WriteTimeout:      10 * time.Second,
			DrainTimeout:      2 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Port:     protocol.DiscoveryPort,
			Interval: time.Second,
		},
		Audio: AudioConfig{
			ChunkDuration:  20 * time.Millisecond,
			ToneFrequency:  440,
			ToneSampleRate: 44100,
			ToneChannels:   2,
			Output:         "oto",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (if
// path is not empty) and the environment, then validates it
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if strings.Contains(c.Name, "|") {
		return fmt.Errorf("name cannot contain '|'")
	}

	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}
	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates stream configuration
func (s *StreamConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize)
	}
	if s.PlaybackQueueSize < 1 {
		return fmt.Errorf("playback_queue_size must be at least 1, got %d", s.PlaybackQueueSize)
	}
	if s.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %s", s.WriteTimeout)
	}
	if s.DrainTimeout < 0 {
		return fmt.Errorf("drain_timeout cannot be negative, got %s", s.DrainTimeout)
	}
	return nil
}

// Validate validates discovery configuration
func (d *DiscoveryConfig) Validate() error {
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", d.Port)
	}
	if d.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", d.Interval)
	}
	if d.Broadcast != "" && d.BroadcastIP() == nil {
		return fmt.Errorf("broadcast must be an IPv4 address, got %q", d.Broadcast)
	}
	return nil
}

// BroadcastIP returns the configured broadcast override, or nil
func (d *DiscoveryConfig) BroadcastIP() net.IP {
	ip := net.ParseIP(strings.TrimSpace(d.Broadcast))
	if ip == nil {
		return nil
	}
	return ip.To4()
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %s", a.ChunkDuration)
	}
	if a.File == "" {
		if a.ToneFrequency <= 0 {
			return fmt.Errorf("tone_frequency must be positive, got %g", a.ToneFrequency)
		}
		if a.ToneSampleRate <= 0 {
			return fmt.Errorf("tone_sample_rate must be positive, got %d", a.ToneSampleRate)
		}
		if a.ToneChannels < 1 {
			return fmt.Errorf("tone_channels must be at least 1, got %d", a.ToneChannels)
		}
	}
	switch a.Output {
	case "oto", "none":
	default:
		return fmt.Errorf("output must be 'oto' or 'none', got %q", a.Output)
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(l.Level)); err != nil {
		return fmt.Errorf("invalid level %q: %w", l.Level, err)
	}
	return nil
}
