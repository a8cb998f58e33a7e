// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	applog "audiohost/internal/log"
)

// Sink names accepted in output.sinks.
const (
	SinkNull      = "null"
	SinkPortAudio = "portaudio"
	SinkOto       = "oto"
	SinkWav       = "wav"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (forces the debug log level).
	LogLevel  string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Playback  PlaybackConfig  `yaml:"playback"`
	Cache     CacheConfig     `yaml:"cache"`
	Output    OutputConfig    `yaml:"output"`
	DSP       ModulesConfig   `yaml:"dsp"`
	Vis       ModulesConfig   `yaml:"vis"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// PlaybackConfig holds decode loop settings.
type PlaybackConfig struct {
	BlockSize int `yaml:"block_size"` // Frames decoded per iteration.
	BufferMs  int `yaml:"buffer_ms"`  // Sink buffer length requested on open.
	// VisHeadroomMs is added to each visualizer's latency when sizing the sample cache.
	VisHeadroomMs int `yaml:"vis_headroom_ms"`
}

// CacheConfig sizes the visualization sample cache.
type CacheConfig struct {
	FrameRate    int `yaml:"frame_rate"`     // Frames per second the cache is sized for.
	MaxLatencyMs int `yaml:"max_latency_ms"` // Initial latency window.
}

// OutputConfig selects and tunes the output sinks.
type OutputConfig struct {
	Sinks      []string `yaml:"sinks"`       // Active sinks, any of null, portaudio, oto, wav.
	Device     int      `yaml:"device"`      // PortAudio device index (-1 for default).
	LowLatency bool     `yaml:"low_latency"` // Request low latency settings from PortAudio.
	WavPath    string   `yaml:"wav_path"`    // Output file for the wav sink.
	Volume     int      `yaml:"volume"`      // 0..255
	Pan        int      `yaml:"pan"`         // -128..128
	Gain       float64  `yaml:"gain"`        // Linear gain of the builtin amp effect.
	// GateThreshold of the builtin gate effect, 0..1 of full scale.
	GateThreshold float64 `yaml:"gate_threshold"`
}

// ModulesConfig lists the modules to start, in chain order.
type ModulesConfig struct {
	Plugins []string `yaml:"plugins"` // Plugin paths to load.
	Start   []string `yaml:"start"`   // Module names to start.
}

// TransportConfig holds settings related to sending visualization data over the network.
type TransportConfig struct {
	WebSocketEnabled bool   `yaml:"websocket_enabled"`
	WebSocketAddress string `yaml:"websocket_address"`  // Listen address for /ws and /metrics.
	UDPEnabled       bool   `yaml:"udp_enabled"`        // Enable the udp visualizer.
	UDPTargetAddress string `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Serve /metrics on the websocket server.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Playback: PlaybackConfig{
			BlockSize:     576,
			BufferMs:      500,
			VisHeadroomMs: 500,
		},
		Cache: CacheConfig{
			FrameRate:    100,
			MaxLatencyMs: 1000,
		},
		Output: OutputConfig{
			Sinks:         []string{SinkPortAudio},
			Device:        -1, // -1 for default device.
			Volume:        255,
			Gain:          1,
			GateThreshold: 0.001,
		},
		DSP: ModulesConfig{Plugins: []string{"builtin:effects"}},
		Vis: ModulesConfig{Plugins: []string{"builtin:visualizers"}},
		Transport: TransportConfig{
			WebSocketAddress: "127.0.0.1:8080",
			UDPTargetAddress: "127.0.0.1:9090",
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml", "audiohost.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not a known level", c.LogLevel))
	}
	if c.Playback.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("playback.block_size must be positive, got %d", c.Playback.BlockSize))
	}
	if c.Playback.BufferMs <= 0 {
		errs = append(errs, fmt.Errorf("playback.buffer_ms must be positive, got %d", c.Playback.BufferMs))
	}
	if c.Playback.VisHeadroomMs < 0 {
		errs = append(errs, fmt.Errorf("playback.vis_headroom_ms must not be negative, got %d", c.Playback.VisHeadroomMs))
	}
	if c.Cache.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("cache.frame_rate must be positive, got %d", c.Cache.FrameRate))
	}
	if c.Cache.MaxLatencyMs < 0 {
		errs = append(errs, fmt.Errorf("cache.max_latency_ms must not be negative, got %d", c.Cache.MaxLatencyMs))
	}

	for _, s := range c.Output.Sinks {
		switch s {
		case SinkNull, SinkPortAudio, SinkOto:
		case SinkWav:
			if c.Output.WavPath == "" {
				errs = append(errs, errors.New("output.wav_path must be set when the wav sink is enabled"))
			}
		default:
			errs = append(errs, fmt.Errorf("output.sinks: unknown sink %q", s))
		}
	}
	if c.Output.Volume < 0 || c.Output.Volume > 255 {
		errs = append(errs, fmt.Errorf("output.volume must be within 0..255, got %d", c.Output.Volume))
	}
	if c.Output.Pan < -128 || c.Output.Pan > 128 {
		errs = append(errs, fmt.Errorf("output.pan must be within -128..128, got %d", c.Output.Pan))
	}
	if c.Output.Gain < 0 {
		errs = append(errs, fmt.Errorf("output.gain must not be negative, got %g", c.Output.Gain))
	}
	if c.Output.GateThreshold < 0 || c.Output.GateThreshold > 1 {
		errs = append(errs, fmt.Errorf("output.gate_threshold must be within 0..1, got %g", c.Output.GateThreshold))
	}

	if c.Transport.WebSocketEnabled && !strings.Contains(c.Transport.WebSocketAddress, ":") {
		errs = append(errs, fmt.Errorf("transport.websocket_address '%s' appears invalid (missing port?)", c.Transport.WebSocketAddress))
	}
	if c.Transport.UDPEnabled && !strings.Contains(c.Transport.UDPTargetAddress, ":") {
		errs = append(errs, fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress))
	}
	if c.Metrics.Enabled && !c.Transport.WebSocketEnabled {
		errs = append(errs, errors.New("metrics.enabled requires transport.websocket_enabled"))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the loaded values.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			applog.Infof("configuration: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Infof("configuration: Overriding log_level from env: %s", val)
	}
	// ENV_SINKS, comma separated.
	if val, ok := os.LookupEnv("ENV_SINKS"); ok {
		c.Output.Sinks = splitList(val)
		applog.Infof("configuration: Overriding output.sinks from env: %v", c.Output.Sinks)
	}
	// ENV_OUTPUT_DEVICE
	if val, ok := os.LookupEnv("ENV_OUTPUT_DEVICE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			c.Output.Device = iVal
			applog.Infof("configuration: Overriding output.device from env: %d", iVal)
		}
	}

	// ENV_WS_{...}
	// These are specific to the transport layer.

	// ENV_WS_ENABLED
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.WebSocketEnabled = bVal
			applog.Infof("configuration: Overriding transport.websocket_enabled from env: %v", bVal)
		}
	}
	// ENV_WS_ADDRESS
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WebSocketAddress = val
		applog.Infof("configuration: Overriding transport.websocket_address from env: %s", val)
	}
	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
			applog.Infof("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_METRICS_ENABLED
	if val, ok := os.LookupEnv("ENV_METRICS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Metrics.Enabled = bVal
			applog.Infof("configuration: Overriding metrics.enabled from env: %v", bVal)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
