// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML representation of the hub configuration. Duration
// fields are strings in Go duration syntax ("30s", "1h") and are parsed
// during merge. Empty fields leave the current value untouched.
type FileConfig struct {
	Listen        string `yaml:"listen,omitempty"`
	Environment   string `yaml:"environment,omitempty"`
	LogLevel      string `yaml:"logLevel,omitempty"`
	MetricsListen string `yaml:"metricsListen,omitempty"`

	SessionTTL    string `yaml:"sessionTTL,omitempty"`
	SweepInterval string `yaml:"sweepInterval,omitempty"`
	EntryGrace    string `yaml:"entryGrace,omitempty"`
	PingInterval  string `yaml:"pingInterval,omitempty"`
	SendBuffer    int    `yaml:"sendBuffer,omitempty"`
	NearbyDelay   string `yaml:"nearbyDelay,omitempty"`

	Server    ServerFileConfig    `yaml:"server,omitempty"`
	Telemetry TelemetryFileConfig `yaml:"telemetry,omitempty"`
}

// ServerFileConfig mirrors ServerConfig for the YAML file.
type ServerFileConfig struct {
	ReadTimeout     string `yaml:"readTimeout,omitempty"`
	WriteTimeout    string `yaml:"writeTimeout,omitempty"`
	IdleTimeout     string `yaml:"idleTimeout,omitempty"`
	MaxHeaderBytes  int    `yaml:"maxHeaderBytes,omitempty"`
	ShutdownTimeout string `yaml:"shutdownTimeout,omitempty"`
}

// TelemetryFileConfig mirrors TelemetryConfig for the YAML file.
type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the configuration: defaults first, then the optional YAML
// file, then environment variables, then validation.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	path := l.configPath
	if path == "" {
		path = os.Getenv("FLOWLINK_CONFIG")
	}
	if path != "" {
		fileCfg, err := l.loadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

// mergeFileConfig merges the YAML file values into cfg. Only set fields
// override; duration strings are validated here.
func mergeFileConfig(cfg *Config, src *FileConfig) error {
	if src.Listen != "" {
		cfg.Listen = src.Listen
	}
	if src.Environment != "" {
		cfg.Environment = src.Environment
	}
	if src.LogLevel != "" {
		cfg.LogLevel = src.LogLevel
	}
	if src.MetricsListen != "" {
		cfg.MetricsListen = src.MetricsListen
	}

	durations := []struct {
		key string
		src string
		dst *time.Duration
	}{
		{"sessionTTL", src.SessionTTL, &cfg.SessionTTL},
		{"sweepInterval", src.SweepInterval, &cfg.SweepInterval},
		{"entryGrace", src.EntryGrace, &cfg.EntryGrace},
		{"pingInterval", src.PingInterval, &cfg.PingInterval},
		{"nearbyDelay", src.NearbyDelay, &cfg.NearbyDelay},
		{"server.readTimeout", src.Server.ReadTimeout, &cfg.Server.ReadTimeout},
		{"server.writeTimeout", src.Server.WriteTimeout, &cfg.Server.WriteTimeout},
		{"server.idleTimeout", src.Server.IdleTimeout, &cfg.Server.IdleTimeout},
		{"server.shutdownTimeout", src.Server.ShutdownTimeout, &cfg.Server.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.src == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.src)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if src.SendBuffer > 0 {
		cfg.SendBuffer = src.SendBuffer
	}
	if src.Server.MaxHeaderBytes > 0 {
		cfg.Server.MaxHeaderBytes = src.Server.MaxHeaderBytes
	}

	if src.Telemetry.Enabled != nil {
		cfg.Telemetry.Enabled = *src.Telemetry.Enabled
	}
	if src.Telemetry.Exporter != "" {
		cfg.Telemetry.Exporter = src.Telemetry.Exporter
	}
	if src.Telemetry.Endpoint != "" {
		cfg.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
	if src.Telemetry.SamplingRate != nil {
		cfg.Telemetry.SamplingRate = *src.Telemetry.SamplingRate
	}
	return nil
}

// mergeEnvConfig applies environment variables on top of cfg. ENV always wins.
func mergeEnvConfig(cfg *Config) {
	cfg.Listen = ParseString("FLOWLINK_LISTEN", cfg.Listen)
	cfg.Environment = ParseString("FLOWLINK_ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = ParseString("FLOWLINK_LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsListen = ParseString("FLOWLINK_METRICS_LISTEN", cfg.MetricsListen)

	cfg.SessionTTL = ParseDuration("FLOWLINK_SESSION_TTL", cfg.SessionTTL)
	cfg.SweepInterval = ParseDuration("FLOWLINK_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.EntryGrace = ParseDuration("FLOWLINK_ENTRY_GRACE", cfg.EntryGrace)
	cfg.PingInterval = ParseDuration("FLOWLINK_PING_INTERVAL", cfg.PingInterval)
	cfg.SendBuffer = ParseInt("FLOWLINK_SEND_BUFFER", cfg.SendBuffer)
	cfg.NearbyDelay = ParseDuration("FLOWLINK_NEARBY_DELAY", cfg.NearbyDelay)

	cfg.Server = parseServerEnv(cfg.Server)

	cfg.Telemetry.Enabled = ParseBool("FLOWLINK_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString("FLOWLINK_TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString("FLOWLINK_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat("FLOWLINK_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
