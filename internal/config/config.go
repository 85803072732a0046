// Package config loads the YAML configuration for the whole corelan
// process: the UDP stream receiver, the LAN input server and client, and
// the optional persistence/diagnostics/cross-process-bus sidecars.
// Grounded on the teacher's pkg/config/config.go (LoadConfig/setDefaults/
// validate/GenerateDefaultConfig/WriteConfigFile shape, gopkg.in/yaml.v3).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root document, parsed from a single YAML file.
type Config struct {
	UDPReceiver UDPReceiverConfig `yaml:"udp_receiver"`
	InputServer InputServerConfig `yaml:"input_server"`
	InputClient InputClientConfig `yaml:"input_client"`
	Logging     LoggingConfig     `yaml:"logging"`
	DiagBridge  DiagBridgeConfig  `yaml:"diag_bridge"`
	StatsLog    StatsLogConfig    `yaml:"stats_log"`
	RedisBus    RedisBusConfig    `yaml:"redis_bus"`
}

// UDPReceiverConfig mirrors spec section 4.2's clamp table.
type UDPReceiverConfig struct {
	ListenHost       string `yaml:"listen_host"`
	ListenPort       int    `yaml:"listen_port"`
	StreamID         string `yaml:"stream_id"`
	MaxFrameAgeMs    int    `yaml:"max_frame_age_ms"`
	MaxPendingFrames int    `yaml:"max_pending_frames"`
	StatsIntervalMs  int    `yaml:"stats_interval_ms"`
}

// InputServerConfig mirrors spec section 4.4's clamp table.
type InputServerConfig struct {
	BindHost           string `yaml:"bind_host"`
	BindPort           int    `yaml:"bind_port"`
	Token              string `yaml:"token"`
	SessionID          string `yaml:"session_id"`
	StreamID           string `yaml:"stream_id"`
	MaxEventsPerSecond int    `yaml:"max_events_per_second"`
	StatsIntervalMs    int    `yaml:"stats_interval_ms"`
}

// InputClientConfig configures the symmetric Input Client that dials an
// Input Server as a peer and forwards locally observed events.
type InputClientConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Token            string `yaml:"token"`
	SessionID        string `yaml:"session_id"`
	StreamID         string `yaml:"stream_id"`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"`
}

// LoggingConfig mirrors the teacher's LoggingConfig, with a Console toggle
// that did not exist upstream because the teacher always wrote plain
// text; corelan defaults to structured JSON and needs a way back to
// console formatting for local development.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Console    bool   `yaml:"console"`
}

// DiagBridgeConfig is optional: Enabled false disables the bridge.
type DiagBridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// StatsLogConfig is optional: Enabled false skips opening a database
// connection entirely.
type StatsLogConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisBusConfig is optional: Enabled false keeps events process-local.
type RedisBusConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Load reads, defaults, and validates path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (c *Config) setDefaults() {
	if c.UDPReceiver.ListenHost == "" {
		c.UDPReceiver.ListenHost = "0.0.0.0"
	}
	if c.UDPReceiver.ListenPort == 0 {
		c.UDPReceiver.ListenPort = 5004
	}
	if c.UDPReceiver.MaxFrameAgeMs == 0 {
		c.UDPReceiver.MaxFrameAgeMs = 40
	}
	c.UDPReceiver.MaxFrameAgeMs = clampInt(c.UDPReceiver.MaxFrameAgeMs, 5, 5000)
	if c.UDPReceiver.MaxPendingFrames == 0 {
		c.UDPReceiver.MaxPendingFrames = 96
	}
	c.UDPReceiver.MaxPendingFrames = clampInt(c.UDPReceiver.MaxPendingFrames, 2, 4096)
	if c.UDPReceiver.StatsIntervalMs == 0 {
		c.UDPReceiver.StatsIntervalMs = 1000
	}
	c.UDPReceiver.StatsIntervalMs = clampInt(c.UDPReceiver.StatsIntervalMs, 250, 60000)

	if c.InputServer.BindHost == "" {
		c.InputServer.BindHost = "0.0.0.0"
	}
	if c.InputServer.BindPort == 0 {
		c.InputServer.BindPort = 5505
	}
	if c.InputServer.MaxEventsPerSecond == 0 {
		c.InputServer.MaxEventsPerSecond = 700
	}
	c.InputServer.MaxEventsPerSecond = clampInt(c.InputServer.MaxEventsPerSecond, 60, 5000)
	if c.InputServer.StatsIntervalMs == 0 {
		c.InputServer.StatsIntervalMs = 1000
	}
	c.InputServer.StatsIntervalMs = clampInt(c.InputServer.StatsIntervalMs, 250, 60000)

	if c.InputClient.ConnectTimeoutMs == 0 {
		c.InputClient.ConnectTimeoutMs = 3000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 28
	}

	if c.RedisBus.Port == 0 {
		c.RedisBus.Port = 6379
	}
	if c.RedisBus.Channel == "" {
		c.RedisBus.Channel = "corelan-events"
	}

	if c.StatsLog.Port == 0 {
		c.StatsLog.Port = 5432
	}
	if c.StatsLog.SSLMode == "" {
		c.StatsLog.SSLMode = "disable"
	}
}

func (c *Config) validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	if c.InputServer.BindPort < 1 || c.InputServer.BindPort > 65535 {
		return fmt.Errorf("invalid input server bind port: %d", c.InputServer.BindPort)
	}
	if c.UDPReceiver.ListenPort < 1 || c.UDPReceiver.ListenPort > 65535 {
		return fmt.Errorf("invalid udp receiver listen port: %d", c.UDPReceiver.ListenPort)
	}
	if c.StatsLog.Enabled && c.StatsLog.Host == "" {
		return fmt.Errorf("stats_log.host is required when stats_log.enabled is true")
	}
	if c.RedisBus.Enabled && c.RedisBus.Host == "" {
		return fmt.Errorf("redis_bus.host is required when redis_bus.enabled is true")
	}
	return nil
}

// Default returns a ready-to-run configuration using the defaults a
// conforming implementation must observe, suitable for `config init`.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Write marshals cfg to path as YAML, 0644.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
