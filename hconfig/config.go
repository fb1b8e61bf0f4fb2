// Package hconfig loads participant configuration from TOML.
package hconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds everything a participant needs to run.
type Config struct {
	Protocol    ProtocolConfig    `toml:"protocol"`
	Transport   TransportConfig   `toml:"transport"`
	Recording   RecordingConfig   `toml:"recording"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
}

// ProtocolConfig tunes the reliable delivery engine.
// All intervals are in milliseconds.
type ProtocolConfig struct {
	HeartbeatPeriodMS  int `toml:"heartbeat_period_ms"`
	AckNackIntervalMS  int `toml:"acknack_interval_ms"`
	LeaseDurationMS    int `toml:"lease_duration_ms"`
	LeaseCheckPeriodMS int `toml:"lease_check_period_ms"`
	HistoryDepth       int `toml:"history_depth"`
}

// TransportConfig controls the datagram socket.
type TransportConfig struct {
	Bind string `toml:"bind"`
}

// RecordingConfig controls the optional sample recorder.
// An empty path disables recording.
type RecordingConfig struct {
	Path string `toml:"path"`
}

// DiagnosticsConfig controls the read-only HTTP surface.
// An empty bind disables it.
type DiagnosticsConfig struct {
	Bind string `toml:"bind"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Protocol: ProtocolConfig{
			HeartbeatPeriodMS:  100,
			AckNackIntervalMS:  10,
			LeaseDurationMS:    10_000,
			LeaseCheckPeriodMS: 1_000,
			HistoryDepth:       256,
		},
		Transport: TransportConfig{
			Bind: "127.0.0.1:0",
		},
	}
}

// Load reads path over the defaults.
// Keys absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Protocol.HeartbeatPeriodMS <= 0 {
		return fmt.Errorf(
			"heartbeat_period_ms must be positive (got %d)",
			c.Protocol.HeartbeatPeriodMS,
		)
	}
	if c.Protocol.AckNackIntervalMS < 0 {
		return fmt.Errorf(
			"acknack_interval_ms must not be negative (got %d)",
			c.Protocol.AckNackIntervalMS,
		)
	}
	if c.Protocol.HistoryDepth < 1 {
		return fmt.Errorf(
			"history_depth must be at least 1 (got %d)",
			c.Protocol.HistoryDepth,
		)
	}
	return nil
}

// HeartbeatPeriod returns the heartbeat period as a duration.
func (c ProtocolConfig) HeartbeatPeriod() time.Duration {
	return time.Duration(c.HeartbeatPeriodMS) * time.Millisecond
}

// AckNackInterval returns the ACKNACK rate-limit floor as a duration.
func (c ProtocolConfig) AckNackInterval() time.Duration {
	return time.Duration(c.AckNackIntervalMS) * time.Millisecond
}

// LeaseDuration returns the default peer lease as a duration.
func (c ProtocolConfig) LeaseDuration() time.Duration {
	return time.Duration(c.LeaseDurationMS) * time.Millisecond
}

// LeaseCheckPeriod returns the GC scan period as a duration.
func (c ProtocolConfig) LeaseCheckPeriod() time.Duration {
	return time.Duration(c.LeaseCheckPeriodMS) * time.Millisecond
}
