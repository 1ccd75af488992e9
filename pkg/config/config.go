package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = 8080
	defaultTokenTTL       = 24 * time.Hour
	defaultRateRPS        = 50
	defaultRateBurst      = 100
	defaultMaxUploadSize  = 20 * 1024 * 1024  // 20 MiB
	defaultMinFreeDisk    = 256 * 1024 * 1024 // 256 MiB
	defaultHeartbeat      = 15 * time.Second
	defaultSessionIdle    = 10 * time.Minute
	defaultJanitorCron    = "*/30 * * * *"
	defaultStagingTTL     = time.Hour
	defaultSampleRate     = 0.01
	defaultSlowThreshold  = 500 * time.Millisecond
	defaultTelemetryBuf   = 256 * 1024
	defaultTelemetryFlush = 2 * time.Second
	defaultTelemetryMax   = 40 * 1024 * 1024
)

var (
	cfgMu  sync.RWMutex
	global *Config
)

// SetConfig installs the process-wide effective config.
func SetConfig(c *Config) {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	global = c
}

// GetConfig returns the process-wide config; nil before SetConfig.
func GetConfig() *Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return global
}

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset tunable. It never overrides values the
// operator supplied.
func (c *Config) ApplyDefaults() {
	if c.Security.TokenTTL.Duration() == 0 {
		c.Security.TokenTTL = Duration(defaultTokenTTL)
	}
	if c.Security.RateLimit.RPS <= 0 {
		c.Security.RateLimit.RPS = defaultRateRPS
	}
	if c.Security.RateLimit.Burst <= 0 {
		c.Security.RateLimit.Burst = defaultRateBurst
	}
	if c.Storage.MaxUploadSize.Int64() == 0 {
		c.Storage.MaxUploadSize = SizeBytes(defaultMaxUploadSize)
	}
	if c.Storage.MinFreeDisk.Int64() == 0 {
		c.Storage.MinFreeDisk = SizeBytes(defaultMinFreeDisk)
	}
	if c.Realtime.Heartbeat.Duration() == 0 {
		c.Realtime.Heartbeat = Duration(defaultHeartbeat)
	}
	if c.Realtime.SessionIdle.Duration() == 0 {
		c.Realtime.SessionIdle = Duration(defaultSessionIdle)
	}
	if c.Janitor.Cron == "" {
		c.Janitor.Cron = defaultJanitorCron
	}
	if c.Janitor.StagingTTL.Duration() == 0 {
		c.Janitor.StagingTTL = Duration(defaultStagingTTL)
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = defaultSampleRate
	}
	if c.Telemetry.SlowThreshold.Duration() == 0 {
		c.Telemetry.SlowThreshold = Duration(defaultSlowThreshold)
	}
	if c.Telemetry.BufferSize.Int64() == 0 {
		c.Telemetry.BufferSize = SizeBytes(defaultTelemetryBuf)
	}
	if c.Telemetry.FlushInterval.Duration() == 0 {
		c.Telemetry.FlushInterval = Duration(defaultTelemetryFlush)
	}
	if c.Telemetry.FileMaxSize.Int64() == 0 {
		c.Telemetry.FileMaxSize = SizeBytes(defaultTelemetryMax)
	}
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("CHATSYNC_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// isNotExist reports whether err means the config file is absent.
func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
