package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSizeAndDurationParsing(t *testing.T) {
	sizes := []struct {
		in   string
		want int64
	}{
		{"20MB", 20 * 1000 * 1000},
		{"1 MiB", 1024 * 1024},
		{"512", 512},
		{"", 0},
	}
	for _, c := range sizes {
		got, err := ParseSizeBytes(c.in)
		if err != nil {
			t.Fatalf("ParseSizeBytes(%q): %v", c.in, err)
		}
		if got.Int64() != c.want {
			t.Fatalf("ParseSizeBytes(%q) = %d want %d", c.in, got.Int64(), c.want)
		}
	}
	if _, err := ParseSizeBytes("lots"); err == nil {
		t.Fatalf("expected error for invalid size")
	}

	durs := []struct {
		in   string
		want time.Duration
	}{
		{"150ms", 150 * time.Millisecond},
		{"2", 2 * time.Second},
		{"1.5", 1500 * time.Millisecond},
	}
	for _, c := range durs {
		got, err := ParseDuration(c.in)
		if err != nil {
			t.Fatalf("ParseDuration(%q): %v", c.in, err)
		}
		if got.Duration() != c.want {
			t.Fatalf("ParseDuration(%q) = %v want %v", c.in, got.Duration(), c.want)
		}
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  address: 127.0.0.1
  port: 9090
  db_path: /tmp/chatsync
security:
  jwt_secret: "0123456789abcdef0123"
  token_ttl: 2h
storage:
  max_upload_size: 5MB
janitor:
  enabled: true
  cron: "0 * * * *"
  staging_ttl: 90
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("addr = %s", cfg.Addr())
	}
	if cfg.Security.TokenTTL.Duration() != 2*time.Hour {
		t.Fatalf("token ttl = %v", cfg.Security.TokenTTL.Duration())
	}
	if cfg.Storage.MaxUploadSize.Int64() != 5*1000*1000 {
		t.Fatalf("max upload = %d", cfg.Storage.MaxUploadSize.Int64())
	}
	if cfg.Janitor.StagingTTL.Duration() != 90*time.Second {
		t.Fatalf("staging ttl = %v", cfg.Janitor.StagingTTL.Duration())
	}
}

func TestLoadEffectiveConfigLayers(t *testing.T) {
	file := &Config{}
	file.Server.Port = 7000
	file.Security.JWTSecret = "file-secret-0123456789"
	file.Logging.Level = "info"

	env := map[string]string{
		"CHATSYNC_LOG_LEVEL":       "debug",
		"CHATSYNC_MAX_UPLOAD_SIZE": "1MiB",
	}
	getenv := func(k string) string { return env[k] }

	flags := Flags{Addr: "127.0.0.1:9999", DB: "/data", Set: map[string]bool{"addr": true}}
	eff, err := LoadEffectiveConfig(flags, file, true, getenv)
	if err != nil {
		t.Fatalf("LoadEffectiveConfig: %v", err)
	}
	if eff.Source != "config+env+flags" {
		t.Fatalf("source = %s", eff.Source)
	}
	if eff.Addr != "127.0.0.1:9999" {
		t.Fatalf("addr = %s", eff.Addr)
	}
	if eff.DBPath != "/data" {
		t.Fatalf("db path = %s", eff.DBPath)
	}
	if eff.Config.Logging.Level != "debug" {
		t.Fatalf("env did not override log level")
	}
	if eff.Config.Storage.MaxUploadSize.Int64() != 1024*1024 {
		t.Fatalf("max upload = %d", eff.Config.Storage.MaxUploadSize.Int64())
	}
	if eff.Config.Security.JWTSecret != "file-secret-0123456789" {
		t.Fatalf("file value lost")
	}
	if file.Logging.Level != "info" {
		t.Fatalf("file config was mutated")
	}
	if err := ValidateConfig(eff); err != nil {
		t.Fatalf("ValidateConfig: %v", err)
	}
}

func TestLoadEffectiveConfigMissingFile(t *testing.T) {
	flags := Flags{Config: "/nope.yaml", Set: map[string]bool{"config": true}}
	if _, err := LoadEffectiveConfig(flags, &Config{}, false, func(string) string { return "" }); err == nil {
		t.Fatalf("expected error when --config file is missing")
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() EffectiveConfigResult {
		c := &Config{}
		c.Security.JWTSecret = "0123456789abcdef"
		c.ApplyDefaults()
		return EffectiveConfigResult{Config: c, DBPath: "/data"}
	}

	tests := []struct {
		name    string
		mutate  func(*EffectiveConfigResult)
		wantErr bool
	}{
		{"valid", func(*EffectiveConfigResult) {}, false},
		{"no db path", func(e *EffectiveConfigResult) { e.DBPath = "" }, true},
		{"short secret", func(e *EffectiveConfigResult) { e.Config.Security.JWTSecret = "short" }, true},
		{"half tls", func(e *EffectiveConfigResult) { e.Config.Server.TLS.CertFile = "cert.pem" }, true},
		{"bad cron", func(e *EffectiveConfigResult) {
			e.Config.Janitor.Enabled = true
			e.Config.Janitor.Cron = "every minute"
		}, true},
		{"bad public url", func(e *EffectiveConfigResult) { e.Config.Server.PublicURL = "files.local" }, true},
		{"bad sample rate", func(e *EffectiveConfigResult) { e.Config.Telemetry.SampleRate = 2 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eff := base()
			tt.mutate(&eff)
			err := ValidateConfig(eff)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverridesRejectsBadNumbers(t *testing.T) {
	cfg := &Config{}
	_, err := ApplyEnvOverrides(cfg, func(k string) string {
		if k == "CHATSYNC_RATE_BURST" {
			return "many"
		}
		return ""
	})
	if err == nil {
		t.Fatalf("expected error for non-numeric burst")
	}
}
