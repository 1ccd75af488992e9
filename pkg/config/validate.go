package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/adhocore/gronx"
)

const minJWTSecretLen = 16

// set defaults, fail fast on critical errors
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}
	if eff.DBPath == "" {
		return fmt.Errorf("data path is empty: set --db flag, CHATSYNC_DB_PATH env, or server.db_path in config")
	}

	// TLS cert/key presence check if one is set
	cert := cfg.Server.TLS.CertFile
	key := cfg.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if len(cfg.Security.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("security.jwt_secret must be at least %d characters", minJWTSecretLen)
	}

	if u := cfg.Server.PublicURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("server.public_url must start with http:// or https://: %q", u)
	}

	if cfg.Janitor.Enabled && !gronx.New().IsValid(cfg.Janitor.Cron) {
		return fmt.Errorf("invalid janitor.cron expression: %s", cfg.Janitor.Cron)
	}

	if r := cfg.Telemetry.SampleRate; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0,1], got %v", r)
	}
	return nil
}
