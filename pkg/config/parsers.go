package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "CHATSYNC_"

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // layers applied, e.g. "config+env+flags"
}

// parses command-line flags; only the listen address, db path and config
// path can be passed this way
func ParseConfigFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("chatsync", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "HTTP listen address")
	db := fs.String("db", "./.chatsync", "data directory")
	cfg := fs.String("config", "./config.yaml", "path to config file")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addr, DB: *db, Config: *cfg, Set: set}, nil
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	path := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(path)
	if err != nil {
		if isNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func splitAddr(cfg *Config, v string) {
	if h, p, err := net.SplitHostPort(v); err == nil {
		cfg.Server.Address = h
		if pi, err := strconv.Atoi(p); err == nil {
			cfg.Server.Port = pi
		}
		return
	}
	cfg.Server.Address = v
}

// ApplyEnvOverrides copies every CHATSYNC_* variable that is set onto cfg
// and reports whether any was found. A nil getenv reads the process
// environment.
func ApplyEnvOverrides(cfg *Config, getenv func(string) string) (bool, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	used := false
	env := func(name string) string {
		v := strings.TrimSpace(getenv(envPrefix + name))
		if v != "" {
			used = true
		}
		return v
	}

	if v := env("ADDR"); v != "" {
		splitAddr(cfg, v)
	} else {
		if v := env("SERVER_ADDRESS"); v != "" {
			cfg.Server.Address = v
		}
		if v := env("SERVER_PORT"); v != "" {
			pi, err := strconv.Atoi(v)
			if err != nil {
				return used, fmt.Errorf("%sSERVER_PORT: %w", envPrefix, err)
			}
			cfg.Server.Port = pi
		}
	}
	if v := env("DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}
	if v := env("PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := env("TLS_CERT"); v != "" {
		cfg.Server.TLS.CertFile = v
	}
	if v := env("TLS_KEY"); v != "" {
		cfg.Server.TLS.KeyFile = v
	}

	// security
	if v := env("JWT_SECRET"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := env("TOKEN_TTL"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return used, fmt.Errorf("%sTOKEN_TTL: %w", envPrefix, err)
		}
		cfg.Security.TokenTTL = d
	}
	if v := env("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return used, fmt.Errorf("%sRATE_RPS: %w", envPrefix, err)
		}
		cfg.Security.RateLimit.RPS = f
	}
	if v := env("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return used, fmt.Errorf("%sRATE_BURST: %w", envPrefix, err)
		}
		cfg.Security.RateLimit.Burst = n
	}
	if v := env("CORS_ORIGINS"); v != "" {
		cfg.Security.CORS.AllowedOrigins = parseList(v)
	}

	if v := env("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// storage
	if v := env("MAX_UPLOAD_SIZE"); v != "" {
		s, err := ParseSizeBytes(v)
		if err != nil {
			return used, fmt.Errorf("%sMAX_UPLOAD_SIZE: %w", envPrefix, err)
		}
		cfg.Storage.MaxUploadSize = s
	}
	if v := env("MIN_FREE_DISK"); v != "" {
		s, err := ParseSizeBytes(v)
		if err != nil {
			return used, fmt.Errorf("%sMIN_FREE_DISK: %w", envPrefix, err)
		}
		cfg.Storage.MinFreeDisk = s
	}

	// realtime
	if v := env("REALTIME_HEARTBEAT"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return used, fmt.Errorf("%sREALTIME_HEARTBEAT: %w", envPrefix, err)
		}
		cfg.Realtime.Heartbeat = d
	}
	if v := env("SESSION_IDLE"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return used, fmt.Errorf("%sSESSION_IDLE: %w", envPrefix, err)
		}
		cfg.Realtime.SessionIdle = d
	}
	if v := env("AUTO_MARK_READ"); v != "" {
		cfg.Realtime.AutoMarkRead = parseBool(v)
	}

	// janitor
	if v := env("JANITOR_ENABLED"); v != "" {
		cfg.Janitor.Enabled = parseBool(v)
	}
	if v := env("JANITOR_CRON"); v != "" {
		cfg.Janitor.Cron = v
	}
	if v := env("JANITOR_STAGING_TTL"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return used, fmt.Errorf("%sJANITOR_STAGING_TTL: %w", envPrefix, err)
		}
		cfg.Janitor.StagingTTL = d
	}
	if v := env("JANITOR_DRY_RUN"); v != "" {
		cfg.Janitor.DryRun = parseBool(v)
	}

	// telemetry
	if v := env("TELEMETRY_SAMPLE_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return used, fmt.Errorf("%sTELEMETRY_SAMPLE_RATE: %w", envPrefix, err)
		}
		cfg.Telemetry.SampleRate = f
	}
	if v := env("TELEMETRY_SLOW_THRESHOLD"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return used, fmt.Errorf("%sTELEMETRY_SLOW_THRESHOLD: %w", envPrefix, err)
		}
		cfg.Telemetry.SlowThreshold = d
	}
	return used, nil
}

// LoadEffectiveConfig layers the sources: the config file when present,
// then environment overrides, then explicitly set flags. When --config is
// passed the file must exist.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, getenv func(string) string) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult
	if flags.Set["config"] && !fileExists {
		return res, fmt.Errorf("config file %s not found", flags.Config)
	}

	cfg := &Config{}
	var layers []string
	if fileExists && fileCfg != nil {
		cp := *fileCfg
		cfg = &cp
		layers = append(layers, "config")
	}
	envUsed, err := ApplyEnvOverrides(cfg, getenv)
	if err != nil {
		return res, err
	}
	if envUsed {
		layers = append(layers, "env")
	}
	if flags.Set["addr"] {
		splitAddr(cfg, flags.Addr)
		layers = append(layers, "flags")
	}
	if flags.Set["db"] {
		cfg.Server.DBPath = flags.DB
		if !flags.Set["addr"] {
			layers = append(layers, "flags")
		}
	}
	if strings.TrimSpace(cfg.Server.DBPath) == "" {
		cfg.Server.DBPath = flags.DB
	}
	if len(layers) == 0 {
		layers = append(layers, "defaults")
	}

	cfg.ApplyDefaults()
	res.Config = cfg
	res.Addr = cfg.Addr()
	res.DBPath = cfg.Server.DBPath
	res.Source = strings.Join(layers, "+")
	return res, nil
}
