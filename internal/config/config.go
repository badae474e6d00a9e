package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backend selectors.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// defaultSalt matches the constant the legacy builds shipped with; a
// per-install salt via LEDGER_KDF_SALT is strongly preferred.
const defaultSalt = "secure-bank-salt"

// Config holds all runtime configuration derived from environment variables.
type Config struct {
	HTTPPort       string
	RemoteBaseURL  string
	Passphrase     string
	StorageBackend string
	DataDir        string
	RedisURL       string
	KDFSalt        string
	LogLevel       string
	RateLimitRPS   int
	ProbeInterval  time.Duration
	RequestTimeout time.Duration
}

// Load reads environment variables using viper and returns a typed config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	bindEnv(v, "port", "PORT", "LEDGER_PORT")
	bindEnv(v, "remote_base_url", "REMOTE_BASE_URL", "LEDGER_REMOTE_BASE_URL")
	bindEnv(v, "passphrase", "PASSPHRASE", "LEDGER_PASSPHRASE")
	bindEnv(v, "storage_backend", "STORAGE_BACKEND", "LEDGER_STORAGE_BACKEND")
	bindEnv(v, "data_dir", "DATA_DIR", "LEDGER_DATA_DIR")
	bindEnv(v, "redis_url", "REDIS_URL", "LEDGER_REDIS_URL")
	bindEnv(v, "kdf_salt", "KDF_SALT", "LEDGER_KDF_SALT")
	bindEnv(v, "log_level", "LOG_LEVEL", "LEDGER_LOG_LEVEL")
	bindEnv(v, "rate_limit_rps", "RATE_LIMIT_RPS", "LEDGER_RATE_LIMIT_RPS")
	bindEnv(v, "probe_interval", "PROBE_INTERVAL", "LEDGER_PROBE_INTERVAL")
	bindEnv(v, "request_timeout", "REQUEST_TIMEOUT", "LEDGER_REQUEST_TIMEOUT")

	v.SetDefault("port", "8470")
	v.SetDefault("remote_base_url", "")
	v.SetDefault("passphrase", "")
	v.SetDefault("storage_backend", BackendFile)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("kdf_salt", defaultSalt)
	v.SetDefault("log_level", "info")
	v.SetDefault("rate_limit_rps", 50)
	v.SetDefault("probe_interval", "15s")
	v.SetDefault("request_timeout", "10s")

	probeInterval, err := time.ParseDuration(v.GetString("probe_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid PROBE_INTERVAL: %w", err)
	}
	requestTimeout, err := time.ParseDuration(v.GetString("request_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	cfg := &Config{
		HTTPPort:       v.GetString("port"),
		RemoteBaseURL:  strings.TrimRight(v.GetString("remote_base_url"), "/"),
		Passphrase:     v.GetString("passphrase"),
		StorageBackend: strings.ToLower(v.GetString("storage_backend")),
		DataDir:        v.GetString("data_dir"),
		RedisURL:       v.GetString("redis_url"),
		KDFSalt:        v.GetString("kdf_salt"),
		LogLevel:       v.GetString("log_level"),
		RateLimitRPS:   max(v.GetInt("rate_limit_rps"), 1),
		ProbeInterval:  probeInterval,
		RequestTimeout: requestTimeout,
	}

	if strings.TrimSpace(cfg.RemoteBaseURL) == "" {
		return nil, fmt.Errorf("REMOTE_BASE_URL is required")
	}
	if _, err := url.Parse(cfg.RemoteBaseURL); err != nil {
		return nil, fmt.Errorf("invalid REMOTE_BASE_URL: %w", err)
	}
	if strings.TrimSpace(cfg.Passphrase) == "" {
		return nil, fmt.Errorf("PASSPHRASE is required")
	}
	switch cfg.StorageBackend {
	case BackendFile:
		if strings.TrimSpace(cfg.DataDir) == "" {
			return nil, fmt.Errorf("DATA_DIR is required for the file backend")
		}
	case BackendRedis:
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return nil, fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q (want %q or %q)", cfg.StorageBackend, BackendFile, BackendRedis)
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper, key string, names ...string) {
	args := append([]string{key}, names...)
	_ = v.BindEnv(args...)
}
