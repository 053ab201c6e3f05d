package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	AppName            = "duck_vd"
	DefaultViewer      = "vd"
	DefaultGCSEndpoint = "storage.googleapis.com"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Service       ServiceConfig
	Cache         CacheConfig
	Viewer        ViewerConfig
	Engine        EngineConfig
	GCS           GCSConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type CacheConfig struct {
	Dir string
}

type ViewerConfig struct {
	Program string
}

type EngineConfig struct {
	Threads int
}

// GCSConfig holds HMAC credentials for the S3-interoperable GCS API. Empty
// credentials mean the gs:// capability is unavailable.
type GCSConfig struct {
	KeyID        string
	Secret       string
	Endpoint     string
	VerifyBucket bool
}

type ObservabilityConfig struct {
	LogLevel    slog.Level
	LogJSON     bool
	MetricsFile string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := defaults()
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "DUCK_VD_CACHE_DIR", &cfg.Cache.Dir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCK_VD_VIEWER", &cfg.Viewer.Program); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DUCK_VD_DUCKDB_THREADS", &cfg.Engine.Threads); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCK_VD_GCS_KEY_ID", &cfg.GCS.KeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCK_VD_GCS_SECRET", &cfg.GCS.Secret); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCK_VD_GCS_ENDPOINT", &cfg.GCS.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCK_VD_GCS_VERIFY", &cfg.GCS.VerifyBucket); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DUCK_VD_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "DUCK_VD_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DUCK_VD_METRICS_FILE", &cfg.Observability.MetricsFile); err != nil {
		return Config{}, err
	}

	if cfg.Cache.Dir == "" {
		dir, err := DefaultCacheDir()
		if err != nil {
			return Config{}, err
		}
		cfg.Cache.Dir = dir
	}
	if cfg.Viewer.Program == "" {
		return Config{}, fmt.Errorf("viewer program is required")
	}
	if cfg.Engine.Threads < 0 {
		return Config{}, fmt.Errorf("invalid DUCK_VD_DUCKDB_THREADS: %d", cfg.Engine.Threads)
	}
	return cfg, nil
}

// DefaultCacheDir is the per-user cache home joined with the application
// subdirectory.
func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve user cache dir: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

func defaults() Config {
	return Config{
		Service: ServiceConfig{Name: "duck-vd"},
		Viewer:  ViewerConfig{Program: DefaultViewer},
		GCS:     GCSConfig{Endpoint: DefaultGCSEndpoint},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelInfo,
			LogJSON:  false,
		},
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
