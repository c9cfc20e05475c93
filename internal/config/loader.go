package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "multisite.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "MULTISITE_PORT")
	setString(&cfg.Server.CORSOrigin, "MULTISITE_CORS_ORIGIN")

	setString(&cfg.Store.ProjectID, "MULTISITE_STORE_PROJECT")
	setString(&cfg.Store.Dataset, "MULTISITE_STORE_DATASET")
	setString(&cfg.Store.APIVersion, "MULTISITE_STORE_API_VERSION")
	// SANITY_TOKEN is the store's conventional variable; the prefixed form wins.
	setString(&cfg.Store.Token, "SANITY_TOKEN")
	setString(&cfg.Store.Token, "MULTISITE_STORE_TOKEN")
	setString(&cfg.Store.BaseURL, "MULTISITE_STORE_BASE_URL")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.KVBucket, "MULTISITE_KV_BUCKET")

	setInt64(&cfg.Cache.L1MaxSizeMB, "MULTISITE_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.DomainTTL, "MULTISITE_CACHE_DOMAIN_TTL")
	setDuration(&cfg.Cache.ContentTTL, "MULTISITE_CACHE_CONTENT_TTL")
	setDuration(&cfg.Cache.SlugTTL, "MULTISITE_CACHE_SLUG_TTL")
	setDuration(&cfg.Cache.LinkTTL, "MULTISITE_CACHE_LINK_TTL")

	setString(&cfg.Webhook.Secret, "MULTISITE_WEBHOOK_SECRET")

	setString(&cfg.Logging.Level, "MULTISITE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "MULTISITE_LOG_SERVICE")

	setString(&cfg.Otel.Endpoint, "MULTISITE_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Store.ProjectID == "" && cfg.Store.BaseURL == "" {
		return errors.New("store.project_id or store.base_url is required")
	}
	if cfg.Store.Dataset == "" {
		return errors.New("store.dataset is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Cache.L1MaxSizeMB < 1 {
		return errors.New("cache.l1_max_size_mb must be >= 1")
	}
	for name, ttl := range map[string]time.Duration{
		"cache.domain_ttl":  cfg.Cache.DomainTTL,
		"cache.content_ttl": cfg.Cache.ContentTTL,
		"cache.slug_ttl":    cfg.Cache.SlugTTL,
		"cache.link_ttl":    cfg.Cache.LinkTTL,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt64(dst *int64, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
