// Package config provides hierarchical configuration loading for the
// multisite resolution core. Precedence: defaults < YAML file < environment
// variables.
package config

import "time"

// Config holds all runtime configuration for the multisite core service.
type Config struct {
	Server  Server  `yaml:"server"`
	Store   Store   `yaml:"store"`
	NATS    NATS    `yaml:"nats"`
	Cache   Cache   `yaml:"cache"`
	Webhook Webhook `yaml:"webhook"`
	Logging Logging `yaml:"logging"`
	Otel    Otel    `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Store holds connection settings for the external content store API.
type Store struct {
	ProjectID  string `yaml:"project_id"`
	Dataset    string `yaml:"dataset"`
	APIVersion string `yaml:"api_version"`
	Token      string `yaml:"token"`
	BaseURL    string `yaml:"base_url"` // override for tests/self-hosted
}

// NATS holds NATS JetStream configuration.
type NATS struct {
	URL      string `yaml:"url"`
	KVBucket string `yaml:"kv_bucket"`
}

// Cache holds TTLs and sizing for the derived caches.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	DomainTTL   time.Duration `yaml:"domain_ttl"`
	ContentTTL  time.Duration `yaml:"content_ttl"`
	SlugTTL     time.Duration `yaml:"slug_ttl"`
	LinkTTL     time.Duration `yaml:"link_ttl"`
}

// Webhook holds webhook verification secrets.
type Webhook struct {
	Secret string `yaml:"secret"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Otel holds OpenTelemetry exporter configuration. An empty endpoint
// disables telemetry export.
type Otel struct {
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "*",
		},
		Store: Store{
			Dataset:    "production",
			APIVersion: "2024-05-01",
		},
		NATS: NATS{
			URL:      "nats://localhost:4222",
			KVBucket: "multisite-cache",
		},
		Cache: Cache{
			L1MaxSizeMB: 64,
			DomainTTL:   10 * time.Minute,
			ContentTTL:  time.Minute,
			SlugTTL:     24 * time.Hour,
			LinkTTL:     5 * time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "multisite",
		},
	}
}
