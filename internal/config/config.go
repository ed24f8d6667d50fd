package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr   string `yaml:"listen_addr"`
	ControlAddr  string `yaml:"control_addr"`
	ControlToken string `yaml:"control_token"`

	Origin   string `yaml:"origin"`
	SelfHost string `yaml:"self_host"`
	AppName  string `yaml:"app_name"`
	Version  string `yaml:"version"`

	Storage StorageConfig `yaml:"storage"`

	CriticalResources []string `yaml:"critical_resources"`
	OfflineDocument   string   `yaml:"offline_document"`
	APIPrefixes       []string `yaml:"api_prefixes"`
	APICachePatterns  []string `yaml:"api_cache_patterns"`
	StaticExtensions  []string `yaml:"static_extensions"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	PreservePrefixes  []string `yaml:"preserve_prefixes"`

	APIMaxAgeMS       int `yaml:"api_max_age_ms"`
	FetchTimeoutMS    int `yaml:"fetch_timeout_ms"`
	JanitorIntervalMS int `yaml:"janitor_interval_ms"`

	Sync   SyncConfig   `yaml:"sync"`
	Limits LimitsConfig `yaml:"limits"`
}

type StorageConfig struct {
	Backend        string `yaml:"backend"`
	Path           string `yaml:"path"`
	RedisURL       string `yaml:"redis_url"`
	RedisPrefix    string `yaml:"redis_prefix"`
	MaxObjectBytes int64  `yaml:"max_object_bytes"`
}

type SyncConfig struct {
	Path          string `yaml:"path"`
	IntervalMS    int    `yaml:"interval_ms"`
	BackoffBaseMS int    `yaml:"backoff_base_ms"`
	BackoffCapMS  int    `yaml:"backoff_cap_ms"`
	MaxAttempts   int    `yaml:"max_attempts"`
}

type LimitsConfig struct {
	MaxHeaderBytes      int `yaml:"max_header_bytes"`
	ReadHeaderTimeoutMS int `yaml:"read_header_timeout_ms"`
	ReadTimeoutMS       int `yaml:"read_timeout_ms"`
	WriteTimeoutMS      int `yaml:"write_timeout_ms"`
	IdleTimeoutMS       int `yaml:"idle_timeout_ms"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8080"
	}
	if c.ControlAddr == "" {
		c.ControlAddr = "127.0.0.1:9090"
	}
	if c.AppName == "" {
		c.AppName = "lcmtv"
	}
	if c.Version == "" {
		c.Version = "v1.0.0"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.OfflineDocument == "" {
		c.OfflineDocument = "/offline.html"
	}
	if c.APIMaxAgeMS <= 0 {
		c.APIMaxAgeMS = int(5 * time.Minute / time.Millisecond)
	}
	if c.FetchTimeoutMS <= 0 {
		c.FetchTimeoutMS = 8000
	}
	if c.JanitorIntervalMS <= 0 {
		c.JanitorIntervalMS = int(time.Hour / time.Millisecond)
	}
	if c.APICachePatterns == nil {
		c.APICachePatterns = []string{"^/api/", "^/backend/api/"}
	}
	if c.PreservePrefixes == nil {
		c.PreservePrefixes = []string{c.AppName + "-offline-"}
	}
	if c.Sync.Path == "" {
		c.Sync.Path = "./data/syncq"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data/cache"
	}
}

func (c *Config) APIMaxAge() time.Duration {
	return time.Duration(c.APIMaxAgeMS) * time.Millisecond
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

func (c *Config) JanitorInterval() time.Duration {
	return time.Duration(c.JanitorIntervalMS) * time.Millisecond
}
