package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Download  DownloadConfig  `yaml:"download"`
	Extract   ExtractConfig   `yaml:"extract"`
	History   HistoryConfig   `yaml:"history"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port           int           `yaml:"port" envconfig:"SERVER_PORT" default:"8300"`
	ReadTimeout    time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"10m"`
	APIKeyRequired bool          `yaml:"api_key_required" envconfig:"API_KEY_REQUIRED" default:"false"`
	APIKey         string        `yaml:"api_key" envconfig:"API_KEY"`
}

// RateLimitConfig holds per-client rate limiting configuration.
type RateLimitConfig struct {
	Enabled   bool          `yaml:"enabled" envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	PerMinute int           `yaml:"per_minute" envconfig:"RATE_LIMIT_PER_MINUTE" default:"5"`
	Window    time.Duration `yaml:"window" envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
}

// DownloadConfig holds transfer policy configuration.
type DownloadConfig struct {
	MaxSizeMB      int64  `yaml:"max_size_mb" envconfig:"MAX_DOWNLOAD_SIZE_MB" default:"500"`
	AllowedDomains string `yaml:"allowed_domains" envconfig:"ALLOWED_DOMAINS" default:"instagram.com,www.instagram.com,tiktok.com,www.tiktok.com,vm.tiktok.com,vt.tiktok.com"`
	SpoolPath      string `yaml:"spool_path" envconfig:"SPOOL_PATH" default:"/tmp/vidgrab"`
	UserAgent      string `yaml:"user_agent" envconfig:"FETCH_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
}

// ExtractConfig holds upstream extraction configuration.
type ExtractConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"EXTRACT_TIMEOUT" default:"30s"`
	TikwmBaseURL  string        `yaml:"tikwm_base_url" envconfig:"TIKWM_BASE_URL" default:"https://www.tikwm.com"`
	InstagramBase string        `yaml:"instagram_base_url" envconfig:"IG_BASE_URL" default:"https://www.instagram.com"`
}

// HistoryConfig holds download history persistence configuration.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled" envconfig:"HISTORY_ENABLED" default:"true"`
	Path          string `yaml:"path" envconfig:"HISTORY_PATH" default:"/data/vidgrab/history.db"`
	RetentionDays int    `yaml:"retention_days" envconfig:"HISTORY_RETENTION_DAYS" default:"30"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are coherent.
func (c *Config) Validate() error {
	if c.Server.APIKeyRequired && c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required when API_KEY_REQUIRED is true")
	}
	if c.RateLimit.Enabled && c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.Download.MaxSizeMB <= 0 {
		return fmt.Errorf("MAX_DOWNLOAD_SIZE_MB must be positive")
	}
	if len(c.Download.Domains()) == 0 {
		return fmt.Errorf("ALLOWED_DOMAINS must not be empty")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxSizeBytes returns the maximum transfer size in bytes.
func (c *DownloadConfig) MaxSizeBytes() int64 {
	return c.MaxSizeMB * 1024 * 1024
}

// Domains returns the allow-list as a cleaned slice.
func (c *DownloadConfig) Domains() []string {
	parts := strings.Split(c.AllowedDomains, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
