// Package config provides configuration loading for the batch extraction service.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Engine names accepted by conversion.engine.
const (
	EngineDocling = "docling"
	EngineLocal   = "local"
)

// Config holds all configuration for the service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Source        SourceConfig        `yaml:"source"`
	Conversion    ConversionConfig    `yaml:"conversion"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// SourceConfig holds settings for materializing uploads and remote links.
type SourceConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	MaxFileBytes int64         `yaml:"max_file_bytes"`
	TempDir      string        `yaml:"temp_dir"`
}

// ConversionConfig holds conversion engine settings.
type ConversionConfig struct {
	Engine     string        `yaml:"engine"` // docling or local
	MaxWorkers int           `yaml:"max_workers"`
	Docling    DoclingConfig `yaml:"docling"`
}

// DoclingConfig holds settings for a docling-serve instance.
type DoclingConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	Formats  []string      `yaml:"formats"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies .env and environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     10 * time.Minute,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   10 * time.Minute,
			GracefulShutdown: 30 * time.Second,
			MaxUploadBytes:   200 << 20,
			AllowedOrigins:   []string{"*"},
		},
		Source: SourceConfig{
			FetchTimeout: 30 * time.Second,
			MaxFileBytes: 50 << 20,
		},
		Conversion: ConversionConfig{
			Engine:     EngineDocling,
			MaxWorkers: 4,
			Docling: DoclingConfig{
				BaseURL:  "http://localhost:5001",
				Endpoint: "/v1/convert/file",
				Timeout:  5 * time.Minute,
				Formats:  []string{"json", "md"},
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "docbatch",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}

	if c.Source.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive")
	}

	switch c.Conversion.Engine {
	case EngineDocling:
		if c.Conversion.Docling.BaseURL == "" {
			return fmt.Errorf("docling base_url is required for the docling engine")
		}
	case EngineLocal:
	default:
		return fmt.Errorf("invalid conversion engine: %s", c.Conversion.Engine)
	}

	if c.Conversion.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1")
	}

	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxUploadBytes = n
		}
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Source.FetchTimeout = d
		}
	}

	if v := os.Getenv("TEMP_DIR"); v != "" {
		cfg.Source.TempDir = v
	}

	if v := os.Getenv("CONVERSION_ENGINE"); v != "" {
		cfg.Conversion.Engine = v
	}

	if v := os.Getenv("CONVERSION_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Conversion.MaxWorkers = n
		}
	}

	if v := os.Getenv("DOCLING_URL"); v != "" {
		cfg.Conversion.Docling.BaseURL = v
	}

	if v := os.Getenv("DOCLING_API_KEY"); v != "" {
		cfg.Conversion.Docling.APIKey = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
