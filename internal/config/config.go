package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
)

const (
	minSTSDuration = 900
	maxSTSDuration = 43200
)

// Config represents the main configuration for the media broker. Values
// come from defaults, then the TOML file, then MEDIA_* environment
// variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	STS      STSConfig      `toml:"sts"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig holds the HTTP front door settings.
type ServerConfig struct {
	Listen                 string `toml:"listen" env:"MEDIA_LISTEN"`
	AuthToken              string `toml:"auth_token" env:"MEDIA_AUTH_TOKEN"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds" env:"MEDIA_SHUTDOWN_TIMEOUT_SECONDS"`
	Metrics                bool   `toml:"metrics" env:"MEDIA_METRICS"`
}

// StorageConfig describes the S3-compatible bucket. The keys are the
// broker's own long-lived credentials and are never handed to devices.
type StorageConfig struct {
	Provider           string `toml:"provider" env:"MEDIA_STORAGE_PROVIDER"`
	Endpoint           string `toml:"endpoint" env:"MEDIA_STORAGE_ENDPOINT"`
	Bucket             string `toml:"bucket" env:"MEDIA_STORAGE_BUCKET"`
	Region             string `toml:"region" env:"MEDIA_STORAGE_REGION"`
	AccessKey          string `toml:"access_key" env:"MEDIA_STORAGE_ACCESS_KEY"`
	SecretKey          string `toml:"secret_key" env:"MEDIA_STORAGE_SECRET_KEY"`
	SessionToken       string `toml:"session_token,omitempty" env:"MEDIA_STORAGE_SESSION_TOKEN"`
	HeadTimeoutSeconds int    `toml:"head_timeout_seconds" env:"MEDIA_STORAGE_HEAD_TIMEOUT_SECONDS"`
}

// STSConfig holds AssumeRole settings. An empty Endpoint means the
// storage endpoint also serves STS.
type STSConfig struct {
	Endpoint        string `toml:"endpoint,omitempty" env:"MEDIA_STS_ENDPOINT"`
	RoleARN         string `toml:"role_arn" env:"MEDIA_STS_ROLE_ARN"`
	Policy          string `toml:"policy,omitempty" env:"MEDIA_STS_POLICY"`
	DurationSeconds int    `toml:"duration_seconds" env:"MEDIA_STS_DURATION_SECONDS"`
	TimeoutSeconds  int    `toml:"timeout_seconds" env:"MEDIA_STS_TIMEOUT_SECONDS"`
	SessionPrefix   string `toml:"session_prefix" env:"MEDIA_STS_SESSION_PREFIX"`
}

// DatabaseConfig represents configuration for the dedup registry.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type        string `toml:"type" env:"MEDIA_DB_TYPE"`                 // "sqlite" or "memory"
	Path        string `toml:"path,omitempty" env:"MEDIA_DB_PATH"`       // only used for type=sqlite
	PoolSize    int    `toml:"pool_size" env:"MEDIA_DB_POOL_SIZE"`       // max open connections
	AutoMigrate bool   `toml:"auto_migrate" env:"MEDIA_DB_AUTO_MIGRATE"` // apply migrations on serve
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `toml:"level" env:"MEDIA_LOG_LEVEL"` // debug, info, warn or error
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:                 "0.0.0.0:8090",
			AuthToken:              "demo-token",
			ShutdownTimeoutSeconds: 10,
			Metrics:                true,
		},
		Storage: StorageConfig{
			Provider:           "minio",
			Endpoint:           "http://127.0.0.1:9000",
			Bucket:             "media",
			Region:             "us-east-1",
			AccessKey:          "minioadmin",
			SecretKey:          "minioadmin",
			HeadTimeoutSeconds: 5,
		},
		STS: STSConfig{
			RoleARN:         "arn:aws:iam::minio:role/dji-pilot",
			DurationSeconds: 3600,
			TimeoutSeconds:  10,
			SessionPrefix:   "media",
		},
		Database: DatabaseConfig{
			Type:        "sqlite",
			Path:        filepath.Join("data", "media.db"),
			PoolSize:    4,
			AutoMigrate: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Listen) == "" {
		return fmt.Errorf("server.listen is required")
	}
	if strings.TrimSpace(c.Server.AuthToken) == "" {
		return fmt.Errorf("server.auth_token is required")
	}
	if err := validateEndpoint("storage.endpoint", c.Storage.Endpoint); err != nil {
		return err
	}
	if c.STS.Endpoint != "" {
		if err := validateEndpoint("sts.endpoint", c.STS.Endpoint); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if strings.TrimSpace(c.Storage.Region) == "" {
		return fmt.Errorf("storage.region is required")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return fmt.Errorf("storage.access_key and storage.secret_key are required")
	}
	if strings.TrimSpace(c.STS.RoleARN) == "" {
		return fmt.Errorf("sts.role_arn is required")
	}
	if c.STS.DurationSeconds < minSTSDuration || c.STS.DurationSeconds > maxSTSDuration {
		return fmt.Errorf("sts.duration_seconds must be between %d and %d, got %d",
			minSTSDuration, maxSTSDuration, c.STS.DurationSeconds)
	}
	switch c.Database.Type {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path required for sqlite database")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database type: %s", c.Database.Type)
	}
	if c.Database.PoolSize < 1 {
		return fmt.Errorf("database.pool_size must be at least 1, got %d", c.Database.PoolSize)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Log.Level)
	}
	return nil
}

func validateEndpoint(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}
	return nil
}

// STSEndpoint returns the STS endpoint, falling back to the storage endpoint.
func (c *Config) STSEndpoint() string {
	if c.STS.Endpoint != "" {
		return c.STS.Endpoint
	}
	return c.Storage.Endpoint
}

// HeadTimeout returns the per-request existence check timeout.
func (c *Config) HeadTimeout() time.Duration {
	return time.Duration(c.Storage.HeadTimeoutSeconds) * time.Second
}

// STSTimeout returns the AssumeRole request timeout.
func (c *Config) STSTimeout() time.Duration {
	return time.Duration(c.STS.TimeoutSeconds) * time.Second
}

// STSDuration returns the requested credential lifetime.
func (c *Config) STSDuration() time.Duration {
	return time.Duration(c.STS.DurationSeconds) * time.Second
}

// ShutdownTimeout returns how long the server drains in-flight requests.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// Masked returns a copy with secrets replaced, for display.
func (c *Config) Masked() *Config {
	out := *c
	out.Server.AuthToken = mask(c.Server.AuthToken)
	out.Storage.SecretKey = mask(c.Storage.SecretKey)
	out.Storage.SessionToken = mask(c.Storage.SessionToken)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader on top of the defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path, applies the environment overlay and validates the
// result. When allowMissing is set a missing file yields the defaults.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if err != nil {
		if !allowMissing || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays MEDIA_* environment variables onto cfg. Unset
// variables leave the current value alone.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env config: %w", err)
	}
	return nil
}

// writeToFile writes a Config to path, creating the directory first.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file holds storage secrets.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
