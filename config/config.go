// Package config loads the server configuration from defaults, an optional
// YAML file and the process environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/aigc/multimodal-generation/generation"
	DefaultModel    = "qwen3-tts-flash"
)

// Environment variables that override file values.
const (
	EnvAPIKey     = "DASHSCOPE_API_KEY"
	EnvPort       = "PORT"
	EnvStaticRoot = "STATIC_ROOT"
)

var ErrInvalid = errors.New("invalid config")

type ServerConfig struct {
	Address           string        `yaml:"address"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type StaticConfig struct {
	Root  string `yaml:"root"`
	Index string `yaml:"index"`
}

// TTSConfig configures the speech proxy. APIKey is the default credential
// used when a caller does not send one.
type TTSConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`

	Timeout time.Duration `yaml:"timeout"`

	MaxBodyBytes     int64 `yaml:"max_body_bytes"`
	MaxResponseBytes int64 `yaml:"max_response_bytes"`

	// requests per second towards the upstream, nil means unlimited
	RateLimit *float64 `yaml:"rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Permissive reports whether every origin is allowed.
func (c CORSConfig) Permissive() bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}

	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return true
		}
	}

	return false
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel maps the configured level name to a slog level.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LiveReloadConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Static     StaticConfig     `yaml:"static"`
	TTS        TTSConfig        `yaml:"tts"`
	CORS       CORSConfig       `yaml:"cors"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	LiveReload LiveReloadConfig `yaml:"live_reload"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:           ":3000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Static: StaticConfig{
			Root:  "public",
			Index: "index.html",
		},
		TTS: TTSConfig{
			Endpoint:         DefaultEndpoint,
			Model:            DefaultModel,
			Timeout:          60 * time.Second,
			MaxBodyBytes:     1 << 20,
			MaxResponseBytes: 32 << 20,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load builds the configuration. Values from the file at path (if any) are
// decoded over the defaults, then environment overrides are applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) parseFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = []byte(os.ExpandEnv(string(data)))

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(c); err != nil {
		// an empty file is a valid "all defaults" config
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	return nil
}

func (c *Config) applyEnv() {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.TTS.APIKey = key
	}

	if port := os.Getenv(EnvPort); port != "" {
		c.Server.Address = ":" + strings.TrimPrefix(port, ":")
	}

	if root := os.Getenv(EnvStaticRoot); root != "" {
		c.Static.Root = root
	}
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is empty"))
	}

	if c.Server.ReadHeaderTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server timeouts must be positive"))
	}

	if c.Static.Root == "" {
		errs = append(errs, errors.New("static.root is empty"))
	}

	if c.Static.Index == "" {
		errs = append(errs, errors.New("static.index is empty"))
	}

	if c.TTS.Endpoint == "" || c.TTS.Model == "" {
		errs = append(errs, errors.New("tts.endpoint and tts.model are required"))
	}

	if c.TTS.Timeout <= 0 {
		errs = append(errs, errors.New("tts.timeout must be positive"))
	}

	if c.TTS.MaxBodyBytes <= 0 || c.TTS.MaxResponseBytes <= 0 {
		errs = append(errs, errors.New("tts size limits must be positive"))
	}

	if c.TTS.RateLimit != nil && *c.TTS.RateLimit <= 0 {
		errs = append(errs, errors.New("tts.rate_limit must be positive"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	return nil
}
