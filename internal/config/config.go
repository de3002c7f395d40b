package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Capture CaptureConfig `yaml:"capture"`
	Client  ClientConfig  `yaml:"client"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	AuthToken      string        `yaml:"auth_token"`
	MaxConnections int           `yaml:"max_connections"` // 0 = unlimited
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ServeUI        bool          `yaml:"serve_ui"` // browser viewer at /
}

// CaptureConfig controls how the server turns a source into JPEG frames.
type CaptureConfig struct {
	TargetFPS      float64       `yaml:"target_fps"`
	ScaleFactor    float64       `yaml:"scale_factor"`
	Quality        int           `yaml:"quality"`
	MinQuality     int           `yaml:"min_quality"`
	MaxQuality     int           `yaml:"max_quality"`
	QualityStep    int           `yaml:"quality_step"`
	AdjustInterval time.Duration `yaml:"adjust_interval"`
	MaxFailures    int           `yaml:"max_failures"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	FFmpegPath     string        `yaml:"ffmpeg_path"`
}

// ClientConfig controls the viewer's per-stream sessions.
type ClientConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	Token            string        `yaml:"token"` // sent as a bearer token when set
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxColumns       int           `yaml:"max_columns"`
	StateDir         string        `yaml:"state_dir"`
}

type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
	File   string `yaml:"file"`   // empty = stderr
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "127.0.0.1",
			WriteTimeout: 10 * time.Second,
			ServeUI:      true,
		},
		Capture: CaptureConfig{
			TargetFPS:      25,
			ScaleFactor:    0.6,
			Quality:        65,
			MinQuality:     40,
			MaxQuality:     80,
			QualityStep:    5,
			AdjustInterval: 2 * time.Second,
			MaxFailures:    10,
			RetryDelay:     time.Second,
			FFmpegPath:     "ffmpeg",
		},
		Client: ClientConfig{
			Endpoint:         "ws://127.0.0.1:8080",
			ReconnectDelay:   3 * time.Second,
			ReadTimeout:      30 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			MaxColumns:       3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Default returns the built-in configuration with environment overrides applied.
func Default() *Config {
	cfg := defaultConfig()
	cfg.applyEnv()
	return cfg
}

// Load reads the YAML file at path on top of the defaults. A missing file is
// an error; use LoadOrDefault when the file is optional.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) applyEnv() {
	if v := os.Getenv("VIEWER_USERNAME"); v != "" {
		c.Auth.Username = v
	}
	if v := os.Getenv("VIEWER_PASSWORD"); v != "" {
		c.Auth.Password = v
	}
	if v := os.Getenv("VIEWER_ENDPOINT"); v != "" {
		c.Client.Endpoint = v
	}
	if v := os.Getenv("VIEWER_TOKEN"); v != "" {
		c.Client.Token = v
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must be >= 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}

	cc := c.Capture
	if cc.TargetFPS <= 0 {
		return fmt.Errorf("capture.target_fps must be > 0")
	}
	if cc.ScaleFactor <= 0 || cc.ScaleFactor > 1 {
		return fmt.Errorf("capture.scale_factor must be in (0, 1], got %g", cc.ScaleFactor)
	}
	if cc.MinQuality < 1 || cc.MaxQuality > 100 || cc.MinQuality > cc.MaxQuality {
		return fmt.Errorf("capture quality bounds invalid: min=%d max=%d", cc.MinQuality, cc.MaxQuality)
	}
	if cc.Quality < cc.MinQuality || cc.Quality > cc.MaxQuality {
		return fmt.Errorf("capture.quality %d outside [%d, %d]", cc.Quality, cc.MinQuality, cc.MaxQuality)
	}
	if cc.QualityStep <= 0 {
		return fmt.Errorf("capture.quality_step must be > 0")
	}
	if cc.AdjustInterval <= 0 {
		return fmt.Errorf("capture.adjust_interval must be > 0")
	}
	if cc.MaxFailures <= 0 {
		return fmt.Errorf("capture.max_failures must be > 0")
	}

	if c.Client.Endpoint == "" {
		return fmt.Errorf("client.endpoint must not be empty")
	}
	if c.Client.ReconnectDelay <= 0 {
		return fmt.Errorf("client.reconnect_delay must be > 0")
	}
	if c.Client.ReadTimeout <= 0 {
		return fmt.Errorf("client.read_timeout must be > 0")
	}
	if c.Client.MaxColumns <= 0 {
		return fmt.Errorf("client.max_columns must be > 0")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
