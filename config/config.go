package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adamwoolhether/houdl/api"
	"github.com/adamwoolhether/houdl/auth"
	"github.com/adamwoolhether/houdl/catalog"
	"github.com/adamwoolhether/houdl/download"
	"github.com/adamwoolhether/houdl/internal/progress"
	"github.com/adamwoolhether/houdl/validate"
)

// Environment variables read by [Config.LoadFromEnv].
const (
	EnvUserID        = "SESI_USER_ID"
	EnvUserSecret    = "SESI_USER_SECRET"
	EnvTokenURL      = "HOUDL_TOKEN_URL"
	EnvAPIURL        = "HOUDL_API_URL"
	EnvProduct       = "HOUDL_PRODUCT"
	EnvPlatform      = "HOUDL_PLATFORM"
	EnvOutput        = "HOUDL_OUTPUT"
	EnvTimeout       = "HOUDL_TIMEOUT"
	EnvChunkSize     = "HOUDL_CHUNK_SIZE"
	EnvUserAgent     = "HOUDL_USER_AGENT"
	EnvThrottleRPS   = "HOUDL_THROTTLE_RPS"
	EnvThrottleBurst = "HOUDL_THROTTLE_BURST"
	EnvLogLevel      = "HOUDL_LOG_LEVEL"
)

// Config defines configuration for the houdl CLI.
type Config struct {
	UserID     string         `yaml:"user_id" validate:"required"`
	UserSecret string         `yaml:"user_secret" validate:"required"`
	TokenURL   string         `yaml:"token_url" validate:"required,url"`
	APIURL     string         `yaml:"api_url" validate:"required,url"`
	Product    string         `yaml:"product" validate:"required"`
	Platform   string         `yaml:"platform" validate:"required"`
	Output     string         `yaml:"output"`
	Timeout    time.Duration  `yaml:"timeout" validate:"gte=0"`
	ChunkSize  int64          `yaml:"chunk_size" validate:"gt=0,lte=1073741824"`
	UserAgent  string         `yaml:"user_agent"`
	Throttle   ThrottleConfig `yaml:"throttle"`
	LogLevel   string         `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// ThrottleConfig limits API calls. A zero RPS disables throttling.
type ThrottleConfig struct {
	RPS   int `yaml:"rps" validate:"gte=0"`
	Burst int `yaml:"burst" validate:"gte=0"`
}

// Default returns a Config with defaults for everything but credentials.
func Default() Config {
	return Config{
		TokenURL:  auth.DefaultTokenURL,
		APIURL:    api.DefaultEndpoint,
		Product:   string(catalog.ProductHoudini),
		Platform:  string(catalog.DefaultPlatform()),
		Output:    ".",
		Timeout:   30 * time.Second,
		ChunkSize: download.DefaultChunkSize,
		UserAgent: "houdl",
		LogLevel:  "info",
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	UserID     string             `yaml:"user_id"`
	UserSecret string             `yaml:"user_secret"`
	TokenURL   string             `yaml:"token_url"`
	APIURL     string             `yaml:"api_url"`
	Product    string             `yaml:"product"`
	Platform   string             `yaml:"platform"`
	Output     string             `yaml:"output"`
	Timeout    string             `yaml:"timeout"`
	ChunkSize  string             `yaml:"chunk_size"`
	UserAgent  string             `yaml:"user_agent"`
	Throttle   yamlThrottleConfig `yaml:"throttle"`
	LogLevel   string             `yaml:"log_level"`
}

type yamlThrottleConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// LoadFromFile loads configuration from a YAML file on top of [Default].
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&yc); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	override := Config{
		UserID:     yc.UserID,
		UserSecret: yc.UserSecret,
		TokenURL:   yc.TokenURL,
		APIURL:     yc.APIURL,
		Product:    yc.Product,
		Platform:   yc.Platform,
		Output:     yc.Output,
		UserAgent:  yc.UserAgent,
		Throttle:   ThrottleConfig(yc.Throttle),
		LogLevel:   yc.LogLevel,
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		override.Timeout = d
	}
	if yc.ChunkSize != "" {
		size, err := progress.ParseBytes(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		override.ChunkSize = size
	}

	return Default().Merge(override), nil
}

// Env looks up environment variables.
type Env interface {
	Getenv(key string) string
}

// OSEnv reads the process environment.
type OSEnv struct{}

func (OSEnv) Getenv(key string) string { return os.Getenv(key) }

// LoadFromEnv applies the variables set in env over c.
func (c *Config) LoadFromEnv(env Env) error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvUserID, &c.UserID},
		{EnvUserSecret, &c.UserSecret},
		{EnvTokenURL, &c.TokenURL},
		{EnvAPIURL, &c.APIURL},
		{EnvProduct, &c.Product},
		{EnvPlatform, &c.Platform},
		{EnvOutput, &c.Output},
		{EnvUserAgent, &c.UserAgent},
		{EnvLogLevel, &c.LogLevel},
	}
	for _, s := range strs {
		if v := env.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	if v := env.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v := env.Getenv(EnvChunkSize); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvChunkSize, err)
		}
		c.ChunkSize = size
	}
	if v := env.Getenv(EnvThrottleRPS); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvThrottleRPS, err)
		}
		c.Throttle.RPS = n
	}
	if v := env.Getenv(EnvThrottleBurst); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvThrottleBurst, err)
		}
		c.Throttle.Burst = n
	}

	return nil
}

// Load builds a Config from defaults, the optional file at path and env.
func Load(path string, env Env) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.LoadFromEnv(env); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if err := validate.Check(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if _, err := catalog.ParseProduct(c.Product); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := catalog.ParsePlatform(c.Platform); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Throttle.RPS > 0 && c.Throttle.Burst == 0 {
		return errors.New("config: throttle burst must be positive when rps is set")
	}

	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.UserID != "" {
		c.UserID = override.UserID
	}
	if override.UserSecret != "" {
		c.UserSecret = override.UserSecret
	}
	if override.TokenURL != "" {
		c.TokenURL = override.TokenURL
	}
	if override.APIURL != "" {
		c.APIURL = override.APIURL
	}
	if override.Product != "" {
		c.Product = override.Product
	}
	if override.Platform != "" {
		c.Platform = override.Platform
	}
	if override.Output != "" {
		c.Output = override.Output
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.UserAgent != "" {
		c.UserAgent = override.UserAgent
	}
	if override.Throttle.RPS != 0 {
		c.Throttle.RPS = override.Throttle.RPS
	}
	if override.Throttle.Burst != 0 {
		c.Throttle.Burst = override.Throttle.Burst
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}

	return c
}

// Level returns the slog level named by LogLevel, defaulting to info.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}

	return level
}

// LogValue implements [slog.LogValuer], keeping the secret out of logs.
func (c Config) LogValue() slog.Value {
	secret := ""
	if c.UserSecret != "" {
		secret = "[REDACTED]"
	}

	return slog.GroupValue(
		slog.String("user_id", c.UserID),
		slog.String("user_secret", secret),
		slog.String("token_url", c.TokenURL),
		slog.String("api_url", c.APIURL),
		slog.String("product", c.Product),
		slog.String("platform", c.Platform),
		slog.String("output", c.Output),
		slog.Duration("timeout", c.Timeout),
		slog.Int64("chunk_size", c.ChunkSize),
		slog.Int("throttle_rps", c.Throttle.RPS),
		slog.String("log_level", c.LogLevel),
	)
}
