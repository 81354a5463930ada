package shared

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Sync        SyncConfig        `toml:"sync"`
	Logging     LoggingConfig     `toml:"logging"`
}

// CredentialsConfig contains OAuth client credentials per provider.
type CredentialsConfig struct {
	Google  OAuthClientConfig `toml:"google"`
	Spotify OAuthClientConfig `toml:"spotify"`
}

// OAuthClientConfig contains a provider's OAuth client registration.
type OAuthClientConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri" validate:"omitempty,url"`
}

// Configured reports whether both halves of the client registration are present.
func (c OAuthClientConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" validate:"required"`
	MaxOpenConns int    `toml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `toml:"max_idle_conns" validate:"gte=0"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host     string `toml:"host" validate:"required"`
	Port     int    `toml:"port" validate:"min=1,max=65535"`
	ProxyURL string `toml:"proxy_url" validate:"omitempty,url"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SyncConfig tunes the conversion engine.
type SyncConfig struct {
	Concurrency int     `toml:"concurrency" validate:"gte=0,lte=8"`
	RateLimit   float64 `toml:"rate_limit" validate:"gte=0"`
	Burst       int     `toml:"burst" validate:"gte=0"`
	FailOnEmpty bool    `toml:"fail_on_empty"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn error fatal"`
	Format string `toml:"format" validate:"omitempty,oneof=text logfmt json"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults. Environment overrides are applied
// after parsing and the result is validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// LoadEnvFile loads a .env file into the process environment. Missing files are ignored.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides secrets and paths from MELODARI_* environment variables when they are set.
func (c *Config) ApplyEnv() {
	overrides := []struct {
		key string
		dst *string
	}{
		{"MELODARI_GOOGLE_CLIENT_ID", &c.Credentials.Google.ClientID},
		{"MELODARI_GOOGLE_CLIENT_SECRET", &c.Credentials.Google.ClientSecret},
		{"MELODARI_GOOGLE_REDIRECT_URI", &c.Credentials.Google.RedirectURI},
		{"MELODARI_SPOTIFY_CLIENT_ID", &c.Credentials.Spotify.ClientID},
		{"MELODARI_SPOTIFY_CLIENT_SECRET", &c.Credentials.Spotify.ClientSecret},
		{"MELODARI_SPOTIFY_REDIRECT_URI", &c.Credentials.Spotify.RedirectURI},
		{"MELODARI_DATABASE_PATH", &c.Database.Path},
		{"MELODARI_PROXY_URL", &c.Server.ProxyURL},
		{"MELODARI_LOG_LEVEL", &c.Logging.Level},
	}

	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
}

// Validate checks struct constraints on the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// SaveConfig writes the configuration to path as TOML, replacing any existing file.
func SaveConfig(path string, c *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
