package shared

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Heatmap     HeatmapConfig     `toml:"heatmap"`
}

// CredentialsConfig contains per-service OAuth client settings.
type CredentialsConfig struct {
	Strava      OAuthClientConfig `toml:"strava"`
	RideWithGPS OAuthClientConfig `toml:"ridewithgps"`
}

// OAuthClientConfig holds the OAuth application registered with an upstream service.
//
// Tokens are never stored here.
type OAuthClientConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri" validate:"omitempty,url"`
	BaseURL      string `toml:"base_url" validate:"omitempty,url"`
}

// Configured reports whether both client id and secret are present.
func (c OAuthClientConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Map returns the settings keyed the way services expect them.
func (c OAuthClientConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"redirect_uri":  c.RedirectURI,
		"base_url":      c.BaseURL,
	}
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" validate:"required"`
	MaxOpenConns int    `toml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `toml:"max_idle_conns" validate:"gte=0"`
}

// ServerConfig contains settings for the OAuth callback listener and the proxy server.
type ServerConfig struct {
	Host string `toml:"host" validate:"required"`
	Port int    `toml:"port" validate:"gte=1,lte=65535"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// HeatmapConfig tunes fetching and aggregation.
type HeatmapConfig struct {
	Precision     int     `toml:"precision" validate:"gte=0,lte=10"`
	Workers       int     `toml:"workers" validate:"gte=1,lte=64"`
	RateLimit     float64 `toml:"rate_limit" validate:"gt=0"`
	StravaPerPage int     `toml:"strava_per_page" validate:"gte=1,lte=200"`
	RWGPSPageSize int     `toml:"rwgps_page_size" validate:"gte=1,lte=200"`
	H3Resolution  int     `toml:"h3_resolution" validate:"gte=0,lte=15"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
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

// CreateConfigFile writes the embedded example config to path. It refuses to overwrite.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks field ranges and formats and reports every failing field at once.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (%v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// CredentialsFor returns the client settings for the named source.
func (c *Config) CredentialsFor(source string) (OAuthClientConfig, error) {
	switch source {
	case "strava":
		return c.Credentials.Strava, nil
	case "ridewithgps", "rwgps":
		return c.Credentials.RideWithGPS, nil
	default:
		return OAuthClientConfig{}, fmt.Errorf("%w: unknown source %q", ErrInvalidArgument, source)
	}
}

// TokenFromEnv builds a token from an access token and optional refresh token.
//
// Returns [ErrNotAuthenticated] when access is empty.
func TokenFromEnv(access, refresh string) (*oauth2.Token, error) {
	if access == "" {
		return nil, ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}, nil
}
