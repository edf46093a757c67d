package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Paths       PathsConfig       `toml:"paths"`
	Batch       BatchConfig       `toml:"batch"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials for the client-credentials flow.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// PathsConfig contains filesystem locations for export files and downloaded images.
type PathsConfig struct {
	DataDir   string `toml:"data_dir"`
	ImagesDir string `toml:"images_dir"`
}

// BatchConfig contains batch fetch and retry settings.
type BatchConfig struct {
	Size              int     `toml:"size"`                // Lookups per catalog call
	RequestsPerSecond float64 `toml:"requests_per_second"` // Proactive pacing of catalog calls
	RetryBaseDelayMS  int     `toml:"retry_base_delay_ms"` // First backoff delay
	RetryMultiplier   float64 `toml:"retry_multiplier"`    // Backoff growth factor
	MaxRetries        int     `toml:"max_retries"`         // Attempts before the controller halts
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// A .env file in the working directory (when present) supplies SPOTIFY_KEY and
// SPOTIFY_SECRET, which take precedence over credentials in the TOML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvCredentials(&config)
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	applyEnvCredentials(&config)
	return &config
}

// applyEnvCredentials overlays credentials from the environment (and .env when present).
func applyEnvCredentials(config *Config) {
	_ = godotenv.Load()

	if id := os.Getenv("SPOTIFY_KEY"); id != "" {
		config.Credentials.Spotify.ClientID = id
	}
	if secret := os.Getenv("SPOTIFY_SECRET"); secret != "" {
		config.Credentials.Spotify.ClientSecret = secret
	}
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
