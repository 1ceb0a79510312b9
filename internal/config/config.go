package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every externally configurable value the server depends on:
// one listener, one database path, the token signing secret, and the
// websocket tuning knobs.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Auth      *AuthConfig      `json:"auth"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
	AuthTimeout  time.Duration `json:"auth_timeout"`
}

// AuthConfig controls session token issuance and first-run account seeding.
// BootstrapUsername/BootstrapPassword are only consulted when the database
// contains no privileged account.
type AuthConfig struct {
	SigningSecret     string        `json:"signing_secret"`
	TokenTTL          time.Duration `json:"token_ttl"`
	BootstrapUsername string        `json:"bootstrap_username"`
	BootstrapPassword string        `json:"bootstrap_password"`
}

// DefaultConfig returns working defaults for local use. The signing secret
// default exists only so the server starts out of the box; deployments must
// override it.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./schedboard.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
			AuthTimeout:  10 * time.Second,
		},
		Auth: &AuthConfig{
			SigningSecret:     "dev-only-signing-secret",
			TokenTTL:          7 * 24 * time.Hour,
			BootstrapUsername: "admin",
			BootstrapPassword: "",
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Database == nil || c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 ||
		c.WebSocket.WriteTimeout <= 0 || c.WebSocket.AuthTimeout <= 0 {
		return fmt.Errorf("WebSocket timeouts must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.Auth == nil || c.Auth.SigningSecret == "" {
		return fmt.Errorf("auth signing secret cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token TTL must be positive")
	}
	return nil
}

// LoadFromEnv returns defaults overridden by SCHEDBOARD_* environment
// variables. Unparseable values fall back silently, matching the rest of the
// precedence chain.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("SCHEDBOARD_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("SCHEDBOARD_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if dbPath := os.Getenv("SCHEDBOARD_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if secret := os.Getenv("SCHEDBOARD_SIGNING_SECRET"); secret != "" {
		config.Auth.SigningSecret = secret
	}
	if ttl := os.Getenv("SCHEDBOARD_TOKEN_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			config.Auth.TokenTTL = d
		}
	}
	if username := os.Getenv("SCHEDBOARD_BOOTSTRAP_USERNAME"); username != "" {
		config.Auth.BootstrapUsername = username
	}
	if password := os.Getenv("SCHEDBOARD_BOOTSTRAP_PASSWORD"); password != "" {
		config.Auth.BootstrapPassword = password
	}
	if readTimeout := os.Getenv("SCHEDBOARD_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if d, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = d
		}
	}
	if writeTimeout := os.Getenv("SCHEDBOARD_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if d, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}
	if pingInterval := os.Getenv("SCHEDBOARD_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if d, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = d
		}
	}
	if wsReadTimeout := os.Getenv("SCHEDBOARD_WEBSOCKET_READ_TIMEOUT"); wsReadTimeout != "" {
		if d, err := time.ParseDuration(wsReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = d
		}
	}
	if wsWriteTimeout := os.Getenv("SCHEDBOARD_WEBSOCKET_WRITE_TIMEOUT"); wsWriteTimeout != "" {
		if d, err := time.ParseDuration(wsWriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = d
		}
	}
	if authTimeout := os.Getenv("SCHEDBOARD_WEBSOCKET_AUTH_TIMEOUT"); authTimeout != "" {
		if d, err := time.ParseDuration(authTimeout); err == nil {
			config.WebSocket.AuthTimeout = d
		}
	}
	if bufferSize := os.Getenv("SCHEDBOARD_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if n, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = n
		}
	}

	return config
}

// ConfigFile mirrors Config for JSON parsing, with durations as strings.
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Auth      *AuthConfigFile      `json:"auth"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
	AuthTimeout  string `json:"auth_timeout"`
}

type AuthConfigFile struct {
	SigningSecret     string `json:"signing_secret"`
	TokenTTL          string `json:"token_ttl"`
	BootstrapUsername string `json:"bootstrap_username"`
	BootstrapPassword string `json:"bootstrap_password"`
}

// LoadFromFile reads a JSON configuration file on top of the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		setDuration(&config.Database.Timeout, configFile.Database.Timeout)
	}
	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		setDuration(&config.HTTP.ReadTimeout, configFile.HTTP.ReadTimeout)
		setDuration(&config.HTTP.WriteTimeout, configFile.HTTP.WriteTimeout)
	}
	if configFile.WebSocket != nil {
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		setDuration(&config.WebSocket.PingInterval, configFile.WebSocket.PingInterval)
		setDuration(&config.WebSocket.ReadTimeout, configFile.WebSocket.ReadTimeout)
		setDuration(&config.WebSocket.WriteTimeout, configFile.WebSocket.WriteTimeout)
		setDuration(&config.WebSocket.AuthTimeout, configFile.WebSocket.AuthTimeout)
	}
	if configFile.Auth != nil {
		if configFile.Auth.SigningSecret != "" {
			config.Auth.SigningSecret = configFile.Auth.SigningSecret
		}
		if configFile.Auth.BootstrapUsername != "" {
			config.Auth.BootstrapUsername = configFile.Auth.BootstrapUsername
		}
		if configFile.Auth.BootstrapPassword != "" {
			config.Auth.BootstrapPassword = configFile.Auth.BootstrapPassword
		}
		setDuration(&config.Auth.TokenTTL, configFile.Auth.TokenTTL)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults. File errors are ignored so environment and defaults still apply.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}

func setDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}
