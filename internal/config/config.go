// Package config provides Viper-based configuration loading for the match client.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ClientConfig holds the identity and addresses the client connects with.
type ClientConfig struct {
	AppID      string `mapstructure:"app_id"`
	AppVersion string `mapstructure:"app_version"`
	// UserID is generated at startup when empty.
	UserID   string `mapstructure:"user_id"`
	NickName string `mapstructure:"nick_name"`
	// Region selects the matchmaker through the directory. When empty the
	// client connects to MatchmakerAddress directly.
	Region            string `mapstructure:"region"`
	DirectoryAddress  string `mapstructure:"directory_address"`
	MatchmakerAddress string `mapstructure:"matchmaker_address"`

	KeepMatchmakerConnection bool   `mapstructure:"keep_matchmaker_connection"`
	AutoJoinLobby            bool   `mapstructure:"auto_join_lobby"`
	LobbyName                string `mapstructure:"lobby_name"`
	LobbyType                int    `mapstructure:"lobby_type"`
	LobbyStats               bool   `mapstructure:"lobby_stats"`

	// Room is joined, or created from Preset, once the lobby is reached.
	Room   string `mapstructure:"room"`
	Preset string `mapstructure:"preset"`
}

// TransportConfig holds per-connection timing settings.
type TransportConfig struct {
	// KeepAlive is the heartbeat interval; 0 selects the client default.
	KeepAlive        time.Duration `mapstructure:"keep_alive"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	// ReadLimit caps one websocket message in bytes; 0 means unlimited.
	ReadLimit int64 `mapstructure:"read_limit"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// TransportLevel overrides Level for frame-level connection logs.
	// Empty uses Level.
	TransportLevel string `mapstructure:"transport_level"`
}

// StatusConfig holds the status HTTP listener settings.
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s StatusConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings for the rejoin token
// store.
type DatabaseConfig struct {
	// Enabled selects the PostgreSQL token store over the in-memory one.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// PresetsConfig locates the room preset file.
type PresetsConfig struct {
	Path string `mapstructure:"path"`
}

// Config is the top-level application configuration.
type Config struct {
	Client    ClientConfig    `mapstructure:"client"`
	Transport TransportConfig `mapstructure:"transport"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Status    StatusConfig    `mapstructure:"status"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Presets   PresetsConfig   `mapstructure:"presets"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	for _, err := range []error{
		validateClient(c.Client),
		validateTransport(c.Transport),
		validateLogging(c.Logging),
		validateStatus(c.Status),
		validateDatabase(c.Database),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Client.Preset != "" && c.Presets.Path == "" {
		errs = append(errs, "presets.path must be set when client.preset is used")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateClient(c ClientConfig) error {
	var errs []string
	if c.AppID == "" {
		errs = append(errs, "client.app_id must not be empty")
	}
	if c.MatchmakerAddress == "" && c.DirectoryAddress == "" {
		errs = append(errs, "one of client.matchmaker_address or client.directory_address is required")
	}
	if c.Region != "" && c.DirectoryAddress == "" {
		errs = append(errs, "client.region requires client.directory_address")
	}
	validLobbies := map[int]bool{0: true, 2: true, 3: true}
	if !validLobbies[c.LobbyType] {
		errs = append(errs, fmt.Sprintf("client.lobby_type must be one of [0, 2, 3], got %d", c.LobbyType))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTransport(t TransportConfig) error {
	var errs []string
	if t.KeepAlive < 0 {
		errs = append(errs, "transport.keep_alive must not be negative")
	}
	if t.KeepAlive > 0 && t.KeepAlive < time.Second {
		errs = append(errs, fmt.Sprintf("transport.keep_alive must be at least 1s, got %s", t.KeepAlive))
	}
	if t.DialTimeout < 0 || t.HandshakeTimeout < 0 || t.ReadTimeout < 0 || t.WriteTimeout < 0 {
		errs = append(errs, "transport timeouts must not be negative")
	}
	if t.ReadTimeout > 0 && t.KeepAlive > 0 && t.ReadTimeout <= t.KeepAlive {
		errs = append(errs, "transport.read_timeout must exceed transport.keep_alive")
	}
	if t.ReadLimit < 0 {
		errs = append(errs, "transport.read_limit must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if l.TransportLevel != "" && !validLevels[l.TransportLevel] {
		return fmt.Errorf("logging.transport_level must be empty or one of [debug, info, warn, error], got %q", l.TransportLevel)
	}
	return nil
}

func validateStatus(s StatusConfig) error {
	if !s.Enabled {
		return nil
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("status.port must be 1-65535, got %d", s.Port)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	if !d.Enabled {
		return nil
	}
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and the
// environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with MATCHLINK_ prefix
	v.SetEnvPrefix("MATCHLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// LoadDotEnv copies the variables in the given .env files into the process
// environment so that MATCHLINK_ overrides can live beside the binary.
// Variables already set in the environment win. With no paths ".env" is used.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.app_id", "")
	v.SetDefault("client.app_version", "1.0")
	v.SetDefault("client.user_id", "")
	v.SetDefault("client.nick_name", "")
	v.SetDefault("client.region", "")
	v.SetDefault("client.directory_address", "")
	v.SetDefault("client.matchmaker_address", "")
	v.SetDefault("client.keep_matchmaker_connection", false)
	v.SetDefault("client.auto_join_lobby", true)
	v.SetDefault("client.lobby_name", "")
	v.SetDefault("client.lobby_type", 0)
	v.SetDefault("client.lobby_stats", false)
	v.SetDefault("client.room", "")
	v.SetDefault("client.preset", "")

	v.SetDefault("transport.keep_alive", "3s")
	v.SetDefault("transport.dial_timeout", "10s")
	v.SetDefault("transport.handshake_timeout", "10s")
	v.SetDefault("transport.read_timeout", "30s")
	v.SetDefault("transport.write_timeout", "10s")
	v.SetDefault("transport.read_limit", 1<<20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.transport_level", "")

	v.SetDefault("status.enabled", false)
	v.SetDefault("status.host", "127.0.0.1")
	v.SetDefault("status.port", 9464)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "matchlink")
	v.SetDefault("database.password", "matchlink")
	v.SetDefault("database.name", "matchlink")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("presets.path", "")
}
