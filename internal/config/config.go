// Package config provides Viper-based configuration loading for the lobby server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// ShutdownTimeout bounds graceful shutdown of in-flight connections.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LobbyConfig holds session coordination settings.
type LobbyConfig struct {
	// MinPlayers is the minimum player count required to start a countdown.
	MinPlayers int `mapstructure:"min_players"`
	// AbsoluteMaxPlayers is the hard upper bound any room may configure.
	AbsoluteMaxPlayers int `mapstructure:"absolute_max_players"`
	// DefaultMaxPlayers is used when room creation omits a player cap.
	DefaultMaxPlayers int `mapstructure:"default_max_players"`
	// TeamCount is the number of teams players may be assigned to.
	TeamCount int `mapstructure:"team_count"`
	// MaxPlayersPerTeam caps membership of a single team.
	MaxPlayersPerTeam int `mapstructure:"max_players_per_team"`
	// CountdownTicks is the number of timer ticks from all-ready to match start.
	CountdownTicks int `mapstructure:"countdown_ticks"`
	// TickInterval is the wall-clock duration of one countdown tick.
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// DirectoryConfig holds room directory backend settings.
type DirectoryConfig struct {
	// Backend selects the directory store: "memory" or "postgres".
	Backend string `mapstructure:"backend"`
	// DSN is the PostgreSQL connection string, required for the postgres backend.
	DSN string `mapstructure:"dsn"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Lobby     LobbyConfig     `mapstructure:"lobby"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Directory DirectoryConfig `mapstructure:"directory"`
}

// Load reads configuration from the given file path (optional) and the
// environment. Environment variables use the LOBBY_ prefix with underscores,
// e.g. LOBBY_SERVER_PORT=8080.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LOBBY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("lobby.min_players", 2)
	v.SetDefault("lobby.absolute_max_players", 16)
	v.SetDefault("lobby.default_max_players", 8)
	v.SetDefault("lobby.team_count", 2)
	v.SetDefault("lobby.max_players_per_team", 8)
	v.SetDefault("lobby.countdown_ticks", 5)
	v.SetDefault("lobby.tick_interval", time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("directory.backend", "memory")
	v.SetDefault("directory.dsn", "")
}

// Validate checks all configuration invariants. It returns nil if the
// configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be in [1, 65535], got %d", c.Server.Port))
	}
	if err := validateLobby(c.Lobby); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDirectory(c.Directory); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return errors.New("invalid configuration: " + strings.Join(errs, "; "))
	}
	return nil
}

func validateLobby(l LobbyConfig) error {
	switch {
	case l.MinPlayers < 1:
		return fmt.Errorf("lobby.min_players must be >= 1, got %d", l.MinPlayers)
	case l.AbsoluteMaxPlayers < l.MinPlayers:
		return fmt.Errorf("lobby.absolute_max_players must be >= min_players, got %d", l.AbsoluteMaxPlayers)
	case l.DefaultMaxPlayers < l.MinPlayers || l.DefaultMaxPlayers > l.AbsoluteMaxPlayers:
		return fmt.Errorf("lobby.default_max_players must be in [min_players, absolute_max_players], got %d", l.DefaultMaxPlayers)
	case l.TeamCount < 1:
		return fmt.Errorf("lobby.team_count must be >= 1, got %d", l.TeamCount)
	case l.MaxPlayersPerTeam < 1:
		return fmt.Errorf("lobby.max_players_per_team must be >= 1, got %d", l.MaxPlayersPerTeam)
	case l.CountdownTicks < 1:
		return fmt.Errorf("lobby.countdown_ticks must be >= 1, got %d", l.CountdownTicks)
	case l.TickInterval <= 0:
		return fmt.Errorf("lobby.tick_interval must be > 0, got %v", l.TickInterval)
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", l.Level)
	}
	switch l.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", l.Format)
	}
	return nil
}

func validateDirectory(d DirectoryConfig) error {
	switch d.Backend {
	case "memory":
	case "postgres":
		if d.DSN == "" {
			return errors.New("directory.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("directory.backend must be memory or postgres, got %q", d.Backend)
	}
	return nil
}
