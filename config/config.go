// Package config loads the process configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/rs/zerolog"

	"github.com/cyberinferno/pzrcon/logger"
)

// Config is the deployment configuration of pzrcon. Defaults are carried in
// the env tags.
type Config struct {
	// ConnectTimeout bounds dialing and authentication. ENV: RCON_CONNECT_TIMEOUT
	ConnectTimeout time.Duration `env:"RCON_CONNECT_TIMEOUT,default=10s"`
	// CommandTimeout is the silence that ends a command response. ENV: RCON_COMMAND_TIMEOUT
	CommandTimeout time.Duration `env:"RCON_COMMAND_TIMEOUT,default=2s"`

	ServersFile string `env:"PZRCON_SERVERS_FILE,default=servers.yaml"`
	ListenAddr  string `env:"PZRCON_LISTEN_ADDR,default=:8080"`
	LogLevel    string `env:"PZRCON_LOG_LEVEL,default=info"`
	ServiceName string `env:"PZRCON_SERVICE_NAME,default=pzrcon"`

	// RedisAddr enables the shared Redis cache when set. ENV: REDIS_ADDR
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX,default=pzrcon:"`

	MaxPlayersTTL    time.Duration `env:"PZRCON_MAX_PLAYERS_TTL,default=10m"`
	SinkWriteTimeout time.Duration `env:"PZRCON_SINK_WRITE_TIMEOUT,default=5s"`

	// AuditWebhook also posts command audits to this webhook when set. ENV: PZRCON_AUDIT_WEBHOOK
	AuditWebhook string `env:"PZRCON_AUDIT_WEBHOOK"`

	// AutoConnect connects the servers marked "autoconnect: true" at startup. ENV: PZRCON_AUTOCONNECT
	AutoConnect bool `env:"PZRCON_AUTOCONNECT,default=false"`
	// AutoConnectParallelism caps concurrent startup connects. ENV: PZRCON_AUTOCONNECT_PARALLELISM
	AutoConnectParallelism int `env:"PZRCON_AUTOCONNECT_PARALLELISM,default=4"`
}

// Load decodes Config from the environment and validates it.
//
// Returns:
//   - The decoded Config
//   - An error if a variable cannot be parsed or a value is out of range
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks value ranges that the env tags cannot express.
func (c Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("config: RCON_CONNECT_TIMEOUT must be positive, got %s", c.ConnectTimeout)
	}

	if c.CommandTimeout <= 0 {
		return fmt.Errorf("config: RCON_COMMAND_TIMEOUT must be positive, got %s", c.CommandTimeout)
	}

	if c.AutoConnectParallelism < 1 {
		return fmt.Errorf("config: PZRCON_AUTOCONNECT_PARALLELISM must be at least 1, got %d", c.AutoConnectParallelism)
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// Level returns the parsed log level.
func (c Config) Level() (zerolog.Level, error) {
	lvl, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("config: PZRCON_LOG_LEVEL: %w", err)
	}

	return lvl, nil
}
