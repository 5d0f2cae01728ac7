package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DBConfig contains the ledger's PostgreSQL configuration.
type DBConfig struct {
	Host            string        `env:"HOST"              envDefault:"localhost"`
	Port            int           `env:"PORT"              envDefault:"5432"`
	User            string        `env:"USER"              envDefault:"scanworker"`
	Password        string        `env:"PASSWORD"          envDefault:"scanworker"`
	Name            string        `env:"NAME"              envDefault:"scanworker"`
	SSLMode         string        `env:"SSL_MODE"          envDefault:"disable"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	// RunMigrationsOnStart applies pending ledger migrations when the worker boots.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// Sanitize clamps pool sizes.
func (c *DBConfig) Sanitize() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}

// DSN renders a postgres:// URL with escaped credentials.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisMode selects how the Redis client reaches the server.
type RedisMode string

// Supported Redis modes.
const (
	RedisModeDirect   RedisMode = "direct"
	RedisModeSentinel RedisMode = "sentinel"
	RedisModeCluster  RedisMode = "cluster"
)

// RedisConfig contains Redis configuration. URI is either host:port or a
// redis:// or rediss:// URL; Addrs lists sentinel or cluster nodes.
type RedisConfig struct {
	Mode             RedisMode `env:"MODE"                 envDefault:"direct"`
	URI              string    `env:"URI"                  envDefault:"localhost:6379"`
	Addrs            []string  `env:"ADDRS"`
	Username         string    `env:"USERNAME"`
	Password         string    `env:"PASSWORD"`
	DB               int       `env:"DB"                   envDefault:"0"`
	MasterName       string    `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword string    `env:"SENTINEL_PASSWORD"`
}

// Sanitize normalises the mode and drops blank node addresses.
func (c *RedisConfig) Sanitize() {
	c.Mode = RedisMode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	if c.Mode == "" {
		c.Mode = RedisModeDirect
	}
	c.URI = strings.TrimSpace(c.URI)
	addrs := c.Addrs[:0]
	for _, a := range c.Addrs {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	c.Addrs = addrs
}

// Validate reports an unknown mode or a mode without the addresses it needs.
func (c RedisConfig) Validate() error {
	switch c.Mode {
	case RedisModeDirect:
		if c.URI == "" {
			return fmt.Errorf("REDIS_URI is required in %s mode", c.Mode)
		}
	case RedisModeSentinel, RedisModeCluster:
		if len(c.Addrs) == 0 && c.URI == "" {
			return fmt.Errorf("REDIS_ADDRS is required in %s mode", c.Mode)
		}
	default:
		return fmt.Errorf("unknown REDIS_MODE %q", c.Mode)
	}
	return nil
}

// LedgerConfig controls the scan_jobs ledger.
type LedgerConfig struct {
	// Enabled records every job transition in PostgreSQL.
	Enabled bool `env:"LEDGER_ENABLED" envDefault:"false"`
}
