package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - storage.go: Storage areas and scanner configuration
//   - transport.go: Batch transport, notification and broker configuration
//   - database.go: Ledger database and Redis configuration
//   - services.go: Service mode and worker configuration
type AppConfig struct {
	// IsDev controls development mode behavior (text logs, debug level).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage areas and scanner
	Storage StorageConfig
	Scanner ScannerConfig

	// Intake and outcome fan-out
	Transport TransportConfig
	Event     EventConfig
	Notify    NotifyConfig

	// Brokers and databases
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Kafka    KafkaConfig `envPrefix:"KAFKA_"`
	AMQP     AMQPConfig  `envPrefix:"AMQP_"`
	Ledger   LedgerConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"worker"`

	Worker WorkerConfig
	Reaper ReaperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Storage.Sanitize()
	c.Scanner.Sanitize()
	c.Transport.Sanitize()
	c.Event.Sanitize()
	c.Notify.Sanitize()
	c.Postgres.Sanitize()
	c.Redis.Sanitize()
	c.Kafka.Sanitize()
	c.AMQP.Sanitize()
	c.Worker.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// Validate reports configuration that cannot be defaulted.
func (c *AppConfig) Validate() error {
	var errs []error
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseTransport(string(c.Transport.Kind)); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseNotifyBackend(string(c.Notify.Backend)); err != nil {
		errs = append(errs, err)
	}
	if c.usesRedis() {
		if err := c.Redis.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Notify.Topic == "" && c.Notify.Backend != NotifyBackendLog {
		errs = append(errs, errors.New("TOPIC is required"))
	}
	if c.IsReaperEnabled() && !c.Ledger.Enabled {
		errs = append(errs, errors.New("reaper service requires LEDGER_ENABLED=true"))
	}
	if _, err := c.GetEnabledServices(); err != nil {
		errs = append(errs, fmt.Errorf("invalid service configuration: %w", err))
	}
	return errors.Join(errs...)
}

func (c *AppConfig) usesRedis() bool {
	return c.Transport.Kind == TransportRedis || c.Notify.Backend == NotifyBackendRedis
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// SlogLevel maps LogLevel onto a slog level; DEV forces debug.
func (c *AppConfig) SlogLevel() slog.Level {
	if c.IsDev {
		return slog.LevelDebug
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsWorkerEnabled returns true if the scan worker service is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeWorker]
}

// IsReaperEnabled returns true if the ledger reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeReaper]
}
