package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	liststrings "copyright/pkg/platform/strings"
)

// Registry backends.
const (
	RegistryMemory   = "memory"
	RegistryPostgres = "postgres"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Server  Server
	Ledger  Ledger
	Redis   RedisConfig
	Kafka   KafkaConfig
	Log     Log
	Tracing Tracing
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"LEDGER_ADDR"             envDefault:":8080"`
	MetricsAddr     string        `env:"LEDGER_METRICS_ADDR"     envDefault:":9090"`
	AdminToken      string        `env:"ADMIN_API_TOKEN"`
	RequestTimeout  time.Duration `env:"LEDGER_REQUEST_TIMEOUT"  envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"LEDGER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Ledger configures the registry and transaction processing.
type Ledger struct {
	Registry       string        `env:"LEDGER_REGISTRY"        envDefault:"memory"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	TxTimeout      time.Duration `env:"LEDGER_TX_TIMEOUT"      envDefault:"5s"`
	ReplayTTL      time.Duration `env:"LEDGER_REPLAY_TTL"      envDefault:"24h"`
	LegacyPayments bool          `env:"LEDGER_LEGACY_PAYMENTS" envDefault:"false"`
	SeedFile       string        `env:"LEDGER_SEED_FILE"`
	AuditBuffer    int           `env:"LEDGER_AUDIT_BUFFER"    envDefault:"1024"`
}

// RedisConfig configures the replay guard backend. An empty URL keeps replay
// protection in process.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE"      envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT"   envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT"   envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT"  envDefault:"3s"`
}

// KafkaConfig configures the audit event sink. No brokers disables it.
type KafkaConfig struct {
	Brokers         []string      `env:"KAFKA_BROKERS"          envSeparator:","`
	AuditTopic      string        `env:"KAFKA_AUDIT_TOPIC"      envDefault:"ledger.audit"`
	Partitions      int32         `env:"KAFKA_AUDIT_PARTITIONS" envDefault:"1"`
	DeliveryTimeout time.Duration `env:"KAFKA_DELIVERY_TIMEOUT" envDefault:"5s"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `env:"LEDGER_LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LEDGER_LOG_FORMAT" envDefault:"json"`
}

// Tracing configures OTLP span export. No endpoint disables it.
type Tracing struct {
	Endpoint    string `env:"LEDGER_OTEL_ENDPOINT"`
	ServiceName string `env:"LEDGER_SERVICE_NAME" envDefault:"copyright-ledger"`
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Kafka.Brokers = liststrings.Compact(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations that cannot start.
func (c Config) Validate() error {
	var errs []error
	switch c.Ledger.Registry {
	case RegistryMemory:
	case RegistryPostgres:
		if c.Ledger.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres registry"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LEDGER_REGISTRY %q", c.Ledger.Registry))
	}
	if c.Ledger.TxTimeout <= 0 {
		errs = append(errs, errors.New("LEDGER_TX_TIMEOUT must be positive"))
	}
	if c.Ledger.ReplayTTL <= 0 {
		errs = append(errs, errors.New("LEDGER_REPLAY_TTL must be positive"))
	}
	if c.Ledger.AuditBuffer < 0 {
		errs = append(errs, errors.New("LEDGER_AUDIT_BUFFER cannot be negative"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.DeliveryTimeout <= 0 {
		errs = append(errs, errors.New("KAFKA_DELIVERY_TIMEOUT must be positive"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown LEDGER_LOG_FORMAT %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
