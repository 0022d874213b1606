package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Env string

const (
	EnvProd Env = "prod"
	EnvDev  Env = "dev"
)

func (e Env) IsValid() bool {
	switch e {
	case EnvProd, EnvDev:
		return true
	}
	return false
}

type Config struct {
	APIServerHost string `env:"API_SERVER_HOST"`
	APIServerPort string `env:"SOCKET_PORT" envDefault:"3000"`

	RedisURL     string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	RedisChannel string `env:"REDIS_CHANNEL" envDefault:"dashboard_updates"`

	JWTSecret string `env:"JWT_SECRET_KEY,required,notEmpty"`

	WSPath           string        `env:"WS_PATH" envDefault:"/realtimedata/"`
	WSAllowedOrigins []string      `env:"WS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	SendQueueSize    int           `env:"SEND_QUEUE_SIZE" envDefault:"16"`
	PingPeriod       time.Duration `env:"PING_PERIOD" envDefault:"54s"`

	BrokerBackoffInitial time.Duration `env:"BROKER_BACKOFF_INITIAL" envDefault:"500ms"`
	BrokerBackoffMax     time.Duration `env:"BROKER_BACKOFF_MAX" envDefault:"30s"`
	BrokerHealthCheck    time.Duration `env:"BROKER_HEALTH_CHECK" envDefault:"30s"`

	SnapshotTTL time.Duration `env:"SNAPSHOT_TTL" envDefault:"0s"`

	Env Env `env:"ENV" envDefault:"prod"`
}

// New loads the configuration from the environment. A .env file in the
// working directory is read first when present.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if !c.Env.IsValid() {
		return fmt.Errorf("invalid env variable (must be 'prod' or 'dev')")
	}
	if c.SendQueueSize <= 0 {
		return errors.New("SEND_QUEUE_SIZE must be positive")
	}
	if c.PingPeriod <= 0 {
		return errors.New("PING_PERIOD must be positive")
	}
	if c.BrokerBackoffInitial <= 0 || c.BrokerBackoffMax <= 0 {
		return errors.New("broker backoff durations must be positive")
	}
	if c.BrokerHealthCheck <= 0 {
		return errors.New("BROKER_HEALTH_CHECK must be positive")
	}
	if c.BrokerBackoffInitial > c.BrokerBackoffMax {
		return errors.New("BROKER_BACKOFF_INITIAL must not exceed BROKER_BACKOFF_MAX")
	}
	if c.SnapshotTTL < 0 {
		return errors.New("SNAPSHOT_TTL must not be negative")
	}
	return nil
}
