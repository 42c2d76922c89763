package jobs

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Provider selects the Store implementation.
type Provider string

const (
	ProviderMemory Provider = "memory"
	ProviderRedis  Provider = "redis"
)

// Config configures job tracking.
type Config struct {
	Provider      Provider      `envconfig:"JOBS_PROVIDER" default:"memory"`
	TTL           time.Duration `envconfig:"JOBS_TTL" default:"24h"`
	ProgressEvery int           `envconfig:"JOBS_PROGRESS_EVERY" default:"10"` // save a snapshot every N results

	RedisAddr         string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword     string        `envconfig:"REDIS_PASSWORD"`
	RedisDB           int           `envconfig:"REDIS_DB" default:"0"`
	RedisMaxRetries   int           `envconfig:"REDIS_MAX_RETRIES" default:"3"`
	RedisDialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	RedisReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	RedisWriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
	RedisPoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
}

// NewStore creates the Store selected by cfg.Provider.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Provider {
	case ProviderMemory, "":
		return NewMemoryStore(cfg.TTL), nil
	case ProviderRedis:
		return ConnectRedis(ctx, RedisConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			MaxRetries:   cfg.RedisMaxRetries,
			DialTimeout:  cfg.RedisDialTimeout,
			ReadTimeout:  cfg.RedisReadTimeout,
			WriteTimeout: cfg.RedisWriteTimeout,
			PoolSize:     cfg.RedisPoolSize,
			TTL:          cfg.TTL,
		})
	default:
		return nil, errors.Errorf("unknown jobs provider: %s", cfg.Provider)
	}
}
