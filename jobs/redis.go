package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	rclient "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ Store = (*RedisStore)(nil)

const keyPrefix = "mailmerge:job:"

// RedisConfig describes the Redis connection of a RedisStore.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
	TTL             time.Duration // zero keeps jobs forever
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MinRetryBackoff == 0 {
		c.MinRetryBackoff = 8 * time.Millisecond
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = 512 * time.Millisecond
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	return c
}

// RedisStore keeps jobs as JSON documents in Redis.
type RedisStore struct {
	client *rclient.Client
	cfg    RedisConfig
	logger *slog.Logger
	tracer trace.Tracer
}

// ConnectRedis opens a RedisStore and pings the server.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	cfg = cfg.withDefaults()
	logger := slog.Default().WithGroup("redis")
	logger.Debug("connecting to redis", "addr", cfg.Addr)

	s := &RedisStore{
		client: rclient.NewClient(&rclient.Options{
			Addr:            cfg.Addr,
			Password:        cfg.Password,
			DB:              cfg.DB,
			MaxRetries:      cfg.MaxRetries,
			MinRetryBackoff: cfg.MinRetryBackoff,
			MaxRetryBackoff: cfg.MaxRetryBackoff,
			DialTimeout:     cfg.DialTimeout,
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			PoolSize:        cfg.PoolSize,
		}),
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("github.com/pure-golang/mailmerge/jobs"),
	}

	if err := s.Ping(ctx); err != nil {
		_ = s.client.Close()
		return nil, err
	}

	logger.Info("connected to redis", "addr", cfg.Addr)
	return s, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping", "")
	defer span.End()

	err := s.client.Ping(ctx).Err()
	endSpan(span, err)
	return errors.Wrap(err, "failed to ping redis")
}

// Save overwrites the job record and restarts its TTL.
func (s *RedisStore) Save(ctx context.Context, job *Job) error {
	ctx, span := s.startSpan(ctx, "Save", job.ID)
	defer span.End()
	span.SetAttributes(
		attribute.String("mailmerge.job.state", string(job.State)),
		attribute.Int("mailmerge.job.results", len(job.Results)),
	)

	data, err := json.Marshal(job)
	if err != nil {
		endSpan(span, err)
		return errors.Wrapf(err, "failed to encode job %q", job.ID)
	}

	err = s.client.Set(ctx, keyPrefix+job.ID, data, s.cfg.TTL).Err()
	endSpan(span, err)
	return errors.Wrapf(err, "failed to save job %q", job.ID)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	ctx, span := s.startSpan(ctx, "Get", id)
	defer span.End()

	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, rclient.Nil) {
		span.SetAttributes(attribute.Bool("mailmerge.job.found", false))
		endSpan(span, nil)
		return nil, ErrNotFound
	}
	if err != nil {
		endSpan(span, err)
		return nil, errors.Wrapf(err, "failed to get job %q", id)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		endSpan(span, err)
		return nil, errors.Wrapf(err, "failed to decode job %q", id)
	}

	span.SetAttributes(
		attribute.Bool("mailmerge.job.found", true),
		attribute.String("mailmerge.job.state", string(job.State)),
	)
	endSpan(span, nil)
	return &job, nil
}

// Close is idempotent.
func (s *RedisStore) Close() error {
	_, span := s.startSpan(context.Background(), "Close", "")
	defer span.End()

	if err := s.client.Close(); err != nil && !errors.Is(err, rclient.ErrClosed) {
		endSpan(span, err)
		return errors.Wrap(err, "failed to close redis connection")
	}

	endSpan(span, nil)
	s.logger.Debug("redis connection closed")
	return nil
}

// startSpan opens a client span for a store operation on one job.
func (s *RedisStore) startSpan(ctx context.Context, op, jobID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", op),
		attribute.Int("db.redis.database_index", s.cfg.DB),
	}
	if jobID != "" {
		attrs = append(attrs, attribute.String("mailmerge.job.id", jobID))
	}
	return s.tracer.Start(ctx, "jobs.RedisStore."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
