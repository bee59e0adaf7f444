// Package params resolves identity provider settings from a remote parameter
// store and caches them for the lifetime of the process.
package params

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"edge-auth-proxy/internal/config"
	"edge-auth-proxy/internal/metrics"
)

// ErrParameterNotFound is returned when the store has no value for a name.
var ErrParameterNotFound = errors.New("parameter not found")

// Store reads a single string value by name.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
}

// NewStore builds the configured backend, optionally fronted by Redis, and
// instruments it. The metrics parameter is optional.
func NewStore(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger, m *metrics.Metrics) (Store, error) {
	var (
		base Store
		err  error
	)
	switch cfg.Parameters.Backend {
	case "vault":
		base, err = NewVaultStore(cfg.Parameters.Vault, logger)
		if err != nil {
			return nil, err
		}
	default:
		base = NewSSMStore(ssm.NewFromConfig(awsCfg), logger)
	}

	if cfg.Parameters.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Parameters.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse parameters.redis.url: %w", err)
		}
		base = NewRedisStore(base, redis.NewClient(opts),
			time.Duration(cfg.Parameters.Redis.TTLSeconds)*time.Second,
			cfg.Parameters.Redis.KeyPrefix,
			logger,
		)
	}

	return &instrumentedStore{next: base, backend: cfg.Parameters.Backend, metrics: m}, nil
}

// instrumentedStore counts reads that reach the backend.
type instrumentedStore struct {
	next    Store
	backend string
	metrics *metrics.Metrics
}

func (s *instrumentedStore) Get(ctx context.Context, name string) (string, error) {
	v, err := s.next.Get(ctx, name)
	if s.metrics != nil {
		result := "ok"
		switch {
		case errors.Is(err, ErrParameterNotFound):
			result = "not_found"
		case err != nil:
			result = "error"
		}
		s.metrics.ParameterFetches.WithLabelValues(s.backend, result).Inc()
	}
	return v, err
}

// Close releases the wrapped store's resources, if it holds any.
func (s *instrumentedStore) Close() error {
	if c, ok := s.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
