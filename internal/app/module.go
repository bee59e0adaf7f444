// Package app assembles the gateway with fx for both the Lambda and the
// standalone server binaries.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/fx"

	"edge-auth-proxy/internal/auth"
	"edge-auth-proxy/internal/client"
	"edge-auth-proxy/internal/config"
	"edge-auth-proxy/internal/handler"
	"edge-auth-proxy/internal/metrics"
	"edge-auth-proxy/internal/params"
	"edge-auth-proxy/internal/service"
	"edge-auth-proxy/internal/signer"
)

// Core provides the gateway and its dependencies. It expects a *config.Config
// to be supplied by the caller.
var Core = fx.Options(
	fx.Provide(
		NewLogger,
		NewAWSConfig,
		metrics.New,
		newParameterStore,
		params.NewCache,
		fx.Annotate(params.NewResolver, fx.As(new(auth.ProviderResolver))),
		newVerifier,
		fx.Annotate(client.NewOriginClient, fx.As(new(service.Dispatcher))),
		fx.Annotate(signer.New, fx.As(new(service.RequestSigner))),
		service.NewForwarder,
		fx.Annotate(service.NewGateway, fx.As(new(handler.Gateway))),
	),
)

// NewLogger builds the process logger from the [log] section.
func NewLogger(cfg *config.Config) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h)
}

// NewAWSConfig loads the SDK configuration for the parameter store region.
// Credentials resolve lazily on first use.
func NewAWSConfig(cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Parameters.Region),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func newParameterStore(lc fx.Lifecycle, cfg *config.Config, awsCfg aws.Config, logger *slog.Logger, m *metrics.Metrics) (params.Store, error) {
	store, err := params.NewStore(cfg, awsCfg, logger, m)
	if err != nil {
		return nil, err
	}
	if c, ok := store.(io.Closer); ok {
		lc.Append(fx.StopHook(c.Close))
	}
	logger.Info("parameter store ready",
		"backend", cfg.Parameters.Backend,
		"redis", cfg.Parameters.Redis.URL != "",
	)
	return store, nil
}

func newVerifier(lc fx.Lifecycle, resolver auth.ProviderResolver, cfg *config.Config, logger *slog.Logger) auth.Verifier {
	v := auth.NewCognitoVerifier(resolver, cfg, logger)
	lc.Append(fx.StopHook(v.Close))
	return v
}
