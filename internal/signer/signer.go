// Package signer applies AWS Signature Version 4 to outbound origin requests.
package signer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"edge-auth-proxy/internal/config"
)

const fallbackRegion = "us-east-1"

// ErrNoCredentials is returned when the environment carries no access key pair.
var ErrNoCredentials = errors.New("no AWS credentials in environment")

// EnvCredentials returns a provider that reads AWS_ACCESS_KEY_ID,
// AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN on every call. Nothing is
// cached, so rotated execution-role credentials are picked up immediately.
func EnvCredentials() aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		env, err := awsconfig.NewEnvConfig()
		if err != nil {
			return aws.Credentials{}, fmt.Errorf("read env config: %w", err)
		}
		if !env.Credentials.HasKeys() {
			return aws.Credentials{}, ErrNoCredentials
		}
		creds := env.Credentials
		creds.Source = "Environment"
		return creds, nil
	})
}

// Signer signs requests for a single service.
type Signer struct {
	signer  *v4.Signer
	creds   aws.CredentialsProvider
	service string
	region  string
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a Signer. With origin.credentials = "default" the SDK default
// chain from awsCfg is used; otherwise credentials come from the environment.
func New(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) *Signer {
	creds := EnvCredentials()
	if cfg.Origin.Credentials == "default" && awsCfg.Credentials != nil {
		creds = awsCfg.Credentials
	}
	return NewWithCredentials(creds, cfg.Origin.SigningService, cfg.Origin.SigningRegion, logger)
}

// NewWithCredentials creates a Signer with an explicit credentials provider.
// An empty region is resolved from AWS_REGION at signing time.
func NewWithCredentials(creds aws.CredentialsProvider, service, region string, logger *slog.Logger) *Signer {
	return &Signer{
		signer:  v4.NewSigner(),
		creds:   creds,
		service: service,
		region:  region,
		now:     time.Now,
		logger:  logger.With("component", "signer"),
	}
}

// Sign adds SigV4 authorization headers to req. body must be the exact bytes
// that will be sent; nil means no body.
func (s *Signer) Sign(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieve credentials: %w", err)
	}

	region := s.resolveRegion()
	sum := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(sum[:])

	if err := s.signer.SignHTTP(ctx, creds, req, payloadHash, s.service, region, s.now()); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	s.logger.Debug("signed request", "service", s.service, "region", region, "host", req.Host)
	return nil
}

func (s *Signer) resolveRegion() string {
	if s.region != "" {
		return s.region
	}
	if env, err := awsconfig.NewEnvConfig(); err == nil && env.Region != "" {
		return env.Region
	}
	return fallbackRegion
}
