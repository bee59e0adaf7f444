package params

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMAPI is the subset of the SSM client used by SSMStore.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMStore reads parameters from AWS Systems Manager Parameter Store.
type SSMStore struct {
	client SSMAPI
	logger *slog.Logger
}

// NewSSMStore creates an SSMStore.
func NewSSMStore(client SSMAPI, logger *slog.Logger) *SSMStore {
	return &SSMStore{
		client: client,
		logger: logger.With("component", "ssm_store"),
	}
}

// Get returns the decrypted value of the named parameter.
func (s *SSMStore) Get(ctx context.Context, name string) (string, error) {
	s.logger.Debug("fetching parameter", "name", name)

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("ssm %s: %w", name, ErrParameterNotFound)
		}
		return "", fmt.Errorf("ssm get %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("ssm %s: %w", name, ErrParameterNotFound)
	}
	return aws.ToString(out.Parameter.Value), nil
}
