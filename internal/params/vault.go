package params

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"

	"edge-auth-proxy/internal/config"
)

// VaultStore reads parameters from a Vault KV v2 mount. A parameter name maps
// to a secret path with the leading slash removed; the value is read from a
// single field of that secret.
type VaultStore struct {
	kv     *vaultapi.KVv2
	field  string
	logger *slog.Logger
}

// NewVaultStore creates a VaultStore. When cfg.Token is empty the client falls
// back to VAULT_TOKEN.
func NewVaultStore(cfg config.VaultConfig, logger *slog.Logger) (*VaultStore, error) {
	apiCfg := vaultapi.DefaultConfig()
	if apiCfg.Error != nil {
		return nil, fmt.Errorf("vault config: %w", apiCfg.Error)
	}
	apiCfg.Address = cfg.Address
	apiCfg.MaxRetries = 0

	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	return &VaultStore{
		kv:     client.KVv2(cfg.Mount),
		field:  cfg.Field,
		logger: logger.With("component", "vault_store"),
	}, nil
}

// Get returns the configured field of the secret at name.
func (s *VaultStore) Get(ctx context.Context, name string) (string, error) {
	path := strings.TrimPrefix(name, "/")
	if path == "" {
		return "", fmt.Errorf("vault: empty parameter name: %w", ErrParameterNotFound)
	}
	s.logger.Debug("fetching parameter", "path", path)

	secret, err := s.kv.Get(ctx, path)
	if err != nil {
		if errors.Is(err, vaultapi.ErrSecretNotFound) {
			return "", fmt.Errorf("vault %s: %w", path, ErrParameterNotFound)
		}
		return "", fmt.Errorf("vault read %s: %w", path, err)
	}

	v, ok := secret.Data[s.field].(string)
	if !ok {
		return "", fmt.Errorf("vault %s: field %q: %w", path, s.field, ErrParameterNotFound)
	}
	return v, nil
}
