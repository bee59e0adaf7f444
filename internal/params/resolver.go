package params

import (
	"context"
	"fmt"

	"edge-auth-proxy/internal/config"
	"edge-auth-proxy/internal/model"
)

// Resolver looks up the user pool and app client ids by their well-known
// parameter names.
type Resolver struct {
	cache        *Cache
	poolIDName   string
	clientIDName string
}

// NewResolver creates a Resolver reading through cache.
func NewResolver(cache *Cache, cfg *config.Config) *Resolver {
	return &Resolver{
		cache:        cache,
		poolIDName:   cfg.Identity.PoolIDParameter,
		clientIDName: cfg.Identity.ClientIDParameter,
	}
}

// Resolve returns the provider configuration. Any fetch failure is returned
// as is; the caller decides how it is reported.
func (r *Resolver) Resolve(ctx context.Context) (model.ProviderConfig, error) {
	poolID, err := r.cache.GetOrFetch(ctx, r.poolIDName)
	if err != nil {
		return model.ProviderConfig{}, fmt.Errorf("resolve pool id: %w", err)
	}
	clientID, err := r.cache.GetOrFetch(ctx, r.clientIDName)
	if err != nil {
		return model.ProviderConfig{}, fmt.Errorf("resolve client id: %w", err)
	}
	return model.ProviderConfig{PoolID: poolID, ClientID: clientID}, nil
}
