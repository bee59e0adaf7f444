package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"edge-auth-proxy/internal/config"
	"edge-auth-proxy/internal/model"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("token verification failed")

const jwksPath = "/.well-known/jwks.json"

// Verifier checks a bearer token and returns the identity it carries.
type Verifier interface {
	Verify(ctx context.Context, token string) (*model.Identity, error)
}

// ProviderResolver supplies the pool and client ids tokens are checked against.
type ProviderResolver interface {
	Resolve(ctx context.Context) (model.ProviderConfig, error)
}

// cognitoClaims are the claims read from a Cognito token.
type cognitoClaims struct {
	TokenUse string `json:"token_use"`
	ClientID string `json:"client_id"`
	Username string `json:"cognito:username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// CognitoVerifier verifies RS256 tokens against the user pool's published key set.
type CognitoVerifier struct {
	resolver ProviderResolver
	cfg      config.IdentityConfig
	client   *http.Client
	logger   *slog.Logger

	cache  *jwk.Cache
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewCognitoVerifier creates a CognitoVerifier. The key set cache refreshes in
// the background until Close is called.
func NewCognitoVerifier(resolver ProviderResolver, cfg *config.Config, logger *slog.Logger) *CognitoVerifier {
	return newCognitoVerifier(resolver, cfg.Identity, &http.Client{Timeout: 10 * time.Second}, logger)
}

func newCognitoVerifier(resolver ProviderResolver, cfg config.IdentityConfig, hc *http.Client, logger *slog.Logger) *CognitoVerifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &CognitoVerifier{
		resolver: resolver,
		cfg:      cfg,
		client:   hc,
		logger:   logger.With("component", "cognito_verifier"),
		cache:    jwk.NewCache(ctx),
		cancel:   cancel,
	}
}

// Verify resolves the provider configuration, then checks the token's
// signature, algorithm, issuer, audience, expiry and token_use claim.
func (v *CognitoVerifier) Verify(ctx context.Context, token string) (*model.Identity, error) {
	pc, err := v.resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	issuer := v.cfg.Issuer(pc.PoolID)
	keys, err := v.keySet(ctx, issuer+jwksPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(time.Duration(v.cfg.LeewaySeconds) * time.Second),
	}
	if v.cfg.TokenUse != "access" {
		opts = append(opts, jwt.WithAudience(pc.ClientID))
	}

	claims := &cognitoClaims{}
	_, err = jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid")
		}
		key, ok := keys.LookupKeyID(kid)
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		var raw any
		if err := key.Raw(&raw); err != nil {
			return nil, fmt.Errorf("key %q: %w", kid, err)
		}
		pub, ok := raw.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("key %q is %T, not RSA", kid, raw)
		}
		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.TokenUse != v.cfg.TokenUse {
		return nil, fmt.Errorf("%w: token_use %q, want %q", ErrInvalidToken, claims.TokenUse, v.cfg.TokenUse)
	}
	if v.cfg.TokenUse == "access" && claims.ClientID != pc.ClientID {
		return nil, fmt.Errorf("%w: client_id mismatch", ErrInvalidToken)
	}

	id := &model.Identity{
		Subject:  claims.Subject,
		Username: claims.Username,
		Email:    claims.Email,
		Issuer:   claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// keySet returns the cached key set for url, registering it on first use.
func (v *CognitoVerifier) keySet(ctx context.Context, url string) (jwk.Set, error) {
	v.mu.Lock()
	if !v.cache.IsRegistered(url) {
		refresh := time.Duration(v.cfg.JWKSRefreshMinutes) * time.Minute
		opts := []jwk.RegisterOption{jwk.WithHTTPClient(v.client)}
		if refresh > 0 {
			opts = append(opts, jwk.WithMinRefreshInterval(refresh))
		}
		if err := v.cache.Register(url, opts...); err != nil {
			v.mu.Unlock()
			return nil, fmt.Errorf("register jwks %s: %w", url, err)
		}
		v.logger.Info("registered key set", "url", url, "refresh", refresh)
	}
	v.mu.Unlock()

	set, err := v.cache.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks %s: %w", url, err)
	}
	return set, nil
}

// Close stops background key set refreshes.
func (v *CognitoVerifier) Close() error {
	v.cancel()
	return nil
}
