// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
// The Lambda bundle ships configs/config.toml next to the binary.
var configSearchPaths = []string{
	"/etc/edge-auth-proxy/config.toml",
	"configs/config.toml",
}

// reservedPaths are served by the proxy itself in server mode.
var reservedPaths = []string{"/healthz", "/proxy/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config       string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host         string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port         int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	OriginDomain string `kong:"help='Origin domain name used when the request carries none (overrides config).',env='ORIGIN_DOMAIN_NAME'"`
	LogLevel     string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Identity   IdentityConfig   `toml:"identity"`
	Parameters ParametersConfig `toml:"parameters"`
	Origin     OriginConfig     `toml:"origin"`
	Log        LogConfig        `toml:"log"`
	Metrics    MetricsConfig    `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings for standalone mode.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// IdentityConfig describes the identity provider tokens are verified against.
type IdentityConfig struct {
	Region             string `toml:"region"`
	PoolIDParameter    string `toml:"pool_id_parameter"`
	ClientIDParameter  string `toml:"client_id_parameter"`
	IssuerBaseURL      string `toml:"issuer_base_url"` // default https://cognito-idp.<region>.amazonaws.com
	TokenUse           string `toml:"token_use"`
	JWKSRefreshMinutes int    `toml:"jwks_refresh_minutes"`
	LeewaySeconds      int    `toml:"leeway_seconds"`
}

// Issuer returns the expected token issuer for the given pool.
func (c *IdentityConfig) Issuer(poolID string) string {
	return strings.TrimSuffix(c.IssuerBaseURL, "/") + "/" + poolID
}

// ParametersConfig selects the parameter store backend.
type ParametersConfig struct {
	Backend string      `toml:"backend"` // ssm | vault
	Region  string      `toml:"region"`
	Vault   VaultConfig `toml:"vault"`
	Redis   RedisConfig `toml:"redis"`
}

// VaultConfig holds settings for the Vault KV v2 backend.
type VaultConfig struct {
	Address string `toml:"address"`
	Token   string `toml:"token"`
	Mount   string `toml:"mount"`
	Field   string `toml:"field"`
}

// RedisConfig enables a shared read-through cache in front of the backend.
type RedisConfig struct {
	URL        string `toml:"url"`
	TTLSeconds int    `toml:"ttl_seconds"`
	KeyPrefix  string `toml:"key_prefix"`
}

// OriginConfig holds origin connection and signing settings.
type OriginConfig struct {
	DomainName      string               `toml:"domain_name"`
	SigningService  string               `toml:"signing_service"`
	SigningRegion   string               `toml:"signing_region"`
	Credentials     string               `toml:"credentials"` // env | default
	TimeoutSeconds  int                  `toml:"timeout_seconds"`
	IdleConnections int                  `toml:"idle_connections"`
	CircuitBreaker  CircuitBreakerConfig `toml:"circuit_breaker"`
}

// CircuitBreakerConfig controls the breaker around origin calls.
type CircuitBreakerConfig struct {
	Enabled          bool `toml:"enabled"`
	FailureThreshold int  `toml:"failure_threshold"`
	OpenSeconds      int  `toml:"open_seconds"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/edge-auth-proxy/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.OriginDomain != "" {
		c.Origin.DomainName = cli.OriginDomain
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Identity provider.
	if c.Identity.IssuerBaseURL != "" {
		u, err := url.Parse(c.Identity.IssuerBaseURL)
		if err != nil {
			return fmt.Errorf("identity.issuer_base_url is not a valid URL: %w", err)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return fmt.Errorf("identity.issuer_base_url must be an http(s) URL; got %q", c.Identity.IssuerBaseURL)
		}
	} else if c.Identity.Region == "" {
		return fmt.Errorf("identity.region is required when identity.issuer_base_url is not set")
	}
	if c.Identity.JWKSRefreshMinutes < 0 {
		return fmt.Errorf("identity.jwks_refresh_minutes must be non-negative; got %d", c.Identity.JWKSRefreshMinutes)
	}
	if c.Identity.LeewaySeconds < 0 {
		return fmt.Errorf("identity.leeway_seconds must be non-negative; got %d", c.Identity.LeewaySeconds)
	}

	// Parameter store.
	switch strings.ToLower(c.Parameters.Backend) {
	case "ssm", "":
		// valid
	case "vault":
		if c.Parameters.Vault.Address == "" {
			return fmt.Errorf("parameters.vault.address is required for the vault backend")
		}
	default:
		return fmt.Errorf("parameters.backend must be one of: ssm, vault; got %q", c.Parameters.Backend)
	}
	if c.Parameters.Redis.TTLSeconds < 0 {
		return fmt.Errorf("parameters.redis.ttl_seconds must be non-negative; got %d", c.Parameters.Redis.TTLSeconds)
	}

	// Origin.
	if c.Origin.DomainName != "" && strings.ContainsAny(c.Origin.DomainName, "/?#") {
		return fmt.Errorf("origin.domain_name must be a bare host name; got %q", c.Origin.DomainName)
	}
	switch strings.ToLower(c.Origin.Credentials) {
	case "env", "default", "":
		// valid
	default:
		return fmt.Errorf("origin.credentials must be one of: env, default; got %q", c.Origin.Credentials)
	}
	if c.Origin.TimeoutSeconds < 0 {
		return fmt.Errorf("origin.timeout_seconds must be non-negative; got %d", c.Origin.TimeoutSeconds)
	}
	if c.Origin.IdleConnections < 0 {
		return fmt.Errorf("origin.idle_connections must be non-negative; got %d", c.Origin.IdleConnections)
	}
	if c.Origin.CircuitBreaker.Enabled && c.Origin.CircuitBreaker.FailureThreshold < 0 {
		return fmt.Errorf("origin.circuit_breaker.failure_threshold must be non-negative; got %d", c.Origin.CircuitBreaker.FailureThreshold)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedPaths {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, TimeoutSeconds, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1024 * 1024 // 1 MB, the edge body limit
	}

	if c.Identity.IssuerBaseURL == "" {
		c.Identity.IssuerBaseURL = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com", c.Identity.Region)
	}
	if c.Identity.PoolIDParameter == "" {
		c.Identity.PoolIDParameter = "/edge-auth-proxy/user-pool-id"
	}
	if c.Identity.ClientIDParameter == "" {
		c.Identity.ClientIDParameter = "/edge-auth-proxy/user-pool-client-id"
	}
	if c.Identity.TokenUse == "" {
		c.Identity.TokenUse = "id"
	}
	if c.Identity.JWKSRefreshMinutes == 0 {
		c.Identity.JWKSRefreshMinutes = 15
	}

	c.Parameters.Backend = strings.ToLower(c.Parameters.Backend)
	if c.Parameters.Backend == "" {
		c.Parameters.Backend = "ssm"
	}
	if c.Parameters.Region == "" {
		c.Parameters.Region = c.Identity.Region
	}
	if c.Parameters.Vault.Mount == "" {
		c.Parameters.Vault.Mount = "secret"
	}
	if c.Parameters.Vault.Field == "" {
		c.Parameters.Vault.Field = "value"
	}
	if c.Parameters.Redis.TTLSeconds == 0 {
		c.Parameters.Redis.TTLSeconds = 300
	}
	if c.Parameters.Redis.KeyPrefix == "" {
		c.Parameters.Redis.KeyPrefix = "edge-auth-proxy:param:"
	}

	if c.Origin.SigningService == "" {
		c.Origin.SigningService = "lambda"
	}
	c.Origin.Credentials = strings.ToLower(c.Origin.Credentials)
	if c.Origin.Credentials == "" {
		c.Origin.Credentials = "env"
	}
	if c.Origin.TimeoutSeconds == 0 {
		c.Origin.TimeoutSeconds = 5
	}
	if c.Origin.IdleConnections == 0 {
		c.Origin.IdleConnections = 100
	}
	if c.Origin.CircuitBreaker.FailureThreshold == 0 {
		c.Origin.CircuitBreaker.FailureThreshold = 5
	}
	if c.Origin.CircuitBreaker.OpenSeconds == 0 {
		c.Origin.CircuitBreaker.OpenSeconds = 30
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
// The file may carry a Vault token.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
