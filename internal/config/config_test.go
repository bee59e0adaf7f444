package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to a config.toml in a fresh temp dir and returns its path.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
[identity]
region = "us-east-1"
`

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880

[identity]
region = "eu-west-1"
pool_id_parameter = "/auth/pool"
client_id_parameter = "/auth/client"
leeway_seconds = 30

[parameters]
backend = "vault"

[parameters.vault]
address = "https://vault.internal:8200"
mount = "kv"

[origin]
domain_name = "abc.lambda-url.eu-west-1.on.aws"
signing_region = "eu-west-1"
timeout_seconds = 3

[origin.circuit_breaker]
enabled = true
failure_threshold = 2

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Identity.PoolIDParameter != "/auth/pool" {
		t.Errorf("Identity.PoolIDParameter = %q, want %q", cfg.Identity.PoolIDParameter, "/auth/pool")
	}
	if cfg.Identity.IssuerBaseURL != "https://cognito-idp.eu-west-1.amazonaws.com" {
		t.Errorf("Identity.IssuerBaseURL = %q", cfg.Identity.IssuerBaseURL)
	}
	if cfg.Parameters.Backend != "vault" {
		t.Errorf("Parameters.Backend = %q, want %q", cfg.Parameters.Backend, "vault")
	}
	if cfg.Parameters.Vault.Mount != "kv" {
		t.Errorf("Parameters.Vault.Mount = %q, want %q", cfg.Parameters.Vault.Mount, "kv")
	}
	if cfg.Parameters.Region != "eu-west-1" {
		t.Errorf("Parameters.Region = %q, want identity region %q", cfg.Parameters.Region, "eu-west-1")
	}
	if cfg.Origin.TimeoutSeconds != 3 {
		t.Errorf("Origin.TimeoutSeconds = %d, want %d", cfg.Origin.TimeoutSeconds, 3)
	}
	if !cfg.Origin.CircuitBreaker.Enabled || cfg.Origin.CircuitBreaker.FailureThreshold != 2 {
		t.Errorf("Origin.CircuitBreaker = %+v, want enabled with threshold 2", cfg.Origin.CircuitBreaker)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(cliWithPath(writeConfig(t, minimalConfig)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Server.Host", cfg.Server.Host, "0.0.0.0"},
		{"Server.Port", cfg.Server.Port, 8000},
		{"Server.BodyMaxBytes", cfg.Server.BodyMaxBytes, int64(1024 * 1024)},
		{"Identity.IssuerBaseURL", cfg.Identity.IssuerBaseURL, "https://cognito-idp.us-east-1.amazonaws.com"},
		{"Identity.PoolIDParameter", cfg.Identity.PoolIDParameter, "/edge-auth-proxy/user-pool-id"},
		{"Identity.ClientIDParameter", cfg.Identity.ClientIDParameter, "/edge-auth-proxy/user-pool-client-id"},
		{"Identity.TokenUse", cfg.Identity.TokenUse, "id"},
		{"Identity.JWKSRefreshMinutes", cfg.Identity.JWKSRefreshMinutes, 15},
		{"Parameters.Backend", cfg.Parameters.Backend, "ssm"},
		{"Parameters.Vault.Field", cfg.Parameters.Vault.Field, "value"},
		{"Parameters.Redis.TTLSeconds", cfg.Parameters.Redis.TTLSeconds, 300},
		{"Origin.SigningService", cfg.Origin.SigningService, "lambda"},
		{"Origin.Credentials", cfg.Origin.Credentials, "env"},
		{"Origin.TimeoutSeconds", cfg.Origin.TimeoutSeconds, 5},
		{"Origin.CircuitBreaker.Enabled", cfg.Origin.CircuitBreaker.Enabled, false},
		{"Log.Level", cfg.Log.Level, "info"},
		{"Log.Format", cfg.Log.Format, "json"},
		{"Metrics.Path", cfg.Metrics.Path, "/metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("default %s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"missing region and issuer", `[log]
level = "info"`, "identity.region"},
		{"issuer not a URL scheme", `[identity]
issuer_base_url = "ftp://idp"`, "issuer_base_url"},
		{"invalid log level", minimalConfig + `
[log]
level = "verbose"`, "log.level"},
		{"invalid log format", minimalConfig + `
[log]
format = "xml"`, "log.format"},
		{"unknown backend", minimalConfig + `
[parameters]
backend = "etcd"`, "parameters.backend"},
		{"vault without address", minimalConfig + `
[parameters]
backend = "vault"`, "parameters.vault.address"},
		{"negative redis ttl", minimalConfig + `
[parameters.redis]
ttl_seconds = -1`, "ttl_seconds"},
		{"domain with path", minimalConfig + `
[origin]
domain_name = "example.com/path"`, "origin.domain_name"},
		{"unknown credentials source", minimalConfig + `
[origin]
credentials = "imds"`, "origin.credentials"},
		{"negative timeout", minimalConfig + `
[origin]
timeout_seconds = -5`, "timeout_seconds"},
		{"negative port", minimalConfig + `
[server]
port = -1`, "server.port"},
		{"negative body max bytes", minimalConfig + `
[server]
body_max_bytes = -1`, "body_max_bytes"},
		{"negative leeway", `[identity]
region = "us-east-1"
leeway_seconds = -1`, "leeway_seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_IssuerOverrideWithoutRegion(t *testing.T) {
	path := writeConfig(t, `
[identity]
issuer_base_url = "http://127.0.0.1:9999/"
`)
	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Identity.Issuer("pool-1"); got != "http://127.0.0.1:9999/pool-1" {
		t.Errorf("Issuer() = %q, want %q", got, "http://127.0.0.1:9999/pool-1")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[identity]
region = "us-east-1"

[origin]
domain_name = "toml.example.com"

[log]
level = "info"
`)

	cli := &CLI{
		Config:       path,
		Host:         "127.0.0.1",
		Port:         3000,
		OriginDomain: "cli.example.com",
		LogLevel:     "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Origin.DomainName != "cli.example.com" {
		t.Errorf("Origin.DomainName = %q, want %q (CLI override)", cfg.Origin.DomainName, "cli.example.com")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[server.rate_limit]
enabled = true
requests_per_second = 50.0
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 50.0 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50.0", cfg.Server.RateLimit.RequestsPerSecond)
	}
}

func TestLoad_RateLimitConfig_BadValue(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[server.rate_limit]
enabled = true
requests_per_second = 0
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for rate limit enabled with requests_per_second=0, got nil")
	}
	if !strings.Contains(err.Error(), "requests_per_second") {
		t.Errorf("error = %q, want mention of requests_per_second", err)
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := writeConfig(t, "# test")

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestFindConfigInPaths(t *testing.T) {
	first := writeConfig(t, minimalConfig)
	second := writeConfig(t, minimalConfig)

	if got := findConfigInPaths([]string{"/nonexistent/a.toml", second}); got != second {
		t.Errorf("findConfigInPaths() = %q, want %q", got, second)
	}
	if got := findConfigInPaths([]string{first, second}); got != first {
		t.Errorf("findConfigInPaths() = %q, want first match %q", got, first)
	}
	if got := findConfigInPaths([]string{"/nonexistent/a.toml", "/nonexistent/b.toml"}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestLoad_MetricsPath(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		path    string
		wantErr string
	}{
		{"custom path", true, "/custom-metrics", ""},
		{"no leading slash", true, "metrics", "metrics.path"},
		{"healthz", true, "/healthz", "conflicts"},
		{"proxy/status", true, "/proxy/status", "conflicts"},
		{"proxy/status sub", true, "/proxy/status/metrics", "conflicts"},
		{"disabled skips validation", false, "bad-no-slash", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := "false"
			if tt.enabled {
				enabled = "true"
			}
			path := writeConfig(t, minimalConfig+`
[metrics]
enabled = `+enabled+`
path = "`+tt.path+`"
`)
			cfg, err := Load(cliWithPath(path))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Load() error = %v", err)
				}
				if cfg.Metrics.Path != tt.path {
					t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, tt.path)
				}
				return
			}
			if err == nil {
				t.Fatalf("Load() expected error for metrics.path=%q, got nil", tt.path)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
