// Package client provides the HTTP client for the signed origin.
package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"edge-auth-proxy/internal/config"
	"edge-auth-proxy/internal/metrics"
	"edge-auth-proxy/internal/model"
)

// ErrBreakerOpen is returned when the circuit breaker rejects a call.
var ErrBreakerOpen = errors.New("origin circuit breaker open")

// OriginClient sends signed requests to the origin and buffers the response.
type OriginClient struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewOriginClient creates an OriginClient with connection pooling and a hard
// per-call timeout. The metrics parameter is optional; pass nil to disable
// origin metrics recording.
func NewOriginClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *OriginClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Origin.IdleConnections,
		MaxIdleConnsPerHost: cfg.Origin.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return newOriginClient(cfg, logger, m, &http.Client{Transport: transport})
}

// NewOriginClientForTest creates an OriginClient on top of hc, typically the
// client of an httptest TLS server. The configured timeout still applies.
func NewOriginClientForTest(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, hc *http.Client) *OriginClient {
	return newOriginClient(cfg, logger, m, &http.Client{Transport: hc.Transport})
}

func newOriginClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, hc *http.Client) *OriginClient {
	hc.Timeout = time.Duration(cfg.Origin.TimeoutSeconds) * time.Second
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	c := &OriginClient{
		httpClient: hc,
		logger:     logger.With("component", "origin_client"),
		metrics:    m,
	}

	if cb := cfg.Origin.CircuitBreaker; cb.Enabled {
		threshold := uint32(max(cb.FailureThreshold, 1))
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "origin",
			MaxRequests: 1,
			Timeout:     time.Duration(cb.OpenSeconds) * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
				if c.metrics != nil {
					c.metrics.BreakerTransition.WithLabelValues(from.String(), to.String()).Inc()
				}
			},
		})
	}

	return c
}

// Do executes req and reads the full response. Any HTTP status is returned as
// a response; only transport failures are errors.
func (c *OriginClient) Do(req *http.Request) (*model.OriginResponse, error) {
	if c.breaker == nil {
		return c.do(req)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrBreakerOpen, err)
		}
		return nil, err
	}
	return out.(*model.OriginResponse), nil
}

func (c *OriginClient) do(req *http.Request) (*model.OriginResponse, error) {
	c.logger.Debug("origin request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	method := metrics.NormalizeMethod(req.Method)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, "", start)
		return nil, fmt.Errorf("origin request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(method, "", start)
		return nil, fmt.Errorf("read origin response: %w", err)
	}

	c.observe(method, strconv.Itoa(resp.StatusCode), start)

	return &model.OriginResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *OriginClient) observe(method, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.OriginDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if status != "" {
		c.metrics.OriginResponses.WithLabelValues(method, status).Inc()
	}
}
