package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"edge-auth-proxy/internal/config"
	"edge-auth-proxy/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(timeout int) *config.Config {
	return &config.Config{
		Origin: config.OriginConfig{
			TimeoutSeconds:  timeout,
			IdleConnections: 10,
		},
	}
}

func newRequest(t *testing.T, ctx context.Context, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return req
}

func TestOriginClient_Do(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	m := metrics.New()
	c := NewOriginClientForTest(testConfig(5), testLogger(), m, srv.Client())

	resp, err := c.Do(newRequest(t, context.Background(), srv.URL+"/test"))
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if string(resp.Body) != `{"status":"ok"}` {
		t.Errorf("body = %q, want %q", string(resp.Body), `{"status":"ok"}`)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := testutil.ToFloat64(m.OriginResponses.WithLabelValues("GET", "200")); got != 1 {
		t.Errorf("origin responses = %v, want 1", got)
	}
}

func TestOriginClient_Do_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream broke"))
	}))
	defer srv.Close()

	c := NewOriginClientForTest(testConfig(5), testLogger(), nil, srv.Client())

	resp, err := c.Do(newRequest(t, context.Background(), srv.URL))
	if err != nil {
		t.Fatalf("Do() error = %v, want response", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
}

func TestOriginClient_Do_NoRedirects(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/moved" {
			_, _ = w.Write([]byte("followed"))
			return
		}
		http.Redirect(w, r, "/moved", http.StatusFound)
	}))
	defer srv.Close()

	c := NewOriginClientForTest(testConfig(5), testLogger(), nil, srv.Client())

	resp, err := c.Do(newRequest(t, context.Background(), srv.URL+"/start"))
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusFound)
	}
}

func TestOriginClient_Do_Error(t *testing.T) {
	c := NewOriginClient(testConfig(1), testLogger(), nil)

	_, err := c.Do(newRequest(t, context.Background(), "https://127.0.0.1:1/nonexistent"))
	if err == nil {
		t.Fatal("Do() expected error for unreachable host, got nil")
	}
}

func TestOriginClient_Do_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewOriginClientForTest(testConfig(1), testLogger(), nil, srv.Client())

	start := time.Now()
	_, err := c.Do(newRequest(t, context.Background(), srv.URL+"/slow"))
	if err == nil {
		t.Fatal("Do() expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Do() took %v, want about 1s", elapsed)
	}
}

func TestOriginClient_Do_CanceledContext(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewOriginClientForTest(testConfig(30), testLogger(), nil, srv.Client())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(newRequest(t, ctx, srv.URL+"/slow"))
	if err == nil {
		t.Fatal("Do() expected error for canceled context, got nil")
	}
}

func TestOriginClient_CircuitBreaker(t *testing.T) {
	cfg := testConfig(1)
	cfg.Origin.CircuitBreaker = config.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		OpenSeconds:      60,
	}
	m := metrics.New()
	c := NewOriginClient(cfg, testLogger(), m)

	for i := 0; i < 2; i++ {
		_, err := c.Do(newRequest(t, context.Background(), "https://127.0.0.1:1/"))
		if err == nil {
			t.Fatalf("call %d: expected transport error", i)
		}
		if errors.Is(err, ErrBreakerOpen) {
			t.Fatalf("call %d: breaker opened too early", i)
		}
	}

	_, err := c.Do(newRequest(t, context.Background(), "https://127.0.0.1:1/"))
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
	if got := testutil.ToFloat64(m.BreakerTransition.WithLabelValues("closed", "open")); got != 1 {
		t.Errorf("breaker transitions closed->open = %v, want 1", got)
	}
}
