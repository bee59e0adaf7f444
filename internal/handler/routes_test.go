package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"edge-auth-proxy/internal/config"
	"edge-auth-proxy/internal/model"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	gw := &recordingGateway{resp: model.Forbidden()}
	proxy := NewProxyHandler(gw, testLogger())
	health := NewHealthHandler(&config.Config{}, "test")

	e := echo.New()
	RegisterRoutes(e, proxy, health)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /proxy/status", http.MethodGet, "/proxy/status", http.StatusOK},
		{"GET /", http.MethodGet, "/", http.StatusForbidden},
		{"GET nested path", http.MethodGet, "/api/v1/items?x=1", http.StatusForbidden},
		{"POST nested path", http.MethodPost, "/api/v1/items", http.StatusForbidden},
		{"DELETE nested path", http.MethodDelete, "/api/v1/items/7", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
