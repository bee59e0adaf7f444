package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"edge-auth-proxy/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information. Parameter names and secrets are
// not included.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":            "ok",
		"version":           string(h.version),
		"origin_domain":     h.cfg.Origin.DomainName,
		"signing_service":   h.cfg.Origin.SigningService,
		"parameter_backend": h.cfg.Parameters.Backend,
		"token_use":         h.cfg.Identity.TokenUse,
	})
}
