package handler

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"edge-auth-proxy/internal/model"
	"edge-auth-proxy/internal/service"
)

// EdgeHandler is the Lambda@Edge entry point.
type EdgeHandler struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewEdgeHandler creates an EdgeHandler.
func NewEdgeHandler(gw Gateway, logger *slog.Logger) *EdgeHandler {
	return &EdgeHandler{
		gateway: gw,
		logger:  logger.With("component", "edge_handler"),
	}
}

// Handle processes one viewer or origin request event. The returned error is
// always nil: every failure is expressed as a response.
func (h *EdgeHandler) Handle(ctx context.Context, event model.EdgeEvent) (*model.ProxyResponse, error) {
	rid := event.RequestID()
	if rid == "" {
		rid = uuid.NewString()
	}
	ctx = service.WithRequestID(ctx, rid)

	req, err := event.Request()
	if err != nil {
		h.logger.Error("invalid edge event", "request_id", rid, "err", err)
		return model.InternalServerError(), nil
	}
	return h.gateway.Handle(ctx, req), nil
}
