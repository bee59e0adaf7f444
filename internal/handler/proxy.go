package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"edge-auth-proxy/internal/model"
	"edge-auth-proxy/internal/service"
)

// Gateway runs the authenticate, sign and forward pipeline for one request.
type Gateway interface {
	Handle(ctx context.Context, req *model.IncomingRequest) *model.ProxyResponse
}

// ProxyHandler adapts plain HTTP requests to the gateway in server mode.
type ProxyHandler struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(gw Gateway, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		gateway: gw,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle runs the gateway and writes its response. The origin domain always
// comes from configuration in this mode.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	in, err := toIncoming(req)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return echo.ErrStatusRequestEntityTooLarge
		}
		h.logger.Warn("reading request body", "err", err, "path", req.URL.Path)
		return echo.ErrBadRequest
	}

	ctx := service.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
	resp := h.gateway.Handle(ctx, in)
	return writeResponse(c, resp)
}

func toIncoming(req *http.Request) (*model.IncomingRequest, error) {
	headers := make(map[string][]string, len(req.Header))
	for k, v := range req.Header {
		headers[strings.ToLower(k)] = v
	}

	in := &model.IncomingRequest{
		Method:      req.Method,
		URI:         req.URL.EscapedPath(),
		Querystring: req.URL.RawQuery,
		Headers:     headers,
	}

	if req.Body == nil || req.Body == http.NoBody {
		return in, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		in.Body = &model.Body{
			Data:     base64.StdEncoding.EncodeToString(data),
			Encoding: model.EncodingBase64,
		}
	}
	return in, nil
}

func writeResponse(c echo.Context, resp *model.ProxyResponse) error {
	status, err := strconv.Atoi(resp.Status)
	if err != nil {
		status = http.StatusInternalServerError
	}
	if status == http.StatusOK {
		return c.Blob(status, echo.MIMEApplicationJSON, []byte(resp.Body))
	}
	return c.String(status, resp.Body)
}
