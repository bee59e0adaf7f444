// Package service implements the authenticate, sign and forward pipeline.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"edge-auth-proxy/internal/auth"
	"edge-auth-proxy/internal/metrics"
	"edge-auth-proxy/internal/model"
)

const tracerName = "edge-auth-proxy/internal/service"

// Gateway runs one invocation: extract the bearer credential, verify it,
// then forward the request. It always produces a response.
type Gateway struct {
	verifier  auth.Verifier
	forwarder *Forwarder
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// NewGateway creates a Gateway. The metrics parameter is optional.
func NewGateway(verifier auth.Verifier, forwarder *Forwarder, logger *slog.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		verifier:  verifier,
		forwarder: forwarder,
		logger:    logger.With("component", "gateway"),
		metrics:   m,
		tracer:    otel.Tracer(tracerName),
	}
}

// Handle processes req. Failures are folded into one of the fixed response
// shapes; panics become a 500.
func (g *Gateway) Handle(ctx context.Context, req *model.IncomingRequest) (resp *model.ProxyResponse) {
	ctx, span := g.tracer.Start(ctx, "gateway.handle", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	logger := g.logger
	if rid, ok := RequestIDFromContext(ctx); ok {
		logger = logger.With("request_id", rid)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling request", "panic", r, "stack", string(debug.Stack()))
			err := &Error{Kind: KindTransportFailure, Err: fmt.Errorf("panic: %v", r)}
			g.finish(span, err)
			resp = model.InternalServerError()
		}
	}()

	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URI),
	)

	payload, err := g.handle(ctx, req)
	g.finish(span, err)
	if err != nil {
		g.logFailure(logger, req, err)
		return ResponseFor(err)
	}

	logger.Debug("request forwarded", "method", req.Method, "uri", req.URI)
	return model.OK(payload)
}

func (g *Gateway) handle(ctx context.Context, req *model.IncomingRequest) (string, error) {
	token, err := auth.BearerToken(req.Header("authorization"))
	if err != nil {
		return "", &Error{Kind: KindMissingOrMalformedCredential, Err: err}
	}

	if err := g.verify(ctx, token); err != nil {
		return "", err
	}

	fctx, span := g.tracer.Start(ctx, "gateway.forward", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	payload, err := g.forwarder.Forward(fctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forward failed")
		return "", err
	}
	return payload, nil
}

func (g *Gateway) verify(ctx context.Context, token string) error {
	ctx, span := g.tracer.Start(ctx, "gateway.verify")
	defer span.End()

	id, err := g.verifier.Verify(ctx, token)
	if err != nil {
		span.SetStatus(codes.Error, "verification failed")
		return &Error{Kind: KindTokenVerificationFailed, Err: err}
	}
	if id != nil {
		span.SetAttributes(attribute.String("enduser.id", id.Subject))
	}
	return nil
}

func (g *Gateway) finish(span trace.Span, err error) {
	outcome := outcomeFor(err)
	span.SetAttributes(attribute.String("edge.outcome", outcome))
	if err != nil && KindOf(err) == KindTransportFailure {
		span.SetStatus(codes.Error, outcome)
	}
	if g.metrics != nil {
		g.metrics.Outcomes.WithLabelValues(outcome).Inc()
	}
}

func (g *Gateway) logFailure(logger *slog.Logger, req *model.IncomingRequest, err error) {
	switch KindOf(err) {
	case KindTransportFailure:
		logger.Error("forwarding failed", "method", req.Method, "uri", req.URI, "err", err)
	default:
		logger.Warn("request rejected", "method", req.Method, "uri", req.URI, "err", err)
	}
}
