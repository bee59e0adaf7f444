package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"edge-auth-proxy/internal/config"
	"edge-auth-proxy/internal/model"
)

// ErrNoOriginDomain is returned when neither the request nor the config names an origin.
var ErrNoOriginDomain = errors.New("no origin domain")

// Dispatcher sends a prepared request to the origin.
type Dispatcher interface {
	Do(req *http.Request) (*model.OriginResponse, error)
}

// RequestSigner adds authorization to an outbound request.
type RequestSigner interface {
	Sign(ctx context.Context, req *http.Request, body []byte) error
}

// Forwarder rebuilds a verified request, signs it and sends it to the origin.
type Forwarder struct {
	client        Dispatcher
	signer        RequestSigner
	defaultDomain string
	logger        *slog.Logger
}

// NewForwarder creates a Forwarder. origin.domain_name is used for requests
// that carry no origin domain of their own.
func NewForwarder(client Dispatcher, signer RequestSigner, cfg *config.Config, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client:        client,
		signer:        signer,
		defaultDomain: cfg.Origin.DomainName,
		logger:        logger.With("component", "forwarder"),
	}
}

// Forward sends req to the origin and returns the origin payload serialized
// as JSON. Every failure is a transport failure.
func (f *Forwarder) Forward(ctx context.Context, req *model.IncomingRequest) (string, error) {
	httpReq, body, err := f.buildRequest(ctx, req)
	if err != nil {
		return "", &Error{Kind: KindTransportFailure, Err: err}
	}

	if err := f.signer.Sign(ctx, httpReq, body); err != nil {
		return "", &Error{Kind: KindTransportFailure, Err: err}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return "", &Error{Kind: KindTransportFailure, Err: err}
	}

	f.logger.Debug("origin responded",
		"status", resp.StatusCode,
		"bytes", len(resp.Body),
	)

	payload, err := encodePayload(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindTransportFailure, Err: err}
	}
	return payload, nil
}

// buildRequest returns the outbound request and the exact body bytes it
// carries. Only content-type is copied from the inbound headers; host and
// content-length follow from the target URL and body.
func (f *Forwarder) buildRequest(ctx context.Context, req *model.IncomingRequest) (*http.Request, []byte, error) {
	target, err := f.targetURL(req)
	if err != nil {
		return nil, nil, err
	}

	var body []byte
	if req.Body != nil {
		decoded, err := req.Body.Decode()
		if err != nil {
			return nil, nil, err
		}
		if decoded != "" {
			body = []byte(decoded)
		}
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, nil, fmt.Errorf("build origin request: %w", err)
	}
	if ct := req.Header("content-type"); len(ct) > 0 {
		httpReq.Header.Set("Content-Type", ct[0])
	}
	return httpReq, body, nil
}

func (f *Forwarder) targetURL(req *model.IncomingRequest) (string, error) {
	domain := req.OriginDomain
	if domain == "" {
		domain = f.defaultDomain
	}
	if domain == "" {
		return "", ErrNoOriginDomain
	}

	uri := req.URI
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}

	target := "https://" + domain + uri
	if req.Querystring != "" {
		target += "?" + req.Querystring
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse origin url: %w", err)
	}
	if u.Host != domain {
		return "", fmt.Errorf("origin url host %q does not match domain %q", u.Host, domain)
	}
	return target, nil
}

// encodePayload serializes the origin body as JSON. A body that already is
// JSON is compacted; anything else becomes a JSON string.
func encodePayload(body []byte) (string, error) {
	if len(body) > 0 && json.Valid(body) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, body); err != nil {
			return "", fmt.Errorf("compact origin payload: %w", err)
		}
		return buf.String(), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(strings.ToValidUTF8(string(body), "�")); err != nil {
		return "", fmt.Errorf("encode origin payload: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
