// Package model defines shared types for the proxy.
package model

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// Body encodings accepted on inbound requests.
const (
	EncodingIdentity = "identity"
	EncodingBase64   = "base64"
)

// IncomingRequest is a client request as received from the edge runtime.
// Header names are lower-cased; values keep their original order.
type IncomingRequest struct {
	Method       string
	URI          string
	Querystring  string
	Headers      map[string][]string
	OriginDomain string
	Body         *Body
}

// Header returns all values of the named header. The name is matched lower-cased.
func (r *IncomingRequest) Header(name string) []string {
	if r == nil || r.Headers == nil {
		return nil
	}
	return r.Headers[strings.ToLower(name)]
}

// Body is an inbound request body together with its transfer encoding.
type Body struct {
	Data     string
	Encoding string
}

// Decode returns the body as a UTF-8 string. Invalid UTF-8 sequences are
// replaced with U+FFFD.
func (b *Body) Decode() (string, error) {
	var raw string
	switch b.Encoding {
	case EncodingIdentity, "":
		raw = b.Data
	case EncodingBase64:
		decoded, err := base64.StdEncoding.DecodeString(b.Data)
		if err != nil {
			return "", fmt.Errorf("decode base64 body: %w", err)
		}
		raw = string(decoded)
	default:
		return "", fmt.Errorf("unsupported body encoding %q", b.Encoding)
	}
	if !utf8.ValidString(raw) {
		raw = strings.ToValidUTF8(raw, "�")
	}
	return raw, nil
}

// ProviderConfig identifies the user pool and app client tokens are issued for.
type ProviderConfig struct {
	PoolID   string
	ClientID string
}

// Identity is the result of a successful token verification.
type Identity struct {
	Subject   string
	Username  string
	Email     string
	Issuer    string
	ExpiresAt time.Time
}

// OriginResponse is a fully read response from the origin.
type OriginResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ProxyResponse is the response handed back to the edge runtime. Every
// invocation produces exactly one.
type ProxyResponse struct {
	Status            string `json:"status"`
	StatusDescription string `json:"statusDescription"`
	Body              string `json:"body"`
}

// OK wraps a serialized origin payload.
func OK(body string) *ProxyResponse {
	return &ProxyResponse{Status: "200", StatusDescription: "OK", Body: body}
}

// Forbidden is returned for every authentication failure, whatever the cause.
func Forbidden() *ProxyResponse {
	return &ProxyResponse{Status: "403", StatusDescription: "Forbidden", Body: "Unauthorized"}
}

// InternalServerError is returned for every forwarding failure.
func InternalServerError() *ProxyResponse {
	return &ProxyResponse{
		Status:            "500",
		StatusDescription: "Internal Server Error",
		Body:              "Internal Server Error",
	}
}
