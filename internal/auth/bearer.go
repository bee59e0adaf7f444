// Package auth extracts and verifies bearer credentials issued by a Cognito
// user pool.
package auth

import (
	"errors"
	"strings"
)

const bearerPrefix = "Bearer "

var (
	// ErrMissingCredential is returned when no authorization value is present.
	ErrMissingCredential = errors.New("missing authorization header")
	// ErrMalformedCredential is returned when the authorization value is not a bearer credential.
	ErrMalformedCredential = errors.New("malformed authorization header")
)

// BearerToken returns the token carried by the first authorization value.
// The prefix match is case-sensitive and only the first value is considered.
func BearerToken(values []string) (string, error) {
	if len(values) == 0 {
		return "", ErrMissingCredential
	}
	v := values[0]
	if !strings.HasPrefix(v, bearerPrefix) {
		return "", ErrMalformedCredential
	}
	return strings.TrimPrefix(v, bearerPrefix), nil
}
