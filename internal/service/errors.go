package service

import (
	"errors"

	"edge-auth-proxy/internal/metrics"
	"edge-auth-proxy/internal/model"
)

// ErrorKind classifies a failed invocation.
type ErrorKind int

const (
	// KindMissingOrMalformedCredential means the request carried no usable bearer credential.
	KindMissingOrMalformedCredential ErrorKind = iota + 1
	// KindTokenVerificationFailed covers every verification failure, including
	// an unavailable parameter store or key set.
	KindTokenVerificationFailed
	// KindTransportFailure covers request building, signing and dispatch failures.
	KindTransportFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingOrMalformedCredential:
		return "missing_or_malformed_credential"
	case KindTokenVerificationFailed:
		return "token_verification_failed"
	case KindTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Error carries a kind together with its cause. The cause is for logs only.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err. Errors without a kind are transport failures.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransportFailure
}

// ResponseFor maps an error to the response shape sent back to the client.
// A nil error has no response of its own and yields nil.
func ResponseFor(err error) *model.ProxyResponse {
	if err == nil {
		return nil
	}
	switch KindOf(err) {
	case KindMissingOrMalformedCredential, KindTokenVerificationFailed:
		return model.Forbidden()
	default:
		return model.InternalServerError()
	}
}

func outcomeFor(err error) string {
	if err == nil {
		return metrics.OutcomeSucceeded
	}
	switch KindOf(err) {
	case KindMissingOrMalformedCredential:
		return metrics.OutcomeRejectedCredential
	case KindTokenVerificationFailed:
		return metrics.OutcomeRejectedToken
	default:
		return metrics.OutcomeFailedTransport
	}
}
