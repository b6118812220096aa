package services

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// The AI service reports failures as free-text messages; the rest of the
// system must never dispatch on substrings. This file is the single place
// where raw collaborator errors are mapped to a closed set of kinds.
// ---------------------------------------------------------------------------

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindValidation: bad input caught before any network call.
	KindValidation Kind = "validation"
	// KindCredentialMissing: no credential selected for a privileged call.
	KindCredentialMissing Kind = "credential_missing"
	// KindNotFound: the service rejected the credential ("Requested entity
	// was not found" / "API key not valid").
	KindNotFound Kind = "not_found"
	// KindQuota: rate limit or quota exhausted.
	KindQuota Kind = "quota"
	// KindContentFiltered: the job completed but delivered nothing, most
	// likely blocked by safety filters.
	KindContentFiltered Kind = "content_filtered"
	// KindDownload: the job succeeded but fetching the binary failed.
	KindDownload Kind = "download"
	// KindTransport: everything else (network, 5xx, malformed response).
	KindTransport Kind = "transport"
)

// Error is a classified service failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error wrapping an underlying cause.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation builds a validation error with no underlying cause.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain, classifying by message
// signature when the error was never wrapped.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return classify(err)
}

// IsCredential reports whether the kind must invalidate the session's
// credential-selected flag and prompt reselection.
func IsCredential(kind Kind) bool {
	return kind == KindNotFound || kind == KindQuota || kind == KindCredentialMissing
}

// Known failure-message signatures from the AI service. Collaborator
// specific and subject to change; keep them here and nowhere else.
const (
	sigEntityNotFound  = "Requested entity was not found"
	sigAPIKeyInvalid   = "API key not valid"
	sigQuotaExhausted  = "RESOURCE_EXHAUSTED"
	sigTooManyRequests = "429"
)

// classify maps a raw collaborator error to a Kind by message signature.
func classify(err error) Kind {
	if err == nil {
		return KindTransport
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, sigEntityNotFound), strings.Contains(msg, sigAPIKeyInvalid):
		return KindNotFound
	case strings.Contains(msg, sigQuotaExhausted), strings.Contains(msg, sigTooManyRequests):
		return KindQuota
	default:
		return KindTransport
	}
}

// Classify wraps a raw collaborator error with its detected kind, keeping
// the original message reachable via Unwrap.
func Classify(message string, err error) *Error {
	return &Error{Kind: classify(err), Message: message, Err: err}
}
