// Package genai is the boundary to generative media vendors: collaborator
// interfaces, the Gemini implementation, error classification and retry.
package genai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	googleai "google.golang.org/genai"
)

// ErrorKind classifies vendor failures for retry decisions.
type ErrorKind string

const (
	KindUnknown     ErrorKind = "unknown"
	KindRateLimited ErrorKind = "rate_limited"
	KindForbidden   ErrorKind = "forbidden"
)

// Error is a classified vendor failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRateLimited:
		return fmt.Sprintf("%s: rate limited: %v", e.Op, e.Err)
	case KindForbidden:
		return fmt.Sprintf("%s: permission denied (check the API key and model access): %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Classify wraps err into an *Error. SDK status codes win over message
// matching. An already classified error is returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Kind: kindOf(err), Op: op, Err: err}
}

// KindOf returns the kind of a classified error, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRateLimited reports whether err was classified as a rate-limit failure.
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}

func kindOf(err error) ErrorKind {
	if code, status, ok := apiStatus(err); ok {
		switch {
		case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
			return KindRateLimited
		case code == http.StatusForbidden || status == "PERMISSION_DENIED":
			return KindForbidden
		}
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, "429", "resource_exhausted", "resource exhausted", "rate limit", "rate-limit", "ratelimit", "too many requests", "quota") {
		return KindRateLimited
	}
	if containsAny(msg, "403", "permission_denied", "permission denied", "forbidden") {
		return KindForbidden
	}
	return KindUnknown
}

func apiStatus(err error) (int, string, bool) {
	var apiErr googleai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status, true
	}
	var apiErrPtr *googleai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Status, true
	}
	return 0, "", false
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
