// Package apierr defines the error taxonomy for the remote API.
package apierr

import (
	"fmt"
	"net/http"
)

// Kind classifies an API failure for callers that branch on failure class
// rather than on raw status codes.
type Kind string

const (
	// KindRequest covers 4xx responses caused by the request itself
	// (bad query syntax, unknown parameters).
	KindRequest Kind = "request"
	// KindPermission covers 401/403 and 404s on plan-restricted resources.
	KindPermission Kind = "permission"
	// KindNotFound covers plain 404s.
	KindNotFound Kind = "not_found"
	// KindTransient covers 429 and 5xx responses worth retrying later.
	KindTransient Kind = "transient"
	// KindPlanRestricted marks resources the tenant's plan does not expose,
	// e.g. audit logs on lower tiers.
	KindPlanRestricted Kind = "plan_restricted"
)

// APIError represents an error response from the remote API.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Kind       Kind   `json:"kind"`
	// RetryAfter is the server-suggested wait in seconds, set for 429s.
	RetryAfter int `json:"retry_after,omitempty"`
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
	}
	return "api error: " + e.Message
}

// New creates an APIError with the kind derived from the status code.
func New(statusCode int, message string) *APIError {
	return &APIError{StatusCode: statusCode, Message: message, Kind: KindFor(statusCode)}
}

// KindFor maps an HTTP status code to its failure class.
func KindFor(statusCode int) Kind {
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return KindPermission
	case statusCode == http.StatusNotFound:
		return KindNotFound
	case statusCode == http.StatusTooManyRequests, statusCode >= 500:
		return KindTransient
	default:
		return KindRequest
	}
}

// IsNotFound reports whether err is a 404 API error.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// IsRateLimited reports whether err is a 429 API error.
func IsRateLimited(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusTooManyRequests
}

// IsPermission reports whether err is a 401/403 or plan-restriction error.
func IsPermission(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && (apiErr.Kind == KindPermission || apiErr.Kind == KindPlanRestricted)
}

// IsPlanRestricted reports whether err marks a resource unavailable on the
// tenant's plan.
func IsPlanRestricted(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Kind == KindPlanRestricted
}

// NetworkError wraps a transport-level failure (DNS, TLS, timeout) that
// never produced an HTTP response.
type NetworkError struct {
	Operation string
	URL       string
	Err       error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s to %s: %v", e.Operation, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidationError is raised before any network call when input is malformed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err was rejected before reaching the network.
func IsValidation(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}
