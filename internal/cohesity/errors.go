package cohesity

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned when an API call is made before Authenticate.
var ErrNotAuthenticated = errors.New("cohesity: not authenticated")

// MalformedResponseError reports a response that lacks a field the report depends on.
type MalformedResponseError struct {
	Endpoint string
	Field    string
	Detail   string
}

func (e *MalformedResponseError) Error() string {
	msg := fmt.Sprintf("cohesity: malformed response from %s: field %q", e.Endpoint, e.Field)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func malformed(endpoint, field, detail string) error {
	return &MalformedResponseError{Endpoint: endpoint, Field: field, Detail: detail}
}

// APIError is a non-2xx answer from the cluster.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cohesity: %s %s failed with status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
