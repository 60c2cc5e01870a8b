package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an API failure.
type Kind string

const (
	NetworkFailure    Kind = "network"
	Timeout           Kind = "timeout"
	Unauthenticated   Kind = "unauthenticated"
	ValidationFailure Kind = "validation"
	ServerFailure     Kind = "server"
)

// APIError is returned by every Client call that does not succeed.
type APIError struct {
	Kind    Kind
	Status  int    // HTTP status, 0 for transport failures
	Message string // backend-supplied message when available
	Body    []byte
	// SessionCleared is set when the client dropped the stored session
	// because the access token could not be renewed.
	SessionCleared bool
	Err            error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// kindForStatus maps a non-2xx status onto the error taxonomy.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return Unauthenticated
	case status >= 500:
		return ServerFailure
	default:
		return ValidationFailure
	}
}

func newStatusError(status int, body []byte) *APIError {
	return &APIError{
		Kind:    kindForStatus(status),
		Status:  status,
		Message: extractMessage(body, status),
		Body:    body,
	}
}

func newTransportError(err error) *APIError {
	kind := NetworkFailure
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = Timeout
	}
	return &APIError{Kind: kind, Err: err}
}

// extractMessage pulls a human-readable message out of an error body.
// It understands {"detail": ...}, {"error": true, "message": ...} and
// field error maps such as {"username": ["required"]}.
func extractMessage(body []byte, status int) string {
	var payload map[string]any
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return http.StatusText(status)
	}
	for _, key := range []string{"detail", "message", "error_description", "error"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	// The error envelope may carry a field map in "message".
	if m, ok := payload["message"].(map[string]any); ok {
		payload = m
	}
	var fields []string
	for field, v := range payload {
		if field == "error" || field == "code" {
			continue
		}
		switch val := v.(type) {
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			fields = append(fields, fmt.Sprintf("%s: %s", field, strings.Join(parts, ", ")))
		case string:
			fields = append(fields, fmt.Sprintf("%s: %s", field, val))
		}
	}
	if len(fields) == 0 {
		return http.StatusText(status)
	}
	sort.Strings(fields)
	return strings.Join(fields, "; ")
}
