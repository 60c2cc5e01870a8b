package clierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/habedi/uniboard/client"
)

// Type categorizes a CLI-facing error for consistent messaging & exit codes.
type Type string

const (
	Validation Type = "validation"
	Auth       Type = "auth"
	NotFound   Type = "not_found"
	Network    Type = "network"
	Server     Type = "server"
	Internal   Type = "internal"
)

// Error is a structured user-facing error.
type Error struct {
	Type    Type
	Message string
	Err     error // optional underlying error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// New constructs a new CLI Error.
func New(t Type, msg string, err error) *Error { return &Error{Type: t, Message: msg, Err: err} }

// SessionExpiredMessage is shown when the stored session could not be renewed.
const SessionExpiredMessage = "Session expired. Run `uniboard login`."

// FromAPI turns an error returned by the API client into a CLI Error.
// action describes what was attempted, e.g. "fetch KPI data".
func FromAPI(action string, err error) *Error {
	if err == nil {
		return nil
	}
	var cliErr *Error
	if errors.As(err, &cliErr) {
		return cliErr
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return New(Internal, fmt.Sprintf("failed to %s: %v", action, err), err)
	}
	switch apiErr.Kind {
	case client.Unauthenticated:
		if apiErr.SessionCleared {
			return New(Auth, SessionExpiredMessage, err)
		}
		return New(Auth, fmt.Sprintf("failed to %s: %s", action, describe(apiErr)), err)
	case client.ValidationFailure:
		if apiErr.Status == http.StatusNotFound {
			return New(NotFound, fmt.Sprintf("failed to %s: %s", action, describe(apiErr)), err)
		}
		return New(Validation, fmt.Sprintf("failed to %s: %s", action, describe(apiErr)), err)
	case client.NetworkFailure:
		return New(Network, fmt.Sprintf("failed to %s: cannot reach the API: %v", action, apiErr.Err), err)
	case client.Timeout:
		return New(Network, fmt.Sprintf("failed to %s: request timed out", action), err)
	case client.ServerFailure:
		return New(Server, fmt.Sprintf("failed to %s: server error: %s", action, describe(apiErr)), err)
	default:
		return New(Internal, fmt.Sprintf("failed to %s: %v", action, err), err)
	}
}

func describe(e *client.APIError) string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Status)
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cliErr *Error
	if !errors.As(err, &cliErr) {
		return 1
	}
	switch cliErr.Type {
	case Validation:
		return 2
	case Auth:
		return 3
	case NotFound:
		return 4
	case Network:
		return 5
	case Server:
		return 6
	default:
		return 1
	}
}
