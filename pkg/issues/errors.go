package issues

import "fmt"

// AuthError means an upstream rejected the configured token.
type AuthError struct {
	Upstream string
	Status   int
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed (status %d): %s", e.Upstream, e.Status, e.Message)
}

// NotFoundError means a repository or issue could not be resolved,
// either because it does not exist or because the token cannot see it.
type NotFoundError struct {
	Upstream string
	Resource string
	Message  string
}

func (e *NotFoundError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s not found", e.Upstream, e.Resource)
	}
	return fmt.Sprintf("%s: %s not found: %s", e.Upstream, e.Resource, e.Message)
}

// UpstreamError covers any other non-2xx response or malformed payload.
type UpstreamError struct {
	Upstream string
	Status   int
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Upstream, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Upstream, msg)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StatusError maps an HTTP status to the error taxonomy. Callers only pass non-2xx statuses.
func StatusError(upstream, resource string, status int, message string) error {
	switch status {
	case 401:
		return &AuthError{Upstream: upstream, Status: status, Message: message}
	case 404:
		return &NotFoundError{Upstream: upstream, Resource: resource, Message: message}
	default:
		return &UpstreamError{Upstream: upstream, Status: status, Message: message}
	}
}
