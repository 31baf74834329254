package api

import "fmt"

// Error is returned for any non-2xx API response. It carries the status code
// and the raw response body so callers can map platform error codes.
type Error struct {
	StatusCode int
	Body       string
	RequestID  string
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("HTTP %d: %s (request id: %s)", e.StatusCode, e.Body, e.RequestID)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// NotJSONError is returned when a successful response body is not valid JSON.
type NotJSONError struct {
	Body string
}

func (e *NotJSONError) Error() string {
	return fmt.Sprintf("expected JSON response but got: %s", e.Body)
}
