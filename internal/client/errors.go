package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind separates failures that never reached the backend from
// responses the backend rejected.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindStatus    ErrorKind = "status"
	KindDecode    ErrorKind = "decode"
)

const fallbackMessage = "Request failed"

// APIError is the single error shape surfaced by CastOSClient
type APIError struct {
	Kind   ErrorKind
	Method string
	Path   string
	Status int    // 0 for transport failures
	Detail string // server-supplied detail, if any
	Err    error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindTransport:
		return fmt.Sprintf("castos %s %s: transport error: %v", e.Method, e.Path, e.Err)
	case KindDecode:
		return fmt.Sprintf("castos %s %s: invalid response: %v", e.Method, e.Path, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("castos %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("castos %s %s: status %d", e.Method, e.Path, e.Status)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Message is the human-readable text for the rendering layer
func (e *APIError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fallbackMessage
}

// IsTransport reports whether the request never produced an HTTP response
func (e *APIError) IsTransport() bool {
	return e.Kind == KindTransport
}

func (e *APIError) IsUnauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

func (e *APIError) IsNotFound() bool {
	return e.Status == http.StatusNotFound
}

// AsAPIError unwraps err into an *APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ErrorMessage returns the user-facing message for any error returned by the client
func ErrorMessage(err error) string {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Message()
	}
	return fallbackMessage
}

// extractDetail pulls FastAPI's "detail" field out of an error body. Detail is
// either a string or a list of validation entries carrying "msg".
func extractDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var entries []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &entries); err == nil {
		msgs := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.Msg != "" {
				msgs = append(msgs, entry.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return ""
}
