package clinicapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// NetworkError means no response reached the client: DNS, connection refused,
// or the call's timeout expired.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("clinicapi: %s: backend did not respond in time", e.Op)
	}
	return fmt.Sprintf("clinicapi: %s: backend unreachable: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time rather than failing to connect.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// ServerError is a 5xx answer, or a 2xx answer whose body could not be decoded.
type ServerError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("clinicapi: %s: backend error %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("clinicapi: %s: backend error %d", e.Op, e.StatusCode)
}

func (e *ServerError) Unwrap() error { return e.Err }

// ValidationError is a 4xx answer. Detail carries the backend's message verbatim.
type ValidationError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("clinicapi: %s: request rejected: %s", e.Op, http.StatusText(e.StatusCode))
}

// IsRetryable reports whether a user-initiated retry can reasonably succeed.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	var srvErr *ServerError
	return errors.As(err, &netErr) || errors.As(err, &srvErr)
}

// ErrorMessage returns the human-readable reason for err: the backend detail
// when present, else the error text, else fallback.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) && valErr.Detail != "" {
		return valErr.Detail
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) && srvErr.Detail != "" {
		return srvErr.Detail
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// parseDetail extracts FastAPI's "detail" field, which is either a string or
// a list of {"msg": ...} validation entries.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return text
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
