package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrClientClosed is returned by every operation attempted after Close.
// Calling a closed client is a programming error, not a transient condition.
var ErrClientClosed = errors.New("mcp: client is closed")

// ConfigError reports a missing or invalid client setting. It is fatal:
// the condition cannot resolve itself without a configuration change.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "mcp: configuration error: " + e.Reason
}

// TransportError reports an HTTP-level failure: a connection error or a
// non-2xx status from the server. Status is zero when the request never
// produced a response.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mcp: transport error: %v", e.Err)
	}
	return fmt.Sprintf("mcp: server returned HTTP %d: %s", e.Status, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports that a call exceeded the client's per-call timeout.
type TimeoutError struct {
	Method  string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mcp: %s timed out after %s", e.Method, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// RemoteError is a JSON-RPC error descriptor returned by the server.
// The client never retries these: the failure may be semantic (an unknown
// tool name, invalid arguments) rather than transient.
type RemoteError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("mcp: server error %d: %s", e.Code, e.Message)
}
