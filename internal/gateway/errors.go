package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Invoke when no transport is open.
	ErrNotConnected = errors.New("not connected")
	// ErrHandshakeIncomplete is returned by Invoke when the transport is open
	// but the connect handshake has not been confirmed yet.
	ErrHandshakeIncomplete = errors.New("handshake incomplete")
	// ErrDisconnected rejects pending requests when the connection drops.
	ErrDisconnected = errors.New("connection closed")
	// ErrSessionStopped is returned once Stop has been called.
	ErrSessionStopped = errors.New("session stopped")
)

// TimeoutError reports that no response arrived for a request before its
// deadline. The server-side work is not cancelled; the timeout is
// fire-and-forget.
type TimeoutError struct {
	// Method is the request method that timed out.
	Method string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %q timed out", e.Method)
}

// RemoteError carries a gateway-supplied failure (ok:false response).
type RemoteError struct {
	// Method is the request method that failed.
	Method string
	// Message is the server-supplied error message.
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}
