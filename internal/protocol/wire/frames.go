// Package wire defines the JSON frame types exchanged with the gateway over
// the persistent WebSocket connection.
//
// Every frame carries a "type" discriminator: "req" (outbound request),
// "res" (inbound response) or "event" (inbound notification). Frames that do
// not decode, or decode to an unknown type, are dropped by the session rather
// than escalated; the gateway side is allowed to be noisy.
package wire

import (
	"encoding/json"
	"errors"
)

// Frame type discriminators.
const (
	TypeRequest  = "req"
	TypeResponse = "res"
	TypeEvent    = "event"
)

// Gateway events recognized by the session.
const (
	// EventChallenge is emitted by the gateway during the handshake when it
	// wants a nonce-bound (v2) connect payload before answering.
	EventChallenge = "connect.challenge"
	// EventTick is the periodic liveness signal emitted while connected.
	EventTick = "tick"
)

// MethodConnect is the handshake request method.
const MethodConnect = "connect"

// Request is an outbound RPC frame.
type Request struct {
	// Type is always TypeRequest.
	Type string `json:"type"`
	// ID correlates the eventual response; unique per in-flight call.
	ID string `json:"id"`
	// Method is the operation name (e.g. "connect", "status").
	Method string `json:"method"`
	// Params is the method-specific payload.
	Params interface{} `json:"params"`
}

// ErrorBody carries a server-supplied failure message on a response.
type ErrorBody struct {
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Response is an inbound frame answering a Request with the same ID.
type Response struct {
	// Type is always TypeResponse.
	Type string `json:"type"`
	// ID matches the originating request id.
	ID string `json:"id"`
	// OK reports whether the call succeeded.
	OK bool `json:"ok"`
	// Payload is the result when OK is true.
	Payload json.RawMessage `json:"payload,omitempty"`
	// Error is set when OK is false.
	Error *ErrorBody `json:"error,omitempty"`
}

// ErrorMessage returns the server error message, or a generic fallback when
// the gateway omitted one.
func (r *Response) ErrorMessage() string {
	if r.Error != nil && r.Error.Message != "" {
		return r.Error.Message
	}
	return "request failed"
}

// Event is an inbound notification frame; it is not correlated to a request.
type Event struct {
	// Type is always TypeEvent.
	Type string `json:"type"`
	// Event is the event name (e.g. "tick", "connect.challenge").
	Event string `json:"event"`
	// Payload is the event-specific body.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChallengePayload is the body of a "connect.challenge" event.
type ChallengePayload struct {
	// Nonce must be echoed inside the signed v2 connect payload.
	Nonce string `json:"nonce"`
}

// Inbound is a decoded inbound frame: exactly one of Response or Event is
// non-nil.
type Inbound struct {
	Response *Response
	Event    *Event
}

var errUnknownFrame = errors.New("unknown frame type")

// DecodeInbound parses one inbound frame. It returns an error for non-JSON
// input, frames without a known "type", or frames missing their required
// discriminating fields; callers are expected to drop such frames.
func DecodeInbound(data []byte) (Inbound, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Inbound{}, err
	}
	switch head.Type {
	case TypeResponse:
		var res Response
		if err := json.Unmarshal(data, &res); err != nil {
			return Inbound{}, err
		}
		if res.ID == "" {
			return Inbound{}, errors.New("response frame without id")
		}
		return Inbound{Response: &res}, nil
	case TypeEvent:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return Inbound{}, err
		}
		if ev.Event == "" {
			return Inbound{}, errors.New("event frame without name")
		}
		return Inbound{Event: &ev}, nil
	default:
		return Inbound{}, errUnknownFrame
	}
}
