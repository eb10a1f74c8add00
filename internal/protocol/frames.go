// Package protocol implements the framed JSON wire protocol of the
// impersonated gateway: request/response/event frames plus the initial
// connect envelope.
package protocol

import "encoding/json"

// Frame type discriminators.
const (
	TypeRequest  = "req"
	TypeResponse = "res"
	TypeEvent    = "event"
	TypeHelloOK  = "hello-ok"
)

// Error code vocabulary.
const (
	CodeInvalidRequest = "invalid_request"
	CodeUnauthorized   = "unauthorized"
	CodeNotFound       = "not_found"
	CodeMethodNotFound = "method_not_found"
	CodeInternalError  = "internal_error"
	CodeRateLimited    = "rate_limited"
)

// Request is an inbound method-call frame.
type Request struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers one Request, correlated by ID.
type Response struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Payload any    `json:"payload,omitempty"`
	Error   *Err   `json:"error,omitempty"`
}

// Event is a server-pushed notification. Seq increases per connection.
type Event struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
	Seq     int64  `json:"seq,omitempty"`
}

// Err is the wire error shape carried inside failed responses.
type Err struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	Retryable    bool   `json:"retryable,omitempty"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
}

// OKResponse builds a successful response frame for the given request id.
func OKResponse(id string, payload any) *Response {
	return &Response{Type: TypeResponse, ID: id, OK: true, Payload: payload}
}

// ErrResponse builds a failed response frame for the given request id.
func ErrResponse(id, code, message string) *Response {
	return &Response{Type: TypeResponse, ID: id, OK: false, Error: &Err{Code: code, Message: message}}
}

// NewEvent builds an event frame.
func NewEvent(name string, payload any, seq int64) *Event {
	return &Event{Type: TypeEvent, Event: name, Payload: payload, Seq: seq}
}

// ParseRequest parses raw as a request frame. It returns nil when raw is not
// valid JSON or not a request; callers log the frame as invalid and keep the
// socket open.
func ParseRequest(raw []byte) *Request {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil
	}
	if req.Type != TypeRequest || req.Method == "" {
		return nil
	}
	return &req
}

// FrameKind inspects raw and reports which frame shape it carries: "request",
// "response", "event", "connect" (a JSON object without a type field), or
// "invalid".
func FrameKind(raw []byte) string {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "invalid"
	}
	if head.Type == nil {
		// Object (or other JSON value) with no type field: only objects
		// qualify as connect envelopes.
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "invalid"
		}
		return "connect"
	}
	switch *head.Type {
	case TypeRequest:
		return "request"
	case TypeResponse:
		return "response"
	case TypeEvent:
		return "event"
	default:
		return "invalid"
	}
}
