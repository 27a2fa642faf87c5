package openairealtime

import "fmt"

// Error represents an API error from OpenAI Realtime.
type Error struct {
	// Type is the error type (e.g., "invalid_request_error").
	Type string `json:"type,omitzero"`

	// Code is the error code (e.g., "invalid_value").
	Code string `json:"code,omitzero"`

	Message string `json:"message,omitzero"`
	Param   string `json:"param,omitzero"`

	// EventID is the ID of the client event that caused the error.
	EventID string `json:"event_id,omitzero"`

	// HTTPStatus is set when the WebSocket handshake was rejected.
	HTTPStatus int `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("openai-realtime: %s: %s", e.Code, e.Message)
	}
	if e.Type != "" {
		return fmt.Sprintf("openai-realtime: %s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("openai-realtime: %s", e.Message)
}

// DecodeError reports an inbound frame that could not be decoded.
// It does not end the event stream.
type DecodeError struct {
	// Type is the frame's type field, when it could be read.
	Type string
	Raw  []byte
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("openai-realtime: decode %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("openai-realtime: decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
