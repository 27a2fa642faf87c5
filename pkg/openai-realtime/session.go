package openairealtime

import "iter"

// Session is a live Realtime conversation. Send methods are safe for
// concurrent use; Events must have a single consumer.
type Session interface {
	// UpdateSession sends a session.update frame.
	UpdateSession(config *SessionConfig) error

	// AddUserAudio adds a user message carrying PCM16 audio (24 kHz, mono,
	// little-endian). The audio is base64 encoded before sending.
	AddUserAudio(audio []byte) error

	// CreateResponse asks the model to generate a response.
	// Pass nil for server defaults.
	CreateResponse(opts *ResponseCreateOptions) error

	// Events returns an iterator over server events.
	//
	// A frame that cannot be decoded is yielded as a *DecodeError and
	// iteration continues. Server "error" frames are yielded as events
	// with Error set. Any other error ends the connection: it is yielded
	// once and iteration stops. Iteration also stops, without an error,
	// after Close.
	Events() iter.Seq2[*ServerEvent, error]

	// SessionID returns the ID from session.created, or "" before it arrives.
	SessionID() string

	// Close closes the connection. It is safe to call more than once.
	Close() error
}
