package duet

import (
	"errors"
	"fmt"

	openairealtime "github.com/haivivi/duet/pkg/openai-realtime"
)

var (
	// ErrTurnInFlight is returned by TakeTurn while another turn on the same
	// connection has not completed.
	ErrTurnInFlight = errors.New("duet: turn already in flight")

	// ErrNotConfigured is returned by TakeTurn before Configure succeeded.
	ErrNotConfigured = errors.New("duet: connection not configured")

	// ErrNoAudio marks a turn that completed without audio. It is the
	// natural end of a session.
	ErrNoAudio = errors.New("duet: turn produced no audio")

	// ErrTurnTimeout marks a turn that did not complete within the turn
	// timeout.
	ErrTurnTimeout = errors.New("duet: turn timed out")

	// ErrConnectionClosed marks a turn interrupted by its connection closing.
	ErrConnectionClosed = errors.New("duet: connection closed")

	// ErrInvalidVoice is returned for a voice outside Voices.
	ErrInvalidVoice = errors.New("duet: invalid voice")
)

// ConnectError reports a failure to open a participant's connection.
type ConnectError struct {
	Role Role
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("duet: connect %s: %v", e.Role, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ConfigureError reports a session configuration that could not be sent
// or that the endpoint rejected.
type ConfigureError struct {
	Role Role
	Err  error
}

func (e *ConfigureError) Error() string {
	return fmt.Sprintf("duet: configure %s: %v", e.Role, e.Err)
}

func (e *ConfigureError) Unwrap() error { return e.Err }

// FrameDecodeError reports an inbound frame that could not be decoded.
// The receive loop logs it and continues.
type FrameDecodeError struct {
	Role Role
	Err  error
}

func (e *FrameDecodeError) Error() string {
	return fmt.Sprintf("duet: %s frame: %v", e.Role, e.Err)
}

func (e *FrameDecodeError) Unwrap() error { return e.Err }

// RemoteError wraps an "error" frame sent by the endpoint.
// The receive loop logs it and continues.
type RemoteError struct {
	Role Role
	Err  *openairealtime.Error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("duet: %s remote: %v", e.Role, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// TurnReason classifies a failed turn.
type TurnReason int

const (
	ReasonSendFailed TurnReason = iota + 1
	ReasonCancelled
	ReasonTimeout
	ReasonConnectionClosed
	ReasonNoAudio
)

func (r TurnReason) String() string {
	switch r {
	case ReasonSendFailed:
		return "send_failed"
	case ReasonCancelled:
		return "cancelled"
	case ReasonTimeout:
		return "timeout"
	case ReasonConnectionClosed:
		return "connection_closed"
	case ReasonNoAudio:
		return "no_audio"
	default:
		return "unknown"
	}
}

// TurnError reports a turn that did not yield audio. It ends the session
// gracefully.
type TurnError struct {
	Role Role
	// Turn is the role's 1-based turn number.
	Turn   int
	Reason TurnReason
	Err    error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("duet: %s turn %d: %s: %v", e.Role, e.Turn, e.Reason, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// TransportClosedError reports a connection whose transport failed. It
// ends that connection's receive loop.
type TransportClosedError struct {
	Role Role
	Err  error
}

func (e *TransportClosedError) Error() string {
	return fmt.Sprintf("duet: %s transport closed: %v", e.Role, e.Err)
}

func (e *TransportClosedError) Unwrap() error { return e.Err }
