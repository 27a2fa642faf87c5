package duet

import (
	"time"

	"github.com/haivivi/duet/pkg/recorder"
)

// EndReason says why a session stopped.
type EndReason string

const (
	EndNoAudio         EndReason = "no_audio"
	EndTurnFailed      EndReason = "turn_failed"
	EndCancelled       EndReason = "cancelled"
	EndExchangeLimit   EndReason = "exchange_limit"
	EndConnectFailed   EndReason = "connect_failed"
	EndConfigureFailed EndReason = "configure_failed"
	EndRecorderFailed  EndReason = "recorder_failed"
)

// Summary describes a finished session.
type Summary struct {
	ID      string
	Started time.Time
	Ended   time.Time

	// Exchanges counts therapist turns answered by a client turn.
	Exchanges int
	// Turns counts turns that returned audio, across both roles.
	Turns int

	EndReason EndReason
	// TurnErr is the turn failure that ended the session, if any.
	TurnErr error
	// LoopErr is the first receive loop failure, if any.
	LoopErr error

	// Stats holds receive loop counters, indexed by role.
	Stats [2]ConnStats

	// Files is nil only when the recorder could not finalize.
	Files *recorder.Files
}

// Duration returns the wall time of the session.
func (s *Summary) Duration() time.Duration {
	return s.Ended.Sub(s.Started)
}
