package openairealtime

// Client event types (sent from client to server).
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeConversationItemCreate = "conversation.item.create"
	EventTypeResponseCreate         = "response.create"
)

// Server event types (sent from server to client).
const (
	EventTypeError = "error"

	EventTypeSessionCreated = "session.created"
	EventTypeSessionUpdated = "session.updated"

	EventTypeConversationItemCreated = "conversation.item.created"

	EventTypeResponseCreated    = "response.created"
	EventTypeResponseDone       = "response.done"
	EventTypeResponseAudioDelta = "response.audio.delta"
	EventTypeResponseAudioDone  = "response.audio.done"

	EventTypeResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	EventTypeResponseAudioTranscriptDone  = "response.audio_transcript.done"

	EventTypeRateLimitsUpdated = "rate_limits.updated"
)

// clientEvent is the envelope for every outbound frame.
type clientEvent struct {
	EventID  string                 `json:"event_id"`
	Type     string                 `json:"type"`
	Session  *SessionConfig         `json:"session,omitzero"`
	Item     *ConversationItem      `json:"item,omitzero"`
	Response *ResponseCreateOptions `json:"response,omitzero"`
}

// ServerEvent represents a server event received from the Realtime API.
type ServerEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitzero"`

	// Session is set for session.created and session.updated.
	Session *SessionResource `json:"session,omitzero"`

	// Response is set for response.created and response.done.
	Response *ResponseResource `json:"response,omitzero"`

	ResponseID string `json:"response_id,omitzero"`
	ItemID     string `json:"item_id,omitzero"`

	// Delta carries base64 audio for response.audio.delta and text for
	// transcript deltas.
	Delta string `json:"delta,omitzero"`

	// Transcript is set for response.audio_transcript.done.
	Transcript string `json:"transcript,omitzero"`

	// Error is set for "error" frames.
	Error *Error `json:"error,omitzero"`

	// Audio is the decoded Delta of a response.audio.delta frame.
	Audio []byte `json:"-"`

	// Raw is the frame as received.
	Raw []byte `json:"-"`
}
