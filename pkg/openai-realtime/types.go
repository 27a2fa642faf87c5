package openairealtime

import "encoding/json"

// Models supported by the Realtime API.
const (
	ModelGPT4oRealtimePreview         = "gpt-4o-realtime-preview"
	ModelGPT4oRealtimePreview20241001 = "gpt-4o-realtime-preview-2024-10-01"
	ModelGPT4oRealtimePreview20241217 = "gpt-4o-realtime-preview-2024-12-17"
	ModelGPT4oMiniRealtimePreview     = "gpt-4o-mini-realtime-preview"

	// DefaultModel is used when ConnectConfig.Model is empty.
	DefaultModel = ModelGPT4oRealtimePreview
)

// AudioFormatPCM16 is 16-bit PCM audio at 24kHz, mono, little-endian.
const AudioFormatPCM16 = "pcm16"

// Voice options for audio output.
const (
	VoiceAlloy   = "alloy"
	VoiceAsh     = "ash"
	VoiceBallad  = "ballad"
	VoiceCoral   = "coral"
	VoiceEcho    = "echo"
	VoiceSage    = "sage"
	VoiceShimmer = "shimmer"
	VoiceVerse   = "verse"
)

// Voices lists every voice accepted by the API, in alphabetical order.
var Voices = []string{
	VoiceAlloy, VoiceAsh, VoiceBallad, VoiceCoral,
	VoiceEcho, VoiceSage, VoiceShimmer, VoiceVerse,
}

// Modality types.
const (
	ModalityText  = "text"
	ModalityAudio = "audio"
)

// Response statuses reported in response.done.
const (
	ResponseStatusCompleted  = "completed"
	ResponseStatusCancelled  = "cancelled"
	ResponseStatusIncomplete = "incomplete"
	ResponseStatusFailed     = "failed"
)

// ConnectConfig contains configuration for establishing a realtime connection.
type ConnectConfig struct {
	// Model is the model ID to use.
	// Default: gpt-4o-realtime-preview
	Model string `json:"model,omitzero"`
}

// SessionConfig contains configuration for updating session parameters.
type SessionConfig struct {
	Modalities   []string `json:"modalities,omitzero"`
	Instructions string   `json:"instructions,omitzero"`
	Voice        string   `json:"voice,omitzero"`

	// InputAudioFormat and OutputAudioFormat default to pcm16 server side.
	InputAudioFormat  string `json:"input_audio_format,omitzero"`
	OutputAudioFormat string `json:"output_audio_format,omitzero"`

	// TurnDetection configures voice activity detection.
	// Use nil to keep the current setting.
	TurnDetection *TurnDetection `json:"turn_detection,omitzero"`

	// TurnDetectionDisabled sends "turn_detection": null, which disables
	// server VAD so that responses are only created on request.
	TurnDetectionDisabled bool `json:"-"`

	// Temperature controls randomness (0.6-1.2).
	Temperature *float64 `json:"temperature,omitzero"`
}

// MarshalJSON writes an explicit null turn_detection when
// TurnDetectionDisabled is set.
func (s SessionConfig) MarshalJSON() ([]byte, error) {
	type alias SessionConfig
	if !s.TurnDetectionDisabled {
		return json.Marshal(alias(s))
	}
	return json.Marshal(struct {
		alias
		TurnDetection *TurnDetection `json:"turn_detection"`
	}{alias: alias(s)})
}

// TurnDetection configures voice activity detection.
type TurnDetection struct {
	// Type is the VAD mode: "server_vad" or "semantic_vad".
	Type              string  `json:"type,omitzero"`
	Threshold         float64 `json:"threshold,omitzero"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitzero"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitzero"`
}

// ResponseCreateOptions contains options for creating a response.
type ResponseCreateOptions struct {
	Modalities   []string `json:"modalities,omitzero"`
	Instructions string   `json:"instructions,omitzero"`
	Voice        string   `json:"voice,omitzero"`
	Temperature  *float64 `json:"temperature,omitzero"`
}

// ConversationItem represents an item in the conversation.
type ConversationItem struct {
	ID      string        `json:"id,omitzero"`
	Type    string        `json:"type,omitzero"` // "message"
	Role    string        `json:"role,omitzero"` // "user", "assistant", "system"
	Content []ContentPart `json:"content,omitzero"`
}

// ContentPart represents a part of message content.
type ContentPart struct {
	Type       string `json:"type,omitzero"` // "input_text", "input_audio", "text", "audio"
	Text       string `json:"text,omitzero"`
	Audio      string `json:"audio,omitzero"` // base64 encoded
	Transcript string `json:"transcript,omitzero"`
}

// SessionResource represents the session state returned by the server.
type SessionResource struct {
	ID           string   `json:"id,omitzero"`
	Model        string   `json:"model,omitzero"`
	Modalities   []string `json:"modalities,omitzero"`
	Voice        string   `json:"voice,omitzero"`
	Instructions string   `json:"instructions,omitzero"`
}

// ResponseResource represents a response from the model.
type ResponseResource struct {
	ID            string         `json:"id,omitzero"`
	Status        string         `json:"status,omitzero"` // "in_progress", "completed", "cancelled", "incomplete", "failed"
	StatusDetails *StatusDetails `json:"status_details,omitzero"`
	Usage         *Usage         `json:"usage,omitzero"`
}

// StatusDetails contains details about the response status.
type StatusDetails struct {
	Type   string `json:"type,omitzero"`
	Reason string `json:"reason,omitzero"`
	Error  *Error `json:"error,omitzero"`
}

// Usage contains token usage information.
type Usage struct {
	TotalTokens  int `json:"total_tokens,omitzero"`
	InputTokens  int `json:"input_tokens,omitzero"`
	OutputTokens int `json:"output_tokens,omitzero"`
}
