package duet

import (
	"fmt"
	"slices"
	"strings"

	openairealtime "github.com/haivivi/duet/pkg/openai-realtime"
)

// Voices lists every voice a persona may use.
var Voices = openairealtime.Voices

const (
	DefaultTherapistVoice = openairealtime.VoiceVerse
	DefaultClientVoice    = openairealtime.VoiceShimmer
)

// Persona is the voice and behaviour text a participant is configured with.
// Instructions are passed to the endpoint as is.
type Persona struct {
	Voice        string   `json:"voice" yaml:"voice"`
	Instructions string   `json:"instructions" yaml:"instructions"`
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// DefaultPersona returns the built-in persona for role.
func DefaultPersona(role Role) Persona {
	if role == RoleA {
		return Persona{
			Voice: DefaultTherapistVoice,
			Instructions: "You are a therapist in a spoken counselling session. " +
				"Keep each turn short, listen closely and ask one open question at a time.",
		}
	}
	return Persona{
		Voice: DefaultClientVoice,
		Instructions: "You are a client in a spoken counselling session. " +
			"Answer the therapist honestly and briefly, in your own words.",
	}
}

// ValidateVoice reports whether voice is one of Voices.
func ValidateVoice(voice string) error {
	if slices.Contains(Voices, voice) {
		return nil
	}
	return fmt.Errorf("%w %q (valid: %s)", ErrInvalidVoice, voice, strings.Join(Voices, ", "))
}

// Validate checks the persona's voice.
func (p Persona) Validate() error {
	return ValidateVoice(p.Voice)
}

func (p Persona) sessionConfig() *openairealtime.SessionConfig {
	return &openairealtime.SessionConfig{
		Modalities:            []string{openairealtime.ModalityText, openairealtime.ModalityAudio},
		Voice:                 p.Voice,
		Instructions:          p.Instructions,
		InputAudioFormat:      openairealtime.AudioFormatPCM16,
		OutputAudioFormat:     openairealtime.AudioFormatPCM16,
		TurnDetectionDisabled: true,
		Temperature:           p.Temperature,
	}
}
