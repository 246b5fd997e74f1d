package session

import "github.com/voicepilot-ai/voicepilot/pkg/core/transcript"

// Event is the interface all session events implement.
type Event interface {
	EventType() string
}

// ConnectedEvent fires once the upstream has acknowledged setup and audio
// is flowing.
type ConnectedEvent struct {
	SessionID string
}

func (e *ConnectedEvent) EventType() string { return "connected" }

// TranscriptFragmentEvent fires for every live transcript fragment, before
// display debouncing.
type TranscriptFragmentEvent struct {
	Speaker transcript.Speaker
	Text    string
}

func (e *TranscriptFragmentEvent) EventType() string { return "transcript_fragment" }

// TranscriptDisplayEvent fires when the debounced display text settles.
// Text is the full transcript, committed text plus pending partials.
type TranscriptDisplayEvent struct {
	Text string
}

func (e *TranscriptDisplayEvent) EventType() string { return "transcript_display" }

// InputLevelEvent carries the level of the last captured microphone chunk,
// for UI metering.
type InputLevelEvent struct {
	RMS  float64
	Peak float64
}

func (e *InputLevelEvent) EventType() string { return "input_level" }

// TurnCompleteEvent fires when the assistant finishes a turn.
type TurnCompleteEvent struct{}

func (e *TurnCompleteEvent) EventType() string { return "turn_complete" }

// InterruptedEvent fires when the upstream cut off its own generation,
// usually because the user started speaking.
type InterruptedEvent struct{}

func (e *InterruptedEvent) EventType() string { return "interrupted" }

// HighlightEvent fires when a match attempt changed the highlight set.
type HighlightEvent struct {
	ElementIDs []string
	Phrase     string
}

func (e *HighlightEvent) EventType() string { return "highlight" }

// ErrorEvent carries a non-fatal session error.
type ErrorEvent struct {
	Code    string
	Message string
}

func (e *ErrorEvent) EventType() string { return "error" }

// EndedEvent fires exactly once when the session tears down.
type EndedEvent struct {
	SessionID  string
	Reason     string
	Transcript string
}

func (e *EndedEvent) EventType() string { return "ended" }
