package session

import (
	"encoding/json"
	"strings"

	"github.com/voicepilot-ai/voicepilot/pkg/core"
)

// Outbound frames, shaped for the upstream live API. The relay forwards
// them untouched.

type SetupFrame struct {
	Setup SetupBody `json:"setup"`
}

type SetupBody struct {
	Model                    string            `json:"model"`
	GenerationConfig         *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *Content          `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type RealtimeInputFrame struct {
	RealtimeInput RealtimeInputBody `json:"realtimeInput"`
}

type RealtimeInputBody struct {
	Audio *InlineData `json:"audio,omitempty"`
}

type ClientContentFrame struct {
	ClientContent ClientContentBody `json:"clientContent"`
}

type ClientContentBody struct {
	Turns        []Content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

// NewAudioFrame wraps one encoded microphone chunk.
func NewAudioFrame(dataB64, mimeType string) RealtimeInputFrame {
	return RealtimeInputFrame{
		RealtimeInput: RealtimeInputBody{
			Audio: &InlineData{MimeType: mimeType, Data: dataB64},
		},
	}
}

// NewTextTurn wraps a complete user text turn, such as the greeting trigger
// or a page context update.
func NewTextTurn(text string) ClientContentFrame {
	return ClientContentFrame{
		ClientContent: ClientContentBody{
			Turns:        []Content{{Role: "user", Parts: []Part{{Text: text}}}},
			TurnComplete: true,
		},
	}
}

// Inbound frames.

// ServerFrame is the decoded form of one upstream message. Exactly one of
// the fields is populated, except that a serverContent frame can carry
// transcription, audio parts, and a turn boundary all at once.
type ServerFrame struct {
	SetupComplete bool

	// InputTranscription and OutputTranscription carry live transcript
	// fragments for the user's and the assistant's speech.
	InputTranscription  *Transcription
	OutputTranscription *Transcription

	// AudioParts holds base64 PCM payloads from the model turn.
	AudioParts []string

	// TurnComplete marks the end of the assistant's turn.
	TurnComplete bool

	// Interrupted reports that the model's generation was cut off.
	Interrupted bool

	// GoAway carries the server's notice that the connection will close.
	GoAway bool

	// RawAudio is set when the frame was not JSON at all: some upstreams
	// send bare PCM binary frames.
	RawAudio []byte

	// Usage is non-nil when the frame carried token accounting.
	Usage *UsageMetadata
}

// Transcription is a live transcript fragment.
type Transcription struct {
	Text     string `json:"text"`
	Finished bool   `json:"finished"`
}

// UsageMetadata is the upstream's token accounting.
type UsageMetadata struct {
	PromptTokenCount   int `json:"promptTokenCount"`
	ResponseTokenCount int `json:"responseTokenCount"`
	TotalTokenCount    int `json:"totalTokenCount"`
}

type serverEnvelope struct {
	SetupComplete *struct{}      `json:"setupComplete"`
	ServerContent *serverContent `json:"serverContent"`
	GoAway        *struct{}      `json:"goAway"`
	UsageMetadata *UsageMetadata `json:"usageMetadata"`
}

type serverContent struct {
	ModelTurn           *Content       `json:"modelTurn"`
	InputTranscription  *Transcription `json:"inputTranscription"`
	OutputTranscription *Transcription `json:"outputTranscription"`
	TurnComplete        bool           `json:"turnComplete"`
	Interrupted         bool           `json:"interrupted"`
}

// DecodeServerFrame parses one upstream message. Frames that are not valid
// JSON objects are treated as raw PCM audio rather than rejected, because
// the upstream falls back to bare binary audio frames.
func DecodeServerFrame(data []byte) (ServerFrame, error) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		return ServerFrame{RawAudio: data}, nil
	}

	var env serverEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ServerFrame{RawAudio: data}, nil
	}

	frame := ServerFrame{
		SetupComplete: env.SetupComplete != nil,
		GoAway:        env.GoAway != nil,
		Usage:         env.UsageMetadata,
	}
	if sc := env.ServerContent; sc != nil {
		frame.InputTranscription = sc.InputTranscription
		frame.OutputTranscription = sc.OutputTranscription
		frame.TurnComplete = sc.TurnComplete
		frame.Interrupted = sc.Interrupted
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && part.InlineData.Data != "" {
					frame.AudioParts = append(frame.AudioParts, part.InlineData.Data)
				}
			}
		}
	}
	if frame.SetupComplete || frame.GoAway || frame.Usage != nil || env.ServerContent != nil {
		return frame, nil
	}
	return ServerFrame{}, core.NewDecodeError("unrecognized server frame", nil)
}
