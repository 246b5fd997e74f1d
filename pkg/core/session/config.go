package session

import (
	"strings"
	"time"

	"github.com/voicepilot-ai/voicepilot/pkg/core"
)

// Config holds the settings for one realtime session.
type Config struct {
	// RelayURL is the websocket endpoint of the relay. The relay holds the
	// upstream credential; clients never carry it.
	RelayURL string

	// AccountID attributes usage and quota; empty disables both.
	AccountID string

	// Model is the upstream live model identifier.
	Model string

	// Voice selects the prebuilt synthesis voice.
	Voice string

	// SystemPrompt steers the assistant. Page context updates are appended
	// as user turns, not folded into the prompt.
	SystemPrompt string

	// Greeting, when non-empty, is sent once as the opening user turn so
	// the assistant speaks first.
	Greeting string

	// KnowledgeURLs are appended to the system prompt as reference
	// material the assistant may cite.
	KnowledgeURLs []string

	// MaxDuration caps the session; zero means no cap.
	MaxDuration time.Duration

	// PageContextInterval is how often the page snapshot is re-described
	// and diffed for a context push.
	PageContextInterval time.Duration
}

// DefaultConfig returns the standard session tuning.
func DefaultConfig() Config {
	return Config{
		Model:               "gemini-2.0-flash-live-001",
		Voice:               "Puck",
		MaxDuration:         10 * time.Minute,
		PageContextInterval: 2 * time.Second,
	}
}

// Validate checks that the config can open a session.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RelayURL) == "" {
		return core.NewConfigurationErrorWithParam("relay URL is required", "relay_url")
	}
	if strings.TrimSpace(c.Model) == "" {
		return core.NewConfigurationErrorWithParam("model is required", "model")
	}
	if c.PageContextInterval < 0 {
		return core.NewConfigurationErrorWithParam("page context interval must be >= 0", "page_context_interval")
	}
	return nil
}

// systemInstruction renders the full system prompt including knowledge
// references.
func (c Config) systemInstruction() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(c.SystemPrompt))
	if len(c.KnowledgeURLs) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Reference material:\n")
		for _, u := range c.KnowledgeURLs {
			b.WriteString("- ")
			b.WriteString(u)
			b.WriteString("\n")
		}
	}
	return b.String()
}
