// Package transcript turns streamed partial-transcript fragments into
// stable committed transcript text.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Speaker identifies which conversation party produced a fragment.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// DefaultDisplayDebounce is how long fragment inactivity lasts before the
// visible transcript is refreshed. Purely a UI smoothing delay; highlighting
// acts on raw fragments immediately.
const DefaultDisplayDebounce = 300 * time.Millisecond

// Assembler buffers streamed fragments per speaker and commits them into a
// durable transcript string at utterance boundaries.
//
// Two consumers see the text at different latencies: OnFragment fires on
// every raw fragment (highlighting wants responsiveness), while OnDisplay
// fires after a short inactivity window (readers want stability). This
// dual path is deliberate.
type Assembler struct {
	// OnFragment, if set, receives every raw fragment as it arrives.
	OnFragment func(speaker Speaker, text string)

	// OnDisplay, if set, receives the full transcript (committed text plus
	// pending partials) after DisplayDebounce of fragment inactivity.
	OnDisplay func(text string)

	// DisplayDebounce overrides DefaultDisplayDebounce when positive.
	DisplayDebounce time.Duration

	log zerolog.Logger

	mu        sync.Mutex
	committed strings.Builder
	partials  map[Speaker]*strings.Builder
	debounce  *time.Timer
	closed    bool
}

// NewAssembler creates an empty assembler.
func NewAssembler(log zerolog.Logger) *Assembler {
	return &Assembler{
		log: log.With().Str("component", "transcript").Logger(),
		partials: map[Speaker]*strings.Builder{
			SpeakerUser:      {},
			SpeakerAssistant: {},
		},
	}
}

// Add buffers one streamed fragment. When isFinal marks the end of the
// utterance, the speaker's buffer is flushed into the transcript.
func (a *Assembler) Add(speaker Speaker, text string, isFinal bool) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	buf := a.partial(speaker)
	buf.WriteString(text)
	if isFinal {
		a.flushLocked(speaker)
	}
	a.armDebounceLocked()
	a.mu.Unlock()

	if a.OnFragment != nil && text != "" {
		a.OnFragment(speaker, text)
	}
}

// CommitTurn flushes any non-empty partial buffers. Called on the
// session-level turn-complete signal, which can arrive without a per-
// utterance finalize.
func (a *Assembler) CommitTurn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.flushLocked(SpeakerUser)
	a.flushLocked(SpeakerAssistant)
	a.armDebounceLocked()
}

// FlushAll commits all pending partials and stops the display timer. Called
// at session end so no fragment is silently dropped. Safe to call more than
// once; the second call finds empty buffers and does nothing.
func (a *Assembler) FlushAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flushLocked(SpeakerUser)
	a.flushLocked(SpeakerAssistant)
	if a.debounce != nil {
		a.debounce.Stop()
		a.debounce = nil
	}
	a.closed = true
}

// Transcript returns the committed transcript text.
func (a *Assembler) Transcript() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.committed.String()
}

// Pending returns the uncommitted partial text for one speaker.
func (a *Assembler) Pending(speaker Speaker) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.partial(speaker).String()
}

func (a *Assembler) partial(speaker Speaker) *strings.Builder {
	buf, ok := a.partials[speaker]
	if !ok {
		buf = &strings.Builder{}
		a.partials[speaker] = buf
	}
	return buf
}

func (a *Assembler) flushLocked(speaker Speaker) {
	buf := a.partial(speaker)
	text := strings.TrimSpace(buf.String())
	buf.Reset()
	if text == "" {
		return
	}

	committed := a.committed.String()
	if committed != "" && !endsWithSpace(committed) && !startsWithSpace(text) {
		a.committed.WriteString(" ")
	}
	a.committed.WriteString(text)
	a.log.Debug().Str("speaker", string(speaker)).Str("text", text).Msg("committed utterance")
}

func (a *Assembler) armDebounceLocked() {
	if a.OnDisplay == nil {
		return
	}
	d := a.DisplayDebounce
	if d <= 0 {
		d = DefaultDisplayDebounce
	}
	if a.debounce != nil {
		a.debounce.Stop()
	}
	a.debounce = time.AfterFunc(d, a.fireDisplay)
}

func (a *Assembler) fireDisplay() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	var b strings.Builder
	b.WriteString(a.committed.String())
	for _, speaker := range []Speaker{SpeakerUser, SpeakerAssistant} {
		pending := strings.TrimSpace(a.partial(speaker).String())
		if pending == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(pending)
	}
	text := b.String()
	fn := a.OnDisplay
	a.mu.Unlock()

	if fn != nil {
		fn(text)
	}
}

func endsWithSpace(s string) bool {
	return s != strings.TrimRight(s, " \t\n")
}

func startsWithSpace(s string) bool {
	return s != strings.TrimLeft(s, " \t\n")
}
