// Package session orchestrates one realtime voice session: it dials the
// relay, negotiates setup, streams microphone audio up and plays model
// audio back, assembles live transcripts, and drives element matching and
// highlighting from what is said.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/voicepilot-ai/voicepilot/pkg/core"
	"github.com/voicepilot-ai/voicepilot/pkg/core/audio"
	"github.com/voicepilot-ai/voicepilot/pkg/core/highlight"
	"github.com/voicepilot-ai/voicepilot/pkg/core/match"
	"github.com/voicepilot-ai/voicepilot/pkg/core/page"
	"github.com/voicepilot-ai/voicepilot/pkg/core/transcript"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateEnded      State = "ended"
	StateError      State = "error"
)

func (s State) String() string { return string(s) }

// Microphone is the audio capture device. Start delivers float32 sample
// chunks at the device's native rate until Stop or context cancellation.
type Microphone interface {
	Start(ctx context.Context, onChunk func(samples []float32)) error
	Stop()
	NativeRate() int
}

// Playback receives decoded model audio. *audio.Scheduler satisfies it.
type Playback interface {
	EnqueueBase64(dataB64 string)
	EnqueuePCM16(pcm []byte)
	Stop()
}

// Recorder persists session outcomes. All methods are optional collaborator
// calls; a nil Recorder disables persistence.
type Recorder interface {
	// CheckQuota reports whether the account may open a session.
	CheckQuota(ctx context.Context, accountID string) (bool, error)

	// SaveTranscript stores the final committed transcript.
	SaveTranscript(ctx context.Context, sessionID, accountID, text string) error

	// RecordUsage stores token accounting. Called at most once per session.
	RecordUsage(ctx context.Context, sessionID, accountID string, usage UsageMetadata, duration time.Duration) error
}

// Publisher is the fire-and-forget persistence path used when the page is
// unloading and there is no time to wait on the Recorder.
type Publisher interface {
	PublishEnded(sessionID, accountID, transcriptText string, duration time.Duration)
}

// Deps are the session's collaborators. Dialer, Microphone, and Playback
// are required; the rest default or disable cleanly when nil.
type Deps struct {
	Dialer     Dialer
	Microphone Microphone
	Playback   Playback

	Assembler  *transcript.Assembler
	Matcher    *match.Matcher
	Highlights *highlight.Controller

	// Snapshot captures the current page; nil disables matching and
	// context pushes.
	Snapshot func() page.Snapshot

	Recorder  Recorder
	Publisher Publisher

	Log zerolog.Logger
}

// Controller runs one session from dial to teardown.
type Controller struct {
	config Config
	deps   Deps

	sessionID string

	mu     sync.Mutex
	state  State
	stream Stream

	resampler *audio.Resampler

	usageMu sync.Mutex
	usage   UsageMetadata

	lastContext string

	started time.Time

	maxTimer *time.Timer

	greetingSent  bool
	setupComplete bool

	events chan Event
	done   chan struct{}
	ended  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a controller. Config zero fields fall back to DefaultConfig.
func New(config Config, deps Deps) (*Controller, error) {
	def := DefaultConfig()
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.Voice == "" {
		config.Voice = def.Voice
	}
	if config.PageContextInterval == 0 {
		config.PageContextInterval = def.PageContextInterval
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if deps.Dialer == nil || deps.Microphone == nil || deps.Playback == nil {
		return nil, core.NewConfigurationError("dialer, microphone, and playback are required")
	}
	if deps.Assembler == nil {
		deps.Assembler = transcript.NewAssembler(deps.Log)
	}
	if deps.Matcher == nil {
		deps.Matcher = match.New(match.DefaultConfig())
	}

	c := &Controller{
		config:    config,
		deps:      deps,
		sessionID: ulid.MustNew(ulid.Now(), rand.Reader).String(),
		state:     StateIdle,
		events:    make(chan Event, 100),
		done:      make(chan struct{}),
	}

	c.deps.Assembler.OnFragment = func(speaker transcript.Speaker, text string) {
		c.emit(&TranscriptFragmentEvent{Speaker: speaker, Text: text})
	}
	c.deps.Assembler.OnDisplay = func(text string) {
		c.emit(&TranscriptDisplayEvent{Text: text})
	}
	return c, nil
}

// SessionID returns the session identifier.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns the channel for session events.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Start dials the relay, sends setup, and begins the receive loop. It
// returns once the connection is open; the session becomes active when the
// upstream acknowledges setup.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return core.NewConfigurationError("session already started")
	}
	c.state = StateConnecting
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if c.deps.Recorder != nil && c.config.AccountID != "" {
		ok, err := c.deps.Recorder.CheckQuota(c.ctx, c.config.AccountID)
		if err != nil {
			c.setState(StateIdle)
			return core.NewTransportError("quota check", err)
		}
		if !ok {
			c.setState(StateIdle)
			return core.NewQuotaExceededError("session quota exhausted")
		}
	}

	resampler, err := audio.NewResampler(c.deps.Microphone.NativeRate())
	if err != nil {
		c.setState(StateIdle)
		return err
	}
	c.resampler = resampler

	stream, err := c.deps.Dialer.Dial(c.ctx, c.config.RelayURL)
	if err != nil {
		c.setState(StateIdle)
		return err
	}
	c.mu.Lock()
	c.stream = stream
	c.started = time.Now()
	c.mu.Unlock()

	setup := SetupFrame{Setup: SetupBody{
		Model: c.config.Model,
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &SpeechConfig{
				VoiceConfig: &VoiceConfig{
					PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: c.config.Voice},
				},
			},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}}
	if instruction := c.config.systemInstruction(); instruction != "" {
		setup.Setup.SystemInstruction = &Content{Parts: []Part{{Text: instruction}}}
	}
	if err := stream.Send(setup); err != nil {
		stream.Close()
		c.setState(StateIdle)
		return err
	}

	if c.config.MaxDuration > 0 {
		c.maxTimer = time.AfterFunc(c.config.MaxDuration, func() {
			c.End("max_duration")
		})
	}

	go c.receiveLoop(stream)
	return nil
}

// receiveLoop drains upstream frames until the stream fails or the session
// ends.
func (c *Controller) receiveLoop(stream Stream) {
	for {
		data, err := stream.Receive()
		if err != nil {
			if !c.ended.Load() {
				c.emit(&ErrorEvent{Code: "transport_error", Message: err.Error()})
				c.End("transport_error")
			}
			return
		}
		frame, err := DecodeServerFrame(data)
		if err != nil {
			c.deps.Log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		c.handleFrame(frame)
	}
}

// handleFrame applies one decoded upstream frame.
func (c *Controller) handleFrame(frame ServerFrame) {
	if frame.RawAudio != nil {
		c.deps.Playback.EnqueuePCM16(frame.RawAudio)
		return
	}
	if frame.SetupComplete {
		c.onSetupComplete()
		return
	}
	if frame.GoAway {
		c.End("go_away")
		return
	}
	if frame.Usage != nil {
		c.usageMu.Lock()
		c.usage.PromptTokenCount += frame.Usage.PromptTokenCount
		c.usage.ResponseTokenCount += frame.Usage.ResponseTokenCount
		c.usage.TotalTokenCount += frame.Usage.TotalTokenCount
		c.usageMu.Unlock()
	}

	if frame.Interrupted {
		c.deps.Playback.Stop()
		c.emit(&InterruptedEvent{})
	}
	if t := frame.InputTranscription; t != nil && t.Text != "" {
		// Capture the utterance before Add: a finished fragment flushes the
		// partial buffer into the committed transcript.
		utterance := strings.TrimSpace(c.deps.Assembler.Pending(transcript.SpeakerUser) + t.Text)
		c.deps.Assembler.Add(transcript.SpeakerUser, t.Text, t.Finished)
		trigger := match.TriggerPartial
		if t.Finished {
			trigger = match.TriggerCommand
		}
		c.tryHighlight(utterance, trigger)
	}
	if t := frame.OutputTranscription; t != nil && t.Text != "" {
		c.deps.Assembler.Add(transcript.SpeakerAssistant, t.Text, t.Finished)
	}
	for _, part := range frame.AudioParts {
		c.deps.Playback.EnqueueBase64(part)
	}

	// A frame carrying audio is mid-turn even when it also flags the turn
	// boundary; the boundary arrives again on its own once audio drains.
	if frame.TurnComplete && len(frame.AudioParts) == 0 {
		c.deps.Assembler.CommitTurn()
		c.emit(&TurnCompleteEvent{})
	}
}

// onSetupComplete transitions to active: microphone on, greeting out,
// context pushes running.
func (c *Controller) onSetupComplete() {
	c.mu.Lock()
	if c.setupComplete {
		c.mu.Unlock()
		return
	}
	c.setupComplete = true
	stream := c.stream
	c.mu.Unlock()

	// A capture failure leaves the session up: the assistant can still
	// speak and push context even with no microphone.
	if err := c.deps.Microphone.Start(c.ctx, func(samples []float32) {
		c.sendAudio(stream, samples)
	}); err != nil {
		c.deps.Log.Error().Err(err).Msg("microphone start failed")
		c.emit(&ErrorEvent{Code: "device_error", Message: err.Error()})
	}

	c.sendGreeting(stream)
	if c.deps.Snapshot != nil && c.config.PageContextInterval > 0 {
		go c.contextLoop(stream)
	}

	c.setState(StateActive)
	c.emit(&ConnectedEvent{SessionID: c.sessionID})
}

// sendGreeting sends the opening turn exactly once.
func (c *Controller) sendGreeting(stream Stream) {
	c.mu.Lock()
	if c.greetingSent || c.config.Greeting == "" {
		c.mu.Unlock()
		return
	}
	c.greetingSent = true
	c.mu.Unlock()

	if err := stream.Send(NewTextTurn(c.config.Greeting)); err != nil {
		c.deps.Log.Warn().Err(err).Msg("greeting send failed")
	}
}

// sendAudio resamples and ships one microphone chunk.
func (c *Controller) sendAudio(stream Stream, samples []float32) {
	if c.ended.Load() {
		return
	}
	pcm := audio.PCM16Bytes(c.resampler.Downsample(samples))
	c.emit(&InputLevelEvent{RMS: audio.RMSEnergy(pcm), Peak: audio.PeakAmplitude(pcm)})

	frame := NewAudioFrame(base64.StdEncoding.EncodeToString(pcm), audio.WireMimeType)
	if err := stream.Send(frame); err != nil {
		c.deps.Log.Warn().Err(err).Msg("audio send failed")
	}
}

// contextLoop pushes a fresh page description whenever it changes.
func (c *Controller) contextLoop(stream Stream) {
	ticker := time.NewTicker(c.config.PageContextInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			desc := c.deps.Snapshot().Describe()
			c.mu.Lock()
			changed := desc != "" && desc != c.lastContext
			if changed {
				c.lastContext = desc
			}
			c.mu.Unlock()
			if !changed {
				continue
			}
			if err := stream.Send(NewTextTurn("Current page:\n" + desc)); err != nil {
				c.deps.Log.Warn().Err(err).Msg("context push failed")
			}
		}
	}
}

// tryHighlight runs one rate-limited match attempt against a fresh page
// snapshot. A miss leaves the current highlights alone.
func (c *Controller) tryHighlight(text string, trigger match.Trigger) {
	if c.deps.Snapshot == nil || c.deps.Highlights == nil || text == "" {
		return
	}
	if !c.deps.Matcher.Allow(trigger) {
		return
	}
	candidates, err := c.deps.Matcher.Match(c.deps.Snapshot(), text)
	if err != nil {
		if !errors.Is(err, match.ErrNoMatch) {
			c.deps.Log.Warn().Err(err).Msg("match attempt failed")
		}
		return
	}
	if err := c.deps.Highlights.Apply(candidates); err != nil {
		c.deps.Log.Warn().Err(err).Msg("highlight apply failed")
		return
	}
	ids := make([]string, len(candidates))
	for i, cand := range candidates {
		ids[i] = cand.Element.ID
	}
	c.emit(&HighlightEvent{ElementIDs: ids, Phrase: text})
}

// End tears the session down exactly once: microphone off, playback
// stopped, transcript flushed and persisted, usage recorded, stream closed.
// Subsequent calls are no-ops.
func (c *Controller) End(reason string) {
	if c.ended.Swap(true) {
		return
	}
	c.teardown(reason, false)
}

// EndDetached is the page-unload path: same one-shot teardown, but
// persistence goes through the fire-and-forget publisher instead of
// waiting on the recorder.
func (c *Controller) EndDetached() {
	if c.ended.Swap(true) {
		return
	}
	c.teardown("detached", true)
}

func (c *Controller) teardown(reason string, detached bool) {
	c.deps.Log.Info().
		Str("session_id", c.sessionID).
		Str("reason", reason).
		Msg("session ending")

	if c.maxTimer != nil {
		c.maxTimer.Stop()
	}
	c.deps.Microphone.Stop()
	c.deps.Playback.Stop()
	if c.deps.Highlights != nil {
		c.deps.Highlights.Clear()
	}

	c.deps.Assembler.FlushAll()
	final := c.deps.Assembler.Transcript()

	c.mu.Lock()
	stream := c.stream
	duration := time.Duration(0)
	if !c.started.IsZero() {
		duration = time.Since(c.started)
	}
	c.mu.Unlock()

	c.usageMu.Lock()
	usage := c.usage
	c.usageMu.Unlock()

	if detached {
		if c.deps.Publisher != nil {
			c.deps.Publisher.PublishEnded(c.sessionID, c.config.AccountID, final, duration)
		}
	} else if c.deps.Recorder != nil {
		persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if final != "" {
			if err := c.deps.Recorder.SaveTranscript(persistCtx, c.sessionID, c.config.AccountID, final); err != nil {
				c.deps.Log.Error().Err(err).Msg("transcript save failed")
			}
		}
		if err := c.deps.Recorder.RecordUsage(persistCtx, c.sessionID, c.config.AccountID, usage, duration); err != nil {
			c.deps.Log.Error().Err(err).Msg("usage record failed")
		}
		cancel()
	}

	if stream != nil {
		stream.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}

	endState := StateEnded
	if reason == "transport_error" {
		endState = StateError
	}
	c.setState(endState)
	c.emit(&EndedEvent{SessionID: c.sessionID, Reason: reason, Transcript: final})
	close(c.done)
	close(c.events)
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// emit sends an event without blocking; a full channel drops the event.
func (c *Controller) emit(event Event) {
	if c.ended.Load() && event.EventType() != "ended" {
		return
	}
	select {
	case c.events <- event:
	default:
	}
}
