package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicepilot-ai/voicepilot/pkg/core"
	"github.com/voicepilot-ai/voicepilot/pkg/core/highlight"
	"github.com/voicepilot-ai/voicepilot/pkg/core/page"
)

type fakeStream struct {
	mu      sync.Mutex
	sent    [][]byte
	inbound chan []byte
	once    sync.Once
	closed  bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{inbound: make(chan []byte, 32)}
}

func (f *fakeStream) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeStream) Receive() ([]byte, error) {
	data, ok := <-f.inbound
	if !ok {
		return nil, core.NewTransportError("receive", errors.New("closed"))
	}
	return data, nil
}

func (f *fakeStream) Close() error {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.inbound)
	})
	return nil
}

func (f *fakeStream) push(frame string) {
	f.inbound <- []byte(frame)
}

func (f *fakeStream) sentFrames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, data := range f.sent {
		out[i] = string(data)
	}
	return out
}

type fakeDialer struct {
	stream *fakeStream
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Stream, error) {
	return d.stream, nil
}

type fakeMic struct {
	mu      sync.Mutex
	onChunk func([]float32)
	stops   int
}

func (m *fakeMic) Start(ctx context.Context, onChunk func([]float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChunk = onChunk
	return nil
}

func (m *fakeMic) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *fakeMic) NativeRate() int { return 48000 }

func (m *fakeMic) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

type fakePlayback struct {
	mu     sync.Mutex
	base64 []string
	raw    [][]byte
	stops  int
}

func (p *fakePlayback) EnqueueBase64(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base64 = append(p.base64, data)
}

func (p *fakePlayback) EnqueuePCM16(pcm []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raw = append(p.raw, pcm)
}

func (p *fakePlayback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

type fakeRecorder struct {
	mu          sync.Mutex
	quotaOK     bool
	transcripts []string
	usageCalls  int
}

func (r *fakeRecorder) CheckQuota(ctx context.Context, accountID string) (bool, error) {
	return r.quotaOK, nil
}

func (r *fakeRecorder) SaveTranscript(ctx context.Context, sessionID, accountID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcripts = append(r.transcripts, text)
	return nil
}

func (r *fakeRecorder) RecordUsage(ctx context.Context, sessionID, accountID string, usage UsageMetadata, duration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usageCalls++
	return nil
}

type fakePublisher struct {
	mu    sync.Mutex
	calls int
}

func (p *fakePublisher) PublishEnded(sessionID, accountID, transcriptText string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
}

func testConfig() Config {
	config := DefaultConfig()
	config.RelayURL = "ws://relay.test/session"
	config.Greeting = "Hi, how can I help?"
	config.MaxDuration = 0
	config.PageContextInterval = time.Hour
	return config
}

func testDeps(stream *fakeStream) (Deps, *fakeMic, *fakePlayback) {
	mic := &fakeMic{}
	playback := &fakePlayback{}
	return Deps{
		Dialer:     &fakeDialer{stream: stream},
		Microphone: mic,
		Playback:   playback,
		Log:        zerolog.Nop(),
	}, mic, playback
}

func waitEvent[T Event](t *testing.T, events <-chan Event) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("events channel closed")
			}
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestNew_ConfigValidation(t *testing.T) {
	stream := newFakeStream()
	deps, _, _ := testDeps(stream)

	_, err := New(Config{}, deps)
	if !core.IsType(err, core.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestStart_QuotaDenied(t *testing.T) {
	stream := newFakeStream()
	deps, _, _ := testDeps(stream)
	deps.Recorder = &fakeRecorder{quotaOK: false}

	config := testConfig()
	config.AccountID = "acct_1"
	c, err := New(config, deps)
	if err != nil {
		t.Fatal(err)
	}
	err = c.Start(context.Background())
	if !core.IsType(err, core.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want quota error", err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %v, want idle after denial", c.State())
	}
}

func TestStart_SendsSetupFirst(t *testing.T) {
	stream := newFakeStream()
	deps, _, _ := testDeps(stream)
	c, err := New(testConfig(), deps)
	if err != nil {
		t.Fatal(err)
	}
	defer c.End("test")

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	frames := stream.sentFrames()
	if len(frames) == 0 || !strings.Contains(frames[0], `"setup"`) {
		t.Fatalf("first frame = %v, want setup", frames)
	}
	if !strings.Contains(frames[0], testConfig().Model) {
		t.Errorf("setup frame missing model: %s", frames[0])
	}
}

func TestGreetingSentOnceOnSetupComplete(t *testing.T) {
	stream := newFakeStream()
	deps, _, _ := testDeps(stream)
	c, err := New(testConfig(), deps)
	if err != nil {
		t.Fatal(err)
	}
	defer c.End("test")

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	stream.push(`{"setupComplete":{}}`)
	stream.push(`{"setupComplete":{}}`)
	waitEvent[*ConnectedEvent](t, c.Events())

	greetings := 0
	for _, frame := range stream.sentFrames() {
		if strings.Contains(frame, "Hi, how can I help?") {
			greetings++
		}
	}
	if greetings != 1 {
		t.Errorf("greeting sent %d times, want exactly once", greetings)
	}
	if c.State() != StateActive {
		t.Errorf("state = %v, want active", c.State())
	}
}

func TestMicrophoneAudioIsResampledAndSent(t *testing.T) {
	stream := newFakeStream()
	deps, mic, _ := testDeps(stream)
	c, err := New(testConfig(), deps)
	if err != nil {
		t.Fatal(err)
	}
	defer c.End("test")

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	stream.push(`{"setupComplete":{}}`)
	waitEvent[*ConnectedEvent](t, c.Events())

	mic.mu.Lock()
	onChunk := mic.onChunk
	mic.mu.Unlock()
	if onChunk == nil {
		t.Fatal("microphone was not started")
	}
	chunk := make([]float32, 4096)
	chunk[0] = 0.5
	onChunk(chunk)

	found := false
	for _, frame := range stream.sentFrames() {
		if strings.Contains(frame, `"realtimeInput"`) && strings.Contains(frame, `audio/pcm;rate=16000`) {
			found = true
		}
	}
	if !found {
		t.Error("no realtimeInput audio frame was sent")
	}

	level := waitEvent[*InputLevelEvent](t, c.Events())
	if level.Peak == 0 {
		t.Error("input level event has zero peak for a non-silent chunk")
	}
}

func TestAudioPartsSuppressTurnCompleteInSameFrame(t *testing.T) {
	stream := newFakeStream()
	deps, _, playback := testDeps(stream)
	c, err := New(testConfig(), deps)
	if err != nil {
		t.Fatal(err)
	}
	defer c.End("test")

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	stream.push(`{"setupComplete":{}}`)
	waitEvent[*ConnectedEvent](t, c.Events())

	stream.push(`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAAAAA=="}}]},"turnComplete":true}}`)
	stream.push(`{"serverContent":{"turnComplete":true}}`)
	waitEvent[*TurnCompleteEvent](t, c.Events())

	playback.mu.Lock()
	buffers := len(playback.base64)
	playback.mu.Unlock()
	if buffers != 1 {
		t.Errorf("playback got %d buffers, want 1", buffers)
	}

	// Only the bare boundary frame may produce a turn-complete event.
	select {
	case ev, ok := <-c.Events():
		if ok {
			if _, isTurn := ev.(*TurnCompleteEvent); isTurn {
				t.Error("audio-bearing frame produced a second turn-complete")
			}
		}
	default:
	}
}

func TestRawBinaryFrameFallsBackToPlayback(t *testing.T) {
	stream := newFakeStream()
	deps, _, playback := testDeps(stream)
	c, err := New(testConfig(), deps)
	if err != nil {
		t.Fatal(err)
	}
	defer c.End("test")

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	stream.push(`{"setupComplete":{}}`)
	waitEvent[*ConnectedEvent](t, c.Events())

	stream.push(string([]byte{0x01, 0x02, 0x03, 0x04}))
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		playback.mu.Lock()
		n := len(playback.raw)
		playback.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("raw frame never reached playback")
}

func TestTranscriptionDrivesHighlighting(t *testing.T) {
	stream := newFakeStream()
	deps, _, _ := testDeps(stream)

	surface := &recordingSurface{}
	deps.Highlights = highlight.New(surface, time.Minute)
	deps.Snapshot = func() page.Snapshot {
		return page.Snapshot{
			Viewport: page.Rect{W: 1280, H: 800},
			Elements: []page.Element{{
				ID: "btn-1", Tag: "button", Text: "Submit",
				Opacity: 1, Order: 1, Bounds: page.Rect{X: 10, Y: 10, W: 100, H: 30},
			}},
		}
	}

	c, err := New(testConfig(), deps)
	if err != nil {
		t.Fatal(err)
	}
	defer c.End("test")

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	stream.push(`{"setupComplete":{}}`)
	waitEvent[*ConnectedEvent](t, c.Events())

	stream.push(`{"serverContent":{"inputTranscription":{"text":"click the submit button","finished":true}}}`)
	ev := waitEvent[*HighlightEvent](t, c.Events())
	if len(ev.ElementIDs) != 1 || ev.ElementIDs[0] != "btn-1" {
		t.Errorf("highlighted %v, want btn-1", ev.ElementIDs)
	}
}

func TestInterruptedStopsPlayback(t *testing.T) {
	stream := newFakeStream()
	deps, _, playback := testDeps(stream)
	c, err := New(testConfig(), deps)
	if err != nil {
		t.Fatal(err)
	}
	defer c.End("test")

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	stream.push(`{"setupComplete":{}}`)
	waitEvent[*ConnectedEvent](t, c.Events())

	stream.push(`{"serverContent":{"interrupted":true}}`)
	waitEvent[*InterruptedEvent](t, c.Events())

	playback.mu.Lock()
	stops := playback.stops
	playback.mu.Unlock()
	if stops != 1 {
		t.Errorf("playback stops = %d, want 1", stops)
	}
}

func TestEnd_TeardownIsOneShot(t *testing.T) {
	stream := newFakeStream()
	deps, mic, _ := testDeps(stream)
	recorder := &fakeRecorder{quotaOK: true}
	deps.Recorder = recorder

	config := testConfig()
	config.AccountID = "acct_1"
	c, err := New(config, deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	stream.push(`{"setupComplete":{}}`)
	waitEvent[*ConnectedEvent](t, c.Events())
	stream.push(`{"serverContent":{"inputTranscription":{"text":"hello there","finished":true}}}`)
	stream.push(`{"usageMetadata":{"promptTokenCount":10,"responseTokenCount":5,"totalTokenCount":15}}`)
	stream.push(`{"serverContent":{"turnComplete":true}}`)
	waitEvent[*TurnCompleteEvent](t, c.Events())

	c.End("user_request")
	ended := waitEvent[*EndedEvent](t, c.Events())
	if ended.Reason != "user_request" {
		t.Errorf("reason = %q", ended.Reason)
	}
	if ended.Transcript != "hello there" {
		t.Errorf("transcript = %q", ended.Transcript)
	}

	c.End("again")
	c.EndDetached()

	recorder.mu.Lock()
	saves, usages := len(recorder.transcripts), recorder.usageCalls
	recorder.mu.Unlock()
	if saves != 1 {
		t.Errorf("transcript saved %d times, want 1", saves)
	}
	if usages != 1 {
		t.Errorf("usage recorded %d times, want 1", usages)
	}
	if mic.stopCount() == 0 {
		t.Error("microphone was not stopped")
	}
	if c.State() != StateEnded {
		t.Errorf("state = %v, want ended", c.State())
	}
}

func TestEndDetached_UsesPublisher(t *testing.T) {
	stream := newFakeStream()
	deps, _, _ := testDeps(stream)
	recorder := &fakeRecorder{quotaOK: true}
	publisher := &fakePublisher{}
	deps.Recorder = recorder
	deps.Publisher = publisher

	c, err := New(testConfig(), deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	stream.push(`{"setupComplete":{}}`)
	waitEvent[*ConnectedEvent](t, c.Events())

	c.EndDetached()
	waitEvent[*EndedEvent](t, c.Events())

	publisher.mu.Lock()
	calls := publisher.calls
	publisher.mu.Unlock()
	if calls != 1 {
		t.Errorf("publisher calls = %d, want 1", calls)
	}
	recorder.mu.Lock()
	saves := len(recorder.transcripts)
	recorder.mu.Unlock()
	if saves != 0 {
		t.Errorf("recorder used on detached end: %d saves", saves)
	}
}

func TestMaxDurationEndsSession(t *testing.T) {
	stream := newFakeStream()
	deps, _, _ := testDeps(stream)
	config := testConfig()
	config.MaxDuration = 30 * time.Millisecond

	c, err := New(config, deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	stream.push(`{"setupComplete":{}}`)

	ended := waitEvent[*EndedEvent](t, c.Events())
	if ended.Reason != "max_duration" {
		t.Errorf("reason = %q, want max_duration", ended.Reason)
	}
}

func TestGoAwayEndsSession(t *testing.T) {
	stream := newFakeStream()
	deps, _, _ := testDeps(stream)
	c, err := New(testConfig(), deps)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	stream.push(`{"setupComplete":{}}`)
	waitEvent[*ConnectedEvent](t, c.Events())
	stream.push(`{"goAway":{}}`)

	ended := waitEvent[*EndedEvent](t, c.Events())
	if ended.Reason != "go_away" {
		t.Errorf("reason = %q, want go_away", ended.Reason)
	}
}

type recordingSurface struct {
	mu sync.Mutex
}

func (s *recordingSurface) Outline(ids []string) error { return nil }
func (s *recordingSurface) Remove()                    {}
func (s *recordingSurface) ScrollIntoView(id string)   {}
