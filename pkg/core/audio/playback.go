package audio

import (
	"encoding/base64"
	"sync"

	"github.com/rs/zerolog"

	"github.com/voicepilot-ai/voicepilot/pkg/core"
)

// Clock reports the current time of the output audio graph in seconds.
// It must be monotonic for the lifetime of one session.
type Clock interface {
	Now() float64
}

// Sink renders normalized float samples on the output device starting at
// the given output-clock time.
type Sink interface {
	// PlayAt schedules one buffer. Buffers are never resubmitted.
	PlayAt(samples []float32, sampleRate int, startAt float64) error

	// Stop discards anything scheduled but not yet rendered.
	Stop()
}

// Scheduler decodes incoming PCM16 buffers and plays them back gapless and
// in arrival order.
//
// It keeps a single playback cursor: each buffer starts at
// max(clockNow, cursor) and advances the cursor by its own duration, so
// scheduled buffers never overlap and never play out of temporal sequence
// even under bursty arrival.
type Scheduler struct {
	clock  Clock
	sink   Sink
	config Config
	log    zerolog.Logger

	mu            sync.Mutex
	nextStartTime float64
	started       bool
}

// NewScheduler creates a playback scheduler. The cursor is anchored to the
// output clock on the first buffer.
func NewScheduler(clock Clock, sink Sink, config Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		clock:  clock,
		sink:   sink,
		config: config,
		log:    log.With().Str("component", "playback").Logger(),
	}
}

// EnqueueBase64 decodes a base64 PCM16 payload and schedules it. Malformed
// payloads are logged and dropped; the stream continues.
func (s *Scheduler) EnqueueBase64(data string) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		s.log.Warn().Err(core.NewDecodeError("invalid base64 audio payload", err)).
			Msg("dropping audio buffer")
		return
	}
	s.EnqueuePCM16(raw)
}

// EnqueuePCM16 decodes a raw little-endian PCM16 payload and schedules it.
func (s *Scheduler) EnqueuePCM16(data []byte) {
	samples, err := DecodePCM16(data)
	if err != nil {
		s.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping audio buffer")
		return
	}
	if len(samples) == 0 {
		return
	}

	floats := make([]float32, len(samples))
	for i, v := range samples {
		floats[i] = float32(v) / 32768.0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if !s.started {
		s.nextStartTime = now
		s.started = true
	}
	startAt := s.nextStartTime
	if now > startAt {
		startAt = now
	}
	if err := s.sink.PlayAt(floats, s.config.SampleRate, startAt); err != nil {
		s.log.Warn().Err(err).Msg("sink rejected buffer")
		return
	}
	s.nextStartTime = startAt + s.config.Seconds(len(floats))
}

// Cursor returns the next available start time. Zero until the first
// buffer has been scheduled.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStartTime
}

// Stop discards pending output and re-anchors the cursor, so a later
// session reuse starts from the current clock time.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.Stop()
	s.started = false
	s.nextStartTime = 0
}
