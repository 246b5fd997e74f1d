// Command voicepilot-session runs a headless realtime session against a
// relay, streaming a PCM16 audio file as the microphone input and printing
// transcript and highlight activity. Useful for exercising a relay
// deployment end to end without a browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/voicepilot-ai/voicepilot/internal/observability/logging"
	"github.com/voicepilot-ai/voicepilot/pkg/core/audio"
	"github.com/voicepilot-ai/voicepilot/pkg/core/session"
)

func main() {
	var (
		relayURL   = flag.String("relay", "ws://localhost:8080/v1/session", "relay websocket URL")
		audioPath  = flag.String("audio", "", "PCM16 mono audio file to stream as microphone input")
		sampleRate = flag.Int("rate", 48000, "sample rate of the audio file")
		greeting   = flag.String("greeting", "", "opening user turn; the assistant speaks first when set")
		model      = flag.String("model", "", "upstream model override")
		duration   = flag.Duration("max-duration", 2*time.Minute, "session duration cap")
		logLevel   = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: *logLevel, Format: "console"})
	log := logging.WithComponent("session-runner")

	if *audioPath == "" {
		log.Fatal().Msg("-audio is required")
	}
	pcm, err := os.ReadFile(*audioPath)
	if err != nil {
		log.Fatal().Err(err).Msg("audio file unreadable")
	}

	config := session.DefaultConfig()
	config.RelayURL = *relayURL
	config.Greeting = *greeting
	config.MaxDuration = *duration
	if *model != "" {
		config.Model = *model
	}

	playbackConfig := audio.PlaybackConfig()
	scheduler := audio.NewScheduler(wallClock{start: time.Now()}, discardSink{}, playbackConfig, logging.Logger())

	controller, err := session.New(config, session.Deps{
		Dialer:     &session.WebSocketDialer{},
		Microphone: newFileMic(pcm, *sampleRate),
		Playback:   scheduler,
		Log:        logging.Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("session setup failed")
	}

	if err := controller.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("session start failed")
	}

	for event := range controller.Events() {
		switch e := event.(type) {
		case *session.ConnectedEvent:
			fmt.Printf("connected: %s\n", e.SessionID)
		case *session.TranscriptDisplayEvent:
			fmt.Printf("transcript: %s\n", e.Text)
		case *session.InputLevelEvent:
			log.Debug().Float64("rms", e.RMS).Float64("peak", e.Peak).Msg("input level")
		case *session.HighlightEvent:
			fmt.Printf("highlight: %v (%q)\n", e.ElementIDs, e.Phrase)
		case *session.TurnCompleteEvent:
			fmt.Println("turn complete")
		case *session.ErrorEvent:
			fmt.Printf("error: %s: %s\n", e.Code, e.Message)
		case *session.EndedEvent:
			fmt.Printf("ended (%s)\n%s\n", e.Reason, e.Transcript)
		}
	}
}

// fileMic streams a PCM16 buffer as microphone chunks, paced in real time.
type fileMic struct {
	pcm  []byte
	rate int
	stop chan struct{}
}

func newFileMic(pcm []byte, rate int) *fileMic {
	return &fileMic{pcm: pcm, rate: rate, stop: make(chan struct{})}
}

func (m *fileMic) NativeRate() int { return m.rate }

func (m *fileMic) Start(ctx context.Context, onChunk func(samples []float32)) error {
	samples, err := audio.DecodePCM16(m.pcm)
	if err != nil {
		return err
	}
	floats := make([]float32, len(samples))
	for i, s := range samples {
		floats[i] = float32(s) / 32768.0
	}

	interval := time.Duration(float64(audio.CaptureChunkSize) / float64(m.rate) * float64(time.Second))
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for offset := 0; offset < len(floats); offset += audio.CaptureChunkSize {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				end := offset + audio.CaptureChunkSize
				if end > len(floats) {
					end = len(floats)
				}
				onChunk(floats[offset:end])
			}
		}
	}()
	return nil
}

func (m *fileMic) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
}

// wallClock drives the playback scheduler from wall time.
type wallClock struct {
	start time.Time
}

func (c wallClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

// discardSink accepts scheduled buffers without rendering them; the runner
// has no output device.
type discardSink struct{}

func (discardSink) PlayAt(samples []float32, sampleRate int, startAt float64) error { return nil }
func (discardSink) Stop()                                                           {}
