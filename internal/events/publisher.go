// Package events provides best-effort event publishing to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/voicepilot-ai/voicepilot/internal/observability/metrics"
)

// SessionEndedEvent is the payload published when a session tears down on
// the detached path, where nothing waits for a database write.
type SessionEndedEvent struct {
	SessionID  string    `json:"session_id"`
	AccountID  string    `json:"account_id,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	EndedAt    time.Time `json:"ended_at"`
}

// Publisher publishes session events to Kafka. When disabled it degrades
// to log-only mode so callers never have to branch.
type Publisher struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
	metrics *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// New creates a Kafka event publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		p := &Publisher{enabled: false, metrics: m}
		if cfg != nil {
			p.topic = cfg.Topic
		}
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writer:  writer,
		topic:   cfg.Topic,
		enabled: true,
		metrics: m,
	}
}

// PublishEnded publishes a session-ended event without blocking the caller.
// Failures are logged and counted; the session teardown never waits on
// Kafka.
func (p *Publisher) PublishEnded(sessionID, accountID, transcriptText string, duration time.Duration) {
	event := SessionEndedEvent{
		SessionID:  sessionID,
		AccountID:  accountID,
		Transcript: transcriptText,
		DurationMS: duration.Milliseconds(),
		EndedAt:    time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.publish(ctx, sessionID, event); err != nil {
			log.Error().Err(err).Str("sessionId", sessionID).Msg("session-ended publish failed")
		}
	}()
}

func (p *Publisher) publish(ctx context.Context, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	log.Debug().
		Str("topic", p.topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("publishing event")

	if !p.enabled || p.writer == nil {
		p.metrics.RecordKafkaPublish(p.topic, nil)
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("session_ended")},
		},
	}
	err = p.writer.WriteMessages(ctx, msg)
	p.metrics.RecordKafkaPublish(p.topic, err)
	return err
}

// Close closes the Kafka writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
