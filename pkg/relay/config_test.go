package relay

import (
	"testing"

	"github.com/voicepilot-ai/voicepilot/pkg/core"
)

func TestLoad_RequiresAPIKey(t *testing.T) {
	t.Setenv("RELAY_API_KEY", "")
	if _, err := Load(); !core.IsType(err, core.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RELAY_API_KEY", "k")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.KafkaEnabled {
		t.Error("Kafka should default to disabled")
	}
	if cfg.KafkaTopic != "voicepilot.session.ended" {
		t.Errorf("KafkaTopic = %q", cfg.KafkaTopic)
	}
}

func TestLoad_ListsSplitAndTrim(t *testing.T) {
	t.Setenv("RELAY_API_KEY", "k")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com ,")
	t.Setenv("RELAY_KAFKA_BROKERS", "kafka-0:9092,kafka-1:9092")
	t.Setenv("RELAY_KAFKA_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if len(cfg.KafkaBrokers) != 2 || !cfg.KafkaEnabled {
		t.Errorf("Kafka config = %v enabled=%v", cfg.KafkaBrokers, cfg.KafkaEnabled)
	}
}
