// Package relay implements the websocket relay that sits between browser
// clients and the upstream live API. The relay holds the upstream
// credential and forwards frames verbatim in both directions; it never
// inspects or rewrites session traffic.
package relay

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/voicepilot-ai/voicepilot/pkg/core"
)

// Config holds relay server configuration, loaded from the environment.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// UpstreamURL is the live API websocket endpoint, without credentials.
	UpstreamURL string

	// APIKey is the upstream credential, injected server-side on every
	// upstream dial. It never reaches the browser.
	APIKey string

	// AllowedOrigins restricts websocket upgrades; empty allows any origin.
	AllowedOrigins []string

	// LogLevel and LogFormat configure the global logger.
	LogLevel  string
	LogFormat string

	// Kafka settings for the session-ended event stream.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// DatabaseURL enables the Postgres session store when non-empty.
	DatabaseURL string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:  envOrDefault("RELAY_LISTEN_ADDR", ":8080"),
		UpstreamURL: envOrDefault("RELAY_UPSTREAM_URL", "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"),
		APIKey:      os.Getenv("RELAY_API_KEY"),
		LogLevel:    envOrDefault("RELAY_LOG_LEVEL", "info"),
		LogFormat:   envOrDefault("RELAY_LOG_FORMAT", "json"),
		KafkaTopic:  envOrDefault("RELAY_KAFKA_TOPIC", "voicepilot.session.ended"),
		DatabaseURL: os.Getenv("RELAY_DATABASE_URL"),
	}
	if origins := os.Getenv("RELAY_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}
	if brokers := os.Getenv("RELAY_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	cfg.KafkaEnabled, _ = strconv.ParseBool(envOrDefault("RELAY_KAFKA_ENABLED", "false"))

	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.NewConfigurationErrorWithParam("RELAY_API_KEY is required", "RELAY_API_KEY")
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
