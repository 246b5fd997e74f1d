// Command voicepilot-relay runs the websocket relay between browser
// clients and the upstream live API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicepilot-ai/voicepilot/internal/events"
	"github.com/voicepilot-ai/voicepilot/internal/observability/logging"
	"github.com/voicepilot-ai/voicepilot/pkg/relay"
	"github.com/voicepilot-ai/voicepilot/pkg/store"
)

func main() {
	config, err := relay.Load()
	if err != nil {
		logging.Init(logging.DefaultConfig())
		logger := logging.Logger()
		logger.Fatal().Err(err).Msg("configuration invalid")
	}

	logging.Init(logging.Config{Level: config.LogLevel, Format: config.LogFormat})
	log := logging.WithComponent("main")

	publisher := events.New(&events.Config{
		Brokers: config.KafkaBrokers,
		Topic:   config.KafkaTopic,
		Enabled: config.KafkaEnabled,
	})
	defer publisher.Close()

	opts := []relay.Option{relay.WithPublisher(publisher)}
	if config.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err := store.Open(ctx, config.DatabaseURL, logging.Logger())
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("store open failed")
		}
		defer db.Close()
		opts = append(opts, relay.WithQuota(db))
	}

	server := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           relay.NewServer(config, logging.Logger(), opts...).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", config.ListenAddr).Msg("relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}
