package relay

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/voicepilot-ai/voicepilot/internal/observability/metrics"
)

// QuotaChecker gates new sessions before the upstream dial.
type QuotaChecker interface {
	CheckQuota(ctx context.Context, accountID string) (bool, error)
}

// EndedPublisher receives a best-effort session-ended event once a relayed
// session closes.
type EndedPublisher interface {
	PublishEnded(sessionID, accountID, transcriptText string, duration time.Duration)
}

// Server accepts browser websocket connections and relays each one to its
// own upstream connection.
type Server struct {
	config    *Config
	log       zerolog.Logger
	metrics   *metrics.Metrics
	upgrader  websocket.Upgrader
	quota     QuotaChecker
	publisher EndedPublisher
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithQuota enables the store-backed quota pre-flight.
func WithQuota(q QuotaChecker) Option {
	return func(s *Server) { s.quota = q }
}

// WithPublisher enables session-ended event publishing.
func WithPublisher(p EndedPublisher) Option {
	return func(s *Server) { s.publisher = p }
}

// NewServer creates a relay server.
func NewServer(config *Config, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		config:  config,
		log:     log.With().Str("component", "relay").Logger(),
		metrics: metrics.DefaultMetrics,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  32 * 1024,
		WriteBufferSize: 32 * 1024,
		CheckOrigin:     s.checkOrigin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the HTTP handler for the relay.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/session", s.handleSession)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleSession upgrades the browser connection, opens the matching
// upstream connection with the server-held credential, and pumps frames
// both ways until either side closes.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	client, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	connID := ulid.Make().String()
	accountID := r.URL.Query().Get("account")
	log := s.log.With().Str("connId", connID).Logger()

	if s.quota != nil && accountID != "" {
		ok, err := s.quota.CheckQuota(r.Context(), accountID)
		if err != nil {
			// Fail open: a quota backend outage should not take sessions down.
			log.Warn().Err(err).Msg("quota check failed")
		} else if !ok {
			log.Info().Str("accountId", accountID).Msg("session denied by quota")
			client.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "quota exceeded"),
				time.Now().Add(time.Second),
			)
			client.Close()
			return
		}
	}

	upstream, err := s.dialUpstream()
	if err != nil {
		s.metrics.UpstreamDialErrors.Inc()
		log.Error().Err(err).Msg("upstream dial failed")
		client.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "upstream unavailable"),
			time.Now().Add(time.Second),
		)
		client.Close()
		return
	}

	log.Info().Msg("session relayed")
	s.metrics.RecordSessionStart()
	start := time.Now()

	Forward(client, upstream, log, s.metrics)

	duration := time.Since(start)
	s.metrics.RecordSessionEnd(duration.Seconds())
	if s.publisher != nil {
		// The relay is a transparent forwarder and holds no transcript.
		s.publisher.PublishEnded(connID, accountID, "", duration)
	}
	log.Info().Dur("duration", duration).Msg("session closed")
}

// dialUpstream opens the upstream connection with the API key appended as
// a query parameter. The credential exists only on this hop.
func (s *Server) dialUpstream() (*websocket.Conn, error) {
	u, err := url.Parse(s.config.UpstreamURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("key", s.config.APIKey)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	return conn, err
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}
