// Package store persists session records, transcripts, and usage in
// Postgres.
package store

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/voicepilot-ai/voicepilot/pkg/core"
	"github.com/voicepilot-ai/voicepilot/pkg/core/session"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultDailySessionLimit applies to accounts without an explicit limit.
const DefaultDailySessionLimit = 50

// Store is the Postgres-backed session store.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Open connects to Postgres, applies pending migrations, and returns the
// store.
func Open(ctx context.Context, databaseURL string, log zerolog.Logger) (*Store, error) {
	if err := migrate(databaseURL); err != nil {
		return nil, core.NewTransportError("migrate", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, core.NewTransportError("db connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, core.NewTransportError("db ping", err)
	}
	return &Store{
		pool: pool,
		log:  log.With().Str("component", "store").Logger(),
	}, nil
}

// migrate applies goose migrations over a throwaway database/sql handle;
// the pgx pool used at runtime never sees DDL.
func migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// CheckQuota reports whether the account is under its daily session limit,
// and opens a session row if so.
func (s *Store) CheckQuota(ctx context.Context, accountID string) (bool, error) {
	var limit int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(
			(SELECT daily_session_limit FROM accounts WHERE id = $1), $2)`,
		accountID, DefaultDailySessionLimit,
	).Scan(&limit)
	if err != nil {
		return false, core.NewTransportError("quota lookup", err)
	}

	var used int
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions
		 WHERE account_id = $1 AND started_at > now() - interval '24 hours'`,
		accountID,
	).Scan(&used)
	if err != nil {
		return false, core.NewTransportError("quota count", err)
	}
	if used >= limit {
		s.log.Info().Str("accountId", accountID).Int("used", used).Int("limit", limit).
			Msg("session quota exhausted")
		return false, nil
	}
	return true, nil
}

// SaveTranscript stores the final transcript for a session, creating the
// session row if the session was never opened through this store.
func (s *Store) SaveTranscript(ctx context.Context, sessionID, accountID, text string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, account_id, started_at, transcript, ended_at)
		 VALUES ($1, $2, now(), $3, now())
		 ON CONFLICT (id) DO UPDATE
		 SET transcript = EXCLUDED.transcript, ended_at = now()`,
		sessionID, accountID, text,
	)
	if err != nil {
		return core.NewTransportError("transcript save", err)
	}
	return nil
}

// RecordUsage stores token accounting for a session. The primary key on
// session_id makes the write at-most-once: a duplicate call is a no-op.
func (s *Store) RecordUsage(ctx context.Context, sessionID, accountID string, usage session.UsageMetadata, duration time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_usage
		 (session_id, account_id, prompt_tokens, response_tokens, total_tokens, duration_ms, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID, accountID,
		usage.PromptTokenCount, usage.ResponseTokenCount, usage.TotalTokenCount,
		duration.Milliseconds(),
	)
	if err != nil {
		return core.NewTransportError("usage insert", err)
	}
	return nil
}

// Transcript fetches a stored transcript.
func (s *Store) Transcript(ctx context.Context, sessionID string) (string, error) {
	var text sql.NullString
	err := s.pool.QueryRow(ctx,
		`SELECT transcript FROM sessions WHERE id = $1`, sessionID,
	).Scan(&text)
	if err != nil {
		return "", core.NewTransportError("transcript lookup", err)
	}
	return text.String, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
