// Package db implements store.Store on PostgreSQL via pgx.
package db

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clawtrap/clawtrap/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB wraps a pgx connection pool and provides the write-only evidence
// operations of the honeypot.
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ store.Store = (*DB)(nil)

// Connect creates a new DB instance, connects to PostgreSQL, and runs
// migrations. A failure here is fatal to the process: a honeypot with no
// store records nothing worth running for.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db := &DB{Pool: pool, logger: logger}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Migrate reads and executes the embedded SQL migration files.
func (db *DB) Migrate(ctx context.Context) error {
	sql, err := migrations.ReadFile("migrations/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	db.logger.Info("database migrated")
	return nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// PingContext checks the database connection.
func (db *DB) PingContext(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// ---------------------------------------------------------------------------
// Connections
// ---------------------------------------------------------------------------

func (db *DB) InsertConnection(ctx context.Context, c *store.Connection) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO connections (id, source_ip, user_agent, transport, connected_at)
		 VALUES ($1, $2::inet, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, c.SourceIP, c.UserAgent, c.Transport, c.ConnectedAt)
	return err
}

// CloseConnection stamps disconnected_at once; a connection already closed
// keeps its original timestamp.
func (db *DB) CloseConnection(ctx context.Context, id string, at time.Time) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE connections SET disconnected_at = $1 WHERE id = $2 AND disconnected_at IS NULL`,
		at, id)
	return err
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

func (db *DB) InsertRequest(ctx context.Context, r *store.Request) error {
	r.Clamp()
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO requests (connection_id, method, path, query, headers, body, body_size,
		                       response_code, response_body, duration_ms, suspicious, reasons)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ConnectionID, r.Method, r.Path, r.Query, r.Headers, r.Body, r.BodySize,
		r.ResponseCode, r.ResponseBody, r.DurationMs, r.Suspicious, r.Reasons)
	return err
}

// ---------------------------------------------------------------------------
// WebSocket messages
// ---------------------------------------------------------------------------

func (db *DB) InsertWSMessage(ctx context.Context, m *store.WSMessage) error {
	m.Clamp()
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO ws_messages (connection_id, direction, frame_kind, method, correl_id,
		                          payload, raw, payload_size, suspicious, reasons)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ConnectionID, m.Direction, m.FrameKind, m.Method, m.CorrelID,
		m.Payload, m.Raw, m.PayloadSize, m.Suspicious, m.Reasons)
	return err
}

// ---------------------------------------------------------------------------
// Auth attempts
// ---------------------------------------------------------------------------

func (db *DB) InsertAuthAttempt(ctx context.Context, a *store.AuthAttempt) error {
	a.Clamp()
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO auth_attempts (connection_id, source_ip, auth_method, credential,
		                            credential_raw, success, client_id, client_version, client_platform)
		 VALUES ($1, $2::inet, $3, $4, $5, $6, $7, $8, $9)`,
		a.ConnectionID, a.SourceIP, a.AuthMethod, a.Credential,
		a.CredentialRaw, a.Success, a.ClientID, a.ClientVersion, a.ClientPlatform)
	return err
}

// ---------------------------------------------------------------------------
// Channel interactions
// ---------------------------------------------------------------------------

func (db *DB) InsertChannelInteraction(ctx context.Context, c *store.ChannelInteraction) error {
	c.Clamp()
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO channel_interactions (channel, endpoint, method, headers, payload, payload_size,
		                                   sender_id, message_text, source_ip, response_code, response_body,
		                                   suspicious, reasons)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::inet, $10, $11, $12, $13)`,
		c.Channel, c.Endpoint, c.Method, c.Headers, c.Payload, c.PayloadSize,
		nullable(c.SenderID), nullable(c.MessageText), c.SourceIP, c.ResponseCode, c.ResponseBody,
		c.Suspicious, c.Reasons)
	return err
}

// ---------------------------------------------------------------------------
// Suspicious activities
// ---------------------------------------------------------------------------

func (db *DB) InsertSuspiciousActivity(ctx context.Context, s *store.SuspiciousActivity) error {
	s.Clamp()
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO suspicious_activities (connection_id, category, severity, description, payload,
		                                    pattern, source_ip, user_agent, path, method)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::inet, $8, $9, $10)`,
		nullable(s.ConnectionID), s.Category, s.Severity, s.Description, s.Payload,
		s.Pattern, s.SourceIP, s.UserAgent, s.Path, s.Method)
	return err
}

// ---------------------------------------------------------------------------
// Attacker sessions
// ---------------------------------------------------------------------------

// UpsertAttackerSession creates the per-IP aggregate on first touch and
// atomically increments counters afterwards. Boolean flags are sticky: OR
// on the database side means a raised flag never reverts.
func (db *DB) UpsertAttackerSession(ctx context.Context, ip string, d store.SessionDelta) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO attacker_sessions (source_ip, first_seen, last_seen, request_count, ws_message_count,
		                                auth_count, suspicious_count, is_scanner, is_bruteforcer, is_exploiter, geo_country)
		 VALUES ($1::inet, NOW(), NOW(), $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (source_ip) DO UPDATE SET
		    last_seen        = NOW(),
		    request_count    = attacker_sessions.request_count + EXCLUDED.request_count,
		    ws_message_count = attacker_sessions.ws_message_count + EXCLUDED.ws_message_count,
		    auth_count       = attacker_sessions.auth_count + EXCLUDED.auth_count,
		    suspicious_count = attacker_sessions.suspicious_count + EXCLUDED.suspicious_count,
		    is_scanner       = attacker_sessions.is_scanner OR EXCLUDED.is_scanner,
		    is_bruteforcer   = attacker_sessions.is_bruteforcer OR EXCLUDED.is_bruteforcer,
		    is_exploiter     = attacker_sessions.is_exploiter OR EXCLUDED.is_exploiter,
		    geo_country      = COALESCE(NULLIF(EXCLUDED.geo_country, ''), attacker_sessions.geo_country)`,
		ip, d.Requests, d.WSMessages, d.AuthAttempts, d.Suspicious,
		d.IsScanner, d.IsBruteforcer, d.IsExploiter, d.GeoCountry)
	return err
}

// ---------------------------------------------------------------------------
// Events and alerts
// ---------------------------------------------------------------------------

func (db *DB) InsertEvent(ctx context.Context, e *store.Event) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO events (connection_id, name, payload, seq) VALUES ($1, $2, $3, $4)`,
		nullable(e.ConnectionID), e.Name, e.Payload, e.Seq)
	return err
}

func (db *DB) InsertAlert(ctx context.Context, a *store.Alert) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO alerts (category, severity, source_ip, payload, delivered, error)
		 VALUES ($1, $2, $3::inet, $4, $5, $6)`,
		a.Category, a.Severity, a.SourceIP, a.Payload, a.Delivered, nullable(a.Error))
	return err
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
