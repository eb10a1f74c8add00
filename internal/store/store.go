// Package store defines the write-only persistence facade the honeypot
// records evidence through, plus an in-memory implementation used in tests.
// The postgres implementation lives in internal/db.
package store

import (
	"context"
	"time"
)

// Store is the typed write-only facade over the evidence tables. Inserts are
// idempotent per row; attacker sessions are upserted. Implementations must
// be safe for concurrent use.
type Store interface {
	InsertConnection(ctx context.Context, c *Connection) error
	CloseConnection(ctx context.Context, id string, at time.Time) error
	InsertRequest(ctx context.Context, r *Request) error
	InsertWSMessage(ctx context.Context, m *WSMessage) error
	InsertAuthAttempt(ctx context.Context, a *AuthAttempt) error
	InsertChannelInteraction(ctx context.Context, c *ChannelInteraction) error
	InsertSuspiciousActivity(ctx context.Context, s *SuspiciousActivity) error
	UpsertAttackerSession(ctx context.Context, ip string, d SessionDelta) error
	InsertEvent(ctx context.Context, e *Event) error
	InsertAlert(ctx context.Context, a *Alert) error
}
