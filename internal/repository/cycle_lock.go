package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// AdvisoryLocker holds a session-level Postgres advisory lock per user for
// the length of a cycle, so separate processes never cycle the same user
// at once. The lock key is the user id.
type AdvisoryLocker struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewAdvisoryLocker(pool *pgxpool.Pool, logger zerolog.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool, logger: logger.With().Str("service", "AdvisoryLocker").Logger()}
}

// TryLock pins a pooled connection and takes the lock on it. The returned
// func releases the lock and hands the connection back.
func (l *AdvisoryLocker) TryLock(ctx context.Context, userID int64) (func(), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection for cycle lock: %w", err)
	}

	var locked bool
	const q = `SELECT pg_try_advisory_lock($1)`
	if err := conn.QueryRow(ctx, q, userID).Scan(&locked); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("take cycle lock for user %d: %w", userID, err)
	}
	if !locked {
		conn.Release()
		return nil, false, nil
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, userID); err != nil {
			// closing the session drops every lock it holds
			l.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to release cycle lock, closing connection")
			_ = conn.Conn().Close(unlockCtx)
		}
		conn.Release()
	}, true, nil
}
