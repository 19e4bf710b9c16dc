// Package leaderelection provides Postgres advisory lock-based leader
// election for singleton duties (the stale-pending sweeper).
//
// A single Postgres session-scoped advisory lock determines the leader.
// The lock is held for the lifetime of the dedicated database connection;
// there is no renewal or TTL. If the connection dies, Postgres releases
// the lock server-side (timing depends on TCP keepalive settings).
//
// The heartbeat ping exists solely to detect local connection death so the
// leader can stop its duties promptly. It does NOT renew the lock.
package leaderelection

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"
)

// Elector manages leader election using a Postgres advisory lock.
type Elector struct {
	db                *sql.DB
	lockKey           int64
	retryInterval     time.Duration // follower: how often to attempt lock acquisition
	heartbeatInterval time.Duration // leader: how often to ping dedicated connection
	onElected         func(ctx context.Context)
	onDemoted         func()
	log               zerolog.Logger
}

// New creates a new Elector.
//
// onElected is called in a new goroutine when this instance acquires the
// lock; the provided context is cancelled when leadership is lost. It
// should start leader duties and return quickly.
//
// onDemoted is called synchronously when leadership is lost. It should
// stop leader duties, block until they are stopped, and be idempotent.
func New(
	db *sql.DB,
	lockKey int64,
	retryInterval, heartbeatInterval time.Duration,
	onElected func(ctx context.Context),
	onDemoted func(),
	log zerolog.Logger,
) *Elector {
	return &Elector{
		db:                db,
		lockKey:           lockKey,
		retryInterval:     retryInterval,
		heartbeatInterval: heartbeatInterval,
		onElected:         onElected,
		onDemoted:         onDemoted,
		log:               log.With().Str("component", "leader").Logger(),
	}
}

// Run starts the leader election loop. It blocks until ctx is cancelled.
func (e *Elector) Run(ctx context.Context) {
	e.log.Info().
		Int64("lock_key", e.lockKey).
		Dur("retry", e.retryInterval).
		Dur("heartbeat", e.heartbeatInterval).
		Msg("starting election loop")

	for {
		if ctx.Err() != nil {
			e.log.Info().Msg("election loop stopped")
			return
		}

		reason := e.runOnce(ctx)

		if ctx.Err() != nil {
			e.log.Info().Msg("election loop stopped")
			return
		}

		if reason != "" {
			e.log.Warn().Str("reason", reason).Dur("retry", e.retryInterval).Msg("lost leadership")
		}

		select {
		case <-ctx.Done():
			e.log.Info().Msg("election loop stopped")
			return
		case <-time.After(e.retryInterval):
		}
	}
}

// runOnce attempts to acquire the advisory lock and hold it.
// Returns the reason leadership was lost ("" if lock was not acquired).
func (e *Elector) runOnce(ctx context.Context) string {
	// Advisory lock is session-scoped: must use a dedicated connection.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("acquire dedicated connection")
		return ""
	}
	defer conn.Close()

	// Non-blocking lock attempt.
	var acquired bool
	err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", e.lockKey).Scan(&acquired)
	if err != nil {
		e.log.Error().Err(err).Msg("advisory lock query")
		return ""
	}
	if !acquired {
		e.log.Debug().Int64("lock_key", e.lockKey).Msg("lock held by another instance")
		return ""
	}

	e.log.Info().Int64("lock_key", e.lockKey).Msg("acquired advisory lock")

	leaderCtx, cancelLeader := context.WithCancel(ctx)

	go e.onElected(leaderCtx)

	// Ping detects local connection death; it does NOT renew the lock.
	reason := e.holdLock(ctx, conn)

	cancelLeader()
	e.onDemoted()

	e.log.Info().Int64("lock_key", e.lockKey).Msg("released advisory lock")
	return reason
}

// holdLock blocks while pinging the dedicated connection.
// Returns the reason the lock was lost.
func (e *Elector) holdLock(ctx context.Context, conn *sql.Conn) string {
	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "shutdown"
		case <-ticker.C:
			if err := conn.PingContext(ctx); err != nil {
				if ctx.Err() != nil {
					return "shutdown"
				}
				e.log.Error().Err(err).Msg("dedicated connection ping failed")
				return "conn_lost"
			}
		}
	}
}
