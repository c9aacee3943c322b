package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store bundles the Postgres repositories over one connection pool.
type Store struct {
	Tenants       *TenantRepository
	Members       *MemberRepository
	Snapshots     *RiskSnapshotRepository
	Plays         *PlayRepository
	Interventions *InterventionRepository
	Events        *MessageEventRepository
	Outcomes      *OutcomeRepository
	Locker        *AdvisoryLocker
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		Tenants:       &TenantRepository{DB: db},
		Members:       &MemberRepository{DB: db},
		Snapshots:     &RiskSnapshotRepository{DB: db},
		Plays:         &PlayRepository{DB: db},
		Interventions: &InterventionRepository{DB: db},
		Events:        &MessageEventRepository{DB: db},
		Outcomes:      &OutcomeRepository{DB: db},
		Locker:        &AdvisoryLocker{DB: db},
	}
}

// AdvisoryLocker serializes work per key across processes with a
// session-level Postgres advisory lock. Waiters poll with
// pg_try_advisory_lock and hand their connection back to the pool between
// attempts, so only the holder pins a connection while it works.
type AdvisoryLocker struct {
	DB *sql.DB
	// RetryInterval is the first wait between attempts; it doubles up to
	// MaxRetryInterval.
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
}

const (
	defaultLockRetry    = 50 * time.Millisecond
	defaultMaxLockRetry = time.Second
)

func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	wait := l.RetryInterval
	if wait <= 0 {
		wait = defaultLockRetry
	}
	maxWait := l.MaxRetryInterval
	if maxWait <= 0 {
		maxWait = defaultMaxLockRetry
	}

	for {
		conn, acquired, err := l.tryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if acquired {
			return func() {
				// unlock must run even when ctx is already cancelled
				_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, key)
				conn.Close()
			}, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("advisory lock %q: %w", key, ctx.Err())
		case <-timer.C:
		}
		wait = min(wait*2, maxWait)
	}
}

// tryLock returns the connection holding the lock when acquired is true.
// Otherwise the connection is already back in the pool.
func (l *AdvisoryLocker) tryLock(ctx context.Context, key string) (*sql.Conn, bool, error) {
	conn, err := l.DB.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection for lock: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&acquired); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("advisory lock %q: %w", key, err)
	}
	if !acquired {
		conn.Close()
		return nil, false, nil
	}
	return conn, true, nil
}
