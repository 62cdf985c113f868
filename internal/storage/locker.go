package storage

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Locker hands out advisory locks so that only one worker process runs a
// given job at a time.
type Locker interface {
	// TryLock attempts to take the named lock without blocking. When ok is
	// true the caller must call unlock once done.
	TryLock(ctx context.Context, name string) (unlock func(), ok bool, err error)
	Close() error
}

// NopLocker always grants the lock.
type NopLocker struct{}

func (NopLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	return func() {}, true, nil
}

func (NopLocker) Close() error { return nil }

// PostgresLocker uses pg_try_advisory_lock. The lock belongs to a session,
// so the connection is held from the pool until unlock is called.
type PostgresLocker struct {
	pool *pgxpool.Pool
}

func NewPostgresLocker(ctx context.Context, dsn string) (*PostgresLocker, error) {
	if dsn == "" {
		dsn = "postgres://localhost:5432/powerdash?sslmode=disable"
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("locker: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("locker: open pool: %w", err)
	}
	return &PostgresLocker{pool: pool}, nil
}

func (l *PostgresLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	key := lockKey(name)
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, err
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}
	unlock := func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", key)
		conn.Release()
	}
	return unlock, true, nil
}

func (l *PostgresLocker) Close() error {
	l.pool.Close()
	return nil
}

func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
