package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"discord-interactions-server/internal/core/domain"
	"discord-interactions-server/internal/core/ports"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...interface{}) pgx.Row
}

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS command_snapshots (
    scope      TEXT        NOT NULL,
    command_id TEXT        NOT NULL,
    name       TEXT        NOT NULL,
    payload    JSONB       NOT NULL,
    synced_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (scope, command_id)
)`

const deleteStaleSnapshots = `
DELETE FROM command_snapshots
WHERE scope = $1 AND command_id <> ALL($2::text[])`

const upsertSnapshot = `
INSERT INTO command_snapshots (scope, command_id, name, payload, synced_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (scope, command_id)
DO UPDATE SET name = EXCLUDED.name, payload = EXCLUDED.payload, synced_at = EXCLUDED.synced_at`

const selectSnapshot = `
SELECT payload, synced_at
FROM command_snapshots
WHERE scope = $1
ORDER BY name`

// DB is a DBTX that can also open transactions; *pgxpool.Pool satisfies it.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
	db   DB
	now  func() time.Time
}

var _ ports.SnapshotRepository = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := newStore(pool)
	s.pool = pool

	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func newStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createSnapshotsTable); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the stored remote state of a scope with the given commands in one
// transaction.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, scope domain.Scope, commands []*discordgo.ApplicationCommand) error {
	ids := make([]string, 0, len(commands))
	for _, cmd := range commands {
		if cmd == nil || cmd.ID == "" {
			continue
		}
		ids = append(ids, cmd.ID)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot transaction: %w", err)
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if _, err := tx.Exec(ctx, deleteStaleSnapshots, scope.Key(), ids); err != nil {
		return fmt.Errorf("delete stale snapshots: %w", err)
	}

	syncedAt := s.now().UTC()
	for _, cmd := range commands {
		if cmd == nil || cmd.ID == "" {
			continue
		}
		payload, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("encode command %s: %w", cmd.Name, err)
		}
		if _, err := tx.Exec(ctx, upsertSnapshot, scope.Key(), cmd.ID, cmd.Name, payload, syncedAt); err != nil {
			return fmt.Errorf("upsert snapshot %s: %w", cmd.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored state of a scope, or nil when nothing was saved yet.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, scope domain.Scope) (*ports.Snapshot, error) {
	rows, err := s.db.Query(ctx, selectSnapshot, scope.Key())
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	var snapshot *ports.Snapshot
	for rows.Next() {
		var (
			payload  []byte
			syncedAt time.Time
		)
		if err := rows.Scan(&payload, &syncedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}

		var cmd discordgo.ApplicationCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}

		if snapshot == nil {
			snapshot = &ports.Snapshot{Scope: scope}
		}
		snapshot.Commands = append(snapshot.Commands, &cmd)
		if syncedAt.After(snapshot.SyncedAt) {
			snapshot.SyncedAt = syncedAt
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	return snapshot, nil
}
