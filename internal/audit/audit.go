// Package audit records every execution attempt in PostgreSQL over a pgx
// connection pool. Only outcomes are persisted; staged commands never leave
// process memory.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one execution attempt.
type Entry struct {
	ID         int64           `json:"id"`
	UserID     string          `json:"user_id"`
	CommandID  string          `json:"command_id"`
	Action     string          `json:"action"`
	Object     string          `json:"object"`
	Target     string          `json:"target"`
	Success    bool            `json:"success"`
	Kind       string          `json:"kind,omitempty"`
	Message    string          `json:"message"`
	RecordID   string          `json:"record_id,omitempty"`
	Intent     json.RawMessage `json:"intent,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards entries. It is used when no audit database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

const schemaSQL = `
CREATE TABLE IF NOT EXISTS command_audit (
	id          BIGSERIAL PRIMARY KEY,
	user_id     TEXT        NOT NULL,
	command_id  TEXT        NOT NULL,
	action      TEXT        NOT NULL,
	object      TEXT        NOT NULL,
	target      TEXT        NOT NULL DEFAULT '',
	success     BOOLEAN     NOT NULL,
	kind        TEXT        NOT NULL DEFAULT '',
	message     TEXT        NOT NULL DEFAULT '',
	record_id   TEXT        NOT NULL DEFAULT '',
	intent      JSONB,
	executed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS command_audit_executed_at_idx ON command_audit (executed_at DESC);
`

// Store is a PostgreSQL-backed Recorder.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies the connection and ensures the audit table
// exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid audit DSN: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit database unreachable: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to prepare audit table: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks that dsn is reachable without touching the schema.
func Ping(ctx context.Context, dsn string) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conn, err := pgx.Connect(pingCtx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(pingCtx)
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Record inserts e. A zero ExecutedAt is stamped by the database.
func (s *Store) Record(ctx context.Context, e Entry) error {
	var executedAt any
	if !e.ExecutedAt.IsZero() {
		executedAt = e.ExecutedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO command_audit
			(user_id, command_id, action, object, target, success, kind, message, record_id, intent, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()))`,
		e.UserID, e.CommandID, e.Action, e.Object, e.Target, e.Success,
		e.Kind, e.Message, e.RecordID, nullJSON(e.Intent), executedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-empty userID
// restricts the result to that user.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, command_id, action, object, target, success, kind, message, record_id, intent, executed_at
		FROM command_audit
		WHERE $1 = '' OR user_id = $1
		ORDER BY executed_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var raw []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.CommandID, &e.Action, &e.Object, &e.Target,
			&e.Success, &e.Kind, &e.Message, &e.RecordID, &raw, &e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(raw) > 0 {
			e.Intent = json.RawMessage(raw)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
