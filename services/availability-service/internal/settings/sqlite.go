package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotwise/services/availability-service/internal/schedule"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps a local copy of settings documents so reads and writes survive a
// primary outage.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string, busyTimeout time.Duration) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps the pragmas below in effect for every statement.
	conn.SetMaxOpenConns(1)

	stmts := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		`CREATE TABLE IF NOT EXISTS availability_settings (
			business_id TEXT PRIMARY KEY,
			document    TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Get(ctx context.Context, businessID string) (schedule.Settings, error) {
	var doc, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT document, updated_at FROM availability_settings WHERE business_id = ?
	`, businessID).Scan(&doc, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Settings{}, ErrNotFound
	}
	if err != nil {
		return schedule.Settings{}, err
	}
	out, err := decode(businessID, []byte(doc))
	if err != nil {
		return schedule.Settings{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		out.UpdatedAt = t
	}
	return out, nil
}

func (s *SQLiteStore) Save(ctx context.Context, in schedule.Settings) error {
	doc, err := encode(in)
	if err != nil {
		return err
	}
	updatedAt := in.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO availability_settings (business_id, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (business_id) DO UPDATE
		SET document = excluded.document,
			updated_at = excluded.updated_at
	`, in.BusinessID, string(doc), updatedAt.UTC().Format(time.RFC3339Nano))
	return err
}
