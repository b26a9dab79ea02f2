package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// migrations is an ordered list of SQL statements applied on startup.
// Each entry is idempotent (IF NOT EXISTS) so re-running is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id                TEXT PRIMARY KEY,
		host_id           TEXT NOT NULL,
		host_name         TEXT NOT NULL DEFAULT '',
		client_id         TEXT NOT NULL,
		client_name       TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL,
		created_at        TEXT NOT NULL,
		last_connected_at TEXT,
		disconnected_at   TEXT,
		disconnect_reason TEXT NOT NULL DEFAULT '',
		connected_secs    REAL NOT NULL DEFAULT 0
	)`,
}

// SQLiteStore implements Store using a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at path and runs
// migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite handles one writer at a time.

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) UpsertSession(ctx context.Context, r *Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, host_id, host_name, client_id, client_name, status,
		                       created_at, last_connected_at, disconnected_at, disconnect_reason, connected_secs)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   last_connected_at = excluded.last_connected_at,
		   disconnected_at = excluded.disconnected_at,
		   disconnect_reason = excluded.disconnect_reason,
		   connected_secs = excluded.connected_secs`,
		r.ID, r.HostID, r.HostName, r.ClientID, r.ClientName, r.Status,
		formatTime(r.CreatedAt), formatTimePtr(r.LastConnectedAt), formatTimePtr(r.DisconnectedAt),
		r.DisconnectReason, r.ConnectedFor.Seconds())
	return err
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, host_id, host_name, client_id, client_name, status,
		        created_at, last_connected_at, disconnected_at, disconnect_reason, connected_secs
		 FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var records []*Record
	for rows.Next() {
		var r Record
		var created string
		var lastConn, disconn sql.NullString
		var secs float64
		if err := rows.Scan(&r.ID, &r.HostID, &r.HostName, &r.ClientID, &r.ClientName, &r.Status,
			&created, &lastConn, &disconn, &r.DisconnectReason, &secs); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		r.LastConnectedAt = parseTimePtr(lastConn)
		r.DisconnectedAt = parseTimePtr(disconn)
		r.ConnectedFor = time.Duration(secs * float64(time.Second))
		records = append(records, &r)
	}
	return records, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTimePtr(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	return &parsed
}
