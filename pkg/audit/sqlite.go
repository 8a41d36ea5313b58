package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGo)
)

// SQLiteStore keeps the audit log in a single SQLite table. The full event
// is stored as JSON next to the indexed filter columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id         TEXT PRIMARY KEY,
			ts         INTEGER NOT NULL,
			type       TEXT NOT NULL,
			user       TEXT NOT NULL DEFAULT '',
			server     TEXT NOT NULL DEFAULT '',
			tool       TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT '',
			body       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_events(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_tool ON audit_events(server, tool)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", strings.Fields(stmt)[0], err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts an event.
func (s *SQLiteStore) Append(ctx context.Context, event *Event) error {
	stamp(event)
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	status := ""
	if event.Result != nil {
		status = event.Result.Status
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, ts, type, user, server, tool, status, body) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp.UnixNano(), string(event.Type), event.User, event.Server, event.Tool, status, string(body))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query returns matching events, oldest first.
func (s *SQLiteStore) Query(ctx context.Context, opts QueryOptions) ([]*Event, error) {
	query := "SELECT body FROM audit_events WHERE 1=1"
	var args []any
	add := func(clause string, v any) {
		query += " AND " + clause
		args = append(args, v)
	}
	if opts.User != "" {
		add("user = ?", opts.User)
	}
	if opts.Type != "" {
		add("type = ?", string(opts.Type))
	}
	if opts.Server != "" {
		add("server = ?", opts.Server)
	}
	if opts.Tool != "" {
		add("tool = ?", opts.Tool)
	}
	if opts.Status != "" {
		add("status = ?", opts.Status)
	}
	if !opts.Since.IsZero() {
		add("ts >= ?", opts.Since.UnixNano())
	}
	if !opts.Until.IsZero() {
		add("ts <= ?", opts.Until.UnixNano())
	}
	query += " ORDER BY ts ASC, rowid ASC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var e Event
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			continue
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Export returns all events since the given time.
func (s *SQLiteStore) Export(ctx context.Context, since time.Time) ([]*Event, error) {
	return s.Query(ctx, QueryOptions{Since: since})
}
