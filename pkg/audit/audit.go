// Package audit keeps an append-only record of what the MCP servers did.
//
// Every tools/call is stored as a structured event, alongside server
// lifecycle and configuration events. Events are never rewritten and can be
// exported as JSON lines for ingestion elsewhere.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes audit events.
type EventType string

const (
	EventToolCall    EventType = "tool.call"
	EventServerStart EventType = "server.start"
	EventServerStop  EventType = "server.stop"
	EventConfig      EventType = "config.change"
)

// Status values of EventResult.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Event is a single immutable audit record.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"ts"`
	Type      EventType      `json:"type"`
	User      string         `json:"user"`
	Server    string         `json:"server,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Result    *EventResult   `json:"result,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventResult captures the outcome of the action.
type EventResult struct {
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// QueryOptions filters audit log queries. Zero fields match everything.
type QueryOptions struct {
	User   string
	Type   EventType
	Server string
	Tool   string
	Status string
	Since  time.Time
	Until  time.Time
	Limit  int
}

func (o QueryOptions) match(e *Event) bool {
	switch {
	case o.User != "" && e.User != o.User:
		return false
	case o.Type != "" && e.Type != o.Type:
		return false
	case o.Server != "" && e.Server != o.Server:
		return false
	case o.Tool != "" && e.Tool != o.Tool:
		return false
	case o.Status != "" && (e.Result == nil || e.Result.Status != o.Status):
		return false
	case !o.Since.IsZero() && e.Timestamp.Before(o.Since):
		return false
	case !o.Until.IsZero() && e.Timestamp.After(o.Until):
		return false
	}
	return true
}

// Store is the persistence interface for the audit log.
type Store interface {
	// Append writes an event. ID and Timestamp are filled in when empty.
	Append(ctx context.Context, event *Event) error

	// Query returns events matching opts, oldest first.
	Query(ctx context.Context, opts QueryOptions) ([]*Event, error)

	// Export returns every event at or after since.
	Export(ctx context.Context, since time.Time) ([]*Event, error)

	Close() error
}

func stamp(event *Event) {
	if event.ID == "" {
		event.ID = "evt_" + uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}

// WriteJSONL writes events to w, one JSON document per line.
func WriteJSONL(w io.Writer, events []*Event) error {
	enc := json.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode audit event %s: %w", e.ID, err)
		}
	}
	return nil
}

// ------------------------------------------------------------------
// File-based audit store (append-only JSONL)
// ------------------------------------------------------------------

// FileName is the log file FileStore appends to.
const FileName = "audit.jsonl"

// FileStore is an append-only audit store in JSON Lines format.
// Each line is a complete JSON event. The file is never modified, only appended to.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file-based audit store at the given directory.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the log file location.
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Append writes an event to the audit log.
func (s *FileStore) Append(_ context.Context, event *Event) error {
	stamp(event)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// Query reads events matching the given filters.
func (s *FileStore) Query(_ context.Context, opts QueryOptions) ([]*Event, error) {
	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var results []*Event
	for _, e := range all {
		if !opts.match(e) {
			continue
		}
		results = append(results, e)
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}

// Export returns all events since the given time.
func (s *FileStore) Export(ctx context.Context, since time.Time) ([]*Event, error) {
	return s.Query(ctx, QueryOptions{Since: since})
}

// Close is a no-op; every Append opens and closes the file.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) readAll() ([]*Event, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.Path())
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var events []*Event
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue // skip malformed lines
		}
		events = append(events, &e)
	}
	return events, sc.Err()
}

// Open returns the store named by backend ("file" or "sqlite") rooted at dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(dir)
	case "sqlite":
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
		return NewSQLiteStore(filepath.Join(dir, "audit.db"))
	}
	return nil, fmt.Errorf("unknown audit backend %q (want file or sqlite)", backend)
}
