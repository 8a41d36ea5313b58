package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freitascorp/deskclaw/pkg/mcp"
)

// stores runs fn against both backends.
func stores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("file", func(t *testing.T) {
		s, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func toolEvent(user, tool, status string, ts time.Time) *Event {
	return &Event{
		Timestamp: ts,
		Type:      EventToolCall,
		User:      user,
		Server:    "windows-mcp-server",
		Tool:      tool,
		Result:    &EventResult{Status: status, DurationMS: 12},
	}
}

func TestStore_AppendAndQuery(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		evt := toolEvent("alice", "list_windows", StatusSuccess, time.Time{})
		require.NoError(t, s.Append(ctx, evt))

		assert.True(t, strings.HasPrefix(evt.ID, "evt_"))
		assert.False(t, evt.Timestamp.IsZero())

		events, err := s.Query(ctx, QueryOptions{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, evt.ID, events[0].ID)
		assert.Equal(t, "list_windows", events[0].Tool)
		assert.Equal(t, StatusSuccess, events[0].Result.Status)
		assert.Equal(t, int64(12), events[0].Result.DurationMS)
	})
}

func TestStore_Filters(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Append(ctx, toolEvent("alice", "list_windows", StatusSuccess, base)))
		require.NoError(t, s.Append(ctx, toolEvent("bob", "focus_window", StatusFailure, base.Add(time.Hour))))
		require.NoError(t, s.Append(ctx, toolEvent("alice", "focus_window", StatusSuccess, base.Add(2*time.Hour))))
		require.NoError(t, s.Append(ctx, &Event{Type: EventServerStart, User: "alice", Timestamp: base.Add(3 * time.Hour)}))

		tests := []struct {
			name string
			opts QueryOptions
			want int
		}{
			{"all", QueryOptions{}, 4},
			{"user", QueryOptions{User: "alice"}, 3},
			{"type", QueryOptions{Type: EventToolCall}, 3},
			{"tool", QueryOptions{Tool: "focus_window"}, 2},
			{"status", QueryOptions{Status: StatusFailure}, 1},
			{"since", QueryOptions{Since: base.Add(90 * time.Minute)}, 2},
			{"until", QueryOptions{Until: base.Add(30 * time.Minute)}, 1},
			{"limit", QueryOptions{Limit: 2}, 2},
			{"no match", QueryOptions{User: "carol"}, 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				events, err := s.Query(ctx, tt.opts)
				require.NoError(t, err)
				assert.Len(t, events, tt.want)
			})
		}

		events, err := s.Query(ctx, QueryOptions{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, "list_windows", events[0].Tool, "oldest first")

		exported, err := s.Export(ctx, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, exported, 3)
	})
}

func TestStore_Empty(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		events, err := s.Query(context.Background(), QueryOptions{})
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestStore_ConcurrentAppend(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Append(ctx, toolEvent("alice", "screenshot", StatusSuccess, time.Time{})))
			}()
		}
		wg.Wait()

		events, err := s.Query(ctx, QueryOptions{})
		require.NoError(t, err)
		assert.Len(t, events, 20)
	})
}

func TestStore_CustomID(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		evt := toolEvent("alice", "x", StatusSuccess, time.Time{})
		evt.ID = "custom-1"
		require.NoError(t, s.Append(context.Background(), evt))
		assert.Equal(t, "custom-1", evt.ID)
	})
}

func TestFileStore_MalformedLines(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, toolEvent("alice", "a", StatusSuccess, time.Time{})))
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, s.Append(ctx, toolEvent("alice", "b", StatusSuccess, time.Time{})))

	events, err := s.Query(ctx, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[1].Tool)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("", dir)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open("sqlite", dir)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())
	assert.FileExists(t, filepath.Join(dir, "audit.db"))

	_, err = Open("postgres", dir)
	assert.ErrorContains(t, err, "unknown audit backend")
}

func TestLogger_RecordsToolCalls(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	l := NewLogger(s, "alice")
	var _ mcp.Observer = l

	started := time.Now()
	l.ToolCallStarted("browser-use-mcp-server", "browser_input")
	l.ToolCallFinished(context.Background(), mcp.CallRecord{
		Server:   "browser-use-mcp-server",
		Tool:     "browser_input",
		Args:     map[string]any{"index": float64(3), "text": strings.Repeat("x", 400), "password": "hunter2"},
		Started:  started,
		Duration: 250 * time.Millisecond,
	})
	l.ToolCallFinished(context.Background(), mcp.CallRecord{
		Server:  "dingtalk-mcp-server",
		Tool:    "dingtalk_get_doc",
		Started: started,
		IsError: true,
		Output:  `{"success":false,"error":"document not found","code":"NOT_FOUND"}`,
	})

	events, err := s.Query(context.Background(), QueryOptions{Type: EventToolCall})
	require.NoError(t, err)
	require.Len(t, events, 2)

	ok := events[0]
	assert.Equal(t, "alice", ok.User)
	assert.Equal(t, "browser_input", ok.Tool)
	assert.Equal(t, StatusSuccess, ok.Result.Status)
	assert.Equal(t, int64(250), ok.Result.DurationMS)
	assert.Equal(t, redacted, ok.Args["password"])
	assert.Equal(t, float64(3), ok.Args["index"])
	assert.Len(t, []rune(ok.Args["text"].(string)), maxArgLen+3)

	failed := events[1]
	assert.Equal(t, StatusFailure, failed.Result.Status)
	assert.Equal(t, "NOT_FOUND", failed.Result.Code)
	assert.Equal(t, "document not found", failed.Result.Error)
}

func TestLogger_ServerAndConfigEvents(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	l := NewLogger(s, "bob")
	ctx := context.Background()

	require.NoError(t, l.LogServer(ctx, EventServerStart, "excel-mcp-server", 9))
	require.NoError(t, l.LogConfigChange(ctx, "/etc/deskclaw.yaml", map[string]any{"reason": "load"}))

	events, err := s.Query(ctx, QueryOptions{User: "bob"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventServerStart, events[0].Type)
	assert.Equal(t, float64(9), events[0].Metadata["tools"])
	assert.Equal(t, EventConfig, events[1].Type)
	assert.Equal(t, "/etc/deskclaw.yaml", events[1].Metadata["path"])
}

func TestSanitizeArgs(t *testing.T) {
	assert.Nil(t, SanitizeArgs(nil))

	got := SanitizeArgs(map[string]any{
		"api_key": "sk-123",
		"Token":   "abc",
		"nested":  map[string]any{"client_secret": "s", "name": "n"},
		"list":    []any{"a", float64(1)},
		"flag":    true,
	})
	assert.Equal(t, redacted, got["api_key"])
	assert.Equal(t, redacted, got["Token"])
	assert.Equal(t, map[string]any{"client_secret": redacted, "name": "n"}, got["nested"])
	assert.Equal(t, []any{"a", float64(1)}, got["list"])
	assert.Equal(t, true, got["flag"])
}

func TestFailureOf_RawOutput(t *testing.T) {
	code, msg := failureOf("panic: boom")
	assert.Empty(t, code)
	assert.Equal(t, "panic: boom", msg)
}

func TestWriteJSONL(t *testing.T) {
	var buf bytes.Buffer
	events := []*Event{
		toolEvent("alice", "a", StatusSuccess, time.Unix(0, 0).UTC()),
		toolEvent("alice", "b", StatusFailure, time.Unix(60, 0).UTC()),
	}
	require.NoError(t, WriteJSONL(&buf, events))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var e Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e))
	assert.Equal(t, "b", e.Tool)
}

func TestSince(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	got, err := Since("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = Since("24h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), got)

	got, err = Since("2026-03-01T06:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC), got)

	_, err = Since("yesterday", now)
	assert.Error(t, err)
}
