package audit

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/freitascorp/deskclaw/pkg/logger"
	"github.com/freitascorp/deskclaw/pkg/mcp"
)

const (
	maxArgLen   = 256
	maxErrorLen = 512
	redacted    = "***"
)

var secretArg = regexp.MustCompile(`(?i)(pass(word)?|secret|token|api_?key|credential|cookie_value)`)

// Logger writes audit events to a Store. It is an mcp.Observer, so handing it
// to a server records every tools/call without touching the tools.
type Logger struct {
	store Store
	user  string
}

// NewLogger creates a logger that attributes events to user.
func NewLogger(store Store, user string) *Logger {
	return &Logger{store: store, user: user}
}

// ToolCallStarted implements mcp.Observer.
func (l *Logger) ToolCallStarted(string, string) {}

// ToolCallFinished implements mcp.Observer. Append failures are logged and
// never surface to the client.
func (l *Logger) ToolCallFinished(ctx context.Context, rec mcp.CallRecord) {
	result := &EventResult{Status: StatusSuccess, DurationMS: rec.Duration.Milliseconds()}
	if rec.IsError {
		result.Status = StatusFailure
		result.Code, result.Error = failureOf(rec.Output)
	}
	evt := &Event{
		Timestamp: rec.Started.UTC(),
		Type:      EventToolCall,
		User:      l.user,
		Server:    rec.Server,
		Tool:      rec.Tool,
		Args:      SanitizeArgs(rec.Args),
		Result:    result,
	}
	if err := l.store.Append(context.WithoutCancel(ctx), evt); err != nil {
		logger.WarnCF("audit", "Failed to record tool call", map[string]any{
			"tool":  rec.Tool,
			"error": err.Error(),
		})
	}
}

// LogServer records a server start or stop.
func (l *Logger) LogServer(ctx context.Context, typ EventType, server string, toolCount int) error {
	return l.store.Append(ctx, &Event{
		Type:     typ,
		User:     l.user,
		Server:   server,
		Result:   &EventResult{Status: StatusSuccess},
		Metadata: map[string]any{"tools": toolCount},
	})
}

// LogConfigChange records that the configuration at path was loaded or changed.
func (l *Logger) LogConfigChange(ctx context.Context, path string, detail map[string]any) error {
	meta := map[string]any{"path": path}
	for k, v := range detail {
		meta[k] = v
	}
	return l.store.Append(ctx, &Event{
		Type:     EventConfig,
		User:     l.user,
		Result:   &EventResult{Status: StatusSuccess},
		Metadata: meta,
	})
}

// SanitizeArgs copies args with secret-looking values masked and long
// strings cut short.
func SanitizeArgs(args map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if secretArg.MatchString(k) {
			out[k] = redacted
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return clip(val, maxArgLen)
	case map[string]any:
		return SanitizeArgs(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	}
	return v
}

// failureOf pulls the code and message out of a tools.Failure body, falling
// back to the raw output.
func failureOf(output string) (code, msg string) {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal([]byte(output), &body); err == nil && body.Error != "" {
		return body.Code, clip(body.Error, maxErrorLen)
	}
	return "", clip(output, maxErrorLen)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Since parses a duration like "24h" or an RFC 3339 timestamp into the
// start of a query window. An empty string means no lower bound.
func Since(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339, s)
}
