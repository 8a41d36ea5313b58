package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetJSON(true)
	t.Cleanup(func() {
		SetOutput(nil)
		SetJSON(false)
		SetLevel(INFO)
	})
	return &buf
}

func TestInfoCF_WritesComponentAndFields(t *testing.T) {
	buf := capture(t)

	InfoCF("mcp", "Tool call", map[string]any{"tool": "get_mouse_position"})

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if line["component"] != "mcp" {
		t.Errorf("component = %v, want mcp", line["component"])
	}
	if line["tool"] != "get_mouse_position" {
		t.Errorf("tool = %v", line["tool"])
	}
	if line["message"] != "Tool call" {
		t.Errorf("message = %v", line["message"])
	}
}

func TestSetLevel_FiltersDebug(t *testing.T) {
	buf := capture(t)

	DebugC("test", "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written at info level: %q", buf.String())
	}

	SetLevel(DEBUG)
	DebugC("test", "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug line missing after SetLevel(DEBUG): %q", buf.String())
	}
	if GetLevel() != DEBUG {
		t.Errorf("GetLevel = %v, want debug", GetLevel())
	}
}

func TestLevelString(t *testing.T) {
	tests := map[Level]string{DEBUG: "debug", INFO: "info", WARN: "warn", ERROR: "error", Level(9): "unknown"}
	for l, want := range tests {
		if got := l.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", l, got, want)
		}
	}
}
