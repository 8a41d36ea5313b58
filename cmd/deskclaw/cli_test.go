package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freitascorp/deskclaw/pkg/audit"
	"github.com/freitascorp/deskclaw/pkg/config"
	"github.com/freitascorp/deskclaw/pkg/platform"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.json")}, args...))
	err := root.Execute()
	return out.String(), err
}

func testDeps(t *testing.T) *deps {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Browser.SessionDir = filepath.Join(t.TempDir(), "sessions")
	cfg.Excel.Workspace = t.TempDir()
	d := newDeps(cfg, platform.Env{OS: "linux", Arch: "amd64"}, platform.NewFakeRunner())
	t.Cleanup(d.Close)
	return d
}

func TestAdapterNames(t *testing.T) {
	assert.Equal(t, []string{
		"browser", "dingtalk", "excel", "human-op", "monitor", "mouse",
		"open-dingtalk", "screenshot", "smart-mouse", "toolbox", "window",
	}, adapterNames())

	_, err := findAdapter("printer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: browser")
}

func TestRegistryFor_SingleAdapter(t *testing.T) {
	d := testDeps(t)

	reg, a, err := registryFor("human-op", d)
	require.NoError(t, err)
	assert.Equal(t, "human-op-simulator", a.server)
	_, ok := reg.Get("mouse_click")
	assert.True(t, ok)

	reg, _, err = registryFor("browser", d)
	require.NoError(t, err)
	_, ok = reg.Get("browser_navigate")
	assert.True(t, ok)
	_, ok = reg.Get("browser")
	assert.False(t, ok, "the selector tool is only served by the combined server")
	assert.Equal(t, false, d.browser.Status()["browser_active"])
}

func TestRegistryFor_DingTalkNeedsCredentials(t *testing.T) {
	d := testDeps(t)
	_, _, err := registryFor("dingtalk", d)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "dingtalk: "))
}

func TestRegistryFor_All(t *testing.T) {
	d := testDeps(t)

	reg, a, err := registryFor("all", d)
	require.NoError(t, err)
	assert.Equal(t, "deskclaw", a.server)

	for _, name := range []string{"mouse_click", "list_monitors", "move_to_monitor", "browser_get_state", "browser", "aggregate_excel_data"} {
		_, ok := reg.Get(name)
		assert.True(t, ok, name)
	}
	// dingtalk is skipped without credentials
	for _, name := range reg.List() {
		assert.False(t, strings.HasPrefix(name, "dingtalk_"), name)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "deskclaw dev")
	assert.Contains(t, out, "Go: go")
}

func TestToolsCmd(t *testing.T) {
	out, err := runCLI(t, "tools", "excel")
	require.NoError(t, err)
	assert.Contains(t, out, "excel-aggregator (2 tools)")
	assert.Contains(t, out, "scan_workspace")
	assert.Contains(t, out, "aggregate_excel_data")

	_, err = runCLI(t, "tools", "printer")
	assert.Error(t, err)
}

func TestFirstSentence(t *testing.T) {
	assert.Equal(t, "Move the mouse.", firstSentence("Move the mouse. Coordinates are absolute."))
	assert.Equal(t, "No period", firstSentence("  No period "))
}

func TestAuditCmds(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DESKCLAW_AUDIT_DIR", dir)
	t.Setenv("DESKCLAW_AUDIT_BACKEND", "file")

	out, err := runCLI(t, "audit", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No audit events found.")

	store, err := audit.NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, &audit.Event{
		Type: audit.EventToolCall, User: "alice", Server: "excel-aggregator", Tool: "scan_workspace",
		Result: &audit.EventResult{Status: audit.StatusSuccess, DurationMS: 5},
	}))
	require.NoError(t, store.Append(ctx, &audit.Event{
		Type: audit.EventToolCall, User: "alice", Server: "excel-aggregator", Tool: "aggregate_excel_data",
		Timestamp: time.Now().Add(-48 * time.Hour),
		Result:    &audit.EventResult{Status: audit.StatusFailure, Error: "scan workspace: no such file"},
	}))

	out, err = runCLI(t, "audit", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "TIMESTAMP")
	assert.Contains(t, out, "scan_workspace")
	assert.Contains(t, out, "no such file")

	out, err = runCLI(t, "audit", "list", "--json", "--status", "failure")
	require.NoError(t, err)
	var events []audit.Event
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "aggregate_excel_data", events[0].Tool)

	out, err = runCLI(t, "audit", "export")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 1, "the default window is the last 24h")

	file := filepath.Join(t.TempDir(), "export.jsonl")
	out, err = runCLI(t, "audit", "export", "--since", "", "-o", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 events")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))

	_, err = runCLI(t, "audit", "list", "--since", "last week")
	assert.ErrorContains(t, err, "invalid --since")
}

func TestExcelAggregateCmd(t *testing.T) {
	ws := t.TempDir()
	out, err := runCLI(t, "excel", "aggregate", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "No Excel files found")

	report := filepath.Join(t.TempDir(), "report.txt")
	out, err = runCLI(t, "excel", "aggregate", ws, "-o", report)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote report for 0 files")
	assert.FileExists(t, report)
}

func TestPrintPlatform(t *testing.T) {
	env := platform.Env{OS: "linux", Arch: "amd64", Display: ":0"}
	runner := platform.NewFakeRunner().WithPath("xdotool", "/usr/bin/xdotool")

	var buf bytes.Buffer
	require.NoError(t, printPlatform(&buf, env, runner, false))
	out := buf.String()
	assert.Contains(t, out, "System:     Linux (linux/amd64)")
	assert.Contains(t, out, "Display:    :0")
	assert.Regexp(t, `xdotool\s+ok\s+/usr/bin/xdotool`, out)
	assert.Regexp(t, `wmctrl\s+missing`, out)

	buf.Reset()
	require.NoError(t, printPlatform(&buf, env, runner, true))
	var body struct {
		System   string          `json:"system"`
		Commands []commandStatus `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &body))
	assert.Equal(t, "Linux", body.System)
	assert.Equal(t, len(env.RequiredCommands()), len(body.Commands))
	assert.True(t, body.Commands[0].Found)
}
