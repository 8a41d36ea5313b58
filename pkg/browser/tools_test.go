package browser

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freitascorp/deskclaw/pkg/tools"
)

func testManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	env := filepath.Join(root, ".env")
	require.NoError(t, os.WriteFile(env, []byte("GITHUB_USER=ada\nGITHUB_PASSWORD=hunter2\n"), 0o600))
	mgr := NewManager(ManagerConfig{Headless: true, SessionDir: filepath.Join(root, "sessions"), EnvFile: env})
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, root
}

func execTool(t *testing.T, reg *tools.ToolRegistry, name string, args map[string]any) (map[string]any, *tools.ToolResult) {
	t.Helper()
	res := reg.Execute(context.Background(), name, args)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.ForLLM), &body), res.ForLLM)
	return body, res
}

func TestTools_Registered(t *testing.T) {
	mgr, _ := testManager(t)
	reg := tools.NewToolRegistry()
	require.NoError(t, reg.RegisterAll(Tools(mgr)...))
	require.NoError(t, reg.Register(NewBrowserToolWithManager(mgr)))

	for _, name := range []string{
		"browser_create_session", "browser_close_session", "browser_save_session",
		"browser_list_sessions", "browser_delete_session", "browser_get_status",
		"browser_get_state", "browser_navigate", "browser_go_back", "browser_search",
		"browser_click", "browser_input", "browser_input_sensitive", "browser_list_credentials",
		"browser_send_keys", "browser_scroll", "browser_scroll_to_text", "browser_click_coordinate",
		"browser_switch_tab", "browser_close_tab", "browser_screenshot", "browser_extract_content",
		"browser_extract_markdown", "browser_get_dropdown_options", "browser_upload_file",
		"browser_get_cookies", "browser_clear_cookies", "browser_wait", "browser",
	} {
		_, ok := reg.Get(name)
		assert.True(t, ok, name)
	}
}

func TestCredentials(t *testing.T) {
	mgr, root := testManager(t)
	reg := tools.NewToolRegistry()
	require.NoError(t, reg.RegisterAll(Tools(mgr)...))

	body, res := execTool(t, reg, "browser_list_credentials", nil)
	require.False(t, res.IsError)
	assert.Equal(t, []any{"GITHUB_PASSWORD", "GITHUB_USER"}, body["keys"])
	assert.NotContains(t, res.ForLLM, "hunter2")

	v, err := mgr.credential("GITHUB_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)

	_, err = mgr.credential("SLACK_TOKEN")
	var missing *MissingCredentialError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"GITHUB_PASSWORD", "GITHUB_USER"}, missing.Available)
	failed := tools.Failure(err, errCode)
	assert.Contains(t, failed.ForLLM, "CREDENTIAL_NOT_FOUND")
	assert.Contains(t, failed.ForLLM, "SLACK_TOKEN=your_value")
	assert.NotContains(t, failed.ForLLM, "hunter2")

	creds, err := LoadCredentials(filepath.Join(root, "absent.env"))
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestStatus_DoesNotStartBrowser(t *testing.T) {
	mgr, _ := testManager(t)
	reg := tools.NewToolRegistry()
	require.NoError(t, reg.RegisterAll(Tools(mgr)...))

	body, _ := execTool(t, reg, "browser_get_status", nil)
	assert.Equal(t, false, body["browser_active"])
	assert.Equal(t, false, body["page_active"])
	assert.Equal(t, "", body["current_session"])
	assert.Equal(t, []any{"GITHUB_PASSWORD", "GITHUB_USER"}, body["sensitive_data_keys"])
	assert.Nil(t, mgr.browser)
}

func TestSavedSessions(t *testing.T) {
	mgr, _ := testManager(t)
	reg := tools.NewToolRegistry()
	require.NoError(t, reg.RegisterAll(Tools(mgr)...))

	body, _ := execTool(t, reg, "browser_list_sessions", nil)
	assert.Equal(t, float64(0), body["count"])

	dir := mgr.Config().SessionDir
	require.NoError(t, os.MkdirAll(dir, 0o700))
	state := `{"cookies":[{"name":"sid","value":"42","domain":"example.com","path":"/"}],
		"origins":[{"origin":"https://example.com","localStorage":[{"name":"k","value":"v"}]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "work"+stateSuffix), []byte(state), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o600))

	st, err := LoadState(mgr.statePath("work"))
	require.NoError(t, err)
	require.Len(t, st.Cookies, 1)
	assert.Equal(t, "sid", st.Cookies[0].Name)
	assert.Equal(t, "v", st.Origins[0].LocalStorage[0].Value)

	_, err = LoadState(mgr.statePath("absent"))
	assert.ErrorIs(t, err, errNoState)

	body, _ = execTool(t, reg, "browser_list_sessions", nil)
	require.Equal(t, float64(1), body["count"])
	first := body["sessions"].([]any)[0].(map[string]any)
	assert.Equal(t, "work", first["session_id"])

	body, res := execTool(t, reg, "browser_delete_session", map[string]any{"session_id": "work"})
	require.False(t, res.IsError, res.ForLLM)
	assert.Len(t, body["deleted_items"], 1)
	_, err = os.Stat(mgr.statePath("work"))
	assert.True(t, os.IsNotExist(err))

	body, res = execTool(t, reg, "browser_delete_session", map[string]any{"session_id": "work"})
	assert.True(t, res.IsError)
	assert.Contains(t, body["error"], "does not exist")

	_, res = execTool(t, reg, "browser_delete_session", map[string]any{"session_id": "../../etc/passwd"})
	assert.True(t, res.IsError)
}

func TestCloseSession_NoActiveSession(t *testing.T) {
	mgr, _ := testManager(t)
	reg := tools.NewToolRegistry()
	require.NoError(t, reg.RegisterAll(Tools(mgr)...))

	body, res := execTool(t, reg, "browser_close_session", nil)
	require.False(t, res.IsError)
	assert.Equal(t, false, body["closed"])
}

func TestWaitTool(t *testing.T) {
	mgr, _ := testManager(t)
	reg := tools.NewToolRegistry()
	require.NoError(t, reg.RegisterAll(Tools(mgr)...))

	body, _ := execTool(t, reg, "browser_wait", map[string]any{"seconds": float64(0)})
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(0), body["seconds"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := reg.Execute(ctx, "browser_wait", map[string]any{"seconds": float64(120)})
	assert.True(t, res.IsError)
}

func TestRender_MovesImageOut(t *testing.T) {
	res := render(&ActionResult{Action: "screenshot", Success: true, Data: map[string]any{
		"filepath": "/tmp/x.png",
		"base64":   "iVBORw0KGgo=",
	}})
	assert.NotContains(t, res.ForLLM, "iVBORw0KGgo=")
	require.Len(t, res.Images, 1)
	assert.Equal(t, "image/png", res.Images[0].MIMEType)
}
