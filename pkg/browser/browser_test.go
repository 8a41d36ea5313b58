package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/freitascorp/deskclaw/pkg/config"
)

// ---- Unit tests for Manager and Tool dispatch (no browser needed) ----

func TestManagerConfig_Defaults(t *testing.T) {
	cfg := ManagerConfig{}
	cfg.defaults()

	if cfg.DefaultTimeout != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s", cfg.DefaultTimeout)
	}
	if cfg.ViewportWidth != 1280 || cfg.ViewportHeight != 720 {
		t.Errorf("viewport = %dx%d, want 1280x720", cfg.ViewportWidth, cfg.ViewportHeight)
	}
	if cfg.UserAgent != config.DefaultBrowserUserAgent {
		t.Errorf("UserAgent = %q", cfg.UserAgent)
	}
	if !strings.HasSuffix(cfg.SessionDir, filepath.Join(".browser_use_mcp", "sessions")) {
		t.Errorf("SessionDir = %q", cfg.SessionDir)
	}
}

func TestManagerConfig_CustomValues(t *testing.T) {
	cfg := ManagerConfig{
		DefaultTimeout: 60 * time.Second,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		UserAgent:      "probe",
	}
	cfg.defaults()

	if cfg.DefaultTimeout != 60*time.Second {
		t.Errorf("DefaultTimeout = %v, want 60s", cfg.DefaultTimeout)
	}
	if cfg.ViewportWidth != 1920 {
		t.Errorf("ViewportWidth = %d, want 1920", cfg.ViewportWidth)
	}
	if cfg.UserAgent != "probe" {
		t.Errorf("UserAgent = %q, want probe", cfg.UserAgent)
	}
}

func TestConfigFrom(t *testing.T) {
	bc := config.DefaultConfig().Browser
	bc.AllowedDomains = []string{"example.com"}
	cfg := ConfigFrom(bc)
	if !cfg.Headless || cfg.SessionDir != bc.SessionDir || len(cfg.AllowedDomains) != 1 {
		t.Errorf("ConfigFrom = %+v", cfg)
	}
}

func TestManager_ClosedManagerRejectsNewSessions(t *testing.T) {
	mgr := NewManager(ManagerConfig{Headless: true})
	_ = mgr.Close()

	_, err := mgr.NewSession("test")
	if err == nil {
		t.Fatal("expected error from closed manager")
	}
	if err.Error() != "manager is closed" {
		t.Errorf("error = %q, want %q", err.Error(), "manager is closed")
	}
}

func TestManager_RejectsUnsafeSessionIDs(t *testing.T) {
	mgr := NewManager(ManagerConfig{Headless: true, SessionDir: t.TempDir()})
	defer mgr.Close()

	for _, id := range []string{"../escape", "a/b", "with space"} {
		if _, _, err := mgr.Open(id, true); err == nil {
			t.Errorf("Open(%q) succeeded, want error", id)
		}
	}
}

func TestManager_ListSessions_Empty(t *testing.T) {
	mgr := NewManager(ManagerConfig{Headless: true})
	defer mgr.Close()

	if sessions := mgr.ListSessions(); len(sessions) != 0 {
		t.Errorf("expected 0 sessions, got %d", len(sessions))
	}
	if id := mgr.CurrentID(); id != "" {
		t.Errorf("CurrentID() = %q, want empty", id)
	}
}

func TestManager_IsDomainAllowed(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		url      string
		expected bool
	}{
		{"no restrictions", nil, "https://anything.com", true},
		{"allowed domain", []string{"example.com", "test.org"}, "https://example.com/page", true},
		{"blocked domain", []string{"example.com"}, "https://evil.com/page", false},
		{"subdomain match", []string{"example.com"}, "https://sub.example.com/page", true},
		{"lookalike suffix", []string{"example.com"}, "https://evilexample.com/", false},
		{"domain in query", []string{"example.com"}, "https://evil.com/?next=example.com", false},
		{"case insensitive", []string{"Example.COM"}, "https://EXAMPLE.com/", true},
		{"no host", []string{"example.com"}, "about:blank", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewManager(ManagerConfig{
				Headless:       true,
				AllowedDomains: tt.allowed,
			})
			if got := mgr.isDomainAllowed(tt.url); got != tt.expected {
				t.Errorf("isDomainAllowed(%q) = %v, want %v", tt.url, got, tt.expected)
			}
		})
	}
}

func TestBrowserTool_Name(t *testing.T) {
	tool := NewBrowserTool(nil)
	if tool.Name() != "browser" {
		t.Errorf("Name() = %q, want %q", tool.Name(), "browser")
	}
}

func TestBrowserTool_Description(t *testing.T) {
	desc := NewBrowserTool(nil).Description()
	for _, keyword := range []string{"navigate", "click", "screenshot", "extract"} {
		if !strings.Contains(desc, keyword) {
			t.Errorf("Description() missing keyword %q", keyword)
		}
	}
}

func TestBrowserTool_Parameters(t *testing.T) {
	params := NewBrowserTool(nil).Parameters()

	if params["type"] != "object" {
		t.Error("Parameters type should be 'object'")
	}
	props, ok := params["properties"].(map[string]any)
	if !ok {
		t.Fatal("Parameters missing 'properties'")
	}
	for _, key := range []string{"action", "url", "selector", "text", "javascript", "session"} {
		if _, ok := props[key]; !ok {
			t.Errorf("Parameters missing property %q", key)
		}
	}
}

func TestBrowserTool_Execute_ArgumentErrors(t *testing.T) {
	tool := NewBrowserTool(nil)
	defer tool.Close()
	ctx := context.Background()

	tests := []struct {
		args map[string]any
		want string
	}{
		{map[string]any{}, "action is required"},
		{map[string]any{"action": "dance"}, "unknown action"},
		{map[string]any{"action": "navigate"}, "url is required"},
		{map[string]any{"action": "click"}, "selector is required"},
		{map[string]any{"action": "type", "selector": "#q"}, "selector and text are required"},
		{map[string]any{"action": "evaluate"}, "javascript is required"},
		{map[string]any{"action": "extract"}, "selector is required"},
		{map[string]any{"action": "wait_for"}, "selector is required"},
		{map[string]any{"action": "hover"}, "selector is required"},
		{map[string]any{"action": "select"}, "selector is required"},
		{map[string]any{"action": "set_cookie", "cookie_name": "a"}, "cookie_name and cookie_value are required"},
		{map[string]any{"action": "new_session"}, "session name is required"},
		{map[string]any{"action": "close_session", "session": "nonexistent"}, "not found"},
	}
	for _, tt := range tests {
		result := tool.Execute(ctx, tt.args)
		if !result.IsError {
			t.Errorf("Execute(%v) succeeded, want error", tt.args)
			continue
		}
		if !strings.Contains(result.ForLLM, tt.want) {
			t.Errorf("Execute(%v) = %s, want %q", tt.args, result.ForLLM, tt.want)
		}
	}
}

func TestBrowserTool_Execute_ListSessions(t *testing.T) {
	tool := NewBrowserTool(nil)
	defer tool.Close()

	result := tool.Execute(context.Background(), map[string]any{"action": "list_sessions"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.ForLLM)
	}
	if !strings.Contains(result.ForLLM, `"sessions":[]`) {
		t.Errorf("unexpected result: %s", result.ForLLM)
	}
}

func TestWrapJSExpression(t *testing.T) {
	tests := []struct{ in, want string }{
		{"document.title", "() => document.title"},
		{"() => 1", "() => 1"},
		{"function() { return 1 }", "function() { return 1 }"},
		{"async () => 1", "async () => 1"},
	}
	for _, tt := range tests {
		if got := wrapJSExpression(tt.in); got != tt.want {
			t.Errorf("wrapJSExpression(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseKeys(t *testing.T) {
	tests := []struct {
		in        string
		key       input.Key
		modifiers []input.Key
	}{
		{"Enter", input.Enter, nil},
		{"escape", input.Escape, nil},
		{"ArrowDown", input.ArrowDown, nil},
		{"a", input.Key('a'), nil},
		{"Control+a", input.Key('a'), []input.Key{input.ControlLeft}},
		{"Ctrl+Shift+T", input.Key('T'), []input.Key{input.ControlLeft, input.ShiftLeft}},
		{"Meta++", input.Key('+'), []input.Key{input.MetaLeft}},
		{"+", input.Key('+'), nil},
	}
	for _, tt := range tests {
		combo, err := parseKeys(tt.in)
		if err != nil {
			t.Errorf("parseKeys(%q): %v", tt.in, err)
			continue
		}
		if combo.Key != tt.key || len(combo.Modifiers) != len(tt.modifiers) {
			t.Errorf("parseKeys(%q) = %+v", tt.in, combo)
			continue
		}
		for i := range tt.modifiers {
			if combo.Modifiers[i] != tt.modifiers[i] {
				t.Errorf("parseKeys(%q) modifier %d = %v", tt.in, i, combo.Modifiers[i])
			}
		}
	}

	for _, bad := range []string{"", "Hyper+a", "NotAKey", "Control+"} {
		if _, err := parseKeys(bad); err == nil {
			t.Errorf("parseKeys(%q) succeeded, want error", bad)
		}
	}
}

func TestSearchURL(t *testing.T) {
	got, err := SearchURL("Google", "go rod & chrome")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://www.google.com/search?q=go+rod+%26+chrome&udm=14" {
		t.Errorf("SearchURL = %q", got)
	}
	if _, err := SearchURL("altavista", "x"); err == nil || !strings.Contains(err.Error(), "duckduckgo") {
		t.Errorf("unsupported engine error = %v", err)
	}
}

func TestParseElements(t *testing.T) {
	raw := `[{"index":0,"tag":"a","text":"Docs","href":"/docs","selector":"#docs"},
		{"index":1,"tag":"input","text":"","type":"password","name":"pw","selector":"form > input:nth-of-type(2)"}]`
	els, err := parseElements(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(els) != 2 || els[0].Selector != "#docs" || els[1].Type != "password" {
		t.Fatalf("parseElements = %+v", els)
	}
	if els[1].Selector != "form > input:nth-of-type(2)" {
		t.Errorf("selector = %q", els[1].Selector)
	}
	if _, err := parseElements("not json"); err == nil {
		t.Error("expected parse error")
	}
}

func TestTidyMarkdown(t *testing.T) {
	got := tidyMarkdown("\n\n# Title\n\n\n\n\nbody\n\n\n")
	if got != "# Title\n\nbody" {
		t.Errorf("tidyMarkdown = %q", got)
	}
}

func TestLocalStorageScript(t *testing.T) {
	if s := localStorageScript(nil); s != "" {
		t.Errorf("script for no origins = %q", s)
	}
	s := localStorageScript([]OriginState{{
		Origin:       "https://app.example.com",
		LocalStorage: []NameValue{{Name: "token", Value: "abc"}},
	}})
	for _, want := range []string{`"https://app.example.com"`, `"token":"abc"`, "location.origin"} {
		if !strings.Contains(s, want) {
			t.Errorf("script missing %s: %s", want, s)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	s, cut := truncateRunes("汇总数据", 2)
	if s != "汇总" || !cut {
		t.Errorf("truncateRunes = %q, %v", s, cut)
	}
	if s, cut := truncateRunes("ok", 5); s != "ok" || cut {
		t.Errorf("truncateRunes = %q, %v", s, cut)
	}
}

func TestWait(t *testing.T) {
	d, err := Wait(context.Background(), -time.Second)
	if err != nil || d != 0 {
		t.Errorf("Wait(-1s) = %v, %v", d, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait on cancelled ctx = %v", err)
	}
}

func TestActionResult_Structure(t *testing.T) {
	result := &ActionResult{
		Action:  "test",
		Success: true,
		Data: map[string]any{
			"key": "value",
		},
	}

	if result.Action != "test" {
		t.Errorf("Action = %q, want %q", result.Action, "test")
	}
	if !result.Success {
		t.Error("Success should be true")
	}
	if result.Data["key"] != "value" {
		t.Error("Data[key] should be 'value'")
	}
}

// ---- Integration tests (require Chromium, opt-in) ----

func skipIfNoChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("DESKCLAW_BROWSER_TESTS") == "" {
		t.Skip("set DESKCLAW_BROWSER_TESTS=1 to run browser integration tests")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chrome/Chromium binary found")
	}
	return bin
}

const loginPage = `<!doctype html><html><head><title>Login</title></head><body>
<h1>Sign in</h1>
<form onsubmit="event.preventDefault(); localStorage.setItem('user', document.getElementById('user').value); document.getElementById('out').innerText = 'hello ' + document.getElementById('user').value;">
  <input id="user" name="user" placeholder="User name">
  <select id="plan"><option value="a">Alpha</option><option value="b" selected>Beta</option></select>
  <button type="submit">Go</button>
</form>
<p id="out"></p>
<div style="display:none"><button>Hidden</button></div>
</body></html>`

func TestIntegration_StateInputAndRestore(t *testing.T) {
	bin := skipIfNoChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "42", Path: "/"})
		_, _ = w.Write([]byte(loginPage))
	}))
	defer srv.Close()

	dir := t.TempDir()
	mgr := NewManager(ManagerConfig{Headless: true, BrowserBin: bin, SessionDir: dir})
	defer mgr.Close()
	ctx := context.Background()

	sess, restored, err := mgr.Open("work", true)
	if err != nil {
		t.Fatal(err)
	}
	if restored {
		t.Error("fresh session reported restored state")
	}
	if _, err := sess.Navigate(ctx, srv.URL, false); err != nil {
		t.Fatal(err)
	}

	st, err := sess.State(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if st.Title != "Login" || st.ElementsCount != 3 {
		t.Fatalf("state = %s with %d elements: %+v", st.Title, st.ElementsCount, st.Elements)
	}
	if _, err := sess.InputIndex(ctx, 0, "ada", true); err != nil {
		t.Fatal(err)
	}
	opts, err := sess.DropdownOptions(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Data["count"] != 2 {
		t.Errorf("options = %v", opts.Data)
	}
	if _, err := sess.ClickIndex(ctx, 2); err != nil {
		t.Fatal(err)
	}
	text, err := sess.ExtractContent(ctx, "#out")
	if err != nil {
		t.Fatal(err)
	}
	if text.Data["content"] != "hello ada" {
		t.Errorf("content = %v", text.Data["content"])
	}

	if _, err := sess.SaveState(ctx); err != nil {
		t.Fatal(err)
	}
	if err := mgr.CloseSession("work"); err != nil {
		t.Fatal(err)
	}

	sess, restored, err = mgr.Open("work", true)
	if err != nil {
		t.Fatal(err)
	}
	if !restored {
		t.Fatal("saved state was not restored")
	}
	if _, err := sess.Navigate(ctx, srv.URL, false); err != nil {
		t.Fatal(err)
	}
	res, err := sess.Evaluate(ctx, "localStorage.getItem('user')")
	if err != nil {
		t.Fatal(err)
	}
	if res.Data["result"] != "ada" {
		t.Errorf("restored localStorage = %v", res.Data["result"])
	}
}

func TestIntegration_DomainRestriction(t *testing.T) {
	bin := skipIfNoChrome(t)

	mgr := NewManager(ManagerConfig{
		Headless:       true,
		BrowserBin:     bin,
		SessionDir:     t.TempDir(),
		AllowedDomains: []string{"example.com"},
	})
	defer mgr.Close()

	sess, err := mgr.NewSession("restricted")
	if err != nil {
		t.Fatal(err)
	}
	_, err = sess.Navigate(context.Background(), "https://evil.test/", false)
	if err == nil || !strings.Contains(err.Error(), "domain not allowed") {
		t.Errorf("Navigate to blocked domain = %v", err)
	}
}
