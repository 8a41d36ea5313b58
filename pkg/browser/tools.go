package browser

import (
	"context"
	"time"

	"github.com/freitascorp/deskclaw/pkg/tools"
)

const (
	// ServerName is the MCP server identity for the browser adapter.
	ServerName = "browser-use-mcp-server"

	errCode = "BROWSER_ERROR"
)

type sessionFunc func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error)

// onSession builds a tool that runs against the current session, opening
// the default one when needed.
func onSession(m *Manager, name, desc string, params map[string]any, fn sessionFunc) tools.Tool {
	return tools.NewFunc(name, desc, params, func(ctx context.Context, args map[string]any) *tools.ToolResult {
		sess, err := m.Current()
		if err != nil {
			return tools.Failure(err, errCode)
		}
		res, err := fn(ctx, sess, args)
		if err != nil {
			return tools.Failure(err, errCode)
		}
		return render(res)
	})
}

// render moves an inline base64 image out of the JSON body into image content.
func render(res *ActionResult) *tools.ToolResult {
	data := res.Data
	if data == nil {
		data = map[string]any{}
	}
	img, _ := data["base64"].(string)
	delete(data, "base64")
	return tools.JSONResult(data).WithImage(img)
}

func optionalIndex(args map[string]any, key string) *int {
	if !tools.HasArg(args, key) {
		return nil
	}
	i := tools.IntArg(args, key, -1)
	return &i
}

// Tools returns the browser_* tools, all sharing m.
func Tools(m *Manager) []tools.Tool {
	index := tools.Prop("integer", "Element index from browser_get_state")
	return []tools.Tool{
		tools.NewFunc("browser_create_session",
			"Create or switch to a named browser session. Saved cookies and local storage are restored when available.",
			tools.Schema(map[string]any{
				"session_id": tools.Prop("string", "Session id; a random one is generated when empty"),
				"restore":    tools.PropDefault("boolean", "Restore the saved storage state", true),
			}),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				sess, restored, err := m.Open(tools.StringArg(args, "session_id", ""), tools.BoolArg(args, "restore", true))
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(map[string]any{
					"session_id": sess.ID(),
					"restored":   restored,
					"created_at": sess.CreatedAt().Format(time.RFC3339),
					"headless":   m.Config().Headless,
				})
			}),

		tools.NewFunc("browser_close_session",
			"Close a session, saving its storage state first unless save is false.",
			tools.Schema(map[string]any{
				"session_id": tools.Prop("string", "Session to close; defaults to the current one"),
				"save":       tools.PropDefault("boolean", "Save cookies and local storage before closing", true),
			}),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				id := tools.StringArg(args, "session_id", m.CurrentID())
				sess, ok := m.GetSession(id)
				if !ok {
					return tools.JSONResult(map[string]any{"session_id": id, "closed": false, "message": "no active session"})
				}
				body := map[string]any{"session_id": id, "saved": false}
				if tools.BoolArg(args, "save", true) {
					path, err := sess.SaveState(ctx)
					if err != nil {
						return tools.Failure(err, errCode)
					}
					body["saved"] = true
					body["storage_state_file"] = path
				}
				if err := m.CloseSession(id); err != nil {
					return tools.Failure(err, errCode)
				}
				body["closed"] = true
				return tools.JSONResult(body)
			}),

		onSession(m, "browser_save_session",
			"Save the current session's cookies and local storage.",
			tools.Schema(nil),
			func(ctx context.Context, s *Session, _ map[string]any) (*ActionResult, error) {
				path, err := s.SaveState(ctx)
				if err != nil {
					return nil, err
				}
				return &ActionResult{Action: "save_session", Success: true, Data: map[string]any{
					"session_id":         s.ID(),
					"storage_state_file": path,
				}}, nil
			}),

		tools.NewFunc("browser_list_sessions",
			"List the active sessions and the saved session files.",
			tools.Schema(nil),
			func(_ context.Context, _ map[string]any) *tools.ToolResult {
				saved, err := m.SavedSessions()
				if err != nil {
					return tools.Failure(err, errCode)
				}
				if saved == nil {
					saved = []SavedSession{}
				}
				return tools.JSONResult(map[string]any{
					"sessions":        saved,
					"count":           len(saved),
					"active_sessions": m.ListSessions(),
					"current_session": m.CurrentID(),
				})
			}),

		tools.NewFunc("browser_delete_session",
			"Delete a session's saved state and close it if it is active.",
			tools.Schema(map[string]any{
				"session_id": tools.Prop("string", "Session to delete"),
			}, "session_id"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				id, err := tools.RequireString(args, "session_id")
				if err != nil {
					return tools.Failure(err, errCode)
				}
				deleted, err := m.DeleteSession(id)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(map[string]any{"session_id": id, "deleted_items": deleted})
			}),

		tools.NewFunc("browser_get_status",
			"Report whether the browser is running, the current session and the configured credential keys.",
			tools.Schema(nil),
			func(_ context.Context, _ map[string]any) *tools.ToolResult {
				return tools.JSONResult(m.Status())
			}),

		tools.NewFunc("browser_get_state",
			"Describe the active tab: URL, title, open tabs, the indexed interactive elements and the page text.",
			tools.Schema(map[string]any{
				"include_screenshot": tools.PropDefault("boolean", "Attach a screenshot of the viewport", true),
			}),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				sess, err := m.Current()
				if err != nil {
					return tools.Failure(err, errCode)
				}
				st, err := sess.State(ctx, tools.BoolArg(args, "include_screenshot", true))
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(st).WithImage(st.Screenshot)
			}),

		onSession(m, "browser_navigate",
			"Open a URL in the active tab or in a new tab.",
			tools.Schema(map[string]any{
				"url":     tools.Prop("string", "Address to open"),
				"new_tab": tools.PropDefault("boolean", "Open in a new tab", false),
			}, "url"),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				u, err := tools.RequireString(args, "url")
				if err != nil {
					return nil, err
				}
				return s.Navigate(ctx, u, tools.BoolArg(args, "new_tab", false))
			}),

		onSession(m, "browser_go_back",
			"Go back in the active tab's history.",
			tools.Schema(nil),
			func(ctx context.Context, s *Session, _ map[string]any) (*ActionResult, error) {
				return s.GoBack(ctx)
			}),

		onSession(m, "browser_search",
			"Search the web and open the results page.",
			tools.Schema(map[string]any{
				"query":  tools.Prop("string", "Search terms"),
				"engine": tools.PropEnum("Search engine (default google)", SearchEngines()...),
			}, "query"),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				q, err := tools.RequireString(args, "query")
				if err != nil {
					return nil, err
				}
				return s.Search(ctx, tools.StringArg(args, "engine", "google"), q)
			}),

		onSession(m, "browser_click",
			"Click an element by its index.",
			tools.Schema(map[string]any{"index": index}, "index"),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				return s.ClickIndex(ctx, tools.IntArg(args, "index", -1))
			}),

		onSession(m, "browser_input",
			"Type text into an element by its index.",
			tools.Schema(map[string]any{
				"index": index,
				"text":  tools.Prop("string", "Text to type"),
				"clear": tools.PropDefault("boolean", "Clear the field first", true),
			}, "index", "text"),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				text, _ := args["text"].(string)
				return s.InputIndex(ctx, tools.IntArg(args, "index", -1), text, tools.BoolArg(args, "clear", true))
			}),

		onSession(m, "browser_input_sensitive",
			"Fill an element with a credential from the env file. The value is never returned.",
			tools.Schema(map[string]any{
				"index":          index,
				"credential_key": tools.Prop("string", "Key name in the env file"),
				"clear":          tools.PropDefault("boolean", "Clear the field first", true),
			}, "index", "credential_key"),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				key, err := tools.RequireString(args, "credential_key")
				if err != nil {
					return nil, err
				}
				return s.InputSensitive(ctx, tools.IntArg(args, "index", -1), key, tools.BoolArg(args, "clear", true))
			}),

		tools.NewFunc("browser_list_credentials",
			"List the credential key names available to browser_input_sensitive.",
			tools.Schema(nil),
			func(_ context.Context, _ map[string]any) *tools.ToolResult {
				creds, err := LoadCredentials(m.Config().EnvFile)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				keys := CredentialKeys(creds)
				return tools.JSONResult(map[string]any{"keys": keys, "count": len(keys), "env_file": m.Config().EnvFile})
			}),

		onSession(m, "browser_send_keys",
			"Press a key such as Enter, Tab, Escape or ArrowDown, or a combination such as Control+a.",
			tools.Schema(map[string]any{"keys": tools.Prop("string", "Key or combination")}, "keys"),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				return s.SendKeys(ctx, tools.StringArg(args, "keys", ""))
			}),

		onSession(m, "browser_scroll",
			"Scroll the page, or an element by index, by 500 pixels.",
			tools.Schema(map[string]any{
				"direction": tools.PropEnum("Scroll direction (default down)", "down", "up"),
				"index":     tools.Prop("integer", "Scroll inside this element instead of the page"),
			}),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				return s.ScrollStepwise(ctx, tools.StringArg(args, "direction", "down"), optionalIndex(args, "index"))
			}),

		onSession(m, "browser_scroll_to_text",
			"Scroll the first occurrence of a text into view.",
			tools.Schema(map[string]any{"text": tools.Prop("string", "Text to find")}, "text"),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				text, err := tools.RequireString(args, "text")
				if err != nil {
					return nil, err
				}
				return s.ScrollToText(ctx, text)
			}),

		onSession(m, "browser_click_coordinate",
			"Click a point of the viewport.",
			tools.Schema(map[string]any{
				"x": tools.Prop("number", "X in CSS pixels"),
				"y": tools.Prop("number", "Y in CSS pixels"),
			}, "x", "y"),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				return s.ClickAt(ctx, tools.FloatArg(args, "x", 0), tools.FloatArg(args, "y", 0))
			}),

		onSession(m, "browser_switch_tab",
			"Activate a tab by its index.",
			tools.Schema(map[string]any{"tab_index": tools.Prop("integer", "Tab index from browser_get_state")}, "tab_index"),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				return s.SwitchTab(ctx, tools.IntArg(args, "tab_index", -1))
			}),

		onSession(m, "browser_close_tab",
			"Close a tab by its index, or the active tab.",
			tools.Schema(map[string]any{"tab_index": tools.Prop("integer", "Tab index; defaults to the active tab")}),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				return s.CloseTab(ctx, optionalIndex(args, "tab_index"))
			}),

		onSession(m, "browser_screenshot",
			"Save a screenshot of the active tab and return it as an image.",
			tools.Schema(map[string]any{"filename": tools.Prop("string", "File name; a timestamped one is used when empty")}),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				return s.SaveScreenshot(ctx, m.screenshotDir(), tools.StringArg(args, "filename", ""))
			}),

		onSession(m, "browser_extract_content",
			"Return the text of the page, or of the elements matching a CSS selector.",
			tools.Schema(map[string]any{"selector": tools.Prop("string", "CSS selector")}),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				return s.ExtractContent(ctx, tools.StringArg(args, "selector", ""))
			}),

		onSession(m, "browser_extract_markdown",
			"Convert the page to Markdown.",
			tools.Schema(map[string]any{"extract_links": tools.PropDefault("boolean", "Keep links", true)}),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				return s.Markdown(ctx, tools.BoolArg(args, "extract_links", true))
			}),

		onSession(m, "browser_get_dropdown_options",
			"List the options of a <select> element by its index.",
			tools.Schema(map[string]any{"index": index}, "index"),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				return s.DropdownOptions(ctx, tools.IntArg(args, "index", -1))
			}),

		onSession(m, "browser_upload_file",
			"Attach a local file to a file input by its index.",
			tools.Schema(map[string]any{
				"index":     index,
				"file_path": tools.Prop("string", "Local file to upload"),
			}, "index", "file_path"),
			func(ctx context.Context, s *Session, args map[string]any) (*ActionResult, error) {
				path, err := tools.RequireString(args, "file_path")
				if err != nil {
					return nil, err
				}
				return s.Upload(ctx, tools.IntArg(args, "index", -1), path)
			}),

		onSession(m, "browser_get_cookies",
			"List the cookies of the current session.",
			tools.Schema(nil),
			func(ctx context.Context, s *Session, _ map[string]any) (*ActionResult, error) {
				return s.GetCookies(ctx)
			}),

		onSession(m, "browser_clear_cookies",
			"Remove every cookie of the current session.",
			tools.Schema(nil),
			func(ctx context.Context, s *Session, _ map[string]any) (*ActionResult, error) {
				return s.ClearCookies(ctx)
			}),

		tools.NewFunc("browser_wait",
			"Wait a number of seconds, at most 30.",
			tools.Schema(map[string]any{"seconds": tools.PropDefault("number", "Seconds to wait", 3)}),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				d := time.Duration(tools.FloatArg(args, "seconds", 3) * float64(time.Second))
				waited, err := Wait(ctx, d)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(map[string]any{"seconds": waited.Seconds()})
			}),
	}
}
