package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/freitascorp/deskclaw/pkg/tools"
)

// BrowserTool is the low-level selector driven browser tool. It dispatches
// one action per call to the underlying Session methods.
//
// Supported actions:
//   - navigate: Open a URL
//   - click: Click an element by CSS selector
//   - type: Type text into an input
//   - screenshot: Capture page screenshot (base64 PNG)
//   - evaluate: Execute JavaScript
//   - extract: Extract text/attributes from elements
//   - wait_for: Wait for an element to appear
//   - scroll: Scroll the page
//   - get_text: Get all page text
//   - page_info: Get current page title/URL/dimensions
//   - hover: Hover over an element
//   - select: Select an option in a <select> element
//   - get_cookies: List all cookies
//   - set_cookie: Set a cookie
//   - pdf: Generate PDF (base64)
//   - new_session: Create a new isolated session
//   - close_session: Close a session
//   - list_sessions: List active sessions
type BrowserTool struct {
	manager *Manager
}

var browserActions = []string{
	"navigate", "click", "type", "screenshot", "evaluate",
	"extract", "wait_for", "scroll", "get_text", "page_info",
	"hover", "select", "get_cookies", "set_cookie", "pdf",
	"new_session", "close_session", "list_sessions",
}

// NewBrowserTool creates a browser tool with its own manager.
// If config is nil, defaults are used (headless, 30s timeout).
func NewBrowserTool(config *ManagerConfig) *BrowserTool {
	if config == nil {
		config = &ManagerConfig{
			Headless: true,
		}
	}
	return &BrowserTool{
		manager: NewManager(*config),
	}
}

// NewBrowserToolWithManager creates a browser tool sharing mgr with the
// browser_* tools.
func NewBrowserToolWithManager(mgr *Manager) *BrowserTool {
	return &BrowserTool{manager: mgr}
}

func (t *BrowserTool) Name() string {
	return "browser"
}

func (t *BrowserTool) Description() string {
	return `Drive the browser with CSS selectors: navigate pages, interact with elements, take screenshots, and extract data. ` +
		`Actions: navigate, click, type, screenshot, evaluate, extract, wait_for, scroll, get_text, ` +
		`page_info, hover, select, get_cookies, set_cookie, pdf, new_session, close_session, list_sessions.`
}

func (t *BrowserTool) Parameters() map[string]any {
	return tools.Schema(map[string]any{
		"action":        tools.PropEnum("The browser action to perform", browserActions...),
		"url":           tools.Prop("string", "URL to navigate to (for 'navigate' action)"),
		"selector":      tools.Prop("string", "CSS selector for targeting elements (for click, type, extract, wait_for, hover, select)"),
		"text":          tools.Prop("string", "Text to type into an input field (for 'type' action)"),
		"clear":         tools.Prop("boolean", "Clear the input field before typing (for 'type' action, default false)"),
		"javascript":    tools.Prop("string", "JavaScript code to evaluate on the page (for 'evaluate' action)"),
		"attribute":     tools.Prop("string", "HTML attribute to extract (for 'extract' action, e.g. 'href', 'src')"),
		"full_page":     tools.Prop("boolean", "Capture full scrollable page (for 'screenshot' action, default false)"),
		"scroll_x":      tools.Prop("number", "Horizontal scroll pixels (for 'scroll' action)"),
		"scroll_y":      tools.Prop("number", "Vertical scroll pixels (for 'scroll' action, positive = down)"),
		"max_length":    tools.Prop("integer", "Maximum text length to return (for 'get_text' action, default 8000)"),
		"values":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Option texts to select (for 'select' action)"},
		"cookie_name":   tools.Prop("string", "Cookie name (for 'set_cookie' action)"),
		"cookie_value":  tools.Prop("string", "Cookie value (for 'set_cookie' action)"),
		"cookie_domain": tools.Prop("string", "Cookie domain (for 'set_cookie' action)"),
		"cookie_path":   tools.Prop("string", "Cookie path (for 'set_cookie' action, default '/')"),
		"session":       tools.Prop("string", "Session name for isolation (default: the current session)"),
		"timeout":       tools.Prop("integer", "Timeout in seconds for wait_for"),
	}, "action")
}

func missing(what, action string) *tools.ToolResult {
	return tools.Failure(fmt.Errorf("%s required for %s action", what, action), "INVALID_ARGUMENT")
}

// Execute dispatches the action to the appropriate session method.
func (t *BrowserTool) Execute(ctx context.Context, args map[string]any) *tools.ToolResult {
	action := tools.StringArg(args, "action", "")
	if action == "" {
		return tools.Failure(fmt.Errorf("action is required"), "INVALID_ARGUMENT")
	}

	switch action {
	case "new_session":
		return t.doNewSession(args)
	case "close_session":
		return t.doCloseSession(args)
	case "list_sessions":
		return tools.JSONResult(map[string]any{"sessions": t.manager.ListSessions()})

	case "navigate":
		url := tools.StringArg(args, "url", "")
		if url == "" {
			return missing("url is", action)
		}
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.Navigate(ctx, url, false) })

	case "click":
		selector := tools.StringArg(args, "selector", "")
		if selector == "" {
			return missing("selector is", action)
		}
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.Click(ctx, selector) })

	case "type":
		selector := tools.StringArg(args, "selector", "")
		text := tools.StringArg(args, "text", "")
		if selector == "" || text == "" {
			return missing("selector and text are", action)
		}
		clear := tools.BoolArg(args, "clear", false)
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.Type(ctx, selector, text, clear) })

	case "screenshot":
		fullPage := tools.BoolArg(args, "full_page", false)
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.Screenshot(ctx, fullPage) })

	case "evaluate":
		js := tools.StringArg(args, "javascript", "")
		if js == "" {
			return missing("javascript is", action)
		}
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.Evaluate(ctx, js) })

	case "extract":
		selector := tools.StringArg(args, "selector", "")
		if selector == "" {
			return missing("selector is", action)
		}
		attr := tools.StringArg(args, "attribute", "")
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.Extract(ctx, selector, attr) })

	case "wait_for":
		selector := tools.StringArg(args, "selector", "")
		if selector == "" {
			return missing("selector is", action)
		}
		timeout := time.Duration(tools.FloatArg(args, "timeout", 0) * float64(time.Second))
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.WaitFor(ctx, selector, timeout) })

	case "scroll":
		x, y := tools.FloatArg(args, "scroll_x", 0), tools.FloatArg(args, "scroll_y", 0)
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.Scroll(ctx, x, y) })

	case "get_text":
		maxLen := tools.IntArg(args, "max_length", 8000)
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.GetText(ctx, maxLen) })

	case "page_info":
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.GetPageInfo(ctx) })

	case "hover":
		selector := tools.StringArg(args, "selector", "")
		if selector == "" {
			return missing("selector is", action)
		}
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.Hover(ctx, selector) })

	case "select":
		selector := tools.StringArg(args, "selector", "")
		if selector == "" {
			return missing("selector is", action)
		}
		values := tools.StringSliceArg(args, "values")
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.SelectOption(ctx, selector, values) })

	case "get_cookies":
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.GetCookies(ctx) })

	case "set_cookie":
		name := tools.StringArg(args, "cookie_name", "")
		value := tools.StringArg(args, "cookie_value", "")
		if name == "" || value == "" {
			return missing("cookie_name and cookie_value are", action)
		}
		domain, path := tools.StringArg(args, "cookie_domain", ""), tools.StringArg(args, "cookie_path", "/")
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.SetCookie(ctx, name, value, domain, path) })

	case "pdf":
		return t.run(args, action, func(s *Session) (*ActionResult, error) { return s.PDF(ctx) })
	}
	return tools.Failure(fmt.Errorf("unknown action: %s", action), "INVALID_ARGUMENT")
}

// run resolves the session named by args, or the current one, and applies fn.
func (t *BrowserTool) run(args map[string]any, action string, fn func(*Session) (*ActionResult, error)) *tools.ToolResult {
	var (
		sess *Session
		err  error
	)
	if name := tools.StringArg(args, "session", ""); name != "" {
		sess, err = t.manager.NewSession(name)
	} else {
		sess, err = t.manager.Current()
	}
	if err != nil {
		return tools.Failure(fmt.Errorf("session error: %w", err), errCode)
	}
	result, err := fn(sess)
	if err != nil {
		return tools.Failure(fmt.Errorf("%s failed: %w", action, err), errCode)
	}
	return t.formatResult(result)
}

// Close shuts down the browser manager and all sessions.
func (t *BrowserTool) Close() error {
	return t.manager.Close()
}

func (t *BrowserTool) doNewSession(args map[string]any) *tools.ToolResult {
	name := tools.StringArg(args, "session", "")
	if name == "" {
		return missing("session name is", "new_session")
	}
	if _, err := t.manager.NewSession(name); err != nil {
		return tools.Failure(fmt.Errorf("failed to create session: %w", err), errCode)
	}
	return tools.JSONResult(map[string]any{"session": name, "created": true})
}

func (t *BrowserTool) doCloseSession(args map[string]any) *tools.ToolResult {
	name := tools.StringArg(args, "session", "")
	if name == "" {
		return missing("session name is", "close_session")
	}
	if err := t.manager.CloseSession(name); err != nil {
		return tools.Failure(fmt.Errorf("failed to close session: %w", err), errCode)
	}
	return tools.JSONResult(map[string]any{"session": name, "closed": true})
}

// formatResult keeps large base64 payloads out of the text body. Screenshots
// become image content; PDFs are summarized with the data in ForUser.
func (t *BrowserTool) formatResult(result *ActionResult) *tools.ToolResult {
	if result.Action == "pdf" {
		b64, _ := result.Data["base64"].(string)
		res := tools.JSONResult(map[string]any{"action": "pdf", "size": result.Data["size"]})
		res.ForUser = b64
		return res
	}
	return render(result)
}
