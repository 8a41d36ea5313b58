package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Navigate opens a URL in the active tab, or in a new tab when newTab is
// set, and returns the page title and URL.
func (s *Session) Navigate(ctx context.Context, url string, newTab bool) (*ActionResult, error) {
	if !s.manager.isDomainAllowed(url) {
		return nil, fmt.Errorf("domain not allowed: %s", url)
	}

	if newTab {
		s.mu.Lock()
		_, err := s.newTabLocked()
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}

	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate failed: %w", err)
	}
	s.settle(page)

	s.mu.Lock()
	s.elements = make(map[int]Element)
	s.mu.Unlock()

	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info failed: %w", err)
	}

	return &ActionResult{
		Action:  "navigate",
		Success: true,
		Data: map[string]any{
			"title":   info.Title,
			"url":     info.URL,
			"new_tab": newTab,
		},
	}, nil
}

// settle waits for the document to load and the DOM to stop changing.
// Pages that never stabilize are used as they are.
func (s *Session) settle(page *rod.Page) {
	_ = page.WaitLoad()
	_ = page.WaitStable(300 * time.Millisecond)
}

// GoBack navigates the active tab back in its history.
func (s *Session) GoBack(ctx context.Context) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}
	if err := page.NavigateBack(); err != nil {
		return nil, fmt.Errorf("go back failed: %w", err)
	}
	s.settle(page)

	s.mu.Lock()
	s.elements = make(map[int]Element)
	s.mu.Unlock()

	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info failed: %w", err)
	}
	return &ActionResult{
		Action:  "go_back",
		Success: true,
		Data:    map[string]any{"title": info.Title, "url": info.URL},
	}, nil
}

// Click clicks an element matching the CSS selector.
func (s *Session) Click(ctx context.Context, selector string) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}

	el, err := page.Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s: %w", selector, err)
	}

	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("click failed: %w", err)
	}

	_ = page.WaitStable(200 * time.Millisecond)

	return &ActionResult{
		Action:  "click",
		Success: true,
		Data: map[string]any{
			"selector": selector,
		},
	}, nil
}

// Type types text into an element matching the CSS selector.
// If clear is true, the field is cleared before typing.
func (s *Session) Type(ctx context.Context, selector, text string, clear bool) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}

	el, err := page.Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s: %w", selector, err)
	}
	if err := typeInto(el, text, clear); err != nil {
		return nil, err
	}

	return &ActionResult{
		Action:  "type",
		Success: true,
		Data: map[string]any{
			"selector":    selector,
			"text_length": len([]rune(text)),
		},
	}, nil
}

func typeInto(el *rod.Element, text string, clear bool) error {
	if clear {
		if err := el.SelectAllText(); err != nil {
			return fmt.Errorf("select text failed: %w", err)
		}
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("type failed: %w", err)
	}
	return nil
}

// Screenshot captures the active tab as a base64 PNG. If fullPage is true,
// the entire scrollable area is captured.
func (s *Session) Screenshot(ctx context.Context, fullPage bool) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}

	data, err := page.Screenshot(fullPage, nil)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	return &ActionResult{
		Action:  "screenshot",
		Success: true,
		Data: map[string]any{
			"base64":    base64.StdEncoding.EncodeToString(data),
			"full_page": fullPage,
			"size":      len(data),
		},
	}, nil
}

// Evaluate executes JavaScript on the page and returns the result.
// The js argument can be a raw expression (e.g. "document.title") or
// a function expression (e.g. "() => document.title").
func (s *Session) Evaluate(ctx context.Context, js string) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}

	result, err := page.Eval(wrapJSExpression(js))
	if err != nil {
		return nil, fmt.Errorf("eval failed: %w", err)
	}

	return &ActionResult{
		Action:  "evaluate",
		Success: true,
		Data: map[string]any{
			"result": result.Value.Val(),
		},
	}, nil
}

// wrapJSExpression wraps a raw JS expression in an arrow function. Rod's
// Eval expects `() => expr` or `function() {...}`.
func wrapJSExpression(js string) string {
	trimmed := strings.TrimSpace(js)
	if strings.HasPrefix(trimmed, "()") ||
		strings.HasPrefix(trimmed, "function") ||
		strings.HasPrefix(trimmed, "(function") ||
		strings.HasPrefix(trimmed, "(()") ||
		strings.HasPrefix(trimmed, "async") {
		return js
	}
	return "() => " + js
}

// Extract extracts text content from elements matching the selector.
func (s *Session) Extract(ctx context.Context, selector string, attribute string) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}

	elements, err := page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("elements not found: %s: %w", selector, err)
	}

	results := make([]map[string]string, 0, len(elements))
	for _, el := range elements {
		entry := map[string]string{}
		if text, err := el.Text(); err == nil {
			entry["text"] = text
		}
		if attribute != "" {
			if val, err := el.Attribute(attribute); err == nil && val != nil {
				entry[attribute] = *val
			}
		}
		if attribute != "href" {
			if href, err := el.Attribute("href"); err == nil && href != nil {
				entry["href"] = *href
			}
		}
		results = append(results, entry)
	}

	return &ActionResult{
		Action:  "extract",
		Success: true,
		Data: map[string]any{
			"selector": selector,
			"count":    len(results),
			"elements": results,
		},
	}, nil
}

// WaitFor waits for an element matching the selector to appear.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		page = page.Timeout(timeout)
	}

	start := time.Now()
	_, err = page.Element(selector)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("wait timed out for %s after %v: %w", selector, elapsed.Round(time.Millisecond), err)
	}

	return &ActionResult{
		Action:  "wait_for",
		Success: true,
		Data: map[string]any{
			"selector": selector,
			"elapsed":  elapsed.String(),
		},
	}, nil
}

// GetPageInfo returns the title, URL and scroll dimensions of the active tab.
func (s *Session) GetPageInfo(ctx context.Context) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}

	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info failed: %w", err)
	}

	dims, err := page.Eval(`() => JSON.stringify({
		scrollWidth: document.documentElement.scrollWidth,
		scrollHeight: document.documentElement.scrollHeight,
		clientWidth: document.documentElement.clientWidth,
		clientHeight: document.documentElement.clientHeight,
		scrollX: window.scrollX,
		scrollY: window.scrollY,
	})`)

	data := map[string]any{
		"title": info.Title,
		"url":   info.URL,
	}
	if err == nil {
		data["dimensions"] = dims.Value.Str()
	}

	return &ActionResult{
		Action:  "page_info",
		Success: true,
		Data:    data,
	}, nil
}

// SetCookie sets a cookie in the session.
func (s *Session) SetCookie(ctx context.Context, name, value, domain, path string) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}

	cookie := &proto.NetworkCookieParam{
		Name:   name,
		Value:  value,
		Domain: domain,
		Path:   path,
	}
	if domain == "" {
		if info, err := page.Info(); err == nil {
			cookie.URL = info.URL
		}
	}

	if err := page.SetCookies([]*proto.NetworkCookieParam{cookie}); err != nil {
		return nil, fmt.Errorf("set cookie failed: %w", err)
	}

	return &ActionResult{
		Action:  "set_cookie",
		Success: true,
		Data: map[string]any{
			"name":   name,
			"domain": domain,
		},
	}, nil
}

// GetCookies returns every cookie of the session's browser context.
func (s *Session) GetCookies(ctx context.Context) (*ActionResult, error) {
	cookies, err := s.context.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("get cookies failed: %w", err)
	}

	cookieData := make([]map[string]any, 0, len(cookies))
	for _, c := range cookies {
		cookieData = append(cookieData, map[string]any{
			"name":     c.Name,
			"value":    c.Value,
			"domain":   c.Domain,
			"path":     c.Path,
			"httpOnly": c.HTTPOnly,
			"secure":   c.Secure,
		})
	}

	return &ActionResult{
		Action:  "get_cookies",
		Success: true,
		Data: map[string]any{
			"cookies": cookieData,
			"count":   len(cookieData),
		},
	}, nil
}

// ClearCookies removes every cookie of the session's browser context.
func (s *Session) ClearCookies(ctx context.Context) (*ActionResult, error) {
	if err := s.context.SetCookies(nil); err != nil {
		return nil, fmt.Errorf("clear cookies failed: %w", err)
	}
	return &ActionResult{Action: "clear_cookies", Success: true, Data: map[string]any{"cleared": true}}, nil
}

// PDF renders the active tab as a base64 PDF.
func (s *Session) PDF(ctx context.Context) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pdf generation failed: %w", err)
	}
	buf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	return &ActionResult{
		Action:  "pdf",
		Success: true,
		Data: map[string]any{
			"base64": base64.StdEncoding.EncodeToString(buf),
			"size":   len(buf),
		},
	}, nil
}

// Hover hovers over an element matching the CSS selector.
func (s *Session) Hover(ctx context.Context, selector string) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}

	el, err := page.Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s: %w", selector, err)
	}
	if err := el.Hover(); err != nil {
		return nil, fmt.Errorf("hover failed: %w", err)
	}

	return &ActionResult{
		Action:  "hover",
		Success: true,
		Data: map[string]any{
			"selector": selector,
		},
	}, nil
}

// SelectOption selects options of a <select> element by their text.
func (s *Session) SelectOption(ctx context.Context, selector string, values []string) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}

	el, err := page.Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s: %w", selector, err)
	}
	if err := el.Select(values, true, rod.SelectorTypeText); err != nil {
		return nil, fmt.Errorf("select failed: %w", err)
	}

	return &ActionResult{
		Action:  "select",
		Success: true,
		Data: map[string]any{
			"selector": selector,
			"values":   values,
		},
	}, nil
}

// GetText returns the readable text of the page, truncated to maxLen runes.
func (s *Session) GetText(ctx context.Context, maxLen int) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}
	if maxLen <= 0 {
		maxLen = 8000
	}

	result, err := page.Eval(`() => {
		const body = document.body;
		if (!body) return '';
		const clone = body.cloneNode(true);
		clone.querySelectorAll('script, style, noscript').forEach(s => s.remove());
		return clone.innerText || clone.textContent || '';
	}`)
	if err != nil {
		return nil, fmt.Errorf("get text failed: %w", err)
	}

	text, truncated := truncateRunes(result.Value.Str(), maxLen)
	return &ActionResult{
		Action:  "get_text",
		Success: true,
		Data: map[string]any{
			"text":      text,
			"truncated": truncated,
			"length":    len([]rune(text)),
		},
	}, nil
}

func truncateRunes(s string, n int) (string, bool) {
	r := []rune(s)
	if len(r) <= n {
		return s, false
	}
	return string(r[:n]), true
}
