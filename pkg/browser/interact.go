package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// ScrollStep is the distance of one browser_scroll.
const ScrollStep = 500

// MaxWait caps browser_wait.
const MaxWait = 30 * time.Second

// ClickIndex clicks the element with the given map index.
func (s *Session) ClickIndex(ctx context.Context, index int) (*ActionResult, error) {
	page, el, entry, err := s.element(ctx, index)
	if err != nil {
		return nil, err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("click element %d failed: %w", index, err)
	}
	_ = page.WaitStable(500 * time.Millisecond)
	return &ActionResult{
		Action:  "click",
		Success: true,
		Data:    map[string]any{"index": index, "tag": entry.Tag, "text": entry.Text},
	}, nil
}

// InputIndex types text into the element with the given map index.
func (s *Session) InputIndex(ctx context.Context, index int, text string, clear bool) (*ActionResult, error) {
	_, el, _, err := s.element(ctx, index)
	if err != nil {
		return nil, err
	}
	if err := typeInto(el, text, clear); err != nil {
		return nil, err
	}
	return &ActionResult{
		Action:  "input",
		Success: true,
		Data:    map[string]any{"index": index, "text_length": len([]rune(text))},
	}, nil
}

// InputSensitive fills an element with a credential from the env file.
// The value is never part of the result.
func (s *Session) InputSensitive(ctx context.Context, index int, key string, clear bool) (*ActionResult, error) {
	value, err := s.manager.credential(key)
	if err != nil {
		return nil, err
	}
	if _, err := s.InputIndex(ctx, index, value, clear); err != nil {
		return nil, err
	}
	return &ActionResult{
		Action:  "input_sensitive",
		Success: true,
		Data:    map[string]any{"index": index, "credential_key": key, "message": "value filled and hidden"},
	}, nil
}

// SendKeys presses a key or a combination such as Control+a on the
// active tab.
func (s *Session) SendKeys(ctx context.Context, keys string) (*ActionResult, error) {
	combo, err := parseKeys(keys)
	if err != nil {
		return nil, err
	}
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}
	kb := page.Keyboard
	for _, m := range combo.Modifiers {
		if err := kb.Press(m); err != nil {
			return nil, fmt.Errorf("press %s failed: %w", keys, err)
		}
	}
	err = kb.Type(combo.Key)
	for i := len(combo.Modifiers) - 1; i >= 0; i-- {
		_ = kb.Release(combo.Modifiers[i])
	}
	if err != nil {
		return nil, fmt.Errorf("press %s failed: %w", keys, err)
	}
	return &ActionResult{Action: "send_keys", Success: true, Data: map[string]any{"keys": keys}}, nil
}

// Scroll scrolls the page by the given pixel amounts.
// Use negative values to scroll up/left.
func (s *Session) Scroll(ctx context.Context, x, y float64) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := page.Eval(`(x, y) => window.scrollBy(x, y)`, x, y); err != nil {
		return nil, fmt.Errorf("scroll failed: %w", err)
	}

	return &ActionResult{
		Action:  "scroll",
		Success: true,
		Data: map[string]any{
			"x": x,
			"y": y,
		},
	}, nil
}

// ScrollStepwise scrolls one step up or down, inside the element with the
// given index when index is not nil.
func (s *Session) ScrollStepwise(ctx context.Context, direction string, index *int) (*ActionResult, error) {
	delta := float64(ScrollStep)
	switch direction {
	case "", "down":
		direction = "down"
	case "up":
		delta = -delta
	default:
		return nil, fmt.Errorf("direction must be up or down, got %q", direction)
	}
	if index == nil {
		res, err := s.Scroll(ctx, 0, delta)
		if err != nil {
			return nil, err
		}
		res.Data = map[string]any{"direction": direction, "target": "page", "pixels": ScrollStep}
		return res, nil
	}
	_, el, _, err := s.element(ctx, *index)
	if err != nil {
		return nil, err
	}
	if _, err := el.Eval(`(d) => this.scrollBy(0, d)`, delta); err != nil {
		return nil, fmt.Errorf("scroll element %d failed: %w", *index, err)
	}
	return &ActionResult{
		Action:  "scroll",
		Success: true,
		Data:    map[string]any{"direction": direction, "target": fmt.Sprintf("element %d", *index), "pixels": ScrollStep},
	}, nil
}

// ScrollToText scrolls the first text node containing text into view.
func (s *Session) ScrollToText(ctx context.Context, text string) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}
	found, err := page.Eval(`(text) => {
		const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
		while (walker.nextNode()) {
			if (walker.currentNode.textContent.includes(text)) {
				walker.currentNode.parentElement.scrollIntoView({behavior: 'instant', block: 'center'});
				return true;
			}
		}
		return false;
	}`, text)
	if err != nil {
		return nil, fmt.Errorf("scroll to text failed: %w", err)
	}
	if !found.Value.Bool() {
		return nil, fmt.Errorf("text not found: %s", text)
	}
	return &ActionResult{Action: "scroll_to_text", Success: true, Data: map[string]any{"text": text}}, nil
}

// ClickAt clicks viewport coordinates.
func (s *Session) ClickAt(ctx context.Context, x, y float64) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}
	if err := page.Mouse.MoveTo(proto.Point{X: x, Y: y}); err != nil {
		return nil, fmt.Errorf("move mouse failed: %w", err)
	}
	if err := page.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("click failed: %w", err)
	}
	return &ActionResult{Action: "click_coordinate", Success: true, Data: map[string]any{"x": x, "y": y}}, nil
}

// SwitchTab activates the tab at index and clears the element map.
func (s *Session) SwitchTab(ctx context.Context, index int) (*ActionResult, error) {
	s.mu.Lock()
	if index < 0 || index >= len(s.tabs) {
		n := len(s.tabs)
		s.mu.Unlock()
		return nil, fmt.Errorf("tab index %d does not exist (%d open)", index, n)
	}
	s.active = index
	s.elements = make(map[int]Element)
	page := s.tabs[index]
	s.mu.Unlock()

	if _, err := page.Context(ctx).Activate(); err != nil {
		return nil, fmt.Errorf("activate tab failed: %w", err)
	}
	return &ActionResult{Action: "switch_tab", Success: true, Data: map[string]any{"tab_index": index}}, nil
}

// CloseTab closes the tab at index, or the active tab when index is nil.
// Closing the last tab opens a blank one.
func (s *Session) CloseTab(ctx context.Context, index *int) (*ActionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.active
	if index != nil {
		target = *index
	}
	if target < 0 || target >= len(s.tabs) {
		return nil, fmt.Errorf("tab index %d does not exist (%d open)", target, len(s.tabs))
	}
	if err := s.tabs[target].Close(); err != nil {
		return nil, fmt.Errorf("close tab failed: %w", err)
	}
	s.tabs = append(s.tabs[:target], s.tabs[target+1:]...)
	switch {
	case len(s.tabs) == 0:
		if _, err := s.newTabLocked(); err != nil {
			return nil, err
		}
	case target == s.active:
		s.active = len(s.tabs) - 1
	case target < s.active:
		s.active--
	}
	s.elements = make(map[int]Element)
	return &ActionResult{
		Action:  "close_tab",
		Success: true,
		Data:    map[string]any{"closed": target, "active": s.active, "open": len(s.tabs)},
	}, nil
}

// SaveScreenshot writes a PNG of the active tab under dir and returns the
// path together with the base64 image.
func (s *Session) SaveScreenshot(ctx context.Context, dir, filename string) (*ActionResult, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}
	data, err := page.Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	if filename == "" {
		filename = "browser_screenshot_" + time.Now().Format("20060102_150405") + ".png"
	}
	filename = filepath.Base(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create screenshot dir: %w", err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write screenshot: %w", err)
	}
	return &ActionResult{
		Action:  "screenshot",
		Success: true,
		Data: map[string]any{
			"filepath": path,
			"filename": filename,
			"size":     len(data),
			"base64":   base64.StdEncoding.EncodeToString(data),
		},
	}, nil
}

// DropdownOptions lists the options of the <select> at index.
func (s *Session) DropdownOptions(ctx context.Context, index int) (*ActionResult, error) {
	_, el, _, err := s.element(ctx, index)
	if err != nil {
		return nil, err
	}
	res, err := el.Eval(`() => this.tagName === 'SELECT'
		? JSON.stringify(Array.from(this.options).map(o => ({value: o.value, text: o.text, selected: o.selected})))
		: ''`)
	if err != nil {
		return nil, fmt.Errorf("read options failed: %w", err)
	}
	raw := res.Value.Str()
	if raw == "" {
		return nil, fmt.Errorf("element %d is not a <select>", index)
	}
	var options []map[string]any
	if err := json.Unmarshal([]byte(raw), &options); err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	return &ActionResult{
		Action:  "get_dropdown_options",
		Success: true,
		Data:    map[string]any{"index": index, "options": options, "count": len(options)},
	}, nil
}

// Upload sets a local file on the file input at index.
func (s *Session) Upload(ctx context.Context, index int, path string) (*ActionResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("file does not exist: %s", path)
	}
	_, el, _, err := s.element(ctx, index)
	if err != nil {
		return nil, err
	}
	if err := el.SetFiles([]string{abs}); err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	return &ActionResult{Action: "upload_file", Success: true, Data: map[string]any{"index": index, "file_path": abs}}, nil
}

// Wait sleeps for the given duration, capped at MaxWait. It returns early
// when ctx is done.
func Wait(ctx context.Context, d time.Duration) (time.Duration, error) {
	d = min(max(d, 0), MaxWait)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-t.C:
		return d, nil
	}
}
