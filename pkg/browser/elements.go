package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
)

// DOMTextLimit bounds the page text returned with the state.
const DOMTextLimit = 5000

// Element is one entry of the interactive element map. Index is what
// callers pass to click, input and the other index based tools.
type Element struct {
	Index       int    `json:"index"`
	Tag         string `json:"tag"`
	Text        string `json:"text"`
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Href        string `json:"href,omitempty"`
	Role        string `json:"role,omitempty"`
	AriaLabel   string `json:"aria_label,omitempty"`
	Selector    string `json:"-"`
}

// Tab describes an open tab.
type Tab struct {
	ID     int    `json:"id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// PageState is the snapshot returned by browser_get_state.
type PageState struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Tabs          []Tab     `json:"tabs"`
	Elements      []Element `json:"elements"`
	ElementsCount int       `json:"elements_count"`
	DOMText       string    `json:"dom_text"`
	Screenshot    string    `json:"-"`
}

const elementMapJS = `() => {
	const selectors = [
		'a[href]', 'button', 'input', 'textarea', 'select',
		'[role="button"]', '[role="link"]', '[role="textbox"]', '[role="checkbox"]',
		'[role="radio"]', '[role="combobox"]', '[role="menuitem"]', '[role="tab"]',
		'[onclick]', '[tabindex]:not([tabindex="-1"])'
	].join(',');

	const selectorFor = (el) => {
		if (el.id) return '#' + CSS.escape(el.id);
		const parts = [];
		let node = el;
		while (node && node.nodeType === Node.ELEMENT_NODE && parts.length < 5) {
			let part = node.tagName.toLowerCase();
			const parent = node.parentElement;
			if (parent) {
				const same = Array.from(parent.children).filter(c => c.tagName === node.tagName);
				if (same.length > 1) part += ':nth-of-type(' + (same.indexOf(node) + 1) + ')';
			}
			parts.unshift(part);
			if (node === document.body) break;
			node = parent;
		}
		return parts.join(' > ');
	};

	const seen = new Set();
	const out = [];
	for (const el of document.querySelectorAll(selectors)) {
		if (seen.has(el)) continue;
		seen.add(el);
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') continue;
		if (rect.width === 0 || rect.height === 0) continue;
		const text = (el.innerText || el.value || '').trim().substring(0, 100);
		out.push({
			index: out.length,
			tag: el.tagName.toLowerCase(),
			text: text,
			type: el.getAttribute('type') || '',
			name: el.getAttribute('name') || '',
			placeholder: el.getAttribute('placeholder') || '',
			href: el.getAttribute('href') || '',
			role: el.getAttribute('role') || '',
			aria_label: el.getAttribute('aria-label') || '',
			selector: selectorFor(el)
		});
	}
	return JSON.stringify(out);
}`

type rawElement struct {
	Element
	Selector string `json:"selector"`
}

func parseElements(raw string) ([]Element, error) {
	var items []rawElement
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("parse element map: %w", err)
	}
	out := make([]Element, len(items))
	for i, it := range items {
		el := it.Element
		el.Selector = it.Selector
		out[i] = el
	}
	return out, nil
}

// buildElements rescans the active tab and replaces the element map.
func (s *Session) buildElements(page *rod.Page) ([]Element, error) {
	res, err := page.Eval(elementMapJS)
	if err != nil {
		return nil, fmt.Errorf("scan elements failed: %w", err)
	}
	elements, err := parseElements(res.Value.Str())
	if err != nil {
		return nil, err
	}
	m := make(map[int]Element, len(elements))
	for _, el := range elements {
		m[el.Index] = el
	}
	s.mu.Lock()
	s.elements = m
	s.mu.Unlock()
	return elements, nil
}

// element resolves an index from the element map, rescanning the page once
// when the index is unknown.
func (s *Session) element(ctx context.Context, index int) (*rod.Page, *rod.Element, Element, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, nil, Element{}, err
	}
	s.mu.Lock()
	entry, ok := s.elements[index]
	s.mu.Unlock()
	if !ok {
		if _, err := s.buildElements(page); err != nil {
			return nil, nil, Element{}, err
		}
		s.mu.Lock()
		entry, ok = s.elements[index]
		s.mu.Unlock()
		if !ok {
			return nil, nil, Element{}, fmt.Errorf("element index %d does not exist", index)
		}
	}
	el, err := page.Element(entry.Selector)
	if err != nil {
		return nil, nil, Element{}, fmt.Errorf("element %d (%s) not found: %w", index, entry.Selector, err)
	}
	return page, el, entry, nil
}

// State rebuilds the element map and returns the page snapshot.
func (s *Session) State(ctx context.Context, screenshot bool) (*PageState, error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, err
	}
	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info failed: %w", err)
	}
	elements, err := s.buildElements(page)
	if err != nil {
		return nil, err
	}
	text, err := page.Eval(`(limit) => document.body ? document.body.innerText.substring(0, limit) : ''`, DOMTextLimit)
	if err != nil {
		return nil, fmt.Errorf("read page text failed: %w", err)
	}

	st := &PageState{
		URL:           info.URL,
		Title:         info.Title,
		Tabs:          s.Tabs(),
		Elements:      elements,
		ElementsCount: len(elements),
		DOMText:       text.Value.Str(),
	}
	if screenshot {
		data, err := page.Screenshot(false, nil)
		if err != nil {
			return nil, fmt.Errorf("screenshot failed: %w", err)
		}
		st.Screenshot = base64.StdEncoding.EncodeToString(data)
	}
	return st, nil
}

// Tabs lists the open tabs in order.
func (s *Session) Tabs() []Tab {
	s.mu.Lock()
	pages := append([]*rod.Page(nil), s.tabs...)
	active := s.active
	s.mu.Unlock()

	tabs := make([]Tab, 0, len(pages))
	for i, p := range pages {
		t := Tab{ID: i, Active: i == active}
		if info, err := p.Info(); err == nil {
			t.URL, t.Title = info.URL, info.Title
		}
		tabs = append(tabs, t)
	}
	return tabs
}
