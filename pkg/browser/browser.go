// Package browser drives a Chromium instance over the DevTools protocol for
// the browser-use MCP server.
//
// It wraps go-rod/rod to provide:
//   - Named sessions, each an incognito context with its own cookies and storage
//   - Storage state saved to and restored from the session directory
//   - An indexed map of the interactive elements on the active tab
//   - Tabs, navigation, input, extraction and screenshots
//
// Usage:
//
//	mgr := browser.NewManager(browser.ConfigFrom(cfg.Browser))
//	defer mgr.Close()
//
//	sess, _, _ := mgr.Open("work", true)
//	state, _ := sess.State(ctx, false)
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/freitascorp/deskclaw/pkg/config"
	"github.com/freitascorp/deskclaw/pkg/logger"
)

// DefaultSession is used when a tool runs before any session was created.
const DefaultSession = "default"

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ManagerConfig configures the browser manager.
type ManagerConfig struct {
	// Headless runs the browser without a visible window.
	Headless bool

	// DefaultTimeout bounds each page operation. Default: 30s.
	DefaultTimeout time.Duration

	// ViewportWidth and ViewportHeight set the page size. Default: 1280x720.
	ViewportWidth  int
	ViewportHeight int

	// UserAgent overrides the browser's user agent string.
	UserAgent string

	// BrowserBin is the path to a Chrome/Chromium binary.
	// If empty, Rod looks one up or downloads it.
	BrowserBin string

	// AllowedDomains restricts navigation to these domains and their
	// subdomains. If empty, all domains are allowed.
	AllowedDomains []string

	// SessionDir holds the {id}_storage_state.json files.
	SessionDir string

	// EnvFile is the KEY=VALUE file credentials are read from.
	EnvFile string
}

func (c *ManagerConfig) defaults() {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 720
	}
	if c.UserAgent == "" {
		c.UserAgent = config.DefaultBrowserUserAgent
	}
	if c.SessionDir == "" {
		c.SessionDir = config.DefaultConfig().Browser.SessionDir
	}
	c.SessionDir = config.ExpandPath(c.SessionDir)
	c.EnvFile = config.ExpandPath(c.EnvFile)
}

// ConfigFrom maps the browser section of the configuration file.
func ConfigFrom(c config.BrowserConfig) ManagerConfig {
	return ManagerConfig{
		Headless:       c.Headless,
		ViewportWidth:  c.ViewportWidth,
		ViewportHeight: c.ViewportHeight,
		UserAgent:      c.UserAgent,
		BrowserBin:     c.BrowserBin,
		AllowedDomains: c.AllowedDomains,
		SessionDir:     c.SessionDir,
		EnvFile:        c.EnvFile,
	}
}

// Manager owns the browser process and its sessions.
type Manager struct {
	config   ManagerConfig
	browser  *rod.Browser
	sessions map[string]*Session
	current  string
	mu       sync.Mutex
	closed   bool
}

// NewManager creates a manager. The browser is launched on the first
// session so that listing tools never starts Chromium.
func NewManager(config ManagerConfig) *Manager {
	config.defaults()
	return &Manager{
		config:   config,
		sessions: make(map[string]*Session),
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() ManagerConfig { return m.config }

func (m *Manager) ensureBrowser() error {
	if m.browser != nil {
		return nil
	}

	l := launcher.New().Headless(m.config.Headless)
	if m.config.BrowserBin != "" {
		l = l.Bin(config.ExpandPath(m.config.BrowserBin))
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("browser launch failed: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("browser connect failed: %w", err)
	}

	logger.InfoCF("browser", "Browser started", map[string]any{"headless": m.config.Headless})
	m.browser = browser
	return nil
}

// NewSession returns the named session, creating it without restoring
// saved state when it does not exist yet.
func (m *Manager) NewSession(name string) (*Session, error) {
	sess, _, err := m.Open(name, false)
	return sess, err
}

// Open returns the named session and makes it current. A new session gets
// a generated id when id is empty, and restores its saved storage state when
// restore is set and a state file exists. The boolean reports whether state
// was restored.
func (m *Manager) Open(id string, restore bool) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, errors.New("manager is closed")
	}
	if id == "" {
		id = newSessionID()
	}
	if !sessionIDPattern.MatchString(id) {
		return nil, false, fmt.Errorf("invalid session id %q", id)
	}

	if sess, ok := m.sessions[id]; ok {
		m.current = id
		return sess, false, nil
	}

	if err := m.ensureBrowser(); err != nil {
		return nil, false, err
	}

	incognito, err := m.browser.Incognito()
	if err != nil {
		return nil, false, fmt.Errorf("incognito context failed: %w", err)
	}

	sess := &Session{
		id:        id,
		context:   incognito,
		manager:   m,
		timeout:   m.config.DefaultTimeout,
		vpWidth:   m.config.ViewportWidth,
		vpHeight:  m.config.ViewportHeight,
		userAgent: m.config.UserAgent,
		elements:  make(map[int]Element),
		createdAt: time.Now(),
	}

	restored := false
	if restore {
		state, err := LoadState(m.statePath(id))
		switch {
		case err == nil:
			if err := sess.applyState(state); err != nil {
				_ = incognito.Close()
				return nil, false, err
			}
			restored = true
		case !errors.Is(err, errNoState):
			logger.WarnCF("browser", "Saved state ignored", map[string]any{"session": id, "error": err.Error()})
		}
	}

	m.sessions[id] = sess
	m.current = id
	logger.InfoCF("browser", "Session opened", map[string]any{"session": id, "restored": restored})
	return sess, restored, nil
}

// Current returns the current session, opening DefaultSession with its
// saved state when none is active.
func (m *Manager) Current() (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[m.current]
	m.mu.Unlock()
	if ok {
		return sess, nil
	}
	sess, _, err := m.Open(DefaultSession, true)
	return sess, err
}

// CurrentID is the id of the current session, or "" when none is open.
func (m *Manager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[m.current]; !ok {
		return ""
	}
	return m.current
}

// GetSession returns an existing session by name.
func (m *Manager) GetSession(name string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[name]
	return sess, ok
}

// CloseSession closes and removes a named session.
func (m *Manager) CloseSession(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[name]
	if !ok {
		return fmt.Errorf("session %q not found", name)
	}

	sess.close()
	delete(m.sessions, name)
	if m.current == name {
		m.current = ""
	}
	return nil
}

// ListSessions returns the ids of all active sessions in sorted order.
func (m *Manager) ListSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status summarizes the manager for browser_get_status.
func (m *Manager) Status() map[string]any {
	creds, _ := LoadCredentials(m.config.EnvFile)
	m.mu.Lock()
	defer m.mu.Unlock()

	pageActive := false
	if sess, ok := m.sessions[m.current]; ok {
		pageActive = sess.TabCount() > 0
	}
	active := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		active = append(active, name)
	}
	sort.Strings(active)
	return map[string]any{
		"browser_active":      m.browser != nil,
		"page_active":         pageActive,
		"current_session":     m.current,
		"active_sessions":     active,
		"session_dir":         m.config.SessionDir,
		"sensitive_data_keys": CredentialKeys(creds),
	}
}

// Close shuts down all sessions and the browser.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for _, sess := range m.sessions {
		sess.close()
	}
	m.sessions = make(map[string]*Session)
	m.current = ""

	if m.browser != nil {
		return m.browser.Close()
	}
	return nil
}

// isDomainAllowed matches the URL's host against the allowed list. A
// domain also admits its subdomains.
func (m *Manager) isDomainAllowed(raw string) bool {
	if len(m.config.AllowedDomains) == 0 {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, domain := range m.config.AllowedDomains {
		domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func (m *Manager) screenshotDir() string {
	return filepath.Join(filepath.Dir(m.config.SessionDir), "screenshots")
}

// Session is an isolated browser context with an ordered list of tabs.
type Session struct {
	id        string
	context   *rod.Browser // incognito browser context
	manager   *Manager
	tabs      []*rod.Page
	active    int
	elements  map[int]Element
	origins   []OriginState // localStorage restored into new tabs
	mu        sync.Mutex
	timeout   time.Duration
	vpWidth   int
	vpHeight  int
	userAgent string
	createdAt time.Time
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// TabCount returns the number of open tabs.
func (s *Session) TabCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tabs)
}

// page returns the active tab bound to ctx and the session timeout,
// opening a blank tab when the session has none.
func (s *Session) page(ctx context.Context) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tabs) == 0 {
		if _, err := s.newTabLocked(); err != nil {
			return nil, err
		}
	}
	return s.tabs[s.active].Context(ctx).Timeout(s.timeout), nil
}

// newTabLocked opens a blank tab and makes it active. Callers hold s.mu.
func (s *Session) newTabLocked() (*rod.Page, error) {
	page, err := s.context.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page failed: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  s.vpWidth,
		Height: s.vpHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("set viewport failed: %w", err)
	}

	if s.userAgent != "" {
		err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: s.userAgent,
		})
		if err != nil {
			return nil, fmt.Errorf("set user agent failed: %w", err)
		}
	}

	if script := localStorageScript(s.origins); script != "" {
		if _, err := page.EvalOnNewDocument(script); err != nil {
			return nil, fmt.Errorf("restore local storage failed: %w", err)
		}
	}

	s.tabs = append(s.tabs, page)
	s.active = len(s.tabs) - 1
	s.elements = make(map[int]Element)
	return page, nil
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, page := range s.tabs {
		_ = page.Close()
	}
	s.tabs = nil
	s.active = 0
	s.elements = make(map[int]Element)
	_ = s.context.Close()
}

// ActionResult is the result of a browser action.
type ActionResult struct {
	Action  string         `json:"action"`
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
}
