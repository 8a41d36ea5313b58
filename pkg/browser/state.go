package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/freitascorp/deskclaw/pkg/logger"
)

const stateSuffix = "_storage_state.json"

var errNoState = errors.New("no saved state")

// StorageState is what a session persists between runs: its cookies and
// the localStorage of the origins it visited.
type StorageState struct {
	Cookies []*proto.NetworkCookie `json:"cookies"`
	Origins []OriginState          `json:"origins"`
}

// OriginState is the localStorage of one origin.
type OriginState struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SavedSession describes a state file in the session directory.
type SavedSession struct {
	SessionID  string `json:"session_id"`
	File       string `json:"storage_state_file"`
	SizeBytes  int64  `json:"size_bytes"`
	ModifiedAt string `json:"modified_at"`
}

func newSessionID() string { return uuid.NewString() }

func (m *Manager) statePath(id string) string {
	return filepath.Join(m.config.SessionDir, id+stateSuffix)
}

// LoadState reads a state file. A missing file yields errNoState.
func LoadState(path string) (*StorageState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNoState
	}
	if err != nil {
		return nil, fmt.Errorf("read storage state: %w", err)
	}
	var st StorageState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse storage state %s: %w", filepath.Base(path), err)
	}
	return &st, nil
}

// SaveState writes the session's cookies and the localStorage of its open
// tabs. Origins restored earlier but not open now are kept.
func (s *Session) SaveState(ctx context.Context) (string, error) {
	cookies, err := s.context.GetCookies()
	if err != nil {
		return "", fmt.Errorf("get cookies failed: %w", err)
	}

	s.mu.Lock()
	tabs := append([]*rod.Page(nil), s.tabs...)
	merged := make(map[string]OriginState, len(s.origins))
	for _, o := range s.origins {
		merged[o.Origin] = o
	}
	s.mu.Unlock()

	for _, tab := range tabs {
		o, err := originState(tab.Context(ctx).Timeout(s.timeout))
		if err != nil || o.Origin == "" || o.Origin == "null" {
			continue
		}
		merged[o.Origin] = o
	}

	st := StorageState{Cookies: cookies, Origins: make([]OriginState, 0, len(merged))}
	for _, o := range merged {
		st.Origins = append(st.Origins, o)
	}
	sort.Slice(st.Origins, func(i, j int) bool { return st.Origins[i].Origin < st.Origins[j].Origin })

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", err
	}
	path := s.manager.statePath(s.id)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write storage state: %w", err)
	}
	logger.InfoCF("browser", "Session saved", map[string]any{
		"session": s.id,
		"cookies": len(cookies),
		"origins": len(st.Origins),
	})
	return path, nil
}

func originState(page *rod.Page) (OriginState, error) {
	res, err := page.Eval(`() => {
		const items = [];
		try {
			for (let i = 0; i < localStorage.length; i++) {
				const k = localStorage.key(i);
				items.push({name: k, value: localStorage.getItem(k)});
			}
		} catch (e) {}
		return JSON.stringify({origin: location.origin, localStorage: items});
	}`)
	if err != nil {
		return OriginState{}, err
	}
	var o OriginState
	err = json.Unmarshal([]byte(res.Value.Str()), &o)
	return o, err
}

func (s *Session) applyState(st *StorageState) error {
	if len(st.Cookies) > 0 {
		if err := s.context.SetCookies(proto.CookiesToParams(st.Cookies)); err != nil {
			return fmt.Errorf("restore cookies failed: %w", err)
		}
	}
	s.origins = st.Origins
	return nil
}

// localStorageScript seeds localStorage for the restored origins on every
// new document, without overwriting keys the page already set.
func localStorageScript(origins []OriginState) string {
	if len(origins) == 0 {
		return ""
	}
	byOrigin := make(map[string]map[string]string, len(origins))
	for _, o := range origins {
		items := make(map[string]string, len(o.LocalStorage))
		for _, nv := range o.LocalStorage {
			items[nv.Name] = nv.Value
		}
		byOrigin[o.Origin] = items
	}
	data, err := json.Marshal(byOrigin)
	if err != nil {
		return ""
	}
	return `(() => {
	const saved = ` + string(data) + `;
	const items = saved[location.origin];
	if (!items) return;
	try {
		for (const [k, v] of Object.entries(items)) {
			if (localStorage.getItem(k) === null) localStorage.setItem(k, v);
		}
	} catch (e) {}
})();`
}

// SavedSessions lists the state files in the session directory.
func (m *Manager) SavedSessions() ([]SavedSession, error) {
	des, err := os.ReadDir(m.config.SessionDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}
	var out []SavedSession
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, stateSuffix) {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, SavedSession{
			SessionID:  strings.TrimSuffix(name, stateSuffix),
			File:       filepath.Join(m.config.SessionDir, name),
			SizeBytes:  fi.Size(),
			ModifiedAt: fi.ModTime().Format(time.RFC3339),
		})
	}
	return out, nil
}

// DeleteSession removes a session's saved state and closes it if active.
// It fails when there was neither a state file nor an active session.
func (m *Manager) DeleteSession(id string) ([]string, error) {
	if !sessionIDPattern.MatchString(id) {
		return nil, fmt.Errorf("invalid session id %q", id)
	}
	var deleted []string
	path := m.statePath(id)
	switch err := os.Remove(path); {
	case err == nil:
		deleted = append(deleted, path)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("delete storage state: %w", err)
	}
	if _, ok := m.GetSession(id); ok {
		if err := m.CloseSession(id); err == nil {
			deleted = append(deleted, "active session "+id)
		}
	}
	if len(deleted) == 0 {
		return nil, fmt.Errorf("session %q does not exist", id)
	}
	return deleted, nil
}
