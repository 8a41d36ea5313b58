// Package humanop simulates a person operating a desktop. Nothing touches
// the real machine: every action only updates an in-memory state.
package humanop

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// HistoryLimit caps the action history.
const HistoryLimit = 100

var validButtons = []string{"left", "right", "middle"}

// Point is a screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Action is one entry of the history.
type Action struct {
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is a snapshot of the simulated desktop.
type State struct {
	MousePosition Point             `json:"mouse_position"`
	ActiveWindow  string            `json:"active_window"`
	KeyboardState map[string]string `json:"keyboard_state"`
	Clipboard     string            `json:"clipboard"`
	ActionHistory []Action          `json:"action_history"`
}

// Simulator holds the simulated desktop state.
type Simulator struct {
	mu    sync.Mutex
	state State
	now   func() time.Time
}

func NewSimulator() *Simulator {
	return &Simulator{
		state: State{ActiveWindow: "desktop", KeyboardState: map[string]string{}},
		now:   time.Now,
	}
}

// State returns a copy of the current state.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Simulator) snapshot() State {
	st := s.state
	st.KeyboardState = maps.Clone(s.state.KeyboardState)
	st.ActionHistory = slices.Clone(s.state.ActionHistory)
	return st
}

func (s *Simulator) record(action, detail string) {
	s.state.ActionHistory = append(s.state.ActionHistory, Action{Action: action, Detail: detail, Timestamp: s.now()})
	if n := len(s.state.ActionHistory); n > HistoryLimit {
		s.state.ActionHistory = slices.Clone(s.state.ActionHistory[n-HistoryLimit:])
	}
}

func checkPoint(x, y int) error {
	if x < 0 || y < 0 {
		return fmt.Errorf("coordinates must be non-negative, got (%d, %d)", x, y)
	}
	return nil
}

// Click moves the pointer to (x, y) and clicks.
func (s *Simulator) Click(x, y int, button string, double bool) (string, State, error) {
	if err := checkPoint(x, y); err != nil {
		return "", State{}, err
	}
	if !slices.Contains(validButtons, button) {
		return "", State{}, fmt.Errorf("unsupported mouse button %q, use left, right or middle", button)
	}
	kind := "click"
	if double {
		kind = "double-click"
	}
	action := fmt.Sprintf("%s mouse %s", button, kind)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.MousePosition = Point{x, y}
	s.record(action, fmt.Sprintf("(%d, %d)", x, y))
	return action, s.snapshot(), nil
}

// Move moves the pointer and returns where it started.
func (s *Simulator) Move(x, y int, duration float64) (Point, State, error) {
	if err := checkPoint(x, y); err != nil {
		return Point{}, State{}, err
	}
	if duration < 0 {
		return Point{}, State{}, errors.New("duration must be non-negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.state.MousePosition
	s.state.MousePosition = Point{x, y}
	s.record("mouse move", fmt.Sprintf("(%d, %d) -> (%d, %d)", from.X, from.Y, x, y))
	return from, s.snapshot(), nil
}

// Type simulates typing text at speed seconds per key. It does not sleep;
// the returned duration is what typing would have taken.
func (s *Simulator) Type(text string, speed float64) (float64, State, error) {
	if text == "" {
		return 0, State{}, errors.New("text is required")
	}
	if speed < 0 {
		return 0, State{}, errors.New("speed must be non-negative")
	}
	took := float64(len([]rune(text))) * speed

	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("keyboard type", text)
	return took, s.snapshot(), nil
}

// Press simulates a key press with an optional modifier.
func (s *Simulator) Press(key, modifier string) (string, State, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", State{}, errors.New("key is required")
	}
	action := "keyboard press " + key
	if modifier != "" {
		action = fmt.Sprintf("keyboard press %s + %s", modifier, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.KeyboardState["last_key"] = key
	if modifier != "" {
		s.state.KeyboardState["last_modifier"] = modifier
	} else {
		delete(s.state.KeyboardState, "last_modifier")
	}
	s.record(action, "")
	return action, s.snapshot(), nil
}

// Copy puts content on the simulated clipboard.
func (s *Simulator) Copy(content string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Clipboard = content
	s.record("clipboard copy", content)
	return s.snapshot()
}

// Paste returns the simulated clipboard content.
func (s *Simulator) Paste() (string, State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("clipboard paste", "")
	return s.state.Clipboard, s.snapshot()
}

// SwitchWindow makes title the active window.
func (s *Simulator) SwitchWindow(title string) (State, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return State{}, errors.New("window_title is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ActiveWindow = title
	s.record("window switch", title)
	return s.snapshot(), nil
}

// Screenshot records a simulated global capture and returns its time.
func (s *Simulator) Screenshot() (time.Time, State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now()
	s.record("global screenshot", "")
	return at, s.snapshot()
}
