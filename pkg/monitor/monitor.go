// Package monitor moves windows between displays.
package monitor

import (
	"context"
	"fmt"

	"github.com/freitascorp/deskclaw/pkg/logger"
	"github.com/freitascorp/deskclaw/pkg/platform"
	"github.com/freitascorp/deskclaw/pkg/screen"
	"github.com/freitascorp/deskclaw/pkg/window"
)

// ServerName is the MCP server identity for the monitor adapter.
const ServerName = "move-to-monitor"

// WindowFraction is how much of the target monitor a moved window covers.
const WindowFraction = 0.8

// Mover combines monitor enumeration with window placement.
type Mover struct {
	env     platform.Env
	runner  platform.Runner
	windows *window.Manager
}

func NewMover(env platform.Env, runner platform.Runner) *Mover {
	return &Mover{env: env, runner: runner, windows: window.NewManager(env, runner)}
}

// Monitors lists the connected displays.
func (m *Mover) Monitors(ctx context.Context) ([]screen.Monitor, error) {
	return screen.ListMonitors(ctx, m.env, m.runner)
}

// Find returns windows whose title contains pattern, ignoring case.
func (m *Mover) Find(ctx context.Context, pattern string) ([]window.Window, error) {
	return m.windows.Find(ctx, pattern)
}

// Result describes a completed move.
type Result struct {
	Window    window.Window    `json:"window"`
	Monitor   screen.Monitor   `json:"monitor"`
	Placement window.Placement `json:"placement"`
	Maximized bool             `json:"maximized"`
}

// Place computes the centred rectangle a window gets on mon.
func Place(id string, mon screen.Monitor) window.Placement {
	x, y, w, h := window.Centered(mon.Left, mon.Top, mon.Width, mon.Height, WindowFraction)
	return window.Placement{ID: id, X: x, Y: y, Width: w, Height: h}
}

// MoveToMonitor moves the first window matching pattern onto monitor n.
func (m *Mover) MoveToMonitor(ctx context.Context, pattern string, n int, maximize bool) (Result, error) {
	mons, err := m.Monitors(ctx)
	if err != nil {
		return Result{}, err
	}
	mon, err := screen.ByNumber(mons, n)
	if err != nil {
		return Result{}, err
	}
	wins, err := m.Find(ctx, pattern)
	if err != nil {
		return Result{}, err
	}
	if len(wins) == 0 {
		return Result{}, fmt.Errorf("no window title contains %q", pattern)
	}
	target := wins[0]

	p := Place(target.ID, mon)
	if err := m.windows.Move(ctx, p.ID, p.X, p.Y, p.Width, p.Height); err != nil {
		return Result{}, err
	}
	if maximize {
		if err := m.windows.Maximize(ctx, target.ID); err != nil {
			return Result{}, err
		}
	}
	logger.InfoCF("monitor", "Moved window", map[string]any{
		"title":   target.Title,
		"monitor": n,
		"x":       p.X,
		"y":       p.Y,
	})
	return Result{Window: target, Monitor: mon, Placement: p, Maximized: maximize}, nil
}
