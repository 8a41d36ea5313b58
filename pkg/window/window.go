// Package window lists, moves and tiles top-level desktop windows.
package window

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/freitascorp/deskclaw/pkg/logger"
	"github.com/freitascorp/deskclaw/pkg/platform"
	"github.com/freitascorp/deskclaw/pkg/resilience"
)

// Window is a top-level window. ID is a hex handle ("0x03c00003" on X11,
// the HWND on Windows).
type Window struct {
	ID      string `json:"id"`
	Desktop int    `json:"desktop"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Host    string `json:"host,omitempty"`
	Title   string `json:"title"`
}

// Size is a screen size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ErrUnsupported is returned on hosts without a window backend.
var ErrUnsupported = errors.New("window management is not supported on this platform")

// psWinAPI declares the user32 calls used by the PowerShell backend.
const psWinAPI = `Add-Type @"
using System;
using System.Text;
using System.Runtime.InteropServices;
public class DeskWin {
  public delegate bool EnumProc(IntPtr h, IntPtr l);
  [DllImport("user32.dll")] public static extern bool EnumWindows(EnumProc cb, IntPtr l);
  [DllImport("user32.dll")] public static extern bool IsWindowVisible(IntPtr h);
  [DllImport("user32.dll", CharSet = CharSet.Unicode)] public static extern int GetWindowText(IntPtr h, StringBuilder s, int n);
  [DllImport("user32.dll")] public static extern bool GetWindowRect(IntPtr h, out RECT r);
  [DllImport("user32.dll")] public static extern IntPtr GetForegroundWindow();
  [DllImport("user32.dll")] public static extern bool MoveWindow(IntPtr h, int x, int y, int w, int hh, bool repaint);
  [DllImport("user32.dll")] public static extern bool ShowWindow(IntPtr h, int cmd);
  public struct RECT { public int Left; public int Top; public int Right; public int Bottom; }
}
"@
`

const psListWindows = psWinAPI + `$list = New-Object System.Collections.ArrayList
[void][DeskWin]::EnumWindows({ param($h, $l)
  if ([DeskWin]::IsWindowVisible($h)) {
    $sb = New-Object System.Text.StringBuilder 512
    [void][DeskWin]::GetWindowText($h, $sb, 512)
    $t = $sb.ToString()
    if ($t) {
      $r = New-Object DeskWin+RECT
      [void][DeskWin]::GetWindowRect($h, [ref]$r)
      [void]$list.Add([PSCustomObject]@{ Handle = $h.ToInt64(); Title = $t; Left = $r.Left; Top = $r.Top; Width = $r.Right - $r.Left; Height = $r.Bottom - $r.Top })
    }
  }
  $true
}, [IntPtr]::Zero)
ConvertTo-Json -InputObject @($list) -Compress`

const psActiveWindow = psWinAPI + `$h = [DeskWin]::GetForegroundWindow()
$sb = New-Object System.Text.StringBuilder 512
[void][DeskWin]::GetWindowText($h, $sb, 512)
[PSCustomObject]@{ Handle = $h.ToInt64(); Title = $sb.ToString() } | ConvertTo-Json -Compress`

const psScreenSize = `Add-Type -AssemblyName System.Windows.Forms; ` +
	`$b = [System.Windows.Forms.Screen]::PrimaryScreen.Bounds; Write-Output "$($b.Width),$($b.Height)"`

type psWindow struct {
	Handle int64
	Title  string
	Left   int
	Top    int
	Width  int
	Height int
}

func (w psWindow) window() Window {
	return Window{ID: FormatID(w.Handle), X: w.Left, Y: w.Top, Width: w.Width, Height: w.Height, Title: w.Title}
}

// Manager talks to wmctrl/xdotool on Linux and user32 via PowerShell on
// Windows and WSL.
type Manager struct {
	env    platform.Env
	runner platform.Runner
	input  *resilience.Bulkhead
}

func NewManager(env platform.Env, runner platform.Runner) *Manager {
	return &Manager{env: env, runner: runner, input: resilience.NewBulkhead("window-input", 1)}
}

func (m *Manager) Env() platform.Env { return m.env }

func (m *Manager) supported() error {
	if m.env.IsMac() {
		return ErrUnsupported
	}
	return nil
}

// List returns the visible top-level windows.
func (m *Manager) List(ctx context.Context) ([]Window, error) {
	if err := m.supported(); err != nil {
		return nil, err
	}
	if m.env.UsesPowerShell() {
		var raw []psWindow
		if err := platform.PowerShellJSON(ctx, m.runner, m.env, psListWindows, &raw); err != nil {
			return nil, platform.WithHints(fmt.Errorf("list windows: %w", err))
		}
		out := make([]Window, 0, len(raw))
		for _, w := range raw {
			out = append(out, w.window())
		}
		return out, nil
	}
	out, err := platform.Run(ctx, m.runner, "wmctrl", "-lG")
	if err != nil {
		return nil, platform.WithHints(fmt.Errorf("list windows: %w", err))
	}
	return ParseWmctrl(out.Stdout), nil
}

// Find returns the windows whose title contains pattern, ignoring case.
func (m *Manager) Find(ctx context.Context, pattern string) ([]Window, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	return FilterByTitle(all, pattern), nil
}

// ScreenSize returns the primary screen size.
func (m *Manager) ScreenSize(ctx context.Context) (Size, error) {
	if err := m.supported(); err != nil {
		return Size{}, err
	}
	if m.env.UsesPowerShell() {
		out, err := platform.PowerShell(ctx, m.runner, m.env, psScreenSize)
		if err != nil {
			return Size{}, platform.WithHints(fmt.Errorf("screen size: %w", err))
		}
		w, h, ok := strings.Cut(strings.TrimSpace(out), ",")
		width, errW := strconv.Atoi(strings.TrimSpace(w))
		height, errH := strconv.Atoi(strings.TrimSpace(h))
		if !ok || errW != nil || errH != nil {
			return Size{}, fmt.Errorf("unexpected screen size output: %q", out)
		}
		return Size{Width: width, Height: height}, nil
	}
	out, err := platform.Run(ctx, m.runner, "xdpyinfo")
	if err != nil {
		return Size{}, platform.WithHints(fmt.Errorf("screen size: %w", err))
	}
	return ParseXdpyinfo(out.Stdout)
}

// Active returns the focused window's id and title.
func (m *Manager) Active(ctx context.Context) (Window, error) {
	if err := m.supported(); err != nil {
		return Window{}, err
	}
	if m.env.UsesPowerShell() {
		var raw psWindow
		if err := platform.PowerShellJSON(ctx, m.runner, m.env, psActiveWindow, &raw); err != nil {
			return Window{}, platform.WithHints(fmt.Errorf("active window: %w", err))
		}
		return raw.window(), nil
	}
	out, err := platform.Run(ctx, m.runner, "xdotool", "getactivewindow")
	if err != nil {
		return Window{}, platform.WithHints(fmt.Errorf("active window: %w", err))
	}
	id, err := strconv.ParseInt(strings.TrimSpace(out.Stdout), 10, 64)
	if err != nil {
		return Window{}, fmt.Errorf("unexpected xdotool output: %q", strings.TrimSpace(out.Stdout))
	}
	name, err := platform.Run(ctx, m.runner, "xdotool", "getwindowname", strconv.FormatInt(id, 10))
	if err != nil {
		return Window{}, platform.WithHints(fmt.Errorf("window name: %w", err))
	}
	return Window{ID: FormatID(id), Title: strings.TrimSpace(name.Stdout)}, nil
}

// Move places window id at (x, y) with the given size, restoring it first
// when maximized.
func (m *Manager) Move(ctx context.Context, id string, x, y, width, height int) error {
	if err := m.supported(); err != nil {
		return err
	}
	handle, err := ParseID(id)
	if err != nil {
		return err
	}
	return m.input.Execute(ctx, func() error {
		if m.env.UsesPowerShell() {
			script := psWinAPI + fmt.Sprintf("$h = [IntPtr]%d\n[void][DeskWin]::ShowWindow($h, 9)\n"+
				"if (-not [DeskWin]::MoveWindow($h, %d, %d, %d, %d, $true)) { throw 'MoveWindow failed' }",
				handle, x, y, width, height)
			if _, err := platform.PowerShell(ctx, m.runner, m.env, script); err != nil {
				return platform.WithHints(fmt.Errorf("move window %s: %w", id, err))
			}
			return nil
		}
		hex := FormatID(handle)
		if _, err := platform.Run(ctx, m.runner, "wmctrl", "-i", "-r", hex, "-b", "remove,maximized_vert,maximized_horz"); err != nil {
			logger.DebugCF("window", "Unmaximize failed", map[string]any{"id": hex, "error": err.Error()})
		}
		geom := fmt.Sprintf("0,%d,%d,%d,%d", x, y, width, height)
		if _, err := platform.Run(ctx, m.runner, "wmctrl", "-i", "-r", hex, "-e", geom); err != nil {
			return platform.WithHints(fmt.Errorf("move window %s: %w", id, err))
		}
		return nil
	})
}

// Maximize maximizes window id.
func (m *Manager) Maximize(ctx context.Context, id string) error {
	if err := m.supported(); err != nil {
		return err
	}
	handle, err := ParseID(id)
	if err != nil {
		return err
	}
	return m.input.Execute(ctx, func() error {
		if m.env.UsesPowerShell() {
			script := psWinAPI + fmt.Sprintf("[void][DeskWin]::ShowWindow([IntPtr]%d, 3)", handle)
			if _, err := platform.PowerShell(ctx, m.runner, m.env, script); err != nil {
				return platform.WithHints(fmt.Errorf("maximize window %s: %w", id, err))
			}
			return nil
		}
		if _, err := platform.Run(ctx, m.runner, "wmctrl", "-i", "-r", FormatID(handle), "-b", "add,maximized_vert,maximized_horz"); err != nil {
			return platform.WithHints(fmt.Errorf("maximize window %s: %w", id, err))
		}
		return nil
	})
}

// Apply moves every window to its placement, stopping at the first failure.
func (m *Manager) Apply(ctx context.Context, ps []Placement) error {
	for _, p := range ps {
		if err := m.Move(ctx, p.ID, p.X, p.Y, p.Width, p.Height); err != nil {
			return err
		}
	}
	return nil
}

// FormatID renders a handle as 0x%08x.
func FormatID(handle int64) string {
	return fmt.Sprintf("0x%08x", handle)
}

// ParseID accepts hex ("0x03c00003") or decimal handles.
func ParseID(id string) (int64, error) {
	s := strings.TrimSpace(id)
	var (
		n   int64
		err error
	)
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		n, err = strconv.ParseInt(s[2:], 16, 64)
	} else {
		n, err = strconv.ParseInt(s, 10, 64)
	}
	if err != nil || s == "" {
		return 0, fmt.Errorf("invalid window id %q", id)
	}
	return n, nil
}

// 0x03c00003  0 0    27   1920 1053 myhost Terminal - bash
var wmctrlLine = regexp.MustCompile(`^(0x[0-9a-fA-F]+)\s+(-?\d+)\s+(-?\d+)\s+(-?\d+)\s+(\d+)\s+(\d+)\s+(\S+)\s?(.*)$`)

// ParseWmctrl parses `wmctrl -lG`. Titles keep their inner spaces.
func ParseWmctrl(out string) []Window {
	var wins []Window
	for _, line := range strings.Split(out, "\n") {
		m := wmctrlLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		w := Window{ID: m[1], Host: m[7], Title: m[8]}
		w.Desktop, _ = strconv.Atoi(m[2])
		w.X, _ = strconv.Atoi(m[3])
		w.Y, _ = strconv.Atoi(m[4])
		w.Width, _ = strconv.Atoi(m[5])
		w.Height, _ = strconv.Atoi(m[6])
		wins = append(wins, w)
	}
	return wins
}

var xdpyDimensions = regexp.MustCompile(`dimensions:\s+(\d+)x(\d+)\s+pixels`)

// ParseXdpyinfo reads the "dimensions:" line of xdpyinfo.
func ParseXdpyinfo(out string) (Size, error) {
	m := xdpyDimensions.FindStringSubmatch(out)
	if m == nil {
		return Size{}, errors.New("no dimensions line in xdpyinfo output")
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	return Size{Width: w, Height: h}, nil
}

// FilterByTitle keeps windows whose title contains pattern, ignoring case.
func FilterByTitle(wins []Window, pattern string) []Window {
	needle := strings.ToLower(pattern)
	var out []Window
	for _, w := range wins {
		if strings.Contains(strings.ToLower(w.Title), needle) {
			out = append(out, w)
		}
	}
	return out
}
