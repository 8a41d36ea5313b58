// Package mouse reads and moves the desktop pointer.
package mouse

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/freitascorp/deskclaw/pkg/platform"
	"github.com/freitascorp/deskclaw/pkg/resilience"
)

// Position is a pointer location in virtual-screen pixels.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

const (
	MethodPowerShell = "powershell"
	MethodXdotool    = "xdotool"
	MethodOsascript  = "osascript"
)

const psGetPosition = `Add-Type -AssemblyName System.Windows.Forms; ` +
	`$p = [System.Windows.Forms.Cursor]::Position; Write-Output "$($p.X),$($p.Y)"`

const jxaGetPosition = `ObjC.import('AppKit'); ` +
	`var p = $.NSEvent.mouseLocation; var h = $.NSScreen.mainScreen.frame.size.height; ` +
	`Math.round(p.x) + ',' + Math.round(h - p.y)`

// Controller drives the pointer through whichever backend the host supports.
// Moves are serialized: two tools fighting over the cursor is never useful.
type Controller struct {
	env    platform.Env
	runner platform.Runner
	input  *resilience.Bulkhead
}

func NewController(env platform.Env, runner platform.Runner) *Controller {
	return &Controller{
		env:    env,
		runner: runner,
		input:  resilience.NewBulkhead("desktop-input", 1),
	}
}

// Env returns the detected host.
func (c *Controller) Env() platform.Env { return c.env }

// Method names the backend used on this host.
func (c *Controller) Method() string {
	switch {
	case c.env.UsesPowerShell():
		return MethodPowerShell
	case c.env.IsMac():
		return MethodOsascript
	default:
		return MethodXdotool
	}
}

// Position returns the current pointer location.
func (c *Controller) Position(ctx context.Context) (Position, error) {
	switch c.Method() {
	case MethodPowerShell:
		out, err := platform.PowerShell(ctx, c.runner, c.env, psGetPosition)
		if err != nil {
			return Position{}, platform.WithHints(err)
		}
		return ParseCommaPair(out)
	case MethodOsascript:
		out, err := platform.Run(ctx, c.runner, "osascript", "-l", "JavaScript", "-e", jxaGetPosition)
		if err != nil {
			return Position{}, platform.WithHints(err)
		}
		return ParseCommaPair(out.Stdout)
	default:
		out, err := platform.Run(ctx, c.runner, "xdotool", "getmouselocation", "--shell")
		if err != nil {
			return Position{}, platform.WithHints(err)
		}
		return ParseXdotoolShell(out.Stdout)
	}
}

// Move warps the pointer to (x, y).
func (c *Controller) Move(ctx context.Context, x, y int) error {
	return c.input.Execute(ctx, func() error {
		var err error
		switch c.Method() {
		case MethodPowerShell:
			script := fmt.Sprintf(`Add-Type -AssemblyName System.Windows.Forms; Add-Type -AssemblyName System.Drawing; `+
				`[System.Windows.Forms.Cursor]::Position = New-Object System.Drawing.Point(%d, %d)`, x, y)
			_, err = platform.PowerShell(ctx, c.runner, c.env, script)
		case MethodOsascript:
			script := fmt.Sprintf(`ObjC.import('CoreGraphics'); $.CGWarpMouseCursorPosition({x: %d, y: %d}); 'ok'`, x, y)
			_, err = platform.Run(ctx, c.runner, "osascript", "-l", "JavaScript", "-e", script)
		default:
			_, err = platform.Run(ctx, c.runner, "xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y))
		}
		if err != nil {
			return platform.WithHints(fmt.Errorf("move mouse: %w", err))
		}
		return nil
	})
}

// Verification is the outcome of MoveVerified.
type Verification struct {
	Arrived         bool     `json:"arrived"`
	Moved           bool     `json:"moved"`
	Start           Position `json:"start_position"`
	Target          Position `json:"target"`
	Current         Position `json:"current_position"`
	StartDistance   float64  `json:"start_distance"`
	CurrentDistance float64  `json:"current_distance"`
	Tolerance       float64  `json:"tolerance"`
}

// MoveVerified moves the pointer to target unless it is already within
// tolerance pixels, then reads the position back to check it landed.
func (c *Controller) MoveVerified(ctx context.Context, target Position, tolerance float64) (*Verification, error) {
	start, err := c.Position(ctx)
	if err != nil {
		return nil, err
	}
	v := &Verification{
		Start:         start,
		Target:        target,
		Current:       start,
		StartDistance: Round2(Distance(start, target)),
		Tolerance:     tolerance,
	}
	v.CurrentDistance = v.StartDistance
	if v.StartDistance <= tolerance {
		v.Arrived = true
		return v, nil
	}

	if err := c.Move(ctx, target.X, target.Y); err != nil {
		return nil, err
	}
	v.Moved = true
	now, err := c.Position(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify position: %w", err)
	}
	v.Current = now
	v.CurrentDistance = Round2(Distance(now, target))
	v.Arrived = v.CurrentDistance <= tolerance
	return v, nil
}

// ParseXdotoolShell reads the X= and Y= lines of `xdotool getmouselocation --shell`.
func ParseXdotoolShell(out string) (Position, error) {
	var pos Position
	var gotX, gotY bool
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			continue
		}
		switch key {
		case "X":
			pos.X, gotX = n, true
		case "Y":
			pos.Y, gotY = n, true
		}
	}
	if !gotX || !gotY {
		return Position{}, fmt.Errorf("unexpected xdotool output: %q", strings.TrimSpace(out))
	}
	return pos, nil
}

// ParseCommaPair reads "X,Y".
func ParseCommaPair(out string) (Position, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(out), ",")
	if !ok {
		return Position{}, fmt.Errorf("unexpected position output: %q", strings.TrimSpace(out))
	}
	x, errX := strconv.Atoi(strings.TrimSpace(xs))
	y, errY := strconv.Atoi(strings.TrimSpace(ys))
	if errX != nil || errY != nil {
		return Position{}, fmt.Errorf("unexpected position output: %q", strings.TrimSpace(out))
	}
	return Position{X: x, Y: y}, nil
}

// Distance is the euclidean distance between a and b.
func Distance(a, b Position) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// Round2 rounds to two decimals, the precision reported by the tools.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
