// Package smartmouse moves the pointer to targets found visually, either by
// the calling model reading a screenshot or by OCR.
package smartmouse

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/freitascorp/deskclaw/pkg/logger"
	"github.com/freitascorp/deskclaw/pkg/mouse"
	"github.com/freitascorp/deskclaw/pkg/platform"
	"github.com/freitascorp/deskclaw/pkg/screen"
)

// SettleDelay is how long the pointer is given to land before it is read back.
const SettleDelay = 100 * time.Millisecond

const psDPI = `Add-Type -AssemblyName System.Drawing; ` +
	`$g = [System.Drawing.Graphics]::FromHwnd([IntPtr]::Zero); Write-Output $g.DpiX; $g.Dispose()`

// Targeter bundles pointer control, screen capture and OCR.
type Targeter struct {
	env     platform.Env
	runner  platform.Runner
	pointer *mouse.Controller
	capture *screen.Capturer
	sleep   func(context.Context, time.Duration) error
}

func NewTargeter(env platform.Env, runner platform.Runner, capture *screen.Capturer) *Targeter {
	return &Targeter{
		env:     env,
		runner:  runner,
		pointer: mouse.NewController(env, runner),
		capture: capture,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DPIScale returns the display scale factor (dpi/96), or 1.0 when unknown.
func (t *Targeter) DPIScale(ctx context.Context) float64 {
	switch {
	case t.env.UsesPowerShell():
		out, err := platform.PowerShell(ctx, t.runner, t.env, psDPI)
		if err != nil {
			logger.DebugCF("smartmouse", "DPI query failed", map[string]any{"error": err.Error()})
			return 1.0
		}
		return scaleFromDPI(strings.TrimSpace(out))
	case t.env.IsLinux():
		out, err := platform.Run(ctx, t.runner, "xrdb", "-query")
		if err != nil {
			return 1.0
		}
		return ParseXrdbScale(out.Stdout)
	default:
		return 1.0
	}
}

var xftDPI = regexp.MustCompile(`(?m)^Xft\.dpi:\s*([0-9.]+)`)

// ParseXrdbScale reads Xft.dpi from `xrdb -query`.
func ParseXrdbScale(out string) float64 {
	m := xftDPI.FindStringSubmatch(out)
	if m == nil {
		return 1.0
	}
	return scaleFromDPI(m[1])
}

func scaleFromDPI(s string) float64 {
	dpi, err := strconv.ParseFloat(s, 64)
	if err != nil || dpi <= 0 {
		return 1.0
	}
	return dpi / 96
}

// Snapshot is a screenshot prepared for visual targeting.
type Snapshot struct {
	Shot     screen.Shot
	Base64   string
	Position mouse.Position
	Scale    float64
	Monitors []screen.Monitor
}

// Origin is the virtual-screen position of the screenshot's top-left pixel.
func (s Snapshot) Origin() mouse.Position {
	return mouse.Position{X: s.Shot.OriginX, Y: s.Shot.OriginY}
}

// ToScreen converts a pixel in the screenshot to pointer coordinates.
func (s Snapshot) ToScreen(px, py float64) mouse.Position {
	scale := s.Scale
	if scale <= 0 {
		scale = 1
	}
	return mouse.Position{
		X: s.Shot.OriginX + int(px/scale+0.5),
		Y: s.Shot.OriginY + int(py/scale+0.5),
	}
}

// Snap captures the screen along with everything needed to map image
// pixels back to pointer coordinates.
func (t *Targeter) Snap(ctx context.Context) (Snapshot, error) {
	shot, err := t.capture.Take(ctx, "", "", nil)
	if err != nil {
		return Snapshot{}, err
	}
	b64, err := shot.Base64()
	if err != nil {
		return Snapshot{}, err
	}
	pos, err := t.pointer.Position(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Shot: shot, Base64: b64, Position: pos, Scale: t.DPIScale(ctx)}
	if mons, err := screen.ListMonitors(ctx, t.env, t.runner); err == nil {
		snap.Monitors = mons
	}
	return snap, nil
}

// Move is the outcome of a pointer move.
type Move struct {
	Before   mouse.Position  `json:"before"`
	After    *mouse.Position `json:"after,omitempty"`
	Target   mouse.Position  `json:"target"`
	Distance float64         `json:"distance"`
	Within   bool            `json:"within_tolerance"`
	Verified bool            `json:"verified"`
}

// MoveTo moves the pointer to target and, when verify is set, reads the
// position back after SettleDelay.
func (t *Targeter) MoveTo(ctx context.Context, target mouse.Position, tolerance int, verify bool) (Move, error) {
	before, err := t.pointer.Position(ctx)
	if err != nil {
		return Move{}, err
	}
	if err := t.pointer.Move(ctx, target.X, target.Y); err != nil {
		return Move{}, err
	}
	res := Move{Before: before, Target: target, Within: true}
	if !verify {
		return res, nil
	}
	if err := t.sleep(ctx, SettleDelay); err != nil {
		return Move{}, err
	}
	after, err := t.pointer.Position(ctx)
	if err != nil {
		return Move{}, err
	}
	res.After = &after
	res.Verified = true
	res.Distance = mouse.Round2(mouse.Distance(after, target))
	res.Within = res.Distance <= float64(tolerance)
	return res, nil
}

// Position returns the current pointer location.
func (t *Targeter) Position(ctx context.Context) (mouse.Position, error) {
	return t.pointer.Position(ctx)
}

// Env returns the detected host.
func (t *Targeter) Env() platform.Env { return t.env }

// Recognize runs tesseract over a screenshot and returns the recognised words.
func (t *Targeter) Recognize(ctx context.Context, imagePath string) ([]Word, error) {
	out, err := t.runner.Run(ctx, platform.Command{
		Name:    "tesseract",
		Args:    []string{imagePath, "-", "tsv"},
		Timeout: 60 * time.Second,
	})
	if err != nil {
		return nil, platform.WithHints(fmt.Errorf("tesseract: %w", err))
	}
	return ParseTSV(out.Stdout), nil
}
