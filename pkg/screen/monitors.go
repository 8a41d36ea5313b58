// Package screen captures screenshots and enumerates monitors.
package screen

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/freitascorp/deskclaw/pkg/platform"
)

// Monitor is one display in virtual-screen coordinates. Numbers are 1-based.
type Monitor struct {
	Number  int  `json:"monitor_number"`
	Primary bool `json:"is_primary"`
	Left    int  `json:"left"`
	Top     int  `json:"top"`
	Width   int  `json:"width"`
	Height  int  `json:"height"`
	Right   int  `json:"right"`
	Bottom  int  `json:"bottom"`
}

// Rect is a capture rectangle.
type Rect struct {
	Left, Top, Width, Height int
}

func (m Monitor) Rect() Rect {
	return Rect{Left: m.Left, Top: m.Top, Width: m.Width, Height: m.Height}
}

func (m *Monitor) fill() {
	m.Right = m.Left + m.Width
	m.Bottom = m.Top + m.Height
}

const psListMonitors = `Add-Type -AssemblyName System.Windows.Forms; $i = 0; ` +
	`[System.Windows.Forms.Screen]::AllScreens | ForEach-Object { $i++; [PSCustomObject]@{ ` +
	`MonitorNumber = $i; IsPrimary = $_.Primary; Left = $_.Bounds.Left; Top = $_.Bounds.Top; ` +
	`Width = $_.Bounds.Width; Height = $_.Bounds.Height } } | ConvertTo-Json -Compress`

type psMonitor struct {
	MonitorNumber int
	IsPrimary     bool
	Left          int
	Top           int
	Width         int
	Height        int
}

// ListMonitors enumerates displays using the host's native tooling.
func ListMonitors(ctx context.Context, env platform.Env, r platform.Runner) ([]Monitor, error) {
	switch {
	case env.UsesPowerShell():
		var raw []psMonitor
		if err := platform.PowerShellJSON(ctx, r, env, psListMonitors, &raw); err != nil {
			return nil, platform.WithHints(fmt.Errorf("list monitors: %w", err))
		}
		mons := make([]Monitor, 0, len(raw))
		for i, m := range raw {
			mon := Monitor{Number: i + 1, Primary: m.IsPrimary, Left: m.Left, Top: m.Top, Width: m.Width, Height: m.Height}
			mon.fill()
			mons = append(mons, mon)
		}
		return mons, nil
	case env.IsMac():
		out, err := platform.Run(ctx, r, "system_profiler", "SPDisplaysDataType", "-json")
		if err != nil {
			return nil, platform.WithHints(fmt.Errorf("list monitors: %w", err))
		}
		return ParseSystemProfiler([]byte(out.Stdout))
	default:
		out, err := platform.Run(ctx, r, "xrandr", "--listmonitors")
		if err != nil {
			return nil, platform.WithHints(fmt.Errorf("list monitors: %w", err))
		}
		return ParseXrandrMonitors(out.Stdout)
	}
}

// " 0: +*eDP-1 1920/344x1080/193+0+0  eDP-1"
var xrandrLine = regexp.MustCompile(`^\s*\d+:\s+\+?(\*?)\S+\s+(\d+)/\d+x(\d+)/\d+([+-]\d+)([+-]\d+)`)

// ParseXrandrMonitors parses `xrandr --listmonitors`.
func ParseXrandrMonitors(out string) ([]Monitor, error) {
	var mons []Monitor
	for _, line := range strings.Split(out, "\n") {
		m := xrandrLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		mon := Monitor{Number: len(mons) + 1, Primary: m[1] == "*"}
		mon.Width, _ = strconv.Atoi(m[2])
		mon.Height, _ = strconv.Atoi(m[3])
		mon.Left, _ = strconv.Atoi(m[4])
		mon.Top, _ = strconv.Atoi(m[5])
		mon.fill()
		mons = append(mons, mon)
	}
	if len(mons) == 0 {
		return nil, fmt.Errorf("no monitors in xrandr output")
	}
	if !hasPrimary(mons) {
		mons[0].Primary = true
	}
	return mons, nil
}

var resolution = regexp.MustCompile(`(\d+)\s*x\s*(\d+)`)

// ParseSystemProfiler reads display resolutions from system_profiler JSON.
// macOS does not report arrangement here, so displays sit side by side
// starting from the main display at the origin.
func ParseSystemProfiler(data []byte) ([]Monitor, error) {
	var doc struct {
		Displays []struct {
			Screens []struct {
				Name       string `json:"_name"`
				Resolution string `json:"_spdisplays_resolution"`
				Pixels     string `json:"_spdisplays_pixels"`
				Main       string `json:"spdisplays_main"`
			} `json:"spdisplays_ndrvs"`
		} `json:"SPDisplaysDataType"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode system_profiler: %w", err)
	}

	var mons []Monitor
	for _, gpu := range doc.Displays {
		for _, s := range gpu.Screens {
			m := resolution.FindStringSubmatch(s.Resolution)
			if m == nil {
				m = resolution.FindStringSubmatch(s.Pixels)
			}
			if m == nil {
				continue
			}
			mon := Monitor{Primary: s.Main == "spdisplays_yes"}
			mon.Width, _ = strconv.Atoi(m[1])
			mon.Height, _ = strconv.Atoi(m[2])
			mons = append(mons, mon)
		}
	}
	if len(mons) == 0 {
		return nil, fmt.Errorf("no displays in system_profiler output")
	}

	// Main display first, the rest to its right.
	for i := range mons {
		if mons[i].Primary && i != 0 {
			mons[0], mons[i] = mons[i], mons[0]
			break
		}
	}
	if !hasPrimary(mons) {
		mons[0].Primary = true
	}
	left := 0
	for i := range mons {
		mons[i].Number = i + 1
		mons[i].Left = left
		mons[i].fill()
		left += mons[i].Width
	}
	return mons, nil
}

func hasPrimary(mons []Monitor) bool {
	for _, m := range mons {
		if m.Primary {
			return true
		}
	}
	return false
}

// Primary returns the primary monitor, or the first one.
func Primary(mons []Monitor) (Monitor, bool) {
	for _, m := range mons {
		if m.Primary {
			return m, true
		}
	}
	if len(mons) > 0 {
		return mons[0], true
	}
	return Monitor{}, false
}

// VirtualOrigin is the top-left corner of the bounding box of all monitors.
func VirtualOrigin(mons []Monitor) (left, top int) {
	for i, m := range mons {
		if i == 0 || m.Left < left {
			left = m.Left
		}
		if i == 0 || m.Top < top {
			top = m.Top
		}
	}
	return left, top
}

// ByNumber validates a 1-based monitor number.
func ByNumber(mons []Monitor, n int) (Monitor, error) {
	if n < 1 || n > len(mons) {
		return Monitor{}, fmt.Errorf("monitor %d does not exist: %d monitor(s) available (1-%d)", n, len(mons), len(mons))
	}
	return mons[n-1], nil
}
