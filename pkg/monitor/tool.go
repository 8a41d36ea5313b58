package monitor

import (
	"context"

	"github.com/freitascorp/deskclaw/pkg/screen"
	"github.com/freitascorp/deskclaw/pkg/tools"
)

const errCode = "MONITOR_ERROR"

// monitorInfo is the PascalCase monitor shape this server returns.
type monitorInfo struct {
	MonitorNumber int  `json:"MonitorNumber"`
	IsPrimary     bool `json:"IsPrimary"`
	Left          int  `json:"Left"`
	Top           int  `json:"Top"`
	Width         int  `json:"Width"`
	Height        int  `json:"Height"`
	Right         int  `json:"Right"`
	Bottom        int  `json:"Bottom"`
}

func toInfo(m screen.Monitor) monitorInfo {
	return monitorInfo{
		MonitorNumber: m.Number,
		IsPrimary:     m.Primary,
		Left:          m.Left,
		Top:           m.Top,
		Width:         m.Width,
		Height:        m.Height,
		Right:         m.Right,
		Bottom:        m.Bottom,
	}
}

// Tools returns list_monitors, find_window and move_to_monitor.
func Tools(m *Mover) []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("list_monitors",
			"List connected monitors.",
			tools.Schema(nil),
			func(ctx context.Context, _ map[string]any) *tools.ToolResult {
				mons, err := m.Monitors(ctx)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				out := make([]monitorInfo, len(mons))
				for i, mon := range mons {
					out[i] = toInfo(mon)
				}
				return tools.JSONResult(map[string]any{"monitors": out, "count": len(out)})
			}),

		tools.NewFunc("find_window",
			"Find windows whose title contains a pattern (case-insensitive).",
			tools.Schema(map[string]any{
				"title_pattern": tools.Prop("string", "Substring of the window title"),
			}, "title_pattern"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				pattern, err := tools.RequireString(args, "title_pattern")
				if err != nil {
					return tools.Failure(err, errCode)
				}
				wins, err := m.Find(ctx, pattern)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				found := make([]map[string]any, 0, len(wins))
				for _, w := range wins {
					found = append(found, map[string]any{
						"hwnd":   w.ID,
						"title":  w.Title,
						"left":   w.X,
						"top":    w.Y,
						"width":  w.Width,
						"height": w.Height,
					})
				}
				return tools.JSONResult(map[string]any{"windows": found, "count": len(found)})
			}),

		tools.NewFunc("move_to_monitor",
			"Move the first window matching a title pattern onto a monitor, centred at 80% size.",
			tools.Schema(map[string]any{
				"title_pattern":  tools.Prop("string", "Substring of the window title"),
				"monitor_number": tools.Prop("integer", "1-based target monitor"),
				"maximize":       tools.PropDefault("boolean", "Maximize after moving", false),
			}, "title_pattern", "monitor_number"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				pattern, err := tools.RequireString(args, "title_pattern")
				if err != nil {
					return tools.Failure(err, errCode)
				}
				res, err := m.MoveToMonitor(ctx, pattern, tools.IntArg(args, "monitor_number", 0), tools.BoolArg(args, "maximize", false))
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(map[string]any{
					"window_title": res.Window.Title,
					"hwnd":         res.Window.ID,
					"monitor":      toInfo(res.Monitor),
					"new_rect": map[string]int{
						"left":   res.Placement.X,
						"top":    res.Placement.Y,
						"width":  res.Placement.Width,
						"height": res.Placement.Height,
					},
					"maximized": res.Maximized,
				})
			}),
	}
}
