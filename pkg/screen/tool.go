package screen

import (
	"context"
	"fmt"
	"time"

	"github.com/freitascorp/deskclaw/pkg/tools"
)

// ServerName is the MCP server identity for the screenshot adapter.
const ServerName = "screenshot-mcp-server"

const errCode = "SCREENSHOT_ERROR"

// Tools returns take_screenshot, get_screenshot_info, list_monitors and
// take_screenshot_monitor.
func Tools(c *Capturer) []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("take_screenshot",
			"Capture the whole screen to a PNG file.",
			tools.Schema(map[string]any{
				"filename":      tools.Prop("string", "File name; defaults to screenshot_YYYYMMDD_HHMMSS.png"),
				"output_dir":    tools.Prop("string", "Directory to save into"),
				"return_base64": tools.PropDefault("boolean", "Also return the image data", false),
			}),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				shot, err := c.Take(ctx, tools.StringArg(args, "filename", ""), tools.StringArg(args, "output_dir", ""), nil)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return shotResult(shot, tools.BoolArg(args, "return_base64", false), nil)
			}),

		tools.NewFunc("get_screenshot_info",
			"Describe the newest screenshot in the output directory.",
			tools.Schema(map[string]any{
				"output_dir": tools.Prop("string", "Directory to inspect"),
			}),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				info, err := Latest(tools.StringArg(args, "output_dir", c.OutputDir()))
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(map[string]any{
					"filepath":          info.Path,
					"filename":          info.Filename,
					"size_bytes":        info.SizeBytes,
					"modified":          info.Modified.Format(time.RFC3339),
					"width":             info.Width,
					"height":            info.Height,
					"total_screenshots": info.Total,
				})
			}),

		tools.NewFunc("list_monitors",
			"List connected monitors with their positions in virtual-screen coordinates.",
			tools.Schema(nil),
			func(ctx context.Context, _ map[string]any) *tools.ToolResult {
				mons, err := ListMonitors(ctx, c.Env(), c.Runner())
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(map[string]any{
					"monitors": mons,
					"count":    len(mons),
					"system":   c.Env().Name(),
				})
			}),

		tools.NewFunc("take_screenshot_monitor",
			"Capture a single monitor to a PNG file.",
			tools.Schema(map[string]any{
				"monitor_number": tools.Prop("integer", "1-based monitor number from list_monitors"),
				"filename":       tools.Prop("string", "File name"),
				"output_dir":     tools.Prop("string", "Directory to save into"),
				"return_base64":  tools.PropDefault("boolean", "Also return the image data", false),
			}, "monitor_number"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				n := tools.IntArg(args, "monitor_number", 0)
				mons, err := ListMonitors(ctx, c.Env(), c.Runner())
				if err != nil {
					return tools.Failure(err, errCode)
				}
				mon, err := ByNumber(mons, n)
				if err != nil {
					return tools.FailureWith(err, errCode, map[string]any{"available_monitors": len(mons)})
				}
				filename := tools.StringArg(args, "filename", "")
				if filename == "" {
					filename = DefaultFilename(fmt.Sprintf("screenshot_monitor%d", n), c.now())
				}
				rect := mon.Rect()
				shot, err := c.Take(ctx, filename, tools.StringArg(args, "output_dir", ""), &rect)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return shotResult(shot, tools.BoolArg(args, "return_base64", false), &mon)
			}),
	}
}

func shotResult(shot Shot, withBase64 bool, mon *Monitor) *tools.ToolResult {
	body := map[string]any{
		"filepath":   shot.Path,
		"filename":   shot.Filename,
		"width":      shot.Width,
		"height":     shot.Height,
		"size_bytes": shot.SizeBytes,
		"method":     shot.Method,
	}
	if mon != nil {
		body["monitor"] = mon
	}
	var b64 string
	if withBase64 {
		var err error
		if b64, err = shot.Base64(); err != nil {
			return tools.Failure(err, errCode)
		}
		body["base64"] = b64
	}
	return tools.JSONResult(body).WithImage(b64)
}
