package humanop

import (
	"context"

	"github.com/freitascorp/deskclaw/pkg/tools"
)

const (
	// ServerName is the MCP server identity for the simulator.
	ServerName = "human-op-simulator"

	errCode       = "HUMAN_OP_ERROR"
	timeLayout    = "2006-01-02 15:04:05"
	simulatedData = "base64-encoded-screenshot-data-simulation"
)

func fail(err error) *tools.ToolResult { return tools.Failure(err, errCode) }

// Tools returns the nine simulation tools backed by s.
func Tools(s *Simulator) []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("mouse_click",
			"Simulate a mouse click.",
			tools.Schema(map[string]any{
				"x":            tools.Prop("integer", "X coordinate"),
				"y":            tools.Prop("integer", "Y coordinate"),
				"button":       tools.PropEnum("Mouse button", validButtons...),
				"double_click": tools.PropDefault("boolean", "Double click", false),
			}, "x", "y"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				x, y := tools.IntArg(args, "x", 0), tools.IntArg(args, "y", 0)
				action, st, err := s.Click(x, y, tools.StringArg(args, "button", "left"), tools.BoolArg(args, "double_click", false))
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{"action": action, "position": Point{x, y}, "state": st})
			}),

		tools.NewFunc("mouse_move",
			"Simulate moving the mouse.",
			tools.Schema(map[string]any{
				"x":        tools.Prop("integer", "Target X coordinate"),
				"y":        tools.Prop("integer", "Target Y coordinate"),
				"duration": tools.PropDefault("number", "Move duration in seconds", 0.5),
			}, "x", "y"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				to := Point{tools.IntArg(args, "x", 0), tools.IntArg(args, "y", 0)}
				duration := tools.FloatArg(args, "duration", 0.5)
				from, st, err := s.Move(to.X, to.Y, duration)
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{"action": "mouse move", "from": from, "to": to, "duration": duration, "state": st})
			}),

		tools.NewFunc("keyboard_type",
			"Simulate typing text.",
			tools.Schema(map[string]any{
				"text":  tools.Prop("string", "Text to type"),
				"speed": tools.PropDefault("number", "Seconds between keys", 0.1),
			}, "text"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				text := tools.StringArg(args, "text", "")
				speed := tools.FloatArg(args, "speed", 0.1)
				took, st, err := s.Type(text, speed)
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{
					"action":             "keyboard type",
					"text":               text,
					"speed":              speed,
					"simulated_duration": took,
					"state":              st,
				})
			}),

		tools.NewFunc("keyboard_press",
			"Simulate pressing a key, optionally with a modifier.",
			tools.Schema(map[string]any{
				"key":      tools.Prop("string", "Key such as Enter, Tab or A"),
				"modifier": tools.Prop("string", "Modifier such as Ctrl, Alt or Shift"),
			}, "key"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				action, st, err := s.Press(tools.StringArg(args, "key", ""), tools.StringArg(args, "modifier", ""))
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{"action": action, "state": st})
			}),

		tools.NewFunc("clipboard_copy",
			"Simulate copying text to the clipboard.",
			tools.Schema(map[string]any{
				"content": tools.Prop("string", "Text to copy"),
			}, "content"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				content := tools.StringArg(args, "content", tools.StringArg(args, "text", ""))
				st := s.Copy(content)
				return tools.JSONResult(map[string]any{"action": "clipboard copy", "content": content, "state": st})
			}),

		tools.NewFunc("clipboard_paste",
			"Simulate pasting from the clipboard.",
			tools.Schema(nil),
			func(_ context.Context, _ map[string]any) *tools.ToolResult {
				content, st := s.Paste()
				return tools.JSONResult(map[string]any{"action": "clipboard paste", "content": content, "state": st})
			}),

		tools.NewFunc("window_switch",
			"Simulate switching to a window.",
			tools.Schema(map[string]any{
				"window_title": tools.Prop("string", "Title of the target window"),
			}, "window_title"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				title := tools.StringArg(args, "window_title", "")
				st, err := s.SwitchWindow(title)
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{"action": "window switch", "window_title": st.ActiveWindow, "state": st})
			}),

		tools.NewFunc("get_simulation_state",
			"Get the current simulated desktop state.",
			tools.Schema(nil),
			func(_ context.Context, _ map[string]any) *tools.ToolResult {
				return tools.JSONResult(map[string]any{"state": s.State()})
			}),

		tools.NewFunc("screenshot",
			"Simulate a global screenshot.",
			tools.Schema(nil),
			func(_ context.Context, _ map[string]any) *tools.ToolResult {
				at, st := s.Screenshot()
				return tools.JSONResult(map[string]any{
					"action":          "global screenshot",
					"timestamp":       at.Format(timeLayout),
					"screenshot_data": simulatedData,
					"state":           st,
				})
			}),
	}
}
