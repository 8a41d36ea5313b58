package window

import (
	"context"

	"github.com/freitascorp/deskclaw/pkg/tools"
)

// ServerName is the MCP server identity for the window adapter.
const ServerName = "window-split-mcp-server"

const errCode = "WINDOW_ERROR"

type layoutFunc func(Size, []string) ([]Placement, error)

// Tools returns the window listing, moving and tiling tools.
func Tools(m *Manager) []tools.Tool {
	idsSchema := tools.Schema(map[string]any{
		"window_ids": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Window ids from list_windows",
		},
	}, "window_ids")
	idSchema := tools.Schema(map[string]any{
		"window_id": tools.Prop("string", "Window id from list_windows"),
	}, "window_id")

	return []tools.Tool{
		tools.NewFunc("list_windows",
			"List visible top-level windows with their geometry.",
			tools.Schema(nil),
			func(ctx context.Context, _ map[string]any) *tools.ToolResult {
				wins, err := m.List(ctx)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(map[string]any{"windows": wins, "count": len(wins)})
			}),

		tools.NewFunc("get_screen_size",
			"Get the primary screen size in pixels.",
			tools.Schema(nil),
			func(ctx context.Context, _ map[string]any) *tools.ToolResult {
				size, err := m.ScreenSize(ctx)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(map[string]any{"width": size.Width, "height": size.Height})
			}),

		tools.NewFunc("get_active_window",
			"Get the id and title of the focused window.",
			tools.Schema(nil),
			func(ctx context.Context, _ map[string]any) *tools.ToolResult {
				w, err := m.Active(ctx)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(map[string]any{"id": w.ID, "title": w.Title})
			}),

		tools.NewFunc("move_window",
			"Move and resize a window.",
			tools.Schema(map[string]any{
				"window_id": tools.Prop("string", "Window id from list_windows"),
				"x":         tools.Prop("integer", "Left edge"),
				"y":         tools.Prop("integer", "Top edge"),
				"width":     tools.Prop("integer", "Width"),
				"height":    tools.Prop("integer", "Height"),
			}, "window_id", "x", "y", "width", "height"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				id, err := tools.RequireString(args, "window_id")
				if err != nil {
					return tools.Failure(err, errCode)
				}
				p := Placement{
					ID:     id,
					X:      tools.IntArg(args, "x", 0),
					Y:      tools.IntArg(args, "y", 0),
					Width:  tools.IntArg(args, "width", 0),
					Height: tools.IntArg(args, "height", 0),
				}
				if err := m.Move(ctx, p.ID, p.X, p.Y, p.Width, p.Height); err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(map[string]any{"window": p})
			}),

		layoutTool(m, "split_horizontal", "Place one or two windows side by side.", idsSchema, SplitHorizontal),
		layoutTool(m, "split_vertical", "Stack one or two windows top and bottom.", idsSchema, SplitVertical),
		layoutTool(m, "split_grid", "Tile up to four windows in screen quadrants.", idsSchema, SplitGrid),

		tools.NewFunc("maximize_window",
			"Maximize a window.",
			idSchema,
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				id, err := tools.RequireString(args, "window_id")
				if err != nil {
					return tools.Failure(err, errCode)
				}
				if err := m.Maximize(ctx, id); err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(map[string]any{"window_id": id, "maximized": true})
			}),
	}
}

func layoutTool(m *Manager, name, desc string, schema map[string]any, layout layoutFunc) tools.Tool {
	return tools.NewFunc(name, desc, schema, func(ctx context.Context, args map[string]any) *tools.ToolResult {
		ids := tools.StringSliceArg(args, "window_ids")
		// Check the id count before querying the display.
		if _, err := layout(Size{}, ids); err != nil {
			return tools.Failure(err, errCode)
		}
		size, err := m.ScreenSize(ctx)
		if err != nil {
			return tools.Failure(err, errCode)
		}
		placements, err := layout(size, ids)
		if err != nil {
			return tools.Failure(err, errCode)
		}
		if err := m.Apply(ctx, placements); err != nil {
			return tools.Failure(err, errCode)
		}
		return tools.JSONResult(map[string]any{
			"layout":       name,
			"screen":       size,
			"placements":   placements,
			"window_count": len(placements),
		})
	})
}
