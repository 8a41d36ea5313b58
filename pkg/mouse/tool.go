package mouse

import (
	"context"
	"errors"

	"github.com/freitascorp/deskclaw/pkg/tools"
)

// ServerName is the MCP server identity for the mouse adapter.
const ServerName = "mouse-position-mcp-server"

const errCode = "MOUSE_ERROR"

// DefaultTolerance is how close, in pixels, move_to_target_with_verification
// must land to count as arrived.
const DefaultTolerance = 10

// Tools returns get_mouse_position, move_mouse, calculate_distance and
// move_to_target_with_verification.
func Tools(c *Controller) []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("get_mouse_position",
			"Get the current mouse pointer position in screen pixels.",
			tools.Schema(nil),
			func(ctx context.Context, _ map[string]any) *tools.ToolResult {
				pos, err := c.Position(ctx)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(map[string]any{
					"x":      pos.X,
					"y":      pos.Y,
					"method": c.Method(),
					"system": c.Env().Name(),
				})
			}),

		tools.NewFunc("move_mouse",
			"Move the mouse pointer to absolute screen coordinates.",
			tools.Schema(map[string]any{
				"x": tools.Prop("integer", "Target X coordinate"),
				"y": tools.Prop("integer", "Target Y coordinate"),
			}, "x", "y"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				if !tools.HasArg(args, "x") || !tools.HasArg(args, "y") {
					return tools.Failure(errors.New("x and y are required"), errCode)
				}
				x, y := tools.IntArg(args, "x", 0), tools.IntArg(args, "y", 0)

				before, err := c.Position(ctx)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				if err := c.Move(ctx, x, y); err != nil {
					return tools.Failure(err, errCode)
				}
				after, err := c.Position(ctx)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(map[string]any{
					"old_position": before,
					"new_position": after,
					"target":       Position{X: x, Y: y},
					"method":       c.Method(),
					"system":       c.Env().Name(),
				})
			}),

		tools.NewFunc("calculate_distance",
			"Calculate the euclidean distance in pixels between two points.",
			tools.Schema(map[string]any{
				"x1": tools.Prop("integer", "First point X"),
				"y1": tools.Prop("integer", "First point Y"),
				"x2": tools.Prop("integer", "Second point X"),
				"y2": tools.Prop("integer", "Second point Y"),
			}, "x1", "y1", "x2", "y2"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				p1 := Position{X: tools.IntArg(args, "x1", 0), Y: tools.IntArg(args, "y1", 0)}
				p2 := Position{X: tools.IntArg(args, "x2", 0), Y: tools.IntArg(args, "y2", 0)}
				return tools.JSONResult(map[string]any{
					"distance": Round2(Distance(p1, p2)),
					"point1":   p1,
					"point2":   p2,
				})
			}),

		tools.NewFunc("move_to_target_with_verification",
			"Move the mouse to a target and read the position back. Nothing moves when the pointer is already within tolerance; call again after a fresh screenshot if arrived is false.",
			tools.Schema(map[string]any{
				"target_x":  tools.Prop("integer", "Target X coordinate"),
				"target_y":  tools.Prop("integer", "Target Y coordinate"),
				"tolerance": tools.PropDefault("integer", "Allowed distance in pixels", DefaultTolerance),
			}, "target_x", "target_y"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				if !tools.HasArg(args, "target_x") || !tools.HasArg(args, "target_y") {
					return tools.Failure(errors.New("target_x and target_y are required"), errCode)
				}
				target := Position{X: tools.IntArg(args, "target_x", 0), Y: tools.IntArg(args, "target_y", 0)}
				v, err := c.MoveVerified(ctx, target, float64(tools.IntArg(args, "tolerance", DefaultTolerance)))
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(v)
			}),
	}
}
