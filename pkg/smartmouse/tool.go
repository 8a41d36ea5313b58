package smartmouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/freitascorp/deskclaw/pkg/mouse"
	"github.com/freitascorp/deskclaw/pkg/tools"
)

// ServerName is the MCP server identity for the smart mouse adapter.
const ServerName = "smart-mouse-mcp-server"

const errCode = "SMART_MOUSE_ERROR"

const instructions = `Locate "%s" in the attached screenshot.
1. Read the pixel coordinates (px, py) of the target's centre in the image.
2. Convert to screen coordinates: x = %d + px / %.2f, y = %d + py / %.2f.
3. Call execute_move_to_coordinates with target_x=x, target_y=y and tolerance=%d.
4. If the reported distance exceeds the tolerance, call verify_position_with_screenshot and correct.
Stop after %d attempts.`

// Tools returns the visual targeting tools.
func Tools(t *Targeter) []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("smart_move_to_target",
			"Capture the screen and return it with the context needed to aim the pointer at a described target.",
			tools.Schema(map[string]any{
				"target_description": tools.Prop("string", "What to point at, e.g. 'the Submit button'"),
				"max_attempts":       tools.PropDefault("integer", "Correction rounds allowed", 5),
				"tolerance":          tools.PropDefault("integer", "Acceptable error in pixels", 10),
			}, "target_description"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				target, err := tools.RequireString(args, "target_description")
				if err != nil {
					return tools.Failure(err, errCode)
				}
				attempts := tools.IntArg(args, "max_attempts", 5)
				tolerance := tools.IntArg(args, "tolerance", 10)

				snap, err := t.Snap(ctx)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				origin := snap.Origin()
				return tools.JSONResult(map[string]any{
					"screenshot_base64":  snap.Base64,
					"screenshot_size":    map[string]int{"width": snap.Shot.Width, "height": snap.Shot.Height},
					"current_position":   snap.Position,
					"dpi_scale":          snap.Scale,
					"monitors":           snap.Monitors,
					"screenshot_origin":  origin,
					"target_description": target,
					"max_attempts":       attempts,
					"tolerance":          tolerance,
					"instructions": fmt.Sprintf(instructions, target,
						origin.X, snap.Scale, origin.Y, snap.Scale, tolerance, attempts),
				}).WithImage(snap.Base64)
			}),

		tools.NewFunc("execute_move_to_coordinates",
			"Move the pointer to screen coordinates and verify where it landed.",
			tools.Schema(map[string]any{
				"target_x":  tools.Prop("integer", "Target X in screen coordinates"),
				"target_y":  tools.Prop("integer", "Target Y in screen coordinates"),
				"tolerance": tools.PropDefault("integer", "Acceptable error in pixels", 10),
				"verify":    tools.PropDefault("boolean", "Read the position back after moving", true),
			}, "target_x", "target_y"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				if !tools.HasArg(args, "target_x") || !tools.HasArg(args, "target_y") {
					return tools.Failure(errors.New("target_x and target_y are required"), errCode)
				}
				target := mouse.Position{X: tools.IntArg(args, "target_x", 0), Y: tools.IntArg(args, "target_y", 0)}
				mv, err := t.MoveTo(ctx, target, tools.IntArg(args, "tolerance", 10), tools.BoolArg(args, "verify", true))
				if err != nil {
					return tools.Failure(err, errCode)
				}
				return tools.JSONResult(moveBody(mv))
			}),

		tools.NewFunc("verify_position_with_screenshot",
			"Compare the pointer position with an expected point and return a fresh screenshot.",
			tools.Schema(map[string]any{
				"expected_x": tools.Prop("integer", "Expected X"),
				"expected_y": tools.Prop("integer", "Expected Y"),
				"tolerance":  tools.PropDefault("integer", "Acceptable error in pixels", 10),
			}, "expected_x", "expected_y"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				expected := mouse.Position{X: tools.IntArg(args, "expected_x", 0), Y: tools.IntArg(args, "expected_y", 0)}
				tolerance := tools.IntArg(args, "tolerance", 10)
				snap, err := t.Snap(ctx)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				dist := mouse.Round2(mouse.Distance(snap.Position, expected))
				return tools.JSONResult(map[string]any{
					"current_position":  snap.Position,
					"expected_position": expected,
					"distance":          dist,
					"within_tolerance":  dist <= float64(tolerance),
					"tolerance":         tolerance,
					"screenshot_origin": snap.Origin(),
					"screenshot_base64": snap.Base64,
				}).WithImage(snap.Base64)
			}),

		tools.NewFunc("move_to_text_target",
			"Find text on screen with OCR (tesseract) and move the pointer to its centre.",
			tools.Schema(map[string]any{
				"text":           tools.Prop("string", "Text to find"),
				"tolerance":      tools.PropDefault("integer", "Acceptable error in pixels", 10),
				"case_sensitive": tools.PropDefault("boolean", "Match case exactly", false),
			}, "text"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				text, err := tools.RequireString(args, "text")
				if err != nil {
					return tools.Failure(err, errCode)
				}
				snap, err := t.Snap(ctx)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				words, err := t.Recognize(ctx, snap.Shot.Path)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				match, ok := FindText(words, text, tools.BoolArg(args, "case_sensitive", false))
				if !ok {
					return tools.FailureWith(fmt.Errorf("text %q not found on screen", text), errCode,
						map[string]any{"words_recognized": len(words)})
				}
				cx, cy := match.Box.Center()
				target := snap.ToScreen(cx, cy)
				mv, err := t.MoveTo(ctx, target, tools.IntArg(args, "tolerance", 10), true)
				if err != nil {
					return tools.Failure(err, errCode)
				}
				body := moveBody(mv)
				body["match"] = match
				body["dpi_scale"] = snap.Scale
				body["screenshot_origin"] = snap.Origin()
				return tools.JSONResult(body)
			}),

		tools.NewFunc("get_dpi_scale",
			"Get the display scale factor (DPI / 96).",
			tools.Schema(nil),
			func(ctx context.Context, _ map[string]any) *tools.ToolResult {
				scale := t.DPIScale(ctx)
				return tools.JSONResult(map[string]any{
					"dpi_scale": scale,
					"dpi":       scale * 96,
					"system":    t.Env().Name(),
				})
			}),
	}
}

func moveBody(mv Move) map[string]any {
	body := map[string]any{
		"success":  mv.Within,
		"before":   mv.Before,
		"target":   mv.Target,
		"distance": mv.Distance,
		"verified": mv.Verified,
	}
	if mv.After != nil {
		body["after"] = *mv.After
	}
	return body
}
