package launcher

import (
	"context"

	"github.com/freitascorp/deskclaw/pkg/tools"
)

// ServerName is the MCP server identity for the launcher adapter.
const ServerName = "open-dingtalk-mcp-server"

// Tools returns open_dingtalk and check_dingtalk_installed.
func Tools(l *Launcher) []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("open_dingtalk",
			"Open the DingTalk desktop application.",
			tools.Schema(nil),
			func(ctx context.Context, _ map[string]any) *tools.ToolResult {
				res, err := l.Open(ctx)
				if err != nil {
					return tools.FailureWith(err, "LAUNCH_FAILED", map[string]any{
						"system":   res.System,
						"attempts": res.Attempts,
					})
				}
				return tools.JSONResult(res)
			}),

		tools.NewFunc("check_dingtalk_installed",
			"Check whether DingTalk is installed.",
			tools.Schema(nil),
			func(_ context.Context, _ map[string]any) *tools.ToolResult {
				return tools.JSONResult(l.CheckInstalled())
			}),
	}
}
