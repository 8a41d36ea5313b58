package excel

import (
	"context"
	"os"
	"path/filepath"

	"github.com/freitascorp/deskclaw/pkg/tools"
)

const (
	// ServerName is the MCP server identity for the aggregator.
	ServerName = "excel-aggregator"

	errCode = "EXCEL_ERROR"
)

// Tools returns scan_workspace and aggregate_excel_data. Calls without a
// workspace use defaultWorkspace.
func Tools(defaultWorkspace string) []tools.Tool {
	workspace := func(args map[string]any) string {
		return tools.StringArg(args, "workspace", defaultWorkspace)
	}
	return []tools.Tool{
		tools.NewFunc("scan_workspace",
			"List the Excel workbooks (.xlsx, .xls) in a workspace directory.",
			tools.Schema(map[string]any{
				"workspace": tools.Prop("string", "Directory holding the workbooks"),
			}),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				agg := New(workspace(args))
				files, err := agg.Scan()
				if err != nil {
					return tools.Failure(err, errCode)
				}
				names := make([]string, len(files))
				for i, f := range files {
					names[i] = filepath.Base(f)
				}
				return tools.JSONResult(map[string]any{"workspace": agg.Workspace, "files": names, "count": len(names)})
			}),

		tools.NewFunc("aggregate_excel_data",
			"Merge every workbook in a workspace into one text report with per-file metadata and numeric summaries.",
			tools.Schema(map[string]any{
				"workspace":       tools.Prop("string", "Directory holding the workbooks"),
				"max_rows":        tools.PropDefault("integer", "Rows rendered per file", DefaultMaxRows),
				"include_records": tools.PropDefault("boolean", "Include the rows as JSON records", false),
				"output_file":     tools.Prop("string", "Also write the text report to this file"),
			}),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				agg := New(workspace(args))
				agg.MaxRows = tools.IntArg(args, "max_rows", DefaultMaxRows)
				rep, err := agg.Aggregate()
				if err != nil {
					return tools.Failure(err, errCode)
				}
				if out := tools.StringArg(args, "output_file", ""); out != "" {
					if err := os.WriteFile(out, []byte(rep.Text), 0o644); err != nil {
						return tools.Failure(err, errCode)
					}
				}
				if !tools.BoolArg(args, "include_records", false) {
					for i := range rep.Files {
						rep.Files[i].Records = nil
					}
				}
				return tools.JSONResult(map[string]any{
					"workspace": rep.Workspace,
					"report":    rep.Text,
					"files":     rep.Files,
					"succeeded": rep.Succeeded,
					"failed":    rep.Failed,
				})
			}),
	}
}
