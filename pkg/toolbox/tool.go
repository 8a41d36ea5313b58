// Package toolbox is a general-purpose file, system, network and shell
// toolset for agents running under WSL or a plain Linux/Windows host.
package toolbox

import (
	"context"
	"time"

	"github.com/freitascorp/deskclaw/pkg/config"
	"github.com/freitascorp/deskclaw/pkg/platform"
	"github.com/freitascorp/deskclaw/pkg/tools"
)

const (
	// ServerName is the MCP server identity for the toolbox.
	ServerName = "WSL-Enhanced-Tools"

	errCode = "TOOLBOX_ERROR"
)

// Toolbox bundles the host handles the tools need.
type Toolbox struct {
	env  platform.Env
	exec *Executor
	http *HTTPClient
}

func New(env platform.Env, runner platform.Runner, cfg config.ToolboxConfig) *Toolbox {
	timeout := time.Duration(cfg.CommandTimeout) * time.Second
	if timeout <= 0 {
		timeout = config.DefaultCommandTimeout * time.Second
	}
	return &Toolbox{
		env:  env,
		exec: NewExecutor(env, runner, cfg.BlockedCommands, timeout),
		http: NewHTTPClient(timeout),
	}
}

func fail(err error) *tools.ToolResult { return tools.Failure(err, errCode) }

func pathArg(args map[string]any, key string) (string, *tools.ToolResult) {
	p, err := tools.RequireString(args, key)
	if err != nil {
		return "", fail(err)
	}
	return p, nil
}

func pathSchema(desc string) map[string]any {
	return tools.Schema(map[string]any{"path": tools.Prop("string", desc)}, "path")
}

// Tools returns every toolbox tool.
func Tools(tb *Toolbox) []tools.Tool {
	var all []tools.Tool
	all = append(all, fileTools()...)
	all = append(all, tb.systemTools()...)
	all = append(all, tb.networkTools()...)
	all = append(all, textTools()...)
	all = append(all, tb.commandTools()...)
	return all
}

func fileTools() []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("read_file", "Read a text file.",
			tools.Schema(map[string]any{
				"path":     tools.Prop("string", "File path"),
				"encoding": tools.PropDefault("string", "utf-8, gbk or gb18030", "utf-8"),
			}, "path"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				p, bad := pathArg(args, "path")
				if bad != nil {
					return bad
				}
				content, err := ReadFile(p, tools.StringArg(args, "encoding", "utf-8"))
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{"path": p, "content": content})
			}),

		tools.NewFunc("list_directory", "List a directory.",
			tools.Schema(map[string]any{
				"path":        tools.PropDefault("string", "Directory path", "."),
				"show_hidden": tools.PropDefault("boolean", "Include dot files", false),
			}),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				p := tools.StringArg(args, "path", ".")
				entries, err := ListDirectory(p, tools.BoolArg(args, "show_hidden", false))
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{"path": p, "entries": entries, "count": len(entries)})
			}),

		tools.NewFunc("create_directory", "Create a directory and any missing parents.",
			pathSchema("Directory path"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				p, bad := pathArg(args, "path")
				if bad != nil {
					return bad
				}
				if err := CreateDirectory(p); err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{"path": p})
			}),

		tools.NewFunc("delete_file", "Delete a file or directory.",
			tools.Schema(map[string]any{
				"path":      tools.Prop("string", "Path to delete"),
				"recursive": tools.PropDefault("boolean", "Delete non-empty directories", false),
			}, "path"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				p, bad := pathArg(args, "path")
				if bad != nil {
					return bad
				}
				if err := DeleteFile(p, tools.BoolArg(args, "recursive", false)); err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{"path": p})
			}),

		tools.NewFunc("write_file", "Write or append text to a file.",
			tools.Schema(map[string]any{
				"path":    tools.Prop("string", "File path"),
				"content": tools.Prop("string", "Text to write"),
				"mode":    tools.PropEnum("w overwrites, a appends", "w", "a"),
			}, "path", "content"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				p, bad := pathArg(args, "path")
				if bad != nil {
					return bad
				}
				n, err := WriteFile(p, tools.StringArg(args, "content", ""), tools.StringArg(args, "mode", "w"))
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{"path": p, "bytes_written": n})
			}),

		tools.NewFunc("file_exists", "Check whether a path exists.",
			pathSchema("Path to check"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				p, bad := pathArg(args, "path")
				if bad != nil {
					return bad
				}
				ok, typ := Exists(p)
				return tools.JSONResult(map[string]any{"path": p, "exists": ok, "type": typ})
			}),

		tools.NewFunc("get_file_info", "Get size, type, permissions and modification time of a path.",
			pathSchema("Path to inspect"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				p, bad := pathArg(args, "path")
				if bad != nil {
					return bad
				}
				info, err := Stat(p)
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(info)
			}),

		tools.NewFunc("copy_file", "Copy a file or directory tree.",
			tools.Schema(map[string]any{
				"source":      tools.Prop("string", "Source path"),
				"destination": tools.Prop("string", "Destination path"),
			}, "source", "destination"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				src, bad := pathArg(args, "source")
				if bad != nil {
					return bad
				}
				dst, bad := pathArg(args, "destination")
				if bad != nil {
					return bad
				}
				if err := CopyFile(src, dst); err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{"source": src, "destination": dst})
			}),

		tools.NewFunc("move_file", "Move or rename a file or directory.",
			tools.Schema(map[string]any{
				"source":      tools.Prop("string", "Source path"),
				"destination": tools.Prop("string", "Destination path"),
			}, "source", "destination"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				src, bad := pathArg(args, "source")
				if bad != nil {
					return bad
				}
				dst, bad := pathArg(args, "destination")
				if bad != nil {
					return bad
				}
				if err := MoveFile(src, dst); err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{"source": src, "destination": dst})
			}),
	}
}

func (tb *Toolbox) systemTools() []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("get_system_info", "Get OS, host, CPU and runtime information.",
			tools.Schema(nil),
			func(ctx context.Context, _ map[string]any) *tools.ToolResult {
				info, err := GetSystemInfo(ctx, tb.env)
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(info)
			}),

		tools.NewFunc("get_disk_usage", "Get disk usage for the filesystem holding a path.",
			tools.Schema(map[string]any{"path": tools.PropDefault("string", "Path on the filesystem", "/")}),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				u, err := GetDiskUsage(ctx, tools.StringArg(args, "path", "/"))
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(u)
			}),

		tools.NewFunc("get_memory_usage", "Get memory and swap usage.",
			tools.Schema(nil),
			func(ctx context.Context, _ map[string]any) *tools.ToolResult {
				u, err := GetMemoryUsage(ctx)
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(u)
			}),

		tools.NewFunc("get_running_processes", "List running processes by CPU usage.",
			tools.Schema(map[string]any{"limit": tools.PropDefault("integer", "Maximum processes", 20)}),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				procs, err := GetRunningProcesses(ctx, tools.IntArg(args, "limit", 20))
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{"processes": procs, "count": len(procs)})
			}),

		tools.NewFunc("get_environment_variables", "List environment variables. Credential values are masked.",
			tools.Schema(nil),
			func(_ context.Context, _ map[string]any) *tools.ToolResult {
				vars := Environment()
				return tools.JSONResult(map[string]any{"variables": vars, "count": len(vars)})
			}),
	}
}

func (tb *Toolbox) networkTools() []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("http_get", "Send an HTTP GET request.",
			tools.Schema(map[string]any{
				"url":     tools.Prop("string", "Request URL"),
				"headers": tools.Prop("object", "Request headers"),
			}, "url"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				url, bad := pathArg(args, "url")
				if bad != nil {
					return bad
				}
				resp, err := tb.http.Get(ctx, url, tools.StringMapArg(args, "headers"))
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(resp)
			}),

		tools.NewFunc("http_post", "Send an HTTP POST request with form data or a JSON body.",
			tools.Schema(map[string]any{
				"url":     tools.Prop("string", "Request URL"),
				"data":    tools.Prop("object", "Form fields"),
				"json":    tools.Prop("object", "JSON body"),
				"headers": tools.Prop("object", "Request headers"),
			}, "url"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				url, bad := pathArg(args, "url")
				if bad != nil {
					return bad
				}
				data, _ := args["data"].(map[string]any)
				body, _ := args["json"].(map[string]any)
				resp, err := tb.http.Post(ctx, url, PostRequest{
					Data:    data,
					JSON:    body,
					Headers: tools.StringMapArg(args, "headers"),
				})
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(resp)
			}),
	}
}

func textTools() []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("search_text_in_file", "Search a file with a regular expression.",
			tools.Schema(map[string]any{
				"file_path":      tools.Prop("string", "File to search"),
				"pattern":        tools.Prop("string", "Regular expression"),
				"case_sensitive": tools.PropDefault("boolean", "Match case", false),
			}, "file_path", "pattern"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				p, bad := pathArg(args, "file_path")
				if bad != nil {
					return bad
				}
				matches, err := SearchText(p, tools.StringArg(args, "pattern", ""), tools.BoolArg(args, "case_sensitive", false))
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{"file_path": p, "matches": matches, "count": len(matches)})
			}),

		tools.NewFunc("replace_text_in_file", "Replace regular expression matches in a file, keeping a .backup copy.",
			tools.Schema(map[string]any{
				"file_path":      tools.Prop("string", "File to edit"),
				"old_text":       tools.Prop("string", "Regular expression to replace"),
				"new_text":       tools.Prop("string", "Replacement text, \\1 or \\g<name> refers to groups"),
				"case_sensitive": tools.PropDefault("boolean", "Match case", false),
				"backup":         tools.PropDefault("boolean", "Write <file>.backup first", true),
			}, "file_path", "old_text", "new_text"),
			func(_ context.Context, args map[string]any) *tools.ToolResult {
				p, bad := pathArg(args, "file_path")
				if bad != nil {
					return bad
				}
				res, err := ReplaceText(p,
					tools.StringArg(args, "old_text", ""),
					tools.StringArg(args, "new_text", ""),
					tools.BoolArg(args, "case_sensitive", false),
					tools.BoolArg(args, "backup", true))
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(res)
			}),
	}
}

func (tb *Toolbox) commandTools() []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("watch_file_changes", "Watch a file or directory and report changes.",
			tools.Schema(map[string]any{
				"path":     tools.Prop("string", "Path to watch"),
				"duration": tools.PropDefault("integer", "Seconds to watch, at most 300", 60),
			}, "path"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				p, bad := pathArg(args, "path")
				if bad != nil {
					return bad
				}
				d := time.Duration(tools.IntArg(args, "duration", 60)) * time.Second
				changes, err := Watch(ctx, p, d)
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{
					"path":     p,
					"duration": min(d, MaxWatchDuration).Seconds(),
					"changes":  changes,
					"count":    len(changes),
				})
			}),

		tools.NewFunc("execute_command", "Run a shell command. Dangerous commands are refused.",
			tools.Schema(map[string]any{
				"command":           tools.Prop("string", "Command line"),
				"working_directory": tools.Prop("string", "Directory to run in"),
				"timeout":           tools.PropDefault("integer", "Timeout in seconds", config.DefaultCommandTimeout),
			}, "command"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				timeout := time.Duration(tools.IntArg(args, "timeout", 0)) * time.Second
				res, err := tb.exec.Run(ctx, tools.StringArg(args, "command", ""), tools.StringArg(args, "working_directory", ""), timeout)
				if err != nil {
					return fail(err)
				}
				return tools.JSONResult(map[string]any{
					"success":           res.ReturnCode == 0,
					"command":           res.Command,
					"working_directory": res.WorkingDirectory,
					"return_code":       res.ReturnCode,
					"stdout":            res.Stdout,
					"stderr":            res.Stderr,
					"hints":             res.Hints,
				})
			}),
	}
}
