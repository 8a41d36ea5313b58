// DeskClaw - Desktop and SaaS tool adapters over MCP
// License: MIT
//
// Copyright (c) 2026 DeskClaw contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/freitascorp/deskclaw/pkg/audit"
	"github.com/freitascorp/deskclaw/pkg/config"
	"github.com/freitascorp/deskclaw/pkg/excel"
	"github.com/freitascorp/deskclaw/pkg/logger"
	"github.com/freitascorp/deskclaw/pkg/mcp"
	"github.com/freitascorp/deskclaw/pkg/observability"
	"github.com/freitascorp/deskclaw/pkg/platform"
)

// ------------------------------------------------------------------
// Global flags
// ------------------------------------------------------------------

var (
	flagDebug       bool
	flagLogJSON     bool
	flagConfig      string
	flagAudit       bool
	flagMetricsAddr string
)

func openAuditStore(cfg *config.Config) (audit.Store, error) {
	return audit.Open(cfg.Audit.Backend, config.ExpandPath(cfg.Audit.Dir))
}

// ------------------------------------------------------------------
// Root command
// ------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "deskclaw",
		Short: "DeskClaw - Desktop and SaaS tool adapters over MCP",
		Long: `DeskClaw exposes desktop automation, a persistent browser, DingTalk documents,
a developer toolbox and an Excel aggregator as MCP servers over stdio.

Every tool call can be written to an audit log and counted in Prometheus metrics.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				logger.SetLevel(logger.DEBUG)
			}
			logger.SetJSON(flagLogJSON)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Write logs as JSON lines")
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Config file (default ~/.deskclaw/config.json)")
	root.PersistentFlags().BoolVar(&flagAudit, "audit", false, "Record every tool call in the audit log")
	root.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	root.AddCommand(
		newServeCmd(),
		newToolsCmd(),
		newVersionCmd(),
		newAuditCmd(),
		newExcelCmd(),
		newPlatformCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

// ------------------------------------------------------------------
// `deskclaw serve` - Run an MCP server on stdio
// ------------------------------------------------------------------

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve <adapter|all>",
		Short: "Run an MCP server on stdin/stdout",
		Long: `Run one adapter as an MCP stdio server, or every adapter in one server with "all".

Adapters: ` + strings.Join(adapterNames(), ", "),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			d := newDeps(cfg, platform.Detect(), platform.NewExecRunner())
			defer d.Close()

			reg, a, err := registryFor(args[0], d)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var observers []mcp.Observer

			var auditLog *audit.Logger
			if flagAudit || cfg.Audit.Enabled {
				store, err := openAuditStore(cfg)
				if err != nil {
					return err
				}
				defer store.Close()
				auditLog = audit.NewLogger(store, currentUser())
				observers = append(observers, auditLog)
			}

			addr := flagMetricsAddr
			if addr == "" {
				addr = cfg.Metrics.Addr
			}
			if addr != "" {
				metrics := observability.NewToolMetrics()
				observers = append(observers, metrics)
				shutdown := serveMetrics(addr, metrics.Handler())
				defer shutdown()
			}

			srv := mcp.NewServer(reg, mcp.Options{
				Name:         a.server,
				Version:      version,
				Instructions: a.instructions,
				Observers:    observers,
			})

			if auditLog != nil {
				_ = auditLog.LogServer(ctx, audit.EventServerStart, a.server, reg.Count())
				defer func() {
					_ = auditLog.LogServer(context.Background(), audit.EventServerStop, a.server, reg.Count())
				}()
			}

			if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// serveMetrics starts the metrics listener in the background and returns a
// function that stops it.
func serveMetrics(addr string, h http.Handler) func() {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.InfoCF("cli", "Metrics listening", map[string]any{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("cli", "Metrics server failed", map[string]any{"error": err.Error()})
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// ------------------------------------------------------------------
// `deskclaw tools` - List tool names
// ------------------------------------------------------------------

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools [adapter|all]",
		Short: "List the tools an adapter serves",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "all"
			if len(args) == 1 {
				name = args[0]
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			d := newDeps(cfg, platform.Detect(), platform.NewExecRunner())
			defer d.Close()

			reg, a, err := registryFor(name, d)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%d tools)\n\n", a.server, reg.Count())
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDESCRIPTION")
			for _, toolName := range reg.List() {
				t, _ := reg.Get(toolName)
				fmt.Fprintf(w, "%s\t%s\n", toolName, firstSentence(t.Description()))
			}
			return w.Flush()
		},
	}
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}

// ------------------------------------------------------------------
// `deskclaw audit` - Audit log queries
// ------------------------------------------------------------------

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the tool call audit log",
	}

	cmd.AddCommand(
		newAuditListCmd(),
		newAuditExportCmd(),
	)

	return cmd
}

func newAuditListCmd() *cobra.Command {
	var (
		flagUser   string
		flagServer string
		flagTool   string
		flagStatus string
		flagSince  string
		flagLimit  int
		flagJSON   bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List audit events",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openAuditStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			since, err := audit.Since(flagSince, time.Now())
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			events, err := store.Query(cmd.Context(), audit.QueryOptions{
				User:   flagUser,
				Server: flagServer,
				Tool:   flagTool,
				Status: flagStatus,
				Since:  since,
				Limit:  flagLimit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flagJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if events == nil {
					events = []*audit.Event{}
				}
				return enc.Encode(events)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "No audit events found.")
				return nil
			}
			return printEvents(out, events)
		},
	}

	cmd.Flags().StringVar(&flagUser, "user", "", "Filter by user")
	cmd.Flags().StringVar(&flagServer, "server", "", "Filter by MCP server name")
	cmd.Flags().StringVar(&flagTool, "tool", "", "Filter by tool name")
	cmd.Flags().StringVar(&flagStatus, "status", "", "Filter by status (success, failure)")
	cmd.Flags().StringVar(&flagSince, "since", "", "Only events newer than a duration (24h) or an RFC 3339 time")
	cmd.Flags().IntVar(&flagLimit, "limit", 50, "Max events to show")
	cmd.Flags().BoolVar(&flagJSON, "json", false, "Output in JSON format")

	return cmd
}

func printEvents(out io.Writer, events []*audit.Event) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tUSER\tTYPE\tSERVER\tTOOL\tSTATUS\tDURATION\tERROR")
	for _, e := range events {
		status, dur, msg := "", "", ""
		if e.Result != nil {
			status = e.Result.Status
			dur = (time.Duration(e.Result.DurationMS) * time.Millisecond).String()
			msg = e.Result.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.User, e.Type, e.Server, e.Tool, status, dur, msg)
	}
	return w.Flush()
}

func newAuditExportCmd() *cobra.Command {
	var (
		flagSince  string
		flagOutput string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export audit events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openAuditStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			since, err := audit.Since(flagSince, time.Now())
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			events, err := store.Export(cmd.Context(), since)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flagOutput != "" {
				f, err := os.OpenFile(flagOutput, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := audit.WriteJSONL(out, events); err != nil {
				return err
			}
			if flagOutput != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d events to %s\n", len(events), flagOutput)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagSince, "since", "24h", "Export events newer than a duration or an RFC 3339 time (empty for all)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Write to a file instead of stdout")

	return cmd
}

// ------------------------------------------------------------------
// `deskclaw excel` - Offline workbook aggregation
// ------------------------------------------------------------------

func newExcelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "excel",
		Short: "Work with Excel workspaces without an MCP client",
	}
	cmd.AddCommand(newExcelAggregateCmd())
	return cmd
}

func newExcelAggregateCmd() *cobra.Command {
	var (
		flagMaxRows int
		flagOutput  string
	)

	cmd := &cobra.Command{
		Use:   "aggregate [workspace]",
		Short: "Merge every workbook in a directory into one text report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := ""
			if len(args) == 1 {
				workspace = args[0]
			} else {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				workspace = cfg.Excel.Workspace
			}
			if workspace == "" {
				return errors.New("no workspace given and excel.workspace is not configured")
			}

			agg := excel.New(workspace)
			agg.MaxRows = flagMaxRows
			rep, err := agg.Aggregate()
			if err != nil {
				return err
			}

			if flagOutput != "" {
				if err := os.WriteFile(flagOutput, []byte(rep.Text), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote report for %d files (%d failed) to %s\n",
					rep.Succeeded+rep.Failed, rep.Failed, flagOutput)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), rep.Text)
			return nil
		},
	}

	cmd.Flags().IntVar(&flagMaxRows, "max-rows", excel.DefaultMaxRows, "Rows rendered per file")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Write the report to a file")

	return cmd
}

// ------------------------------------------------------------------
// `deskclaw platform` - Host detection
// ------------------------------------------------------------------

func newPlatformCmd() *cobra.Command {
	var flagJSON bool

	cmd := &cobra.Command{
		Use:   "platform",
		Short: "Show the detected host and the external commands the adapters need",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printPlatform(cmd.OutOrStdout(), platform.Detect(), platform.NewExecRunner(), flagJSON)
		},
	}
	cmd.Flags().BoolVar(&flagJSON, "json", false, "Output in JSON format")
	return cmd
}

type commandStatus struct {
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Found bool   `json:"found"`
}

func printPlatform(out io.Writer, env platform.Env, runner platform.Runner, asJSON bool) error {
	var cmds []commandStatus
	for _, name := range env.RequiredCommands() {
		path, err := runner.LookPath(name)
		cmds = append(cmds, commandStatus{Name: name, Path: path, Found: err == nil})
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"system":     env.Name(),
			"os":         env.OS,
			"arch":       env.Arch,
			"wsl":        env.WSL,
			"display":    env.Display,
			"powershell": env.UsesPowerShell(),
			"commands":   cmds,
		})
	}

	fmt.Fprintf(out, "System:     %s (%s/%s)\n", env.Name(), env.OS, env.Arch)
	display := env.Display
	if display == "" {
		display = "(none)"
	}
	fmt.Fprintf(out, "Display:    %s\n", display)
	fmt.Fprintf(out, "PowerShell: %v\n\n", env.UsesPowerShell())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMMAND\tSTATUS\tPATH")
	for _, c := range cmds {
		status := "missing"
		if c.Found {
			status = "ok"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, status, c.Path)
	}
	return w.Flush()
}
