// DeskClaw - Desktop and SaaS tool adapters over MCP
// License: MIT
//
// Copyright (c) 2026 DeskClaw contributors

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/freitascorp/deskclaw/pkg/browser"
	"github.com/freitascorp/deskclaw/pkg/config"
	"github.com/freitascorp/deskclaw/pkg/dingtalk"
	"github.com/freitascorp/deskclaw/pkg/excel"
	"github.com/freitascorp/deskclaw/pkg/humanop"
	"github.com/freitascorp/deskclaw/pkg/launcher"
	"github.com/freitascorp/deskclaw/pkg/logger"
	"github.com/freitascorp/deskclaw/pkg/mcp"
	"github.com/freitascorp/deskclaw/pkg/monitor"
	"github.com/freitascorp/deskclaw/pkg/mouse"
	"github.com/freitascorp/deskclaw/pkg/platform"
	"github.com/freitascorp/deskclaw/pkg/screen"
	"github.com/freitascorp/deskclaw/pkg/smartmouse"
	"github.com/freitascorp/deskclaw/pkg/toolbox"
	"github.com/freitascorp/deskclaw/pkg/tools"
	"github.com/freitascorp/deskclaw/pkg/window"
)

// deps is what an adapter needs to build its tools.
type deps struct {
	cfg    *config.Config
	env    platform.Env
	runner platform.Runner

	browser *browser.Manager
	closers []func() error
}

func newDeps(cfg *config.Config, env platform.Env, runner platform.Runner) *deps {
	return &deps{cfg: cfg, env: env, runner: runner}
}

// browserManager returns the shared browser manager, creating it on first use.
// The browser itself only starts on the first browser tool call.
func (d *deps) browserManager() *browser.Manager {
	if d.browser == nil {
		d.browser = browser.NewManager(browser.ConfigFrom(d.cfg.Browser))
		d.closers = append(d.closers, d.browser.Close)
	}
	return d.browser
}

func (d *deps) capturer() *screen.Capturer {
	return screen.NewCapturer(d.env, d.runner, d.cfg.Screenshot.OutputDir)
}

// Close releases everything the adapters started.
func (d *deps) Close() {
	for _, fn := range d.closers {
		if err := fn(); err != nil {
			logger.WarnCF("cli", "Shutdown error", map[string]any{"error": err.Error()})
		}
	}
	d.closers = nil
}

type adapter struct {
	name         string
	server       string
	instructions string
	build        func(d *deps) ([]tools.Tool, error)
}

var adapters = []adapter{
	{
		name:         "mouse",
		server:       mouse.ServerName,
		instructions: "Reports the current mouse cursor position.",
		build: func(d *deps) ([]tools.Tool, error) {
			return mouse.Tools(mouse.NewController(d.env, d.runner)), nil
		},
	},
	{
		name:         "screenshot",
		server:       screen.ServerName,
		instructions: "Captures the screen or a region and runs OCR on captures.",
		build: func(d *deps) ([]tools.Tool, error) {
			return screen.Tools(d.capturer()), nil
		},
	},
	{
		name:         "window",
		server:       window.ServerName,
		instructions: "Lists, focuses, arranges and splits desktop windows.",
		build: func(d *deps) ([]tools.Tool, error) {
			return window.Tools(window.NewManager(d.env, d.runner)), nil
		},
	},
	{
		name:         "monitor",
		server:       monitor.ServerName,
		instructions: "Moves windows between monitors.",
		build: func(d *deps) ([]tools.Tool, error) {
			return monitor.Tools(monitor.NewMover(d.env, d.runner)), nil
		},
	},
	{
		name:         "smart-mouse",
		server:       smartmouse.ServerName,
		instructions: "Finds text on screen with OCR and moves or clicks the mouse on it.",
		build: func(d *deps) ([]tools.Tool, error) {
			return smartmouse.Tools(smartmouse.NewTargeter(d.env, d.runner, d.capturer())), nil
		},
	},
	{
		name:         "dingtalk",
		server:       dingtalk.ServerName,
		instructions: "Reads and edits DingTalk documents.",
		build: func(d *deps) ([]tools.Tool, error) {
			if err := d.cfg.ValidateDingTalk(); err != nil {
				return nil, err
			}
			return dingtalk.Tools(dingtalk.NewClient(d.cfg.DingTalk)), nil
		},
	},
	{
		name:         "open-dingtalk",
		server:       launcher.ServerName,
		instructions: "Launches the DingTalk desktop client.",
		build: func(d *deps) ([]tools.Tool, error) {
			return launcher.Tools(launcher.New(d.env, d.runner)), nil
		},
	},
	{
		name:         "browser",
		server:       browser.ServerName,
		instructions: "Drives a Chromium browser with persistent sessions. Call browser_get_state to see indexed elements.",
		build: func(d *deps) ([]tools.Tool, error) {
			return browser.Tools(d.browserManager()), nil
		},
	},
	{
		name:         "human-op",
		server:       humanop.ServerName,
		instructions: "Simulates human mouse, keyboard and clipboard operations.",
		build: func(d *deps) ([]tools.Tool, error) {
			return humanop.Tools(humanop.NewSimulator()), nil
		},
	},
	{
		name:         "toolbox",
		server:       toolbox.ServerName,
		instructions: "Runs shell commands and inspects files, processes, the network and the system.",
		build: func(d *deps) ([]tools.Tool, error) {
			return toolbox.Tools(toolbox.New(d.env, d.runner, d.cfg.Toolbox)), nil
		},
	},
	{
		name:         "excel",
		server:       excel.ServerName,
		instructions: "Scans a workspace of Excel workbooks and merges them into one report.",
		build: func(d *deps) ([]tools.Tool, error) {
			return excel.Tools(d.cfg.Excel.Workspace), nil
		},
	},
}

func adapterNames() []string {
	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = a.name
	}
	sort.Strings(names)
	return names
}

func findAdapter(name string) (adapter, error) {
	for _, a := range adapters {
		if a.name == name {
			return a, nil
		}
	}
	return adapter{}, fmt.Errorf("unknown adapter %q (available: %s, all)", name, strings.Join(adapterNames(), ", "))
}

// registryFor builds the registry served for name. "all" registers every
// adapter whose prerequisites are met and skips the rest with a warning.
// When two adapters share a tool name the first one keeps it. The combined
// server also carries the selector driven "browser" tool.
func registryFor(name string, d *deps) (*tools.ToolRegistry, adapter, error) {
	reg := tools.NewToolRegistry()
	if name != "all" {
		a, err := findAdapter(name)
		if err != nil {
			return nil, adapter{}, err
		}
		ts, err := a.build(d)
		if err != nil {
			return nil, adapter{}, fmt.Errorf("%s: %w", a.name, err)
		}
		if err := reg.RegisterAll(ts...); err != nil {
			return nil, adapter{}, err
		}
		return reg, a, nil
	}

	for _, a := range adapters {
		ts, err := a.build(d)
		if err != nil {
			logger.WarnCF("cli", "Skipping adapter", map[string]any{"adapter": a.name, "error": err.Error()})
			continue
		}
		for _, t := range ts {
			if _, dup := reg.Get(t.Name()); dup {
				logger.DebugCF("cli", "Tool already registered", map[string]any{"adapter": a.name, "tool": t.Name()})
				continue
			}
			if err := reg.Register(t); err != nil {
				return nil, adapter{}, err
			}
		}
	}
	if d.browser != nil {
		if err := reg.Register(browser.NewBrowserToolWithManager(d.browser)); err != nil {
			return nil, adapter{}, err
		}
	}
	all := adapter{
		name:         "all",
		server:       mcp.ServerName,
		instructions: "DeskClaw desktop, browser, document and workbook tools in one server.",
	}
	return reg, all, nil
}
