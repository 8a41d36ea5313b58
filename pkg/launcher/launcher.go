// Package launcher opens the DingTalk desktop client.
package launcher

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/freitascorp/deskclaw/pkg/logger"
	"github.com/freitascorp/deskclaw/pkg/platform"
)

// AttemptTimeout bounds each launch attempt.
const AttemptTimeout = 5 * time.Second

// WindowsPaths are the usual DingTalk install locations.
var WindowsPaths = []string{
	`C:\Program Files (x86)\DingDing\DingtalkLauncher.exe`,
	`C:\Program Files\DingDing\DingtalkLauncher.exe`,
	`D:\Program Files (x86)\DingDing\DingtalkLauncher.exe`,
	`D:\Program Files\DingDing\DingtalkLauncher.exe`,
}

const (
	protocolURL = "dingtalk://"
	macAppPath  = "/Applications/DingTalk.app"
)

// Attempt is one launch command and how it went.
type Attempt struct {
	Method string `json:"method"`
	Error  string `json:"error,omitempty"`
}

// Result reports the outcome of Open.
type Result struct {
	Success  bool      `json:"success"`
	Method   string    `json:"method,omitempty"`
	System   string    `json:"system"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

// ErrNotLaunched is returned when every launch command failed.
var ErrNotLaunched = errors.New("could not open DingTalk: every launch method failed, make sure it is installed")

// Launcher runs the platform's launch chain.
type Launcher struct {
	env    platform.Env
	runner platform.Runner
	exists func(string) bool
}

func New(env platform.Env, runner platform.Runner) *Launcher {
	return &Launcher{env: env, runner: runner, exists: fileExists}
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Chain returns the launch commands tried on this host, in order.
func (l *Launcher) Chain() []platform.Command {
	var chain []platform.Command
	switch {
	case l.env.WSL:
		for _, p := range WindowsPaths[:2] {
			chain = append(chain, platform.Command{Name: "powershell.exe", Args: []string{"-NoProfile", "-Command", "Start-Process " + platform.PSQuote(p)}})
		}
		chain = append(chain,
			platform.Command{Name: "powershell.exe", Args: []string{"-NoProfile", "-Command", "Start-Process " + platform.PSQuote(protocolURL)}},
			platform.Command{Name: "cmd.exe", Args: []string{"/c", "start", `""`, protocolURL}},
		)
	case l.env.OS == "windows":
		chain = []platform.Command{
			{Name: "cmd", Args: []string{"/c", "start", `""`, protocolURL}},
			{Name: "cmd", Args: []string{"/c", "start", `""`, WindowsPaths[0]}},
		}
	case l.env.IsMac():
		chain = []platform.Command{{Name: "open", Args: []string{"-a", "DingTalk"}}}
	default:
		chain = []platform.Command{
			{Name: "xdg-open", Args: []string{protocolURL}},
			{Name: "dingtalk"},
		}
	}
	for i := range chain {
		chain[i].Timeout = AttemptTimeout
	}
	return chain
}

// Open tries each launch command until one exits 0.
func (l *Launcher) Open(ctx context.Context) (Result, error) {
	res := Result{System: l.env.Name()}
	for _, cmd := range l.Chain() {
		_, err := l.runner.Run(ctx, cmd)
		if err == nil {
			res.Success = true
			res.Method = cmd.String()
			logger.InfoCF("launcher", "Opened DingTalk", map[string]any{"method": res.Method})
			return res, nil
		}
		logger.DebugCF("launcher", "Launch attempt failed", map[string]any{"method": cmd.String(), "error": err.Error()})
		res.Attempts = append(res.Attempts, Attempt{Method: cmd.String(), Error: err.Error()})
		if ctx.Err() != nil {
			break
		}
	}
	return res, ErrNotLaunched
}

// Installation reports whether DingTalk was found.
type Installation struct {
	Installed    bool     `json:"installed"`
	Path         string   `json:"path,omitempty"`
	System       string   `json:"system"`
	CheckedPaths []string `json:"checked_paths"`
}

// CheckInstalled looks for DingTalk in the usual places for this host.
func (l *Launcher) CheckInstalled() Installation {
	inst := Installation{System: l.env.Name()}
	switch {
	case l.env.UsesPowerShell():
		for _, p := range WindowsPaths {
			local := p
			if l.env.WSL {
				local = MountPath(p)
			}
			inst.CheckedPaths = append(inst.CheckedPaths, local)
			if !inst.Installed && l.exists(local) {
				inst.Installed, inst.Path = true, p
			}
		}
	case l.env.IsMac():
		inst.CheckedPaths = []string{macAppPath}
		if l.exists(macAppPath) {
			inst.Installed, inst.Path = true, macAppPath
		}
	default:
		inst.CheckedPaths = []string{"$PATH/dingtalk"}
		if p, err := l.runner.LookPath("dingtalk"); err == nil {
			inst.Installed, inst.Path = true, p
		}
	}
	return inst
}

// MountPath maps a Windows drive path onto its WSL mount, e.g.
// C:\Program Files -> /mnt/c/Program Files.
func MountPath(winPath string) string {
	if len(winPath) < 2 || winPath[1] != ':' {
		return strings.ReplaceAll(winPath, `\`, "/")
	}
	drive := strings.ToLower(winPath[:1])
	return "/mnt/" + drive + strings.ReplaceAll(winPath[2:], `\`, "/")
}
