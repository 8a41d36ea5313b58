// Package platform detects the host environment and runs the OS commands
// the desktop adapters delegate to.
package platform

import (
	"os"
	"runtime"
	"strings"
)

// Env describes the host a tool is running on.
type Env struct {
	OS   string // runtime.GOOS
	Arch string
	// WSL is true for Linux running under the Windows Subsystem for Linux.
	// Desktop actions then target the Windows host through powershell.exe.
	WSL bool
	// Display is the X11/Wayland display, empty when headless.
	Display string
}

// Detect inspects the running process.
func Detect() Env {
	procVersion, _ := os.ReadFile("/proc/version")
	display := os.Getenv("DISPLAY")
	if display == "" {
		display = os.Getenv("WAYLAND_DISPLAY")
	}
	return detectFrom(runtime.GOOS, runtime.GOARCH, string(procVersion), display)
}

func detectFrom(goos, arch, procVersion, display string) Env {
	env := Env{OS: goos, Arch: arch, Display: display}
	if goos == "linux" {
		v := strings.ToLower(procVersion)
		env.WSL = strings.Contains(v, "microsoft") || strings.Contains(v, "wsl")
	}
	return env
}

// Name is the label reported in tool results as "system".
func (e Env) Name() string {
	switch {
	case e.WSL:
		return "WSL"
	case e.OS == "darwin":
		return "macOS"
	case e.OS == "windows":
		return "Windows"
	case e.OS == "linux":
		return "Linux"
	default:
		return e.OS
	}
}

// UsesPowerShell reports whether desktop actions go through PowerShell.
func (e Env) UsesPowerShell() bool {
	return e.WSL || e.OS == "windows"
}

func (e Env) IsLinux() bool { return e.OS == "linux" && !e.WSL }
func (e Env) IsMac() bool   { return e.OS == "darwin" }

// PowerShellBin is the executable name for the host shell.
func (e Env) PowerShellBin() string {
	if e.WSL {
		return "powershell.exe"
	}
	return "powershell"
}

// Shell returns the command prefix used to run a free-form command line.
func (e Env) Shell() (string, []string) {
	if e.OS == "windows" {
		return "cmd", []string{"/C"}
	}
	return "/bin/sh", []string{"-c"}
}

// RequiredCommands lists the external programs the desktop adapters use on this host.
func (e Env) RequiredCommands() []string {
	switch {
	case e.UsesPowerShell():
		cmds := []string{e.PowerShellBin()}
		if e.WSL {
			cmds = append(cmds, "wslpath", "cmd.exe")
		}
		return append(cmds, "tesseract")
	case e.IsMac():
		return []string{"osascript", "screencapture", "system_profiler", "tesseract"}
	default:
		return []string{"xdotool", "wmctrl", "xdpyinfo", "xrandr", "gnome-screenshot", "scrot", "import", "xdg-open", "tesseract"}
	}
}
