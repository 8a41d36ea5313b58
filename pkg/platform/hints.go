package platform

import (
	"fmt"
	"regexp"
	"strings"
)

// installHint pairs an error pattern with the fix a caller can relay.
type installHint struct {
	pattern *regexp.Regexp
	hint    string
}

// installHints is tested in order; all matching hints are returned.
var installHints = []installHint{
	{
		pattern: regexp.MustCompile(`(?i)\bxdotool\b.*(not found|no such file)`),
		hint:    `HINT: xdotool is missing. Install it with "sudo apt-get install xdotool" (Debian/Ubuntu) or "sudo dnf install xdotool".`,
	},
	{
		pattern: regexp.MustCompile(`(?i)\bwmctrl\b.*(not found|no such file)`),
		hint:    `HINT: wmctrl is missing. Install it with "sudo apt-get install wmctrl".`,
	},
	{
		pattern: regexp.MustCompile(`(?i)\bxdpyinfo\b.*(not found|no such file)`),
		hint:    `HINT: xdpyinfo is part of x11-utils. Install it with "sudo apt-get install x11-utils".`,
	},
	{
		pattern: regexp.MustCompile(`(?i)\bxrandr\b.*(not found|no such file)`),
		hint:    `HINT: xrandr is part of x11-xserver-utils. Install it with "sudo apt-get install x11-xserver-utils".`,
	},
	{
		pattern: regexp.MustCompile(`(?i)\btesseract\b.*(not found|no such file)`),
		hint:    `HINT: OCR needs the tesseract CLI. Install "tesseract-ocr" (apt), "tesseract" (brew) or the UB Mannheim build on Windows, plus language data such as tesseract-ocr-chi-sim for Chinese text.`,
	},
	{
		pattern: regexp.MustCompile(`(?i)\b(gnome-screenshot|scrot|import)\b.*(not found|no such file)`),
		hint:    `HINT: No screenshot utility found. Install one of gnome-screenshot, scrot or imagemagick ("import").`,
	},
	{
		pattern: regexp.MustCompile(`(?i)powershell(\.exe)?\b.*(not found|no such file)`),
		hint:    `HINT: powershell.exe is not reachable. Under WSL make sure Windows interop is enabled ([interop] enabled=true in /etc/wsl.conf) and that /mnt/c/Windows/System32/WindowsPowerShell/v1.0 is on PATH.`,
	},
	{
		pattern: regexp.MustCompile(`(?i)wslpath.*(not found|no such file)`),
		hint:    `HINT: wslpath is only available inside WSL.`,
	},
	{
		pattern: regexp.MustCompile(`(?i)can(no|')t open display|unable to open display|no display`),
		hint:    `HINT: No X display is available. Run inside a desktop session or export DISPLAY (for example DISPLAY=:0).`,
	},
	{
		pattern: regexp.MustCompile(`(?i)permission denied|operation not permitted`),
		hint:    `HINT: Permission denied. On macOS grant Accessibility and Screen Recording permission to the terminal running deskclaw.`,
	},
	{
		pattern: regexp.MustCompile(`(?i)executable file not found|command not found|not recognized as.*command`),
		hint:    `HINT: Command not found. Check that the tool is installed and on PATH ("deskclaw platform" lists what this host needs).`,
	},
}

// InstallHints returns every hint matching the error text.
func InstallHints(output string) []string {
	if output == "" {
		return nil
	}
	var hints []string
	seen := make(map[string]bool)
	for _, h := range installHints {
		if h.pattern.MatchString(output) && !seen[h.hint] {
			hints = append(hints, h.hint)
			seen[h.hint] = true
		}
	}
	return hints
}

// EnrichError appends matching hints to output.
func EnrichError(output string) string {
	hints := InstallHints(output)
	if len(hints) == 0 {
		return output
	}
	return fmt.Sprintf("%s\n\n---\n%s", output, strings.Join(hints, "\n\n"))
}

// HintedError wraps err with install hints so the caller sees the fix.
type HintedError struct {
	Err   error
	Hints []string
}

func (e *HintedError) Error() string {
	if len(e.Hints) == 0 {
		return e.Err.Error()
	}
	return e.Err.Error() + " (" + strings.Join(e.Hints, " ") + ")"
}

func (e *HintedError) Unwrap() error { return e.Err }

// WithHints wraps err when it matches any hint; otherwise it returns err unchanged.
func WithHints(err error) error {
	if err == nil {
		return nil
	}
	hints := InstallHints(err.Error())
	if len(hints) == 0 {
		return err
	}
	return &HintedError{Err: err, Hints: hints}
}
