package screen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/freitascorp/deskclaw/pkg/logger"
	"github.com/freitascorp/deskclaw/pkg/mouse"
	"github.com/freitascorp/deskclaw/pkg/platform"
)

const (
	MethodPowerShell    = "powershell"
	MethodPowerShellWSL = "powershell_wsl"
	MethodScreencapture = "screencapture"
	MethodGnome         = "gnome-screenshot"
	MethodScrot         = "scrot"
	MethodImport        = "import"
)

// Shot describes a saved screenshot. OriginX/OriginY is where pixel (0,0)
// of the image sits in virtual-screen coordinates.
type Shot struct {
	Path      string `json:"filepath"`
	Filename  string `json:"filename"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int64  `json:"size_bytes"`
	Method    string `json:"method"`
	OriginX   int    `json:"-"`
	OriginY   int    `json:"-"`
}

// Base64 reads the saved image back as base64.
func (s Shot) Base64() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Capturer saves screenshots into a default directory.
type Capturer struct {
	env    platform.Env
	runner platform.Runner
	dir    string
	now    func() time.Time
}

func NewCapturer(env platform.Env, runner platform.Runner, outputDir string) *Capturer {
	return &Capturer{env: env, runner: runner, dir: outputDir, now: time.Now}
}

func (c *Capturer) Env() platform.Env             { return c.env }
func (c *Capturer) Runner() platform.Runner       { return c.runner }
func (c *Capturer) OutputDir() string             { return c.dir }
func (c *Capturer) SetClock(now func() time.Time) { c.now = now }

// DefaultFilename is screenshot_YYYYMMDD_HHMMSS.png.
func DefaultFilename(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.png", prefix, t.Format("20060102_150405"))
}

// NormalizeFilename appends .png when missing.
func NormalizeFilename(name string) string {
	if !strings.HasSuffix(strings.ToLower(name), ".png") {
		return name + ".png"
	}
	return name
}

// Take captures the full screen (rect == nil) or a rectangle into dir/filename.
// Empty dir and filename fall back to the defaults.
func (c *Capturer) Take(ctx context.Context, filename, dir string, rect *Rect) (Shot, error) {
	if dir == "" {
		dir = c.dir
	}
	if filename == "" {
		prefix := "screenshot"
		if rect != nil {
			prefix = "screenshot_region"
		}
		filename = DefaultFilename(prefix, c.now())
	}
	filename = NormalizeFilename(filepath.Base(filename))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Shot{}, fmt.Errorf("create output dir: %w", err)
	}
	return c.Capture(ctx, filepath.Join(dir, filename), rect)
}

// Capture writes a PNG to path and reports its dimensions.
func (c *Capturer) Capture(ctx context.Context, path string, rect *Rect) (Shot, error) {
	shot := Shot{Path: path, Filename: filepath.Base(path)}

	var err error
	switch {
	case c.env.UsesPowerShell():
		shot.Method, shot.OriginX, shot.OriginY, err = c.capturePowerShell(ctx, path, rect)
	case c.env.IsMac():
		shot.Method, err = c.captureMac(ctx, path, rect)
	default:
		shot.Method, err = c.captureLinux(ctx, path, rect)
	}
	if err != nil {
		return Shot{}, err
	}

	if !c.env.UsesPowerShell() {
		if rect != nil {
			shot.OriginX, shot.OriginY = rect.Left, rect.Top
		} else if mons, err := ListMonitors(ctx, c.env, c.runner); err == nil {
			shot.OriginX, shot.OriginY = VirtualOrigin(mons)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return Shot{}, fmt.Errorf("screenshot was not written by %s: %w", shot.Method, err)
	}
	shot.SizeBytes = info.Size()
	shot.Width, shot.Height, err = Dimensions(path)
	if err != nil {
		return Shot{}, err
	}
	logger.DebugCF("screen", "Captured screenshot", map[string]any{
		"path":   path,
		"method": shot.Method,
		"width":  shot.Width,
		"height": shot.Height,
	})
	return shot, nil
}

func (c *Capturer) capturePowerShell(ctx context.Context, path string, rect *Rect) (string, int, int, error) {
	method := MethodPowerShell
	target := path
	if c.env.WSL {
		method = MethodPowerShellWSL
		winPath, err := platform.WindowsPath(ctx, c.runner, path)
		if err != nil {
			return "", 0, 0, platform.WithHints(err)
		}
		target = winPath
	}

	bounds := "$b = [System.Windows.Forms.Screen]::PrimaryScreen.Bounds"
	if rect != nil {
		bounds = fmt.Sprintf("$b = New-Object System.Drawing.Rectangle(%d, %d, %d, %d)",
			rect.Left, rect.Top, rect.Width, rect.Height)
	}
	script := "Add-Type -AssemblyName System.Windows.Forms; Add-Type -AssemblyName System.Drawing; " +
		bounds + "; " +
		"$bmp = New-Object System.Drawing.Bitmap $b.Width, $b.Height; " +
		"$g = [System.Drawing.Graphics]::FromImage($bmp); " +
		"$g.CopyFromScreen($b.Left, $b.Top, 0, 0, $bmp.Size); " +
		"$bmp.Save(" + platform.PSQuote(target) + ", [System.Drawing.Imaging.ImageFormat]::Png); " +
		"$g.Dispose(); $bmp.Dispose(); " +
		`Write-Output "$($b.Left),$($b.Top)"`

	out, err := platform.PowerShell(ctx, c.runner, c.env, script)
	if err != nil {
		return "", 0, 0, platform.WithHints(fmt.Errorf("capture screen: %w", err))
	}
	origin, err := mouse.ParseCommaPair(lastLine(out))
	if err != nil {
		return method, 0, 0, nil
	}
	return method, origin.X, origin.Y, nil
}

func (c *Capturer) captureMac(ctx context.Context, path string, rect *Rect) (string, error) {
	args := []string{"-x"}
	if rect != nil {
		args = append(args, "-R", fmt.Sprintf("%d,%d,%d,%d", rect.Left, rect.Top, rect.Width, rect.Height))
	}
	args = append(args, path)
	if _, err := platform.Run(ctx, c.runner, "screencapture", args...); err != nil {
		return "", platform.WithHints(fmt.Errorf("screencapture: %w", err))
	}
	return MethodScreencapture, nil
}

type attempt struct {
	method string
	name   string
	args   []string
}

func (c *Capturer) captureLinux(ctx context.Context, path string, rect *Rect) (string, error) {
	var chain []attempt
	if rect == nil {
		chain = []attempt{
			{MethodGnome, "gnome-screenshot", []string{"-f", path}},
			{MethodScrot, "scrot", []string{"-o", path}},
			{MethodImport, "import", []string{"-window", "root", path}},
		}
	} else {
		geom := fmt.Sprintf("%dx%d+%d+%d", rect.Width, rect.Height, rect.Left, rect.Top)
		area := strings.Join([]string{
			strconv.Itoa(rect.Left), strconv.Itoa(rect.Top), strconv.Itoa(rect.Width), strconv.Itoa(rect.Height),
		}, ",")
		chain = []attempt{
			{MethodImport, "import", []string{"-window", "root", "-crop", geom, path}},
			{MethodScrot, "scrot", []string{"-o", "-a", area, path}},
		}
	}

	var errs []error
	for _, a := range chain {
		if _, err := platform.Run(ctx, c.runner, a.name, a.args...); err != nil {
			logger.DebugCF("screen", "Capture method failed", map[string]any{"method": a.method, "error": err.Error()})
			errs = append(errs, fmt.Errorf("%s: %w", a.method, err))
			continue
		}
		return a.method, nil
	}
	return "", platform.WithHints(fmt.Errorf("no screenshot tool succeeded: %w", errors.Join(errs...)))
}

// Dimensions reads the width and height from an image header.
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return cfg.Width, cfg.Height, nil
}

// Info describes the newest screenshot in a directory.
type Info struct {
	Path      string    `json:"filepath"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Modified  time.Time `json:"modified"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Total     int       `json:"total_screenshots"`
}

// Latest finds the most recently modified screenshot_*.png in dir.
func Latest(dir string) (Info, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "screenshot_*.png"))
	if err != nil {
		return Info{}, err
	}
	type entry struct {
		path string
		info os.FileInfo
	}
	var entries []entry
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || fi.IsDir() {
			continue
		}
		entries = append(entries, entry{m, fi})
	}
	if len(entries) == 0 {
		return Info{}, fmt.Errorf("no screenshots found in %s", dir)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].info.ModTime().After(entries[j].info.ModTime())
	})

	newest := entries[0]
	info := Info{
		Path:      newest.path,
		Filename:  filepath.Base(newest.path),
		SizeBytes: newest.info.Size(),
		Modified:  newest.info.ModTime(),
		Total:     len(entries),
	}
	info.Width, info.Height, _ = Dimensions(newest.path)
	return info, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
