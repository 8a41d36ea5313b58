package screen

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freitascorp/deskclaw/pkg/platform"
	"github.com/freitascorp/deskclaw/pkg/tools"
)

var linuxEnv = platform.Env{OS: "linux", Display: ":0"}

const xrandrTwo = `Monitors: 2
 0: +*eDP-1 1920/344x1080/193+0+0  eDP-1
 1: +HDMI-1 2560/597x1440/336+1920+0  HDMI-1
`

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
}

func decode(t *testing.T, r *tools.ToolResult) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.ForLLM), &m), r.ForLLM)
	return m
}

func registry(t *testing.T, c *Capturer) *tools.ToolRegistry {
	t.Helper()
	reg := tools.NewToolRegistry()
	require.NoError(t, reg.RegisterAll(Tools(c)...))
	return reg
}

func TestParseXrandrMonitors(t *testing.T) {
	mons, err := ParseXrandrMonitors(xrandrTwo)
	require.NoError(t, err)
	require.Len(t, mons, 2)

	assert.Equal(t, Monitor{Number: 1, Primary: true, Width: 1920, Height: 1080, Right: 1920, Bottom: 1080}, mons[0])
	assert.Equal(t, 1920, mons[1].Left)
	assert.Equal(t, 4480, mons[1].Right)
	assert.False(t, mons[1].Primary)

	_, err = ParseXrandrMonitors("Monitors: 0\n")
	assert.Error(t, err)
}

func TestParseXrandrNegativeOffset(t *testing.T) {
	mons, err := ParseXrandrMonitors(" 0: +DP-2 1280/300x1024/250-1280+0  DP-2\n")
	require.NoError(t, err)
	assert.Equal(t, -1280, mons[0].Left)
	assert.True(t, mons[0].Primary, "lone monitor becomes primary")
}

func TestParseSystemProfiler(t *testing.T) {
	data := []byte(`{"SPDisplaysDataType":[{"spdisplays_ndrvs":[
		{"_name":"DELL","_spdisplays_resolution":"2560 x 1440 @ 60.00Hz"},
		{"_name":"Color LCD","_spdisplays_pixels":"3024 x 1964","spdisplays_main":"spdisplays_yes"}
	]}]}`)
	mons, err := ParseSystemProfiler(data)
	require.NoError(t, err)
	require.Len(t, mons, 2)
	assert.True(t, mons[0].Primary)
	assert.Equal(t, 3024, mons[0].Width)
	assert.Equal(t, 0, mons[0].Left)
	assert.Equal(t, 3024, mons[1].Left)
	assert.Equal(t, 2, mons[1].Number)
}

func TestByNumber(t *testing.T) {
	mons, _ := ParseXrandrMonitors(xrandrTwo)
	m, err := ByNumber(mons, 2)
	require.NoError(t, err)
	assert.Equal(t, 2560, m.Width)

	for _, n := range []int{0, 3, -1} {
		_, err := ByNumber(mons, n)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2 monitor(s) available")
	}
}

func TestVirtualOrigin(t *testing.T) {
	x, y := VirtualOrigin([]Monitor{{Left: 0, Top: 0}, {Left: -1920, Top: -200}})
	assert.Equal(t, -1920, x)
	assert.Equal(t, -200, y)
}

func TestNormalizeFilename(t *testing.T) {
	assert.Equal(t, "shot.png", NormalizeFilename("shot"))
	assert.Equal(t, "shot.PNG", NormalizeFilename("shot.PNG"))
	assert.Equal(t, "screenshot_20260102_030405.png",
		DefaultFilename("screenshot", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestTakeScreenshot_LinuxFallsBackToScrot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "desk.png")
	writePNG(t, path, 64, 48)

	r := platform.NewFakeRunner().
		Fail("gnome-screenshot -f "+path, 1, "no gnome-shell").
		On("scrot -o "+path, "")
	c := NewCapturer(linuxEnv, r, dir)

	res := registry(t, c).Execute(context.Background(), "take_screenshot", map[string]any{"filename": "desk", "return_base64": true})
	require.False(t, res.IsError, res.ForLLM)

	body := decode(t, res)
	assert.Equal(t, "scrot", body["method"])
	assert.Equal(t, float64(64), body["width"])
	assert.Equal(t, float64(48), body["height"])
	assert.NotEmpty(t, body["base64"])
	require.Len(t, res.Images, 1)
	assert.Equal(t, "image/png", res.Images[0].MIMEType)
}

func TestTakeScreenshot_NoToolAvailable(t *testing.T) {
	c := NewCapturer(linuxEnv, platform.NewFakeRunner(), t.TempDir())
	res := registry(t, c).Execute(context.Background(), "take_screenshot", nil)
	require.True(t, res.IsError)
	body := decode(t, res)
	assert.Equal(t, "SCREENSHOT_ERROR", body["code"])
	assert.Contains(t, body["error"], "no screenshot tool succeeded")
}

func TestTakeScreenshot_WSLTranslatesPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wsl.png")
	writePNG(t, path, 10, 10)

	env := platform.Env{OS: "linux", WSL: true}
	r := platform.NewFakeRunner().
		On("wslpath -w "+path, `C:\Users\me\wsl.png`+"\n").
		OnPrefix("powershell.exe", "-1920,0\r\n")
	c := NewCapturer(env, r, dir)

	shot, err := c.Take(context.Background(), "wsl.png", "", nil)
	require.NoError(t, err)
	assert.Equal(t, MethodPowerShellWSL, shot.Method)
	assert.Equal(t, -1920, shot.OriginX)

	last, _ := r.LastCommand()
	assert.Contains(t, last.Args[len(last.Args)-1], `'C:\Users\me\wsl.png'`)
}

func TestTakeScreenshotMonitor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m2.png")
	writePNG(t, path, 25, 14)

	r := platform.NewFakeRunner().
		On("xrandr --listmonitors", xrandrTwo).
		On("import -window root -crop 2560x1440+1920+0 "+path, "")
	reg := registry(t, NewCapturer(linuxEnv, r, dir))

	res := reg.Execute(context.Background(), "take_screenshot_monitor", map[string]any{"monitor_number": float64(2), "filename": "m2.png"})
	require.False(t, res.IsError, res.ForLLM)
	body := decode(t, res)
	assert.Equal(t, "import", body["method"])
	assert.Empty(t, res.Images)

	res = reg.Execute(context.Background(), "take_screenshot_monitor", map[string]any{"monitor_number": float64(5)})
	require.True(t, res.IsError)
	body = decode(t, res)
	assert.Equal(t, float64(2), body["available_monitors"])
}

func TestGetScreenshotInfo(t *testing.T) {
	dir := t.TempDir()
	reg := registry(t, NewCapturer(linuxEnv, platform.NewFakeRunner(), dir))

	res := reg.Execute(context.Background(), "get_screenshot_info", nil)
	require.True(t, res.IsError, "empty dir should fail")

	older := filepath.Join(dir, "screenshot_old.png")
	newer := filepath.Join(dir, "screenshot_new.png")
	writePNG(t, older, 1, 1)
	writePNG(t, newer, 30, 20)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	body := decode(t, reg.Execute(context.Background(), "get_screenshot_info", nil))
	assert.Equal(t, "screenshot_new.png", body["filename"])
	assert.Equal(t, float64(2), body["total_screenshots"])
	assert.Equal(t, float64(30), body["width"])
}

func TestListMonitorsTool_PowerShellSingleObject(t *testing.T) {
	env := platform.Env{OS: "windows"}
	r := platform.NewFakeRunner().OnPrefix("powershell -NoProfile",
		`{"MonitorNumber":1,"IsPrimary":true,"Left":0,"Top":0,"Width":1920,"Height":1080}`)
	body := decode(t, registry(t, NewCapturer(env, r, t.TempDir())).Execute(context.Background(), "list_monitors", nil))
	assert.Equal(t, float64(1), body["count"])
	mons := body["monitors"].([]any)
	first := mons[0].(map[string]any)
	assert.Equal(t, float64(1080), first["bottom"])
	assert.True(t, strings.EqualFold(body["system"].(string), "windows"))
}
