package monitor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freitascorp/deskclaw/pkg/platform"
	"github.com/freitascorp/deskclaw/pkg/screen"
	"github.com/freitascorp/deskclaw/pkg/tools"
)

var linuxEnv = platform.Env{OS: "linux", Display: ":0"}

const xrandrTwo = `Monitors: 2
 0: +*eDP-1 1920/344x1080/193+0+0  eDP-1
 1: +HDMI-1 2560/597x1440/336+1920+0  HDMI-1
`

const wmctrlOut = `0x03c00003  0 0    27   1920 1053 myhost Terminal - bash
0x05a00001  0 10   10   1280 1024 myhost DingTalk
`

func newRegistry(t *testing.T, r platform.Runner) *tools.ToolRegistry {
	t.Helper()
	reg := tools.NewToolRegistry()
	require.NoError(t, reg.RegisterAll(Tools(NewMover(linuxEnv, r))...))
	return reg
}

func body(t *testing.T, res *tools.ToolResult) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.ForLLM), &m))
	return m
}

func TestPlace(t *testing.T) {
	p := Place("0x1", screen.Monitor{Left: 1920, Top: 0, Width: 2560, Height: 1440})
	assert.Equal(t, 2176, p.X)
	assert.Equal(t, 144, p.Y)
	assert.Equal(t, 2048, p.Width)
	assert.Equal(t, 1152, p.Height)
}

func TestMoveToMonitor(t *testing.T) {
	r := platform.NewFakeRunner().
		On("xrandr --listmonitors", xrandrTwo).
		On("wmctrl -lG", wmctrlOut).
		OnPrefix("wmctrl -i -r", "")
	reg := newRegistry(t, r)

	res := reg.Execute(context.Background(), "move_to_monitor", map[string]any{
		"title_pattern":  "dingtalk",
		"monitor_number": float64(2),
		"maximize":       true,
	})
	require.False(t, res.IsError, res.ForLLM)

	b := body(t, res)
	assert.Equal(t, "DingTalk", b["window_title"])
	rect := b["new_rect"].(map[string]any)
	assert.Equal(t, float64(2176), rect["left"])
	assert.Equal(t, true, b["maximized"])
	mon := b["monitor"].(map[string]any)
	assert.Equal(t, float64(2), mon["MonitorNumber"])

	assert.Contains(t, r.Calls(), "wmctrl -i -r 0x05a00001 -e 0,2176,144,2048,1152")
	assert.Contains(t, r.Calls(), "wmctrl -i -r 0x05a00001 -b add,maximized_vert,maximized_horz")
}

func TestMoveToMonitor_Errors(t *testing.T) {
	r := platform.NewFakeRunner().
		On("xrandr --listmonitors", xrandrTwo).
		On("wmctrl -lG", wmctrlOut)
	reg := newRegistry(t, r)

	res := reg.Execute(context.Background(), "move_to_monitor", map[string]any{"title_pattern": "x", "monitor_number": float64(3)})
	require.True(t, res.IsError)
	assert.Contains(t, body(t, res)["error"], "2 monitor(s) available")

	res = reg.Execute(context.Background(), "move_to_monitor", map[string]any{"title_pattern": "Slack", "monitor_number": float64(1)})
	require.True(t, res.IsError)
	assert.Contains(t, body(t, res)["error"], `no window title contains "Slack"`)
}

func TestFindWindowAndListMonitors(t *testing.T) {
	r := platform.NewFakeRunner().
		On("xrandr --listmonitors", xrandrTwo).
		On("wmctrl -lG", wmctrlOut)
	reg := newRegistry(t, r)

	b := body(t, reg.Execute(context.Background(), "find_window", map[string]any{"title_pattern": "TERMINAL"}))
	assert.Equal(t, float64(1), b["count"])

	b = body(t, reg.Execute(context.Background(), "list_monitors", nil))
	mons := b["monitors"].([]any)
	require.Len(t, mons, 2)
	assert.Equal(t, true, mons[0].(map[string]any)["IsPrimary"])
	assert.Equal(t, float64(4480), mons[1].(map[string]any)["Right"])
}
