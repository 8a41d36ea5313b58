package window

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/freitascorp/deskclaw/pkg/platform"
	"github.com/freitascorp/deskclaw/pkg/tools"
)

var linuxEnv = platform.Env{OS: "linux", Display: ":0"}

const wmctrlOut = `0x03c00003  0 0    27   1920 1053 myhost Terminal - bash
0x04200007 -1 0    0    1920 27   myhost Top Panel
0x05a00001  1 1920 0    1280 1024 myhost Mozilla Firefox   (Private)
garbage line
`

func TestParseWmctrl(t *testing.T) {
	wins := ParseWmctrl(wmctrlOut)
	if len(wins) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(wins), wins)
	}
	if wins[0].Title != "Terminal - bash" || wins[0].Y != 27 || wins[0].Height != 1053 {
		t.Errorf("wins[0] = %+v", wins[0])
	}
	if wins[1].Desktop != -1 {
		t.Errorf("sticky desktop = %d", wins[1].Desktop)
	}
	if wins[2].Title != "Mozilla Firefox   (Private)" || wins[2].X != 1920 {
		t.Errorf("wins[2] = %+v", wins[2])
	}
}

func TestParseXdpyinfo(t *testing.T) {
	size, err := ParseXdpyinfo("screen #0:\n  dimensions:    3840x1080 pixels (1016x285 millimeters)\n")
	if err != nil {
		t.Fatal(err)
	}
	if size != (Size{3840, 1080}) {
		t.Errorf("size = %+v", size)
	}
	if _, err := ParseXdpyinfo("nothing"); err == nil {
		t.Error("expected error")
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0x03c00003", 0x03c00003, false},
		{"0X1F", 31, false},
		{"62914563", 62914563, false},
		{"", 0, true},
		{"0xZZ", 0, true},
		{"window", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseID(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseID(%q) = %d, %v", tt.in, got, err)
		}
	}
	if FormatID(62914563) != "0x03c00003" {
		t.Errorf("FormatID = %s", FormatID(62914563))
	}
}

func TestLayouts(t *testing.T) {
	screen := Size{Width: 1921, Height: 1081}

	h, err := SplitHorizontal(screen, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if h[0] != (Placement{ID: "a", X: 0, Y: 0, Width: 960, Height: 1081}) ||
		h[1] != (Placement{ID: "b", X: 960, Y: 0, Width: 961, Height: 1081}) {
		t.Errorf("horizontal = %+v", h)
	}

	v, _ := SplitVertical(screen, []string{"only"})
	if len(v) != 1 || v[0].Height != 540 || v[0].Width != 1921 {
		t.Errorf("vertical single = %+v", v)
	}

	g, err := SplitGrid(screen, []string{"1", "2", "3", "4"})
	if err != nil {
		t.Fatal(err)
	}
	if g[3] != (Placement{ID: "4", X: 960, Y: 540, Width: 961, Height: 541}) {
		t.Errorf("grid BR = %+v", g[3])
	}

	if _, err := SplitHorizontal(screen, nil); err == nil || err.Error() != "at least one window id is required" {
		t.Errorf("empty err = %v", err)
	}
	if _, err := SplitGrid(screen, []string{"1", "2", "3", "4", "5"}); err == nil || !strings.Contains(err.Error(), "at most 4") {
		t.Errorf("too many err = %v", err)
	}
}

func TestCentered(t *testing.T) {
	x, y, w, h := Centered(1920, 0, 2560, 1440, 0.8)
	if w != 2048 || h != 1152 || x != 1920+256 || y != 144 {
		t.Errorf("Centered = %d,%d %dx%d", x, y, w, h)
	}
}

func TestSplitHorizontalTool(t *testing.T) {
	r := platform.NewFakeRunner().
		On("xdpyinfo", "  dimensions:    2000x1000 pixels\n").
		OnPrefix("wmctrl -i -r", "")
	reg := tools.NewToolRegistry()
	if err := reg.RegisterAll(Tools(NewManager(linuxEnv, r))...); err != nil {
		t.Fatal(err)
	}

	res := reg.Execute(context.Background(), "split_horizontal", map[string]any{
		"window_ids": []any{"0x01", "0x02"},
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}
	calls := r.Calls()
	want := "wmctrl -i -r 0x00000002 -e 0,1000,0,1000,1000"
	if calls[len(calls)-1] != want {
		t.Errorf("last call = %q, want %q", calls[len(calls)-1], want)
	}

	res = reg.Execute(context.Background(), "split_vertical", map[string]any{"window_ids": []any{}})
	var body map[string]any
	_ = json.Unmarshal([]byte(res.ForLLM), &body)
	if !res.IsError || body["error"] != "at least one window id is required" {
		t.Errorf("empty ids: %s", res.ForLLM)
	}
}

func TestListWindows_PowerShell(t *testing.T) {
	env := platform.Env{OS: "linux", WSL: true}
	r := platform.NewFakeRunner().OnContains("EnumWindows",
		`{"Handle":132456,"Title":"钉钉","Left":10,"Top":20,"Width":800,"Height":600}`)
	m := NewManager(env, r)

	wins, err := m.Find(context.Background(), "钉")
	if err != nil {
		t.Fatal(err)
	}
	if len(wins) != 1 || wins[0].ID != "0x00020568" || wins[0].Width != 800 {
		t.Errorf("wins = %+v", wins)
	}
}

func TestActiveWindow_Xdotool(t *testing.T) {
	r := platform.NewFakeRunner().
		On("xdotool getactivewindow", "62914563\n").
		On("xdotool getwindowname 62914563", "Terminal\n")
	w, err := NewManager(linuxEnv, r).Active(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if w.ID != "0x03c00003" || w.Title != "Terminal" {
		t.Errorf("active = %+v", w)
	}
}

func TestMacUnsupported(t *testing.T) {
	_, err := NewManager(platform.Env{OS: "darwin"}, platform.NewFakeRunner()).List(context.Background())
	if err != ErrUnsupported {
		t.Errorf("err = %v", err)
	}
}
