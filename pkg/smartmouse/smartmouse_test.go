package smartmouse

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freitascorp/deskclaw/pkg/mouse"
	"github.com/freitascorp/deskclaw/pkg/platform"
	"github.com/freitascorp/deskclaw/pkg/screen"
	"github.com/freitascorp/deskclaw/pkg/tools"
)

var linuxEnv = platform.Env{OS: "linux", Display: ":0"}

const tsv = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t100\t50\t40\t20\t96.5\tFile\n" +
	"5\t1\t1\t1\t1\t2\t150\t50\t40\t20\t95.0\tEdit\n" +
	"5\t1\t2\t1\t1\t1\t300\t400\t60\t30\t91.0\tSubmit\n" +
	"5\t1\t2\t1\t1\t2\t370\t400\t50\t30\t90.0\tForm\n" +
	"5\t1\t3\t1\t1\t1\t10\t10\t10\t10\t50\t \n"

// fixture wires a Targeter whose default screenshot path is known up front.
func fixture(t *testing.T, r *platform.FakeRunner) (*Targeter, string) {
	t.Helper()
	dir := t.TempDir()
	c := screen.NewCapturer(linuxEnv, r, dir)
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })
	path := filepath.Join(dir, screen.DefaultFilename("screenshot", now))

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 800, 600))))
	require.NoError(t, f.Close())

	r.On("gnome-screenshot -f "+path, "")
	tg := NewTargeter(linuxEnv, r, c)
	tg.sleep = func(context.Context, time.Duration) error { return nil }
	return tg, path
}

func decode(t *testing.T, res *tools.ToolResult) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.ForLLM), &m), res.ForLLM)
	return m
}

func TestParseTSV(t *testing.T) {
	words := ParseTSV(tsv)
	require.Len(t, words, 4)
	assert.Equal(t, "File", words[0].Text)
	assert.Equal(t, 96.5, words[0].Confidence)
	assert.Equal(t, 2, words[2].Block)
}

func TestFindText(t *testing.T) {
	words := ParseTSV(tsv)

	m, ok := FindText(words, "submit", false)
	require.True(t, ok)
	assert.Equal(t, Box{Left: 300, Top: 400, Width: 60, Height: 30}, m.Box)

	m, ok = FindText(words, "Submit Form", true)
	require.True(t, ok)
	assert.Equal(t, Box{Left: 300, Top: 400, Width: 120, Height: 30}, m.Box)
	cx, cy := m.Box.Center()
	assert.Equal(t, 360.0, cx)
	assert.Equal(t, 415.0, cy)

	_, ok = FindText(words, "submit", true)
	assert.False(t, ok)

	// Runs never cross blocks.
	_, ok = FindText(words, "Edit Submit", false)
	assert.False(t, ok)
}

func TestFindText_CJKGlyphs(t *testing.T) {
	words := []Word{
		{Block: 1, Paragraph: 1, Line: 1, Left: 0, Top: 0, Width: 20, Height: 20, Text: "钉"},
		{Block: 1, Paragraph: 1, Line: 1, Left: 20, Top: 0, Width: 20, Height: 20, Text: "钉"},
	}
	m, ok := FindText(words, "钉钉", false)
	require.True(t, ok)
	assert.Equal(t, 40, m.Box.Width)
}

func TestParseXrdbScale(t *testing.T) {
	assert.Equal(t, 1.5, ParseXrdbScale("Xft.antialias:\t1\nXft.dpi:\t144\n"))
	assert.Equal(t, 1.0, ParseXrdbScale("Xcursor.size: 24\n"))
	assert.Equal(t, 1.0, scaleFromDPI("0"))
}

func TestToScreen(t *testing.T) {
	snap := Snapshot{Shot: screen.Shot{OriginX: -1920, OriginY: 0}, Scale: 2}
	assert.Equal(t, mouse.Position{X: -1920 + 180, Y: 208}, snap.ToScreen(360, 415))
}

func TestExecuteMoveToCoordinates(t *testing.T) {
	r := platform.NewFakeRunner().
		On("xdotool getmouselocation --shell", "X=503\nY=300\n").
		On("xdotool mousemove 500 300", "")
	tg, _ := fixture(t, r)
	reg := tools.NewToolRegistry()
	require.NoError(t, reg.RegisterAll(Tools(tg)...))

	body := decode(t, reg.Execute(context.Background(), "execute_move_to_coordinates", map[string]any{
		"target_x": float64(500), "target_y": float64(300), "tolerance": float64(5),
	}))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(3), body["distance"])
	assert.Equal(t, true, body["verified"])

	body = decode(t, reg.Execute(context.Background(), "execute_move_to_coordinates", map[string]any{
		"target_x": float64(500), "target_y": float64(300), "tolerance": float64(2),
	}))
	assert.Equal(t, false, body["success"], "3px off exceeds a 2px tolerance")
}

func TestMoveToTextTarget(t *testing.T) {
	r := platform.NewFakeRunner().
		On("xdotool getmouselocation --shell", "X=360\nY=415\n").
		On("xdotool mousemove 360 415", "")
	tg, path := fixture(t, r)
	r.On("tesseract "+path+" - tsv", tsv)
	reg := tools.NewToolRegistry()
	require.NoError(t, reg.RegisterAll(Tools(tg)...))

	res := reg.Execute(context.Background(), "move_to_text_target", map[string]any{"text": "submit form"})
	require.False(t, res.IsError, res.ForLLM)
	body := decode(t, res)
	assert.Equal(t, true, body["success"])
	match := body["match"].(map[string]any)
	assert.Equal(t, "Submit Form", match["text"])

	res = reg.Execute(context.Background(), "move_to_text_target", map[string]any{"text": "Cancel"})
	require.True(t, res.IsError)
	assert.Equal(t, float64(4), decode(t, res)["words_recognized"])
}

func TestMoveToTextTarget_NoTesseract(t *testing.T) {
	r := platform.NewFakeRunner().On("xdotool getmouselocation --shell", "X=0\nY=0\n")
	tg, _ := fixture(t, r)
	reg := tools.NewToolRegistry()
	require.NoError(t, reg.RegisterAll(Tools(tg)...))

	res := reg.Execute(context.Background(), "move_to_text_target", map[string]any{"text": "x"})
	require.True(t, res.IsError)
	assert.Contains(t, decode(t, res)["error"], "tesseract-ocr")
}

func TestSmartMoveToTarget(t *testing.T) {
	r := platform.NewFakeRunner().
		On("xdotool getmouselocation --shell", "X=1\nY=2\n").
		On("xrdb -query", "Xft.dpi:\t192\n")
	tg, _ := fixture(t, r)
	reg := tools.NewToolRegistry()
	require.NoError(t, reg.RegisterAll(Tools(tg)...))

	res := reg.Execute(context.Background(), "smart_move_to_target", map[string]any{"target_description": "the OK button"})
	require.False(t, res.IsError, res.ForLLM)
	body := decode(t, res)
	assert.Equal(t, 2.0, body["dpi_scale"])
	assert.Contains(t, body["instructions"], "the OK button")
	assert.NotEmpty(t, body["screenshot_base64"])
	require.Len(t, res.Images, 1)
}
