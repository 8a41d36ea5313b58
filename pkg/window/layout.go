package window

import (
	"errors"
	"fmt"
)

// Placement is a target rectangle for one window.
type Placement struct {
	ID     string `json:"window_id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

var errNoWindows = errors.New("at least one window id is required")

func checkCount(ids []string, limit int) error {
	if len(ids) == 0 {
		return errNoWindows
	}
	if len(ids) > limit {
		return fmt.Errorf("at most %d windows are supported", limit)
	}
	return nil
}

// SplitHorizontal puts up to two windows side by side. A single window
// takes the left half.
func SplitHorizontal(screen Size, ids []string) ([]Placement, error) {
	if err := checkCount(ids, 2); err != nil {
		return nil, err
	}
	left := screen.Width / 2
	slots := []Placement{
		{X: 0, Y: 0, Width: left, Height: screen.Height},
		{X: left, Y: 0, Width: screen.Width - left, Height: screen.Height},
	}
	return assign(ids, slots), nil
}

// SplitVertical stacks up to two windows. A single window takes the top half.
func SplitVertical(screen Size, ids []string) ([]Placement, error) {
	if err := checkCount(ids, 2); err != nil {
		return nil, err
	}
	top := screen.Height / 2
	slots := []Placement{
		{X: 0, Y: 0, Width: screen.Width, Height: top},
		{X: 0, Y: top, Width: screen.Width, Height: screen.Height - top},
	}
	return assign(ids, slots), nil
}

// SplitGrid tiles up to four windows in quadrants: top-left, top-right,
// bottom-left, bottom-right.
func SplitGrid(screen Size, ids []string) ([]Placement, error) {
	if err := checkCount(ids, 4); err != nil {
		return nil, err
	}
	w, h := screen.Width/2, screen.Height/2
	slots := []Placement{
		{X: 0, Y: 0, Width: w, Height: h},
		{X: w, Y: 0, Width: screen.Width - w, Height: h},
		{X: 0, Y: h, Width: w, Height: screen.Height - h},
		{X: w, Y: h, Width: screen.Width - w, Height: screen.Height - h},
	}
	return assign(ids, slots), nil
}

func assign(ids []string, slots []Placement) []Placement {
	out := make([]Placement, len(ids))
	for i, id := range ids {
		out[i] = slots[i]
		out[i].ID = id
	}
	return out
}

// Centered returns a rectangle of fraction × the area's size, centred in it.
func Centered(left, top, width, height int, fraction float64) (x, y, w, h int) {
	w = int(float64(width) * fraction)
	h = int(float64(height) * fraction)
	x = left + (width-w)/2
	y = top + (height-h)/2
	return x, y, w, h
}
