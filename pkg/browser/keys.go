package browser

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/input"
)

var namedKeys = map[string]input.Key{
	"enter":      input.Enter,
	"return":     input.Enter,
	"tab":        input.Tab,
	"escape":     input.Escape,
	"esc":        input.Escape,
	"backspace":  input.Backspace,
	"delete":     input.Delete,
	"space":      input.Space,
	"arrowup":    input.ArrowUp,
	"arrowdown":  input.ArrowDown,
	"arrowleft":  input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"up":         input.ArrowUp,
	"down":       input.ArrowDown,
	"left":       input.ArrowLeft,
	"right":      input.ArrowRight,
	"home":       input.Home,
	"end":        input.End,
	"pageup":     input.PageUp,
	"pagedown":   input.PageDown,
	"insert":     input.Insert,
	"f1":         input.F1,
	"f2":         input.F2,
	"f3":         input.F3,
	"f4":         input.F4,
	"f5":         input.F5,
	"f6":         input.F6,
	"f7":         input.F7,
	"f8":         input.F8,
	"f9":         input.F9,
	"f10":        input.F10,
	"f11":        input.F11,
	"f12":        input.F12,
}

var modifierKeys = map[string]input.Key{
	"control": input.ControlLeft,
	"ctrl":    input.ControlLeft,
	"shift":   input.ShiftLeft,
	"alt":     input.AltLeft,
	"option":  input.AltLeft,
	"meta":    input.MetaLeft,
	"cmd":     input.MetaLeft,
	"command": input.MetaLeft,
}

// keyCombo is a key pressed while the modifiers are held.
type keyCombo struct {
	Modifiers []input.Key
	Key       input.Key
}

// parseKeys reads names like "Enter", "ArrowDown", "a" or "Control+Shift+t".
func parseKeys(s string) (keyCombo, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return keyCombo{}, fmt.Errorf("keys is required")
	}
	var parts []string
	switch {
	case s == "+":
		parts = []string{"+"}
	case strings.HasSuffix(s, "++"):
		parts = append(strings.Split(strings.TrimSuffix(s, "++"), "+"), "+")
	default:
		parts = strings.Split(s, "+")
	}
	var combo keyCombo
	for i, p := range parts {
		last := i == len(parts)-1
		name := strings.ToLower(strings.TrimSpace(p))
		if !last {
			mod, ok := modifierKeys[name]
			if !ok {
				return keyCombo{}, fmt.Errorf("unknown modifier %q in %q", p, s)
			}
			combo.Modifiers = append(combo.Modifiers, mod)
			continue
		}
		k, err := keyFor(p)
		if err != nil {
			return keyCombo{}, err
		}
		combo.Key = k
	}
	return combo, nil
}

func keyFor(name string) (input.Key, error) {
	if k, ok := namedKeys[strings.ToLower(name)]; ok {
		return k, nil
	}
	if k, ok := modifierKeys[strings.ToLower(name)]; ok {
		return k, nil
	}
	r := []rune(name)
	if len(r) == 1 && r[0] >= 0x20 && r[0] < 0x7f {
		return input.Key(r[0]), nil
	}
	return 0, fmt.Errorf("unknown key %q", name)
}
