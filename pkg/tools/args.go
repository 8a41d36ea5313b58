package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// StringArg returns args[key] as a string, or def when absent or empty.
func StringArg(args map[string]any, key, def string) string {
	switch v := args[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return def
}

// FloatArg accepts JSON numbers and numeric strings.
func FloatArg(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// IntArg truncates FloatArg toward zero.
func IntArg(args map[string]any, key string, def int) int {
	return int(FloatArg(args, key, float64(def)))
}

// BoolArg accepts booleans and the strings "true"/"false".
func BoolArg(args map[string]any, key string, def bool) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// HasArg reports whether key was supplied with a non-null value.
func HasArg(args map[string]any, key string) bool {
	v, ok := args[key]
	return ok && v != nil
}

// StringSliceArg reads an array of strings. A single string becomes a one-element slice.
func StringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case float64:
				out = append(out, strconv.FormatFloat(s, 'f', -1, 64))
			}
		}
		return out
	case []string:
		return v
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

// StringMapArg reads an object of string values.
func StringMapArg(args map[string]any, key string) map[string]string {
	raw, ok := args[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// RequireString is StringArg that fails when the value is missing.
func RequireString(args map[string]any, key string) (string, error) {
	s := strings.TrimSpace(StringArg(args, key, ""))
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

// ---- schema helpers ----

// Prop builds a JSON-schema property.
func Prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

// PropDefault is Prop with a default value.
func PropDefault(typ, description string, def any) map[string]any {
	p := Prop(typ, description)
	p["default"] = def
	return p
}

// PropEnum is a string property restricted to values.
func PropEnum(description string, values ...string) map[string]any {
	p := Prop("string", description)
	p["enum"] = values
	return p
}

// Schema builds an object schema.
func Schema(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// ---- function-backed tools ----

// Handler is the body of a FuncTool.
type Handler func(ctx context.Context, args map[string]any) *ToolResult

// FuncTool adapts a Handler to the Tool interface.
type FuncTool struct {
	name   string
	desc   string
	params map[string]any
	fn     Handler
}

// NewFunc defines a tool from its metadata and handler.
func NewFunc(name, description string, params map[string]any, fn Handler) *FuncTool {
	if params == nil {
		params = Schema(nil)
	}
	return &FuncTool{name: name, desc: description, params: params, fn: fn}
}

func (t *FuncTool) Name() string               { return t.name }
func (t *FuncTool) Description() string        { return t.desc }
func (t *FuncTool) Parameters() map[string]any { return t.params }

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) *ToolResult {
	return t.fn(ctx, args)
}
