package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codedErr struct{}

func (codedErr) Error() string                { return "token missing" }
func (codedErr) ErrorCode() string            { return "TOKEN_MISSING" }
func (codedErr) ErrorDetails() map[string]any { return map[string]any{"status": 200} }

func decode(t *testing.T, r *ToolResult) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.ForLLM), &m))
	return m
}

func TestJSONResult_AddsSuccess(t *testing.T) {
	r := JSONResult(map[string]any{"x": 1})
	assert.False(t, r.IsError)
	assert.Equal(t, true, decode(t, r)["success"])
}

func TestJSONResult_Struct(t *testing.T) {
	type doc struct {
		ID      string `json:"document_id"`
		Version int64  `json:"version"`
	}
	body := decode(t, JSONResult(doc{ID: "d1", Version: 1700000000000}))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "d1", body["document_id"])
	assert.Contains(t, JSONResult(doc{Version: 1700000000000}).ForLLM, `"version":1700000000000`)

	raw := JSONResult([]int{1, 2})
	assert.Equal(t, "[1,2]", raw.ForLLM)
}

func TestFailure(t *testing.T) {
	r := Failure(errors.New("boom"), "HUMAN_OP_ERROR")
	assert.True(t, r.IsError)
	body := decode(t, r)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "boom", body["error"])
	assert.Equal(t, "HUMAN_OP_ERROR", body["code"])
}

func TestFailure_CodedErrorOverridesCode(t *testing.T) {
	body := decode(t, Failure(codedErr{}, "DINGTALK_ERROR"))
	assert.Equal(t, "TOKEN_MISSING", body["code"])
	assert.Equal(t, map[string]any{"status": float64(200)}, body["details"])
}

func TestFailureWith_MergesExtra(t *testing.T) {
	body := decode(t, FailureWith(errors.New("missing"), "", map[string]any{"available_keys": []string{"A"}}))
	assert.Equal(t, []any{"A"}, body["available_keys"])
	_, hasCode := body["code"]
	assert.False(t, hasCode)
}

func TestArgs(t *testing.T) {
	args := map[string]any{
		"s":     "hello",
		"n":     float64(42.9),
		"ns":    "7",
		"b":     true,
		"bs":    "false",
		"list":  []any{"a", float64(3)},
		"one":   "solo",
		"hdrs":  map[string]any{"X-A": "1", "X-B": float64(2)},
		"empty": "",
	}

	assert.Equal(t, "hello", StringArg(args, "s", "def"))
	assert.Equal(t, "def", StringArg(args, "empty", "def"))
	assert.Equal(t, 42, IntArg(args, "n", 0))
	assert.Equal(t, 7, IntArg(args, "ns", 0))
	assert.Equal(t, 5, IntArg(args, "missing", 5))
	assert.True(t, BoolArg(args, "b", false))
	assert.False(t, BoolArg(args, "bs", true))
	assert.Equal(t, []string{"a", "3"}, StringSliceArg(args, "list"))
	assert.Equal(t, []string{"solo"}, StringSliceArg(args, "one"))
	assert.Equal(t, map[string]string{"X-A": "1", "X-B": "2"}, StringMapArg(args, "hdrs"))
	assert.True(t, HasArg(args, "s"))
	assert.False(t, HasArg(args, "nope"))

	_, err := RequireString(args, "empty")
	assert.EqualError(t, err, "empty is required")
}

func TestRegistry(t *testing.T) {
	reg := NewToolRegistry()
	echo := NewFunc("echo", "Echo", Schema(map[string]any{"text": Prop("string", "text")}, "text"),
		func(_ context.Context, args map[string]any) *ToolResult {
			return NewToolResult(StringArg(args, "text", ""))
		})
	boom := NewFunc("boom", "Panics", nil, func(context.Context, map[string]any) *ToolResult {
		panic("kaboom")
	})

	require.NoError(t, reg.RegisterAll(echo, boom))
	assert.Error(t, reg.Register(echo), "duplicate names are rejected")
	assert.Equal(t, []string{"boom", "echo"}, reg.List())
	assert.Equal(t, 2, reg.Count())

	ctx := context.Background()
	assert.Equal(t, "hi", reg.Execute(ctx, "echo", map[string]any{"text": "hi"}).ForLLM)

	missing := reg.Execute(ctx, "nope", nil)
	assert.True(t, missing.IsError)

	panicked := reg.Execute(ctx, "boom", nil)
	assert.True(t, panicked.IsError)
	assert.Contains(t, panicked.ForLLM, "kaboom")

	defs := reg.ToProviderDefs()
	require.Len(t, defs, 2)
	assert.Equal(t, "boom", defs[0].Function.Name)
	assert.Equal(t, "object", defs[0].Function.Parameters["type"])
	assert.Equal(t, []string{"text"}, defs[1].Function.Parameters["required"])
}
