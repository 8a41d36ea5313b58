package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Tool is a single callable action exposed over MCP.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) *ToolResult
}

// Image is an inline image attached to a tool result.
type Image struct {
	Data     string `json:"data"` // base64
	MIMEType string `json:"mimeType"`
}

// ToolResult is what a tool hands back to the transport.
//
// ForLLM is the text the calling model sees. ForUser is an optional richer
// rendering; when empty the transport falls back to ForLLM.
type ToolResult struct {
	ForLLM  string
	ForUser string
	IsError bool
	Silent  bool
	Images  []Image
}

// NewToolResult returns a plain successful result.
func NewToolResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM}
}

// SilentResult returns a successful result that should not be echoed to the user.
func SilentResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM, Silent: true}
}

// ErrorResult returns a failed result carrying a bare message.
func ErrorResult(message string) *ToolResult {
	return &ToolResult{ForLLM: message, IsError: true}
}

// JSONResult marshals v as the result body. Objects without a "success"
// key get success=true so every payload carries the flag.
func JSONResult(v any) *ToolResult {
	m, ok := v.(map[string]any)
	if !ok {
		data, err := json.Marshal(v)
		if err != nil {
			return Failure(fmt.Errorf("marshal result: %w", err), "MARSHAL_ERROR")
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if dec.Decode(&m) != nil {
			return &ToolResult{ForLLM: string(data)}
		}
	}
	if m == nil {
		m = map[string]any{}
	}
	if _, has := m["success"]; !has {
		m["success"] = true
	}
	data, err := json.Marshal(m)
	if err != nil {
		return Failure(fmt.Errorf("marshal result: %w", err), "MARSHAL_ERROR")
	}
	return &ToolResult{ForLLM: string(data)}
}

// Failure renders err as {"success":false,"error":...,"code":...}.
// A CodedError supplies its own code and details; code is the fallback.
func Failure(err error, code string) *ToolResult {
	body := map[string]any{
		"success": false,
		"error":   err.Error(),
	}
	var ce CodedError
	if errors.As(err, &ce) {
		if c := ce.ErrorCode(); c != "" {
			code = c
		}
		if d := ce.ErrorDetails(); len(d) > 0 {
			body["details"] = d
		}
	}
	if code != "" {
		body["code"] = code
	}
	data, _ := json.Marshal(body)
	return &ToolResult{ForLLM: string(data), IsError: true}
}

// FailureWith is Failure plus extra keys merged into the payload.
func FailureWith(err error, code string, extra map[string]any) *ToolResult {
	res := Failure(err, code)
	if len(extra) == 0 {
		return res
	}
	var body map[string]any
	if json.Unmarshal([]byte(res.ForLLM), &body) != nil {
		return res
	}
	for k, v := range extra {
		body[k] = v
	}
	data, _ := json.Marshal(body)
	res.ForLLM = string(data)
	return res
}

// WithImage attaches a base64 PNG to the result.
func (r *ToolResult) WithImage(b64 string) *ToolResult {
	if b64 != "" {
		r.Images = append(r.Images, Image{Data: b64, MIMEType: "image/png"})
	}
	return r
}

// CodedError is implemented by domain errors that carry a machine-readable code.
type CodedError interface {
	error
	ErrorCode() string
	ErrorDetails() map[string]any
}
