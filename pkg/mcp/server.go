// DeskClaw - Desktop and SaaS tool adapters over MCP
// License: MIT
//
// Copyright (c) 2026 DeskClaw contributors

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/freitascorp/deskclaw/pkg/logger"
	"github.com/freitascorp/deskclaw/pkg/tools"
)

const (
	// ProtocolVersion is the MCP protocol revision this server speaks.
	ProtocolVersion = "2024-11-05"
	ServerName      = "deskclaw"
	ServerVersion   = "1.0.0"
)

// CallRecord describes one finished tools/call.
type CallRecord struct {
	Server   string
	Tool     string
	Args     map[string]any
	Started  time.Time
	Duration time.Duration
	IsError  bool
	Output   string
}

// Observer is notified around every tools/call. Audit and metrics hook in here.
type Observer interface {
	ToolCallStarted(server, tool string)
	ToolCallFinished(ctx context.Context, rec CallRecord)
}

// Options configures the identity a Server reports on initialize.
type Options struct {
	Name         string
	Version      string
	Instructions string
	Observers    []Observer
}

// Server implements a stdio-based MCP server that exposes a ToolRegistry.
type Server struct {
	registry *tools.ToolRegistry
	opts     Options
	in       io.Reader
	out      io.Writer
	mu       sync.Mutex // serializes writes to stdout
}

// NewServer creates an MCP server backed by the given tool registry.
// It reads JSON-RPC from stdin and writes responses to stdout.
func NewServer(registry *tools.ToolRegistry, opts Options) *Server {
	return NewServerWithIO(registry, opts, os.Stdin, os.Stdout)
}

// NewServerWithIO creates an MCP server with custom I/O (for testing).
func NewServerWithIO(registry *tools.ToolRegistry, opts Options, in io.Reader, out io.Writer) *Server {
	if opts.Name == "" {
		opts.Name = ServerName
	}
	if opts.Version == "" {
		opts.Version = ServerVersion
	}
	return &Server{
		registry: registry,
		opts:     opts,
		in:       in,
		out:      out,
	}
}

// Name returns the server name reported to clients.
func (s *Server) Name() string { return s.opts.Name }

// Serve runs the MCP server loop, reading requests until EOF or ctx cancellation.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	// Screenshot payloads are large.
	scanner.Buffer(make([]byte, 0, 1024*1024), 32*1024*1024)

	logger.InfoCF("mcp", "Serving",
		map[string]any{"server": s.opts.Name, "tools": s.registry.Count()})

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.sendError(nil, ErrParse, "parse error: "+err.Error())
			continue
		}

		s.handleRequest(ctx, &req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdin read error: %w", err)
	}
	return nil
}

// handleRequest dispatches a single JSON-RPC request.
func (s *Server) handleRequest(ctx context.Context, req *Request) {
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "notifications/initialized":
		// Client ack.
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(ctx, req)
	case "ping":
		s.sendResult(req.ID, map[string]any{})
	default:
		// Notifications (no ID) are silently ignored.
		if req.ID != nil {
			s.sendError(req.ID, ErrNotFound, "method not found: "+req.Method)
		}
	}
}

// ── Method handlers ────────────────────────────────────────────────

func (s *Server) handleInitialize(req *Request) {
	result := InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ServerCapability{
			Tools: &ToolsCapability{ListChanged: false},
		},
		ServerInfo: EntityInfo{
			Name:    s.opts.Name,
			Version: s.opts.Version,
		},
		Instructions: s.opts.Instructions,
	}
	s.sendResult(req.ID, result)
}

func (s *Server) handleToolsList(req *Request) {
	defs := s.registry.ToProviderDefs()

	mcpTools := make([]ToolInfo, 0, len(defs))
	for _, d := range defs {
		inputSchema := d.Function.Parameters
		if inputSchema == nil {
			inputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		mcpTools = append(mcpTools, ToolInfo{
			Name:        d.Function.Name,
			Description: d.Function.Description,
			InputSchema: inputSchema,
		})
	}

	s.sendResult(req.ID, ToolsListResult{Tools: mcpTools})
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) {
	raw, err := json.Marshal(req.Params)
	if err != nil {
		s.sendError(req.ID, ErrInternal, "failed to marshal params")
		return
	}

	var params ToolCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		s.sendError(req.ID, ErrInvalidParam, "invalid tools/call params: "+err.Error())
		return
	}

	if params.Name == "" {
		s.sendError(req.ID, ErrInvalidReq, "tool name is required")
		return
	}

	logger.InfoCF("mcp", "Tool call",
		map[string]any{"server": s.opts.Name, "tool": params.Name})

	for _, o := range s.opts.Observers {
		o.ToolCallStarted(s.opts.Name, params.Name)
	}
	started := time.Now()

	result := s.registry.Execute(ctx, params.Name, params.Arguments)

	rec := CallRecord{
		Server:   s.opts.Name,
		Tool:     params.Name,
		Args:     params.Arguments,
		Started:  started,
		Duration: time.Since(started),
		IsError:  result.IsError,
		Output:   result.ForLLM,
	}
	for _, o := range s.opts.Observers {
		o.ToolCallFinished(ctx, rec)
	}
	if result.IsError {
		logger.DebugCF("mcp", "Tool returned error",
			map[string]any{"tool": params.Name, "duration_ms": rec.Duration.Milliseconds()})
	}

	s.sendResult(req.ID, toCallResult(result))
}

// toCallResult converts a tool result into MCP content blocks.
func toCallResult(result *tools.ToolResult) ToolCallResult {
	text := result.ForLLM
	if text == "" {
		text = result.ForUser
	}
	if text == "" {
		text = "(no output)"
	}

	content := make([]ContentBlock, 0, 1+len(result.Images))
	content = append(content, ContentBlock{Type: "text", Text: text})
	for _, img := range result.Images {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		content = append(content, ContentBlock{Type: "image", Data: img.Data, MIMEType: mime})
	}
	return ToolCallResult{Content: content, IsError: result.IsError}
}

// ── Wire helpers ───────────────────────────────────────────────────

func (s *Server) sendResult(id any, result any) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	s.writeJSON(resp)
}

func (s *Server) sendError(id any, code int, message string) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
	s.writeJSON(resp)
}

func (s *Server) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.ErrorCF("mcp", "Failed to marshal response",
			map[string]any{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// One JSON object per line.
	_, _ = s.out.Write(data)
	_, _ = s.out.Write([]byte("\n"))
}
