package dingtalk

import (
	"context"
	"strings"

	"github.com/freitascorp/deskclaw/pkg/tools"
)

// ServerName is the MCP server identity for the document adapter.
const ServerName = "dingtalk-docs"

// Tools returns create_doc, get_doc, update_doc and list_docs.
func Tools(c *Client) []tools.Tool {
	return []tools.Tool{
		tools.NewFunc("create_doc",
			"Create a DingTalk document.",
			tools.Schema(map[string]any{
				"title":     tools.Prop("string", "Document title, at most 200 characters"),
				"content":   tools.Prop("string", "Initial content"),
				"space_id":  tools.Prop("string", "Space to create the document in"),
				"folder_id": tools.Prop("string", "Folder to create the document in"),
			}, "title"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				doc, err := c.CreateDocument(ctx, CreateRequest{
					Title:    strings.TrimSpace(tools.StringArg(args, "title", "")),
					Content:  tools.StringArg(args, "content", ""),
					SpaceID:  tools.StringArg(args, "space_id", ""),
					FolderID: tools.StringArg(args, "folder_id", ""),
				})
				if err != nil {
					return tools.Failure(err, CodeDefault)
				}
				return tools.JSONResult(doc)
			}),

		tools.NewFunc("get_doc",
			"Get a DingTalk document's content.",
			tools.Schema(map[string]any{
				"document_id": tools.Prop("string", "Document id"),
				"format":      tools.PropEnum("Content format, text by default", validFormats...),
			}, "document_id"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				doc, err := c.GetDocument(ctx, tools.StringArg(args, "document_id", ""), tools.StringArg(args, "format", DefaultFormat))
				if err != nil {
					return tools.Failure(err, CodeDefault)
				}
				return tools.JSONResult(doc)
			}),

		tools.NewFunc("update_doc",
			"Overwrite or append to a DingTalk document.",
			tools.Schema(map[string]any{
				"document_id": tools.Prop("string", "Document id"),
				"content":     tools.Prop("string", "New content"),
				"mode":        tools.PropEnum("overwrite replaces the body, append adds to it", validModes...),
				"comment":     tools.Prop("string", "Change note"),
			}, "document_id", "content"),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				doc, err := c.UpdateDocument(ctx, UpdateRequest{
					DocumentID: tools.StringArg(args, "document_id", ""),
					Content:    tools.StringArg(args, "content", ""),
					Mode:       tools.StringArg(args, "mode", "overwrite"),
					Comment:    tools.StringArg(args, "comment", ""),
				})
				if err != nil {
					return tools.Failure(err, CodeDefault)
				}
				return tools.JSONResult(doc)
			}),

		tools.NewFunc("list_docs",
			"List accessible DingTalk documents.",
			tools.Schema(map[string]any{
				"space_id":   tools.Prop("string", "Only documents in this space"),
				"folder_id":  tools.Prop("string", "Only documents in this folder"),
				"keyword":    tools.Prop("string", "Search keyword"),
				"page":       tools.PropDefault("integer", "Page number, from 1", 1),
				"page_size":  tools.PropDefault("integer", "Results per page, 1-100", DefaultPageSize),
				"sort_by":    tools.PropDefault("string", "Sort field", DefaultSortBy),
				"sort_order": tools.PropEnum("Sort direction", validSortOrders...),
			}),
			func(ctx context.Context, args map[string]any) *tools.ToolResult {
				list, err := c.ListDocuments(ctx, ListRequest{
					SpaceID:   tools.StringArg(args, "space_id", ""),
					FolderID:  tools.StringArg(args, "folder_id", ""),
					Keyword:   tools.StringArg(args, "keyword", ""),
					Page:      tools.IntArg(args, "page", 1),
					PageSize:  tools.IntArg(args, "page_size", DefaultPageSize),
					SortBy:    tools.StringArg(args, "sort_by", DefaultSortBy),
					SortOrder: tools.StringArg(args, "sort_order", ""),
				})
				if err != nil {
					return tools.Failure(err, CodeDefault)
				}
				return tools.JSONResult(list)
			}),
	}
}
