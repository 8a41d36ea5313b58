package dingtalk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"unicode/utf8"
)

const (
	MaxTitleLength  = 200
	DefaultPageSize = 20
	MaxPageSize     = 100

	DefaultFormat = "text"
	DefaultSortBy = "update_time"
)

var (
	validFormats    = []string{"markdown", "html", "text"}
	validModes      = []string{"overwrite", "append"}
	validSortOrders = []string{"asc", "desc"}
)

// CreatedDocument is the result of CreateDocument.
type CreatedDocument struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	CreateTime any    `json:"create_time"`
	URL        any    `json:"url"`
}

// Document is a document with its content.
type Document struct {
	DocumentID string `json:"document_id"`
	Title      any    `json:"title"`
	Content    any    `json:"content"`
	Format     string `json:"format"`
	UpdateTime any    `json:"update_time"`
	Author     any    `json:"author"`
}

// UpdatedDocument is the result of UpdateDocument.
type UpdatedDocument struct {
	DocumentID string `json:"document_id"`
	UpdateTime any    `json:"update_time"`
	Version    any    `json:"version"`
}

// DocumentSummary is one entry of ListDocuments.
type DocumentSummary struct {
	DocumentID string `json:"document_id"`
	Title      any    `json:"title"`
	Summary    any    `json:"summary"`
	CreateTime any    `json:"create_time"`
	UpdateTime any    `json:"update_time"`
	Author     any    `json:"author"`
	SpaceID    any    `json:"space_id"`
	FolderID   any    `json:"folder_id"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// DocumentList is the result of ListDocuments.
type DocumentList struct {
	Documents  []DocumentSummary `json:"documents"`
	Pagination Pagination        `json:"pagination"`
}

// CreateRequest describes a new document.
type CreateRequest struct {
	Title    string
	Content  string
	SpaceID  string
	FolderID string
}

func (r CreateRequest) Validate() error {
	if r.Title == "" {
		return &ValidationError{Field: "title", Message: "is required"}
	}
	if utf8.RuneCountInString(r.Title) > MaxTitleLength {
		return &ValidationError{Field: "title", Message: fmt.Sprintf("must be at most %d characters", MaxTitleLength)}
	}
	return nil
}

// CreateDocument creates a document, optionally inside a space or folder.
func (c *Client) CreateDocument(ctx context.Context, req CreateRequest) (*CreatedDocument, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body := map[string]string{"title": req.Title}
	setIf(body, "content", req.Content)
	setIf(body, "spaceId", req.SpaceID)
	setIf(body, "folderId", req.FolderID)

	resp, err := c.call(ctx, http.MethodPost, "/v1.0/doc/documents", nil, body)
	if err != nil {
		return nil, err
	}
	return &CreatedDocument{
		DocumentID: docID(resp),
		Title:      req.Title,
		CreateTime: resp["createTime"],
		URL:        resp["url"],
	}, nil
}

// GetDocument fetches a document rendered as markdown, html or text. An
// empty format means plain text.
func (c *Client) GetDocument(ctx context.Context, id, format string) (*Document, error) {
	if id == "" {
		return nil, &ValidationError{Field: "document_id", Message: "is required"}
	}
	if format == "" {
		format = DefaultFormat
	}
	if !slices.Contains(validFormats, format) {
		return nil, &ValidationError{Field: "format", Message: "must be one of markdown, html, text"}
	}
	resp, err := c.call(ctx, http.MethodGet, "/v1.0/doc/documents/"+url.PathEscape(id), map[string]string{"format": format}, nil)
	if err != nil {
		return nil, err
	}
	return &Document{
		DocumentID: id,
		Title:      resp["title"],
		Content:    resp["content"],
		Format:     format,
		UpdateTime: resp["updateTime"],
		Author:     resp["author"],
	}, nil
}

// UpdateRequest describes a content change.
type UpdateRequest struct {
	DocumentID string
	Content    string
	Mode       string
	Comment    string
}

func (r *UpdateRequest) Validate() error {
	if r.DocumentID == "" {
		return &ValidationError{Field: "document_id", Message: "is required"}
	}
	if r.Content == "" {
		return &ValidationError{Field: "content", Message: "is required"}
	}
	if r.Mode == "" {
		r.Mode = "overwrite"
	}
	if !slices.Contains(validModes, r.Mode) {
		return &ValidationError{Field: "mode", Message: "must be overwrite or append"}
	}
	return nil
}

// UpdateDocument overwrites or appends to a document.
func (c *Client) UpdateDocument(ctx context.Context, req UpdateRequest) (*UpdatedDocument, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body := map[string]string{"content": req.Content, "mode": req.Mode}
	setIf(body, "comment", req.Comment)

	resp, err := c.call(ctx, http.MethodPut, "/v1.0/doc/documents/"+url.PathEscape(req.DocumentID), nil, body)
	if err != nil {
		return nil, err
	}
	return &UpdatedDocument{
		DocumentID: req.DocumentID,
		UpdateTime: resp["updateTime"],
		Version:    resp["version"],
	}, nil
}

// ListRequest filters and pages ListDocuments.
type ListRequest struct {
	SpaceID   string
	FolderID  string
	Keyword   string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

func (r *ListRequest) Validate() error {
	if r.Page == 0 {
		r.Page = 1
	}
	if r.PageSize == 0 {
		r.PageSize = DefaultPageSize
	}
	if r.SortBy == "" {
		r.SortBy = DefaultSortBy
	}
	if r.SortOrder == "" {
		r.SortOrder = "desc"
	}
	switch {
	case r.Page < 1:
		return &ValidationError{Field: "page", Message: "must be at least 1"}
	case r.PageSize < 1 || r.PageSize > MaxPageSize:
		return &ValidationError{Field: "page_size", Message: fmt.Sprintf("must be between 1 and %d", MaxPageSize)}
	case !slices.Contains(validSortOrders, r.SortOrder):
		return &ValidationError{Field: "sort_order", Message: "must be asc or desc"}
	}
	return nil
}

// ListDocuments lists accessible documents.
func (c *Client) ListDocuments(ctx context.Context, req ListRequest) (*DocumentList, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	query := map[string]string{
		"page":      strconv.Itoa(req.Page),
		"pageSize":  strconv.Itoa(req.PageSize),
		"sortBy":    req.SortBy,
		"sortOrder": req.SortOrder,
	}
	setIf(query, "spaceId", req.SpaceID)
	setIf(query, "folderId", req.FolderID)
	setIf(query, "keyword", req.Keyword)

	resp, err := c.call(ctx, http.MethodGet, "/v1.0/doc/documents", query, nil)
	if err != nil {
		return nil, err
	}

	list := &DocumentList{Documents: []DocumentSummary{}}
	docs, _ := resp["documents"].([]any)
	for _, d := range docs {
		doc, ok := d.(map[string]any)
		if !ok {
			continue
		}
		list.Documents = append(list.Documents, DocumentSummary{
			DocumentID: docID(doc),
			Title:      doc["title"],
			Summary:    doc["summary"],
			CreateTime: doc["createTime"],
			UpdateTime: doc["updateTime"],
			Author:     doc["author"],
			SpaceID:    doc["spaceId"],
			FolderID:   doc["folderId"],
		})
	}

	page, _ := resp["pagination"].(map[string]any)
	list.Pagination = Pagination{
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      intOf(page["total"]),
		TotalPages: intOf(page["totalPages"]),
	}
	if list.Pagination.TotalPages == 0 && list.Pagination.Total > 0 {
		list.Pagination.TotalPages = (list.Pagination.Total + req.PageSize - 1) / req.PageSize
	}
	return list, nil
}

func docID(m map[string]any) string {
	for _, k := range []string{"docId", "documentId"} {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func intOf(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

func setIf(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}
