package toolbox

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// MaxBodyChars bounds the response body returned to the caller.
const MaxBodyChars = 5000

// HTTPResponse is what http_get and http_post report.
type HTTPResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Truncated  bool              `json:"truncated,omitempty"`
}

// PostRequest carries the optional http_post payloads. JSON wins over Data.
type PostRequest struct {
	Data    map[string]any
	JSON    map[string]any
	Headers map[string]string
}

// HTTPClient issues the toolbox's outbound requests.
type HTTPClient struct {
	client *resty.Client
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: resty.New().SetTimeout(timeout)}
}

func (h *HTTPClient) Get(ctx context.Context, url string, headers map[string]string) (HTTPResponse, error) {
	resp, err := h.client.R().SetContext(ctx).SetHeaders(headers).Get(url)
	if err != nil {
		return HTTPResponse{}, fmt.Errorf("GET %s: %w", url, err)
	}
	return toResponse(resp), nil
}

func (h *HTTPClient) Post(ctx context.Context, url string, req PostRequest) (HTTPResponse, error) {
	r := h.client.R().SetContext(ctx).SetHeaders(req.Headers)
	switch {
	case req.JSON != nil:
		r.SetHeader("Content-Type", "application/json").SetBody(req.JSON)
	case req.Data != nil:
		form := make(map[string]string, len(req.Data))
		for k, v := range req.Data {
			form[k] = fmt.Sprint(v)
		}
		r.SetFormData(form)
	}
	resp, err := r.Post(url)
	if err != nil {
		return HTTPResponse{}, fmt.Errorf("POST %s: %w", url, err)
	}
	return toResponse(resp), nil
}

func toResponse(resp *resty.Response) HTTPResponse {
	out := HTTPResponse{
		StatusCode: resp.StatusCode(),
		Headers:    flattenHeaders(resp.Header()),
	}
	out.Body, out.Truncated = truncateRunes(resp.String(), MaxBodyChars)
	return out
}

func flattenHeaders(h http.Header) map[string]string {
	flat := make(map[string]string, len(h))
	for k, v := range h {
		flat[k] = strings.Join(v, ", ")
	}
	return flat
}

func truncateRunes(s string, limit int) (string, bool) {
	r := []rune(s)
	if len(r) <= limit {
		return s, false
	}
	return string(r[:limit]), true
}
