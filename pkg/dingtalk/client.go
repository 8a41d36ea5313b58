// Package dingtalk is a client for the DingTalk open platform document API
// and the MCP tools built on it.
package dingtalk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/freitascorp/deskclaw/pkg/config"
	"github.com/freitascorp/deskclaw/pkg/logger"
	"github.com/freitascorp/deskclaw/pkg/resilience"
)

const (
	// TokenHeader carries the access token on every API call.
	TokenHeader = "x-acs-dingtalk-access-token"

	// ExpiryMargin is how long before its expiry a token stops being used.
	ExpiryMargin = 300 * time.Second

	requestTimeout = 30 * time.Second
	tokenPath      = "/v1.0/oauth2/accessToken"
)

// Client calls the DingTalk API, refreshing the access token as needed.
// It is safe for concurrent use.
type Client struct {
	cfg     config.DingTalkConfig
	http    *resty.Client
	breaker *resilience.CircuitBreaker
	limiter *resilience.RateLimiter
	retry   resilience.RetryConfig
	now     func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithRetry overrides the token refresh backoff.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = rc }
}

// WithClock substitutes the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRateLimit caps outgoing API calls per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = resilience.NewRateLimiter(perSecond, burst) }
}

func NewClient(cfg config.DingTalkConfig, opts ...Option) *Client {
	c := &Client{
		cfg: cfg,
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(requestTimeout).
			SetHeader("Content-Type", "application/json"),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "dingtalk-api",
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
			OnStateChange: func(name string, from, to resilience.CircuitState) {
				logger.WarnCF("dingtalk", "Circuit breaker state changed", map[string]any{
					"breaker": name, "from": from.String(), "to": to.String(),
				})
			},
		}),
		limiter: resilience.NewRateLimiter(20, 20),
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns a valid access token, fetching a new one when none is
// cached or the cached one is within ExpiryMargin of expiring.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt.Add(-ExpiryMargin)) {
		return c.token, nil
	}

	token, ttl, err := c.requestToken(ctx)
	if err != nil {
		c.token = ""
		c.expiresAt = time.Time{}
		return "", err
	}
	c.token = token
	c.expiresAt = c.now().Add(ttl)
	logger.InfoCF("dingtalk", "Access token refreshed", map[string]any{
		"expires_in": int(ttl.Seconds()),
	})
	return token, nil
}

// Invalidate drops the cached token.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *Client) requestToken(ctx context.Context) (string, time.Duration, error) {
	rc := c.retry
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.WarnCF("dingtalk", "Token request failed, retrying", map[string]any{
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
	}

	var (
		token string
		ttl   time.Duration
	)
	err := resilience.Retry(ctx, rc, func(attempt int) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]string{"appKey": c.cfg.AppKey, "appSecret": c.cfg.AppSecret}).
			Post(tokenPath)
		if err != nil {
			if ctx.Err() != nil {
				return resilience.Permanent(ctx.Err())
			}
			return newAuthError(CodeHTTP, "failed to get access token: HTTP request error", err.Error())
		}
		if resp.IsError() {
			return newAuthError(CodeHTTP, "failed to get access token: HTTP request error",
				fmt.Sprintf("status %d: %s", resp.StatusCode(), truncate(string(resp.Body()), 500)))
		}

		var body struct {
			AccessToken string          `json:"accessToken"`
			ExpireIn    json.RawMessage `json:"expireIn"`
		}
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return newAuthError(CodeUnknown, "failed to get access token: unknown error", err.Error())
		}
		if body.AccessToken == "" {
			return newAuthError(CodeTokenMissing, "failed to get access token: accessToken missing from response",
				truncate(string(resp.Body()), 500))
		}
		token = body.AccessToken
		ttl = time.Duration(parseSeconds(body.ExpireIn, c.cfg.TokenTTLSeconds())) * time.Second
		return nil
	})
	if err != nil {
		var ae *AuthError
		if errors.As(err, &ae) {
			return "", 0, ae
		}
		return "", 0, newAuthError(CodeUnknown, "failed to get access token: unknown error", err.Error())
	}
	return token, ttl, nil
}

// parseSeconds accepts expireIn as a JSON number or numeric string.
func parseSeconds(raw json.RawMessage, fallback int) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// call performs one authenticated request and decodes the JSON object
// response. Transport failures and 5xx responses count against the
// circuit breaker; 4xx and business errors do not.
func (c *Client) call(ctx context.Context, method, path string, query map[string]string, body any) (map[string]any, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	logger.DebugCF("dingtalk", "API request", map[string]any{
		"method": method,
		"path":   path,
		"token":  maskToken(token),
	})

	var (
		data   map[string]any
		apiErr error
	)
	err = c.breaker.Execute(func() error {
		req := c.http.R().SetContext(ctx).SetHeader(TokenHeader, token)
		if len(query) > 0 {
			req.SetQueryParams(query)
		}
		if body != nil {
			req.SetBody(body)
		}
		resp, err := req.Execute(method, path)
		if err != nil {
			return &APIError{Message: "API request failed: HTTP error", Code: CodeHTTP, Details: err.Error()}
		}

		raw := resp.Body()
		var decoded map[string]any
		decodeErr := json.Unmarshal(raw, &decoded)

		if resp.IsError() {
			e := httpError(resp.StatusCode(), decoded, raw)
			if resp.StatusCode() == http.StatusUnauthorized {
				c.Invalidate()
			}
			if resp.StatusCode() >= http.StatusInternalServerError {
				return e
			}
			apiErr = e
			return nil
		}
		if decodeErr != nil {
			apiErr = &APIError{Message: "API request failed: unknown error", Code: CodeUnknown, Details: decodeErr.Error()}
			return nil
		}
		if code := errcode(decoded); code != "" {
			msg, _ := decoded["errmsg"].(string)
			if msg == "" {
				msg = "unknown error"
			}
			apiErr = &APIError{Message: msg, Code: code, Details: truncate(string(raw), 500)}
			return nil
		}
		data = decoded
		return nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, &APIError{Message: "DingTalk API temporarily unavailable", Code: CodeCircuitOpen, Details: err.Error()}
		}
		logger.ErrorCF("dingtalk", "API request failed", map[string]any{"method": method, "path": path, "error": err.Error()})
		return nil, err
	}
	if apiErr != nil {
		logger.WarnCF("dingtalk", "API returned an error", map[string]any{"method": method, "path": path, "error": apiErr.Error()})
		return nil, apiErr
	}
	return data, nil
}

func httpError(status int, body map[string]any, raw []byte) *APIError {
	e := &APIError{
		Message: fmt.Sprintf("API request failed: HTTP %d", status),
		Code:    CodeHTTP,
		Details: truncate(string(raw), 500),
	}
	if msg, ok := body["message"].(string); ok && msg != "" {
		e.Message = msg
	}
	if code, ok := body["code"].(string); ok && code != "" {
		e.Code = code
	}
	return e
}

// errcode returns the business error code of a response, or "" for success.
func errcode(body map[string]any) string {
	switch v := body["errcode"].(type) {
	case float64:
		if v != 0 {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	case string:
		if v != "" && v != "0" {
			return v
		}
	}
	return ""
}

func maskToken(t string) string {
	if len(t) <= 8 {
		return "***"
	}
	return t[:8] + "..."
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
