// Package config loads deskclaw settings from a JSON or YAML file, a
// working-directory .env file and the process environment, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDingTalkBaseURL  = "https://api.dingtalk.com"
	DefaultTokenCacheTTL    = 7200
	DefaultCommandTimeout   = 30
	DefaultBrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	appKeyPattern    = regexp.MustCompile(`^[a-zA-Z0-9]{20,30}$`)
	appSecretPattern = regexp.MustCompile(`^[a-zA-Z0-9]{30,40}$`)
)

// Config is the full deskclaw configuration.
type Config struct {
	DingTalk   DingTalkConfig   `json:"dingtalk" yaml:"dingtalk"`
	Screenshot ScreenshotConfig `json:"screenshot" yaml:"screenshot"`
	Browser    BrowserConfig    `json:"browser" yaml:"browser"`
	Toolbox    ToolboxConfig    `json:"toolbox" yaml:"toolbox"`
	Excel      ExcelConfig      `json:"excel" yaml:"excel"`
	Audit      AuditConfig      `json:"audit" yaml:"audit"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
}

// DingTalkConfig holds the document API credentials.
//
// TokenCacheTTL is read as a string so that a malformed value falls back to
// the default instead of failing the whole load.
type DingTalkConfig struct {
	AppKey        string `json:"app_key" yaml:"app_key" env:"DINGTALK_APP_KEY"`
	AppSecret     string `json:"app_secret" yaml:"app_secret" env:"DINGTALK_APP_SECRET"`
	TenantID      string `json:"tenant_id" yaml:"tenant_id" env:"DINGTALK_TENANT_ID"`
	BaseURL       string `json:"base_url" yaml:"base_url" env:"DINGTALK_BASE_URL"`
	TokenCacheTTL string `json:"token_cache_ttl" yaml:"token_cache_ttl" env:"DINGTALK_TOKEN_CACHE_TTL"`
}

type ScreenshotConfig struct {
	OutputDir string `json:"output_dir" yaml:"output_dir" env:"SCREENSHOT_OUTPUT_DIR"`
}

type BrowserConfig struct {
	Headless       bool     `json:"headless" yaml:"headless" env:"BROWSER_HEADLESS"`
	SessionDir     string   `json:"session_dir" yaml:"session_dir" env:"BROWSER_SESSION_DIR"`
	EnvFile        string   `json:"env_file" yaml:"env_file" env:"BROWSER_ENV_FILE"`
	BrowserBin     string   `json:"browser_bin" yaml:"browser_bin" env:"BROWSER_BIN"`
	AllowedDomains []string `json:"allowed_domains" yaml:"allowed_domains" env:"BROWSER_ALLOWED_DOMAINS" envSeparator:","`
	ViewportWidth  int      `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int      `json:"viewport_height" yaml:"viewport_height"`
	UserAgent      string   `json:"user_agent" yaml:"user_agent" env:"BROWSER_USER_AGENT"`
}

type ToolboxConfig struct {
	BlockedCommands []string `json:"blocked_commands" yaml:"blocked_commands"`
	CommandTimeout  int      `json:"command_timeout" yaml:"command_timeout" env:"TOOLBOX_COMMAND_TIMEOUT"`
}

type ExcelConfig struct {
	Workspace string `json:"workspace" yaml:"workspace" env:"EXCEL_WORKSPACE"`
}

type AuditConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"DESKCLAW_AUDIT"`
	Backend string `json:"backend" yaml:"backend" env:"DESKCLAW_AUDIT_BACKEND"` // file | sqlite
	Dir     string `json:"dir" yaml:"dir" env:"DESKCLAW_AUDIT_DIR"`
}

type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr" env:"DESKCLAW_METRICS_ADDR"`
}

// HomeDir returns ~/.deskclaw.
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".deskclaw")
}

// DefaultPath is the config file looked up when none is given.
func DefaultPath() string {
	return filepath.Join(HomeDir(), "config.json")
}

// DefaultConfig returns a config with every default filled in.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DingTalk: DingTalkConfig{
			BaseURL:       DefaultDingTalkBaseURL,
			TokenCacheTTL: strconv.Itoa(DefaultTokenCacheTTL),
		},
		Screenshot: ScreenshotConfig{
			OutputDir: filepath.Join(home, "screenshot_mcp"),
		},
		Browser: BrowserConfig{
			Headless:       true,
			SessionDir:     filepath.Join(home, ".browser_use_mcp", "sessions"),
			EnvFile:        filepath.Join(home, ".browser_use_mcp", ".env"),
			ViewportWidth:  1280,
			ViewportHeight: 720,
			UserAgent:      DefaultBrowserUserAgent,
		},
		Toolbox: ToolboxConfig{
			BlockedCommands: []string{"rm -rf /", "format", "del /s", "shutdown", "reboot"},
			CommandTimeout:  DefaultCommandTimeout,
		},
		Excel: ExcelConfig{Workspace: "."},
		Audit: AuditConfig{
			Backend: "file",
			Dir:     filepath.Join(HomeDir(), "audit"),
		},
	}
}

// LoadConfig reads path (if it exists), then .env, then the environment.
// A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// .env never overrides variables already set in the process.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func (c *Config) normalize() {
	c.DingTalk.AppKey = strings.TrimSpace(c.DingTalk.AppKey)
	c.DingTalk.AppSecret = strings.TrimSpace(c.DingTalk.AppSecret)
	if c.DingTalk.BaseURL == "" {
		c.DingTalk.BaseURL = DefaultDingTalkBaseURL
	}
	c.DingTalk.BaseURL = strings.TrimRight(c.DingTalk.BaseURL, "/")
	if c.Toolbox.CommandTimeout <= 0 {
		c.Toolbox.CommandTimeout = DefaultCommandTimeout
	}
	if c.Browser.ViewportWidth <= 0 {
		c.Browser.ViewportWidth = 1280
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 720
	}
	if c.Browser.UserAgent == "" {
		c.Browser.UserAgent = DefaultBrowserUserAgent
	}
	if c.Audit.Backend == "" {
		c.Audit.Backend = "file"
	}
}

// TokenTTLSeconds parses the token cache TTL, falling back to 7200 on
// anything that is not a positive integer.
func (d DingTalkConfig) TokenTTLSeconds() int {
	n, err := strconv.Atoi(strings.TrimSpace(d.TokenCacheTTL))
	if err != nil || n <= 0 {
		return DefaultTokenCacheTTL
	}
	return n
}

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) ErrorCode() string { return "CONFIG_ERROR" }

func (e *ValidationError) ErrorDetails() map[string]any {
	return map[string]any{"field": e.Field}
}

// ValidateDingTalk checks the app credentials before the client is built.
func (c *Config) ValidateDingTalk() error {
	d := c.DingTalk
	switch {
	case d.AppKey == "":
		return &ValidationError{Field: "DINGTALK_APP_KEY", Message: "is required"}
	case !appKeyPattern.MatchString(d.AppKey):
		return &ValidationError{Field: "DINGTALK_APP_KEY", Message: "must be 20-30 alphanumeric characters"}
	case d.AppSecret == "":
		return &ValidationError{Field: "DINGTALK_APP_SECRET", Message: "is required"}
	case !appSecretPattern.MatchString(d.AppSecret):
		return &ValidationError{Field: "DINGTALK_APP_SECRET", Message: "must be 30-40 alphanumeric characters"}
	case !strings.HasPrefix(d.BaseURL, "http://") && !strings.HasPrefix(d.BaseURL, "https://"):
		return &ValidationError{Field: "DINGTALK_BASE_URL", Message: "must be an http(s) URL"}
	}
	return nil
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
