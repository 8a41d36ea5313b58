package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DingTalk.BaseURL != DefaultDingTalkBaseURL {
		t.Errorf("BaseURL = %q", cfg.DingTalk.BaseURL)
	}
	if cfg.DingTalk.TokenTTLSeconds() != 7200 {
		t.Errorf("TTL = %d, want 7200", cfg.DingTalk.TokenTTLSeconds())
	}
	if cfg.Toolbox.CommandTimeout != 30 {
		t.Errorf("CommandTimeout = %d, want 30", cfg.Toolbox.CommandTimeout)
	}
	if len(cfg.Toolbox.BlockedCommands) != 5 {
		t.Errorf("BlockedCommands = %v", cfg.Toolbox.BlockedCommands)
	}
	if cfg.Browser.ViewportWidth != 1280 || cfg.Browser.ViewportHeight != 720 {
		t.Errorf("viewport = %dx%d", cfg.Browser.ViewportWidth, cfg.Browser.ViewportHeight)
	}
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
dingtalk:
  app_key: fileKeyfileKeyfileKey12
  base_url: https://example.test/
screenshot:
  output_dir: /tmp/shots
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DINGTALK_APP_KEY", "envKeyenvKeyenvKeyenvKey")
	t.Setenv("DINGTALK_TOKEN_CACHE_TTL", "600")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DingTalk.AppKey != "envKeyenvKeyenvKeyenvKey" {
		t.Errorf("env should override file, got %q", cfg.DingTalk.AppKey)
	}
	if cfg.DingTalk.BaseURL != "https://example.test" {
		t.Errorf("BaseURL = %q, trailing slash should be trimmed", cfg.DingTalk.BaseURL)
	}
	if cfg.Screenshot.OutputDir != "/tmp/shots" {
		t.Errorf("OutputDir = %q", cfg.Screenshot.OutputDir)
	}
	if cfg.DingTalk.TokenTTLSeconds() != 600 {
		t.Errorf("TTL = %d, want 600", cfg.DingTalk.TokenTTLSeconds())
	}
}

func TestLoadConfig_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte("{not json"), 0o600)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTokenTTLSeconds_Fallback(t *testing.T) {
	for _, raw := range []string{"", "abc", "-5", "0"} {
		d := DingTalkConfig{TokenCacheTTL: raw}
		if got := d.TokenTTLSeconds(); got != DefaultTokenCacheTTL {
			t.Errorf("TTL(%q) = %d, want %d", raw, got, DefaultTokenCacheTTL)
		}
	}
}

func TestValidateDingTalk(t *testing.T) {
	valid := DingTalkConfig{
		AppKey:    "dingabcdefghij1234567890",
		AppSecret: "abcdefghijklmnopqrstuvwxyz0123456789",
		BaseURL:   DefaultDingTalkBaseURL,
	}

	tests := []struct {
		name  string
		mod   func(*DingTalkConfig)
		field string
	}{
		{"valid", func(*DingTalkConfig) {}, ""},
		{"missing key", func(d *DingTalkConfig) { d.AppKey = "" }, "DINGTALK_APP_KEY"},
		{"short key", func(d *DingTalkConfig) { d.AppKey = "short" }, "DINGTALK_APP_KEY"},
		{"key with symbols", func(d *DingTalkConfig) { d.AppKey = "ding-abcdefghij-12345678" }, "DINGTALK_APP_KEY"},
		{"missing secret", func(d *DingTalkConfig) { d.AppSecret = "" }, "DINGTALK_APP_SECRET"},
		{"long secret", func(d *DingTalkConfig) { d.AppSecret = valid.AppSecret + "abcdefghijk" }, "DINGTALK_APP_SECRET"},
		{"bad url", func(d *DingTalkConfig) { d.BaseURL = "ftp://x" }, "DINGTALK_BASE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mod(&d)
			err := (&Config{DingTalk: d}).ValidateDingTalk()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandPath("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("ExpandPath(~/x) = %q", got)
	}
	if got := ExpandPath("/abs"); got != "/abs" {
		t.Errorf("ExpandPath(/abs) = %q", got)
	}
}
