package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// PowerShell runs script on the Windows host (natively or from WSL) and
// returns stdout decoded to UTF-8.
func PowerShell(ctx context.Context, r Runner, env Env, script string) (string, error) {
	out, err := r.Run(ctx, Command{
		Name: env.PowerShellBin(),
		Args: []string{"-NoProfile", "-NonInteractive", "-Command", script},
	})
	stdout := DecodeConsole([]byte(out.Stdout))
	if err != nil {
		if stderr := strings.TrimSpace(DecodeConsole([]byte(out.Stderr))); stderr != "" {
			return stdout, fmt.Errorf("powershell: %s: %w", firstLine(stderr), err)
		}
		return stdout, fmt.Errorf("powershell: %w", err)
	}
	return strings.TrimSpace(stdout), nil
}

// PowerShellJSON runs script and decodes its ConvertTo-Json output into v.
// ConvertTo-Json emits a bare object for single-element arrays; when v is
// a pointer to a slice that object is wrapped.
func PowerShellJSON(ctx context.Context, r Runner, env Env, script string, v any) error {
	out, err := PowerShell(ctx, r, env, script)
	if err != nil {
		return err
	}
	return DecodeJSONList([]byte(out), v)
}

// DecodeJSONList unmarshals data into v, wrapping a lone object when v is a slice.
func DecodeJSONList(data []byte, v any) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return errors.New("empty output")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.Slice && strings.HasPrefix(trimmed, "{") {
		trimmed = "[" + trimmed + "]"
	}
	if err := json.Unmarshal([]byte(trimmed), v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// DecodeConsole converts Windows console output to UTF-8. A Chinese-locale
// host writes GBK; valid UTF-8 is passed through untouched.
func DecodeConsole(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(decoded)
}

// WindowsPath translates a WSL path for use by Windows programs.
func WindowsPath(ctx context.Context, r Runner, linuxPath string) (string, error) {
	out, err := Run(ctx, r, "wslpath", "-w", linuxPath)
	if err != nil {
		return "", fmt.Errorf("wslpath: %w", err)
	}
	return strings.TrimSpace(out.Stdout), nil
}

// PSQuote quotes s as a single-quoted PowerShell literal.
func PSQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
