package browser

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/joho/godotenv"
)

// MissingCredentialError is returned when a credential key is not in the
// env file. It lists the keys that are.
type MissingCredentialError struct {
	Key       string
	Available []string
	EnvFile   string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("credential %q is not configured", e.Key)
}

func (e *MissingCredentialError) ErrorCode() string { return "CREDENTIAL_NOT_FOUND" }

func (e *MissingCredentialError) ErrorDetails() map[string]any {
	return map[string]any{
		"available_keys": e.Available,
		"hint":           fmt.Sprintf("add %s=your_value to %s", e.Key, e.EnvFile),
	}
}

// LoadCredentials reads KEY=VALUE pairs from path. A missing file is an
// empty set.
func LoadCredentials(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	creds, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", path, err)
	}
	return creds, nil
}

// CredentialKeys returns the sorted key names. Values never leave this package.
func CredentialKeys(creds map[string]string) []string {
	keys := make([]string, 0, len(creds))
	for k := range creds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Manager) credential(key string) (string, error) {
	creds, err := LoadCredentials(m.config.EnvFile)
	if err != nil {
		return "", err
	}
	v, ok := creds[key]
	if !ok {
		return "", &MissingCredentialError{Key: key, Available: CredentialKeys(creds), EnvFile: m.config.EnvFile}
	}
	return v, nil
}
