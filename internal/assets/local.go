package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local keeps assets as files under a directory.
type Local struct {
	dir string
	resolver
}

var _ Store = (*Local)(nil)

// NewLocal creates a Local store writing to dir and serving under baseURL.
func NewLocal(dir, baseURL string) *Local {
	return &Local{dir: dir, resolver: resolver{baseURL: baseURL}}
}

// Dir returns the root directory.
func (l *Local) Dir() string { return l.dir }

// Save atomically writes data and returns its URI.
func (l *Local) Save(_ context.Context, key string, data []byte, _ string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	path := filepath.Join(l.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write asset tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename asset: %w", err)
	}
	return l.uri(key), nil
}

func (l *Local) Open(_ context.Context, uri string) ([]byte, string, error) {
	key, err := l.key(uri)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(filepath.Join(l.dir, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, "", fmt.Errorf("read asset: %w", err)
	}
	return data, ContentType(key), nil
}
