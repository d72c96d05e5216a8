// Package assets stores generated media bytes and hands out URIs for them.
// URIs are "<baseURL>/<key>", where key is a slash separated object name.
package assets

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no asset exists for a URI.
var ErrNotFound = errors.New("asset not found")

// Store persists media and resolves URIs back to bytes.
type Store interface {
	Save(ctx context.Context, key string, data []byte, mimeType string) (string, error)
	Open(ctx context.Context, uri string) ([]byte, string, error)
}

var knownExt = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"audio/wav":  ".wav",
	"audio/mpeg": ".mp3",
	"video/mp4":  ".mp4",
}

// NewKey builds a unique object key such as "sb_1/scene-2-image-1a2b3c4d.png".
func NewKey(prefix, name, mimeType string) string {
	u := uuid.New().String()
	return path.Join(prefix, fmt.Sprintf("%s-%s%s", name, u[:8], extension(mimeType)))
}

func extension(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	if ext, ok := knownExt[base]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// ContentType guesses a MIME type from a key's extension.
func ContentType(key string) string {
	ext := path.Ext(key)
	for m, e := range knownExt {
		if e == ext {
			return m
		}
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// resolver maps keys to URIs under a base URL and back.
type resolver struct {
	baseURL string
}

func (r resolver) uri(key string) string {
	return strings.TrimRight(r.baseURL, "/") + "/" + key
}

// key extracts and validates the object key of a URI.
func (r resolver) key(uri string) (string, error) {
	prefix := strings.TrimRight(r.baseURL, "/") + "/"
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	key := strings.TrimPrefix(uri, prefix)
	if err := validKey(key); err != nil {
		return "", err
	}
	return key, nil
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || path.Clean(key) != key || strings.HasPrefix(key, "..") {
		return fmt.Errorf("invalid asset key %q", key)
	}
	return nil
}
