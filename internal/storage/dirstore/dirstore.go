// Package dirstore is a storage.Backend that keeps each record in its own
// directory: <base>/<collection>/<id>/meta.json.
package dirstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dohr-michael/studio/internal/storage"
)

const metaFile = "meta.json"

// DirStore provides directory-based record storage.
type DirStore struct {
	mu      sync.RWMutex
	baseDir string
}

var _ storage.Backend = (*DirStore)(nil)

// New creates a DirStore rooted at baseDir.
func New(baseDir string) *DirStore {
	return &DirStore{baseDir: baseDir}
}

// Dir returns the directory path for a record.
func (ds *DirStore) Dir(collection, id string) string {
	return filepath.Join(ds.baseDir, collection, id)
}

func (ds *DirStore) metaPath(collection, id string) string {
	return filepath.Join(ds.Dir(collection, id), metaFile)
}

func (ds *DirStore) Get(_ context.Context, collection, id string) ([]byte, error) {
	if err := validName(collection, id); err != nil {
		return nil, err
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	data, err := os.ReadFile(ds.metaPath(collection, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read meta: %w", err)
	}
	return data, nil
}

// List returns every record in a collection, ordered by directory name.
// Directories without a meta.json are ignored.
func (ds *DirStore) List(_ context.Context, collection string) ([][]byte, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	ids, err := ds.listDirs(collection)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		data, err := os.ReadFile(ds.metaPath(collection, id))
		if err != nil {
			continue
		}
		out = append(out, data)
	}
	return out, nil
}

// Put atomically writes meta.json using a temp file + rename.
func (ds *DirStore) Put(_ context.Context, collection, id string, data []byte) error {
	if err := validName(collection, id); err != nil {
		return err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if err := os.MkdirAll(ds.Dir(collection, id), 0o755); err != nil {
		return fmt.Errorf("create %s dir: %w", collection, err)
	}

	path := ds.metaPath(collection, id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write meta tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename meta: %w", err)
	}
	return nil
}

// Delete removes the record directory and all its contents.
func (ds *DirStore) Delete(_ context.Context, collection, id string) error {
	if err := validName(collection, id); err != nil {
		return err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return os.RemoveAll(ds.Dir(collection, id))
}

func (ds *DirStore) Close() error { return nil }

func (ds *DirStore) listDirs(collection string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(ds.baseDir, collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s dir: %w", collection, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func validName(parts ...string) error {
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
			return fmt.Errorf("invalid record name %q", p)
		}
	}
	return nil
}
