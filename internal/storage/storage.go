// Package storage defines the record store used for tasks and storyboards.
//
// A Backend stores opaque JSON documents grouped into named collections.
// Implementations live in sub-packages (dirstore, sqlstore, levelstore,
// redisstore) and a Memory backend is provided here for tests and ephemeral runs.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotFound is returned by Backend.Get when no record exists for an id.
var ErrNotFound = errors.New("record not found")

// Backend persists raw records keyed by collection and id.
// Delete of a missing record is not an error.
type Backend interface {
	Get(ctx context.Context, collection, id string) ([]byte, error)
	List(ctx context.Context, collection string) ([][]byte, error)
	Put(ctx context.Context, collection, id string, data []byte) error
	Delete(ctx context.Context, collection, id string) error
	Close() error
}

// Collection is a typed JSON view over one backend collection.
type Collection[T any] struct {
	backend Backend
	name    string
}

// NewCollection binds a typed collection to a backend.
func NewCollection[T any](backend Backend, name string) *Collection[T] {
	return &Collection[T]{backend: backend, name: name}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Get loads and decodes the record with the given id.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	data, err := c.backend.Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s %s: %w", c.name, id, err)
	}
	return &v, nil
}

// All decodes every record in the collection. Corrupt records are skipped.
func (c *Collection[T]) All(ctx context.Context) ([]*T, error) {
	rows, err := c.backend.List(ctx, c.name)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(rows))
	for _, data := range rows {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			slog.Warn("skip corrupt record", "collection", c.name, "error", err)
			continue
		}
		out = append(out, &v)
	}
	return out, nil
}

// Put encodes and stores v under id. Embedded raw JSON is kept byte for byte.
func (c *Collection[T]) Put(ctx context.Context, id string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s %s: %w", c.name, id, err)
	}
	return c.backend.Put(ctx, c.name, id, data)
}

// Delete removes the record with the given id.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.backend.Delete(ctx, c.name, id)
}
