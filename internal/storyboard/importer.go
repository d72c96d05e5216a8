package storyboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps validation failures of a storyboard document.
var ErrInvalid = errors.New("invalid storyboard")

// ParseYAML decodes a storyboard document. JSON documents are accepted too.
// Unknown fields are rejected so typos do not silently drop scenes.
func ParseYAML(data []byte) (*Storyboard, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sb Storyboard
	if err := dec.Decode(&sb); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return &sb, nil
}

// EncodeYAML renders sb in the format ParseYAML reads.
func EncodeYAML(sb *Storyboard) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(sb); err != nil {
		return nil, fmt.Errorf("encode storyboard: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Import parses, normalizes, validates and stores a storyboard document.
// A document carrying the id of an existing storyboard replaces it.
func Import(ctx context.Context, store *Store, data []byte, defaultStyle, defaultAspect string) (*Storyboard, error) {
	sb, err := ParseYAML(data)
	if err != nil {
		return nil, err
	}
	if err := Save(ctx, store, sb, defaultStyle, defaultAspect); err != nil {
		return nil, err
	}
	return sb, nil
}

// Save normalizes, validates and stores sb, replacing the storyboard with
// the same id if there is one.
func Save(ctx context.Context, store *Store, sb *Storyboard, defaultStyle, defaultAspect string) error {
	sb.Normalize(defaultStyle, defaultAspect)
	if err := sb.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if sb.ID != "" {
		if _, err := store.Get(ctx, sb.ID); err == nil {
			return store.Replace(ctx, sb)
		}
	}
	return store.Create(ctx, sb)
}
