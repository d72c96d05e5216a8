package storyboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dohr-michael/studio/internal/storage"
)

// Collection is the record collection storyboards are stored in.
const Collection = "storyboards"

// Store persists storyboards. Every write goes through a single lock so
// concurrent jobs updating different scenes never lose each other's fields.
type Store struct {
	mu      sync.Mutex
	records *storage.Collection[Storyboard]
	now     func() time.Time
}

// NewStore creates a storyboard store over backend.
func NewStore(backend storage.Backend) *Store {
	return &Store{
		records: storage.NewCollection[Storyboard](backend, Collection),
		now:     time.Now,
	}
}

// Create assigns an id and timestamps and persists sb.
func (s *Store) Create(ctx context.Context, sb *Storyboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sb.ID == "" {
		sb.ID = GenerateID()
	}
	now := s.now().UnixMilli()
	sb.CreatedAt = now
	sb.UpdatedAt = now
	if err := s.records.Put(ctx, sb.ID, sb); err != nil {
		return fmt.Errorf("create storyboard: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*Storyboard, error) {
	sb, err := s.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get storyboard: %w", err)
	}
	return sb, nil
}

// List returns all storyboards, most recently updated first.
func (s *Store) List(ctx context.Context) ([]*Storyboard, error) {
	all, err := s.records.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list storyboards: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].UpdatedAt > all[j].UpdatedAt
	})
	return all, nil
}

// Replace overwrites an existing storyboard, keeping its creation time.
// sb is refreshed with the stored timestamps.
func (s *Store) Replace(ctx context.Context, sb *Storyboard) error {
	updated, err := s.Update(ctx, sb.ID, func(cur *Storyboard) error {
		created := cur.CreatedAt
		*cur = *sb
		cur.CreatedAt = created
		return nil
	})
	if err != nil {
		return err
	}
	*sb = *updated
	return nil
}

// Update re-reads the storyboard, applies fn and persists it.
// If fn returns an error nothing is written.
func (s *Store) Update(ctx context.Context, id string, fn func(*Storyboard) error) (*Storyboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sb, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sb); err != nil {
		return nil, err
	}
	sb.UpdatedAt = s.now().UnixMilli()
	if err := s.records.Put(ctx, id, sb); err != nil {
		return nil, fmt.Errorf("update storyboard: %w", err)
	}
	return sb, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.records.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete storyboard: %w", err)
	}
	return nil
}
