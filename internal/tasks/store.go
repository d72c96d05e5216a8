package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dohr-michael/studio/internal/storage"
)

// Collection is the record collection tasks are stored in.
const Collection = "tasks"

// ErrNotFound is returned when no task exists for an id.
var ErrNotFound = errors.New("task not found")

// ListFilter defines criteria for filtering task lists.
type ListFilter struct {
	Status    []TaskStatus `json:"status,omitempty"`
	RelatedID string       `json:"related_id,omitempty"`
}

func (f ListFilter) match(t *Task) bool {
	if f.RelatedID != "" && t.RelatedID != f.RelatedID {
		return false
	}
	if len(f.Status) == 0 {
		return true
	}
	for _, s := range f.Status {
		if t.Status == s {
			return true
		}
	}
	return false
}

// Store defines the persistence interface for tasks.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, filter ListFilter) ([]*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
}

// RecordStore persists tasks as JSON records in a storage backend.
type RecordStore struct {
	records *storage.Collection[Task]
}

var _ Store = (*RecordStore)(nil)

// NewStore creates a task store over backend.
func NewStore(backend storage.Backend) *RecordStore {
	return &RecordStore{records: storage.NewCollection[Task](backend, Collection)}
}

// Create assigns an id and creation time when missing and persists the task.
func (s *RecordStore) Create(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = GenerateTaskID()
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().UnixMilli()
	}
	if err := s.records.Put(ctx, t.ID, t); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *RecordStore) Get(ctx context.Context, id string) (*Task, error) {
	t, err := s.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// List returns tasks matching the filter, newest first.
func (s *RecordStore) List(ctx context.Context, filter ListFilter) ([]*Task, error) {
	all, err := s.records.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(all))
	for _, t := range all {
		if filter.match(t) {
			tasks = append(tasks, t)
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt != tasks[j].CreatedAt {
			return tasks[i].CreatedAt > tasks[j].CreatedAt
		}
		return tasks[i].ID > tasks[j].ID
	})
	return tasks, nil
}

func (s *RecordStore) Update(ctx context.Context, t *Task) error {
	if err := s.records.Put(ctx, t.ID, t); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (s *RecordStore) Delete(ctx context.Context, id string) error {
	if err := s.records.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
