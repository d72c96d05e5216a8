// Package tasks tracks asynchronous units of work through a
// pending → running → completed|failed lifecycle.
package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskType groups tasks for display.
type TaskType string

const (
	TypeVideo      TaskType = "video"
	TypeImage      TaskType = "image"
	TypeAudio      TaskType = "audio"
	TypeScript     TaskType = "script"
	TypeCharacter  TaskType = "character"
	TypeStoryboard TaskType = "storyboard"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Active reports whether s is pending or running.
func (s TaskStatus) Active() bool {
	return s == TaskPending || s == TaskRunning
}

var (
	// ErrTerminal is returned when a transition out of a terminal status is attempted.
	ErrTerminal = errors.New("task is in a terminal state")
	// ErrCancelled is the failure recorded for a user cancellation.
	ErrCancelled = errors.New("cancelled by user")
	// ErrInterrupted is the failure recorded for a task whose process went away mid-run.
	ErrInterrupted = errors.New("interrupted by shutdown")
)

// unknownError is recorded when a job fails with an empty message.
const unknownError = "unknown error"

// Task represents an async unit of work. Timestamps are epoch milliseconds.
type Task struct {
	ID          string          `json:"id"`
	Type        TaskType        `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      TaskStatus      `json:"status"`
	Progress    int             `json:"progress"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	RelatedID   string          `json:"related_id,omitempty"`
	CreatedAt   int64           `json:"created_at"`
	StartedAt   *int64          `json:"started_at,omitempty"`
	CompletedAt *int64          `json:"completed_at,omitempty"`
}

// transition moves the task to status `to`, stamping StartedAt / CompletedAt
// the first time the corresponding state is entered.
func (t *Task) transition(to TaskStatus, now time.Time) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, t.ID, t.Status)
	}
	switch {
	case t.Status == TaskPending && to == TaskRunning:
		ms := now.UnixMilli()
		t.StartedAt = &ms
	case to == TaskCompleted && t.Status == TaskRunning,
		to == TaskFailed:
		ms := now.UnixMilli()
		t.CompletedAt = &ms
	default:
		return fmt.Errorf("invalid transition %s -> %s", t.Status, to)
	}
	t.Status = to
	return nil
}

// fail transitions to failed and records msg.
func (t *Task) fail(msg string, now time.Time) error {
	if err := t.transition(TaskFailed, now); err != nil {
		return err
	}
	if msg == "" {
		msg = unknownError
	}
	t.Error = msg
	return nil
}

// complete transitions to completed with progress 100 and the given result.
func (t *Task) complete(result json.RawMessage, now time.Time) error {
	if err := t.transition(TaskCompleted, now); err != nil {
		return err
	}
	t.Progress = 100
	t.Result = result
	return nil
}

// GenerateTaskID creates a unique task identifier.
func GenerateTaskID() string {
	u := uuid.New().String()
	return "task_" + strings.ReplaceAll(u[:8], "-", "")
}
