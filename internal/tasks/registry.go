package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/studio/internal/events"
)

// ErrDisposed is returned by Enqueue after Dispose.
var ErrDisposed = errors.New("task registry disposed")

// errSkip aborts a mutation without writing.
var errSkip = errors.New("skip")

// RegistryConfig holds dependencies for the Registry.
type RegistryConfig struct {
	Store Store
	Bus   *events.Bus
	Now   func() time.Time // defaults to time.Now
}

// Registry creates tasks, runs their jobs in goroutines and records the outcome.
//
// All read-modify-write cycles on a task record are serialized by mu, so
// progress updates, cancellation and settlement never lose each other's writes.
// At most one execution is in flight per task id.
type Registry struct {
	store Store
	bus   *events.Bus
	now   func() time.Time

	mu sync.Mutex

	execMu    sync.Mutex
	executing map[string]context.CancelFunc
	disposed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a Registry. Call Init before serving reads.
func NewRegistry(cfg RegistryConfig) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		store:     cfg.Store,
		bus:       cfg.Bus,
		now:       now,
		executing: make(map[string]context.CancelFunc),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Store returns the underlying task store.
func (r *Registry) Store() Store {
	return r.store
}

// Init fails every task left running by a previous process and returns how
// many were reconciled.
func (r *Registry) Init(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reconciled, err := ReconcileInterrupted(ctx, r.store, r.now())
	if err != nil {
		return 0, fmt.Errorf("reconcile tasks: %w", err)
	}
	for _, t := range reconciled {
		slog.Warn("task interrupted by previous shutdown", "task_id", t.ID, "title", t.Title)
		r.bus.Publish(events.NewTypedEventWithRelated(events.SourceTask, events.TaskFailedPayload{
			TaskID: t.ID,
			Title:  t.Title,
			Error:  t.Error,
		}, t.RelatedID))
	}
	return len(reconciled), nil
}

// Dispose cancels every in-flight job and waits for executions to settle.
// Jobs interrupted this way are recorded as failed.
func (r *Registry) Dispose() {
	r.execMu.Lock()
	r.disposed = true
	r.execMu.Unlock()

	r.cancel()
	r.wg.Wait()
	slog.Info("task registry disposed")
}

// Enqueue persists a pending task for job and starts executing it in the
// background. Only a store failure is reported synchronously; job failures
// surface through the task's terminal state.
func (r *Registry) Enqueue(job Job, relatedID string) (string, error) {
	r.execMu.Lock()
	if r.disposed {
		r.execMu.Unlock()
		return "", ErrDisposed
	}
	r.wg.Add(1)
	r.execMu.Unlock()

	t := &Task{
		ID:        GenerateTaskID(),
		Type:      job.Kind(),
		Title:     job.Title(),
		Status:    TaskPending,
		RelatedID: relatedID,
		CreatedAt: r.now().UnixMilli(),
	}
	if d, ok := job.(Describer); ok {
		t.Description = d.Description()
	}

	if err := r.store.Create(context.Background(), t); err != nil {
		r.wg.Done()
		return "", err
	}

	r.bus.Publish(events.NewTypedEventWithRelated(events.SourceTask, events.TaskCreatedPayload{
		TaskID:    t.ID,
		Type:      string(t.Type),
		Title:     t.Title,
		RelatedID: relatedID,
	}, relatedID))

	go func() {
		defer r.wg.Done()
		r.execute(t.ID, job)
	}()

	return t.ID, nil
}

// execute runs job for task id. A second call for an id already executing
// is a no-op, and a task that is no longer pending is left alone.
func (r *Registry) execute(id string, job Job) {
	r.execMu.Lock()
	if _, busy := r.executing[id]; busy {
		r.execMu.Unlock()
		slog.Debug("task already executing", "task_id", id)
		return
	}
	ctx, cancel := context.WithCancel(r.ctx)
	r.executing[id] = cancel
	r.execMu.Unlock()

	defer func() {
		cancel()
		r.execMu.Lock()
		delete(r.executing, id)
		r.execMu.Unlock()
	}()

	started, err := r.mutate(id, func(t *Task) error {
		if t.Status != TaskPending {
			return errSkip
		}
		return t.transition(TaskRunning, r.now())
	})
	if err != nil {
		if !errors.Is(err, errSkip) {
			slog.Error("start task", "error", err, "task_id", id)
		}
		return
	}

	slog.Info("task started", "task_id", id, "type", started.Type, "title", started.Title)
	r.bus.Publish(events.NewTypedEventWithRelated(events.SourceTask, events.TaskStartedPayload{
		TaskID: id,
		Title:  started.Title,
	}, started.RelatedID))

	begin := r.now()
	result, runErr := r.run(events.ContextWithTaskID(ctx, id), job, r.progressFunc(id))
	r.settle(id, begin, result, runErr)
}

// run invokes the job, converting a panic into an error.
func (r *Registry) run(ctx context.Context, job Job, progress ProgressFunc) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return job.Run(ctx, progress)
}

func (r *Registry) progressFunc(id string) ProgressFunc {
	return func(percent int, description string) {
		percent = min(max(percent, 0), 100)
		t, err := r.mutate(id, func(t *Task) error {
			if t.Status != TaskRunning {
				return errSkip
			}
			t.Progress = percent
			if description != "" {
				t.Description = description
			}
			return nil
		})
		if err != nil {
			return
		}
		r.bus.Publish(events.NewTypedEventWithRelated(events.SourceTask, events.TaskProgressPayload{
			TaskID:      id,
			Progress:    percent,
			Description: description,
		}, t.RelatedID))
	}
}

// settle records the job outcome unless the task was already terminated
// from outside (cancellation) while the job was running.
func (r *Registry) settle(id string, begin time.Time, result any, runErr error) {
	var raw json.RawMessage
	if runErr == nil && result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			runErr = fmt.Errorf("marshal result: %w", err)
		} else {
			raw = data
		}
	}
	if runErr != nil && r.ctx.Err() != nil {
		runErr = ErrInterrupted
	}

	t, err := r.mutate(id, func(t *Task) error {
		if t.Status.Terminal() {
			return errSkip
		}
		if runErr != nil {
			return t.fail(runErr.Error(), r.now())
		}
		return t.complete(raw, r.now())
	})
	if err != nil {
		if errors.Is(err, errSkip) {
			slog.Info("task already terminated, keeping its state", "task_id", id)
		} else {
			slog.Error("settle task", "error", err, "task_id", id)
		}
		return
	}

	if t.Status == TaskFailed {
		slog.Error("task failed", "error", t.Error, "task_id", id)
		r.bus.Publish(events.NewTypedEventWithRelated(events.SourceTask, events.TaskFailedPayload{
			TaskID: id,
			Title:  t.Title,
			Error:  t.Error,
		}, t.RelatedID))
		return
	}

	slog.Info("task completed", "task_id", id, "duration", r.now().Sub(begin))
	r.bus.Publish(events.NewTypedEventWithRelated(events.SourceTask, events.TaskCompletedPayload{
		TaskID:   id,
		Title:    t.Title,
		Duration: r.now().Sub(begin),
	}, t.RelatedID))
}

// Cancel fails a pending or running task with ErrCancelled and signals the
// job's context. Cancelling a terminal task is a no-op.
func (r *Registry) Cancel(id string) error {
	t, err := r.mutate(id, func(t *Task) error {
		if t.Status.Terminal() {
			return errSkip
		}
		return t.fail(ErrCancelled.Error(), r.now())
	})
	if err != nil {
		if errors.Is(err, errSkip) {
			return nil
		}
		return err
	}

	r.execMu.Lock()
	if cancel, ok := r.executing[id]; ok {
		cancel()
	}
	r.execMu.Unlock()

	slog.Info("task cancelled", "task_id", id)
	r.bus.Publish(events.NewTypedEventWithRelated(events.SourceTask, events.TaskCancelledPayload{
		TaskID: id,
		Reason: ErrCancelled.Error(),
	}, t.RelatedID))
	return nil
}

// ClearCompleted deletes every completed or failed task.
func (r *Registry) ClearCompleted() (int, error) {
	return r.deleteFinished(func(*Task) bool { return true })
}

// Prune deletes finished tasks that completed before cutoff.
func (r *Registry) Prune(cutoff time.Time) (int, error) {
	ms := cutoff.UnixMilli()
	n, err := r.deleteFinished(func(t *Task) bool {
		at := t.CreatedAt
		if t.CompletedAt != nil {
			at = *t.CompletedAt
		}
		return at < ms
	})
	if err != nil {
		return n, err
	}
	if n > 0 {
		r.bus.Publish(events.NewTypedEvent(events.SourceScheduler, events.TasksPrunedPayload{
			Count:  n,
			Before: cutoff,
		}))
	}
	return n, nil
}

func (r *Registry) deleteFinished(match func(*Task) bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()
	finished, err := r.store.List(ctx, ListFilter{Status: []TaskStatus{TaskCompleted, TaskFailed}})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, t := range finished {
		if !match(t) {
			continue
		}
		if err := r.store.Delete(ctx, t.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// List returns all tasks, newest first.
func (r *Registry) List() ([]*Task, error) {
	return r.store.List(context.Background(), ListFilter{})
}

// Active returns pending and running tasks, newest first.
func (r *Registry) Active() ([]*Task, error) {
	return r.store.List(context.Background(), ListFilter{Status: []TaskStatus{TaskPending, TaskRunning}})
}

// Get returns one task by id.
func (r *Registry) Get(id string) (*Task, error) {
	return r.store.Get(context.Background(), id)
}

// Executing reports whether a job is currently in flight for id.
func (r *Registry) Executing(id string) bool {
	r.execMu.Lock()
	defer r.execMu.Unlock()
	_, ok := r.executing[id]
	return ok
}

// mutate re-reads the task, applies fn and persists the result.
func (r *Registry) mutate(id string, fn func(*Task) error) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	if err := r.store.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}
