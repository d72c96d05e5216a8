package tasks

import (
	"context"
	"log/slog"
	"time"
)

// ReconcileInterrupted fails every task left running by a previous process.
// No execution is in flight for them anymore, so they are never resumed.
func ReconcileInterrupted(ctx context.Context, store Store, now time.Time) ([]*Task, error) {
	running, err := store.List(ctx, ListFilter{Status: []TaskStatus{TaskRunning}})
	if err != nil {
		return nil, err
	}

	var reconciled []*Task
	for _, t := range running {
		if err := t.fail(ErrInterrupted.Error(), now); err != nil {
			slog.Warn("reconcile task", "task_id", t.ID, "error", err)
			continue
		}
		if err := store.Update(ctx, t); err != nil {
			slog.Warn("persist reconciled task", "task_id", t.ID, "error", err)
			continue
		}
		reconciled = append(reconciled, t)
	}
	return reconciled, nil
}
