package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pruner deletes finished tasks that completed before cutoff.
type Pruner interface {
	Prune(cutoff time.Time) (int, error)
}

// Retention prunes finished tasks older than MaxAge each time its cron
// schedule fires. The schedule is checked once a minute.
type Retention struct {
	pruner Pruner
	now    func() time.Time

	mu      sync.Mutex
	cron    *CronExpr
	maxAge  time.Duration
	lastRun time.Time

	done chan struct{}
	wg   sync.WaitGroup
}

// NewRetention creates a retention job. A zero maxAge disables pruning.
func NewRetention(pruner Pruner, schedule string, maxAge time.Duration) (*Retention, error) {
	r := &Retention{pruner: pruner, now: time.Now}
	if err := r.Update(schedule, maxAge); err != nil {
		return nil, err
	}
	return r, nil
}

// Update swaps the schedule and age limit, e.g. after a config reload.
func (r *Retention) Update(schedule string, maxAge time.Duration) error {
	expr, err := ParseCron(schedule)
	if err != nil {
		return err
	}
	if maxAge < 0 {
		return fmt.Errorf("retention max age must not be negative, got %s", maxAge)
	}

	r.mu.Lock()
	r.cron = expr
	r.maxAge = maxAge
	r.mu.Unlock()
	return nil
}

func (r *Retention) Start() {
	r.done = make(chan struct{})
	r.wg.Add(1)
	go r.loop()
	slog.Info("retention scheduler started", "schedule", r.cron.String(), "max_age", r.maxAge)
}

func (r *Retention) Stop() {
	if r.done == nil {
		return
	}
	close(r.done)
	r.wg.Wait()
	r.done = nil
	slog.Info("retention scheduler stopped")
}

func (r *Retention) loop() {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			r.tick(now)
		}
	}
}

// tick prunes when now falls on the schedule, at most once per minute.
func (r *Retention) tick(now time.Time) {
	r.mu.Lock()
	due := r.cron.Matches(now) && !now.Truncate(time.Minute).Equal(r.lastRun)
	if due {
		r.lastRun = now.Truncate(time.Minute)
	}
	r.mu.Unlock()

	if due {
		if _, err := r.RunOnce(); err != nil {
			slog.Error("prune tasks", "error", err)
		}
	}
}

// RunOnce prunes immediately and returns the number of deleted tasks.
func (r *Retention) RunOnce() (int, error) {
	r.mu.Lock()
	maxAge := r.maxAge
	r.mu.Unlock()
	if maxAge == 0 {
		return 0, nil
	}

	cutoff := r.now().Add(-maxAge)
	n, err := r.pruner.Prune(cutoff)
	if err != nil {
		return n, err
	}
	if n > 0 {
		slog.Info("pruned finished tasks", "count", n, "before", cutoff)
	}
	return n, nil
}
