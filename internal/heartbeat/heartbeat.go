// Package heartbeat lets CLI commands tell whether a studio gateway is
// running, and how busy it is, without connecting to it.
package heartbeat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status is the liveness of the process that owns a heartbeat file.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// DefaultInterval is how often a Writer refreshes its file.
const DefaultInterval = 30 * time.Second

// Heartbeat is the content of the heartbeat file.
type Heartbeat struct {
	PID         int       `json:"pid"`
	Addr        string    `json:"addr"`
	StartedAt   time.Time `json:"started_at"`
	Timestamp   time.Time `json:"timestamp"`
	ActiveTasks int       `json:"active_tasks"`
}

// Uptime is the time between start and the last beat.
func (hb *Heartbeat) Uptime() time.Duration {
	return hb.Timestamp.Sub(hb.StartedAt).Truncate(time.Second)
}

// Writer rewrites the heartbeat file on a fixed interval until stopped.
type Writer struct {
	path     string
	addr     string
	interval time.Duration
	active   func() int

	started time.Time
	once    sync.Once
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWriter creates a writer for the gateway at addr. active reports the
// number of pending and running tasks; it may be nil.
func NewWriter(path, addr string, active func() int) *Writer {
	return &Writer{
		path:     path,
		addr:     addr,
		interval: DefaultInterval,
		active:   active,
		done:     make(chan struct{}),
	}
}

// Start writes the first beat synchronously, then keeps beating in the
// background.
func (w *Writer) Start() {
	w.started = time.Now()
	w.beat()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.beat()
			case <-w.done:
				return
			}
		}
	}()
}

// Stop ends the loop and removes the file. It is safe to call twice.
func (w *Writer) Stop() {
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
		if err := os.Remove(w.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("remove heartbeat", "path", w.path, "error", err)
		}
	})
}

func (w *Writer) beat() {
	hb := Heartbeat{
		PID:       os.Getpid(),
		Addr:      w.addr,
		StartedAt: w.started,
		Timestamp: time.Now(),
	}
	if w.active != nil {
		hb.ActiveTasks = w.active()
	}
	if err := write(w.path, &hb); err != nil {
		slog.Warn("write heartbeat", "path", w.path, "error", err)
	}
}

// write replaces the file atomically.
func write(path string, hb *Heartbeat) error {
	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Check reads the heartbeat at path. A missing file means StatusDead;
// a beat older than maxAge means StatusStale.
func Check(path string, maxAge time.Duration) (Status, *Heartbeat, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return StatusDead, nil, nil
	}
	if err != nil {
		return StatusDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return StatusDead, nil, fmt.Errorf("unmarshal heartbeat: %w", err)
	}
	if time.Since(hb.Timestamp) > maxAge {
		return StatusStale, &hb, nil
	}
	return StatusAlive, &hb, nil
}
