package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/dohr-michael/studio/internal/events"
)

// EventLogger persists bus events to JSONL files, one per task.
// Events not tied to a task go to _global.jsonl.
type EventLogger struct {
	dir         string
	mu          sync.Mutex
	unsubscribe func()
}

// NewEventLogger subscribes to all bus events and writes them under dir.
func NewEventLogger(dir string, bus *events.Bus) *EventLogger {
	el := &EventLogger{dir: dir}
	el.unsubscribe = bus.Subscribe(el.handleEvent)
	return el
}

// Close unsubscribes the logger from the event bus.
func (el *EventLogger) Close() {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}
}

// LogPath returns the file a task's events are written to.
func (el *EventLogger) LogPath(taskID string) string {
	if taskID == "" {
		return filepath.Join(el.dir, "_global.jsonl")
	}
	return filepath.Join(el.dir, "tasks", taskID+".jsonl")
}

func (el *EventLogger) handleEvent(e events.Event) {
	// Progress ticks are too noisy; the final state is in the task record.
	if e.Type == events.EventTaskProgress {
		return
	}
	_ = el.writeEvent(e)
}

func (el *EventLogger) writeEvent(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	taskID, _ := e.Payload["task_id"].(string)
	path := el.LogPath(taskID)

	el.mu.Lock()
	defer el.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}
