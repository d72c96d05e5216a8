package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dohr-michael/studio/internal/events"
)

func TestEventLogger_GlobalEvent(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	bus.Publish(events.NewTypedEvent(events.SourceScheduler, events.TasksPrunedPayload{Count: 2}))

	time.Sleep(100 * time.Millisecond)

	data, err := os.ReadFile(filepath.Join(dir, "_global.jsonl"))
	if err != nil {
		t.Fatalf("read JSONL: %v", err)
	}
	var got events.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != events.EventTasksPruned {
		t.Errorf("got type %q, want %q", got.Type, events.EventTasksPruned)
	}
}

func TestEventLogger_TaskRouting(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	bus.Publish(events.NewTypedEvent(events.SourceTask, events.TaskStartedPayload{TaskID: "task_1", Title: "x"}))
	bus.Publish(events.NewTypedEvent(events.SourceTask, events.TaskCompletedPayload{TaskID: "task_1", Title: "x"}))

	time.Sleep(100 * time.Millisecond)

	f, err := os.Open(el.LogPath("task_1"))
	if err != nil {
		t.Fatalf("task log missing: %v", err)
	}
	defer f.Close()

	var types []events.EventType
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e events.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		types = append(types, e.Type)
	}
	if len(types) != 2 {
		t.Fatalf("got %v, want task.started and task.completed", types)
	}
	seen := map[events.EventType]bool{types[0]: true, types[1]: true}
	if !seen[events.EventTaskStarted] || !seen[events.EventTaskCompleted] {
		t.Errorf("got %v, want task.started and task.completed", types)
	}
}

func TestEventLogger_ProgressFiltered(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	bus.Publish(events.NewTypedEvent(events.SourceTask, events.TaskProgressPayload{TaskID: "task_1", Progress: 50}))

	time.Sleep(100 * time.Millisecond)

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no files, got %d", len(entries))
	}
}

func TestEventLogger_DirectoryAutoCreation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	bus := events.NewBus(64)
	defer bus.Close()

	el := NewEventLogger(dir, bus)
	defer el.Close()

	bus.Publish(events.NewTypedEvent(events.SourceScheduler, events.TasksPrunedPayload{}))

	time.Sleep(100 * time.Millisecond)

	if _, err := os.Stat(filepath.Join(dir, "_global.jsonl")); err != nil {
		t.Fatalf("directory not auto-created: %v", err)
	}
}
