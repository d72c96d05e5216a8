package tasks

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTransition_Lifecycle(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	task := &Task{ID: "t1", Status: TaskPending}

	if err := task.transition(TaskRunning, now); err != nil {
		t.Fatalf("pending -> running: %v", err)
	}
	if task.StartedAt == nil || *task.StartedAt != now.UnixMilli() {
		t.Errorf("StartedAt: got %v, want %d", task.StartedAt, now.UnixMilli())
	}

	later := now.Add(time.Second)
	if err := task.complete([]byte(`"ok"`), later); err != nil {
		t.Fatalf("running -> completed: %v", err)
	}
	if task.Progress != 100 {
		t.Errorf("Progress: got %d, want 100", task.Progress)
	}
	if task.CompletedAt == nil || *task.CompletedAt != later.UnixMilli() {
		t.Errorf("CompletedAt: got %v, want %d", task.CompletedAt, later.UnixMilli())
	}
}

func TestTransition_TerminalAbsorbs(t *testing.T) {
	for _, status := range []TaskStatus{TaskCompleted, TaskFailed} {
		for _, to := range []TaskStatus{TaskPending, TaskRunning, TaskCompleted, TaskFailed} {
			task := &Task{ID: "t", Status: status}
			err := task.transition(to, time.Now())
			if !errors.Is(err, ErrTerminal) {
				t.Errorf("%s -> %s: got %v, want ErrTerminal", status, to, err)
			}
			if task.Status != status {
				t.Errorf("%s -> %s: status changed to %s", status, to, task.Status)
			}
		}
	}
}

func TestTransition_Invalid(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
	}{
		{TaskPending, TaskCompleted},
		{TaskPending, TaskPending},
		{TaskRunning, TaskRunning},
		{TaskRunning, TaskPending},
	}
	for _, tc := range cases {
		task := &Task{Status: tc.from}
		if err := task.transition(tc.to, time.Now()); err == nil {
			t.Errorf("%s -> %s: expected error", tc.from, tc.to)
		}
	}
}

func TestFail_PendingAndRunning(t *testing.T) {
	for _, from := range []TaskStatus{TaskPending, TaskRunning} {
		task := &Task{Status: from}
		if err := task.fail("boom", time.Now()); err != nil {
			t.Fatalf("%s -> failed: %v", from, err)
		}
		if task.Error != "boom" || task.CompletedAt == nil {
			t.Errorf("%s -> failed: got error %q completedAt %v", from, task.Error, task.CompletedAt)
		}
	}
}

func TestFail_EmptyMessageFallback(t *testing.T) {
	task := &Task{Status: TaskRunning}
	_ = task.fail("", time.Now())
	if task.Error != unknownError {
		t.Errorf("Error: got %q, want %q", task.Error, unknownError)
	}
}

func TestGenerateTaskID(t *testing.T) {
	id := GenerateTaskID()
	if !strings.HasPrefix(id, "task_") || len(id) != len("task_")+8 {
		t.Errorf("unexpected id %q", id)
	}
	if id == GenerateTaskID() {
		t.Error("ids should be unique")
	}
}
