package heartbeat

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriterBeats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "heartbeat.json")

	w := NewWriter(path, "127.0.0.1:18430", func() int { return 3 })
	w.Start()
	defer w.Stop()

	status, hb, err := Check(path, time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusAlive {
		t.Fatalf("status: got %s, want alive", status)
	}
	if hb.PID != os.Getpid() {
		t.Errorf("pid: got %d, want %d", hb.PID, os.Getpid())
	}
	if hb.Addr != "127.0.0.1:18430" || hb.ActiveTasks != 3 {
		t.Errorf("heartbeat: got %+v", hb)
	}
}

func TestCheck_Stale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")
	old := Heartbeat{
		PID:       1,
		StartedAt: time.Now().Add(-2 * time.Hour),
		Timestamp: time.Now().Add(-time.Hour),
	}
	if err := write(path, &old); err != nil {
		t.Fatal(err)
	}

	status, hb, err := Check(path, 30*time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusStale {
		t.Errorf("status: got %s, want stale", status)
	}
	if got := hb.Uptime(); got != time.Hour {
		t.Errorf("uptime: got %s, want 1h", got)
	}
}

func TestCheck_Missing(t *testing.T) {
	status, hb, err := Check(filepath.Join(t.TempDir(), "heartbeat.json"), time.Minute)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status != StatusDead || hb != nil {
		t.Errorf("got %s %+v, want dead nil", status, hb)
	}
}

func TestCheck_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Check(path, time.Minute); err == nil {
		t.Error("expected error for corrupt file")
	}
}

func TestStopRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.json")

	w := NewWriter(path, "", nil)
	w.Start()
	w.Stop()
	w.Stop()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected heartbeat file to be removed after Stop")
	}
}
