package commands

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dohr-michael/studio/internal/assets"
	"github.com/dohr-michael/studio/internal/config"
	"github.com/dohr-michael/studio/internal/tasks"
)

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	for _, driver := range []string{"dir", "sqlite", "leveldb"} {
		t.Run(driver, func(t *testing.T) {
			dir := t.TempDir()
			backend, err := openBackend(ctx, config.StorageConfig{
				Driver: driver,
				Dir:    filepath.Join(dir, "data"),
				DSN:    filepath.Join(dir, "db", "studio.db"),
			})
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer backend.Close()

			store := tasks.NewStore(backend)
			task := &tasks.Task{ID: "task_1", Type: tasks.TypeImage, Title: "smoke", Status: tasks.TaskPending}
			if err := store.Create(ctx, task); err != nil {
				t.Fatalf("create: %v", err)
			}
			got, err := store.Get(ctx, "task_1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Title != "smoke" {
				t.Errorf("title: got %q, want smoke", got.Title)
			}
		})
	}
}

func TestOpenBackend_Unknown(t *testing.T) {
	if _, err := openBackend(context.Background(), config.StorageConfig{Driver: "tape"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestOpenAssets(t *testing.T) {
	store, err := openAssets(context.Background(), config.AssetsConfig{Driver: "local", Dir: t.TempDir(), BaseURL: "/assets"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*assets.Local); !ok {
		t.Errorf("got %T, want *assets.Local", store)
	}

	if _, err := openAssets(context.Background(), config.AssetsConfig{Driver: "floppy"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestProductionConfig_NoAPIKey(t *testing.T) {
	cfg := config.Default()
	pc := productionConfig(context.Background(), cfg, nil, nil, nil)

	if pc.Images != nil || pc.Voices != nil || pc.Videos != nil || pc.Text != nil {
		t.Error("collaborators should stay unset without an api key")
	}
	if pc.Retry.MaxAttempts != cfg.Pipeline.MaxAttempts {
		t.Errorf("max attempts: got %d, want %d", pc.Retry.MaxAttempts, cfg.Pipeline.MaxAttempts)
	}
	if len(pc.VoicePool) != len(config.DefaultVoices) {
		t.Errorf("voices: got %v", pc.VoicePool)
	}
}
