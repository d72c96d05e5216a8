package assets

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNewKey(t *testing.T) {
	key := NewKey("sb_1", "scene-2-image", "image/png")
	if !strings.HasPrefix(key, "sb_1/scene-2-image-") || !strings.HasSuffix(key, ".png") {
		t.Errorf("unexpected key %q", key)
	}
	if NewKey("sb_1", "x", "image/png") == NewKey("sb_1", "x", "image/png") {
		t.Error("keys should be unique")
	}
	if got := NewKey("p", "clip", "application/x-unknown-studio"); !strings.HasSuffix(got, ".bin") {
		t.Errorf("unknown mime should fall back to .bin, got %q", got)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"a/b.png": "image/png",
		"a/b.wav": "audio/wav",
		"a/b.mp4": "video/mp4",
		"a/b.zzz": "application/octet-stream",
	}
	for key, want := range cases {
		if got := ContentType(key); got != want {
			t.Errorf("ContentType(%q): got %q, want %q", key, got, want)
		}
	}
}

func TestLocal_SaveOpen(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir(), "/assets")

	uri, err := store.Save(ctx, "sb_1/frame.png", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if uri != "/assets/sb_1/frame.png" {
		t.Errorf("uri: got %q, want %q", uri, "/assets/sb_1/frame.png")
	}

	data, mimeType, err := store.Open(ctx, uri)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(data) != "png-bytes" || mimeType != "image/png" {
		t.Errorf("got %q %q", data, mimeType)
	}
}

func TestLocal_OpenMissing(t *testing.T) {
	store := NewLocal(t.TempDir(), "/assets")

	_, _, err := store.Open(context.Background(), "/assets/nope.png")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	_, _, err = store.Open(context.Background(), "https://elsewhere/nope.png")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign uri: got %v, want ErrNotFound", err)
	}
}

func TestLocal_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store := NewLocal(t.TempDir(), "/assets")

	for _, key := range []string{"../escape.png", "/abs.png", "a/../../b.png", ""} {
		if _, err := store.Save(ctx, key, []byte("x"), "image/png"); err == nil {
			t.Errorf("Save(%q) should fail", key)
		}
	}
	if _, _, err := store.Open(ctx, "/assets/../secret"); err == nil {
		t.Error("Open with traversal should fail")
	}
}
