package storyboard

import (
	"context"
	"strings"
	"testing"
)

func TestParseScenes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"object", `{"scenes":[{"description":"a"},{"description":"b","dialogue":"hi"}]}`, 2},
		{"array", `[{"description":"a"}]`, 1},
		{"fenced", "```json\n{\"scenes\":[{\"description\":\"a\"}]}\n```", 1},
		{"drops empty", `{"scenes":[{"description":" "},{"description":"b"}]}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScenes(tt.in)
			if err != nil {
				t.Fatalf("parseScenes: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d scenes, want %d", len(got), tt.want)
			}
		})
	}
}

func TestParseScenes_Invalid(t *testing.T) {
	for _, in := range []string{"", "not json", `{"scenes":[]}`, `{"other":1}`} {
		if _, err := parseScenes(in); err == nil {
			t.Errorf("%q: expected error", in)
		}
	}
}

func TestParseScenes_StripsMedia(t *testing.T) {
	got, err := parseScenes(`[{"description":"a","frame_image":"/assets/x.png"}]`)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].FrameImage != "" {
		t.Errorf("frame image should be dropped, got %q", got[0].FrameImage)
	}
}

func TestWriteScript(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sb := &Storyboard{
		Title:      "Harbor",
		Characters: []Character{{ID: "c1", Name: "Mara", Description: "sailor"}},
		Scenes:     []Scene{{Description: "dawn"}},
	}
	if err := h.store.Create(ctx, sb); err != nil {
		t.Fatal(err)
	}
	h.text.answer = `{"scenes":[
		{"description":"Mara rows out","characters":["mara","Ghost"],"dialogue":"Here we go"},
		{"description":"storm","camera_motion":"pan left"}
	]}`

	updated, err := h.pipeline.WriteScript(ctx, sb.ID, ScriptRequest{Premise: "a rescue at sea", Scenes: 2})
	if err != nil {
		t.Fatalf("WriteScript: %v", err)
	}
	if len(updated.Scenes) != 3 {
		t.Fatalf("scenes: got %d, want 3", len(updated.Scenes))
	}
	added := updated.Scenes[1]
	if len(added.Characters) != 1 || added.Characters[0] != "Mara" {
		t.Errorf("characters: got %v", added.Characters)
	}
	if updated.Scenes[2].CameraMotion != "pan left" {
		t.Errorf("camera motion: got %q", updated.Scenes[2].CameraMotion)
	}

	if !h.text.req.JSON {
		t.Error("script should ask for JSON")
	}
	for _, want := range []string{"a rescue at sea", "exactly 2 scenes", "Mara: sailor", "after the last scene: dawn"} {
		if !strings.Contains(h.text.req.Prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, h.text.req.Prompt)
		}
	}
}

func TestWriteScript_RequiresPremise(t *testing.T) {
	h := newHarness(t)
	sb := h.create(t)
	if _, err := h.pipeline.WriteScript(context.Background(), sb.ID, ScriptRequest{}); err == nil {
		t.Error("expected error for empty premise")
	}
}
