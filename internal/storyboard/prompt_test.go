package storyboard

import (
	"strings"
	"testing"
)

func rosterBoard() *Storyboard {
	return &Storyboard{
		Characters: []Character{
			{ID: "c1", Name: "Mara", DNA: "silver hair, red scarf", ReferenceImage: "/assets/mara.png"},
			{ID: "c2", Name: "Otto", Description: "tall, green coat", ReferenceImage: "/assets/otto.png"},
			{ID: "c3", Name: "Nobody"},
		},
		Scenes: []Scene{
			{Description: "harbor", FrameImage: "/assets/f0.png"},
			{Description: "market", Characters: []string{"c2", "Otto", "c2"}, FrameImage: "/assets/f1.png"},
			{Description: "tower", Characters: []string{"mara"}},
		},
	}
}

func TestSceneCharacters(t *testing.T) {
	sb := rosterBoard()

	if got := sceneCharacters(sb, 0); len(got) != 3 {
		t.Errorf("scene without participants should use the roster, got %d", len(got))
	}
	got := sceneCharacters(sb, 1)
	if len(got) != 1 || got[0].ID != "c2" {
		t.Errorf("scene 1: got %+v, want only Otto once", got)
	}
	got = sceneCharacters(sb, 2)
	if len(got) != 1 || got[0].ID != "c1" {
		t.Errorf("scene 2: got %+v, want Mara by case-insensitive name", got)
	}
}

func TestCharacterDNA(t *testing.T) {
	dna := characterDNA(rosterBoard().Characters)
	want := "- Mara: silver hair, red scarf\n- Otto: tall, green coat"
	if dna != want {
		t.Errorf("got %q, want %q", dna, want)
	}
}

func TestImageRefs(t *testing.T) {
	sb := rosterBoard()

	refs := imageRefs(sb, 0, sceneCharacters(sb, 0))
	if len(refs) != 2 {
		t.Errorf("scene 0 refs: got %v, want the two character sheets", refs)
	}

	refs = imageRefs(sb, 2, sceneCharacters(sb, 2))
	want := []string{"/assets/mara.png", "/assets/f0.png", "/assets/f1.png"}
	if strings.Join(refs, ",") != strings.Join(want, ",") {
		t.Errorf("scene 2 refs: got %v, want %v", refs, want)
	}

	// Scene 1's previous frame is the establishing frame; it is sent once.
	refs = imageRefs(sb, 1, sceneCharacters(sb, 1))
	want = []string{"/assets/otto.png", "/assets/f0.png"}
	if strings.Join(refs, ",") != strings.Join(want, ",") {
		t.Errorf("scene 1 refs: got %v, want %v", refs, want)
	}
}
