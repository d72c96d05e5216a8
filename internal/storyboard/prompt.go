package storyboard

import (
	"fmt"
	"strings"
)

// sceneCharacters returns the distinct characters appearing in scene i,
// or the whole roster when the scene names none.
func sceneCharacters(sb *Storyboard, i int) []Character {
	refs := sb.Scenes[i].Characters
	if len(refs) == 0 {
		return sb.Characters
	}

	seen := make(map[string]bool, len(refs))
	var out []Character
	for _, ref := range refs {
		c, ok := sb.Character(ref)
		if !ok || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, *c)
	}
	return out
}

// characterDNA renders the durable visual traits of chars, one per line.
func characterDNA(chars []Character) string {
	var b strings.Builder
	for _, c := range chars {
		traits := c.DNA
		if traits == "" {
			traits = c.Description
		}
		if traits == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, strings.TrimSpace(traits))
	}
	return strings.TrimRight(b.String(), "\n")
}

// imageRefs lists, in order, the URIs passed as visual references for
// scene i: character sheets, the establishing frame and the previous frame.
func imageRefs(sb *Storyboard, i int, chars []Character) []string {
	var refs []string
	seen := map[string]bool{}
	add := func(uri string) {
		if uri != "" && !seen[uri] {
			seen[uri] = true
			refs = append(refs, uri)
		}
	}
	for _, c := range chars {
		add(c.ReferenceImage)
	}
	if i > 0 {
		add(sb.Scenes[0].FrameImage)
		add(sb.Scenes[i-1].FrameImage)
	}
	return refs
}

func portraitPrompt(c Character) string {
	prompt := fmt.Sprintf("Character reference portrait of %s, neutral background, full face clearly visible.", c.Name)
	if c.Description != "" {
		prompt += " " + c.Description
	}
	return prompt
}

func transitionPrompt(sb *Storyboard, i int) string {
	return fmt.Sprintf("%s\nThen: %s", sb.Scenes[i].Description, sb.Scenes[i+1].Description)
}
