package storyboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dohr-michael/studio/internal/assets"
	"github.com/dohr-michael/studio/internal/genai"
	"github.com/dohr-michael/studio/internal/tasks"
)

// ErrUnknownCharacter is returned when a character reference matches no roster entry.
var ErrUnknownCharacter = errors.New("unknown character")

// GeneratePortrait renders a reference portrait for a character and stores
// it as the character's ReferenceImage. Later scene images use it to keep
// the character's look consistent.
func (p *Pipeline) GeneratePortrait(ctx context.Context, storyboardID, characterRef string) (*Storyboard, error) {
	if p.cfg.Images == nil {
		return nil, errors.New("no image generator configured")
	}

	sb, err := p.cfg.Store.Get(ctx, storyboardID)
	if err != nil {
		return nil, err
	}
	c, ok := sb.Character(characterRef)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCharacter, characterRef)
	}
	charID := c.ID

	req := genai.ImageRequest{
		Prompt:       portraitPrompt(*c),
		CharacterDNA: characterDNA([]Character{*c}),
		Style:        sb.Style,
		AspectRatio:  "1:1",
	}
	media, err := genai.Retry(ctx, p.retryPolicy(sb.ID), "generate portrait", func(ctx context.Context) (genai.Media, error) {
		return p.cfg.Images.GenerateImage(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	uri, err := p.cfg.Assets.Save(ctx, assets.NewKey(sb.ID, "character-"+charID, media.MIMEType), media.Data, media.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("save portrait: %w", err)
	}

	updated, err := p.cfg.Store.Update(ctx, sb.ID, func(cur *Storyboard) error {
		c, ok := cur.Character(charID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCharacter, charID)
		}
		c.ReferenceImage = uri
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("character portrait rendered", "storyboard_id", sb.ID, "character_id", charID, "uri", uri)
	return updated, nil
}

// CharacterJob wraps GeneratePortrait as a task.
func (p *Pipeline) CharacterJob(storyboardID, characterRef, name string) tasks.Job {
	if name == "" {
		name = characterRef
	}
	return tasks.JobFunc{
		Type: tasks.TypeCharacter,
		Name: "Portrait of " + name,
		Fn: func(ctx context.Context, progress tasks.ProgressFunc) (any, error) {
			progress(0, "rendering portrait")
			return p.GeneratePortrait(ctx, storyboardID, characterRef)
		},
	}
}
