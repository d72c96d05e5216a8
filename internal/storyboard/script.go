package storyboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dohr-michael/studio/internal/genai"
	"github.com/dohr-michael/studio/internal/tasks"
)

const scriptSystem = `You are a storyboard writer. Break the premise into scenes.
Answer with JSON only: {"scenes":[{"description":"...","dialogue":"...","characters":["name"],"camera_motion":"..."}]}.
Descriptions are visual and self-contained. Dialogue is optional narration.`

// ScriptRequest asks for new scenes written from a premise.
type ScriptRequest struct {
	Premise string `json:"premise"`
	Scenes  int    `json:"scenes,omitempty"`
}

// WriteScript asks the text collaborator for a scene breakdown of the
// premise and appends the scenes to the storyboard.
func (p *Pipeline) WriteScript(ctx context.Context, storyboardID string, req ScriptRequest) (*Storyboard, error) {
	if p.cfg.Text == nil {
		return nil, errors.New("no text generator configured")
	}
	if strings.TrimSpace(req.Premise) == "" {
		return nil, errors.New("premise is required")
	}

	sb, err := p.cfg.Store.Get(ctx, storyboardID)
	if err != nil {
		return nil, err
	}

	text, err := genai.Retry(ctx, p.retryPolicy(sb.ID), "write script", func(ctx context.Context) (string, error) {
		return p.cfg.Text.GenerateText(ctx, genai.TextRequest{
			System: scriptSystem,
			Prompt: scriptPrompt(sb, req),
			JSON:   true,
		})
	})
	if err != nil {
		return nil, err
	}

	scenes, err := parseScenes(text)
	if err != nil {
		return nil, err
	}

	updated, err := p.cfg.Store.Update(ctx, sb.ID, func(cur *Storyboard) error {
		for _, s := range scenes {
			// drop names the roster does not know
			known := s.Characters[:0]
			for _, ref := range s.Characters {
				if c, ok := cur.Character(ref); ok {
					known = append(known, c.Name)
				}
			}
			s.Characters = known
			cur.Scenes = append(cur.Scenes, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("script written", "storyboard_id", sb.ID, "scenes", len(scenes))
	return updated, nil
}

// ScriptJob wraps WriteScript as a task.
func (p *Pipeline) ScriptJob(storyboardID string, req ScriptRequest) tasks.Job {
	return tasks.JobFunc{
		Type: tasks.TypeScript,
		Name: "Write script for " + storyboardID,
		Fn: func(ctx context.Context, progress tasks.ProgressFunc) (any, error) {
			progress(0, "writing scenes")
			return p.WriteScript(ctx, storyboardID, req)
		},
	}
}

func scriptPrompt(sb *Storyboard, req ScriptRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Storyboard: %s\nPremise: %s\n", sb.Title, strings.TrimSpace(req.Premise))
	if req.Scenes > 0 {
		fmt.Fprintf(&b, "Write exactly %d scenes.\n", req.Scenes)
	}
	if len(sb.Characters) > 0 {
		b.WriteString("Characters:\n")
		for _, c := range sb.Characters {
			fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		}
	}
	if n := len(sb.Scenes); n > 0 {
		fmt.Fprintf(&b, "Continue after the last scene: %s\n", sb.Scenes[n-1].Description)
	}
	return b.String()
}

// parseScenes decodes a model answer, accepting a {"scenes":[...]} object
// or a bare array, optionally wrapped in a markdown code fence.
func parseScenes(text string) ([]Scene, error) {
	text = stripFence(text)

	var wrapped struct {
		Scenes []Scene `json:"scenes"`
	}
	var scenes []Scene
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && wrapped.Scenes != nil {
		scenes = wrapped.Scenes
	} else if err := json.Unmarshal([]byte(text), &scenes); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}

	out := scenes[:0]
	for _, s := range scenes {
		if strings.TrimSpace(s.Description) == "" {
			continue
		}
		out = append(out, Scene{
			Description:  strings.TrimSpace(s.Description),
			Dialogue:     strings.TrimSpace(s.Dialogue),
			Characters:   s.Characters,
			CameraMotion: s.CameraMotion,
		})
	}
	if len(out) == 0 {
		return nil, errors.New("parse script: no scenes in answer")
	}
	return out, nil
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
