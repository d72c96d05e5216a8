// Package storyboard holds storyboards and the jobs that turn their scenes
// into images, narration and video.
package storyboard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Phase names one per-scene production step.
type Phase string

const (
	PhaseImage Phase = "image"
	PhaseAudio Phase = "audio"
	PhaseVideo Phase = "video"
)

// ParsePhase validates a phase name.
func ParsePhase(s string) (Phase, error) {
	switch p := Phase(strings.ToLower(s)); p {
	case PhaseImage, PhaseAudio, PhaseVideo:
		return p, nil
	default:
		return "", fmt.Errorf("unknown phase %q", s)
	}
}

// ErrNotFound is returned when no storyboard exists for an id.
var ErrNotFound = errors.New("storyboard not found")

// Storyboard is an ordered sequence of scenes with a character roster.
// Timestamps are epoch milliseconds.
type Storyboard struct {
	ID          string      `json:"id" yaml:"id,omitempty"`
	Title       string      `json:"title" yaml:"title"`
	Style       string      `json:"style,omitempty" yaml:"style,omitempty"`
	AspectRatio string      `json:"aspect_ratio,omitempty" yaml:"aspect_ratio,omitempty"`
	Characters  []Character `json:"characters,omitempty" yaml:"characters,omitempty"`
	Scenes      []Scene     `json:"scenes" yaml:"scenes"`
	CreatedAt   int64       `json:"created_at" yaml:"-"`
	UpdatedAt   int64       `json:"updated_at" yaml:"-"`
}

// Character is a recurring figure whose look must stay consistent.
type Character struct {
	ID             string `json:"id" yaml:"id,omitempty"`
	Name           string `json:"name" yaml:"name"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	DNA            string `json:"dna,omitempty" yaml:"dna,omitempty"`
	ReferenceImage string `json:"reference_image,omitempty" yaml:"reference_image,omitempty"`
}

// Scene is one entry of a storyboard. Media fields hold asset URIs.
// Errors keeps the last failure message per phase until that phase succeeds.
type Scene struct {
	Description  string           `json:"description" yaml:"description"`
	Dialogue     string           `json:"dialogue,omitempty" yaml:"dialogue,omitempty"`
	Characters   []string         `json:"characters,omitempty" yaml:"characters,omitempty"`
	CameraMotion string           `json:"camera_motion,omitempty" yaml:"camera_motion,omitempty"`
	FrameImage   string           `json:"frame_image,omitempty" yaml:"frame_image,omitempty"`
	AudioClip    string           `json:"audio_clip,omitempty" yaml:"audio_clip,omitempty"`
	VideoClip    string           `json:"video_clip,omitempty" yaml:"video_clip,omitempty"`
	Errors       map[Phase]string `json:"errors,omitempty" yaml:"-"`
}

// Field returns the media URI of phase p.
func (s *Scene) Field(p Phase) string {
	switch p {
	case PhaseImage:
		return s.FrameImage
	case PhaseAudio:
		return s.AudioClip
	case PhaseVideo:
		return s.VideoClip
	}
	return ""
}

// SetField stores uri for phase p and clears its recorded error.
func (s *Scene) SetField(p Phase, uri string) {
	switch p {
	case PhaseImage:
		s.FrameImage = uri
	case PhaseAudio:
		s.AudioClip = uri
	case PhaseVideo:
		s.VideoClip = uri
	}
	s.clearError(p)
}

func (s *Scene) setError(p Phase, msg string) {
	if s.Errors == nil {
		s.Errors = make(map[Phase]string)
	}
	s.Errors[p] = msg
}

func (s *Scene) clearError(p Phase) {
	delete(s.Errors, p)
	if len(s.Errors) == 0 {
		s.Errors = nil
	}
}

// HasDialogue reports whether the scene needs narration.
func (s *Scene) HasDialogue() bool {
	return strings.TrimSpace(s.Dialogue) != ""
}

// Character returns the roster entry with the given id or name.
func (sb *Storyboard) Character(ref string) (*Character, bool) {
	for i := range sb.Characters {
		c := &sb.Characters[i]
		if c.ID == ref || strings.EqualFold(c.Name, ref) {
			return c, true
		}
	}
	return nil, false
}

// Normalize fills defaults and assigns missing character ids.
func (sb *Storyboard) Normalize(defaultStyle, defaultAspect string) {
	if sb.Style == "" {
		sb.Style = defaultStyle
	}
	if sb.AspectRatio == "" {
		sb.AspectRatio = defaultAspect
	}
	for i := range sb.Characters {
		if sb.Characters[i].ID == "" {
			sb.Characters[i].ID = GenerateCharacterID()
		}
	}
}

// Validate checks that the storyboard is producible.
func (sb *Storyboard) Validate() error {
	if strings.TrimSpace(sb.Title) == "" {
		return errors.New("storyboard title is required")
	}
	for i, s := range sb.Scenes {
		if strings.TrimSpace(s.Description) == "" {
			return fmt.Errorf("scene %d: description is required", i+1)
		}
		for _, ref := range s.Characters {
			if _, ok := sb.Character(ref); !ok {
				return fmt.Errorf("scene %d: unknown character %q", i+1, ref)
			}
		}
	}
	return nil
}

// GenerateID creates a unique storyboard identifier.
func GenerateID() string {
	u := uuid.New().String()
	return "sb_" + strings.ReplaceAll(u[:8], "-", "")
}

// GenerateCharacterID creates a unique character identifier.
func GenerateCharacterID() string {
	u := uuid.New().String()
	return "char_" + strings.ReplaceAll(u[:8], "-", "")
}
