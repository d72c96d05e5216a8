package genai

import "context"

// Media is a generated or reference asset in memory.
type Media struct {
	Data     []byte
	MIMEType string
}

// Empty reports whether m carries no bytes.
func (m Media) Empty() bool { return len(m.Data) == 0 }

// ImageRequest asks for one still image.
type ImageRequest struct {
	Prompt       string
	References   []Media
	CharacterDNA string
	Style        string
	AspectRatio  string
}

// SpeechRequest asks for narration of Text in Voice.
type SpeechRequest struct {
	Text  string
	Voice string
}

// VideoRequest asks for a clip moving from Start to End.
type VideoRequest struct {
	Prompt      string
	Start       Media
	End         Media
	AspectRatio string
	Motion      string
}

// TextRequest asks for a text completion. With JSON set the model is asked
// to answer with a JSON document.
type TextRequest struct {
	System string
	Prompt string
	JSON   bool
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (Media, error)
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (Media, error)
}

type VideoGenerator interface {
	GenerateVideo(ctx context.Context, req VideoRequest) (Media, error)
}

type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}
