package genai

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	googleai "google.golang.org/genai"
)

// GeminiConfig selects models and polling for the Gemini collaborators.
type GeminiConfig struct {
	APIKey       string
	ImageModel   string
	SpeechModel  string
	VideoModel   string
	TextModel    string
	PollInterval time.Duration
	Timeout      time.Duration
}

// Gemini implements every collaborator on the Gemini API.
type Gemini struct {
	client *googleai.Client
	cfg    GeminiConfig
}

var (
	_ ImageGenerator    = (*Gemini)(nil)
	_ SpeechSynthesizer = (*Gemini)(nil)
	_ VideoGenerator    = (*Gemini)(nil)
	_ TextGenerator     = (*Gemini)(nil)
)

// NewGemini creates a Gemini API client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is not configured")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}

	client, err := googleai.NewClient(ctx, &googleai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: googleai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg}, nil
}

func (g *Gemini) GenerateImage(ctx context.Context, req ImageRequest) (Media, error) {
	const op = "generate image"

	parts := []*googleai.Part{googleai.NewPartFromText(imagePrompt(req))}
	for _, ref := range req.References {
		if ref.Empty() {
			continue
		}
		parts = append(parts, googleai.NewPartFromBytes(ref.Data, ref.MIMEType))
	}

	config := &googleai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if req.AspectRatio != "" {
		config.ImageConfig = &googleai.ImageConfig{AspectRatio: req.AspectRatio}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.ImageModel,
		[]*googleai.Content{googleai.NewContentFromParts(parts, googleai.RoleUser)}, config)
	if err != nil {
		return Media{}, Classify(op, err)
	}

	media, ok := firstInline(resp, "image/")
	if !ok {
		return Media{}, Classify(op, errors.New("response contained no image"))
	}
	return media, nil
}

func (g *Gemini) Synthesize(ctx context.Context, req SpeechRequest) (Media, error) {
	const op = "synthesize speech"

	config := &googleai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &googleai.SpeechConfig{
			VoiceConfig: &googleai.VoiceConfig{
				PrebuiltVoiceConfig: &googleai.PrebuiltVoiceConfig{VoiceName: req.Voice},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.SpeechModel, googleai.Text(req.Text), config)
	if err != nil {
		return Media{}, Classify(op, err)
	}

	media, ok := firstInline(resp, "audio/")
	if !ok {
		return Media{}, Classify(op, errors.New("response contained no audio"))
	}
	// The API returns raw 16-bit PCM; wrap it so players can open it.
	if strings.Contains(media.MIMEType, "L16") || strings.Contains(media.MIMEType, "pcm") {
		media = Media{Data: pcmToWAV(media.Data, sampleRate(media.MIMEType)), MIMEType: "audio/wav"}
	}
	return media, nil
}

func (g *Gemini) GenerateVideo(ctx context.Context, req VideoRequest) (Media, error) {
	const op = "generate video"

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	config := &googleai.GenerateVideosConfig{AspectRatio: req.AspectRatio}
	if !req.End.Empty() {
		config.LastFrame = &googleai.Image{ImageBytes: req.End.Data, MIMEType: req.End.MIMEType}
	}
	start := &googleai.Image{ImageBytes: req.Start.Data, MIMEType: req.Start.MIMEType}

	operation, err := g.client.Models.GenerateVideos(ctx, g.cfg.VideoModel, videoPrompt(req), start, config)
	if err != nil {
		return Media{}, Classify(op, err)
	}

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()
	for !operation.Done {
		select {
		case <-ctx.Done():
			return Media{}, Classify(op, ctx.Err())
		case <-ticker.C:
		}
		slog.Debug("polling video operation", "name", operation.Name)
		operation, err = g.client.Operations.GetVideosOperation(ctx, operation, nil)
		if err != nil {
			return Media{}, Classify(op, err)
		}
	}

	if len(operation.Error) > 0 {
		return Media{}, Classify(op, fmt.Errorf("video operation failed: %v", operation.Error))
	}
	if operation.Response == nil || len(operation.Response.GeneratedVideos) == 0 || operation.Response.GeneratedVideos[0].Video == nil {
		return Media{}, Classify(op, errors.New("operation returned no video"))
	}

	generated := operation.Response.GeneratedVideos[0]
	video := generated.Video
	data := video.VideoBytes
	if len(data) == 0 {
		data, err = g.client.Files.Download(ctx, googleai.NewDownloadURIFromGeneratedVideo(generated), nil)
		if err != nil {
			return Media{}, Classify(op, fmt.Errorf("download video: %w", err))
		}
	}

	mime := video.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}
	return Media{Data: data, MIMEType: mime}, nil
}

func (g *Gemini) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	const op = "generate text"

	config := &googleai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = googleai.NewContentFromText(req.System, googleai.RoleUser)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.TextModel, googleai.Text(req.Prompt), config)
	if err != nil {
		return "", Classify(op, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", Classify(op, errors.New("response contained no text"))
	}
	return text, nil
}

func imagePrompt(req ImageRequest) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	if req.Style != "" {
		fmt.Fprintf(&b, "\n\nVisual style: %s.", req.Style)
	}
	if req.AspectRatio != "" {
		fmt.Fprintf(&b, "\nAspect ratio: %s.", req.AspectRatio)
	}
	if req.CharacterDNA != "" {
		b.WriteString("\n\nCharacters (keep their appearance exactly consistent):\n")
		b.WriteString(req.CharacterDNA)
	}
	if len(req.References) > 0 {
		b.WriteString("\n\nUse the attached images as references for characters, style and continuity.")
	}
	return b.String()
}

func videoPrompt(req VideoRequest) string {
	prompt := req.Prompt
	if req.Motion != "" {
		if prompt != "" {
			prompt += "\n"
		}
		prompt += "Camera: " + req.Motion
	}
	if !req.End.Empty() {
		prompt += "\nEnd on the provided last frame."
	}
	return strings.TrimSpace(prompt)
}

// firstInline returns the first inline blob whose MIME type has prefix.
func firstInline(resp *googleai.GenerateContentResponse, prefix string) (Media, bool) {
	if resp == nil {
		return Media{}, false
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if strings.HasPrefix(part.InlineData.MIMEType, prefix) {
				return Media{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, true
			}
		}
	}
	return Media{}, false
}

// sampleRate reads "rate=N" from a PCM mime type such as
// "audio/L16;codec=pcm;rate=24000".
func sampleRate(mime string) int {
	for _, param := range strings.Split(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && k == "rate" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
	}
	return 24000
}

// pcmToWAV prefixes mono 16-bit little-endian PCM with a RIFF header.
func pcmToWAV(pcm []byte, rate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8
	byteRate := rate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
