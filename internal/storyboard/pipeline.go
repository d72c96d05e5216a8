package storyboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dohr-michael/studio/internal/assets"
	"github.com/dohr-michael/studio/internal/events"
	"github.com/dohr-michael/studio/internal/genai"
	"github.com/dohr-michael/studio/internal/tasks"
)

// KindSkipped marks a step that could not run because an input was missing.
const KindSkipped = "skipped"

var errAlreadyDone = errors.New("already produced")

// ProductionConfig wires the collaborators used by the pipeline.
type ProductionConfig struct {
	Store     *Store
	Assets    assets.Store
	Images    genai.ImageGenerator
	Voices    genai.SpeechSynthesizer
	Videos    genai.VideoGenerator
	Text      genai.TextGenerator
	Retry     genai.RetryPolicy
	VoicePool []string
	Bus       *events.Bus
}

// SceneFailure records why one scene operation produced nothing.
type SceneFailure struct {
	Phase   Phase  `json:"phase"`
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ProductionReport summarizes a production run.
type ProductionReport struct {
	Rendered map[Phase]int  `json:"rendered"`
	Failures []SceneFailure `json:"failures,omitempty"`
}

// ProductionResult is the task result of a production run.
type ProductionResult struct {
	Storyboard *Storyboard      `json:"storyboard"`
	Report     ProductionReport `json:"report"`
}

// Pipeline produces storyboard media: frames first, then narration, then
// the clips bridging consecutive frames. Every produced asset is persisted
// on the storyboard immediately, so a later run resumes where this one stopped.
type Pipeline struct {
	cfg ProductionConfig
}

// NewPipeline creates a Pipeline. A zero Retry policy gets the defaults.
func NewPipeline(cfg ProductionConfig) *Pipeline {
	if cfg.Retry.MaxAttempts <= 0 {
		def := genai.DefaultRetryPolicy()
		cfg.Retry.MaxAttempts = def.MaxAttempts
		if cfg.Retry.BaseDelay == 0 {
			cfg.Retry.BaseDelay = def.BaseDelay
		}
		if cfg.Retry.MaxDelay == 0 {
			cfg.Retry.MaxDelay = def.MaxDelay
		}
	}
	return &Pipeline{cfg: cfg}
}

// Store returns the storyboard store.
func (p *Pipeline) Store() *Store { return p.cfg.Store }

type step struct {
	phase Phase
	index int
}

func (s step) String() string {
	switch s.phase {
	case PhaseImage:
		return fmt.Sprintf("rendering scene %d image", s.index+1)
	case PhaseAudio:
		return fmt.Sprintf("narrating scene %d", s.index+1)
	default:
		return fmt.Sprintf("animating scene %d to %d", s.index+1, s.index+2)
	}
}

// plan lists the steps still to do, in phase order then scene order.
func plan(sb *Storyboard) []step {
	var steps []step
	for i := range sb.Scenes {
		if sb.Scenes[i].FrameImage == "" {
			steps = append(steps, step{PhaseImage, i})
		}
	}
	for i := range sb.Scenes {
		if sb.Scenes[i].HasDialogue() && sb.Scenes[i].AudioClip == "" {
			steps = append(steps, step{PhaseAudio, i})
		}
	}
	for i := 0; i+1 < len(sb.Scenes); i++ {
		if sb.Scenes[i].VideoClip == "" {
			steps = append(steps, step{PhaseVideo, i})
		}
	}
	return steps
}

// Produce runs every missing step of storyboard id. A failing scene is
// recorded and the run moves on; only cancellation or a storage failure
// loading the storyboard aborts it.
func (p *Pipeline) Produce(ctx context.Context, id string, progress tasks.ProgressFunc) (*ProductionResult, error) {
	if progress == nil {
		progress = func(int, string) {}
	}

	sb, err := p.cfg.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	steps := plan(sb)
	report := ProductionReport{Rendered: map[Phase]int{}}
	slog.Info("storyboard production started", "storyboard_id", id, "scenes", len(sb.Scenes), "steps", len(steps))

	for done, st := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(done*100/len(steps), st.String())

		updated, err := p.runStep(ctx, sb, st)
		switch {
		case err == nil:
			sb = updated
			report.Rendered[st.phase]++
		case errors.Is(err, errAlreadyDone):
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			failure := p.recordFailure(ctx, sb.ID, st, err)
			report.Failures = append(report.Failures, failure)
			if fresh, err := p.cfg.Store.Get(ctx, id); err == nil {
				sb = fresh
			}
		}
	}

	progress(100, "production finished")
	slog.Info("storyboard production finished", "storyboard_id", id,
		"rendered", report.Rendered, "failures", len(report.Failures))
	return &ProductionResult{Storyboard: sb, Report: report}, nil
}

// RegenerateScene discards the media of one scene phase and produces it again.
func (p *Pipeline) RegenerateScene(ctx context.Context, id string, phase Phase, index int) (*Storyboard, error) {
	st := step{phase: phase, index: index}

	sb, err := p.cfg.Store.Update(ctx, id, func(sb *Storyboard) error {
		if err := checkStep(sb, st); err != nil {
			return err
		}
		sb.Scenes[index].SetField(phase, "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := p.runStep(ctx, sb, st)
	if err != nil {
		if ctx.Err() == nil {
			p.recordFailure(ctx, id, st, err)
		}
		return nil, err
	}
	return updated, nil
}

// CheckScene reports whether phase can be produced for scene index.
func (sb *Storyboard) CheckScene(phase Phase, index int) error {
	return checkStep(sb, step{phase: phase, index: index})
}

func checkStep(sb *Storyboard, st step) error {
	n := len(sb.Scenes)
	switch st.phase {
	case PhaseImage, PhaseAudio:
		if st.index < 0 || st.index >= n {
			return fmt.Errorf("scene index %d out of range [0,%d)", st.index, n)
		}
		if st.phase == PhaseAudio && !sb.Scenes[st.index].HasDialogue() {
			return fmt.Errorf("scene %d has no dialogue to narrate", st.index+1)
		}
	case PhaseVideo:
		if st.index < 0 || st.index+1 >= n {
			return fmt.Errorf("transition index %d out of range [0,%d)", st.index, max(n-1, 0))
		}
	default:
		return fmt.Errorf("unknown phase %q", st.phase)
	}
	return nil
}

// runStep produces the media of st and persists it on the storyboard.
func (p *Pipeline) runStep(ctx context.Context, sb *Storyboard, st step) (*Storyboard, error) {
	if err := checkStep(sb, st); err != nil {
		return nil, err
	}
	if sb.Scenes[st.index].Field(st.phase) != "" {
		return nil, errAlreadyDone
	}

	var (
		media genai.Media
		err   error
	)
	switch st.phase {
	case PhaseImage:
		media, err = p.renderImage(ctx, sb, st.index)
	case PhaseAudio:
		media, err = p.narrate(ctx, sb, st.index)
	case PhaseVideo:
		media, err = p.animate(ctx, sb, st.index)
	}
	if err != nil {
		return nil, err
	}

	key := assets.NewKey(sb.ID, fmt.Sprintf("scene-%d-%s", st.index+1, st.phase), media.MIMEType)
	uri, err := p.cfg.Assets.Save(ctx, key, media.Data, media.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("save %s asset: %w", st.phase, err)
	}

	updated, err := p.cfg.Store.Update(ctx, sb.ID, func(cur *Storyboard) error {
		if err := checkStep(cur, st); err != nil {
			return err
		}
		cur.Scenes[st.index].SetField(st.phase, uri)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("scene rendered", "storyboard_id", sb.ID, "phase", st.phase, "index", st.index, "uri", uri)
	p.cfg.Bus.Publish(events.NewTypedEventWithRelated(events.SourcePipeline, events.SceneRenderedPayload{
		StoryboardID: sb.ID,
		Phase:        string(st.phase),
		Index:        st.index,
		URI:          uri,
	}, sb.ID))
	return updated, nil
}

func (p *Pipeline) renderImage(ctx context.Context, sb *Storyboard, i int) (genai.Media, error) {
	if p.cfg.Images == nil {
		return genai.Media{}, errors.New("no image generator configured")
	}

	chars := sceneCharacters(sb, i)
	req := genai.ImageRequest{
		Prompt:       sb.Scenes[i].Description,
		References:   p.loadRefs(ctx, imageRefs(sb, i, chars)),
		CharacterDNA: characterDNA(chars),
		Style:        sb.Style,
		AspectRatio:  sb.AspectRatio,
	}
	return genai.Retry(ctx, p.retryPolicy(sb.ID), "generate image", func(ctx context.Context) (genai.Media, error) {
		return p.cfg.Images.GenerateImage(ctx, req)
	})
}

func (p *Pipeline) narrate(ctx context.Context, sb *Storyboard, i int) (genai.Media, error) {
	if p.cfg.Voices == nil {
		return genai.Media{}, errors.New("no speech synthesizer configured")
	}
	req := genai.SpeechRequest{
		Text:  sb.Scenes[i].Dialogue,
		Voice: p.voiceFor(i),
	}
	return genai.Retry(ctx, p.retryPolicy(sb.ID), "synthesize speech", func(ctx context.Context) (genai.Media, error) {
		return p.cfg.Voices.Synthesize(ctx, req)
	})
}

func (p *Pipeline) animate(ctx context.Context, sb *Storyboard, i int) (genai.Media, error) {
	if p.cfg.Videos == nil {
		return genai.Media{}, errors.New("no video generator configured")
	}
	from, to := sb.Scenes[i].FrameImage, sb.Scenes[i+1].FrameImage
	if from == "" || to == "" {
		return genai.Media{}, &skipError{msg: fmt.Sprintf("scene %d and %d both need a frame", i+1, i+2)}
	}

	start, err := p.loadMedia(ctx, from)
	if err != nil {
		return genai.Media{}, err
	}
	end, err := p.loadMedia(ctx, to)
	if err != nil {
		return genai.Media{}, err
	}

	req := genai.VideoRequest{
		Prompt:      transitionPrompt(sb, i),
		Start:       start,
		End:         end,
		AspectRatio: sb.AspectRatio,
		Motion:      sb.Scenes[i].CameraMotion,
	}
	return genai.Retry(ctx, p.retryPolicy(sb.ID), "generate video", func(ctx context.Context) (genai.Media, error) {
		return p.cfg.Videos.GenerateVideo(ctx, req)
	})
}

// voiceFor picks the narration voice of scene i, round-robin over the pool.
func (p *Pipeline) voiceFor(i int) string {
	if len(p.cfg.VoicePool) == 0 {
		return ""
	}
	return p.cfg.VoicePool[i%len(p.cfg.VoicePool)]
}

func (p *Pipeline) loadMedia(ctx context.Context, uri string) (genai.Media, error) {
	data, mimeType, err := p.cfg.Assets.Open(ctx, uri)
	if err != nil {
		return genai.Media{}, fmt.Errorf("load %s: %w", uri, err)
	}
	return genai.Media{Data: data, MIMEType: mimeType}, nil
}

// loadRefs loads reference images, dropping the ones that cannot be read.
func (p *Pipeline) loadRefs(ctx context.Context, uris []string) []genai.Media {
	refs := make([]genai.Media, 0, len(uris))
	for _, uri := range uris {
		m, err := p.loadMedia(ctx, uri)
		if err != nil {
			slog.Warn("skip unreadable reference image", "uri", uri, "error", err)
			continue
		}
		refs = append(refs, m)
	}
	return refs
}

func (p *Pipeline) retryPolicy(storyboardID string) genai.RetryPolicy {
	policy := p.cfg.Retry
	next := policy.OnRetry
	policy.OnRetry = func(op string, attempt int, wait time.Duration, err error) {
		p.cfg.Bus.Publish(events.NewTypedEventWithRelated(events.SourcePipeline, events.SceneRetryPayload{
			Op:      op,
			Attempt: attempt,
			Wait:    wait,
			Error:   err.Error(),
		}, storyboardID))
		if next != nil {
			next(op, attempt, wait, err)
		}
	}
	return policy
}

// recordFailure stores the error on the scene and announces it.
func (p *Pipeline) recordFailure(ctx context.Context, id string, st step, err error) SceneFailure {
	failure := SceneFailure{
		Phase:   st.phase,
		Index:   st.index,
		Kind:    failureKind(err),
		Message: err.Error(),
	}
	slog.Warn("scene failed", "storyboard_id", id, "phase", st.phase, "index", st.index,
		"kind", failure.Kind, "error", err)

	_, uerr := p.cfg.Store.Update(ctx, id, func(sb *Storyboard) error {
		if checkStep(sb, st) != nil {
			return errAlreadyDone
		}
		sb.Scenes[st.index].setError(st.phase, failure.Message)
		return nil
	})
	if uerr != nil && !errors.Is(uerr, errAlreadyDone) {
		slog.Error("record scene failure", "storyboard_id", id, "error", uerr)
	}

	p.cfg.Bus.Publish(events.NewTypedEventWithRelated(events.SourcePipeline, events.SceneFailedPayload{
		StoryboardID: id,
		Phase:        string(st.phase),
		Index:        st.index,
		Kind:         failure.Kind,
		Error:        failure.Message,
	}, id))
	return failure
}

type skipError struct{ msg string }

func (e *skipError) Error() string { return e.msg }

func failureKind(err error) string {
	var skip *skipError
	if errors.As(err, &skip) {
		return KindSkipped
	}
	return string(genai.KindOf(err))
}
