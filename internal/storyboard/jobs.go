package storyboard

import (
	"context"
	"fmt"

	"github.com/dohr-michael/studio/internal/tasks"
)

// ProductionJob produces every missing asset of one storyboard.
type ProductionJob struct {
	pipeline     *Pipeline
	storyboardID string
	title        string
}

var (
	_ tasks.Job       = (*ProductionJob)(nil)
	_ tasks.Describer = (*ProductionJob)(nil)
	_ tasks.Job       = (*SceneJob)(nil)
)

// NewProductionJob creates a production job for storyboardID.
func NewProductionJob(cfg ProductionConfig, storyboardID string) *ProductionJob {
	return NewPipeline(cfg).ProductionJob(storyboardID, "")
}

// ProductionJob creates a production job running on p. title names the
// storyboard in the task title and may be empty.
func (p *Pipeline) ProductionJob(storyboardID, title string) *ProductionJob {
	return &ProductionJob{pipeline: p, storyboardID: storyboardID, title: title}
}

func (j *ProductionJob) Kind() tasks.TaskType { return tasks.TypeStoryboard }

func (j *ProductionJob) Title() string {
	if j.title != "" {
		return "Produce " + j.title
	}
	return "Produce storyboard " + j.storyboardID
}

func (j *ProductionJob) Description() string { return "waiting to start" }

func (j *ProductionJob) Run(ctx context.Context, progress tasks.ProgressFunc) (any, error) {
	return j.pipeline.Produce(ctx, j.storyboardID, progress)
}

// SceneJob regenerates the media of a single scene phase.
type SceneJob struct {
	pipeline     *Pipeline
	storyboardID string
	phase        Phase
	index        int
}

// SceneJob creates a regeneration job for one scene phase.
func (p *Pipeline) SceneJob(storyboardID string, phase Phase, index int) *SceneJob {
	return &SceneJob{pipeline: p, storyboardID: storyboardID, phase: phase, index: index}
}

func (j *SceneJob) Kind() tasks.TaskType {
	switch j.phase {
	case PhaseAudio:
		return tasks.TypeAudio
	case PhaseVideo:
		return tasks.TypeVideo
	default:
		return tasks.TypeImage
	}
}

func (j *SceneJob) Title() string {
	return fmt.Sprintf("Regenerate scene %d %s", j.index+1, j.phase)
}

func (j *SceneJob) Run(ctx context.Context, progress tasks.ProgressFunc) (any, error) {
	progress(0, step{j.phase, j.index}.String())
	sb, err := j.pipeline.RegenerateScene(ctx, j.storyboardID, j.phase, j.index)
	if err != nil {
		return nil, err
	}
	return sb, nil
}
