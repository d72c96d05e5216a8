package tasks

import "context"

// ProgressFunc reports completion percent (clamped to 0..100) and an
// optional description of the current step.
type ProgressFunc func(percent int, description string)

// Job is a unit of work the registry can execute.
// The value returned by Run is JSON-encoded into the task result.
type Job interface {
	Kind() TaskType
	Title() string
	Run(ctx context.Context, progress ProgressFunc) (any, error)
}

// Describer is implemented by jobs that provide an initial task description.
type Describer interface {
	Description() string
}

// JobFunc adapts a plain function to the Job interface.
type JobFunc struct {
	Type TaskType
	Name string
	Fn   func(ctx context.Context, progress ProgressFunc) (any, error)
}

func (j JobFunc) Kind() TaskType { return j.Type }
func (j JobFunc) Title() string  { return j.Name }

func (j JobFunc) Run(ctx context.Context, progress ProgressFunc) (any, error) {
	return j.Fn(ctx, progress)
}
