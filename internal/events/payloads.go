package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// TASK EVENTS
// =============================================================================

type TaskCreatedPayload struct {
	TaskID    string `json:"task_id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	RelatedID string `json:"related_id,omitempty"`
}

func (TaskCreatedPayload) EventType() EventType { return EventTaskCreated }

type TaskStartedPayload struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
}

func (TaskStartedPayload) EventType() EventType { return EventTaskStarted }

type TaskProgressPayload struct {
	TaskID      string `json:"task_id"`
	Progress    int    `json:"progress"`
	Description string `json:"description,omitempty"`
}

func (TaskProgressPayload) EventType() EventType { return EventTaskProgress }

type TaskCompletedPayload struct {
	TaskID   string        `json:"task_id"`
	Title    string        `json:"title"`
	Duration time.Duration `json:"duration,omitempty"`
}

func (TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }

type TaskFailedPayload struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	Error  string `json:"error"`
}

func (TaskFailedPayload) EventType() EventType { return EventTaskFailed }

type TaskCancelledPayload struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

func (TaskCancelledPayload) EventType() EventType { return EventTaskCancelled }

type TasksPrunedPayload struct {
	Count  int       `json:"count"`
	Before time.Time `json:"before"`
}

func (TasksPrunedPayload) EventType() EventType { return EventTasksPruned }

// =============================================================================
// STORYBOARD EVENTS
// =============================================================================

type SceneRenderedPayload struct {
	StoryboardID string `json:"storyboard_id"`
	Phase        string `json:"phase"`
	Index        int    `json:"index"`
	URI          string `json:"uri,omitempty"`
}

func (SceneRenderedPayload) EventType() EventType { return EventSceneRendered }

type SceneFailedPayload struct {
	StoryboardID string `json:"storyboard_id"`
	Phase        string `json:"phase"`
	Index        int    `json:"index"`
	Kind         string `json:"kind"`
	Error        string `json:"error"`
}

func (SceneFailedPayload) EventType() EventType { return EventSceneFailed }

type SceneRetryPayload struct {
	Op      string        `json:"op"`
	Attempt int           `json:"attempt"`
	Wait    time.Duration `json:"wait"`
	Error   string        `json:"error"`
}

func (SceneRetryPayload) EventType() EventType { return EventSceneRetry }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return NewTypedEventWithRelated(source, payload, "")
}

// NewTypedEventWithRelated attaches the id of the domain entity the event concerns.
func NewTypedEventWithRelated(source EventSource, payload EventPayload, relatedID string) Event {
	return Event{
		ID:        generateEventID(),
		RelatedID: relatedID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
