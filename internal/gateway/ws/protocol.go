package ws

import "encoding/json"

// FrameType is the kind of a websocket frame.
type FrameType string

const (
	FrameTypeRequest  FrameType = "req"
	FrameTypeResponse FrameType = "res"
	FrameTypeEvent    FrameType = "event"
)

// Methods a client may call.
const (
	MethodSubscribe  = "subscribe"
	MethodListTasks  = "list_tasks"
	MethodGetTask    = "get_task"
	MethodCancelTask = "cancel_task"
	MethodProduce    = "produce_storyboard"
	MethodRegenerate = "regenerate_scene"
)

// Frame is the envelope of every websocket message.
type Frame struct {
	Type      FrameType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	OK        *bool           `json:"ok,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	Event     string          `json:"event,omitempty"`
	RelatedID string          `json:"related_id,omitempty"`
}

// SubscribeParams narrows the event feed of a connection to one related
// id (usually a storyboard). An empty id restores the full feed.
type SubscribeParams struct {
	RelatedID string `json:"related_id"`
}

func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// NewEventFrame wraps an event payload for broadcasting.
func NewEventFrame(event, relatedID string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:      FrameTypeEvent,
		Event:     event,
		RelatedID: relatedID,
		Payload:   data,
	}, nil
}

// NewResponseFrame answers request id. A nil payload is omitted.
func NewResponseFrame(id string, ok bool, payload any, errMsg string) (Frame, error) {
	f := Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    &ok,
		Error: errMsg,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = data
	}
	return f, nil
}
