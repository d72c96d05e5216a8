package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dohr-michael/studio/internal/gateway/ws"
	"github.com/dohr-michael/studio/internal/storyboard"
	"github.com/dohr-michael/studio/internal/tasks"
)

// wsHandler serves websocket requests with the same registry and pipeline
// as the HTTP routes.
type wsHandler struct {
	s *Server
}

type taskParams struct {
	ID string `json:"id"`
}

type sceneParams struct {
	StoryboardID string `json:"storyboard_id"`
	Phase        string `json:"phase"`
	Index        int    `json:"index"`
}

func (h *wsHandler) HandleRequest(ctx context.Context, method string, params json.RawMessage) (any, error) {
	reg := h.s.cfg.Tasks

	switch method {
	case ws.MethodListTasks:
		var filter tasks.ListFilter
		if err := decodeParams(params, &filter); err != nil {
			return nil, err
		}
		list, err := reg.Store().List(ctx, filter)
		return nonNil(list), err

	case ws.MethodGetTask:
		var p taskParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return reg.Get(p.ID)

	case ws.MethodCancelTask:
		var p taskParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if err := reg.Cancel(p.ID); err != nil {
			return nil, err
		}
		return reg.Get(p.ID)

	case ws.MethodProduce:
		var p taskParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		sb, err := h.s.storyboards().Get(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		id, err := h.s.enqueueProduction(ctx, sb)
		if err != nil {
			return nil, err
		}
		return taskAccepted{TaskID: id}, nil

	case ws.MethodRegenerate:
		var p sceneParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		phase, err := storyboard.ParsePhase(p.Phase)
		if err != nil {
			return nil, err
		}
		sb, err := h.s.storyboards().Get(ctx, p.StoryboardID)
		if err != nil {
			return nil, err
		}
		if err := sb.CheckScene(phase, p.Index); err != nil {
			return nil, err
		}
		id, err := reg.Enqueue(h.s.cfg.Pipeline.SceneJob(sb.ID, phase, p.Index), sb.ID)
		if err != nil {
			return nil, err
		}
		return taskAccepted{TaskID: id}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ws.ErrUnknownMethod, method)
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
