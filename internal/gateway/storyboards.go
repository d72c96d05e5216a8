package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dohr-michael/studio/internal/storyboard"
	"github.com/dohr-michael/studio/internal/tasks"
)

const maxBody = 4 << 20

func (s *Server) storyboards() *storyboard.Store { return s.cfg.Pipeline.Store() }

func (s *Server) listStoryboards(w http.ResponseWriter, r *http.Request) {
	list, err := s.storyboards().List(r.Context())
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) getStoryboard(w http.ResponseWriter, r *http.Request) {
	sb, err := s.storyboards().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sb)
}

// createStoryboard accepts a JSON body, or YAML with a yaml Content-Type.
func (s *Server) createStoryboard(w http.ResponseWriter, r *http.Request) {
	sb, err := s.decodeStoryboard(r)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	sb.ID = ""
	if err := storyboard.Save(r.Context(), s.storyboards(), sb, s.cfg.DefaultStyle, s.cfg.DefaultAspectRatio); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, sb)
}

func (s *Server) replaceStoryboard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.storyboards().Get(r.Context(), id); err != nil {
		writeError(w, statusOf(err), err)
		return
	}

	sb, err := s.decodeStoryboard(r)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	sb.ID = id
	if err := storyboard.Save(r.Context(), s.storyboards(), sb, s.cfg.DefaultStyle, s.cfg.DefaultAspectRatio); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sb)
}

func (s *Server) deleteStoryboard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.storyboards().Get(r.Context(), id); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	if err := s.storyboards().Delete(r.Context(), id); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeStoryboard(r *http.Request) (*storyboard.Storyboard, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		return storyboard.ParseYAML(data)
	}

	var sb storyboard.Storyboard
	if err := json.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return &sb, nil
}

type taskAccepted struct {
	TaskID string `json:"task_id"`
}

func (s *Server) produceStoryboard(w http.ResponseWriter, r *http.Request) {
	sb, err := s.storyboards().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	id, err := s.enqueueProduction(r.Context(), sb)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskAccepted{TaskID: id})
}

// enqueueProduction starts a production run unless one is already pending or
// running for the storyboard.
func (s *Server) enqueueProduction(ctx context.Context, sb *storyboard.Storyboard) (string, error) {
	s.produceMu.Lock()
	defer s.produceMu.Unlock()

	active, err := s.cfg.Tasks.Store().List(ctx, tasks.ListFilter{
		RelatedID: sb.ID,
		Status:    []tasks.TaskStatus{tasks.TaskPending, tasks.TaskRunning},
	})
	if err != nil {
		return "", err
	}
	for _, t := range active {
		if t.Type == tasks.TypeStoryboard {
			return "", fmt.Errorf("%w: storyboard %s is already in production (task %s)", errConflict, sb.ID, t.ID)
		}
	}
	return s.cfg.Tasks.Enqueue(s.cfg.Pipeline.ProductionJob(sb.ID, sb.Title), sb.ID)
}

func (s *Server) regenerateScene(w http.ResponseWriter, r *http.Request) {
	phase, err := storyboard.ParsePhase(chi.URLParam(r, "phase"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid scene index %q", chi.URLParam(r, "index")))
		return
	}

	sb, err := s.storyboards().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	if err := sb.CheckScene(phase, index); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.cfg.Tasks.Enqueue(s.cfg.Pipeline.SceneJob(sb.ID, phase, index), sb.ID)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskAccepted{TaskID: id})
}

func (s *Server) generatePortrait(w http.ResponseWriter, r *http.Request) {
	sb, err := s.storyboards().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	ref := chi.URLParam(r, "charID")
	c, ok := sb.Character(ref)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", storyboard.ErrUnknownCharacter, ref))
		return
	}

	id, err := s.cfg.Tasks.Enqueue(s.cfg.Pipeline.CharacterJob(sb.ID, c.ID, c.Name), sb.ID)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskAccepted{TaskID: id})
}

func (s *Server) writeScript(w http.ResponseWriter, r *http.Request) {
	var req storyboard.ScriptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.Premise == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("premise is required"))
		return
	}

	sb, err := s.storyboards().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	id, err := s.cfg.Tasks.Enqueue(s.cfg.Pipeline.ScriptJob(sb.ID, req), sb.ID)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskAccepted{TaskID: id})
}
