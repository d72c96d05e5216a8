package gateway

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dohr-michael/studio/internal/tasks"
)

// listTasks supports ?status=pending,running and ?related_id= filters.
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var filter tasks.ListFilter
	if v := r.URL.Query().Get("status"); v != "" {
		for _, st := range strings.Split(v, ",") {
			filter.Status = append(filter.Status, tasks.TaskStatus(strings.TrimSpace(st)))
		}
	}
	filter.RelatedID = r.URL.Query().Get("related_id")

	list, err := s.cfg.Tasks.Store().List(r.Context(), filter)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) activeTasks(w http.ResponseWriter, _ *http.Request) {
	list, err := s.cfg.Tasks.Active()
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.cfg.Tasks.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cfg.Tasks.Cancel(id); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	t, err := s.cfg.Tasks.Get(id)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) clearCompleted(w http.ResponseWriter, _ *http.Request) {
	n, err := s.cfg.Tasks.ClearCompleted()
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
