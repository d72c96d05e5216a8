// Package gateway exposes tasks, storyboards and generated assets over HTTP
// and streams bus events to websocket clients.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/studio/internal/assets"
	"github.com/dohr-michael/studio/internal/events"
	"github.com/dohr-michael/studio/internal/gateway/ws"
	"github.com/dohr-michael/studio/internal/storyboard"
	"github.com/dohr-michael/studio/internal/tasks"
)

// Config holds the gateway's dependencies.
type Config struct {
	Host string
	Port int

	Bus      *events.Bus
	Tasks    *tasks.Registry
	Pipeline *storyboard.Pipeline
	Assets   assets.Store
	// AssetsBaseURL is the URI prefix of stored assets. When it is a path
	// such as "/assets", the gateway serves them itself.
	AssetsBaseURL string

	DefaultStyle       string
	DefaultAspectRatio string
}

// Server is the studio HTTP gateway.
type Server struct {
	cfg        Config
	hub        *ws.Hub
	router     chi.Router
	httpServer *http.Server

	produceMu sync.Mutex // serializes the active-production check with Enqueue
}

func NewServer(cfg Config) *Server {
	s := &Server{cfg: cfg}
	s.hub = ws.NewHub(cfg.Bus, &wsHandler{s: s})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/ws", s.hub.ServeWS)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", s.listTasks)
		r.Get("/active", s.activeTasks)
		r.Delete("/completed", s.clearCompleted)
		r.Get("/{id}", s.getTask)
		r.Post("/{id}/cancel", s.cancelTask)
	})

	r.Route("/api/storyboards", func(r chi.Router) {
		r.Get("/", s.listStoryboards)
		r.Post("/", s.createStoryboard)
		r.Get("/{id}", s.getStoryboard)
		r.Put("/{id}", s.replaceStoryboard)
		r.Delete("/{id}", s.deleteStoryboard)
		r.Post("/{id}/produce", s.produceStoryboard)
		r.Post("/{id}/scenes/{index}/{phase}", s.regenerateScene)
		r.Post("/{id}/characters/{charID}/portrait", s.generatePortrait)
		r.Post("/{id}/script", s.writeScript)
	})

	if prefix, ok := localPrefix(cfg.AssetsBaseURL); ok && cfg.Assets != nil {
		r.Get(prefix+"/*", s.serveAsset)
	}

	s.router = r
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("studio gateway listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"ws_clients": s.hub.Clients(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	history := s.cfg.Bus.History(limit)
	if related := r.URL.Query().Get("related_id"); related != "" {
		filtered := make([]events.Event, 0, len(history))
		for _, e := range history {
			if e.RelatedID == related {
				filtered = append(filtered, e)
			}
		}
		history = filtered
	}
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	uri := strings.TrimRight(s.cfg.AssetsBaseURL, "/") + "/" + chi.URLParam(r, "*")
	data, mimeType, err := s.cfg.Assets.Open(r.Context(), uri)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// localPrefix reports whether baseURL is a path served by the gateway.
func localPrefix(baseURL string) (string, bool) {
	if !strings.HasPrefix(baseURL, "/") {
		return "", false
	}
	prefix := strings.TrimRight(baseURL, "/")
	return prefix, prefix != ""
}
