package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/sentinel/internal/persona"
	"github.com/MikeSquared-Agency/sentinel/internal/processor"
	"github.com/MikeSquared-Agency/sentinel/internal/session"
	"github.com/MikeSquared-Agency/sentinel/internal/store"
)

// Archive serves sessions that may have left the in-memory store.
// *store.Store satisfies it.
type Archive interface {
	session.Loader
	ListSessions(ctx context.Context, limit int) ([]store.SessionRow, error)
}

type Deps struct {
	Processor *processor.Processor
	Sessions  session.Store
	Personas  *persona.Registry
	Archive   Archive // optional
	APIKey    string  // empty disables auth
	Logger    *slog.Logger
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	http   *http.Server
}

func NewServer(port int, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/sentinel/status", s.status)

	router.Group(func(r chi.Router) {
		r.Use(APIKeyMiddleware(deps.APIKey))
		r.Post("/api/chat", s.chat)
		r.Post("/api/v1/chat", s.chat)

		r.Route("/api/v1/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Get("/archive", s.listArchive)
			r.Get("/{id}", s.getSession)
		})
		r.Get("/api/v1/personas", s.listPersonas)
		r.Post("/api/v1/demo", s.seedDemo)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("API server starting", "addr", addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"agent":    "sentinel",
		"status":   "active",
		"personas": s.deps.Personas.Len(),
	}
	if s.deps.Processor != nil {
		body["stats"] = s.deps.Processor.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
