package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/sentinel/internal/extractor"
	"github.com/MikeSquared-Agency/sentinel/internal/processor"
	"github.com/MikeSquared-Agency/sentinel/internal/session"
)

type sessionSummary struct {
	SessionID    string    `json:"sessionId"`
	PersonaID    string    `json:"personaId"`
	Messages     int       `json:"messages"`
	Intelligence int       `json:"intelligenceCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	live := s.deps.Sessions.List()
	out := make([]sessionSummary, 0, len(live))
	for _, sess := range live {
		out = append(out, sessionSummary{
			SessionID:    sess.ID,
			PersonaID:    sess.PersonaID,
			Messages:     len(sess.Turns),
			Intelligence: sess.Intelligence.Count(),
			CreatedAt:    sess.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out, "count": len(out)})
}

func (s *Server) listArchive(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		writeError(w, http.StatusNotFound, "no archive configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.deps.Archive.ListSessions(r.Context(), limit)
	if err != nil {
		s.deps.Logger.Error("list archived sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "archive unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": rows, "count": len(rows)})
}

type sessionDetail struct {
	SessionID    string           `json:"sessionId"`
	PersonaID    string           `json:"personaId"`
	PersonaName  string           `json:"personaName"`
	Turns        []session.Turn   `json:"turns"`
	Intelligence extractor.Record `json:"intelligence"`
	CreatedAt    time.Time        `json:"createdAt"`
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, ok := s.deps.Sessions.Get(id)
	if !ok && s.deps.Archive != nil {
		stored, err := s.deps.Archive.LoadSession(r.Context(), id)
		switch {
		case errors.Is(err, session.ErrNotFound):
		case err != nil:
			s.deps.Logger.Error("load archived session failed", "session_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "archive unavailable")
			return
		default:
			sess, ok = stored.Clone(), true
		}
	}
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, sessionDetail{
		SessionID:    sess.ID,
		PersonaID:    sess.PersonaID,
		PersonaName:  s.deps.Personas.Get(sess.PersonaID).Name,
		Turns:        sess.Turns,
		Intelligence: sess.Intelligence.Clone(),
		CreatedAt:    sess.CreatedAt,
	})
}

func (s *Server) listPersonas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default":  s.deps.Personas.DefaultID(),
		"personas": s.deps.Personas.All(),
	})
}

func (s *Server) seedDemo(w http.ResponseWriter, r *http.Request) {
	outs := s.deps.Processor.SeedDemo(r.Context())
	replies := make([]string, 0, len(outs))
	for _, o := range outs {
		replies = append(replies, o.Reply)
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": processor.DemoSessionID,
		"replies":   replies,
	})
}
