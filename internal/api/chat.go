package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/sentinel/internal/processor"
)

const maxBodyBytes = 1 << 20

type chatResponse struct {
	Status    string `json:"status"`
	Reply     string `json:"reply"`
	SessionID string `json:"sessionId"`
}

// chat handles POST /api/chat. Once authenticated it always answers 200; an
// unusable body gets status "error" with the busy reply.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.deps.Logger.Warn("read chat body failed", "error", err)
	}

	in, ok := normalize(body)
	if !ok {
		if in.SessionID == "" {
			in.SessionID = uuid.NewString()
		}
		writeJSON(w, http.StatusOK, chatResponse{
			Status:    processor.StatusError,
			Reply:     processor.BusyReply,
			SessionID: in.SessionID,
		})
		return
	}

	out := s.deps.Processor.Handle(r.Context(), in)
	writeJSON(w, http.StatusOK, chatResponse{
		Status:    out.Status,
		Reply:     out.Reply,
		SessionID: out.SessionID,
	})
}

// normalize accepts the canonical {sessionId, message: {text}} shape and the
// variants seen from real clients: message as a bare string, text under
// "content" or "message", and snake_case or upper-case session id keys.
// conversationHistory is ignored; server-side history is authoritative.
func normalize(body []byte) (processor.Inbound, bool) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return processor.Inbound{}, false
	}

	var in processor.Inbound
	for _, k := range []string{"sessionId", "session_id", "sessionID"} {
		if v, ok := raw[k].(string); ok && strings.TrimSpace(v) != "" {
			in.SessionID = strings.TrimSpace(v)
			break
		}
	}

	in.Text = messageText(raw["message"])
	if in.Text == "" {
		in.Text = firstString(raw, "text", "content")
	}
	return in, strings.TrimSpace(in.Text) != ""
}

func messageText(v any) string {
	switch m := v.(type) {
	case string:
		return m
	case map[string]any:
		return firstString(m, "text", "content", "message")
	default:
		return ""
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
