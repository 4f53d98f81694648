package session

import (
	"context"
	"errors"
	"time"

	"github.com/MikeSquared-Agency/sentinel/internal/extractor"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// Role identifies who authored a turn.
type Role string

const (
	RoleScammer Role = "scammer"
	RoleAgent   Role = "agent"
)

// Turn is a single message in a conversation. Turns are append-only.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one conversation with a single remote counterparty.
type Session struct {
	ID           string           `json:"sessionId"`
	PersonaID    string           `json:"personaId"`
	Turns        []Turn           `json:"turns"`
	Intelligence extractor.Record `json:"intelligence"`
	LastReply    string           `json:"lastReply,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// IsFirstContact reports whether nothing has been exchanged yet.
func (s Session) IsFirstContact() bool { return len(s.Turns) == 0 }

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	out.Turns = make([]Turn, len(s.Turns))
	copy(out.Turns, s.Turns)
	out.Intelligence = s.Intelligence.Clone()
	return out
}

// Window returns at most n of the most recent turns.
func (s Session) Window(n int) []Turn {
	if n <= 0 || len(s.Turns) == 0 {
		return nil
	}
	start := len(s.Turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(s.Turns)-start)
	copy(out, s.Turns[start:])
	return out
}

// Loader rehydrates a session from durable storage. It returns ErrNotFound
// when the id has never been seen.
type Loader interface {
	LoadSession(ctx context.Context, id string) (*Session, error)
}

// Store maps session ids to conversation state.
//
// Mutating methods do not serialise against each other on their own; callers
// that read-modify-write a session must hold Lock(id) for the whole sequence.
type Store interface {
	// Lock acquires the per-session lock and returns its release function.
	Lock(id string) (unlock func())
	// GetOrCreate returns a copy of the session, creating it with a freshly
	// assigned persona on first contact.
	GetOrCreate(ctx context.Context, id string) (Session, bool)
	Get(id string) (Session, bool)
	Append(id string, turns ...Turn) error
	SetLastReply(id, reply string) error
	MergeIntelligence(id string, partial extractor.Record) (extractor.Record, error)
	List() []Session
	Len() int
}
