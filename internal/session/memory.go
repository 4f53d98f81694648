package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/MikeSquared-Agency/sentinel/internal/extractor"
)

const (
	DefaultCapacity = 10000
	DefaultTTL      = 24 * time.Hour
)

// Assigner picks the persona for a new session.
type Assigner interface {
	RandomID() string
	DefaultID() string
	Has(id string) bool
}

type entry struct {
	mu sync.RWMutex
	s  Session
}

// MemoryStore keeps sessions in a bounded LRU. A session idle for longer than
// the TTL, or pushed out by capacity, is forgotten unless a Loader can bring
// it back.
type MemoryStore struct {
	cache    *expirable.LRU[string, *entry]
	locks    *keyedMutex
	createMu sync.Mutex
	assigner Assigner
	loader   Loader
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a MemoryStore.
type Option func(*options)

type options struct {
	capacity int
	ttl      time.Duration
	loader   Loader
	logger   *slog.Logger
	now      func() time.Time
}

func WithCapacity(n int) Option        { return func(o *options) { o.capacity = n } }
func WithTTL(d time.Duration) Option   { return func(o *options) { o.ttl = d } }
func WithLoader(l Loader) Option       { return func(o *options) { o.loader = l } }
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func withClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func NewMemoryStore(assigner Assigner, opts ...Option) *MemoryStore {
	o := options{
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity <= 0 {
		o.capacity = DefaultCapacity
	}

	s := &MemoryStore{
		locks:    newKeyedMutex(),
		assigner: assigner,
		loader:   o.loader,
		logger:   o.logger,
		now:      o.now,
	}
	s.cache = expirable.NewLRU[string, *entry](o.capacity, func(id string, _ *entry) {
		s.logger.Debug("session evicted", "session_id", id)
	}, o.ttl)
	return s
}

func (m *MemoryStore) Lock(id string) func() {
	return m.locks.Lock(id)
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, id string) (Session, bool) {
	if e, ok := m.cache.Get(id); ok {
		return e.snapshot(), false
	}

	// Load outside createMu so a slow backing store only delays this session.
	var loaded *Session
	if m.loader != nil {
		s, err := m.loader.LoadSession(ctx, id)
		switch {
		case err == nil && s != nil:
			c := s.Clone()
			loaded = &c
		case err != nil && !errors.Is(err, ErrNotFound):
			m.logger.Warn("session load failed, starting fresh", "session_id", id, "error", err)
		}
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()
	if e, ok := m.cache.Get(id); ok {
		return e.snapshot(), false
	}

	if loaded != nil {
		if !m.assigner.Has(loaded.PersonaID) {
			m.logger.Warn("stored persona no longer in catalog", "session_id", id, "persona", loaded.PersonaID)
		}
		e := &entry{s: *loaded}
		m.cache.Add(id, e)
		m.logger.Info("session rehydrated", "session_id", id, "persona", loaded.PersonaID, "turns", len(loaded.Turns))
		return e.snapshot(), false
	}

	e := &entry{s: Session{
		ID:           id,
		PersonaID:    m.assign(),
		Turns:        []Turn{},
		Intelligence: extractor.Empty(),
		CreatedAt:    m.now(),
	}}
	m.cache.Add(id, e)
	return e.snapshot(), true
}

func (m *MemoryStore) assign() string {
	id := m.assigner.RandomID()
	if !m.assigner.Has(id) {
		return m.assigner.DefaultID()
	}
	return id
}

func (m *MemoryStore) Get(id string) (Session, bool) {
	e, ok := m.cache.Peek(id)
	if !ok {
		return Session{}, false
	}
	return e.snapshot(), true
}

func (m *MemoryStore) Append(id string, turns ...Turn) error {
	return m.update(id, func(s *Session) {
		for _, t := range turns {
			if t.Timestamp.IsZero() {
				t.Timestamp = m.now()
			}
			s.Turns = append(s.Turns, t)
		}
	})
}

func (m *MemoryStore) SetLastReply(id, reply string) error {
	return m.update(id, func(s *Session) { s.LastReply = reply })
}

func (m *MemoryStore) MergeIntelligence(id string, partial extractor.Record) (extractor.Record, error) {
	var merged extractor.Record
	err := m.update(id, func(s *Session) {
		s.Intelligence = extractor.Merge(s.Intelligence, partial)
		merged = s.Intelligence.Clone()
	})
	return merged, err
}

// update mutates a cached session and re-adds it, which also resets its TTL.
func (m *MemoryStore) update(id string, fn func(*Session)) error {
	e, ok := m.cache.Peek(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	fn(&e.s)
	e.mu.Unlock()
	m.cache.Add(id, e)
	return nil
}

// List returns every live session, oldest first.
func (m *MemoryStore) List() []Session {
	entries := m.cache.Values()
	out := make([]Session, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) Len() int { return m.cache.Len() }

func (e *entry) snapshot() Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.s.Clone()
}
