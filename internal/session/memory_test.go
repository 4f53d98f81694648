package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/sentinel/internal/extractor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedAssigner struct {
	next  string
	calls atomic.Int32
}

func (f *fixedAssigner) RandomID() string {
	f.calls.Add(1)
	return f.next
}

func (f *fixedAssigner) DefaultID() string { return "grandma" }

func (f *fixedAssigner) Has(id string) bool {
	return id == "grandma" || id == "student" || id == "angry_uncle"
}

type fakeLoader struct {
	sessions map[string]*Session
	err      error
	calls    atomic.Int32
}

func (f *fakeLoader) LoadSession(_ context.Context, id string) (*Session, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func newTestStore(a Assigner, opts ...Option) *MemoryStore {
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return NewMemoryStore(a, opts...)
}

func TestGetOrCreate_FirstContact(t *testing.T) {
	a := &fixedAssigner{next: "student"}
	s := newTestStore(a)
	ctx := context.Background()

	sess, isNew := s.GetOrCreate(ctx, "s1")
	if !isNew {
		t.Fatal("first call should create the session")
	}
	if sess.PersonaID != "student" {
		t.Errorf("persona = %q, want student", sess.PersonaID)
	}
	if !sess.IsFirstContact() {
		t.Error("new session should have no turns")
	}
	if sess.Intelligence.BankAccounts == nil || sess.Intelligence.UPIIDs == nil {
		t.Error("new session intelligence should use empty, non-nil lists")
	}

	a.next = "angry_uncle"
	again, isNew := s.GetOrCreate(ctx, "s1")
	if isNew {
		t.Error("second call should not create")
	}
	if again.PersonaID != "student" {
		t.Errorf("persona changed to %q", again.PersonaID)
	}
	if a.calls.Load() != 1 {
		t.Errorf("assigner called %d times, want 1", a.calls.Load())
	}
}

func TestGetOrCreate_UnknownPersonaFallsBackToDefault(t *testing.T) {
	s := newTestStore(&fixedAssigner{next: "ghost"})
	sess, _ := s.GetOrCreate(context.Background(), "s1")
	if sess.PersonaID != "grandma" {
		t.Errorf("persona = %q, want grandma", sess.PersonaID)
	}
}

func TestAppendAndLastReply(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestStore(&fixedAssigner{next: "grandma"}, withClock(func() time.Time { return now }))
	ctx := context.Background()
	s.GetOrCreate(ctx, "s1")

	err := s.Append("s1",
		Turn{Role: RoleScammer, Text: "your account is blocked"},
		Turn{Role: RoleAgent, Text: "oh dear"},
	)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.SetLastReply("s1", "oh dear"); err != nil {
		t.Fatalf("SetLastReply: %v", err)
	}

	sess, ok := s.Get("s1")
	if !ok {
		t.Fatal("session missing")
	}
	if len(sess.Turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(sess.Turns))
	}
	if sess.Turns[0].Role != RoleScammer || sess.Turns[1].Role != RoleAgent {
		t.Errorf("turn order wrong: %+v", sess.Turns)
	}
	if !sess.Turns[0].Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", sess.Turns[0].Timestamp, now)
	}
	if sess.LastReply != "oh dear" {
		t.Errorf("last reply = %q", sess.LastReply)
	}

	if err := s.Append("missing", Turn{Role: RoleAgent, Text: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Append on unknown id: got %v, want ErrNotFound", err)
	}
	if err := s.SetLastReply("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetLastReply on unknown id: got %v, want ErrNotFound", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := newTestStore(&fixedAssigner{next: "grandma"})
	s.GetOrCreate(context.Background(), "s1")
	_ = s.Append("s1", Turn{Role: RoleScammer, Text: "hello"})

	sess, _ := s.Get("s1")
	sess.Turns[0].Text = "tampered"
	sess.Intelligence.UPIIDs = append(sess.Intelligence.UPIIDs, "x@y")

	fresh, _ := s.Get("s1")
	if fresh.Turns[0].Text != "hello" {
		t.Error("mutating a returned session leaked into the store")
	}
	if len(fresh.Intelligence.UPIIDs) != 0 {
		t.Error("mutating returned intelligence leaked into the store")
	}
}

func TestMergeIntelligence(t *testing.T) {
	s := newTestStore(&fixedAssigner{next: "grandma"})
	s.GetOrCreate(context.Background(), "s1")

	first := extractor.Empty()
	first.UPIIDs = []string{"fraud@ybl"}
	first.PhoneNumbers = []string{"9876543210"}
	if _, err := s.MergeIntelligence("s1", first); err != nil {
		t.Fatal(err)
	}

	second := extractor.Empty()
	second.UPIIDs = []string{"fraud@ybl", "alt@paytm"}
	merged, err := s.MergeIntelligence("s1", second)
	if err != nil {
		t.Fatal(err)
	}

	if got := merged.UPIIDs; len(got) != 2 || got[0] != "fraud@ybl" || got[1] != "alt@paytm" {
		t.Errorf("merged UPI ids = %v", got)
	}
	if got := merged.PhoneNumbers; len(got) != 1 {
		t.Errorf("phone numbers lost in merge: %v", got)
	}

	if _, err := s.MergeIntelligence("missing", first); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestGetOrCreate_RehydratesFromLoader(t *testing.T) {
	stored := &Session{
		ID:           "old",
		PersonaID:    "angry_uncle",
		Turns:        []Turn{{Role: RoleScammer, Text: "pay now"}, {Role: RoleAgent, Text: "WHAT?"}},
		Intelligence: extractor.Empty(),
		LastReply:    "WHAT?",
	}
	l := &fakeLoader{sessions: map[string]*Session{"old": stored}}
	a := &fixedAssigner{next: "student"}
	s := newTestStore(a, WithLoader(l))

	sess, isNew := s.GetOrCreate(context.Background(), "old")
	if isNew {
		t.Error("rehydrated session should not be reported as new")
	}
	if sess.PersonaID != "angry_uncle" {
		t.Errorf("persona = %q, want angry_uncle", sess.PersonaID)
	}
	if len(sess.Turns) != 2 || sess.LastReply != "WHAT?" {
		t.Errorf("history not restored: %+v", sess)
	}
	if a.calls.Load() != 0 {
		t.Error("rehydration should not assign a new persona")
	}

	// Loader is consulted only on a cache miss.
	s.GetOrCreate(context.Background(), "old")
	if l.calls.Load() != 1 {
		t.Errorf("loader called %d times, want 1", l.calls.Load())
	}

	fresh, isNew := s.GetOrCreate(context.Background(), "brand-new")
	if !isNew || fresh.PersonaID != "student" {
		t.Errorf("unknown id should create a fresh session, got new=%v persona=%q", isNew, fresh.PersonaID)
	}
}

func TestGetOrCreate_LoaderErrorStartsFresh(t *testing.T) {
	l := &fakeLoader{err: errors.New("connection refused")}
	s := newTestStore(&fixedAssigner{next: "grandma"}, WithLoader(l))

	sess, isNew := s.GetOrCreate(context.Background(), "s1")
	if !isNew {
		t.Error("loader failure should fall through to a fresh session")
	}
	if sess.PersonaID != "grandma" {
		t.Errorf("persona = %q", sess.PersonaID)
	}
}

func TestTTLExpiry(t *testing.T) {
	s := newTestStore(&fixedAssigner{next: "grandma"}, WithTTL(30*time.Millisecond))
	ctx := context.Background()
	s.GetOrCreate(ctx, "s1")

	time.Sleep(100 * time.Millisecond)

	if _, ok := s.Get("s1"); ok {
		t.Error("idle session should have expired")
	}
	if _, isNew := s.GetOrCreate(ctx, "s1"); !isNew {
		t.Error("expired session should be recreated")
	}
}

func TestCapacityEviction(t *testing.T) {
	s := newTestStore(&fixedAssigner{next: "grandma"}, WithCapacity(2))
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		s.GetOrCreate(ctx, id)
	}

	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	if _, ok := s.Get("a"); ok {
		t.Error("least recently used session should have been evicted")
	}
	if _, ok := s.Get("c"); !ok {
		t.Error("newest session missing")
	}
}

func TestList_OldestFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	clock := func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Minute) }
	s := newTestStore(&fixedAssigner{next: "grandma"}, withClock(clock))
	ctx := context.Background()
	for _, id := range []string{"first", "second", "third"} {
		s.GetOrCreate(ctx, id)
	}

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("List len = %d", len(list))
	}
	for i, want := range []string{"first", "second", "third"} {
		if list[i].ID != want {
			t.Errorf("List[%d] = %q, want %q", i, list[i].ID, want)
		}
	}
}

func TestGetOrCreate_ConcurrentFirstContact(t *testing.T) {
	a := &fixedAssigner{next: "student"}
	s := newTestStore(a)

	var wg sync.WaitGroup
	var created atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, isNew := s.GetOrCreate(context.Background(), "shared"); isNew {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Errorf("session created %d times, want 1", created.Load())
	}
	if a.calls.Load() != 1 {
		t.Errorf("persona assigned %d times, want 1", a.calls.Load())
	}
}

func TestLock_SerialisesSameSession(t *testing.T) {
	s := newTestStore(&fixedAssigner{next: "grandma"})
	s.GetOrCreate(context.Background(), "s1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("s1")
			defer unlock()
			sess, _ := s.Get("s1")
			n := len(sess.Turns)
			time.Sleep(time.Millisecond)
			_ = s.Append("s1", Turn{Role: RoleScammer, Text: string(rune('a' + n%26))})
		}()
	}
	wg.Wait()

	sess, _ := s.Get("s1")
	if len(sess.Turns) != 20 {
		t.Errorf("turns = %d, want 20", len(sess.Turns))
	}
	if s.locks.size() != 0 {
		t.Errorf("lock table not cleaned up: %d entries", s.locks.size())
	}
}

func TestLock_IndependentSessionsDoNotBlock(t *testing.T) {
	s := newTestStore(&fixedAssigner{next: "grandma"})

	unlockA := s.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := s.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind lock on a")
	}
}

func TestLock_UnlockIsIdempotent(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("x")
	unlock()
	unlock()
	if k.size() != 0 {
		t.Errorf("size = %d, want 0", k.size())
	}

	// Still usable afterwards.
	unlock = k.Lock("x")
	unlock()
}
