package processor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/sentinel/internal/extractor"
	"github.com/MikeSquared-Agency/sentinel/internal/hermes"
	"github.com/MikeSquared-Agency/sentinel/internal/persona"
	"github.com/MikeSquared-Agency/sentinel/internal/reply"
	"github.com/MikeSquared-Agency/sentinel/internal/report"
	"github.com/MikeSquared-Agency/sentinel/internal/session"
)

// BusyReply is returned only when a message carries no usable text.
const BusyReply = "System busy, please try again."

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const defaultSideEffectTimeout = 15 * time.Second

// Recorder persists sessions durably. *store.Store satisfies it.
type Recorder interface {
	SaveSession(ctx context.Context, sess session.Session) error
	AppendMessages(ctx context.Context, sessionID string, start int, turns ...session.Turn) error
	MergeIntelligence(ctx context.Context, sessionID string, partial extractor.Record) (extractor.Record, error)
	MarkReported(ctx context.Context, sessionID string) error
}

// Publisher emits events. *hermes.Client satisfies it.
type Publisher interface {
	Publish(subject string, data any) error
}

// Notifier delivers reports to the collector. *report.Reporter satisfies it.
type Notifier interface {
	Enabled() bool
	Send(ctx context.Context, p report.Payload) bool
}

// Config wires the optional collaborators. Nil fields are skipped.
type Config struct {
	Recorder         Recorder
	Publisher        Publisher
	Notifier         Notifier
	Gate             report.Gate
	ExtractFromReply bool
}

type Inbound struct {
	SessionID string
	Text      string
}

type Outcome struct {
	SessionID string
	Reply     string
	PersonaID string
	IsNew     bool
	Status    string
}

type Stats struct {
	Sessions int   `json:"sessions"`
	Handled  int64 `json:"handled"`
	Reports  int64 `json:"reports"`
	Pending  int64 `json:"pending"`
}

// Processor runs one conversational turn: reply synchronously, then extract,
// persist, publish and report in the background.
type Processor struct {
	sessions session.Store
	personas *persona.Registry
	engine   *reply.Engine
	cfg      Config
	logger   *slog.Logger

	wg      sync.WaitGroup
	handled atomic.Int64
	reports atomic.Int64
	pending atomic.Int64
}

func New(sessions session.Store, personas *persona.Registry, engine *reply.Engine, cfg Config, logger *slog.Logger) *Processor {
	return &Processor{
		sessions: sessions,
		personas: personas,
		engine:   engine,
		cfg:      cfg,
		logger:   logger,
	}
}

// job is everything the background pipeline needs from one turn.
type job struct {
	sess  session.Session
	isNew bool
	start int
	turns []session.Turn
}

// Handle answers one inbound message. It never returns an error: the only
// failure surfaced to the caller is an empty message, answered with BusyReply.
func (p *Processor) Handle(ctx context.Context, in Inbound) Outcome {
	id := strings.TrimSpace(in.SessionID)
	if id == "" {
		id = uuid.NewString()
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		p.logger.Warn("message without text", "session_id", id)
		return Outcome{SessionID: id, Reply: BusyReply, Status: StatusError}
	}

	unlock := p.sessions.Lock(id)
	sess, isNew := p.sessions.GetOrCreate(ctx, id)
	if isNew {
		p.logger.Info("session created", "session_id", id, "persona", sess.PersonaID)
	}

	out := p.engine.Reply(ctx, sess, text)

	now := time.Now().UTC()
	turns := []session.Turn{
		{Role: session.RoleScammer, Text: text, Timestamp: now},
		{Role: session.RoleAgent, Text: out, Timestamp: now},
	}
	if err := p.sessions.Append(id, turns...); err != nil {
		p.logger.Warn("append turns failed", "session_id", id, "error", err)
	}
	if err := p.sessions.SetLastReply(id, out); err != nil {
		p.logger.Warn("set last reply failed", "session_id", id, "error", err)
	}
	unlock()

	p.handled.Add(1)
	p.pending.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.pending.Add(-1)
		p.afterReply(job{sess: sess, isNew: isNew, start: len(sess.Turns), turns: turns})
	}()

	return Outcome{SessionID: id, Reply: out, PersonaID: sess.PersonaID, IsNew: isNew, Status: StatusSuccess}
}

// Wait blocks until every background pipeline has finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) Stats() Stats {
	return Stats{
		Sessions: p.sessions.Len(),
		Handled:  p.handled.Load(),
		Reports:  p.reports.Load(),
		Pending:  p.pending.Load(),
	}
}

func (p *Processor) afterReply(j job) {
	id := j.sess.ID
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("side-effect pipeline panicked", "session_id", id, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), defaultSideEffectTimeout)
	defer cancel()

	partial := extractor.Extract(j.turns[0].Text)
	if p.cfg.ExtractFromReply {
		partial = extractor.Merge(partial, extractor.Extract(j.turns[1].Text))
	}

	unlock := p.sessions.Lock(id)
	before, _ := p.sessions.Get(id)
	merged, err := p.sessions.MergeIntelligence(id, partial)
	current, ok := p.sessions.Get(id)
	unlock()
	if err != nil {
		// Evicted since the reply; fall back to what the turn knew.
		p.logger.Warn("merge intelligence failed", "session_id", id, "error", err)
		before = j.sess
		merged = extractor.Merge(j.sess.Intelligence, partial)
	}
	if !ok {
		current = j.sess
		current.Turns = append(current.Turns, j.turns...)
		current.Intelligence = merged
	}
	turnCount := len(current.Turns)

	if !partial.IsEmpty() {
		p.logger.Info("intelligence extracted", "session_id", id, "new_values", partial.Count(), "total", merged.Count())
	}

	p.persist(ctx, j, partial)

	if j.isNew {
		p.publish(hermes.SubjectSessionCreated, hermes.SessionCreated{
			SessionID: id,
			PersonaID: j.sess.PersonaID,
			CreatedAt: j.sess.CreatedAt,
		})
	}
	if merged.Count() > before.Intelligence.Count() {
		p.publish(hermes.SubjectIntelUpdated, hermes.IntelUpdated{
			SessionID:    id,
			Turns:        turnCount,
			Intelligence: merged,
		})
	}

	if !p.cfg.Gate.ShouldReport(merged, turnCount) {
		return
	}
	if p.cfg.Notifier == nil || !p.cfg.Notifier.Enabled() {
		p.logger.Debug("report qualified but no collector configured", "session_id", id)
		return
	}

	pers := p.personas.Get(j.sess.PersonaID)
	note := report.Note(pers.Name, pers.ID, intents(current.Turns), merged)
	delivered := p.cfg.Notifier.Send(ctx, report.BuildPayload(id, turnCount, merged, note))
	if delivered {
		p.reports.Add(1)
		if p.cfg.Recorder != nil {
			if err := p.cfg.Recorder.MarkReported(ctx, id); err != nil {
				p.logger.Warn("mark reported failed", "session_id", id, "error", err)
			}
		}
	}
	p.publish(hermes.SubjectReportSent, hermes.ReportSent{SessionID: id, Turns: turnCount, Delivered: delivered})
}

func (p *Processor) persist(ctx context.Context, j job, partial extractor.Record) {
	r := p.cfg.Recorder
	if r == nil {
		return
	}
	id := j.sess.ID

	// SaveSession is idempotent; calling it every turn keeps a later turn from
	// racing ahead of the session row.
	if err := r.SaveSession(ctx, j.sess); err != nil {
		p.logger.Error("save session failed", "session_id", id, "error", err)
		return
	}
	if err := r.AppendMessages(ctx, id, j.start, j.turns...); err != nil {
		p.logger.Error("save messages failed", "session_id", id, "error", err)
	}
	if partial.IsEmpty() {
		return
	}
	if _, err := r.MergeIntelligence(ctx, id, partial); err != nil {
		p.logger.Error("save intelligence failed", "session_id", id, "error", err)
	}
}

func (p *Processor) publish(subject string, data any) {
	if p.cfg.Publisher == nil {
		return
	}
	if err := p.cfg.Publisher.Publish(subject, data); err != nil {
		p.logger.Warn("publish failed", "subject", subject, "error", err)
	}
}

// intents lists the distinct intents of the scammer's turns, first seen first.
func intents(turns []session.Turn) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range turns {
		if t.Role != session.RoleScammer {
			continue
		}
		in := string(reply.Classify(t.Text))
		if !seen[in] {
			seen[in] = true
			out = append(out, in)
		}
	}
	return out
}
