package reply

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/sentinel/internal/extractor"
	"github.com/MikeSquared-Agency/sentinel/internal/persona"
	"github.com/MikeSquared-Agency/sentinel/internal/session"
)

const (
	DefaultTimeout       = 1500 * time.Millisecond
	DefaultHistoryWindow = 6
)

// Generator produces free-form text from a system prompt and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type Config struct {
	Timeout       time.Duration
	HistoryWindow int
}

// Engine produces in-character replies. Without a Generator it answers from
// the persona's canned templates only.
type Engine struct {
	personas *persona.Registry
	gen      Generator
	timeout  time.Duration
	window   int
	logger   *slog.Logger
	intn     func(n int) int
}

func New(personas *persona.Registry, gen Generator, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	return &Engine{
		personas: personas,
		gen:      gen,
		timeout:  cfg.Timeout,
		window:   cfg.HistoryWindow,
		logger:   logger,
		intn:     rand.IntN,
	}
}

// Reply answers text on behalf of the session's persona. It never fails: a
// first contact gets the opener, otherwise a generated line is tried before
// falling back to the canned templates.
func (e *Engine) Reply(ctx context.Context, sess session.Session, text string) (out string) {
	p := e.personas.Get(sess.PersonaID)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("reply panicked", "session_id", sess.ID, "panic", r)
			out = p.Fallback()
		}
	}()

	if sess.IsFirstContact() {
		return p.Opener
	}

	if e.gen != nil {
		if line := e.Generate(ctx, sess, text); line != "" && line != sess.LastReply {
			return line
		}
	}
	return e.Canned(sess.PersonaID, text, sess.LastReply)
}

// Opener returns the persona's fixed first line.
func (e *Engine) Opener(personaID string) string {
	return e.personas.Get(personaID).Opener
}

// Generate asks the generator for a reply under the configured timeout. It
// returns "" when no generator is configured or the call fails for any reason.
func (e *Engine) Generate(ctx context.Context, sess session.Session, text string) (out string) {
	if e.gen == nil {
		return ""
	}
	p := e.personas.Get(sess.PersonaID)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	// Buffered so the goroutine can finish after we stop waiting.
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("generator panicked: %v", r)}
			}
		}()
		s, err := e.gen.Generate(ctx, buildSystemPrompt(p), buildPrompt(p, sess.Window(e.window), text))
		ch <- result{text: s, err: err}
	}()

	start := time.Now()
	select {
	case <-ctx.Done():
		e.logger.Warn("generation timed out, using canned reply",
			"session_id", sess.ID, "elapsed", time.Since(start), "error", ctx.Err())
		return ""
	case r := <-ch:
		if r.err != nil {
			e.logger.Warn("generation failed, using canned reply", "session_id", sess.ID, "error", r.err)
			return ""
		}
		return cleanGenerated(r.text, p.Name)
	}
}

// cleanGenerated strips whitespace, wrapping quotes and a leading speaker
// label the model sometimes echoes back.
func cleanGenerated(s, name string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, name+":")
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// Canned picks a template for the message's intent from the persona's bank,
// avoiding lastReply whenever the bank offers an alternative.
func (e *Engine) Canned(personaID, text, lastReply string) string {
	p := e.personas.Get(personaID)
	bank := p.Bank(Classify(text))
	if len(bank) == 0 {
		return p.Fallback()
	}

	filled := make([]string, 0, len(bank))
	for _, tmpl := range bank {
		filled = append(filled, e.fill(tmpl, p, text))
	}

	candidates := make([]string, 0, len(filled))
	for _, f := range filled {
		if f != lastReply {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return filled[0]
	}
	return candidates[e.intn(len(candidates))]
}

func (e *Engine) fill(tmpl string, p persona.Persona, text string) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	bank := extractor.DetectBank(text)
	if bank == "" {
		bank = "the bank"
	}
	phone := extractor.FirstPhone(text)
	if phone == "" {
		phone = "that number"
	}
	r := strings.NewReplacer(
		"{bank}", bank,
		"{phone}", phone,
		"{otp}", fmt.Sprintf("%06d", e.intn(1000000)),
		"{name}", p.Name,
	)
	return r.Replace(tmpl)
}
