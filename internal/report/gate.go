package report

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/sentinel/internal/extractor"
)

const DefaultTurnThreshold = 4

// Gate decides whether a session has gathered enough to be worth reporting.
type Gate struct {
	// TurnThreshold is exclusive: a session qualifies once it has more turns.
	TurnThreshold int
}

// ShouldReport is true once a phishing link or UPI id has been captured, or
// the conversation has run past the turn threshold.
func (g Gate) ShouldReport(rec extractor.Record, turns int) bool {
	if len(rec.PhishingLinks) > 0 || len(rec.UPIIDs) > 0 {
		return true
	}
	threshold := g.TurnThreshold
	if threshold <= 0 {
		threshold = DefaultTurnThreshold
	}
	return turns > threshold
}

// Payload is the body sent to the intelligence collector.
type Payload struct {
	SessionID              string           `json:"sessionId"`
	ScamDetected           bool             `json:"scamDetected"`
	TotalMessagesExchanged int              `json:"totalMessagesExchanged"`
	ExtractedIntelligence  extractor.Record `json:"extractedIntelligence"`
	AgentNotes             string           `json:"agentNotes"`
}

// BuildPayload assembles a report. Empty categories encode as [].
func BuildPayload(sessionID string, turns int, rec extractor.Record, note string) Payload {
	return Payload{
		SessionID:              sessionID,
		ScamDetected:           true,
		TotalMessagesExchanged: turns,
		ExtractedIntelligence:  rec.Clone(),
		AgentNotes:             note,
	}
}

// Note summarises the engagement for the agentNotes field.
func Note(personaName, personaID string, intents []string, rec extractor.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Persona: %s (%s)", personaName, personaID)
	if len(intents) > 0 {
		fmt.Fprintf(&sb, "; intents: %s", strings.Join(intents, ", "))
	}

	var captured []string
	for _, c := range extractor.Categories {
		if n := len(rec.Values(c)); n > 0 {
			captured = append(captured, fmt.Sprintf("%d %s", n, c))
		}
	}
	if len(captured) > 0 {
		fmt.Fprintf(&sb, "; captured: %s", strings.Join(captured, ", "))
	}
	return sb.String()
}
