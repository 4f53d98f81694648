package reply

import (
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/sentinel/internal/persona"
	"github.com/MikeSquared-Agency/sentinel/internal/session"
)

const systemPrompt = `You are %s, a %s.

## Traits
%s

## Strategy
%s

## Rules
- You are chatting with someone you do not yet realise is a scammer. Stay in character.
- Reply in 1-2 short sentences, plain text only.
- Never reveal that you suspect a scam or that you are automated.
- Never give out a real account number, card number, PIN or OTP. Stall instead.
- Keep them talking: ask which bank, which number to call, where to send money, what link to open.`

func buildSystemPrompt(p persona.Persona) string {
	return fmt.Sprintf(systemPrompt, p.Name, p.Role, p.Style, p.Strategy)
}

// buildPrompt renders the recent turns as a chat log ending with the persona's
// empty line for the model to complete.
func buildPrompt(p persona.Persona, history []session.Turn, incoming string) string {
	var b strings.Builder
	b.WriteString("## Chat log\n")
	for _, t := range history {
		speaker := "Scammer"
		if t.Role == session.RoleAgent {
			speaker = p.Name
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, t.Text)
	}
	fmt.Fprintf(&b, "Scammer: %s\n%s:", incoming, p.Name)
	return b.String()
}
