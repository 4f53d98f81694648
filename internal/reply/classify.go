package reply

import (
	"strings"

	"github.com/MikeSquared-Agency/sentinel/internal/persona"
)

type rule struct {
	intent   persona.Intent
	keywords []string
}

// Checked in order; the first rule with any keyword present wins.
var rules = []rule{
	{persona.IntentThreat, []string{"police", "jail", "arrest", "block", "lock", "suspend", "urgent"}},
	{persona.IntentPayment, []string{"money", "transfer", "pay", "rupees", "cash", "bank", "account"}},
	{persona.IntentCredential, []string{"otp", "code", "pin", "cvv", "verify", "password"}},
}

// Classify maps a message to an intent by plain substring match on the
// lower-cased text. Threat outranks payment, which outranks credential.
func Classify(text string) persona.Intent {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.intent
			}
		}
	}
	return persona.IntentFallback
}
