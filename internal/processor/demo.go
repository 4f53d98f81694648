package processor

import "context"

// DemoSessionID is the fixed session used to seed a sample conversation.
const DemoSessionID = "demo-hacker-001"

var demoScript = []string{
	"URGENT: Your SBI account will be blocked today. Update KYC at http://sbi-kyc-update.example/login immediately.",
	"Sir this is Rahul from SBI head office. Transfer Rs 10 verification fee to kyc.verify@ybl or your account is suspended.",
	"Share the OTP sent to your phone. Call me back on 9876543210 if any problem.",
	"Last warning. Deposit 4999 to account 123456789012 or police complaint will be filed.",
}

// SeedDemo plays a scripted scam conversation through the normal pipeline so
// the read-only views have something to show.
func (p *Processor) SeedDemo(ctx context.Context) []Outcome {
	out := make([]Outcome, 0, len(demoScript))
	for _, line := range demoScript {
		out = append(out, p.Handle(ctx, Inbound{SessionID: DemoSessionID, Text: line}))
	}
	return out
}
