package extractor

import (
	"regexp"
	"strings"
)

var (
	upiPattern   = regexp.MustCompile(`[A-Za-z0-9._-]+@[A-Za-z]+`)
	linkPattern  = regexp.MustCompile("https?://[^\\s<>\"'`]+")
	digitPattern = regexp.MustCompile(`[0-9]+`)
)

// Watchlist is the set of terms recorded as suspicious keywords. A term matches
// when it starts a word, so "urgent" also matches "urgently".
var Watchlist = []string{
	"urgent", "immediately", "blocked", "suspend", "expired",
	"otp", "kyc", "verify", "password", "cvv",
	"police", "jail", "arrest", "cbi", "customs", "penalty",
	"lottery", "prize", "refund", "reward", "aadhaar", "pan card",
	"sbi", "hdfc", "icici", "axis", "kotak", "pnb", "paytm", "phonepe", "gpay",
}

var watchlistPatterns = compileWordStart(Watchlist)

type bankBrand struct {
	term    string
	display string
}

var bankBrands = []bankBrand{
	{"state bank", "SBI"},
	{"sbi", "SBI"},
	{"hdfc", "HDFC"},
	{"icici", "ICICI"},
	{"axis", "Axis Bank"},
	{"kotak", "Kotak"},
	{"bank of baroda", "Bank of Baroda"},
	{"pnb", "PNB"},
	{"canara", "Canara Bank"},
	{"paytm", "Paytm"},
	{"phonepe", "PhonePe"},
	{"gpay", "Google Pay"},
}

var bankPatterns = func() []*regexp.Regexp {
	terms := make([]string, len(bankBrands))
	for i, b := range bankBrands {
		terms[i] = b.term
	}
	return compileWordStart(terms)
}()

func compileWordStart(terms []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(terms))
	for i, t := range terms {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(t))
	}
	return out
}

// Extract pulls indicators of compromise out of free text. It is pure and
// deterministic. Values are unique within each category of the result; a value
// may appear under more than one category.
func Extract(text string) Record {
	rec := Empty()
	if strings.TrimSpace(text) == "" {
		return rec
	}

	rec.UPIIDs = dedupe(extractUPI(text))
	rec.PhishingLinks = dedupe(extractLinks(text))
	phones, accounts := extractNumbers(text)
	rec.PhoneNumbers = dedupe(phones)
	rec.BankAccounts = dedupe(accounts)
	rec.SuspiciousKeywords = extractKeywords(text)
	return rec
}

func extractUPI(text string) []string {
	var out []string
	for _, loc := range upiPattern.FindAllStringIndex(text, -1) {
		end := loc[1]
		// name@gmail.com is an e-mail address, not a UPI handle.
		if end+1 < len(text) && text[end] == '.' && isLetter(text[end+1]) {
			continue
		}
		if end < len(text) && (isDigit(text[end]) || text[end] == '_') {
			continue
		}
		out = append(out, text[loc[0]:end])
	}
	return out
}

func extractLinks(text string) []string {
	var out []string
	for _, m := range linkPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;:!?)]}")
		if len(m) > len("https://") {
			out = append(out, m)
		}
	}
	return out
}

// extractNumbers classifies every maximal digit run. Indian mobile numbers are
// 10 digits starting 6-9, optionally prefixed by 0 or +91. Any other run of
// 9-18 digits is treated as a bank account candidate.
func extractNumbers(text string) (phones, accounts []string) {
	for _, loc := range digitPattern.FindAllStringIndex(text, -1) {
		run := text[loc[0]:loc[1]]
		if phone, ok := classifyPhone(text, loc[0], run); ok {
			phones = append(phones, phone)
			continue
		}
		if len(run) >= 9 && len(run) <= 18 {
			accounts = append(accounts, run)
		}
	}
	return phones, accounts
}

func classifyPhone(text string, start int, run string) (string, bool) {
	switch len(run) {
	case 10:
		if isMobileLead(run[0]) {
			return run, true
		}
	case 11:
		if run[0] == '0' && isMobileLead(run[1]) {
			return run, true
		}
	case 12:
		if start > 0 && text[start-1] == '+' && strings.HasPrefix(run, "91") && isMobileLead(run[2]) {
			return "+" + run, true
		}
	}
	return "", false
}

func extractKeywords(text string) []string {
	var out []string
	for i, re := range watchlistPatterns {
		if re.MatchString(text) {
			out = append(out, strings.ToUpper(Watchlist[i]))
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}

// DetectBank returns the display name of the first bank or wallet brand named
// in text, or "" when none is mentioned.
func DetectBank(text string) string {
	best, bestIdx := "", -1
	for i, re := range bankPatterns {
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if bestIdx == -1 || loc[0] < bestIdx {
			best, bestIdx = bankBrands[i].display, loc[0]
		}
	}
	return best
}

// FirstPhone returns the first phone number found in text, or "".
func FirstPhone(text string) string {
	phones, _ := extractNumbers(text)
	if len(phones) == 0 {
		return ""
	}
	return phones[0]
}

func dedupe(values []string) []string {
	return union(nil, values)
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isMobileLead(c byte) bool { return c >= '6' && c <= '9' }

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
