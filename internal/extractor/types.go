package extractor

// Record holds the intelligence gathered from a conversation. Each category is
// treated as a set: values are unique and never removed once merged.
type Record struct {
	BankAccounts       []string `json:"bankAccounts"`
	UPIIDs             []string `json:"upiIds"`
	PhishingLinks      []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// Category names as they appear on the wire and in storage.
const (
	CategoryBankAccounts       = "bankAccounts"
	CategoryUPIIDs             = "upiIds"
	CategoryPhishingLinks      = "phishingLinks"
	CategoryPhoneNumbers       = "phoneNumbers"
	CategorySuspiciousKeywords = "suspiciousKeywords"
)

// Categories lists every category in a stable order.
var Categories = []string{
	CategoryBankAccounts,
	CategoryUPIIDs,
	CategoryPhishingLinks,
	CategoryPhoneNumbers,
	CategorySuspiciousKeywords,
}

// Empty returns a record with every category initialised to an empty, non-nil
// slice so it encodes as [] rather than null.
func Empty() Record {
	return Record{
		BankAccounts:       []string{},
		UPIIDs:             []string{},
		PhishingLinks:      []string{},
		PhoneNumbers:       []string{},
		SuspiciousKeywords: []string{},
	}
}

// IsEmpty reports whether no category holds a value.
func (r Record) IsEmpty() bool {
	return len(r.BankAccounts) == 0 &&
		len(r.UPIIDs) == 0 &&
		len(r.PhishingLinks) == 0 &&
		len(r.PhoneNumbers) == 0 &&
		len(r.SuspiciousKeywords) == 0
}

// Count returns the total number of values across all categories.
func (r Record) Count() int {
	return len(r.BankAccounts) + len(r.UPIIDs) + len(r.PhishingLinks) +
		len(r.PhoneNumbers) + len(r.SuspiciousKeywords)
}

// Values returns the slice for a category name, or nil for an unknown name.
func (r Record) Values(category string) []string {
	switch category {
	case CategoryBankAccounts:
		return r.BankAccounts
	case CategoryUPIIDs:
		return r.UPIIDs
	case CategoryPhishingLinks:
		return r.PhishingLinks
	case CategoryPhoneNumbers:
		return r.PhoneNumbers
	case CategorySuspiciousKeywords:
		return r.SuspiciousKeywords
	default:
		return nil
	}
}

// Clone returns a deep copy with non-nil slices.
func (r Record) Clone() Record {
	return Merge(Empty(), r)
}

// Merge unions b into a, category by category, keeping first-seen order.
// Neither argument is modified. Merging the same values twice is a no-op.
func Merge(a, b Record) Record {
	return Record{
		BankAccounts:       union(a.BankAccounts, b.BankAccounts),
		UPIIDs:             union(a.UPIIDs, b.UPIIDs),
		PhishingLinks:      union(a.PhishingLinks, b.PhishingLinks),
		PhoneNumbers:       union(a.PhoneNumbers, b.PhoneNumbers),
		SuspiciousKeywords: union(a.SuspiciousKeywords, b.SuspiciousKeywords),
	}
}

func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
