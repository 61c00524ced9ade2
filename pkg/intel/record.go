// Package intel defines the accumulated intelligence record for a honeypot
// session and the merge semantics that combine pattern-derived and AI-derived
// candidates across turns without duplication.
package intel

import (
	"sort"
	"strings"
)

// Record holds the five intelligence categories gathered from a conversation.
// Each category behaves as a case-insensitive set: stored values are
// lowercased and never contain duplicates. Original casing is not preserved;
// these are machine-actionable values, not display values.
type Record struct {
	BankAccounts       []string `json:"bankAccounts"`
	UPIIDs             []string `json:"upiIds"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	PhishingLinks      []string `json:"phishingLinks"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// HighValueCount returns how many of the four high-value categories
// (UPI ID, phone number, bank account, phishing link) are non-empty.
// Suspicious keywords are deliberately excluded - they are abundant and cheap.
func (r Record) HighValueCount() int {
	n := 0
	if len(r.UPIIDs) > 0 {
		n++
	}
	if len(r.PhoneNumbers) > 0 {
		n++
	}
	if len(r.BankAccounts) > 0 {
		n++
	}
	if len(r.PhishingLinks) > 0 {
		n++
	}
	return n
}

// MissingHighValue returns the names of high-value categories that are still
// empty, in a fixed order. The persona responder uses this to pick its next
// elicitation goal.
func (r Record) MissingHighValue() []string {
	var missing []string
	if len(r.PhoneNumbers) == 0 {
		missing = append(missing, "phone number")
	}
	if len(r.UPIIDs) == 0 {
		missing = append(missing, "UPI ID")
	}
	if len(r.BankAccounts) == 0 {
		missing = append(missing, "bank account")
	}
	if len(r.PhishingLinks) == 0 {
		missing = append(missing, "website link")
	}
	return missing
}

// Clone returns a copy whose slices do not alias the receiver's.
func (r Record) Clone() Record {
	r.BankAccounts = append([]string(nil), r.BankAccounts...)
	r.UPIIDs = append([]string(nil), r.UPIIDs...)
	r.PhoneNumbers = append([]string(nil), r.PhoneNumbers...)
	r.PhishingLinks = append([]string(nil), r.PhishingLinks...)
	r.SuspiciousKeywords = append([]string(nil), r.SuspiciousKeywords...)
	return r
}

// Merge combines two candidate records with previously accumulated
// intelligence, category by category. Every element is lowercased for
// comparison and storage; the result is a deduplicated union. Values never
// cross categories - disambiguation already happened at extraction time.
//
// Either candidate may be the zero Record (e.g. when the AI extraction call
// failed); the merge proceeds with whatever is present.
func Merge(fromPatterns, fromAI, existing Record) Record {
	return Record{
		BankAccounts:       mergeSets(existing.BankAccounts, fromPatterns.BankAccounts, fromAI.BankAccounts),
		UPIIDs:             mergeSets(existing.UPIIDs, fromPatterns.UPIIDs, fromAI.UPIIDs),
		PhoneNumbers:       mergeSets(existing.PhoneNumbers, fromPatterns.PhoneNumbers, fromAI.PhoneNumbers),
		PhishingLinks:      mergeSets(existing.PhishingLinks, fromPatterns.PhishingLinks, fromAI.PhishingLinks),
		SuspiciousKeywords: mergeSets(existing.SuspiciousKeywords, fromPatterns.SuspiciousKeywords, fromAI.SuspiciousKeywords),
	}
}

// mergeSets unions the given slices after lowercasing, returning a sorted
// slice. Sorting keeps merge output deterministic, which both the tests and
// the report payload rely on.
func mergeSets(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, v := range list {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "" {
				continue
			}
			seen[v] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
