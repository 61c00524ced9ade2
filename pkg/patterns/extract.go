// Package patterns implements fast lexical extraction and scoring over
// scammer messages. All regexes are compiled once at package init and shared
// across requests. Extraction is pure: any string in, well-formed category
// sets out, never an error.
package patterns

import (
	"regexp"
	"strings"

	"github.com/me-shivamo/ScamRakshak/pkg/intel"
)

var (
	// Candidate payment IDs: local-part@handle where the handle may extend
	// into an email domain. Email-vs-UPI disambiguation happens after the
	// match, on the handle shape.
	reUPICandidate = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z][a-zA-Z0-9.\-]*`)

	// Domestic mobile numbers: optional country-code prefix, first digit 6-9.
	// Word boundaries keep the bare form from matching inside longer digit
	// runs (those are bank account candidates, not phones).
	rePhone = regexp.MustCompile(`\+?\b91[-\s]?[6-9]\d{9}\b|\b[6-9]\d{9}\b`)

	// Standalone digit runs in the Indian bank account range.
	reBankAccount = regexp.MustCompile(`\b\d{9,18}\b`)

	reURL       = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")
	reNonDigits = regexp.MustCompile(`\D`)

	// Payment handles short enough to be ambiguous are accepted only when
	// allow-listed or plausibly short (<=10 chars, heuristic).
	knownUPIHandles = map[string]struct{}{
		"ybl": {}, "paytm": {}, "upi": {}, "apl": {}, "ibl": {}, "axl": {},
		"okaxis": {}, "oksbi": {}, "okhdfcbank": {}, "okicici": {},
		"icici": {}, "sbi": {}, "hdfcbank": {}, "axisbank": {}, "kotak": {},
		"gpay": {}, "phonepe": {}, "freecharge": {}, "airtel": {}, "jio": {},
	}
)

// Extract runs all lexical extractors over text and returns the candidate
// intelligence record. The input is NFKC-normalized first so full-width
// digits and compatibility forms still extract. Safe on any input including
// the empty string.
func Extract(text string) intel.Record {
	text = Normalize(text)

	phones := extractPhones(text)

	return intel.Record{
		UPIIDs:             extractUPIIDs(text),
		PhoneNumbers:       phones,
		BankAccounts:       extractBankAccounts(text, phones),
		PhishingLinks:      extractURLs(text),
		SuspiciousKeywords: extractKeywords(text),
	}
}

// extractUPIIDs finds payment identifiers of the form local@handle.
// Matches whose handle looks like an email domain (dot followed by a TLD)
// are rejected - "user@gmail.com" is an email, "user@ybl" is a payment ID.
func extractUPIIDs(text string) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, m := range reUPICandidate.FindAllString(text, -1) {
		at := strings.LastIndex(m, "@")
		handle := strings.TrimRight(m[at+1:], ".-")
		if handle == "" {
			continue
		}
		if looksLikeEmailDomain(handle) {
			continue
		}
		// UPI handles are purely alphabetic
		if !isAlpha(handle) || len(handle) < 2 {
			continue
		}
		if _, ok := knownUPIHandles[strings.ToLower(handle)]; !ok && len(handle) > 10 {
			continue
		}
		id := strings.ToLower(m[:at+1] + handle)
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// looksLikeEmailDomain reports whether a handle contains a dot followed by a
// TLD of at least two letters (e.g. "gmail.com", "bank.co.in").
func looksLikeEmailDomain(handle string) bool {
	dot := strings.LastIndex(handle, ".")
	if dot < 0 {
		return false
	}
	tld := handle[dot+1:]
	return len(tld) >= 2 && isAlpha(tld)
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) > 0
}

// extractPhones finds domestic mobile numbers and normalizes each to its
// canonical 10-digit form. Anything that does not reduce to 10 digits
// starting 6-9 is discarded.
func extractPhones(text string) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, m := range rePhone.FindAllString(text, -1) {
		digits := reNonDigits.ReplaceAllString(m, "")
		if len(digits) == 12 && strings.HasPrefix(digits, "91") {
			digits = digits[2:]
		}
		if len(digits) != 10 || digits[0] < '6' || digits[0] > '9' {
			continue
		}
		if _, dup := seen[digits]; !dup {
			seen[digits] = struct{}{}
			out = append(out, digits)
		}
	}
	return out
}

// extractBankAccounts finds standalone 9-18 digit runs, excluding values
// already identified as phone numbers (in bare or country-prefixed form) and
// 13-digit runs, which collide with millisecond timestamps far more often
// than with real account numbers.
func extractBankAccounts(text string, phones []string) []string {
	phoneSet := make(map[string]struct{}, len(phones))
	for _, p := range phones {
		phoneSet[p] = struct{}{}
	}

	var out []string
	seen := make(map[string]struct{})

	for _, run := range reBankAccount.FindAllString(text, -1) {
		if len(run) == 13 {
			continue
		}
		if isPhoneForm(run, phoneSet) {
			continue
		}
		if _, dup := seen[run]; !dup {
			seen[run] = struct{}{}
			out = append(out, run)
		}
	}
	return out
}

// isPhoneForm reports whether a digit run is one of the found phone numbers,
// with or without a 91/0 prefix.
func isPhoneForm(run string, phones map[string]struct{}) bool {
	candidates := []string{run}
	if len(run) == 12 && strings.HasPrefix(run, "91") {
		candidates = append(candidates, run[2:])
	}
	if len(run) == 11 && strings.HasPrefix(run, "0") {
		candidates = append(candidates, run[1:])
	}
	for _, c := range candidates {
		if _, ok := phones[c]; ok {
			return true
		}
	}
	return false
}

func extractURLs(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range reURL.FindAllString(text, -1) {
		u := strings.ToLower(m)
		if _, dup := seen[u]; !dup {
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

// extractKeywords does a case-insensitive substring membership test against
// the fixed suspicious vocabulary, returning the literal vocabulary terms.
func extractKeywords(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, kw := range SuspiciousVocabulary {
		if strings.Contains(lower, kw) {
			out = append(out, kw)
		}
	}
	return out
}
