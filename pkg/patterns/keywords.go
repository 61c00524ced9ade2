package patterns

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// SuspiciousVocabulary is the fixed term list reported back as extracted
// keywords. Matching is case-insensitive substring membership.
var SuspiciousVocabulary = []string{
	"lottery", "prize", "winner", "won", "jackpot",
	"lucky draw", "congratulations",

	"transfer", "payment", "pay", "deposit", "withdraw",
	"bank", "account", "upi", "paytm", "phonepe", "gpay",

	"verify", "verification", "kyc", "update", "confirm",
	"blocked", "suspended", "locked", "deactivated",

	"otp", "pin", "password", "cvv", "card number",

	"urgent", "immediately", "asap", "hurry", "fast",

	"gift card", "bitcoin", "crypto", "investment",

	"customer care", "support", "helpline", "toll free",

	"refund", "cashback", "reward", "claim", "bonus",
}

// defaultKeywordWeights maps scoring keywords to their static weight.
// Common words carry deliberately low weight so ordinary conversation does
// not accumulate a scam score.
var defaultKeywordWeights = map[string]float64{
	"lottery": 0.35, "winner": 0.30, "won": 0.25, "prize": 0.30,
	"jackpot": 0.35, "lucky draw": 0.35, "congratulations": 0.15,

	"lakh": 0.20, "lakhs": 0.20, "crore": 0.25, "crores": 0.25,

	"otp": 0.40, "pin": 0.35, "cvv": 0.40, "password": 0.35,
	"bank details": 0.35, "account number": 0.30, "ifsc": 0.25,

	"urgent": 0.20, "immediately": 0.20, "expire": 0.15, "expiring": 0.15,
	"last chance": 0.25, "limited time": 0.20, "act now": 0.25, "hurry": 0.15,

	"blocked": 0.25, "suspended": 0.25, "deactivate": 0.25,
	"legal action": 0.30, "police": 0.20, "arrest": 0.30,

	"processing fee": 0.35, "advance payment": 0.40, "transfer": 0.15,
	"pay": 0.10, "deposit": 0.15, "gift card": 0.30,

	"bitcoin": 0.20, "crypto": 0.15, "cryptocurrency": 0.20,
	"investment": 0.15, "guaranteed returns": 0.40, "double your money": 0.45,

	"customer care": 0.20, "customer support": 0.20, "bank manager": 0.25,
	"rbi": 0.25, "income tax": 0.20, "it department": 0.20,

	"kyc": 0.30, "verify": 0.15, "verification": 0.15, "update": 0.10,

	"refund": 0.20, "cashback": 0.20, "reward": 0.15, "claim": 0.20,

	"click here": 0.25, "click link": 0.25, "click below": 0.25,
}

var urgencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`within\s+\d+\s*(hour|minute|day|hr|min)`),
	regexp.MustCompile(`expire[sd]?\s+(today|tomorrow|soon)`),
	regexp.MustCompile(`last\s+chance`),
	regexp.MustCompile(`final\s+(notice|warning)`),
	regexp.MustCompile(`immediate(ly)?`),
	regexp.MustCompile(`urgent(ly)?`),
	regexp.MustCompile(`asap`),
	regexp.MustCompile(`right\s+now`),
	regexp.MustCompile(`don'?t\s+(miss|delay|wait)`),
	regexp.MustCompile(`time\s+(is\s+)?running\s+out`),
	regexp.MustCompile(`act\s+(fast|now|quickly)`),
	regexp.MustCompile(`before\s+it'?s?\s+too\s+late`),
}

type financialPattern struct {
	re        *regexp.Regexp
	indicator string
}

var financialPatterns = []financialPattern{
	{regexp.MustCompile(`send\s+(money|payment|amount)`), "Money request detected"},
	{regexp.MustCompile(`(bank|account)\s*(details|number|info)`), "Bank info request"},
	{regexp.MustCompile(`(share|send|give)\s*(otp|pin|password)`), "Credential request"},
	{regexp.MustCompile(`(transfer|deposit)\s*\d+`), "Transfer request detected"},
}

// Lexicon scores a message against the keyword weight table plus urgency and
// financial-request regexes. The weight table can be overridden per
// deployment from a YAML file; the regexes are fixed.
type Lexicon struct {
	weights map[string]float64
	ordered []string
}

// NewLexicon returns a Lexicon with the built-in weight table.
func NewLexicon() *Lexicon {
	return newLexicon(defaultKeywordWeights)
}

// NewLexiconFromFile loads a YAML weight override and merges it over the
// built-in table. The file maps keyword to weight under a top-level
// "keywords" key; a weight of 0 removes the keyword. Weights outside (0, 1]
// are rejected.
func NewLexiconFromFile(path string) (*Lexicon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword weights: %w", err)
	}

	var doc struct {
		Keywords map[string]float64 `yaml:"keywords"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse keyword weights %s: %w", path, err)
	}

	merged := make(map[string]float64, len(defaultKeywordWeights)+len(doc.Keywords))
	for k, w := range defaultKeywordWeights {
		merged[k] = w
	}
	for k, w := range doc.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if w == 0 {
			delete(merged, k)
			continue
		}
		if w < 0 || w > 1 {
			return nil, fmt.Errorf("keyword %q: weight %v out of range (0, 1]", k, w)
		}
		merged[k] = w
	}
	return newLexicon(merged), nil
}

func newLexicon(weights map[string]float64) *Lexicon {
	ordered := make([]string, 0, len(weights))
	for k := range weights {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)
	return &Lexicon{weights: weights, ordered: ordered}
}

// Score computes the lexical scam score for a message.
//
// Each matched keyword contributes its weight (summed, capped at 1.0), any
// urgency pattern adds a flat 0.15 once, and each distinct financial-request
// pattern adds 0.2. The final score is clamped to [0, 1]. The returned
// indicators list the matched keywords plus one label per triggered rule,
// in deterministic order.
func (l *Lexicon) Score(text string) (float64, []string) {
	lower := strings.ToLower(Normalize(text))

	var indicators []string
	keywordScore := 0.0
	for _, kw := range l.ordered {
		if strings.Contains(lower, kw) {
			keywordScore += l.weights[kw]
			indicators = append(indicators, "Keyword: "+kw)
		}
	}
	if keywordScore > 1.0 {
		keywordScore = 1.0
	}
	score := keywordScore

	for _, re := range urgencyPatterns {
		if re.MatchString(lower) {
			score += 0.15
			indicators = append(indicators, "Urgency language detected")
			break
		}
	}

	for _, fp := range financialPatterns {
		if fp.re.MatchString(lower) {
			score += 0.2
			indicators = append(indicators, fp.indicator)
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, indicators
}

// Weight reports the configured weight for a keyword, zero if absent.
func (l *Lexicon) Weight(keyword string) float64 {
	return l.weights[strings.ToLower(keyword)]
}
