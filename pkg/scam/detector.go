// Package scam fuses fast lexical scoring with model-based analysis into a
// per-message scam verdict. The lexical layer is the first line of defense,
// cheap and always available; the model layer understands context but can
// fail, so the detector degrades to lexical-only rather than erroring.
package scam

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/me-shivamo/ScamRakshak/pkg/llm"
	"github.com/me-shivamo/ScamRakshak/pkg/patterns"
	"github.com/me-shivamo/ScamRakshak/pkg/session"
)

// Score fusion and decision constants.
const (
	lexicalWeight = 0.3
	modelWeight   = 0.7

	// HysteresisDecay floors the combined score against prior suspicion: a
	// session that looked scammy stays suspicious even if one message is
	// clean. Exported so callers committing a verdict against live session
	// state can re-apply the same floor.
	HysteresisDecay = 0.85

	// ScamThreshold is the combined confidence above which a message is
	// flagged as a scam.
	ScamThreshold = 0.4

	// QuickCheckThreshold is the lexical-only score above which a message
	// deserves the expensive analysis path.
	QuickCheckThreshold = 0.3

	contextTurns  = 5
	contextMaxLen = 100
)

// Analyzer is the model-based analysis dependency.
type Analyzer interface {
	AnalyzeScam(ctx context.Context, msg, convContext string) (*llm.Analysis, error)
}

// Categorizer refines an "unknown" scam category, typically by embedding
// similarity against seed examples.
type Categorizer interface {
	Categorize(ctx context.Context, text string) (string, error)
}

// Verdict is the fused per-message result.
type Verdict struct {
	IsScam     bool
	Confidence float64
	ScamType   string
	Indicators []string
}

// Detector combines a lexical scorer with a model analyzer.
type Detector struct {
	lexicon     *patterns.Lexicon
	analyzer    Analyzer
	categorizer Categorizer // optional
}

// NewDetector creates a detector. categorizer may be nil, in which case
// unknown categories are left as-is.
func NewDetector(lexicon *patterns.Lexicon, analyzer Analyzer, categorizer Categorizer) *Detector {
	return &Detector{
		lexicon:     lexicon,
		analyzer:    analyzer,
		categorizer: categorizer,
	}
}

// QuickCheck returns whether the lexical score alone already marks the
// message as suspicious, along with the score itself. Used as a cheap
// pre-filter where a full verdict is not needed.
func (d *Detector) QuickCheck(text string) (bool, float64) {
	score, _ := d.lexicon.Score(text)
	return score > QuickCheckThreshold, score
}

// Detect produces the verdict for one message.
//
// The lexical score carries 30% weight, the model confidence 70%. When
// earlier turns already established suspicion, the combined score is floored
// at existingConfidence * 0.85 so the verdict does not flap on a single
// innocuous message. The model's failure is not the caller's problem: on
// analysis errors the verdict falls back to lexical-only scoring with
// category "unknown".
func (d *Detector) Detect(ctx context.Context, msg string, history []session.Turn, existingConfidence float64) Verdict {
	lexScore, lexIndicators := d.lexicon.Score(msg)

	modelConfidence := 0.0
	scamType := "unknown"
	var modelIndicators []string

	analysis, err := d.analyzer.AnalyzeScam(ctx, msg, buildContext(history))
	if err != nil {
		log.Printf("[WARN] scam analysis unavailable, using lexical score only: %v", err)
		// Leave a trace in the verdict itself so agent notes and reports
		// show the turn was scored without model analysis.
		modelIndicators = []string{fmt.Sprintf("Model analysis unavailable: %v", err)}
	} else {
		modelConfidence = analysis.Confidence
		if analysis.ScamType != "" {
			scamType = analysis.ScamType
		}
		modelIndicators = analysis.Indicators
	}

	combined := lexScore*lexicalWeight + modelConfidence*modelWeight
	if existingConfidence > 0 {
		if floor := existingConfidence * HysteresisDecay; combined < floor {
			combined = floor
		}
	}

	if scamType == "unknown" && d.categorizer != nil {
		if cat, cerr := d.categorizer.Categorize(ctx, msg); cerr == nil && cat != "" {
			scamType = cat
		}
	}

	return Verdict{
		IsScam:     combined > ScamThreshold,
		Confidence: combined,
		ScamType:   scamType,
		Indicators: dedupe(append(lexIndicators, modelIndicators...)),
	}
}

// buildContext renders the last few turns as a compact single-line summary
// for the analysis prompt. Long messages are truncated; the model only
// needs the gist of where the conversation stands.
func buildContext(history []session.Turn) string {
	if len(history) == 0 {
		return ""
	}
	start := 0
	if len(history) > contextTurns {
		start = len(history) - contextTurns
	}
	parts := make([]string, 0, contextTurns)
	for _, turn := range history[start:] {
		text := turn.Text
		// Truncate on rune boundaries; byte slicing would split multibyte
		// scripts like Devanagari mid-character.
		if runes := []rune(text); len(runes) > contextMaxLen {
			text = string(runes[:contextMaxLen])
		}
		parts = append(parts, turn.Sender+": "+text)
	}
	return strings.Join(parts, " | ")
}

func dedupe(indicators []string) []string {
	if len(indicators) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(indicators))
	var out []string
	for _, ind := range indicators {
		key := strings.ToLower(strings.TrimSpace(ind))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ind)
	}
	sort.Strings(out)
	return out
}
