package scam

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/me-shivamo/ScamRakshak/pkg/llm"
	"github.com/me-shivamo/ScamRakshak/pkg/patterns"
	"github.com/me-shivamo/ScamRakshak/pkg/session"
)

type fakeAnalyzer struct {
	analysis   *llm.Analysis
	err        error
	gotMsg     string
	gotContext string
	calls      int
}

func (f *fakeAnalyzer) AnalyzeScam(_ context.Context, msg, convContext string) (*llm.Analysis, error) {
	f.calls++
	f.gotMsg = msg
	f.gotContext = convContext
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

type fakeCategorizer struct {
	category string
	calls    int
}

func (f *fakeCategorizer) Categorize(context.Context, string) (string, error) {
	f.calls++
	return f.category, nil
}

func TestDetectFusesScores(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &llm.Analysis{
		IsScam:     true,
		Confidence: 0.9,
		ScamType:   "lottery",
		Indicators: []string{"prize claim"},
	}}
	d := NewDetector(patterns.NewLexicon(), analyzer, nil)

	// Message with zero lexical score: combined = 0.9 * 0.7 = 0.63.
	v := d.Detect(context.Background(), "hello my friend, good morning", nil, 0)
	if math.Abs(v.Confidence-0.63) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.63", v.Confidence)
	}
	if !v.IsScam || v.ScamType != "lottery" {
		t.Errorf("verdict = %+v", v)
	}
}

func TestDetectLexicalContribution(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &llm.Analysis{Confidence: 0.5, ScamType: "phishing"}}
	d := NewDetector(patterns.NewLexicon(), analyzer, nil)

	// "otp" alone scores 0.40 lexically: 0.4*0.3 + 0.5*0.7 = 0.47.
	v := d.Detect(context.Background(), "otp", nil, 0)
	if math.Abs(v.Confidence-0.47) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.47", v.Confidence)
	}
	if !v.IsScam {
		t.Error("0.47 should exceed the scam threshold")
	}
}

func TestDetectHysteresis(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &llm.Analysis{Confidence: 0, ScamType: "none"}}
	d := NewDetector(patterns.NewLexicon(), analyzer, nil)

	// Clean message, but the session was already at 0.9: floor is 0.765.
	v := d.Detect(context.Background(), "ok thank you", nil, 0.9)
	if math.Abs(v.Confidence-0.765) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.765", v.Confidence)
	}
	if !v.IsScam {
		t.Error("suspicion must not flap on one clean message")
	}
}

func TestDetectAnalyzerFailureFallsBackToLexical(t *testing.T) {
	analyzer := &fakeAnalyzer{err: fmt.Errorf("backend down")}
	d := NewDetector(patterns.NewLexicon(), analyzer, nil)

	// Lexical: otp 0.40 + immediately 0.20 + urgency 0.15 + credential 0.20 = 0.95.
	// Combined: 0.95 * 0.3 = 0.285, below threshold without the model.
	v := d.Detect(context.Background(), "share otp immediately", nil, 0)
	if math.Abs(v.Confidence-0.285) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.285", v.Confidence)
	}
	if v.IsScam {
		t.Error("lexical-only fallback should stay below threshold here")
	}
	if v.ScamType != "unknown" {
		t.Errorf("ScamType = %q, want unknown", v.ScamType)
	}
	if len(v.Indicators) == 0 {
		t.Error("lexical indicators lost in fallback")
	}
	found := false
	for _, ind := range v.Indicators {
		if strings.Contains(ind, "unavailable") && strings.Contains(ind, "backend down") {
			found = true
		}
	}
	if !found {
		t.Errorf("analysis failure not recorded in indicators: %v", v.Indicators)
	}
}

func TestDetectBuildsContextFromHistory(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &llm.Analysis{Confidence: 0.5}}
	d := NewDetector(patterns.NewLexicon(), analyzer, nil)

	long := strings.Repeat("x", 250)
	history := []session.Turn{
		{Sender: session.SenderScammer, Text: "first"},
		{Sender: session.SenderScammer, Text: "second"},
		{Sender: session.SenderUser, Text: "third"},
		{Sender: session.SenderScammer, Text: "fourth"},
		{Sender: session.SenderUser, Text: "fifth"},
		{Sender: session.SenderScammer, Text: long},
	}
	d.Detect(context.Background(), "next message", history, 0)

	if strings.Contains(analyzer.gotContext, "first") {
		t.Error("context window not capped at 5 turns")
	}
	if !strings.Contains(analyzer.gotContext, "second | ") {
		t.Errorf("turns not pipe-joined: %q", analyzer.gotContext)
	}
	if strings.Contains(analyzer.gotContext, long) {
		t.Error("long turn not truncated")
	}
	if !strings.Contains(analyzer.gotContext, long[:100]) {
		t.Errorf("truncated turn missing: %q", analyzer.gotContext)
	}
}

func TestDetectContextTruncatesOnRuneBoundary(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &llm.Analysis{Confidence: 0.5}}
	d := NewDetector(patterns.NewLexicon(), analyzer, nil)

	// 150 Devanagari characters, 3 bytes each; a byte-wise cut at 100
	// would land mid-rune.
	long := strings.Repeat("न", 150)
	history := []session.Turn{{Sender: session.SenderScammer, Text: long}}
	d.Detect(context.Background(), "next", history, 0)

	if !utf8.ValidString(analyzer.gotContext) {
		t.Errorf("context contains a broken rune: %q", analyzer.gotContext)
	}
	if !strings.Contains(analyzer.gotContext, strings.Repeat("न", 100)) {
		t.Errorf("expected 100 whole characters, got %q", analyzer.gotContext)
	}
	if strings.Contains(analyzer.gotContext, strings.Repeat("न", 101)) {
		t.Error("turn not truncated at 100 characters")
	}
}

func TestDetectCategorizerRefinesUnknown(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &llm.Analysis{Confidence: 0.8, ScamType: "unknown"}}
	cat := &fakeCategorizer{category: "lottery"}
	d := NewDetector(patterns.NewLexicon(), analyzer, cat)

	v := d.Detect(context.Background(), "you have won a big amount", nil, 0)
	if v.ScamType != "lottery" {
		t.Errorf("ScamType = %q, want lottery", v.ScamType)
	}
	if cat.calls != 1 {
		t.Errorf("categorizer calls = %d, want 1", cat.calls)
	}
}

func TestDetectCategorizerSkippedWhenKnown(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &llm.Analysis{Confidence: 0.8, ScamType: "phishing"}}
	cat := &fakeCategorizer{category: "lottery"}
	d := NewDetector(patterns.NewLexicon(), analyzer, cat)

	v := d.Detect(context.Background(), "click this link", nil, 0)
	if v.ScamType != "phishing" {
		t.Errorf("ScamType = %q, want phishing", v.ScamType)
	}
	if cat.calls != 0 {
		t.Errorf("categorizer calls = %d, want 0", cat.calls)
	}
}

func TestDetectDedupesIndicators(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: &llm.Analysis{
		Confidence: 0.8,
		ScamType:   "phishing",
		Indicators: []string{"Keyword: otp", "credential harvesting"},
	}}
	d := NewDetector(patterns.NewLexicon(), analyzer, nil)

	v := d.Detect(context.Background(), "otp", nil, 0)
	n := 0
	for _, ind := range v.Indicators {
		if ind == "Keyword: otp" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("duplicate indicator survived: %v", v.Indicators)
	}
}

func TestQuickCheck(t *testing.T) {
	d := NewDetector(patterns.NewLexicon(), &fakeAnalyzer{}, nil)

	suspicious, score := d.QuickCheck("you won a lottery")
	if !suspicious {
		t.Error("obvious scam text failed quick check")
	}
	if score <= QuickCheckThreshold {
		t.Errorf("score = %v, want above %v", score, QuickCheckThreshold)
	}

	suspicious, score = d.QuickCheck("see you at dinner tonight")
	if suspicious {
		t.Error("benign text passed quick check")
	}
	if score != 0 {
		t.Errorf("benign score = %v, want 0", score)
	}
}
