// Package report delivers the final per-conversation result to the
// evaluation callback endpoint, exactly once per session, and archives an
// audit copy on disk. The at-most-once guarantee itself lives in the session
// store's dispatch claim; this package only builds and sends the payload.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/me-shivamo/ScamRakshak/pkg/httputil"
	"github.com/me-shivamo/ScamRakshak/pkg/intel"
	"github.com/me-shivamo/ScamRakshak/pkg/session"
)

// Payload is the callback body. Field names are the endpoint's contract,
// do not rename.
type Payload struct {
	SessionID              string       `json:"sessionId"`
	ScamDetected           bool         `json:"scamDetected"`
	TotalMessagesExchanged int          `json:"totalMessagesExchanged"`
	ExtractedIntelligence  intel.Record `json:"extractedIntelligence"`
	AgentNotes             string       `json:"agentNotes"`
}

// auditRecord is the on-disk copy, richer than the callback payload.
type auditRecord struct {
	SessionID              string       `json:"sessionId"`
	Timestamp              string       `json:"timestamp"`
	ScamDetected           bool         `json:"scamDetected"`
	ScamType               string       `json:"scamType,omitempty"`
	ScamConfidence         float64      `json:"scamConfidence"`
	TotalMessagesExchanged int          `json:"totalMessagesExchanged"`
	ExtractedIntelligence  intel.Record `json:"extractedIntelligence"`
	AgentNotes             string       `json:"agentNotes"`
	Channel                string       `json:"channel,omitempty"`
	Language               string       `json:"language,omitempty"`
}

// Reporter posts final results to the callback URL with bounded retries.
type Reporter struct {
	url      string
	client   *http.Client
	retries  int
	auditDir string
}

// ReporterConfig configures a Reporter.
type ReporterConfig struct {
	CallbackURL string
	Timeout     time.Duration
	Retries     int    // per-dispatch POST attempts, min 1
	AuditDir    string // empty disables audit files
}

// NewReporter creates a reporter and ensures the audit directory exists.
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.AuditDir != "" {
		if err := os.MkdirAll(cfg.AuditDir, 0o755); err != nil {
			log.Printf("[WARN] cannot create audit directory %s: %v", cfg.AuditDir, err)
			cfg.AuditDir = ""
		}
	}
	return &Reporter{
		url:      cfg.CallbackURL,
		client:   httputil.NewClient(cfg.Timeout),
		retries:  cfg.Retries,
		auditDir: cfg.AuditDir,
	}
}

// Send builds the payload for the session, writes the audit file and posts
// the callback, retrying up to the configured attempt count. Audit failures
// are logged but never fail the send; losing the callback because the disk
// is full would be the wrong trade.
func (r *Reporter) Send(ctx context.Context, sess *session.Session) error {
	payload := BuildPayload(sess)
	attemptID := uuid.NewString()

	r.writeAudit(sess, payload)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal report for session %s: %w", sess.ID, err)
	}

	var lastErr error
	for attempt := 1; attempt <= r.retries; attempt++ {
		if err := r.post(ctx, body, attemptID); err != nil {
			lastErr = err
			log.Printf("[WARN] report attempt %d/%d failed for session %s (dispatch %s): %v",
				attempt, r.retries, sess.ID, attemptID, err)
			continue
		}
		log.Printf("[REPORT] delivered session %s: scam=%v messages=%d (dispatch %s)",
			sess.ID, payload.ScamDetected, payload.TotalMessagesExchanged, attemptID)
		return nil
	}
	return fmt.Errorf("report delivery failed for session %s after %d attempts: %w", sess.ID, r.retries, lastErr)
}

func (r *Reporter) post(ctx context.Context, body []byte, attemptID string) error {
	req, err := http.NewRequestWithContext(ctx, "POST", r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dispatch-Id", attemptID)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		respBody, _ := httputil.ReadResponseBody(resp.Body, 4096)
		return fmt.Errorf("callback status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// BuildPayload converts session state into the callback format.
func BuildPayload(sess *session.Session) Payload {
	return Payload{
		SessionID:              sess.ID,
		ScamDetected:           sess.ScamDetected,
		TotalMessagesExchanged: sess.TotalMessages,
		ExtractedIntelligence:  ensureArrays(sess.Intelligence),
		AgentNotes:             buildAgentNotes(sess),
	}
}

// ensureArrays replaces nil category slices with empty ones so they marshal
// as [] rather than null.
func ensureArrays(rec intel.Record) intel.Record {
	if rec.BankAccounts == nil {
		rec.BankAccounts = []string{}
	}
	if rec.UPIIDs == nil {
		rec.UPIIDs = []string{}
	}
	if rec.PhoneNumbers == nil {
		rec.PhoneNumbers = []string{}
	}
	if rec.PhishingLinks == nil {
		rec.PhishingLinks = []string{}
	}
	if rec.SuspiciousKeywords == nil {
		rec.SuspiciousKeywords = []string{}
	}
	return rec
}

// buildAgentNotes renders the human-readable summary: verdict, traffic,
// intelligence counts and the last few per-turn observations.
func buildAgentNotes(sess *session.Session) string {
	var parts []string

	if sess.ScamType != "" {
		parts = append(parts, "Scam Type: "+sess.ScamType)
		parts = append(parts, fmt.Sprintf("Confidence: %.0f%%", sess.ScamConfidence*100))
	}
	parts = append(parts, fmt.Sprintf("Total messages: %d", sess.TotalMessages))
	if sess.Channel != "" {
		parts = append(parts, "Channel: "+sess.Channel)
	}

	rec := sess.Intelligence
	var counts []string
	if n := len(rec.UPIIDs); n > 0 {
		counts = append(counts, fmt.Sprintf("%d UPI IDs", n))
	}
	if n := len(rec.PhoneNumbers); n > 0 {
		counts = append(counts, fmt.Sprintf("%d phone numbers", n))
	}
	if n := len(rec.PhishingLinks); n > 0 {
		counts = append(counts, fmt.Sprintf("%d links", n))
	}
	if n := len(rec.BankAccounts); n > 0 {
		counts = append(counts, fmt.Sprintf("%d bank accounts", n))
	}
	if len(counts) > 0 {
		parts = append(parts, "Intelligence gathered: "+strings.Join(counts, ", "))
	}

	if len(sess.AgentNotes) > 0 {
		parts = append(parts, "\nAgent observations:")
		notes := sess.AgentNotes
		if len(notes) > 5 {
			notes = notes[len(notes)-5:]
		}
		for _, note := range notes {
			parts = append(parts, "- "+note)
		}
	}
	return strings.Join(parts, "\n")
}

// writeAudit saves the enriched record under <auditDir>/<sessionId>.json.
func (r *Reporter) writeAudit(sess *session.Session, payload Payload) {
	if r.auditDir == "" {
		return
	}

	rec := auditRecord{
		SessionID:              sess.ID,
		Timestamp:              time.Now().UTC().Format(time.RFC3339),
		ScamDetected:           sess.ScamDetected,
		ScamType:               sess.ScamType,
		ScamConfidence:         sess.ScamConfidence,
		TotalMessagesExchanged: sess.TotalMessages,
		ExtractedIntelligence:  payload.ExtractedIntelligence,
		AgentNotes:             payload.AgentNotes,
		Channel:                sess.Channel,
		Language:               sess.Language,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		log.Printf("[WARN] marshal audit record for session %s: %v", sess.ID, err)
		return
	}

	path := filepath.Join(r.auditDir, sanitizeSessionID(sess.ID)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("[WARN] write audit file %s: %v", path, err)
		return
	}
	log.Printf("[REPORT] audit saved to %s", path)
}

// sanitizeSessionID makes a session ID safe to use as a filename. Session
// IDs come from the outside; "../" must not escape the audit directory.
func sanitizeSessionID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "session"
	}
	return b.String()
}
