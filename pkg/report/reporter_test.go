package report

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/me-shivamo/ScamRakshak/pkg/intel"
	"github.com/me-shivamo/ScamRakshak/pkg/session"
)

func sampleSession() *session.Session {
	return &session.Session{
		ID:             "sess-42",
		ScamDetected:   true,
		ScamConfidence: 0.87,
		ScamType:       "lottery",
		TotalMessages:  12,
		Channel:        "SMS",
		Language:       "English",
		Intelligence: intel.Record{
			UPIIDs:             []string{"scammer@ybl"},
			PhoneNumbers:       []string{"9876543210"},
			SuspiciousKeywords: []string{"lottery", "otp"},
		},
		AgentNotes: []string{"note one", "note two"},
	}
}

func TestSendDeliversPayload(t *testing.T) {
	var got Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Dispatch-Id") == "" {
			t.Error("dispatch id header missing")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("bad payload: %v", err)
		}
	}))
	defer server.Close()

	r := NewReporter(ReporterConfig{CallbackURL: server.URL, Timeout: time.Second, Retries: 1})
	if err := r.Send(context.Background(), sampleSession()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got.SessionID != "sess-42" || !got.ScamDetected || got.TotalMessagesExchanged != 12 {
		t.Errorf("payload = %+v", got)
	}
	if len(got.ExtractedIntelligence.UPIIDs) != 1 {
		t.Errorf("intelligence missing: %+v", got.ExtractedIntelligence)
	}
	for _, want := range []string{"Scam Type: lottery", "Confidence: 87%", "1 UPI IDs", "note two"} {
		if !strings.Contains(got.AgentNotes, want) {
			t.Errorf("agentNotes missing %q:\n%s", want, got.AgentNotes)
		}
	}
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	r := NewReporter(ReporterConfig{CallbackURL: server.URL, Timeout: time.Second, Retries: 3})
	if err := r.Send(context.Background(), sampleSession()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestSendExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	r := NewReporter(ReporterConfig{CallbackURL: server.URL, Timeout: time.Second, Retries: 2})
	if err := r.Send(context.Background(), sampleSession()); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestSendWritesAuditFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	dir := t.TempDir()
	r := NewReporter(ReporterConfig{CallbackURL: server.URL, Timeout: time.Second, AuditDir: dir})
	if err := r.Send(context.Background(), sampleSession()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "sess-42.json"))
	if err != nil {
		t.Fatalf("audit file: %v", err)
	}
	var rec auditRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("audit json: %v", err)
	}
	if rec.ScamType != "lottery" || rec.ScamConfidence != 0.87 || rec.Channel != "SMS" {
		t.Errorf("audit record = %+v", rec)
	}
}

func TestAuditFailureDoesNotBlockSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	// A file where the directory should be makes MkdirAll fail, which
	// disables auditing instead of breaking delivery.
	base := t.TempDir()
	notADir := filepath.Join(base, "blocked")
	if err := os.WriteFile(notADir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReporter(ReporterConfig{CallbackURL: server.URL, Timeout: time.Second, AuditDir: notADir})
	if err := r.Send(context.Background(), sampleSession()); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestBuildPayloadEmptySlicesNotNull(t *testing.T) {
	sess := &session.Session{ID: "s1", TotalMessages: 2}
	data, err := json.Marshal(BuildPayload(sess))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "null") {
		t.Errorf("payload contains null arrays: %s", data)
	}
}

func TestSanitizeSessionID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc-123_X", "abc-123_X"},
		{"../../etc/passwd", "______etc_passwd"},
		{"a b/c", "a_b_c"},
		{"", "session"},
	}
	for _, tt := range tests {
		if got := sanitizeSessionID(tt.in); got != tt.want {
			t.Errorf("sanitizeSessionID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
