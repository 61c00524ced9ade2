// Package session tracks per-conversation honeypot state: the transcript,
// the running scam verdict, the intelligence gathered so far and the
// reporting flags. Two store backends are provided, an in-memory map for
// single-node deployments and Redis for distributed ones.
package session

import (
	"time"

	"github.com/me-shivamo/ScamRakshak/pkg/intel"
)

// Sender labels for conversation turns.
const (
	SenderScammer = "scammer"
	SenderUser    = "user"
)

// Turn is a single message in the conversation transcript.
type Turn struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"` // unix milliseconds
}

// Session is the full state of one conversation. Stores serialize it as
// JSON, so every field carries a tag.
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`

	History       []Turn `json:"history"`
	TotalMessages int    `json:"total_messages"`

	ScamDetected   bool    `json:"scam_detected"`
	ScamConfidence float64 `json:"scam_confidence"`
	ScamType       string  `json:"scam_type,omitempty"`

	Intelligence intel.Record `json:"intelligence"`
	AgentNotes   []string     `json:"agent_notes,omitempty"`

	// Ended and ReportSent are monotone: once set they never revert.
	Ended      bool `json:"ended"`
	ReportSent bool `json:"report_sent"`

	Channel  string `json:"channel,omitempty"`
	Language string `json:"language,omitempty"`
}

// AppendTurn records a message on the transcript and stamps it now.
func (s *Session) AppendTurn(sender, text string) {
	s.History = append(s.History, Turn{
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Note appends an observation to the agent notes.
func (s *Session) Note(note string) {
	if note == "" {
		return
	}
	s.AgentNotes = append(s.AgentNotes, note)
}

// RecentHistory returns up to the last n turns.
func (s *Session) RecentHistory(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// Clone returns a deep copy safe to hand outside the store lock.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.History = append([]Turn(nil), s.History...)
	cp.AgentNotes = append([]string(nil), s.AgentNotes...)
	cp.Intelligence = s.Intelligence.Clone()
	return &cp
}
