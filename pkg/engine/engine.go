// Package engine orchestrates the per-message honeypot pipeline: session
// state, intelligence extraction, scam detection, persona reply and the
// end-of-conversation report. It owns the ordering and the failure policy;
// the actual work lives in the leaf packages.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/me-shivamo/ScamRakshak/pkg/httputil"
	"github.com/me-shivamo/ScamRakshak/pkg/intel"
	"github.com/me-shivamo/ScamRakshak/pkg/patterns"
	"github.com/me-shivamo/ScamRakshak/pkg/scam"
	"github.com/me-shivamo/ScamRakshak/pkg/session"
)

// Detector produces the per-message scam verdict.
type Detector interface {
	Detect(ctx context.Context, msg string, history []session.Turn, existingConfidence float64) scam.Verdict
}

// Responder produces the persona's reply and an internal note.
type Responder interface {
	Respond(ctx context.Context, msg string, sess *session.Session) (reply, note string)
}

// Extractor is the model-side intelligence extraction. May be nil in the
// engine, in which case only pattern extraction runs.
type Extractor interface {
	ExtractIntelligence(ctx context.Context, history []session.Turn) (intel.Record, error)
}

// Sender delivers the final report.
type Sender interface {
	Send(ctx context.Context, sess *session.Session) error
}

// Config tunes engine timing.
type Config struct {
	// ReportGrace is how long a triggered report waits before sending,
	// so trailing messages still land in the final intelligence.
	ReportGrace time.Duration
	// ReportTimeout bounds one report dispatch end to end.
	ReportTimeout time.Duration
	// MaxConcurrentReports bounds the fire-and-forget dispatch
	// goroutines. Dropped dispatches are picked up by the inactivity
	// sweep, so the bound costs latency, not correctness.
	MaxConcurrentReports int
}

// Engine wires the pipeline together.
type Engine struct {
	store     session.Store
	detector  Detector
	responder Responder
	extractor Extractor
	reporter  Sender

	reportSem     *httputil.Semaphore
	reportGrace   time.Duration
	reportTimeout time.Duration
}

// New creates an engine. extractor may be nil.
func New(store session.Store, detector Detector, responder Responder, extractor Extractor, reporter Sender, cfg Config) *Engine {
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = 2 * time.Minute
	}
	if cfg.MaxConcurrentReports <= 0 {
		cfg.MaxConcurrentReports = 32
	}
	return &Engine{
		store:         store,
		detector:      detector,
		responder:     responder,
		extractor:     extractor,
		reporter:      reporter,
		reportSem:     httputil.NewSemaphore(cfg.MaxConcurrentReports),
		reportGrace:   cfg.ReportGrace,
		reportTimeout: cfg.ReportTimeout,
	}
}

// Inbound is one scammer message from the webhook.
type Inbound struct {
	SessionID string
	Text      string
	Channel   string
	Language  string
}

// HandleMessage runs the pipeline for one inbound message and returns the
// persona's reply.
//
// Detection and reply generation degrade internally and never fail the
// pipeline; only session store errors surface, and the webhook layer maps
// those to an in-character fallback so the scammer never sees an error.
func (e *Engine) HandleMessage(ctx context.Context, in Inbound) (string, error) {
	trace := uuid.NewString()[:8]
	log.Printf("[MSG:%s] session=%s len=%d", trace, in.SessionID, len(in.Text))

	sess, err := e.store.GetOrCreate(ctx, in.SessionID, in.Channel, in.Language)
	if err != nil {
		return "", fmt.Errorf("load session %s: %w", in.SessionID, err)
	}

	fullHistory := append(append([]session.Turn(nil), sess.History...), session.Turn{
		Sender:    session.SenderScammer,
		Text:      in.Text,
		Timestamp: time.Now().UnixMilli(),
	})

	// Intelligence: lexical extraction always runs; the model pass covers
	// what regexes miss and is allowed to fail.
	patternRec := patterns.Extract(in.Text)
	var aiRec intel.Record
	if e.extractor != nil {
		if rec, xerr := e.extractor.ExtractIntelligence(ctx, fullHistory); xerr != nil {
			log.Printf("[WARN] [MSG:%s] model extraction failed: %v", trace, xerr)
		} else {
			aiRec = rec
		}
	}
	merged := intel.Merge(patternRec, aiRec, sess.Intelligence)

	verdict := e.detector.Detect(ctx, in.Text, sess.History, sess.ScamConfidence)

	// The responder sees the post-detection state so its directive and
	// note reflect this turn's verdict and intelligence.
	respSess := sess.Clone()
	respSess.Intelligence = merged
	respSess.ScamType = verdict.ScamType
	respSess.ScamConfidence = verdict.Confidence
	reply, note := e.responder.Respond(ctx, in.Text, respSess)

	// Everything above ran against a snapshot; a concurrent message for the
	// same key may have committed since. The closure therefore unions into
	// the live intelligence, re-applies the hysteresis floor against the
	// live confidence, and decides termination from the post-mutation state
	// so no read-modify-write cycle loses the other's work.
	var ended bool
	updated, err := e.store.Update(ctx, in.SessionID, func(s *session.Session) {
		s.AppendTurn(session.SenderScammer, in.Text)
		s.AppendTurn(session.SenderUser, reply)
		s.TotalMessages += 2
		s.Intelligence = intel.Merge(merged, intel.Record{}, s.Intelligence)
		confidence := verdict.Confidence
		if floor := s.ScamConfidence * scam.HysteresisDecay; confidence < floor {
			confidence = floor
		}
		s.ScamConfidence = confidence
		s.ScamDetected = confidence > scam.ScamThreshold
		s.ScamType = verdict.ScamType
		s.Note(note)
		ended = ShouldEnd(in.Text, s.TotalMessages, s.Intelligence)
		if ended {
			s.Ended = true
		}
	})
	if err != nil {
		return "", fmt.Errorf("update session %s: %w", in.SessionID, err)
	}

	log.Printf("[MSG:%s] session=%s scam=%v confidence=%.2f type=%s messages=%d ended=%v",
		trace, in.SessionID, updated.ScamDetected, updated.ScamConfidence, updated.ScamType, updated.TotalMessages, ended)

	if ended && !updated.ReportSent {
		e.dispatchReport(in.SessionID, trace)
	}

	return reply, nil
}

// dispatchReport sends the final report asynchronously after the grace
// period. The session is re-read after the wait so trailing messages are
// included, and the store's dispatch claim guarantees at most one delivery
// even when several triggers race.
func (e *Engine) dispatchReport(sessionID, trace string) {
	if !e.reportSem.TryAcquire() {
		log.Printf("[WARN] [MSG:%s] report dispatch slots exhausted for session %s, deferring to sweep", trace, sessionID)
		return
	}

	go func() {
		defer e.reportSem.Release()

		ctx, cancel := context.WithTimeout(context.Background(), e.reportGrace+e.reportTimeout)
		defer cancel()

		if e.reportGrace > 0 {
			timer := time.NewTimer(e.reportGrace)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return
			}
		}

		e.sendReport(ctx, sessionID, trace)
	}()
}

// sendReport performs one claimed delivery attempt for a session.
func (e *Engine) sendReport(ctx context.Context, sessionID, trace string) {
	claimed, err := e.store.BeginReport(ctx, sessionID)
	if err != nil {
		log.Printf("[WARN] [MSG:%s] report claim failed for session %s: %v", trace, sessionID, err)
		return
	}
	if !claimed {
		return // already sent or another worker owns it
	}

	sess, err := e.store.Get(ctx, sessionID)
	if err != nil || sess == nil {
		log.Printf("[WARN] [MSG:%s] session %s vanished before report: %v", trace, sessionID, err)
		_ = e.store.EndReport(context.WithoutCancel(ctx), sessionID)
		return
	}
	// The claim alone is not enough: another worker can finish its delivery
	// between our flag check and claim acquisition, freeing the claim key.
	// The flag on the session itself is authoritative.
	if sess.ReportSent {
		_ = e.store.EndReport(context.WithoutCancel(ctx), sessionID)
		return
	}

	if err := e.reporter.Send(ctx, sess); err != nil {
		log.Printf("[WARN] [MSG:%s] report delivery failed for session %s: %v", trace, sessionID, err)
		// Release the claim so the inactivity sweep can retry later.
		_ = e.store.EndReport(context.WithoutCancel(ctx), sessionID)
		return
	}

	if err := e.store.MarkReported(context.WithoutCancel(ctx), sessionID); err != nil {
		log.Printf("[WARN] [MSG:%s] mark reported failed for session %s: %v", trace, sessionID, err)
	}
}
