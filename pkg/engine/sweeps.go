package engine

import (
	"context"
	"log"
	"time"

	"github.com/me-shivamo/ScamRakshak/pkg/session"
)

// RunInactivitySweep periodically reports conversations that went quiet.
// A scammer who stops replying never produces an explicit end signal, so
// this sweep is what guarantees their session still gets reported. It also
// retries dispatches that were dropped or failed earlier. Blocks until ctx
// is cancelled.
func (e *Engine) RunInactivitySweep(ctx context.Context, every, threshold time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.SweepInactiveOnce(ctx, threshold)
		}
	}
}

// SweepInactiveOnce reports all idle unreported scam sessions and returns
// how many reports were delivered.
func (e *Engine) SweepInactiveOnce(ctx context.Context, threshold time.Duration) int {
	sessions, err := e.store.InactiveSessions(ctx, threshold)
	if err != nil {
		log.Printf("[WARN] inactivity sweep failed: %v", err)
		return 0
	}

	sent := 0
	for _, sess := range sessions {
		if !sess.ScamDetected {
			continue
		}
		log.Printf("[SWEEP] session %s inactive, reporting", sess.ID)

		if _, err := e.store.Update(ctx, sess.ID, func(s *session.Session) {
			s.Ended = true
		}); err != nil {
			log.Printf("[WARN] sweep could not end session %s: %v", sess.ID, err)
			continue
		}

		before := sess.ReportSent
		e.sendReport(ctx, sess.ID, "sweep")
		if after, _ := e.store.Get(ctx, sess.ID); after != nil && after.ReportSent && !before {
			sent++
		}
	}
	return sent
}

// RunExpirySweep periodically deletes sessions past their TTL. Blocks until
// ctx is cancelled.
func (e *Engine) RunExpirySweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := e.store.CleanupExpired(ctx); err != nil {
				log.Printf("[WARN] expiry sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("[SWEEP] removed %d expired sessions", n)
			}
		}
	}
}
