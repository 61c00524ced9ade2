package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryGetOrCreate(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	sess, err := store.GetOrCreate(ctx, "s1", "SMS", "")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sess.ID != "s1" || sess.Channel != "SMS" || sess.Language != "English" {
		t.Errorf("unexpected session: %+v", sess)
	}
	if sess.CreatedAt.IsZero() || sess.LastActivity.IsZero() {
		t.Error("timestamps not initialized")
	}

	again, err := store.GetOrCreate(ctx, "s1", "", "")
	if err != nil {
		t.Fatalf("GetOrCreate existing: %v", err)
	}
	if !again.CreatedAt.Equal(sess.CreatedAt) {
		t.Error("existing session was recreated")
	}
}

func TestMemoryUpdate(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	if _, err := store.Update(ctx, "missing", func(*Session) {}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update missing: err = %v, want ErrNotFound", err)
	}

	if _, err := store.GetOrCreate(ctx, "s1", "", ""); err != nil {
		t.Fatal(err)
	}
	updated, err := store.Update(ctx, "s1", func(s *Session) {
		s.AppendTurn(SenderScammer, "you won a lottery")
		s.TotalMessages += 2
		s.ScamConfidence = 0.7
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.History) != 1 || updated.TotalMessages != 2 || updated.ScamConfidence != 0.7 {
		t.Errorf("mutation not applied: %+v", updated)
	}

	// Returned sessions are copies: mutating one must not leak back.
	updated.History[0].Text = "tampered"
	fresh, _ := store.Get(ctx, "s1")
	if fresh.History[0].Text != "you won a lottery" {
		t.Error("store state aliased by returned copy")
	}
}

func TestMemoryInactiveSessions(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	store.GetOrCreate(ctx, "idle", "", "")
	store.GetOrCreate(ctx, "reported", "", "")
	store.Update(ctx, "reported", func(s *Session) { s.ReportSent = true })

	time.Sleep(20 * time.Millisecond)
	store.GetOrCreate(ctx, "fresh", "", "")

	inactive, err := store.InactiveSessions(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("InactiveSessions: %v", err)
	}
	if len(inactive) != 1 || inactive[0].ID != "idle" {
		t.Errorf("inactive = %v, want just idle", ids(inactive))
	}
}

func TestMemoryCleanupExpired(t *testing.T) {
	store := NewMemoryStore(WithTTL(10 * time.Millisecond))
	defer store.Close()
	ctx := context.Background()

	store.GetOrCreate(ctx, "old", "", "")
	time.Sleep(20 * time.Millisecond)
	store.GetOrCreate(ctx, "new", "", "")

	n, err := store.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("cleaned = %d, want 1", n)
	}
	if sess, _ := store.Get(ctx, "old"); sess != nil {
		t.Error("expired session survived cleanup")
	}
	if sess, _ := store.Get(ctx, "new"); sess == nil {
		t.Error("live session was removed")
	}
}

func TestMemoryReportClaim(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	store.GetOrCreate(ctx, "s1", "", "")

	ok, err := store.BeginReport(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("first BeginReport = %v, %v, want true", ok, err)
	}
	if ok, _ := store.BeginReport(ctx, "s1"); ok {
		t.Fatal("claim acquired twice")
	}

	// Failure path: releasing the claim re-enables dispatch.
	if err := store.EndReport(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.BeginReport(ctx, "s1"); !ok {
		t.Fatal("claim not reacquirable after release")
	}

	// Success path: the sent flag blocks any further claim.
	if err := store.MarkReported(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.BeginReport(ctx, "s1"); ok {
		t.Fatal("claim acquired after report was sent")
	}
	sess, _ := store.Get(ctx, "s1")
	if !sess.ReportSent {
		t.Error("ReportSent flag not set")
	}
}

func TestMemoryReportClaimConcurrent(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	store.GetOrCreate(ctx, "s1", "", "")

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.BeginReport(ctx, "s1"); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("claim winners = %d, want exactly 1", winners)
	}
}

func TestMemoryStats(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	store.GetOrCreate(ctx, "a", "", "")
	store.GetOrCreate(ctx, "b", "", "")
	store.Update(ctx, "b", func(s *Session) {
		s.Ended = true
		s.ScamDetected = true
	})

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Stats{TotalSessions: 2, ActiveSessions: 1, ScamsDetected: 1}
	if st != want {
		t.Errorf("Stats = %+v, want %+v", st, want)
	}
}

func ids(sessions []*Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}
