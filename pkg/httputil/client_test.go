package httputil

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestClientSingleton(t *testing.T) {
	c1 := Client(TierMedium)
	c2 := Client(TierMedium)
	if c1 != c2 {
		t.Error("Client() should return the same instance for same tier")
	}

	if Client(TierFast) == Client(TierSlow) {
		t.Error("different tiers should return different clients")
	}
}

func TestClientTimeouts(t *testing.T) {
	tests := []struct {
		tier TimeoutTier
		want time.Duration
	}{
		{TierFast, 5 * time.Second},
		{TierMedium, 30 * time.Second},
		{TierSlow, 60 * time.Second},
	}
	for _, tt := range tests {
		if c := Client(tt.tier); c.Timeout != tt.want {
			t.Errorf("tier %d: got timeout %v, want %v", tt.tier, c.Timeout, tt.want)
		}
	}
}

func TestNewClientDefaultsOnZero(t *testing.T) {
	c := NewClient(0)
	if c.Timeout != 30*time.Second {
		t.Errorf("zero timeout should default to 30s, got %v", c.Timeout)
	}
}

func TestReadResponseBodyLimits(t *testing.T) {
	big := strings.NewReader(strings.Repeat("x", 100))
	body, err := ReadResponseBody(big, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body) != 10 {
		t.Errorf("expected body truncated to 10 bytes, got %d", len(body))
	}
}

func TestSemaphore(t *testing.T) {
	s := NewSemaphore(2)

	if !s.TryAcquire() || !s.TryAcquire() {
		t.Fatal("expected two acquires to succeed")
	}
	if s.TryAcquire() {
		t.Error("third acquire should fail at capacity")
	}
	if s.DroppedCount() != 1 {
		t.Errorf("expected 1 dropped, got %d", s.DroppedCount())
	}

	s.Release()
	if s.InUse() != 1 {
		t.Errorf("expected 1 in use after release, got %d", s.InUse())
	}

	// Blocking acquire should respect context cancellation
	s.TryAcquire() // back at capacity
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Acquire(ctx); err == nil {
		t.Error("Acquire should fail when context expires at capacity")
	}
}
