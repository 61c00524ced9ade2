package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by operations that require an existing session.
var ErrNotFound = errors.New("session not found")

// Stats summarizes a store for the health endpoint.
type Stats struct {
	TotalSessions  int `json:"total_sessions"`
	ActiveSessions int `json:"active_sessions"`
	ScamsDetected  int `json:"scams_detected"`
}

// Store is the session persistence contract. Implementations must be safe
// for concurrent use.
//
// All read methods return deep copies: callers never share memory with the
// store and all mutation goes through Update, which applies fn atomically
// with respect to other updates of the same session.
//
// BeginReport, MarkReported and EndReport implement the at-most-once report
// discipline. BeginReport acquires an exclusive dispatch claim for the
// session and returns false when the report was already sent or another
// worker holds the claim. On delivery success the worker calls MarkReported,
// which sets the permanent flag and releases the claim. On failure it calls
// EndReport, which only releases the claim so a later sweep can retry.
type Store interface {
	GetOrCreate(ctx context.Context, id, channel, language string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error) // nil, nil when absent
	Update(ctx context.Context, id string, fn func(*Session)) (*Session, error)
	Delete(ctx context.Context, id string) error

	// InactiveSessions returns sessions idle past the threshold whose
	// report has not been sent yet.
	InactiveSessions(ctx context.Context, threshold time.Duration) ([]*Session, error)
	// CleanupExpired deletes sessions older than the store TTL and
	// returns how many were removed.
	CleanupExpired(ctx context.Context) (int, error)

	BeginReport(ctx context.Context, id string) (bool, error)
	MarkReported(ctx context.Context, id string) error
	EndReport(ctx context.Context, id string) error

	Stats(ctx context.Context) (Stats, error)
	Close() error
}
