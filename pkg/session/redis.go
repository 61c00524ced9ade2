package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "honeypot:session:"
	claimKeyPrefix   = "honeypot:report:"

	// How long a dispatch claim survives if the holder dies mid-send.
	// After this the inactivity sweep can reclaim the session.
	defaultClaimTTL = 2 * time.Minute

	maxTxRetries = 5
)

// RedisStore implements Store on Redis. Sessions are stored as JSON values
// with a key TTL matching the session TTL; per-session serialization uses
// optimistic WATCH transactions, and the report dispatch claim is a SET NX
// key with its own short TTL.
type RedisStore struct {
	client   *redis.Client
	ttl      time.Duration
	claimTTL time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisTTL sets the maximum session age.
func WithRedisTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = d
	}
}

// WithClaimTTL sets how long a report dispatch claim lives.
func WithClaimTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.claimTTL = d
	}
}

// NewRedisStore wraps an existing Redis client. The caller owns connection
// configuration; Close closes the client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:   client,
		ttl:      1 * time.Hour,
		claimTTL: defaultClaimTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sessionKey(id string) string { return sessionKeyPrefix + id }
func claimKey(id string) string   { return claimKeyPrefix + id }

// ttlRemaining computes the key expiry from the session's creation time so
// Redis enforces the session TTL even if the expiry sweep never runs.
func (s *RedisStore) ttlRemaining(createdAt time.Time) time.Duration {
	left := s.ttl - time.Since(createdAt)
	if left < time.Second {
		left = time.Second
	}
	return left
}

func (s *RedisStore) GetOrCreate(ctx context.Context, id, channel, language string) (*Session, error) {
	if existing, err := s.touch(ctx, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	if language == "" {
		language = "English"
	}
	sess := &Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		Channel:      channel,
		Language:     language,
	}
	buf, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("marshal session %s: %w", id, err)
	}

	created, err := s.client.SetNX(ctx, sessionKey(id), buf, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", id, err)
	}
	if !created {
		// Lost the race, another replica created it first.
		return s.touch(ctx, id)
	}
	return sess, nil
}

// touch bumps LastActivity on an existing session.
func (s *RedisStore) touch(ctx context.Context, id string) (*Session, error) {
	return s.Update(ctx, id, func(*Session) {})
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Session)) (*Session, error) {
	key := sessionKey(id)
	var out *Session

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}

			var sess Session
			if err := json.Unmarshal(raw, &sess); err != nil {
				return fmt.Errorf("decode session %s: %w", id, err)
			}
			fn(&sess)
			sess.LastActivity = time.Now()

			buf, err := json.Marshal(&sess)
			if err != nil {
				return fmt.Errorf("marshal session %s: %w", id, err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, buf, s.ttlRemaining(sess.CreatedAt))
				return nil
			})
			if err == nil {
				out = &sess
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue // concurrent writer, retry
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("update session %s: transaction contention", id)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id), claimKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// forEach scans all stored sessions and calls fn on each. Sessions that
// fail to decode are skipped rather than aborting the sweep.
func (s *RedisStore) forEach(ctx context.Context, fn func(*Session)) error {
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return err
		}
		var sess Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			continue
		}
		fn(&sess)
	}
	return iter.Err()
}

func (s *RedisStore) InactiveSessions(ctx context.Context, threshold time.Duration) ([]*Session, error) {
	cutoff := time.Now().Add(-threshold)
	var out []*Session
	err := s.forEach(ctx, func(sess *Session) {
		if sess.LastActivity.Before(cutoff) && !sess.ReportSent {
			out = append(out, sess.Clone())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan inactive sessions: %w", err)
	}
	return out, nil
}

func (s *RedisStore) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.ttl)
	var expired []string
	err := s.forEach(ctx, func(sess *Session) {
		if sess.CreatedAt.Before(cutoff) {
			expired = append(expired, sess.ID)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("scan expired sessions: %w", err)
	}
	for _, id := range expired {
		if err := s.Delete(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

func (s *RedisStore) BeginReport(ctx context.Context, id string) (bool, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, ErrNotFound
	}
	if sess.ReportSent {
		return false, nil
	}
	claimed, err := s.client.SetNX(ctx, claimKey(id), "1", s.claimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim report %s: %w", id, err)
	}
	return claimed, nil
}

func (s *RedisStore) MarkReported(ctx context.Context, id string) error {
	_, err := s.Update(ctx, id, func(sess *Session) {
		sess.ReportSent = true
	})
	if err != nil {
		return err
	}
	return s.client.Del(ctx, claimKey(id)).Err()
}

func (s *RedisStore) EndReport(ctx context.Context, id string) error {
	return s.client.Del(ctx, claimKey(id)).Err()
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.forEach(ctx, func(sess *Session) {
		st.TotalSessions++
		if !sess.Ended {
			st.ActiveSessions++
		}
		if sess.ScamDetected {
			st.ScamsDetected++
		}
	})
	if err != nil {
		return Stats{}, fmt.Errorf("scan session stats: %w", err)
	}
	return st, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
