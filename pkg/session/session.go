package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/metrics"
)

const (
	sessionPrefix   = "aerosuite:session:"
	principalPrefix = "aerosuite:principal:"
)

// Record is the stored session state.
type Record struct {
	SessionID       string            `json:"sessionId"`
	PrincipalID     string            `json:"principalId"`
	IssuedAt        time.Time         `json:"issuedAt"`
	LastSeenAt      time.Time         `json:"lastSeenAt"`
	AbsoluteExpiry  time.Time         `json:"absoluteExpiry"`
	FingerprintHash string            `json:"fingerprintHash"`
	Flags           map[string]string `json:"flags,omitempty"`
}

// Config holds session lifetimes.
type Config struct {
	// TTL is the absolute session lifetime.
	TTL time.Duration
	// Idle is the sliding inactivity window.
	Idle time.Duration
}

// Store manages shared sessions in Redis. Every worker process talks to
// the same backend; all mutations are durable in Redis before returning.
type Store struct {
	client *redis.Client
	cfg    Config
}

// NewStore connects the session store to Redis at addr.
func NewStore(addr string, cfg Config) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return &Store{client: client, cfg: cfg}
}

// NewStoreWithClient wraps an existing client, used by tests.
func NewStoreWithClient(client *redis.Client, cfg Config) *Store {
	return &Store{client: client, cfg: cfg}
}

// FingerprintHash hashes stable client attributes for session binding.
func FingerprintHash(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:])
}

// Create issues a new session bound to the client fingerprint.
func (s *Store) Create(ctx context.Context, principalID, clientFingerprint string) (*Record, error) {
	if principalID == "" {
		return nil, apperr.Validation("principal id is required")
	}
	now := time.Now().UTC()
	rec := &Record{
		SessionID:       uuid.New().String(),
		PrincipalID:     principalID,
		IssuedAt:        now,
		LastSeenAt:      now,
		AbsoluteExpiry:  now.Add(s.cfg.TTL),
		FingerprintHash: FingerprintHash(clientFingerprint),
	}

	if err := s.write(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, principalPrefix+principalID, rec.SessionID).Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyUnavailable, err, "failed to index session")
	}
	s.client.Expire(ctx, principalPrefix+principalID, s.cfg.TTL)

	metrics.SessionsCreated.Inc()
	return rec, nil
}

// Load fetches and verifies a session. A fingerprint mismatch revokes the
// session and returns unauthorized; expired and unknown sessions are also
// unauthorized, with distinct messages.
func (s *Store) Load(ctx context.Context, sessionID, clientFingerprint string) (*Record, error) {
	rec, err := s.read(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if time.Now().After(rec.AbsoluteExpiry) {
		_ = s.Revoke(ctx, sessionID)
		return nil, apperr.New(apperr.KindUnauthorized, "session expired")
	}

	if rec.FingerprintHash != FingerprintHash(clientFingerprint) {
		// A changed fingerprint means the token leaked or the client is
		// someone else; the session is burned either way
		_ = s.Revoke(ctx, sessionID)
		metrics.SessionsRevoked.WithLabelValues("fingerprint").Inc()
		return nil, apperr.New(apperr.KindUnauthorized, "session fingerprint mismatch")
	}

	return rec, nil
}

// Touch updates LastSeenAt and extends the idle window, never past the
// absolute expiry. The update is a compare-and-set on the record key.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	key := sessionPrefix + sessionID
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return apperr.New(apperr.KindUnauthorized, "session unknown")
			}
			return apperr.Wrap(apperr.KindDependencyUnavailable, err, "session store unreachable")
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "corrupt session record")
		}
		rec.LastSeenAt = time.Now().UTC()

		updated, err := json.Marshal(&rec)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "failed to encode session")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.expiry(&rec))
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Concurrent touch won; the session was refreshed either way
		return nil
	}
	return err
}

// Rotate replaces the session id after a privilege change, keeping the
// record content. The old id is revoked.
func (s *Store) Rotate(ctx context.Context, sessionID string) (string, error) {
	rec, err := s.read(ctx, sessionID)
	if err != nil {
		return "", err
	}

	newID := uuid.New().String()
	rec.SessionID = newID
	rec.LastSeenAt = time.Now().UTC()

	if err := s.write(ctx, rec); err != nil {
		return "", err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, sessionPrefix+sessionID)
	pipe.SRem(ctx, principalPrefix+rec.PrincipalID, sessionID)
	pipe.SAdd(ctx, principalPrefix+rec.PrincipalID, newID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", apperr.Wrap(apperr.KindDependencyUnavailable, err, "failed to rotate session")
	}
	return newID, nil
}

// Revoke removes a session.
func (s *Store) Revoke(ctx context.Context, sessionID string) error {
	rec, err := s.read(ctx, sessionID)
	if err != nil {
		if apperr.Is(err, apperr.KindUnauthorized) {
			return nil // already gone
		}
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, sessionPrefix+sessionID)
	pipe.SRem(ctx, principalPrefix+rec.PrincipalID, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Wrap(apperr.KindDependencyUnavailable, err, "failed to revoke session")
	}
	metrics.SessionsRevoked.WithLabelValues("explicit").Inc()
	return nil
}

// RevokeAllFor removes every session belonging to a principal.
func (s *Store) RevokeAllFor(ctx context.Context, principalID string) error {
	setKey := principalPrefix + principalID
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return apperr.Wrap(apperr.KindDependencyUnavailable, err, "session store unreachable")
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, sessionPrefix+id)
	}
	pipe.Del(ctx, setKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Wrap(apperr.KindDependencyUnavailable, err, "failed to revoke sessions")
	}
	metrics.SessionsRevoked.WithLabelValues("principal").Add(float64(len(ids)))
	return nil
}

// Close releases the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) read(ctx context.Context, sessionID string) (*Record, error) {
	data, err := s.client.Get(ctx, sessionPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperr.New(apperr.KindUnauthorized, "session unknown")
		}
		return nil, apperr.Wrap(apperr.KindDependencyUnavailable, err, "session store unreachable")
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "corrupt session record")
	}
	return &rec, nil
}

func (s *Store) write(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "failed to encode session")
	}
	if err := s.client.Set(ctx, sessionPrefix+rec.SessionID, data, s.expiry(rec)).Err(); err != nil {
		return apperr.Wrap(apperr.KindDependencyUnavailable, err, "session store unreachable")
	}
	return nil
}

// expiry returns the Redis TTL: the idle window, clamped to the absolute
// expiry.
func (s *Store) expiry(rec *Record) time.Duration {
	idle := s.cfg.Idle
	remaining := time.Until(rec.AbsoluteExpiry)
	if remaining < idle {
		return remaining
	}
	return idle
}
