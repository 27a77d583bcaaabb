package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	stateKeyPrefix    = "verification:state:"
	cooldownKeyPrefix = "verification:cooldown:"
	defaultStateTTL   = 7 * 24 * time.Hour
)

// Record is the persisted verification progress for one e-mail address.
type Record struct {
	State       State     `json:"state"`
	SentAt      time.Time `json:"sent_at,omitempty"`
	ConfirmedAt time.Time `json:"confirmed_at,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
}

// StateStore persists verification records and resend cooldowns keyed by
// normalized e-mail.
type StateStore interface {
	Get(ctx context.Context, email string) (Record, error)
	Put(ctx context.Context, email string, rec Record) error
	StartCooldown(ctx context.Context, email string, d time.Duration) error
	CooldownRemaining(ctx context.Context, email string) (time.Duration, error)
}

// RedisStore keeps verification state in Redis. Cooldowns are plain keys
// whose TTL is the remaining wait.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed state store.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{redis: client, ttl: defaultStateTTL}
}

func (s *RedisStore) Get(ctx context.Context, email string) (Record, error) {
	raw, err := s.redis.Get(ctx, stateKeyPrefix+email).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{State: StateUnsent}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("verification: get state: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("verification: decode state: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) Put(ctx context.Context, email string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("verification: encode state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKeyPrefix+email, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("verification: put state: %w", err)
	}
	return nil
}

func (s *RedisStore) StartCooldown(ctx context.Context, email string, d time.Duration) error {
	if err := s.redis.Set(ctx, cooldownKeyPrefix+email, "1", d).Err(); err != nil {
		return fmt.Errorf("verification: start cooldown: %w", err)
	}
	return nil
}

func (s *RedisStore) CooldownRemaining(ctx context.Context, email string) (time.Duration, error) {
	ttl, err := s.redis.PTTL(ctx, cooldownKeyPrefix+email).Result()
	if err != nil {
		return 0, fmt.Errorf("verification: read cooldown: %w", err)
	}
	// -2 (missing) and -1 (no expiry) both mean no active cooldown.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// MemoryStore is an in-process StateStore for tests and local development.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]Record
	cooldowns map[string]time.Time
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]Record),
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
}

// WithClock overrides the clock used for cooldown expiry.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(_ context.Context, email string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[email]
	if !ok {
		return Record{State: StateUnsent}, nil
	}
	return rec, nil
}

func (s *MemoryStore) Put(_ context.Context, email string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[email] = rec
	return nil
}

func (s *MemoryStore) StartCooldown(_ context.Context, email string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[email] = s.now().Add(d)
	return nil
}

func (s *MemoryStore) CooldownRemaining(_ context.Context, email string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.cooldowns[email]
	if !ok {
		return 0, nil
	}
	remaining := until.Sub(s.now())
	if remaining <= 0 {
		delete(s.cooldowns, email)
		return 0, nil
	}
	return remaining, nil
}

var (
	_ StateStore = (*RedisStore)(nil)
	_ StateStore = (*MemoryStore)(nil)
)
