package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/pim-sync/pkg/pipeline"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLocked indicates another run holds the lock for the source
	ErrLocked = errors.New("import already running for this source")

	// ErrNoReport indicates no report is stored for the source
	ErrNoReport = errors.New("no stored report")

	// ErrInvalidEntry indicates the stored report is corrupted
	ErrInvalidEntry = errors.New("invalid stored report")

	// ErrLockLost indicates the lock expired or was taken over before release
	ErrLockLost = errors.New("run lock no longer held")
)

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only if it still carries our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Config holds the run store settings.
type Config struct {
	// LockTTL bounds how long a crashed run blocks its source.
	LockTTL time.Duration

	// ReportTTL is how long the last report is kept.
	ReportTTL time.Duration
}

// DefaultConfig returns the default run store settings.
func DefaultConfig() Config {
	return Config{
		LockTTL:   2 * time.Hour,
		ReportTTL: 30 * 24 * time.Hour,
	}
}

// Store handles run locks and reports with a Redis backend.
type Store struct {
	redis  *redis.Client
	config Config
}

// NewStore creates a run store.
func NewStore(redisClient *redis.Client, cfg Config) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultConfig().LockTTL
	}
	if cfg.ReportTTL <= 0 {
		cfg.ReportTTL = DefaultConfig().ReportTTL
	}
	return &Store{
		redis:  redisClient,
		config: cfg,
	}
}

// Lock is a held run lock.
type Lock struct {
	store *Store
	key   string
	token string
}

// Acquire takes the run lock for key with SET NX PX.
// Returns ErrLocked if another run holds it.
func (s *Store) Acquire(ctx context.Context, key RunKey) (*Lock, error) {
	lock := &Lock{
		store: s,
		key:   key.lockKey(),
		token: uuid.NewString(),
	}

	ok, err := s.redis.SetNX(ctx, lock.key, lock.token, s.config.LockTTL).Result()
	if err != nil {
		StoreErrors.WithLabelValues("lock").Inc()
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		LockAttempts.WithLabelValues("locked").Inc()
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}

	LockAttempts.WithLabelValues("acquired").Inc()
	return lock, nil
}

// Release frees the lock if it is still ours.
// Returns ErrLockLost if it expired or was taken over in the meantime.
func (l *Lock) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.store.redis, []string{l.key}, l.token).Int()
	if err != nil {
		StoreErrors.WithLabelValues("unlock").Inc()
		return fmt.Errorf("redis release: %w", err)
	}
	if deleted == 0 {
		return ErrLockLost
	}
	return nil
}

// Refresh resets the lock's expiry to a full LockTTL.
// Returns ErrLockLost if it expired or was taken over in the meantime.
func (l *Lock) Refresh(ctx context.Context) error {
	ttl := l.store.config.LockTTL.Milliseconds()
	extended, err := refreshScript.Run(ctx, l.store.redis, []string{l.key}, l.token, ttl).Int()
	if err != nil {
		StoreErrors.WithLabelValues("refresh").Inc()
		return fmt.Errorf("redis refresh: %w", err)
	}
	if extended == 0 {
		return ErrLockLost
	}
	return nil
}

// KeepAlive refreshes the lock every LockTTL/3 until ctx is done or the
// returned stop function is called. onLost is called once if the lock is
// lost; refreshing ends there. Transient refresh errors are retried on the
// next tick. stop waits for the refresher to exit.
func (l *Lock) KeepAlive(ctx context.Context, onLost func(error)) (stop func()) {
	interval := l.store.config.LockTTL / 3
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			err := l.Refresh(ctx)
			switch {
			case err == nil:
				LockAttempts.WithLabelValues("refreshed").Inc()
			case errors.Is(err, ErrLockLost):
				LockAttempts.WithLabelValues("lost").Inc()
				if onLost != nil {
					onLost(err)
				}
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}

// SaveReport stores report as the last report of key.
func (s *Store) SaveReport(ctx context.Context, key RunKey, report *pipeline.Report) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	now := time.Now()
	entry := StoredReport{
		Key:      key.String(),
		Report:   report,
		StoredAt: now,
		Expires:  now.Add(s.config.ReportTTL),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		StoreErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := s.redis.Set(ctx, key.reportKey(), data, entry.TTL()).Err(); err != nil {
		StoreErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// LastReport returns the last stored report of key.
// Returns ErrNoReport if there is none.
func (s *Store) LastReport(ctx context.Context, key RunKey) (*StoredReport, error) {
	data, err := s.redis.Get(ctx, key.reportKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			ReportReads.WithLabelValues("miss").Inc()
			return nil, ErrNoReport
		}
		StoreErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry StoredReport
	if err := json.Unmarshal(data, &entry); err != nil {
		StoreErrors.WithLabelValues("load").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.Report == nil {
		return nil, ErrInvalidEntry
	}
	if entry.IsExpired() {
		ReportReads.WithLabelValues("miss").Inc()
		return nil, ErrNoReport
	}

	ReportReads.WithLabelValues("hit").Inc()
	return &entry, nil
}
