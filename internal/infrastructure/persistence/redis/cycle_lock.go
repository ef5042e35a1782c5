package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teamvidya/risk-hub/internal/domain/shared"
	"github.com/teamvidya/risk-hub/pkg/retry"
)

// CycleLockResource names the lock held during a recomputation cycle.
const CycleLockResource = "recompute-cycle"

// CycleLock is a distributed lock built on SET NX PX. Each holder writes a
// random token and releases only while the key still holds it, so a holder
// whose TTL expired cannot release somebody else's lock.
type CycleLock struct {
	cache   *Cache
	key     string
	ttl     time.Duration
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewCycleLock creates a lock that polls up to attempts times, interval apart.
func NewCycleLock(cache *Cache, ttl time.Duration, attempts int, interval time.Duration, logger *slog.Logger) *CycleLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &CycleLock{
		cache:   cache,
		key:     LockKey(CycleLockResource),
		ttl:     ttl,
		retrier: retry.LockRetrier(attempts, interval),
		logger:  logger.With("component", "cycle_lock"),
	}
}

// Acquire implements command.CycleLock. It returns shared.ErrCycleInProgress
// when the lock is still held after the last attempt.
func (l *CycleLock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	err := l.retrier.Do(ctx, func(ctx context.Context) error {
		ok, err := l.cache.SetNX(ctx, l.key, token, l.ttl)
		if err != nil {
			return shared.SourceUnavailable("lock", "Acquire", err)
		}
		if !ok {
			return retry.Retryable(shared.ErrCycleInProgress)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("acquire cycle lock: %w", err)
	}

	return func() { l.release(token) }, nil
}

func (l *CycleLock) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	released, err := l.cache.CompareAndDelete(ctx, l.key, token)
	if err != nil {
		l.logger.Error("failed to release cycle lock", "error", err)
		return
	}
	if !released {
		l.logger.Warn("cycle lock expired before release", "ttl", l.ttl)
	}
}
