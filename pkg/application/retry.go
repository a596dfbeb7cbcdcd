package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/WangYihang/crcns-mirror/pkg/domain/entity"
)

// LockPolicy bounds how long the reconciler waits for a contended lock.
// Attempt i (zero based) sleeps (i+1)*Backoff before retrying.
type LockPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultLockPolicy retries 3 times with 100/200/300 ms backoff
var DefaultLockPolicy = LockPolicy{MaxAttempts: 3, Backoff: 100 * time.Millisecond}

// lockWithRetry takes mu or gives up with entity.ErrLockContended
func lockWithRetry(ctx context.Context, mu *sync.Mutex, policy LockPolicy, what string) error {
	attempts := max(policy.MaxAttempts, 1)
	for i := range attempts {
		if mu.TryLock() {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if err := sleepCtx(ctx, time.Duration(i+1)*policy.Backoff); err != nil {
			return fmt.Errorf("lock %s: %w", what, err)
		}
	}
	return fmt.Errorf("lock %s after %d attempts: %w", what, attempts, entity.ErrLockContended)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
