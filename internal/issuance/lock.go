package issuance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"certificate-workers/internal/common/database"

	"github.com/google/uuid"
)

// SignerLock serializes ledger mutations per signing identity. Acquire
// blocks until the identity is free or ctx is done. The returned release
// func is safe to call more than once.
type SignerLock interface {
	Acquire(ctx context.Context, identity string) (release func(), err error)
}

// LocalLock is a SignerLock for a single process.
type LocalLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLock() *LocalLock {
	return &LocalLock{slots: make(map[string]chan struct{})}
}

func (l *LocalLock) slot(identity string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[identity]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[identity] = s
	}
	return s
}

func (l *LocalLock) Acquire(ctx context.Context, identity string) (func(), error) {
	s := l.slot(identity)
	select {
	case s <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-s }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RedisLock is a SignerLock shared by every worker process pointing at the
// same Redis. Ownership is a random token so an expired holder cannot
// release a lock someone else now holds.
type RedisLock struct {
	client *database.RedisClient
	ttl    time.Duration
	poll   time.Duration
}

func NewRedisLock(client *database.RedisClient, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, ttl: ttl, poll: 50 * time.Millisecond}
}

func lockKey(identity string) string {
	return "certificate:signer-lock:" + identity
}

func (l *RedisLock) Acquire(ctx context.Context, identity string) (func(), error) {
	key := lockKey(identity)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire signer lock %s: %w", identity, err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_, _ = l.client.CompareAndDelete(rctx, key, token)
				})
			}, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
