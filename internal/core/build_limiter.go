package core

// build_limiter.go implements concurrency control for builds started by the
// HTTP server.
//
// A weighted semaphore restricts parallel builds to a configurable maximum.
// When all slots are occupied, new requests wait up to maxWait before failing
// with ErrTooManyBuilds. Builds that write the same staging tree and output
// archive are additionally serialized through per-key locks.
//
// The limiter also supports graceful shutdown via WaitForDrain, which blocks
// until all active builds complete.

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyBuilds is returned when all build slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyBuilds = errors.New("too many concurrent builds, please try again later")

// DefaultMaxConcurrentBuilds is the default limit for parallel builds.
const DefaultMaxConcurrentBuilds = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// BuildLimiter controls concurrent build processing.
type BuildLimiter struct {
	sem     *semaphore.Weighted
	max     int
	maxWait time.Duration

	mu     sync.Mutex
	active int
	keys   map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewBuildLimiter creates a limiter that allows at most maxConcurrent
// simultaneous builds. Requests that cannot acquire a slot within maxWait
// receive ErrTooManyBuilds.
func NewBuildLimiter(maxConcurrent int, maxWait time.Duration) *BuildLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentBuilds
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &BuildLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     maxConcurrent,
		maxWait: maxWait,
		keys:    make(map[string]*keyLock),
	}
}

// Acquire attempts to acquire a build slot.
// Returns nil on success, ErrTooManyBuilds if the wait expires.
// The caller MUST call Release() when the build completes (use defer).
func (l *BuildLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		// Caller cancellation wins over our own timeout
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyBuilds
	}

	l.mu.Lock()
	l.active++
	l.mu.Unlock()
	return nil
}

// TryAcquire attempts to acquire a slot without blocking.
func (l *BuildLimiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.mu.Lock()
	l.active++
	l.mu.Unlock()
	return true
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire/TryAcquire.
func (l *BuildLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	l.sem.Release(1)
}

// LockKey blocks until no other holder owns key, then returns the function
// that releases it.
func (l *BuildLimiter) LockKey(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.keys[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.keys[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.dropKey(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.dropKey(key, kl)
		})
	}, nil
}

func (l *BuildLimiter) dropKey(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.keys, key)
	}
}

// ActiveCount returns the number of currently active builds.
func (l *BuildLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// MaxConcurrent returns the maximum allowed concurrent builds.
func (l *BuildLimiter) MaxConcurrent() int {
	return l.max
}

// WaitForDrain blocks until all active builds complete or ctx is cancelled.
func (l *BuildLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// BuildLimiterStatus is a snapshot of the limiter's state.
type BuildLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *BuildLimiter) Status() BuildLimiterStatus {
	active := l.ActiveCount()
	return BuildLimiterStatus{
		Active:        active,
		Available:     l.max - active,
		MaxConcurrent: l.max,
	}
}
