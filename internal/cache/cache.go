package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"stockcaisse/backend/internal/domain"
)

// ErrPending is returned by Reserve while another request still holds the key.
var ErrPending = errors.New("idempotency key is still being processed")

type RestockCache interface {
	Get(ctx context.Context, key string) (*domain.RestockReport, bool, error)
	Set(ctx context.Context, key string, value *domain.RestockReport, ttl time.Duration) error
}

type NoopRestockCache struct{}

func (NoopRestockCache) Get(_ context.Context, _ string) (*domain.RestockReport, bool, error) {
	return nil, false, nil
}

func (NoopRestockCache) Set(_ context.Context, _ string, _ *domain.RestockReport, _ time.Duration) error {
	return nil
}

// IdempotencyGuard remembers which client-supplied keys already produced a
// committed operation.
type IdempotencyGuard interface {
	// Reserve claims key for a new operation; the claim lapses after
	// pendingTTL unless Complete replaces it. If the key already completed,
	// reserved is false and ref names the record it produced.
	Reserve(ctx context.Context, key string, pendingTTL time.Duration) (ref string, reserved bool, err error)
	// Complete records ref under key for ttl, the replay window.
	Complete(ctx context.Context, key string, ref string, ttl time.Duration) error
	// Release drops a reservation whose operation failed so it can be retried.
	Release(ctx context.Context, key string) error
}

type NoopIdempotencyGuard struct{}

func (NoopIdempotencyGuard) Reserve(_ context.Context, _ string, _ time.Duration) (string, bool, error) {
	return "", true, nil
}

func (NoopIdempotencyGuard) Complete(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}

func (NoopIdempotencyGuard) Release(_ context.Context, _ string) error {
	return nil
}

type idempotencyEntry struct {
	ref       string
	done      bool
	expiresAt time.Time
}

// MemoryIdempotencyGuard is the single-process guard used when Redis is
// not configured.
type MemoryIdempotencyGuard struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	now     func() time.Time
}

func NewMemoryIdempotencyGuard() *MemoryIdempotencyGuard {
	return &MemoryIdempotencyGuard{
		entries: make(map[string]idempotencyEntry),
		now:     time.Now,
	}
}

func (g *MemoryIdempotencyGuard) Reserve(_ context.Context, key string, pendingTTL time.Duration) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if entry, ok := g.entries[key]; ok && now.Before(entry.expiresAt) {
		if !entry.done {
			return "", false, ErrPending
		}
		return entry.ref, false, nil
	}
	g.entries[key] = idempotencyEntry{expiresAt: now.Add(pendingTTL)}
	g.sweep(now)
	return "", true, nil
}

func (g *MemoryIdempotencyGuard) Complete(_ context.Context, key string, ref string, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries[key] = idempotencyEntry{ref: ref, done: true, expiresAt: g.now().Add(ttl)}
	return nil
}

func (g *MemoryIdempotencyGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.entries, key)
	return nil
}

func (g *MemoryIdempotencyGuard) sweep(now time.Time) {
	if len(g.entries) < 1024 {
		return
	}
	for key, entry := range g.entries {
		if !now.Before(entry.expiresAt) {
			delete(g.entries, key)
		}
	}
}
