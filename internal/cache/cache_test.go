package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryIdempotencyGuardLifecycle(t *testing.T) {
	g := NewMemoryIdempotencyGuard()
	ctx := context.Background()

	_, reserved, err := g.Reserve(ctx, "k1", time.Minute)
	if err != nil || !reserved {
		t.Fatalf("expected first reserve to succeed, got reserved=%v err=%v", reserved, err)
	}

	if _, _, err := g.Reserve(ctx, "k1", time.Minute); !errors.Is(err, ErrPending) {
		t.Fatalf("expected pending, got %v", err)
	}

	if err := g.Complete(ctx, "k1", "pur-1", time.Minute); err != nil {
		t.Fatalf("complete: %v", err)
	}
	ref, reserved, err := g.Reserve(ctx, "k1", time.Minute)
	if err != nil || reserved || ref != "pur-1" {
		t.Fatalf("expected replay of pur-1, got ref=%q reserved=%v err=%v", ref, reserved, err)
	}
}

func TestMemoryIdempotencyGuardReleaseAndExpiry(t *testing.T) {
	g := NewMemoryIdempotencyGuard()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	if _, reserved, _ := g.Reserve(ctx, "k2", time.Minute); !reserved {
		t.Fatalf("expected reserve")
	}
	if err := g.Release(ctx, "k2"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, reserved, _ := g.Reserve(ctx, "k2", time.Minute); !reserved {
		t.Fatalf("expected reserve after release")
	}

	_ = g.Complete(ctx, "k2", "sale-1", time.Minute)
	now = now.Add(2 * time.Minute)
	if _, reserved, err := g.Reserve(ctx, "k2", time.Minute); err != nil || !reserved {
		t.Fatalf("expected expired key to be reservable, got reserved=%v err=%v", reserved, err)
	}
}

func TestMemoryIdempotencyGuardPendingClaimUsesShortTTL(t *testing.T) {
	g := NewMemoryIdempotencyGuard()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	if _, reserved, _ := g.Reserve(ctx, "crashed", 30*time.Second); !reserved {
		t.Fatalf("expected reserve")
	}
	now = now.Add(31 * time.Second)
	if _, reserved, err := g.Reserve(ctx, "crashed", 30*time.Second); err != nil || !reserved {
		t.Fatalf("expected abandoned claim to lapse after the pending ttl, got reserved=%v err=%v", reserved, err)
	}

	if err := g.Complete(ctx, "crashed", "dep-1", 24*time.Hour); err != nil {
		t.Fatalf("complete: %v", err)
	}
	now = now.Add(time.Hour)
	ref, reserved, err := g.Reserve(ctx, "crashed", 30*time.Second)
	if err != nil || reserved || ref != "dep-1" {
		t.Fatalf("expected completed key to replay for the long ttl, got ref=%q reserved=%v err=%v", ref, reserved, err)
	}
}
