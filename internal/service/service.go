package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"stockcaisse/backend/internal/cache"
	"stockcaisse/backend/internal/domain"
	"stockcaisse/backend/internal/ledger"
	"stockcaisse/backend/internal/replenishment"
	"stockcaisse/backend/internal/store"
	"stockcaisse/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	// DefaultFundingMode applies to purchases that do not name one.
	DefaultFundingMode domain.FundingMode
	// IdempotencyTTL is how long a completed key replays its result.
	IdempotencyTTL time.Duration
	// PendingTTL bounds a claim whose operation never finished, so a crash
	// mid-request frees the key quickly.
	PendingTTL time.Duration
}

const defaultPendingTTL = 30 * time.Second

type Service struct {
	repo           store.Repository
	ledger         *ledger.Coordinator
	advisor        *replenishment.Advisor
	idempotency    cache.IdempotencyGuard
	defaultFunding domain.FundingMode
	idempotencyTTL time.Duration
	pendingTTL     time.Duration
}

func New(repo store.Repository, advisor *replenishment.Advisor, guard cache.IdempotencyGuard, opts Options) *Service {
	if advisor == nil {
		advisor = replenishment.NewAdvisor(nil, 0)
	}
	if guard == nil {
		guard = cache.NoopIdempotencyGuard{}
	}
	if !opts.DefaultFundingMode.Valid() {
		opts.DefaultFundingMode = domain.FundingCashRegister
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = defaultPendingTTL
	}

	return &Service{
		repo:           repo,
		ledger:         ledger.NewCoordinator(repo),
		advisor:        advisor,
		idempotency:    guard,
		defaultFunding: opts.DefaultFundingMode,
		idempotencyTTL: opts.IdempotencyTTL,
		pendingTTL:     opts.PendingTTL,
	}
}

// once runs op at most once per idempotency key within the TTL. The key is
// held for pendingTTL while op runs and for idempotencyTTL once it commits.
// A replayed key returns the id the first run produced and replayed=true. An empty key
// always runs op.
func (s *Service) once(ctx context.Context, scope string, key string, op func() (string, error)) (id string, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		id, err = op()
		return id, false, err
	}

	full := scope + ":" + key
	ref, reserved, err := s.idempotency.Reserve(ctx, full, s.pendingTTL)
	switch {
	case errors.Is(err, cache.ErrPending):
		return "", false, fmt.Errorf("%w: idempotency key %q is still being processed", store.ErrConsistencyConflict, key)
	case err != nil:
		log.Printf("[service] WARN: idempotency reserve failed key=%s: %v", full, err)
		reserved = true
	case !reserved:
		return ref, true, nil
	}

	id, err = op()
	if err != nil {
		if releaseErr := s.idempotency.Release(ctx, full); releaseErr != nil {
			log.Printf("[service] WARN: idempotency release failed key=%s: %v", full, releaseErr)
		}
		return "", false, err
	}
	if err := s.idempotency.Complete(ctx, full, id, s.idempotencyTTL); err != nil {
		log.Printf("[service] WARN: idempotency complete failed key=%s: %v", full, err)
	}
	return id, false, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.Invalid("date", "expected YYYY-MM-DD")
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

func requireAdmin(ctx context.Context, field string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return &store.ForbiddenError{Field: field, Reason: "admin role required"}
	}
	return nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func timeOr(value *time.Time, fallback time.Time) time.Time {
	if value == nil || value.IsZero() {
		return fallback
	}
	return value.UTC()
}
