package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"stockcaisse/backend/internal/domain"
)

const (
	idempotencyPrefix = "stockcaisse:idem:"
	pendingMarker     = "pending"
	donePrefix        = "done:"
)

// Redis backs both the restock report cache and the idempotency guard so
// that several API instances share them.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr string, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Redis{client: client}
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}

func (c *Redis) Get(ctx context.Context, key string) (*domain.RestockReport, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.RestockReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value *domain.RestockReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

// Reserve writes a pending marker that expires after pendingTTL. Complete
// overwrites it with the result and the long replay TTL.
func (c *Redis) Reserve(ctx context.Context, key string, pendingTTL time.Duration) (string, bool, error) {
	redisKey := idempotencyPrefix + key
	ok, err := c.client.SetNX(ctx, redisKey, pendingMarker, pendingTTL).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}

	val, err := c.client.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		// Expired between SETNX and GET; the caller may retry.
		return "", false, ErrPending
	}
	if err != nil {
		return "", false, err
	}
	if ref, done := strings.CutPrefix(val, donePrefix); done {
		return ref, false, nil
	}
	return "", false, ErrPending
}

func (c *Redis) Complete(ctx context.Context, key string, ref string, ttl time.Duration) error {
	return c.client.Set(ctx, idempotencyPrefix+key, donePrefix+ref, ttl).Err()
}

func (c *Redis) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, idempotencyPrefix+key).Err()
}

var (
	_ RestockCache     = (*Redis)(nil)
	_ IdempotencyGuard = (*Redis)(nil)
)
