package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "badgerland:"

type CacheService interface {
	// JSON values
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// Webhook deduplication
	MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error

	Ping(ctx context.Context) error
}

type redisCacheService struct {
	client redis.UniversalClient
}

// NewRedisClient accepts either host:port or a redis:// / rediss:// URL.
func NewRedisClient(addr, password string, db int, logger *zap.Logger) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if password != "" {
			parsed.Password = password
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis ping failed on initialization", zap.String("addr", opts.Addr), zap.Error(err))
	} else {
		logger.Debug("redis connection established", zap.String("addr", opts.Addr))
	}
	return client, nil
}

func NewRedisCacheService(client redis.UniversalClient) CacheService {
	return &redisCacheService{client: client}
}

func key(parts ...string) string {
	return keyPrefix + strings.Join(parts, ":")
}

// GetJSON decodes the cached value into dest. A miss returns false and no error.
func (r *redisCacheService) GetJSON(ctx context.Context, k string, dest any) (bool, error) {
	data, err := r.client.Get(ctx, key("json", k)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", k, err)
	}
	return true, nil
}

func (r *redisCacheService) SetJSON(ctx context.Context, k string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key("json", k), data, ttl).Err()
}

func (r *redisCacheService) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = key("json", k)
	}
	return r.client.Del(ctx, full...).Err()
}

// MarkEventProcessed claims a webhook event id. It returns false when the
// event was already claimed within ttl.
func (r *redisCacheService) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key("stripe-event", eventID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return ok, nil
}

// ReleaseEvent drops a claim so Stripe's retry of a failed event is processed.
func (r *redisCacheService) ReleaseEvent(ctx context.Context, eventID string) error {
	return r.client.Del(ctx, key("stripe-event", eventID)).Err()
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
