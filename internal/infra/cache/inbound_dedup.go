package cache

import (
	"context"
	"fmt"
	"time"

	"shift_sms_gateway/internal/infra/config"

	"github.com/redis/go-redis/v9"
)

const inboundKeyPrefix = "sms:inbound:"

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// InboundDedup remembers carrier message ids so webhook retries are processed once.
type InboundDedup struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewInboundDedup(rdb *redis.Client, ttl time.Duration) *InboundDedup {
	return &InboundDedup{rdb: rdb, ttl: ttl}
}

// FirstSeen claims messageID and reports whether this call was the first to do so.
func (d *InboundDedup) FirstSeen(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	ok, err := d.rdb.SetNX(ctx, inboundKeyPrefix+messageID, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim inbound message %s: %w", messageID, err)
	}
	return ok, nil
}
