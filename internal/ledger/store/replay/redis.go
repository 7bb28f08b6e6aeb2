package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "copyright/pkg/domain"
)

// Redis key prefix for claimed transaction IDs
const claimKeyPrefix = "ledger:tx:"

// RedisGuard shares claimed transaction IDs between ledger instances.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisOption func(*RedisGuard)

func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(g *RedisGuard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisGuard {
	g := &RedisGuard{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Claim uses SET NX with expiry so exactly one instance wins a given ID.
func (g *RedisGuard) Claim(ctx context.Context, txID id.TransactionID) (bool, error) {
	ok, err := g.client.SetNX(ctx, claimKeyPrefix+string(txID), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim transaction %s: %w", txID, err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, txID id.TransactionID) error {
	if err := g.client.Del(ctx, claimKeyPrefix+string(txID)).Err(); err != nil {
		return fmt.Errorf("release transaction %s: %w", txID, err)
	}
	return nil
}
