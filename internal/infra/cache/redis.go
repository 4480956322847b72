package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/astro-web3/function-gateway/internal/domain/gateway"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "gateway:claims:"

type claimsCache struct {
	client redis.Cmdable
}

func NewRedisClient(ctx context.Context, url string, poolSize int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if poolSize > 0 {
		opt.PoolSize = poolSize
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func NewClaimsCache(client redis.Cmdable) gateway.ClaimsCache {
	return &claimsCache{client: client}
}

func (r *claimsCache) Get(ctx context.Context, tokenHash string) (gateway.Claims, error) {
	val, err := r.client.Get(ctx, keyPrefix+tokenHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var claims gateway.Claims
	if err := json.Unmarshal(val, &claims); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached claims: %w", err)
	}

	return claims, nil
}

func (r *claimsCache) Set(ctx context.Context, tokenHash string, claims gateway.Claims, ttl time.Duration) error {
	data, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("failed to marshal claims: %w", err)
	}

	if err := r.client.Set(ctx, keyPrefix+tokenHash, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set redis cache: %w", err)
	}

	return nil
}
