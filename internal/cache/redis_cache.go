package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"token_chat/internal/models"
	"token_chat/pkg/config"
)

type RedisPriceCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisPriceCache(cfg config.RedisConfig) (*RedisPriceCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisPriceCache(client, cfg.Prefix, cfg.TTL), nil
}

func newRedisPriceCache(client *redis.Client, prefix string, ttl time.Duration) *RedisPriceCache {
	if prefix == "" {
		prefix = "price"
	}
	return &RedisPriceCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisPriceCache) key(tokenAddress string) string {
	return fmt.Sprintf("%s:%s", c.prefix, tokenAddress)
}

func (c *RedisPriceCache) Get(ctx context.Context, tokenAddress string) (*models.PriceUpdate, error) {
	data, err := c.client.Get(ctx, c.key(tokenAddress)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var update models.PriceUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached price: %w", err)
	}
	return &update, nil
}

func (c *RedisPriceCache) Set(ctx context.Context, update *models.PriceUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal price: %w", err)
	}

	if err := c.client.Set(ctx, c.key(update.TokenAddress), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisPriceCache) Close() error {
	return c.client.Close()
}
