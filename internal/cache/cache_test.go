package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token_chat/internal/models"
)

func TestNopCacheAlwaysMisses(t *testing.T) {
	c := NewNopCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &models.PriceUpdate{TokenAddress: "TKN1", Price: 1}))
	_, err := c.Get(ctx, "TKN1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, c.Close())
}

func TestRedisKeyUsesPrefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	c := newRedisPriceCache(client, "", time.Minute)
	assert.Equal(t, "price:TKN1", c.key("TKN1"))

	c = newRedisPriceCache(client, "tc:price", time.Minute)
	assert.Equal(t, "tc:price:So11111111111111111111111111111111111111112", c.key("So11111111111111111111111111111111111111112"))
}

func TestRedisCacheUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	c := newRedisPriceCache(client, "price", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Get(ctx, "TKN1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
