package pricefeed

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	price, err := Static{Price: decimal.RequireFromString("152.37")}.CurrentUnitPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "152.37", price.String())

	_, err = Static{}.CurrentUnitPrice(context.Background())
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestRedisFeed(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	feed, err := NewRedis(client, "pumpcurve:test:price")
	require.NoError(t, err)
	require.NoError(t, client.Del(ctx, "pumpcurve:test:price").Err())

	_, err = feed.CurrentUnitPrice(ctx)
	assert.ErrorIs(t, err, ErrNoPrice)

	require.NoError(t, feed.Publish(ctx, decimal.RequireFromString("149.5")))
	price, err := feed.CurrentUnitPrice(ctx)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("149.5")))

	require.NoError(t, client.Set(ctx, "pumpcurve:test:price", "abc", 0).Err())
	_, err = feed.CurrentUnitPrice(ctx)
	assert.Error(t, err)
}

func TestNewRedisNilClient(t *testing.T) {
	_, err := NewRedis(nil, "")
	assert.Error(t, err)
}
