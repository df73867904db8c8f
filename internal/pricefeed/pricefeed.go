// Package pricefeed supplies the unit price of the base asset to the
// graduation check.
package pricefeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// ErrNoPrice is returned when no price has been published.
var ErrNoPrice = errors.New("no price published")

// DefaultRedisKey is where an external feeder publishes the SOL price.
const DefaultRedisKey = "pumpcurve:price:sol_usd"

// Static returns a fixed configured price.
type Static struct {
	Price decimal.Decimal
}

func (s Static) CurrentUnitPrice(context.Context) (decimal.Decimal, error) {
	if !s.Price.IsPositive() {
		return decimal.Zero, ErrNoPrice
	}
	return s.Price, nil
}

// Redis reads a decimal price string from a key.
type Redis struct {
	client redis.Cmdable
	key    string
}

func NewRedis(client redis.Cmdable, key string) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}, nil
}

func (r *Redis) CurrentUnitPrice(ctx context.Context) (decimal.Decimal, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return decimal.Zero, fmt.Errorf("%w: key %s", ErrNoPrice, r.key)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get price: %w", err)
	}

	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", val, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s", ErrNoPrice, price)
	}
	return price, nil
}

// Publish writes a price for Redis readers.
func (r *Redis) Publish(ctx context.Context, price decimal.Decimal) error {
	if err := r.client.Set(ctx, r.key, price.String(), 0).Err(); err != nil {
		return fmt.Errorf("publish price: %w", err)
	}
	return nil
}
