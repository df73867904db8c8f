package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

const (
	snapshotPrefix = "pumpcurve:snapshot:"
	pricePrefix    = "pumpcurve:prices:"
)

// PricePoint is a derived spot price at a moment in time.
type PricePoint struct {
	At    time.Time
	Price float64
}

// RedisStore shares snapshots between processes and keeps derived price
// history per token in a sorted set.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger.Named("redis-store")}, nil
}

// Load returns a shared snapshot. Redis failures are logged and reported as a miss.
func (r *RedisStore) Load(ctx context.Context, tokenID string) (curve.ReserveState, bool) {
	val, err := r.client.Get(ctx, snapshotPrefix+tokenID).Result()
	if err == redis.Nil {
		return curve.ReserveState{}, false
	}
	if err != nil {
		r.logger.Warn("Failed to load snapshot", zap.String("token", tokenID), zap.Error(err))
		return curve.ReserveState{}, false
	}

	var state curve.ReserveState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		r.logger.Warn("Corrupt snapshot", zap.String("token", tokenID), zap.Error(err))
		return curve.ReserveState{}, false
	}
	return state, true
}

// Store writes a snapshot with the configured ttl.
func (r *RedisStore) Store(ctx context.Context, tokenID string, state curve.ReserveState) {
	b, err := json.Marshal(state)
	if err != nil {
		r.logger.Warn("Failed to marshal snapshot", zap.String("token", tokenID), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, snapshotPrefix+tokenID, b, r.ttl).Err(); err != nil {
		r.logger.Warn("Failed to store snapshot", zap.String("token", tokenID), zap.Error(err))
	}
}

// RecordPrice appends a spot price to the token's history.
func (r *RedisStore) RecordPrice(ctx context.Context, tokenID string, at time.Time, price float64) error {
	member := strconv.FormatInt(at.UnixNano(), 10) + ":" + strconv.FormatFloat(price, 'g', -1, 64)
	err := r.client.ZAdd(ctx, pricePrefix+tokenID, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: member,
	}).Err()
	if err != nil {
		return fmt.Errorf("record price: %w", err)
	}
	return nil
}

// PriceHistory returns the prices recorded at or after since, oldest first.
func (r *RedisStore) PriceHistory(ctx context.Context, tokenID string, since time.Time) ([]PricePoint, error) {
	members, err := r.client.ZRangeByScore(ctx, pricePrefix+tokenID, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}

	points := make([]PricePoint, 0, len(members))
	for _, m := range members {
		p, err := parsePricePoint(m)
		if err != nil {
			r.logger.Debug("Skipping malformed price point", zap.String("member", m), zap.Error(err))
			continue
		}
		points = append(points, p)
	}
	return points, nil
}

// TrimPriceHistory drops prices recorded before cutoff.
func (r *RedisStore) TrimPriceHistory(ctx context.Context, tokenID string, cutoff time.Time) error {
	err := r.client.ZRemRangeByScore(ctx, pricePrefix+tokenID,
		"-inf", "("+strconv.FormatInt(cutoff.UnixMilli(), 10)).Err()
	if err != nil {
		return fmt.Errorf("trim price history: %w", err)
	}
	return nil
}

func parsePricePoint(member string) (PricePoint, error) {
	ts, value, ok := strings.Cut(member, ":")
	if !ok {
		return PricePoint{}, fmt.Errorf("missing separator")
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return PricePoint{}, err
	}
	price, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return PricePoint{}, err
	}
	return PricePoint{At: time.Unix(0, nanos), Price: price}, nil
}
