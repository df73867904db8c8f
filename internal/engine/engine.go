// Package engine wires configuration, the reserve oracle, caches, price feeds,
// the settlement coordinator and the trade journal into one runnable unit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpcurve/internal/blockchain/solbc"
	"github.com/rovshanmuradov/pumpcurve/internal/cache"
	"github.com/rovshanmuradov/pumpcurve/internal/config"
	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/journal"
	"github.com/rovshanmuradov/pumpcurve/internal/ledger"
	"github.com/rovshanmuradov/pumpcurve/internal/pricefeed"
	"github.com/rovshanmuradov/pumpcurve/internal/settlement"
)

// batchOracle reads several curves in one round trip.
type batchOracle interface {
	FetchReserveStates(ctx context.Context, tokenIDs []string) (map[string]curve.ReserveState, error)
}

// Engine is the assembled settlement stack.
type Engine struct {
	cfg         *config.Config
	opts        settlement.Options
	logger      *zap.Logger
	oracle      settlement.ReserveOracle
	chain       *ledger.SolanaOracle
	snapshots   *cache.Snapshots
	history     *cache.RedisStore
	feed        settlement.PriceFeed
	registry    *prometheus.Registry
	metrics     *settlement.Metrics
	coordinator *settlement.Coordinator
	journal     *journal.Journal
	closers     *Closers
	newBackOff  func() backoff.BackOff
	setupErr    error
}

var _ settlement.FetchingCache = (*cache.Snapshots)(nil)

// Option customises an Engine.
type Option func(*Engine)

// WithOracle replaces the Solana RPC oracle, e.g. with a ledger.Memory.
func WithOracle(oracle settlement.ReserveOracle) Option {
	return func(e *Engine) { e.oracle = oracle }
}

// WithPriceFeed replaces the feed chosen from configuration.
func WithPriceFeed(feed settlement.PriceFeed) Option {
	return func(e *Engine) { e.feed = feed }
}

// WithRedis uses an existing Redis client instead of dialing redis_addr.
// The engine does not close it. New fails if the client is unusable.
func WithRedis(client redis.Cmdable) Option {
	return func(e *Engine) {
		history, err := cache.NewRedisStore(client, e.cfg.CacheTTL, e.logger)
		if err != nil {
			e.setupErr = errors.Join(e.setupErr, fmt.Errorf("redis history: %w", err))
			return
		}
		e.history = history
		if e.feed != nil {
			return
		}
		feed, err := pricefeed.NewRedis(client, pricefeed.DefaultRedisKey)
		if err != nil {
			e.setupErr = errors.Join(e.setupErr, fmt.Errorf("redis price feed: %w", err))
			return
		}
		e.feed = feed
	}
}

// WithBackOff sets the retry policy used by Settle.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(e *Engine) { e.newBackOff = newBackOff }
}

// New assembles an engine from cfg.
func New(cfg *config.Config, logger *zap.Logger, options ...Option) (*Engine, error) {
	e := &Engine{
		cfg:      cfg,
		opts:     cfg.SettlementOptions(),
		logger:   logger.Named("engine"),
		registry: prometheus.NewRegistry(),
		closers:  newClosers(logger.Named("shutdown")),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	if price, ok := cfg.StaticPrice(); ok {
		e.feed = pricefeed.Static{Price: price}
	}
	for _, opt := range options {
		opt(e)
	}
	if e.setupErr != nil {
		return nil, e.setupErr
	}

	if e.oracle == nil {
		programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("invalid program id: %w", err)
		}
		client := solbc.NewClient(cfg.RPCURL, cfg.RPCRateLimit, logger)
		e.chain = ledger.NewSolanaOracle(client, programID, logger)
		e.oracle = e.chain
	}

	if e.history == nil && cfg.RedisAddr != "" {
		if err := e.dialRedis(); err != nil {
			return nil, err
		}
	}

	var backend cache.Backend
	if e.history != nil {
		backend = e.history
	}
	e.snapshots = cache.NewSnapshots(cfg.CacheSize, cfg.CacheTTL, backend, logger)

	metrics, err := settlement.NewMetrics(e.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	e.metrics = metrics

	e.coordinator, err = settlement.NewCoordinator(e.oracle, e.feed, e.opts, logger,
		settlement.WithCache(e.snapshots),
		settlement.WithMetrics(e.metrics))
	if err != nil {
		return nil, err
	}

	if cfg.JournalDir != "" {
		j, err := journal.NewJournal(cfg.JournalDir, 1000, logger)
		if err != nil {
			_ = e.Close(context.Background())
			return nil, err
		}
		e.journal = j
		e.closers.Add("journal", j)
	}

	e.logger.Info("Engine initialized",
		zap.Bool("rpc_oracle", e.chain != nil),
		zap.Bool("redis", e.history != nil),
		zap.Bool("price_feed", e.feed != nil),
		zap.Bool("journal", e.journal != nil),
		zap.Uint16("fee_bps", e.opts.FeeBps))
	return e, nil
}

func (e *Engine) dialRedis() error {
	client := redis.NewClient(&redis.Options{Addr: e.cfg.RedisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to redis at %s: %w", e.cfg.RedisAddr, err)
	}
	e.closers.Add("redis", client)

	WithRedis(client)(e)
	return e.setupErr
}

// Coordinator returns the settlement coordinator.
func (e *Engine) Coordinator() *settlement.Coordinator {
	return e.coordinator
}

// Journal returns the trade journal, or nil when journal_dir is unset.
func (e *Engine) Journal() *journal.Journal {
	return e.journal
}

// Gatherer exposes the engine's metrics.
func (e *Engine) Gatherer() prometheus.Gatherer {
	return e.registry
}

// Settle runs the coordinator and retries only while the reserve state is
// unavailable. Every other rejection is returned at once. A token whose state
// stays unavailable is dropped from the snapshot cache. Results are
// journaled when a journal is configured.
func (e *Engine) Settle(ctx context.Context, tokenID string, req curve.TradeRequest) (*settlement.Settlement, error) {
	op := func() (*settlement.Settlement, error) {
		s, err := e.coordinator.Settle(ctx, tokenID, req)
		if err != nil && !errors.Is(err, curve.ErrStateUnavailable) {
			return nil, backoff.Permanent(err)
		}
		return s, err
	}
	notify := func(err error, next time.Duration) {
		e.logger.Warn("Reserve state unavailable, retrying",
			zap.String("token", tokenID),
			zap.Duration("backoff", next),
			zap.Error(err))
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(e.newBackOff()),
		backoff.WithMaxTries(uint(e.cfg.Retries) + 1),
		backoff.WithNotify(notify),
	}
	if e.cfg.RetryMaxElapsed > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxElapsedTime(e.cfg.RetryMaxElapsed))
	}

	s, err := backoff.Retry(ctx, op, retryOpts...)
	if errors.Is(err, curve.ErrStateUnavailable) {
		e.snapshots.Invalidate(tokenID)
	}
	if e.journal != nil {
		var journalErr error
		if err != nil {
			journalErr = e.journal.RecordRejection(tokenID, req, err)
		} else {
			journalErr = e.journal.RecordSettlement(s)
		}
		if journalErr != nil {
			e.logger.Warn("Failed to journal settlement", zap.String("token", tokenID), zap.Error(journalErr))
		}
	}
	return s, err
}

// Quote returns an advisory simulation, preferring cached snapshots.
func (e *Engine) Quote(ctx context.Context, tokenID string, direction curve.Direction, amount uint64) (*settlement.Quote, error) {
	return e.coordinator.Quote(ctx, tokenID, direction, amount)
}

// Close releases Redis and flushes the journal.
func (e *Engine) Close(ctx context.Context) error {
	return e.closers.Shutdown(ctx)
}
