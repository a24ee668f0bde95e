package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/mirror-adapter/internal/venue"
	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// OrderEvent is one journal row for a submitted mirror order.
type OrderEvent struct {
	Follower  model.AccountID
	Leader    model.AccountID
	Product   model.ProductID
	Side      string
	Price     model.Fractional
	Size      model.Fractional
	Path      string // "diff" | "replicate"
	Signature venue.TxSignature
	CreatedAt time.Time
}

// Store defines the contract for caching and persisting mirror activity.
type Store interface {
	RecordOrderEvent(ctx context.Context, ev OrderEvent) error
	UpsertRatioSnapshot(ctx context.Context, follower, leader model.AccountID, ratio decimal.Decimal) error
	GetCachedRatio(ctx context.Context, follower model.AccountID) (decimal.Decimal, bool, error)
	CacheMarkPrice(ctx context.Context, product model.ProductID, price decimal.Decimal, ttl time.Duration) error
	GetCachedMarkPrice(ctx context.Context, product model.ProductID) (decimal.Decimal, bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// HybridStore is Redis-first for hot state (ratio, mark prices) and
// Postgres-backed for the durable order journal.
type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-first, Postgres-backed store. An empty pgURL
// disables the durable journal (cache-only mode).
func NewHybrid(redisAddr string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// RecordOrderEvent inserts an immutable row into mirror.order_event.
func (s *HybridStore) RecordOrderEvent(ctx context.Context, ev OrderEvent) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO mirror.order_event (
			follower_account, leader_account, product, side,
			price_mantissa, price_exponent, size_mantissa, size_exponent,
			path, tx_signature, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`, ev.Follower, ev.Leader, ev.Product, ev.Side,
		ev.Price.Mantissa, ev.Price.Exponent, ev.Size.Mantissa, ev.Size.Exponent,
		ev.Path, ev.Signature)
	if err != nil {
		s.logger.Error("store.pg.insert_order_event_failed", zap.Error(err))
	}
	return err
}

func ratioKey(follower model.AccountID) string {
	return fmt.Sprintf("mirror:ratio:%s", follower)
}

// UpsertRatioSnapshot writes the latest positioning ratio to the Redis hot
// cache and upserts the projection row in Postgres.
func (s *HybridStore) UpsertRatioSnapshot(ctx context.Context, follower, leader model.AccountID, ratio decimal.Decimal) error {
	if err := s.redis.Set(ctx, ratioKey(follower), ratio.String(), 0).Err(); err != nil {
		return fmt.Errorf("cache ratio: %w", err)
	}

	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO mirror.ratio_snapshot (follower_account, leader_account, ratio, as_of)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (follower_account)
		DO UPDATE SET
			leader_account = EXCLUDED.leader_account,
			ratio = EXCLUDED.ratio,
			as_of = EXCLUDED.as_of;
	`, follower, leader, ratio)
	if err != nil {
		s.logger.Error("store.pg.ratio_upsert_failed", zap.Error(err))
	}
	return err
}

// GetCachedRatio returns the last cached positioning ratio for a follower.
func (s *HybridStore) GetCachedRatio(ctx context.Context, follower model.AccountID) (decimal.Decimal, bool, error) {
	raw, err := s.redis.Get(ctx, ratioKey(follower)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	} else if err != nil {
		return decimal.Zero, false, err
	}
	ratio, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt cached ratio %q: %w", raw, err)
	}
	return ratio, true, nil
}

func markPriceKey(product model.ProductID) string {
	return fmt.Sprintf("mirror:mark_price:%s", product)
}

func (s *HybridStore) CacheMarkPrice(ctx context.Context, product model.ProductID, price decimal.Decimal, ttl time.Duration) error {
	return s.redis.Set(ctx, markPriceKey(product), price.String(), ttl).Err()
}

func (s *HybridStore) GetCachedMarkPrice(ctx context.Context, product model.ProductID) (decimal.Decimal, bool, error) {
	raw, err := s.redis.Get(ctx, markPriceKey(product)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	} else if err != nil {
		return decimal.Zero, false, err
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt cached mark price %q: %w", raw, err)
	}
	return price, true, nil
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
