// Package velocity supplies the trailing-window average of daily units
// sold per product. The signal feeds priority scoring only; it is advisory
// and a stale or missing value degrades to zero, never to an error the
// scorer has to handle.
package velocity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shelflife/shelflife-backend/pkg/database"
	"github.com/shelflife/shelflife-backend/pkg/logger"
)

// windowDays is the trailing window the average is computed over
const windowDays = 30

// Provider resolves the average daily sales velocity for a product
type Provider interface {
	DailyVelocity(ctx context.Context, productID string) (float64, error)
}

// Invalidator drops a product's cached velocity after its consumption
// history moves
type Invalidator interface {
	Invalidate(ctx context.Context, productID string)
}

// SQLProvider derives velocity from the non-reversed consumption history
type SQLProvider struct {
	db *database.DB
}

// NewSQLProvider creates a provider backed by the consumption history
func NewSQLProvider(db *database.DB) *SQLProvider {
	return &SQLProvider{db: db}
}

// DailyVelocity returns units sold per day over the trailing window.
// Products with no sales return zero.
func (p *SQLProvider) DailyVelocity(ctx context.Context, productID string) (float64, error) {
	var total int
	query := `
		SELECT COALESCE(SUM(quantity), 0)
		FROM lot_consumptions
		WHERE product_id = $1
		  AND NOT reversed
		  AND created_at >= NOW() - ($2 || ' days')::interval
	`
	if err := p.db.GetContext(ctx, &total, query, productID, windowDays); err != nil {
		return 0, err
	}
	return float64(total) / windowDays, nil
}

// CachedProvider wraps a Provider with a Redis read-through cache. Scoring
// sweeps touch every active lot, so the underlying aggregate query would
// otherwise run once per lot per sweep.
type CachedProvider struct {
	inner Provider
	rdb   *redis.Client
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedProvider creates a read-through cached provider
func NewCachedProvider(inner Provider, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *CachedProvider {
	return &CachedProvider{inner: inner, rdb: rdb, ttl: ttl, log: log.WithComponent("velocity-cache")}
}

func cacheKey(productID string) string {
	return fmt.Sprintf("velocity:daily:%s", productID)
}

// DailyVelocity checks the cache first and falls back to the inner
// provider. Cache failures are logged and treated as misses.
func (p *CachedProvider) DailyVelocity(ctx context.Context, productID string) (float64, error) {
	key := cacheKey(productID)

	cached, err := p.rdb.Get(ctx, key).Result()
	if err == nil {
		if v, parseErr := strconv.ParseFloat(cached, 64); parseErr == nil {
			return v, nil
		}
	} else if err != redis.Nil {
		p.log.Warn().Err(err).Str("product_id", productID).Msg("velocity cache read failed")
	}

	v, err := p.inner.DailyVelocity(ctx, productID)
	if err != nil {
		return 0, err
	}

	if setErr := p.rdb.Set(ctx, key, strconv.FormatFloat(v, 'f', -1, 64), p.ttl).Err(); setErr != nil {
		p.log.Warn().Err(setErr).Str("product_id", productID).Msg("velocity cache write failed")
	}
	return v, nil
}

// Invalidate drops the cached value for a product so the next read
// recomputes it from the consumption history.
func (p *CachedProvider) Invalidate(ctx context.Context, productID string) {
	if err := p.rdb.Del(ctx, cacheKey(productID)).Err(); err != nil {
		p.log.Warn().Err(err).Str("product_id", productID).Msg("velocity cache invalidation failed")
	}
}
