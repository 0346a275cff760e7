package stock

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Summary aggregates shop-wide stock figures for the dashboard.
type Summary struct {
	TotalUnits        float64         `json:"total_units"`
	TotalReserved     float64         `json:"total_reserved"`
	TotalValue        decimal.Decimal `json:"total_value"`
	ItemsBelowReorder int             `json:"items_below_reorder"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// SummaryProvider computes the aggregate snapshot.
type SummaryProvider interface {
	SummarySnapshot(ctx context.Context) (Summary, error)
}

// SummaryCache serves the shop-wide summary from Redis with a short TTL.
// The summary joins every stock level against the item catalog, so serving a
// slightly stale copy keeps the dashboard off the hot ledger tables.
type SummaryCache struct {
	provider SummaryProvider
	client   *redis.Client
	ttl      time.Duration
	logger   *slog.Logger
}

const summaryCacheKey = "wheelworks:stock:summary"

// NewSummaryCache builds SummaryCache. A nil client disables caching.
func NewSummaryCache(provider SummaryProvider, client *redis.Client, ttl time.Duration, logger *slog.Logger) *SummaryCache {
	return &SummaryCache{provider: provider, client: client, ttl: ttl, logger: logger}
}

// Summary returns the cached snapshot, recomputing on miss or unmarshal error.
func (c *SummaryCache) Summary(ctx context.Context) (Summary, error) {
	if c.client != nil {
		raw, err := c.client.Get(ctx, summaryCacheKey).Bytes()
		if err == nil {
			var cached Summary
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return cached, nil
			}
		} else if err != redis.Nil {
			c.logger.Warn("summary cache read failed", slog.Any("error", err))
		}
	}

	summary, err := c.provider.SummarySnapshot(ctx)
	if err != nil {
		return Summary{}, err
	}
	if c.client != nil {
		if raw, err := json.Marshal(summary); err == nil {
			if err := c.client.Set(ctx, summaryCacheKey, raw, c.ttl).Err(); err != nil {
				c.logger.Warn("summary cache write failed", slog.Any("error", err))
			}
		}
	}
	return summary, nil
}

// Invalidate drops the cached snapshot. Movement handlers call this after
// commit so the next dashboard read sees fresh numbers.
func (c *SummaryCache) Invalidate(ctx context.Context) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, summaryCacheKey).Err(); err != nil {
		c.logger.Warn("summary cache invalidate failed", slog.Any("error", err))
	}
}
