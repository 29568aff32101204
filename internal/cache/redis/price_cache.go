package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each proposal's
// latest sample is stored at key "price:{proposalID}" with fields "yes", "no"
// and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(proposalID int64) string {
	return "price:" + strconv.FormatInt(proposalID, 10)
}

// SetPrice stores the latest price sample for a proposal.
func (pc *PriceCache) SetPrice(ctx context.Context, proposalID int64, point domain.PricePoint) error {
	fields := map[string]interface{}{
		"yes": strconv.FormatFloat(point.PriceYes, 'f', -1, 64),
		"no":  strconv.FormatFloat(point.PriceNo, 'f', -1, 64),
		"ts":  strconv.FormatInt(point.Time.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(proposalID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %d: %w", proposalID, err)
	}
	return nil
}

// GetPrice retrieves the latest price sample for a proposal. It returns
// domain.ErrNotFound when no sample has been cached.
func (pc *PriceCache) GetPrice(ctx context.Context, proposalID int64) (domain.PricePoint, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(proposalID)).Result()
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: get price %d: %w", proposalID, err)
	}
	if len(vals) == 0 {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	return parsePricePoint(proposalID, vals)
}

func parsePricePoint(proposalID int64, vals map[string]string) (domain.PricePoint, error) {
	var p domain.PricePoint
	yes, err := strconv.ParseFloat(vals["yes"], 64)
	if err != nil {
		return p, fmt.Errorf("redis: parse yes price %d: %w", proposalID, err)
	}
	no, err := strconv.ParseFloat(vals["no"], 64)
	if err != nil {
		return p, fmt.Errorf("redis: parse no price %d: %w", proposalID, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return p, fmt.Errorf("redis: parse price ts %d: %w", proposalID, err)
	}
	p.PriceYes = yes
	p.PriceNo = no
	p.Time = time.Unix(0, tsNano)
	return p, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
