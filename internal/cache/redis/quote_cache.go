package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// QuoteCache mirrors market state into Redis hashes so dashboards can read
// the latest quotes. Each pair lives at "quote:{pairID}" with fields
// "{venue}:{side}" = price and "{venue}:{side}:ts" = Unix nanoseconds.
type QuoteCache struct {
	c   *Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache. Keys expire after ttl unless
// refreshed; zero keeps them forever.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{c: c, ttl: ttl}
}

func (qc *QuoteCache) key(pairID string) string {
	return qc.c.Key("quote:" + pairID)
}

func slotField(v domain.Venue, s domain.Side) string {
	return v.String() + ":" + s.String()
}

// PutStates writes the present slots of every state in one pipeline.
func (qc *QuoteCache) PutStates(ctx context.Context, states []domain.MarketState) error {
	if len(states) == 0 {
		return nil
	}
	pipe := qc.c.Underlying().Pipeline()
	for _, st := range states {
		fields := map[string]interface{}{}
		for _, v := range []domain.Venue{domain.VenueKalshi, domain.VenuePolymarket} {
			for _, s := range []domain.Side{domain.SideYes, domain.SideNo} {
				q, ok := st.Quote(v, s)
				if !ok {
					continue
				}
				f := slotField(v, s)
				fields[f] = strconv.FormatInt(int64(q.Price), 10)
				fields[f+":ts"] = strconv.FormatInt(q.ObservedAt.UnixNano(), 10)
			}
		}
		if len(fields) == 0 {
			continue
		}
		key := qc.key(st.PairID)
		pipe.HSet(ctx, key, fields)
		if qc.ttl > 0 {
			pipe.Expire(ctx, key, qc.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put quote states: %w", err)
	}
	return nil
}

// GetState reads a pair's mirrored quotes. It returns domain.ErrNotFound
// when nothing has been written for the pair.
func (qc *QuoteCache) GetState(ctx context.Context, pairID string) (domain.MarketState, error) {
	vals, err := qc.c.Underlying().HGetAll(ctx, qc.key(pairID)).Result()
	if err != nil && err != redis.Nil {
		return domain.MarketState{}, fmt.Errorf("redis: get quote state %s: %w", pairID, err)
	}
	if len(vals) == 0 {
		return domain.MarketState{}, domain.ErrNotFound
	}

	st := domain.NewMarketState(pairID)
	for _, v := range []domain.Venue{domain.VenueKalshi, domain.VenuePolymarket} {
		for _, s := range []domain.Side{domain.SideYes, domain.SideNo} {
			f := slotField(v, s)
			ps, ok := vals[f]
			if !ok {
				continue
			}
			price, err := strconv.ParseInt(ps, 10, 64)
			if err != nil {
				return domain.MarketState{}, fmt.Errorf("redis: parse %s %s: %w", pairID, f, err)
			}
			ns, _ := strconv.ParseInt(vals[f+":ts"], 10, 64)
			st.Set(v, s, domain.Quote{Price: domain.Cents(price), ObservedAt: time.Unix(0, ns).UTC()})
		}
	}
	return st, nil
}
