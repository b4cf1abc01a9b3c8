package broker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"

	cachekeys "broker-api/internal/cache"
	"broker-api/internal/model"
)

// Retention is the rolling window kept in the price time series.
const Retention = 24 * time.Hour

// SlotOf maps a timestamp to its minute-of-day slot in UTC, 0 through 1439.
// Slots are a logical windowing key, not a storage index; any two times
// within the same UTC minute share a slot.
func SlotOf(t time.Time) int {
	u := t.UTC()
	return u.Hour()*60 + u.Minute()
}

// PriceStore owns the append-only price tick series: ingest, purge, and the
// read paths the query layer serves from.
type PriceStore struct {
	ticks model.PriceTicksModel
	cache gocache.Cache
	ttl   cachekeys.TTLSet
	nowFn func() time.Time
}

// PriceStoreConfig enumerates PriceStore dependencies. Cache is optional;
// without it every read hits Postgres.
type PriceStoreConfig struct {
	Ticks model.PriceTicksModel
	Cache gocache.Cache
	TTL   cachekeys.TTLSet
}

// NewPriceStore builds a price store. Ticks is mandatory.
func NewPriceStore(cfg PriceStoreConfig) *PriceStore {
	if cfg.Ticks == nil {
		return nil
	}
	return &PriceStore{
		ticks: cfg.Ticks,
		cache: cfg.Cache,
		ttl:   cfg.TTL,
		nowFn: time.Now,
	}
}

// Ingest appends one observed sample. Ticks are never updated in place, so
// repeated samples within the same minute coexist under one slot.
func (s *PriceStore) Ingest(ctx context.Context, assetSymbol string, priceUsd decimal.Decimal, sourceTime time.Time, isCarry bool) error {
	symbol := strings.ToUpper(strings.TrimSpace(assetSymbol))
	if symbol == "" {
		return Validationf("asset symbol is required")
	}
	if !isCarry && !priceUsd.IsPositive() {
		return Validationf("price for %s must be positive, got %s", symbol, priceUsd)
	}

	now := s.nowFn().UTC()
	source := sourceTime.UTC()
	ingested := now
	if ingested.Before(source) {
		ingested = source
	}

	tick := &model.PriceTicks{
		AssetSymbol: symbol,
		Slot:        SlotOf(source),
		PriceUsd:    priceUsd,
		SourceTs:    source,
		IngestedTs:  ingested,
		IsCarry:     isCarry,
	}
	if err := s.ticks.Insert(ctx, tick); err != nil {
		return Persistence("store price tick", err)
	}
	s.cacheLatest(ctx, symbol, tick)
	return nil
}

// PurgeStale removes every tick older than the retention window and reports
// how many rows were deleted. Idempotent; safe alongside concurrent ingests.
func (s *PriceStore) PurgeStale(ctx context.Context) (int64, error) {
	cutoff := s.nowFn().UTC().Add(-Retention)
	removed, err := s.ticks.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, Persistence("purge stale price ticks", err)
	}
	return removed, nil
}

// Latest returns the freshest tick for the symbol, serving from cache when
// possible. Returns a not-found error when the symbol has no ticks at all.
func (s *PriceStore) Latest(ctx context.Context, assetSymbol string) (*model.PriceTicks, error) {
	symbol := strings.ToUpper(strings.TrimSpace(assetSymbol))
	if symbol == "" {
		return nil, Validationf("asset symbol is required")
	}

	if s.cache != nil {
		var cached model.PriceTicks
		key := cachekeys.PriceLatestKey(symbol)
		if err := s.cache.GetCtx(ctx, key, &cached); err == nil && cached.AssetSymbol != "" {
			// A cached tick outside the retention window may already be
			// purged from storage; drop it and fall through to the model.
			if !cached.SourceTs.Before(s.nowFn().UTC().Add(-Retention)) {
				return &cached, nil
			}
			if err := s.cache.DelCtx(ctx, key); err != nil {
				logx.WithContext(ctx).Errorf("pricestore: drop stale latest cache key=%s err=%v", key, err)
			}
		}
	}

	tick, err := s.ticks.Latest(ctx, symbol)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, NotFoundf("no price tick recorded for %s", symbol)
		}
		return nil, Persistence("load latest price tick", err)
	}
	s.cacheLatest(ctx, symbol, tick)
	return tick, nil
}

// History24h returns the symbol's ticks inside the retention window in
// ascending source-time order. Re-querying reflects current state.
func (s *PriceStore) History24h(ctx context.Context, assetSymbol string) ([]model.PriceTicks, error) {
	symbol := strings.ToUpper(strings.TrimSpace(assetSymbol))
	if symbol == "" {
		return nil, Validationf("asset symbol is required")
	}

	now := s.nowFn().UTC()
	rows, err := s.ticks.RangeAsc(ctx, symbol, now.Add(-Retention), now)
	if err != nil {
		return nil, Persistence("load price history", err)
	}
	return rows, nil
}

func (s *PriceStore) cacheLatest(ctx context.Context, symbol string, tick *model.PriceTicks) {
	if s.cache == nil || tick == nil {
		return
	}
	ttl := cachekeys.PriceLatestTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	key := cachekeys.PriceLatestKey(symbol)
	if err := s.cache.SetWithExpireCtx(ctx, key, tick, ttl); err != nil {
		logx.WithContext(ctx).Errorf("pricestore: set latest cache key=%s err=%v", key, err)
	}
}
