package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"

	"broker-api/internal/model"
)

// memTicks is an in-memory PriceTicksModel for exercising the price store
// without Postgres.
type memTicks struct {
	mu   sync.Mutex
	rows []model.PriceTicks
	next int64

	insertErr error
}

func (m *memTicks) Insert(_ context.Context, data *model.PriceTicks) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.next++
	row := *data
	row.Id = m.next
	m.rows = append(m.rows, row)
	return nil
}

func (m *memTicks) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var removed int64
	for _, row := range m.rows {
		if row.SourceTs.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return removed, nil
}

func (m *memTicks) Latest(_ context.Context, assetSymbol string) (*model.PriceTicks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.PriceTicks
	for i := range m.rows {
		row := &m.rows[i]
		if row.AssetSymbol != assetSymbol {
			continue
		}
		if best == nil || row.SourceTs.After(best.SourceTs) {
			best = row
		}
	}
	if best == nil {
		return nil, model.ErrNotFound
	}
	out := *best
	return &out, nil
}

func (m *memTicks) RangeAsc(_ context.Context, assetSymbol string, from, to time.Time) ([]model.PriceTicks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PriceTicks
	for _, row := range m.rows {
		if row.AssetSymbol != assetSymbol {
			continue
		}
		if row.SourceTs.Before(from) || row.SourceTs.After(to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceTs.Before(out[j].SourceTs) })
	return out, nil
}

var _ gocache.Cache = (*memCache)(nil)

// memCache is an in-memory go-zero cache for exercising the cache-aside
// paths without Redis. Entries never expire.
type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Del(keys ...string) error { return c.DelCtx(context.Background(), keys...) }

func (c *memCache) DelCtx(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.data, key)
		c.deleted = append(c.deleted, key)
	}
	return nil
}

func (c *memCache) Get(key string, val any) error { return c.GetCtx(context.Background(), key, val) }

func (c *memCache) GetCtx(_ context.Context, key string, val any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return model.ErrNotFound
	}
	return json.Unmarshal(raw, val)
}

func (c *memCache) IsNotFound(err error) bool { return errors.Is(err, model.ErrNotFound) }

func (c *memCache) Set(key string, val any) error { return c.SetCtx(context.Background(), key, val) }

func (c *memCache) SetCtx(_ context.Context, key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *memCache) SetWithExpire(key string, val any, _ time.Duration) error {
	return c.Set(key, val)
}

func (c *memCache) SetWithExpireCtx(ctx context.Context, key string, val any, _ time.Duration) error {
	return c.SetCtx(ctx, key, val)
}

func (c *memCache) Take(val any, key string, query func(val any) error) error {
	return c.TakeCtx(context.Background(), val, key, query)
}

func (c *memCache) TakeCtx(ctx context.Context, val any, key string, query func(val any) error) error {
	if err := c.GetCtx(ctx, key, val); err == nil {
		return nil
	}
	if err := query(val); err != nil {
		return err
	}
	return c.SetCtx(ctx, key, val)
}

func (c *memCache) TakeWithExpire(val any, key string, query func(val any, expire time.Duration) error) error {
	return c.TakeWithExpireCtx(context.Background(), val, key, query)
}

func (c *memCache) TakeWithExpireCtx(ctx context.Context, val any, key string, query func(val any, expire time.Duration) error) error {
	if err := c.GetCtx(ctx, key, val); err == nil {
		return nil
	}
	if err := query(val, 0); err != nil {
		return err
	}
	return c.SetCtx(ctx, key, val)
}

func (c *memCache) contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// memAssets is an in-memory AssetsModel keyed by symbol.
type memAssets struct {
	rows map[string]model.Assets
}

func (m *memAssets) FindOneBySymbol(_ context.Context, assetSymbol string) (*model.Assets, error) {
	row, ok := m.rows[assetSymbol]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &row, nil
}

func (m *memAssets) FindActive(_ context.Context) ([]model.Assets, error) {
	var out []model.Assets
	for _, row := range m.rows {
		if row.IsActive {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetSymbol < out[j].AssetSymbol })
	return out, nil
}

type positionKey struct {
	user  uuid.UUID
	asset string
}

// memTradeStore mirrors the SQL trade store's semantics in memory: a mutex
// stands in for the transactional upsert, so the same no-lost-update and
// all-or-nothing properties hold.
type memTradeStore struct {
	mu        sync.Mutex
	trades    []model.Trades
	positions map[positionKey]decimal.Decimal

	appendErr error
}

func newMemTradeStore() *memTradeStore {
	return &memTradeStore{positions: make(map[positionKey]decimal.Decimal)}
}

func (m *memTradeStore) AppendAndAdjust(_ context.Context, trade *model.Trades) (*model.Trades, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return nil, Persistence("append trade and adjust position", m.appendErr)
	}
	stored := *trade
	if stored.TradeId == uuid.Nil {
		stored.TradeId = uuid.New()
	}
	if stored.CreatedTs.IsZero() {
		stored.CreatedTs = time.Now().UTC()
	}
	m.trades = append(m.trades, stored)
	m.adjustLocked(stored.UserId, stored.AssetSymbol, stored.SignedQuantity())
	return &stored, nil
}

func (m *memTradeStore) Adjust(_ context.Context, userID uuid.UUID, assetSymbol string, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustLocked(userID, assetSymbol, delta)
	return nil
}

func (m *memTradeStore) adjustLocked(userID uuid.UUID, assetSymbol string, delta decimal.Decimal) {
	key := positionKey{user: userID, asset: assetSymbol}
	next := m.positions[key].Add(delta)
	if next.Sign() <= 0 {
		delete(m.positions, key)
		return
	}
	m.positions[key] = next
}

func (m *memTradeStore) Recompute(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.positions {
		if key.user == userID {
			delete(m.positions, key)
		}
	}
	sums := make(map[string]decimal.Decimal)
	for _, trade := range m.trades {
		if trade.UserId != userID {
			continue
		}
		sums[trade.AssetSymbol] = sums[trade.AssetSymbol].Add(trade.SignedQuantity())
	}
	for asset, quantity := range sums {
		if quantity.Sign() > 0 {
			m.positions[positionKey{user: userID, asset: asset}] = quantity
		}
	}
	return nil
}

func (m *memTradeStore) TradesByUser(_ context.Context, userID uuid.UUID) ([]model.Trades, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Trades
	for _, trade := range m.trades {
		if trade.UserId == userID {
			out = append(out, trade)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedTs.After(out[j].ExecutedTs) })
	return out, nil
}

func (m *memTradeStore) TradesByUserAndAsset(_ context.Context, userID uuid.UUID, assetSymbol string) ([]model.Trades, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Trades
	for _, trade := range m.trades {
		if trade.UserId == userID && trade.AssetSymbol == assetSymbol {
			out = append(out, trade)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedTs.After(out[j].ExecutedTs) })
	return out, nil
}

func (m *memTradeStore) PositionsByUser(_ context.Context, userID uuid.UUID) ([]model.HeldPositions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.HeldPositions
	for key, quantity := range m.positions {
		if key.user != userID {
			continue
		}
		out = append(out, model.HeldPositions{
			UserId:      key.user,
			AssetSymbol: key.asset,
			Quantity:    quantity,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetSymbol < out[j].AssetSymbol })
	return out, nil
}

func (m *memTradeStore) tradeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trades)
}
