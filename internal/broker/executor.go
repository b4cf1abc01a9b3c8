package broker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"broker-api/internal/model"
)

// execState tracks where a trade execution is in its lifecycle. Failures
// before Persisting leave no durable writes.
type execState int

const (
	stateValidating execState = iota
	statePricingLookup
	statePersisting
	stateComplete
)

func (s execState) String() string {
	switch s {
	case stateValidating:
		return "validating"
	case statePricingLookup:
		return "pricing_lookup"
	case statePersisting:
		return "persisting"
	case stateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// LatestPricer is the slice of the price store the executor needs.
type LatestPricer interface {
	Latest(ctx context.Context, assetSymbol string) (*model.PriceTicks, error)
}

// TradeRequest is a caller's intent to buy or sell at the latest known price.
type TradeRequest struct {
	AssetSymbol string
	Side        string
	Quantity    decimal.Decimal
}

// TradeResult is the snapshot returned on completion.
type TradeResult struct {
	TradeId     uuid.UUID       `json:"trade_id"`
	ExecutedTs  time.Time       `json:"executed_ts"`
	PriceUsd    decimal.Decimal `json:"price_usd"`
	AssetSymbol string          `json:"asset_symbol"`
	Side        string          `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// Executor validates trade requests against the asset catalogue, snapshots
// the latest price, and persists the ledger row plus position delta.
type Executor struct {
	assets model.AssetsModel
	prices LatestPricer
	store  TradeStore
	nowFn  func() time.Time
}

// ExecutorConfig enumerates executor dependencies. All are mandatory.
type ExecutorConfig struct {
	Assets model.AssetsModel
	Prices LatestPricer
	Store  TradeStore
}

// NewExecutor builds a trade executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Assets == nil || cfg.Prices == nil || cfg.Store == nil {
		return nil
	}
	return &Executor{
		assets: cfg.Assets,
		prices: cfg.Prices,
		store:  cfg.Store,
		nowFn:  time.Now,
	}
}

// ExecuteTrade runs the full validate / price / persist pipeline for one
// trade. Any failure before persisting leaves no side effects; the persist
// step itself is transactional, so a failure there also leaves none.
func (e *Executor) ExecuteTrade(ctx context.Context, userID uuid.UUID, req TradeRequest) (*TradeResult, error) {
	state := stateValidating
	symbol := strings.ToUpper(strings.TrimSpace(req.AssetSymbol))
	side := strings.ToUpper(strings.TrimSpace(req.Side))

	if err := e.validate(ctx, symbol, side, req.Quantity); err != nil {
		e.logFailure(ctx, state, userID, symbol, err)
		return nil, err
	}

	state = statePricingLookup
	tick, err := e.lookupPrice(ctx, symbol)
	if err != nil {
		e.logFailure(ctx, state, userID, symbol, err)
		return nil, err
	}

	state = statePersisting
	executed := e.nowFn().UTC()
	stored, err := e.store.AppendAndAdjust(ctx, &model.Trades{
		UserId:      userID,
		AssetSymbol: symbol,
		Side:        side,
		Quantity:    req.Quantity,
		PriceUsd:    tick.PriceUsd,
		ExecutedTs:  executed,
	})
	if err != nil {
		e.logFailure(ctx, state, userID, symbol, err)
		return nil, err
	}

	state = stateComplete
	logx.WithContext(ctx).Infof("executor: state=%s trade=%s user=%s %s %s %s @ %s",
		state, stored.TradeId, userID, side, req.Quantity, symbol, tick.PriceUsd)
	return &TradeResult{
		TradeId:     stored.TradeId,
		ExecutedTs:  stored.ExecutedTs,
		PriceUsd:    stored.PriceUsd,
		AssetSymbol: stored.AssetSymbol,
		Side:        stored.Side,
		Quantity:    stored.Quantity,
	}, nil
}

// ExecuteTradeAsCaller resolves the caller identity from the context before
// executing. The query layer attaches the identity via WithCaller.
func (e *Executor) ExecuteTradeAsCaller(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	userID, err := CallerID(ctx)
	if err != nil {
		return nil, err
	}
	return e.ExecuteTrade(ctx, userID, req)
}

func (e *Executor) validate(ctx context.Context, symbol, side string, quantity decimal.Decimal) error {
	if symbol == "" {
		return Validationf("asset symbol is required")
	}
	if side != model.SideBuy && side != model.SideSell {
		return Validationf("side must be BUY or SELL, got %q", side)
	}
	if !quantity.IsPositive() {
		return Validationf("quantity must be positive, got %s", quantity)
	}

	asset, err := e.assets.FindOneBySymbol(ctx, symbol)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return NotFoundf("unknown asset %s", symbol)
		}
		return Persistence("load asset catalogue entry", err)
	}
	if !asset.IsActive {
		return AssetInactivef("asset %s is not tradable", symbol)
	}
	if asset.MinTradeIncrement.Valid && asset.MinTradeIncrement.Decimal.IsPositive() {
		min := asset.MinTradeIncrement.Decimal
		if !quantity.Mod(min).IsZero() {
			return Validationf("quantity %s is not a multiple of the minimum increment %s for %s", quantity, min, symbol)
		}
	}
	return nil
}

func (e *Executor) lookupPrice(ctx context.Context, symbol string) (*model.PriceTicks, error) {
	tick, err := e.prices.Latest(ctx, symbol)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, PriceUnavailablef("no recent quote for %s", symbol)
		}
		return nil, err
	}
	if !tick.PriceUsd.IsPositive() {
		return nil, PriceUnavailablef("latest quote for %s is not positive", symbol)
	}
	return tick, nil
}

func (e *Executor) logFailure(ctx context.Context, state execState, userID uuid.UUID, symbol string, err error) {
	logx.WithContext(ctx).Errorf("executor: state=%s user=%s symbol=%s kind=%s err=%v",
		state, userID, symbol, KindOf(err), err)
}

// ListTrades returns the user's full trade history, newest first.
func (e *Executor) ListTrades(ctx context.Context, userID uuid.UUID) ([]model.Trades, error) {
	return e.store.TradesByUser(ctx, userID)
}

// ListTradesByAsset returns the user's trade history for one asset, newest first.
func (e *Executor) ListTradesByAsset(ctx context.Context, userID uuid.UUID, assetSymbol string) ([]model.Trades, error) {
	return e.store.TradesByUserAndAsset(ctx, userID, strings.ToUpper(strings.TrimSpace(assetSymbol)))
}

// ListHeldPositions returns the user's open positions ordered by symbol.
func (e *Executor) ListHeldPositions(ctx context.Context, userID uuid.UUID) ([]model.HeldPositions, error) {
	return e.store.PositionsByUser(ctx, userID)
}

// Recompute rebuilds the user's position snapshot from the ledger.
func (e *Executor) Recompute(ctx context.Context, userID uuid.UUID) error {
	return e.store.Recompute(ctx, userID)
}
