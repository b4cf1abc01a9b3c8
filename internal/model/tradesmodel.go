package model

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ TradesModel = (*defaultTradesModel)(nil)

// Trade sides as stored in the trades table.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Trades mirrors one row of the append-only trades table.
type Trades struct {
	TradeId     uuid.UUID       `db:"trade_id"`
	UserId      uuid.UUID       `db:"user_id"`
	AssetSymbol string          `db:"asset_symbol"`
	Side        string          `db:"side"`
	Quantity    decimal.Decimal `db:"quantity"`
	PriceUsd    decimal.Decimal `db:"price_usd"`
	ExecutedTs  time.Time       `db:"executed_ts"`
	CreatedTs   time.Time       `db:"created_ts"`
}

// SignedQuantity returns the quantity with its ledger sign: positive for a
// buy, negative for a sell.
func (t *Trades) SignedQuantity() decimal.Decimal {
	if t.Side == SideSell {
		return t.Quantity.Neg()
	}
	return t.Quantity
}

type (
	// TradesModel reads the trade ledger. Appends go through the trade store,
	// which couples them with the position update in one transaction.
	TradesModel interface {
		// FindByUser returns all trades for the user, newest first.
		FindByUser(ctx context.Context, userID uuid.UUID) ([]Trades, error)
		// FindByUserAndAsset returns the user's trades for one asset, newest first.
		FindByUserAndAsset(ctx context.Context, userID uuid.UUID, assetSymbol string) ([]Trades, error)
	}

	defaultTradesModel struct {
		conn sqlx.SqlConn
	}
)

// NewTradesModel returns a model for the trades table.
func NewTradesModel(conn sqlx.SqlConn) TradesModel {
	return &defaultTradesModel{conn: conn}
}

func (m *defaultTradesModel) FindByUser(ctx context.Context, userID uuid.UUID) ([]Trades, error) {
	const query = `
SELECT trade_id, user_id, asset_symbol, side, quantity, price_usd, executed_ts, created_ts
FROM public.trades
WHERE user_id = $1
ORDER BY executed_ts DESC`

	var rows []Trades
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("trades.FindByUser query: %w", err)
	}
	return rows, nil
}

func (m *defaultTradesModel) FindByUserAndAsset(ctx context.Context, userID uuid.UUID, assetSymbol string) ([]Trades, error) {
	const query = `
SELECT trade_id, user_id, asset_symbol, side, quantity, price_usd, executed_ts, created_ts
FROM public.trades
WHERE user_id = $1 AND asset_symbol = $2
ORDER BY executed_ts DESC`

	var rows []Trades
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, userID, assetSymbol); err != nil {
		return nil, fmt.Errorf("trades.FindByUserAndAsset query: %w", err)
	}
	return rows, nil
}
