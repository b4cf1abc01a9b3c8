package model

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ PriceTicksModel = (*defaultPriceTicksModel)(nil)

// PriceTicks mirrors one row of the append-only price_ticks table.
type PriceTicks struct {
	Id          int64           `db:"id"`
	AssetSymbol string          `db:"asset_symbol"`
	Slot        int             `db:"slot"`
	PriceUsd    decimal.Decimal `db:"price_usd"`
	SourceTs    time.Time       `db:"source_ts"`
	IngestedTs  time.Time       `db:"ingested_ts"`
	IsCarry     bool            `db:"is_carry"`
}

type (
	// PriceTicksModel is the storage surface for the price time series.
	PriceTicksModel interface {
		// Insert appends a tick. Rows are never updated in place.
		Insert(ctx context.Context, data *PriceTicks) error
		// PurgeBefore hard-deletes all ticks with source_ts older than cutoff
		// and reports how many rows were removed. Safe to repeat.
		PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
		// Latest returns the tick with the greatest source_ts for the symbol,
		// or ErrNotFound when none exists.
		Latest(ctx context.Context, assetSymbol string) (*PriceTicks, error)
		// RangeAsc returns ticks for the symbol within [from, to], ascending
		// by source_ts.
		RangeAsc(ctx context.Context, assetSymbol string, from, to time.Time) ([]PriceTicks, error)
	}

	defaultPriceTicksModel struct {
		conn sqlx.SqlConn
	}
)

// NewPriceTicksModel returns a model for the price_ticks table.
func NewPriceTicksModel(conn sqlx.SqlConn) PriceTicksModel {
	return &defaultPriceTicksModel{conn: conn}
}

func (m *defaultPriceTicksModel) Insert(ctx context.Context, data *PriceTicks) error {
	const query = `
INSERT INTO public.price_ticks (asset_symbol, slot, price_usd, source_ts, ingested_ts, is_carry)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := m.conn.ExecCtx(ctx, query,
		data.AssetSymbol,
		data.Slot,
		data.PriceUsd,
		data.SourceTs,
		data.IngestedTs,
		data.IsCarry,
	)
	if err != nil {
		return fmt.Errorf("priceTicks.Insert: %w", err)
	}
	return nil
}

func (m *defaultPriceTicksModel) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM public.price_ticks WHERE source_ts < $1`

	res, err := m.conn.ExecCtx(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("priceTicks.PurgeBefore: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("priceTicks.PurgeBefore rows affected: %w", err)
	}
	return removed, nil
}

func (m *defaultPriceTicksModel) Latest(ctx context.Context, assetSymbol string) (*PriceTicks, error) {
	const query = `
SELECT id, asset_symbol, slot, price_usd, source_ts, ingested_ts, is_carry
FROM public.price_ticks
WHERE asset_symbol = $1
ORDER BY source_ts DESC
LIMIT 1`

	var row PriceTicks
	if err := m.conn.QueryRowCtx(ctx, &row, query, assetSymbol); err != nil {
		if err == sqlx.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("priceTicks.Latest query: %w", err)
	}
	return &row, nil
}

func (m *defaultPriceTicksModel) RangeAsc(ctx context.Context, assetSymbol string, from, to time.Time) ([]PriceTicks, error) {
	const query = `
SELECT id, asset_symbol, slot, price_usd, source_ts, ingested_ts, is_carry
FROM public.price_ticks
WHERE asset_symbol = $1
  AND source_ts >= $2
  AND source_ts <= $3
ORDER BY source_ts ASC`

	var rows []PriceTicks
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, assetSymbol, from, to); err != nil {
		return nil, fmt.Errorf("priceTicks.RangeAsc query: %w", err)
	}
	return rows, nil
}
