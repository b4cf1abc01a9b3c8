package model

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ AssetsModel = (*defaultAssetsModel)(nil)

// Assets mirrors one row of the tradable-asset catalogue.
type Assets struct {
	AssetSymbol       string              `db:"asset_symbol"`
	Name              string              `db:"name"`
	IsActive          bool                `db:"is_active"`
	MinTradeIncrement decimal.NullDecimal `db:"min_trade_increment"`
}

type (
	// AssetsModel reads the asset catalogue.
	AssetsModel interface {
		// FindOneBySymbol returns the asset row, or ErrNotFound.
		FindOneBySymbol(ctx context.Context, assetSymbol string) (*Assets, error)
		// FindActive returns all tradable assets ordered by symbol.
		FindActive(ctx context.Context) ([]Assets, error)
	}

	defaultAssetsModel struct {
		conn sqlx.SqlConn
	}
)

// NewAssetsModel returns a model for the assets table.
func NewAssetsModel(conn sqlx.SqlConn) AssetsModel {
	return &defaultAssetsModel{conn: conn}
}

func (m *defaultAssetsModel) FindOneBySymbol(ctx context.Context, assetSymbol string) (*Assets, error) {
	const query = `
SELECT asset_symbol, name, is_active, min_trade_increment
FROM public.assets
WHERE asset_symbol = $1
LIMIT 1`

	var row Assets
	if err := m.conn.QueryRowCtx(ctx, &row, query, assetSymbol); err != nil {
		if err == sqlx.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("assets.FindOneBySymbol query: %w", err)
	}
	return &row, nil
}

func (m *defaultAssetsModel) FindActive(ctx context.Context) ([]Assets, error) {
	const query = `
SELECT asset_symbol, name, is_active, min_trade_increment
FROM public.assets
WHERE is_active
ORDER BY asset_symbol ASC`

	var rows []Assets
	if err := m.conn.QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("assets.FindActive query: %w", err)
	}
	return rows, nil
}
