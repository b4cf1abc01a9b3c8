package model

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ HeldPositionsModel = (*defaultHeldPositionsModel)(nil)

// HeldPositions mirrors one row of the derived net-position table. One row
// per (user, asset); quantities at or below zero never persist.
type HeldPositions struct {
	UserId      uuid.UUID       `db:"user_id"`
	AssetSymbol string          `db:"asset_symbol"`
	Quantity    decimal.Decimal `db:"quantity"`
	LastUpdated time.Time       `db:"last_updated"`
}

type (
	// HeldPositionsModel reads derived positions. Writes go through the trade
	// store so position deltas stay coupled to ledger appends.
	HeldPositionsModel interface {
		// FindByUser returns the user's open positions ordered by symbol.
		FindByUser(ctx context.Context, userID uuid.UUID) ([]HeldPositions, error)
		// FindOne returns the position for (user, asset), or ErrNotFound.
		FindOne(ctx context.Context, userID uuid.UUID, assetSymbol string) (*HeldPositions, error)
	}

	defaultHeldPositionsModel struct {
		conn sqlx.SqlConn
	}
)

// NewHeldPositionsModel returns a model for the held_positions table.
func NewHeldPositionsModel(conn sqlx.SqlConn) HeldPositionsModel {
	return &defaultHeldPositionsModel{conn: conn}
}

func (m *defaultHeldPositionsModel) FindByUser(ctx context.Context, userID uuid.UUID) ([]HeldPositions, error) {
	const query = `
SELECT user_id, asset_symbol, quantity, last_updated
FROM public.held_positions
WHERE user_id = $1 AND quantity > 0
ORDER BY asset_symbol ASC`

	var rows []HeldPositions
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("heldPositions.FindByUser query: %w", err)
	}
	return rows, nil
}

func (m *defaultHeldPositionsModel) FindOne(ctx context.Context, userID uuid.UUID, assetSymbol string) (*HeldPositions, error) {
	const query = `
SELECT user_id, asset_symbol, quantity, last_updated
FROM public.held_positions
WHERE user_id = $1 AND asset_symbol = $2
LIMIT 1`

	var row HeldPositions
	if err := m.conn.QueryRowCtx(ctx, &row, query, userID, assetSymbol); err != nil {
		if err == sqlx.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("heldPositions.FindOne query: %w", err)
	}
	return &row, nil
}
