package broker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"broker-api/internal/model"
)

var _ TradeStore = (*sqlTradeStore)(nil)

// TradeStore couples the append-only trade ledger with the derived position
// snapshot. The ledger is the source of truth; held positions are a cache
// maintained incrementally by AppendAndAdjust and rebuilt by Recompute.
type TradeStore interface {
	// AppendAndAdjust writes the trade and applies its signed quantity to the
	// user's position in one failure-atomic unit. On error nothing persists.
	AppendAndAdjust(ctx context.Context, trade *model.Trades) (*model.Trades, error)
	// Adjust applies a signed delta to one (user, asset) position. The upsert
	// is atomic at the storage layer so concurrent writers never lose updates.
	// Rows left at or below zero are removed.
	Adjust(ctx context.Context, userID uuid.UUID, assetSymbol string, delta decimal.Decimal) error
	// Recompute rebuilds the user's positions by replaying the full ledger.
	// Idempotent; safe to invoke at any time as the drift-repair path.
	Recompute(ctx context.Context, userID uuid.UUID) error

	TradesByUser(ctx context.Context, userID uuid.UUID) ([]model.Trades, error)
	TradesByUserAndAsset(ctx context.Context, userID uuid.UUID, assetSymbol string) ([]model.Trades, error)
	PositionsByUser(ctx context.Context, userID uuid.UUID) ([]model.HeldPositions, error)
}

type sqlTradeStore struct {
	conn      sqlx.SqlConn
	trades    model.TradesModel
	positions model.HeldPositionsModel
}

// NewTradeStore builds a Postgres-backed trade store.
func NewTradeStore(conn sqlx.SqlConn, trades model.TradesModel, positions model.HeldPositionsModel) TradeStore {
	if conn == nil {
		return nil
	}
	return &sqlTradeStore{conn: conn, trades: trades, positions: positions}
}

// Single-statement upsert so the read-modify-write happens inside Postgres.
// Concurrent adjusts on the same key serialise on the row, never losing a delta.
const upsertPositionQuery = `
INSERT INTO public.held_positions (user_id, asset_symbol, quantity, last_updated)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (user_id, asset_symbol)
DO UPDATE SET quantity = held_positions.quantity + EXCLUDED.quantity, last_updated = NOW()`

// Absence of a row means zero holding, so non-positive results are removed.
const dropEmptyPositionQuery = `
DELETE FROM public.held_positions
WHERE user_id = $1 AND asset_symbol = $2 AND quantity <= 0`

func (s *sqlTradeStore) AppendAndAdjust(ctx context.Context, trade *model.Trades) (*model.Trades, error) {
	if trade == nil {
		return nil, Validationf("trade is required")
	}

	stored := *trade
	if stored.TradeId == uuid.Nil {
		stored.TradeId = uuid.New()
	}
	if stored.CreatedTs.IsZero() {
		stored.CreatedTs = time.Now().UTC()
	}
	delta := stored.SignedQuantity()

	err := s.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		const insertTrade = `
INSERT INTO public.trades (trade_id, user_id, asset_symbol, side, quantity, price_usd, executed_ts, created_ts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		if _, err := session.ExecCtx(ctx, insertTrade,
			stored.TradeId,
			stored.UserId,
			stored.AssetSymbol,
			stored.Side,
			stored.Quantity,
			stored.PriceUsd,
			stored.ExecutedTs,
			stored.CreatedTs,
		); err != nil {
			return err
		}
		if _, err := session.ExecCtx(ctx, upsertPositionQuery, stored.UserId, stored.AssetSymbol, delta); err != nil {
			return err
		}
		_, err := session.ExecCtx(ctx, dropEmptyPositionQuery, stored.UserId, stored.AssetSymbol)
		return err
	})
	if err != nil {
		return nil, Persistence("append trade and adjust position", err)
	}
	return &stored, nil
}

func (s *sqlTradeStore) Adjust(ctx context.Context, userID uuid.UUID, assetSymbol string, delta decimal.Decimal) error {
	err := s.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		if _, err := session.ExecCtx(ctx, upsertPositionQuery, userID, assetSymbol, delta); err != nil {
			return err
		}
		_, err := session.ExecCtx(ctx, dropEmptyPositionQuery, userID, assetSymbol)
		return err
	})
	if err != nil {
		return Persistence("adjust held position", err)
	}
	return nil
}

func (s *sqlTradeStore) Recompute(ctx context.Context, userID uuid.UUID) error {
	err := s.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		const discard = `DELETE FROM public.held_positions WHERE user_id = $1`
		if _, err := session.ExecCtx(ctx, discard, userID); err != nil {
			return err
		}
		const rebuild = `
INSERT INTO public.held_positions (user_id, asset_symbol, quantity, last_updated)
SELECT user_id,
       asset_symbol,
       SUM(CASE WHEN side = 'BUY' THEN quantity ELSE -quantity END),
       NOW()
FROM public.trades
WHERE user_id = $1
GROUP BY user_id, asset_symbol
HAVING SUM(CASE WHEN side = 'BUY' THEN quantity ELSE -quantity END) > 0`
		_, err := session.ExecCtx(ctx, rebuild, userID)
		return err
	})
	if err != nil {
		return Persistence("recompute held positions", err)
	}
	return nil
}

func (s *sqlTradeStore) TradesByUser(ctx context.Context, userID uuid.UUID) ([]model.Trades, error) {
	rows, err := s.trades.FindByUser(ctx, userID)
	if err != nil {
		return nil, Persistence("list trades", err)
	}
	return rows, nil
}

func (s *sqlTradeStore) TradesByUserAndAsset(ctx context.Context, userID uuid.UUID, assetSymbol string) ([]model.Trades, error) {
	rows, err := s.trades.FindByUserAndAsset(ctx, userID, assetSymbol)
	if err != nil {
		return nil, Persistence("list trades by asset", err)
	}
	return rows, nil
}

func (s *sqlTradeStore) PositionsByUser(ctx context.Context, userID uuid.UUID) ([]model.HeldPositions, error) {
	rows, err := s.positions.FindByUser(ctx, userID)
	if err != nil {
		return nil, Persistence("list held positions", err)
	}
	return rows, nil
}
