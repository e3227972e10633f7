// Package ledger records per-user positions and values them against the
// source they are routed to.
package ledger

import (
	"context"
	"fmt"
	"time"

	"yield-router-go/internal/models"
	"yield-router-go/internal/registry"
	"yield-router-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger applies position transitions inside the caller's transaction. A
// position moves Empty -> Active on deposit and back to Empty when its
// principal is fully withdrawn.
type Ledger struct {
	store    store.Store
	registry *registry.Registry
	now      func() time.Time
}

func New(st store.Store, reg *registry.Registry) *Ledger {
	return &Ledger{store: st, registry: reg, now: time.Now}
}

// RecordDeposit credits amount and minted shares in sourceId to the position
// and the source totals.
func (l *Ledger) RecordDeposit(ctx context.Context, tx store.Tx, userId, asset string, amount decimal.Decimal, sourceId string, minted decimal.Decimal) (*models.Position, error) {
	if !amount.IsPositive() || !minted.IsPositive() {
		return nil, fmt.Errorf("%w: deposit of %s for %s shares", models.ErrInvalidInput, amount, minted)
	}

	pos, err := tx.GetPosition(ctx, userId, asset)
	if err != nil {
		return nil, err
	}
	if pos.IsActive() && pos.SourceId != sourceId {
		return nil, fmt.Errorf("%w: position is routed to %s, not %s", models.ErrInvalidInput, pos.SourceId, sourceId)
	}

	pos.DepositedPrincipal = pos.DepositedPrincipal.Add(amount)
	pos.Shares = pos.Shares.Add(minted)
	pos.SourceId = sourceId
	pos.DepositTimestamp = l.now().UTC()
	if err := tx.SavePosition(ctx, pos); err != nil {
		return nil, err
	}

	if err := tx.AdjustSourceAsset(ctx, store.SourceAssetDelta{
		SourceId:       sourceId,
		Asset:          asset,
		Shares:         minted,
		TotalDeposited: amount,
	}); err != nil {
		return nil, err
	}
	return pos, nil
}

// RecordWithdraw debits a principal portion and the shares it redeemed.
// Withdrawing the whole principal must surrender every share and empties the
// position.
func (l *Ledger) RecordWithdraw(ctx context.Context, tx store.Tx, userId, asset string, portion, sharesRedeemed decimal.Decimal) (*models.Position, error) {
	pos, err := tx.GetPosition(ctx, userId, asset)
	if err != nil {
		return nil, err
	}
	if !pos.IsActive() {
		return nil, fmt.Errorf("%w: no %s position for %s", models.ErrInvalidInput, asset, userId)
	}
	if !portion.IsPositive() || portion.GreaterThan(pos.DepositedPrincipal) {
		return nil, fmt.Errorf("%w: cannot withdraw %s of %s principal", models.ErrInvalidInput, portion, pos.DepositedPrincipal)
	}
	if sharesRedeemed.IsNegative() || sharesRedeemed.GreaterThan(pos.Shares) {
		return nil, fmt.Errorf("%w: cannot redeem %s of %s shares", models.ErrInvalidInput, sharesRedeemed, pos.Shares)
	}

	sourceId := pos.SourceId
	pos.DepositedPrincipal = pos.DepositedPrincipal.Sub(portion)
	pos.Shares = pos.Shares.Sub(sharesRedeemed)
	if pos.DepositedPrincipal.IsZero() {
		if !pos.Shares.IsZero() {
			return nil, fmt.Errorf("%w: full withdrawal leaves %s shares", models.ErrInvalidInput, pos.Shares)
		}
		pos.SourceId = ""
	}
	if err := tx.SavePosition(ctx, pos); err != nil {
		return nil, err
	}

	if err := tx.AdjustSourceAsset(ctx, store.SourceAssetDelta{
		SourceId:       sourceId,
		Asset:          asset,
		Shares:         sharesRedeemed.Neg(),
		TotalDeposited: portion.Neg(),
	}); err != nil {
		return nil, err
	}
	return pos, nil
}

// SharesFor returns the shares backing a principal portion:
// floor(shares * portion / principal), or every share for the full principal.
func SharesFor(pos *models.Position, portion decimal.Decimal) decimal.Decimal {
	if !pos.IsActive() {
		return decimal.Zero
	}
	if portion.GreaterThanOrEqual(pos.DepositedPrincipal) {
		return pos.Shares
	}
	shares, _ := pos.Shares.Mul(portion).QuoRem(pos.DepositedPrincipal, 0)
	return shares
}

// ComputeCurrentValue values a user's position at its source's current balance.
func (l *Ledger) ComputeCurrentValue(ctx context.Context, userId, asset string) (*models.PositionView, error) {
	pos, err := l.store.GetPosition(ctx, userId, asset)
	if err != nil {
		return nil, err
	}
	return l.ValuePosition(ctx, pos)
}

// ValuePosition values pos against its source's share supply and balance.
// The result is only consistent while the caller keeps writers of that
// source out.
func (l *Ledger) ValuePosition(ctx context.Context, pos *models.Position) (*models.PositionView, error) {
	view := &models.PositionView{
		UserId:          pos.UserId,
		Asset:           pos.Asset,
		Principal:       pos.DepositedPrincipal,
		Shares:          pos.Shares,
		Value:           decimal.Zero,
		UnrealizedYield: decimal.Zero,
		DepositedAt:     pos.DepositTimestamp,
	}
	if !pos.IsActive() {
		return view, nil
	}

	src, err := l.registry.Get(ctx, pos.SourceId)
	if err != nil {
		return nil, err
	}
	view.SourceId = src.Id
	view.SourceName = src.Name

	sa, err := l.store.GetSourceAsset(ctx, pos.SourceId, pos.Asset)
	if err != nil {
		return nil, err
	}
	a, err := l.registry.Adapter(pos.SourceId)
	if err != nil {
		return nil, err
	}
	value, err := a.BalanceOf(ctx, pos.Asset, pos.Shares, sa.TotalShares)
	if err != nil {
		return nil, err
	}

	view.Value = value
	if value.GreaterThan(pos.DepositedPrincipal) {
		view.UnrealizedYield = value.Sub(pos.DepositedPrincipal)
	}

	zap.L().Debug("Position valued",
		zap.String("user_id", pos.UserId),
		zap.String("asset", pos.Asset),
		zap.String("source", src.Name),
		zap.String("principal", pos.DepositedPrincipal.String()),
		zap.String("value", value.String()))
	return view, nil
}
