package router

import (
	"context"
	"fmt"

	"yield-router-go/internal/guard"
	"yield-router-go/internal/models"
	"yield-router-go/internal/store"

	"go.uber.org/zap"
)

// ClearsThreshold reports whether best beats current by strictly more than
// thresholdBps of current: best*10000 > current*10000 + current*thresholdBps.
func ClearsThreshold(bestAPY, currentAPY, thresholdBps int64) bool {
	return bestAPY*10_000 > currentAPY*10_000+currentAPY*thresholdBps
}

// Rebalance moves a whole position to the best source when the yield gain
// clears the asset's threshold. The old venue is made whole if the new one
// refuses the funds; the principal carries over unchanged.
func (r *Router) Rebalance(ctx context.Context, userId, asset string) (result *models.RebalanceResult, err error) {
	defer func() { r.metrics.Observe("rebalance", asset, err) }()

	if err := r.admit(ctx, userId, asset); err != nil {
		return nil, err
	}

	release, err := r.guard.TryAcquire(guard.PositionKey(userId, asset))
	if err != nil {
		return nil, err
	}
	defer release()

	pos, err := r.store.GetPosition(ctx, userId, asset)
	if err != nil {
		return nil, err
	}
	if !pos.IsActive() {
		return nil, fmt.Errorf("%w: no %s position for %s", models.ErrInvalidInput, asset, userId)
	}

	best, err := r.registry.FindBest(ctx, asset)
	if err != nil {
		return nil, err
	}
	if best.Source.Id == pos.SourceId {
		return nil, fmt.Errorf("%w: %s", models.ErrAlreadyOptimal, best.Source.Name)
	}

	currentAPY, err := r.registry.QuoteSource(ctx, pos.SourceId, asset)
	if err != nil {
		zap.L().Warn("Current source quote failed, treating its yield as zero",
			zap.String("source_id", pos.SourceId),
			zap.Error(err))
		currentAPY = 0
	}

	assetInfo, err := r.store.GetAsset(ctx, asset)
	if err != nil {
		return nil, err
	}
	if !ClearsThreshold(best.APY, currentAPY, assetInfo.RebalanceThresholdBps) {
		return nil, fmt.Errorf("%w: %d bps vs %d bps at %d bps threshold",
			models.ErrThresholdNotMet, best.APY, currentAPY, assetInfo.RebalanceThresholdBps)
	}

	fromId, toId := pos.SourceId, best.Source.Id
	unlock, err := r.locks.Lock(ctx, fromId, toId)
	if err != nil {
		return nil, err
	}
	defer unlock()

	from, err := r.registry.Adapter(fromId)
	if err != nil {
		return nil, err
	}
	to, err := r.registry.Adapter(toId)
	if err != nil {
		return nil, err
	}
	fromTotals, err := r.store.GetSourceAsset(ctx, fromId, asset)
	if err != nil {
		return nil, err
	}
	toTotals, err := r.store.GetSourceAsset(ctx, toId, asset)
	if err != nil {
		return nil, err
	}

	moved, err := from.Withdraw(ctx, asset, pos.Shares, pos.Shares, fromTotals.TotalShares)
	if err != nil {
		return nil, err
	}
	if !moved.IsPositive() {
		return nil, fmt.Errorf("%w: %s released nothing for %s shares", models.ErrAdapterFailure, from.Name(), pos.Shares)
	}

	minted, err := to.Deposit(ctx, asset, moved, toTotals.TotalShares)
	if err != nil {
		r.compensate(ctx, "rebalance", err, func(cctx context.Context) error {
			return from.Restore(cctx, asset, moved)
		})
		return nil, err
	}

	err = r.store.WithTx(ctx, func(tx store.Tx) error {
		if err := requireVersion(ctx, tx, pos); err != nil {
			return err
		}
		if err := requireActiveSource(ctx, tx, toId); err != nil {
			return err
		}
		if err := requireTotals(ctx, tx, fromTotals); err != nil {
			return err
		}
		if err := requireTotals(ctx, tx, toTotals); err != nil {
			return err
		}

		if _, err := r.ledger.RecordWithdraw(ctx, tx, userId, asset, pos.DepositedPrincipal, pos.Shares); err != nil {
			return err
		}
		if _, err := r.ledger.RecordDeposit(ctx, tx, userId, asset, pos.DepositedPrincipal, toId, minted); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &models.Event{
			Type:       models.EventRebalanced,
			UserId:     userId,
			Asset:      asset,
			FromSource: fromId,
			ToSource:   toId,
			Amount:     pos.DepositedPrincipal,
			Yield:      moved.Sub(pos.DepositedPrincipal),
			Shares:     minted,
			Origin:     models.OriginFrom(ctx),
		})
	})
	if err != nil {
		r.compensate(ctx, "rebalance", err, func(cctx context.Context) error {
			if err := to.Reclaim(cctx, asset, moved); err != nil {
				return err
			}
			return from.Restore(cctx, asset, moved)
		})
		return nil, err
	}

	zap.L().Info("Position rebalanced",
		zap.String("user_id", userId),
		zap.String("asset", asset),
		zap.String("from_source", fromId),
		zap.String("to_source", toId),
		zap.Int64("from_apy_bps", currentAPY),
		zap.Int64("to_apy_bps", best.APY),
		zap.String("moved", moved.String()),
		zap.String("shares", minted.String()))

	return &models.RebalanceResult{
		Success:    true,
		UserId:     userId,
		Asset:      asset,
		FromSource: fromId,
		ToSource:   toId,
		FromAPY:    currentAPY,
		ToAPY:      best.APY,
		Moved:      moved,
		NewShares:  minted,
	}, nil
}
