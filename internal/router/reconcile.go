package router

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reconciliation compares a source's tracked totals with the positions routed to it.
type Reconciliation struct {
	SourceId          string
	Asset             string
	TrackedShares     decimal.Decimal
	PositionShares    decimal.Decimal
	TrackedDeposited  decimal.Decimal
	PositionPrincipal decimal.Decimal
}

func (r Reconciliation) Balanced() bool {
	return r.TrackedShares.Equal(r.PositionShares) && r.TrackedDeposited.Equal(r.PositionPrincipal)
}

// ReconcileSource sums every position in sourceId for asset. A committed ledger
// always balances.
func (r *Router) ReconcileSource(ctx context.Context, sourceId, asset string) (*Reconciliation, error) {
	if _, err := r.registry.Get(ctx, sourceId); err != nil {
		return nil, err
	}

	totals, err := r.store.GetSourceAsset(ctx, sourceId, asset)
	if err != nil {
		return nil, err
	}
	positions, err := r.store.ListPositions(ctx, "")
	if err != nil {
		return nil, err
	}

	rec := &Reconciliation{
		SourceId:          sourceId,
		Asset:             asset,
		TrackedShares:     totals.TotalShares,
		PositionShares:    decimal.Zero,
		TrackedDeposited:  totals.TotalDeposited,
		PositionPrincipal: decimal.Zero,
	}
	for _, pos := range positions {
		if pos.SourceId != sourceId || pos.Asset != asset {
			continue
		}
		rec.PositionShares = rec.PositionShares.Add(pos.Shares)
		rec.PositionPrincipal = rec.PositionPrincipal.Add(pos.DepositedPrincipal)
	}

	if !rec.Balanced() {
		zap.L().Error("Source totals do not match positions",
			zap.String("source_id", sourceId),
			zap.String("asset", asset),
			zap.String("tracked_shares", rec.TrackedShares.String()),
			zap.String("position_shares", rec.PositionShares.String()),
			zap.String("tracked_deposited", rec.TrackedDeposited.String()),
			zap.String("position_principal", rec.PositionPrincipal.String()))
	}
	return rec, nil
}

// ReconcileAll checks every source against every asset.
func (r *Router) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	sources, err := r.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	assets, err := r.store.ListAssets(ctx)
	if err != nil {
		return nil, err
	}

	var out []Reconciliation
	for _, src := range sources {
		for _, a := range assets {
			rec, err := r.ReconcileSource(ctx, src.Id, a.Symbol)
			if err != nil {
				return nil, err
			}
			out = append(out, *rec)
		}
	}
	return out, nil
}
