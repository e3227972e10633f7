/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package router moves user funds between yield sources. Every operation
// performs its venue calls under the source locks, then commits all ledger
// effects in one store transaction; a failed commit is compensated at the venue.
package router

import (
	"context"
	"errors"
	"fmt"

	"yield-router-go/internal/fees"
	"yield-router-go/internal/guard"
	"yield-router-go/internal/ledger"
	"yield-router-go/internal/metrics"
	"yield-router-go/internal/models"
	"yield-router-go/internal/registry"
	"yield-router-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Router struct {
	store    store.Store
	registry *registry.Registry
	ledger   *ledger.Ledger
	fees     *fees.Engine
	guard    *guard.Guard
	locks    *guard.Locks
	metrics  *metrics.Collector
}

func New(st store.Store, reg *registry.Registry, led *ledger.Ledger, feeEngine *fees.Engine, cfg models.RouterConfig, m *metrics.Collector) *Router {
	return &Router{
		store:    st,
		registry: reg,
		ledger:   led,
		fees:     feeEngine,
		guard:    guard.NewGuard(),
		locks:    guard.NewLocks(cfg.LockWaitTimeout),
		metrics:  m,
	}
}

// DepositRequest routes Amount of Asset for UserId. Inbound is set when the
// funds arrived over a bridge; its record is written in the deposit's
// transaction so a replay cannot credit twice.
type DepositRequest struct {
	UserId  string
	Asset   string
	Amount  decimal.Decimal
	Inbound *models.BridgeRequest
}

type WithdrawRequest struct {
	UserId    string
	Asset     string
	Principal decimal.Decimal

	// Handoff, when set, receives the settled withdrawal after the venue has
	// released the funds and before anything is recorded. An error from it
	// puts the funds back in the venue and leaves the ledger untouched. The
	// returned finish runs inside the commit transaction.
	Handoff func(ctx context.Context, out *models.WithdrawalResult) (finish func(tx store.Tx) error, err error)
}

// Deposit sends the funds to the best source, or to the position's current
// source when it already holds principal.
func (r *Router) Deposit(ctx context.Context, req DepositRequest) (result *models.DepositResult, err error) {
	defer func() { r.metrics.Observe("deposit", req.Asset, err) }()

	if err := r.checkAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := r.admit(ctx, req.UserId, req.Asset); err != nil {
		return nil, err
	}

	release, err := r.guard.TryAcquire(guard.PositionKey(req.UserId, req.Asset))
	if err != nil {
		return nil, err
	}
	defer release()

	pos, err := r.store.GetPosition(ctx, req.UserId, req.Asset)
	if err != nil {
		return nil, err
	}

	var sourceId string
	var apy int64
	if pos.IsActive() {
		src, err := r.registry.Get(ctx, pos.SourceId)
		if err != nil {
			return nil, err
		}
		sourceId, apy = src.Id, src.CurrentAPY
	} else {
		best, err := r.registry.FindBest(ctx, req.Asset)
		if err != nil {
			return nil, err
		}
		sourceId, apy = best.Source.Id, best.APY
	}

	unlock, err := r.locks.Lock(ctx, sourceId)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := r.registry.Adapter(sourceId)
	if err != nil {
		return nil, err
	}
	totals, err := r.store.GetSourceAsset(ctx, sourceId, req.Asset)
	if err != nil {
		return nil, err
	}

	minted, err := a.Deposit(ctx, req.Asset, req.Amount, totals.TotalShares)
	if err != nil {
		zap.L().Error("Venue deposit failed",
			zap.String("user_id", req.UserId),
			zap.String("asset", req.Asset),
			zap.String("source_id", sourceId),
			zap.Error(err))
		return nil, err
	}

	origin := models.OriginFrom(ctx)
	err = r.store.WithTx(ctx, func(tx store.Tx) error {
		if err := requireActiveSource(ctx, tx, sourceId); err != nil {
			return err
		}
		if err := requireTotals(ctx, tx, totals); err != nil {
			return err
		}

		reference := ""
		if req.Inbound != nil {
			if err := tx.InsertBridgeRequest(ctx, req.Inbound); err != nil {
				return err
			}
			reference = req.Inbound.Id
		}

		if _, err := r.ledger.RecordDeposit(ctx, tx, req.UserId, req.Asset, req.Amount, sourceId, minted); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &models.Event{
			Type:      models.EventDeposited,
			UserId:    req.UserId,
			Asset:     req.Asset,
			SourceId:  sourceId,
			Amount:    req.Amount,
			Shares:    minted,
			Reference: reference,
			Origin:    origin,
		}); err != nil {
			return err
		}

		if req.Inbound == nil {
			return nil
		}
		return tx.AppendEvent(ctx, &models.Event{
			Type:      models.EventValueReceived,
			UserId:    req.UserId,
			Asset:     req.Asset,
			SourceId:  sourceId,
			Amount:    req.Amount,
			Reference: req.Inbound.Id,
			Origin:    origin,
		})
	})
	if err != nil {
		r.compensate(ctx, "deposit", err, func(cctx context.Context) error {
			return a.Reclaim(cctx, req.Asset, req.Amount)
		})
		return nil, err
	}

	zap.L().Info("Deposit routed",
		zap.String("user_id", req.UserId),
		zap.String("asset", req.Asset),
		zap.String("amount", req.Amount.String()),
		zap.String("source_id", sourceId),
		zap.String("shares", minted.String()),
		zap.Int64("apy_bps", apy))

	return &models.DepositResult{
		Success:  true,
		UserId:   req.UserId,
		Asset:    req.Asset,
		Amount:   req.Amount,
		SourceId: sourceId,
		APY:      apy,
		Shares:   minted,
	}, nil
}

// Withdraw redeems the shares backing a principal portion and pays out the
// released amount net of the performance fee.
func (r *Router) Withdraw(ctx context.Context, req WithdrawRequest) (result *models.WithdrawalResult, err error) {
	defer func() { r.metrics.Observe("withdraw", req.Asset, err) }()

	if err := r.checkAmount(req.Principal); err != nil {
		return nil, err
	}
	if err := r.admit(ctx, req.UserId, req.Asset); err != nil {
		return nil, err
	}

	release, err := r.guard.TryAcquire(guard.PositionKey(req.UserId, req.Asset))
	if err != nil {
		return nil, err
	}
	defer release()

	pos, err := r.store.GetPosition(ctx, req.UserId, req.Asset)
	if err != nil {
		return nil, err
	}
	if !pos.IsActive() {
		return nil, fmt.Errorf("%w: no %s position for %s", models.ErrInvalidInput, req.Asset, req.UserId)
	}
	if req.Principal.GreaterThan(pos.DepositedPrincipal) {
		return nil, fmt.Errorf("%w: requested %s exceeds principal %s",
			models.ErrInvalidInput, req.Principal, pos.DepositedPrincipal)
	}

	shares := ledger.SharesFor(pos, req.Principal)
	if !shares.IsPositive() {
		return nil, fmt.Errorf("%w: %s is below one share", models.ErrInvalidInput, req.Principal)
	}

	unlock, err := r.locks.Lock(ctx, pos.SourceId)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := r.registry.Adapter(pos.SourceId)
	if err != nil {
		return nil, err
	}
	totals, err := r.store.GetSourceAsset(ctx, pos.SourceId, req.Asset)
	if err != nil {
		return nil, err
	}

	received, err := a.Withdraw(ctx, req.Asset, shares, pos.Shares, totals.TotalShares)
	if err != nil {
		zap.L().Error("Venue withdrawal failed",
			zap.String("user_id", req.UserId),
			zap.String("asset", req.Asset),
			zap.String("source_id", pos.SourceId),
			zap.Error(err))
		return nil, err
	}

	restore := func(cctx context.Context) error {
		return a.Restore(cctx, req.Asset, received)
	}

	var (
		settlement fees.Settlement
		finish     func(tx store.Tx) error
	)
	if req.Handoff != nil {
		settings, err := r.store.GetSettings(ctx)
		if err != nil {
			r.compensate(ctx, "withdraw", err, restore)
			return nil, err
		}
		settlement = fees.Compute(received, req.Principal, settings.FeeBps)
		finish, err = req.Handoff(ctx, withdrawalResult(req, settlement, shares))
		if err != nil {
			r.compensate(ctx, "withdraw", err, restore)
			return nil, err
		}
	}

	err = r.store.WithTx(ctx, func(tx store.Tx) error {
		if err := requireVersion(ctx, tx, pos); err != nil {
			return err
		}
		if err := requireTotals(ctx, tx, totals); err != nil {
			return err
		}
		if _, err := r.ledger.RecordWithdraw(ctx, tx, req.UserId, req.Asset, req.Principal, shares); err != nil {
			return err
		}

		if req.Handoff != nil {
			if err := r.fees.Apply(ctx, tx, req.Asset, settlement); err != nil {
				return err
			}
		} else {
			var err error
			settlement, err = r.fees.Settle(ctx, tx, req.Asset, received, req.Principal)
			if err != nil {
				return err
			}
		}

		if err := tx.AppendEvent(ctx, &models.Event{
			Type:     models.EventWithdrawn,
			UserId:   req.UserId,
			Asset:    req.Asset,
			SourceId: pos.SourceId,
			Amount:   req.Principal,
			Yield:    received.Sub(req.Principal),
			Fee:      settlement.Fee,
			Shares:   shares,
			Origin:   models.OriginFrom(ctx),
		}); err != nil {
			return err
		}
		if finish != nil {
			return finish(tx)
		}
		return nil
	})
	if err != nil && req.Handoff != nil {
		// The handoff already moved the funds; the venue is not refilled.
		r.metrics.Compensated("withdraw", err)
		zap.L().Error("Handed-off withdrawal not recorded, manual reconciliation required",
			zap.String("user_id", req.UserId),
			zap.String("asset", req.Asset),
			zap.String("source_id", pos.SourceId),
			zap.String("received", received.String()),
			zap.Error(err))
		return nil, err
	}
	if err != nil {
		r.compensate(ctx, "withdraw", err, restore)
		return nil, err
	}

	zap.L().Info("Withdrawal settled",
		zap.String("user_id", req.UserId),
		zap.String("asset", req.Asset),
		zap.String("source_id", pos.SourceId),
		zap.String("principal", req.Principal.String()),
		zap.String("received", received.String()),
		zap.String("fee", settlement.Fee.String()),
		zap.String("net", settlement.Net.String()))

	return withdrawalResult(req, settlement, shares), nil
}

func withdrawalResult(req WithdrawRequest, s fees.Settlement, shares decimal.Decimal) *models.WithdrawalResult {
	return &models.WithdrawalResult{
		Success:        true,
		UserId:         req.UserId,
		Asset:          req.Asset,
		Principal:      req.Principal,
		Received:       s.Received,
		Yield:          s.Yield,
		Fee:            s.Fee,
		Net:            s.Net,
		SharesRedeemed: shares,
	}
}

// Position returns the stored position, empty when the user never deposited.
func (r *Router) Position(ctx context.Context, userId, asset string) (*models.Position, error) {
	return r.store.GetPosition(ctx, userId, asset)
}

// maxValueAttempts bounds how often a read follows a position that keeps
// moving between sources.
const maxValueAttempts = 3

// Value returns the position together with its redeemable value. The read
// holds the source lock, so an in-flight deposit, withdrawal or rebalance is
// observed either fully committed or not at all.
func (r *Router) Value(ctx context.Context, userId, asset string) (*models.PositionView, error) {
	pos, err := r.store.GetPosition(ctx, userId, asset)
	if err != nil {
		return nil, err
	}
	return r.valueLocked(ctx, pos)
}

// Positions values every active position of userId, or of every user when
// userId is empty.
func (r *Router) Positions(ctx context.Context, userId string) ([]models.PositionView, error) {
	positions, err := r.store.ListPositions(ctx, userId)
	if err != nil {
		return nil, err
	}

	views := make([]models.PositionView, 0, len(positions))
	for i := range positions {
		if !positions[i].IsActive() {
			continue
		}
		view, err := r.valueLocked(ctx, &positions[i])
		if err != nil {
			return nil, err
		}
		if view.SourceId == "" {
			continue
		}
		views = append(views, *view)
	}
	return views, nil
}

// valueLocked values pos under its source lock, re-reading the position
// once the lock is held. A position that moved meanwhile is followed to its
// new source.
func (r *Router) valueLocked(ctx context.Context, pos *models.Position) (*models.PositionView, error) {
	for attempt := 1; ; attempt++ {
		if !pos.IsActive() {
			return r.ledger.ValuePosition(ctx, pos)
		}

		unlock, err := r.locks.Lock(ctx, pos.SourceId)
		if err != nil {
			return nil, err
		}
		current, err := r.store.GetPosition(ctx, pos.UserId, pos.Asset)
		if err != nil {
			unlock()
			return nil, err
		}
		if !current.IsActive() || current.SourceId == pos.SourceId {
			view, err := r.ledger.ValuePosition(ctx, current)
			unlock()
			return view, err
		}
		unlock()

		if attempt == maxValueAttempts {
			return nil, fmt.Errorf("%w: %s position of %s keeps moving", models.ErrSourceBusy, pos.Asset, pos.UserId)
		}
		pos = current
	}
}

func (r *Router) checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", models.ErrInvalidInput)
	}
	if !amount.IsInteger() {
		return fmt.Errorf("%w: amount %s is not in base units", models.ErrInvalidInput, amount)
	}
	return nil
}

// admit validates the caller and asset and refuses work while paused.
func (r *Router) admit(ctx context.Context, userId, asset string) error {
	if userId == "" {
		return fmt.Errorf("%w: user id cannot be empty", models.ErrInvalidInput)
	}

	a, err := r.store.GetAsset(ctx, asset)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", models.ErrAssetNotSupported, asset)
	}
	if err != nil {
		return err
	}
	if !a.Supported {
		return fmt.Errorf("%w: %s", models.ErrAssetNotSupported, asset)
	}

	settings, err := r.store.GetSettings(ctx)
	if err != nil {
		return err
	}
	if settings.Paused {
		return models.ErrPaused
	}
	return nil
}

// compensate undoes a venue effect whose ledger commit failed. It runs even
// when ctx has been cancelled.
func (r *Router) compensate(ctx context.Context, operation string, cause error, undo func(context.Context) error) {
	err := undo(context.WithoutCancel(ctx))
	r.metrics.Compensated(operation, err)
	if err != nil {
		zap.L().Error("Venue compensation failed, manual reconciliation required",
			zap.String("operation", operation),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	zap.L().Warn("Commit failed, venue effect reverted",
		zap.String("operation", operation),
		zap.Error(cause))
}

func requireActiveSource(ctx context.Context, tx store.Tx, sourceId string) error {
	src, err := tx.GetSource(ctx, sourceId)
	if err != nil {
		return err
	}
	if !src.Active {
		return fmt.Errorf("%w: source %s was deactivated", models.ErrNoAvailableSource, src.Name)
	}
	return nil
}

// requireTotals fails when another writer changed the source's share supply
// after the venue call was priced.
func requireTotals(ctx context.Context, tx store.Tx, seen *models.SourceAsset) error {
	current, err := tx.GetSourceAsset(ctx, seen.SourceId, seen.Asset)
	if err != nil {
		return err
	}
	if !current.TotalShares.Equal(seen.TotalShares) {
		return fmt.Errorf("source %s %s shares moved from %s to %s: %w",
			seen.SourceId, seen.Asset, seen.TotalShares, current.TotalShares, store.ErrConcurrentModification)
	}
	return nil
}

func requireVersion(ctx context.Context, tx store.Tx, seen *models.Position) error {
	current, err := tx.GetPosition(ctx, seen.UserId, seen.Asset)
	if err != nil {
		return err
	}
	if current.Version != seen.Version {
		return fmt.Errorf("position %s/%s changed: %w", seen.UserId, seen.Asset, store.ErrConcurrentModification)
	}
	return nil
}
