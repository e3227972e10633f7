// Package fees computes the protocol's performance fee on realized yield and
// accrues it to the configured sink.
package fees

import (
	"context"
	"fmt"

	"yield-router-go/internal/models"
	"yield-router-go/internal/store"

	"github.com/shopspring/decimal"
)

const (
	MaxFeeBps     = 2000
	DefaultFeeBps = 1000
)

var bpsScale = decimal.NewFromInt(10_000)

// Settlement is the split of a withdrawal between the user and the fee sink.
type Settlement struct {
	Received  decimal.Decimal
	Principal decimal.Decimal
	Yield     decimal.Decimal
	Fee       decimal.Decimal
	Net       decimal.Decimal
}

// Compute charges floor(yield * feeBps / 10000) when received exceeds the
// principal portion. Losses are passed through without a fee.
func Compute(received, principal decimal.Decimal, feeBps int64) Settlement {
	s := Settlement{
		Received:  received,
		Principal: principal,
		Yield:     decimal.Zero,
		Fee:       decimal.Zero,
		Net:       received,
	}
	if !received.GreaterThan(principal) {
		return s
	}

	s.Yield = received.Sub(principal)
	s.Fee, _ = s.Yield.Mul(decimal.NewFromInt(feeBps)).QuoRem(bpsScale, 0)
	s.Net = received.Sub(s.Fee)
	return s
}

// ValidateRate rejects fee rates above MaxFeeBps or below zero.
func ValidateRate(feeBps int64) error {
	if feeBps < 0 || feeBps > MaxFeeBps {
		return fmt.Errorf("%w: fee %d bps outside [0, %d]", models.ErrInvalidInput, feeBps, MaxFeeBps)
	}
	return nil
}

// Engine settles withdrawals inside the caller's transaction.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Settle computes the split at the current fee rate and accrues the fee to the
// current sink.
func (e *Engine) Settle(ctx context.Context, tx store.Tx, asset string, received, principal decimal.Decimal) (Settlement, error) {
	settings, err := tx.GetSettings(ctx)
	if err != nil {
		return Settlement{}, fmt.Errorf("failed to load fee settings: %w", err)
	}

	s := Compute(received, principal, settings.FeeBps)
	if err := accrue(ctx, tx, asset, settings.FeeSink, s.Fee); err != nil {
		return Settlement{}, err
	}
	return s, nil
}

// Apply accrues the fee of a settlement computed before the transaction to
// the current sink.
func (e *Engine) Apply(ctx context.Context, tx store.Tx, asset string, s Settlement) error {
	settings, err := tx.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load fee settings: %w", err)
	}
	return accrue(ctx, tx, asset, settings.FeeSink, s.Fee)
}

func accrue(ctx context.Context, tx store.Tx, asset, sink string, fee decimal.Decimal) error {
	if !fee.IsPositive() {
		return nil
	}
	if err := tx.AccrueFee(ctx, asset, sink, fee); err != nil {
		return fmt.Errorf("failed to accrue fee: %w", err)
	}
	return nil
}
