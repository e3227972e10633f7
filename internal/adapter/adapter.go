// Package adapter turns a venue's balance into a share-based accounting space
// and derives comparable yields from venue rates.
package adapter

import (
	"context"
	"encoding/hex"
	"fmt"

	"yield-router-go/internal/models"
	"yield-router-go/internal/venue"

	"github.com/shopspring/decimal"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

const SecondsPerYear = 31_536_000

var (
	bpsScale       = decimal.NewFromInt(10_000)
	secondsPerYear = decimal.NewFromInt(SecondsPerYear)
)

// SourceID derives the stable identifier of a venue from its name and chain scope.
func SourceID(name, chainScope string) string {
	sum := blake3.Sum256([]byte(name + "|" + chainScope))
	return hex.EncodeToString(sum[:])
}

// APYFromRate converts a WAD-scaled per-second rate into basis points using
// rate * secondsPerYear, truncated. Compounding is ignored.
func APYFromRate(ratePerSecond decimal.Decimal) int64 {
	bps, _ := ratePerSecond.Mul(secondsPerYear).Mul(bpsScale).QuoRem(venue.Wad, 0)
	return bps.IntPart()
}

// RateFromAPY returns the smallest WAD-scaled per-second rate that quotes as bps.
func RateFromAPY(bps int64) decimal.Decimal {
	num := decimal.NewFromInt(bps).Mul(venue.Wad)
	den := secondsPerYear.Mul(bpsScale)
	q, rem := num.QuoRem(den, 0)
	if !rem.IsZero() {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q
}

// Adapter exposes one venue through share accounting. Share totals are owned by
// the caller and passed in; the adapter never stores them.
type Adapter struct {
	id    string
	venue venue.Venue
}

func New(v venue.Venue) *Adapter {
	return &Adapter{id: SourceID(v.Name(), v.ChainScope()), venue: v}
}

func (a *Adapter) ID() string         { return a.id }
func (a *Adapter) Name() string       { return a.venue.Name() }
func (a *Adapter) ChainScope() string { return a.venue.ChainScope() }

// Quote returns the current APY of the venue for asset in basis points.
func (a *Adapter) Quote(ctx context.Context, asset string) (int64, error) {
	rate, err := a.venue.RatePerSecond(ctx, asset)
	if err != nil {
		return 0, fmt.Errorf("%w: %s rate: %w", models.ErrAdapterFailure, a.Name(), err)
	}
	return APYFromRate(rate), nil
}

// Deposit moves amount into the venue and returns the shares minted against
// totalShares. The venue balance is read before custody moves.
func (a *Adapter) Deposit(ctx context.Context, asset string, amount, totalShares decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: deposit amount must be positive", models.ErrInvalidInput)
	}

	balance, err := a.venue.Balance(ctx, asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s balance: %w", models.ErrAdapterFailure, a.Name(), err)
	}

	shares := MintShares(amount, totalShares, balance)
	if !shares.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: deposit of %s mints no shares", models.ErrInvalidInput, amount)
	}

	if err := a.venue.Supply(ctx, asset, amount); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s supply: %w", models.ErrAdapterFailure, a.Name(), err)
	}

	zap.L().Debug("Adapter deposit",
		zap.String("source", a.Name()),
		zap.String("asset", asset),
		zap.String("amount", amount.String()),
		zap.String("shares", shares.String()),
		zap.String("venue_balance", balance.String()))
	return shares, nil
}

// Withdraw redeems shares out of holderShares and returns the amount released.
func (a *Adapter) Withdraw(ctx context.Context, asset string, shares, holderShares, totalShares decimal.Decimal) (decimal.Decimal, error) {
	if !shares.IsPositive() || shares.GreaterThan(holderShares) {
		return decimal.Zero, fmt.Errorf("%w: cannot redeem %s of %s shares", models.ErrInvalidInput, shares, holderShares)
	}
	if totalShares.LessThan(shares) {
		return decimal.Zero, fmt.Errorf("%w: %s tracks %s shares, %s requested",
			models.ErrAdapterFailure, a.Name(), totalShares, shares)
	}

	balance, err := a.venue.Balance(ctx, asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s balance: %w", models.ErrAdapterFailure, a.Name(), err)
	}

	amount := RedeemValue(shares, totalShares, balance)
	if amount.IsPositive() {
		if err := a.venue.Redeem(ctx, asset, amount); err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s redeem: %w", models.ErrAdapterFailure, a.Name(), err)
		}
	}

	zap.L().Debug("Adapter withdraw",
		zap.String("source", a.Name()),
		zap.String("asset", asset),
		zap.String("shares", shares.String()),
		zap.String("amount", amount.String()),
		zap.String("venue_balance", balance.String()))
	return amount, nil
}

// BalanceOf values a holding of shares at the venue's current balance.
func (a *Adapter) BalanceOf(ctx context.Context, asset string, shares, totalShares decimal.Decimal) (decimal.Decimal, error) {
	balance, err := a.venue.Balance(ctx, asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s balance: %w", models.ErrAdapterFailure, a.Name(), err)
	}
	return RedeemValue(shares, totalShares, balance), nil
}

// Restore supplies amount back to the venue without minting shares. It undoes
// a Withdraw whose ledger effects were not committed.
func (a *Adapter) Restore(ctx context.Context, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	if err := a.venue.Supply(ctx, asset, amount); err != nil {
		return fmt.Errorf("%w: %s restore: %w", models.ErrAdapterFailure, a.Name(), err)
	}
	return nil
}

// Reclaim redeems amount without burning shares. It undoes a Deposit whose
// ledger effects were not committed.
func (a *Adapter) Reclaim(ctx context.Context, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	if err := a.venue.Redeem(ctx, asset, amount); err != nil {
		return fmt.Errorf("%w: %s reclaim: %w", models.ErrAdapterFailure, a.Name(), err)
	}
	return nil
}

// MintShares is amount when the share space is empty or the venue holds
// nothing, otherwise floor(amount * totalShares / venueBalance).
func MintShares(amount, totalShares, venueBalance decimal.Decimal) decimal.Decimal {
	if totalShares.IsZero() || venueBalance.IsZero() {
		return amount
	}
	shares, _ := amount.Mul(totalShares).QuoRem(venueBalance, 0)
	return shares
}

// RedeemValue is floor(shares * venueBalance / totalShares).
func RedeemValue(shares, totalShares, venueBalance decimal.Decimal) decimal.Decimal {
	if totalShares.IsZero() {
		return decimal.Zero
	}
	value, _ := shares.Mul(venueBalance).QuoRem(totalShares, 0)
	return value
}
