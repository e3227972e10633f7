// Package venue binds the router to external lending markets.
package venue

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInsufficientLiquidity is returned when a venue cannot release the requested amount.
var ErrInsufficientLiquidity = errors.New("insufficient venue liquidity")

// Venue is an external lending market holding the router's custody of an asset.
// Amounts are integers in the asset's smallest unit.
type Venue interface {
	Name() string
	ChainScope() string
	// RatePerSecond is the supply rate scaled by 1e18 (1e18 = 100% per second).
	RatePerSecond(ctx context.Context, asset string) (decimal.Decimal, error)
	// Balance is the router's current holding, yield included.
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
	Supply(ctx context.Context, asset string, amount decimal.Decimal) error
	Redeem(ctx context.Context, asset string, amount decimal.Decimal) error
}
