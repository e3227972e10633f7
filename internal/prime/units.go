package prime

import (
	"fmt"

	"yield-router-go/internal/models"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a Prime decimal amount such as "1.5" into integer base
// units. Amounts finer than the asset's precision are rejected.
func ToBaseUnits(amount string, decimals int32) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid amount %q: %v", models.ErrInvalidInput, amount, err)
	}
	base := d.Shift(decimals)
	if !base.Equal(base.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("%w: amount %s exceeds %d decimals", models.ErrInvalidInput, amount, decimals)
	}
	return base.Truncate(0), nil
}

// FromBaseUnits renders integer base units as the decimal string Prime expects.
func FromBaseUnits(amount decimal.Decimal, decimals int32) string {
	return amount.Shift(-decimals).String()
}
