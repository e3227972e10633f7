package formance

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AccountBalance is one asset balance of a ledger account. Raw is in base
// units, Amount in whole units.
type AccountBalance struct {
	Account string
	Asset   string
	Raw     decimal.Decimal
	Amount  decimal.Decimal
}

// PositionBalance returns the principal the ledger holds for a user's position in a source.
func (s *Service) PositionBalance(ctx context.Context, userId, sourceId, asset string) (decimal.Decimal, error) {
	addr := "positions:" + accountSegment(userId) + ":" + accountSegment(sourceId)
	vols, err := s.getAccountVolumes(ctx, addr)
	if err != nil {
		return decimal.Zero, err
	}
	if bal := volumeBalance(vols, s.asset(asset)); bal != nil {
		return decimal.NewFromBigInt(bal, 0), nil
	}
	return decimal.Zero, nil
}

// WalletBalances returns the non-zero balances of a user's wallet account.
func (s *Service) WalletBalances(ctx context.Context, userId string) ([]AccountBalance, error) {
	return s.AccountBalances(ctx, "users:"+accountSegment(userId)+":wallet")
}

// FeesCollected returns the fee balances the ledger has recorded.
func (s *Service) FeesCollected(ctx context.Context) ([]AccountBalance, error) {
	return s.AccountBalances(ctx, "fees:collected")
}

// AccountBalances returns all non-zero balances of address sorted by asset.
func (s *Service) AccountBalances(ctx context.Context, address string) ([]AccountBalance, error) {
	zap.L().Debug("Getting account balances from Formance", zap.String("address", address))

	vols, err := s.getAccountVolumes(ctx, address)
	if err != nil {
		return nil, err
	}

	var balances []AccountBalance
	for fAsset := range vols {
		bal := volumeBalance(vols, fAsset)
		if bal == nil || bal.Sign() == 0 {
			continue
		}
		symbol := assetSymbol(fAsset)
		balances = append(balances, AccountBalance{
			Account: address,
			Asset:   symbol,
			Raw:     decimal.NewFromBigInt(bal, 0),
			Amount:  bigIntToDecimal(bal, s.precisionFor(symbol)),
		})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Asset < balances[j].Asset })
	return balances, nil
}

// ---------- helpers ----------

func (s *Service) getAccountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account volumes for %s: %w", address, err)
	}
	return resp.V2AccountResponse.Data.Volumes, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a base-unit amount to whole units.
func bigIntToDecimal(raw *big.Int, precision int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precision))
}

// assetSymbol extracts the symbol from a Formance asset like "USDC/6".
func assetSymbol(fAsset string) string {
	for i, c := range fAsset {
		if c == '/' {
			return fAsset[:i]
		}
	}
	return fAsset
}
