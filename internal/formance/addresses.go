package formance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"yield-router-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"go.uber.org/zap"
)

// MirrorAddress copies a deposit address onto the user's wallet account metadata
// so ledger readers can see where inbound value for the user arrives.
func (s *Service) MirrorAddress(ctx context.Context, addr models.Address) error {
	account := "users:" + accountSegment(addr.UserId) + ":wallet"

	zap.L().Info("Mirroring deposit address to Formance",
		zap.String("account", account),
		zap.String("asset", addr.Asset),
		zap.String("address", addr.Address))

	meta, err := s.accountMetadata(ctx, account)
	if err != nil {
		return err
	}

	existing := parseJSONMapList(meta["deposit_addresses"])
	existing[addr.Asset] = appendUnique(existing[addr.Asset], addr.Address)

	wallets := parseJSONMap(meta["wallet_ids"])
	if addr.WalletId != "" {
		wallets[addr.Asset] = addr.WalletId
	}

	depositJSON, _ := json.Marshal(existing)
	walletJSON, _ := json.Marshal(wallets)

	update := map[string]string{
		"user_id":                 addr.UserId,
		"deposit_addresses":       string(depositJSON),
		"wallet_ids":              string(walletJSON),
		addrMetaKey(addr.Address): addr.Asset,
	}
	if addr.AccountIdentifier != "" {
		update["account_identifier"] = addr.AccountIdentifier
	}
	return s.annotate(ctx, account, update)
}

// Addresses returns the deposit addresses mirrored for a user, optionally
// filtered by asset.
func (s *Service) Addresses(ctx context.Context, userId, asset string) ([]models.Address, error) {
	meta, err := s.accountMetadata(ctx, "users:"+accountSegment(userId)+":wallet")
	if err != nil {
		return nil, err
	}
	return parseAddressesFromMeta(userId, asset, meta), nil
}

func (s *Service) accountMetadata(ctx context.Context, account string) (map[string]string, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: account,
	})
	if err != nil {
		if isNotFoundError(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to get account %s: %w", account, err)
	}
	return resp.V2AccountResponse.Data.Metadata, nil
}

// ---------- helpers ----------

// addrMetaKey returns the metadata key for a deposit address.
func addrMetaKey(address string) string {
	return "deposit_addr_" + strings.ToLower(address)
}

// parseJSONMap parses a JSON-encoded string map.
func parseJSONMap(raw string) map[string]string {
	if raw == "" {
		return make(map[string]string)
	}
	var m map[string]string
	if json.Unmarshal([]byte(raw), &m) != nil {
		return make(map[string]string)
	}
	return m
}

// parseJSONMapList parses deposit_addresses which can be either:
//   - a list per asset: {"USDC": ["0xabc", "0xdef"]}
//   - a single address per asset: {"USDC": "0xabc"}
func parseJSONMapList(raw string) map[string][]string {
	if raw == "" {
		return make(map[string][]string)
	}
	var listMap map[string][]string
	if json.Unmarshal([]byte(raw), &listMap) == nil {
		return listMap
	}
	var strMap map[string]string
	if json.Unmarshal([]byte(raw), &strMap) == nil {
		result := make(map[string][]string, len(strMap))
		for k, v := range strMap {
			result[k] = []string{v}
		}
		return result
	}
	return make(map[string][]string)
}

// appendUnique appends a value to a slice only if it's not already present.
func appendUnique(slice []string, val string) []string {
	for _, v := range slice {
		if strings.EqualFold(v, val) {
			return slice
		}
	}
	return append(slice, val)
}

// parseAddressesFromMeta extracts models.Address entries from wallet account metadata.
func parseAddressesFromMeta(userId, assetFilter string, meta map[string]string) []models.Address {
	depAddrs := parseJSONMapList(meta["deposit_addresses"])
	walletIDs := parseJSONMap(meta["wallet_ids"])
	if len(depAddrs) == 0 {
		return nil
	}

	var result []models.Address
	for asset, addrs := range depAddrs {
		if assetFilter != "" && asset != assetFilter {
			continue
		}
		for _, addr := range addrs {
			result = append(result, models.Address{
				UserId:            userId,
				Asset:             asset,
				Address:           addr,
				WalletId:          walletIDs[asset],
				AccountIdentifier: meta["account_identifier"],
			})
		}
	}
	return result
}
