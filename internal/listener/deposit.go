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


package listener

import (
	"context"
	"errors"
	"fmt"

	"yield-router-go/internal/bridge"
	"yield-router-go/internal/models"
	"yield-router-go/internal/prime"
	"yield-router-go/internal/store"

	"go.uber.org/zap"
)

const statusImported = "TRANSACTION_IMPORTED"

// symbolMapping maps Prime API's network-specific symbols to canonical symbols
var symbolMapping = map[string]string{
	"SPLUSDC":  "USDC",
	"AVAUSDC":  "USDC",
	"ARBUSDC":  "USDC",
	"BASEUSDC": "USDC",
	"BASEETH":  "ETH",
}

func normalizeSymbol(symbol string) string {
	if canonical, ok := symbolMapping[symbol]; ok {
		return canonical
	}
	return symbol
}

// inboundId namespaces Prime transaction ids among bridge transfer ids.
func inboundId(txId string) string {
	return "prime:" + txId
}

// processDeposit credits one imported deposit. It reports whether value was
// credited. Deposits that can never be credited are marked processed; failures
// that may clear later (e.g. a paused router) are left for the next poll.
func (d *InboundListener) processDeposit(ctx context.Context, dep models.InboundDeposit, wallet models.WalletInfo) (bool, error) {
	if dep.Status != statusImported {
		zap.L().Debug("Skipping deposit that is not imported yet",
			zap.String("transaction_id", dep.Id),
			zap.String("status", dep.Status))
		return false, nil
	}

	lookupAddress := dep.AccountIdentifier
	if lookupAddress == "" {
		lookupAddress = dep.Address
	}
	if lookupAddress == "" {
		zap.L().Debug("No address or account_identifier on deposit",
			zap.String("transaction_id", dep.Id))
		d.markTransactionProcessed(dep.Id)
		return false, nil
	}

	addr, err := d.store.FindAddress(ctx, lookupAddress)
	if err != nil && lookupAddress != dep.Address && dep.Address != "" {
		addr, err = d.store.FindAddress(ctx, dep.Address)
	}
	if errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("Deposit to unrecognized address - marking as processed to avoid repeated errors",
			zap.String("transaction_id", dep.Id),
			zap.String("address", lookupAddress),
			zap.String("amount", dep.Amount))
		d.markTransactionProcessed(dep.Id)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	symbol := normalizeSymbol(dep.Symbol)
	if symbol == "" {
		symbol = normalizeSymbol(wallet.AssetSymbol)
	}
	asset, err := d.store.GetAsset(ctx, symbol)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !asset.Supported) {
		zap.L().Warn("Deposit of unsupported asset - marking as processed",
			zap.String("transaction_id", dep.Id),
			zap.String("symbol", symbol))
		d.markTransactionProcessed(dep.Id)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	amount, err := prime.ToBaseUnits(dep.Amount, asset.Decimals)
	if err != nil {
		d.markTransactionProcessed(dep.Id)
		return false, err
	}
	if !amount.IsPositive() {
		zap.L().Debug("Skipping zero amount deposit", zap.String("transaction_id", dep.Id))
		d.markTransactionProcessed(dep.Id)
		return false, nil
	}

	zap.L().Info("Processing imported deposit",
		zap.String("transaction_id", dep.Id),
		zap.String("user_id", addr.UserId),
		zap.String("lookup_address", lookupAddress),
		zap.String("symbol", symbol),
		zap.String("network", dep.Network),
		zap.String("amount", dep.Amount),
		zap.String("base_units", amount.String()))

	result, err := d.bridge.OnValueReceived(models.WithOrigin(ctx, originPrime), bridge.InboundTransfer{
		Id:      inboundId(dep.Id),
		Scope:   dep.Network,
		Asset:   symbol,
		Amount:  amount,
		UserId:  addr.UserId,
		Address: dep.Address,
	})
	if err != nil {
		return false, fmt.Errorf("failed to credit deposit: %w", err)
	}

	d.markTransactionProcessed(dep.Id)
	if result.Duplicate {
		zap.L().Info("Duplicate deposit detected - already credited",
			zap.String("transaction_id", dep.Id))
		return false, nil
	}
	return true, nil
}
