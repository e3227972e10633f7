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

package main

import (
	"context"
	"flag"
	"fmt"

	"yield-router-go/internal/common"
	"yield-router-go/internal/config"
	"yield-router-go/internal/models"
	"yield-router-go/internal/store"

	"go.uber.org/zap"
)

type reportStats struct {
	created  int
	existing int
	failed   []string
}

func printAddress(addr models.Address, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	assetNetwork := fmt.Sprintf("%s-%s", addr.Asset, addr.Network)
	fmt.Printf("%s %-30s → %s\n", symbol, assetNetwork, addr.Address)

	if shouldPrintAccountIdentifier(addr) {
		detailSymbol := common.BoxDetailPrefix(isLast)
		fmt.Printf("%s   Account ID: %s\n", detailSymbol, addr.AccountIdentifier)
	}
}

func shouldPrintAccountIdentifier(addr models.Address) bool {
	return addr.AccountIdentifier != "" && addr.AccountIdentifier != addr.Address
}

// ensureAddress returns the user's stored address for the asset, issuing one
// through Prime when none exists yet.
func ensureAddress(ctx context.Context, services *common.Services, userId string, assetConfig common.AssetConfig) (*models.Address, bool, error) {
	existing, err := services.DbService.GetAddresses(ctx, userId, assetConfig.Symbol, assetConfig.Network)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check existing addresses: %w", err)
	}
	if len(existing) > 0 {
		return &existing[0], false, nil
	}

	wallet, err := services.PrimeService.TradingWallet(ctx, services.DefaultPortfolio.Id,
		assetConfig.Symbol, fmt.Sprintf("%s Trading Wallet", assetConfig.Symbol))
	if err != nil {
		return nil, false, err
	}

	zap.L().Info("Creating deposit address",
		zap.String("user_id", userId),
		zap.String("asset", assetConfig.Symbol),
		zap.String("network", assetConfig.Network),
		zap.String("wallet_id", wallet.Id))

	depositAddress, err := services.PrimeService.CreateDepositAddress(ctx, services.DefaultPortfolio.Id,
		wallet.Id, assetConfig.Symbol, assetConfig.Network)
	if err != nil {
		return nil, false, err
	}

	stored, err := services.DbService.StoreAddress(ctx, store.StoreAddressParams{
		UserId:            userId,
		Asset:             assetConfig.Symbol,
		Network:           assetConfig.Network,
		Address:           depositAddress.Address,
		WalletId:          wallet.Id,
		AccountIdentifier: depositAddress.Id,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to store address: %w", err)
	}

	if services.Formance != nil {
		if err := services.Formance.MirrorAddress(ctx, *stored); err != nil {
			zap.L().Warn("Failed to mirror address to ledger",
				zap.String("address", stored.Address),
				zap.Error(err))
		}
	}

	return stored, true, nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id to issue deposit addresses for (required)")
	assetFlag := flag.String("asset", "", "Limit to one asset symbol (optional)")
	flag.Parse()

	if *userFlag == "" {
		logger.Fatal("Flag --user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if services.PrimeService == nil {
		logger.Fatal("Prime credentials are required to issue deposit addresses")
	}

	var addresses []models.Address
	stats := reportStats{}
	for _, assetConfig := range services.Catalog.Assets {
		if *assetFlag != "" && assetConfig.Symbol != *assetFlag {
			continue
		}
		if assetConfig.Network == "" || !assetConfig.IsSupported() {
			continue
		}

		addr, created, err := ensureAddress(ctx, services, *userFlag, assetConfig)
		if err != nil {
			stats.failed = append(stats.failed, assetConfig.Symbol)
			logger.Error("Failed to issue deposit address",
				zap.String("user_id", *userFlag),
				zap.String("asset", assetConfig.Symbol),
				zap.Error(err))
			continue
		}
		if created {
			stats.created++
		} else {
			stats.existing++
		}
		addresses = append(addresses, *addr)
	}

	common.PrintHeader("DEPOSIT ADDRESSES REPORT", common.WideWidth)
	fmt.Printf("\n┌─ User: %s\n", *userFlag)
	fmt.Printf("│  Addresses: %d\n", len(addresses))
	common.PrintBoxSeparator(98)
	for i, addr := range addresses {
		printAddress(addr, i == len(addresses)-1)
	}

	summary := fmt.Sprintf("SUMMARY: %d created, %d existing, %d failed", stats.created, stats.existing, len(stats.failed))
	common.PrintFooter(summary, common.WideWidth)

	logger.Info("Address generation completed",
		zap.Int("created", stats.created),
		zap.Int("existing", stats.existing),
		zap.Strings("failed", stats.failed))
}
