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

	"go.uber.org/zap"
)

func main() {
	ctx := models.WithOrigin(context.Background(), "cli:deposit")

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id (required)")
	assetFlag := flag.String("asset", "", "Asset symbol (e.g., USDC) (required)")
	amountFlag := flag.String("amount", "", "Amount to deposit, in asset units (required)")
	flag.Parse()

	if *userFlag == "" || *assetFlag == "" || *amountFlag == "" {
		zap.L().Fatal("All flags are required: --user, --asset, --amount")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	amount, err := common.BaseAmount(ctx, services.DbService, *assetFlag, *amountFlag)
	if err != nil {
		zap.L().Fatal("Invalid amount", zap.String("amount", *amountFlag), zap.Error(err))
	}

	result, err := services.API.Deposit(ctx, *userFlag, *assetFlag, amount)
	if err != nil {
		zap.L().Fatal("Deposit failed", zap.Error(err))
	}
	if !result.Success {
		common.PrintHeader("DEPOSIT FAILED", common.DefaultWidth)
		fmt.Printf("Error: %s\n", result.Error)
		common.PrintSeparator("=", common.DefaultWidth)
		zap.L().Fatal("Deposit rejected", zap.String("error", result.Error))
	}

	source, err := services.DbService.GetSource(ctx, result.SourceId)
	sourceName := result.SourceId
	if err == nil {
		sourceName = fmt.Sprintf("%s (%s)", source.Name, source.ChainScope)
	}

	common.PrintHeader("DEPOSIT ROUTED", common.DefaultWidth)
	fmt.Printf("User:    %s\n", result.UserId)
	fmt.Printf("Amount:  %s %s\n", common.DisplayAmount(ctx, services.DbService, result.Asset, result.Amount), result.Asset)
	fmt.Printf("Source:  %s\n", sourceName)
	fmt.Printf("APY:     %d bps\n", result.APY)
	fmt.Printf("Shares:  %s\n", result.Shares.String())
	common.PrintSeparator("=", common.DefaultWidth)

	zap.L().Info("Deposit completed",
		zap.String("user_id", result.UserId),
		zap.String("asset", result.Asset),
		zap.String("source_id", result.SourceId))
}
