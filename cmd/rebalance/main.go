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
	ctx := models.WithOrigin(context.Background(), "cli:rebalance")

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id (required)")
	assetFlag := flag.String("asset", "", "Asset symbol (e.g., USDC) (required)")
	flag.Parse()

	if *userFlag == "" || *assetFlag == "" {
		zap.L().Fatal("All flags are required: --user, --asset")
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

	result, err := services.API.Rebalance(ctx, *userFlag, *assetFlag)
	if err != nil {
		zap.L().Fatal("Rebalance failed", zap.Error(err))
	}
	if !result.Success {
		common.PrintHeader("REBALANCE SKIPPED", common.DefaultWidth)
		fmt.Printf("Reason: %s\n", result.Error)
		common.PrintSeparator("=", common.DefaultWidth)
		return
	}

	common.PrintHeader("REBALANCED", common.DefaultWidth)
	fmt.Printf("User:   %s\n", result.UserId)
	fmt.Printf("From:   %s (%d bps)\n", result.FromSource, result.FromAPY)
	fmt.Printf("To:     %s (%d bps)\n", result.ToSource, result.ToAPY)
	fmt.Printf("Moved:  %s %s\n", common.DisplayAmount(ctx, services.DbService, result.Asset, result.Moved), result.Asset)
	fmt.Printf("Shares: %s\n", result.NewShares.String())
	common.PrintSeparator("=", common.DefaultWidth)
}
