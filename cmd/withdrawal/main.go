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

	"yield-router-go/internal/bridge"
	"yield-router-go/internal/common"
	"yield-router-go/internal/config"
	"yield-router-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type withdrawalRequest struct {
	userId    string
	asset     string
	amount    string
	scope     string
	recipient string
}

func parseAndValidateFlags() (*withdrawalRequest, error) {
	userFlag := flag.String("user", "", "User id (required)")
	assetFlag := flag.String("asset", "", "Asset symbol (e.g., USDC) (required)")
	amountFlag := flag.String("amount", "", "Principal to withdraw, in asset units (required)")
	scopeFlag := flag.String("scope", "", "Destination chain scope for a cross-chain send (optional)")
	recipientFlag := flag.String("recipient", "", "Destination address for a cross-chain send (optional)")
	flag.Parse()

	if *userFlag == "" || *assetFlag == "" || *amountFlag == "" {
		return nil, fmt.Errorf("flags required: --user, --asset, --amount")
	}
	if (*scopeFlag == "") != (*recipientFlag == "") {
		return nil, fmt.Errorf("--scope and --recipient must be given together")
	}

	return &withdrawalRequest{
		userId:    *userFlag,
		asset:     *assetFlag,
		amount:    *amountFlag,
		scope:     *scopeFlag,
		recipient: *recipientFlag,
	}, nil
}

func printWithdrawalResult(ctx context.Context, services *common.Services, result *models.WithdrawalResult) {
	show := func(v decimal.Decimal) string {
		return common.DisplayAmount(ctx, services.DbService, result.Asset, v)
	}

	common.PrintHeader("WITHDRAWAL", common.DefaultWidth)
	fmt.Printf("User:            %s\n", result.UserId)
	fmt.Printf("Principal:       %s %s\n", show(result.Principal), result.Asset)
	fmt.Printf("Received:        %s %s\n", show(result.Received), result.Asset)
	fmt.Printf("Yield:           %s %s\n", show(result.Yield), result.Asset)
	fmt.Printf("Fee:             %s %s\n", show(result.Fee), result.Asset)
	fmt.Printf("Net:             %s %s\n", show(result.Net), result.Asset)
	fmt.Printf("Shares redeemed: %s\n", result.SharesRedeemed.String())
	common.PrintSeparator("=", common.DefaultWidth)
}

func withdrawLocally(ctx context.Context, services *common.Services, req *withdrawalRequest, principal decimal.Decimal) {
	result, err := services.API.Withdraw(ctx, req.userId, req.asset, principal)
	if err != nil {
		zap.L().Fatal("Withdrawal failed", zap.Error(err))
	}
	if !result.Success {
		common.PrintHeader("WITHDRAWAL FAILED", common.DefaultWidth)
		fmt.Printf("Error: %s\n", result.Error)
		common.PrintSeparator("=", common.DefaultWidth)
		zap.L().Fatal("Withdrawal rejected", zap.String("error", result.Error))
	}
	printWithdrawalResult(ctx, services, result)
}

func sendCrossChain(ctx context.Context, services *common.Services, req *withdrawalRequest, principal decimal.Decimal) {
	fmt.Printf("🔄 Sending to %s on %s...\n", req.recipient, req.scope)
	sent, err := services.API.SendCrossChain(ctx, bridge.SendRequest{
		UserId:    req.userId,
		Asset:     req.asset,
		Principal: principal,
		Scope:     req.scope,
		Recipient: req.recipient,
	})
	if err != nil {
		fmt.Println("❌ Cross-chain send failed")
		zap.L().Fatal("Cross-chain send failed", zap.Error(err))
	}

	printWithdrawalResult(ctx, services, sent.Withdrawal)
	fmt.Println("\n✅ Transfer accepted")
	fmt.Printf("   Request ID:  %s\n", sent.Request.Id)
	fmt.Printf("   External ID: %s\n", sent.Request.ExternalId)
	fmt.Printf("   Nonce:       %d\n\n", sent.Request.Nonce)
}

func main() {
	ctx := models.WithOrigin(context.Background(), "cli:withdrawal")

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	zap.L().Info("Starting withdrawal",
		zap.String("user_id", req.userId),
		zap.String("asset", req.asset),
		zap.String("amount", req.amount),
		zap.String("scope", req.scope))

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	zap.L().Info("Initializing services")
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	principal, err := common.BaseAmount(ctx, services.DbService, req.asset, req.amount)
	if err != nil {
		zap.L().Fatal("Invalid amount", zap.String("amount", req.amount), zap.Error(err))
	}

	if req.scope == "" {
		withdrawLocally(ctx, services, req, principal)
	} else {
		sendCrossChain(ctx, services, req, principal)
	}

	zap.L().Info("Withdrawal completed",
		zap.String("user_id", req.userId),
		zap.String("asset", req.asset),
		zap.String("principal", principal.String()))
}
