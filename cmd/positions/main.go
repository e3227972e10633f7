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
	"yield-router-go/internal/formance"
	"yield-router-go/internal/models"

	"go.uber.org/zap"
)

func shortId(id string) string {
	if id == "" {
		return "none"
	}
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

func printPosition(ctx context.Context, services *common.Services, view models.PositionView, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	detail := common.BoxDetailPrefix(isLast)

	fmt.Printf("%s %-8s in %-20s (source %s)\n", symbol, view.Asset, view.SourceName, shortId(view.SourceId))
	fmt.Printf("%s   principal: %s  value: %s  unrealized yield: %s\n", detail,
		common.DisplayAmount(ctx, services.DbService, view.Asset, view.Principal),
		common.DisplayAmount(ctx, services.DbService, view.Asset, view.Value),
		common.DisplayAmount(ctx, services.DbService, view.Asset, view.UnrealizedYield))
	fmt.Printf("%s   shares: %s  since: %s\n", detail, view.Shares.String(), view.DepositedAt.Format("2006-01-02 15:04:05"))
}

func printUserPositions(ctx context.Context, services *common.Services, userId string) (int, error) {
	views, err := services.API.GetPositions(ctx, userId)
	if err != nil {
		return 0, err
	}

	fmt.Printf("\n┌─ User: %s\n", userId)
	fmt.Printf("│  Positions: %d\n", len(views))
	common.PrintBoxSeparator(78)
	for i, view := range views {
		printPosition(ctx, services, view, i == len(views)-1)
	}
	return len(views), nil
}

func printHistory(ctx context.Context, services *common.Services, userId string, limit int) error {
	events, err := services.API.GetEventHistory(ctx, userId, limit, 0)
	if err != nil {
		return err
	}

	fmt.Printf("\n┌─ Recent events: %d\n", len(events))
	common.PrintBoxSeparator(78)
	for i, ev := range events {
		fmt.Printf("%s #%-5d %-18s %-8s %20s  %s (%s)\n", common.BoxPrefix(i == len(events)-1),
			ev.Seq, ev.Type, ev.Asset,
			common.DisplayAmount(ctx, services.DbService, ev.Asset, ev.Amount),
			ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.Origin)
	}
	return nil
}

func printSources(ctx context.Context, services *common.Services) error {
	sources, err := services.API.ListSources(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n┌─ Yield sources: %d\n", len(sources))
	common.PrintBoxSeparator(78)
	for i, src := range sources {
		state := "active"
		if !src.Active {
			state = "inactive"
		}
		fmt.Printf("%s %-20s %-18s %6d bps  %-8s (%s)\n", common.BoxPrefix(i == len(sources)-1),
			src.Name, src.ChainScope, src.CurrentAPY, state, shortId(src.Id))
	}
	return nil
}

func printFees(ctx context.Context, services *common.Services) error {
	accruals, err := services.API.FeeAccruals(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n┌─ Fee accruals: %d\n", len(accruals))
	common.PrintBoxSeparator(78)
	for i, fee := range accruals {
		fmt.Printf("%s %-8s → %-12s %s (updated: %s)\n", common.BoxPrefix(i == len(accruals)-1),
			fee.Asset, fee.Sink,
			common.DisplayAmount(ctx, services.DbService, fee.Asset, fee.Accrued),
			fee.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func printLedgerBalances(title string, balances []formance.AccountBalance) {
	fmt.Printf("\n┌─ %s: %d\n", title, len(balances))
	common.PrintBoxSeparator(78)
	for i, b := range balances {
		fmt.Printf("%s %-40s %-8s %s\n", common.BoxPrefix(i == len(balances)-1), b.Account, b.Asset, b.Amount.String())
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "Show positions of this user (optional)")
	historyFlag := flag.Int("history", 0, "Number of recent events to show for --user (optional)")
	ledgerFlag := flag.Bool("ledger", false, "Also show balances projected to the Formance ledger")
	flag.Parse()

	logger.Info("Starting position query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	common.PrintHeader("YIELD ROUTER POSITIONS REPORT", common.DefaultWidth)

	if err := printSources(ctx, services); err != nil {
		logger.Fatal("Failed to list sources", zap.Error(err))
	}

	count := 0
	if *userFlag != "" {
		count, err = printUserPositions(ctx, services, *userFlag)
		if err != nil {
			logger.Fatal("Failed to get positions", zap.String("user_id", *userFlag), zap.Error(err))
		}
		if *historyFlag > 0 {
			if err := printHistory(ctx, services, *userFlag, *historyFlag); err != nil {
				logger.Error("Failed to get event history", zap.Error(err))
			}
		}
	}

	if err := printFees(ctx, services); err != nil {
		logger.Fatal("Failed to list fee accruals", zap.Error(err))
	}

	if *ledgerFlag {
		if services.Formance == nil {
			logger.Warn("Formance is not configured, skipping ledger balances")
		} else {
			if *userFlag != "" {
				wallet, err := services.Formance.WalletBalances(ctx, *userFlag)
				if err != nil {
					logger.Error("Failed to read wallet balances", zap.Error(err))
				} else {
					printLedgerBalances("Ledger wallet", wallet)
				}
			}
			collected, err := services.Formance.FeesCollected(ctx)
			if err != nil {
				logger.Error("Failed to read collected fees", zap.Error(err))
			} else {
				printLedgerBalances("Ledger fees", collected)
			}
		}
	}

	common.PrintFooter(fmt.Sprintf("SUMMARY: %d positions", count), common.DefaultWidth)

	logger.Info("Position query completed", zap.Int("positions", count))
}
