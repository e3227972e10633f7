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
	"fmt"
	"sync"
	"time"

	"yield-router-go/internal/models"

	"go.uber.org/zap"
)

// Start loads the monitored wallets, catches up on the lookback window and
// then polls in the background.
func (d *InboundListener) Start(ctx context.Context) error {
	zap.L().Info("Starting inbound listener")

	if err := d.LoadMonitoredWallets(ctx); err != nil {
		return fmt.Errorf("failed to load monitored wallets: %w", err)
	}

	if len(d.monitoredWallets) == 0 {
		zap.L().Warn("No wallets to monitor - make sure trading wallets exist for supported assets")
		return fmt.Errorf("no wallets to monitor")
	}

	if err := d.performStartupRecovery(ctx); err != nil {
		zap.L().Error("Startup recovery failed", zap.Error(err))
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	go d.pollLoop(ctx)
	go d.cleanupLoop(ctx)

	zap.L().Info("Inbound listener started successfully",
		zap.Duration("polling_interval", d.pollingInterval),
		zap.Duration("lookback_window", d.lookbackWindow))

	return nil
}

// Stop gracefully stops the inbound listener
func (d *InboundListener) Stop() {
	d.stopOnce.Do(func() {
		zap.L().Info("Stopping inbound listener")
		close(d.stopChan)
		<-d.doneChan
		zap.L().Info("Inbound listener stopped")
	})
}

// pollLoop runs the main polling loop
func (d *InboundListener) pollLoop(ctx context.Context) {
	defer close(d.doneChan)

	ticker := time.NewTicker(d.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.pollWallets(ctx)
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ANSI color helpers for console output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// pollWallets polls all monitored wallets for new deposits
func (d *InboundListener) pollWallets(ctx context.Context) int {
	since := d.now().UTC().Add(-d.lookbackWindow)

	d.printer("\n%s[%s] Polling %d wallets (lookback: %s)%s\n",
		colorCyan, d.now().Format("15:04:05"), len(d.monitoredWallets), d.lookbackWindow, colorReset)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)

	for _, wallet := range d.monitoredWallets {
		wg.Add(1)

		go func(w models.WalletInfo) {
			defer wg.Done()

			n, err := d.pollWallet(ctx, w, since)
			if err != nil {
				d.printer("  %s✗ %s (%s): %s%s\n", colorRed, w.AssetSymbol, shortId(w.Id), err, colorReset)
				zap.L().Error("Failed to poll wallet",
					zap.String("wallet_id", w.Id),
					zap.String("asset_symbol", w.AssetSymbol),
					zap.Error(err))
			}
			mu.Lock()
			credited += n
			mu.Unlock()
		}(wallet)
	}

	wg.Wait()
	return credited
}

// pollWallet processes the unseen deposits of one wallet and returns how many were credited.
func (d *InboundListener) pollWallet(ctx context.Context, wallet models.WalletInfo, since time.Time) (int, error) {
	deposits, err := d.feed.ListDeposits(ctx, d.portfolioId, wallet.Id, since)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch deposits: %w", err)
	}

	credited := 0
	for _, dep := range deposits {
		if d.isTransactionProcessed(dep.Id) {
			continue
		}

		ok, err := d.processDeposit(ctx, dep, wallet)
		switch {
		case err != nil:
			d.printer("  %s✗ %s DEPOSIT %s %s | %s %s | %s%s\n",
				colorRed, wallet.AssetSymbol, dep.Status, dep.Amount, shortId(dep.Id), dep.Network, err, colorReset)
			zap.L().Error("Failed to process deposit",
				zap.String("transaction_id", dep.Id),
				zap.String("wallet_id", wallet.Id),
				zap.Error(err))
		case ok:
			credited++
			d.printer("  %s✓ %s DEPOSIT %s %s | %s %s%s\n",
				colorGreen, wallet.AssetSymbol, dep.Status, dep.Amount, shortId(dep.Id), dep.Network, colorReset)
		default:
			d.printer("  %s~ %s DEPOSIT %s %s | %s %s%s\n",
				colorYellow, wallet.AssetSymbol, dep.Status, dep.Amount, shortId(dep.Id), dep.Network, colorReset)
		}
	}
	return credited, nil
}

// performStartupRecovery credits deposits that arrived while the listener was down.
func (d *InboundListener) performStartupRecovery(ctx context.Context) error {
	zap.L().Info("Starting startup recovery process",
		zap.Time("recovery_start", d.now().UTC().Add(-d.lookbackWindow)))

	since := d.now().UTC().Add(-d.lookbackWindow)
	var totalRecovered int
	var failedWallets []string
	for _, wallet := range d.monitoredWallets {
		recovered, err := d.pollWallet(ctx, wallet, since)
		if err != nil {
			zap.L().Error("Failed to recover deposits for wallet",
				zap.String("wallet_id", wallet.Id),
				zap.String("asset_symbol", wallet.AssetSymbol),
				zap.Error(err))
			failedWallets = append(failedWallets, fmt.Sprintf("%s(%s)", wallet.AssetSymbol, wallet.Id))
			continue
		}
		totalRecovered += recovered
	}

	if len(failedWallets) > 0 {
		zap.L().Warn("Startup recovery completed with some failures",
			zap.Int("total_deposits_recovered", totalRecovered),
			zap.Int("total_wallets", len(d.monitoredWallets)),
			zap.Strings("failed_wallet_details", failedWallets))

		if len(failedWallets) > len(d.monitoredWallets)/2 {
			return fmt.Errorf("recovery failed for majority of wallets (%d/%d): %v",
				len(failedWallets), len(d.monitoredWallets), failedWallets)
		}
		return nil
	}

	zap.L().Info("Startup recovery completed successfully",
		zap.Int("total_deposits_recovered", totalRecovered),
		zap.Int("total_wallets", len(d.monitoredWallets)))
	return nil
}

func shortId(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}
