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

	"yield-router-go/internal/bridge"
	"yield-router-go/internal/models"
	"yield-router-go/internal/store"

	"go.uber.org/zap"
)

const originPrime = "bridge:prime"

// DepositFeed lists custody wallets and the deposits arriving in them.
type DepositFeed interface {
	ListWallets(ctx context.Context, portfolioId, walletType string, symbols []string) ([]models.Wallet, error)
	ListDeposits(ctx context.Context, portfolioId, walletId string, since time.Time) ([]models.InboundDeposit, error)
}

// Crediter credits an inbound transfer to its user exactly once.
type Crediter interface {
	OnValueReceived(ctx context.Context, in bridge.InboundTransfer) (*bridge.InboundResult, error)
}

// InboundListenerConfig contains configuration for InboundListener
type InboundListenerConfig struct {
	Feed            DepositFeed
	Bridge          Crediter
	Store           store.Store
	PortfolioId     string
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
}

// InboundListener polls custody wallets for imported deposits and credits
// each one to the user owning the receiving address.
type InboundListener struct {
	feed     DepositFeed
	bridge   Crediter
	store    store.Store
	now      func() time.Time
	printer  func(format string, args ...any)
	stopOnce sync.Once

	// State management for processed transactions
	processedTxIds  map[string]time.Time
	mutex           sync.RWMutex
	lookbackWindow  time.Duration
	pollingInterval time.Duration
	cleanupInterval time.Duration

	// Monitoring configuration
	portfolioId      string
	monitoredWallets []models.WalletInfo

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewInboundListener creates a new inbound deposit listener
func NewInboundListener(cfg InboundListenerConfig) *InboundListener {
	if cfg.LookbackWindow <= 0 {
		cfg.LookbackWindow = 6 * time.Hour
	}
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 30 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 15 * time.Minute
	}
	return &InboundListener{
		feed:            cfg.Feed,
		bridge:          cfg.Bridge,
		store:           cfg.Store,
		now:             time.Now,
		printer:         func(format string, args ...any) { fmt.Printf(format, args...) },
		processedTxIds:  make(map[string]time.Time),
		lookbackWindow:  cfg.LookbackWindow,
		pollingInterval: cfg.PollingInterval,
		cleanupInterval: cfg.CleanupInterval,
		portfolioId:     cfg.PortfolioId,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// LoadMonitoredWallets discovers the trading wallets of every supported asset.
func (d *InboundListener) LoadMonitoredWallets(ctx context.Context) error {
	assets, err := d.store.ListAssets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}

	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.Supported {
			symbols = append(symbols, a.Symbol)
		}
	}
	if len(symbols) == 0 {
		d.monitoredWallets = nil
		return nil
	}

	wallets, err := d.feed.ListWallets(ctx, d.portfolioId, "TRADING", symbols)
	if err != nil {
		return fmt.Errorf("failed to list wallets: %w", err)
	}

	d.monitoredWallets = make([]models.WalletInfo, 0, len(wallets))
	seen := make(map[string]bool)
	for _, w := range wallets {
		if seen[w.Id] {
			continue
		}
		seen[w.Id] = true
		d.monitoredWallets = append(d.monitoredWallets, models.WalletInfo{
			Id:          w.Id,
			AssetSymbol: w.Symbol,
		})
	}

	zap.L().Info("Monitoring Prime wallets",
		zap.Int("count", len(d.monitoredWallets)),
		zap.Strings("symbols", symbols))
	return nil
}

// isTransactionProcessed checks if we've already processed this transaction
func (d *InboundListener) isTransactionProcessed(txId string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	_, exists := d.processedTxIds[txId]
	return exists
}

// markTransactionProcessed marks a transaction as processed
func (d *InboundListener) markTransactionProcessed(txId string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.processedTxIds[txId] = d.now()
}

// cleanupLoop periodically cleans old processed transaction IDs
func (d *InboundListener) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.cleanupProcessedTransactions()
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanupProcessedTransactions removes entries older than the lookback window;
// deposits that old are no longer returned by a poll.
func (d *InboundListener) cleanupProcessedTransactions() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	cutoff := d.now().Add(-d.lookbackWindow)
	cleaned := 0

	for txId, processedTime := range d.processedTxIds {
		if processedTime.Before(cutoff) {
			delete(d.processedTxIds, txId)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up old processed transactions",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(d.processedTxIds)))
	}
}
