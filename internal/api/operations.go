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


package api

import (
	"context"
	"fmt"

	"yield-router-go/internal/bridge"
	"yield-router-go/internal/models"
	"yield-router-go/internal/router"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Deposit routes amount (base units) for a user. Routing failures are reported
// in the result; the returned error is reserved for unusable requests.
func (s *LedgerService) Deposit(ctx context.Context, userId, asset string, amount decimal.Decimal) (*models.DepositResult, error) {
	if userId == "" || asset == "" {
		return &models.DepositResult{Success: false, Error: "invalid deposit parameters"}, nil
	}

	result, err := s.router.Deposit(ctx, router.DepositRequest{UserId: userId, Asset: asset, Amount: amount})
	if err != nil {
		zap.L().Warn("Deposit rejected",
			zap.String("user_id", userId),
			zap.String("asset", asset),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return &models.DepositResult{Success: false, UserId: userId, Asset: asset, Amount: amount, Error: err.Error()}, nil
	}
	return result, nil
}

// Withdraw redeems a principal portion of a user's position.
func (s *LedgerService) Withdraw(ctx context.Context, userId, asset string, principal decimal.Decimal) (*models.WithdrawalResult, error) {
	if userId == "" || asset == "" {
		return &models.WithdrawalResult{Success: false, Error: "invalid withdrawal parameters"}, nil
	}

	result, err := s.router.Withdraw(ctx, router.WithdrawRequest{UserId: userId, Asset: asset, Principal: principal})
	if err != nil {
		zap.L().Warn("Withdrawal rejected",
			zap.String("user_id", userId),
			zap.String("asset", asset),
			zap.String("principal", principal.String()),
			zap.Error(err))
		return &models.WithdrawalResult{Success: false, UserId: userId, Asset: asset, Principal: principal, Error: err.Error()}, nil
	}
	return result, nil
}

// Rebalance moves a user's position to the best source when the gain clears
// the asset threshold.
func (s *LedgerService) Rebalance(ctx context.Context, userId, asset string) (*models.RebalanceResult, error) {
	if userId == "" || asset == "" {
		return &models.RebalanceResult{Success: false, Error: "invalid rebalance parameters"}, nil
	}

	result, err := s.router.Rebalance(ctx, userId, asset)
	if err != nil {
		zap.L().Info("Rebalance not performed",
			zap.String("user_id", userId),
			zap.String("asset", asset),
			zap.Error(err))
		return &models.RebalanceResult{Success: false, UserId: userId, Asset: asset, Error: err.Error()}, nil
	}
	return result, nil
}

// SendCrossChain withdraws a principal portion and ships the proceeds to
// recipient on scope.
func (s *LedgerService) SendCrossChain(ctx context.Context, req bridge.SendRequest) (*bridge.SendResult, error) {
	if s.bridge == nil {
		return nil, fmt.Errorf("%w: cross-chain transport is not configured", models.ErrInvalidInput)
	}
	return s.bridge.Send(ctx, req)
}
