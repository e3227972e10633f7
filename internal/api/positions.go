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

	"yield-router-go/internal/models"

	"go.uber.org/zap"
)

// GetPosition returns a user's position in one asset with its current value.
func (s *LedgerService) GetPosition(ctx context.Context, userId, asset string) (*models.PositionView, error) {
	if userId == "" || asset == "" {
		return nil, fmt.Errorf("%w: user_id and asset are required", models.ErrInvalidInput)
	}

	view, err := s.router.Value(ctx, userId, asset)
	if err != nil {
		zap.L().Error("Failed to value position",
			zap.String("user_id", userId),
			zap.String("asset", asset),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve position: %w", err)
	}
	return view, nil
}

// GetPositions returns every position a user holds
func (s *LedgerService) GetPositions(ctx context.Context, userId string) ([]models.PositionView, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: user_id is required", models.ErrInvalidInput)
	}

	views, err := s.router.Positions(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to get positions", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve positions: %w", err)
	}
	return views, nil
}

// GetEventHistory returns a user's events, newest first.
func (s *LedgerService) GetEventHistory(ctx context.Context, userId string, limit, offset int) ([]models.Event, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: user_id is required", models.ErrInvalidInput)
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	events, err := s.store.ListEvents(ctx, userId, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get event history", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve event history: %w", err)
	}
	return events, nil
}

// ListSources returns every registered yield source.
func (s *LedgerService) ListSources(ctx context.Context) ([]models.YieldSource, error) {
	return s.store.ListSources(ctx)
}

// FeeAccruals returns the fee totals credited per asset and sink.
func (s *LedgerService) FeeAccruals(ctx context.Context) ([]models.FeeAccrual, error) {
	return s.store.ListFeeAccruals(ctx)
}
