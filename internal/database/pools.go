package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"yield-router-go/internal/models"

	"github.com/shopspring/decimal"
)

// LoadPool returns the persisted state of a simulated pool, or a zero balance
// with a zero AccruedAt when the pool was never touched.
func (s *Service) LoadPool(ctx context.Context, venue, asset string) (*models.PoolState, error) {
	state := &models.PoolState{Venue: venue, Asset: asset, Balance: decimal.Zero}
	var balanceStr string
	err := s.db.QueryRowContext(ctx, queryGetPool, venue, asset).Scan(&state.Venue, &state.Asset, &balanceStr, &state.AccruedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pool %s/%s: %w", venue, asset, err)
	}
	if state.Balance, err = parseDecimal("balance", balanceStr); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Service) SavePool(ctx context.Context, state *models.PoolState) error {
	_, err := s.db.ExecContext(ctx, queryUpsertPool, state.Venue, state.Asset, state.Balance.String(), state.AccruedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save pool %s/%s: %w", state.Venue, state.Asset, err)
	}
	return nil
}
