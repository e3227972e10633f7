package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"yield-router-go/internal/models"
	"yield-router-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanPosition(row rowScanner) (*models.Position, error) {
	var pos models.Position
	var principalStr, sharesStr string
	var depositedAt sql.NullTime
	if err := row.Scan(&pos.UserId, &pos.Asset, &principalStr, &sharesStr, &pos.SourceId,
		&depositedAt, &pos.Version, &pos.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if pos.DepositedPrincipal, err = parseDecimal("deposited_principal", principalStr); err != nil {
		return nil, err
	}
	if pos.Shares, err = parseDecimal("shares", sharesStr); err != nil {
		return nil, err
	}
	if depositedAt.Valid {
		pos.DepositTimestamp = depositedAt.Time
	}
	return &pos, nil
}

func (r reader) GetPosition(ctx context.Context, userId, asset string) (*models.Position, error) {
	pos, err := scanPosition(r.q.QueryRowContext(ctx, queryGetPosition, userId, asset))
	if errors.Is(err, sql.ErrNoRows) {
		return &models.Position{
			UserId:             userId,
			Asset:              asset,
			DepositedPrincipal: decimal.Zero,
			Shares:             decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return pos, nil
}

// ListPositions returns the positions of one user, or of every user when userId is empty.
func (r reader) ListPositions(ctx context.Context, userId string) ([]models.Position, error) {
	zap.L().Debug("Listing positions", zap.String("user_id", userId))

	var rows *sql.Rows
	var err error
	if userId == "" {
		rows, err = r.q.QueryContext(ctx, queryListAllPositions)
	} else {
		rows, err = r.q.QueryContext(ctx, queryListUserPositions, userId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer closeRows(rows)

	var positions []models.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *pos)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during position row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// SavePosition writes pos with optimistic locking on Version.
func (t *txStore) SavePosition(ctx context.Context, pos *models.Position) error {
	if pos.DepositedPrincipal.IsNegative() || pos.Shares.IsNegative() {
		return fmt.Errorf("position %s/%s cannot hold negative values", pos.UserId, pos.Asset)
	}

	now := time.Now().UTC()
	var depositedAt any
	if !pos.DepositTimestamp.IsZero() {
		depositedAt = pos.DepositTimestamp.UTC()
	}

	if pos.Version == 0 {
		_, err := t.tx.ExecContext(ctx, queryInsertPosition, pos.UserId, pos.Asset,
			pos.DepositedPrincipal.String(), pos.Shares.String(), pos.SourceId, depositedAt, now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("position insert failed - %w", store.ErrConcurrentModification)
			}
			return fmt.Errorf("failed to insert position: %w", err)
		}
		pos.Version = 1
		pos.UpdatedAt = now
		return nil
	}

	result, err := t.tx.ExecContext(ctx, queryUpdatePosition,
		pos.DepositedPrincipal.String(), pos.Shares.String(), pos.SourceId, depositedAt, now,
		pos.UserId, pos.Asset, pos.Version)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position update failed - %w", store.ErrConcurrentModification)
	}

	pos.Version++
	pos.UpdatedAt = now
	return nil
}
