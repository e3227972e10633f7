package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"yield-router-go/internal/models"

	"github.com/shopspring/decimal"
)

func (r reader) GetSettings(ctx context.Context) (*models.Settings, error) {
	var settings models.Settings
	err := r.q.QueryRowContext(ctx, queryGetSettings).
		Scan(&settings.FeeBps, &settings.FeeSink, &settings.Paused, &settings.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &settings, nil
}

func (t *txStore) SaveSettings(ctx context.Context, settings *models.Settings) error {
	settings.UpdatedAt = time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, queryUpdateSettings, settings.FeeBps, settings.FeeSink, settings.Paused, settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func (t *txStore) NextNonce(ctx context.Context, name string) (uint64, error) {
	var value uint64
	if err := t.tx.QueryRowContext(ctx, queryNextNonce, name).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to allocate nonce %s: %w", name, err)
	}
	return value, nil
}

func (t *txStore) AccrueFee(ctx context.Context, asset, sink string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}

	var accruedStr string
	err := t.tx.QueryRowContext(ctx, queryGetFeeAccrual, asset, sink).Scan(&accruedStr)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to get fee accrual: %w", err)
	}
	accrued, err := parseDecimal("accrued", accruedStr)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx, queryUpsertFeeAccrual, asset, sink, accrued.Add(amount).String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to accrue fee: %w", err)
	}
	return nil
}

func (s *Service) ListFeeAccruals(ctx context.Context) ([]models.FeeAccrual, error) {
	rows, err := s.db.QueryContext(ctx, queryListFeeAccruals)
	if err != nil {
		return nil, fmt.Errorf("failed to list fee accruals: %w", err)
	}
	defer closeRows(rows)

	var accruals []models.FeeAccrual
	for rows.Next() {
		var fa models.FeeAccrual
		var accruedStr string
		if err := rows.Scan(&fa.Asset, &fa.Sink, &accruedStr, &fa.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fee accrual: %w", err)
		}
		if fa.Accrued, err = parseDecimal("accrued", accruedStr); err != nil {
			return nil, err
		}
		accruals = append(accruals, fa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fee accrual rows: %w", err)
	}
	return accruals, nil
}
