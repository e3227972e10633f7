package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"yield-router-go/internal/models"
	"yield-router-go/internal/store"
)

func (r reader) GetAsset(ctx context.Context, symbol string) (*models.Asset, error) {
	var asset models.Asset
	err := r.q.QueryRowContext(ctx, queryGetAsset, symbol).
		Scan(&asset.Symbol, &asset.Supported, &asset.Decimals, &asset.RebalanceThresholdBps, &asset.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %s: %w", symbol, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query asset: %w", err)
	}
	return &asset, nil
}

func (r reader) ListAssets(ctx context.Context) ([]models.Asset, error) {
	rows, err := r.q.QueryContext(ctx, queryListAssets)
	if err != nil {
		return nil, fmt.Errorf("unable to query assets: %w", err)
	}
	defer closeRows(rows)

	var assets []models.Asset
	for rows.Next() {
		var asset models.Asset
		if err := rows.Scan(&asset.Symbol, &asset.Supported, &asset.Decimals, &asset.RebalanceThresholdBps, &asset.CreatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan asset row: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset rows: %w", err)
	}
	return assets, nil
}

func (t *txStore) InsertAsset(ctx context.Context, asset *models.Asset) error {
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, queryInsertAsset, asset.Symbol, asset.Supported, asset.Decimals,
		asset.RebalanceThresholdBps, asset.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: asset %s already exists", store.ErrDuplicateTransaction, asset.Symbol)
		}
		return fmt.Errorf("unable to insert asset: %w", err)
	}
	return nil
}

func (t *txStore) SetAssetThreshold(ctx context.Context, symbol string, thresholdBps int64) error {
	result, err := t.tx.ExecContext(ctx, querySetAssetThreshold, thresholdBps, symbol)
	if err != nil {
		return fmt.Errorf("unable to update asset threshold: %w", err)
	}
	return requireRow(result, fmt.Sprintf("asset %s", symbol))
}
