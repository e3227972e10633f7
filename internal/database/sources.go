package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"yield-router-go/internal/models"
	"yield-router-go/internal/store"

	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*models.YieldSource, error) {
	var src models.YieldSource
	var lastUpdate sql.NullTime
	var deposited string
	if err := row.Scan(&src.Id, &src.Name, &src.ChainScope, &src.Active, &src.CurrentAPY,
		&lastUpdate, &src.Seq, &src.CreatedAt, &deposited); err != nil {
		return nil, err
	}
	if lastUpdate.Valid {
		src.LastUpdate = lastUpdate.Time
	}
	total, err := sumDecimals("total_deposited", deposited)
	if err != nil {
		return nil, err
	}
	src.TotalDeposited = total
	return &src, nil
}

func (r reader) GetSource(ctx context.Context, id string) (*models.YieldSource, error) {
	src, err := scanSource(r.q.QueryRowContext(ctx, queryGetSource, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query source: %w", err)
	}
	return src, nil
}

func (r reader) ListSources(ctx context.Context) ([]models.YieldSource, error) {
	rows, err := r.q.QueryContext(ctx, queryListSources)
	if err != nil {
		return nil, fmt.Errorf("unable to query sources: %w", err)
	}
	defer closeRows(rows)

	var sources []models.YieldSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan source row: %w", err)
		}
		sources = append(sources, *src)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during source row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}
	return sources, nil
}

// GetSourceAsset returns zero totals when the source never held the asset.
func (r reader) GetSourceAsset(ctx context.Context, sourceId, asset string) (*models.SourceAsset, error) {
	sa := &models.SourceAsset{SourceId: sourceId, Asset: asset}
	var sharesStr, depositedStr string
	err := r.q.QueryRowContext(ctx, queryGetSourceAsset, sourceId, asset).
		Scan(&sa.SourceId, &sa.Asset, &sharesStr, &depositedStr, &sa.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sa, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query source asset: %w", err)
	}
	if sa.TotalShares, err = parseDecimal("total_shares", sharesStr); err != nil {
		return nil, err
	}
	if sa.TotalDeposited, err = parseDecimal("total_deposited", depositedStr); err != nil {
		return nil, err
	}
	return sa, nil
}

func (t *txStore) InsertSource(ctx context.Context, src *models.YieldSource) error {
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	err := t.tx.QueryRowContext(ctx, queryInsertSource, src.Id, src.Name, src.ChainScope, src.CreatedAt).Scan(&src.Seq)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: source %s already exists", store.ErrDuplicateTransaction, src.Id)
		}
		return fmt.Errorf("unable to insert source: %w", err)
	}
	src.Active = true
	return nil
}

func (t *txStore) SetSourceActive(ctx context.Context, id string, active bool) error {
	result, err := t.tx.ExecContext(ctx, querySetSourceActive, active, id)
	if err != nil {
		return fmt.Errorf("unable to update source: %w", err)
	}
	return requireRow(result, fmt.Sprintf("source %s", id))
}

// AdjustSourceAsset applies a relative change to the totals. The read and the
// write happen inside the caller's IMMEDIATE transaction.
func (t *txStore) AdjustSourceAsset(ctx context.Context, delta store.SourceAssetDelta) error {
	current, err := t.GetSourceAsset(ctx, delta.SourceId, delta.Asset)
	if err != nil {
		return err
	}

	shares := current.TotalShares.Add(delta.Shares)
	deposited := current.TotalDeposited.Add(delta.TotalDeposited)
	if shares.IsNegative() || deposited.IsNegative() {
		return fmt.Errorf("source %s %s totals would go negative (shares %s, deposited %s)",
			delta.SourceId, delta.Asset, shares.String(), deposited.String())
	}

	_, err = t.tx.ExecContext(ctx, queryUpsertSourceAsset, delta.SourceId, delta.Asset,
		shares.String(), deposited.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("unable to update source totals: %w", err)
	}
	return nil
}

func (s *Service) UpdateSourceAPY(ctx context.Context, id string, apyBps int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx, queryUpdateSourceAPY, apyBps, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("unable to update source apy: %w", err)
	}
	return requireRow(result, fmt.Sprintf("source %s", id))
}

func requireRow(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}
