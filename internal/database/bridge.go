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

func (r reader) GetBridgeRequest(ctx context.Context, id string) (*models.BridgeRequest, error) {
	var req models.BridgeRequest
	var direction, status, amountStr string
	err := r.q.QueryRowContext(ctx, queryGetBridgeRequest, id).Scan(&req.Id, &direction, &req.Scope, &req.Asset,
		&amountStr, &req.UserId, &req.Recipient, &req.Nonce, &status, &req.ExternalId, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bridge request %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bridge request: %w", err)
	}
	req.Direction = models.BridgeDirection(direction)
	req.Status = models.BridgeStatus(status)
	if req.Amount, err = parseDecimal("amount", amountStr); err != nil {
		return nil, err
	}
	return &req, nil
}

// InsertBridgeRequest fails with store.ErrDuplicateTransaction when the id was already recorded.
func (t *txStore) InsertBridgeRequest(ctx context.Context, req *models.BridgeRequest) error {
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	_, err := t.tx.ExecContext(ctx, queryInsertBridgeRequest, req.Id, string(req.Direction), req.Scope, req.Asset,
		req.Amount.String(), req.UserId, req.Recipient, req.Nonce, string(req.Status), req.ExternalId,
		req.CreatedAt, req.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: bridge request %s already exists", store.ErrDuplicateTransaction, req.Id)
		}
		return fmt.Errorf("failed to insert bridge request: %w", err)
	}
	return nil
}

func (t *txStore) UpdateBridgeRequest(ctx context.Context, id string, status models.BridgeStatus, externalId string) error {
	result, err := t.tx.ExecContext(ctx, queryUpdateBridgeRequest, string(status), externalId, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update bridge request: %w", err)
	}
	return requireRow(result, fmt.Sprintf("bridge request %s", id))
}
