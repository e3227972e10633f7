package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"yield-router-go/internal/models"
	"yield-router-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanAddress(row rowScanner) (*models.Address, error) {
	var addr models.Address
	err := row.Scan(&addr.Id, &addr.UserId, &addr.Asset, &addr.Network, &addr.Address,
		&addr.WalletId, &addr.AccountIdentifier, &addr.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func (s *Service) StoreAddress(ctx context.Context, params store.StoreAddressParams) (*models.Address, error) {
	zap.L().Info("Storing address",
		zap.String("user_id", params.UserId),
		zap.String("asset", params.Asset),
		zap.String("network", params.Network),
		zap.String("address", params.Address))

	addr, err := scanAddress(s.db.QueryRowContext(ctx, queryInsertAddress, uuid.New().String(), params.UserId,
		params.Asset, params.Network, params.Address, params.WalletId, params.AccountIdentifier, time.Now().UTC()))
	if err != nil {
		zap.L().Error("Failed to insert address",
			zap.String("user_id", params.UserId),
			zap.String("asset", params.Asset),
			zap.Error(err))
		return nil, fmt.Errorf("unable to insert address: %w", err)
	}

	zap.L().Info("Address stored successfully", zap.String("id", addr.Id))
	return addr, nil
}

func (s *Service) GetAddresses(ctx context.Context, userId, asset, network string) ([]models.Address, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUserAddresses, userId, asset, network)
	if err != nil {
		return nil, fmt.Errorf("unable to query addresses: %w", err)
	}
	defer closeRows(rows)

	var addresses []models.Address
	for rows.Next() {
		addr, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan address row: %w", err)
		}
		addresses = append(addresses, *addr)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during address row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating address rows: %w", err)
	}
	return addresses, nil
}

// FindAddress matches either the on-chain address (case-insensitive) or the
// custody account identifier.
func (s *Service) FindAddress(ctx context.Context, address string) (*models.Address, error) {
	addr, err := scanAddress(s.db.QueryRowContext(ctx, queryFindAddress, address, address))
	if errors.Is(err, sql.ErrNoRows) {
		zap.L().Debug("No user found for address", zap.String("address", address))
		return nil, fmt.Errorf("address %s: %w", address, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query address: %w", err)
	}
	return addr, nil
}
