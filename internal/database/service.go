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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"yield-router-go/internal/models"
	"yield-router-go/internal/store"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.Store.
var _ store.Store = (*Service)(nil)

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// reader implements store.Reader on top of either the pool or an open transaction.
type reader struct {
	q querier
}

type Service struct {
	reader
	db *sql.DB
}

// txStore implements store.Tx. All writes go through the wrapped *sql.Tx.
type txStore struct {
	reader
	tx *sql.Tx
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}
	busyTimeout := cfg.BusyTimeoutMs
	if busyTimeout <= 0 {
		busyTimeout = 5000
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=%d&_txlock=immediate&_foreign_keys=1",
		cfg.Path, busyTimeout)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{reader: reader{q: db}, db: db}
	if err := service.initSchema(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after schema failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// WithTx runs fn inside a single IMMEDIATE transaction. The write lock is held
// from the first statement, so read-modify-write sequences inside fn are serialized
// against every other writer of the database file.
func (s *Service) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{reader: reader{q: tx}, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Service) initSchema(ctx context.Context) error {
	schema := `
	-- Yield sources, never deleted
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		chain_scope TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		current_apy_bps INTEGER NOT NULL DEFAULT 0,
		last_update TIMESTAMP,
		seq INTEGER NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	);

	-- Share supply and routed principal per source and asset
	CREATE TABLE IF NOT EXISTS source_assets (
		source_id TEXT NOT NULL REFERENCES sources(id),
		asset TEXT NOT NULL,
		total_shares TEXT NOT NULL DEFAULT '0',
		total_deposited TEXT NOT NULL DEFAULT '0',
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (source_id, asset)
	);

	-- Supported assets, append only
	CREATE TABLE IF NOT EXISTS assets (
		symbol TEXT PRIMARY KEY,
		supported BOOLEAN NOT NULL DEFAULT 1,
		decimals INTEGER NOT NULL,
		rebalance_threshold_bps INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	-- Positions (current state)
	CREATE TABLE IF NOT EXISTS positions (
		user_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		deposited_principal TEXT NOT NULL DEFAULT '0',
		shares TEXT NOT NULL DEFAULT '0',
		source_id TEXT NOT NULL DEFAULT '',
		deposit_timestamp TIMESTAMP,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, asset)
	);
	CREATE INDEX IF NOT EXISTS idx_positions_source ON positions(source_id);

	CREATE TABLE IF NOT EXISTS fee_accruals (
		asset TEXT NOT NULL,
		sink TEXT NOT NULL,
		accrued TEXT NOT NULL DEFAULT '0',
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (asset, sink)
	);

	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		fee_bps INTEGER NOT NULL,
		fee_sink TEXT NOT NULL,
		paused BOOLEAN NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	);
	INSERT OR IGNORE INTO settings (id, fee_bps, fee_sink, paused, updated_at)
	VALUES (1, 1000, 'treasury', 0, CURRENT_TIMESTAMP);

	CREATE TABLE IF NOT EXISTS nonces (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	-- Cross-chain requests in both directions
	CREATE TABLE IF NOT EXISTS bridge_requests (
		id TEXT PRIMARY KEY,
		direction TEXT NOT NULL,
		scope TEXT NOT NULL,
		asset TEXT NOT NULL,
		amount TEXT NOT NULL,
		user_id TEXT NOT NULL,
		recipient TEXT NOT NULL DEFAULT '',
		nonce INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		external_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bridge_requests_user ON bridge_requests(user_id);

	-- Event outbox; seq follows commit order
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		asset TEXT NOT NULL DEFAULT '',
		source_id TEXT NOT NULL DEFAULT '',
		from_source TEXT NOT NULL DEFAULT '',
		to_source TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL DEFAULT '0',
		yield TEXT NOT NULL DEFAULT '0',
		fee TEXT NOT NULL DEFAULT '0',
		shares TEXT NOT NULL DEFAULT '0',
		reference TEXT NOT NULL DEFAULT '',
		origin TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		published_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_events_published ON events(published_at, seq);
	CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id, seq);

	-- Deposit addresses for inbound transfers
	CREATE TABLE IF NOT EXISTS addresses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		network TEXT NOT NULL,
		address TEXT NOT NULL,
		wallet_id TEXT NOT NULL,
		account_identifier TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_addresses_user_asset ON addresses(user_id, asset);
	CREATE INDEX IF NOT EXISTS idx_addresses_address ON addresses(address);
	CREATE INDEX IF NOT EXISTS idx_addresses_account_identifier ON addresses(account_identifier);

	-- Simulated lending pools
	CREATE TABLE IF NOT EXISTS venue_pools (
		venue TEXT NOT NULL,
		asset TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		accrued_at TIMESTAMP NOT NULL,
		PRIMARY KEY (venue, asset)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// ---------- helpers ----------

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s '%s': %w", field, raw, err)
	}
	return d, nil
}

// sumDecimals adds a comma separated list produced by GROUP_CONCAT.
func sumDecimals(field, joined string) (decimal.Decimal, error) {
	total := decimal.Zero
	if joined == "" {
		return total, nil
	}
	for _, part := range strings.Split(joined, ",") {
		d, err := parseDecimal(field, part)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(d)
	}
	return total, nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}
