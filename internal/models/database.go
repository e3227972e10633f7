package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// YieldSource is a registered lending venue. The adapter handle bound to it
// lives in the registry, not in the record.
type YieldSource struct {
	Id             string          `db:"id"`
	Name           string          `db:"name"`
	ChainScope     string          `db:"chain_scope"`
	Active         bool            `db:"active"`
	TotalDeposited decimal.Decimal `db:"total_deposited"`
	CurrentAPY     int64           `db:"current_apy_bps"`
	LastUpdate     time.Time       `db:"last_update"`
	Seq            int64           `db:"seq"`
	CreatedAt      time.Time       `db:"created_at"`
}

// SourceAsset tracks the share supply and routed principal of one asset in one source.
type SourceAsset struct {
	SourceId       string          `db:"source_id"`
	Asset          string          `db:"asset"`
	TotalShares    decimal.Decimal `db:"total_shares"`
	TotalDeposited decimal.Decimal `db:"total_deposited"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Asset is a supported token. Entries are never removed.
type Asset struct {
	Symbol                string    `db:"symbol"`
	Supported             bool      `db:"supported"`
	Decimals              int32     `db:"decimals"`
	RebalanceThresholdBps int64     `db:"rebalance_threshold_bps"`
	CreatedAt             time.Time `db:"created_at"`
}

// Position is a user's holding of one asset. An empty position has zero
// principal, zero shares and no source.
type Position struct {
	UserId             string          `db:"user_id"`
	Asset              string          `db:"asset"`
	DepositedPrincipal decimal.Decimal `db:"deposited_principal"`
	Shares             decimal.Decimal `db:"shares"`
	SourceId           string          `db:"source_id"`
	DepositTimestamp   time.Time       `db:"deposit_timestamp"`
	Version            int64           `db:"version"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

// IsActive reports whether the position currently holds principal.
func (p *Position) IsActive() bool {
	return p.DepositedPrincipal.IsPositive()
}

// FeeAccrual is the running fee total credited to a sink for an asset.
type FeeAccrual struct {
	Asset     string          `db:"asset"`
	Sink      string          `db:"sink"`
	Accrued   decimal.Decimal `db:"accrued"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Settings holds the mutable router parameters.
type Settings struct {
	FeeBps    int64     `db:"fee_bps"`
	FeeSink   string    `db:"fee_sink"`
	Paused    bool      `db:"paused"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Address represents a user's deposit address for inbound transfers
type Address struct {
	Id                string    `db:"id"`
	UserId            string    `db:"user_id"`
	Asset             string    `db:"asset"`
	Network           string    `db:"network"`
	Address           string    `db:"address"`
	WalletId          string    `db:"wallet_id"`
	AccountIdentifier string    `db:"account_identifier"`
	CreatedAt         time.Time `db:"created_at"`
}

// PoolState is the persisted balance of a simulated lending pool.
type PoolState struct {
	Venue     string          `db:"venue"`
	Asset     string          `db:"asset"`
	Balance   decimal.Decimal `db:"balance"`
	AccruedAt time.Time       `db:"accrued_at"`
}
