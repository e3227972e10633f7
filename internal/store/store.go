package store

import (
	"context"
	"errors"
	"time"

	"yield-router-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrNotFound               = errors.New("record not found")
)

// StoreAddressParams contains the parameters for storing a deposit address.
type StoreAddressParams struct {
	UserId            string
	Asset             string
	Network           string
	Address           string
	WalletId          string
	AccountIdentifier string
}

// SourceAssetDelta is a relative change to a source's per-asset totals.
type SourceAssetDelta struct {
	SourceId       string
	Asset          string
	Shares         decimal.Decimal
	TotalDeposited decimal.Decimal
}

// Reader groups the queries available both inside and outside a transaction.
type Reader interface {
	// --- Sources ---
	GetSource(ctx context.Context, id string) (*models.YieldSource, error)
	ListSources(ctx context.Context) ([]models.YieldSource, error)
	GetSourceAsset(ctx context.Context, sourceId, asset string) (*models.SourceAsset, error)

	// --- Assets ---
	GetAsset(ctx context.Context, symbol string) (*models.Asset, error)
	ListAssets(ctx context.Context) ([]models.Asset, error)

	// --- Positions ---
	// GetPosition returns an empty position with Version 0 when none exists.
	GetPosition(ctx context.Context, userId, asset string) (*models.Position, error)
	ListPositions(ctx context.Context, userId string) ([]models.Position, error)

	// --- Settings & bridge ---
	GetSettings(ctx context.Context) (*models.Settings, error)
	GetBridgeRequest(ctx context.Context, id string) (*models.BridgeRequest, error)
}

// Tx is a unit of work. Every mutation of one operation goes through the same Tx
// and becomes visible atomically on commit.
type Tx interface {
	Reader

	InsertSource(ctx context.Context, src *models.YieldSource) error
	SetSourceActive(ctx context.Context, id string, active bool) error
	InsertAsset(ctx context.Context, asset *models.Asset) error
	SetAssetThreshold(ctx context.Context, symbol string, thresholdBps int64) error

	// SavePosition inserts (Version 0) or updates the position with an
	// optimistic version check, then increments Version.
	SavePosition(ctx context.Context, pos *models.Position) error
	AdjustSourceAsset(ctx context.Context, delta SourceAssetDelta) error

	AccrueFee(ctx context.Context, asset, sink string, amount decimal.Decimal) error
	SaveSettings(ctx context.Context, settings *models.Settings) error
	NextNonce(ctx context.Context, name string) (uint64, error)

	InsertBridgeRequest(ctx context.Context, req *models.BridgeRequest) error
	UpdateBridgeRequest(ctx context.Context, id string, status models.BridgeStatus, externalId string) error

	AppendEvent(ctx context.Context, ev *models.Event) error
}

// Store is the contract the routing engine and its collaborators rely on.
type Store interface {
	Reader

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// --- Sources ---
	UpdateSourceAPY(ctx context.Context, id string, apyBps int64, at time.Time) error

	// --- Fees ---
	ListFeeAccruals(ctx context.Context) ([]models.FeeAccrual, error)

	// --- Events ---
	ListUnpublishedEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkEventPublished(ctx context.Context, seq int64, at time.Time) error
	ListEvents(ctx context.Context, userId string, limit, offset int) ([]models.Event, error)

	// --- Addresses ---
	StoreAddress(ctx context.Context, params StoreAddressParams) (*models.Address, error)
	GetAddresses(ctx context.Context, userId, asset, network string) ([]models.Address, error)
	FindAddress(ctx context.Context, address string) (*models.Address, error)

	// --- Lifecycle ---
	Close()
}
