package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"yield-router-go/internal/adapter"
	"yield-router-go/internal/database"
	"yield-router-go/internal/models"
	"yield-router-go/internal/registry"
	"yield-router-go/internal/store"
	"yield-router-go/internal/venue"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fixture struct {
	db     *database.Service
	ledger *Ledger
	pool   *venue.Pool
	source *models.YieldSource
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 4,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	pool, err := venue.NewPool(venue.PoolConfig{
		Name:       "aave",
		ChainScope: "base-mainnet",
		Rates:      map[string]decimal.Decimal{"USDC": decimal.Zero},
		Store:      venue.NewMemoryPoolStore(),
	})
	require.NoError(t, err)

	reg := registry.New(db, 2)
	src, err := reg.AddSource(ctx, adapter.New(pool))
	require.NoError(t, err)

	return &fixture{db: db, ledger: New(db, reg), pool: pool, source: src}
}

func (f *fixture) deposit(t *testing.T, user string, amount, shares int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.pool.Supply(ctx, "USDC", d(amount)))
	err := f.db.WithTx(ctx, func(tx store.Tx) error {
		_, err := f.ledger.RecordDeposit(ctx, tx, user, "USDC", d(amount), f.source.Id, d(shares))
		return err
	})
	require.NoError(t, err)
}

func TestSharesFor(t *testing.T) {
	pos := &models.Position{DepositedPrincipal: d(1000), Shares: d(909)}

	assert.True(t, SharesFor(pos, d(1000)).Equal(d(909)))
	assert.True(t, SharesFor(pos, d(500)).Equal(d(454)))
	assert.True(t, SharesFor(pos, d(1)).Equal(d(0)))
	assert.True(t, SharesFor(&models.Position{DepositedPrincipal: decimal.Zero, Shares: decimal.Zero}, d(1)).IsZero())
}

func TestRecordDeposit_UpdatesPositionAndTotals(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.deposit(t, "alice", 1000, 1000)
	f.deposit(t, "bob", 500, 500)

	pos, err := f.db.GetPosition(ctx, "alice", "USDC")
	require.NoError(t, err)
	assert.True(t, pos.DepositedPrincipal.Equal(d(1000)))
	assert.Equal(t, f.source.Id, pos.SourceId)

	sa, err := f.db.GetSourceAsset(ctx, f.source.Id, "USDC")
	require.NoError(t, err)
	assert.True(t, sa.TotalShares.Equal(d(1500)))
	assert.True(t, sa.TotalDeposited.Equal(d(1500)))
}

func TestRecordDeposit_RejectsOtherSource(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.deposit(t, "alice", 1000, 1000)

	err := f.db.WithTx(ctx, func(tx store.Tx) error {
		_, err := f.ledger.RecordDeposit(ctx, tx, "alice", "USDC", d(10), "other", d(10))
		return err
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestRecordWithdraw_FullEmptiesPosition(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.deposit(t, "alice", 1000, 1000)

	err := f.db.WithTx(ctx, func(tx store.Tx) error {
		_, err := f.ledger.RecordWithdraw(ctx, tx, "alice", "USDC", d(400), d(400))
		return err
	})
	require.NoError(t, err)

	err = f.db.WithTx(ctx, func(tx store.Tx) error {
		pos, err := f.ledger.RecordWithdraw(ctx, tx, "alice", "USDC", d(600), d(600))
		if err != nil {
			return err
		}
		assert.False(t, pos.IsActive())
		assert.Empty(t, pos.SourceId)
		assert.True(t, pos.Shares.IsZero())
		return nil
	})
	require.NoError(t, err)

	sa, err := f.db.GetSourceAsset(ctx, f.source.Id, "USDC")
	require.NoError(t, err)
	assert.True(t, sa.TotalShares.IsZero())
	assert.True(t, sa.TotalDeposited.IsZero())
}

func TestRecordWithdraw_Bounds(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.deposit(t, "alice", 1000, 1000)

	tests := []struct {
		name    string
		portion int64
		shares  int64
	}{
		{"more than principal", 1001, 1000},
		{"more than shares", 500, 1001},
		{"zero portion", 0, 0},
		{"full principal leaves shares", 1000, 999},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.db.WithTx(ctx, func(tx store.Tx) error {
				_, err := f.ledger.RecordWithdraw(ctx, tx, "alice", "USDC", d(tt.portion), d(tt.shares))
				return err
			})
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}

	err := f.db.WithTx(ctx, func(tx store.Tx) error {
		_, err := f.ledger.RecordWithdraw(ctx, tx, "nobody", "USDC", d(1), d(1))
		return err
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestComputeCurrentValue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.deposit(t, "alice", 1000, 1000)

	// Yield of 100 lands in the venue.
	require.NoError(t, f.pool.Supply(ctx, "USDC", d(100)))

	view, err := f.ledger.ComputeCurrentValue(ctx, "alice", "USDC")
	require.NoError(t, err)
	assert.True(t, view.Value.Equal(d(1100)), "value %s", view.Value)
	assert.True(t, view.UnrealizedYield.Equal(d(100)))
	assert.Equal(t, "aave", view.SourceName)

	empty, err := f.ledger.ComputeCurrentValue(ctx, "bob", "USDC")
	require.NoError(t, err)
	assert.True(t, empty.Value.IsZero())

	pos, err := f.db.GetPosition(ctx, "alice", "USDC")
	require.NoError(t, err)
	direct, err := f.ledger.ValuePosition(ctx, pos)
	require.NoError(t, err)
	assert.True(t, direct.Value.Equal(view.Value))
}
