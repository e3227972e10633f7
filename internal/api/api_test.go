package api

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"yield-router-go/internal/adapter"
	"yield-router-go/internal/bridge"
	"yield-router-go/internal/database"
	"yield-router-go/internal/fees"
	"yield-router-go/internal/ledger"
	"yield-router-go/internal/models"
	"yield-router-go/internal/registry"
	"yield-router-go/internal/router"
	"yield-router-go/internal/venue"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db     *database.Service
	reg    *registry.Registry
	admin  *AdminService
	ledger *LedgerService
}

func newPool(t *testing.T, name string) *adapter.Adapter {
	t.Helper()
	pool, err := venue.NewPool(venue.PoolConfig{
		Name:       name,
		ChainScope: "base-mainnet",
		Rates:      map[string]decimal.Decimal{"USDC": decimal.Zero},
		Store:      venue.NewMemoryPoolStore(),
	})
	require.NoError(t, err)
	return adapter.New(pool)
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "api.db"),
		MaxOpenConns: 4,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	reg := registry.New(db, 2)
	r := router.New(db, reg, ledger.New(db, reg), fees.NewEngine(), models.RouterConfig{LockWaitTimeout: time.Second}, nil)
	return &fixture{
		db:     db,
		reg:    reg,
		admin:  NewAdminService(db, reg, []string{"ops"}),
		ledger: NewLedgerService(db, r, nil),
	}
}

func TestAdmin_RejectsUnknownCaller(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.admin.SetFeeRate(ctx, "mallory", 500), models.ErrUnauthorized)
	assert.ErrorIs(t, f.admin.Pause(ctx, ""), models.ErrUnauthorized)
	assert.ErrorIs(t, f.admin.AddAsset(ctx, "mallory", models.Asset{Symbol: "USDC"}), models.ErrUnauthorized)
	_, err := f.admin.AddSource(ctx, "mallory", newPool(t, "aave"))
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	settings, err := f.db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(fees.DefaultFeeBps), settings.FeeBps)
	assert.False(t, settings.Paused)
}

func TestAdmin_FeeRateBounds(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.admin.SetFeeRate(ctx, "ops", fees.MaxFeeBps))
	assert.ErrorIs(t, f.admin.SetFeeRate(ctx, "ops", fees.MaxFeeBps+1), models.ErrInvalidInput)
	assert.ErrorIs(t, f.admin.SetFeeRate(ctx, "ops", -1), models.ErrInvalidInput)

	require.NoError(t, f.admin.SetFeeSink(ctx, "ops", "dao"))
	assert.ErrorIs(t, f.admin.SetFeeSink(ctx, "ops", ""), models.ErrInvalidInput)

	settings, err := f.db.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(fees.MaxFeeBps), settings.FeeBps)
	assert.Equal(t, "dao", settings.FeeSink)
}

func TestAdmin_AssetsAndThresholds(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.admin.AddAsset(ctx, "ops", models.Asset{Symbol: "USDC", Supported: true, Decimals: 6, RebalanceThresholdBps: 50}))
	assert.ErrorIs(t, f.admin.AddAsset(ctx, "ops", models.Asset{Symbol: "USDC", Supported: true, Decimals: 6}), models.ErrInvalidInput)
	assert.ErrorIs(t, f.admin.AddAsset(ctx, "ops", models.Asset{Symbol: "DAI", RebalanceThresholdBps: -5}), models.ErrInvalidInput)

	require.NoError(t, f.admin.SetRebalanceThreshold(ctx, "ops", "USDC", 75))
	asset, err := f.db.GetAsset(ctx, "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(75), asset.RebalanceThresholdBps)

	assert.ErrorIs(t, f.admin.SetRebalanceThreshold(ctx, "ops", "WBTC", 75), models.ErrAssetNotSupported)
}

func TestAdmin_PauseBlocksDeposits(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.admin.AddAsset(ctx, "ops", models.Asset{Symbol: "USDC", Supported: true, Decimals: 6, RebalanceThresholdBps: 50}))
	_, err := f.admin.AddSource(ctx, "ops", newPool(t, "aave"))
	require.NoError(t, err)

	require.NoError(t, f.admin.Pause(ctx, "ops"))
	res, err := f.ledger.Deposit(ctx, "alice", "USDC", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, models.ErrPaused.Error())

	require.NoError(t, f.admin.Unpause(ctx, "ops"))
	res, err = f.ledger.Deposit(ctx, "alice", "USDC", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestAdmin_DeactivateSourceInUse(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.admin.AddAsset(ctx, "ops", models.Asset{Symbol: "USDC", Supported: true, Decimals: 6, RebalanceThresholdBps: 50}))
	src, err := f.admin.AddSource(ctx, "ops", newPool(t, "aave"))
	require.NoError(t, err)

	res, err := f.ledger.Deposit(ctx, "alice", "USDC", decimal.NewFromInt(100))
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.ErrorIs(t, f.admin.DeactivateSource(ctx, "ops", src.Id), models.ErrSourceInUse)

	out, err := f.ledger.Withdraw(ctx, "alice", "USDC", decimal.NewFromInt(100))
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)

	require.NoError(t, f.admin.DeactivateSource(ctx, "ops", src.Id))
	stored, err := f.reg.Get(ctx, src.Id)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestLedgerService_PositionsAndHistory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.admin.AddAsset(ctx, "ops", models.Asset{Symbol: "USDC", Supported: true, Decimals: 6, RebalanceThresholdBps: 50}))
	_, err := f.admin.AddSource(ctx, "ops", newPool(t, "aave"))
	require.NoError(t, err)

	res, err := f.ledger.Deposit(ctx, "alice", "USDC", decimal.NewFromInt(250))
	require.NoError(t, err)
	require.True(t, res.Success)

	views, err := f.ledger.GetPositions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Principal.Equal(decimal.NewFromInt(250)))
	assert.True(t, views[0].Value.Equal(decimal.NewFromInt(250)))

	events, err := f.ledger.GetEventHistory(ctx, "alice", 0, -3)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventDeposited, events[0].Type)

	_, err = f.ledger.GetPositions(ctx, "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	bad, err := f.ledger.Withdraw(ctx, "alice", "USDC", decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.False(t, bad.Success)

	_, err = f.ledger.SendCrossChain(ctx, bridgeRequest())
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	require.NoError(t, f.ledger.HealthCheck(ctx))
}

func bridgeRequest() bridge.SendRequest {
	return bridge.SendRequest{UserId: "alice", Asset: "USDC", Principal: decimal.NewFromInt(10), Scope: "eth-mainnet", Recipient: "0xabc"}
}
