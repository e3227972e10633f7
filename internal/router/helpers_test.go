package router

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"yield-router-go/internal/adapter"
	"yield-router-go/internal/database"
	"yield-router-go/internal/fees"
	"yield-router-go/internal/ledger"
	"yield-router-go/internal/models"
	"yield-router-go/internal/registry"
	"yield-router-go/internal/store"
	"yield-router-go/internal/venue"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// rateForBps returns the smallest WAD rate that quotes as bps.
func rateForBps(bps int64) decimal.Decimal {
	num := decimal.NewFromInt(bps).Mul(venue.Wad)
	den := decimal.NewFromInt(10_000 * adapter.SecondsPerYear)
	q, rem := num.QuoRem(den, 0)
	if !rem.IsZero() {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q
}

// testVenue wraps a pool with switchable failures and a hook run before supply.
type testVenue struct {
	*venue.Pool
	failSupply atomic.Bool
	failRate   atomic.Bool
	onSupply   func()
}

func (v *testVenue) Supply(ctx context.Context, asset string, amount decimal.Decimal) error {
	if v.onSupply != nil {
		v.onSupply()
	}
	if v.failSupply.Load() {
		return errors.New("venue rejected supply")
	}
	return v.Pool.Supply(ctx, asset, amount)
}

func (v *testVenue) RatePerSecond(ctx context.Context, asset string) (decimal.Decimal, error) {
	if v.failRate.Load() {
		return decimal.Zero, errors.New("rate unavailable")
	}
	return v.Pool.RatePerSecond(ctx, asset)
}

// flakyStore fails the next commit on demand. Writes made by fn are rolled back.
type flakyStore struct {
	*database.Service
	failCommit atomic.Bool
}

var errInjected = errors.New("injected commit failure")

func (s *flakyStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Service.WithTx(ctx, func(tx store.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if s.failCommit.Load() {
			return errInjected
		}
		return nil
	})
}

type fixture struct {
	t        *testing.T
	store    *flakyStore
	registry *registry.Registry
	router   *Router
	venues   map[string]*testVenue
	sources  map[string]string
}

var fixedNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "router.db"),
		MaxOpenConns: 4,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	st := &flakyStore{Service: db}
	err = st.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertAsset(ctx, &models.Asset{Symbol: "USDC", Supported: true, Decimals: 6, RebalanceThresholdBps: 50})
	})
	require.NoError(t, err)

	reg := registry.New(st, 2)
	led := ledger.New(st, reg)
	r := New(st, reg, led, fees.NewEngine(), models.RouterConfig{LockWaitTimeout: 100 * time.Millisecond}, nil)

	return &fixture{
		t:        t,
		store:    st,
		registry: reg,
		router:   r,
		venues:   make(map[string]*testVenue),
		sources:  make(map[string]string),
	}
}

func (f *fixture) addVenue(name string, bps int64) *testVenue {
	f.t.Helper()
	pool, err := venue.NewPool(venue.PoolConfig{
		Name:       name,
		ChainScope: "base-mainnet",
		Rates:      map[string]decimal.Decimal{"USDC": rateForBps(bps)},
		Store:      venue.NewMemoryPoolStore(),
		Clock:      func() time.Time { return fixedNow },
	})
	require.NoError(f.t, err)

	v := &testVenue{Pool: pool}
	src, err := f.registry.AddSource(context.Background(), adapter.New(v))
	require.NoError(f.t, err)

	f.venues[name] = v
	f.sources[name] = src.Id
	return v
}

func (f *fixture) setBps(name string, bps int64) {
	f.venues[name].SetRate("USDC", rateForBps(bps))
}

func (f *fixture) balance(name string) decimal.Decimal {
	f.t.Helper()
	b, err := f.venues[name].Balance(context.Background(), "USDC")
	require.NoError(f.t, err)
	return b
}

func (f *fixture) deposit(user string, amount int64) *models.DepositResult {
	f.t.Helper()
	res, err := f.router.Deposit(context.Background(), DepositRequest{UserId: user, Asset: "USDC", Amount: d(amount)})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) position(user string) *models.Position {
	f.t.Helper()
	pos, err := f.router.Position(context.Background(), user, "USDC")
	require.NoError(f.t, err)
	return pos
}

func (f *fixture) setPaused(paused bool) {
	f.t.Helper()
	ctx := context.Background()
	err := f.store.WithTx(ctx, func(tx store.Tx) error {
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		settings.Paused = paused
		return tx.SaveSettings(ctx, settings)
	})
	require.NoError(f.t, err)
}
