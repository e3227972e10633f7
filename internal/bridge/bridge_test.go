package bridge

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"yield-router-go/internal/adapter"
	"yield-router-go/internal/database"
	"yield-router-go/internal/fees"
	"yield-router-go/internal/ledger"
	"yield-router-go/internal/models"
	"yield-router-go/internal/registry"
	"yield-router-go/internal/router"
	"yield-router-go/internal/store"
	"yield-router-go/internal/venue"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fakeTransport struct {
	sent []OutboundTransfer
	err  error
}

func (f *fakeTransport) SendValue(_ context.Context, transfer OutboundTransfer) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, transfer)
	return "ext-" + transfer.RequestId[:8], nil
}

type fixture struct {
	db        *database.Service
	router    *router.Router
	pool      *venue.Pool
	transport *fakeTransport
	service   *Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "bridge.db"),
		MaxOpenConns: 4,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	err = db.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertAsset(ctx, &models.Asset{Symbol: "USDC", Supported: true, Decimals: 6, RebalanceThresholdBps: 50})
	})
	require.NoError(t, err)

	pool, err := venue.NewPool(venue.PoolConfig{
		Name:       "aave",
		ChainScope: "base-mainnet",
		Rates:      map[string]decimal.Decimal{"USDC": decimal.Zero},
		Store:      venue.NewMemoryPoolStore(),
	})
	require.NoError(t, err)

	reg := registry.New(db, 2)
	_, err = reg.AddSource(ctx, adapter.New(pool))
	require.NoError(t, err)

	r := router.New(db, reg, ledger.New(db, reg), fees.NewEngine(), models.RouterConfig{LockWaitTimeout: time.Second}, nil)
	transport := &fakeTransport{}
	return &fixture{
		db:        db,
		router:    r,
		pool:      pool,
		transport: transport,
		service:   NewService(db, r, transport, nil),
	}
}

func TestRequestID(t *testing.T) {
	a := RequestID("alice", "eth-mainnet", 1)
	assert.Len(t, a, 64)
	assert.Equal(t, a, RequestID("alice", "eth-mainnet", 1))
	assert.NotEqual(t, a, RequestID("alice", "eth-mainnet", 2))
	assert.NotEqual(t, a, RequestID("bob", "eth-mainnet", 1))
}

func TestOnValueReceived_CreditsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	in := InboundTransfer{Id: "prime:tx-1", Scope: "base-mainnet", Asset: "USDC", Amount: d(1000), UserId: "alice"}

	first, err := f.service.OnValueReceived(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.True(t, first.Deposit.Shares.Equal(d(1000)))

	replay, err := f.service.OnValueReceived(ctx, in)
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)

	pos, err := f.router.Position(ctx, "alice", "USDC")
	require.NoError(t, err)
	assert.True(t, pos.DepositedPrincipal.Equal(d(1000)))

	balance, err := f.pool.Balance(ctx, "USDC")
	require.NoError(t, err)
	assert.True(t, balance.Equal(d(1000)))

	stored, err := f.db.GetBridgeRequest(ctx, "prime:tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.BridgeInbound, stored.Direction)
	assert.Equal(t, models.BridgeCompleted, stored.Status)

	events, err := f.db.ListEvents(ctx, "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventValueReceived, events[0].Type)
	assert.Equal(t, "prime:tx-1", events[0].Reference)
}

func TestOnValueReceived_Validation(t *testing.T) {
	f := setup(t)
	_, err := f.service.OnValueReceived(context.Background(), InboundTransfer{Asset: "USDC", Amount: d(1), UserId: "alice"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestSend_WithdrawsAndHandsOff(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.router.Deposit(ctx, router.DepositRequest{UserId: "alice", Asset: "USDC", Amount: d(1000)})
	require.NoError(t, err)
	require.NoError(t, f.pool.Supply(ctx, "USDC", d(100)))

	res, err := f.service.Send(ctx, SendRequest{
		UserId: "alice", Asset: "USDC", Principal: d(1000), Scope: "eth-mainnet", Recipient: "0xabc",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BridgeAccepted, res.Request.Status)
	assert.Equal(t, uint64(1), res.Request.Nonce)
	assert.Equal(t, RequestID("alice", "eth-mainnet", 1), res.Request.Id)
	assert.True(t, res.Request.Amount.Equal(d(1090)))

	require.Len(t, f.transport.sent, 1)
	assert.True(t, f.transport.sent[0].Amount.Equal(d(1090)))
	assert.Equal(t, "0xabc", f.transport.sent[0].Recipient)

	stored, err := f.db.GetBridgeRequest(ctx, res.Request.Id)
	require.NoError(t, err)
	assert.Equal(t, models.BridgeAccepted, stored.Status)
	assert.NotEmpty(t, stored.ExternalId)

	events, err := f.db.ListEvents(ctx, "alice", 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventValueSent, events[0].Type)
}

func TestSend_TransportFailureLeavesPositionUntouched(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.router.Deposit(ctx, router.DepositRequest{UserId: "alice", Asset: "USDC", Amount: d(1000)})
	require.NoError(t, err)
	before, err := f.router.Position(ctx, "alice", "USDC")
	require.NoError(t, err)

	f.transport.err = errors.New("network down")
	_, err = f.service.Send(ctx, SendRequest{
		UserId: "alice", Asset: "USDC", Principal: d(400), Scope: "eth-mainnet", Recipient: "0xabc",
	})
	require.Error(t, err)

	pos, err := f.router.Position(ctx, "alice", "USDC")
	require.NoError(t, err)
	assert.True(t, pos.DepositedPrincipal.Equal(d(1000)))
	assert.True(t, pos.Shares.Equal(before.Shares))
	assert.Equal(t, before.SourceId, pos.SourceId)

	balance, err := f.pool.Balance(ctx, "USDC")
	require.NoError(t, err)
	assert.True(t, balance.Equal(d(1000)))

	stored, err := f.db.GetBridgeRequest(ctx, RequestID("alice", "eth-mainnet", 1))
	require.NoError(t, err)
	assert.Equal(t, models.BridgeFailed, stored.Status)
	assert.True(t, stored.Amount.Equal(d(400)))

	events, err := f.db.ListEvents(ctx, "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventDeposited, events[0].Type)
}

func TestSend_TransportFailureKeepsYieldAndChargesNoFee(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.router.Deposit(ctx, router.DepositRequest{UserId: "alice", Asset: "USDC", Amount: d(1000)})
	require.NoError(t, err)
	require.NoError(t, f.pool.Supply(ctx, "USDC", d(100)))

	f.transport.err = errors.New("recipient rejected")
	_, err = f.service.Send(ctx, SendRequest{
		UserId: "alice", Asset: "USDC", Principal: d(1000), Scope: "eth-mainnet", Recipient: "0xabc",
	})
	require.Error(t, err)

	view, err := f.router.Value(ctx, "alice", "USDC")
	require.NoError(t, err)
	assert.True(t, view.Principal.Equal(d(1000)), "principal %s", view.Principal)
	assert.True(t, view.Value.Equal(d(1100)), "value %s", view.Value)
	assert.True(t, view.UnrealizedYield.Equal(d(100)))

	accruals, err := f.db.ListFeeAccruals(ctx)
	require.NoError(t, err)
	for _, a := range accruals {
		assert.True(t, a.Accrued.IsZero(), "fee accrued to %s: %s", a.Sink, a.Accrued)
	}

	events, err := f.db.ListEvents(ctx, "alice", 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventDeposited, events[0].Type)

	// A later successful send still charges the fee once on the full yield.
	f.transport.err = nil
	res, err := f.service.Send(ctx, SendRequest{
		UserId: "alice", Asset: "USDC", Principal: d(1000), Scope: "eth-mainnet", Recipient: "0xabc",
	})
	require.NoError(t, err)
	assert.True(t, res.Withdrawal.Fee.Equal(d(10)), "fee %s", res.Withdrawal.Fee)
	assert.Equal(t, uint64(2), res.Request.Nonce)
}

func TestSend_RequiresDestination(t *testing.T) {
	f := setup(t)
	_, err := f.service.Send(context.Background(), SendRequest{UserId: "alice", Asset: "USDC", Principal: d(1)})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
