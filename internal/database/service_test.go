package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"yield-router-go/internal/models"
	"yield-router-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) *Service {
	t.Helper()

	service, err := NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "router.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(service.Close)
	return service
}

func insertSource(t *testing.T, service *Service, id, name string) *models.YieldSource {
	t.Helper()

	src := &models.YieldSource{Id: id, Name: name, ChainScope: "base-mainnet"}
	err := service.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertSource(context.Background(), src)
	})
	if err != nil {
		t.Fatalf("InsertSource(%s) failed: %v", id, err)
	}
	return src
}

func TestNewService_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.DatabaseConfig
	}{
		{"empty path", models.DatabaseConfig{MaxOpenConns: 1, PingTimeout: time.Second}},
		{"no connections", models.DatabaseConfig{Path: "x.db", PingTimeout: time.Second}},
		{"negative idle", models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1, MaxIdleConns: -1, PingTimeout: time.Second}},
		{"no ping timeout", models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(context.Background(), tt.cfg); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestInsertSource_AssignsRegistrationOrder(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	first := insertSource(t, service, "src-a", "aave")
	second := insertSource(t, service, "src-b", "compound")

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("Expected seq 1 and 2, got %d and %d", first.Seq, second.Seq)
	}

	sources, err := service.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources failed: %v", err)
	}
	if len(sources) != 2 || sources[0].Id != "src-a" || sources[1].Id != "src-b" {
		t.Fatalf("Unexpected source order: %+v", sources)
	}
	if !sources[0].Active {
		t.Error("Expected new source to be active")
	}
	if !sources[0].TotalDeposited.IsZero() {
		t.Errorf("Expected zero total deposited, got %s", sources[0].TotalDeposited)
	}
}

func TestInsertSource_Duplicate(t *testing.T) {
	service := setupTestDb(t)
	insertSource(t, service, "src-a", "aave")

	err := service.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.InsertSource(context.Background(), &models.YieldSource{Id: "src-a", Name: "aave"})
	})
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("Expected ErrDuplicateTransaction, got %v", err)
	}
}

func TestAdjustSourceAsset_TracksTotals(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	insertSource(t, service, "src-a", "aave")

	deltas := []store.SourceAssetDelta{
		{SourceId: "src-a", Asset: "USDC", Shares: decimal.NewFromInt(1000), TotalDeposited: decimal.NewFromInt(1000)},
		{SourceId: "src-a", Asset: "USDC", Shares: decimal.NewFromInt(90), TotalDeposited: decimal.NewFromInt(100)},
		{SourceId: "src-a", Asset: "DAI", Shares: decimal.NewFromInt(5), TotalDeposited: decimal.NewFromInt(5)},
	}
	for _, delta := range deltas {
		err := service.WithTx(ctx, func(tx store.Tx) error { return tx.AdjustSourceAsset(ctx, delta) })
		if err != nil {
			t.Fatalf("AdjustSourceAsset failed: %v", err)
		}
	}

	sa, err := service.GetSourceAsset(ctx, "src-a", "USDC")
	if err != nil {
		t.Fatalf("GetSourceAsset failed: %v", err)
	}
	if !sa.TotalShares.Equal(decimal.NewFromInt(1090)) {
		t.Errorf("Expected total shares 1090, got %s", sa.TotalShares)
	}
	if !sa.TotalDeposited.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("Expected total deposited 1100, got %s", sa.TotalDeposited)
	}

	src, err := service.GetSource(ctx, "src-a")
	if err != nil {
		t.Fatalf("GetSource failed: %v", err)
	}
	if !src.TotalDeposited.Equal(decimal.NewFromInt(1105)) {
		t.Errorf("Expected source total deposited 1105, got %s", src.TotalDeposited)
	}

	err = service.WithTx(ctx, func(tx store.Tx) error {
		return tx.AdjustSourceAsset(ctx, store.SourceAssetDelta{SourceId: "src-a", Asset: "DAI", Shares: decimal.NewFromInt(-6)})
	})
	if err == nil {
		t.Error("Expected error when shares would go negative")
	}
}

func TestSavePosition_OptimisticLocking(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	pos, err := service.GetPosition(ctx, "user1", "USDC")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if pos.Version != 0 || pos.IsActive() {
		t.Fatalf("Expected empty position, got %+v", pos)
	}

	pos.DepositedPrincipal = decimal.NewFromInt(1000)
	pos.Shares = decimal.NewFromInt(1000)
	pos.SourceId = "src-a"
	pos.DepositTimestamp = time.Now()
	if err := service.WithTx(ctx, func(tx store.Tx) error { return tx.SavePosition(ctx, pos) }); err != nil {
		t.Fatalf("SavePosition insert failed: %v", err)
	}
	if pos.Version != 1 {
		t.Errorf("Expected version 1 after insert, got %d", pos.Version)
	}

	stale := *pos
	pos.Shares = decimal.NewFromInt(900)
	if err := service.WithTx(ctx, func(tx store.Tx) error { return tx.SavePosition(ctx, pos) }); err != nil {
		t.Fatalf("SavePosition update failed: %v", err)
	}

	err = service.WithTx(ctx, func(tx store.Tx) error { return tx.SavePosition(ctx, &stale) })
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Fatalf("Expected ErrConcurrentModification for stale write, got %v", err)
	}

	got, err := service.GetPosition(ctx, "user1", "USDC")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if !got.Shares.Equal(decimal.NewFromInt(900)) || got.Version != 2 || got.SourceId != "src-a" {
		t.Errorf("Unexpected stored position: %+v", got)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := service.WithTx(ctx, func(tx store.Tx) error {
		pos := &models.Position{UserId: "user1", Asset: "USDC",
			DepositedPrincipal: decimal.NewFromInt(10), Shares: decimal.NewFromInt(10), SourceId: "src-a"}
		if err := tx.SavePosition(ctx, pos); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &models.Event{Type: models.EventDeposited, UserId: "user1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	pos, err := service.GetPosition(ctx, "user1", "USDC")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if pos.Version != 0 {
		t.Errorf("Expected no stored position after rollback, got %+v", pos)
	}

	events, err := service.ListUnpublishedEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnpublishedEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected no events after rollback, got %d", len(events))
	}
}

func TestEvents_OrderedAndPublishedOnce(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	for i, eventType := range []models.EventType{models.EventDeposited, models.EventRebalanced, models.EventWithdrawn} {
		ev := &models.Event{Type: eventType, UserId: "user1", Asset: "USDC", Amount: decimal.NewFromInt(int64(i + 1))}
		if err := service.WithTx(ctx, func(tx store.Tx) error { return tx.AppendEvent(ctx, ev) }); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	events, err := service.ListUnpublishedEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnpublishedEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Errorf("Events out of order: %d after %d", events[i].Seq, events[i-1].Seq)
		}
	}
	if events[1].Type != models.EventRebalanced || !events[1].Amount.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Unexpected second event: %+v", events[1])
	}

	if err := service.MarkEventPublished(ctx, events[0].Seq, time.Now()); err != nil {
		t.Fatalf("MarkEventPublished failed: %v", err)
	}

	remaining, err := service.ListUnpublishedEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnpublishedEvents failed: %v", err)
	}
	if len(remaining) != 2 || remaining[0].Seq != events[1].Seq {
		t.Errorf("Expected two remaining events starting at %d, got %+v", events[1].Seq, remaining)
	}

	history, err := service.ListEvents(ctx, "user1", 10, 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(history) != 3 || history[0].Type != models.EventWithdrawn {
		t.Errorf("Expected newest-first history, got %+v", history)
	}
	if history[2].PublishedAt == nil {
		t.Error("Expected first event to carry published_at")
	}
}

func TestBridgeRequest_DuplicateId(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	req := &models.BridgeRequest{
		Id:        "prime:tx-1",
		Direction: models.BridgeInbound,
		Scope:     "base-mainnet",
		Asset:     "USDC",
		Amount:    decimal.NewFromInt(1000000),
		UserId:    "user1",
		Status:    models.BridgeCompleted,
	}
	if err := service.WithTx(ctx, func(tx store.Tx) error { return tx.InsertBridgeRequest(ctx, req) }); err != nil {
		t.Fatalf("InsertBridgeRequest failed: %v", err)
	}

	dup := *req
	err := service.WithTx(ctx, func(tx store.Tx) error { return tx.InsertBridgeRequest(ctx, &dup) })
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("Expected ErrDuplicateTransaction, got %v", err)
	}

	got, err := service.GetBridgeRequest(ctx, req.Id)
	if err != nil {
		t.Fatalf("GetBridgeRequest failed: %v", err)
	}
	if got.Direction != models.BridgeInbound || !got.Amount.Equal(req.Amount) {
		t.Errorf("Unexpected bridge request: %+v", got)
	}

	if _, err := service.GetBridgeRequest(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestNextNonce_Monotonic(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	var got []uint64
	for i := 0; i < 3; i++ {
		err := service.WithTx(ctx, func(tx store.Tx) error {
			n, err := tx.NextNonce(ctx, "bridge_outbound")
			got = append(got, n)
			return err
		})
		if err != nil {
			t.Fatalf("NextNonce failed: %v", err)
		}
	}
	if got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("Expected 1,2,3 got %v", got)
	}
}

func TestSettingsAndFees(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	settings, err := service.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings.FeeBps != 1000 || settings.Paused {
		t.Errorf("Unexpected default settings: %+v", settings)
	}

	err = service.WithTx(ctx, func(tx store.Tx) error {
		settings.Paused = true
		settings.FeeSink = "ops"
		if err := tx.SaveSettings(ctx, settings); err != nil {
			return err
		}
		if err := tx.AccrueFee(ctx, "USDC", "ops", decimal.NewFromInt(10)); err != nil {
			return err
		}
		return tx.AccrueFee(ctx, "USDC", "ops", decimal.NewFromInt(5))
	})
	if err != nil {
		t.Fatalf("Settings transaction failed: %v", err)
	}

	settings, err = service.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if !settings.Paused || settings.FeeSink != "ops" {
		t.Errorf("Settings not persisted: %+v", settings)
	}

	accruals, err := service.ListFeeAccruals(ctx)
	if err != nil {
		t.Fatalf("ListFeeAccruals failed: %v", err)
	}
	if len(accruals) != 1 || !accruals[0].Accrued.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Expected 15 accrued, got %+v", accruals)
	}
}

func TestAddresses_FindByAddressOrIdentifier(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	_, err := service.StoreAddress(ctx, store.StoreAddressParams{
		UserId:            "user1",
		Asset:             "USDC",
		Network:           "base-mainnet",
		Address:           "0xAbC123",
		WalletId:          "wallet-1",
		AccountIdentifier: "acct-9",
	})
	if err != nil {
		t.Fatalf("StoreAddress failed: %v", err)
	}

	for _, lookup := range []string{"0xabc123", "acct-9"} {
		addr, err := service.FindAddress(ctx, lookup)
		if err != nil {
			t.Fatalf("FindAddress(%s) failed: %v", lookup, err)
		}
		if addr.UserId != "user1" || addr.WalletId != "wallet-1" {
			t.Errorf("Unexpected address for %s: %+v", lookup, addr)
		}
	}

	if _, err := service.FindAddress(ctx, "0xunknown"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	addresses, err := service.GetAddresses(ctx, "user1", "USDC", "base-mainnet")
	if err != nil {
		t.Fatalf("GetAddresses failed: %v", err)
	}
	if len(addresses) != 1 {
		t.Errorf("Expected 1 address, got %d", len(addresses))
	}
}

func TestPools_RoundTrip(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	state, err := service.LoadPool(ctx, "aave", "USDC")
	if err != nil {
		t.Fatalf("LoadPool failed: %v", err)
	}
	if !state.Balance.IsZero() || !state.AccruedAt.IsZero() {
		t.Fatalf("Expected empty pool, got %+v", state)
	}

	state.Balance = decimal.NewFromInt(1100)
	state.AccruedAt = time.Now()
	if err := service.SavePool(ctx, state); err != nil {
		t.Fatalf("SavePool failed: %v", err)
	}

	got, err := service.LoadPool(ctx, "aave", "USDC")
	if err != nil {
		t.Fatalf("LoadPool failed: %v", err)
	}
	if !got.Balance.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("Expected balance 1100, got %s", got.Balance)
	}
}
