package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"yield-router-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Wad is the fixed-point scale of per-second rates.
var Wad = decimal.New(1, 18)

// PoolStore persists pool balances so several processes observe the same venue.
type PoolStore interface {
	LoadPool(ctx context.Context, venue, asset string) (*models.PoolState, error)
	SavePool(ctx context.Context, state *models.PoolState) error
}

// PoolConfig describes a simulated lending pool.
type PoolConfig struct {
	Name       string
	ChainScope string
	// Rates maps asset symbol to a WAD-scaled per-second supply rate.
	Rates map[string]decimal.Decimal
	Store PoolStore
	Clock func() time.Time
}

// Pool is a lending market whose balance accrues simple interest every whole
// second at its per-asset rate.
type Pool struct {
	name       string
	chainScope string
	store      PoolStore
	now        func() time.Time

	mu    sync.Mutex
	rates map[string]decimal.Decimal
}

var _ Venue = (*Pool)(nil)

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("pool name cannot be empty")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("pool %s requires a store", cfg.Name)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	rates := make(map[string]decimal.Decimal, len(cfg.Rates))
	for asset, rate := range cfg.Rates {
		if rate.IsNegative() {
			return nil, fmt.Errorf("pool %s: negative rate for %s", cfg.Name, asset)
		}
		rates[asset] = rate
	}

	return &Pool{
		name:       cfg.Name,
		chainScope: cfg.ChainScope,
		store:      cfg.Store,
		now:        clock,
		rates:      rates,
	}, nil
}

func (p *Pool) Name() string       { return p.name }
func (p *Pool) ChainScope() string { return p.chainScope }

// SetRate changes the supply rate of an asset; later accrual uses the new rate.
func (p *Pool) SetRate(asset string, rate decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates[asset] = rate
}

func (p *Pool) RatePerSecond(_ context.Context, asset string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rateLocked(asset)
}

func (p *Pool) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.accrueLocked(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	return state.Balance, nil
}

func (p *Pool) Supply(ctx context.Context, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("supply amount must be positive, got %s", amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.accrueLocked(ctx, asset)
	if err != nil {
		return err
	}
	state.Balance = state.Balance.Add(amount)
	if err := p.store.SavePool(ctx, state); err != nil {
		return err
	}

	zap.L().Debug("Pool supply",
		zap.String("venue", p.name),
		zap.String("asset", asset),
		zap.String("amount", amount.String()),
		zap.String("balance", state.Balance.String()))
	return nil
}

func (p *Pool) Redeem(ctx context.Context, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("redeem amount must be positive, got %s", amount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.accrueLocked(ctx, asset)
	if err != nil {
		return err
	}
	if state.Balance.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s %s, requested %s",
			ErrInsufficientLiquidity, p.name, state.Balance, asset, amount)
	}
	state.Balance = state.Balance.Sub(amount)
	if err := p.store.SavePool(ctx, state); err != nil {
		return err
	}

	zap.L().Debug("Pool redeem",
		zap.String("venue", p.name),
		zap.String("asset", asset),
		zap.String("amount", amount.String()),
		zap.String("balance", state.Balance.String()))
	return nil
}

func (p *Pool) rateLocked(asset string) (decimal.Decimal, error) {
	rate, ok := p.rates[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("venue %s does not list %s", p.name, asset)
	}
	return rate, nil
}

// accrueLocked loads the pool and applies interest for every whole second
// elapsed since the last accrual: balance += floor(balance * rate * seconds / 1e18).
func (p *Pool) accrueLocked(ctx context.Context, asset string) (*models.PoolState, error) {
	rate, err := p.rateLocked(asset)
	if err != nil {
		return nil, err
	}

	state, err := p.store.LoadPool(ctx, p.name, asset)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	if state.AccruedAt.IsZero() {
		state.AccruedAt = now
		return state, nil
	}

	elapsed := int64(now.Sub(state.AccruedAt) / time.Second)
	if elapsed <= 0 {
		return state, nil
	}

	interest, _ := state.Balance.Mul(rate).Mul(decimal.NewFromInt(elapsed)).QuoRem(Wad, 0)
	state.Balance = state.Balance.Add(interest)
	state.AccruedAt = state.AccruedAt.Add(time.Duration(elapsed) * time.Second)
	return state, nil
}
