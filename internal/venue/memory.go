package venue

import (
	"context"
	"sync"

	"yield-router-go/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryPoolStore keeps pool state in process memory.
type MemoryPoolStore struct {
	mu    sync.Mutex
	pools map[string]models.PoolState
}

func NewMemoryPoolStore() *MemoryPoolStore {
	return &MemoryPoolStore{pools: make(map[string]models.PoolState)}
}

func (m *MemoryPoolStore) LoadPool(_ context.Context, venue, asset string) (*models.PoolState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.pools[venue+"/"+asset]
	if !ok {
		return &models.PoolState{Venue: venue, Asset: asset, Balance: decimal.Zero}, nil
	}
	return &state, nil
}

func (m *MemoryPoolStore) SavePool(_ context.Context, state *models.PoolState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pools[state.Venue+"/"+state.Asset] = *state
	return nil
}
