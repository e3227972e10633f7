// Package registry keeps the set of yield sources and selects the best one
// for an asset.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"yield-router-go/internal/adapter"
	"yield-router-go/internal/models"
	"yield-router-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Quote is the outcome of asking one source for its yield. Err is set when the
// source could not be quoted.
type Quote struct {
	Source models.YieldSource
	APY    int64
	Err    error
}

// Registry binds persisted source records to live adapters. Records are never
// deleted; deactivated sources stay queryable.
type Registry struct {
	store            store.Store
	quoteConcurrency int
	now              func() time.Time

	mu       sync.RWMutex
	adapters map[string]*adapter.Adapter
}

func New(st store.Store, quoteConcurrency int) *Registry {
	if quoteConcurrency <= 0 {
		quoteConcurrency = 4
	}
	return &Registry{
		store:            st,
		quoteConcurrency: quoteConcurrency,
		now:              time.Now,
		adapters:         make(map[string]*adapter.Adapter),
	}
}

// AddSource registers a new source with Active set and nothing deposited.
func (r *Registry) AddSource(ctx context.Context, a *adapter.Adapter) (*models.YieldSource, error) {
	src := &models.YieldSource{
		Id:         a.ID(),
		Name:       a.Name(),
		ChainScope: a.ChainScope(),
	}

	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertSource(ctx, src); err != nil {
			if errors.Is(err, store.ErrDuplicateTransaction) {
				return fmt.Errorf("%w: %s on %s", models.ErrDuplicateSource, a.Name(), a.ChainScope())
			}
			return err
		}
		return tx.AppendEvent(ctx, &models.Event{
			Type:     models.EventSourceAdded,
			SourceId: src.Id,
			Origin:   models.OriginFrom(ctx),
		})
	})
	if err != nil {
		return nil, err
	}

	r.bind(a)
	zap.L().Info("Yield source added",
		zap.String("source_id", src.Id),
		zap.String("name", src.Name),
		zap.String("chain_scope", src.ChainScope),
		zap.Int64("seq", src.Seq))
	return src, nil
}

// Attach binds a to its existing record, registering the source first when
// it is unknown.
func (r *Registry) Attach(ctx context.Context, a *adapter.Adapter) (*models.YieldSource, error) {
	src, err := r.store.GetSource(ctx, a.ID())
	if errors.Is(err, store.ErrNotFound) {
		return r.AddSource(ctx, a)
	}
	if err != nil {
		return nil, err
	}

	r.bind(a)
	zap.L().Debug("Yield source attached", zap.String("source_id", src.Id), zap.String("name", src.Name))
	return src, nil
}

// Deactivate removes a source from selection. A source still holding principal
// cannot be deactivated.
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		src, err := tx.GetSource(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", models.ErrSourceNotFound, id)
			}
			return err
		}
		if !src.TotalDeposited.IsZero() {
			return fmt.Errorf("%w: %s holds %s", models.ErrSourceInUse, src.Name, src.TotalDeposited)
		}
		if !src.Active {
			return nil
		}

		if err := tx.SetSourceActive(ctx, id, false); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &models.Event{
			Type:     models.EventSourceDeactivated,
			SourceId: id,
			Origin:   models.OriginFrom(ctx),
		})
	})
	if err != nil {
		return err
	}

	zap.L().Info("Yield source deactivated", zap.String("source_id", id))
	return nil
}

func (r *Registry) Get(ctx context.Context, id string) (*models.YieldSource, error) {
	src, err := r.store.GetSource(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrSourceNotFound, id)
	}
	return src, err
}

// List returns every source in registration order.
func (r *Registry) List(ctx context.Context) ([]models.YieldSource, error) {
	return r.store.ListSources(ctx)
}

// Adapter returns the live adapter bound to id.
func (r *Registry) Adapter(id string) (*adapter.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter bound for %s", models.ErrSourceNotFound, id)
	}
	return a, nil
}

// QuoteSource quotes a single source.
func (r *Registry) QuoteSource(ctx context.Context, id, asset string) (int64, error) {
	a, err := r.Adapter(id)
	if err != nil {
		return 0, err
	}
	return a.Quote(ctx, asset)
}

// Quotes asks every active, bound source for its APY on asset. Results keep
// registration order; failures are reported per source.
func (r *Registry) Quotes(ctx context.Context, asset string) ([]Quote, error) {
	sources, err := r.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	type candidate struct {
		src models.YieldSource
		a   *adapter.Adapter
	}
	r.mu.RLock()
	candidates := make([]candidate, 0, len(sources))
	for _, src := range sources {
		if !src.Active {
			continue
		}
		if a, ok := r.adapters[src.Id]; ok {
			candidates = append(candidates, candidate{src: src, a: a})
		}
	}
	r.mu.RUnlock()

	quotes := make([]Quote, len(candidates))
	var g errgroup.Group
	g.SetLimit(r.quoteConcurrency)
	for i, c := range candidates {
		g.Go(func() error {
			apy, err := c.a.Quote(ctx, asset)
			quotes[i] = Quote{Source: c.src, APY: apy, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	now := r.now().UTC()
	for i := range quotes {
		q := &quotes[i]
		if q.Err != nil {
			zap.L().Warn("Yield source quote failed",
				zap.String("source_id", q.Source.Id),
				zap.String("name", q.Source.Name),
				zap.String("asset", asset),
				zap.Error(q.Err))
			continue
		}
		if err := r.store.UpdateSourceAPY(ctx, q.Source.Id, q.APY, now); err != nil {
			zap.L().Warn("Failed to record source APY", zap.String("source_id", q.Source.Id), zap.Error(err))
			continue
		}
		q.Source.CurrentAPY = q.APY
		q.Source.LastUpdate = now
	}
	return quotes, nil
}

// FindBest returns the highest quote for asset. Ties keep the earliest
// registered source.
func (r *Registry) FindBest(ctx context.Context, asset string) (Quote, error) {
	quotes, err := r.Quotes(ctx, asset)
	if err != nil {
		return Quote{}, err
	}

	best := -1
	for i, q := range quotes {
		if q.Err != nil {
			continue
		}
		if best < 0 || q.APY > quotes[best].APY {
			best = i
		}
	}
	if best < 0 {
		return Quote{}, fmt.Errorf("%w for %s", models.ErrNoAvailableSource, asset)
	}

	zap.L().Debug("Best yield source selected",
		zap.String("asset", asset),
		zap.String("source_id", quotes[best].Source.Id),
		zap.String("name", quotes[best].Source.Name),
		zap.Int64("apy_bps", quotes[best].APY))
	return quotes[best], nil
}

func (r *Registry) bind(a *adapter.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
}
