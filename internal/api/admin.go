package api

import (
	"context"
	"errors"
	"fmt"

	"yield-router-go/internal/adapter"
	"yield-router-go/internal/fees"
	"yield-router-go/internal/models"
	"yield-router-go/internal/registry"
	"yield-router-go/internal/store"

	"go.uber.org/zap"
)

const maxThresholdBps = 10_000

// AdminService holds the privileged operations. Every call names its caller,
// and callers outside the configured admin set are refused.
type AdminService struct {
	store    store.Store
	registry *registry.Registry
	admins   map[string]bool
}

func NewAdminService(st store.Store, reg *registry.Registry, adminIds []string) *AdminService {
	admins := make(map[string]bool, len(adminIds))
	for _, id := range adminIds {
		if id != "" {
			admins[id] = true
		}
	}
	return &AdminService{store: st, registry: reg, admins: admins}
}

func (s *AdminService) authorize(ctx context.Context, caller, action string) (context.Context, error) {
	if !s.admins[caller] {
		zap.L().Warn("Unauthorized admin call",
			zap.String("caller", caller),
			zap.String("action", action))
		return ctx, fmt.Errorf("%w: %s may not %s", models.ErrUnauthorized, caller, action)
	}
	if models.OriginFrom(ctx) == "" {
		ctx = models.WithOrigin(ctx, "admin:"+caller)
	}
	return ctx, nil
}

// AddSource registers a venue adapter as a new yield source.
func (s *AdminService) AddSource(ctx context.Context, caller string, a *adapter.Adapter) (*models.YieldSource, error) {
	ctx, err := s.authorize(ctx, caller, "add source")
	if err != nil {
		return nil, err
	}
	return s.registry.AddSource(ctx, a)
}

// DeactivateSource stops routing to a source. It fails while the source holds deposits.
func (s *AdminService) DeactivateSource(ctx context.Context, caller, sourceId string) error {
	ctx, err := s.authorize(ctx, caller, "deactivate source")
	if err != nil {
		return err
	}
	return s.registry.Deactivate(ctx, sourceId)
}

// AddAsset registers a token. Assets are never removed.
func (s *AdminService) AddAsset(ctx context.Context, caller string, asset models.Asset) error {
	if _, err := s.authorize(ctx, caller, "add asset"); err != nil {
		return err
	}
	if asset.Symbol == "" || asset.Decimals < 0 {
		return fmt.Errorf("%w: asset needs a symbol and non-negative decimals", models.ErrInvalidInput)
	}
	if err := validateThreshold(asset.RebalanceThresholdBps); err != nil {
		return err
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertAsset(ctx, &asset)
	})
	if errors.Is(err, store.ErrDuplicateTransaction) {
		return fmt.Errorf("%w: asset %s already registered", models.ErrInvalidInput, asset.Symbol)
	}
	if err != nil {
		return err
	}

	zap.L().Info("Asset added",
		zap.String("symbol", asset.Symbol),
		zap.Bool("supported", asset.Supported),
		zap.Int32("decimals", asset.Decimals),
		zap.Int64("threshold_bps", asset.RebalanceThresholdBps),
		zap.String("caller", caller))
	return nil
}

// SetRebalanceThreshold sets the minimum APY gain, in bps of the current APY,
// a rebalance of asset must clear.
func (s *AdminService) SetRebalanceThreshold(ctx context.Context, caller, symbol string, thresholdBps int64) error {
	if _, err := s.authorize(ctx, caller, "set rebalance threshold"); err != nil {
		return err
	}
	if err := validateThreshold(thresholdBps); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.SetAssetThreshold(ctx, symbol, thresholdBps)
	})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", models.ErrAssetNotSupported, symbol)
	}
	if err != nil {
		return err
	}
	zap.L().Info("Rebalance threshold updated",
		zap.String("symbol", symbol),
		zap.Int64("threshold_bps", thresholdBps),
		zap.String("caller", caller))
	return nil
}

// SetFeeRate sets the performance fee charged on realised yield.
func (s *AdminService) SetFeeRate(ctx context.Context, caller string, feeBps int64) error {
	if _, err := s.authorize(ctx, caller, "set fee rate"); err != nil {
		return err
	}
	if err := fees.ValidateRate(feeBps); err != nil {
		return err
	}
	return s.updateSettings(ctx, caller, func(st *models.Settings) { st.FeeBps = feeBps })
}

// SetFeeSink names the account future fees are credited to.
func (s *AdminService) SetFeeSink(ctx context.Context, caller, sink string) error {
	if _, err := s.authorize(ctx, caller, "set fee sink"); err != nil {
		return err
	}
	if sink == "" {
		return fmt.Errorf("%w: fee sink is required", models.ErrInvalidInput)
	}
	return s.updateSettings(ctx, caller, func(st *models.Settings) { st.FeeSink = sink })
}

// Pause rejects every deposit, withdrawal and rebalance until Unpause.
func (s *AdminService) Pause(ctx context.Context, caller string) error {
	if _, err := s.authorize(ctx, caller, "pause"); err != nil {
		return err
	}
	return s.updateSettings(ctx, caller, func(st *models.Settings) { st.Paused = true })
}

func (s *AdminService) Unpause(ctx context.Context, caller string) error {
	if _, err := s.authorize(ctx, caller, "unpause"); err != nil {
		return err
	}
	return s.updateSettings(ctx, caller, func(st *models.Settings) { st.Paused = false })
}

func (s *AdminService) updateSettings(ctx context.Context, caller string, apply func(*models.Settings)) error {
	var updated models.Settings
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		apply(current)
		updated = *current
		return tx.SaveSettings(ctx, current)
	})
	if err != nil {
		return err
	}
	zap.L().Info("Router settings updated",
		zap.Int64("fee_bps", updated.FeeBps),
		zap.String("fee_sink", updated.FeeSink),
		zap.Bool("paused", updated.Paused),
		zap.String("caller", caller))
	return nil
}

func validateThreshold(bps int64) error {
	if bps < 0 || bps > maxThresholdBps {
		return fmt.Errorf("%w: threshold %d bps outside [0, %d]", models.ErrInvalidInput, bps, maxThresholdBps)
	}
	return nil
}
