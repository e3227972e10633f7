package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"yield-router-go/internal/common"
	"yield-router-go/internal/config"
	"yield-router-go/internal/models"
	"yield-router-go/internal/store"

	"go.uber.org/zap"
)

type setupStats struct {
	assetsAdded     int
	thresholds      int
	sourcesAdded    int
	sourcesAttached int
	failed          []string
}

// applyAsset registers the asset or, when it already exists, brings its threshold
// in line with the catalog.
func applyAsset(ctx context.Context, services *common.Services, caller string, assetConfig common.AssetConfig, stats *setupStats) error {
	existing, err := services.DbService.GetAsset(ctx, assetConfig.Symbol)
	if errors.Is(err, store.ErrNotFound) {
		err = services.Admin.AddAsset(ctx, caller, models.Asset{
			Symbol:                assetConfig.Symbol,
			Supported:             assetConfig.IsSupported(),
			Decimals:              assetConfig.Decimals,
			RebalanceThresholdBps: assetConfig.ThresholdBps,
		})
		if err != nil {
			return err
		}
		stats.assetsAdded++
		return nil
	}
	if err != nil {
		return err
	}

	if existing.Decimals != assetConfig.Decimals {
		zap.L().Warn("Catalog decimals differ from registered asset, keeping registered value",
			zap.String("asset", assetConfig.Symbol),
			zap.Int32("registered", existing.Decimals),
			zap.Int32("catalog", assetConfig.Decimals))
	}
	if existing.RebalanceThresholdBps == assetConfig.ThresholdBps {
		zap.L().Info("Asset already registered", zap.String("asset", assetConfig.Symbol))
		return nil
	}
	if err := services.Admin.SetRebalanceThreshold(ctx, caller, assetConfig.Symbol, assetConfig.ThresholdBps); err != nil {
		return err
	}
	stats.thresholds++
	return nil
}

func applySources(ctx context.Context, services *common.Services, caller string, stats *setupStats) {
	adapters, err := common.BuildAdapters(services.Catalog, services.DbService)
	if err != nil {
		zap.L().Fatal("Failed to build venues", zap.Error(err))
	}

	for _, a := range adapters {
		_, err := services.DbService.GetSource(ctx, a.ID())
		switch {
		case err == nil:
			if _, err := services.Registry.Attach(ctx, a); err != nil {
				stats.failed = append(stats.failed, "source "+a.Name())
				zap.L().Error("Failed to attach source", zap.String("venue", a.Name()), zap.Error(err))
				continue
			}
			stats.sourcesAttached++
		case errors.Is(err, store.ErrNotFound):
			src, err := services.Admin.AddSource(ctx, caller, a)
			if err != nil {
				stats.failed = append(stats.failed, "source "+a.Name())
				zap.L().Error("Failed to add source", zap.String("venue", a.Name()), zap.Error(err))
				continue
			}
			stats.sourcesAdded++
			zap.L().Info("Source registered",
				zap.String("id", src.Id),
				zap.String("name", src.Name),
				zap.String("chain", src.ChainScope))
		default:
			stats.failed = append(stats.failed, "source "+a.Name())
			zap.L().Error("Failed to look up source", zap.String("venue", a.Name()), zap.Error(err))
		}
	}
}

func applyFees(ctx context.Context, services *common.Services, caller string) error {
	fees := services.Catalog.Fees
	if fees.RateBps != nil {
		if err := services.Admin.SetFeeRate(ctx, caller, *fees.RateBps); err != nil {
			return fmt.Errorf("failed to set fee rate: %w", err)
		}
	}
	if fees.Sink != "" {
		if err := services.Admin.SetFeeSink(ctx, caller, fees.Sink); err != nil {
			return fmt.Errorf("failed to set fee sink: %w", err)
		}
	}
	return nil
}

func applyCatalog(ctx context.Context, services *common.Services, caller string) {
	zap.L().Info("Applying catalog",
		zap.Int("assets", len(services.Catalog.Assets)),
		zap.Int("venues", len(services.Catalog.Venues)))

	stats := &setupStats{}
	for _, assetConfig := range services.Catalog.Assets {
		if err := applyAsset(ctx, services, caller, assetConfig, stats); err != nil {
			stats.failed = append(stats.failed, "asset "+assetConfig.Symbol)
			zap.L().Error("Failed to apply asset", zap.String("asset", assetConfig.Symbol), zap.Error(err))
		}
	}

	applySources(ctx, services, caller, stats)

	if err := applyFees(ctx, services, caller); err != nil {
		stats.failed = append(stats.failed, "fees")
		zap.L().Error("Failed to apply fee settings", zap.Error(err))
	}

	if len(stats.failed) > 0 {
		zap.L().Warn("Catalog applied with some failures",
			zap.Int("assets_added", stats.assetsAdded),
			zap.Int("thresholds_updated", stats.thresholds),
			zap.Int("sources_added", stats.sourcesAdded),
			zap.Int("sources_attached", stats.sourcesAttached),
			zap.Strings("failed", stats.failed))
		return
	}
	zap.L().Info("Catalog applied successfully",
		zap.Int("assets_added", stats.assetsAdded),
		zap.Int("thresholds_updated", stats.thresholds),
		zap.Int("sources_added", stats.sourcesAdded),
		zap.Int("sources_attached", stats.sourcesAttached))
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	adminFlag := flag.String("admin", "", "Admin id performing the changes (default: first of ADMIN_IDS)")
	pauseFlag := flag.Bool("pause", false, "Pause deposits, withdrawals and rebalances")
	unpauseFlag := flag.Bool("unpause", false, "Resume operations")
	deactivateFlag := flag.String("deactivate", "", "Deactivate the yield source with this id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	caller := *adminFlag
	if caller == "" && len(cfg.Router.AdminIds) > 0 {
		caller = cfg.Router.AdminIds[0]
	}
	if caller == "" {
		zap.L().Fatal("No admin id: pass --admin or set ADMIN_IDS")
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	switch {
	case *pauseFlag:
		if err := services.Admin.Pause(ctx, caller); err != nil {
			zap.L().Fatal("Failed to pause", zap.Error(err))
		}
	case *unpauseFlag:
		if err := services.Admin.Unpause(ctx, caller); err != nil {
			zap.L().Fatal("Failed to unpause", zap.Error(err))
		}
	case *deactivateFlag != "":
		if err := services.Admin.DeactivateSource(ctx, caller, *deactivateFlag); err != nil {
			zap.L().Fatal("Failed to deactivate source", zap.String("source_id", *deactivateFlag), zap.Error(err))
		}
	default:
		applyCatalog(ctx, services, caller)
	}
}
