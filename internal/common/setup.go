package common

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"yield-router-go/internal/adapter"
	"yield-router-go/internal/api"
	"yield-router-go/internal/bridge"
	"yield-router-go/internal/database"
	"yield-router-go/internal/fees"
	"yield-router-go/internal/formance"
	"yield-router-go/internal/ledger"
	"yield-router-go/internal/metrics"
	"yield-router-go/internal/models"
	"yield-router-go/internal/prime"
	"yield-router-go/internal/registry"
	"yield-router-go/internal/router"
	"yield-router-go/internal/store"
	"yield-router-go/internal/venue"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services is the assembled engine shared by every binary. Prime, Portfolio
// and Formance are nil when their configuration is absent.
type Services struct {
	DbService *database.Service
	Catalog   *Catalog
	Metrics   *metrics.Collector
	Registry  *registry.Registry
	Ledger    *ledger.Ledger
	Router    *router.Router
	Bridge    *bridge.Service
	API       *api.LedgerService
	Admin     *api.AdminService

	PrimeService     *prime.Service
	DefaultPortfolio *models.Portfolio
	Formance         *formance.Service
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the database, binds the catalog venues to their
// registered sources and wires the optional Prime transport and Formance ledger.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	catalog, err := LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &Services{
		DbService: dbService,
		Catalog:   catalog,
		Metrics:   metrics.NewCollector("yield_router"),
	}
	s.Registry = registry.New(dbService, cfg.Router.QuoteConcurrency)
	s.Ledger = ledger.New(dbService, s.Registry)
	s.Router = router.New(dbService, s.Registry, s.Ledger, fees.NewEngine(), cfg.Router, s.Metrics)
	s.Admin = api.NewAdminService(dbService, s.Registry, cfg.Router.AdminIds)

	adapters, err := BuildAdapters(catalog, dbService)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := bindAdapters(ctx, s.Registry, dbService, adapters); err != nil {
		s.Close()
		return nil, err
	}

	var transport bridge.Transport
	if cfg.Prime.Enabled() {
		if err := s.initializePrime(ctx, cfg.Prime); err != nil {
			s.Close()
			return nil, err
		}
		transport = prime.NewTransport(s.PrimeService, dbService, s.DefaultPortfolio.Id)
	} else {
		zap.L().Info("Prime credentials not set, cross-chain transfers disabled")
	}
	s.Bridge = bridge.NewService(dbService, s.Router, transport, s.Metrics)
	s.API = api.NewLedgerService(dbService, s.Router, s.Bridge)

	if cfg.Formance.StackURL != "" {
		formanceService, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			s.Close()
			return nil, err
		}
		for _, a := range catalog.Assets {
			formanceService.RegisterAsset(a.Symbol, a.Decimals)
		}
		s.Formance = formanceService
	}

	return s, nil
}

// InitializeDatabaseOnly initializes just the database service without the engine.
// Useful for read-only operations like querying positions
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

// BuildAdapters creates one pool per catalog venue, persisted through pools.
func BuildAdapters(catalog *Catalog, pools venue.PoolStore) ([]*adapter.Adapter, error) {
	adapters := make([]*adapter.Adapter, 0, len(catalog.Venues))
	for _, v := range catalog.Venues {
		rates := make(map[string]decimal.Decimal, len(v.APY))
		for symbol, bps := range v.APY {
			rates[symbol] = adapter.RateFromAPY(bps)
		}
		pool, err := venue.NewPool(venue.PoolConfig{
			Name:       v.Name,
			ChainScope: v.Chain,
			Rates:      rates,
			Store:      pools,
		})
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", v.Name, err)
		}
		adapters = append(adapters, adapter.New(pool))
	}
	return adapters, nil
}

// bindAdapters attaches the adapters whose sources are already registered.
// Registration itself goes through the admin surface.
func bindAdapters(ctx context.Context, reg *registry.Registry, st store.Reader, adapters []*adapter.Adapter) error {
	for _, a := range adapters {
		if _, err := st.GetSource(ctx, a.ID()); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				zap.L().Warn("Venue not registered yet, run setup to add it",
					zap.String("venue", a.Name()),
					zap.String("chain", a.ChainScope()))
				continue
			}
			return err
		}
		if _, err := reg.Attach(ctx, a); err != nil {
			return fmt.Errorf("failed to attach venue %s: %w", a.Name(), err)
		}
	}
	return nil
}

func (cs *Services) initializePrime(ctx context.Context, cfg models.PrimeConfig) error {
	zap.L().Info("Loading Prime API credentials")
	primeService, err := prime.NewService(&credentials.Credentials{
		AccessKey:  cfg.AccessKey,
		Passphrase: cfg.Passphrase,
		SigningKey: cfg.SigningKey,
	})
	if err != nil {
		return err
	}

	portfolio := &models.Portfolio{Id: cfg.PortfolioId}
	if portfolio.Id == "" {
		zap.L().Info("Finding default portfolio")
		portfolio, err = primeService.FindDefaultPortfolio(ctx)
		if err != nil {
			return err
		}
	}
	zap.L().Info("Using portfolio",
		zap.String("name", portfolio.Name),
		zap.String("id", portfolio.Id))

	cs.PrimeService = primeService
	cs.DefaultPortfolio = portfolio
	return nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
