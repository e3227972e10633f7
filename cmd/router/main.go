/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"yield-router-go/internal/api"
	"yield-router-go/internal/common"
	"yield-router-go/internal/config"
	"yield-router-go/internal/listener"
	"yield-router-go/internal/models"
	"yield-router-go/internal/projector"

	"go.uber.org/zap"
)

// stoppable is a background loop owned by the daemon.
type stoppable interface {
	Stop()
}

func startListener(ctx context.Context, services *common.Services, cfg *models.Config) (stoppable, error) {
	l := listener.NewInboundListener(listener.InboundListenerConfig{
		Feed:            services.PrimeService,
		Bridge:          services.Bridge,
		Store:           services.DbService,
		PortfolioId:     services.DefaultPortfolio.Id,
		LookbackWindow:  cfg.Listener.LookbackWindow,
		PollingInterval: cfg.Listener.PollingInterval,
		CleanupInterval: cfg.Listener.CleanupInterval,
	})
	if err := l.Start(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// refreshQuotes records every source's current APY on the interval.
func refreshQuotes(ctx context.Context, services *common.Services, interval time.Duration, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, a := range services.Catalog.Assets {
				if _, err := services.Registry.Quotes(ctx, a.Symbol); err != nil {
					zap.L().Debug("Quote refresh failed", zap.String("asset", a.Symbol), zap.Error(err))
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	noHTTP := flag.Bool("no-http", false, "Do not serve the HTTP read API")
	quoteInterval := flag.Duration("quote-interval", time.Minute, "How often source APYs are refreshed")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(models.WithOrigin(context.Background(), "daemon"))
	defer cancel()

	zap.L().Info("Starting yield router")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var publisher projector.Publisher = projector.LogPublisher{}
	if services.Formance != nil {
		publisher = services.Formance
		zap.L().Info("Projecting events to Formance ledger")
	}
	proj := projector.New(services.DbService, publisher, cfg.Projector, services.Metrics)
	proj.Start(ctx)
	loops := []stoppable{proj}

	if services.PrimeService != nil && cfg.Listener.Enabled {
		l, err := startListener(ctx, services, cfg)
		if err != nil {
			zap.L().Error("Failed to start inbound listener", zap.Error(err))
		} else {
			loops = append(loops, l)
		}
	} else {
		zap.L().Info("Inbound listener disabled")
	}

	quotesDone := make(chan struct{})
	go refreshQuotes(ctx, services, *quoteInterval, quotesDone)

	var server *api.Server
	serverErr := make(chan error, 1)
	if !*noHTTP {
		server = api.NewServer(cfg.HTTPAddr, services.API, services.Metrics.Handler())
		go func() { serverErr <- server.Start() }()
	}

	zap.L().Info("Yield router running", zap.Int("background_loops", len(loops)))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping...")
	case err := <-serverErr:
		if err != nil {
			zap.L().Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("HTTP server shutdown incomplete", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, loop := range loops {
			wg.Add(1)
			go func(loop stoppable) {
				defer wg.Done()
				loop.Stop()
			}(loop)
		}
		wg.Wait()
		cancel()
		<-quotesDone
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Yield router stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
