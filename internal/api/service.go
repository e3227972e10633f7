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


package api

import (
	"context"
	"fmt"

	"yield-router-go/internal/bridge"
	"yield-router-go/internal/router"
	"yield-router-go/internal/store"
)

// LedgerService is the user-facing facade over the router and the bridge.
type LedgerService struct {
	store  store.Store
	router *router.Router
	bridge *bridge.Service
}

// NewLedgerService builds the facade. bridge may be nil when no transport is configured.
func NewLedgerService(st store.Store, r *router.Router, b *bridge.Service) *LedgerService {
	return &LedgerService{
		store:  st,
		router: r,
		bridge: b,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	_, err := s.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
