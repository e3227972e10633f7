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

package models

import (
	"errors"
	"fmt"
)

// Domain errors returned by the routing engine and its collaborators.
// Callers match them with errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNoAvailableSource = errors.New("no available yield source")
	ErrAlreadyOptimal    = errors.New("position already in best source")
	ErrThresholdNotMet   = errors.New("rebalance threshold not met")
	ErrAdapterFailure    = errors.New("yield source adapter failure")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrReentrancy        = errors.New("operation already in progress for position")
	ErrSourceBusy        = errors.New("yield source busy")
	ErrPaused            = errors.New("router is paused")

	ErrDuplicateSource = errors.New("yield source already registered")
	ErrSourceInUse     = errors.New("yield source still holds deposits")
	ErrSourceNotFound  = errors.New("yield source not found")

	// ErrAssetNotSupported is an ErrInvalidInput.
	ErrAssetNotSupported = fmt.Errorf("%w: asset not supported", ErrInvalidInput)
)
