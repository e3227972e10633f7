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
	"time"

	"github.com/shopspring/decimal"
)

// PositionView is a position together with its current redeemable value
type PositionView struct {
	UserId          string          `json:"user_id"`
	Asset           string          `json:"asset"`
	SourceId        string          `json:"source_id,omitempty"`
	SourceName      string          `json:"source_name,omitempty"`
	Principal       decimal.Decimal `json:"principal"`
	Shares          decimal.Decimal `json:"shares"`
	Value           decimal.Decimal `json:"value"`
	UnrealizedYield decimal.Decimal `json:"unrealized_yield"`
	DepositedAt     time.Time       `json:"deposited_at"`
}

// DepositResult represents the result of routing a deposit
type DepositResult struct {
	Success  bool            `json:"success"`
	UserId   string          `json:"user_id,omitempty"`
	Asset    string          `json:"asset,omitempty"`
	Amount   decimal.Decimal `json:"amount,omitempty"`
	SourceId string          `json:"source_id,omitempty"`
	APY      int64           `json:"apy_bps,omitempty"`
	Shares   decimal.Decimal `json:"shares,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// WithdrawalResult represents the result of a withdrawal
type WithdrawalResult struct {
	Success        bool            `json:"success"`
	UserId         string          `json:"user_id,omitempty"`
	Asset          string          `json:"asset,omitempty"`
	Principal      decimal.Decimal `json:"principal,omitempty"`
	Received       decimal.Decimal `json:"received,omitempty"`
	Yield          decimal.Decimal `json:"yield,omitempty"`
	Fee            decimal.Decimal `json:"fee,omitempty"`
	Net            decimal.Decimal `json:"net,omitempty"`
	SharesRedeemed decimal.Decimal `json:"shares_redeemed,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// RebalanceResult represents the result of moving a position between sources
type RebalanceResult struct {
	Success    bool            `json:"success"`
	UserId     string          `json:"user_id,omitempty"`
	Asset      string          `json:"asset,omitempty"`
	FromSource string          `json:"from_source,omitempty"`
	ToSource   string          `json:"to_source,omitempty"`
	FromAPY    int64           `json:"from_apy_bps"`
	ToAPY      int64           `json:"to_apy_bps"`
	Moved      decimal.Decimal `json:"moved,omitempty"`
	NewShares  decimal.Decimal `json:"new_shares,omitempty"`
	Error      string          `json:"error,omitempty"`
}
