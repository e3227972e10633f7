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

import "time"

// WalletInfo represents a custody wallet watched for inbound value
type WalletInfo struct {
	Id          string `json:"id"`
	AssetSymbol string `json:"asset_symbol"`
}

// InboundDeposit is a custody-platform deposit observed on a watched wallet.
// Amount is the platform's human-readable decimal string.
type InboundDeposit struct {
	Id                string    `json:"id"`
	WalletId          string    `json:"wallet_id"`
	Status            string    `json:"status"`
	Symbol            string    `json:"symbol"`
	Amount            string    `json:"amount"`
	Network           string    `json:"network"`
	Address           string    `json:"address"`
	AccountIdentifier string    `json:"account_identifier"`
	SourceAddress     string    `json:"source_address"`
	CreatedAt         time.Time `json:"created_at"`
	CompletedAt       time.Time `json:"completed_at"`
}
