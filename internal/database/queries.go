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

package database

const (
	// Source queries
	querySelectSource = `
		SELECT s.id, s.name, s.chain_scope, s.active, s.current_apy_bps, s.last_update, s.seq, s.created_at,
		       COALESCE((SELECT GROUP_CONCAT(sa.total_deposited, ',') FROM source_assets sa WHERE sa.source_id = s.id), '')
		FROM sources s`

	queryGetSource = querySelectSource + `
		WHERE s.id = ?`

	queryListSources = querySelectSource + `
		ORDER BY s.seq`

	queryInsertSource = `
		INSERT INTO sources (id, name, chain_scope, active, current_apy_bps, seq, created_at)
		VALUES (?, ?, ?, 1, 0, (SELECT COALESCE(MAX(seq), 0) + 1 FROM sources), ?)
		RETURNING seq`

	querySetSourceActive = `
		UPDATE sources SET active = ? WHERE id = ?`

	queryUpdateSourceAPY = `
		UPDATE sources SET current_apy_bps = ?, last_update = ? WHERE id = ?`

	queryGetSourceAsset = `
		SELECT source_id, asset, total_shares, total_deposited, updated_at
		FROM source_assets
		WHERE source_id = ? AND asset = ?`

	queryUpsertSourceAsset = `
		INSERT INTO source_assets (source_id, asset, total_shares, total_deposited, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, asset) DO UPDATE SET
			total_shares = excluded.total_shares,
			total_deposited = excluded.total_deposited,
			updated_at = excluded.updated_at`

	// Asset queries
	queryGetAsset = `
		SELECT symbol, supported, decimals, rebalance_threshold_bps, created_at
		FROM assets
		WHERE symbol = ?`

	queryListAssets = `
		SELECT symbol, supported, decimals, rebalance_threshold_bps, created_at
		FROM assets
		ORDER BY symbol`

	queryInsertAsset = `
		INSERT INTO assets (symbol, supported, decimals, rebalance_threshold_bps, created_at)
		VALUES (?, ?, ?, ?, ?)`

	querySetAssetThreshold = `
		UPDATE assets SET rebalance_threshold_bps = ? WHERE symbol = ?`

	// Position queries
	queryGetPosition = `
		SELECT user_id, asset, deposited_principal, shares, source_id, deposit_timestamp, version, updated_at
		FROM positions
		WHERE user_id = ? AND asset = ?`

	queryListUserPositions = `
		SELECT user_id, asset, deposited_principal, shares, source_id, deposit_timestamp, version, updated_at
		FROM positions
		WHERE user_id = ?
		ORDER BY asset`

	queryListAllPositions = `
		SELECT user_id, asset, deposited_principal, shares, source_id, deposit_timestamp, version, updated_at
		FROM positions
		ORDER BY user_id, asset`

	queryInsertPosition = `
		INSERT INTO positions (user_id, asset, deposited_principal, shares, source_id, deposit_timestamp, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)`

	queryUpdatePosition = `
		UPDATE positions
		SET deposited_principal = ?, shares = ?, source_id = ?, deposit_timestamp = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND asset = ? AND version = ?`

	// Fee and settings queries
	queryGetFeeAccrual = `
		SELECT accrued FROM fee_accruals WHERE asset = ? AND sink = ?`

	queryUpsertFeeAccrual = `
		INSERT INTO fee_accruals (asset, sink, accrued, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(asset, sink) DO UPDATE SET accrued = excluded.accrued, updated_at = excluded.updated_at`

	queryListFeeAccruals = `
		SELECT asset, sink, accrued, updated_at
		FROM fee_accruals
		ORDER BY asset, sink`

	queryGetSettings = `
		SELECT fee_bps, fee_sink, paused, updated_at FROM settings WHERE id = 1`

	queryUpdateSettings = `
		UPDATE settings SET fee_bps = ?, fee_sink = ?, paused = ?, updated_at = ? WHERE id = 1`

	queryNextNonce = `
		INSERT INTO nonces (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value`

	// Bridge queries
	queryInsertBridgeRequest = `
		INSERT INTO bridge_requests (id, direction, scope, asset, amount, user_id, recipient, nonce, status, external_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetBridgeRequest = `
		SELECT id, direction, scope, asset, amount, user_id, recipient, nonce, status, external_id, created_at, updated_at
		FROM bridge_requests
		WHERE id = ?`

	queryUpdateBridgeRequest = `
		UPDATE bridge_requests SET status = ?, external_id = ?, updated_at = ? WHERE id = ?`

	// Event queries
	queryInsertEvent = `
		INSERT INTO events (id, type, user_id, asset, source_id, from_source, to_source, amount, yield, fee, shares, reference, origin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING seq`

	querySelectEvent = `
		SELECT seq, id, type, user_id, asset, source_id, from_source, to_source, amount, yield, fee, shares, reference, origin, created_at, published_at
		FROM events`

	queryListUnpublishedEvents = querySelectEvent + `
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT ?`

	queryListUserEvents = querySelectEvent + `
		WHERE user_id = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?`

	queryListAllEvents = querySelectEvent + `
		ORDER BY seq DESC
		LIMIT ? OFFSET ?`

	queryMarkEventPublished = `
		UPDATE events SET published_at = ? WHERE seq = ? AND published_at IS NULL`

	// Address queries
	queryInsertAddress = `
		INSERT INTO addresses (id, user_id, asset, network, address, wallet_id, account_identifier, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, user_id, asset, network, address, wallet_id, account_identifier, created_at`

	queryGetUserAddresses = `
		SELECT id, user_id, asset, network, address, wallet_id, account_identifier, created_at
		FROM addresses
		WHERE user_id = ? AND asset = ? AND network = ?
		ORDER BY created_at DESC`

	queryFindAddress = `
		SELECT id, user_id, asset, network, address, wallet_id, account_identifier, created_at
		FROM addresses
		WHERE LOWER(address) = LOWER(?) OR account_identifier = ?
		LIMIT 1`

	// Venue pool queries
	queryGetPool = `
		SELECT venue, asset, balance, accrued_at FROM venue_pools WHERE venue = ? AND asset = ?`

	queryUpsertPool = `
		INSERT INTO venue_pools (venue, asset, balance, accrued_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(venue, asset) DO UPDATE SET balance = excluded.balance, accrued_at = excluded.accrued_at`
)
