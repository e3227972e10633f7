package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BridgeDirection string

const (
	BridgeOutbound BridgeDirection = "outbound"
	BridgeInbound  BridgeDirection = "inbound"
)

type BridgeStatus string

const (
	BridgePending   BridgeStatus = "pending"
	BridgeAccepted  BridgeStatus = "accepted"
	BridgeCompleted BridgeStatus = "completed"
	BridgeFailed    BridgeStatus = "failed"
)

// BridgeRequest records a cross-chain value transfer in either direction.
// Inbound requests are keyed by the transport's transfer id so a replay is detected.
type BridgeRequest struct {
	Id         string          `db:"id"`
	Direction  BridgeDirection `db:"direction"`
	Scope      string          `db:"scope"`
	Asset      string          `db:"asset"`
	Amount     decimal.Decimal `db:"amount"`
	UserId     string          `db:"user_id"`
	Recipient  string          `db:"recipient"`
	Nonce      uint64          `db:"nonce"`
	Status     BridgeStatus    `db:"status"`
	ExternalId string          `db:"external_id"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}
