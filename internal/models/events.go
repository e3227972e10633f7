package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventSourceAdded       EventType = "SourceAdded"
	EventSourceDeactivated EventType = "SourceDeactivated"
	EventDeposited         EventType = "Deposited"
	EventWithdrawn         EventType = "Withdrawn"
	EventRebalanced        EventType = "Rebalanced"
	EventValueReceived     EventType = "ValueReceived"
	EventValueSent         EventType = "ValueSent"
)

// Event is an immutable notification appended in the same transaction as the
// state change it describes. Seq is assigned at commit and orders events.
type Event struct {
	Seq         int64           `db:"seq"`
	Id          string          `db:"id"`
	Type        EventType       `db:"type"`
	UserId      string          `db:"user_id"`
	Asset       string          `db:"asset"`
	SourceId    string          `db:"source_id"`
	FromSource  string          `db:"from_source"`
	ToSource    string          `db:"to_source"`
	Amount      decimal.Decimal `db:"amount"`
	Yield       decimal.Decimal `db:"yield"`
	Fee         decimal.Decimal `db:"fee"`
	Shares      decimal.Decimal `db:"shares"`
	Reference   string          `db:"reference"`
	Origin      string          `db:"origin"`
	CreatedAt   time.Time       `db:"created_at"`
	PublishedAt *time.Time      `db:"published_at"`
}
