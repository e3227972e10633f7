package formance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"yield-router-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Account layout:
//
//	@users:{user}:wallet              value held outside the router
//	@positions:{user}:{source}        principal routed to a source
//	@sources:{source}:yield|loss      realised gain or loss per source
//	@fees:collected                   performance fees
//	@bridge:inbound|outbound          cross-chain transfers

const numscriptDeposited = `vars {
  asset $asset
  number $amount
  account $user
  account $source
  string $event_type
  string $event_seq
  string $origin
}

send [$asset $amount] (
  source = @users:$user:wallet allowing unbounded overdraft
  destination = @positions:$user:$source
)

set_tx_meta("event_type", $event_type)
set_tx_meta("event_seq", $event_seq)
set_tx_meta("origin", $origin)
`

const numscriptBridgedDeposit = `vars {
  asset $asset
  number $amount
  account $user
  account $source
  string $event_type
  string $event_seq
  string $origin
  string $transfer_id
}

send [$asset $amount] (
  source = @bridge:inbound allowing unbounded overdraft
  destination = @positions:$user:$source
)

set_tx_meta("event_type", $event_type)
set_tx_meta("event_seq", $event_seq)
set_tx_meta("origin", $origin)
set_tx_meta("transfer_id", $transfer_id)
`

const numscriptRebalanced = `vars {
  asset $asset
  number $amount
  account $user
  account $from
  account $to
  string $event_type
  string $event_seq
  string $moved
}

send [$asset $amount] (
  source = @positions:$user:$from
  destination = @positions:$user:$to
)

set_tx_meta("event_type", $event_type)
set_tx_meta("event_seq", $event_seq)
set_tx_meta("moved", $moved)
`

const numscriptValueSent = `vars {
  asset $asset
  number $amount
  account $user
  string $event_type
  string $event_seq
  string $request_id
}

send [$asset $amount] (
  source = @users:$user:wallet allowing unbounded overdraft
  destination = @bridge:outbound
)

set_tx_meta("event_type", $event_type)
set_tx_meta("event_seq", $event_seq)
set_tx_meta("request_id", $request_id)
`

// withdrawnScript settles a withdrawal: principal back to the wallet, then the
// realised gain or loss, then the fee. Zero legs are left out.
func withdrawnScript(yield, fee decimal.Decimal) string {
	var b strings.Builder
	b.WriteString(`vars {
  asset $asset
  number $principal
  account $user
  account $source
  string $event_type
  string $event_seq
`)
	if yield.IsPositive() {
		b.WriteString("  number $yield\n")
	}
	if yield.IsNegative() {
		b.WriteString("  number $loss\n")
	}
	if fee.IsPositive() {
		b.WriteString("  number $fee\n")
	}
	b.WriteString(`}

send [$asset $principal] (
  source = @positions:$user:$source
  destination = @users:$user:wallet
)
`)
	if yield.IsPositive() {
		b.WriteString(`
send [$asset $yield] (
  source = @sources:$source:yield allowing unbounded overdraft
  destination = @users:$user:wallet
)
`)
	}
	if yield.IsNegative() {
		b.WriteString(`
send [$asset $loss] (
  source = @users:$user:wallet allowing unbounded overdraft
  destination = @sources:$source:loss
)
`)
	}
	if fee.IsPositive() {
		b.WriteString(`
send [$asset $fee] (
  source = @users:$user:wallet allowing unbounded overdraft
  destination = @fees:collected
)
`)
	}
	b.WriteString(`
set_tx_meta("event_type", $event_type)
set_tx_meta("event_seq", $event_seq)
`)
	return b.String()
}

// withdrawnVars returns the variables matching withdrawnScript for the same event.
func withdrawnVars(ev models.Event, asset string) map[string]string {
	vars := map[string]string{
		"asset":      asset,
		"principal":  ev.Amount.String(),
		"user":       accountSegment(ev.UserId),
		"source":     accountSegment(ev.SourceId),
		"event_type": string(ev.Type),
		"event_seq":  strconv.FormatInt(ev.Seq, 10),
	}
	if ev.Yield.IsPositive() {
		vars["yield"] = ev.Yield.String()
	}
	if ev.Yield.IsNegative() {
		vars["loss"] = ev.Yield.Neg().String()
	}
	if ev.Fee.IsPositive() {
		vars["fee"] = ev.Fee.String()
	}
	return vars
}

// Publish records one router event in the ledger. The event id is the
// transaction reference, so a replayed event is accepted without effect.
func (s *Service) Publish(ctx context.Context, ev models.Event) error {
	seq := strconv.FormatInt(ev.Seq, 10)
	asset := s.asset(ev.Asset)

	switch ev.Type {
	case models.EventDeposited:
		if ev.Reference != "" {
			return s.post(ctx, ev, numscriptBridgedDeposit, map[string]string{
				"asset":       asset,
				"amount":      ev.Amount.String(),
				"user":        accountSegment(ev.UserId),
				"source":      accountSegment(ev.SourceId),
				"event_type":  string(ev.Type),
				"event_seq":   seq,
				"origin":      ev.Origin,
				"transfer_id": ev.Reference,
			})
		}
		return s.post(ctx, ev, numscriptDeposited, map[string]string{
			"asset":      asset,
			"amount":     ev.Amount.String(),
			"user":       accountSegment(ev.UserId),
			"source":     accountSegment(ev.SourceId),
			"event_type": string(ev.Type),
			"event_seq":  seq,
			"origin":     ev.Origin,
		})

	case models.EventWithdrawn:
		return s.post(ctx, ev, withdrawnScript(ev.Yield, ev.Fee), withdrawnVars(ev, asset))

	case models.EventRebalanced:
		return s.post(ctx, ev, numscriptRebalanced, map[string]string{
			"asset":      asset,
			"amount":     ev.Amount.String(),
			"user":       accountSegment(ev.UserId),
			"from":       accountSegment(ev.FromSource),
			"to":         accountSegment(ev.ToSource),
			"event_type": string(ev.Type),
			"event_seq":  seq,
			"moved":      ev.Amount.Add(ev.Yield).String(),
		})

	case models.EventValueSent:
		return s.post(ctx, ev, numscriptValueSent, map[string]string{
			"asset":      asset,
			"amount":     ev.Amount.String(),
			"user":       accountSegment(ev.UserId),
			"event_type": string(ev.Type),
			"event_seq":  seq,
			"request_id": ev.Reference,
		})

	case models.EventValueReceived:
		return s.annotate(ctx, "bridge:inbound", map[string]string{
			"received_" + accountSegment(ev.Reference): ev.Amount.String() + " " + ev.Asset + " for " + ev.UserId,
		})

	case models.EventSourceAdded:
		return s.annotate(ctx, "sources:"+accountSegment(ev.SourceId), map[string]string{
			"active":   "true",
			"added_at": ev.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})

	case models.EventSourceDeactivated:
		return s.annotate(ctx, "sources:"+accountSegment(ev.SourceId), map[string]string{
			"active": "false",
		})
	}

	zap.L().Warn("Skipping event with unknown type", zap.String("type", string(ev.Type)), zap.Int64("seq", ev.Seq))
	return nil
}

func (s *Service) post(ctx context.Context, ev models.Event, script string, vars map[string]string) error {
	postTx := shared.V2PostTransaction{
		Reference: strPtr(ev.Id),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars:  vars,
		},
	}
	if !ev.CreatedAt.IsZero() {
		ts := ev.CreatedAt
		postTx.Timestamp = &ts
	}

	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil // idempotent
		}
		return fmt.Errorf("error recording %s event %d: %w", ev.Type, ev.Seq, err)
	}

	zap.L().Debug("Event recorded in Formance",
		zap.String("type", string(ev.Type)),
		zap.Int64("seq", ev.Seq),
		zap.String("reference", ev.Id))
	return nil
}

func (s *Service) annotate(ctx context.Context, account string, meta map[string]string) error {
	_, err := s.client.Ledger.V2.AddMetadataToAccount(ctx, operations.V2AddMetadataToAccountRequest{
		Ledger:      s.ledger,
		Address:     account,
		RequestBody: meta,
	})
	if err != nil {
		return fmt.Errorf("failed to update account metadata for %s: %w", account, err)
	}
	return nil
}
