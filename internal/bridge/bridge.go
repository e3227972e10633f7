// Package bridge moves value between the router and other chains. Outbound
// transfers withdraw from the router first; inbound transfers are credited as
// deposits exactly once per transfer id.
package bridge

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"yield-router-go/internal/metrics"
	"yield-router-go/internal/models"
	"yield-router-go/internal/router"
	"yield-router-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

const outboundNonce = "outbound"

// OutboundTransfer is handed to the transport once the funds left the router.
type OutboundTransfer struct {
	RequestId string
	Scope     string
	Asset     string
	Amount    decimal.Decimal
	Recipient string
}

// InboundTransfer is value observed arriving for UserId. Id must be unique per
// transfer on the transport.
type InboundTransfer struct {
	Id      string
	Scope   string
	Asset   string
	Amount  decimal.Decimal
	UserId  string
	Address string
}

// Transport delivers value to another chain and returns its own reference.
type Transport interface {
	SendValue(ctx context.Context, transfer OutboundTransfer) (string, error)
}

type SendRequest struct {
	UserId    string
	Asset     string
	Principal decimal.Decimal
	Scope     string
	Recipient string
}

type SendResult struct {
	Request    *models.BridgeRequest
	Withdrawal *models.WithdrawalResult
}

type InboundResult struct {
	Duplicate bool
	Deposit   *models.DepositResult
}

type Service struct {
	store     store.Store
	router    *router.Router
	transport Transport
	metrics   *metrics.Collector
}

func NewService(st store.Store, r *router.Router, transport Transport, m *metrics.Collector) *Service {
	return &Service{store: st, router: r, transport: transport, metrics: m}
}

// RequestID derives the outbound request id from the sender, destination and nonce.
func RequestID(userId, scope string, nonce uint64) string {
	sum := blake3.Sum256([]byte(userId + "|" + scope + "|" + strconv.FormatUint(nonce, 10)))
	return hex.EncodeToString(sum[:])
}

// Send withdraws a principal portion and ships the net amount to Recipient on
// Scope. The transport is called before the withdrawal is recorded: when it
// refuses, the funds go back to the venue and the position, fee accruals and
// event log are left exactly as they were. An accepted request cannot be
// cancelled.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if s.transport == nil {
		return nil, fmt.Errorf("%w: no transport configured", models.ErrInvalidInput)
	}
	if req.Scope == "" || req.Recipient == "" {
		return nil, fmt.Errorf("%w: scope and recipient are required", models.ErrInvalidInput)
	}

	request := &models.BridgeRequest{
		Direction: models.BridgeOutbound,
		Scope:     req.Scope,
		Asset:     req.Asset,
		UserId:    req.UserId,
		Recipient: req.Recipient,
		Status:    models.BridgePending,
	}
	withdrawal, err := s.router.Withdraw(ctx, router.WithdrawRequest{
		UserId:    req.UserId,
		Asset:     req.Asset,
		Principal: req.Principal,
		Handoff: func(ctx context.Context, out *models.WithdrawalResult) (func(tx store.Tx) error, error) {
			return s.handoff(ctx, request, out)
		},
	})
	if err != nil {
		if request.ExternalId != "" {
			if markErr := s.mark(ctx, request.Id, models.BridgeAccepted, request.ExternalId); markErr != nil {
				zap.L().Error("Failed to record accepted bridge request",
					zap.String("request_id", request.Id),
					zap.String("external_id", request.ExternalId),
					zap.Error(markErr))
			}
		}
		return nil, err
	}
	request.Status = models.BridgeAccepted

	zap.L().Info("Value sent",
		zap.String("request_id", request.Id),
		zap.String("user_id", request.UserId),
		zap.String("asset", request.Asset),
		zap.String("amount", request.Amount.String()),
		zap.String("scope", request.Scope),
		zap.String("external_id", request.ExternalId))
	return &SendResult{Request: request, Withdrawal: withdrawal}, nil
}

// handoff records the pending request and calls the transport. On acceptance
// it returns the writes that complete the request in the withdrawal's commit.
func (s *Service) handoff(ctx context.Context, request *models.BridgeRequest, out *models.WithdrawalResult) (func(tx store.Tx) error, error) {
	if !out.Net.IsPositive() {
		return nil, fmt.Errorf("%w: nothing to send for principal %s", models.ErrInvalidInput, out.Principal)
	}
	request.Amount = out.Net

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		nonce, err := tx.NextNonce(ctx, outboundNonce)
		if err != nil {
			return err
		}
		request.Nonce = nonce
		request.Id = RequestID(request.UserId, request.Scope, nonce)
		return tx.InsertBridgeRequest(ctx, request)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record bridge request: %w", err)
	}

	externalId, err := s.transport.SendValue(ctx, OutboundTransfer{
		RequestId: request.Id,
		Scope:     request.Scope,
		Asset:     request.Asset,
		Amount:    request.Amount,
		Recipient: request.Recipient,
	})
	if err != nil {
		zap.L().Error("Transport refused outbound transfer",
			zap.String("request_id", request.Id),
			zap.String("scope", request.Scope),
			zap.Error(err))
		if markErr := s.mark(ctx, request.Id, models.BridgeFailed, ""); markErr != nil {
			zap.L().Error("Failed to mark bridge request failed", zap.String("request_id", request.Id), zap.Error(markErr))
		}
		request.Status = models.BridgeFailed
		return nil, fmt.Errorf("failed to send value: %w", err)
	}
	request.ExternalId = externalId

	return func(tx store.Tx) error {
		if err := tx.UpdateBridgeRequest(ctx, request.Id, models.BridgeAccepted, externalId); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &models.Event{
			Type:      models.EventValueSent,
			UserId:    request.UserId,
			Asset:     request.Asset,
			Amount:    request.Amount,
			Reference: request.Id,
			Origin:    models.OriginFrom(ctx),
		})
	}, nil
}

// OnValueReceived credits an inbound transfer as a deposit for its user. A
// transfer id seen before is reported as a duplicate and credits nothing.
func (s *Service) OnValueReceived(ctx context.Context, in InboundTransfer) (*InboundResult, error) {
	if in.Id == "" || in.UserId == "" {
		return nil, fmt.Errorf("%w: inbound transfer needs an id and a user", models.ErrInvalidInput)
	}

	_, err := s.store.GetBridgeRequest(ctx, in.Id)
	if err == nil {
		s.metrics.Inbound("duplicate")
		zap.L().Debug("Inbound transfer already credited", zap.String("transfer_id", in.Id))
		return &InboundResult{Duplicate: true}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	deposit, err := s.router.Deposit(ctx, router.DepositRequest{
		UserId: in.UserId,
		Asset:  in.Asset,
		Amount: in.Amount,
		Inbound: &models.BridgeRequest{
			Id:        in.Id,
			Direction: models.BridgeInbound,
			Scope:     in.Scope,
			Asset:     in.Asset,
			Amount:    in.Amount,
			UserId:    in.UserId,
			Recipient: in.Address,
			Status:    models.BridgeCompleted,
		},
	})
	if errors.Is(err, store.ErrDuplicateTransaction) {
		s.metrics.Inbound("duplicate")
		return &InboundResult{Duplicate: true}, nil
	}
	if err != nil {
		s.metrics.Inbound("error")
		return nil, err
	}

	s.metrics.Inbound("credited")
	zap.L().Info("Inbound transfer credited",
		zap.String("transfer_id", in.Id),
		zap.String("user_id", in.UserId),
		zap.String("asset", in.Asset),
		zap.String("amount", in.Amount.String()))
	return &InboundResult{Deposit: deposit}, nil
}

// mark updates a request's status outside any withdrawal, even after ctx is
// cancelled.
func (s *Service) mark(ctx context.Context, id string, status models.BridgeStatus, externalId string) error {
	ctx = context.WithoutCancel(ctx)
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.UpdateBridgeRequest(ctx, id, status, externalId)
	})
}
