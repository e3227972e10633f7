package prime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"yield-router-go/internal/bridge"
	"yield-router-go/internal/models"
	"yield-router-go/internal/store"

	primemodel "github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ bridge.Transport = (*Transport)(nil)

// Transport sends outbound bridge transfers as Prime blockchain withdrawals
// from the portfolio's trading wallet for the asset.
type Transport struct {
	prime       *Service
	assets      store.Reader
	portfolioId string

	mu      sync.Mutex
	wallets map[string]string
}

func NewTransport(svc *Service, assets store.Reader, portfolioId string) *Transport {
	return &Transport{
		prime:       svc,
		assets:      assets,
		portfolioId: portfolioId,
		wallets:     make(map[string]string),
	}
}

// SendValue creates the withdrawal. The idempotency key is derived from the
// bridge request id so a retried send cannot pay twice.
func (t *Transport) SendValue(ctx context.Context, transfer bridge.OutboundTransfer) (string, error) {
	asset, err := t.assets.GetAsset(ctx, transfer.Asset)
	if err != nil {
		return "", fmt.Errorf("failed to load asset %s: %w", transfer.Asset, err)
	}

	walletId, err := t.walletFor(ctx, transfer.Asset)
	if err != nil {
		return "", err
	}

	destination := &primemodel.BlockchainAddress{Address: transfer.Recipient}
	if network := scopeNetwork(transfer.Scope); network != nil {
		destination.Network = network
	}

	request := &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:       t.portfolioId,
		SourceWalletId:    walletId,
		Amount:            FromBaseUnits(transfer.Amount, asset.Decimals),
		IdempotencyKey:    IdempotencyKey(transfer.RequestId),
		Symbol:            transfer.Asset,
		DestinationType:   "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: destination,
	}

	zap.L().Info("Creating withdrawal via Prime API",
		zap.String("request_id", transfer.RequestId),
		zap.String("wallet_id", walletId),
		zap.String("asset", transfer.Asset),
		zap.String("amount", request.Amount),
		zap.String("scope", transfer.Scope),
		zap.String("destination", transfer.Recipient))

	response, err := t.prime.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		zap.L().Error("Failed to create withdrawal",
			zap.String("request_id", transfer.RequestId),
			zap.String("wallet_id", walletId),
			zap.Error(err))
		return "", fmt.Errorf("unable to create withdrawal: %w", err)
	}

	zap.L().Info("Withdrawal created successfully",
		zap.String("activity_id", response.ActivityId),
		zap.String("request_id", transfer.RequestId))
	return response.ActivityId, nil
}

func (t *Transport) walletFor(ctx context.Context, symbol string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.wallets[symbol]; ok {
		return id, nil
	}
	found, err := t.prime.ListWallets(ctx, t.portfolioId, tradingWallet, []string{symbol})
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w: no trading wallet for %s", models.ErrInvalidInput, symbol)
	}
	t.wallets[symbol] = found[0].Id
	return found[0].Id, nil
}

// IdempotencyKey maps a bridge request id onto a stable UUID.
func IdempotencyKey(requestId string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(requestId)).String()
}

// scopeNetwork splits a chain scope such as "ethereum-mainnet" into Prime
// network details. A scope without a type leaves the network to Prime's default.
func scopeNetwork(scope string) *primemodel.NetworkDetails {
	id, networkType, ok := strings.Cut(scope, "-")
	if !ok || id == "" || networkType == "" {
		return nil
	}
	return &primemodel.NetworkDetails{Id: id, Type: networkType}
}
