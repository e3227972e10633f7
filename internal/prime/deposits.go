package prime

import (
	"context"
	"fmt"
	"time"

	"yield-router-go/internal/models"

	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"go.uber.org/zap"
)

// ListDeposits returns the deposits into walletId created since startTime.
func (s *Service) ListDeposits(ctx context.Context, portfolioId, walletId string, startTime time.Time) ([]models.InboundDeposit, error) {
	zap.L().Debug("Making Prime API request",
		zap.String("portfolio_id", portfolioId),
		zap.String("wallet_id", walletId),
		zap.String("start_time", startTime.UTC().Format("2006-01-02T15:04:05Z")))

	request := &transactions.ListWalletTransactionsRequest{
		PortfolioId: portfolioId,
		WalletId:    walletId,
		Start:       startTime,
		Types:       []string{"DEPOSIT"},
		Pagination: &model.PaginationParams{
			Limit: 500,
		},
	}

	response, err := s.transactionsSvc.ListWalletTransactions(ctx, request)
	if err != nil {
		zap.L().Error("Failed to list wallet transactions",
			zap.String("wallet_id", walletId),
			zap.Error(err))
		return nil, fmt.Errorf("unable to list wallet transactions: %w", err)
	}

	deposits := make([]models.InboundDeposit, 0, len(response.Transactions))
	for _, tx := range response.Transactions {
		if tx.Type != "DEPOSIT" {
			continue
		}
		deposit := models.InboundDeposit{
			Id:          tx.Id,
			WalletId:    tx.WalletId,
			Status:      tx.Status,
			Symbol:      tx.Symbol,
			Amount:      tx.Amount,
			Network:     tx.Network,
			CreatedAt:   tx.Created,
			CompletedAt: tx.Completed,
		}
		if deposit.WalletId == "" {
			deposit.WalletId = walletId
		}
		if tx.TransferTo != nil {
			deposit.Address = tx.TransferTo.Address
			deposit.AccountIdentifier = tx.TransferTo.AccountIdentifier
		}
		if tx.TransferFrom != nil {
			deposit.SourceAddress = tx.TransferFrom.Address
			if deposit.SourceAddress == "" {
				deposit.SourceAddress = tx.TransferFrom.Value
			}
		}
		deposits = append(deposits, deposit)
	}

	zap.L().Debug("Prime API response received",
		zap.String("wallet_id", walletId),
		zap.Int("deposits", len(deposits)))
	return deposits, nil
}
