package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"yield-router-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AppendEvent writes ev to the outbox and assigns its Seq.
func (t *txStore) AppendEvent(ctx context.Context, ev *models.Event) error {
	if ev.Id == "" {
		ev.Id = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	err := t.tx.QueryRowContext(ctx, queryInsertEvent,
		ev.Id, string(ev.Type), ev.UserId, ev.Asset, ev.SourceId, ev.FromSource, ev.ToSource,
		ev.Amount.String(), ev.Yield.String(), ev.Fee.String(), ev.Shares.String(),
		ev.Reference, ev.Origin, ev.CreatedAt).Scan(&ev.Seq)
	if err != nil {
		return fmt.Errorf("failed to append %s event: %w", ev.Type, err)
	}
	return nil
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var ev models.Event
	var eventType, amountStr, yieldStr, feeStr, sharesStr string
	var publishedAt sql.NullTime
	if err := row.Scan(&ev.Seq, &ev.Id, &eventType, &ev.UserId, &ev.Asset, &ev.SourceId, &ev.FromSource, &ev.ToSource,
		&amountStr, &yieldStr, &feeStr, &sharesStr, &ev.Reference, &ev.Origin, &ev.CreatedAt, &publishedAt); err != nil {
		return nil, err
	}
	ev.Type = models.EventType(eventType)

	var err error
	if ev.Amount, err = parseDecimal("amount", amountStr); err != nil {
		return nil, err
	}
	if ev.Yield, err = parseDecimal("yield", yieldStr); err != nil {
		return nil, err
	}
	if ev.Fee, err = parseDecimal("fee", feeStr); err != nil {
		return nil, err
	}
	if ev.Shares, err = parseDecimal("shares", sharesStr); err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		at := publishedAt.Time
		ev.PublishedAt = &at
	}
	return &ev, nil
}

func (s *Service) queryEvents(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer closeRows(rows)

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *ev)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during event row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

// ListUnpublishedEvents returns the oldest unpublished events in commit order.
func (s *Service) ListUnpublishedEvents(ctx context.Context, limit int) ([]models.Event, error) {
	return s.queryEvents(ctx, queryListUnpublishedEvents, limit)
}

// ListEvents returns the newest events first; an empty userId lists every user.
func (s *Service) ListEvents(ctx context.Context, userId string, limit, offset int) ([]models.Event, error) {
	zap.L().Debug("Getting event history",
		zap.String("user_id", userId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	if userId == "" {
		return s.queryEvents(ctx, queryListAllEvents, limit, offset)
	}
	return s.queryEvents(ctx, queryListUserEvents, userId, limit, offset)
}

func (s *Service) MarkEventPublished(ctx context.Context, seq int64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, queryMarkEventPublished, at.UTC(), seq); err != nil {
		return fmt.Errorf("failed to mark event %d published: %w", seq, err)
	}
	return nil
}
