// Package projector delivers outbox events to a read-side publisher in commit order.
package projector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"yield-router-go/internal/metrics"
	"yield-router-go/internal/models"
	"yield-router-go/internal/store"

	"go.uber.org/zap"
)

// Publisher receives each event at least once. It must treat a repeated event
// id as already applied.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

type Projector struct {
	store           store.Store
	publisher       Publisher
	metrics         *metrics.Collector
	pollingInterval time.Duration
	batchSize       int
	now             func() time.Time

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

func New(st store.Store, publisher Publisher, cfg models.ProjectorConfig, m *metrics.Collector) *Projector {
	interval := cfg.PollingInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Projector{
		store:           st,
		publisher:       publisher,
		metrics:         m,
		pollingInterval: interval,
		batchSize:       batch,
		now:             time.Now,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// RunOnce publishes one batch. It stops at the first failure so later events
// are never delivered ahead of an earlier one.
func (p *Projector) RunOnce(ctx context.Context) (int, error) {
	events, err := p.store.ListUnpublishedEvents(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load unpublished events: %w", err)
	}

	published := 0
	for _, ev := range events {
		if err := p.publisher.Publish(ctx, ev); err != nil {
			p.metrics.EventsPublished(published)
			return published, fmt.Errorf("failed to publish event %d (%s): %w", ev.Seq, ev.Type, err)
		}
		if err := p.store.MarkEventPublished(ctx, ev.Seq, p.now().UTC()); err != nil {
			p.metrics.EventsPublished(published)
			return published, fmt.Errorf("failed to mark event %d published: %w", ev.Seq, err)
		}
		published++
	}

	p.metrics.EventsPublished(published)
	return published, nil
}

// Start drains the outbox in the background until Stop or ctx is done. Only
// the first call starts the loop, and a stopped projector stays stopped.
func (p *Projector) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	zap.L().Info("Starting event projector",
		zap.Duration("polling_interval", p.pollingInterval),
		zap.Int("batch_size", p.batchSize))
	go p.pollLoop(ctx)
}

// Stop ends the loop and waits for it to exit. It may be called any number
// of times, before or without Start.
func (p *Projector) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopChan)
		zap.L().Info("Stopping event projector")
	}
	started := p.started
	p.mu.Unlock()

	if started {
		<-p.doneChan
		zap.L().Info("Event projector stopped")
	}
}

func (p *Projector) pollLoop(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	p.drain(ctx)

	for {
		select {
		case <-ticker.C:
			p.drain(ctx)
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// drain keeps publishing full batches until the outbox is empty or a publish fails.
func (p *Projector) drain(ctx context.Context) {
	for {
		n, err := p.RunOnce(ctx)
		if err != nil {
			zap.L().Warn("Event projection paused", zap.Int("published", n), zap.Error(err))
			return
		}
		if n > 0 {
			zap.L().Debug("Events projected", zap.Int("count", n))
		}
		if n < p.batchSize {
			return
		}
	}
}

// LogPublisher writes events to the logger. It serves when no ledger is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev models.Event) error {
	zap.L().Info("Event",
		zap.Int64("seq", ev.Seq),
		zap.String("id", ev.Id),
		zap.String("type", string(ev.Type)),
		zap.String("user_id", ev.UserId),
		zap.String("asset", ev.Asset),
		zap.String("source_id", ev.SourceId),
		zap.String("amount", ev.Amount.String()))
	return nil
}
