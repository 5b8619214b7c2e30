package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"custody-service/internal/domain"
	"custody-service/internal/events"
	"custody-service/internal/usecase"

	"go.uber.org/zap"
)

// ApprovalWorker drives the completion evaluator: a pool of consumers reads
// approval events off the bus and re-evaluates the affected request. Events
// arrive at-least-once and unordered; the usecase handles duplicates.
type ApprovalWorker struct {
	bus                *events.RedisBus
	transactionUsecase *usecase.TransactionUsecase
	workers            int
	approverTTL        time.Duration // zero disables the expiry ticker
	logger             *zap.Logger
	wg                 sync.WaitGroup
}

func NewApprovalWorker(
	bus *events.RedisBus,
	transactionUsecase *usecase.TransactionUsecase,
	workers int,
	approverTTL time.Duration,
	logger *zap.Logger,
) *ApprovalWorker {
	if workers < 1 {
		workers = 1
	}
	return &ApprovalWorker{
		bus:                bus,
		transactionUsecase: transactionUsecase,
		workers:            workers,
		approverTTL:        approverTTL,
		logger:             logger,
	}
}

// Start launches the consumer pool and, when configured, the approver expiry
// ticker. It returns after the consumers are running; Wait blocks until the
// context is cancelled and all of them have drained.
func (w *ApprovalWorker) Start(ctx context.Context) error {
	if err := w.bus.EnsureGroup(ctx); err != nil {
		return err
	}

	w.logger.Info("starting approval workers", zap.Int("workers", w.workers))

	for i := 0; i < w.workers; i++ {
		consumer := fmt.Sprintf("worker-%d", i)
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.bus.Consume(ctx, consumer, w.handleEvent)
		}()
	}

	if w.approverTTL > 0 {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runExpiry(ctx)
		}()
	}

	return nil
}

func (w *ApprovalWorker) Wait() {
	w.wg.Wait()
}

func (w *ApprovalWorker) handleEvent(ctx context.Context, event domain.ApprovalEvent) error {
	w.logger.Debug("approval event received",
		zap.String("tenant_id", event.TenantID),
		zap.String("request_id", event.RequestID))

	return w.transactionUsecase.ProcessApprovalEvent(ctx, event)
}

func (w *ApprovalWorker) runExpiry(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			expired, err := w.transactionUsecase.ExpirePendingApprovers(ctx, w.approverTTL)
			if err != nil {
				w.logger.Error("approver expiry sweep failed", zap.Error(err))
				continue
			}
			if expired > 0 {
				w.logger.Info("approvers timed out", zap.Int64("count", expired))
			}

		case <-ctx.Done():
			w.logger.Info("stopping approver expiry ticker")
			return
		}
	}
}
