package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/josepita/shopify-sync/internal/domain"
	"github.com/josepita/shopify-sync/internal/state"
)

// UpdateQueue converts detected change sets into persisted, retryable
// tasks. Enqueueing is idempotent: re-registering the same change set
// leaves one pending task per variant per kind holding the latest value.
type UpdateQueue struct {
	store  state.Store
	logger *log.Logger
	now    func() time.Time
}

func New(store state.Store, logger *log.Logger) *UpdateQueue {
	return &UpdateQueue{store: store, logger: logger, now: time.Now}
}

func (q *UpdateQueue) RegisterPriceChanges(ctx context.Context, changes domain.ChangeSet) (state.EnqueueResult, error) {
	return q.register(ctx, domain.TaskKindPrice, changes)
}

func (q *UpdateQueue) RegisterStockChanges(ctx context.Context, changes domain.ChangeSet) (state.EnqueueResult, error) {
	return q.register(ctx, domain.TaskKindStock, changes)
}

func (q *UpdateQueue) register(ctx context.Context, kind domain.TaskKind, changes domain.ChangeSet) (state.EnqueueResult, error) {
	if len(changes) == 0 {
		return state.EnqueueResult{}, nil
	}

	res, err := q.store.EnqueueChanges(ctx, kind, changes, q.now())
	if err != nil {
		return state.EnqueueResult{}, fmt.Errorf("register %s changes: %w", kind, err)
	}

	for _, ref := range res.SkippedRefs {
		q.logger.Printf("no variant mapping for reference %s, skipped", ref)
	}
	q.logger.Printf("%s queue: %d inserted, %d coalesced, %d skipped",
		kind, res.Inserted, res.Coalesced, res.Skipped)

	return res, nil
}

func (q *UpdateQueue) Stats(ctx context.Context) (state.QueueStats, error) {
	return q.store.QueueStats(ctx)
}
