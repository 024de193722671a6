package state

import (
	"context"
	"time"

	"github.com/josepita/shopify-sync/internal/domain"
)

// EnqueueResult reports what one enqueue call did.
type EnqueueResult struct {
	Inserted  int
	Coalesced int
	Skipped   int

	// SkippedRefs lists references with no variant mapping; surfaced in
	// run statistics, never a batch failure.
	SkippedRefs []string
}

// PriceTask is a claimed price update joined with the Shopify identifiers
// the bulk mutation needs.
type PriceTask struct {
	TaskID           int64
	VariantMappingID int64
	Cost             float64
	ProductID        int64
	VariantID        int64
}

// StockTask is a claimed stock update joined with its inventory item.
type StockTask struct {
	TaskID           int64
	VariantMappingID int64
	Quantity         int
	InventoryItemID  int64
}

type KindStats struct {
	Pending    int
	Processing int
	Completed  int
	Error      int
}

// Backlog is what the processor still owes the platform: pending plus
// retry-eligible error tasks.
func (s KindStats) Backlog() int { return s.Pending + s.Error }

type QueueStats struct {
	Price KindStats
	Stock KindStats
}

func (s QueueStats) TotalBacklog() int { return s.Price.Backlog() + s.Stock.Backlog() }

// Store persists the variant directory, the update queues and the
// price/stock history ledger.
type Store interface {
	// Variant directory (read-only to the sync core).
	ResolveVariant(ctx context.Context, reference string) (domain.VariantMapping, bool, error)
	AllKnownSKUs(ctx context.Context) ([]string, error)

	// EnqueueChanges records one change set inside a single transaction:
	// per reference it upserts the daily history row and coalesces into
	// the existing pending task or inserts a new one. References without
	// a mapping are skipped and counted. Any error rolls back the whole
	// call.
	EnqueueChanges(ctx context.Context, kind domain.TaskKind, changes domain.ChangeSet, day time.Time) (EnqueueResult, error)

	// Claiming moves pending and error tasks to processing, oldest first.
	ClaimPriceTasks(ctx context.Context, limit int) ([]PriceTask, error)
	ClaimStockTasks(ctx context.Context, limit int) ([]StockTask, error)

	// MarkTasks writes the terminal status and processed_at for a set of
	// claimed tasks.
	MarkTasks(ctx context.Context, kind domain.TaskKind, taskIDs []int64, status domain.TaskStatus) error

	// RequeueStuck folds tasks left in processing (crashed cycle) back to
	// pending. Returns how many were folded back.
	RequeueStuck(ctx context.Context, kind domain.TaskKind) (int, error)

	// OrphanedTasks counts retry-eligible tasks whose variant mapping is
	// gone; these are excluded from claims and need operator attention.
	OrphanedTasks(ctx context.Context, kind domain.TaskKind) (int, error)

	QueueStats(ctx context.Context) (QueueStats, error)

	// LatestHistoryValue returns the most recent observed value for a
	// reference, latest date first.
	LatestHistoryValue(ctx context.Context, kind domain.TaskKind, reference string) (float64, bool, error)
}
