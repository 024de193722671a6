package processor

import (
	"context"
	"log"
	"time"

	"github.com/josepita/shopify-sync/internal/domain"
	"github.com/josepita/shopify-sync/internal/shopify"
	"github.com/josepita/shopify-sync/internal/state"
)

// Processor drains pending and error tasks against the Shopify API. It
// is a sequential polling loop; the platform rate limit makes parallel
// dispatch counter-productive.
type Processor struct {
	Store  state.Store
	API    shopify.CatalogAPI
	Logger *log.Logger

	// BatchSize bounds one claim (default 100).
	BatchSize int

	// Margin multiplies the queued supplier cost into the sale price.
	// Pricing policy lives here, not in the API client.
	Margin float64

	LocationID string

	// GroupDelay paces bulk price calls between product groups;
	// ItemDelay paces individual inventory calls. Zero disables pacing
	// (tests).
	GroupDelay time.Duration
	ItemDelay  time.Duration

	// CycleSleep separates drain cycles while work remains.
	CycleSleep time.Duration
}

// DrainSummary reports one Drain call.
type DrainSummary struct {
	Cycles          int
	PricesProcessed int
	StocksProcessed int

	// Remaining is the backlog left behind: non-zero means every
	// remaining task failed and no progress was possible.
	Remaining int
}

func (p *Processor) batchSize() int {
	if p.BatchSize <= 0 {
		return 100
	}
	return p.BatchSize
}

func (p *Processor) margin() float64 {
	if p.Margin <= 0 {
		return 2.5
	}
	return p.Margin
}

// Drain repeatedly processes both queues until the backlog is empty or a
// cycle makes no progress. Cancellation is honored between batches only,
// never mid-batch, so a batch is always resolved once started.
func (p *Processor) Drain(ctx context.Context) (DrainSummary, error) {
	var summary DrainSummary

	// Tasks stranded in processing by a crashed cycle go back to
	// pending before anything else.
	for _, kind := range []domain.TaskKind{domain.TaskKindPrice, domain.TaskKindStock} {
		n, err := p.Store.RequeueStuck(ctx, kind)
		if err != nil {
			return summary, err
		}
		if n > 0 {
			p.Logger.Printf("requeued %d stuck %s tasks", n, kind)
		}

		orphans, err := p.Store.OrphanedTasks(ctx, kind)
		if err != nil {
			return summary, err
		}
		if orphans > 0 {
			p.Logger.Printf("WARNING: %d %s tasks reference a missing variant mapping and will not be processed", orphans, kind)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		before, err := p.Store.QueueStats(ctx)
		if err != nil {
			return summary, err
		}
		if before.TotalBacklog() == 0 {
			return summary, nil
		}

		summary.Cycles++

		prices, err := p.processPrices(ctx)
		if err != nil {
			return summary, err
		}
		summary.PricesProcessed += prices

		stocks, err := p.processStocks(ctx)
		if err != nil {
			return summary, err
		}
		summary.StocksProcessed += stocks

		after, err := p.Store.QueueStats(ctx)
		if err != nil {
			return summary, err
		}
		summary.Remaining = after.TotalBacklog()

		if summary.Remaining == 0 {
			return summary, nil
		}
		if after.TotalBacklog() >= before.TotalBacklog() {
			p.Logger.Printf("no progress in drain cycle, %d tasks remain in error", summary.Remaining)
			return summary, nil
		}

		p.sleep(ctx, p.CycleSleep)
	}
}

// Run is the worker loop: drain, then idle until the next poll.
func (p *Processor) Run(ctx context.Context, pollEvery time.Duration) error {
	if pollEvery <= 0 {
		pollEvery = time.Minute
	}

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	// one immediate pass
	if _, err := p.Drain(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Drain(ctx); err != nil {
				return err
			}
		}
	}
}

// processPrices claims one batch of price tasks and applies them grouped
// by product, because the bulk mutation operates per product. A failing
// group marks its own tasks error and never blocks the other groups.
func (p *Processor) processPrices(ctx context.Context) (int, error) {
	tasks, err := p.Store.ClaimPriceTasks(ctx, p.batchSize())
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	p.Logger.Printf("processing %d price tasks", len(tasks))

	groups := make(map[int64][]state.PriceTask)
	var order []int64
	for _, t := range tasks {
		if _, seen := groups[t.ProductID]; !seen {
			order = append(order, t.ProductID)
		}
		groups[t.ProductID] = append(groups[t.ProductID], t)
	}

	processed := 0
	for _, productID := range order {
		group := groups[productID]

		updates := make([]shopify.VariantCost, 0, len(group))
		for _, t := range group {
			updates = append(updates, shopify.VariantCost{VariantID: t.VariantID, Cost: t.Cost})
		}

		results, err := p.API.BulkUpdatePrices(ctx, productID, updates, p.margin())
		if err != nil {
			p.Logger.Printf("bulk price update failed for product %d: %v", productID, err)
			if err := p.Store.MarkTasks(ctx, domain.TaskKindPrice, taskIDs(group), domain.TaskStatusError); err != nil {
				return processed, err
			}
			processed += len(group)
			continue
		}

		var completed, failed []int64
		for _, t := range group {
			if results[t.VariantID] {
				completed = append(completed, t.TaskID)
			} else {
				failed = append(failed, t.TaskID)
			}
		}
		if err := p.Store.MarkTasks(ctx, domain.TaskKindPrice, completed, domain.TaskStatusCompleted); err != nil {
			return processed, err
		}
		if err := p.Store.MarkTasks(ctx, domain.TaskKindPrice, failed, domain.TaskStatusError); err != nil {
			return processed, err
		}
		processed += len(group)

		p.sleep(ctx, p.GroupDelay)
	}

	return processed, nil
}

// processStocks applies stock tasks one by one; the inventory mutation
// has no bulk form. Status is committed after every item, so a crash
// loses at most one in-flight status, which stays retry-eligible.
func (p *Processor) processStocks(ctx context.Context) (int, error) {
	tasks, err := p.Store.ClaimStockTasks(ctx, p.batchSize())
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	p.Logger.Printf("processing %d stock tasks", len(tasks))

	processed := 0
	for _, t := range tasks {
		status := domain.TaskStatusCompleted
		if err := p.API.SetInventoryQuantity(ctx, t.InventoryItemID, p.LocationID, t.Quantity); err != nil {
			p.Logger.Printf("inventory update failed for item %d: %v", t.InventoryItemID, err)
			status = domain.TaskStatusError
		}

		if err := p.Store.MarkTasks(ctx, domain.TaskKindStock, []int64{t.TaskID}, status); err != nil {
			return processed, err
		}
		processed++

		p.sleep(ctx, p.ItemDelay)
	}

	return processed, nil
}

func (p *Processor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func taskIDs(tasks []state.PriceTask) []int64 {
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.TaskID)
	}
	return ids
}
