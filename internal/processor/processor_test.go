package processor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/josepita/shopify-sync/internal/domain"
	"github.com/josepita/shopify-sync/internal/logging"
	"github.com/josepita/shopify-sync/internal/shopify"
	"github.com/josepita/shopify-sync/internal/state"
)

// fakeAPI records calls and answers per scripted behavior.
type fakeAPI struct {
	failPriceProducts map[int64]bool // product id -> transport error
	rejectVariants    map[int64]bool // variant id -> unconfirmed
	failStockItems    map[int64]bool // inventory item id -> error

	priceCalls []int64
	stockCalls []int64
}

func (f *fakeAPI) BulkUpdatePrices(_ context.Context, productID int64, updates []shopify.VariantCost, _ float64) (map[int64]bool, error) {
	f.priceCalls = append(f.priceCalls, productID)
	if f.failPriceProducts[productID] {
		return nil, fmt.Errorf("transport down")
	}
	results := make(map[int64]bool, len(updates))
	for _, u := range updates {
		results[u.VariantID] = !f.rejectVariants[u.VariantID]
	}
	return results, nil
}

func (f *fakeAPI) SetInventoryQuantity(_ context.Context, inventoryItemID int64, _ string, _ int) error {
	f.stockCalls = append(f.stockCalls, inventoryItemID)
	if f.failStockItems[inventoryItemID] {
		return fmt.Errorf("rejected")
	}
	return nil
}

func newProcessor(s state.Store, api shopify.CatalogAPI) *Processor {
	return &Processor{
		Store:  s,
		API:    api,
		Logger: logging.NewNopLogger(),
	}
}

func seed(t *testing.T, s *state.MemoryStore, sku string, productID int64) {
	t.Helper()
	s.AddVariantMapping(domain.VariantMapping{
		InternalSKU:     sku,
		VariantID:       productID*10 + 1,
		ProductID:       productID,
		InventoryItemID: productID*10 + 2,
	})
}

func enqueue(t *testing.T, s *state.MemoryStore, kind domain.TaskKind, changes domain.ChangeSet) {
	t.Helper()
	if _, err := s.EnqueueChanges(context.Background(), kind, changes, time.Now()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestDrain_AllSucceed(t *testing.T) {
	ctx := context.Background()
	s := state.NewMemoryStore()
	seed(t, s, "A", 100)
	seed(t, s, "B", 200)

	enqueue(t, s, domain.TaskKindPrice, domain.ChangeSet{"A": {New: 12}, "B": {New: 8}})
	enqueue(t, s, domain.TaskKindStock, domain.ChangeSet{"A": {New: 3}})

	api := &fakeAPI{}
	summary, err := newProcessor(s, api).Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if summary.PricesProcessed != 2 || summary.StocksProcessed != 1 || summary.Remaining != 0 {
		t.Fatalf("summary: got %+v", summary)
	}

	stats, _ := s.QueueStats(ctx)
	if stats.Price.Completed != 2 || stats.Stock.Completed != 1 {
		t.Fatalf("statuses: got %+v", stats)
	}
	if len(api.priceCalls) != 2 {
		t.Fatalf("expected one bulk call per product, got %v", api.priceCalls)
	}
}

func TestDrain_GroupsVariantsByProduct(t *testing.T) {
	ctx := context.Background()
	s := state.NewMemoryStore()

	// Two variants of the same product plus one of another.
	s.AddVariantMapping(domain.VariantMapping{InternalSKU: "A1", VariantID: 11, ProductID: 100, InventoryItemID: 51})
	s.AddVariantMapping(domain.VariantMapping{InternalSKU: "A2", VariantID: 12, ProductID: 100, InventoryItemID: 52})
	s.AddVariantMapping(domain.VariantMapping{InternalSKU: "B1", VariantID: 21, ProductID: 200, InventoryItemID: 53})

	enqueue(t, s, domain.TaskKindPrice, domain.ChangeSet{
		"A1": {New: 10}, "A2": {New: 11}, "B1": {New: 12},
	})

	api := &fakeAPI{}
	if _, err := newProcessor(s, api).Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if len(api.priceCalls) != 2 {
		t.Fatalf("three variants over two products must make two calls, got %v", api.priceCalls)
	}
}

func TestDrain_TransportFailureMarksGroupErrorAndContinues(t *testing.T) {
	ctx := context.Background()
	s := state.NewMemoryStore()
	seed(t, s, "A", 100)
	seed(t, s, "B", 200)

	enqueue(t, s, domain.TaskKindPrice, domain.ChangeSet{"A": {New: 12}, "B": {New: 8}})

	api := &fakeAPI{failPriceProducts: map[int64]bool{100: true}}
	summary, err := newProcessor(s, api).Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	stats, _ := s.QueueStats(ctx)
	if stats.Price.Completed != 1 || stats.Price.Error != 1 {
		t.Fatalf("one group failed, one succeeded: got %+v", stats.Price)
	}
	// The failed task stays retry-eligible, so the drain ends on the
	// no-progress guard with it still pending retry.
	if summary.Remaining != 1 {
		t.Fatalf("remaining: got %+v", summary)
	}
}

func TestDrain_RejectedVariantsMarkedError(t *testing.T) {
	ctx := context.Background()
	s := state.NewMemoryStore()
	s.AddVariantMapping(domain.VariantMapping{InternalSKU: "A1", VariantID: 11, ProductID: 100, InventoryItemID: 51})
	s.AddVariantMapping(domain.VariantMapping{InternalSKU: "A2", VariantID: 12, ProductID: 100, InventoryItemID: 52})

	enqueue(t, s, domain.TaskKindPrice, domain.ChangeSet{"A1": {New: 10}, "A2": {New: 11}})

	api := &fakeAPI{rejectVariants: map[int64]bool{12: true}}
	if _, err := newProcessor(s, api).Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	stats, _ := s.QueueStats(ctx)
	if stats.Price.Completed != 1 || stats.Price.Error != 1 {
		t.Fatalf("per-variant split: got %+v", stats.Price)
	}
}

func TestDrain_StockFailureIsolatedPerItem(t *testing.T) {
	ctx := context.Background()
	s := state.NewMemoryStore()
	seed(t, s, "A", 100) // inventory item 1002
	seed(t, s, "B", 200) // inventory item 2002

	enqueue(t, s, domain.TaskKindStock, domain.ChangeSet{"A": {New: 3}, "B": {New: 5}})

	api := &fakeAPI{failStockItems: map[int64]bool{1002: true}}
	if _, err := newProcessor(s, api).Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	stats, _ := s.QueueStats(ctx)
	if stats.Stock.Completed != 1 || stats.Stock.Error != 1 {
		t.Fatalf("per-item isolation: got %+v", stats.Stock)
	}
	attempted := map[int64]bool{}
	for _, id := range api.stockCalls {
		attempted[id] = true
	}
	if !attempted[1002] || !attempted[2002] {
		t.Fatalf("both items must be attempted, got %v", api.stockCalls)
	}
}

func TestDrain_NoProgressStops(t *testing.T) {
	ctx := context.Background()
	s := state.NewMemoryStore()
	seed(t, s, "A", 100)

	enqueue(t, s, domain.TaskKindPrice, domain.ChangeSet{"A": {New: 12}})

	api := &fakeAPI{failPriceProducts: map[int64]bool{100: true}}
	summary, err := newProcessor(s, api).Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if summary.Cycles != 1 {
		t.Fatalf("a permanently failing task must stop after one cycle, got %+v", summary)
	}
	if summary.Remaining != 1 {
		t.Fatalf("remaining: got %+v", summary)
	}
}

func TestDrain_RequeuesStuckTasksFirst(t *testing.T) {
	ctx := context.Background()
	s := state.NewMemoryStore()
	seed(t, s, "A", 100)

	enqueue(t, s, domain.TaskKindStock, domain.ChangeSet{"A": {New: 3}})

	// Simulate a crashed cycle: claim without marking.
	if _, err := s.ClaimStockTasks(ctx, 10); err != nil {
		t.Fatalf("claim: %v", err)
	}

	api := &fakeAPI{}
	summary, err := newProcessor(s, api).Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if summary.StocksProcessed != 1 {
		t.Fatalf("stuck task must be folded back and processed, got %+v", summary)
	}

	stats, _ := s.QueueStats(ctx)
	if stats.Stock.Completed != 1 {
		t.Fatalf("statuses: got %+v", stats.Stock)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	s := state.NewMemoryStore()
	api := &fakeAPI{}
	p := newProcessor(s, api)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("run: got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}
