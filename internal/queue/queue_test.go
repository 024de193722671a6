package queue

import (
	"context"
	"testing"

	"github.com/josepita/shopify-sync/internal/domain"
	"github.com/josepita/shopify-sync/internal/logging"
	"github.com/josepita/shopify-sync/internal/state"
)

func TestRegister_EmptyChangeSetIsNoop(t *testing.T) {
	q := New(state.NewMemoryStore(), logging.NewNopLogger())

	res, err := q.RegisterPriceChanges(context.Background(), nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.Inserted != 0 || res.Coalesced != 0 || res.Skipped != 0 {
		t.Fatalf("empty set: got %+v", res)
	}
}

func TestRegister_RoutesKinds(t *testing.T) {
	ctx := context.Background()
	s := state.NewMemoryStore()
	s.AddVariantMapping(domain.VariantMapping{InternalSKU: "A", VariantID: 11, ProductID: 100, InventoryItemID: 51})
	q := New(s, logging.NewNopLogger())

	if _, err := q.RegisterPriceChanges(ctx, domain.ChangeSet{"A": {New: 12}}); err != nil {
		t.Fatalf("price: %v", err)
	}
	if _, err := q.RegisterStockChanges(ctx, domain.ChangeSet{"A": {New: 3}}); err != nil {
		t.Fatalf("stock: %v", err)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Price.Pending != 1 || stats.Stock.Pending != 1 {
		t.Fatalf("one task per kind: got %+v", stats)
	}
}

func TestRegister_IdempotentAcrossRuns(t *testing.T) {
	ctx := context.Background()
	s := state.NewMemoryStore()
	s.AddVariantMapping(domain.VariantMapping{InternalSKU: "A", VariantID: 11, ProductID: 100, InventoryItemID: 51})
	q := New(s, logging.NewNopLogger())

	for i := 0; i < 3; i++ {
		if _, err := q.RegisterPriceChanges(ctx, domain.ChangeSet{"A": {New: float64(10 + i)}}); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	stats, _ := q.Stats(ctx)
	if stats.Price.Pending != 1 {
		t.Fatalf("repeated registration must keep one pending task, got %+v", stats.Price)
	}

	tasks, err := s.ClaimPriceTasks(ctx, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Cost != 12 {
		t.Fatalf("the pending task must hold the latest value, got %+v", tasks)
	}
}
