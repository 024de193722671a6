package detect

import (
	"context"

	"github.com/josepita/shopify-sync/internal/domain"
)

// HistoryLookup reads the most recent observed value per reference from
// the history ledger.
type HistoryLookup interface {
	LatestHistoryValue(ctx context.Context, kind domain.TaskKind, reference string) (float64, bool, error)
}

// MissingVariants flags SKUs the platform still tracks that have dropped
// out of the supplier feed, enriched with the last known price and stock
// from the history ledger. Unknown history values coalesce to zero.
func MissingVariants(ctx context.Context, knownSKUs []string, current []domain.ProductRow, ledger HistoryLookup) (map[string]domain.MissingVariant, error) {
	currentRefs := indexByReference(current)

	missing := make(map[string]domain.MissingVariant)
	for _, sku := range knownSKUs {
		if _, ok := currentRefs[sku]; ok {
			continue
		}

		mv := domain.MissingVariant{Reference: sku}

		if price, ok, err := ledger.LatestHistoryValue(ctx, domain.TaskKindPrice, sku); err != nil {
			return nil, err
		} else if ok {
			mv.LastPrice = price
		}

		if stock, ok, err := ledger.LatestHistoryValue(ctx, domain.TaskKindStock, sku); err != nil {
			return nil, err
		} else if ok {
			mv.LastStock = int(stock)
		}

		missing[sku] = mv
	}

	return missing, nil
}
