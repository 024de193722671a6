package detect

import (
	"sort"

	"github.com/josepita/shopify-sync/internal/domain"
)

// PriceEpsilon absorbs feed rounding noise; price deltas at or below it
// count as unchanged.
const PriceEpsilon = 0.01

// Changes compares two snapshots and returns the price and stock change
// sets for references present in both. References only in the current
// snapshot are "new", not "changed". With an empty previous snapshot both
// sets come back empty.
func Changes(current, previous []domain.ProductRow) (priceChanges, stockChanges domain.ChangeSet) {
	priceChanges = domain.ChangeSet{}
	stockChanges = domain.ChangeSet{}

	prev := indexByReference(previous)

	for _, row := range current {
		old, ok := prev[row.Reference]
		if !ok {
			continue
		}

		if row.HasPrice && old.HasPrice {
			if delta := row.Price - old.Price; delta > PriceEpsilon || delta < -PriceEpsilon {
				priceChanges[row.Reference] = domain.Change{
					Old:         old.Price,
					New:         row.Price,
					Description: row.Description,
				}
			}
		}

		if row.Stock != old.Stock {
			stockChanges[row.Reference] = domain.Change{
				Old:         float64(old.Stock),
				New:         float64(row.Stock),
				Description: row.Description,
			}
		}
	}

	return priceChanges, stockChanges
}

// NewAndRemoved returns the sorted set differences between the current and
// previous reference sets.
func NewAndRemoved(current, previous []domain.ProductRow) (newRefs, removedRefs []string) {
	cur := indexByReference(current)
	prev := indexByReference(previous)

	for ref := range cur {
		if _, ok := prev[ref]; !ok {
			newRefs = append(newRefs, ref)
		}
	}
	for ref := range prev {
		if _, ok := cur[ref]; !ok {
			removedRefs = append(removedRefs, ref)
		}
	}

	sort.Strings(newRefs)
	sort.Strings(removedRefs)
	return newRefs, removedRefs
}

func indexByReference(rows []domain.ProductRow) map[string]domain.ProductRow {
	idx := make(map[string]domain.ProductRow, len(rows))
	for _, row := range rows {
		idx[row.Reference] = row
	}
	return idx
}
