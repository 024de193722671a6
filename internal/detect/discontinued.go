package detect

import (
	"log"
	"time"

	"github.com/josepita/shopify-sync/internal/domain"
)

// SnapshotHistory is the slice of the snapshot store the lookback needs.
type SnapshotHistory interface {
	ForDay(day time.Time) ([]domain.ProductRow, bool, error)
}

// Discontinued flags references absent from the current catalog on at
// least daysThreshold of the scanned days. It scans the daysThreshold+1
// calendar days strictly before now, most recent first, skipping days
// without an archived snapshot. Fewer than daysThreshold days with data
// disables the feature for this run (empty result, no error). A reference
// present in the current snapshot is never flagged.
func Discontinued(current []domain.ProductRow, history SnapshotHistory, now time.Time, daysThreshold int, logger *log.Logger) (map[string]domain.DiscontinuedProduct, error) {
	if daysThreshold <= 0 {
		daysThreshold = 3
	}

	currentRefs := indexByReference(current)

	type daySnapshot struct {
		date time.Time
		rows []domain.ProductRow
	}

	var scanned []daySnapshot
	for i := 1; i <= daysThreshold+1; i++ {
		day := now.AddDate(0, 0, -i)
		rows, ok, err := history.ForDay(day)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Printf("discontinued scan: no snapshot for %s", day.Format("2006-01-02"))
			continue
		}
		scanned = append(scanned, daySnapshot{date: day, rows: rows})
	}

	if len(scanned) < daysThreshold {
		logger.Printf("discontinued scan disabled: %d of %d required days have data",
			len(scanned), daysThreshold)
		return map[string]domain.DiscontinuedProduct{}, nil
	}

	candidates := make(map[string]domain.DiscontinuedProduct)
	for _, snap := range scanned {
		for _, row := range snap.rows {
			if _, present := currentRefs[row.Reference]; present {
				continue
			}

			c, seen := candidates[row.Reference]
			if !seen {
				candidates[row.Reference] = domain.DiscontinuedProduct{
					Reference:        row.Reference,
					Description:      row.Description,
					Image:            row.Image,
					FirstMissingDate: snap.date.Format("2006-01-02"),
					LastPrice:        row.Price,
					LastStock:        row.Stock,
					DaysAbsent:       1,
				}
				continue
			}
			c.DaysAbsent++
			candidates[row.Reference] = c
		}
	}

	discontinued := make(map[string]domain.DiscontinuedProduct)
	for ref, c := range candidates {
		if c.DaysAbsent >= daysThreshold {
			discontinued[ref] = c
		}
	}

	logger.Printf("discontinued scan: %d references absent %d days or more",
		len(discontinued), daysThreshold)
	return discontinued, nil
}
