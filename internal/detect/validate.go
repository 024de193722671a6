package detect

import (
	"errors"
	"fmt"
	"math"

	"github.com/josepita/shopify-sync/internal/domain"
)

// ErrSnapshotRejected marks a snapshot that failed the validation gate.
// Nothing from a rejected snapshot may reach the update queue.
var ErrSnapshotRejected = errors.New("snapshot rejected")

// Count is a metric with its share of the snapshot total.
type Count struct {
	Count   int
	Percent float64
}

// Stats summarizes one validated snapshot against its predecessor.
type Stats struct {
	Total      int
	ZeroPrices Count
	ZeroStock  Count

	PreviousTotal int
	Difference    int
	DriftPercent  float64
}

// Gate holds the validation policy thresholds.
type Gate struct {
	MaxZeroStockPercent  float64
	MaxCountDriftPercent float64
}

func DefaultGate() Gate {
	return Gate{MaxZeroStockPercent: 40, MaxCountDriftPercent: 10}
}

// Validate computes snapshot statistics and rejects the snapshot when the
// zero-stock ratio or the row-count drift versus the previous snapshot
// exceeds the configured thresholds. Stats are returned either way so a
// rejection report can still show them.
func (g Gate) Validate(current []domain.ProductRow, previous []domain.ProductRow, hasPrevious bool) (Stats, error) {
	stats := Stats{Total: len(current)}
	if stats.Total == 0 {
		return stats, fmt.Errorf("%w: snapshot is empty", ErrSnapshotRejected)
	}

	for _, row := range current {
		if row.HasPrice && row.Price == 0 {
			stats.ZeroPrices.Count++
		}
		if row.Stock == 0 {
			stats.ZeroStock.Count++
		}
	}
	stats.ZeroPrices.Percent = percent(stats.ZeroPrices.Count, stats.Total)
	stats.ZeroStock.Percent = percent(stats.ZeroStock.Count, stats.Total)

	if hasPrevious && len(previous) > 0 {
		stats.PreviousTotal = len(previous)
		stats.Difference = stats.Total - stats.PreviousTotal
		stats.DriftPercent = round1(float64(stats.Difference) / float64(stats.PreviousTotal) * 100)
	}

	if stats.ZeroStock.Percent > g.MaxZeroStockPercent {
		return stats, fmt.Errorf("%w: %.1f%% of rows have stock 0 (limit %.0f%%)",
			ErrSnapshotRejected, stats.ZeroStock.Percent, g.MaxZeroStockPercent)
	}
	if math.Abs(stats.DriftPercent) > g.MaxCountDriftPercent {
		return stats, fmt.Errorf("%w: row count drift %.1f%% exceeds %.0f%%",
			ErrSnapshotRejected, stats.DriftPercent, g.MaxCountDriftPercent)
	}

	return stats, nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(n) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
