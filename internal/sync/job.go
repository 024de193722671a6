package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/josepita/shopify-sync/internal/detect"
	"github.com/josepita/shopify-sync/internal/domain"
	"github.com/josepita/shopify-sync/internal/queue"
	"github.com/josepita/shopify-sync/internal/report"
	"github.com/josepita/shopify-sync/internal/snapshot"
	"github.com/josepita/shopify-sync/internal/state"
)

// Force selects which kinds bypass change detection and enqueue every
// catalog row.
type Force string

const (
	ForceNone   Force = ""
	ForceAll    Force = "all"
	ForcePrices Force = "prices"
	ForceStock  Force = "stock"
)

func ParseForce(s string) (Force, error) {
	switch Force(s) {
	case ForceNone, ForceAll, ForcePrices, ForceStock:
		return Force(s), nil
	}
	return ForceNone, fmt.Errorf("unknown force mode %q (want all, prices or stock)", s)
}

// FeedSource produces the day's catalog rows.
type FeedSource interface {
	Fetch(ctx context.Context) ([]domain.ProductRow, error)
}

// Job is one catalog sync run: acquire a snapshot, validate it, diff it
// against the previous one and feed the update queues.
type Job struct {
	Snapshots *snapshot.Store
	Feed      FeedSource
	Store     state.Store
	Queue     *queue.UpdateQueue
	Notifier  report.Notifier
	Gate      detect.Gate
	Logger    *log.Logger

	DaysThreshold int

	// ArchiveRetentionDays bounds the csv_archive tree; zero keeps the
	// default of 90 days.
	ArchiveRetentionDays int

	// Now is the run clock; tests pin it.
	Now func() time.Time
}

// Run executes one sync. A snapshot rejected by the validation gate stops
// the run with detect.ErrSnapshotRejected after a single alert; nothing
// is queued and the snapshot is not archived. The report is returned even
// on rejection so callers can log it.
func (j *Job) Run(ctx context.Context, force Force) (*report.RunReport, error) {
	now := j.now()
	rep := report.NewRunReport(now)
	rep.Forced = string(force)

	j.Logger.Printf("sync run %s starting (force=%q)", rep.RunID, force)

	if _, err := j.Snapshots.BackupCurrent(); err != nil {
		return rep, err
	}

	if err := j.acquireSnapshot(ctx, now, force); err != nil {
		return rep, err
	}

	current, err := j.Snapshots.Current()
	if err != nil {
		return rep, err
	}
	previous, hasPrevious, err := j.Snapshots.Previous()
	if err != nil {
		return rep, err
	}

	rep.Stats, err = j.Gate.Validate(current, previous, hasPrevious)
	if err != nil {
		if errors.Is(err, detect.ErrSnapshotRejected) {
			j.Logger.Printf("snapshot rejected: %v", err)
			if nerr := j.Notifier.Notify("Catalog snapshot rejected", report.RejectionHTML(rep.Stats, err)); nerr != nil {
				j.Logger.Printf("rejection alert failed: %v", nerr)
			}
		}
		return rep, err
	}

	priceChanges, stockChanges := detect.Changes(current, previous)
	rep.PriceChanges, rep.StockChanges = priceChanges, stockChanges

	rep.NewProducts, rep.RemovedProducts = detect.NewAndRemoved(current, previous)
	if err := j.Snapshots.ExportProductLists(now, rep.NewProducts, rep.RemovedProducts); err != nil {
		return rep, err
	}

	rep.Discontinued, err = detect.Discontinued(current, j.Snapshots, now, j.DaysThreshold, j.Logger)
	if err != nil {
		return rep, err
	}

	knownSKUs, err := j.Store.AllKnownSKUs(ctx)
	if err != nil {
		return rep, err
	}
	rep.MappedVariants = len(knownSKUs)

	rep.MissingVariants, err = detect.MissingVariants(ctx, knownSKUs, current, j.Store)
	if err != nil {
		return rep, err
	}

	toQueuePrices, toQueueStocks := j.queueSets(current, priceChanges, stockChanges, force)

	priceRes, err := j.Queue.RegisterPriceChanges(ctx, toQueuePrices)
	if err != nil {
		return rep, err
	}
	stockRes, err := j.Queue.RegisterStockChanges(ctx, toQueueStocks)
	if err != nil {
		return rep, err
	}
	rep.SkippedRefs = dedupe(append(priceRes.SkippedRefs, stockRes.SkippedRefs...))

	if err := j.Snapshots.Archive(now); err != nil {
		return rep, err
	}

	retention := j.ArchiveRetentionDays
	if retention <= 0 {
		retention = 90
	}
	if err := j.Snapshots.CleanOldArchives(now, retention); err != nil {
		j.Logger.Printf("archive cleanup failed: %v", err)
	}

	rep.Elapsed = j.now().Sub(now)
	j.notify(rep)

	j.Logger.Printf("sync run %s done in %s: %d price changes, %d stock changes, %d skipped",
		rep.RunID, rep.Elapsed.Round(time.Millisecond),
		len(priceChanges), len(stockChanges), len(rep.SkippedRefs))
	return rep, nil
}

// acquireSnapshot makes current.csv hold today's catalog: a normal run
// reuses the day's last archived snapshot when one exists, a forced run
// always downloads fresh.
func (j *Job) acquireSnapshot(ctx context.Context, now time.Time, force Force) error {
	if force == ForceNone {
		reused, err := j.Snapshots.ReuseLastOfDay(now)
		if err != nil {
			return err
		}
		if reused {
			return nil
		}
	}

	rows, err := j.Feed.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch feed: %w", err)
	}
	return j.Snapshots.WriteCurrent(rows)
}

// queueSets picks what goes on the queues. Forced kinds push every
// catalog row through the same enqueue path as a detected change, so
// coalescing and mapping checks still apply.
func (j *Job) queueSets(current []domain.ProductRow, priceChanges, stockChanges domain.ChangeSet, force Force) (domain.ChangeSet, domain.ChangeSet) {
	prices, stocks := priceChanges, stockChanges

	if force == ForceAll || force == ForcePrices {
		prices = domain.ChangeSet{}
		for _, row := range current {
			if !row.HasPrice {
				continue
			}
			prices[row.Reference] = domain.Change{Old: row.Price, New: row.Price, Description: row.Description}
		}
	}
	if force == ForceAll || force == ForceStock {
		stocks = domain.ChangeSet{}
		for _, row := range current {
			stocks[row.Reference] = domain.Change{Old: float64(row.Stock), New: float64(row.Stock), Description: row.Description}
		}
	}

	return prices, stocks
}

func (j *Job) notify(rep *report.RunReport) {
	if err := j.Notifier.Notify(rep.Subject(), rep.SummaryHTML()); err != nil {
		j.Logger.Printf("summary notification failed: %v", err)
	}

	if body := report.DiscontinuedHTML(rep.Discontinued, j.DaysThreshold); body != "" {
		if err := j.Notifier.Notify("Discontinued product candidates", body); err != nil {
			j.Logger.Printf("discontinued notification failed: %v", err)
		}
	}

	if body := report.MissingVariantsHTML(rep.MissingVariants); body != "" {
		if err := j.Notifier.Notify("Mapped variants missing from feed", body); err != nil {
			j.Logger.Printf("missing-variant notification failed: %v", err)
		}
	}
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func dedupe(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := refs[:0]
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
