package detect

import (
	"testing"
	"time"

	"github.com/josepita/shopify-sync/internal/domain"
	"github.com/josepita/shopify-sync/internal/logging"
)

// fakeHistory serves archived snapshots keyed by calendar day.
type fakeHistory map[string][]domain.ProductRow

func (h fakeHistory) ForDay(day time.Time) ([]domain.ProductRow, bool, error) {
	rows, ok := h[day.Format("2006-01-02")]
	return rows, ok, nil
}

func TestDiscontinued_FlagsAfterThreshold(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	// GONE appears on all four scanned days but not in the current
	// snapshot; BRIEF only on one.
	history := fakeHistory{
		"2026-08-23": {row("KEEP", 10, 1), row("GONE", 25, 2), row("BRIEF", 5, 1)},
		"2026-08-22": {row("KEEP", 10, 1), row("GONE", 25, 2)},
		"2026-08-21": {row("KEEP", 10, 1), row("GONE", 25, 2)},
		"2026-08-20": {row("KEEP", 10, 1), row("GONE", 25, 2)},
	}
	current := []domain.ProductRow{row("KEEP", 10, 1)}

	got, err := Discontinued(current, history, now, 3, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("Discontinued: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected only GONE flagged, got %v", got)
	}
	p, ok := got["GONE"]
	if !ok {
		t.Fatalf("GONE not flagged: %v", got)
	}
	if p.DaysAbsent != 4 {
		t.Fatalf("GONE days absent: got %d want 4", p.DaysAbsent)
	}
	if p.FirstMissingDate != "2026-08-23" {
		t.Fatalf("GONE first missing date: got %s", p.FirstMissingDate)
	}
	if p.LastPrice != 25 || p.LastStock != 2 {
		t.Fatalf("GONE last seen values: got %+v", p)
	}
}

func TestDiscontinued_BelowThresholdNotFlagged(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	// GONE absent on only two of four days: below a threshold of 3.
	history := fakeHistory{
		"2026-08-23": {row("GONE", 25, 2)},
		"2026-08-22": {row("GONE", 25, 2)},
		"2026-08-21": {},
		"2026-08-20": {},
	}

	got, err := Discontinued(nil, history, now, 3, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("Discontinued: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("two absent days must not flag at threshold 3, got %v", got)
	}
}

func TestDiscontinued_InsufficientHistoryDisables(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	// Only two of the required three days have an archive at all.
	history := fakeHistory{
		"2026-08-23": {row("GONE", 25, 2)},
		"2026-08-22": {row("GONE", 25, 2)},
	}

	got, err := Discontinued(nil, history, now, 3, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("Discontinued: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("scan must be disabled with insufficient history, got %v", got)
	}
}

func TestDiscontinued_CurrentPresenceWins(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	history := fakeHistory{
		"2026-08-23": {row("BACK", 25, 2)},
		"2026-08-22": {row("BACK", 25, 2)},
		"2026-08-21": {row("BACK", 25, 2)},
	}
	current := []domain.ProductRow{row("BACK", 25, 2)}

	got, err := Discontinued(current, history, now, 3, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("Discontinued: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("a reference in the current snapshot must never be flagged, got %v", got)
	}
}
