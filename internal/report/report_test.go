package report

import (
	"strings"
	"testing"
	"time"

	"github.com/josepita/shopify-sync/internal/detect"
	"github.com/josepita/shopify-sync/internal/domain"
)

func TestNewRunReport_HasRunID(t *testing.T) {
	a := NewRunReport(time.Now())
	b := NewRunReport(time.Now())
	if a.RunID == "" || a.RunID == b.RunID {
		t.Fatalf("run ids must be unique and non-empty: %q vs %q", a.RunID, b.RunID)
	}
}

func TestSummaryHTML(t *testing.T) {
	rep := NewRunReport(time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC))
	rep.Stats = detect.Stats{Total: 100, PreviousTotal: 98, Difference: 2, DriftPercent: 2.0}
	rep.PriceChanges = domain.ChangeSet{
		"R1": {Old: 10, New: 12, Description: "Anillo <oro>"},
	}
	rep.StockChanges = domain.ChangeSet{
		"R2": {Old: 0, New: 3, Description: "Colgante"},
	}
	rep.SkippedRefs = []string{"GHOST"}

	body := rep.SummaryHTML()

	for _, want := range []string{"R1", "R2", "10.00", "12.00", "Colgante"} {
		if !strings.Contains(body, want) {
			t.Fatalf("summary missing %q:\n%s", want, body)
		}
	}
	if !strings.Contains(body, "Anillo &lt;oro&gt;") {
		t.Fatalf("descriptions must be html-escaped:\n%s", body)
	}

	if subj := rep.Subject(); !strings.Contains(subj, "1 price / 1 stock") {
		t.Fatalf("subject: got %q", subj)
	}
}

func TestDiscontinuedHTML(t *testing.T) {
	if got := DiscontinuedHTML(nil, 3); got != "" {
		t.Fatalf("empty input must render nothing, got %q", got)
	}

	body := DiscontinuedHTML(map[string]domain.DiscontinuedProduct{
		"R9": {Reference: "R9", Description: "Pulsera", LastPrice: 30, LastStock: 2, FirstMissingDate: "2026-08-21", DaysAbsent: 4},
	}, 3)

	for _, want := range []string{"R9", "Pulsera", "30.00", "2026-08-21"} {
		if !strings.Contains(body, want) {
			t.Fatalf("discontinued report missing %q:\n%s", want, body)
		}
	}
}

func TestMissingVariantsHTML(t *testing.T) {
	if got := MissingVariantsHTML(nil); got != "" {
		t.Fatalf("empty input must render nothing, got %q", got)
	}

	body := MissingVariantsHTML(map[string]domain.MissingVariant{
		"R5": {Reference: "R5", LastPrice: 12.5, LastStock: 1},
	})
	if !strings.Contains(body, "R5") || !strings.Contains(body, "12.50") {
		t.Fatalf("missing-variant report:\n%s", body)
	}
}

func TestBuildMessage_Headers(t *testing.T) {
	msg := string(buildMessage("from@example.com", "to@example.com", "Catálogo", "<p>hola</p>"))

	for _, want := range []string{
		"From: from@example.com\r\n",
		"To: to@example.com\r\n",
		"Content-Type: text/html",
		"<p>hola</p>",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Subject: Catálogo\r\n") {
		t.Fatalf("non-ascii subject must be encoded:\n%s", msg)
	}
}
