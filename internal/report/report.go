package report

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josepita/shopify-sync/internal/detect"
	"github.com/josepita/shopify-sync/internal/domain"
)

// RunReport collects everything one sync run observed. It is built in
// memory and rendered to HTML for the notification mail; nothing here is
// persisted.
type RunReport struct {
	RunID     string
	StartedAt time.Time
	Elapsed   time.Duration
	Forced    string

	Stats detect.Stats

	PriceChanges domain.ChangeSet
	StockChanges domain.ChangeSet

	NewProducts     []string
	RemovedProducts []string

	Discontinued    map[string]domain.DiscontinuedProduct
	MissingVariants map[string]domain.MissingVariant

	MappedVariants int
	SkippedRefs    []string
}

func NewRunReport(startedAt time.Time) *RunReport {
	return &RunReport{RunID: uuid.NewString(), StartedAt: startedAt}
}

// Subject is the mail subject line for the summary notification.
func (r *RunReport) Subject() string {
	mode := "sync"
	if r.Forced != "" {
		mode = "forced sync (" + r.Forced + ")"
	}
	return fmt.Sprintf("Catalog %s %s: %d price / %d stock changes",
		mode, r.StartedAt.Format("2006-01-02"), len(r.PriceChanges), len(r.StockChanges))
}

// SummaryHTML renders the run summary table.
func (r *RunReport) SummaryHTML() string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h2>Catalog sync %s</h2>", html.EscapeString(r.StartedAt.Format("2006-01-02 15:04")))
	fmt.Fprintf(&b, "<p>Run %s, elapsed %s</p>", html.EscapeString(r.RunID), r.Elapsed.Round(time.Second))
	if r.Forced != "" {
		fmt.Fprintf(&b, "<p><b>Forced mode: %s</b></p>", html.EscapeString(r.Forced))
	}

	b.WriteString("<table border=\"1\" cellpadding=\"4\" cellspacing=\"0\">")
	row := func(label string, value any) {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%v</td></tr>", html.EscapeString(label), value)
	}
	row("Snapshot rows", r.Stats.Total)
	row("Zero-price rows", fmt.Sprintf("%d (%.1f%%)", r.Stats.ZeroPrices.Count, r.Stats.ZeroPrices.Percent))
	row("Zero-stock rows", fmt.Sprintf("%d (%.1f%%)", r.Stats.ZeroStock.Count, r.Stats.ZeroStock.Percent))
	if r.Stats.PreviousTotal > 0 {
		row("Previous rows", r.Stats.PreviousTotal)
		row("Row drift", fmt.Sprintf("%+d (%.1f%%)", r.Stats.Difference, r.Stats.DriftPercent))
	}
	row("Price changes", len(r.PriceChanges))
	row("Stock changes", len(r.StockChanges))
	row("New references", len(r.NewProducts))
	row("Removed references", len(r.RemovedProducts))
	row("Discontinued candidates", len(r.Discontinued))
	row("Missing mapped variants", len(r.MissingVariants))
	row("Mapped variants", r.MappedVariants)
	row("Skipped (no mapping)", len(r.SkippedRefs))
	b.WriteString("</table>")

	if len(r.PriceChanges) > 0 {
		b.WriteString("<h3>Price changes</h3>")
		writeChangeTable(&b, r.PriceChanges, func(c domain.Change) string {
			return fmt.Sprintf("<td>%.2f</td><td>%.2f</td>", c.Old, c.New)
		})
	}
	if len(r.StockChanges) > 0 {
		b.WriteString("<h3>Stock changes</h3>")
		writeChangeTable(&b, r.StockChanges, func(c domain.Change) string {
			return fmt.Sprintf("<td>%.0f</td><td>%.0f</td>", c.Old, c.New)
		})
	}

	b.WriteString("</body></html>")
	return b.String()
}

// DiscontinuedHTML renders the discontinued-product report, ordered by
// reference. Empty input yields an empty string and no mail.
func DiscontinuedHTML(discontinued map[string]domain.DiscontinuedProduct, daysThreshold int) string {
	if len(discontinued) == 0 {
		return ""
	}

	refs := sortedKeys(discontinued)

	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h2>Products absent from the catalog for %d+ days</h2>", daysThreshold)
	b.WriteString("<table border=\"1\" cellpadding=\"4\" cellspacing=\"0\">")
	b.WriteString("<tr><th>Reference</th><th>Description</th><th>Last price</th><th>Last stock</th><th>First missing</th><th>Days absent</th></tr>")
	for _, ref := range refs {
		p := discontinued[ref]
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%.2f</td><td>%d</td><td>%s</td><td>%d</td></tr>",
			html.EscapeString(p.Reference), html.EscapeString(p.Description),
			p.LastPrice, p.LastStock, html.EscapeString(p.FirstMissingDate), p.DaysAbsent)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

// MissingVariantsHTML renders mapped SKUs that dropped out of the feed.
func MissingVariantsHTML(missing map[string]domain.MissingVariant) string {
	if len(missing) == 0 {
		return ""
	}

	refs := sortedKeys(missing)

	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString("<h2>Mapped variants missing from the supplier feed</h2>")
	b.WriteString("<table border=\"1\" cellpadding=\"4\" cellspacing=\"0\">")
	b.WriteString("<tr><th>Reference</th><th>Last price</th><th>Last stock</th></tr>")
	for _, ref := range refs {
		v := missing[ref]
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%.2f</td><td>%d</td></tr>",
			html.EscapeString(v.Reference), v.LastPrice, v.LastStock)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

// RejectionHTML renders the validation-failure alert. Stats are included
// even though the snapshot was rejected.
func RejectionHTML(stats detect.Stats, reason error) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString("<h2>Catalog snapshot rejected</h2>")
	fmt.Fprintf(&b, "<p><b>%s</b></p>", html.EscapeString(reason.Error()))
	b.WriteString("<table border=\"1\" cellpadding=\"4\" cellspacing=\"0\">")
	fmt.Fprintf(&b, "<tr><td>Snapshot rows</td><td>%d</td></tr>", stats.Total)
	fmt.Fprintf(&b, "<tr><td>Zero-stock rows</td><td>%d (%.1f%%)</td></tr>", stats.ZeroStock.Count, stats.ZeroStock.Percent)
	if stats.PreviousTotal > 0 {
		fmt.Fprintf(&b, "<tr><td>Previous rows</td><td>%d</td></tr>", stats.PreviousTotal)
		fmt.Fprintf(&b, "<tr><td>Row drift</td><td>%+d (%.1f%%)</td></tr>", stats.Difference, stats.DriftPercent)
	}
	b.WriteString("</table>")
	b.WriteString("<p>No updates were queued and the snapshot was not archived.</p>")
	b.WriteString("</body></html>")
	return b.String()
}

func writeChangeTable(b *strings.Builder, changes domain.ChangeSet, cells func(domain.Change) string) {
	refs := make([]string, 0, len(changes))
	for ref := range changes {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	b.WriteString("<table border=\"1\" cellpadding=\"4\" cellspacing=\"0\">")
	b.WriteString("<tr><th>Reference</th><th>Description</th><th>Old</th><th>New</th></tr>")
	for _, ref := range refs {
		c := changes[ref]
		fmt.Fprintf(b, "<tr><td>%s</td><td>%s</td>%s</tr>",
			html.EscapeString(ref), html.EscapeString(c.Description), cells(c))
	}
	b.WriteString("</table>")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
