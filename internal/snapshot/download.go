package snapshot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/josepita/shopify-sync/internal/domain"
)

// Downloader fetches the supplier feed, which arrives as an HTML page
// holding a single table, and converts it to catalog rows.
type Downloader struct {
	URL      string
	Username string
	Password string
	Client   *http.Client
}

func (d Downloader) Fetch(ctx context.Context) ([]domain.ProductRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, err
	}
	if d.Username != "" {
		req.SetBasicAuth(d.Username, d.Password)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download feed: unexpected status %s", resp.Status)
	}

	return ParseFeedTable(resp.Body)
}

// ParseFeedTable extracts catalog rows from the feed's HTML table. The
// first table row is the header; header cells arrive as td, not th.
func ParseFeedTable(r io.Reader) ([]domain.ProductRow, error) {
	doc, err := html.Parse(transform.NewReader(r, charmap.ISO8859_1.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("parse feed html: %w", err)
	}

	table := findElement(doc, "table")
	if table == nil {
		return nil, fmt.Errorf("no table found in feed")
	}

	var records [][]string
	collectElements(table, "tr", func(tr *html.Node) {
		var cells []string
		collectElements(tr, "td", func(td *html.Node) {
			cells = append(cells, strings.TrimSpace(textContent(td)))
		})
		if len(cells) > 0 {
			records = append(records, cells)
		}
	})

	if len(records) == 0 {
		return nil, fmt.Errorf("feed table has no rows")
	}

	return rowsFromTable(records[0], records[1:])
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func collectElements(n *html.Node, tag string, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			fn(c)
			continue
		}
		collectElements(c, tag, fn)
	}
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
