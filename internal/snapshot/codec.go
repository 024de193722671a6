package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/josepita/shopify-sync/internal/domain"
)

// Supplier column names as they arrive in the feed. The feed carries more
// descriptive columns (metal, sizes, extra images); only the ones the sync
// needs are modeled, unknown columns pass through unharmed on read.
const (
	colReference   = "REFERENCIA"
	colDescription = "DESCRIPCION"
	colPrice       = "PRECIO"
	colStock       = "STOCK"
	colCategory    = "CATEGORIA"
	colSubcategory = "SUBCATEGORIA"
	colImage       = "IMAGEN 1"
)

var requiredColumns = []string{colReference, colDescription, colPrice, colStock}

// rowsFromTable converts a header row plus data records into catalog rows,
// applying the per-column cleanup rules. Records with an empty reference
// are dropped.
func rowsFromTable(header []string, records [][]string) ([]domain.ProductRow, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("snapshot missing column %q", col)
		}
	}

	rows := make([]domain.ProductRow, 0, len(records))
	for _, rec := range records {
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		ref := get(colReference)
		if ref == "" {
			continue
		}

		row := domain.ProductRow{
			Reference:   ref,
			Description: get(colDescription),
			Stock:       ParseStock(get(colStock)),
			Category:    get(colCategory),
			Subcategory: get(colSubcategory),
			Image:       get(colImage),
		}
		row.Price, row.HasPrice = ParsePrice(get(colPrice))
		rows = append(rows, row)
	}

	return rows, nil
}

// readRows decodes a snapshot CSV. Supplier exports are ISO-8859-1.
func readRows(r io.Reader) ([]domain.ProductRow, error) {
	cr := csv.NewReader(transform.NewReader(r, charmap.ISO8859_1.NewDecoder()))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty snapshot file")
	}
	if err != nil {
		return nil, err
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return rowsFromTable(header, records)
}

func writeRows(w io.Writer, rows []domain.ProductRow) error {
	enc := transform.NewWriter(w, charmap.ISO8859_1.NewEncoder())
	cw := csv.NewWriter(enc)

	if err := cw.Write([]string{colReference, colDescription, colPrice, colStock, colCategory, colSubcategory, colImage}); err != nil {
		return err
	}

	for _, row := range rows {
		price := ""
		if row.HasPrice {
			price = strconv.FormatFloat(row.Price, 'f', 2, 64)
		}
		rec := []string{
			row.Reference,
			row.Description,
			price,
			strconv.Itoa(row.Stock),
			row.Category,
			row.Subcategory,
			row.Image,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return enc.Close()
}

// ParsePrice cleans a feed price cell: currency symbols and spaces are
// stripped, the decimal comma becomes a dot. Empty or unparsable cells
// report ok=false rather than a silent zero.
func ParsePrice(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.ReplaceAll(b.String(), ",", ".")
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ParseStock keeps digits only; anything unparsable counts as 0.
func ParseStock(s string) int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}
