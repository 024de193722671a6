package domain

// ProductRow is one row of a supplier catalog snapshot, keyed by Reference.
type ProductRow struct {
	Reference   string
	Description string

	// Price is the supplier cost in EUR. HasPrice is false when the feed
	// cell was empty or unparsable; the row is then excluded from price
	// comparisons instead of being treated as 0.
	Price    float64
	HasPrice bool

	// Stock defaults to 0 on unparsable input.
	Stock int

	Category    string
	Subcategory string
	Image       string
}
