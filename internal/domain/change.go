package domain

// Change records the observed transition of one numeric field for one
// reference between two snapshots.
type Change struct {
	Old         float64
	New         float64
	Description string
}

// ChangeSet maps reference -> change for one kind (price or stock).
type ChangeSet map[string]Change

// DiscontinuedProduct is a reference absent from the current catalog for
// at least the configured number of tracked days. Derived per run, never
// persisted.
type DiscontinuedProduct struct {
	Reference        string
	Description      string
	Image            string
	FirstMissingDate string
	LastPrice        float64
	LastStock        int
	DaysAbsent       int
}

// MissingVariant is a SKU Shopify still tracks that has dropped out of
// the supplier feed.
type MissingVariant struct {
	Reference string
	LastPrice float64
	LastStock int
}
