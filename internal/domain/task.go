package domain

import "time"

type TaskKind string

const (
	TaskKindPrice TaskKind = "price"
	TaskKindStock TaskKind = "stock"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusError      TaskStatus = "error"
)

// UpdateTask is one queued mutation awaiting application to Shopify.
// For price tasks NewValue holds the supplier cost; for stock tasks it
// holds the quantity.
type UpdateTask struct {
	ID               int64
	VariantMappingID int64
	NewValue         float64
	Status           TaskStatus
	CreatedAt        time.Time
	ProcessedAt      *time.Time
}

// VariantMapping resolves a supplier SKU to the Shopify identifiers an
// update needs. Rows are provisioned by a separate tool; the sync core
// only reads them.
type VariantMapping struct {
	ID              int64
	InternalSKU     string
	VariantID       int64
	ProductID       int64
	ParentReference string
	InventoryItemID int64
	Price           float64
}
