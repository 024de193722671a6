package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/josepita/shopify-sync/internal/domain"
)

type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func queueTable(kind domain.TaskKind) string {
	if kind == domain.TaskKindStock {
		return "stock_updates_queue"
	}
	return "price_updates_queue"
}

func valueColumn(kind domain.TaskKind) string {
	if kind == domain.TaskKindStock {
		return "new_stock"
	}
	return "new_price"
}

func historyTable(kind domain.TaskKind) string {
	if kind == domain.TaskKindStock {
		return "stock_history"
	}
	return "price_history"
}

func historyColumn(kind domain.TaskKind) string {
	if kind == domain.TaskKindStock {
		return "stock"
	}
	return "price"
}

func (s *MySQLStore) ResolveVariant(ctx context.Context, reference string) (domain.VariantMapping, bool, error) {
	var m domain.VariantMapping
	err := s.db.QueryRowContext(ctx, `
SELECT id, internal_sku,
       COALESCE(shopify_variant_id, 0),
       COALESCE(shopify_product_id, 0),
       COALESCE(parent_reference, ''),
       COALESCE(inventory_item_id, 0),
       COALESCE(price, 0)
FROM variant_mappings
WHERE internal_sku = ?
`, reference).Scan(&m.ID, &m.InternalSKU, &m.VariantID, &m.ProductID, &m.ParentReference, &m.InventoryItemID, &m.Price)

	if err == sql.ErrNoRows {
		return domain.VariantMapping{}, false, nil
	}
	if err != nil {
		return domain.VariantMapping{}, false, err
	}
	return m, true, nil
}

func (s *MySQLStore) AllKnownSKUs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT internal_sku FROM variant_mappings ORDER BY internal_sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var skus []string
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, err
		}
		skus = append(skus, sku)
	}
	return skus, rows.Err()
}

func (s *MySQLStore) EnqueueChanges(ctx context.Context, kind domain.TaskKind, changes domain.ChangeSet, day time.Time) (EnqueueResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return EnqueueResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var res EnqueueResult
	table := queueTable(kind)
	column := valueColumn(kind)
	date := day.Format("2006-01-02")

	for ref, change := range changes {
		var mappingID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM variant_mappings WHERE internal_sku = ?`, ref,
		).Scan(&mappingID)
		if err == sql.ErrNoRows {
			res.Skipped++
			res.SkippedRefs = append(res.SkippedRefs, ref)
			continue
		}
		if err != nil {
			return EnqueueResult{}, err
		}

		// One history row per reference per day; same-day re-detections
		// overwrite.
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (reference, %s, date)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE %s = VALUES(%s)
`, historyTable(kind), historyColumn(kind), historyColumn(kind), historyColumn(kind)),
			ref, change.New, date)
		if err != nil {
			return EnqueueResult{}, err
		}

		// At most one pending task per variant per kind: coalesce into
		// the existing pending task, resetting its timestamp.
		var taskID int64
		err = tx.QueryRowContext(ctx, fmt.Sprintf(`
SELECT id FROM %s WHERE variant_mapping_id = ? AND status = 'pending'
`, table), mappingID).Scan(&taskID)

		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (variant_mapping_id, %s, status, created_at)
VALUES (?, ?, 'pending', CURRENT_TIMESTAMP)
`, table, column), mappingID, change.New)
			if err != nil {
				return EnqueueResult{}, err
			}
			res.Inserted++
		case err != nil:
			return EnqueueResult{}, err
		default:
			_, err = tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET %s = ?, created_at = CURRENT_TIMESTAMP WHERE id = ?
`, table, column), change.New, taskID)
			if err != nil {
				return EnqueueResult{}, err
			}
			res.Coalesced++
		}
	}

	if err := tx.Commit(); err != nil {
		return EnqueueResult{}, err
	}
	return res, nil
}

func (s *MySQLStore) ClaimPriceTasks(ctx context.Context, limit int) ([]PriceTask, error) {
	if limit <= 0 {
		limit = 100
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
SELECT pq.id, pq.variant_mapping_id, pq.new_price, vm.shopify_product_id, vm.shopify_variant_id
FROM price_updates_queue pq
JOIN variant_mappings vm ON vm.id = pq.variant_mapping_id
WHERE pq.status IN ('pending', 'error')
ORDER BY pq.created_at ASC, pq.id ASC
LIMIT ?
FOR UPDATE
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []PriceTask
	for rows.Next() {
		var t PriceTask
		if err := rows.Scan(&t.TaskID, &t.VariantMappingID, &t.Cost, &t.ProductID, &t.VariantID); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := markProcessing(ctx, tx, "price_updates_queue", priceTaskIDs(tasks)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *MySQLStore) ClaimStockTasks(ctx context.Context, limit int) ([]StockTask, error) {
	if limit <= 0 {
		limit = 100
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
SELECT sq.id, sq.variant_mapping_id, sq.new_stock, vm.inventory_item_id
FROM stock_updates_queue sq
JOIN variant_mappings vm ON vm.id = sq.variant_mapping_id
WHERE sq.status IN ('pending', 'error')
ORDER BY sq.created_at ASC, sq.id ASC
LIMIT ?
FOR UPDATE
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []StockTask
	for rows.Next() {
		var t StockTask
		if err := rows.Scan(&t.TaskID, &t.VariantMappingID, &t.Quantity, &t.InventoryItemID); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := markProcessing(ctx, tx, "stock_updates_queue", stockTaskIDs(tasks)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *MySQLStore) MarkTasks(ctx context.Context, kind domain.TaskKind, taskIDs []int64, status domain.TaskStatus) error {
	if len(taskIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = ?, processed_at = CURRENT_TIMESTAMP WHERE id IN (%s)
`, queueTable(kind), placeholders(len(taskIDs)))

	args := make([]any, 0, len(taskIDs)+1)
	args = append(args, string(status))
	for _, id := range taskIDs {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *MySQLStore) RequeueStuck(ctx context.Context, kind domain.TaskKind) (int, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET status = 'pending' WHERE status = 'processing'
`, queueTable(kind)))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *MySQLStore) OrphanedTasks(ctx context.Context, kind domain.TaskKind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT COUNT(*)
FROM %s q
LEFT JOIN variant_mappings vm ON vm.id = q.variant_mapping_id
WHERE vm.id IS NULL AND q.status IN ('pending', 'error')
`, queueTable(kind))).Scan(&n)
	return n, err
}

func (s *MySQLStore) QueueStats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats

	price, err := s.kindStats(ctx, domain.TaskKindPrice)
	if err != nil {
		return QueueStats{}, err
	}
	stock, err := s.kindStats(ctx, domain.TaskKindStock)
	if err != nil {
		return QueueStats{}, err
	}

	stats.Price = price
	stats.Stock = stock
	return stats, nil
}

func (s *MySQLStore) kindStats(ctx context.Context, kind domain.TaskKind) (KindStats, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT status, COUNT(*) FROM %s GROUP BY status
`, queueTable(kind)))
	if err != nil {
		return KindStats{}, err
	}
	defer rows.Close()

	var stats KindStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return KindStats{}, err
		}
		switch domain.TaskStatus(status) {
		case domain.TaskStatusPending:
			stats.Pending = count
		case domain.TaskStatusProcessing:
			stats.Processing = count
		case domain.TaskStatusCompleted:
			stats.Completed = count
		case domain.TaskStatusError:
			stats.Error = count
		}
	}
	return stats, rows.Err()
}

func (s *MySQLStore) LatestHistoryValue(ctx context.Context, kind domain.TaskKind, reference string) (float64, bool, error) {
	var v float64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT COALESCE(%s, 0) FROM %s WHERE reference = ? ORDER BY date DESC LIMIT 1
`, historyColumn(kind), historyTable(kind)), reference).Scan(&v)

	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func markProcessing(ctx context.Context, tx *sql.Tx, table string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE %s SET status = 'processing' WHERE id IN (%s)`, table, placeholders(len(ids)))
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func priceTaskIDs(tasks []PriceTask) []int64 {
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.TaskID)
	}
	return ids
}

func stockTaskIDs(tasks []StockTask) []int64 {
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.TaskID)
	}
	return ids
}
