package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/josepita/shopify-sync/internal/domain"
)

// MemoryStore is the in-memory Store used by tests and the memory
// backend. Behavior mirrors MySQLStore, including coalescing and claim
// ordering.
type MemoryStore struct {
	mu sync.Mutex

	mappings map[string]domain.VariantMapping
	tasks    map[domain.TaskKind][]*memTask
	history  map[domain.TaskKind]map[string]map[string]float64 // reference -> date -> value

	nextMappingID int64
	nextTaskID    int64
}

type memTask struct {
	id        int64
	mappingID int64
	value     float64
	status    domain.TaskStatus
	createdAt time.Time
	processed *time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mappings: make(map[string]domain.VariantMapping),
		tasks: map[domain.TaskKind][]*memTask{
			domain.TaskKindPrice: {},
			domain.TaskKindStock: {},
		},
		history: map[domain.TaskKind]map[string]map[string]float64{
			domain.TaskKindPrice: {},
			domain.TaskKindStock: {},
		},
	}
}

// AddVariantMapping seeds the variant directory; provisioning is outside
// the sync core, so this is not part of the Store interface.
func (s *MemoryStore) AddVariantMapping(m domain.VariantMapping) domain.VariantMapping {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == 0 {
		s.nextMappingID++
		m.ID = s.nextMappingID
	}
	s.mappings[m.InternalSKU] = m
	return m
}

// RemoveVariantMapping drops a mapping, leaving any of its tasks
// orphaned. Test helper.
func (s *MemoryStore) RemoveVariantMapping(sku string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mappings, sku)
}

func (s *MemoryStore) ResolveVariant(_ context.Context, reference string) (domain.VariantMapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mappings[reference]
	return m, ok, nil
}

func (s *MemoryStore) AllKnownSKUs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	skus := make([]string, 0, len(s.mappings))
	for sku := range s.mappings {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus, nil
}

func (s *MemoryStore) EnqueueChanges(_ context.Context, kind domain.TaskKind, changes domain.ChangeSet, day time.Time) (EnqueueResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res EnqueueResult
	date := day.Format("2006-01-02")

	for ref, change := range changes {
		m, ok := s.mappings[ref]
		if !ok {
			res.Skipped++
			res.SkippedRefs = append(res.SkippedRefs, ref)
			continue
		}

		byRef := s.history[kind]
		if byRef[ref] == nil {
			byRef[ref] = make(map[string]float64)
		}
		byRef[ref][date] = change.New

		if existing := s.findPending(kind, m.ID); existing != nil {
			existing.value = change.New
			existing.createdAt = time.Now()
			res.Coalesced++
			continue
		}

		s.nextTaskID++
		s.tasks[kind] = append(s.tasks[kind], &memTask{
			id:        s.nextTaskID,
			mappingID: m.ID,
			value:     change.New,
			status:    domain.TaskStatusPending,
			createdAt: time.Now(),
		})
		res.Inserted++
	}

	return res, nil
}

func (s *MemoryStore) findPending(kind domain.TaskKind, mappingID int64) *memTask {
	for _, t := range s.tasks[kind] {
		if t.mappingID == mappingID && t.status == domain.TaskStatusPending {
			return t
		}
	}
	return nil
}

func (s *MemoryStore) claim(kind domain.TaskKind, limit int) []*memTask {
	if limit <= 0 {
		limit = 100
	}

	var eligible []*memTask
	for _, t := range s.tasks[kind] {
		if t.status != domain.TaskStatusPending && t.status != domain.TaskStatusError {
			continue
		}
		if s.mappingByID(t.mappingID) == nil {
			continue // orphaned join, excluded from claims
		}
		eligible = append(eligible, t)
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].createdAt.Equal(eligible[j].createdAt) {
			return eligible[i].id < eligible[j].id
		}
		return eligible[i].createdAt.Before(eligible[j].createdAt)
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	for _, t := range eligible {
		t.status = domain.TaskStatusProcessing
	}
	return eligible
}

func (s *MemoryStore) mappingByID(id int64) *domain.VariantMapping {
	for _, m := range s.mappings {
		if m.ID == id {
			return &m
		}
	}
	return nil
}

func (s *MemoryStore) ClaimPriceTasks(_ context.Context, limit int) ([]PriceTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []PriceTask
	for _, t := range s.claim(domain.TaskKindPrice, limit) {
		m := s.mappingByID(t.mappingID)
		tasks = append(tasks, PriceTask{
			TaskID:           t.id,
			VariantMappingID: t.mappingID,
			Cost:             t.value,
			ProductID:        m.ProductID,
			VariantID:        m.VariantID,
		})
	}
	return tasks, nil
}

func (s *MemoryStore) ClaimStockTasks(_ context.Context, limit int) ([]StockTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []StockTask
	for _, t := range s.claim(domain.TaskKindStock, limit) {
		m := s.mappingByID(t.mappingID)
		tasks = append(tasks, StockTask{
			TaskID:           t.id,
			VariantMappingID: t.mappingID,
			Quantity:         int(t.value),
			InventoryItemID:  m.InventoryItemID,
		})
	}
	return tasks, nil
}

func (s *MemoryStore) MarkTasks(_ context.Context, kind domain.TaskKind, taskIDs []int64, status domain.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[int64]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		ids[id] = struct{}{}
	}

	now := time.Now()
	for _, t := range s.tasks[kind] {
		if _, ok := ids[t.id]; ok {
			t.status = status
			t.processed = &now
		}
	}
	return nil
}

func (s *MemoryStore) RequeueStuck(_ context.Context, kind domain.TaskKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tasks[kind] {
		if t.status == domain.TaskStatusProcessing {
			t.status = domain.TaskStatusPending
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) OrphanedTasks(_ context.Context, kind domain.TaskKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tasks[kind] {
		if t.status != domain.TaskStatusPending && t.status != domain.TaskStatusError {
			continue
		}
		if s.mappingByID(t.mappingID) == nil {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) QueueStats(_ context.Context) (QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats QueueStats
	stats.Price = s.kindStats(domain.TaskKindPrice)
	stats.Stock = s.kindStats(domain.TaskKindStock)
	return stats, nil
}

func (s *MemoryStore) kindStats(kind domain.TaskKind) KindStats {
	var stats KindStats
	for _, t := range s.tasks[kind] {
		switch t.status {
		case domain.TaskStatusPending:
			stats.Pending++
		case domain.TaskStatusProcessing:
			stats.Processing++
		case domain.TaskStatusCompleted:
			stats.Completed++
		case domain.TaskStatusError:
			stats.Error++
		}
	}
	return stats
}

func (s *MemoryStore) LatestHistoryValue(_ context.Context, kind domain.TaskKind, reference string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDate, ok := s.history[kind][reference]
	if !ok || len(byDate) == 0 {
		return 0, false, nil
	}

	var latest string
	for date := range byDate {
		if date > latest {
			latest = date
		}
	}
	return byDate[latest], true, nil
}
