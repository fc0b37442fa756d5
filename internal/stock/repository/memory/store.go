// Package memory holds in-process implementations of the stock stores.
// Each store guards its maps with one mutex, which stands in for the
// single-row atomicity the Postgres stores get from the database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/pkg/errors"
)

// CounterStore is an in-memory counter store
type CounterStore struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewCounterStore creates an empty counter store
func NewCounterStore() *CounterStore {
	return &CounterStore{values: make(map[string]int64)}
}

// Next increments and returns the named counter
func (s *CounterStore) Next(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errors.BadRequest("counter name is required")
	}
	if err := ctx.Err(); err != nil {
		return 0, errors.OutcomeUnknown(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name]++
	return s.values[name], nil
}

// Current returns the last issued value
func (s *CounterStore) Current(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errors.BadRequest("counter name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name], nil
}

// MaterialStore is an in-memory material store
type MaterialStore struct {
	mu        sync.RWMutex
	materials map[string]*domain.MaterialStock
	now       func() time.Time
}

// NewMaterialStore creates an empty material store
func NewMaterialStore() *MaterialStore {
	return &MaterialStore{
		materials: make(map[string]*domain.MaterialStock),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a catalogue entry with zero stock
func (s *MaterialStore) Create(ctx context.Context, m *domain.MaterialStock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if _, ok := s.materials[m.ID]; ok {
		return errors.Conflict("material already exists")
	}
	for _, existing := range s.materials {
		if strings.EqualFold(existing.Name, m.Name) {
			return errors.Conflict("a record with this name already exists")
		}
	}

	now := s.now()
	m.Quantity = decimal.Zero
	m.CreatedAt, m.UpdatedAt = now, now

	cp := *m
	s.materials[m.ID] = &cp
	return nil
}

// Put stores m as given, quantity included. Test seeding only.
func (s *MaterialStore) Put(m *domain.MaterialStock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.materials[m.ID] = &cp
}

// GetByID gets a material by ID
func (s *MaterialStore) GetByID(ctx context.Context, id string) (*domain.MaterialStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.materials[id]
	if !ok {
		return nil, errors.NotFound("material")
	}
	cp := *m
	return &cp, nil
}

// List lists materials by name
func (s *MaterialStore) List(ctx context.Context, page domain.Page) ([]*domain.MaterialStock, int64, error) {
	s.mu.RLock()
	all := make([]*domain.MaterialStock, 0, len(s.materials))
	for _, m := range s.materials {
		cp := *m
		all = append(all, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].ID < all[j].ID
	})
	return window(all, page), int64(len(all)), nil
}

// ListAfter returns up to limit materials with ID greater than afterID
func (s *MaterialStore) ListAfter(ctx context.Context, afterID string, limit int) ([]*domain.MaterialStock, error) {
	s.mu.RLock()
	out := make([]*domain.MaterialStock, 0)
	for id, m := range s.materials {
		if id > afterID {
			cp := *m
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateReorderLevel sets the reorder threshold
func (s *MaterialStore) UpdateReorderLevel(ctx context.Context, id string, level decimal.Decimal) (*domain.MaterialStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.materials[id]
	if !ok {
		return nil, errors.NotFound("material")
	}
	m.ReorderLevel = level
	m.UpdatedAt = s.now()
	cp := *m
	return &cp, nil
}

// ApplyDelta adds delta to the quantity unless that would make it negative
func (s *MaterialStore) ApplyDelta(ctx context.Context, id string, delta decimal.Decimal) (*domain.MaterialStock, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Retryable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.materials[id]
	if !ok {
		return nil, errors.NotFound("material")
	}
	next := m.Quantity.Add(delta)
	if next.IsNegative() {
		return nil, errors.InsufficientStock(id, m.Quantity.String(), delta.Neg().String())
	}
	m.Quantity = next
	m.UpdatedAt = s.now()
	cp := *m
	return &cp, nil
}

func errBatchChanged() error {
	return errors.Conflict("batch was changed by another request, reload and retry")
}

// BatchStore is an in-memory batch store
type BatchStore struct {
	mu      sync.RWMutex
	batches map[string]*domain.StockBatch
	codes   map[string]string
	now     func() time.Time
}

// NewBatchStore creates an empty batch store
func NewBatchStore() *BatchStore {
	return &BatchStore{
		batches: make(map[string]*domain.StockBatch),
		codes:   make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a batch. A reused code is reported as DuplicateIdentifier.
func (s *BatchStore) Create(ctx context.Context, b *domain.StockBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if _, taken := s.codes[b.Code]; taken {
		return errors.DuplicateIdentifier(b.Code, nil)
	}

	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	b.Version = 1
	s.batches[b.ID] = copyBatch(b)
	s.codes[b.Code] = b.ID
	return nil
}

// GetByID gets a batch with its refs
func (s *BatchStore) GetByID(ctx context.Context, id string) (*domain.StockBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, errors.NotFound("batch")
	}
	return copyBatch(b), nil
}

// Update replaces the batch's refs, expiry and notes if the stored version
// still equals b.Version
func (s *BatchStore) Update(ctx context.Context, b *domain.StockBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.batches[b.ID]
	if !ok {
		return errors.NotFound("batch")
	}
	if existing.Version != b.Version {
		return errBatchChanged()
	}
	b.Version++
	b.UpdatedAt = s.now()
	b.Code, b.Kind, b.CreatedAt = existing.Code, existing.Kind, existing.CreatedAt
	s.batches[b.ID] = copyBatch(b)
	return nil
}

// Delete removes a batch at the given version
func (s *BatchStore) Delete(ctx context.Context, id string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return errors.NotFound("batch")
	}
	if b.Version != version {
		return errBatchChanged()
	}
	delete(s.codes, b.Code)
	delete(s.batches, id)
	return nil
}

// List lists batches of a kind, newest first
func (s *BatchStore) List(ctx context.Context, kind domain.BatchKind, page domain.Page) ([]*domain.StockBatch, int64, error) {
	s.mu.RLock()
	all := make([]*domain.StockBatch, 0, len(s.batches))
	for _, b := range s.batches {
		if kind == "" || b.Kind == kind {
			all = append(all, copyBatch(b))
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return window(all, page), int64(len(all)), nil
}

// ListExpiringAfter returns batches expiring at or before cutoff with ID
// greater than afterID, in ID order
func (s *BatchStore) ListExpiringAfter(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]*domain.StockBatch, error) {
	s.mu.RLock()
	out := make([]*domain.StockBatch, 0)
	for id, b := range s.batches {
		if id > afterID && b.Expiry != nil && !b.Expiry.After(cutoff) {
			out = append(out, copyBatch(b))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyBatch(b *domain.StockBatch) *domain.StockBatch {
	cp := *b
	cp.Refs = append([]domain.MaterialRef(nil), b.Refs...)
	if b.Expiry != nil {
		e := *b.Expiry
		cp.Expiry = &e
	}
	return &cp
}

func window[T any](all []T, page domain.Page) []T {
	if page.Offset >= len(all) {
		return []T{}
	}
	end := len(all)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	return all[page.Offset:end]
}
