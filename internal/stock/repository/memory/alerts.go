package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/pkg/errors"
)

type subjectKey struct {
	subject string
	typ     domain.AlertType
}

// AlertStore is an in-memory alert store. The open index mirrors the
// alerts_one_open constraint.
type AlertStore struct {
	mu     sync.RWMutex
	alerts map[string]*domain.Alert
	open   map[subjectKey]string
}

// NewAlertStore creates an empty alert store
func NewAlertStore() *AlertStore {
	return &AlertStore{
		alerts: make(map[string]*domain.Alert),
		open:   make(map[subjectKey]string),
	}
}

// Create inserts an alert unconditionally
func (s *AlertStore) Create(ctx context.Context, a *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.Type.Deduplicated() {
		if _, exists := s.open[subjectKey{a.SubjectID, a.Type}]; exists {
			return errors.Conflict("an unread alert already exists for this subject")
		}
	}
	s.insert(a)
	return nil
}

// OpenIfAbsent inserts a unless an unread alert of its type is open for its subject
func (s *AlertStore) OpenIfAbsent(ctx context.Context, a *domain.Alert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.open[subjectKey{a.SubjectID, a.Type}]; exists {
		return false, nil
	}
	s.insert(a)
	return true, nil
}

// OpenOrRefresh inserts or refreshes the subject's alert unless one was
// created after notBefore
func (s *AlertStore) OpenOrRefresh(ctx context.Context, a *domain.Alert, notBefore time.Time) (domain.AlertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.alerts {
		if existing.SubjectID == a.SubjectID && existing.Type == a.Type && existing.CreatedAt.After(notBefore) {
			return domain.AlertUnchanged, nil
		}
	}

	key := subjectKey{a.SubjectID, a.Type}
	if id, exists := s.open[key]; exists {
		existing := s.alerts[id]
		existing.Message = a.Message
		existing.CreatedAt = a.CreatedAt
		a.ID = id
		return domain.AlertRefreshed, nil
	}

	s.insert(a)
	return domain.AlertOpened, nil
}

func (s *AlertStore) insert(a *domain.Alert) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.IsRead = false
	a.ReadAt = nil
	cp := *a
	s.alerts[a.ID] = &cp
	if a.Type.Deduplicated() {
		s.open[subjectKey{a.SubjectID, a.Type}] = a.ID
	}
}

// GetByID gets an alert by ID
func (s *AlertStore) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, errors.NotFound("alert")
	}
	cp := *a
	return &cp, nil
}

// MarkRead closes an alert, keeping the first read time
func (s *AlertStore) MarkRead(ctx context.Context, id string, at time.Time) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, errors.NotFound("alert")
	}
	if !a.IsRead {
		a.IsRead = true
		a.ReadAt = &at
		key := subjectKey{a.SubjectID, a.Type}
		if s.open[key] == id {
			delete(s.open, key)
		}
	}
	cp := *a
	return &cp, nil
}

// Delete removes an alert
func (s *AlertStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return errors.NotFound("alert")
	}
	key := subjectKey{a.SubjectID, a.Type}
	if s.open[key] == id {
		delete(s.open, key)
	}
	delete(s.alerts, id)
	return nil
}

// List lists alerts newest first
func (s *AlertStore) List(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, int64, error) {
	s.mu.RLock()
	out := make([]*domain.Alert, 0)
	for _, a := range s.alerts {
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.SubjectID != "" && a.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Unread != nil && a.IsRead == *filter.Unread {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	return window(out, domain.Page{Limit: perPage, Offset: (page - 1) * perPage}), int64(len(out)), nil
}

// MovementStore is an in-memory stock movement store
type MovementStore struct {
	mu        sync.RWMutex
	movements []*domain.StockMovement
	codes     map[string]struct{}
}

// NewMovementStore creates an empty movement store
func NewMovementStore() *MovementStore {
	return &MovementStore{codes: make(map[string]struct{})}
}

// Create records a movement
func (s *MovementStore) Create(ctx context.Context, m *domain.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[m.Code]; taken {
		return errors.DuplicateIdentifier(m.Code, nil)
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()
	cp := *m
	s.movements = append(s.movements, &cp)
	s.codes[m.Code] = struct{}{}
	return nil
}

// ListByMaterial lists a material's movements, newest first
func (s *MovementStore) ListByMaterial(ctx context.Context, materialID string, page domain.Page) ([]*domain.StockMovement, int64, error) {
	s.mu.RLock()
	out := make([]*domain.StockMovement, 0)
	for i := len(s.movements) - 1; i >= 0; i-- {
		if m := s.movements[i]; m.MaterialID == materialID {
			cp := *m
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	return window(out, page), int64(len(out)), nil
}
