package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Web-Star-Studio/daton-esg-insight-sub008/model"
)

// MemoryStore keeps all rows in process memory guarded by a single RWMutex.
// It returns copies, so callers can mutate results freely.
type MemoryStore struct {
	mu         sync.RWMutex
	licenses   map[string]*model.License
	conditions map[string][]*model.Condition // by license id
	alerts     map[string][]*model.Alert     // by license id
	documents  map[string]*model.Document
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		licenses:   make(map[string]*model.License),
		conditions: make(map[string][]*model.Condition),
		alerts:     make(map[string][]*model.Alert),
		documents:  make(map[string]*model.Document),
	}
}

func (s *MemoryStore) CreateLicense(_ context.Context, lic *model.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *lic
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	s.licenses[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetLicense(_ context.Context, id string) (*model.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lic, ok := s.licenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *lic
	return &cp, nil
}

func (s *MemoryStore) ListLicenses(_ context.Context, tenant string) ([]*model.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.License
	for _, lic := range s.licenses {
		if lic.Tenant == tenant {
			cp := *lic
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) UpdateLicense(_ context.Context, lic *model.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.licenses[lic.ID]
	if !ok {
		return ErrNotFound
	}
	cp := *lic
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now()
	s.licenses[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateLicenseStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[id]
	if !ok {
		return ErrNotFound
	}
	lic.Status = status
	lic.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkLicenseFailed(_ context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[id]
	if !ok {
		return ErrNotFound
	}
	lic.Status = model.StatusFailed
	if name != "" {
		lic.Name = name
	}
	lic.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeleteLicense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.licenses[id]; !ok {
		return ErrNotFound
	}
	delete(s.licenses, id)
	delete(s.conditions, id)
	delete(s.alerts, id)
	for docID, doc := range s.documents {
		if doc.LicenseID == id {
			delete(s.documents, docID)
		}
	}
	return nil
}

func (s *MemoryStore) InsertConditions(_ context.Context, conds []*model.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range conds {
		cp := *c
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		s.conditions[cp.LicenseID] = append(s.conditions[cp.LicenseID], &cp)
	}
	return nil
}

func (s *MemoryStore) ListConditions(_ context.Context, licenseID string) ([]*model.Condition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conds := s.conditions[licenseID]
	result := make([]*model.Condition, 0, len(conds))
	for _, c := range conds {
		cp := *c
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) InsertAlerts(_ context.Context, alerts []*model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range alerts {
		cp := *a
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		s.alerts[cp.LicenseID] = append(s.alerts[cp.LicenseID], &cp)
	}
	return nil
}

func (s *MemoryStore) ListAlerts(_ context.Context, licenseID string) ([]*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := s.alerts[licenseID]
	result := make([]*model.Alert, 0, len(alerts))
	for _, a := range alerts {
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStore) CreateDocument(_ context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *doc
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	s.documents[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *MemoryStore) GetDocumentByLicense(_ context.Context, licenseID string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.documents {
		if doc.LicenseID == licenseID {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateDocumentStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = status
	doc.UpdatedAt = time.Now()
	return nil
}
