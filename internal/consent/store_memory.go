package consent

import (
	"context"
	"sync"

	"payerhub/pkg/platform/sentinel"
)

// InMemoryStore keeps consent records in process memory. Used by unit tests
// and local development; the Postgres store is the production path.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Record
	ordered []*Record // insertion order doubles as grant order
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]*Record)}
}

func (s *InMemoryStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[record.ConsentID]; exists {
		return sentinel.ErrConflict
	}
	clone := cloneRecord(record)
	s.byID[record.ConsentID] = clone
	s.ordered = append(s.ordered, clone)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, consentID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byID[consentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(record), nil
}

func (s *InMemoryStore) LatestActive(_ context.Context, patientID, organizationID, purpose string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.ordered) - 1; i >= 0; i-- {
		record := s.ordered[i]
		if record.Status == StatusActive &&
			record.PatientID == patientID &&
			record.OrganizationID == organizationID &&
			record.Purpose == purpose {
			return cloneRecord(record), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, consentID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[consentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.Status = status
	return nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, patientID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, record := range s.ordered {
		if record.PatientID == patientID {
			out = append(out, cloneRecord(record))
		}
	}
	return out, nil
}

func cloneRecord(record *Record) *Record {
	clone := *record
	clone.Scope = append([]string{}, record.Scope...)
	if record.ExpiresAt != nil {
		expiry := *record.ExpiresAt
		clone.ExpiresAt = &expiry
	}
	return &clone
}
