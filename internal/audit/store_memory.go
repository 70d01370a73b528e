package audit

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps audit entries in process memory for tests and local
// development.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	failAll bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// FailAppends makes every future Append fail, for exercising the gate's
// fail-closed path.
func (s *InMemoryStore) FailAppends() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = true
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errAppendUnavailable
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, patientID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, entry := range s.entries {
		if entry.PatientID == patientID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByTimeRange(_ context.Context, from, to time.Time) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, entry := range s.entries {
		if !entry.Timestamp.Before(from) && !entry.Timestamp.After(to) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// All returns a copy of every entry, for assertions.
func (s *InMemoryStore) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries...)
}
