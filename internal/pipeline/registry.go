package pipeline

import (
	"sync"

	"payerhub/pkg/platform/sentinel"
)

// Registry keeps every run for operator inspection, keyed by correlation
// id. Runs are added once and read concurrently; per-run state is guarded
// by the run itself.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Run)}
}

func (r *Registry) add(run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.CorrelationID()]; exists {
		return sentinel.ErrConflict
	}
	r.runs[run.CorrelationID()] = run
	return nil
}

// Get returns a snapshot of the run with the given correlation id.
func (r *Registry) Get(correlationID string) (View, error) {
	r.mu.RLock()
	run, ok := r.runs[correlationID]
	r.mu.RUnlock()
	if !ok {
		return View{}, sentinel.ErrNotFound
	}
	return run.Snapshot(), nil
}

// List snapshots every known run.
func (r *Registry) List() []View {
	r.mu.RLock()
	runs := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	r.mu.RUnlock()

	views := make([]View, 0, len(runs))
	for _, run := range runs {
		views = append(views, run.Snapshot())
	}
	return views
}
