package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// Status is the run-level state. Processing is the only non-terminal value.
type Status string

const (
	StatusProcessing   Status = "processing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusManualReview Status = "manual_review_required"
	StatusAccessDenied Status = "access_denied"
)

// Stage names, in pipeline order. These are the keys of the run's step map.
const (
	StageOCR              = "ocr"
	StageEntityExtraction = "entity_extraction"
	StageAnomalyDetection = "anomaly_detection"
	StageFHIRConversion   = "fhir_conversion"
	StagePrivacyCheck     = "privacy_check"
	StageHubUpdate        = "hub_update"
)

// StepSummary is the recorded outcome of one stage: a status plus
// stage-specific summary fields.
type StepSummary map[string]any

// Run tracks one document through the pipeline. It is mutated only by the
// orchestrator goroutine driving it; the mutex exists so operators can read
// a consistent snapshot while the run is in flight. Once terminal, a run
// never changes.
type Run struct {
	mu sync.RWMutex

	correlationID string
	documentID    string
	status        Status
	steps         map[string]StepSummary
	stepOrder     []string
	errMsg        string
	failedStage   string
	reviewReason  string
	denialReason  string
	startedAt     time.Time
	finishedAt    time.Time
}

func newRun(correlationID, documentID string) *Run {
	return &Run{
		correlationID: correlationID,
		documentID:    documentID,
		status:        StatusProcessing,
		steps:         make(map[string]StepSummary),
		startedAt:     time.Now(),
	}
}

// CorrelationID identifies the run; it threads through every event
// published on its behalf.
func (r *Run) CorrelationID() string { return r.correlationID }

// DocumentID is the broker partition key for the run's events.
func (r *Run) DocumentID() string { return r.documentID }

// Status returns the current run status.
func (r *Run) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Terminal reports whether the run reached a final state.
func (r *Run) Terminal() bool {
	return r.Status() != StatusProcessing
}

// recordStep stores a stage outcome. Step results are write-once: recording
// the same stage twice is a programming error and is rejected.
func (r *Run) recordStep(stage string, summary StepSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.steps[stage]; exists {
		return fmt.Errorf("step %s already recorded", stage)
	}
	r.steps[stage] = summary
	r.stepOrder = append(r.stepOrder, stage)
	return nil
}

func (r *Run) complete() {
	r.terminate(StatusCompleted)
}

func (r *Run) fail(stage, message string) {
	r.mu.Lock()
	r.failedStage = stage
	r.errMsg = message
	r.mu.Unlock()
	r.terminate(StatusFailed)
}

func (r *Run) manualReview(reason string) {
	r.mu.Lock()
	r.reviewReason = reason
	r.mu.Unlock()
	r.terminate(StatusManualReview)
}

func (r *Run) accessDenied(reason string) {
	r.mu.Lock()
	r.denialReason = reason
	r.mu.Unlock()
	r.terminate(StatusAccessDenied)
}

func (r *Run) terminate(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusProcessing {
		return // already terminal, never overwrite
	}
	r.status = status
	r.finishedAt = time.Now()
}

// View is an immutable snapshot of a run for callers and the HTTP layer.
// Partial stage results stay visible however the run terminated.
type View struct {
	CorrelationID string                 `json:"correlation_id"`
	DocumentID    string                 `json:"document_id"`
	Status        Status                 `json:"status"`
	Steps         map[string]StepSummary `json:"steps"`
	StepOrder     []string               `json:"step_order"`
	Error         string                 `json:"error,omitempty"`
	FailedStage   string                 `json:"failed_stage,omitempty"`
	ReviewReason  string                 `json:"review_reason,omitempty"`
	DenialReason  string                 `json:"denial_reason,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    *time.Time             `json:"finished_at,omitempty"`
}

// Snapshot returns a deep copy of the run's current state.
func (r *Run) Snapshot() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	steps := make(map[string]StepSummary, len(r.steps))
	for stage, summary := range r.steps {
		copied := make(StepSummary, len(summary))
		for k, v := range summary {
			copied[k] = v
		}
		steps[stage] = copied
	}
	view := View{
		CorrelationID: r.correlationID,
		DocumentID:    r.documentID,
		Status:        r.status,
		Steps:         steps,
		StepOrder:     append([]string{}, r.stepOrder...),
		Error:         r.errMsg,
		FailedStage:   r.failedStage,
		ReviewReason:  r.reviewReason,
		DenialReason:  r.denialReason,
		StartedAt:     r.startedAt,
	}
	if !r.finishedAt.IsZero() {
		finished := r.finishedAt
		view.FinishedAt = &finished
	}
	return view
}
