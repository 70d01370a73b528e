package pipeline

import (
	"context"

	"payerhub/internal/privacy"
)

// The pipeline calls five external collaborators, each potentially remote.
// They are modeled as plain request/response interfaces so the orchestrator
// stays independent of model serving, FHIR tooling and hub adapters.

// OCRResult is what document understanding returns for one file.
type OCRResult struct {
	Text             string
	Confidence       float64
	DocumentType     string
	StructuredFields map[string]any
}

// Entity is one extracted span.
type Entity struct {
	Label      string
	Text       string
	Confidence float64
}

// ExtractionResult groups extracted entities by clinical concern.
type ExtractionResult struct {
	Entities      []Entity
	PatientInfo   map[string]any
	InsuranceInfo map[string]any
	ClinicalInfo  map[string]any
	TemporalInfo  map[string]any
}

// AnomalyIssue is one finding inside an anomaly report.
type AnomalyIssue struct {
	Type     string `json:"type"`
	Field    string `json:"field"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// AnomalyFinding is the scorer's verdict for one run. IsAnomaly true halts
// the pipeline into manual review.
type AnomalyFinding struct {
	IsAnomaly   bool
	AnomalyType string
	Score       float64
	Issues      []AnomalyIssue
}

// ConversionResult identifies the standardized clinical resource produced
// from the extracted record.
type ConversionResult struct {
	ResourceType     string
	ResourceID       string
	ValidationStatus string
}

// HubResult references the case-management record written downstream.
type HubResult struct {
	RecordID string
}

type DocumentUnderstanding interface {
	Process(ctx context.Context, fileRef string) (OCRResult, error)
}

type EntityExtraction interface {
	Extract(ctx context.Context, text string) (ExtractionResult, error)
}

type AnomalyDetection interface {
	Detect(ctx context.Context, record map[string]any) (AnomalyFinding, error)
}

type ResourceConversion interface {
	Convert(ctx context.Context, record map[string]any) (ConversionResult, error)
}

type HubConnector interface {
	UpsertCase(ctx context.Context, conversion ConversionResult, access privacy.CheckResult) (HubResult, error)
}
