// Package collaborators provides local, deterministic implementations of the
// pipeline's five external collaborator interfaces. They let the binary run
// end to end without model serving or a hub connection; production deploys
// swap in remote adapters.
package collaborators

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"payerhub/internal/pipeline"
	"payerhub/internal/privacy"
)

// LocalOCR produces a canned transcription keyed off the file reference.
type LocalOCR struct{}

func (LocalOCR) Process(_ context.Context, fileRef string) (pipeline.OCRResult, error) {
	ext := strings.ToLower(path.Ext(fileRef))
	switch ext {
	case ".pdf", ".jpg", ".jpeg", ".png", ".tiff":
	default:
		return pipeline.OCRResult{}, fmt.Errorf("unsupported file type %q", ext)
	}
	return pipeline.OCRResult{
		Text:         fmt.Sprintf("Prior authorization request for services. Source document: %s.", path.Base(fileRef)),
		Confidence:   0.92,
		DocumentType: "PRIOR_AUTHORIZATION",
		StructuredFields: map[string]any{
			"source": fileRef,
		},
	}, nil
}

// LocalExtractor returns a fixed entity set; remote NLP replaces it in
// production.
type LocalExtractor struct{}

func (LocalExtractor) Extract(_ context.Context, text string) (pipeline.ExtractionResult, error) {
	if strings.TrimSpace(text) == "" {
		return pipeline.ExtractionResult{}, fmt.Errorf("empty text")
	}
	return pipeline.ExtractionResult{
		Entities: []pipeline.Entity{
			{Label: "PROCEDURE", Text: "prior authorization", Confidence: 0.88},
		},
		PatientInfo: map[string]any{
			"name": "UNVERIFIED",
		},
		InsuranceInfo: map[string]any{
			"member_id": "UNVERIFIED",
		},
		ClinicalInfo: map[string]any{},
		TemporalInfo: map[string]any{},
	}, nil
}

// LocalAnomalyDetector flags records whose OCR confidence is below the
// threshold; everything else passes.
type LocalAnomalyDetector struct {
	Threshold float64
}

func (d LocalAnomalyDetector) Detect(_ context.Context, record map[string]any) (pipeline.AnomalyFinding, error) {
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}
	confidence, _ := record["confidence"].(float64)
	if confidence < threshold {
		return pipeline.AnomalyFinding{
			IsAnomaly:   true,
			AnomalyType: "low_ocr_confidence",
			Score:       1 - confidence,
			Issues: []pipeline.AnomalyIssue{{
				Type:     "quality",
				Field:    "confidence",
				Severity: "high",
				Message:  fmt.Sprintf("ocr confidence %.2f below threshold %.2f", confidence, threshold),
			}},
		}, nil
	}
	return pipeline.AnomalyFinding{Score: confidence}, nil
}

// LocalConverter mints a resource reference without real FHIR mapping.
type LocalConverter struct{}

func (LocalConverter) Convert(_ context.Context, record map[string]any) (pipeline.ConversionResult, error) {
	if record["patient_info"] == nil {
		return pipeline.ConversionResult{}, fmt.Errorf("record missing patient_info")
	}
	return pipeline.ConversionResult{
		ResourceType:     "Claim",
		ResourceID:       uuid.NewString(),
		ValidationStatus: "valid",
	}, nil
}

// LocalHub simulates the downstream case-management upsert.
type LocalHub struct{}

func (LocalHub) UpsertCase(_ context.Context, _ pipeline.ConversionResult, _ privacy.CheckResult) (pipeline.HubResult, error) {
	return pipeline.HubResult{RecordID: "HUB-" + uuid.NewString()}, nil
}
