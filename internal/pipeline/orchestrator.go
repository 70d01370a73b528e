package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"payerhub/internal/consent"
	"payerhub/internal/events"
	"payerhub/internal/platform/metrics"
	"payerhub/internal/privacy"
)

// The pipeline always checks access for treatment with full scope; payer
// document processing has no other purpose today.
const (
	purposeTreatment = "treatment"
	eventTextLimit   = 500

	// StagePreFlight labels failures that happen before any stage runs,
	// such as a correlation id collision or an aborted admission wait.
	StagePreFlight = "pre_flight"
)

// Request identifies one document to drive through the pipeline.
type Request struct {
	DocumentRef    string
	DocumentType   string
	PatientID      string
	OrganizationID string
	UserID         string
	// CorrelationID is generated when empty.
	CorrelationID string
}

// Orchestrator drives documents through OCR, extraction, anomaly check,
// FHIR conversion, privacy check and hub update. Stages run strictly in
// order within a run; runs for different documents execute concurrently up
// to the semaphore bound.
type Orchestrator struct {
	ocr       DocumentUnderstanding
	extractor EntityExtraction
	anomalies AnomalyDetection
	converter ResourceConversion
	hub       HubConnector

	gate     *privacy.Gate
	bus      events.Publisher
	registry *Registry

	sem     *semaphore.Weighted
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Deps bundles the orchestrator's collaborators and infrastructure.
type Deps struct {
	OCR         DocumentUnderstanding
	Extractor   EntityExtraction
	Anomalies   AnomalyDetection
	Converter   ResourceConversion
	Hub         HubConnector
	Gate        *privacy.Gate
	Bus         events.Publisher
	Registry    *Registry
	Logger      *slog.Logger
	Metrics     *metrics.Metrics // optional
	MaxInFlight int64
}

func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.OCR == nil, deps.Extractor == nil, deps.Anomalies == nil,
		deps.Converter == nil, deps.Hub == nil:
		return nil, errors.New("all five collaborators are required")
	case deps.Gate == nil:
		return nil, errors.New("privacy gate is required")
	case deps.Bus == nil:
		return nil, errors.New("event bus is required")
	case deps.Registry == nil:
		return nil, errors.New("run registry is required")
	}
	if deps.MaxInFlight <= 0 {
		deps.MaxInFlight = 16
	}
	return &Orchestrator{
		ocr:       deps.OCR,
		extractor: deps.Extractor,
		anomalies: deps.Anomalies,
		converter: deps.Converter,
		hub:       deps.Hub,
		gate:      deps.Gate,
		bus:       deps.Bus,
		registry:  deps.Registry,
		sem:       semaphore.NewWeighted(deps.MaxInFlight),
		tracer:    otel.Tracer("payerhub/pipeline"),
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}, nil
}

// ProcessDocument runs the full pipeline for one document and always returns
// a terminal run snapshot; no error ever escapes to the caller. The run's
// correlation id threads through every event published on its behalf and
// its document id is the partition key, so per-document event order holds.
func (o *Orchestrator) ProcessDocument(ctx context.Context, req Request) View {
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = "CORR-" + uuid.NewString()
	}
	documentID := "DOC-" + uuid.NewString()

	run := newRun(correlationID, documentID)
	if err := o.registry.add(run); err != nil {
		// Correlation id collision; the caller supplied a reused id.
		run.fail(StagePreFlight, fmt.Sprintf("correlation id %s already in use", correlationID))
		return run.Snapshot()
	}
	if o.metrics != nil {
		o.metrics.RunsStarted.Inc()
	}
	o.logger.Info("starting document pipeline",
		"correlation_id", correlationID,
		"document_id", documentID,
		"document_type", req.DocumentType,
	)

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.failRun(ctx, run, StagePreFlight, err)
		return run.Snapshot()
	}
	defer o.sem.Release(1)

	ctx, span := o.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	var (
		ocrResult  OCRResult
		extraction ExtractionResult
		conversion ConversionResult
		access     privacy.CheckResult
	)

	ok := o.runStage(ctx, run, StageOCR, func(ctx context.Context) stageResult {
		o.publish(ctx, run, events.TypeDocumentReceived, map[string]any{
			"document_id":   documentID,
			"file_path":     req.DocumentRef,
			"document_type": req.DocumentType,
		}, "ocr_processor")

		result, err := o.ocr.Process(ctx, req.DocumentRef)
		if err != nil {
			return stageFail(fmt.Errorf("ocr: %w", err))
		}
		ocrResult = result

		o.publish(ctx, run, events.TypeOCRCompleted, map[string]any{
			"document_id":   documentID,
			"text":          truncate(result.Text, eventTextLimit),
			"confidence":    result.Confidence,
			"document_type": result.DocumentType,
		}, "ocr_processor")

		return stageOK(StepSummary{
			"status":        "completed",
			"confidence":    result.Confidence,
			"document_type": result.DocumentType,
		})
	})
	if !ok {
		return run.Snapshot()
	}

	ok = o.runStage(ctx, run, StageEntityExtraction, func(ctx context.Context) stageResult {
		result, err := o.extractor.Extract(ctx, ocrResult.Text)
		if err != nil {
			return stageFail(fmt.Errorf("entity extraction: %w", err))
		}
		extraction = result

		o.publish(ctx, run, events.TypeEntityExtracted, map[string]any{
			"document_id":    documentID,
			"entities_count": len(result.Entities),
			"patient_info":   result.PatientInfo,
			"insurance_info": result.InsuranceInfo,
			"clinical_info":  result.ClinicalInfo,
		}, "entity_extractor")

		return stageOK(StepSummary{
			"status":         "completed",
			"entities_count": len(result.Entities),
			"patient_info":   result.PatientInfo,
			"insurance_info": result.InsuranceInfo,
		})
	})
	if !ok {
		return run.Snapshot()
	}

	ok = o.runStage(ctx, run, StageAnomalyDetection, func(ctx context.Context) stageResult {
		finding, err := o.anomalies.Detect(ctx, anomalyRecord(req.DocumentType, ocrResult, extraction))
		if err != nil {
			return stageFail(fmt.Errorf("anomaly detection: %w", err))
		}

		// Published even when the run halts, so the anomaly stays observable.
		o.publish(ctx, run, events.TypeAnomalyDetected, map[string]any{
			"document_id":   documentID,
			"is_anomaly":    finding.IsAnomaly,
			"anomaly_type":  finding.AnomalyType,
			"anomaly_score": finding.Score,
			"issues":        finding.Issues,
		}, "anomaly_detector")

		summary := StepSummary{
			"status":       "completed",
			"is_anomaly":   finding.IsAnomaly,
			"anomaly_type": finding.AnomalyType,
			"issues_count": len(finding.Issues),
		}
		if finding.IsAnomaly {
			return stageHalt(StatusManualReview, finding.AnomalyType, summary)
		}
		return stageOK(summary)
	})
	if !ok {
		return run.Snapshot()
	}

	ok = o.runStage(ctx, run, StageFHIRConversion, func(ctx context.Context) stageResult {
		result, err := o.converter.Convert(ctx, conversionRecord(req.DocumentType, extraction))
		if err != nil {
			return stageFail(fmt.Errorf("fhir conversion: %w", err))
		}
		conversion = result

		o.publish(ctx, run, events.TypeFHIRConverted, map[string]any{
			"document_id":       documentID,
			"resource_type":     result.ResourceType,
			"resource_id":       result.ResourceID,
			"validation_status": result.ValidationStatus,
		}, "fhir_mapper")

		return stageOK(StepSummary{
			"status":            "completed",
			"resource_type":     result.ResourceType,
			"resource_id":       result.ResourceID,
			"validation_status": result.ValidationStatus,
		})
	})
	if !ok {
		return run.Snapshot()
	}

	ok = o.runStage(ctx, run, StagePrivacyCheck, func(ctx context.Context) stageResult {
		access = o.gate.CheckAccess(ctx, privacy.AccessRequest{
			UserID:         req.UserID,
			PatientID:      req.PatientID,
			OrganizationID: req.OrganizationID,
			Purpose:        purposeTreatment,
			RequestedScope: []string{consent.ScopeFullAccess},
		})

		// Downstream consumers only ever see the record masked to the
		// granted access level.
		o.publish(ctx, run, events.TypePrivacyChecked, map[string]any{
			"document_id":    documentID,
			"patient_id":     req.PatientID,
			"access_allowed": access.Allowed,
			"access_level":   string(access.AccessLevel),
			"audit_log_id":   access.AuditLogID,
			"patient_info":   privacy.MaskPHI(extraction.PatientInfo, access.AccessLevel),
		}, "privacy_manager")

		summary := StepSummary{
			"status":         "completed",
			"access_allowed": access.Allowed,
			"access_level":   string(access.AccessLevel),
			"audit_log_id":   access.AuditLogID,
		}
		if !access.Allowed {
			return stageHalt(StatusAccessDenied, access.Reason, summary)
		}
		return stageOK(summary)
	})
	if !ok {
		return run.Snapshot()
	}

	ok = o.runStage(ctx, run, StageHubUpdate, func(ctx context.Context) stageResult {
		result, err := o.hub.UpsertCase(ctx, conversion, access)
		if err != nil {
			return stageFail(fmt.Errorf("hub update: %w", err))
		}

		// Completion is tied to this publish: once the hub.updated event is
		// acknowledged the run is terminal and can no longer be cancelled.
		published := o.publish(ctx, run, events.TypeHubUpdated, map[string]any{
			"document_id":      documentID,
			"record_id":        result.RecordID,
			"fhir_resource_id": conversion.ResourceID,
			"updated_at":       time.Now().UTC().Format(time.RFC3339Nano),
		}, "hub_integration")
		if !published {
			return stageFail(errors.New("hub update event not acknowledged by broker"))
		}

		return stageOK(StepSummary{
			"status":        "completed",
			"hub_record_id": result.RecordID,
		})
	})
	if !ok {
		return run.Snapshot()
	}

	run.complete()
	o.observeTerminal(StatusCompleted)
	o.logger.Info("document pipeline completed",
		"correlation_id", correlationID,
		"document_id", documentID,
	)
	return run.Snapshot()
}

// runStage executes one stage and applies its tagged result to the run.
// Returns false when the pipeline must stop, for any of halt, failure or
// cancellation.
func (o *Orchestrator) runStage(ctx context.Context, run *Run, stage string, fn func(ctx context.Context) stageResult) bool {
	if err := ctx.Err(); err != nil {
		o.failRun(ctx, run, stage, err)
		return false
	}

	stageCtx, span := o.tracer.Start(ctx, "pipeline."+stage)
	start := time.Now()
	result := fn(stageCtx)
	span.End()
	if o.metrics != nil {
		o.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}

	if result.err != nil {
		o.failRun(ctx, run, stage, result.err)
		return false
	}

	if result.summary != nil {
		if err := run.recordStep(stage, result.summary); err != nil {
			o.failRun(ctx, run, stage, err)
			return false
		}
	}

	switch result.haltStatus {
	case StatusManualReview:
		run.manualReview(result.haltReason)
		o.observeTerminal(StatusManualReview)
		o.logger.Warn("anomaly detected, flagged for manual review",
			"correlation_id", run.CorrelationID(),
			"reason", result.haltReason,
		)
		return false
	case StatusAccessDenied:
		run.accessDenied(result.haltReason)
		o.observeTerminal(StatusAccessDenied)
		o.logger.Warn("access denied",
			"correlation_id", run.CorrelationID(),
			"reason", result.haltReason,
		)
		return false
	}
	return true
}

// failRun terminates the run as failed and publishes exactly one
// error.occurred event naming the failing stage. Context cancellation is
// reported with the fixed reason "cancelled".
func (o *Orchestrator) failRun(ctx context.Context, run *Run, stage string, cause error) {
	message := cause.Error()
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		message = "cancelled"
	}
	run.fail(stage, message)
	o.observeTerminal(StatusFailed)
	o.logger.Error("document pipeline failed",
		"correlation_id", run.CorrelationID(),
		"stage", stage,
		"error", message,
	)

	// Publish on a fresh context so a cancelled run still emits its error
	// event.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	o.publish(publishCtx, run, events.TypeErrorOccurred, map[string]any{
		"document_id": run.DocumentID(),
		"error":       message,
		"step":        stage,
	}, "orchestrator")
}

func (o *Orchestrator) publish(ctx context.Context, run *Run, eventType events.Type, data map[string]any, source string) bool {
	return o.bus.Publish(ctx, eventType, data, source,
		events.WithCorrelationID(run.CorrelationID()),
		events.WithPartitionKey(run.DocumentID()),
	)
}

func (o *Orchestrator) observeTerminal(status Status) {
	if o.metrics != nil {
		o.metrics.RunsByStatus.WithLabelValues(string(status)).Inc()
	}
}

// anomalyRecord flattens everything the scorer looks at into one record.
func anomalyRecord(documentType string, ocr OCRResult, extraction ExtractionResult) map[string]any {
	record := map[string]any{
		"document_type": documentType,
		"confidence":    ocr.Confidence,
		"text":          ocr.Text,
		"entities":      extraction.Entities,
	}
	for _, info := range []map[string]any{extraction.PatientInfo, extraction.InsuranceInfo, extraction.ClinicalInfo} {
		for k, v := range info {
			record[k] = v
		}
	}
	return record
}

func conversionRecord(documentType string, extraction ExtractionResult) map[string]any {
	return map[string]any{
		"document_type":  documentType,
		"patient_info":   extraction.PatientInfo,
		"insurance_info": extraction.InsuranceInfo,
		"clinical_info":  extraction.ClinicalInfo,
		"temporal_info":  extraction.TemporalInfo,
	}
}

// truncate caps s at limit bytes, backing off to the previous rune boundary
// so the cut never leaves an invalid trailing sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
