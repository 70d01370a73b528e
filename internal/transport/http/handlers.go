package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"payerhub/internal/audit"
	"payerhub/internal/consent"
	"payerhub/internal/pipeline"
	"payerhub/internal/platform/middleware"
	"payerhub/pkg/platform/sentinel"
)

// HealthChecker reports readiness of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler is the thin HTTP layer over the pipeline core.
type Handler struct {
	orchestrator *pipeline.Orchestrator
	registry     *pipeline.Registry
	consents     *consent.Service
	auditLog     *audit.Log
	health       []HealthChecker
	logger       *slog.Logger
}

func NewHandler(
	orchestrator *pipeline.Orchestrator,
	registry *pipeline.Registry,
	consents *consent.Service,
	auditLog *audit.Log,
	health []HealthChecker,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		registry:     registry,
		consents:     consents,
		auditLog:     auditLog,
		health:       health,
		logger:       logger,
	}
}

type processDocumentRequest struct {
	DocumentRef    string `json:"document_ref"`
	DocumentType   string `json:"document_type"`
	PatientID      string `json:"patient_id"`
	OrganizationID string `json:"organization_id"`
	CorrelationID  string `json:"correlation_id,omitempty"`
}

func (h *Handler) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	var req processDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentRef == "" || req.PatientID == "" || req.OrganizationID == "" {
		writeError(w, http.StatusBadRequest, "document_ref, patient_id and organization_id are required")
		return
	}

	view := h.orchestrator.ProcessDocument(r.Context(), pipeline.Request{
		DocumentRef:    req.DocumentRef,
		DocumentType:   req.DocumentType,
		PatientID:      req.PatientID,
		OrganizationID: req.OrganizationID,
		UserID:         middleware.GetUserID(r.Context()),
		CorrelationID:  req.CorrelationID,
	})
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	view, err := h.registry.Get(chi.URLParam(r, "correlationID"))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("failed to load run", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type grantConsentRequest struct {
	PatientID      string   `json:"patient_id"`
	OrganizationID string   `json:"organization_id"`
	Purpose        string   `json:"purpose"`
	Scope          []string `json:"scope"`
	TTLDays        int      `json:"ttl_days,omitempty"`
}

type consentResponse struct {
	ConsentID      string     `json:"consent_id"`
	PatientID      string     `json:"patient_id"`
	OrganizationID string     `json:"organization_id"`
	Purpose        string     `json:"purpose"`
	Status         string     `json:"status"`
	GrantedAt      time.Time  `json:"granted_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Scope          []string   `json:"scope"`
}

func toConsentResponse(record *consent.Record) consentResponse {
	return consentResponse{
		ConsentID:      record.ConsentID,
		PatientID:      record.PatientID,
		OrganizationID: record.OrganizationID,
		Purpose:        record.Purpose,
		Status:         string(record.Status),
		GrantedAt:      record.GrantedAt,
		ExpiresAt:      record.ExpiresAt,
		Scope:          record.Scope,
	}
}

func (h *Handler) handleGrantConsent(w http.ResponseWriter, r *http.Request) {
	var req grantConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	record, err := h.consents.Grant(r.Context(), req.PatientID, req.OrganizationID, req.Purpose,
		req.Scope, time.Duration(req.TTLDays)*24*time.Hour)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toConsentResponse(record))
}

func (h *Handler) handleRevokeConsent(w http.ResponseWriter, r *http.Request) {
	err := h.consents.Revoke(r.Context(), chi.URLParam(r, "consentID"))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			writeError(w, http.StatusNotFound, "consent not found")
			return
		}
		h.logger.Error("failed to revoke consent", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) handleListConsents(w http.ResponseWriter, r *http.Request) {
	records, err := h.consents.List(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.logger.Error("failed to list consents", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]consentResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toConsentResponse(record))
	}
	writeJSON(w, http.StatusOK, out)
}

type auditEntryResponse struct {
	LogID        string         `json:"log_id"`
	Timestamp    time.Time      `json:"timestamp"`
	UserID       string         `json:"user_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	PatientID    string         `json:"patient_id"`
	AccessLevel  string         `json:"access_level"`
	Success      bool           `json:"success"`
	Details      map[string]any `json:"details,omitempty"`
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.auditLog.ListByPatient(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.logger.Error("failed to list audit entries", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, auditEntryResponse{
			LogID:        entry.LogID,
			Timestamp:    entry.Timestamp,
			UserID:       entry.UserID,
			Action:       string(entry.Action),
			ResourceType: entry.ResourceType,
			ResourceID:   entry.ResourceID,
			PatientID:    entry.PatientID,
			AccessLevel:  entry.AccessLevel,
			Success:      entry.Success,
			Details:      entry.Details,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	for _, checker := range h.health {
		if err := checker.Health(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "dependency unhealthy")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
