package privacy

import (
	"context"
	"errors"
	"log/slog"

	"payerhub/internal/audit"
	"payerhub/internal/consent"
	"payerhub/pkg/platform/sentinel"
)

const resourceTypePatientData = "PATIENT_DATA"

// CheckResult is the gate's deterministic decision. AuditLogID references
// the entry recording this exact decision.
type CheckResult struct {
	Allowed       bool
	AccessLevel   AccessLevel
	ConsentStatus consent.Status
	Reason        string
	MaskedFields  []string
	AuditLogID    string
}

// AccessRequest carries everything the gate needs for one decision.
type AccessRequest struct {
	UserID         string
	PatientID      string
	OrganizationID string
	Purpose        string
	RequestedScope []string
	IPAddress      string
}

// Gate makes consent-backed access decisions. Every invocation writes
// exactly one audit entry before returning, allow or deny, and the audit
// write is load-bearing: if it fails on the allow path the decision flips
// to deny, because an unauditable grant is not a valid grant.
type Gate struct {
	consents *consent.Service
	auditLog *audit.Log
	logger   *slog.Logger
}

func NewGate(consents *consent.Service, auditLog *audit.Log, logger *slog.Logger) (*Gate, error) {
	if consents == nil {
		return nil, errors.New("consent service is required")
	}
	if auditLog == nil {
		return nil, errors.New("audit log is required")
	}
	return &Gate{consents: consents, auditLog: auditLog, logger: logger}, nil
}

// CheckAccess runs the consent check, derives the access level and masked
// field set, and records the decision.
func (g *Gate) CheckAccess(ctx context.Context, req AccessRequest) CheckResult {
	checkErr := g.consents.Check(ctx, req.PatientID, req.OrganizationID, req.Purpose, req.RequestedScope)
	if checkErr != nil {
		return g.deny(ctx, req, checkErr)
	}

	level := AccessLimited
	for _, scope := range req.RequestedScope {
		if scope == consent.ScopeFullAccess {
			level = AccessFull
			break
		}
	}

	var maskedFields []string
	if level != AccessFull {
		maskedFields = AllPHIFields()
	}

	logID, err := g.auditLog.Append(ctx, audit.Entry{
		UserID:       req.UserID,
		Action:       audit.ActionAccessGranted,
		ResourceType: resourceTypePatientData,
		ResourceID:   req.PatientID,
		PatientID:    req.PatientID,
		AccessLevel:  string(level),
		IPAddress:    req.IPAddress,
		Success:      true,
		Details: map[string]any{
			"purpose": req.Purpose,
			"scope":   req.RequestedScope,
		},
	})
	if err != nil {
		// Fail closed: the grant is only valid once recorded.
		g.logger.Error("audit write failed, denying access",
			"user_id", req.UserID,
			"patient_id", req.PatientID,
			"error", err,
		)
		return CheckResult{
			Allowed:       false,
			AccessLevel:   AccessNone,
			ConsentStatus: consent.StatusActive,
			Reason:        "Audit log unavailable",
		}
	}

	return CheckResult{
		Allowed:       true,
		AccessLevel:   level,
		ConsentStatus: consent.StatusActive,
		Reason:        "Valid consent found",
		MaskedFields:  maskedFields,
		AuditLogID:    logID,
	}
}

func (g *Gate) deny(ctx context.Context, req AccessRequest, cause error) CheckResult {
	reason := "No valid consent"
	status := consent.StatusRevoked
	switch {
	case errors.Is(cause, sentinel.ErrExpired):
		reason = "Consent expired"
		status = consent.StatusExpired
	case errors.Is(cause, sentinel.ErrInsufficientScope):
		reason = "Consent does not cover requested scope"
	case errors.Is(cause, sentinel.ErrNotFound):
		// No consent at all; keep the default reason.
	default:
		g.logger.Error("consent check failed",
			"patient_id", req.PatientID,
			"error", cause,
		)
		reason = "Consent check unavailable"
	}

	logID, err := g.auditLog.Append(ctx, audit.Entry{
		UserID:       req.UserID,
		Action:       audit.ActionAccessDenied,
		ResourceType: resourceTypePatientData,
		ResourceID:   req.PatientID,
		PatientID:    req.PatientID,
		AccessLevel:  string(AccessNone),
		IPAddress:    req.IPAddress,
		Success:      false,
		Details:      map[string]any{"reason": reason},
	})
	if err != nil {
		// Already denying; the denial stands even unrecorded, but it must
		// never be silently dropped from logs.
		g.logger.Error("audit write failed for denial",
			"user_id", req.UserID,
			"patient_id", req.PatientID,
			"error", err,
		)
	}

	return CheckResult{
		Allowed:       false,
		AccessLevel:   AccessNone,
		ConsentStatus: status,
		Reason:        reason,
		AuditLogID:    logID,
	}
}
