package privacy

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"payerhub/internal/audit"
	"payerhub/internal/consent"
)

// =============================================================================
// Privacy Gate Test Suite
// =============================================================================
// Justification for unit tests: the gate's fail-closed contract (audit write
// failure flips an allow into a deny) cannot be exercised end to end without
// injecting store failures.

type GateSuite struct {
	suite.Suite
	consentStore *consent.InMemoryStore
	auditStore   *audit.InMemoryStore
	gate         *Gate
	now          time.Time
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.consentStore = consent.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
	s.now = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	discard := slog.New(slog.DiscardHandler)

	consents, err := consent.NewService(s.consentStore, 30*24*time.Hour, discard,
		consent.WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
	auditLog, err := audit.NewLog(s.auditStore, discard)
	s.Require().NoError(err)

	s.gate, err = NewGate(consents, auditLog, discard)
	s.Require().NoError(err)

	_, err = consents.Grant(context.Background(), "patient-1", "org-1", "treatment",
		[]string{consent.ScopeFullAccess, "lab_results"}, 0)
	s.Require().NoError(err)
}

func (s *GateSuite) request(scope ...string) AccessRequest {
	return AccessRequest{
		UserID:         "user-1",
		PatientID:      "patient-1",
		OrganizationID: "org-1",
		Purpose:        "treatment",
		RequestedScope: scope,
	}
}

// =============================================================================
// Allow Path
// =============================================================================

func (s *GateSuite) TestAllowFullAccess() {
	result := s.gate.CheckAccess(context.Background(), s.request(consent.ScopeFullAccess))

	s.True(result.Allowed)
	s.Equal(AccessFull, result.AccessLevel)
	s.Equal(consent.StatusActive, result.ConsentStatus)
	s.Equal("Valid consent found", result.Reason)
	s.Empty(result.MaskedFields, "full access masks nothing")
	s.NotEmpty(result.AuditLogID)

	entries := s.auditStore.All()
	s.Require().Len(entries, 1, "exactly one audit entry per decision")
	s.Equal(audit.ActionAccessGranted, entries[0].Action)
	s.True(entries[0].Success)
	s.Equal(result.AuditLogID, entries[0].LogID)
}

func (s *GateSuite) TestAllowLimitedAccessMasksPHI() {
	result := s.gate.CheckAccess(context.Background(), s.request("lab_results"))

	s.True(result.Allowed)
	s.Equal(AccessLimited, result.AccessLevel)
	s.ElementsMatch(AllPHIFields(), result.MaskedFields)

	entries := s.auditStore.All()
	s.Require().Len(entries, 1)
	s.Equal(string(AccessLimited), entries[0].AccessLevel)
}

// =============================================================================
// Deny Path
// =============================================================================

func (s *GateSuite) TestDenyNoConsent() {
	req := s.request(consent.ScopeFullAccess)
	req.PatientID = "stranger"

	result := s.gate.CheckAccess(context.Background(), req)

	s.False(result.Allowed)
	s.Equal(AccessNone, result.AccessLevel)
	s.Equal("No valid consent", result.Reason)

	entries := s.auditStore.All()
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionAccessDenied, entries[0].Action)
	s.False(entries[0].Success)
}

func (s *GateSuite) TestDenyInsufficientScope() {
	result := s.gate.CheckAccess(context.Background(), s.request("lab_results", "medications"))

	s.False(result.Allowed)
	s.Equal("Consent does not cover requested scope", result.Reason)
}

func (s *GateSuite) TestDenyExpiredConsent() {
	s.now = s.now.Add(31 * 24 * time.Hour)

	result := s.gate.CheckAccess(context.Background(), s.request(consent.ScopeFullAccess))

	s.False(result.Allowed)
	s.Equal("Consent expired", result.Reason)
	s.Equal(consent.StatusExpired, result.ConsentStatus)
}

// =============================================================================
// Fail-Closed Contract
// =============================================================================

func (s *GateSuite) TestAuditFailureDeniesValidConsent() {
	s.auditStore.FailAppends()

	result := s.gate.CheckAccess(context.Background(), s.request(consent.ScopeFullAccess))

	s.False(result.Allowed, "unauditable grant must be denied")
	s.Equal(AccessNone, result.AccessLevel)
	s.Equal("Audit log unavailable", result.Reason)
	s.Empty(result.AuditLogID)
}

func (s *GateSuite) TestAuditFailureOnDenyStillDenies() {
	s.auditStore.FailAppends()
	req := s.request(consent.ScopeFullAccess)
	req.PatientID = "stranger"

	result := s.gate.CheckAccess(context.Background(), req)

	s.False(result.Allowed)
	s.Equal("No valid consent", result.Reason)
}

// =============================================================================
// Audit Entry Count Property
// =============================================================================

func (s *GateSuite) TestEveryDecisionWritesExactlyOneEntry() {
	ctx := context.Background()

	s.gate.CheckAccess(ctx, s.request(consent.ScopeFullAccess))
	s.gate.CheckAccess(ctx, s.request("lab_results"))
	denied := s.request(consent.ScopeFullAccess)
	denied.PatientID = "stranger"
	s.gate.CheckAccess(ctx, denied)

	s.Len(s.auditStore.All(), 3)
}
